// The consumer drains the transactions topic into the ledgers. It serves
// /health and /metrics while running and shuts down cleanly on SIGINT or
// SIGTERM, leaving any in-flight message uncommitted for redelivery.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acme/txingest/internal/config"
	"github.com/acme/txingest/internal/detect"
	"github.com/acme/txingest/internal/ingest"
	"github.com/acme/txingest/internal/logger"
	"github.com/acme/txingest/internal/sources/kafka"
	"github.com/acme/txingest/internal/storage/postgres"
	"github.com/acme/txingest/internal/validate"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	store, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer store.Close()

	detector := detect.New(detect.Config{
		SuspiciousAmount: cfg.SuspiciousAmount,
		VelocityMaxCount: cfg.VelocityMaxCount,
		VelocityWindow:   cfg.VelocityWindow,
	})
	coordinator := ingest.New(store, detector, validate.Limits{
		MaxAmount: cfg.MaxAmount,
		ClockSkew: cfg.ClockSkew,
	}, log)

	consumer := kafka.NewConsumer(kafka.Config{
		Brokers:       cfg.KafkaBrokers,
		Topic:         cfg.KafkaTopic,
		GroupID:       cfg.KafkaGroupID,
		RetryInterval: cfg.RetryInterval,
	}, coordinator, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Error().Err(err).Msg("metrics listener stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Strs("brokers", cfg.KafkaBrokers).
		Str("topic", cfg.KafkaTopic).
		Str("group", cfg.KafkaGroupID).
		Msg("consuming transactions")
	if err := consumer.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("consumer stopped")
	}
	log.Info().Msg("shutdown complete")
}
