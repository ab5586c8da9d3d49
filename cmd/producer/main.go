// The producer publishes a handful of sample transactions to the ingestion
// topic, including one with a missing field and one undecodable payload, for
// exercising the consumer end to end.
package main

import (
	"context"
	"time"

	"github.com/acme/txingest/internal/config"
	"github.com/acme/txingest/internal/logger"
	"github.com/acme/txingest/internal/sources/kafka"
)

type sample struct {
	TransactionID string  `json:"transaction_id"`
	SenderID      string  `json:"sender_id"`
	ReceiverID    string  `json:"receiver_id,omitempty"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Timestamp     string  `json:"timestamp"`
	Status        string  `json:"status"`
}

func main() {
	log := logger.New()

	cfg, err := config.LoadKafka()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer publisher.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	samples := []sample{
		{TransactionID: "tx1001", SenderID: "user1", ReceiverID: "user2", Amount: 250.00, Currency: "USD", Timestamp: now, Status: "completed"},
		{TransactionID: "tx1002", SenderID: "user2", ReceiverID: "user3", Amount: 500.00, Currency: "EUR", Timestamp: now, Status: "pending"},
		// Missing receiver_id: rejected as structural.
		{TransactionID: "tx1003", SenderID: "user1", Amount: 100.00, Currency: "GBP", Timestamp: now, Status: "failed"},
		// Over the default suspicious threshold.
		{TransactionID: "tx1004", SenderID: "user3", ReceiverID: "user1", Amount: 25000.00, Currency: "USD", Timestamp: now, Status: "completed"},
	}

	ctx := context.Background()
	for _, tx := range samples {
		if err := publisher.Publish(ctx, tx); err != nil {
			log.Fatal().Err(err).Str("transaction_id", tx.TransactionID).Msg("publish")
		}
		log.Info().Str("transaction_id", tx.TransactionID).Msg("sent")
	}

	// Not JSON at all: rejected as parse_error.
	if err := publisher.PublishRaw(ctx, []byte("not json")); err != nil {
		log.Fatal().Err(err).Msg("publish raw")
	}
	log.Info().Msg("sent malformed payload")
}
