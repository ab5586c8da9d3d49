// The importer loads transactions from a bulk CSV file. Rows that fail
// validation land in the rejection ledger and the run continues; only an
// operational fault (database unreachable mid-run) aborts, with a non-zero
// exit so the caller knows the run is incomplete and can re-run the file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/acme/txingest/internal/config"
	"github.com/acme/txingest/internal/detect"
	"github.com/acme/txingest/internal/ingest"
	"github.com/acme/txingest/internal/logger"
	"github.com/acme/txingest/internal/sources/csvfile"
	"github.com/acme/txingest/internal/storage/postgres"
	"github.com/acme/txingest/internal/validate"
)

func main() {
	log := logger.New()

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s <file.csv>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

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
	importer := csvfile.NewImporter(coordinator, log)

	summary, err := importer.ImportFile(context.Background(), path)
	if err != nil {
		log.Error().Err(err).
			Int("accepted", summary.Accepted).
			Int("rejected", summary.Rejected).
			Msg("import incomplete")
		os.Exit(1)
	}
	log.Info().
		Str("file", path).
		Int("accepted", summary.Accepted).
		Int("rejected", summary.Rejected).
		Msg("import finished")
}
