// The seeder creates the schema if needed and loads sample reference users
// and currencies. It is idempotent: re-running never duplicates rows.
package main

import (
	"context"

	"github.com/acme/txingest/internal/config"
	"github.com/acme/txingest/internal/logger"
	"github.com/acme/txingest/internal/models"
	"github.com/acme/txingest/internal/storage/postgres"
)

var users = []models.User{
	{ID: "user1", Name: "Alice"},
	{ID: "user2", Name: "Bob"},
	{ID: "user3", Name: "Charlie"},
}

var currencies = []models.Currency{
	{Code: "USD", Name: "US Dollar", Precision: 2},
	{Code: "EUR", Name: "Euro", Precision: 2},
	{Code: "GBP", Name: "British Pound", Precision: 2},
	{Code: "JPY", Name: "Japanese Yen", Precision: 0},
}

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

	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	for _, u := range users {
		if err := store.UpsertUser(ctx, u); err != nil {
			log.Fatal().Err(err).Msg("seed user")
		}
	}
	for _, c := range currencies {
		if err := store.UpsertCurrency(ctx, c); err != nil {
			log.Fatal().Err(err).Msg("seed currency")
		}
	}
	log.Info().Int("users", len(users)).Int("currencies", len(currencies)).Msg("seeded reference data")
}
