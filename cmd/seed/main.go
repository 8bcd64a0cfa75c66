// Command seed loads books into every catalog replica.
//
//	seed < books.json
//
// The input is a JSON array of {"id","topic","price","quantity"} objects.
// Replicas come from CATALOG_REPLICAS, as for the server.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/book-bazaar/internal/adapter/replica"
	"github.com/example/book-bazaar/internal/adapter/repo"
	"github.com/example/book-bazaar/internal/config"
	"github.com/example/book-bazaar/internal/domain"
	"github.com/example/book-bazaar/internal/usecase"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	var books []domain.Book
	if err := json.NewDecoder(os.Stdin).Decode(&books); err != nil {
		log.Fatal().Err(err).Msg("read json from stdin")
	}

	members := make([]replica.Member[domain.CatalogConn], 0, len(cfg.CatalogReplicas))
	for _, addr := range cfg.CatalogReplicas {
		m, err := repo.OpenCatalog(ctx, addr)
		if err != nil {
			log.Fatal().Err(err).Str("replica", addr).Msg("open catalog replica")
		}
		if s, ok := m.(repo.SchemaEnsurer); ok {
			if err := s.EnsureSchema(ctx); err != nil {
				log.Fatal().Err(err).Str("replica", addr).Msg("ensure schema")
			}
		}
		members = append(members, m)
	}
	catalog, err := replica.NewSet("catalog", members...)
	if err != nil {
		log.Fatal().Err(err).Msg("catalog replicas")
	}
	defer catalog.Close()

	if err := (usecase.SeedCatalog{Catalog: catalog}).Execute(ctx, books); err != nil {
		log.Fatal().Err(err).Msg("seed catalog")
	}
	log.Info().Int("books", len(books)).Int("replicas", catalog.Len()).Msg("catalog seeded")
}
