// Package backends opens the document store selected by configuration.
package backends

import (
	"context"
	"fmt"
	"time"

	"chgk-poll-bot/internal/config"
	"chgk-poll-bot/internal/store"
	"chgk-poll-bot/internal/store/gcds"
	"chgk-poll-bot/internal/store/pgstore"
	"chgk-poll-bot/internal/store/redisstore"
	"chgk-poll-bot/internal/store/sheets"
)

func Open(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemory(), nil
	case "redis":
		return redisstore.New(ctx, cfg.RedisURL, "chgk:")
	case "postgres":
		return pgstore.Connect(ctx, cfg.DatabaseURL, 10*time.Second)
	case "datastore":
		return gcds.New(ctx, cfg.DatastoreProjectID, cfg.DatastoreKind, cfg.GoogleServiceAccountJSON)
	case "sheets":
		return sheets.New(ctx, cfg.GoogleServiceAccountJSON, cfg.SpreadsheetID)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}
