package postgres

import (
	"context"

	"ehi/internal/rowstore"
)

func init() {
	rowstore.Register("postgres", func(ctx context.Context, cfg rowstore.Config) (rowstore.Reader, error) {
		return Open(ctx, Config{DSN: cfg.DSN, SchemaName: cfg.SchemaName})
	})
}
