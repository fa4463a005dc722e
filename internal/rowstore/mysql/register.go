package mysql

import (
	"context"

	"ehi/internal/rowstore"
)

func init() {
	rowstore.Register("mysql", func(ctx context.Context, cfg rowstore.Config) (rowstore.Reader, error) {
		return Open(ctx, Config{DSN: cfg.DSN})
	})
}
