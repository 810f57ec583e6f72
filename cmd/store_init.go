package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-ledger/internal/ledger"
)

func initStore(ctx context.Context) (ledger.Store, error) {
	if err := cfg.Validate(true); err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "diligence.db"
		}
		return ledger.NewSQLite(dsn)
	case "postgres":
		return ledger.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore initializes the store and runs migrations. Callers should defer
// Close.
func openStore(ctx context.Context) (ledger.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
