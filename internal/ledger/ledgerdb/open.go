// Package ledgerdb opens the ledger store named by a driver and DSN and
// applies its migrations.
package ledgerdb

import (
	"context"
	"fmt"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger/pgstore"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger/sqlstore"
)

// Open returns the store and its close function. The memory driver needs no
// DSN and starts empty.
func Open(ctx context.Context, driverName, dsn string) (ledger.Store, func() error, error) {
	driver, err := ledger.ParseDriver(driverName)
	if err != nil {
		return nil, nil, err
	}
	switch driver {
	case ledger.DBSQLite:
		s, err := sqlstore.OpenSQLite(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := ledger.Migrate(ctx, s.DB(), driver); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	case ledger.DBPostgres:
		s, err := pgstore.OpenPostgres(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := ledger.Migrate(ctx, s.DB(), driver); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return ledger.NewInMemoryStore(), func() error { return nil }, nil
	}
}
