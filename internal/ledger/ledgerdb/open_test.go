package ledgerdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger/sqlstore"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

func TestOpenMemory(t *testing.T) {
	store, closeFn, err := Open(context.Background(), "", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = closeFn() }()
	if _, ok := store.(*ledger.InMemoryStore); !ok {
		t.Fatalf("expected in-memory store, got %T", store)
	}
}

func TestOpenSQLiteMigratesAndReopens(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.ToSlash(filepath.Join(t.TempDir(), "ledger.db"))

	store, closeFn, err := Open(ctx, "sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*sqlstore.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	l := ledger.New(store, nil)
	if _, err := l.AppendGovernance(ctx, ledger.GovernanceInput{EventType: types.EventModelPause, ScorerVersion: "v1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, closeFn, err = Open(ctx, "sqlite3", dsn)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = closeFn() }()
	res, err := ledger.New(store, nil).VerifyGovernance(ctx)
	if err != nil || !res.Valid || res.Entries != 1 {
		t.Fatalf("verify after reopen: %+v err=%v", res, err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, _, err := Open(context.Background(), "oracle", "x"); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
