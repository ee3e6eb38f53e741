package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/MatweyL/Potok/internal/resilience"
	"github.com/MatweyL/Potok/internal/store"
)

// Tasks returns a TaskStore that operates directly against the pool.
func (db *DB) Tasks() store.TaskStore { return &taskStore{q: db.pool} }

// Runs returns a RunStore that operates directly against the pool.
func (db *DB) Runs() store.RunStore { return &runStore{q: db.pool} }

// Payloads returns a PayloadStore that operates directly against the pool.
func (db *DB) Payloads() store.PayloadStore { return &payloadStore{q: db.pool} }

// Progress returns a ProgressStore that operates directly against the pool.
func (db *DB) Progress() store.ProgressStore { return &progressStore{q: db.pool} }

// txHandle scopes every store interface to a single pgx.Tx, mirroring the
// teacher's pgxTransaction wrapper.
type txHandle struct{ tx pgx.Tx }

func (h *txHandle) Tasks() store.TaskStore       { return &taskStore{q: h.tx} }
func (h *txHandle) Runs() store.RunStore         { return &runStore{q: h.tx} }
func (h *txHandle) Payloads() store.PayloadStore { return &payloadStore{q: h.tx} }
func (h *txHandle) Progress() store.ProgressStore { return &progressStore{q: h.tx} }

// RunTx runs fn inside a single database transaction, committing on a nil
// return and rolling back otherwise — the atomic unit C4's run
// materializer needs to combine due-task fetch, payload/bounds
// resolution, and status writes.
func (db *DB) RunTx(ctx context.Context, fn func(ctx context.Context, tx store.TxHandle) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return resilience.Classify(err, "store.tx")
	}

	if err := fn(ctx, &txHandle{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			db.log.Warn("rollback failed", logFields{"error": rbErr.Error()})
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return resilience.Classify(err, "store.tx")
	}
	return nil
}

// logFields is a tiny alias so this file doesn't need to import
// internal/logging just to spell out its Fields map type.
type logFields = map[string]interface{}
