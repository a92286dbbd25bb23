package main

import (
	"context"
	"database/sql"
	"time"

	accessservice "medvault/internal/access/service"
	accessstore "medvault/internal/access/store"
	id "medvault/pkg/domain"
	dErrors "medvault/pkg/domain-errors"
)

const defaultAccessTxTimeout = 5 * time.Second

// accessPostgresTx runs access mutations in one database transaction. Row
// locks taken by the tx-bound store serialize decisions; the record ID is
// not needed for locking.
type accessPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newAccessPostgresTx(db *sql.DB) *accessPostgresTx {
	return &accessPostgresTx{db: db}
}

func (t *accessPostgresTx) RunInTx(ctx context.Context, _ id.RecordID, fn func(ctx context.Context, store accessservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultAccessTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op; error already captured
	}()

	if err := fn(ctx, accessstore.NewPostgresTx(tx)); err != nil {
		return err
	}

	return tx.Commit()
}
