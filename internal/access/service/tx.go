package service

import (
	"context"
	"time"

	"medvault/internal/access/metrics"
	id "medvault/pkg/domain"
	dErrors "medvault/pkg/domain-errors"
	platformsync "medvault/pkg/platform/sync"
)

// StoreTx provides a transactional boundary for access request mutations.
// Implementations may wrap a database transaction or, in memory, a lock per
// record. Every mutation touching one record runs inside RunInTx for it.
type StoreTx interface {
	RunInTx(ctx context.Context, recordID id.RecordID, fn func(ctx context.Context, store Store) error) error
}

// defaultTxTimeout is the maximum duration of one access transaction.
const defaultTxTimeout = 5 * time.Second

// ShardedTx serializes work per record with a sharded mutex. Unrelated
// records rarely share a shard and never wait on each other beyond that.
type ShardedTx struct {
	mu      *platformsync.ShardedMutex
	store   Store
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewShardedTx wraps store. m may be nil.
func NewShardedTx(store Store, m *metrics.Metrics) *ShardedTx {
	return &ShardedTx{
		mu:      platformsync.NewShardedMutex(),
		store:   store,
		timeout: defaultTxTimeout,
		metrics: m,
	}
}

func (t *ShardedTx) RunInTx(ctx context.Context, recordID id.RecordID, fn func(ctx context.Context, store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	key := recordID.String()
	lockStart := time.Now()
	if err := t.mu.LockContext(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: lock wait exceeded deadline")
	}
	defer t.mu.Unlock(key)
	t.metrics.ObserveLockWait(time.Since(lockStart))

	return fn(ctx, t.store)
}
