package sync

import (
	"context"
	"hash/fnv"
)

// DefaultShards is the shard count used by NewShardedMutex.
const DefaultShards = 32

// ShardedMutex provides fine-grained locking keyed by resource ID. Keys are
// hashed onto a fixed set of shards so unrelated resources rarely contend.
// Each shard is a one-slot channel, which lets waiters give up when their
// context ends.
type ShardedMutex struct {
	shards []chan struct{}
}

// NewShardedMutex creates a ShardedMutex with DefaultShards shards.
func NewShardedMutex() *ShardedMutex {
	return NewShardedMutexN(DefaultShards)
}

// NewShardedMutexN creates a ShardedMutex with n shards (minimum 1).
func NewShardedMutexN(n int) *ShardedMutex {
	if n < 1 {
		n = 1
	}
	m := &ShardedMutex{shards: make([]chan struct{}, n)}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
	}
	return m
}

// Lock acquires the shard for key, blocking until it is free.
func (m *ShardedMutex) Lock(key string) {
	m.shards[m.shardFor(key)] <- struct{}{}
}

// LockContext acquires the shard for key or returns ctx.Err() once the
// context is done. On error the lock is not held.
func (m *ShardedMutex) LockContext(ctx context.Context, key string) error {
	select {
	case m.shards[m.shardFor(key)] <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the shard for key. Unlocking a shard that is not held panics,
// like sync.Mutex.
func (m *ShardedMutex) Unlock(key string) {
	select {
	case <-m.shards[m.shardFor(key)]:
	default:
		panic("sync: unlock of unlocked shard")
	}
}

// shardFor returns the shard index for key. Empty keys map to shard 0.
func (m *ShardedMutex) shardFor(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.shards)))
}
