package domain

import (
	"context"
	"time"
)

// EventJournal is the append-only persistence of committed ledger events and
// the source of truth for state recovery. Append must reject sequence reuse;
// a multi-event append belongs to a single committed operation.
type EventJournal interface {
	Append(ctx context.Context, events ...*Event) error
	Load(ctx context.Context, fromSeq uint64) ([]Event, error)
	LastSeq(ctx context.Context) (uint64, error)
}

// EventPublisher pushes committed events to external consumers. Publishing is
// best effort: a failure never un-commits a mutation, consumers can always
// fall back to replaying the journal.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev Event) error
}

// Settlement holds escrowed participant balances, the stand-in for attached
// payment value in this port of the marketplace. Debit fails with
// ErrInsufficientFunds and must be atomic per account.
type Settlement interface {
	Credit(ctx context.Context, addr Address, amount uint64) error
	Debit(ctx context.Context, addr Address, amount uint64) error
	BalanceOf(ctx context.Context, addr Address) (uint64, error)
}

// CacheRepository is a byte-oriented read cache for derived views.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CacheError is returned by CacheRepository implementations.
type CacheError string

func (e CacheError) Error() string {
	return string(e)
}

// ErrCacheMiss signals that the key is not present in the cache.
const ErrCacheMiss = CacheError("key not found in cache")
