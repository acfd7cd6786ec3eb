// Package dedup implements the short-lived key-value suppression gate of
// spec §4.2: it keys on (stream, broker entry id), never a logical event
// id, since the broker guarantees entry-id uniqueness within a stream.
package dedup

import (
	"context"
	"fmt"
	"time"
)

// Store is the minimal key-value surface the gate needs. broker.Broker
// satisfies this directly (the dedup key space lives in the same Redis
// connection as the broker, per spec §4.2 — not a second cache layer).
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetEX(ctx context.Context, key string, ttl time.Duration, value string) error
}

// Gate suppresses reprocessing of already-committed messages.
type Gate struct {
	store Store
}

// New returns a Gate backed by store.
func New(store Store) *Gate {
	return &Gate{store: store}
}

// Key formats the dedup key for a given stream and entry id.
func Key(stream, entryID string) string {
	return fmt.Sprintf("dedup:%s:%s", stream, entryID)
}

// Seen reports whether (stream, entryID) has already been marked.
func (g *Gate) Seen(ctx context.Context, stream, entryID string) (bool, error) {
	return g.store.Exists(ctx, Key(stream, entryID))
}

// Mark records (stream, entryID) as processed, expiring after ttl.
func (g *Gate) Mark(ctx context.Context, stream, entryID string, ttl time.Duration) error {
	return g.store.SetEX(ctx, Key(stream, entryID), ttl, "1")
}
