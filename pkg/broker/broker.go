// Package broker abstracts the log-structured, consumer-group-capable
// message broker the engine pulls events from (spec §6). The interface is
// deliberately narrow: only the operations the delivery protocol and the
// reconnection supervisor need.
package broker

import (
	"context"
	"time"
)

// Message is a single broker entry delivered to this consumer.
type Message struct {
	// ID is the broker-assigned entry id: unique within Stream and
	// monotonically orderable.
	ID string

	// Fields is the raw field map as decoded from the broker (string
	// keys and values; numeric/structured coercion is the sanitizer's
	// job, not the broker's).
	Fields map[string]string

	Stream string
}

// PendingEntry describes one entry in a consumer group's pending list.
type PendingEntry struct {
	ID            string
	DeliveryCount int64
}

// Broker is the set of operations the delivery protocol and supervisor use.
// Every method that can fail for a connection reason (transport disconnect,
// timeout, OS socket error) returns an error satisfying errors.Is(err,
// CodeConnection) via *errors.AppError, so the supervisor can classify the
// fault without string-matching.
type Broker interface {
	// EnsureGroup creates the consumer group on stream at start-id "0",
	// auto-creating stream if it doesn't exist. A pre-existing group is
	// treated as success (spec §4.3).
	EnsureGroup(ctx context.Context, stream, group string) error

	// PendingRange returns up to count pending entries for group on
	// stream, ordered from the start of the pending list.
	PendingRange(ctx context.Context, stream, group string, count int64) ([]PendingEntry, error)

	// Claim transfers ownership of the given entry ids to consumer, with
	// idle-time threshold minIdle, and returns the claimed messages (an
	// entry already deleted/acked by another path is simply absent from
	// the result, not an error).
	Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids []string) ([]Message, error)

	// ReadGroup issues a single blocking multi-stream read of new (">")
	// entries across streams, returning each stream's messages keyed by
	// stream name. A nil/empty result after the block elapses is not an
	// error.
	ReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) (map[string][]Message, error)

	// Ack acknowledges entryID for group on stream, removing it from the
	// pending list.
	Ack(ctx context.Context, stream, group, entryID string) error

	// Append appends fields as a new entry to stream, returning the new
	// entry id.
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)

	// Exists reports whether key is set (used by the dedup gate).
	Exists(ctx context.Context, key string) (bool, error)

	// SetEX sets key to value with the given TTL (used by the dedup gate).
	SetEX(ctx context.Context, key string, ttl time.Duration, value string) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
