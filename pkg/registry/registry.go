// Package registry holds the event-type -> handler mapping. Per spec §9,
// the source's dynamic dict becomes a typed mapping from event-type strings
// to uniform handler function values; it is written only before the
// supervisor starts and treated as read-only afterward.
package registry

import (
	"context"

	"github.com/chris-alexander-pop/system-design-library/pkg/parser"
	"go.mongodb.org/mongo-driver/mongo"
)

// HandlerFunc is the uniform handler signature: a database handle and the
// parsed event, returning an error on failure. Handlers perform the
// document-store write; the dispatcher owns dedup-mark and ack around it.
type HandlerFunc func(ctx context.Context, db *mongo.Database, event parser.ParsedEvent) error

// Registry maps event-type strings to handlers, matched exactly (never by
// prefix — prefix matching is the parser-selection step's job).
type Registry struct {
	handlers map[string]HandlerFunc
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds eventType to handler. A second call for the same
// event-type replaces the first; last registration wins.
func (r *Registry) Register(eventType string, handler HandlerFunc) {
	r.handlers[eventType] = handler
}

// Lookup returns the handler bound to eventType, if any.
func (r *Registry) Lookup(eventType string) (HandlerFunc, bool) {
	h, ok := r.handlers[eventType]
	return h, ok
}
