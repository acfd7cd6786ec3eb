// Package dispatch implements the per-message processing algorithm of
// spec §4.3: decode, dedup-check, parse, handler-lookup, handler-invoke,
// dedup-mark, ack — in that order, with the ack-after-commit invariant
// enforced by construction (dedup-mark and ack only run after the handler
// returns nil).
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/broker"
	"github.com/chris-alexander-pop/system-design-library/pkg/dedup"
	"github.com/chris-alexander-pop/system-design-library/pkg/envelope"
	apperrors "github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/parser"
	"github.com/chris-alexander-pop/system-design-library/pkg/registry"
	"go.mongodb.org/mongo-driver/mongo"
)

// Config carries the per-deployment knobs the dispatcher needs beyond its
// collaborators: the DLQ destination and retry ceiling from spec §6.
type Config struct {
	DLQStream     string
	ConsumerGroup string
	MaxRetries    int64
	DedupTTL      time.Duration
}

// Dispatcher owns a single message's worth of processing. It holds no
// per-message state between calls; the supervisor constructs it once and
// calls Process for every delivered message.
type Dispatcher struct {
	broker   broker.Broker
	dedup    *dedup.Gate
	registry *registry.Registry
	db       *mongo.Database
	log      *slog.Logger
	cfg      Config
}

// New returns a Dispatcher wired to its collaborators.
func New(b broker.Broker, d *dedup.Gate, r *registry.Registry, db *mongo.Database, log *slog.Logger, cfg Config) *Dispatcher {
	return &Dispatcher{broker: b, dedup: d, registry: r, db: db, log: log, cfg: cfg}
}

// Process runs the full algorithm for one delivered message. deliveryCount
// is the broker-reported times_delivered for this entry (1 for a message
// that has never been pending, per spec §9's open question).
//
// A connection-class handler error is returned unchanged so the supervisor
// can drive Layer-2 reconnection. Errors from the broker calls Process makes
// itself (dedup check and mark, ack, and a DLQ append that fails for a
// non-connection reason) are also returned. No handler, and a handler error
// below the retry ceiling, are handled inside Process and reported only via
// logging.
func (d *Dispatcher) Process(ctx context.Context, stream string, msg broker.Message, deliveryCount int64) error {
	eventType := envelope.EventType(msg.Fields)
	correlationID := envelope.CorrelationID(msg.Fields, msg.ID)

	log := d.log.With(
		"message_id", msg.ID,
		"event_type", eventType,
		"event_id", correlationID,
		"stream", stream,
		"delivery_count", deliveryCount,
	)

	seen, err := d.dedup.Seen(ctx, stream, msg.ID)
	if err != nil {
		return err
	}
	if seen {
		log.Debug("duplicate event, skipping")
		return d.ack(ctx, stream, msg.ID)
	}

	sanitized := envelope.Sanitize(msg.Fields)
	parsed := parser.Select(eventType, sanitized)

	handler, ok := d.registry.Lookup(eventType)
	if !ok {
		log.Warn("no handler registered for event type")
		return d.ack(ctx, stream, msg.ID)
	}

	if err := handler(ctx, d.db, parsed); err != nil {
		if isConnectionErr(err) {
			return err
		}
		return d.handleFailure(ctx, log, stream, msg, deliveryCount, err)
	}

	if err := d.dedup.Mark(ctx, stream, msg.ID, d.cfg.DedupTTL); err != nil {
		return err
	}
	if err := d.ack(ctx, stream, msg.ID); err != nil {
		return err
	}

	log.Info("event processed successfully")
	return nil
}

// handleFailure implements spec §7's non-connection handler-error policy:
// quarantine and ack at the retry ceiling, otherwise leave the entry
// un-acked for redelivery.
func (d *Dispatcher) handleFailure(ctx context.Context, log *slog.Logger, stream string, msg broker.Message, deliveryCount int64, cause error) error {
	log.Error("error processing message", "error", cause.Error())

	if deliveryCount < d.cfg.MaxRetries {
		return nil
	}

	if err := d.moveToDLQ(ctx, msg, cause); err != nil {
		if isConnectionErr(err) {
			log.Error("failed to move message to dlq, broker unavailable; will retry on reconnection", "error", err.Error())
			return nil
		}
		return err
	}

	if err := d.ack(ctx, stream, msg.ID); err != nil {
		return err
	}
	log.Error("message moved to dlq", "delivery_count", deliveryCount)
	return nil
}

// moveToDLQ appends the original fields plus failure metadata to the DLQ
// stream, per spec §7/§8's DLQ-entry shape.
func (d *Dispatcher) moveToDLQ(ctx context.Context, msg broker.Message, cause error) error {
	fields := make(map[string]string, len(msg.Fields)+3)
	for k, v := range msg.Fields {
		fields[k] = v
	}
	fields["original_message_id"] = msg.ID
	fields["error"] = cause.Error()
	fields["moved_at"] = time.Now().UTC().Format(time.RFC3339)

	_, err := d.broker.Append(ctx, d.cfg.DLQStream, fields)
	return err
}

func (d *Dispatcher) ack(ctx context.Context, stream, entryID string) error {
	return d.broker.Ack(ctx, stream, d.cfg.ConsumerGroup, entryID)
}

// isConnectionErr reports whether err should propagate to the supervisor
// for reconnection handling rather than be handled as a poison message.
func isConnectionErr(err error) bool {
	return apperrors.Is(err, apperrors.CodeConnection) || broker.IsConnErr(err)
}
