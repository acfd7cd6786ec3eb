package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/broker"
	"github.com/chris-alexander-pop/system-design-library/pkg/dedup"
	apperrors "github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/parser"
	"github.com/chris-alexander-pop/system-design-library/pkg/registry"
	"go.mongodb.org/mongo-driver/mongo"
)

// fakeBroker is an in-memory stand-in satisfying broker.Broker, enough to
// exercise dedup (Exists/SetEX), ack, and DLQ append (Append).
type fakeBroker struct {
	kv  map[string]string
	ack []string
	dlq []map[string]string

	appendErr error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{kv: make(map[string]string)}
}

func (f *fakeBroker) EnsureGroup(ctx context.Context, stream, group string) error { return nil }
func (f *fakeBroker) PendingRange(ctx context.Context, stream, group string, count int64) ([]broker.PendingEntry, error) {
	return nil, nil
}
func (f *fakeBroker) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids []string) ([]broker.Message, error) {
	return nil, nil
}
func (f *fakeBroker) ReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) (map[string][]broker.Message, error) {
	return nil, nil
}
func (f *fakeBroker) Ack(ctx context.Context, stream, group, entryID string) error {
	f.ack = append(f.ack, entryID)
	return nil
}
func (f *fakeBroker) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	if f.appendErr != nil {
		return "", f.appendErr
	}
	f.dlq = append(f.dlq, fields)
	return "dlq-1", nil
}
func (f *fakeBroker) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := f.kv[key]
	return ok, nil
}
func (f *fakeBroker) SetEX(ctx context.Context, key string, ttl time.Duration, value string) error {
	f.kv[key] = value
	return nil
}
func (f *fakeBroker) Ping(ctx context.Context) error { return nil }
func (f *fakeBroker) Close() error                   { return nil }

func newDispatcher(b *fakeBroker, r *registry.Registry) *Dispatcher {
	log := slog.New(slog.NewTextHandler(discard{}, nil))
	return New(b, dedup.New(b), r, nil, log, Config{
		DLQStream:     "dlq",
		ConsumerGroup: "workers",
		MaxRetries:    3,
		DedupTTL:      time.Minute,
	})
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// 1. Happy path: handler receives c_seq=7 (int) and dat={"id":1} (structured);
// dedup key set; ack called once.
func TestProcess_HappyPath(t *testing.T) {
	b := newFakeBroker()
	r := registry.New()

	var gotCSeq int
	var gotDat any
	r.Register("account.created", func(ctx context.Context, db *mongo.Database, event parser.ParsedEvent) error {
		gotCSeq = event.Account.CSeq
		gotDat = event.Account.Dat
		return nil
	})

	d := newDispatcher(b, r)

	msg := broker.Message{ID: "1-0", Stream: "inbox", Fields: map[string]string{
		"msg_type": "account.created", "c_seq": "7", "dat": `{"id":1}`,
	}}

	if err := d.Process(context.Background(), "inbox", msg, 1); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if gotCSeq != 7 {
		t.Errorf("handler saw c_seq = %d, want 7", gotCSeq)
	}
	if m, ok := gotDat.(map[string]any); !ok || m["id"].(float64) != 1 {
		t.Errorf("handler saw dat = %#v, want decoded {id:1}", gotDat)
	}
	if len(b.ack) != 1 || b.ack[0] != "1-0" {
		t.Fatalf("ack calls = %v, want exactly [1-0]", b.ack)
	}
	if _, ok := b.kv["dedup:inbox:1-0"]; !ok {
		t.Fatalf("expected dedup key dedup:inbox:1-0 to be set")
	}
}

// 2. Duplicate suppression: handler not invoked; ack called.
func TestProcess_DuplicateSuppression(t *testing.T) {
	b := newFakeBroker()
	b.kv["dedup:inbox:1-0"] = "1"
	r := registry.New()

	invoked := false
	r.Register("account.created", func(ctx context.Context, db *mongo.Database, event parser.ParsedEvent) error {
		invoked = true
		return nil
	})

	d := newDispatcher(b, r)
	msg := broker.Message{ID: "1-0", Stream: "inbox", Fields: map[string]string{"msg_type": "account.created"}}

	if err := d.Process(context.Background(), "inbox", msg, 1); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if invoked {
		t.Fatalf("handler must not run for a duplicate entry")
	}
	if len(b.ack) != 1 {
		t.Fatalf("expected ack once for the duplicate, got %v", b.ack)
	}
}

// 3. Handler failure under retry ceiling: no dedup mark, no ack, no DLQ.
func TestProcess_HandlerFailureUnderRetryCeiling(t *testing.T) {
	b := newFakeBroker()
	r := registry.New()
	r.Register("account.created", func(ctx context.Context, db *mongo.Database, event parser.ParsedEvent) error {
		return errors.New("boom")
	})

	d := newDispatcher(b, r)
	msg := broker.Message{ID: "1-0", Stream: "inbox", Fields: map[string]string{"msg_type": "account.created"}}

	if err := d.Process(context.Background(), "inbox", msg, 1); err != nil {
		t.Fatalf("Process should swallow a non-connection handler error, got: %v", err)
	}
	if len(b.ack) != 0 {
		t.Fatalf("expected no ack below the retry ceiling, got %v", b.ack)
	}
	if len(b.dlq) != 0 {
		t.Fatalf("expected no DLQ append below the retry ceiling, got %v", b.dlq)
	}
	if _, ok := b.kv["dedup:inbox:1-0"]; ok {
		t.Fatalf("expected no dedup mark for a failed handler")
	}
}

// 4. Poison to DLQ: DLQ entry with original_message_id/error/moved_at;
// original acked.
func TestProcess_PoisonMovesToDLQ(t *testing.T) {
	b := newFakeBroker()
	r := registry.New()
	r.Register("account.created", func(ctx context.Context, db *mongo.Database, event parser.ParsedEvent) error {
		return errors.New("boom")
	})

	d := newDispatcher(b, r)
	msg := broker.Message{ID: "1-0", Stream: "inbox", Fields: map[string]string{"msg_type": "account.created"}}

	if err := d.Process(context.Background(), "inbox", msg, 3); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(b.dlq) != 1 {
		t.Fatalf("expected exactly one DLQ entry, got %d", len(b.dlq))
	}
	entry := b.dlq[0]
	if entry["original_message_id"] != "1-0" {
		t.Errorf("original_message_id = %q, want 1-0", entry["original_message_id"])
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %q, want boom", entry["error"])
	}
	if entry["moved_at"] == "" {
		t.Errorf("expected moved_at to be set")
	}
	if len(b.ack) != 1 || b.ack[0] != "1-0" {
		t.Fatalf("expected the original entry acked after DLQ, got %v", b.ack)
	}
}

// DLQ-append connection failure leaves the original un-acked.
func TestProcess_DLQAppendConnectionErrorLeavesUnacked(t *testing.T) {
	b := newFakeBroker()
	b.appendErr = apperrors.New(apperrors.CodeConnection, "broker unavailable", nil)
	r := registry.New()
	r.Register("account.created", func(ctx context.Context, db *mongo.Database, event parser.ParsedEvent) error {
		return errors.New("boom")
	})

	d := newDispatcher(b, r)
	msg := broker.Message{ID: "1-0", Stream: "inbox", Fields: map[string]string{"msg_type": "account.created"}}

	if err := d.Process(context.Background(), "inbox", msg, 3); err != nil {
		t.Fatalf("a connection-class DLQ failure must be swallowed, not propagated: %v", err)
	}
	if len(b.ack) != 0 {
		t.Fatalf("expected no ack when DLQ append fails with a connection error, got %v", b.ack)
	}
}

// No handler registered: ack called, no error.
func TestProcess_NoHandlerAcksAndReturns(t *testing.T) {
	b := newFakeBroker()
	r := registry.New()
	d := newDispatcher(b, r)

	msg := broker.Message{ID: "1-0", Stream: "inbox", Fields: map[string]string{"msg_type": "unregistered.event"}}
	if err := d.Process(context.Background(), "inbox", msg, 1); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(b.ack) != 1 {
		t.Fatalf("expected ack for an unregistered event type, got %v", b.ack)
	}
}

// A connection-class handler error propagates unchanged (no ack, no DLQ).
func TestProcess_ConnectionErrorPropagates(t *testing.T) {
	b := newFakeBroker()
	r := registry.New()
	wantErr := apperrors.New(apperrors.CodeConnection, "database unreachable", nil)
	r.Register("account.created", func(ctx context.Context, db *mongo.Database, event parser.ParsedEvent) error {
		return wantErr
	})

	d := newDispatcher(b, r)
	msg := broker.Message{ID: "1-0", Stream: "inbox", Fields: map[string]string{"msg_type": "account.created"}}

	err := d.Process(context.Background(), "inbox", msg, 1)
	if !apperrors.Is(err, apperrors.CodeConnection) {
		t.Fatalf("expected the connection error to propagate unchanged, got: %v", err)
	}
	if len(b.ack) != 0 {
		t.Fatalf("expected no ack when the handler fails with a connection error, got %v", b.ack)
	}
}
