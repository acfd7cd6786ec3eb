package registry

import (
	"context"
	"testing"

	"github.com/chris-alexander-pop/system-design-library/pkg/parser"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestRegister_LookupReturnsSameHandler(t *testing.T) {
	r := New()
	called := false
	h := func(ctx context.Context, db *mongo.Database, event parser.ParsedEvent) error {
		called = true
		return nil
	}

	r.Register("account.created", h)

	got, ok := r.Lookup("account.created")
	if !ok {
		t.Fatalf("expected a handler to be registered")
	}
	if err := got(context.Background(), nil, parser.ParsedEvent{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatalf("expected the registered handler to run")
	}
}

func TestLookup_UnregisteredEventTypeMisses(t *testing.T) {
	r := New()
	if _, ok := r.Lookup("account.created"); ok {
		t.Fatalf("expected no handler for an unregistered event type")
	}
}

func TestRegister_SecondCallReplacesFirst(t *testing.T) {
	r := New()
	r.Register("account.created", func(ctx context.Context, db *mongo.Database, event parser.ParsedEvent) error {
		return nil
	})

	wantErr := context.Canceled
	r.Register("account.created", func(ctx context.Context, db *mongo.Database, event parser.ParsedEvent) error {
		return wantErr
	})

	h, ok := r.Lookup("account.created")
	if !ok {
		t.Fatalf("expected a handler to be registered")
	}
	if err := h(context.Background(), nil, parser.ParsedEvent{}); err != wantErr {
		t.Fatalf("expected the second registration to win, got err=%v", err)
	}
}

func TestRegister_ExactMatchOnlyNoPrefixMatching(t *testing.T) {
	r := New()
	r.Register("account.", func(ctx context.Context, db *mongo.Database, event parser.ParsedEvent) error {
		return nil
	})

	if _, ok := r.Lookup("account.created"); ok {
		t.Fatalf("handler lookup must not match by prefix")
	}
}
