// Package handlers provides the illustrative event handlers wired into the
// registry at startup: one per event-type family, exercising the parser's
// tagged union and a document-store write per spec §9's uniform handler
// signature.
package handlers

import (
	"context"
	"time"

	apperrors "github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/parser"
	"github.com/chris-alexander-pop/system-design-library/pkg/registry"
	"go.mongodb.org/mongo-driver/mongo"
)

// Register binds the sample handlers to their event types.
func Register(r *registry.Registry) {
	r.Register("account.created", handleAccountCreated)
	r.Register("customer.created", handleCustomerCreated)
}

func handleAccountCreated(ctx context.Context, db *mongo.Database, event parser.ParsedEvent) error {
	if event.Kind != parser.KindAccount {
		return apperrors.New(apperrors.CodeInvalidArgument, "account.created requires an account-parsed event", nil)
	}

	doc := map[string]any{
		"event_type": event.Account.EventType,
		"c_seq":      event.Account.CSeq,
		"data":       event.Account.Dat,
		"received_at": time.Now().UTC(),
	}
	_, err := db.Collection("accounts").InsertOne(ctx, doc)
	if err != nil {
		return apperrors.Wrap(err, "failed to record account.created")
	}
	return nil
}

func handleCustomerCreated(ctx context.Context, db *mongo.Database, event parser.ParsedEvent) error {
	if event.Kind != parser.KindCustomer {
		return apperrors.New(apperrors.CodeInvalidArgument, "customer.created requires a customer-parsed event", nil)
	}

	doc := map[string]any{
		"event_type":      event.Customer.EventType,
		"conversation_id": event.Customer.ConversationID,
		"sequence":        event.Customer.Sequence,
		"payload":         event.Customer.Payload,
		"received_at":     time.Now().UTC(),
	}
	_, err := db.Collection("customers").InsertOne(ctx, doc)
	if err != nil {
		return apperrors.Wrap(err, "failed to record customer.created")
	}
	return nil
}
