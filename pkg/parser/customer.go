package parser

import "github.com/chris-alexander-pop/system-design-library/pkg/envelope"

// parseCustomerMessage builds the customer-family ParsedEvent variant. The
// source wraps an external customers-SDK payload together with the
// conversation id ("conv") and sequence ("seq") pulled from the envelope;
// lacking that SDK, the decoded "dat" field stands in as payload.
func parseCustomerMessage(eventType string, env envelope.Envelope) CustomerEvent {
	conversationID, _ := env.Get("conv")

	var payload any
	if env.HasDat {
		payload = env.Dat
	} else {
		payload = rawOf(env)
	}

	return CustomerEvent{
		EventType:      eventType,
		ConversationID: conversationID,
		Sequence:       env.Seq,
		Payload:        payload,
	}
}
