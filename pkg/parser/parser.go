// Package parser selects an event-family parser by event-type prefix, per
// spec §6. It is the only place prefix matching happens — handler lookup
// (pkg/registry) always matches the event-type string exactly.
package parser

import "github.com/chris-alexander-pop/system-design-library/pkg/envelope"

// Kind discriminates the variant a ParsedEvent carries.
type Kind int

const (
	// KindAccount covers "account." and "payment." prefixed events.
	KindAccount Kind = iota
	// KindCustomer covers "customer." and "application." prefixed events.
	KindCustomer
	// KindRaw covers everything else: the sanitized field map itself.
	KindRaw
)

// ParsedEvent is the tagged union a handler receives, replacing the source's
// dynamically-typed parser return value. Exactly one of Account, Customer,
// Raw is populated, selected by Kind.
type ParsedEvent struct {
	Kind Kind

	Account  AccountEvent
	Customer CustomerEvent
	Raw      map[string]any
}

// AccountEvent is the parser-native shape for account-family messages.
type AccountEvent struct {
	EventType string
	CSeq      int
	Dat       any
	Rec       []any
	Raw       map[string]string
}

// CustomerEvent wraps customer-family payloads with the envelope metadata
// the source's synthesized ParsedEvent object exposed.
type CustomerEvent struct {
	EventType      string
	ConversationID string
	Sequence       int
	Payload        any
}

// Select dispatches on eventType's prefix and builds the matching variant
// from the already-sanitized envelope.
func Select(eventType string, env envelope.Envelope) ParsedEvent {
	switch {
	case hasPrefix(eventType, "account.") || hasPrefix(eventType, "payment."):
		return ParsedEvent{
			Kind:    KindAccount,
			Account: parseAccountMessage(eventType, env),
		}
	case hasPrefix(eventType, "customer.") || hasPrefix(eventType, "application."):
		return ParsedEvent{
			Kind:     KindCustomer,
			Customer: parseCustomerMessage(eventType, env),
		}
	default:
		return ParsedEvent{Kind: KindRaw, Raw: rawOf(env)}
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// rawOf exposes the sanitized envelope as a plain map for handlers that get
// no specific parser, mirroring the source returning `sanitized` unchanged.
func rawOf(env envelope.Envelope) map[string]any {
	m := make(map[string]any, len(env.Raw))
	for k, v := range env.Raw {
		m[k] = v
	}
	if env.HasCSeq {
		m["c_seq"] = env.CSeq
	}
	if env.HasSeq {
		m["seq"] = env.Seq
	}
	if env.HasRec {
		m["rec"] = env.Rec
	}
	if env.HasDat {
		m["dat"] = env.Dat
	}
	return m
}
