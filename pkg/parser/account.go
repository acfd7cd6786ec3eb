package parser

import "github.com/chris-alexander-pop/system-design-library/pkg/envelope"

// parseAccountMessage builds the account-family parser-native object. The
// source delegates to an external accounts SDK; lacking that collaborator,
// this exposes the same sanitized fields (c_seq as int, dat/rec coerced)
// under typed accessors so handlers don't re-parse the envelope.
func parseAccountMessage(eventType string, env envelope.Envelope) AccountEvent {
	return AccountEvent{
		EventType: eventType,
		CSeq:      env.CSeq,
		Dat:       env.Dat,
		Rec:       env.Rec,
		Raw:       env.Raw,
	}
}
