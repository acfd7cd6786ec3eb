// Package envelope normalizes the raw string fields a broker message
// carries into the canonical shape the rest of the engine assumes. It is
// the sole place this coercion happens — every downstream package may treat
// c_seq/seq as ints, rec as a list, and dat as already-decoded where
// possible.
package envelope

import "encoding/json"

// Envelope is the canonical, sanitized shape of a message's fields.
type Envelope struct {
	// Raw carries every original field verbatim (including ones this
	// package doesn't special-case), so callers that need a field
	// sanitization doesn't touch can still read it.
	Raw map[string]string

	CSeq int
	Seq  int
	Rec  []any
	Dat  any

	// HasCSeq/HasSeq/HasRec/HasDat record whether the source map had the
	// key at all, distinguishing "absent" from "present but empty". The
	// parser uses them to decide which sanitized fields to expose.
	HasCSeq bool
	HasSeq  bool
	HasRec  bool
	HasDat  bool
}

// Get returns a raw field by name, with the standard "" / false miss value.
func (e Envelope) Get(key string) (string, bool) {
	v, ok := e.Raw[key]
	return v, ok
}

// Sanitize coerces a raw string-field map into an Envelope per spec §4.1.
// It never panics and never returns an error: every branch produces a
// well-typed result even for malformed input.
func Sanitize(fields map[string]string) Envelope {
	e := Envelope{Raw: fields}

	if v, ok := fields["c_seq"]; ok {
		e.HasCSeq = true
		e.CSeq = sanitizeInt(v)
	}
	if v, ok := fields["seq"]; ok {
		e.HasSeq = true
		e.Seq = sanitizeInt(v)
	}
	if v, ok := fields["rec"]; ok {
		e.HasRec = true
		e.Rec = sanitizeRec(v)
	}
	if v, ok := fields["dat"]; ok {
		e.HasDat = true
		e.Dat = sanitizeDat(v)
	}

	return e
}

// sanitizeInt implements the c_seq/seq coercion: empty -> 0, numeric text ->
// parsed int, non-numeric text -> 0.
func sanitizeInt(raw string) int {
	if raw == "" {
		return 0
	}
	n := 0
	sign := 1
	i := 0
	if raw[0] == '-' {
		sign = -1
		i = 1
	}
	if i == len(raw) {
		return 0
	}
	for ; i < len(raw); i++ {
		c := raw[i]
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n * sign
}

// sanitizeRec implements the rec coercion: textual JSON array decodes to a
// list; textual non-JSON wraps as a single-element list (or an empty list
// for empty text).
func sanitizeRec(raw string) []any {
	if raw == "" {
		return []any{}
	}
	var decoded []any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		return decoded
	}
	return []any{raw}
}

// sanitizeDat implements the dat coercion: attempt a structured decode,
// falling back to the original text unchanged when it doesn't parse.
func sanitizeDat(raw string) any {
	if raw == "" {
		return raw
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		return decoded
	}
	return raw
}

// EventType derives the event-type string per spec §3/§4.3: the first
// non-empty of msg_type, typ, event_type.
func EventType(fields map[string]string) string {
	for _, key := range []string{"msg_type", "typ", "event_type"} {
		if v := fields[key]; v != "" {
			return v
		}
	}
	return ""
}

// CorrelationID derives the human-facing correlation id per spec §3: the
// first non-empty of cause, id, event_id, else the broker entry id.
func CorrelationID(fields map[string]string, entryID string) string {
	for _, key := range []string{"cause", "id", "event_id"} {
		if v := fields[key]; v != "" {
			return v
		}
	}
	return entryID
}
