package envelope

import (
	"reflect"
	"testing"
)

func TestSanitize_CSeqAndSeq(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"numeric", "7", 7},
		{"negative", "-3", -3},
		{"non-numeric", "oops", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := Sanitize(map[string]string{"c_seq": tc.in, "seq": tc.in})
			if e.CSeq != tc.want {
				t.Errorf("c_seq = %d, want %d", e.CSeq, tc.want)
			}
			if e.Seq != tc.want {
				t.Errorf("seq = %d, want %d", e.Seq, tc.want)
			}
		})
	}
}

func TestSanitize_CSeqMissingIsUnchanged(t *testing.T) {
	e := Sanitize(map[string]string{})
	if e.HasCSeq {
		t.Errorf("HasCSeq should be false when the field is absent entirely")
	}
}

func TestSanitize_Rec(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []any
	}{
		{"empty", "", []any{}},
		{"non-json text", "plain-text", []any{"plain-text"}},
		{"json array", `["a","b"]`, []any{"a", "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := Sanitize(map[string]string{"rec": tc.in})
			if !reflect.DeepEqual(e.Rec, tc.want) {
				t.Errorf("rec = %#v, want %#v", e.Rec, tc.want)
			}
		})
	}
}

func TestSanitize_Dat(t *testing.T) {
	e := Sanitize(map[string]string{"dat": `{"id":1}`})
	m, ok := e.Dat.(map[string]any)
	if !ok {
		t.Fatalf("dat = %#v, want decoded map", e.Dat)
	}
	if m["id"].(float64) != 1 {
		t.Errorf("dat.id = %v, want 1", m["id"])
	}

	e = Sanitize(map[string]string{"dat": "not json"})
	if e.Dat != "not json" {
		t.Errorf("dat = %#v, want unchanged text", e.Dat)
	}
}

func TestSanitize_Totality(t *testing.T) {
	inputs := []map[string]string{
		nil,
		{},
		{"c_seq": "", "seq": "", "rec": "", "dat": ""},
		{"c_seq": "abc", "rec": "{not valid", "dat": "{not valid"},
		{"rec": "[1,2,3]", "dat": "[1,2,3]"},
	}
	for _, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Sanitize panicked on %#v: %v", in, r)
				}
			}()
			_ = Sanitize(in)
		}()
	}
}

func TestSanitize_CanonicalEnvelopeIsNoOp(t *testing.T) {
	fields := map[string]string{"c_seq": "3", "seq": "3"}
	first := Sanitize(fields)
	second := Sanitize(first.Raw)
	if first.CSeq != second.CSeq || first.Seq != second.Seq {
		t.Errorf("sanitizing twice should be idempotent")
	}
}

func TestEventType_FirstNonEmptyWins(t *testing.T) {
	cases := []struct {
		fields map[string]string
		want   string
	}{
		{map[string]string{"msg_type": "account.created"}, "account.created"},
		{map[string]string{"typ": "account.created"}, "account.created"},
		{map[string]string{"event_type": "account.created"}, "account.created"},
		{map[string]string{"msg_type": "a", "typ": "b"}, "a"},
		{map[string]string{}, ""},
	}
	for _, tc := range cases {
		if got := EventType(tc.fields); got != tc.want {
			t.Errorf("EventType(%#v) = %q, want %q", tc.fields, got, tc.want)
		}
	}
}

func TestCorrelationID_FallsBackToEntryID(t *testing.T) {
	if got := CorrelationID(map[string]string{}, "1-0"); got != "1-0" {
		t.Errorf("CorrelationID = %q, want entry id", got)
	}
	if got := CorrelationID(map[string]string{"cause": "abc"}, "1-0"); got != "abc" {
		t.Errorf("CorrelationID = %q, want %q", got, "abc")
	}
}
