package logger

import (
	"context"
	"log/slog"
	"math/rand"
	"regexp"
)

// AsyncHandler buffers records on a channel and hands them to the wrapped
// handler from a single background goroutine, so callers on the hot path
// (the dispatcher, the supervisor loop) never block on I/O to emit a log
// line. When the buffer is full, records are dropped rather than blocking
// the caller unless dropOnFull is false, in which case the caller blocks.
type AsyncHandler struct {
	next       slog.Handler
	records    chan asyncRecord
	dropOnFull bool
}

type asyncRecord struct {
	ctx context.Context
	r   slog.Record
}

func NewAsyncHandler(next slog.Handler, bufferSize int, dropOnFull bool) *AsyncHandler {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	h := &AsyncHandler{
		next:       next,
		records:    make(chan asyncRecord, bufferSize),
		dropOnFull: dropOnFull,
	}
	go h.run()
	return h
}

func (h *AsyncHandler) run() {
	for rec := range h.records {
		_ = h.next.Handle(rec.ctx, rec.r)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	rec := asyncRecord{ctx: ctx, r: r.Clone()}
	if h.dropOnFull {
		select {
		case h.records <- rec:
		default:
			// buffer full: drop rather than stall the caller
		}
		return nil
	}
	h.records <- rec
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{next: h.next.WithAttrs(attrs), records: h.records, dropOnFull: h.dropOnFull}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{next: h.next.WithGroup(name), records: h.records, dropOnFull: h.dropOnFull}
}

// SamplingHandler drops a fraction of records before they reach the wrapped
// handler. Level-Enabled records that are sampled out never pay redaction or
// buffering cost.
type SamplingHandler struct {
	next slog.Handler
	rate float64
}

func NewSamplingHandler(next slog.Handler, rate float64) *SamplingHandler {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &SamplingHandler{next: next, rate: rate}
}

func (h *SamplingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SamplingHandler) Handle(ctx context.Context, r slog.Record) error {
	if level := r.Level; level >= slog.LevelWarn {
		// never sample warnings/errors away
		return h.next.Handle(ctx, r)
	}
	if rand.Float64() >= h.rate {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *SamplingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SamplingHandler{next: h.next.WithAttrs(attrs), rate: h.rate}
}

func (h *SamplingHandler) WithGroup(name string) slog.Handler {
	return &SamplingHandler{next: h.next.WithGroup(name), rate: h.rate}
}

// RedactHandler masks attribute values that look like emails or payment
// card numbers before they reach the wrapped handler. It is a best-effort
// mask, not a compliance guarantee — it exists so a handler bug that logs a
// raw envelope field doesn't leak obviously sensitive values into stdout.
type RedactHandler struct {
	next slog.Handler
}

func NewRedactHandler(next slog.Handler) *RedactHandler {
	return &RedactHandler{next: next}
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	cardPattern  = regexp.MustCompile(`^[\d ]{13,19}$`)
)

func redactValue(v slog.Value) slog.Value {
	if v.Kind() != slog.KindString {
		return v
	}
	s := v.String()
	if emailPattern.MatchString(s) || cardPattern.MatchString(s) {
		return slog.StringValue("[REDACTED]")
	}
	return v
}

func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactHandler) Handle(ctx context.Context, r slog.Record) error {
	redacted := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		a.Value = redactValue(a.Value)
		redacted.AddAttrs(a)
		return true
	})
	return h.next.Handle(ctx, redacted)
}

func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	for i, a := range attrs {
		attrs[i].Value = redactValue(a.Value)
	}
	return &RedactHandler{next: h.next.WithAttrs(attrs)}
}

func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{next: h.next.WithGroup(name)}
}
