package logging

import (
	"context"
	"log/slog"
	"regexp"
)

var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{8,}`),
	regexp.MustCompile(`(?i)[A-Z_]*API_KEY\s*=\s*\S+`),
}

const redacted = "[REDACTED]"

// scrub replaces any substring matching a credential pattern with a
// placeholder. Applied to every string attribute value before a record
// reaches a handler, never to attribute keys.
func scrub(s string) string {
	for _, re := range redactPatterns {
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}

// RedactingHandler wraps a slog.Handler and scrubs credential-shaped
// substrings from string attribute values (and the message) before
// delegating. The wrapped handler itself does no redaction: this is new
// code layered on top, not a property of the base logger.
type RedactingHandler struct {
	next slog.Handler
}

// NewRedactingHandler wraps next so every record it receives is scrubbed
// first.
func NewRedactingHandler(next slog.Handler) *RedactingHandler {
	return &RedactingHandler{next: next}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	nr := slog.NewRecord(r.Time, r.Level, scrub(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(scrubAttr(a))
		return true
	})
	return h.next.Handle(ctx, nr)
}

func scrubAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindString {
		return slog.String(a.Key, scrub(v.String()))
	}
	if v.Kind() == slog.KindGroup {
		attrs := v.Group()
		scrubbed := make([]any, 0, len(attrs))
		for _, ga := range attrs {
			scrubbed = append(scrubbed, scrubAttr(ga))
		}
		return slog.Group(a.Key, scrubbed...)
	}
	return a
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = scrubAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(scrubbed)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name)}
}

// scrubMap applies scrub to every string value in a log entry's attribute
// map, used for the exporter path which bypasses the slog.Handler chain.
func scrubMap(m map[string]any) map[string]any {
	for k, v := range m {
		if s, ok := v.(string); ok {
			m[k] = scrub(s)
		}
	}
	return m
}
