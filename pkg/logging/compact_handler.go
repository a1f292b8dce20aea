package logging

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CompactHandler formats logs in a compact, readable format for console output
// Format: [LEVEL] HH:MM:SS [component] message | key=value key=value
type CompactHandler struct {
	level     slog.Leveler
	mu        *sync.Mutex // shared with derived handlers
	out       io.Writer
	attrs     []slog.Attr // accumulated attributes from WithAttrs
	group     string      // current group name from WithGroup
	component string      // pulled out of WithAttrs for the line prefix
}

// NewCompactHandler creates a new compact console handler
func NewCompactHandler(w io.Writer, opts *slog.HandlerOptions) *CompactHandler {
	h := &CompactHandler{
		level: slog.LevelInfo,
		mu:    &sync.Mutex{},
		out:   w,
	}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *CompactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// levelTag pads every tag to the same width
func levelTag(l slog.Level) string {
	switch {
	case l < slog.LevelDebug:
		return "[TRACE] "
	case l < slog.LevelInfo:
		return "[DEBUG] "
	case l < slog.LevelWarn:
		return "[INFO]  "
	case l < slog.LevelError:
		return "[WARN]  "
	}
	return "[ERROR] "
}

func (h *CompactHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	buf = append(buf, levelTag(r.Level)...)
	buf = r.Time.AppendFormat(buf, "15:04:05")
	buf = append(buf, ' ')
	if h.component != "" {
		buf = append(buf, '[')
		buf = append(buf, h.component...)
		buf = append(buf, "] "...)
	}
	buf = append(buf, r.Message...)

	sep := " |"
	add := func(a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		buf = append(buf, sep...)
		buf = append(buf, ' ')
		sep = ""
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		buf = appendAttr(buf, a)
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(a)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf)
	return err
}

// shortID keeps the first 8 characters of a uuid
func shortID(v slog.Value) (string, bool) {
	s, ok := v.Any().(string)
	if !ok || len(s) <= 8 {
		return "", false
	}
	return s[:8], true
}

func appendAttr(buf []byte, a slog.Attr) []byte {
	switch a.Key {
	case "batch":
		if s, ok := shortID(a.Value); ok {
			return append(append(buf, "batch="...), s...)
		}
	case "requestID":
		if s, ok := shortID(a.Value); ok {
			return append(append(buf, "req="...), s...)
		}
	case "durationMs":
		buf = append(buf, "duration="...)
		buf = append(buf, a.Value.String()...)
		return append(buf, "ms"...)
	case "error":
		if err, ok := a.Value.Any().(error); ok {
			return strconv.AppendQuote(append(buf, "error="...), err.Error())
		}
		return strconv.AppendQuote(append(buf, "error="...), a.Value.String())
	}

	buf = append(buf, a.Key...)
	buf = append(buf, '=')

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return appendString(buf, v.String())
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(buf, v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'g', -1, 64)
	case slog.KindBool:
		return strconv.AppendBool(buf, v.Bool())
	case slog.KindTime:
		return v.Time().AppendFormat(buf, time.RFC3339)
	}
	// Durations, slices and anything else
	return append(buf, v.String()...)
}

// appendString quotes strings with spaces or special chars
func appendString(buf []byte, s string) []byte {
	if strings.ContainsAny(s, " \t\n\"=") {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

func (h *CompactHandler) derive() *CompactHandler {
	c := *h
	return &c
}

func (h *CompactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.derive()
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		if a.Key == componentKey {
			c.component = a.Value.String()
			continue
		}
		c.attrs = append(c.attrs, a)
	}
	return c
}

func (h *CompactHandler) WithGroup(name string) slog.Handler {
	c := h.derive()
	c.group = name
	return c
}
