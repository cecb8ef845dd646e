// Package logging wires slog to three sinks: a log file, stdout, and an
// in-memory ring buffer served by the control API's /logs endpoint.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type Entry struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// RingBuffer keeps the most recent log entries for HTTP queries. Oldest
// entries fall off once maxSize is reached.
type RingBuffer struct {
	mu      sync.RWMutex
	maxSize int
	items   []Entry
}

func NewRingBuffer(maxSize int) *RingBuffer {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &RingBuffer{maxSize: maxSize, items: make([]Entry, 0, maxSize)}
}

func (r *RingBuffer) add(ts time.Time, level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ts.IsZero() {
		ts = time.Now()
	}
	r.items = append(r.items, Entry{
		Time:    ts.Format("2006-01-02 15:04:05"),
		Level:   level,
		Message: message,
	})
	if len(r.items) > r.maxSize {
		r.items = r.items[len(r.items)-r.maxSize:]
	}
}

func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = r.items[:0]
}

// Query filters entries by level and case-insensitive substring, then pages
// through the matches.
func (r *RingBuffer) Query(level, search string, start, limit int) ([]Entry, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if start < 0 {
		start = 0
	}
	if limit <= 0 {
		limit = 100
	}

	search = strings.ToLower(search)
	filtered := make([]Entry, 0, len(r.items))
	for _, e := range r.items {
		if level != "" && level != "ALL" && e.Level != level {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Message), search) &&
			!strings.Contains(strings.ToLower(e.Level), search) {
			continue
		}
		filtered = append(filtered, e)
	}

	total := len(filtered)
	if start >= total {
		return []Entry{}, total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return filtered[start:end], total
}

type ringBufferHandler struct {
	buffer *RingBuffer
	level  slog.Leveler
	attrs  []string
	groups []string
}

func (h *ringBufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.level == nil {
		return true
	}
	return level >= h.level.Level()
}

func (h *ringBufferHandler) Handle(_ context.Context, rec slog.Record) error {
	if h.buffer == nil {
		return nil
	}
	h.buffer.add(rec.Time, rec.Level.String(), h.formatMessage(rec))
	return nil
}

// WithAttrs formats attrs eagerly so they carry the group prefix in effect
// when they were added, not the prefix at record time.
func (h *ringBufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]string(nil), h.attrs...)
	prefix := strings.Join(h.groups, ".")
	for _, a := range attrs {
		appendAttr(&next.attrs, prefix, a)
	}
	return &next
}

func (h *ringBufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

func (h *ringBufferHandler) formatMessage(rec slog.Record) string {
	parts := append(make([]string, 0, len(h.attrs)+4), h.attrs...)
	prefix := strings.Join(h.groups, ".")

	rec.Attrs(func(a slog.Attr) bool {
		appendAttr(&parts, prefix, a)
		return true
	})

	msg := strings.TrimRight(rec.Message, "\r\n")
	if len(parts) == 0 {
		return msg
	}
	if msg == "" {
		return strings.Join(parts, " ")
	}
	return msg + " | " + strings.Join(parts, " ")
}

func appendAttr(parts *[]string, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	key := attr.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if prefix != "" {
		key = prefix
	}

	if attr.Value.Kind() == slog.KindGroup {
		for _, ga := range attr.Value.Group() {
			appendAttr(parts, key, ga)
		}
		return
	}
	if key == "" {
		return
	}
	*parts = append(*parts, key+"="+fmt.Sprint(attr.Value.Any()))
}

type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, rec slog.Record) error {
	var firstErr error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, rec.Level) {
			continue
		}
		if err := handler.Handle(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		next = append(next, handler.WithAttrs(attrs))
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		next = append(next, handler.WithGroup(name))
	}
	return &multiHandler{handlers: next}
}

// Setup builds the process logger writing to logFile, stdout, and buffer,
// and installs it as the slog default.
func Setup(logFile string, buffer *RingBuffer) (*slog.Logger, error) {
	if dir := filepath.Dir(logFile); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	logger := slog.New(&multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(f, opts),
		slog.NewTextHandler(os.Stdout, opts),
		&ringBufferHandler{buffer: buffer, level: opts.Level},
	}})
	slog.SetDefault(logger)
	return logger, nil
}
