// Package logging keeps the most recent log records in memory so the API can
// serve them, alongside whatever handler writes them out.
package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log record
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	Component string         `json:"component,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`

	level slog.Level
}

// Journal is a fixed-size ring of entries
type Journal struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int

	subMu sync.RWMutex
	subs  map[chan Entry]struct{}
}

// NewJournal keeps up to size entries; size below 1 keeps one
func NewJournal(size int) *Journal {
	if size < 1 {
		size = 1
	}
	return &Journal{
		entries: make([]Entry, size),
		subs:    make(map[chan Entry]struct{}),
	}
}

func (j *Journal) add(e Entry) {
	j.mu.Lock()
	j.entries[j.head] = e
	j.head = (j.head + 1) % len(j.entries)
	if j.count < len(j.entries) {
		j.count++
	}
	j.mu.Unlock()

	j.subMu.RLock()
	for ch := range j.subs {
		select {
		case ch <- e:
		default:
		}
	}
	j.subMu.RUnlock()
}

// Recent returns up to n entries at or above level, oldest first
func (j *Journal) Recent(n int, level slog.Level) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	size := len(j.entries)
	out := make([]Entry, 0, max(0, min(n, j.count)))
	// walk newest to oldest, then reverse
	for i := 0; i < j.count && len(out) < n; i++ {
		e := j.entries[(j.head-1-i+size)%size]
		if e.level >= level {
			out = append(out, e)
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// Len is the number of entries held
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.count
}

// Subscribe returns a channel receiving new entries. Slow readers miss
// entries rather than block logging.
func (j *Journal) Subscribe() chan Entry {
	ch := make(chan Entry, 100)
	j.subMu.Lock()
	j.subs[ch] = struct{}{}
	j.subMu.Unlock()
	return ch
}

// Unsubscribe stops and closes ch
func (j *Journal) Unsubscribe(ch chan Entry) {
	j.subMu.Lock()
	if _, ok := j.subs[ch]; ok {
		delete(j.subs, ch)
		close(ch)
	}
	j.subMu.Unlock()
}

// Handler copies every record it handles into a Journal before passing it
// to the wrapped handler. Level filtering is the wrapped handler's.
type Handler struct {
	journal *Journal
	next    slog.Handler
	attrs   []slog.Attr
	group   string
}

// NewHandler wraps next
func NewHandler(j *Journal, next slog.Handler) *Handler {
	return &Handler{journal: j, next: next}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
		level:   r.Level,
	}
	put := func(a slog.Attr, prefix string) {
		if a.Key == "component" && prefix == "" {
			e.Component = a.Value.String()
			return
		}
		if e.Attrs == nil {
			e.Attrs = make(map[string]any)
		}
		e.Attrs[prefix+a.Key] = a.Value.Resolve().Any()
	}
	for _, a := range h.attrs {
		put(a, "")
	}
	prefix := ""
	if h.group != "" {
		prefix = h.group + "."
	}
	r.Attrs(func(a slog.Attr) bool {
		put(a, prefix)
		return true
	})

	h.journal.add(e)
	return h.next.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.next = h.next.WithAttrs(attrs)
	if h.group != "" {
		grouped := make([]slog.Attr, len(attrs))
		for i, a := range attrs {
			grouped[i] = slog.Attr{Key: h.group + "." + a.Key, Value: a.Value}
		}
		attrs = grouped
	}
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &c
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.next = h.next.WithGroup(name)
	if h.group == "" {
		c.group = name
	} else {
		c.group = h.group + "." + name
	}
	return &c
}

// ParseLevel reads debug, info, warn or error, defaulting to info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
