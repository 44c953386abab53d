// Package live keeps a local appeal list in sync with the backend's
// appeal change channel.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/eventbus"
)

// EventType is the kind of change announced by the backend
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one channel message
type Event struct {
	Type EventType  `json:"event_type"`
	ID   backend.ID `json:"id"`
}

// Applied is published for every event that changed the local list
type Applied struct {
	Event
	Appeal *backend.Appeal `json:"appeal,omitempty"`
	At     time.Time       `json:"at"`
}

// Fetcher loads appeals from the backend
type Fetcher interface {
	ListAppeals(ctx context.Context, skip, limit int) ([]backend.Appeal, error)
	GetAppeal(ctx context.Context, id backend.ID) (*backend.Appeal, error)
}

// Publisher receives applied events
type Publisher interface {
	Publish(subject string, data any) error
}

// Options configures a Feed
type Options struct {
	// URL is the ws(s) address of the appeal channel
	URL       string
	Header    http.Header
	Fetcher   Fetcher
	Publisher Publisher
	Dialer    *websocket.Dialer
	PageSize  int
	// Reconnect is the delay before redialing a dropped channel. Zero
	// stops Run when the channel drops.
	Reconnect time.Duration
	Logger    *slog.Logger
}

// Feed is a live appeal list. Events are applied one at a time in the
// order they arrive.
type Feed struct {
	opts   Options
	logger *slog.Logger

	mu      sync.RWMutex
	appeals []backend.Appeal

	connMu sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewFeed creates a feed. Call Load and Run to start it.
func NewFeed(opts Options) *Feed {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{opts: opts, logger: logger.With("component", "live")}
}

// Load replaces the local list with the first page from the backend
func (f *Feed) Load(ctx context.Context) error {
	list, err := f.opts.Fetcher.ListAppeals(ctx, 0, f.opts.PageSize)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.appeals = list
	f.mu.Unlock()
	return nil
}

// Appeals returns a copy of the local list, newest creations first
func (f *Feed) Appeals() []backend.Appeal {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.appeals)
}

// Run reads the channel until ctx is cancelled or Close is called
func (f *Feed) Run(ctx context.Context) error {
	for {
		err := f.session(ctx)
		if ctx.Err() != nil || f.isClosed() {
			return nil
		}
		if f.opts.Reconnect <= 0 {
			return err
		}
		f.logger.Warn("Appeal channel dropped, reconnecting", "error", err, "delay", f.opts.Reconnect)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.opts.Reconnect):
		}
	}
}

// session dials once and reads until the connection ends
func (f *Feed) session(ctx context.Context) error {
	conn, _, err := f.opts.Dialer.DialContext(ctx, f.opts.URL, f.opts.Header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.opts.URL, err)
	}

	f.connMu.Lock()
	if f.closed {
		f.connMu.Unlock()
		_ = conn.Close()
		return nil
	}
	f.conn = conn
	f.connMu.Unlock()
	f.logger.Info("Appeal channel connected", "url", f.opts.URL)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		f.connMu.Lock()
		if f.conn == conn {
			f.conn = nil
		}
		f.connMu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			f.logger.Warn("Ignoring malformed appeal event", "error", err)
			continue
		}
		if err := f.Apply(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
			f.logger.Warn("Failed to apply appeal event", "event", ev.Type, "id", ev.ID, "error", err)
		}
	}
}

// Close tears the channel down and stops Run
func (f *Feed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	f.closed = true
	if f.conn == nil {
		return nil
	}
	_ = f.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return f.conn.Close()
}

func (f *Feed) isClosed() bool {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	return f.closed
}

// Apply updates the local list for one event. Deletes are applied
// directly; creates and updates fetch the fresh appeal first. A create for
// an appeal already listed and an update for one that is not are no-ops.
func (f *Feed) Apply(ctx context.Context, ev Event) error {
	var fresh *backend.Appeal
	switch ev.Type {
	case EventDelete:
	case EventCreate, EventUpdate:
		var err error
		if fresh, err = f.opts.Fetcher.GetAppeal(ctx, ev.ID); err != nil {
			return fmt.Errorf("fetch appeal %s: %w", ev.ID, err)
		}
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}

	f.mu.Lock()
	idx := slices.IndexFunc(f.appeals, func(a backend.Appeal) bool { return a.ID == ev.ID })
	changed := false
	switch ev.Type {
	case EventDelete:
		if idx >= 0 {
			f.appeals = slices.Delete(f.appeals, idx, idx+1)
			changed = true
		}
	case EventCreate:
		if idx < 0 {
			f.appeals = slices.Insert(f.appeals, 0, *fresh)
			changed = true
		}
	case EventUpdate:
		if idx >= 0 {
			f.appeals[idx] = *fresh
			changed = true
		}
	}
	f.mu.Unlock()

	if changed && f.opts.Publisher != nil {
		applied := Applied{Event: ev, Appeal: fresh, At: time.Now()}
		if err := f.opts.Publisher.Publish(eventbus.SubjectAppeals, applied); err != nil {
			f.logger.Warn("Failed to publish appeal event", "error", err)
		}
	}
	return nil
}
