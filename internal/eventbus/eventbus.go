// Package eventbus fans session changes and live appeal events out to
// in-process subscribers over an embedded NATS server.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Subjects
const (
	SubjectChanges       = "constructor.changes"
	SubjectAppeals       = "appeals.events"
	SubjectConfigChanged = "config.changed"
)

const (
	readyTimeout = 2 * time.Second
	flushTimeout = 2 * time.Second
)

// ErrStopped is returned once Stop has run
var ErrStopped = errors.New("event bus stopped")

// EventBus is an embedded NATS server with one client connection. Every
// payload is JSON.
type EventBus struct {
	server *server.Server
	conn   *nats.Conn
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[string][]*nats.Subscription
	stop   sync.Once
	closed chan struct{}
}

// Config configures the event bus
type Config struct {
	// Host defaults to 127.0.0.1 so the bus is never reachable off-box
	// unless configured
	Host string
	// Port zero picks a free port
	Port int
}

// New starts the embedded server and connects to it
func New(cfg Config, logger *slog.Logger) (*EventBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = server.RANDOM_PORT
	}

	ns, err := server.NewServer(&server.Options{
		ServerName: "constructor",
		Host:       cfg.Host,
		Port:       port,
		NoSigs:     true,
		NoLog:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server on %s:%d not ready after %s", cfg.Host, cfg.Port, readyTimeout)
	}

	closed := make(chan struct{})
	nc, err := nats.Connect(ns.ClientURL(),
		nats.Name("constructord"),
		nats.InProcessServer(ns),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	)
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connect to embedded NATS: %w", err)
	}

	eb := &EventBus{
		server: ns,
		conn:   nc,
		logger: logger.With("component", "eventbus"),
		subs:   make(map[string][]*nats.Subscription),
		closed: closed,
	}
	eb.logger.Info("Event bus started", "url", ns.ClientURL())
	return eb, nil
}

// ClientURL is where external NATS clients can follow the subjects
func (eb *EventBus) ClientURL() string {
	return eb.server.ClientURL()
}

// Publish marshals data to JSON and sends it on subject
func (eb *EventBus) Publish(subject string, data any) error {
	if eb.conn.IsClosed() {
		return ErrStopped
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	return eb.conn.Publish(subject, payload)
}

// Subscribe registers a raw handler. Handlers for one subscription run one
// at a time.
func (eb *EventBus) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := eb.conn.Subscribe(subject, handler)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	eb.mu.Lock()
	eb.subs[subject] = append(eb.subs[subject], sub)
	eb.mu.Unlock()
	return sub, nil
}

// SubscribeJSON decodes each message on subject into T. Messages that do
// not decode are logged and skipped.
func SubscribeJSON[T any](eb *EventBus, subject string, handler func(T)) (*nats.Subscription, error) {
	return eb.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			eb.logger.Warn("Dropping undecodable message", "subject", msg.Subject, "error", err)
			return
		}
		handler(v)
	})
}

// Unsubscribe drops every subscription on subject
func (eb *EventBus) Unsubscribe(subject string) {
	eb.mu.Lock()
	subs := eb.subs[subject]
	delete(eb.subs, subject)
	eb.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			eb.logger.Debug("Unsubscribe failed", "subject", subject, "error", err)
		}
	}
}

// Flush returns once the server has seen everything published so far.
// A context without a deadline is bounded by flushTimeout.
func (eb *EventBus) Flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	return eb.conn.FlushWithContext(ctx)
}

// Stop drains pending deliveries and shuts the server down. Safe to call
// more than once.
func (eb *EventBus) Stop() {
	eb.stop.Do(func() {
		if err := eb.conn.Drain(); err != nil {
			eb.logger.Debug("Drain failed", "error", err)
		}
		select {
		case <-eb.closed:
		case <-time.After(readyTimeout):
			eb.conn.Close()
		}
		eb.server.Shutdown()
		eb.server.WaitForShutdown()
		eb.logger.Info("Event bus stopped")
	})
}

// HealthCheck reports a closed connection or a server that stopped
// answering
func (eb *EventBus) HealthCheck(ctx context.Context) error {
	if !eb.conn.IsConnected() {
		return fmt.Errorf("NATS connection %s", eb.conn.Status())
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return eb.conn.FlushWithContext(ctx)
}
