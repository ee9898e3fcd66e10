// Package live streams run events to a socket.io server as they happen.
//
// Each event is emitted as a single JSON object built from
// cuke.Description, extended with the run id and a sequence number:
//
//	{"run_id": "...", "seq": 7, "kind": "step.failed", "feature": "Checkout",
//	 "scenario": "pay", "step": "When I pay", "error": "card declined"}
package live

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/a2y-d5l/cuke"
)

// DefaultDialTimeout bounds Dial when Config.DialTimeout is zero.
const DefaultDialTimeout = 15 * time.Second

var (
	// ErrClosed is returned by Close on a writer that was already closed.
	ErrClosed = errors.New("live: writer closed")

	// ErrDialTimeout is returned when the server does not accept the
	// connection in time.
	ErrDialTimeout = errors.New("live: timed out waiting for connection")
)

// Config describes the socket.io endpoint.
type Config struct {
	// URL is the server address, for example http://127.0.0.1:3000/socket.io/.
	URL string

	// Namespace defaults to "/".
	Namespace string

	// Event is the socket.io event name every run event is emitted under.
	Event string

	// RunID is attached to every payload.
	RunID string

	DialTimeout time.Duration
}

// Writer emits every event it receives. It never reorders nor drops events,
// so it may sit behind a Repeater.
type Writer struct {
	sock  *socket.Socket
	event string
	runID string

	mu     sync.Mutex
	seq    int
	closed bool
}

// Dial connects to the server over the websocket transport and waits for the
// namespace to accept the connection.
func Dial(ctx context.Context, cfg Config) (*Writer, error) {
	if cfg.Event == "" {
		return nil, errors.New("live: event name is required")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "live: parse url")
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.Errorf("live: url %q must be absolute", cfg.URL)
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "/"
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	logger := cuke.LoggerFrom(ctx).With("url", cfg.URL, "namespace", namespace)
	logger.Debug("Connecting to live endpoint.")

	opts := socket.DefaultOptions()
	if parsed.Path != "" {
		opts.SetPath(parsed.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	base := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	manager := socket.NewManager(base, opts)
	io := manager.Socket(namespace, opts)

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		select {
		case connected <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(args ...any) {
		err := errors.New("connect_error")
		if len(args) > 0 {
			if e, ok := args[0].(error); ok {
				err = e
			}
		}
		select {
		case connected <- err:
		default:
		}
	})
	io.Connect()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, errors.Wrap(err, "live: connect")
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, errors.Wrap(ctx.Err(), "live: connect")
	case <-timer.C:
		io.Disconnect()
		return nil, errors.Wrapf(ErrDialTimeout, "after %s", timeout)
	}

	logger.Info("Connected to live endpoint.", "sid", io.Id())
	return &Writer{sock: io, event: cfg.Event, runID: cfg.RunID}, nil
}

// HandleEvent emits ev. Events handled after Close are dropped.
func (w *Writer) HandleEvent(ctx context.Context, ev cuke.Event) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.seq++
	payload := Payload(w.runID, w.seq, ev)
	w.mu.Unlock()

	if !w.sock.Connected() {
		cuke.LoggerFrom(ctx).Warn("Live endpoint disconnected, event not sent.", "event", ev)
		return
	}
	w.sock.Emit(w.event, payload)
}

// NonTransforming implements cuke.NonTransforming.
func (w *Writer) NonTransforming() {}

// Close disconnects from the server.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.closed = true
	w.sock.Disconnect()
	return nil
}

// Payload builds the object emitted for ev.
func Payload(runID string, seq int, ev cuke.Event) map[string]any {
	m := ev.Describe().Map()
	m["seq"] = seq
	if runID != "" {
		m["run_id"] = runID
	}
	return m
}
