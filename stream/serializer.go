package stream

import (
	"context"
	"sync"

	"github.com/a2y-d5l/cuke"
)

type envelope struct {
	ctx context.Context
	ev  cuke.Event
}

// Serializer forwards events to a wrapped writer from a single goroutine.
//
// It is safe under concurrent HandleEvent calls. Events from one caller are
// forwarded in the order that caller delivered them.
type Serializer struct {
	writer    cuke.Writer
	inbox     chan envelope
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewSerializer starts forwarding to w.
//
// Defaults:
//   - Buffer: 1024
func NewSerializer(w cuke.Writer, opts ...Option) *Serializer {
	c := config{buf: defaultBufSize}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if c.buf < 0 {
		c.buf = 0
	}

	s := &Serializer{
		writer: w,
		inbox:  make(chan envelope, c.buf),
		done:   make(chan struct{}),
	}

	s.wg.Go(func() {
		s.run()
	})

	return s
}

// HandleEvent queues ev for forwarding. It blocks while the buffer is full.
//
// Events are never dropped while the Serializer is open, even when ctx is
// done: a producer keeps reporting the closing boundaries of a canceled run,
// and the wrapped writer needs them to stay consistent. The wrapped writer
// receives ctx without its cancellation. HandleEvent after Close is a no-op.
func (s *Serializer) HandleEvent(ctx context.Context, ev cuke.Event) {
	if s == nil {
		return
	}

	// The read lock keeps Close from closing inbox under a pending send.
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	s.inbox <- envelope{ctx: context.WithoutCancel(ctx), ev: ev}
}

// Close forwards every queued event, then stops the forwarding goroutine.
//
// Close is safe to call multiple times. Failure counters of the wrapped
// writer are final once Close returns.
func (s *Serializer) Close() {
	if s == nil {
		return
	}

	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.inbox)
		s.mu.Unlock()
	})

	s.wg.Wait()
}

// Done returns a channel that closes once every queued event was forwarded
// after Close.
func (s *Serializer) Done() <-chan struct{} {
	return s.done
}

func (s *Serializer) run() {
	defer close(s.done)
	for msg := range s.inbox {
		s.writer.HandleEvent(msg.ctx, msg.ev)
	}
}

// FailedSteps returns the counter of the wrapped writer.
func (s *Serializer) FailedSteps() int {
	if f, ok := s.writer.(cuke.Failure); ok {
		return f.FailedSteps()
	}
	return 0
}

// ParsingErrors returns the counter of the wrapped writer.
func (s *Serializer) ParsingErrors() int {
	if f, ok := s.writer.(cuke.Failure); ok {
		return f.ParsingErrors()
	}
	return 0
}

// HookErrors returns the counter of the wrapped writer.
func (s *Serializer) HookErrors() int {
	if f, ok := s.writer.(cuke.Failure); ok {
		return f.HookErrors()
	}
	return 0
}
