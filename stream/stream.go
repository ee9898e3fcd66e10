package stream

import (
	"context"
	"sync"

	"github.com/a2y-d5l/cuke"
	"github.com/a2y-d5l/cuke/runner"
)

// Handle is an asynchronous run handle.
type Handle struct {
	err        error
	serializer *Serializer
	done       chan struct{}
	summary    runner.Summary
	mu         sync.Mutex
}

// Start runs p.Execute in a goroutine and returns a Handle.
//
// Events are delivered to w through a Serializer configured by opts, so the
// executor never waits on w beyond the buffer. The Handle completes once the
// run is over and every event has reached w.
func Start(
	ctx context.Context,
	p *runner.Plan,
	w cuke.Writer,
	execOpts []runner.ExecOption,
	opts ...Option,
) *Handle {
	s := NewSerializer(w, opts...)
	x := &Handle{
		serializer: s,
		done:       make(chan struct{}),
	}

	go func() {
		defer close(x.done)

		sum, err := p.Execute(ctx, s, execOpts...)
		s.Close()

		x.mu.Lock()
		x.summary = sum
		x.err = err
		x.mu.Unlock()
	}()

	return x
}

// Done returns a channel that closes when the execution completes and every
// event was delivered.
func (x *Handle) Done() <-chan struct{} {
	if x == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return x.done
}

// Wait blocks until the execution completes and returns the summary and error.
func (x *Handle) Wait() (runner.Summary, error) {
	if x == nil {
		return runner.Summary{}, context.Canceled
	}
	<-x.done
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.summary, x.err
}

// Writer returns the serializing writer the run reports to. Its failure
// counters are final once Done is closed.
func (x *Handle) Writer() *Serializer {
	if x == nil {
		return nil
	}
	return x.serializer
}
