package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"thinkchat/config"
	"thinkchat/model"
)

const (
	DefaultMaxRetries    = 3
	DefaultRetryInterval = 500 * time.Millisecond
	eventBuffer          = 64
)

// Opener establishes the transport for one attempt. It is called again on
// every reconnect with the same request parameters.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Producer emits events in-process instead of over a wire transport. emit
// returns false once the router no longer accepts events.
type Producer func(ctx context.Context, emit func(model.StreamEvent) bool) error

type Options struct {
	MaxRetries    int           // reconnect attempts after the first failure
	RetryInterval time.Duration // minimum spacing between attempts
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	return o
}

// Router turns a transport into an ordered channel of typed events and owns
// its lifecycle. Once an end event has been dispatched, or the router has
// failed or been cancelled, nothing more is delivered.
type Router struct {
	events chan model.StreamEvent
	ctx    context.Context
	stopFn context.CancelFunc
	stop   chan struct{}

	// sendMu is held across a channel send so Cancel can wait out an
	// in-flight dispatch before draining the buffer.
	sendMu sync.Mutex

	mu        sync.Mutex
	body      io.ReadCloser
	complete  bool
	cancelled bool
	err       error

	retries    int
	maxRetries int
	delivered  int
	limiter    *rate.Limiter
}

var _ model.EventSource = (*Router)(nil)

func newRouter(ctx context.Context, opts Options) *Router {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)
	return &Router{
		events:     make(chan model.StreamEvent, eventBuffer),
		ctx:        ctx,
		stopFn:     cancel,
		stop:       make(chan struct{}),
		maxRetries: opts.MaxRetries,
		limiter:    rate.NewLimiter(rate.Every(opts.RetryInterval), 1),
	}
}

// Open starts reading frames from the transport returned by open.
// Connection failures are retried up to opts.MaxRetries times; frames that
// were already delivered are skipped after a reconnect.
func Open(ctx context.Context, open Opener, opts Options) *Router {
	r := newRouter(ctx, opts)
	go r.runTransport(open)
	return r
}

// Run starts an in-process producer. A producer error becomes a terminal
// error event; returning nil without an end event implies one.
func Run(ctx context.Context, produce Producer) *Router {
	r := newRouter(ctx, Options{})
	go r.runProducer(produce)
	return r
}

func (r *Router) Events() <-chan model.StreamEvent {
	return r.events
}

// Cancel closes the transport and suppresses any further dispatch. Events
// still buffered are discarded, so a reader sees only the channel close
// once Cancel returns. It is safe to call more than once and from any
// goroutine.
func (r *Router) Cancel() {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return
	}
	r.cancelled = true
	body := r.body
	r.mu.Unlock()

	close(r.stop)
	r.stopFn()
	if body != nil {
		body.Close()
	}

	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	for {
		select {
		case _, ok := <-r.events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Complete reports whether the stream has ended, failed or been cancelled.
func (r *Router) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete || r.cancelled
}

// Err returns the terminal error, if the stream failed.
func (r *Router) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Retries returns how many reconnects were attempted.
func (r *Router) Retries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retries
}

func (r *Router) runTransport(open Opener) {
	defer close(r.events)

	skip := 0
	for {
		if err := r.limiter.Wait(r.ctx); err != nil {
			if r.ctx.Err() == nil {
				// The wait would outlast the deadline.
				err = context.DeadlineExceeded
			}
			r.finishWithContext(err)
			return
		}

		body, err := open(r.ctx)
		if err == nil {
			if !r.setBody(body) {
				body.Close()
				return
			}
			err = r.consume(body, &skip)
			body.Close()
			if err == nil {
				return
			}
		}

		if r.isCancelled() {
			return
		}
		if r.ctx.Err() != nil {
			r.finishWithContext(r.ctx.Err())
			return
		}

		if !retryable(err) {
			r.fail(err, r.Retries()+1)
			return
		}

		r.mu.Lock()
		exhausted := r.retries >= r.maxRetries
		if !exhausted {
			r.retries++
		}
		attempt := r.retries
		r.mu.Unlock()

		if exhausted {
			r.fail(fmt.Errorf("%w: %v", ErrRetriesExhausted, err), attempt+1)
			return
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Stream] attempt failed (%v), reconnecting %d/%d", err, attempt, r.maxRetries)
		}
	}
}

// consume reads frames until end, EOF or a transport error. skip counts
// frames already dispatched by earlier attempts; it is advanced as frames
// are delivered.
func (r *Router) consume(body io.Reader, skip *int) error {
	dec := NewDecoder(body)
	seen := 0
	for {
		payload, err := dec.Next()
		if err == io.EOF {
			// Transport completion without an explicit end frame.
			r.dispatch(model.StreamEvent{Type: model.EventEnd})
			return nil
		}
		if err != nil {
			return err
		}

		seen++
		if seen <= *skip {
			continue
		}
		*skip = seen

		ev, perr := ParseEvent(payload)
		if perr != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[Stream] malformed frame: %v", perr)
		}
		if !r.dispatch(ev) {
			return nil
		}
		if ev.Type == model.EventEnd {
			return nil
		}
	}
}

func (r *Router) runProducer(produce Producer) {
	defer close(r.events)

	err := produce(r.ctx, r.dispatch)
	if r.isCancelled() {
		return
	}
	if err != nil {
		if r.ctx.Err() != nil {
			r.finishWithContext(r.ctx.Err())
			return
		}
		r.fail(err, 1)
		return
	}
	r.dispatch(model.StreamEvent{Type: model.EventEnd})
}

// dispatch delivers ev unless the stream is already complete or cancelled.
// An end event marks the stream complete.
func (r *Router) dispatch(ev model.StreamEvent) bool {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.mu.Lock()
	if r.complete || r.cancelled {
		r.mu.Unlock()
		return false
	}
	if ev.Type == model.EventEnd || ev.Terminal {
		r.complete = true
	}
	r.delivered++
	r.mu.Unlock()

	select {
	case r.events <- ev:
		return true
	case <-r.stop:
		return false
	}
}

func (r *Router) fail(err error, attempts int) {
	r.mu.Lock()
	serr := &StreamError{Delivered: r.delivered, Attempts: attempts, Err: err}
	r.err = serr
	r.mu.Unlock()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Stream] terminal failure: %v", serr)
	}
	r.dispatch(model.StreamEvent{Type: model.EventError, Text: err.Error(), Terminal: true, Err: serr})
}

func (r *Router) finishWithContext(err error) {
	if r.isCancelled() {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = ErrTimedOut
	}
	r.fail(err, r.Retries()+1)
}

func (r *Router) setBody(body io.ReadCloser) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return false
	}
	r.body = body
	return true
}

func (r *Router) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}
