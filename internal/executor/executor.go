// Package executor runs blocking vendor calls on a fixed worker pool so
// handlers stay cancellable while the vendor SDK is not.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantgate/qmt-gateway/internal/gwerr"
	"github.com/quantgate/qmt-gateway/internal/metrics"
)

type job struct {
	method string
	fn     func() (any, error)
	result chan outcome
	// abandoned is closed when the caller stops waiting. The worker then
	// hands a successful value to discard so the vendor-side effect can
	// be compensated instead of leaking.
	abandoned chan struct{}
	discard   func(value any)
}

type outcome struct {
	value any
	err   error
}

// deliver hands the outcome to the caller, or to the discard hook when
// the caller already gave up. Exactly one side always wins, so the
// worker never blocks here.
func (j job) deliver(out outcome) {
	select {
	case j.result <- out:
	case <-j.abandoned:
		if j.discard != nil && out.err == nil {
			j.discard(out.value)
		}
	}
}

// Executor owns the worker pool. Submit blocks on saturation instead of
// failing fast: vendor calls cannot be retried idempotently.
type Executor struct {
	jobs   chan job
	wg     sync.WaitGroup
	logger zerolog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// New starts an executor with n workers (50 when n <= 0).
func New(n int, logger zerolog.Logger) *Executor {
	if n <= 0 {
		n = 50
	}
	e := &Executor{
		jobs:   make(chan job),
		closed: make(chan struct{}),
		logger: logger.With().Str("component", "executor").Logger(),
	}
	for i := 0; i < n; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for {
		select {
		case j := <-e.jobs:
			e.run(j)
		case <-e.closed:
			return
		}
	}
}

func (e *Executor) run(j job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("method", j.method).
				Interface("panic_value", r).
				Str("stack_trace", string(debug.Stack())).
				Msg("Vendor call panicked")
			j.deliver(outcome{err: gwerr.Newf(gwerr.Internal, j.method, "panic: %v", r)})
		}
	}()
	v, err := j.fn()
	metrics.ObserveVendorCall(j.method, time.Since(start))
	j.deliver(outcome{value: v, err: err})
}

// Submit runs fn on a worker and waits for its result or ctx expiry.
// On expiry the caller gets a timeout error; the worker keeps running
// until the vendor call returns and its result is discarded.
func (e *Executor) Submit(ctx context.Context, method string, fn func() (any, error)) (any, error) {
	return e.submit(ctx, method, fn, nil)
}

func (e *Executor) submit(ctx context.Context, method string, fn func() (any, error), discard func(any)) (any, error) {
	j := job{
		method:    method,
		fn:        fn,
		result:    make(chan outcome),
		abandoned: make(chan struct{}),
		discard:   discard,
	}

	select {
	case e.jobs <- j:
	case <-e.closed:
		return nil, gwerr.New(gwerr.Internal, method, "executor closed")
	case <-ctx.Done():
		e.logTimeout(method, "queued")
		return nil, gwerr.Wrap(gwerr.Timeout, method, ctx.Err())
	}

	select {
	case out := <-j.result:
		return out.value, out.err
	case <-ctx.Done():
		close(j.abandoned)
		e.logTimeout(method, "running")
		metrics.VendorTimeouts.WithLabelValues(method).Inc()
		return nil, gwerr.Wrap(gwerr.Timeout, method, ctx.Err())
	}
}

func (e *Executor) logTimeout(method, phase string) {
	e.logger.Warn().
		Str("method", method).
		Str("phase", phase).
		Msg("Vendor call deadline expired")
}

// Run is the typed wrapper over Submit.
func Run[T any](ctx context.Context, e *Executor, method string, fn func() (T, error)) (T, error) {
	return RunWithDiscard(ctx, e, method, fn, nil)
}

// RunWithDiscard is Run with a compensation hook: when the caller's
// deadline expires before the vendor call returns, a successful value
// is handed to discard on the worker so its vendor-side effect can be
// undone instead of leaking.
func RunWithDiscard[T any](ctx context.Context, e *Executor, method string, fn func() (T, error), discard func(T)) (T, error) {
	var zero T
	var hook func(any)
	if discard != nil {
		hook = func(v any) {
			if t, ok := v.(T); ok {
				discard(t)
			}
		}
	}
	v, err := e.submit(ctx, method, func() (any, error) { return fn() }, hook)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, gwerr.New(gwerr.Internal, method, fmt.Sprintf("unexpected result type %T", v))
	}
	return t, nil
}

// Close stops accepting work and waits for in-flight jobs up to the
// context deadline.
func (e *Executor) Close(ctx context.Context) error {
	e.closeOnce.Do(func() { close(e.closed) })
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
