package executor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantgate/qmt-gateway/internal/gwerr"
)

func newTestExecutor(t *testing.T, workers int) *Executor {
	t.Helper()
	e := New(workers, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Close(ctx)
	})
	return e
}

func TestSubmitReturnsResult(t *testing.T) {
	e := newTestExecutor(t, 2)

	v, err := Run(context.Background(), e, "vendor.query", func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDeadlineExpiryReturnsTimeout(t *testing.T) {
	e := newTestExecutor(t, 1)
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Submit(ctx, "vendor.hang", func() (any, error) {
		<-release
		return nil, nil
	})
	require.Error(t, err)
	assert.True(t, gwerr.IsKind(err, gwerr.Timeout))
	assert.Less(t, time.Since(start), time.Second)
}

func TestLateResultIsDiscarded(t *testing.T) {
	e := newTestExecutor(t, 1)
	release := make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := e.Submit(ctx, "vendor.slow", func() (any, error) {
		<-release
		return "late", nil
	})
	require.True(t, gwerr.IsKind(err, gwerr.Timeout))

	// Free the worker; the next call must succeed on the same worker.
	close(release)
	v, err := Run(context.Background(), e, "vendor.fast", func() (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestDiscardRunsForAbandonedSuccess(t *testing.T) {
	e := newTestExecutor(t, 1)
	release := make(chan struct{})
	discarded := make(chan int, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := RunWithDiscard(ctx, e, "vendor.slow", func() (int, error) {
		<-release
		return 7, nil
	}, func(v int) { discarded <- v })
	require.True(t, gwerr.IsKind(err, gwerr.Timeout))

	// The vendor call finishes after the caller gave up; the side
	// effect must be handed to the discard hook, not dropped.
	close(release)
	select {
	case v := <-discarded:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("discard hook never ran for the abandoned result")
	}
}

func TestDiscardSkippedOnDelivery(t *testing.T) {
	e := newTestExecutor(t, 1)
	discarded := make(chan int, 1)

	v, err := RunWithDiscard(context.Background(), e, "vendor.ok", func() (int, error) {
		return 3, nil
	}, func(v int) { discarded <- v })
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	select {
	case <-discarded:
		t.Fatal("discard hook ran for a delivered result")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDiscardSkippedOnAbandonedError(t *testing.T) {
	e := newTestExecutor(t, 1)
	release := make(chan struct{})
	discarded := make(chan int, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := RunWithDiscard(ctx, e, "vendor.slow", func() (int, error) {
		<-release
		return 0, gwerr.Vendor("vendor.slow", -1)
	}, func(v int) { discarded <- v })
	require.True(t, gwerr.IsKind(err, gwerr.Timeout))

	// A failed vendor call leaves nothing behind to unwind.
	close(release)
	select {
	case <-discarded:
		t.Fatal("discard hook ran for a failed result")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSaturationBlocksInsteadOfFailing(t *testing.T) {
	e := newTestExecutor(t, 1)
	release := make(chan struct{})
	defer close(release)

	first := make(chan struct{})
	go func() {
		_, _ = e.Submit(context.Background(), "vendor.hold", func() (any, error) {
			close(first)
			<-release
			return nil, nil
		})
	}()
	<-first

	// The pool is saturated; a second call with ample budget must wait
	// and then run, not fail fast.
	done := make(chan error, 1)
	go func() {
		_, err := e.Submit(context.Background(), "vendor.queued", func() (any, error) {
			return nil, nil
		})
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("queued call completed while the pool was saturated")
	case <-time.After(50 * time.Millisecond):
	}

	release <- struct{}{}
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("queued call never ran after a worker freed up")
	}
}

func TestErrorPropagates(t *testing.T) {
	e := newTestExecutor(t, 2)
	want := gwerr.Vendor("vendor.query", -3)
	_, err := e.Submit(context.Background(), "vendor.query", func() (any, error) {
		return nil, want
	})
	assert.True(t, gwerr.IsKind(err, gwerr.VendorError))
}

func TestPanicIsRecovered(t *testing.T) {
	e := newTestExecutor(t, 1)
	_, err := e.Submit(context.Background(), "vendor.bad", func() (any, error) {
		panic("vendor blew up")
	})
	require.Error(t, err)
	assert.True(t, gwerr.IsKind(err, gwerr.Internal))

	// The worker must survive the panic.
	v, err := Run(context.Background(), e, "vendor.ok", func() (bool, error) { return true, nil })
	require.NoError(t, err)
	assert.True(t, v)
}
