package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantgate/qmt-gateway/internal/executor"
	"github.com/quantgate/qmt-gateway/internal/gwerr"
	"github.com/quantgate/qmt-gateway/internal/qmt"
)

// quoteStub implements only the quote registration surface; the rest of
// qmt.DataAPI is never reached from this package.
type quoteStub struct {
	qmt.DataAPI

	// beforeRegister, when set, runs on the worker before the
	// registration lands. Lets tests hold registrations in flight.
	beforeRegister func()

	mu           sync.Mutex
	nextID       int
	handlers     map[int]qmt.TickHandler
	subscribeErr error
	unsubscribed []int
}

func newQuoteStub() *quoteStub {
	return &quoteStub{handlers: make(map[int]qmt.TickHandler)}
}

func (q *quoteStub) SubscribeQuote(_ []string, _ string, h qmt.TickHandler) (int, error) {
	return q.register(h)
}

func (q *quoteStub) SubscribeWholeQuote(_ []string, h qmt.TickHandler) (int, error) {
	return q.register(h)
}

func (q *quoteStub) register(h qmt.TickHandler) (int, error) {
	if q.beforeRegister != nil {
		q.beforeRegister()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.subscribeErr != nil {
		return 0, q.subscribeErr
	}
	q.nextID++
	q.handlers[q.nextID] = h
	return q.nextID, nil
}

func (q *quoteStub) UnsubscribeQuote(id int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.handlers, id)
	q.unsubscribed = append(q.unsubscribed, id)
	return nil
}

func (q *quoteStub) emit(tick qmt.Tick) {
	q.mu.Lock()
	handlers := make([]qmt.TickHandler, 0, len(q.handlers))
	for _, h := range q.handlers {
		handlers = append(handlers, h)
	}
	q.mu.Unlock()
	for _, h := range handlers {
		h(tick.Code, tick)
	}
}

func (q *quoteStub) registrations() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.handlers)
}

func (q *quoteStub) unsubscribedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.unsubscribed)
}

func newTestManager(t *testing.T, api *quoteStub, opts Options) *Manager {
	t.Helper()
	exec := executor.New(2, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = exec.Close(ctx)
	})
	return NewManager(api, exec, opts, zerolog.Nop())
}

func subscribeOne(t *testing.T, m *Manager) Info {
	t.Helper()
	info, err := m.Subscribe(context.Background(), SubscribeRequest{
		Codes: []string{"600000.SH"}, Period: "tick",
	})
	require.NoError(t, err)
	return info
}

func TestSubscribeRegistersOnce(t *testing.T) {
	api := newQuoteStub()
	m := newTestManager(t, api, Options{})

	info := subscribeOne(t, m)
	assert.Contains(t, info.SubscriptionID, "sub_")
	assert.Equal(t, PerSymbol, info.Kind)
	assert.Equal(t, 1, api.registrations())
	assert.Equal(t, 1, m.Count())

	other := subscribeOne(t, m)
	assert.NotEqual(t, info.SubscriptionID, other.SubscriptionID)
	assert.Equal(t, 2, api.registrations())
}

func TestSubscribeValidation(t *testing.T) {
	m := newTestManager(t, newQuoteStub(), Options{})

	_, err := m.Subscribe(context.Background(), SubscribeRequest{})
	assert.True(t, gwerr.IsKind(err, gwerr.InvalidArgument))

	_, err = m.Subscribe(context.Background(), SubscribeRequest{Codes: []string{"badsymbol"}})
	assert.True(t, gwerr.IsKind(err, gwerr.InvalidArgument))

	_, err = m.Subscribe(context.Background(), SubscribeRequest{Kind: "PARTIAL", Codes: []string{"600000.SH"}})
	assert.True(t, gwerr.IsKind(err, gwerr.InvalidArgument))
}

func TestWholeMarketGated(t *testing.T) {
	m := newTestManager(t, newQuoteStub(), Options{})
	_, err := m.Subscribe(context.Background(), SubscribeRequest{Kind: WholeMarket, Markets: []string{"SH"}})
	assert.True(t, gwerr.IsKind(err, gwerr.ModeRefused))

	m = newTestManager(t, newQuoteStub(), Options{EnableWholeMarket: true})
	info, err := m.Subscribe(context.Background(), SubscribeRequest{Kind: WholeMarket, Markets: []string{"SH", "SZ"}})
	require.NoError(t, err)
	assert.Equal(t, WholeMarket, info.Kind)
}

func TestSubscriptionLimit(t *testing.T) {
	m := newTestManager(t, newQuoteStub(), Options{MaxSubscriptions: 2})

	subscribeOne(t, m)
	subscribeOne(t, m)
	_, err := m.Subscribe(context.Background(), SubscribeRequest{Codes: []string{"600000.SH"}})
	assert.True(t, gwerr.IsKind(err, gwerr.ModeRefused))
}

func TestSubscriptionLimitUnderConcurrency(t *testing.T) {
	api := newQuoteStub()
	gate := make(chan struct{})
	var inFlight sync.WaitGroup
	inFlight.Add(2)
	api.beforeRegister = func() {
		inFlight.Done()
		<-gate
	}
	m := newTestManager(t, api, Options{MaxSubscriptions: 1})

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := m.Subscribe(context.Background(), SubscribeRequest{
				Codes: []string{"600000.SH"}, Period: "tick",
			})
			errs <- err
		}()
	}

	// Both callers passed the fast-path check; release them together.
	inFlight.Wait()
	close(gate)

	var refused int
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			assert.True(t, gwerr.IsKind(err, gwerr.ModeRefused))
			refused++
		}
	}
	assert.Equal(t, 1, refused)
	assert.Equal(t, 1, m.Count())

	// The loser's vendor registration must be unwound.
	require.Eventually(t, func() bool { return api.registrations() == 1 },
		time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, api.unsubscribedCount())
}

func TestAbandonedSubscribeUnwindsRegistration(t *testing.T) {
	api := newQuoteStub()
	gate := make(chan struct{})
	api.beforeRegister = func() { <-gate }
	m := newTestManager(t, api, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := m.Subscribe(ctx, SubscribeRequest{Codes: []string{"600000.SH"}, Period: "tick"})
	require.True(t, gwerr.IsKind(err, gwerr.Timeout))
	assert.Equal(t, 0, m.Count())

	// The registration lands after the caller gave up; the vendor side
	// must be released again.
	close(gate)
	require.Eventually(t, func() bool { return api.unsubscribedCount() == 1 },
		time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, api.registrations())
	assert.Equal(t, 0, m.Count())
}

func TestVendorFailureSurfaces(t *testing.T) {
	api := newQuoteStub()
	api.subscribeErr = errors.New("quote service down")
	m := newTestManager(t, api, Options{})

	_, err := m.Subscribe(context.Background(), SubscribeRequest{Codes: []string{"600000.SH"}})
	assert.True(t, gwerr.IsKind(err, gwerr.UpstreamUnavailable))
	assert.Equal(t, 0, m.Count())
}

func TestTicksFanOutToStreams(t *testing.T) {
	api := newQuoteStub()
	m := newTestManager(t, api, Options{})
	info := subscribeOne(t, m)

	st1, err := m.Attach(info.SubscriptionID)
	require.NoError(t, err)
	st2, err := m.Attach(info.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, 2, m.StreamCount())

	api.emit(qmt.Tick{Code: "600000.SH", LastPrice: 10.5})
	for _, st := range []*Stream{st1, st2} {
		select {
		case ev := <-st.C:
			assert.False(t, ev.Heartbeat)
			assert.Equal(t, "600000.SH", ev.Tick.Code)
		case <-time.After(time.Second):
			t.Fatal("tick never reached the stream")
		}
	}
}

func TestAttachIsLiveForwardOnly(t *testing.T) {
	api := newQuoteStub()
	m := newTestManager(t, api, Options{})
	info := subscribeOne(t, m)

	api.emit(qmt.Tick{Code: "600000.SH", LastPrice: 9.9})

	st, err := m.Attach(info.SubscriptionID)
	require.NoError(t, err)
	select {
	case ev := <-st.C:
		t.Fatalf("new stream replayed an old tick %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowStreamDropsOldest(t *testing.T) {
	api := newQuoteStub()
	m := newTestManager(t, api, Options{MaxQueue: 4})
	info := subscribeOne(t, m)

	st, err := m.Attach(info.SubscriptionID)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		api.emit(qmt.Tick{Code: "600000.SH", LastPrice: float64(i)})
	}

	assert.Len(t, st.C, 4)
	ev := <-st.C
	assert.Equal(t, float64(6), ev.Tick.LastPrice)
	assert.GreaterOrEqual(t, st.Drops(), int64(6))
}

func TestStreamLimitPerSubscription(t *testing.T) {
	m := newTestManager(t, newQuoteStub(), Options{MaxStreamsPerSub: 1})
	info := subscribeOne(t, m)

	_, err := m.Attach(info.SubscriptionID)
	require.NoError(t, err)
	_, err = m.Attach(info.SubscriptionID)
	assert.True(t, gwerr.IsKind(err, gwerr.ModeRefused))
}

func TestAttachUnknownSubscription(t *testing.T) {
	m := newTestManager(t, newQuoteStub(), Options{})
	_, err := m.Attach("sub_missing")
	assert.True(t, gwerr.IsKind(err, gwerr.SubscriptionNotFound))
}

func TestDetachUpdatesCounts(t *testing.T) {
	m := newTestManager(t, newQuoteStub(), Options{})
	info := subscribeOne(t, m)

	st, err := m.Attach(info.SubscriptionID)
	require.NoError(t, err)
	require.Equal(t, 1, m.StreamCount())

	m.Detach(st)
	assert.Equal(t, 0, m.StreamCount())
	select {
	case <-st.Done():
	case <-time.After(time.Second):
		t.Fatal("detached stream not terminated")
	}

	// detaching twice is safe
	m.Detach(st)
	assert.Equal(t, 0, m.StreamCount())
}

func TestUnsubscribeTerminatesStreams(t *testing.T) {
	api := newQuoteStub()
	m := newTestManager(t, api, Options{})
	info := subscribeOne(t, m)

	st, err := m.Attach(info.SubscriptionID)
	require.NoError(t, err)

	ok, err := m.Unsubscribe(context.Background(), info.SubscriptionID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, 0, m.StreamCount())
	assert.Equal(t, 0, api.registrations())

	select {
	case <-st.Done():
	case <-time.After(time.Second):
		t.Fatal("stream survived unsubscribe")
	}

	ok, err = m.Unsubscribe(context.Background(), info.SubscriptionID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWatchdogEvictsSilentStream(t *testing.T) {
	m := newTestManager(t, newQuoteStub(), Options{
		HeartbeatInterval: 20 * time.Millisecond,
		HeartbeatTimeout:  40 * time.Millisecond,
	})
	info := subscribeOne(t, m)

	st, err := m.Attach(info.SubscriptionID)
	require.NoError(t, err)

	select {
	case <-st.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("silent stream was never evicted")
	}
	assert.Equal(t, 0, m.StreamCount())
}

func TestWatchdogKeepsLiveStream(t *testing.T) {
	m := newTestManager(t, newQuoteStub(), Options{
		HeartbeatInterval: 20 * time.Millisecond,
		HeartbeatTimeout:  60 * time.Millisecond,
	})
	info := subscribeOne(t, m)

	st, err := m.Attach(info.SubscriptionID)
	require.NoError(t, err)

	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case <-st.Done():
			t.Fatal("live stream was evicted")
		case <-deadline:
			return
		case <-time.After(15 * time.Millisecond):
			st.Heartbeat()
			// drain idle heartbeats so the queue stays empty
			for len(st.C) > 0 {
				<-st.C
			}
		}
	}
}

func TestIdleHeartbeatSynthesised(t *testing.T) {
	m := newTestManager(t, newQuoteStub(), Options{
		HeartbeatInterval: 20 * time.Millisecond,
		HeartbeatTimeout:  10 * time.Second,
	})
	info := subscribeOne(t, m)

	st, err := m.Attach(info.SubscriptionID)
	require.NoError(t, err)

	select {
	case ev := <-st.C:
		assert.True(t, ev.Heartbeat)
	case <-time.After(2 * time.Second):
		t.Fatal("no idle heartbeat arrived")
	}
}

func TestInfoAndList(t *testing.T) {
	m := newTestManager(t, newQuoteStub(), Options{})
	info := subscribeOne(t, m)

	got, err := m.Info(info.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, info.SubscriptionID, got.SubscriptionID)

	_, err = m.Info("sub_missing")
	assert.True(t, gwerr.IsKind(err, gwerr.SubscriptionNotFound))

	assert.Len(t, m.List(), 1)
}

func TestCloseAll(t *testing.T) {
	api := newQuoteStub()
	m := newTestManager(t, api, Options{})
	subscribeOne(t, m)
	subscribeOne(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.CloseAll(ctx)
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, 0, api.registrations())
}
