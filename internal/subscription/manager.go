// Package subscription multiplexes vendor quote registrations onto
// many bounded client streams.
package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantgate/qmt-gateway/internal/executor"
	"github.com/quantgate/qmt-gateway/internal/gwerr"
	"github.com/quantgate/qmt-gateway/internal/metrics"
	"github.com/quantgate/qmt-gateway/internal/qmt"
	"github.com/quantgate/qmt-gateway/internal/trading"
)

// Kind is the subscription variant.
type Kind string

const (
	PerSymbol   Kind = "PER_SYMBOL"
	WholeMarket Kind = "WHOLE_MARKET"
)

// Options bound the manager.
type Options struct {
	MaxSubscriptions  int
	MaxStreamsPerSub  int
	MaxQueue          int
	EnableWholeMarket bool
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// SubscribeRequest creates one subscription.
type SubscribeRequest struct {
	Kind    Kind     `json:"kind,omitempty" msgpack:"kind,omitempty"`
	Codes   []string `json:"codes,omitempty" msgpack:"codes,omitempty"`
	Markets []string `json:"markets,omitempty" msgpack:"markets,omitempty"`
	Period  string   `json:"period,omitempty" msgpack:"period,omitempty"`
	Adjust  string   `json:"adjust,omitempty" msgpack:"adjust,omitempty"`
}

// Info is the client view of one subscription.
type Info struct {
	SubscriptionID string    `json:"subscription_id" msgpack:"subscription_id"`
	Kind           Kind      `json:"kind" msgpack:"kind"`
	Codes          []string  `json:"codes,omitempty" msgpack:"codes,omitempty"`
	Markets        []string  `json:"markets,omitempty" msgpack:"markets,omitempty"`
	Period         string    `json:"period,omitempty" msgpack:"period,omitempty"`
	Adjust         string    `json:"adjust,omitempty" msgpack:"adjust,omitempty"`
	CreatedAt      time.Time `json:"created_at" msgpack:"created_at"`
	LastActivity   time.Time `json:"last_activity" msgpack:"last_activity"`
	Streams        int       `json:"streams" msgpack:"streams"`
}

// Subscription is one vendor-side registration with its fan-out state.
type Subscription struct {
	ID        string
	Kind      Kind
	Codes     []string
	Markets   []string
	Period    string
	Adjust    string
	CreatedAt time.Time

	vendorID int

	mu           sync.Mutex
	lastActivity time.Time
	streams      map[*Stream]struct{}
	ended        bool
}

func (s *Subscription) infoLocked() Info {
	return Info{
		SubscriptionID: s.ID,
		Kind:           s.Kind,
		Codes:          s.Codes,
		Markets:        s.Markets,
		Period:         s.Period,
		Adjust:         s.Adjust,
		CreatedAt:      s.CreatedAt,
		LastActivity:   s.lastActivity,
		Streams:        len(s.streams),
	}
}

// dispatch fans one tick out on the vendor thread. A slow stream never
// blocks: full queues drop their oldest event.
func (s *Subscription) dispatch(tick qmt.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.lastActivity = time.Now().UTC()
	for st := range s.streams {
		before := st.Drops()
		st.push(Event{Tick: tick})
		if d := st.Drops() - before; d > 0 {
			metrics.StreamDrops.WithLabelValues(s.ID).Add(float64(d))
		}
	}
}

// Manager guards the subscription map.
type Manager struct {
	api    qmt.DataAPI
	exec   *executor.Executor
	opts   Options
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[string]*Subscription

	streamCount int
}

// NewManager wires the subscription manager.
func NewManager(api qmt.DataAPI, exec *executor.Executor, opts Options, logger zerolog.Logger) *Manager {
	if opts.MaxQueue <= 0 {
		opts.MaxQueue = 1000
	}
	if opts.MaxStreamsPerSub <= 0 {
		opts.MaxStreamsPerSub = 16
	}
	if opts.MaxSubscriptions <= 0 {
		opts.MaxSubscriptions = 100
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = 60 * time.Second
	}
	return &Manager{
		api:    api,
		exec:   exec,
		opts:   opts,
		logger: logger.With().Str("component", "subscription_manager").Logger(),
		subs:   make(map[string]*Subscription),
	}
}

// Options exposes the effective limits to the transport adapters.
func (m *Manager) Options() Options { return m.opts }

// Subscribe registers with the vendor and inserts the record. Exactly
// one vendor registration exists per subscription id.
func (m *Manager) Subscribe(ctx context.Context, req SubscribeRequest) (Info, error) {
	const op = "data.subscribe"
	kind := req.Kind
	if kind == "" {
		kind = PerSymbol
	}

	switch kind {
	case PerSymbol:
		if len(req.Codes) == 0 {
			return Info{}, gwerr.New(gwerr.InvalidArgument, op, "codes is required")
		}
		for _, code := range req.Codes {
			if err := trading.ValidateSymbol(op, code); err != nil {
				return Info{}, err
			}
		}
	case WholeMarket:
		if !m.opts.EnableWholeMarket {
			return Info{}, gwerr.New(gwerr.ModeRefused, op, "whole-market subscription is disabled")
		}
	default:
		return Info{}, gwerr.Newf(gwerr.InvalidArgument, op, "unknown subscription kind %q", kind)
	}

	m.mu.Lock()
	if len(m.subs) >= m.opts.MaxSubscriptions {
		m.mu.Unlock()
		return Info{}, gwerr.Newf(gwerr.ModeRefused, op, "subscription limit %d reached", m.opts.MaxSubscriptions)
	}
	m.mu.Unlock()

	sub := &Subscription{
		ID:           "sub_" + uuid.NewString(),
		Kind:         kind,
		Codes:        req.Codes,
		Markets:      req.Markets,
		Period:       req.Period,
		Adjust:       req.Adjust,
		CreatedAt:    time.Now().UTC(),
		lastActivity: time.Now().UTC(),
		streams:      make(map[*Stream]struct{}),
	}

	// A registration that completes after the caller gave up is
	// unsubscribed on the worker so no vendor-side feed leaks.
	vendorID, err := executor.RunWithDiscard(ctx, m.exec, op, func() (int, error) {
		var (
			id  int
			err error
		)
		if kind == WholeMarket {
			id, err = m.api.SubscribeWholeQuote(req.Markets, func(code string, tick qmt.Tick) {
				sub.dispatch(tick)
			})
		} else {
			id, err = m.api.SubscribeQuote(req.Codes, req.Period, func(code string, tick qmt.Tick) {
				sub.dispatch(tick)
			})
		}
		if err != nil {
			return 0, gwerr.Wrap(gwerr.UpstreamUnavailable, op, err)
		}
		return id, nil
	}, func(id int) {
		if uerr := m.api.UnsubscribeQuote(id); uerr != nil {
			m.logger.Warn().Err(uerr).Int("vendor_id", id).Msg("Abandoned registration unwind failed")
			return
		}
		m.logger.Warn().Str("subscription_id", sub.ID).Msg("Abandoned registration unwound")
	})
	if err != nil {
		return Info{}, err
	}
	sub.vendorID = vendorID

	// Re-check the bound under the same lock as the insert: concurrent
	// callers may all have passed the early check.
	m.mu.Lock()
	if len(m.subs) >= m.opts.MaxSubscriptions {
		m.mu.Unlock()
		m.unwind(ctx, sub.ID, vendorID)
		return Info{}, gwerr.Newf(gwerr.ModeRefused, op, "subscription limit %d reached", m.opts.MaxSubscriptions)
	}
	m.subs[sub.ID] = sub
	count := len(m.subs)
	m.mu.Unlock()
	metrics.ActiveSubscriptions.Set(float64(count))

	m.logger.Info().
		Str("subscription_id", sub.ID).
		Str("kind", string(kind)).
		Strs("codes", req.Codes).
		Msg("Quote subscription created")

	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.infoLocked(), nil
}

// unwind drops a vendor registration that lost the insert race.
func (m *Manager) unwind(ctx context.Context, id string, vendorID int) {
	_, err := m.exec.Submit(ctx, "data.unsubscribe", func() (any, error) {
		return nil, m.api.UnsubscribeQuote(vendorID)
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("subscription_id", id).Msg("Vendor unsubscribe failed after limit race")
	}
}

// Unsubscribe unregisters at the vendor and terminates every attached
// stream. The second call for the same id returns false, no error.
func (m *Manager) Unsubscribe(ctx context.Context, id string) (bool, error) {
	const op = "data.unsubscribe"

	m.mu.Lock()
	sub, ok := m.subs[id]
	if ok {
		delete(m.subs, id)
	}
	count := len(m.subs)
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	metrics.ActiveSubscriptions.Set(float64(count))

	sub.mu.Lock()
	sub.ended = true
	streams := make([]*Stream, 0, len(sub.streams))
	for st := range sub.streams {
		streams = append(streams, st)
	}
	sub.streams = make(map[*Stream]struct{})
	sub.mu.Unlock()

	m.mu.Lock()
	m.streamCount -= len(streams)
	metrics.ActiveStreams.Set(float64(m.streamCount))
	m.mu.Unlock()
	for _, st := range streams {
		st.terminate()
	}

	_, err := m.exec.Submit(ctx, op, func() (any, error) {
		if err := m.api.UnsubscribeQuote(sub.vendorID); err != nil {
			return nil, gwerr.Wrap(gwerr.VendorError, op, err)
		}
		return nil, nil
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("subscription_id", id).Msg("Vendor unsubscribe failed")
	}
	m.logger.Info().Str("subscription_id", id).Msg("Quote subscription removed")
	return true, nil
}

// Attach adds a client stream. Ticks are live-forward only: the new
// stream starts from the next tick. The watchdog synthesises
// heartbeats on idle and evicts the stream when the client stops
// answering.
func (m *Manager) Attach(id string) (*Stream, error) {
	const op = "data.attach_stream"

	m.mu.Lock()
	sub, ok := m.subs[id]
	m.mu.Unlock()
	if !ok {
		return nil, gwerr.Newf(gwerr.SubscriptionNotFound, op, "subscription %s not found", id)
	}

	st := newStream(sub, m.opts.MaxQueue)

	sub.mu.Lock()
	if sub.ended {
		sub.mu.Unlock()
		return nil, gwerr.Newf(gwerr.SubscriptionNotFound, op, "subscription %s not found", id)
	}
	if len(sub.streams) >= m.opts.MaxStreamsPerSub {
		sub.mu.Unlock()
		return nil, gwerr.Newf(gwerr.ModeRefused, op, "stream limit %d reached for subscription %s", m.opts.MaxStreamsPerSub, id)
	}
	sub.streams[st] = struct{}{}
	sub.mu.Unlock()

	m.mu.Lock()
	m.streamCount++
	metrics.ActiveStreams.Set(float64(m.streamCount))
	m.mu.Unlock()

	go m.watchdog(sub, st)
	return st, nil
}

// Detach removes a stream and terminates it.
func (m *Manager) Detach(st *Stream) {
	sub := st.sub
	sub.mu.Lock()
	_, attached := sub.streams[st]
	if attached {
		delete(sub.streams, st)
	}
	sub.mu.Unlock()
	if attached {
		m.mu.Lock()
		m.streamCount--
		metrics.ActiveStreams.Set(float64(m.streamCount))
		m.mu.Unlock()
	}
	st.terminate()
}

// watchdog supplies idle heartbeats and evicts silent clients.
func (m *Manager) watchdog(sub *Subscription, st *Stream) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-st.Done():
			return
		case <-ticker.C:
			if time.Since(st.LastHeartbeat()) > m.opts.HeartbeatTimeout {
				m.logger.Debug().
					Str("subscription_id", sub.ID).
					Msg("Evicting silent stream")
				m.Detach(st)
				return
			}
			sub.mu.Lock()
			idle := time.Since(sub.lastActivity) >= m.opts.HeartbeatInterval
			sub.mu.Unlock()
			if idle {
				st.push(Event{Heartbeat: true})
			}
		}
	}
}

// Info returns the client view of one subscription.
func (m *Manager) Info(id string) (Info, error) {
	m.mu.Lock()
	sub, ok := m.subs[id]
	m.mu.Unlock()
	if !ok {
		return Info{}, gwerr.Newf(gwerr.SubscriptionNotFound, "data.subscription_info", "subscription %s not found", id)
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.infoLocked(), nil
}

// List snapshots every live subscription.
func (m *Manager) List() []Info {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	out := make([]Info, 0, len(subs))
	for _, s := range subs {
		s.mu.Lock()
		out = append(out, s.infoLocked())
		s.mu.Unlock()
	}
	return out
}

// Count reports the live subscription count.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// StreamCount reports the attached stream count.
func (m *Manager) StreamCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCount
}

// CloseAll tears down every subscription, used at shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		if _, err := m.Unsubscribe(ctx, id); err != nil {
			m.logger.Warn().Err(err).Str("subscription_id", id).Msg("Unsubscribe failed during shutdown")
		}
	}
}
