// Package session tracks connected trading accounts and their vendor
// handles.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantgate/qmt-gateway/internal/callback"
	"github.com/quantgate/qmt-gateway/internal/executor"
	"github.com/quantgate/qmt-gateway/internal/gwerr"
	"github.com/quantgate/qmt-gateway/internal/metrics"
	"github.com/quantgate/qmt-gateway/internal/qmt"
)

// Session is one connected account. callMu serialises vendor calls on
// the handle (the vendor API is non-reentrant per handle) and is held
// for the full duration of a blocking call, so the asset snapshot has
// its own lock and stays readable while the vendor hangs.
type Session struct {
	ID          string
	AccountID   string
	Trader      qmt.Trader
	ConnectedAt time.Time

	callMu sync.Mutex

	assetMu   sync.Mutex
	lastAsset *qmt.Asset
}

// LastAsset returns the most recent asset snapshot, nil before the
// first query succeeds. Never blocks on an in-flight vendor call.
func (s *Session) LastAsset() *qmt.Asset {
	s.assetMu.Lock()
	defer s.assetMu.Unlock()
	return s.lastAsset
}

// SetLastAsset stashes an asset snapshot.
func (s *Session) SetLastAsset(a *qmt.Asset) {
	s.assetMu.Lock()
	s.lastAsset = a
	s.assetMu.Unlock()
}

// Call runs a blocking vendor call on the executor while holding the
// per-session call lock.
func (s *Session) Call(ctx context.Context, exec *executor.Executor, method string, fn func(qmt.Trader) (any, error)) (any, error) {
	return exec.Submit(ctx, method, func() (any, error) {
		s.callMu.Lock()
		defer s.callMu.Unlock()
		return fn(s.Trader)
	})
}

// Registry maps session identifiers to sessions.
type Registry struct {
	driver     qmt.Driver
	vendorPath string
	exec       *executor.Executor
	dispatcher *callback.Dispatcher
	logger     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry builds an empty registry backed by the given driver.
func NewRegistry(driver qmt.Driver, vendorPath string, exec *executor.Executor, d *callback.Dispatcher, logger zerolog.Logger) *Registry {
	return &Registry{
		driver:     driver,
		vendorPath: vendorPath,
		exec:       exec,
		dispatcher: d,
		logger:     logger.With().Str("component", "session_registry").Logger(),
		sessions:   make(map[string]*Session),
	}
}

// Connect performs the vendor connect sequence for an account:
// create handle, register callbacks, start, connect, subscribe the
// account, query the initial asset, insert. Any failure unwinds the
// handle with Stop.
func (r *Registry) Connect(ctx context.Context, accountID string) (*Session, error) {
	const op = "trading.connect"
	if accountID == "" {
		return nil, gwerr.New(gwerr.InvalidArgument, op, "account_id is required")
	}

	trader, err := r.driver.NewTrader(r.vendorPath, accountID)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.UpstreamUnavailable, op, err)
	}

	receiver := callback.NewReceiver(accountID, r.dispatcher)

	// The whole sequence is one executor job so the caller's deadline
	// covers it end to end. A handle that finishes connecting after the
	// caller gave up is stopped on the worker instead of leaking.
	asset, err := executor.RunWithDiscard(ctx, r.exec, op, func() (*qmt.Asset, error) {
		trader.RegisterCallback(receiver)
		if err := trader.Start(); err != nil {
			trader.Stop()
			return nil, gwerr.Wrap(gwerr.UpstreamUnavailable, op, err)
		}
		if code := trader.Connect(); code != 0 {
			trader.Stop()
			return nil, gwerr.Upstream(op, code)
		}
		if code := trader.SubscribeAccount(accountID); code != 0 {
			trader.Stop()
			return nil, gwerr.Newf(gwerr.UpstreamUnavailable, op,
				"account subscribe failed for %s (code %d)", accountID, code)
		}
		asset, err := trader.QueryAsset(accountID)
		if err != nil {
			trader.Stop()
			return nil, gwerr.Wrap(gwerr.VendorError, op, err)
		}
		return asset, nil
	}, func(*qmt.Asset) {
		trader.Stop()
		r.logger.Warn().
			Str("account_id", accountID).
			Msg("Abandoned connect unwound")
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		AccountID:   accountID,
		Trader:      trader,
		ConnectedAt: time.Now().UTC(),
		lastAsset:   asset,
	}

	r.mu.Lock()
	s.ID = r.allocateIDLocked(accountID)
	r.sessions[s.ID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	r.logger.Info().
		Str("session_id", s.ID).
		Str("account_id", accountID).
		Msg("Trading session connected")
	return s, nil
}

// allocateIDLocked derives session_{account}_{unix}, bumping the clock
// value on a same-second reconnect.
func (r *Registry) allocateIDLocked(accountID string) string {
	ts := time.Now().Unix()
	for {
		id := fmt.Sprintf("session_%s_%d", accountID, ts)
		if _, exists := r.sessions[id]; !exists {
			return id
		}
		ts++
	}
}

// Get looks a session up.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, gwerr.Newf(gwerr.SessionNotFound, "session.get", "session %s not found", id)
	}
	return s, nil
}

// Disconnect tears a session down. The second call for the same id
// returns false with no error.
func (r *Registry) Disconnect(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return false, nil
	}

	metrics.ActiveSessions.Set(float64(count))
	_, err := s.Call(ctx, r.exec, "trading.disconnect", func(t qmt.Trader) (any, error) {
		t.Stop()
		return nil, nil
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("session_id", id).Msg("Vendor stop failed during disconnect")
	}
	r.logger.Info().Str("session_id", id).Msg("Trading session disconnected")
	return true, nil
}

// List snapshots the live sessions.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count reports the live session count.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll disconnects every session, used at shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	for _, s := range r.List() {
		if _, err := r.Disconnect(ctx, s.ID); err != nil {
			r.logger.Warn().Err(err).Str("session_id", s.ID).Msg("Disconnect failed during shutdown")
		}
	}
}
