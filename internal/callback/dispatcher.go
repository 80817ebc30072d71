// Package callback receives trading events fired on vendor threads and
// delivers them, ordered per account, to streaming subscribers with a
// bounded recent-history ring.
package callback

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantgate/qmt-gateway/internal/metrics"
)

// Kind tags a trading callback record.
type Kind string

const (
	KindConnected     Kind = "connected"
	KindDisconnected  Kind = "disconnected"
	KindAccountStatus Kind = "account_status"
	KindAsset         Kind = "asset"
	KindOrder         Kind = "order"
	KindTrade         Kind = "trade"
	KindPosition      Kind = "position"
	KindOrderError    Kind = "order_error"
	KindCancelError   Kind = "cancel_error"
	KindAsyncOrder    Kind = "async_order"
	KindAsyncCancel   Kind = "async_cancel"
)

// Record is one immutable trading callback message.
type Record struct {
	Kind      Kind      `json:"callback_type" msgpack:"callback_type"`
	AccountID string    `json:"account_id,omitempty" msgpack:"account_id,omitempty"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	Seq       int64     `json:"seq,omitempty" msgpack:"seq,omitempty"`
	Data      any       `json:"data,omitempty" msgpack:"data,omitempty"`
}

// replayLimit bounds the synchronous history replay on subscribe.
const replayLimit = 10

// Subscriber is one registered consumer. Read records from C.
type Subscriber struct {
	// C delivers records in per-account order. Closed on Unsubscribe
	// and on dispatcher shutdown.
	C chan Record

	accountID string // empty means global
	drops     int64
}

// Drops reports records dropped from this subscriber's full queue.
// Callers must not race it with a live dispatcher; it is for
// post-hoc inspection.
func (s *Subscriber) Drops() int64 { return s.drops }

// Dispatcher owns the subscriber set and the history ring.
type Dispatcher struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	ring   []Record
	next   int
	count  int
	closed bool

	queueSize int
	logger    zerolog.Logger
}

// New creates a dispatcher with the given history capacity and
// per-subscriber queue size.
func New(historySize, queueSize int, logger zerolog.Logger) *Dispatcher {
	if historySize <= 0 {
		historySize = 100
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		subs:      make(map[*Subscriber]struct{}),
		ring:      make([]Record, historySize),
		queueSize: queueSize,
		logger:    logger.With().Str("component", "callback_dispatcher").Logger(),
	}
}

// Publish is the vendor-thread entry point. It never blocks: full
// subscriber queues drop their oldest record. After Close the record
// is dropped and logged.
func (d *Dispatcher) Publish(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.logger.Debug().
			Str("kind", string(rec.Kind)).
			Str("account_id", rec.AccountID).
			Msg("Dropping callback after shutdown")
		return
	}

	d.ring[d.next] = rec
	d.next = (d.next + 1) % len(d.ring)
	if d.count < len(d.ring) {
		d.count++
	}

	for sub := range d.subs {
		if sub.accountID != "" && rec.AccountID != "" && sub.accountID != rec.AccountID {
			continue
		}
		d.enqueue(sub, rec)
	}
	metrics.CallbackDispatched.Inc()
}

// enqueue inserts under d.mu, dropping the oldest entry when full so
// per-account order is preserved for whatever remains.
func (d *Dispatcher) enqueue(sub *Subscriber, rec Record) {
	for {
		select {
		case sub.C <- rec:
			return
		default:
		}
		select {
		case <-sub.C:
			sub.drops++
			metrics.CallbackDrops.Inc()
		default:
		}
	}
}

// Subscribe registers a consumer. accountID empty subscribes globally.
// The returned slice holds the most recent matching history records,
// at most ten, oldest first, for synchronous replay.
func (d *Dispatcher) Subscribe(accountID string) (*Subscriber, []Record) {
	sub := &Subscriber{
		C:         make(chan Record, d.queueSize),
		accountID: accountID,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(sub.C)
		return sub, nil
	}
	d.subs[sub] = struct{}{}
	return sub, d.recentLocked(accountID, replayLimit)
}

// Unsubscribe removes the consumer and closes its channel.
func (d *Dispatcher) Unsubscribe(sub *Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subs[sub]; !ok {
		return
	}
	delete(d.subs, sub)
	close(sub.C)
}

// History copies out up to limit matching records, oldest first.
func (d *Dispatcher) History(accountID string, limit int) []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recentLocked(accountID, limit)
}

func (d *Dispatcher) recentLocked(accountID string, limit int) []Record {
	if limit <= 0 || d.count == 0 {
		return nil
	}
	var out []Record
	// walk oldest → newest
	start := d.next - d.count
	if start < 0 {
		start += len(d.ring)
	}
	for i := 0; i < d.count; i++ {
		rec := d.ring[(start+i)%len(d.ring)]
		if accountID != "" && rec.AccountID != "" && rec.AccountID != accountID {
			continue
		}
		out = append(out, rec)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Subscribers reports the current consumer count.
func (d *Dispatcher) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Close stops delivery and closes every subscriber channel.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for sub := range d.subs {
		delete(d.subs, sub)
		close(sub.C)
	}
}
