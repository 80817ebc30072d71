package subscription

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantgate/qmt-gateway/internal/qmt"
)

// Event is one entry on a stream queue: either a tick or a
// synthesised heartbeat from the idle watchdog.
type Event struct {
	Heartbeat bool
	Tick      qmt.Tick
}

// Stream is one attached push consumer. The manager writes, the
// transport adapter reads.
type Stream struct {
	// C delivers events in write order. Never closed while attached;
	// watch Done for termination.
	C chan Event

	sub       *Subscription
	done      chan struct{}
	closeOnce sync.Once

	lastBeat atomic.Int64 // unix nano of last client heartbeat
	drops    atomic.Int64
}

func newStream(sub *Subscription, queueSize int) *Stream {
	s := &Stream{
		C:    make(chan Event, queueSize),
		sub:  sub,
		done: make(chan struct{}),
	}
	s.Heartbeat()
	return s
}

// Done is closed when the stream is detached or its subscription ends.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Heartbeat stamps a client liveness signal, deferring eviction.
func (s *Stream) Heartbeat() { s.lastBeat.Store(time.Now().UnixNano()) }

// LastHeartbeat returns the last client liveness stamp.
func (s *Stream) LastHeartbeat() time.Time { return time.Unix(0, s.lastBeat.Load()) }

// Drops reports events dropped from this stream's full queue.
func (s *Stream) Drops() int64 { return s.drops.Load() }

// SubscriptionID names the owning subscription.
func (s *Stream) SubscriptionID() string { return s.sub.ID }

func (s *Stream) terminate() {
	s.closeOnce.Do(func() { close(s.done) })
}

// push enqueues without blocking, dropping the oldest event when full.
func (s *Stream) push(ev Event) {
	for {
		select {
		case s.C <- ev:
			return
		default:
		}
		select {
		case <-s.C:
			s.drops.Add(1)
		default:
		}
	}
}
