package callback

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantgate/qmt-gateway/internal/qmt"
)

func newTestDispatcher(history, queue int) *Dispatcher {
	return New(history, queue, zerolog.Nop())
}

func drain(t *testing.T, sub *Subscriber, n int) []Record {
	t.Helper()
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		select {
		case rec := <-sub.C:
			out = append(out, rec)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for record %d of %d", i+1, n)
		}
	}
	return out
}

func TestPerAccountOrderPreserved(t *testing.T) {
	d := newTestDispatcher(100, 64)
	sub, _ := d.Subscribe("A")

	d.Publish(Record{Kind: KindOrder, AccountID: "A", Data: "order-1"})
	d.Publish(Record{Kind: KindTrade, AccountID: "A", Data: "trade-1a"})
	d.Publish(Record{Kind: KindOrder, AccountID: "A", Data: "order-2"})
	d.Publish(Record{Kind: KindTrade, AccountID: "A", Data: "trade-2a"})

	got := drain(t, sub, 4)
	assert.Equal(t, []any{"order-1", "trade-1a", "order-2", "trade-2a"},
		[]any{got[0].Data, got[1].Data, got[2].Data, got[3].Data})
}

func TestAccountFilter(t *testing.T) {
	d := newTestDispatcher(100, 64)
	subA, _ := d.Subscribe("A")
	global, _ := d.Subscribe("")

	d.Publish(Record{Kind: KindOrder, AccountID: "A"})
	d.Publish(Record{Kind: KindOrder, AccountID: "B"})

	got := drain(t, subA, 1)
	assert.Equal(t, "A", got[0].AccountID)
	select {
	case rec := <-subA.C:
		t.Fatalf("account-scoped subscriber received foreign record %+v", rec)
	case <-time.After(50 * time.Millisecond):
	}

	gotGlobal := drain(t, global, 2)
	assert.Equal(t, "A", gotGlobal[0].AccountID)
	assert.Equal(t, "B", gotGlobal[1].AccountID)
}

func TestConnectionEventsReachScopedSubscribers(t *testing.T) {
	d := newTestDispatcher(100, 64)
	sub, _ := d.Subscribe("A")

	// Connection events carry no account and go to everyone.
	d.Publish(Record{Kind: KindDisconnected})
	got := drain(t, sub, 1)
	assert.Equal(t, KindDisconnected, got[0].Kind)
}

func TestReplayBound(t *testing.T) {
	d := newTestDispatcher(100, 64)
	for i := 0; i < 30; i++ {
		d.Publish(Record{Kind: KindOrder, AccountID: "A", Data: i})
	}

	_, history := d.Subscribe("A")
	require.Len(t, history, 10)
	// most recent ten, oldest first
	assert.Equal(t, 20, history[0].Data)
	assert.Equal(t, 29, history[9].Data)
}

func TestReplaySmallerThanLimit(t *testing.T) {
	d := newTestDispatcher(100, 64)
	d.Publish(Record{Kind: KindAsset, AccountID: "A"})

	_, history := d.Subscribe("A")
	assert.Len(t, history, 1)
}

func TestHistoryRingWraps(t *testing.T) {
	d := newTestDispatcher(5, 64)
	for i := 0; i < 8; i++ {
		d.Publish(Record{Kind: KindOrder, AccountID: "A", Data: i})
	}
	history := d.History("A", 10)
	require.Len(t, history, 5)
	assert.Equal(t, 3, history[0].Data)
	assert.Equal(t, 7, history[4].Data)
}

func TestQueueFullDropsOldest(t *testing.T) {
	d := newTestDispatcher(100, 4)
	sub, _ := d.Subscribe("A")

	for i := 0; i < 10; i++ {
		d.Publish(Record{Kind: KindOrder, AccountID: "A", Data: i})
	}

	got := drain(t, sub, 4)
	// the four newest survive, in order
	assert.Equal(t, []any{6, 7, 8, 9}, []any{got[0].Data, got[1].Data, got[2].Data, got[3].Data})
	assert.GreaterOrEqual(t, sub.Drops(), int64(6))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	d := newTestDispatcher(100, 4)
	sub, _ := d.Subscribe("")
	d.Unsubscribe(sub)
	_, open := <-sub.C
	assert.False(t, open)
	assert.Equal(t, 0, d.Subscribers())

	// double unsubscribe is a no-op
	d.Unsubscribe(sub)
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	d := newTestDispatcher(100, 4)
	sub, _ := d.Subscribe("")
	d.Close()

	_, open := <-sub.C
	assert.False(t, open)
	d.Publish(Record{Kind: KindOrder, AccountID: "A"})
	assert.Empty(t, d.History("A", 10))
}

func TestReceiverPacksVendorEvents(t *testing.T) {
	d := newTestDispatcher(100, 64)
	sub, _ := d.Subscribe("acc1")
	r := NewReceiver("acc1", d)

	r.OnOrder(qmt.Order{AccountID: "acc1", OrderID: 7, StockCode: "600000.SH"})
	r.OnOrderStockAsyncResponse(qmt.AsyncSeqResult{AccountID: "acc1", Seq: 12, OrderID: 7})

	got := drain(t, sub, 2)
	assert.Equal(t, KindOrder, got[0].Kind)
	assert.Equal(t, KindAsyncOrder, got[1].Kind)
	assert.Equal(t, int64(12), got[1].Seq)
}

func TestReceiverDefaultsAccount(t *testing.T) {
	d := newTestDispatcher(100, 64)
	sub, _ := d.Subscribe("acc1")
	r := NewReceiver("acc1", d)

	r.OnAsset(qmt.Asset{Cash: 100})
	got := drain(t, sub, 1)
	assert.Equal(t, "acc1", got[0].AccountID)
}

func TestManySubscribersSeeSameOrder(t *testing.T) {
	d := newTestDispatcher(100, 256)
	subs := make([]*Subscriber, 5)
	for i := range subs {
		subs[i], _ = d.Subscribe("A")
	}
	for i := 0; i < 50; i++ {
		d.Publish(Record{Kind: KindTrade, AccountID: "A", Data: fmt.Sprintf("t%02d", i)})
	}
	for _, sub := range subs {
		got := drain(t, sub, 50)
		for i, rec := range got {
			require.Equal(t, fmt.Sprintf("t%02d", i), rec.Data)
		}
	}
}
