package qmt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordReceiver captures callbacks for inspection.
type recordReceiver struct {
	mu           sync.Mutex
	connected    int
	disconnected int
	orders       []Order
	orderAcks    []AsyncSeqResult
	cancelAcks   []AsyncSeqResult
}

func (r *recordReceiver) OnConnected() {
	r.mu.Lock()
	r.connected++
	r.mu.Unlock()
}

func (r *recordReceiver) OnDisconnected() {
	r.mu.Lock()
	r.disconnected++
	r.mu.Unlock()
}

func (r *recordReceiver) OnAccountStatus(AccountStatus) {}
func (r *recordReceiver) OnAsset(Asset)                 {}

func (r *recordReceiver) OnOrder(o Order) {
	r.mu.Lock()
	r.orders = append(r.orders, o)
	r.mu.Unlock()
}

func (r *recordReceiver) OnTrade(Trade)            {}
func (r *recordReceiver) OnPosition(Position)      {}
func (r *recordReceiver) OnOrderError(OrderError)  {}
func (r *recordReceiver) OnCancelError(CancelError) {}

func (r *recordReceiver) OnOrderStockAsyncResponse(res AsyncSeqResult) {
	r.mu.Lock()
	r.orderAcks = append(r.orderAcks, res)
	r.mu.Unlock()
}

func (r *recordReceiver) OnCancelOrderAsyncResponse(res AsyncSeqResult) {
	r.mu.Lock()
	r.cancelAcks = append(r.cancelAcks, res)
	r.mu.Unlock()
}

func (r *recordReceiver) snapshot() recordReceiver {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recordReceiver{
		connected:    r.connected,
		disconnected: r.disconnected,
		orders:       append([]Order(nil), r.orders...),
		orderAcks:    append([]AsyncSeqResult(nil), r.orderAcks...),
		cancelAcks:   append([]AsyncSeqResult(nil), r.cancelAcks...),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestOpenRegisteredDriver(t *testing.T) {
	d, err := Open("sim")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Contains(t, DriverNames(), "sim")
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("xtquant-native")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("dup_test_driver", &simDriver{})
	assert.Panics(t, func() { Register("dup_test_driver", &simDriver{}) })
}

func TestBasePriceIsStablePerSymbol(t *testing.T) {
	assert.Equal(t, basePrice("600000.SH"), basePrice("600000.SH"))
	assert.NotEqual(t, basePrice("600000.SH"), basePrice("000001.SZ"))
	assert.GreaterOrEqual(t, basePrice("600000.SH"), 5.0)
}

func TestMarketDataShape(t *testing.T) {
	d, err := Open("sim")
	require.NoError(t, err)
	api, err := d.OpenData("")
	require.NoError(t, err)

	out, err := api.GetMarketData(nil, []string{"600000.SH", "000001.SZ"}, "1d", "", "", 15, "", "")
	require.NoError(t, err)
	require.Len(t, out, 2)

	block := out["600000.SH"]
	require.Len(t, block.Times, 15)
	for _, col := range []string{"open", "high", "low", "close", "volume", "amount"} {
		require.Contains(t, block.Columns, col)
		assert.Len(t, block.Columns[col], 15)
	}
	for i := range block.Times {
		high := block.Columns["high"][i].(float64)
		low := block.Columns["low"][i].(float64)
		assert.Greater(t, high, low, "row %d", i)
	}
}

func TestTradingCalendarSkipsWeekends(t *testing.T) {
	d, _ := Open("sim")
	api, err := d.OpenData("")
	require.NoError(t, err)

	days, err := api.GetTradingCalendar(2025)
	require.NoError(t, err)
	require.NotEmpty(t, days)
	for _, day := range days {
		parsed, perr := time.Parse("20060102", day)
		require.NoError(t, perr)
		assert.Equal(t, 2025, parsed.Year())
		assert.NotEqual(t, time.Saturday, parsed.Weekday())
		assert.NotEqual(t, time.Sunday, parsed.Weekday())
	}
}

func TestFullTickCoversAllCodes(t *testing.T) {
	d, _ := Open("sim")
	api, err := d.OpenData("")
	require.NoError(t, err)

	ticks, err := api.GetFullTick([]string{"600000.SH", "000001.SZ"})
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	tick := ticks["600000.SH"]
	assert.Equal(t, "600000.SH", tick.Code)
	assert.Positive(t, tick.LastPrice)
	assert.Len(t, tick.BidPrice, 5)
	assert.Len(t, tick.AskPrice, 5)
}

func TestUnsubscribeUnknownQuote(t *testing.T) {
	d, _ := Open("sim")
	api, err := d.OpenData("")
	require.NoError(t, err)
	assert.Error(t, api.UnsubscribeQuote(999999))
}

func TestQuoteSubscribeUnsubscribeRoundTrip(t *testing.T) {
	d, _ := Open("sim")
	api, err := d.OpenData("")
	require.NoError(t, err)

	id, err := api.SubscribeQuote([]string{"600000.SH"}, "tick", func(string, Tick) {})
	require.NoError(t, err)
	require.NoError(t, api.UnsubscribeQuote(id))
	assert.Error(t, api.UnsubscribeQuote(id))
}

func TestTraderConnectRequiresStart(t *testing.T) {
	tr := newSimTrader("acc1")
	assert.Equal(t, -1, tr.Connect())
	require.NoError(t, tr.Start())
	assert.Equal(t, 0, tr.Connect())
}

func TestTraderSubscribeAccountChecksIdentity(t *testing.T) {
	tr := newSimTrader("acc1")
	assert.Equal(t, 0, tr.SubscribeAccount("acc1"))
	assert.Equal(t, -1, tr.SubscribeAccount("other"))
}

func TestTraderStopFiresDisconnectedOnce(t *testing.T) {
	tr := newSimTrader("acc1")
	rec := &recordReceiver{}
	tr.RegisterCallback(rec)
	require.NoError(t, tr.Start())

	tr.Stop()
	tr.Stop()
	waitFor(t, func() bool { return rec.snapshot().disconnected == 1 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.snapshot().disconnected)
}

func TestTraderOrderLifecycle(t *testing.T) {
	tr := newSimTrader("acc1")
	rec := &recordReceiver{}
	tr.RegisterCallback(rec)
	require.NoError(t, tr.Start())

	id := tr.OrderStock(OrderRequest{
		AccountID: "acc1", StockCode: "600000.SH",
		OrderType: StockBuy, OrderVolume: 100,
		PriceType: FixPrice, Price: 10.5,
	})
	require.Positive(t, id)

	orders, err := tr.QueryOrders("acc1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, OrderReported, orders[0].OrderStatus)
	assert.NotEmpty(t, orders[0].OrderSysID)

	assert.Equal(t, 0, tr.CancelOrder("acc1", id))
	orders, err = tr.QueryOrders("acc1")
	require.NoError(t, err)
	assert.Equal(t, OrderCancelled, orders[0].OrderStatus)

	waitFor(t, func() bool { return len(rec.snapshot().orders) >= 2 })
}

func TestTraderRejectsNonPositiveVolume(t *testing.T) {
	tr := newSimTrader("acc1")
	require.NoError(t, tr.Start())
	id := tr.OrderStock(OrderRequest{AccountID: "acc1", StockCode: "600000.SH", OrderVolume: 0})
	assert.Negative(t, id)
}

func TestTraderCancelUnknownOrder(t *testing.T) {
	tr := newSimTrader("acc1")
	require.NoError(t, tr.Start())
	assert.Equal(t, -1, tr.CancelOrder("acc1", 424242))
	assert.Equal(t, -1, tr.CancelOrderSysID("acc1", "SH", "NOPE"))
}

func TestTraderCancelBySysID(t *testing.T) {
	tr := newSimTrader("acc1")
	require.NoError(t, tr.Start())
	id := tr.OrderStock(OrderRequest{AccountID: "acc1", StockCode: "600000.SH", OrderType: StockBuy, OrderVolume: 100, PriceType: FixPrice, Price: 9})
	require.Positive(t, id)

	orders, err := tr.QueryOrders("acc1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 0, tr.CancelOrderSysID("acc1", "SH", orders[0].OrderSysID))

	orders, _ = tr.QueryOrders("acc1")
	assert.Equal(t, OrderCancelled, orders[0].OrderStatus)
}

func TestAsyncOrderAckEchoesSeq(t *testing.T) {
	tr := newSimTrader("acc1")
	rec := &recordReceiver{}
	tr.RegisterCallback(rec)
	require.NoError(t, tr.Start())

	require.NoError(t, tr.OrderStockAsync(OrderRequest{
		AccountID: "acc1", StockCode: "600000.SH",
		OrderType: StockBuy, OrderVolume: 200, PriceType: FixPrice, Price: 11,
	}, 77))

	waitFor(t, func() bool { return len(rec.snapshot().orderAcks) == 1 })
	ack := rec.snapshot().orderAcks[0]
	assert.Equal(t, int64(77), ack.Seq)
	assert.Positive(t, ack.OrderID)
	assert.Zero(t, ack.ErrorID)
}

func TestAsyncCancelAckReportsMissingOrder(t *testing.T) {
	tr := newSimTrader("acc1")
	rec := &recordReceiver{}
	tr.RegisterCallback(rec)
	require.NoError(t, tr.Start())

	require.NoError(t, tr.CancelOrderAsync("acc1", 31337, "", 88))
	waitFor(t, func() bool { return len(rec.snapshot().cancelAcks) == 1 })
	ack := rec.snapshot().cancelAcks[0]
	assert.Equal(t, int64(88), ack.Seq)
	assert.NotZero(t, ack.ErrorID)
}

func TestQueryAssetReturnsCopy(t *testing.T) {
	tr := newSimTrader("acc1")
	a, err := tr.QueryAsset("acc1")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "acc1", a.AccountID)
	assert.Equal(t, a.Cash+a.MarketValue, a.TotalAsset)

	a.Cash = 0
	b, _ := tr.QueryAsset("acc1")
	assert.NotZero(t, b.Cash)
}
