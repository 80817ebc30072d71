package qmt

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

func init() {
	Register("sim", &simDriver{})
}

// simDriver is the in-process simulated vendor. It generates
// deterministic synthetic data so SIM mode works with no native SDK.
type simDriver struct {
	mu   sync.Mutex
	data *simData
}

func (d *simDriver) OpenData(userdataPath string) (DataAPI, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.data == nil {
		d.data = newSimData(userdataPath)
	}
	return d.data, nil
}

func (d *simDriver) NewTrader(_, accountID string) (Trader, error) {
	return newSimTrader(accountID), nil
}

// basePrice derives a stable per-symbol price level from the code.
func basePrice(code string) float64 {
	h := fnv.New32a()
	h.Write([]byte(code))
	return 5 + float64(h.Sum32()%2000)/100
}

// priceAt walks the base price deterministically over time steps.
func priceAt(code string, step int64) float64 {
	base := basePrice(code)
	return base * (1 + 0.02*math.Sin(float64(step)/7) + 0.005*math.Sin(float64(step)/3))
}

// ---- market data ----

type simSub struct {
	stop chan struct{}
}

type simData struct {
	dataDir string

	mu      sync.Mutex
	nextSub int
	subs    map[int]*simSub
	sectors map[string][]string
}

func newSimData(dataDir string) *simData {
	if dataDir == "" {
		dataDir = "/tmp/qmt-sim/userdata"
	}
	return &simData{
		dataDir: dataDir,
		subs:    make(map[int]*simSub),
		sectors: map[string][]string{
			"沪深A股":  {"000001.SZ", "600000.SH", "600519.SH", "000333.SZ"},
			"上证50":  {"600000.SH", "600519.SH"},
			"创业板":   {"300750.SZ"},
		},
	}
}

func (s *simData) DataDir() (string, error) { return s.dataDir, nil }

func (s *simData) GetInstrumentDetail(code string) (*InstrumentDetail, error) {
	base := basePrice(code)
	return &InstrumentDetail{
		Code:           code,
		Name:           "SIM " + code,
		ExchangeID:     exchangeOf(code),
		InstrumentID:   strings.SplitN(code, ".", 2)[0],
		OpenDate:       "20100101",
		ExpireDate:     "99991231",
		PreClose:       base,
		UpStopPrice:    base * 1.1,
		DownStopPrice:  base * 0.9,
		PriceTick:      0.01,
		VolumeMultiple: 100,
		IsTrading:      true,
	}, nil
}

func exchangeOf(code string) string {
	if i := strings.LastIndexByte(code, '.'); i >= 0 {
		return code[i+1:]
	}
	return ""
}

func (s *simData) GetInstrumentType(code string) ([]string, error) {
	if strings.HasSuffix(code, ".SH") || strings.HasSuffix(code, ".SZ") || strings.HasSuffix(code, ".BJ") {
		return []string{"stock"}, nil
	}
	return []string{"future"}, nil
}

func (s *simData) GetHolidays() ([]string, error) {
	return []string{"20250101", "20250129", "20250130", "20250131", "20250501", "20251001"}, nil
}

func (s *simData) GetTradingCalendar(year int) ([]string, error) {
	var days []string
	d := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	for d.Year() == year {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d.Format("20060102"))
		}
		d = d.AddDate(0, 0, 1)
	}
	return days, nil
}

func (s *simData) GetSectorList() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.sectors))
	for n := range s.sectors {
		names = append(names, n)
	}
	return names, nil
}

func (s *simData) GetStockListInSector(sector string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes, ok := s.sectors[sector]
	if !ok {
		return nil, fmt.Errorf("sector %q not found", sector)
	}
	out := make([]string, len(codes))
	copy(out, codes)
	return out, nil
}

func (s *simData) GetIndexWeight(indexCode string) (map[string]float64, error) {
	return map[string]float64{
		"600000.SH": 0.12,
		"600519.SH": 0.35,
		"000001.SZ": 0.08,
	}, nil
}

func (s *simData) GetPeriodList() ([]string, error) {
	out := make([]string, len(Periods))
	copy(out, Periods)
	return out, nil
}

func (s *simData) GetIPOInfo(market string) ([]IPOInfo, error) {
	return []IPOInfo{{
		Code: "301999.SZ", Name: "SIM IPO", Market: market,
		IssuePrice: 12.8, IssueVolume: 40_000_000,
		OnlineDate: "20250601", ListedDate: "20250610",
	}}, nil
}

func (s *simData) GetCBInfo() ([]CBInfo, error) {
	return []CBInfo{{
		Code: "113050.SH", Name: "SIM CB", StockCode: "600000.SH",
		ConvertPrice: 8.5, ConvertValue: 101.2,
		ListedDate: "20230301", MaturityDate: "20290301",
	}}, nil
}

func (s *simData) GetDividFactors(code, start, end string) (ColumnBlock, error) {
	return ColumnBlock{
		Times: []string{"20240610", "20250612"},
		Columns: map[string][]any{
			"interest":    {0.3, 0.35},
			"stockBonus":  {0.0, 0.0},
			"stockGift":   {0.0, 0.0},
			"allotNum":    {0.0, 0.0},
			"allotPrice":  {0.0, 0.0},
			"dr":          {1.0, 1.0},
		},
	}, nil
}

func (s *simData) GetFullTick(codes []string) (map[string]Tick, error) {
	out := make(map[string]Tick, len(codes))
	now := time.Now()
	step := now.Unix() / 3
	for _, code := range codes {
		out[code] = syntheticTick(code, now, step)
	}
	return out, nil
}

func syntheticTick(code string, now time.Time, step int64) Tick {
	p := priceAt(code, step)
	base := basePrice(code)
	return Tick{
		Code:      code,
		Time:      now.UnixMilli(),
		LastPrice: p,
		Open:      priceAt(code, step-100),
		High:      p * 1.01,
		Low:       p * 0.99,
		LastClose: base,
		Volume:    1000 + step%5000,
		Amount:    p * float64(1000+step%5000) * 100,
		BidPrice:  []float64{p - 0.01, p - 0.02, p - 0.03, p - 0.04, p - 0.05},
		AskPrice:  []float64{p + 0.01, p + 0.02, p + 0.03, p + 0.04, p + 0.05},
		BidVol:    []int64{300, 200, 500, 100, 800},
		AskVol:    []int64{250, 400, 150, 600, 300},
	}
}

func (s *simData) l2Block(code, start, end string, fields map[string][]any) (ColumnBlock, error) {
	times := make([]string, 10)
	now := time.Now()
	for i := range times {
		times[i] = now.Add(time.Duration(i-10) * time.Second).Format("20060102150405")
	}
	return ColumnBlock{Times: times, Columns: fields}, nil
}

func (s *simData) GetL2Quote(code, start, end string) (ColumnBlock, error) {
	price := make([]any, 10)
	vol := make([]any, 10)
	for i := range price {
		price[i] = priceAt(code, int64(i))
		vol[i] = int64(100 * (i + 1))
	}
	return s.l2Block(code, start, end, map[string][]any{"price": price, "volume": vol})
}

func (s *simData) GetL2Order(code, start, end string) (ColumnBlock, error) {
	price := make([]any, 10)
	vol := make([]any, 10)
	side := make([]any, 10)
	for i := range price {
		price[i] = priceAt(code, int64(i))
		vol[i] = int64(200 + 10*i)
		side[i] = int64(i % 2)
	}
	return s.l2Block(code, start, end, map[string][]any{"price": price, "volume": vol, "side": side})
}

func (s *simData) GetL2Transaction(code, start, end string) (ColumnBlock, error) {
	price := make([]any, 10)
	vol := make([]any, 10)
	for i := range price {
		price[i] = priceAt(code, int64(i)+5)
		vol[i] = int64(50 * (i + 1))
	}
	return s.l2Block(code, start, end, map[string][]any{"price": price, "volume": vol})
}

func candles(code string, fields []string, n int) ColumnBlock {
	if len(fields) == 0 {
		fields = []string{"open", "high", "low", "close", "volume", "amount"}
	}
	times := make([]string, n)
	cols := make(map[string][]any, len(fields))
	for _, f := range fields {
		cols[f] = make([]any, n)
	}
	day := time.Now().AddDate(0, 0, -n)
	for i := 0; i < n; i++ {
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, 1)
		}
		times[i] = day.Format("20060102")
		p := priceAt(code, int64(i))
		for _, f := range fields {
			switch f {
			case "open":
				cols[f][i] = priceAt(code, int64(i)-1)
			case "high":
				cols[f][i] = p * 1.015
			case "low":
				cols[f][i] = p * 0.985
			case "close":
				cols[f][i] = p
			case "volume":
				cols[f][i] = int64(10000 + 137*i)
			case "amount":
				cols[f][i] = p * float64(10000+137*i)
			default:
				cols[f][i] = 0.0
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return ColumnBlock{Times: times, Columns: cols}
}

func (s *simData) GetMarketData(fields []string, codes []string, period, start, end string, count int, adjust, fill string) (map[string]ColumnBlock, error) {
	n := count
	if n <= 0 {
		n = 30
	}
	out := make(map[string]ColumnBlock, len(codes))
	for _, code := range codes {
		out[code] = candles(code, fields, n)
	}
	return out, nil
}

func (s *simData) GetLocalData(fields []string, codes []string, period, start, end string, count int, adjust, fill string) (map[string]ColumnBlock, error) {
	return s.GetMarketData(fields, codes, period, start, end, count, adjust, fill)
}

func (s *simData) GetFullKline(fields []string, codes []string, period, start, end string, count int, adjust, fill string) (map[string]ColumnBlock, error) {
	return s.GetMarketData(fields, codes, period, start, end, count, adjust, fill)
}

func (s *simData) GetFinancialData(codes []string, tables []string, start, end string) (map[string]map[string]ColumnBlock, error) {
	out := make(map[string]map[string]ColumnBlock, len(codes))
	for _, code := range codes {
		perTable := make(map[string]ColumnBlock, len(tables))
		for _, table := range tables {
			perTable[table] = ColumnBlock{
				Times: []string{"20240331", "20240630", "20240930", "20241231"},
				Columns: map[string][]any{
					"revenue":    {1.2e9, 2.5e9, 3.9e9, 5.4e9},
					"net_profit": {1.1e8, 2.4e8, 3.6e8, 5.0e8},
				},
			}
		}
		out[code] = perTable
	}
	return out, nil
}

func (s *simData) DownloadHistoryData(code, period, start, end string) error { return nil }
func (s *simData) DownloadHistoryDataBatch(codes []string, period, start, end string) error {
	return nil
}
func (s *simData) DownloadFinancialData(codes []string, tables []string) error { return nil }
func (s *simData) DownloadSectorData() error                                   { return nil }
func (s *simData) DownloadIndexWeight() error                                  { return nil }
func (s *simData) DownloadCBData() error                                       { return nil }
func (s *simData) DownloadETFInfo() error                                      { return nil }
func (s *simData) DownloadHolidayData() error                                  { return nil }
func (s *simData) DownloadHistoryContracts() error                             { return nil }

func (s *simData) CreateSectorFolder(parent, folder string, overwrite bool) error {
	return nil
}

func (s *simData) CreateSector(parent, sector string, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sectors[sector]; exists && !overwrite {
		return fmt.Errorf("sector %q already exists", sector)
	}
	s.sectors[sector] = nil
	return nil
}

func (s *simData) AddSector(sector string, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sectors[sector] = append(s.sectors[sector], codes...)
	return nil
}

func (s *simData) RemoveStockFromSector(sector string, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	have, ok := s.sectors[sector]
	if !ok {
		return fmt.Errorf("sector %q not found", sector)
	}
	drop := make(map[string]bool, len(codes))
	for _, c := range codes {
		drop[c] = true
	}
	kept := have[:0]
	for _, c := range have {
		if !drop[c] {
			kept = append(kept, c)
		}
	}
	s.sectors[sector] = kept
	return nil
}

func (s *simData) RemoveSector(sector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sectors[sector]; !ok {
		return fmt.Errorf("sector %q not found", sector)
	}
	delete(s.sectors, sector)
	return nil
}

func (s *simData) ResetSector(sector string, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sectors[sector] = append([]string(nil), codes...)
	return nil
}

func (s *simData) SubscribeQuote(codes []string, period string, h TickHandler) (int, error) {
	return s.startSub(func(sub *simSub) {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-sub.stop:
				return
			case now := <-ticker.C:
				step := now.Unix()
				for _, code := range codes {
					h(code, syntheticTick(code, now, step))
				}
			}
		}
	})
}

func (s *simData) SubscribeWholeQuote(markets []string, h TickHandler) (int, error) {
	codes := []string{"000001.SZ", "600000.SH", "600519.SH", "000333.SZ", "300750.SZ"}
	return s.SubscribeQuote(codes, "tick", h)
}

func (s *simData) startSub(run func(*simSub)) (int, error) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	sub := &simSub{stop: make(chan struct{})}
	s.subs[id] = sub
	s.mu.Unlock()
	go run(sub)
	return id, nil
}

func (s *simData) UnsubscribeQuote(id int) error {
	s.mu.Lock()
	sub, ok := s.subs[id]
	if ok {
		delete(s.subs, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown quote subscription %d", id)
	}
	close(sub.stop)
	return nil
}

// ---- trading ----

var simOrderID atomic.Int64

type simTrader struct {
	accountID string

	mu       sync.Mutex
	receiver Receiver
	started  bool
	stopped  bool
	orders   map[int64]*Order
	trades   []Trade
	asset    Asset
}

func newSimTrader(accountID string) *simTrader {
	return &simTrader{
		accountID: accountID,
		orders:    make(map[int64]*Order),
		asset: Asset{
			AccountID:   accountID,
			Cash:        1_000_000,
			FrozenCash:  0,
			MarketValue: 250_000,
			TotalAsset:  1_250_000,
		},
	}
}

func (t *simTrader) RegisterCallback(r Receiver) {
	t.mu.Lock()
	t.receiver = r
	t.mu.Unlock()
}

func (t *simTrader) Start() error {
	t.mu.Lock()
	t.started = true
	t.stopped = false
	t.mu.Unlock()
	return nil
}

func (t *simTrader) Connect() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return -1
	}
	if r := t.receiver; r != nil {
		go r.OnConnected()
	}
	return 0
}

func (t *simTrader) SubscribeAccount(accountID string) int {
	if accountID != t.accountID {
		return -1
	}
	return 0
}

func (t *simTrader) Stop() {
	t.mu.Lock()
	already := t.stopped
	t.stopped = true
	r := t.receiver
	t.mu.Unlock()
	if !already && r != nil {
		go r.OnDisconnected()
	}
}

func (t *simTrader) QueryAsset(accountID string) (*Asset, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.asset
	return &a, nil
}

func (t *simTrader) QueryPositions(accountID string) ([]Position, error) {
	p := basePrice("600000.SH")
	return []Position{{
		AccountID: accountID, StockCode: "600000.SH",
		Volume: 10000, CanUseVol: 10000,
		OpenPrice: p * 0.95, AvgPrice: p * 0.95,
		MarketValue: p * 10000, YesterdayVol: 10000,
	}}, nil
}

func (t *simTrader) QueryOrders(accountID string) ([]Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Order, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (t *simTrader) QueryTrades(accountID string) ([]Trade, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Trade, len(t.trades))
	copy(out, t.trades)
	return out, nil
}

func (t *simTrader) place(req OrderRequest) *Order {
	id := simOrderID.Add(1)
	o := &Order{
		AccountID:    req.AccountID,
		OrderID:      id,
		OrderSysID:   fmt.Sprintf("SIM%08d", id),
		StockCode:    req.StockCode,
		OrderType:    req.OrderType,
		OrderVolume:  req.OrderVolume,
		PriceType:    req.PriceType,
		Price:        req.Price,
		OrderStatus:  OrderReported,
		OrderTime:    time.Now().Unix(),
		StrategyName: req.StrategyName,
		OrderRemark:  req.OrderRemark,
	}
	t.mu.Lock()
	t.orders[id] = o
	r := t.receiver
	t.mu.Unlock()
	if r != nil {
		go r.OnOrder(*o)
	}
	return o
}

func (t *simTrader) OrderStock(req OrderRequest) int64 {
	if req.OrderVolume <= 0 {
		return -1
	}
	return t.place(req).OrderID
}

func (t *simTrader) CancelOrder(accountID string, orderID int64) int {
	t.mu.Lock()
	o, ok := t.orders[orderID]
	var copyOrder Order
	if ok {
		o.OrderStatus = OrderCancelled
		copyOrder = *o
	}
	r := t.receiver
	t.mu.Unlock()
	if !ok {
		return -1
	}
	if r != nil {
		go r.OnOrder(copyOrder)
	}
	return 0
}

func (t *simTrader) CancelOrderSysID(accountID, market, orderSysID string) int {
	t.mu.Lock()
	var target *Order
	for _, o := range t.orders {
		if o.OrderSysID == orderSysID {
			target = o
			break
		}
	}
	if target != nil {
		target.OrderStatus = OrderCancelled
	}
	t.mu.Unlock()
	if target == nil {
		return -1
	}
	return 0
}

func (t *simTrader) OrderStockAsync(req OrderRequest, seq int64) error {
	go func() {
		o := t.place(req)
		t.mu.Lock()
		r := t.receiver
		t.mu.Unlock()
		if r != nil {
			r.OnOrderStockAsyncResponse(AsyncSeqResult{
				AccountID: req.AccountID, Seq: seq, OrderID: o.OrderID,
			})
		}
	}()
	return nil
}

func (t *simTrader) CancelOrderAsync(accountID string, orderID int64, orderSysID string, seq int64) error {
	go func() {
		code := t.CancelOrder(accountID, orderID)
		t.mu.Lock()
		r := t.receiver
		t.mu.Unlock()
		if r != nil {
			res := AsyncSeqResult{AccountID: accountID, Seq: seq, OrderID: orderID}
			if code != 0 {
				res.ErrorID = code
				res.ErrorMsg = "order not found"
			}
			r.OnCancelOrderAsyncResponse(res)
		}
	}()
	return nil
}
