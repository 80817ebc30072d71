// Package qmt defines the surface of the vendor broker/market-data SDK:
// the value types crossing it, the Trader and DataAPI interfaces, the
// callback Receiver, and a driver registry. The simulated driver backs
// SIM mode; live modes need a registered native driver.
package qmt

// Asset is an account funds snapshot.
type Asset struct {
	AccountID   string  `json:"account_id"`
	Cash        float64 `json:"cash"`
	FrozenCash  float64 `json:"frozen_cash"`
	MarketValue float64 `json:"market_value"`
	TotalAsset  float64 `json:"total_asset"`
}

// Position is a single holding.
type Position struct {
	AccountID   string  `json:"account_id"`
	StockCode   string  `json:"stock_code"`
	Volume      int64   `json:"volume"`
	CanUseVol   int64   `json:"can_use_volume"`
	OpenPrice   float64 `json:"open_price"`
	MarketValue float64 `json:"market_value"`
	FrozenVol   int64   `json:"frozen_volume"`
	OnRoadVol   int64   `json:"on_road_volume"`
	YesterdayVol int64  `json:"yesterday_volume"`
	AvgPrice    float64 `json:"avg_price"`
}

// Order is a vendor order record. Status carries the raw vendor code.
type Order struct {
	AccountID     string  `json:"account_id"`
	OrderID       int64   `json:"order_id"`
	OrderSysID    string  `json:"order_sysid"`
	StockCode     string  `json:"stock_code"`
	OrderType     int     `json:"order_type"`
	OrderVolume   int64   `json:"order_volume"`
	PriceType     int     `json:"price_type"`
	Price         float64 `json:"price"`
	TradedVolume  int64   `json:"traded_volume"`
	TradedPrice   float64 `json:"traded_price"`
	OrderStatus   int     `json:"order_status"`
	StatusMsg     string  `json:"status_msg"`
	OrderTime     int64   `json:"order_time"`
	StrategyName  string  `json:"strategy_name"`
	OrderRemark   string  `json:"order_remark"`
}

// Trade is a fill record.
type Trade struct {
	AccountID    string  `json:"account_id"`
	StockCode    string  `json:"stock_code"`
	OrderType    int     `json:"order_type"`
	TradedID     string  `json:"traded_id"`
	TradedTime   int64   `json:"traded_time"`
	TradedPrice  float64 `json:"traded_price"`
	TradedVolume int64   `json:"traded_volume"`
	TradedAmount float64 `json:"traded_amount"`
	OrderID      int64   `json:"order_id"`
	OrderSysID   string  `json:"order_sysid"`
}

// OrderError reports a rejected order submission.
type OrderError struct {
	AccountID string `json:"account_id"`
	OrderID   int64  `json:"order_id"`
	ErrorID   int    `json:"error_id"`
	ErrorMsg  string `json:"error_msg"`
}

// CancelError reports a failed cancellation.
type CancelError struct {
	AccountID  string `json:"account_id"`
	OrderID    int64  `json:"order_id"`
	OrderSysID string `json:"order_sysid"`
	ErrorID    int    `json:"error_id"`
	ErrorMsg   string `json:"error_msg"`
}

// AccountStatus is a vendor account state change.
type AccountStatus struct {
	AccountID string `json:"account_id"`
	Status    int    `json:"status"`
}

// AsyncSeqResult acknowledges an async submit/cancel. Seq echoes the
// gateway-generated sequence handed into the async call.
type AsyncSeqResult struct {
	AccountID string `json:"account_id"`
	Seq       int64  `json:"seq"`
	OrderID   int64  `json:"order_id"`
	ErrorID   int    `json:"error_id"`
	ErrorMsg  string `json:"error_msg"`
}

// Tick is a level-1 market snapshot.
type Tick struct {
	Code      string    `json:"code"`
	Time      int64     `json:"time"`
	LastPrice float64   `json:"lastPrice"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	LastClose float64   `json:"lastClose"`
	Volume    int64     `json:"volume"`
	Amount    float64   `json:"amount"`
	BidPrice  []float64 `json:"bidPrice"`
	AskPrice  []float64 `json:"askPrice"`
	BidVol    []int64   `json:"bidVol"`
	AskVol    []int64   `json:"askVol"`
}

// ColumnBlock is the vendor's tabular payload: one column per field,
// one entry per timestamp. The data service transposes it to row lists.
type ColumnBlock struct {
	Times   []string
	Columns map[string][]any
}

// InstrumentDetail is reference data for one instrument.
type InstrumentDetail struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	ExchangeID    string  `json:"exchange_id"`
	InstrumentID  string  `json:"instrument_id"`
	OpenDate      string  `json:"open_date"`
	ExpireDate    string  `json:"expire_date"`
	PreClose      float64 `json:"pre_close"`
	UpStopPrice   float64 `json:"up_stop_price"`
	DownStopPrice float64 `json:"down_stop_price"`
	PriceTick     float64 `json:"price_tick"`
	VolumeMultiple int64  `json:"volume_multiple"`
	IsTrading     bool    `json:"is_trading"`
}

// IPOInfo describes an upcoming or recent listing.
type IPOInfo struct {
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	Market       string  `json:"market"`
	IssuePrice   float64 `json:"issue_price"`
	IssueVolume  int64   `json:"issue_volume"`
	OnlineDate   string  `json:"online_date"`
	ListedDate   string  `json:"listed_date"`
}

// CBInfo describes a convertible bond.
type CBInfo struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	StockCode     string  `json:"stock_code"`
	ConvertPrice  float64 `json:"convert_price"`
	ConvertValue  float64 `json:"convert_value"`
	ListedDate    string  `json:"listed_date"`
	MaturityDate  string  `json:"maturity_date"`
}

// OrderRequest carries a submit-order call into the Trader.
type OrderRequest struct {
	AccountID    string
	StockCode    string
	OrderType    int // StockBuy / StockSell
	OrderVolume  int64
	PriceType    int // FixPrice / LatestPrice
	Price        float64
	StrategyName string
	OrderRemark  string
}
