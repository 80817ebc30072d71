package qmt

// Vendor constants, values as defined by the SDK's constant module.
const (
	// Order sides
	StockBuy  = 23
	StockSell = 24

	// Price types
	FixPrice    = 11
	LatestPrice = 5

	// Order status codes
	OrderUnreported      = 48
	OrderWaitReporting   = 49
	OrderReported        = 50
	OrderReportedCancel  = 51
	OrderPartsuccCancel  = 52
	OrderPartCancel      = 53
	OrderCancelled       = 54
	OrderPartSucc        = 55
	OrderSucceeded       = 56
	OrderJunk            = 57
)

// Supported candle periods.
var Periods = []string{"tick", "1m", "5m", "15m", "30m", "1h", "1d", "1w", "1mon", "1q", "1hy", "1y"}
