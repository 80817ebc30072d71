package trading

import (
	"regexp"
	"time"

	"github.com/quantgate/qmt-gateway/internal/gwerr"
	"github.com/quantgate/qmt-gateway/internal/qmt"
)

// ConnectRequest opens a trading session.
type ConnectRequest struct {
	AccountID string `json:"account_id" msgpack:"account_id"`
	Password  string `json:"password,omitempty" msgpack:"password,omitempty"`
	ClientID  int    `json:"client_id,omitempty" msgpack:"client_id,omitempty"`
}

// ConnectResponse reports the new session.
type ConnectResponse struct {
	Success     bool        `json:"success" msgpack:"success"`
	SessionID   string      `json:"session_id" msgpack:"session_id"`
	AccountInfo AccountInfo `json:"account_info" msgpack:"account_info"`
}

// AccountInfo summarises a connected account.
type AccountInfo struct {
	AccountID   string     `json:"account_id" msgpack:"account_id"`
	ConnectedAt time.Time  `json:"connected_at" msgpack:"connected_at"`
	LastAsset   *qmt.Asset `json:"last_asset,omitempty" msgpack:"last_asset,omitempty"`
}

// DisconnectResponse: Success false means the session was already gone.
type DisconnectResponse struct {
	Success bool   `json:"success" msgpack:"success"`
	Message string `json:"message,omitempty" msgpack:"message,omitempty"`
}

// StatusResponse answers GET /trading/status/{session}.
type StatusResponse struct {
	Connected   bool      `json:"connected" msgpack:"connected"`
	SessionID   string    `json:"session_id" msgpack:"session_id"`
	AccountID   string    `json:"account_id,omitempty" msgpack:"account_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitempty" msgpack:"connected_at,omitempty"`
	Mode        string    `json:"mode" msgpack:"mode"`
}

// OrderView is the client-facing order shape with the mapped status.
type OrderView struct {
	OrderID      int64   `json:"order_id" msgpack:"order_id"`
	OrderSysID   string  `json:"order_sysid" msgpack:"order_sysid"`
	StockCode    string  `json:"stock_code" msgpack:"stock_code"`
	Side         string  `json:"side" msgpack:"side"`
	Price        float64 `json:"price" msgpack:"price"`
	Volume       int64   `json:"volume" msgpack:"volume"`
	TradedVolume int64   `json:"traded_volume" msgpack:"traded_volume"`
	TradedPrice  float64 `json:"traded_price" msgpack:"traded_price"`
	Status       string  `json:"status" msgpack:"status"`
	StatusMsg    string  `json:"status_msg,omitempty" msgpack:"status_msg,omitempty"`
	OrderTime    int64   `json:"order_time" msgpack:"order_time"`
	StrategyName string  `json:"strategy_name,omitempty" msgpack:"strategy_name,omitempty"`
}

func sideName(orderType int) string {
	switch orderType {
	case qmt.StockBuy:
		return "BUY"
	case qmt.StockSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

func viewOf(o qmt.Order) OrderView {
	return OrderView{
		OrderID:      o.OrderID,
		OrderSysID:   o.OrderSysID,
		StockCode:    o.StockCode,
		Side:         sideName(o.OrderType),
		Price:        o.Price,
		Volume:       o.OrderVolume,
		TradedVolume: o.TradedVolume,
		TradedPrice:  o.TradedPrice,
		Status:       StatusFromCode(o.OrderStatus),
		StatusMsg:    o.StatusMsg,
		OrderTime:    o.OrderTime,
		StrategyName: o.StrategyName,
	}
}

// OrderRequest submits an order.
type OrderRequest struct {
	Code     string  `json:"code" msgpack:"code"`
	Side     string  `json:"side" msgpack:"side"` // BUY / SELL
	Type     string  `json:"type" msgpack:"type"` // LIMIT / MARKET
	Volume   int64   `json:"volume" msgpack:"volume"`
	Price    float64 `json:"price" msgpack:"price"`
	Strategy string  `json:"strategy,omitempty" msgpack:"strategy,omitempty"`
	Remark   string  `json:"remark,omitempty" msgpack:"remark,omitempty"`
}

// OrderResponse acknowledges a (possibly simulated) submission.
type OrderResponse struct {
	Success     bool   `json:"success" msgpack:"success"`
	OrderID     string `json:"order_id" msgpack:"order_id"`
	Status      string `json:"status" msgpack:"status"`
	Simulated   bool   `json:"simulated" msgpack:"simulated"`
	ModeRefused string `json:"mode_refused,omitempty" msgpack:"mode_refused,omitempty"`
	Message     string `json:"message,omitempty" msgpack:"message,omitempty"`
}

// CancelRequest cancels by gateway/vendor order id or exchange sys id;
// at least one is required.
type CancelRequest struct {
	OrderID    string `json:"order_id,omitempty" msgpack:"order_id,omitempty"`
	OrderSysID string `json:"order_sysid,omitempty" msgpack:"order_sysid,omitempty"`
}

// CancelResponse acknowledges a (possibly simulated) cancellation.
type CancelResponse struct {
	Success     bool   `json:"success" msgpack:"success"`
	OrderID     string `json:"order_id" msgpack:"order_id"`
	Status      string `json:"status" msgpack:"status"`
	Simulated   bool   `json:"simulated" msgpack:"simulated"`
	ModeRefused string `json:"mode_refused,omitempty" msgpack:"mode_refused,omitempty"`
	Message     string `json:"message,omitempty" msgpack:"message,omitempty"`
}

// AsyncResponse returns the correlation sequence of an async mutation.
type AsyncResponse struct {
	Success     bool   `json:"success" msgpack:"success"`
	Seq         int64  `json:"seq" msgpack:"seq"`
	Simulated   bool   `json:"simulated" msgpack:"simulated"`
	ModeRefused string `json:"mode_refused,omitempty" msgpack:"mode_refused,omitempty"`
}

// RiskMetrics answers GET /trading/risk/{session}. Drawdown and VaR
// are placeholders pending a real model.
type RiskMetrics struct {
	AccountID     string  `json:"account_id" msgpack:"account_id"`
	PositionRatio float64 `json:"position_ratio" msgpack:"position_ratio"`
	CashRatio     float64 `json:"cash_ratio" msgpack:"cash_ratio"`
	MaxDrawdown   float64 `json:"max_drawdown" msgpack:"max_drawdown"`
	VaR95         float64 `json:"var_95" msgpack:"var_95"`
	VaR99         float64 `json:"var_99" msgpack:"var_99"`
}

var symbolRe = regexp.MustCompile(`^[0-9]+\.(SH|SZ|BJ|HK|SF|IF|DF|ZF|GF|INE)$`)

// ValidateSymbol checks the numeric-body + exchange-suffix format
// before any vendor call.
func ValidateSymbol(op, code string) error {
	if !symbolRe.MatchString(code) {
		return gwerr.Newf(gwerr.InvalidArgument, op, "invalid symbol %q", code)
	}
	return nil
}
