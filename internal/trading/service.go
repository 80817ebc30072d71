// Package trading wraps the vendor trading surface with the mode guard,
// the session registry and the blocking-call executor.
package trading

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantgate/qmt-gateway/internal/callback"
	"github.com/quantgate/qmt-gateway/internal/executor"
	"github.com/quantgate/qmt-gateway/internal/gwerr"
	"github.com/quantgate/qmt-gateway/internal/mode"
	"github.com/quantgate/qmt-gateway/internal/qmt"
	"github.com/quantgate/qmt-gateway/internal/session"
)

// Risk model constants pending a real model.
const (
	riskMaxDrawdown = 0.05
	riskVaR95       = 0.02
	riskVaR99       = 0.03
)

// Service implements the trading operations.
type Service struct {
	guard      *mode.Guard
	sessions   *session.Registry
	exec       *executor.Executor
	dispatcher *callback.Dispatcher
	logger     zerolog.Logger

	// seqMu guards the process-wide async correlation counter.
	seqMu sync.Mutex
	seq   int64

	// simMu guards simulated orders, tracked per account so a simulated
	// cancel can flip them to CANCELLED and one session never sees
	// another account's orders. Their ids live in the disjoint
	// sim_order_{n} namespace.
	simMu     sync.Mutex
	simNext   int64
	simOrders map[string]*simOrder
}

// simOrder is one locally tracked simulated order.
type simOrder struct {
	accountID string
	view      *OrderView
}

// NewService wires the trading service.
func NewService(g *mode.Guard, reg *session.Registry, exec *executor.Executor, d *callback.Dispatcher, logger zerolog.Logger) *Service {
	return &Service{
		guard:      g,
		sessions:   reg,
		exec:       exec,
		dispatcher: d,
		logger:     logger.With().Str("component", "trading_service").Logger(),
		simOrders:  make(map[string]*simOrder),
	}
}

// NextSeq returns the next async correlation sequence. Values are
// unique and strictly increasing over the process lifetime.
func (s *Service) NextSeq() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq++
	return s.seq
}

// Connect opens a session for the account.
func (s *Service) Connect(ctx context.Context, req ConnectRequest) (*ConnectResponse, error) {
	sess, err := s.sessions.Connect(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	return &ConnectResponse{
		Success:   true,
		SessionID: sess.ID,
		AccountInfo: AccountInfo{
			AccountID:   sess.AccountID,
			ConnectedAt: sess.ConnectedAt,
			LastAsset:   sess.LastAsset(),
		},
	}, nil
}

// Disconnect tears the session down; a second call reports
// Success=false without error.
func (s *Service) Disconnect(ctx context.Context, sessionID string) (*DisconnectResponse, error) {
	removed, err := s.sessions.Disconnect(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	resp := &DisconnectResponse{Success: removed}
	if !removed {
		resp.Message = "session not found"
	}
	return resp, nil
}

// Status answers the session status query. An unknown session is
// reported as disconnected, not an error.
func (s *Service) Status(sessionID string) *StatusResponse {
	resp := &StatusResponse{SessionID: sessionID, Mode: s.guard.Mode().String()}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return resp
	}
	resp.Connected = true
	resp.AccountID = sess.AccountID
	resp.ConnectedAt = sess.ConnectedAt
	return resp
}

// IsConnected reports whether the session is registered.
func (s *Service) IsConnected(sessionID string) bool {
	_, err := s.sessions.Get(sessionID)
	return err == nil
}

// GetAccount returns the account summary for the session.
func (s *Service) GetAccount(sessionID string) (*AccountInfo, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return &AccountInfo{
		AccountID:   sess.AccountID,
		ConnectedAt: sess.ConnectedAt,
		LastAsset:   sess.LastAsset(),
	}, nil
}

// GetAsset queries the current funds snapshot and stashes it.
func (s *Service) GetAsset(ctx context.Context, sessionID string) (*qmt.Asset, error) {
	const op = "trading.get_asset"
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	v, err := sess.Call(ctx, s.exec, op, func(t qmt.Trader) (any, error) {
		a, err := t.QueryAsset(sess.AccountID)
		if err != nil {
			return nil, gwerr.Wrap(gwerr.VendorError, op, err)
		}
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	asset := v.(*qmt.Asset)
	sess.SetLastAsset(asset)
	return asset, nil
}

// GetPositions queries current holdings.
func (s *Service) GetPositions(ctx context.Context, sessionID string) ([]qmt.Position, error) {
	const op = "trading.get_positions"
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	v, err := sess.Call(ctx, s.exec, op, func(t qmt.Trader) (any, error) {
		p, err := t.QueryPositions(sess.AccountID)
		if err != nil {
			return nil, gwerr.Wrap(gwerr.VendorError, op, err)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]qmt.Position), nil
}

// GetOrders queries today's orders with mapped statuses. Simulated
// orders are appended so callers see what they submitted.
func (s *Service) GetOrders(ctx context.Context, sessionID string) ([]OrderView, error) {
	const op = "trading.get_orders"
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	v, err := sess.Call(ctx, s.exec, op, func(t qmt.Trader) (any, error) {
		orders, err := t.QueryOrders(sess.AccountID)
		if err != nil {
			return nil, gwerr.Wrap(gwerr.VendorError, op, err)
		}
		return orders, nil
	})
	if err != nil {
		return nil, err
	}
	orders := v.([]qmt.Order)
	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, viewOf(o))
	}
	views = append(views, s.simViews(sess.AccountID)...)
	return views, nil
}

// GetTrades queries today's fills.
func (s *Service) GetTrades(ctx context.Context, sessionID string) ([]qmt.Trade, error) {
	const op = "trading.get_trades"
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	v, err := sess.Call(ctx, s.exec, op, func(t qmt.Trader) (any, error) {
		tr, err := t.QueryTrades(sess.AccountID)
		if err != nil {
			return nil, gwerr.Wrap(gwerr.VendorError, op, err)
		}
		return tr, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]qmt.Trade), nil
}

// GetRisk derives risk ratios from the current asset snapshot.
func (s *Service) GetRisk(ctx context.Context, sessionID string) (*RiskMetrics, error) {
	asset, err := s.GetAsset(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	total := asset.TotalAsset
	if total < 1 {
		total = 1
	}
	return &RiskMetrics{
		AccountID:     asset.AccountID,
		PositionRatio: asset.MarketValue / total,
		CashRatio:     asset.Cash / total,
		MaxDrawdown:   riskMaxDrawdown,
		VaR95:         riskVaR95,
		VaR99:         riskVaR99,
	}, nil
}

// GetStrategies lists the distinct strategy names on today's orders.
func (s *Service) GetStrategies(ctx context.Context, sessionID string) ([]string, error) {
	orders, err := s.GetOrders(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, o := range orders {
		if o.StrategyName != "" {
			seen[o.StrategyName] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// SubmitOrder submits synchronously. In SIM and LIVE_RO the order is
// fabricated and flagged; LIVE_RO additionally carries the
// mode_refused diagnostic and never touches the vendor.
func (s *Service) SubmitOrder(ctx context.Context, sessionID string, req OrderRequest) (*OrderResponse, error) {
	const op = "trading.submit_order"
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	orderType, priceType, err := req.vendorTypes(op)
	if err != nil {
		return nil, err
	}

	switch s.guard.Check(op) {
	case mode.Allow:
		v, err := sess.Call(ctx, s.exec, op, func(t qmt.Trader) (any, error) {
			id := t.OrderStock(qmt.OrderRequest{
				AccountID:    sess.AccountID,
				StockCode:    req.Code,
				OrderType:    orderType,
				OrderVolume:  req.Volume,
				PriceType:    priceType,
				Price:        req.Price,
				StrategyName: req.Strategy,
				OrderRemark:  req.Remark,
			})
			if id < 0 {
				return nil, gwerr.Vendor(op, int(id))
			}
			return id, nil
		})
		if err != nil {
			return nil, err
		}
		return &OrderResponse{
			Success: true,
			OrderID: fmt.Sprintf("%d", v.(int64)),
			Status:  StatusSubmitted,
		}, nil

	case mode.SimulateRefused:
		resp := s.simulateOrder(sess.AccountID, req)
		resp.ModeRefused = op
		return resp, nil

	default: // Simulate
		return s.simulateOrder(sess.AccountID, req), nil
	}
}

// simulateOrder fabricates a SUBMITTED order in the sim_order
// namespace and tracks it for later simulated cancellation.
func (s *Service) simulateOrder(accountID string, req OrderRequest) *OrderResponse {
	s.simMu.Lock()
	s.simNext++
	id := fmt.Sprintf("sim_order_%d", s.simNext)
	view := &OrderView{
		OrderSysID:   id,
		StockCode:    req.Code,
		Side:         req.Side,
		Price:        req.Price,
		Volume:       req.Volume,
		Status:       StatusSubmitted,
		OrderTime:    time.Now().Unix(),
		StrategyName: req.Strategy,
	}
	s.simOrders[id] = &simOrder{accountID: accountID, view: view}
	s.simMu.Unlock()

	s.dispatcher.Publish(callback.Record{
		Kind:      callback.KindOrder,
		AccountID: accountID,
		Data:      view,
	})
	return &OrderResponse{
		Success:   true,
		OrderID:   id,
		Status:    StatusSubmitted,
		Simulated: true,
	}
}

func (s *Service) simViews(accountID string) []OrderView {
	s.simMu.Lock()
	defer s.simMu.Unlock()
	out := make([]OrderView, 0, len(s.simOrders))
	for _, o := range s.simOrders {
		if o.accountID != accountID {
			continue
		}
		out = append(out, *o.view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderSysID < out[j].OrderSysID })
	return out
}

// CancelOrder cancels synchronously; simulated mode flips a locally
// tracked order to CANCELLED.
func (s *Service) CancelOrder(ctx context.Context, sessionID string, req CancelRequest) (*CancelResponse, error) {
	const op = "trading.cancel_order"
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if req.OrderID == "" && req.OrderSysID == "" {
		return nil, gwerr.New(gwerr.InvalidArgument, op, "order_id or order_sysid is required")
	}

	switch s.guard.Check(op) {
	case mode.Allow:
		orderID, parseErr := parseOrderID(op, req.OrderID)
		if req.OrderID != "" && parseErr != nil {
			return nil, parseErr
		}
		_, err := sess.Call(ctx, s.exec, op, func(t qmt.Trader) (any, error) {
			var code int
			if req.OrderID != "" {
				code = t.CancelOrder(sess.AccountID, orderID)
			} else {
				code = t.CancelOrderSysID(sess.AccountID, "", req.OrderSysID)
			}
			if code != 0 {
				return nil, gwerr.Vendor(op, code)
			}
			return nil, nil
		})
		if err != nil {
			return nil, err
		}
		return &CancelResponse{
			Success: true,
			OrderID: firstNonEmpty(req.OrderID, req.OrderSysID),
			Status:  StatusCancelled,
		}, nil

	case mode.SimulateRefused:
		resp := s.simulateCancel(sess.AccountID, req)
		resp.ModeRefused = op
		return resp, nil

	default:
		return s.simulateCancel(sess.AccountID, req), nil
	}
}

func (s *Service) simulateCancel(accountID string, req CancelRequest) *CancelResponse {
	id := firstNonEmpty(req.OrderID, req.OrderSysID)

	s.simMu.Lock()
	o, tracked := s.simOrders[id]
	if tracked && o.accountID != accountID {
		tracked = false
	}
	var view *OrderView
	if tracked {
		o.view.Status = StatusCancelled
		view = o.view
	}
	s.simMu.Unlock()

	resp := &CancelResponse{
		Success:   true,
		OrderID:   id,
		Status:    StatusCancelled,
		Simulated: true,
	}
	if !tracked {
		resp.Message = "order not tracked locally"
	} else {
		s.dispatcher.Publish(callback.Record{
			Kind:      callback.KindOrder,
			AccountID: accountID,
			Data:      view,
		})
	}
	return resp
}

// SubmitOrderAsync submits asynchronously; the returned seq appears
// exactly once in the eventual async_order callback.
func (s *Service) SubmitOrderAsync(ctx context.Context, sessionID string, req OrderRequest) (*AsyncResponse, error) {
	const op = "trading.submit_order_async"
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	orderType, priceType, err := req.vendorTypes(op)
	if err != nil {
		return nil, err
	}
	seq := s.NextSeq()

	switch s.guard.Check(op) {
	case mode.Allow:
		_, err := sess.Call(ctx, s.exec, op, func(t qmt.Trader) (any, error) {
			return nil, t.OrderStockAsync(qmt.OrderRequest{
				AccountID:    sess.AccountID,
				StockCode:    req.Code,
				OrderType:    orderType,
				OrderVolume:  req.Volume,
				PriceType:    priceType,
				Price:        req.Price,
				StrategyName: req.Strategy,
				OrderRemark:  req.Remark,
			}, seq)
		})
		if err != nil {
			return nil, err
		}
		return &AsyncResponse{Success: true, Seq: seq}, nil

	case mode.SimulateRefused:
		s.publishAsyncAck(callback.KindAsyncOrder, sess.AccountID, seq, req.Code)
		return &AsyncResponse{Success: true, Seq: seq, Simulated: true, ModeRefused: op}, nil

	default:
		s.publishAsyncAck(callback.KindAsyncOrder, sess.AccountID, seq, req.Code)
		return &AsyncResponse{Success: true, Seq: seq, Simulated: true}, nil
	}
}

// CancelOrderAsync cancels asynchronously; seq correlates the ack.
func (s *Service) CancelOrderAsync(ctx context.Context, sessionID string, req CancelRequest) (*AsyncResponse, error) {
	const op = "trading.cancel_order_async"
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if req.OrderID == "" && req.OrderSysID == "" {
		return nil, gwerr.New(gwerr.InvalidArgument, op, "order_id or order_sysid is required")
	}
	seq := s.NextSeq()

	switch s.guard.Check(op) {
	case mode.Allow:
		orderID, parseErr := parseOrderID(op, req.OrderID)
		if req.OrderID != "" && parseErr != nil {
			return nil, parseErr
		}
		_, err := sess.Call(ctx, s.exec, op, func(t qmt.Trader) (any, error) {
			return nil, t.CancelOrderAsync(sess.AccountID, orderID, req.OrderSysID, seq)
		})
		if err != nil {
			return nil, err
		}
		return &AsyncResponse{Success: true, Seq: seq}, nil

	case mode.SimulateRefused:
		s.simulateCancel(sess.AccountID, req)
		s.publishAsyncAck(callback.KindAsyncCancel, sess.AccountID, seq, firstNonEmpty(req.OrderID, req.OrderSysID))
		return &AsyncResponse{Success: true, Seq: seq, Simulated: true, ModeRefused: op}, nil

	default:
		s.simulateCancel(sess.AccountID, req)
		s.publishAsyncAck(callback.KindAsyncCancel, sess.AccountID, seq, firstNonEmpty(req.OrderID, req.OrderSysID))
		return &AsyncResponse{Success: true, Seq: seq, Simulated: true}, nil
	}
}

// publishAsyncAck delivers the fabricated ack through the dispatcher so
// simulated async mutations honour the correlation contract.
func (s *Service) publishAsyncAck(kind callback.Kind, accountID string, seq int64, ref string) {
	s.dispatcher.Publish(callback.Record{
		Kind:      kind,
		AccountID: accountID,
		Seq:       seq,
		Data: map[string]any{
			"seq":       seq,
			"reference": ref,
			"simulated": true,
		},
	})
}

func (r OrderRequest) vendorTypes(op string) (orderType, priceType int, err error) {
	if err := ValidateSymbol(op, r.Code); err != nil {
		return 0, 0, err
	}
	if r.Volume <= 0 {
		return 0, 0, gwerr.Newf(gwerr.InvalidArgument, op, "volume must be positive, got %d", r.Volume)
	}
	switch r.Side {
	case "BUY":
		orderType = qmt.StockBuy
	case "SELL":
		orderType = qmt.StockSell
	default:
		return 0, 0, gwerr.Newf(gwerr.InvalidArgument, op, "side must be BUY or SELL, got %q", r.Side)
	}
	switch r.Type {
	case "LIMIT", "":
		priceType = qmt.FixPrice
		if r.Price <= 0 {
			return 0, 0, gwerr.Newf(gwerr.InvalidArgument, op, "price must be positive for LIMIT orders")
		}
	case "MARKET":
		priceType = qmt.LatestPrice
	default:
		return 0, 0, gwerr.Newf(gwerr.InvalidArgument, op, "type must be LIMIT or MARKET, got %q", r.Type)
	}
	return orderType, priceType, nil
}

func parseOrderID(op, s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	var id int64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil {
		return 0, gwerr.Newf(gwerr.InvalidArgument, op, "order_id must be numeric, got %q", s)
	}
	return id, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
