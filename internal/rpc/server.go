package rpc

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/quantgate/qmt-gateway/internal/callback"
	"github.com/quantgate/qmt-gateway/internal/config"
	"github.com/quantgate/qmt-gateway/internal/data"
	"github.com/quantgate/qmt-gateway/internal/gwerr"
	"github.com/quantgate/qmt-gateway/internal/metrics"
	"github.com/quantgate/qmt-gateway/internal/subscription"
	"github.com/quantgate/qmt-gateway/internal/trading"
)

// handler executes one unary method.
type handler func(ctx context.Context, body msgpack.RawMessage) (any, error)

// Server is the binary RPC listener.
type Server struct {
	cfg        *config.Config
	trading    *trading.Service
	data       *data.Service
	subs       *subscription.Manager
	dispatcher *callback.Dispatcher
	logger     zerolog.Logger

	handlers map[string]handler
	allowed  map[string]bool

	mu       sync.Mutex
	listener net.Listener
}

// New builds the server and its method table.
func New(cfg *config.Config, t *trading.Service, d *data.Service, subs *subscription.Manager, disp *callback.Dispatcher, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		trading:    t,
		data:       d,
		subs:       subs,
		dispatcher: disp,
		logger:     logger.With().Str("component", "rpc_server").Logger(),
		allowed:    make(map[string]bool, len(cfg.APIKeys)),
	}
	for _, k := range cfg.APIKeys {
		if k != "" {
			s.allowed[k] = true
		}
	}
	s.handlers = s.methodTable()
	return s
}

func unary[Req, Resp any](fn func(context.Context, Req) (Resp, error)) handler {
	return func(ctx context.Context, body msgpack.RawMessage) (any, error) {
		var req Req
		if len(body) > 0 {
			if err := msgpack.Unmarshal(body, &req); err != nil {
				return nil, gwerr.Wrap(gwerr.InvalidArgument, "rpc.decode", err)
			}
		}
		return fn(ctx, req)
	}
}

type sessionBody struct {
	SessionID string `msgpack:"session_id"`
}

type sessionOrderBody struct {
	SessionID string               `msgpack:"session_id"`
	Order     trading.OrderRequest `msgpack:"order"`
}

type sessionCancelBody struct {
	SessionID string                `msgpack:"session_id"`
	Cancel    trading.CancelRequest `msgpack:"cancel"`
}

type downloadBody struct {
	Kind    string               `msgpack:"kind"`
	Request data.DownloadRequest `msgpack:"request"`
}

type idBody struct {
	ID string `msgpack:"id"`
}

type yearBody struct {
	Year int `msgpack:"year"`
}

type codeBody struct {
	Code string `msgpack:"code"`
}

type marketBody struct {
	Market string `msgpack:"market,omitempty"`
}

func (s *Server) methodTable() map[string]handler {
	return map[string]handler{
		// data family
		"data.market": unary(func(ctx context.Context, r data.MarketDataRequest) (any, error) {
			return s.data.MarketData(ctx, r)
		}),
		"data.local": unary(func(ctx context.Context, r data.MarketDataRequest) (any, error) {
			return s.data.LocalData(ctx, r)
		}),
		"data.full_kline": unary(func(ctx context.Context, r data.MarketDataRequest) (any, error) {
			return s.data.FullKline(ctx, r)
		}),
		"data.financial": unary(func(ctx context.Context, r data.FinancialDataRequest) (any, error) {
			return s.data.FinancialData(ctx, r)
		}),
		"data.sectors": unary(func(ctx context.Context, _ struct{}) (any, error) {
			return s.data.SectorList(ctx)
		}),
		"data.sector_members": unary(func(ctx context.Context, r data.SectorRequest) (any, error) {
			return s.data.SectorMembers(ctx, r.Sector)
		}),
		"data.sector_create_folder": unary(func(ctx context.Context, r data.SectorRequest) (any, error) {
			return nil, s.data.SectorCreateFolder(ctx, r)
		}),
		"data.sector_create": unary(func(ctx context.Context, r data.SectorRequest) (any, error) {
			return nil, s.data.SectorCreate(ctx, r)
		}),
		"data.sector_add_stocks": unary(func(ctx context.Context, r data.SectorRequest) (any, error) {
			return nil, s.data.SectorAddStocks(ctx, r)
		}),
		"data.sector_remove_stocks": unary(func(ctx context.Context, r data.SectorRequest) (any, error) {
			return nil, s.data.SectorRemoveStocks(ctx, r)
		}),
		"data.sector_remove": unary(func(ctx context.Context, r data.SectorRequest) (any, error) {
			return nil, s.data.SectorRemove(ctx, r)
		}),
		"data.sector_reset": unary(func(ctx context.Context, r data.SectorRequest) (any, error) {
			return nil, s.data.SectorReset(ctx, r)
		}),
		"data.index_weight": unary(func(ctx context.Context, r data.IndexWeightRequest) (any, error) {
			return s.data.IndexWeight(ctx, r.IndexCode)
		}),
		"data.trading_calendar": unary(func(ctx context.Context, r yearBody) (any, error) {
			return s.data.TradingCalendar(ctx, r.Year)
		}),
		"data.instrument": unary(func(ctx context.Context, r codeBody) (any, error) {
			return s.data.InstrumentDetail(ctx, r.Code)
		}),
		"data.instrument_type": unary(func(ctx context.Context, r codeBody) (any, error) {
			return s.data.InstrumentType(ctx, r.Code)
		}),
		"data.holidays": unary(func(ctx context.Context, _ struct{}) (any, error) {
			return s.data.Holidays(ctx)
		}),
		"data.periods": unary(func(ctx context.Context, _ struct{}) (any, error) {
			return s.data.PeriodList(ctx)
		}),
		"data.ipo": unary(func(ctx context.Context, r marketBody) (any, error) {
			return s.data.IPOInfo(ctx, r.Market)
		}),
		"data.cb": unary(func(ctx context.Context, _ struct{}) (any, error) {
			return s.data.CBInfo(ctx)
		}),
		"data.etf": unary(func(_ context.Context, r codeBody) (any, error) {
			return s.data.ETFInfo(r.Code)
		}),
		"data.data_dir": unary(func(ctx context.Context, _ struct{}) (any, error) {
			return s.data.DataDir(ctx)
		}),
		"data.full_tick": unary(func(ctx context.Context, r data.CodesRequest) (any, error) {
			return s.data.FullTick(ctx, r)
		}),
		"data.divid_factors": unary(func(ctx context.Context, r data.CodesRequest) (any, error) {
			return s.data.DividFactors(ctx, r)
		}),
		"data.l2_quote": unary(func(ctx context.Context, r data.CodesRequest) (any, error) {
			return s.data.L2Quote(ctx, r)
		}),
		"data.l2_order": unary(func(ctx context.Context, r data.CodesRequest) (any, error) {
			return s.data.L2Order(ctx, r)
		}),
		"data.l2_transaction": unary(func(ctx context.Context, r data.CodesRequest) (any, error) {
			return s.data.L2Transaction(ctx, r)
		}),
		"data.download": unary(func(ctx context.Context, r downloadBody) (any, error) {
			return s.data.Download(r.Kind, r.Request)
		}),
		"data.subscribe": unary(func(ctx context.Context, r subscription.SubscribeRequest) (any, error) {
			return s.subs.Subscribe(ctx, r)
		}),
		"data.unsubscribe": unary(func(ctx context.Context, r idBody) (any, error) {
			removed, err := s.subs.Unsubscribe(ctx, r.ID)
			return map[string]bool{"removed": removed}, err
		}),
		"data.subscription_info": unary(func(_ context.Context, r idBody) (any, error) {
			return s.subs.Info(r.ID)
		}),
		"data.subscriptions": unary(func(_ context.Context, _ struct{}) (any, error) {
			return s.subs.List(), nil
		}),

		// trading family
		"trading.connect": unary(func(ctx context.Context, r trading.ConnectRequest) (any, error) {
			return s.trading.Connect(ctx, r)
		}),
		"trading.disconnect": unary(func(ctx context.Context, r sessionBody) (any, error) {
			return s.trading.Disconnect(ctx, r.SessionID)
		}),
		"trading.status": unary(func(_ context.Context, r sessionBody) (any, error) {
			return s.trading.Status(r.SessionID), nil
		}),
		"trading.get_account": unary(func(_ context.Context, r sessionBody) (any, error) {
			return s.trading.GetAccount(r.SessionID)
		}),
		"trading.is_connected": unary(func(_ context.Context, r sessionBody) (any, error) {
			return map[string]bool{"connected": s.trading.IsConnected(r.SessionID)}, nil
		}),
		"trading.get_asset": unary(func(ctx context.Context, r sessionBody) (any, error) {
			return s.trading.GetAsset(ctx, r.SessionID)
		}),
		"trading.get_positions": unary(func(ctx context.Context, r sessionBody) (any, error) {
			return s.trading.GetPositions(ctx, r.SessionID)
		}),
		"trading.get_orders": unary(func(ctx context.Context, r sessionBody) (any, error) {
			return s.trading.GetOrders(ctx, r.SessionID)
		}),
		"trading.get_trades": unary(func(ctx context.Context, r sessionBody) (any, error) {
			return s.trading.GetTrades(ctx, r.SessionID)
		}),
		"trading.get_risk": unary(func(ctx context.Context, r sessionBody) (any, error) {
			return s.trading.GetRisk(ctx, r.SessionID)
		}),
		"trading.get_strategies": unary(func(ctx context.Context, r sessionBody) (any, error) {
			return s.trading.GetStrategies(ctx, r.SessionID)
		}),
		"trading.submit_order": unary(func(ctx context.Context, r sessionOrderBody) (any, error) {
			return s.trading.SubmitOrder(ctx, r.SessionID, r.Order)
		}),
		"trading.cancel_order": unary(func(ctx context.Context, r sessionCancelBody) (any, error) {
			return s.trading.CancelOrder(ctx, r.SessionID, r.Cancel)
		}),
		"trading.submit_order_async": unary(func(ctx context.Context, r sessionOrderBody) (any, error) {
			return s.trading.SubmitOrderAsync(ctx, r.SessionID, r.Order)
		}),
		"trading.cancel_order_async": unary(func(ctx context.Context, r sessionCancelBody) (any, error) {
			return s.trading.CancelOrderAsync(ctx, r.SessionID, r.Cancel)
		}),
	}
}

// classOf picks the timeout class from the method name.
func classOf(method string) string {
	switch {
	case strings.HasPrefix(method, "trading."):
		return "trading"
	case method == "data.subscribe" || method == "data.unsubscribe":
		return "subscription"
	case method == "data.financial":
		return "financial_data"
	case method == "data.download":
		return "download"
	case strings.HasPrefix(method, "data."):
		return "market_data"
	default:
		return "default"
	}
}

// Start serves connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.RPCAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info().Str("addr", s.cfg.RPCAddr).Msg("RPC server listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.serveConn(ctx, conn)
	}
}

// serveConn processes one connection. Unary requests run concurrently;
// frame writes are serialised per connection.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	send := func(resp Response) {
		payload, err := encodeResponse(resp)
		if err != nil {
			s.logger.Error().Err(err).Msg("Response encode failed")
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := writeFrame(conn, payload); err != nil {
			cancel()
		}
	}

	for {
		payload, err := readFrame(conn)
		if err != nil {
			return
		}
		req, err := decodeRequest(payload)
		if err != nil {
			s.logger.Debug().Err(err).Msg("Bad request frame")
			return
		}

		if len(s.allowed) > 0 && !s.allowed[req.APIKey] {
			s.respond(send, req, nil, gwerr.New(gwerr.Unauthenticated, req.Method, "missing or unknown API key"))
			continue
		}

		if req.Method == "trading.stream_callbacks" {
			go s.streamCallbacks(connCtx, req, send)
			continue
		}

		h, ok := s.handlers[req.Method]
		if !ok {
			s.respond(send, req, nil, gwerr.Newf(gwerr.InvalidArgument, "rpc.dispatch", "unknown method %q", req.Method))
			continue
		}

		go func(req Request, h handler) {
			callCtx, cancelCall := context.WithTimeout(connCtx, s.cfg.Timeout(classOf(req.Method)))
			defer cancelCall()
			v, err := h(callCtx, req.Body)
			s.respond(send, req, v, err)
		}(req, h)
	}
}

func (s *Server) respond(send func(Response), req Request, v any, err error) {
	resp := Response{ID: req.ID, Status: statusOf(err)}
	if err == nil && v != nil {
		body, mErr := msgpack.Marshal(v)
		if mErr != nil {
			resp.Status = statusOf(gwerr.Wrap(gwerr.Internal, req.Method, mErr))
		} else {
			resp.Body = body
		}
	}
	metrics.RPCRequests.WithLabelValues(req.Method, strconv.Itoa(int(resp.Status.Code))).Inc()
	send(resp)
}

type streamBody struct {
	AccountID string `msgpack:"account_id,omitempty"`
}

// streamCallbacks streams Response frames with the request id until
// the connection closes.
func (s *Server) streamCallbacks(ctx context.Context, req Request, send func(Response)) {
	var body streamBody
	if len(req.Body) > 0 {
		if err := msgpack.Unmarshal(req.Body, &body); err != nil {
			s.respond(send, req, nil, gwerr.Wrap(gwerr.InvalidArgument, req.Method, err))
			return
		}
	}

	sub, history := s.dispatcher.Subscribe(body.AccountID)
	defer s.dispatcher.Unsubscribe(sub)

	for _, rec := range history {
		s.respond(send, req, rec, nil)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-sub.C:
			if !ok {
				return
			}
			s.respond(send, req, rec, nil)
		}
	}
}
