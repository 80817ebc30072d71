// Package httpapi serves the HTTP+JSON surface and both WebSocket push
// channels.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/quantgate/qmt-gateway/internal/callback"
	"github.com/quantgate/qmt-gateway/internal/config"
	"github.com/quantgate/qmt-gateway/internal/data"
	"github.com/quantgate/qmt-gateway/internal/metrics"
	"github.com/quantgate/qmt-gateway/internal/mode"
	"github.com/quantgate/qmt-gateway/internal/session"
	"github.com/quantgate/qmt-gateway/internal/subscription"
	"github.com/quantgate/qmt-gateway/internal/trading"
)

// Deps are the services the HTTP layer adapts.
type Deps struct {
	Config     *config.Config
	Guard      *mode.Guard
	Trading    *trading.Service
	Data       *data.Service
	Subs       *subscription.Manager
	Dispatcher *callback.Dispatcher
	Sessions   *session.Registry
	Logger     zerolog.Logger
}

// Server is the HTTP transport.
type Server struct {
	Deps
	limiter *ipRateLimiter
	httpSrv *http.Server
}

// New builds the server and its routes.
func New(d Deps) *Server {
	s := &Server{
		Deps:    d,
		limiter: newIPRateLimiter(d.Config.WSAcceptRate, d.Config.WSAcceptBurst, d.Logger),
	}
	s.httpSrv = &http.Server{
		Addr:              d.Config.HTTPAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Operational endpoints stay outside auth so probes keep working.
	mux.HandleFunc("GET /health/live", s.handleHealthLive)
	mux.HandleFunc("GET /health/ready", s.handleHealthReady)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	api := http.NewServeMux()

	// Data family
	api.HandleFunc("POST /api/v1/data/market", s.handleMarketData)
	api.HandleFunc("POST /api/v1/data/local", s.handleLocalData)
	api.HandleFunc("POST /api/v1/data/full-kline", s.handleFullKline)
	api.HandleFunc("POST /api/v1/data/financial", s.handleFinancialData)
	api.HandleFunc("GET /api/v1/data/sectors", s.handleSectorList)
	api.HandleFunc("POST /api/v1/data/sector", s.handleSectorMembers)
	api.HandleFunc("POST /api/v1/data/sector/create-folder", s.handleSectorCreateFolder)
	api.HandleFunc("POST /api/v1/data/sector/create", s.handleSectorCreate)
	api.HandleFunc("POST /api/v1/data/sector/add-stocks", s.handleSectorAddStocks)
	api.HandleFunc("POST /api/v1/data/sector/remove-stocks", s.handleSectorRemoveStocks)
	api.HandleFunc("POST /api/v1/data/sector/remove", s.handleSectorRemove)
	api.HandleFunc("POST /api/v1/data/sector/reset", s.handleSectorReset)
	api.HandleFunc("POST /api/v1/data/index-weight", s.handleIndexWeight)
	api.HandleFunc("GET /api/v1/data/trading-calendar/{year}", s.handleTradingCalendar)
	api.HandleFunc("GET /api/v1/data/instrument/{code}", s.handleInstrumentDetail)
	api.HandleFunc("GET /api/v1/data/instrument-type/{code}", s.handleInstrumentType)
	api.HandleFunc("GET /api/v1/data/holidays", s.handleHolidays)
	api.HandleFunc("GET /api/v1/data/periods", s.handlePeriodList)
	api.HandleFunc("GET /api/v1/data/ipo", s.handleIPOInfo)
	api.HandleFunc("GET /api/v1/data/cb", s.handleCBInfo)
	api.HandleFunc("GET /api/v1/data/etf/{code}", s.handleETFInfo)
	api.HandleFunc("GET /api/v1/data/data-dir", s.handleDataDir)
	api.HandleFunc("POST /api/v1/data/full-tick", s.handleFullTick)
	api.HandleFunc("POST /api/v1/data/divid-factors", s.handleDividFactors)
	api.HandleFunc("POST /api/v1/data/l2-quote", s.handleL2Quote)
	api.HandleFunc("POST /api/v1/data/l2-order", s.handleL2Order)
	api.HandleFunc("POST /api/v1/data/l2-transaction", s.handleL2Transaction)
	api.HandleFunc("POST /api/v1/data/download/{kind}", s.handleDownload)
	api.HandleFunc("POST /api/v1/data/subscription", s.handleSubscribe)
	api.HandleFunc("DELETE /api/v1/data/subscription/{id}", s.handleUnsubscribe)
	api.HandleFunc("GET /api/v1/data/subscription/{id}", s.handleSubscriptionInfo)
	api.HandleFunc("GET /api/v1/data/subscriptions", s.handleSubscriptionList)

	// Trading family
	api.HandleFunc("POST /api/v1/trading/connect", s.handleConnect)
	api.HandleFunc("POST /api/v1/trading/disconnect/{session}", s.handleDisconnect)
	api.HandleFunc("GET /api/v1/trading/status/{session}", s.handleTradingStatus)
	api.HandleFunc("GET /api/v1/trading/account/{session}", s.handleAccount)
	api.HandleFunc("GET /api/v1/trading/asset/{session}", s.handleAsset)
	api.HandleFunc("GET /api/v1/trading/positions/{session}", s.handlePositions)
	api.HandleFunc("GET /api/v1/trading/orders/{session}", s.handleOrders)
	api.HandleFunc("GET /api/v1/trading/trades/{session}", s.handleTrades)
	api.HandleFunc("GET /api/v1/trading/risk/{session}", s.handleRisk)
	api.HandleFunc("GET /api/v1/trading/strategies/{session}", s.handleStrategies)
	api.HandleFunc("POST /api/v1/trading/order/{session}", s.handleSubmitOrder)
	api.HandleFunc("POST /api/v1/trading/cancel/{session}", s.handleCancelOrder)
	api.HandleFunc("POST /api/v1/trading/order-async/{session}", s.handleSubmitOrderAsync)
	api.HandleFunc("POST /api/v1/trading/cancel-async/{session}", s.handleCancelOrderAsync)

	mux.Handle("/api/v1/data/", observe(s.Logger, "data", auth(s.Config.APIKeys, api)))
	mux.Handle("/api/v1/trading/", observe(s.Logger, "trading", auth(s.Config.APIKeys, api)))

	// Push channels
	mux.HandleFunc("GET /ws/quote/{subscription_id}", s.handleQuoteStream)
	mux.HandleFunc("GET /ws/trading", s.handleTradingStream)

	return mux
}

// timeoutCtx bounds a handler with the budget of its operation class.
func (s *Server) timeoutCtx(r *http.Request, class string) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.Config.Timeout(class))
}

// Start runs the listener until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.Logger.Info().Str("addr", s.Config.HTTPAddr).Msg("HTTP server listening")
		errc <- s.httpSrv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.limiter.Stop()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// ---- operational endpoints ----

// handleHealthLive answers from the event domain only; it must stay
// responsive while vendor calls hang.
func (s *Server) handleHealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"mode":   s.Guard.Mode().String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snap := metrics.Snapshot(metrics.Counts{
		Sessions:      s.Sessions.Count(),
		Subscriptions: s.Subs.Count(),
		Streams:       s.Subs.StreamCount(),
	})
	writeJSON(w, http.StatusOK, snap)
}
