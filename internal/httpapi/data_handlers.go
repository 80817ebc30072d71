package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/quantgate/qmt-gateway/internal/data"
	"github.com/quantgate/qmt-gateway/internal/gwerr"
	"github.com/quantgate/qmt-gateway/internal/subscription"
)

// Data endpoints use the {success, code, message, data} envelope.

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	var req data.MarketDataRequest
	if err := decode(r, "data.market_data", &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.timeoutCtx(r, "market_data")
	defer cancel()
	rows, err := s.Data.MarketData(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, rows)
}

func (s *Server) handleLocalData(w http.ResponseWriter, r *http.Request) {
	var req data.MarketDataRequest
	if err := decode(r, "data.local_data", &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.timeoutCtx(r, "market_data")
	defer cancel()
	rows, err := s.Data.LocalData(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, rows)
}

func (s *Server) handleFullKline(w http.ResponseWriter, r *http.Request) {
	var req data.MarketDataRequest
	if err := decode(r, "data.full_kline", &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.timeoutCtx(r, "market_data")
	defer cancel()
	rows, err := s.Data.FullKline(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, rows)
}

func (s *Server) handleFinancialData(w http.ResponseWriter, r *http.Request) {
	var req data.FinancialDataRequest
	if err := decode(r, "data.financial_data", &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.timeoutCtx(r, "financial_data")
	defer cancel()
	tables, err := s.Data.FinancialData(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, tables)
}

func (s *Server) handleSectorList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	names, err := s.Data.SectorList(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, names)
}

func (s *Server) handleSectorMembers(w http.ResponseWriter, r *http.Request) {
	var req data.SectorRequest
	if err := decode(r, "data.sector_members", &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	codes, err := s.Data.SectorMembers(ctx, req.Sector)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, codes)
}

// sectorWrite factors the six sector mutation endpoints.
func (s *Server) sectorWrite(w http.ResponseWriter, r *http.Request, op string, fn func(r data.SectorRequest) error) {
	var req data.SectorRequest
	if err := decode(r, op, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := fn(req); err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, map[string]string{"sector": req.Sector})
}

func (s *Server) handleSectorCreateFolder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	s.sectorWrite(w, r, "data.sector_create_folder", func(req data.SectorRequest) error {
		return s.Data.SectorCreateFolder(ctx, req)
	})
}

func (s *Server) handleSectorCreate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	s.sectorWrite(w, r, "data.sector_create", func(req data.SectorRequest) error {
		return s.Data.SectorCreate(ctx, req)
	})
}

func (s *Server) handleSectorAddStocks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	s.sectorWrite(w, r, "data.sector_add_stocks", func(req data.SectorRequest) error {
		return s.Data.SectorAddStocks(ctx, req)
	})
}

func (s *Server) handleSectorRemoveStocks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	s.sectorWrite(w, r, "data.sector_remove_stocks", func(req data.SectorRequest) error {
		return s.Data.SectorRemoveStocks(ctx, req)
	})
}

func (s *Server) handleSectorRemove(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	s.sectorWrite(w, r, "data.sector_remove", func(req data.SectorRequest) error {
		return s.Data.SectorRemove(ctx, req)
	})
}

func (s *Server) handleSectorReset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	s.sectorWrite(w, r, "data.sector_reset", func(req data.SectorRequest) error {
		return s.Data.SectorReset(ctx, req)
	})
}

func (s *Server) handleIndexWeight(w http.ResponseWriter, r *http.Request) {
	var req data.IndexWeightRequest
	if err := decode(r, "data.index_weight", &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	weights, err := s.Data.IndexWeight(ctx, req.IndexCode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, weights)
}

func (s *Server) handleTradingCalendar(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		writeError(w, gwerr.Wrap(gwerr.InvalidArgument, "data.trading_calendar", err))
		return
	}
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	days, err := s.Data.TradingCalendar(ctx, year)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, days)
}

func (s *Server) handleInstrumentDetail(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	detail, err := s.Data.InstrumentDetail(ctx, r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, detail)
}

func (s *Server) handleInstrumentType(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	types, err := s.Data.InstrumentType(ctx, r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, types)
}

func (s *Server) handleHolidays(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	days, err := s.Data.Holidays(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, days)
}

func (s *Server) handlePeriodList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	periods, err := s.Data.PeriodList(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, periods)
}

func (s *Server) handleIPOInfo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	info, err := s.Data.IPOInfo(ctx, r.URL.Query().Get("market"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, info)
}

func (s *Server) handleCBInfo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	info, err := s.Data.CBInfo(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, info)
}

func (s *Server) handleETFInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.Data.ETFInfo(r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, info)
}

func (s *Server) handleDataDir(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "default")
	defer cancel()
	info, err := s.Data.DataDir(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, info)
}

func (s *Server) handleFullTick(w http.ResponseWriter, r *http.Request) {
	var req data.CodesRequest
	if err := decode(r, "data.full_tick", &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.timeoutCtx(r, "market_data")
	defer cancel()
	ticks, err := s.Data.FullTick(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, ticks)
}

func (s *Server) handleDividFactors(w http.ResponseWriter, r *http.Request) {
	var req data.CodesRequest
	if err := decode(r, "data.divid_factors", &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.timeoutCtx(r, "market_data")
	defer cancel()
	rows, err := s.Data.DividFactors(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, rows)
}

func (s *Server) handleL2Quote(w http.ResponseWriter, r *http.Request) {
	s.l2Handler(w, r, "data.l2_quote", s.Data.L2Quote)
}

func (s *Server) handleL2Order(w http.ResponseWriter, r *http.Request) {
	s.l2Handler(w, r, "data.l2_order", s.Data.L2Order)
}

func (s *Server) handleL2Transaction(w http.ResponseWriter, r *http.Request) {
	s.l2Handler(w, r, "data.l2_transaction", s.Data.L2Transaction)
}

func (s *Server) l2Handler(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, data.CodesRequest) ([]data.SymbolRows, error)) {
	var req data.CodesRequest
	if err := decode(r, op, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.timeoutCtx(r, "market_data")
	defer cancel()
	rows, err := fn(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, rows)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	var req data.DownloadRequest
	if err := decode(r, "data.download", &req); err != nil {
		writeError(w, err)
		return
	}
	task, err := s.Data.Download(kind, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, task)
}

// ---- quote subscriptions ----

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscription.SubscribeRequest
	if err := decode(r, "data.subscribe", &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.timeoutCtx(r, "subscription")
	defer cancel()
	info, err := s.Subs.Subscribe(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, info)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "subscription")
	defer cancel()
	removed, err := s.Subs.Unsubscribe(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, map[string]bool{"removed": removed})
}

func (s *Server) handleSubscriptionInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.Subs.Info(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeEnvelope(w, info)
}

func (s *Server) handleSubscriptionList(w http.ResponseWriter, _ *http.Request) {
	writeEnvelope(w, s.Subs.List())
}
