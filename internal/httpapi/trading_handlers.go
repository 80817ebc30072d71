package httpapi

import (
	"net/http"

	"github.com/quantgate/qmt-gateway/internal/trading"
)

// Trading endpoints are typed: they return the bare DTO.

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req trading.ConnectRequest
	if err := decode(r, "trading.connect", &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.timeoutCtx(r, "trading")
	defer cancel()
	resp, err := s.Trading.Connect(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, resp)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "trading")
	defer cancel()
	resp, err := s.Trading.Disconnect(ctx, r.PathValue("session"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, resp)
}

func (s *Server) handleTradingStatus(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.Trading.Status(r.PathValue("session")))
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	info, err := s.Trading.GetAccount(r.PathValue("session"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, info)
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "trading")
	defer cancel()
	asset, err := s.Trading.GetAsset(ctx, r.PathValue("session"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, asset)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "trading")
	defer cancel()
	positions, err := s.Trading.GetPositions(ctx, r.PathValue("session"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, positions)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "trading")
	defer cancel()
	orders, err := s.Trading.GetOrders(ctx, r.PathValue("session"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, orders)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "trading")
	defer cancel()
	trades, err := s.Trading.GetTrades(ctx, r.PathValue("session"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, trades)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "trading")
	defer cancel()
	risk, err := s.Trading.GetRisk(ctx, r.PathValue("session"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, risk)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.timeoutCtx(r, "trading")
	defer cancel()
	names, err := s.Trading.GetStrategies(ctx, r.PathValue("session"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, names)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req trading.OrderRequest
	if err := decode(r, "trading.submit_order", &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.timeoutCtx(r, "trading")
	defer cancel()
	resp, err := s.Trading.SubmitOrder(ctx, r.PathValue("session"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, resp)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req trading.CancelRequest
	if err := decode(r, "trading.cancel_order", &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.timeoutCtx(r, "trading")
	defer cancel()
	resp, err := s.Trading.CancelOrder(ctx, r.PathValue("session"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, resp)
}

func (s *Server) handleSubmitOrderAsync(w http.ResponseWriter, r *http.Request) {
	var req trading.OrderRequest
	if err := decode(r, "trading.submit_order_async", &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.timeoutCtx(r, "trading")
	defer cancel()
	resp, err := s.Trading.SubmitOrderAsync(ctx, r.PathValue("session"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, resp)
}

func (s *Server) handleCancelOrderAsync(w http.ResponseWriter, r *http.Request) {
	var req trading.CancelRequest
	if err := decode(r, "trading.cancel_order_async", &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.timeoutCtx(r, "trading")
	defer cancel()
	resp, err := s.Trading.CancelOrderAsync(ctx, r.PathValue("session"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, resp)
}
