package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/quantgate/qmt-gateway/internal/callback"
	"github.com/quantgate/qmt-gateway/internal/metrics"
)

// tradingEnvelope is the wire shape of the trading push channel.
type tradingEnvelope struct {
	Type    string            `json:"type"` // connected | history | callback | heartbeat | pong | error
	Account string            `json:"account_id,omitempty"`
	Data    *callback.Record  `json:"data,omitempty"`
	History []callback.Record `json:"history,omitempty"`
	Message string            `json:"message,omitempty"`
}

// handleTradingStream bridges the callback dispatcher to a WebSocket.
// The optional account_id query narrows delivery to one account; a
// heartbeat envelope is synthesised after an idle interval.
func (s *Server) handleTradingStream(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.limiter.Allow(ip) {
		metrics.WSRejected.WithLabelValues("rate_limited").Inc()
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	accountID := r.URL.Query().Get("account_id")
	sub, history := s.Dispatcher.Subscribe(accountID)

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.Dispatcher.Unsubscribe(sub)
		metrics.WSRejected.WithLabelValues("upgrade_failed").Inc()
		s.Logger.Warn().Err(err).Str("client_ip", ip).Msg("WebSocket upgrade failed")
		return
	}
	metrics.WSConnections.WithLabelValues("trading").Inc()
	s.Logger.Info().
		Str("client_ip", ip).
		Str("account_id", accountID).
		Msg("Trading stream attached")

	pings := make(chan struct{}, 4)
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		for {
			payload, err := wsutil.ReadClientText(conn)
			if err != nil {
				return
			}
			var msg clientMessage
			if json.Unmarshal(payload, &msg) == nil && msg.Type == "ping" {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	defer func() {
		s.Dispatcher.Unsubscribe(sub)
		conn.Close()
	}()

	if err := writeEnvelopeWS(conn, tradingEnvelope{Type: "connected", Account: accountID}); err != nil {
		return
	}
	if err := writeEnvelopeWS(conn, tradingEnvelope{Type: "history", Account: accountID, History: history}); err != nil {
		return
	}

	idle := time.NewTimer(s.Config.HeartbeatInterval)
	defer idle.Stop()

	for {
		select {
		case <-readerDone:
			return
		case <-pings:
			if err := writeEnvelopeWS(conn, tradingEnvelope{Type: "pong"}); err != nil {
				return
			}
		case rec, ok := <-sub.C:
			if !ok {
				_ = writeEnvelopeWS(conn, tradingEnvelope{Type: "error", Message: "dispatcher closed"})
				return
			}
			if err := writeEnvelopeWS(conn, tradingEnvelope{Type: "callback", Account: rec.AccountID, Data: &rec}); err != nil {
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.Config.HeartbeatInterval)
		case <-idle.C:
			if err := writeEnvelopeWS(conn, tradingEnvelope{Type: "heartbeat"}); err != nil {
				return
			}
			idle.Reset(s.Config.HeartbeatInterval)
		}
	}
}
