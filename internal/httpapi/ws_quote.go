package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/quantgate/qmt-gateway/internal/metrics"
	"github.com/quantgate/qmt-gateway/internal/qmt"
)

// quoteEnvelope is the wire shape of the quote push channel.
type quoteEnvelope struct {
	Type           string    `json:"type"` // connected | quote | heartbeat | pong | error
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Data           *qmt.Tick `json:"data,omitempty"`
	Message        string    `json:"message,omitempty"`
}

// clientMessage is the only inbound shape either channel understands.
type clientMessage struct {
	Type string `json:"type"`
}

const wsWriteWait = 10 * time.Second

func writeEnvelopeWS(conn net.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return wsutil.WriteServerMessage(conn, ws.OpText, payload)
}

// handleQuoteStream bridges one subscription's per-client queue to a
// WebSocket. The reader understands ping only; a ping stamps the
// stream heartbeat.
func (s *Server) handleQuoteStream(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.limiter.Allow(ip) {
		metrics.WSRejected.WithLabelValues("rate_limited").Inc()
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	subID := r.PathValue("subscription_id")
	stream, err := s.Subs.Attach(subID)
	if err != nil {
		metrics.WSRejected.WithLabelValues("unknown_subscription").Inc()
		writeError(w, err)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.Subs.Detach(stream)
		metrics.WSRejected.WithLabelValues("upgrade_failed").Inc()
		s.Logger.Warn().Err(err).Str("client_ip", ip).Msg("WebSocket upgrade failed")
		return
	}
	metrics.WSConnections.WithLabelValues("quote").Inc()
	s.Logger.Info().
		Str("client_ip", ip).
		Str("subscription_id", subID).
		Msg("Quote stream attached")

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
				stream.Heartbeat()
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	defer func() {
		s.Subs.Detach(stream)
		conn.Close()
	}()

	if err := writeEnvelopeWS(conn, quoteEnvelope{Type: "connected", SubscriptionID: subID}); err != nil {
		return
	}

	for {
		select {
		case <-readerDone:
			return
		case <-stream.Done():
			_ = writeEnvelopeWS(conn, quoteEnvelope{Type: "error", Message: "subscription closed"})
			return
		case <-pings:
			if err := writeEnvelopeWS(conn, quoteEnvelope{Type: "pong"}); err != nil {
				return
			}
		case ev := <-stream.C:
			env := quoteEnvelope{Type: "quote", SubscriptionID: subID, Data: &ev.Tick}
			if ev.Heartbeat {
				env = quoteEnvelope{Type: "heartbeat", SubscriptionID: subID}
			}
			if err := writeEnvelopeWS(conn, env); err != nil {
				return
			}
		}
	}
}
