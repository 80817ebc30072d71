package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/quantgate/qmt-gateway/internal/gwerr"
)

// Envelope is the ad-hoc endpoint response shape.
type Envelope struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// httpStatus maps an error kind to its HTTP status.
func httpStatus(err error) int {
	switch gwerr.KindOf(err) {
	case gwerr.InvalidArgument:
		return http.StatusBadRequest
	case gwerr.Unauthenticated:
		return http.StatusUnauthorized
	case gwerr.SessionNotFound, gwerr.ModeRefused:
		return http.StatusBadRequest
	case gwerr.SubscriptionNotFound:
		return http.StatusNotFound
	case gwerr.Timeout:
		return http.StatusGatewayTimeout
	case gwerr.UpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData returns a bare DTO for typed endpoints.
func writeData(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

// writeEnvelope wraps the DTO for ad-hoc endpoints.
func writeEnvelope(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Code: 0, Data: v})
}

// writeError maps a kinded error once at the boundary.
func writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	body := Envelope{Success: false, Code: status, Message: err.Error()}
	var ge *gwerr.Error
	if gwerr.IsKind(err, gwerr.VendorError) {
		if e, ok := err.(*gwerr.Error); ok {
			ge = e
		}
	}
	if ge != nil {
		body.Data = map[string]any{"vendor_code": ge.Code}
	}
	writeJSON(w, status, body)
}

// decode parses the JSON request body.
func decode(r *http.Request, op string, v any) error {
	if r.Body == nil {
		return gwerr.New(gwerr.InvalidArgument, op, "request body is required")
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return gwerr.Wrap(gwerr.InvalidArgument, op, err)
	}
	return nil
}
