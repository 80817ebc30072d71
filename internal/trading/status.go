package trading

import "github.com/quantgate/qmt-gateway/internal/qmt"

// Order status names surfaced to clients.
const (
	StatusPending       = "PENDING"
	StatusSubmitted     = "SUBMITTED"
	StatusPartialFilled = "PARTIAL_FILLED"
	StatusFilled        = "FILLED"
	StatusCancelled     = "CANCELLED"
	StatusRejected      = "REJECTED"
)

// StatusFromCode maps a raw vendor order-status code to the client
// status name. Unknown codes collapse to PENDING.
func StatusFromCode(code int) string {
	switch code {
	case qmt.OrderUnreported:
		return StatusPending
	case qmt.OrderWaitReporting, qmt.OrderReported, qmt.OrderReportedCancel:
		return StatusSubmitted
	case qmt.OrderPartsuccCancel, qmt.OrderPartCancel, qmt.OrderPartSucc:
		return StatusPartialFilled
	case qmt.OrderCancelled:
		return StatusCancelled
	case qmt.OrderSucceeded:
		return StatusFilled
	case qmt.OrderJunk:
		return StatusRejected
	default:
		return StatusPending
	}
}
