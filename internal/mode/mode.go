// Package mode enforces the SIM / LIVE_RO / LIVE_RW operational policy.
// The mode is fixed at startup.
package mode

import (
	"fmt"
	"strings"
)

// Mode is the process-wide operational mode.
type Mode int

const (
	SIM Mode = iota
	LiveRO
	LiveRW
)

// Parse maps the APP_MODE value to a Mode.
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sim":
		return SIM, nil
	case "live_ro":
		return LiveRO, nil
	case "live_rw":
		return LiveRW, nil
	default:
		return SIM, fmt.Errorf("unknown mode %q", s)
	}
}

func (m Mode) String() string {
	switch m {
	case LiveRO:
		return "live_ro"
	case LiveRW:
		return "live_rw"
	default:
		return "sim"
	}
}

// Live reports whether a vendor core is attached.
func (m Mode) Live() bool { return m != SIM }

// Class is the static read/mutate classification of an operation.
type Class int

const (
	Read Class = iota
	Mutate
)

// Decision is the guard's verdict for one operation.
type Decision int

const (
	// Allow runs the real vendor call.
	Allow Decision = iota
	// Simulate uses the synthetic generator.
	Simulate
	// SimulateRefused simulates and annotates the response with a
	// mode_refused diagnostic so callers can tell it apart.
	SimulateRefused
)

// ops is the static operation registry. Every trading and data
// operation routed through the guard appears here.
var ops = map[string]Class{
	// trading reads
	"trading.connect":        Read,
	"trading.disconnect":     Read,
	"trading.get_account":    Read,
	"trading.is_connected":   Read,
	"trading.get_asset":      Read,
	"trading.get_positions":  Read,
	"trading.get_orders":     Read,
	"trading.get_trades":     Read,
	"trading.get_risk":       Read,
	"trading.get_strategies": Read,

	// trading mutations
	"trading.submit_order":       Mutate,
	"trading.cancel_order":       Mutate,
	"trading.submit_order_async": Mutate,
	"trading.cancel_order_async": Mutate,
}

// ClassOf returns the registered class for op. Unregistered ops
// (the data service surface) default to Read.
func ClassOf(op string) Class {
	if c, ok := ops[op]; ok {
		return c
	}
	return Read
}

// Guard applies the mode policy to classified operations.
type Guard struct {
	mode Mode
}

func NewGuard(m Mode) *Guard { return &Guard{mode: m} }

func (g *Guard) Mode() Mode { return g.mode }

// Check returns the verdict for one operation name.
func (g *Guard) Check(op string) Decision {
	switch g.mode {
	case SIM:
		return Simulate
	case LiveRO:
		if ClassOf(op) == Mutate {
			return SimulateRefused
		}
		return Allow
	default:
		return Allow
	}
}
