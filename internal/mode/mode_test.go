package mode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for in, want := range map[string]Mode{
		"sim":     SIM,
		"SIM":     SIM,
		"live_ro": LiveRO,
		"live_rw": LiveRW,
		" live_rw ": LiveRW,
	} {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := Parse("production")
	assert.Error(t, err)
}

func TestGuardSIM(t *testing.T) {
	g := NewGuard(SIM)
	assert.Equal(t, Simulate, g.Check("trading.get_asset"))
	assert.Equal(t, Simulate, g.Check("trading.submit_order"))
}

func TestGuardLiveRO(t *testing.T) {
	g := NewGuard(LiveRO)
	assert.Equal(t, Allow, g.Check("trading.get_positions"))
	assert.Equal(t, Allow, g.Check("data.market_data"))
	assert.Equal(t, SimulateRefused, g.Check("trading.submit_order"))
	assert.Equal(t, SimulateRefused, g.Check("trading.cancel_order_async"))
}

func TestGuardLiveRW(t *testing.T) {
	g := NewGuard(LiveRW)
	assert.Equal(t, Allow, g.Check("trading.submit_order"))
	assert.Equal(t, Allow, g.Check("trading.get_orders"))
}

func TestUnregisteredOpsDefaultToRead(t *testing.T) {
	assert.Equal(t, Read, ClassOf("data.holidays"))
	assert.Equal(t, Mutate, ClassOf("trading.submit_order_async"))
}
