package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curatorops/signalrun/internal/curation"
)

func TestCompare_MoveWhenRankOneDiffers(t *testing.T) {
	positions := []curation.Position{
		{ID: "QmHeld", APR: 12.3456},
	}
	market := []curation.Opportunity{
		{ID: "QmBetter", APR: 98.7654},
	}

	suggestions := Compare(positions, market, 5)
	require.Len(t, suggestions, 1)

	s := suggestions[0]
	assert.Equal(t, 1, s.Rank)
	assert.Equal(t, KindMove, s.Kind)
	assert.Equal(t, "QmHeld", s.FromID)
	assert.Equal(t, "QmBetter", s.ToID)
	assert.InDelta(t, 12.3456, s.FromAPR, 1e-9)
	assert.InDelta(t, 98.7654, s.ToAPR, 1e-9)
}

func TestCompare_IncreaseWhenSameIDHigherMarketAPR(t *testing.T) {
	positions := []curation.Position{
		{ID: "QmSame", APR: 10},
	}
	market := []curation.Opportunity{
		{ID: "QmSame", APR: 25},
	}

	suggestions := Compare(positions, market, 5)
	require.Len(t, suggestions, 1)
	assert.Equal(t, KindIncrease, suggestions[0].Kind)
	assert.Equal(t, "QmSame", suggestions[0].FromID)
	assert.Equal(t, "QmSame", suggestions[0].ToID)
}

func TestCompare_SilentWhenHeldAPRNotBelowMarket(t *testing.T) {
	positions := []curation.Position{
		{ID: "QmSame", APR: 30},
	}
	market := []curation.Opportunity{
		{ID: "QmSame", APR: 30},
	}

	assert.Empty(t, Compare(positions, market, 5))
}

func TestCompare_PositionalAlignment(t *testing.T) {
	// Same two deployments on both sides but swapped ranks: positional
	// comparison emits a move for every slot, not a no-op.
	positions := []curation.Position{
		{ID: "QmA", APR: 50},
		{ID: "QmB", APR: 40},
	}
	market := []curation.Opportunity{
		{ID: "QmB", APR: 60},
		{ID: "QmA", APR: 55},
	}

	suggestions := Compare(positions, market, 5)
	require.Len(t, suggestions, 2)
	assert.Equal(t, KindMove, suggestions[0].Kind)
	assert.Equal(t, 1, suggestions[0].Rank)
	assert.Equal(t, KindMove, suggestions[1].Kind)
	assert.Equal(t, 2, suggestions[1].Rank)
}

func TestCompare_TopNLimitsMarketSide(t *testing.T) {
	positions := []curation.Position{
		{ID: "QmA", APR: 1},
		{ID: "QmB", APR: 1},
		{ID: "QmC", APR: 1},
	}
	market := []curation.Opportunity{
		{ID: "QmA", APR: 1},
		{ID: "QmB", APR: 1},
		{ID: "QmX", APR: 99},
	}

	suggestions := Compare(positions, market, 2)
	assert.Empty(t, suggestions, "third slot is outside top-2 and must not be compared")
}

func TestCompare_EmptyInputs(t *testing.T) {
	assert.Empty(t, Compare(nil, nil, 5))
	assert.Empty(t, Compare(nil, []curation.Opportunity{{ID: "QmA"}}, 5))
	assert.Empty(t, Compare([]curation.Position{{ID: "QmA"}}, nil, 5))
}
