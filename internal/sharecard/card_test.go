package sharecard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/proestever/FRENKABALv1-sub005/internal/entity"
)

func TestTopHoldings(t *testing.T) {
	t.Parallel()

	tokens := []entity.Token{
		{Symbol: "A", Value: 5},
		{Symbol: "B", Value: 50},
		{Symbol: "C", Value: 1},
		{Symbol: "D", Value: 20},
		{Symbol: "E", Value: 10},
	}

	top := topHoldings(tokens, 3)
	assert.Equal(t, []string{"B", "D", "E"}, []string{top[0].Symbol, top[1].Symbol, top[2].Symbol})

	// Input order is untouched.
	assert.Equal(t, "A", tokens[0].Symbol)

	assert.Len(t, topHoldings(tokens, 10), 5)
	assert.Empty(t, topHoldings(nil, 4))
}

func TestShortenAddress(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0xabc000...000001", shortenAddress("0xabc0000000000000000000000000000000000001"))
	assert.Equal(t, "0xshort", shortenAddress("0xshort"))
}

func TestFormatUSD(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "$0.00", formatUSD(0))
	assert.Equal(t, "$12.34", formatUSD(12.34))
	assert.Equal(t, "$1.50K", formatUSD(1500))
	assert.Equal(t, "$2.35M", formatUSD(2345678))
}
