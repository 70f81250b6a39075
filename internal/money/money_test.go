package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGigPrice(t *testing.T) {
	assert.Equal(t, 50.0, GigPrice(50, false))
	assert.Equal(t, 62.5, GigPrice(50, true))
	assert.Equal(t, 125.0, GigPrice(100, true))

	// Surcharge rounds to paise.
	assert.Equal(t, 41.24, GigPrice(32.99, true))
}

func TestPayoutNet(t *testing.T) {
	// The canonical 20% platform fee.
	assert.Equal(t, 40.0, PayoutNet(50, 0.20))
	assert.Equal(t, 80.0, PayoutNet(100, 0.20))

	// Zero fee passes the gross through.
	assert.Equal(t, 50.0, PayoutNet(50, 0))

	// Awkward grosses round once, at the split.
	assert.Equal(t, 26.39, PayoutNet(32.99, 0.20))
}

func TestBonus(t *testing.T) {
	assert.Equal(t, 20.0, Bonus(200, 0.10))
	assert.Equal(t, 5.0, Bonus(100, 0.05))
	assert.Equal(t, 0.0, Bonus(100, 0))

	// 0.1*0.3 in float64 is 0.030000000000000002; decimal keeps it exact.
	assert.Equal(t, 0.03, Bonus(0.1, 0.3))
}
