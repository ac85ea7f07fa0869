package money_test

import (
	"testing"

	"github.com/atolpos/atolpos/pkg/money"
	"github.com/stretchr/testify/assert"
)

func TestPercentBasisPoints(t *testing.T) {
	assert.Equal(t, int64(2000), money.Percent(10000, 2000))
	assert.Equal(t, int64(800), money.Percent(10000, 800))
	assert.Equal(t, int64(0), money.Percent(10000, 0))
	assert.Equal(t, int64(0), money.Percent(-50, 1000))

	// truncation, never rounding up
	assert.Equal(t, int64(33), money.Percent(999, 333))
}

func TestCap(t *testing.T) {
	assert.Equal(t, int64(500), money.Cap(500, 1000))
	assert.Equal(t, int64(1000), money.Cap(1500, 1000))
	assert.Equal(t, int64(0), money.Cap(-10, 1000))
}

func TestClampZero(t *testing.T) {
	assert.Equal(t, int64(0), money.ClampZero(-1))
	assert.Equal(t, int64(42), money.ClampZero(42))
}

func TestDecimalMirror(t *testing.T) {
	assert.Equal(t, 88.0, money.ToDecimal(8800))
	assert.Equal(t, int64(8800), money.FromDecimal(88.00))
	assert.Equal(t, int64(1234), money.FromDecimal(12.34))

	// 1.125 is exactly representable in binary, so the half rounds away
	// from zero
	assert.Equal(t, int64(113), money.FromDecimal(1.125))
	assert.Equal(t, int64(-113), money.FromDecimal(-1.125))
}
