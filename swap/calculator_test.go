package swap

import (
	"math/rand/v2"
	"testing"

	"github.com/defistate/amm-pool-engine/fixedpoint"
	"github.com/defistate/amm-pool-engine/pool"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestAmountOut(t *testing.T) {
	testCases := []struct {
		name        string
		reserveIn   *uint256.Int
		reserveOut  *uint256.Int
		amountIn    *uint256.Int
		feeBps      uint16
		expected    uint64
		expectedErr error
	}{
		{
			name:      "reference swap, 0.3% fee",
			reserveIn: u(1_000_000_000), reserveOut: u(1_000_000_000), amountIn: u(100_000_000),
			feeBps: 30, expected: 90_661_089,
		},
		{
			name:      "no fee",
			reserveIn: u(1000), reserveOut: u(1000), amountIn: u(100),
			feeBps: 0, expected: 90,
		},
		{
			name:      "unbalanced reserves",
			reserveIn: u(5000), reserveOut: u(1000), amountIn: u(100),
			feeBps: 30, expected: 19,
		},
		{
			name:      "dust input rounds to zero output",
			reserveIn: u(1000), reserveOut: u(1000), amountIn: u(1),
			feeBps: 30, expected: 0,
		},
		{
			name:      "zero input",
			reserveIn: u(1000), reserveOut: u(1000), amountIn: u(0),
			feeBps: 30, expectedErr: pool.ErrInvalidAmount,
		},
		{
			name:      "nil input",
			reserveIn: u(1000), reserveOut: u(1000), amountIn: nil,
			feeBps: 30, expectedErr: pool.ErrInvalidAmount,
		},
		{
			name:      "empty reserve",
			reserveIn: u(0), reserveOut: u(1000), amountIn: u(10),
			feeBps: 30, expectedErr: pool.ErrEmptyPool,
		},
		{
			name:      "fee of 100%",
			reserveIn: u(1000), reserveOut: u(1000), amountIn: u(10),
			feeBps: 10000, expectedErr: pool.ErrInvalidFeeRate,
		},
		{
			name:      "input above max amount",
			reserveIn: u(1000), reserveOut: u(1000), amountIn: new(uint256.Int).AddUint64(fixedpoint.MaxAmount, 1),
			feeBps: 30, expectedErr: fixedpoint.ErrArithmeticOverflow,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := AmountOut(tc.reserveIn, tc.reserveOut, tc.amountIn, tc.feeBps)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				assert.Nil(t, out)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, out.Uint64())
		})
	}
}

func TestAmountOut_MaxAmountReserves(t *testing.T) {
	// (2^128-1)^2 is the largest product the engine ever forms; it must not wrap.
	out, err := AmountOut(fixedpoint.MaxAmount, fixedpoint.MaxAmount, fixedpoint.MaxAmount, 0)
	require.NoError(t, err)
	assert.Equal(t, "170141183460469231731687303715884105727", out.Dec())
	assert.True(t, out.Lt(fixedpoint.MaxAmount))
}

func TestAmountIn(t *testing.T) {
	testCases := []struct {
		name        string
		reserveIn   *uint256.Int
		reserveOut  *uint256.Int
		amountOut   *uint256.Int
		feeBps      uint16
		expected    uint64
		expectedErr error
	}{
		{
			name:      "inverse of the reference swap",
			reserveIn: u(1_000_000_000), reserveOut: u(1_000_000_000), amountOut: u(90_661_089),
			feeBps: 30, expected: 100_000_000,
		},
		{
			name:      "unbalanced reserves",
			reserveIn: u(1_000_000_000), reserveOut: u(2_000_000_000), amountOut: u(100_000_000),
			feeBps: 30, expected: 52_789_949,
		},
		{
			name:      "no fee",
			reserveIn: u(1000), reserveOut: u(1000), amountOut: u(90),
			feeBps: 0, expected: 99,
		},
		{
			name:      "smallest output",
			reserveIn: u(1000), reserveOut: u(1000), amountOut: u(1),
			feeBps: 30, expected: 3,
		},
		{
			name:      "zero output",
			reserveIn: u(1000), reserveOut: u(1000), amountOut: u(0),
			feeBps: 30, expected: 0,
		},
		{
			name:      "zero output from an empty input reserve",
			reserveIn: u(0), reserveOut: u(1000), amountOut: u(0),
			feeBps: 30, expected: 0,
		},
		{
			name:      "nil output",
			reserveIn: u(1000), reserveOut: u(1000), amountOut: nil,
			feeBps: 30, expectedErr: pool.ErrInvalidAmount,
		},
		{
			name:      "output equals reserve",
			reserveIn: u(1000), reserveOut: u(1000), amountOut: u(1000),
			feeBps: 30, expectedErr: pool.ErrInsufficientLiquidity,
		},
		{
			name:      "output above reserve",
			reserveIn: u(1000), reserveOut: u(1000), amountOut: u(5000),
			feeBps: 30, expectedErr: pool.ErrInsufficientLiquidity,
		},
		{
			name:      "empty input reserve",
			reserveIn: u(0), reserveOut: u(1000), amountOut: u(10),
			feeBps: 30, expectedErr: pool.ErrEmptyPool,
		},
		{
			name:      "required input above max amount",
			reserveIn: fixedpoint.MaxAmount, reserveOut: fixedpoint.MaxAmount,
			amountOut: new(uint256.Int).Sub(fixedpoint.MaxAmount, u(1)),
			feeBps:    0, expectedErr: fixedpoint.ErrArithmeticOverflow,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in, err := AmountIn(tc.reserveIn, tc.reserveOut, tc.amountOut, tc.feeBps)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				assert.Nil(t, in)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, in.Uint64())

			if tc.amountOut.IsZero() {
				assert.True(t, in.IsZero())
				return
			}

			// Minimality: the quoted input delivers the output, one less does not.
			out, err := AmountOut(tc.reserveIn, tc.reserveOut, in, tc.feeBps)
			require.NoError(t, err)
			assert.False(t, out.Lt(tc.amountOut))
			if in.Uint64() > 1 {
				less, err := AmountOut(tc.reserveIn, tc.reserveOut, new(uint256.Int).SubUint64(in, 1), tc.feeBps)
				require.NoError(t, err)
				assert.True(t, less.Lt(tc.amountOut))
			}
		})
	}
}

func randReserve(rng *rand.Rand) *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(rng.Uint64()|1), uint(rng.IntN(64)))
}

func TestQuoteProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 17))

	for i := 0; i < 2000; i++ {
		reserveIn := randReserve(rng)
		reserveOut := randReserve(rng)
		amountIn := new(uint256.Int).AddUint64(new(uint256.Int).Rsh(randReserve(rng), uint(rng.IntN(32))), 1)
		feeBps := uint16(rng.IntN(1000))

		out, err := AmountOut(reserveIn, reserveOut, amountIn, feeBps)
		require.NoError(t, err)
		require.True(t, out.Lt(reserveOut), "output must stay below the reserve")

		back, err := AmountIn(reserveIn, reserveOut, out, feeBps)
		require.NoError(t, err)
		if out.IsZero() {
			require.True(t, back.IsZero(), "dust input %s must quote back to zero", amountIn.Dec())
		}
		require.False(t, back.Gt(amountIn), "round trip %s -> %s -> %s", amountIn.Dec(), out.Dec(), back.Dec())
	}
}

func TestQuoteRoundTrip_DustInput(t *testing.T) {
	for _, amountIn := range []uint64{1, 2, 3} {
		out, err := AmountOut(u(1000), u(1000), u(amountIn), 30)
		require.NoError(t, err)

		back, err := AmountIn(u(1000), u(1000), out, 30)
		require.NoError(t, err)
		assert.False(t, back.Gt(u(amountIn)), "amountIn=%d out=%s back=%s", amountIn, out.Dec(), back.Dec())
	}
}

func BenchmarkAmountOut(b *testing.B) {
	reserveIn := uint256.MustFromDecimal("1000000000000000000000000")
	reserveOut := uint256.MustFromDecimal("2000000000000")
	amountIn := uint256.MustFromDecimal("1000000000000000000")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = AmountOut(reserveIn, reserveOut, amountIn, 30)
	}
}

func BenchmarkAmountIn(b *testing.B) {
	reserveIn := uint256.MustFromDecimal("1000000000000000000000000")
	reserveOut := uint256.MustFromDecimal("2000000000000")
	amountOut := uint256.NewInt(1_000_000)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = AmountIn(reserveIn, reserveOut, amountOut, 30)
	}
}
