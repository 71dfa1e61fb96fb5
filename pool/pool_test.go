package pool

import (
	"errors"
	"fmt"
	"testing"

	"github.com/defistate/amm-pool-engine/fixedpoint"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	assetA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	assetB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func newTestPool(reserveX, reserveY, shares uint64) Pool {
	return Pool{
		ID:          NewID(assetA, assetB),
		AssetX:      assetA,
		AssetY:      assetB,
		ReserveX:    uint256.NewInt(reserveX),
		ReserveY:    uint256.NewInt(reserveY),
		TotalShares: uint256.NewInt(shares),
		FeeBps:      30,
	}
}

func TestNewID(t *testing.T) {
	ab := NewID(assetA, assetB)
	ba := NewID(assetB, assetA)

	assert.NotEqual(t, ab, ba, "ids are derived from the ordered pair")
	assert.Equal(t, ab, NewID(assetA, assetB), "ids are deterministic")
	assert.NotEqual(t, common.Hash{}, ab)
}

func TestDirection(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected Direction
	}{
		{"x->y", XToY},
		{"x", XToY},
		{"y->x", YToX},
		{"YToX", YToX},
	} {
		d, err := ParseDirection(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.expected, d)
	}

	_, err := ParseDirection("sideways")
	assert.ErrorIs(t, err, ErrInvalidDirection)

	assert.Equal(t, "x->y", XToY.String())
	assert.Equal(t, "y->x", YToX.String())
	assert.False(t, Direction(7).Valid())
}

func TestPool_ReservesAndWithReserves(t *testing.T) {
	p := newTestPool(100, 200, 141)

	in, out := p.Reserves(XToY)
	assert.Equal(t, uint64(100), in.Uint64())
	assert.Equal(t, uint64(200), out.Uint64())

	in, out = p.Reserves(YToX)
	assert.Equal(t, uint64(200), in.Uint64())
	assert.Equal(t, uint64(100), out.Uint64())

	next := p.WithReserves(YToX, uint256.NewInt(250), uint256.NewInt(80))
	assert.Equal(t, uint64(80), next.ReserveX.Uint64())
	assert.Equal(t, uint64(250), next.ReserveY.Uint64())
	assert.Equal(t, uint64(100), p.ReserveX.Uint64(), "original pool must not change")
}

func TestPool_CloneIsolation(t *testing.T) {
	p := newTestPool(100, 200, 141)
	c := p.Clone()

	assert.NotSame(t, p.ReserveX, c.ReserveX)
	assert.NotSame(t, p.ReserveY, c.ReserveY)
	assert.NotSame(t, p.TotalShares, c.TotalShares)

	c.ReserveX.AddUint64(c.ReserveX, 1)
	assert.Equal(t, uint64(100), p.ReserveX.Uint64())
}

func TestPool_Validate(t *testing.T) {
	testCases := []struct {
		name        string
		mutate      func(p *Pool)
		expectedErr error
	}{
		{
			name:   "active pool",
			mutate: func(p *Pool) {},
		},
		{
			name: "drained pool",
			mutate: func(p *Pool) {
				p.ReserveX, p.ReserveY, p.TotalShares = new(uint256.Int), new(uint256.Int), new(uint256.Int)
			},
		},
		{
			name:        "shares without reserves",
			mutate:      func(p *Pool) { p.ReserveX, p.ReserveY = new(uint256.Int), new(uint256.Int) },
			expectedErr: ErrInvariantViolation,
		},
		{
			name:        "one-sided reserves",
			mutate:      func(p *Pool) { p.ReserveY = new(uint256.Int) },
			expectedErr: ErrInvariantViolation,
		},
		{
			name:        "reserves without shares",
			mutate:      func(p *Pool) { p.TotalShares = new(uint256.Int) },
			expectedErr: ErrInvariantViolation,
		},
		{
			name:        "fee of 100%",
			mutate:      func(p *Pool) { p.FeeBps = MaxFeeBps },
			expectedErr: ErrInvalidFeeRate,
		},
		{
			name:        "reserve above max amount",
			mutate:      func(p *Pool) { p.ReserveX = new(uint256.Int).AddUint64(fixedpoint.MaxAmount, 1) },
			expectedErr: fixedpoint.ErrArithmeticOverflow,
		},
		{
			name:        "id does not match pair",
			mutate:      func(p *Pool) { p.ID = NewID(assetB, assetA) },
			expectedErr: ErrInvariantViolation,
		},
		{
			name:        "nil quantities",
			mutate:      func(p *Pool) { p.TotalShares = nil },
			expectedErr: ErrInvariantViolation,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPool(1_000, 4_000, 2_000)
			tc.mutate(&p)
			err := p.Validate()
			if tc.expectedErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	p := newTestPool(1_000, 4_000, 2_000)
	p.ReserveX = uint256.MustFromDecimal("340282366920938463463374607431768211455") // MaxAmount

	rec := p.Record()
	assert.Equal(t, "340282366920938463463374607431768211455", rec.ReserveX)
	assert.Equal(t, p.ID.Hex(), rec.ID)

	back, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, p.ID, back.ID)
	assert.True(t, p.ReserveX.Eq(back.ReserveX))
	assert.True(t, p.TotalShares.Eq(back.TotalShares))
	assert.Equal(t, p.FeeBps, back.FeeBps)

	rec.ReserveY = "-5"
	_, err = FromRecord(rec)
	assert.Error(t, err)

	rec = p.Record()
	rec.TotalShares = "0"
	_, err = FromRecord(rec)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestKindOf(t *testing.T) {
	testCases := []struct {
		err      error
		expected Kind
	}{
		{fmt.Errorf("wrapped: %w", ErrPoolNotFound), KindValidation},
		{ErrInvalidAmount, KindValidation},
		{fixedpoint.ErrDivisionByZero, KindArithmetic},
		{fmt.Errorf("%w: big", fixedpoint.ErrArithmeticOverflow), KindArithmetic},
		{NewSlippageError("amountOut", uint256.NewInt(1), uint256.NewInt(2)), KindEconomic},
		{ErrEmptyPool, KindEconomic},
		{ErrInvariantViolation, KindInternal},
		{errors.New("disk full"), KindUnknown},
		{nil, KindUnknown},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, KindOf(tc.err), "%v", tc.err)
	}
	assert.Equal(t, "economic", KindEconomic.String())
}

func TestSlippageError(t *testing.T) {
	computed := uint256.NewInt(90)
	err := NewSlippageError("amountOut", computed, uint256.NewInt(100))
	computed.SetUint64(0)

	require.ErrorIs(t, err, ErrSlippageExceeded)

	var se *SlippageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "amountOut", se.Quantity)
	assert.Equal(t, uint64(90), se.Computed.Uint64(), "error keeps its own copy")
	assert.Equal(t, uint64(100), se.Limit.Uint64())
	assert.Contains(t, err.Error(), "computed 90, limit 100")
}
