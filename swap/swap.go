package swap

import (
	"fmt"

	"github.com/defistate/amm-pool-engine/fixedpoint"
	"github.com/defistate/amm-pool-engine/pool"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// RatePrecision is the number of decimal places ExchangeRate rounds to.
const RatePrecision = 18

// Result is the outcome of a swap transition. Pool is the new state; the input pool is untouched.
type Result struct {
	Pool      pool.Pool
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
}

// Swap sells exactly amountIn of the direction's input asset. A nil minAmountOut means no bound.
func Swap(p pool.Pool, dir pool.Direction, amountIn, minAmountOut *uint256.Int) (Result, error) {
	if !dir.Valid() {
		return Result{}, fmt.Errorf("%w: %s", pool.ErrInvalidDirection, dir)
	}

	reserveIn, reserveOut := p.Reserves(dir)
	amountOut, err := AmountOut(reserveIn, reserveOut, amountIn, p.FeeBps)
	if err != nil {
		return Result{}, err
	}
	if minAmountOut != nil && amountOut.Lt(minAmountOut) {
		return Result{}, pool.NewSlippageError("amountOut", amountOut, minAmountOut)
	}

	return settle(p, dir, amountIn, amountOut)
}

// SwapExactOut buys exactly amountOut of the direction's output asset, charging the minimal input.
// A nil maxAmountIn means no bound.
func SwapExactOut(p pool.Pool, dir pool.Direction, amountOut, maxAmountIn *uint256.Int) (Result, error) {
	if !dir.Valid() {
		return Result{}, fmt.Errorf("%w: %s", pool.ErrInvalidDirection, dir)
	}

	if amountOut == nil || amountOut.IsZero() {
		return Result{}, pool.ErrInvalidAmount
	}

	reserveIn, reserveOut := p.Reserves(dir)
	amountIn, err := AmountIn(reserveIn, reserveOut, amountOut, p.FeeBps)
	if err != nil {
		return Result{}, err
	}
	if maxAmountIn != nil && amountIn.Gt(maxAmountIn) {
		return Result{}, pool.NewSlippageError("amountIn", amountIn, maxAmountIn)
	}

	return settle(p, dir, amountIn, amountOut)
}

// settle moves amountIn into and amountOut out of the pool and checks the post-conditions.
func settle(p pool.Pool, dir pool.Direction, amountIn, amountOut *uint256.Int) (Result, error) {
	reserveIn, reserveOut := p.Reserves(dir)

	newReserveIn, err := fixedpoint.Add(reserveIn, amountIn)
	if err != nil {
		return Result{}, err
	}
	newReserveOut, err := fixedpoint.Sub(reserveOut, amountOut)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", pool.ErrInvariantViolation, err)
	}

	next := p.WithReserves(dir, newReserveIn, newReserveOut)
	if next.K().Lt(p.K()) {
		return Result{}, fmt.Errorf("%w: product decreased from %s to %s", pool.ErrInvariantViolation, p.K().Dec(), next.K().Dec())
	}
	if err := next.Validate(); err != nil {
		return Result{}, err
	}

	return Result{
		Pool:      next,
		AmountIn:  fixedpoint.Clone(amountIn),
		AmountOut: amountOut,
	}, nil
}

// ExchangeRate returns the marginal price reserveOut / reserveIn, before fees, rounded to
// RatePrecision places. It is for display; settlement never uses it.
func ExchangeRate(p pool.Pool, dir pool.Direction) (decimal.Decimal, error) {
	if !dir.Valid() {
		return decimal.Zero, fmt.Errorf("%w: %s", pool.ErrInvalidDirection, dir)
	}
	reserveIn, reserveOut := p.Reserves(dir)
	if reserveIn == nil || reserveOut == nil || reserveIn.IsZero() || reserveOut.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: pool %s", pool.ErrEmptyPool, p.ID.Hex())
	}

	in := decimal.NewFromBigInt(reserveIn.ToBig(), 0)
	out := decimal.NewFromBigInt(reserveOut.ToBig(), 0)
	return out.DivRound(in, RatePrecision), nil
}

// EffectivePrice returns amountOut / amountIn of an executed or quoted trade, the realized rate
// including fee and price impact.
func EffectivePrice(amountIn, amountOut *uint256.Int) (decimal.Decimal, error) {
	if amountIn == nil || amountIn.IsZero() || amountOut == nil {
		return decimal.Zero, pool.ErrInvalidAmount
	}
	return decimal.NewFromBigInt(amountOut.ToBig(), 0).DivRound(decimal.NewFromBigInt(amountIn.ToBig(), 0), RatePrecision), nil
}
