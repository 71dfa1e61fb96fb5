package swap

import (
	"fmt"
	"sync"

	"github.com/defistate/amm-pool-engine/fixedpoint"
	"github.com/defistate/amm-pool-engine/pool"
	"github.com/holiman/uint256"
)

// Calculator holds reusable uint256 words to avoid allocations during quotes.
// Instances are NOT safe for concurrent use by themselves; they are handed out by calculatorPool.
type Calculator struct {
	// AmountOut
	feeMultiplier   *uint256.Int
	amountInWithFee *uint256.Int
	numerator       *uint256.Int
	denominator     *uint256.Int

	// AmountIn
	netOut *uint256.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			feeMultiplier:   new(uint256.Int),
			amountInWithFee: new(uint256.Int),
			numerator:       new(uint256.Int),
			denominator:     new(uint256.Int),
			netOut:          new(uint256.Int),
		}
	},
}

// AmountOut returns the output of selling amountIn against (reserveIn, reserveOut):
//
//	amountInWithFee = floor(amountIn * (10000 - feeBps) / 10000)
//	amountOut       = floor(amountInWithFee * reserveOut / (reserveIn + amountInWithFee))
//
// The result is always strictly less than reserveOut.
func AmountOut(reserveIn, reserveOut, amountIn *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.amountOut(reserveIn, reserveOut, amountIn, feeBps)
}

// AmountIn returns the smallest input whose AmountOut is at least amountOut.
// A zero amountOut quotes a zero input.
func AmountIn(reserveIn, reserveOut, amountOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.amountIn(reserveIn, reserveOut, amountOut, feeBps)
}

func checkQuoteInputs(reserveIn, reserveOut, amount *uint256.Int, feeBps uint16) error {
	if amount == nil {
		return pool.ErrInvalidAmount
	}
	if reserveIn == nil || reserveOut == nil {
		return fmt.Errorf("%w: nil reserve", pool.ErrEmptyPool)
	}
	if err := pool.ValidateFee(feeBps); err != nil {
		return err
	}
	for _, v := range []*uint256.Int{amount, reserveIn, reserveOut} {
		if err := fixedpoint.CheckAmount(v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Calculator) amountOut(reserveIn, reserveOut, amountIn *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	if err := checkQuoteInputs(reserveIn, reserveOut, amountIn, feeBps); err != nil {
		return nil, err
	}
	if amountIn.IsZero() {
		return nil, pool.ErrInvalidAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, fmt.Errorf("%w: reserveIn=%s reserveOut=%s", pool.ErrEmptyPool, reserveIn.Dec(), reserveOut.Dec())
	}

	// All operands are bounded by MaxAmount, so none of these products can wrap.
	c.feeMultiplier.SetUint64(uint64(pool.MaxFeeBps - feeBps))
	c.amountInWithFee.Mul(amountIn, c.feeMultiplier)
	c.amountInWithFee.Div(c.amountInWithFee, fixedpoint.BasisPointDivisor)

	c.numerator.Mul(c.amountInWithFee, reserveOut)
	c.denominator.Add(reserveIn, c.amountInWithFee)

	return new(uint256.Int).Div(c.numerator, c.denominator), nil
}

func (c *Calculator) amountIn(reserveIn, reserveOut, amountOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	if err := checkQuoteInputs(reserveIn, reserveOut, amountOut, feeBps); err != nil {
		return nil, err
	}
	if !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)", pool.ErrInsufficientLiquidity, amountOut.Dec(), reserveOut.Dec())
	}
	if amountOut.IsZero() {
		return new(uint256.Int), nil
	}
	if reserveIn.IsZero() {
		return nil, fmt.Errorf("%w: reserveIn is zero", pool.ErrEmptyPool)
	}

	// need = ceil(reserveIn * amountOut / (reserveOut - amountOut)) is the post-fee input required.
	c.netOut.Sub(reserveOut, amountOut)
	need, err := fixedpoint.MulDivRoundingUp(reserveIn, amountOut, c.netOut)
	if err != nil {
		return nil, err
	}

	// amountIn = ceil(need * 10000 / (10000 - feeBps)) undoes the floored fee deduction.
	c.feeMultiplier.SetUint64(uint64(pool.MaxFeeBps - feeBps))
	in, err := fixedpoint.MulDivRoundingUp(need, fixedpoint.BasisPointDivisor, c.feeMultiplier)
	if err != nil {
		return nil, err
	}
	if err := fixedpoint.CheckAmount(in); err != nil {
		return nil, fmt.Errorf("required input: %w", err)
	}
	return in, nil
}
