package liquidity

import (
	"fmt"

	"github.com/defistate/amm-pool-engine/fixedpoint"
	"github.com/defistate/amm-pool-engine/pool"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AddResult is the outcome of a deposit. AmountX and AmountY are what the pool actually took;
// any excess over the desired amounts stays with the caller.
type AddResult struct {
	Pool    pool.Pool
	Shares  *uint256.Int
	AmountX *uint256.Int
	AmountY *uint256.Int
}

// RemoveResult is the outcome of burning shares.
type RemoveResult struct {
	Pool    pool.Pool
	Shares  *uint256.Int
	AmountX *uint256.Int
	AmountY *uint256.Int
}

func requireAmount(name string, v *uint256.Int) error {
	if v == nil || v.IsZero() {
		return fmt.Errorf("%w: %s must be positive", pool.ErrInvalidAmount, name)
	}
	return fixedpoint.CheckAmount(v)
}

// InitialShares returns floor(sqrt(amountX * amountY)), the shares minted by the first deposit
// into an empty pool.
func InitialShares(amountX, amountY *uint256.Int) (*uint256.Int, error) {
	if err := requireAmount("amountX", amountX); err != nil {
		return nil, err
	}
	if err := requireAmount("amountY", amountY); err != nil {
		return nil, err
	}

	// Both factors are <= MaxAmount, so the product fits in 256 bits.
	shares := fixedpoint.Sqrt(new(uint256.Int).Mul(amountX, amountY))
	if shares.IsZero() {
		return nil, fmt.Errorf("%w: sqrt(%s * %s) is zero", pool.ErrInsufficientInitialLiquidity, amountX.Dec(), amountY.Dec())
	}
	return shares, nil
}

// Create builds a new active pool for the ordered pair (assetX, assetY) funded with the given amounts.
func Create(assetX, assetY common.Address, amountX, amountY *uint256.Int, feeBps uint16) (pool.Pool, error) {
	if err := requireAmount("amountX", amountX); err != nil {
		return pool.Pool{}, err
	}
	if err := requireAmount("amountY", amountY); err != nil {
		return pool.Pool{}, err
	}
	if assetX == assetY {
		return pool.Pool{}, fmt.Errorf("%w: %s", pool.ErrIdenticalAssets, assetX.Hex())
	}
	if err := pool.ValidateFee(feeBps); err != nil {
		return pool.Pool{}, err
	}

	shares, err := InitialShares(amountX, amountY)
	if err != nil {
		return pool.Pool{}, err
	}

	p := pool.Pool{
		ID:          pool.NewID(assetX, assetY),
		AssetX:      assetX,
		AssetY:      assetY,
		ReserveX:    fixedpoint.Clone(amountX),
		ReserveY:    fixedpoint.Clone(amountY),
		TotalShares: shares,
		FeeBps:      feeBps,
	}
	if err := p.Validate(); err != nil {
		return pool.Pool{}, err
	}
	return p, nil
}

// AddLiquidity deposits up to (amountXDesired, amountYDesired) at the pool's current ratio.
// A drained pool is refunded with initial-funding semantics. A nil minShares means no bound.
func AddLiquidity(p pool.Pool, amountXDesired, amountYDesired, minShares *uint256.Int) (AddResult, error) {
	if err := requireAmount("amountXDesired", amountXDesired); err != nil {
		return AddResult{}, err
	}
	if err := requireAmount("amountYDesired", amountYDesired); err != nil {
		return AddResult{}, err
	}

	var shares, amountX, amountY *uint256.Int
	if p.IsDrained() {
		initial, err := InitialShares(amountXDesired, amountYDesired)
		if err != nil {
			return AddResult{}, err
		}
		shares = initial
		amountX = fixedpoint.Clone(amountXDesired)
		amountY = fixedpoint.Clone(amountYDesired)
	} else {
		var err error
		if shares, amountX, amountY, err = proportionalDeposit(p, amountXDesired, amountYDesired); err != nil {
			return AddResult{}, err
		}
	}

	if minShares != nil && shares.Lt(minShares) {
		return AddResult{}, pool.NewSlippageError("shares", shares, minShares)
	}

	next := p.Clone()
	var err error
	if next.ReserveX, err = fixedpoint.Add(p.ReserveX, amountX); err != nil {
		return AddResult{}, err
	}
	if next.ReserveY, err = fixedpoint.Add(p.ReserveY, amountY); err != nil {
		return AddResult{}, err
	}
	if next.TotalShares, err = fixedpoint.Add(p.TotalShares, shares); err != nil {
		return AddResult{}, err
	}
	if err := next.Validate(); err != nil {
		return AddResult{}, err
	}

	return AddResult{Pool: next, Shares: shares, AmountX: amountX, AmountY: amountY}, nil
}

// proportionalDeposit mints the shares the scarcer side allows, rounded down, and charges
// the rounded-up amounts backing them.
func proportionalDeposit(p pool.Pool, amountXDesired, amountYDesired *uint256.Int) (shares, amountX, amountY *uint256.Int, err error) {
	if p.ReserveX.IsZero() || p.ReserveY.IsZero() {
		return nil, nil, nil, fmt.Errorf("%w: pool %s has shares but an empty reserve", pool.ErrInvariantViolation, p.ID.Hex())
	}

	sharesX, err := fixedpoint.MulDiv(amountXDesired, p.TotalShares, p.ReserveX)
	if err != nil {
		return nil, nil, nil, err
	}
	sharesY, err := fixedpoint.MulDiv(amountYDesired, p.TotalShares, p.ReserveY)
	if err != nil {
		return nil, nil, nil, err
	}

	shares = fixedpoint.Min(sharesX, sharesY)
	if shares.IsZero() {
		return nil, nil, nil, fmt.Errorf("%w: deposit of (%s, %s) is below one share", pool.ErrInsufficientSharesMinted, amountXDesired.Dec(), amountYDesired.Dec())
	}

	if amountX, err = fixedpoint.MulDivRoundingUp(shares, p.ReserveX, p.TotalShares); err != nil {
		return nil, nil, nil, err
	}
	if amountY, err = fixedpoint.MulDivRoundingUp(shares, p.ReserveY, p.TotalShares); err != nil {
		return nil, nil, nil, err
	}
	return shares, amountX, amountY, nil
}

// RemoveLiquidity burns shares for a floored pro-rata slice of both reserves. Burning every
// outstanding share drains the pool to exactly zero. Nil minimums mean no bound.
func RemoveLiquidity(p pool.Pool, shares, minAmountX, minAmountY *uint256.Int) (RemoveResult, error) {
	if shares == nil || shares.IsZero() {
		return RemoveResult{}, fmt.Errorf("%w: cannot burn zero shares", pool.ErrInsufficientShares)
	}
	if p.TotalShares == nil || shares.Gt(p.TotalShares) {
		return RemoveResult{}, fmt.Errorf("%w: burning %s of %s outstanding", pool.ErrInsufficientShares, shares.Dec(), fixedpoint.Clone(p.TotalShares).Dec())
	}

	amountX, err := fixedpoint.MulDiv(shares, p.ReserveX, p.TotalShares)
	if err != nil {
		return RemoveResult{}, err
	}
	amountY, err := fixedpoint.MulDiv(shares, p.ReserveY, p.TotalShares)
	if err != nil {
		return RemoveResult{}, err
	}

	if minAmountX != nil && amountX.Lt(minAmountX) {
		return RemoveResult{}, pool.NewSlippageError("amountX", amountX, minAmountX)
	}
	if minAmountY != nil && amountY.Lt(minAmountY) {
		return RemoveResult{}, pool.NewSlippageError("amountY", amountY, minAmountY)
	}

	next := p.Clone()
	if next.ReserveX, err = fixedpoint.Sub(p.ReserveX, amountX); err != nil {
		return RemoveResult{}, fmt.Errorf("%w: %v", pool.ErrInvariantViolation, err)
	}
	if next.ReserveY, err = fixedpoint.Sub(p.ReserveY, amountY); err != nil {
		return RemoveResult{}, fmt.Errorf("%w: %v", pool.ErrInvariantViolation, err)
	}
	if next.TotalShares, err = fixedpoint.Sub(p.TotalShares, shares); err != nil {
		return RemoveResult{}, fmt.Errorf("%w: %v", pool.ErrInvariantViolation, err)
	}
	if err := next.Validate(); err != nil {
		return RemoveResult{}, err
	}

	return RemoveResult{Pool: next, Shares: fixedpoint.Clone(shares), AmountX: amountX, AmountY: amountY}, nil
}
