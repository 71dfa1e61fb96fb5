package pool

import (
	"fmt"

	"github.com/defistate/amm-pool-engine/fixedpoint"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// MaxFeeBps is the exclusive upper bound for a pool fee; a 100% fee would leave no input to trade.
const MaxFeeBps = 10000

// ID identifies a pool. It is derived from the ordered asset pair and never changes.
type ID = common.Hash

// NewID returns keccak256(assetX ‖ assetY). (X, Y) and (Y, X) are distinct pairs.
func NewID(assetX, assetY common.Address) ID {
	return crypto.Keccak256Hash(assetX.Bytes(), assetY.Bytes())
}

// Direction selects which reserve receives the input of a swap.
type Direction uint8

const (
	// XToY sells AssetX for AssetY.
	XToY Direction = iota
	// YToX sells AssetY for AssetX.
	YToX
)

func (d Direction) String() string {
	switch d {
	case XToY:
		return "x->y"
	case YToX:
		return "y->x"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// Valid reports whether d is one of the two supported directions.
func (d Direction) Valid() bool {
	return d == XToY || d == YToX
}

// ParseDirection accepts the String form or the short names "x" / "y" for the input side.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "x->y", "x", "xy", "XToY":
		return XToY, nil
	case "y->x", "y", "yx", "YToX":
		return YToX, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// Pool is one trading pair. Transitions never modify a Pool in place; they return a new value
// whose integers are fresh allocations.
type Pool struct {
	ID          ID             `json:"id"`
	AssetX      common.Address `json:"assetX"`
	AssetY      common.Address `json:"assetY"`
	ReserveX    *uint256.Int   `json:"reserveX"`
	ReserveY    *uint256.Int   `json:"reserveY"`
	TotalShares *uint256.Int   `json:"totalShares"`
	FeeBps      uint16         `json:"feeBps"` // i.e 30 for 0.3%
}

// Clone creates a new Pool with its own memory for the *uint256.Int fields.
func (p Pool) Clone() Pool {
	c := p
	c.ReserveX = fixedpoint.Clone(p.ReserveX)
	c.ReserveY = fixedpoint.Clone(p.ReserveY)
	c.TotalShares = fixedpoint.Clone(p.TotalShares)
	return c
}

// Reserves returns (reserveIn, reserveOut) for a swap in direction d.
func (p Pool) Reserves(d Direction) (reserveIn, reserveOut *uint256.Int) {
	if d == YToX {
		return p.ReserveY, p.ReserveX
	}
	return p.ReserveX, p.ReserveY
}

// WithReserves returns a copy of p with the in/out reserves of direction d replaced.
func (p Pool) WithReserves(d Direction, reserveIn, reserveOut *uint256.Int) Pool {
	next := p.Clone()
	if d == YToX {
		next.ReserveY, next.ReserveX = fixedpoint.Clone(reserveIn), fixedpoint.Clone(reserveOut)
	} else {
		next.ReserveX, next.ReserveY = fixedpoint.Clone(reserveIn), fixedpoint.Clone(reserveOut)
	}
	return next
}

// IsDrained reports whether the pool holds nothing and has no outstanding shares.
func (p Pool) IsDrained() bool {
	return p.TotalShares == nil || p.TotalShares.IsZero()
}

// K returns reserveX * reserveY. Both reserves are bounded by MaxAmount, so the product fits.
func (p Pool) K() *uint256.Int {
	return new(uint256.Int).Mul(p.ReserveX, p.ReserveY)
}

// Validate checks the structural invariants every committed pool must satisfy.
func (p Pool) Validate() error {
	if p.ReserveX == nil || p.ReserveY == nil || p.TotalShares == nil {
		return fmt.Errorf("%w: pool %s has nil quantities", ErrInvariantViolation, p.ID.Hex())
	}
	if p.AssetX == p.AssetY {
		return fmt.Errorf("%w: pool %s", ErrIdenticalAssets, p.ID.Hex())
	}
	if p.ID != NewID(p.AssetX, p.AssetY) {
		return fmt.Errorf("%w: pool id %s does not match its asset pair", ErrInvariantViolation, p.ID.Hex())
	}
	if err := ValidateFee(p.FeeBps); err != nil {
		return err
	}
	for _, q := range []*uint256.Int{p.ReserveX, p.ReserveY, p.TotalShares} {
		if err := fixedpoint.CheckAmount(q); err != nil {
			return err
		}
	}

	sharesZero := p.TotalShares.IsZero()
	reservesZero := p.ReserveX.IsZero() && p.ReserveY.IsZero()
	if sharesZero != reservesZero || (!sharesZero && (p.ReserveX.IsZero() || p.ReserveY.IsZero())) {
		return fmt.Errorf("%w: pool %s is partially funded (reserveX=%s reserveY=%s shares=%s)",
			ErrInvariantViolation, p.ID.Hex(), p.ReserveX.Dec(), p.ReserveY.Dec(), p.TotalShares.Dec())
	}
	return nil
}

// ValidateFee rejects fee rates of 100% or more.
func ValidateFee(feeBps uint16) error {
	if feeBps >= MaxFeeBps {
		return fmt.Errorf("%w: %d bps", ErrInvalidFeeRate, feeBps)
	}
	return nil
}
