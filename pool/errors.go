package pool

import (
	"errors"
	"fmt"

	"github.com/defistate/amm-pool-engine/fixedpoint"
	"github.com/holiman/uint256"
)

var (
	// --- Validation ---

	// ErrInvalidAmount is returned when a required amount is nil or zero.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidFeeRate is returned for fee rates of 10000 bps or more.
	ErrInvalidFeeRate = errors.New("invalid fee rate")
	// ErrIdenticalAssets is returned when both sides of a pair are the same asset.
	ErrIdenticalAssets = errors.New("identical assets")
	// ErrInvalidDirection is returned for an unknown swap direction.
	ErrInvalidDirection = errors.New("invalid swap direction")
	// ErrPoolAlreadyExists is returned when the ordered pair already has a pool.
	ErrPoolAlreadyExists = errors.New("pool already exists")
	// ErrPoolNotFound is returned when no pool has the requested id.
	ErrPoolNotFound = errors.New("pool not found")

	// --- Economic / slippage ---

	// ErrSlippageExceeded is returned when a realized amount violates a caller bound.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrInsufficientLiquidity is returned when a requested output is >= the output reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrInsufficientShares is returned when burning zero shares or more than are outstanding.
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrInsufficientSharesMinted is returned when a deposit is too small to mint a single share.
	ErrInsufficientSharesMinted = errors.New("insufficient shares minted")
	// ErrInsufficientInitialLiquidity is returned when sqrt(amountX*amountY) floors to zero.
	ErrInsufficientInitialLiquidity = errors.New("insufficient initial liquidity")
	// ErrEmptyPool is returned when a swap or quote touches a pool with a zero reserve.
	ErrEmptyPool = errors.New("empty pool")

	// --- Internal ---

	// ErrInvariantViolation means a computed state failed a post-condition; it is never committed.
	ErrInvariantViolation = errors.New("pool invariant violation")
)

// Kind groups errors by how a caller should react to them.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation: bad input or a reference to a missing pool.
	KindValidation
	// KindArithmetic: an input outside the supported numeric range.
	KindArithmetic
	// KindEconomic: well-defined math that violates a caller or structural bound.
	KindEconomic
	// KindInternal: a broken post-condition.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindArithmetic:
		return "arithmetic"
	case KindEconomic:
		return "economic"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidAmount, KindValidation},
	{ErrInvalidFeeRate, KindValidation},
	{ErrIdenticalAssets, KindValidation},
	{ErrInvalidDirection, KindValidation},
	{ErrPoolAlreadyExists, KindValidation},
	{ErrPoolNotFound, KindValidation},
	{fixedpoint.ErrArithmeticOverflow, KindArithmetic},
	{fixedpoint.ErrDivisionByZero, KindArithmetic},
	{ErrSlippageExceeded, KindEconomic},
	{ErrInsufficientLiquidity, KindEconomic},
	{ErrInsufficientShares, KindEconomic},
	{ErrInsufficientSharesMinted, KindEconomic},
	{ErrInsufficientInitialLiquidity, KindEconomic},
	{ErrEmptyPool, KindEconomic},
	{ErrInvariantViolation, KindInternal},
}

// KindOf classifies err. Errors from outside the engine report KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// SlippageError reports a computed amount that fell outside a caller-supplied limit.
type SlippageError struct {
	// Quantity names the bounded value, e.g. "amountOut" or "shares".
	Quantity string
	Computed *uint256.Int
	Limit    *uint256.Int
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("%s: %s computed %s, limit %s", ErrSlippageExceeded, e.Quantity, e.Computed.Dec(), e.Limit.Dec())
}

func (e *SlippageError) Unwrap() error {
	return ErrSlippageExceeded
}

// NewSlippageError copies computed and limit so the error stays valid after the caller reuses them.
func NewSlippageError(quantity string, computed, limit *uint256.Int) error {
	return &SlippageError{
		Quantity: quantity,
		Computed: fixedpoint.Clone(computed),
		Limit:    fixedpoint.Clone(limit),
	}
}
