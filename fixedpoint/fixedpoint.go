package fixedpoint

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

var (
	// MaxAmount is the largest reserve, share or transfer amount the engine accepts (2^128 - 1).
	// Products of two amounts always fit in 256 bits, so MulDiv on in-range inputs cannot overflow.
	MaxAmount = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

	// BasisPointDivisor represents 100% in basis points (10000).
	BasisPointDivisor = uint256.NewInt(10000)

	// ErrArithmeticOverflow is returned when a value or intermediate product leaves the supported range.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	// ErrDivisionByZero is returned when a denominator is zero.
	ErrDivisionByZero = errors.New("division by zero")

	one = uint256.NewInt(1)
)

// scratch holds reusable uint256 words for the rounding-up path.
type scratch struct {
	product *uint256.Int
	rem     *uint256.Int
}

var scratchPool = sync.Pool{
	New: func() any {
		return &scratch{
			product: new(uint256.Int),
			rem:     new(uint256.Int),
		}
	},
}

// MulDiv returns floor(a * b / denom). The product is computed in 256 bits.
func MulDiv(a, b, denom *uint256.Int) (*uint256.Int, error) {
	if denom.IsZero() {
		return nil, ErrDivisionByZero
	}

	s := scratchPool.Get().(*scratch)
	defer scratchPool.Put(s)

	if _, overflow := s.product.MulOverflow(a, b); overflow {
		return nil, fmt.Errorf("%w: %s * %s exceeds 256 bits", ErrArithmeticOverflow, a.Dec(), b.Dec())
	}
	return new(uint256.Int).Div(s.product, denom), nil
}

// MulDivRoundingUp returns ceil(a * b / denom).
func MulDivRoundingUp(a, b, denom *uint256.Int) (*uint256.Int, error) {
	if denom.IsZero() {
		return nil, ErrDivisionByZero
	}

	s := scratchPool.Get().(*scratch)
	defer scratchPool.Put(s)

	if _, overflow := s.product.MulOverflow(a, b); overflow {
		return nil, fmt.Errorf("%w: %s * %s exceeds 256 bits", ErrArithmeticOverflow, a.Dec(), b.Dec())
	}

	result := new(uint256.Int).Div(s.product, denom)
	if !s.rem.Mod(s.product, denom).IsZero() {
		// A non-zero remainder implies denom > 1, so the increment cannot wrap.
		result.Add(result, one)
	}
	return result, nil
}

// Sqrt returns floor(sqrt(x)).
func Sqrt(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sqrt(x)
}

// Add returns a + b, failing when the sum exceeds MaxAmount.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow || sum.Gt(MaxAmount) {
		return nil, fmt.Errorf("%w: %s + %s exceeds max amount", ErrArithmeticOverflow, a.Dec(), b.Dec())
	}
	return sum, nil
}

// Sub returns a - b, failing on underflow.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, fmt.Errorf("%w: %s - %s underflows", ErrArithmeticOverflow, a.Dec(), b.Dec())
	}
	return diff, nil
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// CheckAmount reports ErrArithmeticOverflow for values above MaxAmount.
func CheckAmount(x *uint256.Int) error {
	if x.Gt(MaxAmount) {
		return fmt.Errorf("%w: %s exceeds max amount", ErrArithmeticOverflow, x.Dec())
	}
	return nil
}

// Clone returns a fresh copy of x, or zero when x is nil.
func Clone(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(x)
}
