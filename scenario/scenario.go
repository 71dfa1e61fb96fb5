package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/defistate/amm-pool-engine/fixedpoint"
	"github.com/defistate/amm-pool-engine/pool"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

// Op names an operation a step performs.
type Op string

const (
	OpCreatePool      Op = "create_pool"
	OpQuoteOut        Op = "quote_out"
	OpQuoteIn         Op = "quote_in"
	OpSwap            Op = "swap"
	OpSwapExactOut    Op = "swap_exact_out"
	OpAddLiquidity    Op = "add_liquidity"
	OpRemoveLiquidity Op = "remove_liquidity"
	OpGetPool         Op = "get_pool"
)

// Scenario is a named, ordered list of operations against one registry.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one operation. Amounts are base-10 strings and may use '_' as a digit separator.
// Pool refers to an alias bound by an earlier create_pool step, or to the asset pair when
// AssetX and AssetY are set instead.
type Step struct {
	Op        Op     `yaml:"op"`
	Pool      string `yaml:"pool,omitempty"`
	AssetX    string `yaml:"assetX,omitempty"`
	AssetY    string `yaml:"assetY,omitempty"`
	FeeBps    uint16 `yaml:"feeBps,omitempty"`
	Direction string `yaml:"direction,omitempty"`

	AmountX   string `yaml:"amountX,omitempty"`
	AmountY   string `yaml:"amountY,omitempty"`
	AmountIn  string `yaml:"amountIn,omitempty"`
	AmountOut string `yaml:"amountOut,omitempty"`
	Shares    string `yaml:"shares,omitempty"`

	MinAmountOut string `yaml:"minAmountOut,omitempty"`
	MaxAmountIn  string `yaml:"maxAmountIn,omitempty"`
	MinShares    string `yaml:"minShares,omitempty"`
	MinAmountX   string `yaml:"minAmountX,omitempty"`
	MinAmountY   string `yaml:"minAmountY,omitempty"`

	// Expect is "ok" (the default), the kind of error the step must fail with
	// (e.g. "economic"), or the name of the exact error (e.g. "slippage_exceeded").
	Expect string `yaml:"expect,omitempty"`
}

// LoadFile reads and parses a scenario file.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML scenario. Unknown fields are rejected so typos fail loudly.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	if len(sc.Steps) == 0 {
		return errors.New("scenario: no steps")
	}
	for i, st := range sc.Steps {
		switch st.Op {
		case OpCreatePool:
			if st.AssetX == "" || st.AssetY == "" {
				return fmt.Errorf("scenario: step %d: create_pool needs assetX and assetY", i)
			}
		case OpQuoteOut, OpQuoteIn, OpSwap, OpSwapExactOut, OpAddLiquidity, OpRemoveLiquidity, OpGetPool:
			if st.Pool == "" && (st.AssetX == "" || st.AssetY == "") {
				return fmt.Errorf("scenario: step %d: %s needs pool or assetX/assetY", i, st.Op)
			}
		default:
			return fmt.Errorf("scenario: step %d: unknown op %q", i, st.Op)
		}
		_, named := namedErrors[st.Expect]
		if st.Expect != "" && st.Expect != "ok" && !named && !knownKind(st.Expect) {
			return fmt.Errorf("scenario: step %d: unknown expectation %q", i, st.Expect)
		}
	}
	return nil
}

// namedErrors maps the error names a step may expect to the sentinel they match.
var namedErrors = map[string]error{
	"invalid_amount":                 pool.ErrInvalidAmount,
	"invalid_fee_rate":               pool.ErrInvalidFeeRate,
	"identical_assets":               pool.ErrIdenticalAssets,
	"invalid_direction":              pool.ErrInvalidDirection,
	"pool_already_exists":            pool.ErrPoolAlreadyExists,
	"pool_not_found":                 pool.ErrPoolNotFound,
	"arithmetic_overflow":            fixedpoint.ErrArithmeticOverflow,
	"division_by_zero":               fixedpoint.ErrDivisionByZero,
	"slippage_exceeded":              pool.ErrSlippageExceeded,
	"insufficient_liquidity":         pool.ErrInsufficientLiquidity,
	"insufficient_shares":            pool.ErrInsufficientShares,
	"insufficient_shares_minted":     pool.ErrInsufficientSharesMinted,
	"insufficient_initial_liquidity": pool.ErrInsufficientInitialLiquidity,
	"empty_pool":                     pool.ErrEmptyPool,
	"invariant_violation":            pool.ErrInvariantViolation,
}

// matches reports whether err satisfies expect, which names either an error or a kind.
func matches(err error, expect string) bool {
	if err == nil {
		return expect == "" || expect == "ok"
	}
	if sentinel, ok := namedErrors[expect]; ok {
		return errors.Is(err, sentinel)
	}
	return pool.KindOf(err).String() == expect
}

func knownKind(s string) bool {
	for _, k := range []pool.Kind{pool.KindValidation, pool.KindArithmetic, pool.KindEconomic, pool.KindInternal, pool.KindUnknown} {
		if k.String() == s {
			return true
		}
	}
	return false
}

// parseAmount parses a required decimal amount. An empty string yields nil so the engine
// reports its own InvalidAmount error.
func parseAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := uint256.FromDecimal(strings.ReplaceAll(s, "_", ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q: %v", pool.ErrInvalidAmount, field, s, err)
	}
	return v, nil
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: %q is not a hex address", field, s)
	}
	return common.HexToAddress(s), nil
}
