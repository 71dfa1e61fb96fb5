package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/defistate/amm-pool-engine/pool"
	"github.com/defistate/amm-pool-engine/registry"
	"github.com/defistate/amm-pool-engine/swap"
	"github.com/holiman/uint256"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Result is the JSON line written for every step.
type Result struct {
	Step      int    `json:"step"`
	Op        Op     `json:"op"`
	Pool      string `json:"pool,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
	Expected  bool   `json:"expected"`

	AmountIn  string `json:"amountIn,omitempty"`
	AmountOut string `json:"amountOut,omitempty"`
	Shares    string `json:"shares,omitempty"`
	AmountX   string `json:"amountX,omitempty"`
	AmountY   string `json:"amountY,omitempty"`
	// Price is amountOut/amountIn for swaps and quotes.
	Price string `json:"price,omitempty"`

	ReserveX    string `json:"reserveX,omitempty"`
	ReserveY    string `json:"reserveY,omitempty"`
	TotalShares string `json:"totalShares,omitempty"`
	// Rate is the marginal reserveY/reserveX price after the step.
	Rate string `json:"rate,omitempty"`
}

// Summary counts step outcomes.
type Summary struct {
	Steps      int `json:"steps"`
	Failed     int `json:"failed"`
	Unexpected int `json:"unexpected"`
}

// Runner executes scenarios against a registry and streams one Result per step to out.
type Runner struct {
	registry *registry.Registry
	out      *json.Encoder
	logger   Logger
	aliases  map[string]pool.ID
}

// NewRunner creates a runner. Aliases bound by create_pool steps persist across Run calls.
func NewRunner(r *registry.Registry, out io.Writer, logger Logger) *Runner {
	return &Runner{
		registry: r,
		out:      json.NewEncoder(out),
		logger:   logger,
		aliases:  make(map[string]pool.ID),
	}
}

// Run executes every step in order. A failing step does not stop the run; only a canceled
// context or an output error does.
func (rn *Runner) Run(ctx context.Context, sc *Scenario) (Summary, error) {
	var sum Summary
	rn.logger.Info("scenario started", "name", sc.Name, "steps", len(sc.Steps))

	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res := rn.step(st)
		res.Step = i

		sum.Steps++
		if !res.OK {
			sum.Failed++
		}
		if !res.Expected {
			sum.Unexpected++
			rn.logger.Warn("step outcome differs from expectation",
				"step", i, "op", st.Op, "expect", expectation(st), "error", res.Error)
		}

		if err := rn.out.Encode(res); err != nil {
			return sum, fmt.Errorf("failed to write result of step %d: %w", i, err)
		}
	}

	rn.logger.Info("scenario finished", "name", sc.Name, "steps", sum.Steps, "failed", sum.Failed, "unexpected", sum.Unexpected)
	return sum, nil
}

func expectation(st Step) string {
	if st.Expect == "" {
		return "ok"
	}
	return st.Expect
}

func (rn *Runner) step(st Step) Result {
	res := Result{Op: st.Op}

	id, err := rn.execute(st, &res)
	if err != nil {
		res.Error = err.Error()
		res.ErrorKind = pool.KindOf(err).String()
	} else {
		res.OK = true
	}
	res.Expected = matches(err, st.Expect)

	if id != (pool.ID{}) {
		res.Pool = id.Hex()
		rn.describePool(id, &res)
	}
	return res
}

// describePool fills the post-step pool state. Missing pools are left blank.
func (rn *Runner) describePool(id pool.ID, res *Result) {
	p, err := rn.registry.GetPool(id)
	if err != nil {
		return
	}
	res.ReserveX = p.ReserveX.Dec()
	res.ReserveY = p.ReserveY.Dec()
	res.TotalShares = p.TotalShares.Dec()
	if rate, err := swap.ExchangeRate(p, pool.XToY); err == nil {
		res.Rate = rate.String()
	}
}

func (rn *Runner) resolve(st Step) (pool.ID, error) {
	if st.Pool != "" {
		id, ok := rn.aliases[st.Pool]
		if !ok {
			return pool.ID{}, fmt.Errorf("%w: unknown alias %q", pool.ErrPoolNotFound, st.Pool)
		}
		return id, nil
	}
	assetX, err := parseAddress("assetX", st.AssetX)
	if err != nil {
		return pool.ID{}, err
	}
	assetY, err := parseAddress("assetY", st.AssetY)
	if err != nil {
		return pool.ID{}, err
	}
	return pool.NewID(assetX, assetY), nil
}

// amounts parses the named fields of st in order.
func amounts(fields ...[2]string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(fields))
	for i, f := range fields {
		v, err := parseAmount(f[0], f[1])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func setPrice(res *Result, amountIn, amountOut *uint256.Int) {
	if price, err := swap.EffectivePrice(amountIn, amountOut); err == nil {
		res.Price = price.String()
	}
}

func (rn *Runner) execute(st Step, res *Result) (pool.ID, error) {
	if st.Op == OpCreatePool {
		return rn.createPool(st, res)
	}

	id, err := rn.resolve(st)
	if err != nil {
		return pool.ID{}, err
	}

	switch st.Op {
	case OpGetPool:
		_, err := rn.registry.GetPool(id)
		return id, err

	case OpQuoteOut, OpQuoteIn, OpSwap, OpSwapExactOut:
		dir, err := pool.ParseDirection(st.Direction)
		if err != nil {
			return id, err
		}
		v, err := amounts(
			[2]string{"amountIn", st.AmountIn},
			[2]string{"amountOut", st.AmountOut},
			[2]string{"minAmountOut", st.MinAmountOut},
			[2]string{"maxAmountIn", st.MaxAmountIn},
		)
		if err != nil {
			return id, err
		}
		amountIn, amountOut, minOut, maxIn := v[0], v[1], v[2], v[3]

		var in, out *uint256.Int
		switch st.Op {
		case OpQuoteOut:
			in = amountIn
			out, err = rn.registry.QuoteAmountOut(id, dir, amountIn)
		case OpQuoteIn:
			out = amountOut
			in, err = rn.registry.QuoteAmountIn(id, dir, amountOut)
		case OpSwap:
			var r swap.Result
			r, err = rn.registry.Swap(id, dir, amountIn, minOut)
			in, out = r.AmountIn, r.AmountOut
		case OpSwapExactOut:
			var r swap.Result
			r, err = rn.registry.SwapExactOut(id, dir, amountOut, maxIn)
			in, out = r.AmountIn, r.AmountOut
		}
		if err != nil {
			return id, err
		}
		res.AmountIn, res.AmountOut = in.Dec(), out.Dec()
		setPrice(res, in, out)
		return id, nil

	case OpAddLiquidity:
		v, err := amounts(
			[2]string{"amountX", st.AmountX},
			[2]string{"amountY", st.AmountY},
			[2]string{"minShares", st.MinShares},
		)
		if err != nil {
			return id, err
		}
		r, err := rn.registry.AddLiquidity(id, v[0], v[1], v[2])
		if err != nil {
			return id, err
		}
		res.Shares, res.AmountX, res.AmountY = r.Shares.Dec(), r.AmountX.Dec(), r.AmountY.Dec()
		return id, nil

	case OpRemoveLiquidity:
		v, err := amounts(
			[2]string{"shares", st.Shares},
			[2]string{"minAmountX", st.MinAmountX},
			[2]string{"minAmountY", st.MinAmountY},
		)
		if err != nil {
			return id, err
		}
		r, err := rn.registry.RemoveLiquidity(id, v[0], v[1], v[2])
		if err != nil {
			return id, err
		}
		res.Shares, res.AmountX, res.AmountY = r.Shares.Dec(), r.AmountX.Dec(), r.AmountY.Dec()
		return id, nil
	}
	return id, fmt.Errorf("unknown op %q", st.Op)
}

func (rn *Runner) createPool(st Step, res *Result) (pool.ID, error) {
	assetX, err := parseAddress("assetX", st.AssetX)
	if err != nil {
		return pool.ID{}, err
	}
	assetY, err := parseAddress("assetY", st.AssetY)
	if err != nil {
		return pool.ID{}, err
	}
	v, err := amounts([2]string{"amountX", st.AmountX}, [2]string{"amountY", st.AmountY})
	if err != nil {
		return pool.ID{}, err
	}

	id, shares, err := rn.registry.CreatePool(assetX, assetY, v[0], v[1], st.FeeBps)
	if err != nil {
		return pool.ID{}, err
	}
	if st.Pool != "" {
		rn.aliases[st.Pool] = id
	}
	res.Shares = shares.Dec()
	res.AmountX, res.AmountY = v[0].Dec(), v[1].Dec()
	return id, nil
}
