package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/defistate/amm-pool-engine/liquidity"
	"github.com/defistate/amm-pool-engine/pool"
	"github.com/defistate/amm-pool-engine/swap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Journal durably records committed changes. Record is called with the writer lock held,
// before the new snapshot is published; an error aborts the commit.
type Journal interface {
	Record(diff pool.SystemDiff) error
}

// Config holds the registry's dependencies.
type Config struct {
	Registry prometheus.Registerer // Required for metrics.
	Logger   Logger                // Required for logging.
	Journal  Journal               // Optional.
}

func (c *Config) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// snapshot is an immutable view of every committed pool. It is replaced, never modified.
type snapshot struct {
	pools map[pool.ID]pool.Pool
}

func (s *snapshot) sorted() []pool.Pool {
	out := make([]pool.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, p.Clone())
	}
	pool.SortByID(out)
	return out
}

// with returns a copy of s that also holds p.
func (s *snapshot) with(p pool.Pool) *snapshot {
	pools := make(map[pool.ID]pool.Pool, len(s.pools)+1)
	for id, existing := range s.pools {
		pools[id] = existing
	}
	pools[p.ID] = p.Clone()
	return &snapshot{pools: pools}
}

// Registry owns the id -> pool mapping. Writers are serialized by mu; readers load the
// published snapshot without locking and never observe a partial mutation.
type Registry struct {
	mu      sync.Mutex
	state   atomic.Pointer[snapshot]
	metrics *Metrics
	logger  Logger
	journal Journal
}

// New creates an empty registry.
func New(cfg *Config) (*Registry, error) {
	return NewFromSnapshot(cfg, nil)
}

// NewFromSnapshot creates a registry holding pools, typically loaded from a store.
// Every pool is validated and ids must be unique. The journal is not called for restored pools.
func NewFromSnapshot(cfg *Config, pools []pool.Pool) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	initial := &snapshot{pools: make(map[pool.ID]pool.Pool, len(pools))}
	for _, p := range pools {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("restore pool %s: %w", p.ID.Hex(), err)
		}
		if _, exists := initial.pools[p.ID]; exists {
			return nil, fmt.Errorf("restore pool %s: %w", p.ID.Hex(), pool.ErrPoolAlreadyExists)
		}
		initial.pools[p.ID] = p.Clone()
	}

	r := &Registry{
		metrics: NewMetrics(cfg.Registry),
		logger:  cfg.Logger,
		journal: cfg.Journal,
	}
	r.state.Store(initial)
	r.metrics.pools.Set(float64(len(initial.pools)))

	if len(pools) > 0 {
		r.logger.Info("registry restored from snapshot", "pools", len(pools))
	}
	return r, nil
}

// observe times fn and counts its outcome under op.
func observe[T any](r *Registry, op string, fn func() (T, error)) (T, error) {
	timer := prometheus.NewTimer(r.metrics.duration.WithLabelValues(op))
	res, err := fn()
	timer.ObserveDuration()

	r.metrics.operations.WithLabelValues(op, outcome(err)).Inc()
	if err != nil {
		if kind := pool.KindOf(err); kind == pool.KindInternal || kind == pool.KindUnknown {
			r.logger.Error("registry operation failed", "op", op, "error", err)
		} else {
			r.logger.Debug("registry operation rejected", "op", op, "kind", kind.String(), "error", err)
		}
	}
	return res, err
}

// commit records diff and publishes next. It MUST be called with r.mu held.
func (r *Registry) commit(next *snapshot, diff pool.SystemDiff) error {
	if r.journal != nil {
		if err := r.journal.Record(diff); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}
	r.state.Store(next)
	r.metrics.pools.Set(float64(len(next.pools)))
	return nil
}

// commitPool publishes a single transitioned pool. It MUST be called with r.mu held.
func (r *Registry) commitPool(current *snapshot, next pool.Pool, added bool) error {
	if err := next.Validate(); err != nil {
		return err
	}
	var diff pool.SystemDiff
	if added {
		diff.Additions = []pool.Pool{next.Clone()}
	} else {
		diff.Updates = []pool.Pool{next.Clone()}
	}
	return r.commit(current.with(next), diff)
}

// lookup returns the committed pool for id.
func (s *snapshot) lookup(id pool.ID) (pool.Pool, error) {
	p, ok := s.pools[id]
	if !ok {
		return pool.Pool{}, fmt.Errorf("%w: %s", pool.ErrPoolNotFound, id.Hex())
	}
	return p, nil
}

// --- Write Methods ---

// CreatePool funds a new pool for the ordered pair (assetX, assetY) and returns its id and
// the shares minted to the depositor.
func (r *Registry) CreatePool(assetX, assetY common.Address, amountX, amountY *uint256.Int, feeBps uint16) (pool.ID, *uint256.Int, error) {
	p, err := observe(r, opCreatePool, func() (pool.Pool, error) {
		p, err := liquidity.Create(assetX, assetY, amountX, amountY, feeBps)
		if err != nil {
			return pool.Pool{}, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()

		current := r.state.Load()
		if _, exists := current.pools[p.ID]; exists {
			return pool.Pool{}, fmt.Errorf("%w: %s/%s", pool.ErrPoolAlreadyExists, assetX.Hex(), assetY.Hex())
		}
		if err := r.commitPool(current, p, true); err != nil {
			return pool.Pool{}, err
		}
		return p, nil
	})
	if err != nil {
		return pool.ID{}, nil, err
	}

	r.logger.Info("pool created",
		"pool", p.ID.Hex(),
		"assetX", p.AssetX.Hex(),
		"assetY", p.AssetY.Hex(),
		"feeBps", p.FeeBps,
		"shares", p.TotalShares.Dec(),
	)
	return p.ID, p.TotalShares, nil
}

// Swap sells exactly amountIn against pool id. A nil minAmountOut means no bound.
func (r *Registry) Swap(id pool.ID, dir pool.Direction, amountIn, minAmountOut *uint256.Int) (swap.Result, error) {
	return observe(r, opSwap, func() (swap.Result, error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		current := r.state.Load()
		p, err := current.lookup(id)
		if err != nil {
			return swap.Result{}, err
		}
		res, err := swap.Swap(p, dir, amountIn, minAmountOut)
		if err != nil {
			return swap.Result{}, err
		}
		if err := r.commitPool(current, res.Pool, false); err != nil {
			return swap.Result{}, err
		}

		r.logger.Debug("swap committed", "pool", id.Hex(), "direction", dir.String(),
			"amountIn", res.AmountIn.Dec(), "amountOut", res.AmountOut.Dec())
		return res, nil
	})
}

// SwapExactOut buys exactly amountOut from pool id. A nil maxAmountIn means no bound.
func (r *Registry) SwapExactOut(id pool.ID, dir pool.Direction, amountOut, maxAmountIn *uint256.Int) (swap.Result, error) {
	return observe(r, opSwapExactOut, func() (swap.Result, error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		current := r.state.Load()
		p, err := current.lookup(id)
		if err != nil {
			return swap.Result{}, err
		}
		res, err := swap.SwapExactOut(p, dir, amountOut, maxAmountIn)
		if err != nil {
			return swap.Result{}, err
		}
		if err := r.commitPool(current, res.Pool, false); err != nil {
			return swap.Result{}, err
		}

		r.logger.Debug("exact-out swap committed", "pool", id.Hex(), "direction", dir.String(),
			"amountIn", res.AmountIn.Dec(), "amountOut", res.AmountOut.Dec())
		return res, nil
	})
}

// AddLiquidity deposits into pool id. A nil minShares means no bound.
func (r *Registry) AddLiquidity(id pool.ID, amountXDesired, amountYDesired, minShares *uint256.Int) (liquidity.AddResult, error) {
	return observe(r, opAddLiquidity, func() (liquidity.AddResult, error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		current := r.state.Load()
		p, err := current.lookup(id)
		if err != nil {
			return liquidity.AddResult{}, err
		}
		res, err := liquidity.AddLiquidity(p, amountXDesired, amountYDesired, minShares)
		if err != nil {
			return liquidity.AddResult{}, err
		}
		if err := r.commitPool(current, res.Pool, false); err != nil {
			return liquidity.AddResult{}, err
		}

		r.logger.Debug("liquidity added", "pool", id.Hex(), "shares", res.Shares.Dec(),
			"amountX", res.AmountX.Dec(), "amountY", res.AmountY.Dec())
		return res, nil
	})
}

// RemoveLiquidity burns shares of pool id. Nil minimums mean no bound.
func (r *Registry) RemoveLiquidity(id pool.ID, shares, minAmountX, minAmountY *uint256.Int) (liquidity.RemoveResult, error) {
	return observe(r, opRemoveLiquidity, func() (liquidity.RemoveResult, error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		current := r.state.Load()
		p, err := current.lookup(id)
		if err != nil {
			return liquidity.RemoveResult{}, err
		}
		res, err := liquidity.RemoveLiquidity(p, shares, minAmountX, minAmountY)
		if err != nil {
			return liquidity.RemoveResult{}, err
		}
		if err := r.commitPool(current, res.Pool, false); err != nil {
			return liquidity.RemoveResult{}, err
		}

		if res.Pool.IsDrained() {
			r.logger.Info("pool drained", "pool", id.Hex())
		}
		r.logger.Debug("liquidity removed", "pool", id.Hex(), "shares", res.Shares.Dec(),
			"amountX", res.AmountX.Dec(), "amountY", res.AmountY.Dec())
		return res, nil
	})
}

// Apply replicates a diff produced by another registry. The whole diff commits or none of it does.
func (r *Registry) Apply(diff pool.SystemDiff) error {
	_, err := observe(r, opApply, func() (struct{}, error) {
		if diff.IsEmpty() {
			return struct{}{}, nil
		}

		r.mu.Lock()
		defer r.mu.Unlock()

		current := r.state.Load()
		patched, err := pool.Patcher(current.sorted(), diff)
		if err != nil {
			return struct{}{}, err
		}

		next := &snapshot{pools: make(map[pool.ID]pool.Pool, len(patched))}
		for _, p := range patched {
			if err := p.Validate(); err != nil {
				return struct{}{}, err
			}
			next.pools[p.ID] = p
		}
		if err := r.commit(next, diff); err != nil {
			return struct{}{}, err
		}

		r.logger.Debug("diff applied", "additions", len(diff.Additions), "updates", len(diff.Updates))
		return struct{}{}, nil
	})
	return err
}

// --- Read Methods ---

// GetPool returns a deep copy of the committed pool for id.
func (r *Registry) GetPool(id pool.ID) (pool.Pool, error) {
	p, err := r.state.Load().lookup(id)
	if err != nil {
		return pool.Pool{}, err
	}
	return p.Clone(), nil
}

// GetPoolByPair returns the pool for the ordered pair (assetX, assetY).
func (r *Registry) GetPoolByPair(assetX, assetY common.Address) (pool.Pool, error) {
	return r.GetPool(pool.NewID(assetX, assetY))
}

// Pools returns deep copies of every committed pool, ordered by id.
func (r *Registry) Pools() []pool.Pool {
	return r.state.Load().sorted()
}

// Snapshot is Pools under the name used with pool.Differ.
func (r *Registry) Snapshot() []pool.Pool {
	return r.Pools()
}

// Len returns the number of committed pools.
func (r *Registry) Len() int {
	return len(r.state.Load().pools)
}

// QuoteAmountOut quotes a swap of amountIn against the committed state of pool id.
func (r *Registry) QuoteAmountOut(id pool.ID, dir pool.Direction, amountIn *uint256.Int) (*uint256.Int, error) {
	p, err := r.quotable(id, dir)
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut := p.Reserves(dir)
	return swap.AmountOut(reserveIn, reserveOut, amountIn, p.FeeBps)
}

// QuoteAmountIn quotes the minimal input for amountOut against the committed state of pool id.
func (r *Registry) QuoteAmountIn(id pool.ID, dir pool.Direction, amountOut *uint256.Int) (*uint256.Int, error) {
	p, err := r.quotable(id, dir)
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut := p.Reserves(dir)
	return swap.AmountIn(reserveIn, reserveOut, amountOut, p.FeeBps)
}

// ExchangeRate returns the marginal display rate of pool id.
func (r *Registry) ExchangeRate(id pool.ID, dir pool.Direction) (decimal.Decimal, error) {
	p, err := r.quotable(id, dir)
	if err != nil {
		return decimal.Zero, err
	}
	return swap.ExchangeRate(p, dir)
}

func (r *Registry) quotable(id pool.ID, dir pool.Direction) (pool.Pool, error) {
	if !dir.Valid() {
		return pool.Pool{}, fmt.Errorf("%w: %s", pool.ErrInvalidDirection, dir)
	}
	// Committed pools are never modified, so quoting against the shared value is safe.
	return r.state.Load().lookup(id)
}
