// Package factory constructs and indexes pools: exactly one pool per
// unordered asset pair, addressable from either token ordering, with a
// deterministic address derived from the canonical pair.
package factory

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/amm-pool-go/ledger"
	"github.com/defistate/amm-pool-go/pool"
)

var (
	// ErrPoolExists is returned when a pool for the pair was already created.
	ErrPoolExists = errors.New("pool exists for pair")
	// ErrPoolNotFound is returned when no pool exists for the pair.
	ErrPoolNotFound = errors.New("pool not found")
)

type pairKey struct {
	token0, token1 common.Address
}

// Factory creates pools and resolves them by pair. Safe for concurrent use.
type Factory struct {
	mu    sync.RWMutex
	pools map[pairKey]*pool.Pool
	all   []*pool.Pool

	logger   *slog.Logger
	registry prometheus.Registerer
	sink     pool.Sink
}

// New creates a factory. logger may be nil; registry and sink are passed
// through to every pool the factory creates and may be nil.
func New(logger *slog.Logger, registry prometheus.Registerer, sink pool.Sink) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		pools:    make(map[pairKey]*pool.Pool),
		logger:   logger,
		registry: registry,
		sink:     sink,
	}
}

// CreatePool constructs the pool for an unordered asset pair. Token order is
// canonicalized; creating the same pair twice, in either order, fails.
func (f *Factory) CreatePool(tokenA, tokenB common.Address, ledgerA, ledgerB ledger.AssetLedger, opts PoolOptions) (*pool.Pool, error) {
	key, swapped := orderPair(tokenA, tokenB)
	if swapped {
		ledgerA, ledgerB = ledgerB, ledgerA
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.pools[key]; exists {
		return nil, fmt.Errorf("%w: %s / %s", ErrPoolExists, key.token0.Hex(), key.token1.Hex())
	}

	p, err := pool.New(pool.Config{
		TokenA:         key.token0,
		TokenB:         key.token1,
		LedgerA:        ledgerA,
		LedgerB:        ledgerB,
		FlashFeeBps:    opts.FlashFeeBps,
		LeftoverPolicy: opts.LeftoverPolicy,
		Now:            opts.Now,
		Logger:         f.logger,
		Sink:           f.sink,
		Registry:       f.registry,
	})
	if err != nil {
		return nil, err
	}

	f.pools[key] = p
	f.all = append(f.all, p)
	f.logger.Info("pool created",
		"pool", p.Address().Hex(), "token0", key.token0.Hex(), "token1", key.token1.Hex())
	return p, nil
}

// PoolOptions carries the per-pool knobs the factory does not own.
type PoolOptions struct {
	FlashFeeBps    uint16
	LeftoverPolicy pool.LeftoverPolicy
	Now            func() uint32
}

// Pool resolves the pool for a pair, in either token order.
func (f *Factory) Pool(tokenA, tokenB common.Address) (*pool.Pool, error) {
	key, _ := orderPair(tokenA, tokenB)

	f.mu.RLock()
	defer f.mu.RUnlock()

	p, ok := f.pools[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s / %s", ErrPoolNotFound, tokenA.Hex(), tokenB.Hex())
	}
	return p, nil
}

// AllPools returns a copy of the creation-ordered pool list.
func (f *Factory) AllPools() []*pool.Pool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*pool.Pool, len(f.all))
	copy(out, f.all)
	return out
}

// Len returns the number of pools created.
func (f *Factory) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.all)
}

// orderPair canonicalizes an asset pair and reports whether it swapped.
func orderPair(tokenA, tokenB common.Address) (pairKey, bool) {
	if tokenA.Cmp(tokenB) > 0 {
		return pairKey{token0: tokenB, token1: tokenA}, true
	}
	return pairKey{token0: tokenA, token1: tokenB}, false
}
