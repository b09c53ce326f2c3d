// Package pool implements a constant-product market-making pool over two
// asset ledgers: paired liquidity deposits and withdrawals, invariant-checked
// swaps, synchronous flash loans and flash swaps, and a manipulation-resistant
// cumulative price feed.
//
// Every amount that enters a formula is measured as a ledger balance delta,
// never taken from a caller's declared value. Every mutating operation runs
// under a single non-waiting guard and either commits atomically or rolls
// back all of its own ledger and pool state changes.
package pool

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/amm-pool-go/fixedpoint"
	"github.com/defistate/amm-pool-go/ledger"
	"github.com/defistate/amm-pool-go/quote"
)

const (
	// MinimumLiquidity is the share allocation permanently locked to the
	// zero address by the first deposit, so the share price cannot be
	// griefed near zero supply.
	MinimumLiquidity = 1000

	// FeeBps is the swap fee in basis points. The invariant check below is
	// hard-wired to the 997/1000 form of this fee.
	FeeBps = 30

	// reserveBits bounds each reserve strictly below 2^112.
	reserveBits = 112
)

var (
	big3         = big.NewInt(3)
	big1000      = big.NewInt(1000)
	feeNumerator = big.NewInt(1000 - 3) // 997
	kScaleSq     = big.NewInt(1000 * 1000)

	basisPointDivisor = big.NewInt(10000)

	// sharesAsset labels the internal share ledger.
	sharesAsset = "LP-SHARES"
)

// LeftoverPolicy decides what happens to balance in excess of reserves after
// a disproportionate deposit or an unsolicited transfer.
type LeftoverPolicy uint8

const (
	// LeftoverDonate leaves excess balance in the pool; the next reserve
	// update folds it in for the benefit of all share holders.
	LeftoverDonate LeftoverPolicy = iota
	// LeftoverSkim additionally allows Skim to pay the excess out.
	LeftoverSkim
)

// Config configures a pool. TokenA/TokenB and LedgerA/LedgerB are reordered
// into canonical token0 < token1 form by New.
type Config struct {
	TokenA  common.Address
	TokenB  common.Address
	LedgerA ledger.AssetLedger
	LedgerB ledger.AssetLedger

	// Address is the pool's holder identity on the asset ledgers. Zero
	// means derive it from the ordered pair.
	Address common.Address

	// FlashFeeBps is the flash-loan fee in basis points. Fees round down,
	// in the borrower's favor.
	FlashFeeBps uint16

	LeftoverPolicy LeftoverPolicy

	// Now supplies the 32-bit timestamp used by the price accumulator.
	// Nil means unix time truncated mod 2^32.
	Now func() uint32

	Logger   *slog.Logger
	Sink     Sink
	Registry prometheus.Registerer
}

// Pool is a constant-product pair. Construct with New; the token pair,
// ledgers and address are immutable afterward.
type Pool struct {
	token0, token1 common.Address
	asset0, asset1 ledger.AssetLedger
	addr           common.Address

	// shares is the liquidity-share ledger; supply changes only inside
	// guarded operations.
	shares *ledger.Ledger

	// mu is the operation guard: acquired before any balance read in a
	// mutating operation, released after the final commit. Nested or
	// concurrent entry fails immediately instead of waiting.
	mu sync.Mutex

	// stateMu protects the committed fields below for readers.
	stateMu            sync.RWMutex
	reserve0           *big.Int
	reserve1           *big.Int
	blockTimestampLast uint32
	price0Cumulative   *uint256.Int
	price1Cumulative   *uint256.Int

	flashFeeBps    uint16
	leftoverPolicy LeftoverPolicy
	now            func() uint32

	logger  *slog.Logger
	sink    Sink
	metrics *metrics
}

// DeriveAddress returns the deterministic pool address for an ordered pair:
// the low 20 bytes of keccak256(token0 || token1).
func DeriveAddress(token0, token1 common.Address) common.Address {
	h := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return common.BytesToAddress(h.Bytes()[12:])
}

// New validates the config and constructs an empty pool.
func New(cfg Config) (*Pool, error) {
	if cfg.TokenA == cfg.TokenB {
		return nil, fmt.Errorf("%w: %s", ErrIdenticalAssets, cfg.TokenA.Hex())
	}
	if cfg.TokenA == (common.Address{}) || cfg.TokenB == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if cfg.LedgerA == nil || cfg.LedgerB == nil {
		return nil, ErrNilLedger
	}

	token0, token1 := cfg.TokenA, cfg.TokenB
	asset0, asset1 := cfg.LedgerA, cfg.LedgerB
	if token0.Cmp(token1) > 0 {
		token0, token1 = token1, token0
		asset0, asset1 = asset1, asset0
	}

	addr := cfg.Address
	if addr == (common.Address{}) {
		addr = DeriveAddress(token0, token1)
	}

	now := cfg.Now
	if now == nil {
		now = func() uint32 { return uint32(time.Now().Unix()) }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		token0:           token0,
		token1:           token1,
		asset0:           asset0,
		asset1:           asset1,
		addr:             addr,
		shares:           ledger.New(sharesAsset),
		reserve0:         new(big.Int),
		reserve1:         new(big.Int),
		price0Cumulative: new(uint256.Int),
		price1Cumulative: new(uint256.Int),
		flashFeeBps:      cfg.FlashFeeBps,
		leftoverPolicy:   cfg.LeftoverPolicy,
		now:              now,
		logger:           logger.With("pool", addr.Hex()),
		sink:             cfg.Sink,
		metrics:          newMetrics(cfg.Registry, addr.Hex()),
	}, nil
}

// --- guard ---

// lock acquires the operation guard without waiting. The execution model is
// cooperative with synchronous external callbacks; a callback re-entering
// the pool mid-operation must fail, not queue behind itself.
func (p *Pool) lock() error {
	if !p.mu.TryLock() {
		p.metrics.rejectReentrant()
		return ErrReentrantCall
	}
	return nil
}

func (p *Pool) unlock() { p.mu.Unlock() }

// --- journal ---

// checkpoint captures everything a guarded operation may mutate so a failure
// rolls all of it back: both asset ledgers, the share ledger and the pool's
// committed state.
type checkpoint struct {
	snap0, snap1, snapShares int
	reserve0, reserve1       *big.Int
	blockTimestampLast       uint32
	price0, price1           *uint256.Int
}

func (p *Pool) begin() checkpoint {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return checkpoint{
		snap0:              p.asset0.Snapshot(),
		snap1:              p.asset1.Snapshot(),
		snapShares:         p.shares.Snapshot(),
		reserve0:           new(big.Int).Set(p.reserve0),
		reserve1:           new(big.Int).Set(p.reserve1),
		blockTimestampLast: p.blockTimestampLast,
		price0:             p.price0Cumulative.Clone(),
		price1:             p.price1Cumulative.Clone(),
	}
}

func (p *Pool) rollback(cp checkpoint) {
	// Revert newest-first so cross-ledger ordering cannot matter.
	if err := p.asset1.RevertToSnapshot(cp.snap1); err != nil {
		p.logger.Error("asset1 journal revert failed", "error", err)
	}
	if err := p.asset0.RevertToSnapshot(cp.snap0); err != nil {
		p.logger.Error("asset0 journal revert failed", "error", err)
	}
	if err := p.shares.RevertToSnapshot(cp.snapShares); err != nil {
		p.logger.Error("share journal revert failed", "error", err)
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.reserve0.Set(cp.reserve0)
	p.reserve1.Set(cp.reserve1)
	p.blockTimestampLast = cp.blockTimestampLast
	p.price0Cumulative.Set(cp.price0)
	p.price1Cumulative.Set(cp.price1)
}

// finish settles a guarded operation: rollback on error, metrics either way.
// A committed operation can never be reverted, so its undo history is dropped
// here; the pool lives forever and journals must not accumulate across
// operations.
func (p *Pool) finish(op string, cp checkpoint, err error) {
	p.metrics.observe(op, err)
	if err != nil {
		p.rollback(cp)
		return
	}
	p.asset0.DiscardJournal()
	p.asset1.DiscardJournal()
	p.shares.DiscardJournal()
	p.metrics.setReserves(p.token0.Hex(), p.token1.Hex(), p.reserve0, p.reserve1, p.shares.TotalSupply())
}

// --- reserve update / price accumulator ---

// update commits freshly observed balances as the new reserves.
//
// The accumulators advance by the marginal price that prevailed immediately
// before this update, scaled by wrapping 32-bit elapsed time. Using the
// previous reserves (never the incoming balances) closes the single-operation
// price manipulation vector; accumulation happens at most once per distinct
// timestamp because elapsed is zero within one.
func (p *Pool) update(balance0, balance1 *big.Int) error {
	if balance0.BitLen() > reserveBits || balance1.BitLen() > reserveBits {
		return fmt.Errorf("%w: balances %s / %s", ErrReserveOverflow, balance0, balance1)
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	ts := p.now()
	elapsed := ts - p.blockTimestampLast // wraps mod 2^32 by design
	if elapsed > 0 && p.reserve0.Sign() != 0 && p.reserve1.Sign() != 0 {
		r0, _ := uint256.FromBig(p.reserve0)
		r1, _ := uint256.FromBig(p.reserve1)
		e := uint64(elapsed)
		p.price0Cumulative.Add(p.price0Cumulative, fixedpoint.Mul(fixedpoint.Fraction(r1, r0), e))
		p.price1Cumulative.Add(p.price1Cumulative, fixedpoint.Mul(fixedpoint.Fraction(r0, r1), e))
	}

	p.reserve0.Set(balance0)
	p.reserve1.Set(balance1)
	p.blockTimestampLast = ts
	return nil
}

// --- balances ---

func (p *Pool) balance0() *big.Int { return p.asset0.BalanceOf(p.addr) }
func (p *Pool) balance1() *big.Int { return p.asset1.BalanceOf(p.addr) }

// ledgerFor maps an asset identifier to its ledger and direction.
func (p *Pool) ledgerFor(token common.Address) (ledger.AssetLedger, bool) {
	switch token {
	case p.token0:
		return p.asset0, true
	case p.token1:
		return p.asset1, true
	}
	return nil, false
}

// --- reads ---

// Tokens returns the canonical asset pair.
func (p *Pool) Tokens() (token0, token1 common.Address) {
	return p.token0, p.token1
}

// Address returns the pool's holder identity on the asset ledgers.
func (p *Pool) Address() common.Address { return p.addr }

// GetReserves returns copies of the committed reserves and the timestamp of
// the last reserve update (mod 2^32).
func (p *Pool) GetReserves() (reserve0, reserve1 *big.Int, blockTimestampLast uint32) {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1), p.blockTimestampLast
}

// PriceCumulatives returns copies of the cumulative price counters. They are
// UQ112.112 price-seconds and wrap at 2^256 by design; consumers must use
// modular subtraction.
func (p *Pool) PriceCumulatives() (price0, price1 *uint256.Int) {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.price0Cumulative.Clone(), p.price1Cumulative.Clone()
}

// CumulativePricesAt extrapolates the counters to the given timestamp
// without mutating pool state, so oracle consumers can observe between
// updates. The same wraparound contract applies.
func (p *Pool) CumulativePricesAt(now uint32) (price0, price1 *uint256.Int) {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()

	price0 = p.price0Cumulative.Clone()
	price1 = p.price1Cumulative.Clone()
	elapsed := now - p.blockTimestampLast
	if elapsed > 0 && p.reserve0.Sign() != 0 && p.reserve1.Sign() != 0 {
		r0, _ := uint256.FromBig(p.reserve0)
		r1, _ := uint256.FromBig(p.reserve1)
		e := uint64(elapsed)
		price0.Add(price0, fixedpoint.Mul(fixedpoint.Fraction(r1, r0), e))
		price1.Add(price1, fixedpoint.Mul(fixedpoint.Fraction(r0, r1), e))
	}
	return price0, price1
}

// TotalShares returns the outstanding liquidity-share supply.
func (p *Pool) TotalShares() *big.Int { return p.shares.TotalSupply() }

// SharesOf returns owner's liquidity-share balance.
func (p *Pool) SharesOf(owner common.Address) *big.Int { return p.shares.BalanceOf(owner) }

// TransferShares moves liquidity shares between holders; shares are fungible
// claims and move freely outside guarded operations.
func (p *Pool) TransferShares(from, to common.Address, amount *big.Int) error {
	return p.shares.Transfer(from, to, amount)
}

// View returns a pricing snapshot for the quote package. Reserves are deep
// copies; mutating the view cannot touch the pool.
func (p *Pool) View() quote.View {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return quote.View{
		Pool:     p.addr,
		Token0:   p.token0,
		Token1:   p.token1,
		Reserve0: new(big.Int).Set(p.reserve0),
		Reserve1: new(big.Int).Set(p.reserve1),
		FeeBps:   FeeBps,
	}
}

// Snapshot is a deep copy of the pool's full committed state for observers.
type Snapshot struct {
	Pool               common.Address
	Token0, Token1     common.Address
	Reserve0, Reserve1 *big.Int
	BlockTimestampLast uint32
	Price0Cumulative   *uint256.Int
	Price1Cumulative   *uint256.Int
	TotalShares        *big.Int
}

// Snapshot captures the committed state.
func (p *Pool) Snapshot() Snapshot {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return Snapshot{
		Pool:               p.addr,
		Token0:             p.token0,
		Token1:             p.token1,
		Reserve0:           new(big.Int).Set(p.reserve0),
		Reserve1:           new(big.Int).Set(p.reserve1),
		BlockTimestampLast: p.blockTimestampLast,
		Price0Cumulative:   p.price0Cumulative.Clone(),
		Price1Cumulative:   p.price1Cumulative.Clone(),
		TotalShares:        p.shares.TotalSupply(),
	}
}
