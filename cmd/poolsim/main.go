package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/amm-pool-go/factory"
	"github.com/defistate/amm-pool-go/ledger"
	"github.com/defistate/amm-pool-go/pool"
)

var (
	lpAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	traderAddr = common.HexToAddress("0x00000000000000000000000000000000000000a2")
)

// slogSink logs every committed pool event.
type slogSink struct {
	logger *slog.Logger
}

func (s slogSink) Emit(e pool.Event) {
	switch ev := e.(type) {
	case pool.MintEvent:
		s.logger.Info("event", "type", "mint", "recipient", ev.Recipient, "amount0", ev.Amount0, "amount1", ev.Amount1, "shares", ev.Shares)
	case pool.BurnEvent:
		s.logger.Info("event", "type", "burn", "owner", ev.Owner, "to", ev.To, "amount0", ev.Amount0, "amount1", ev.Amount1, "shares", ev.Shares)
	case pool.SwapEvent:
		s.logger.Info("event", "type", "swap", "to", ev.To, "amount0_in", ev.Amount0In, "amount1_in", ev.Amount1In, "amount0_out", ev.Amount0Out, "amount1_out", ev.Amount1Out)
	case pool.FlashLoanEvent:
		s.logger.Info("event", "type", "flash_loan", "receiver", ev.Receiver, "asset", ev.Asset, "amount", ev.Amount, "fee", ev.Fee)
	case pool.SyncEvent:
		s.logger.Info("event", "type", "sync", "reserve0", ev.Reserve0, "reserve1", ev.Reserve1, "timestamp", ev.Timestamp)
	default:
		s.logger.Info("event", "topic", e.Topic())
	}
}

// approvingBorrower takes a flash loan and immediately sets up repayment
// from its pre-funded balance.
type approvingBorrower struct {
	addr    common.Address
	ledgers map[common.Address]*ledger.Ledger
	pool    common.Address
}

func (b *approvingBorrower) Address() common.Address { return b.addr }

func (b *approvingBorrower) OnFlashLoan(_, asset common.Address, amount, fee *big.Int, _ []byte) (common.Hash, error) {
	l, ok := b.ledgers[asset]
	if !ok {
		return common.Hash{}, fmt.Errorf("borrower has no ledger for asset %s", asset)
	}
	owed := new(big.Int).Add(amount, fee)
	l.Approve(b.addr, b.pool, owed)
	return pool.FlashLoanSuccess, nil
}

func main() {
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	close := func() {
		os.Exit(1)
	}

	rootLogger := slog.New(rootLogHandler)
	prometheusRegistry := prometheus.DefaultRegisterer
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		close()
	}
	rootLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, rootLogger, prometheusRegistry); err != nil {
		rootLogger.Error("Session failed", "error", err)
		close()
	}
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger, registry prometheus.Registerer) error {
	tokenA := assetAddress(cfg.AssetA.Symbol)
	tokenB := assetAddress(cfg.AssetB.Symbol)
	ledgerA := ledger.New(cfg.AssetA.Symbol)
	ledgerB := ledger.New(cfg.AssetB.Symbol)

	ledgers := map[common.Address]*ledger.Ledger{tokenA: ledgerA, tokenB: ledgerB}
	symbols := map[string]common.Address{cfg.AssetA.Symbol: tokenA, cfg.AssetB.Symbol: tokenB}

	for _, actor := range []common.Address{lpAddr, traderAddr} {
		supplyA, err := parseAmount(cfg.AssetA.ActorSupply)
		if err != nil {
			return err
		}
		supplyB, err := parseAmount(cfg.AssetB.ActorSupply)
		if err != nil {
			return err
		}
		if err := ledgerA.Mint(actor, supplyA); err != nil {
			return fmt.Errorf("fund %s: %w", actor, err)
		}
		if err := ledgerB.Mint(actor, supplyB); err != nil {
			return fmt.Errorf("fund %s: %w", actor, err)
		}
	}

	policy := pool.LeftoverDonate
	if cfg.AllowSkim {
		policy = pool.LeftoverSkim
	}

	f := factory.New(logger, registry, slogSink{logger: logger.With("component", "events")})
	p, err := f.CreatePool(tokenA, tokenB, ledgerA, ledgerB, factory.PoolOptions{
		FlashFeeBps:    cfg.FlashFeeBps,
		LeftoverPolicy: policy,
	})
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	logger.Info("Pool created", "address", p.Address(), "asset_a", cfg.AssetA.Symbol, "asset_b", cfg.AssetB.Symbol)

	if err := seedLiquidity(cfg, p, ledgers); err != nil {
		return fmt.Errorf("seed liquidity: %w", err)
	}

	borrower := &approvingBorrower{
		addr:    common.HexToAddress("0x00000000000000000000000000000000000000a3"),
		ledgers: ledgers,
		pool:    p.Address(),
	}

	for i, step := range cfg.Steps {
		select {
		case <-ctx.Done():
			logger.Info("Interrupted", "completed_steps", i)
			return nil
		default:
		}
		if err := runStep(p, step, cfg, symbols, ledgers, borrower); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	r0, r1, ts := p.GetReserves()
	logger.Info("Session complete",
		"steps", len(cfg.Steps),
		"reserve0", r0,
		"reserve1", r1,
		"timestamp", ts,
		"total_shares", p.TotalShares(),
		"lp_shares", p.SharesOf(lpAddr),
	)
	return nil
}

func seedLiquidity(cfg *Config, p *pool.Pool, ledgers map[common.Address]*ledger.Ledger) error {
	amountA, err := parseAmount(cfg.InitialLiquidity.AmountA)
	if err != nil {
		return err
	}
	amountB, err := parseAmount(cfg.InitialLiquidity.AmountB)
	if err != nil {
		return err
	}
	tokenA := assetAddress(cfg.AssetA.Symbol)
	tokenB := assetAddress(cfg.AssetB.Symbol)
	if err := ledgers[tokenA].Transfer(lpAddr, p.Address(), amountA); err != nil {
		return err
	}
	if err := ledgers[tokenB].Transfer(lpAddr, p.Address(), amountB); err != nil {
		return err
	}
	_, err = p.Mint(lpAddr)
	return err
}

func runStep(p *pool.Pool, step Step, cfg *Config, symbols map[string]common.Address, ledgers map[common.Address]*ledger.Ledger, borrower *approvingBorrower) error {
	switch step.Op {
	case "swap":
		tokenIn, ok := symbols[step.TokenIn]
		if !ok {
			return fmt.Errorf("unknown token %q", step.TokenIn)
		}
		amountIn, err := parseAmount(step.AmountIn)
		if err != nil {
			return err
		}
		minOut, err := parseAmount(step.MinOut)
		if err != nil {
			return err
		}
		ledgers[tokenIn].Approve(traderAddr, p.Address(), amountIn)
		_, err = p.SwapExactIn(tokenIn, amountIn, minOut, traderAddr, traderAddr)
		return err

	case "mint":
		amountA, err := parseAmount(step.AmountA)
		if err != nil {
			return err
		}
		amountB, err := parseAmount(step.AmountB)
		if err != nil {
			return err
		}
		tokenA := symbols[cfg.AssetA.Symbol]
		tokenB := symbols[cfg.AssetB.Symbol]
		if err := ledgers[tokenA].Transfer(lpAddr, p.Address(), amountA); err != nil {
			return err
		}
		if err := ledgers[tokenB].Transfer(lpAddr, p.Address(), amountB); err != nil {
			return err
		}
		_, err = p.Mint(lpAddr)
		return err

	case "burn":
		shares, err := parseAmount(step.Shares)
		if err != nil {
			return err
		}
		_, _, err = p.Burn(lpAddr, shares, lpAddr)
		return err

	case "flashloan":
		asset, ok := symbols[step.Asset]
		if !ok {
			return fmt.Errorf("unknown asset %q", step.Asset)
		}
		amount, err := parseAmount(step.Amount)
		if err != nil {
			return err
		}
		// pre-fund the fee so the borrower can repay in full
		fee := p.FlashFee(amount)
		if fee.Sign() > 0 {
			if err := ledgers[asset].Mint(borrower.Address(), fee); err != nil {
				return err
			}
		}
		return p.FlashLoan(borrower, asset, amount, nil)

	case "sync":
		return p.Sync()

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

// assetAddress derives a deterministic address from an asset symbol so
// session files only need to name symbols.
func assetAddress(symbol string) common.Address {
	h := crypto.Keccak256Hash([]byte("amm-pool-go.asset." + symbol))
	return common.BytesToAddress(h.Bytes()[12:])
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadConfig() (*Config, error) {
	configPath := flag.String("config", "config.yaml", "Path to the session file.")
	flag.Parse()
	log.Printf("Loading session from: %s", *configPath)
	return LoadConfig(*configPath)
}
