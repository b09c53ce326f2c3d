package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Mint converts whatever the caller has already deposited into liquidity
// shares for the recipient. Contributions are measured as balance minus
// reserve per asset; declared amounts are never consulted.
//
// The first deposit prices shares at the geometric mean of the two
// contributions and permanently locks MinimumLiquidity shares to the zero
// address. Later deposits are credited only for the limiting asset: shares
// are the minimum of the two proportional claims, and any excess of the
// other asset stays in the pool under the leftover policy.
func (p *Pool) Mint(to common.Address) (shares *big.Int, err error) {
	if err := p.lock(); err != nil {
		return nil, err
	}
	defer p.unlock()

	cp := p.begin()
	defer func() { p.finish("mint", cp, err) }()

	balance0, balance1 := p.balance0(), p.balance1()
	amount0 := new(big.Int).Sub(balance0, cp.reserve0)
	amount1 := new(big.Int).Sub(balance1, cp.reserve1)
	if amount0.Sign() <= 0 || amount1.Sign() <= 0 {
		return nil, fmt.Errorf("%w: contributed %s / %s", ErrInsufficientLiquidityMinted, amount0, amount1)
	}

	total := p.shares.TotalSupply()
	if total.Sign() == 0 {
		// shares = floor(sqrt(amount0 * amount1)) - MinimumLiquidity
		shares = new(big.Int).Sqrt(new(big.Int).Mul(amount0, amount1))
		shares.Sub(shares, big.NewInt(MinimumLiquidity))
		if shares.Sign() <= 0 {
			return nil, fmt.Errorf("%w: sqrt(%s*%s) <= %d", ErrMinimumLiquidity, amount0, amount1, MinimumLiquidity)
		}
		if err := p.shares.Mint(common.Address{}, big.NewInt(MinimumLiquidity)); err != nil {
			return nil, err
		}
	} else {
		byAmount0 := new(big.Int).Div(new(big.Int).Mul(amount0, total), cp.reserve0)
		byAmount1 := new(big.Int).Div(new(big.Int).Mul(amount1, total), cp.reserve1)
		shares = byAmount0
		if byAmount1.Cmp(shares) < 0 {
			shares = byAmount1
		}
		if shares.Sign() <= 0 {
			return nil, fmt.Errorf("%w: contributed %s / %s against reserves %s / %s",
				ErrInsufficientLiquidityMinted, amount0, amount1, cp.reserve0, cp.reserve1)
		}
	}

	if err := p.shares.Mint(to, shares); err != nil {
		return nil, err
	}
	if err := p.update(balance0, balance1); err != nil {
		return nil, err
	}

	p.logger.Debug("liquidity minted", "to", to.Hex(), "amount0", amount0, "amount1", amount1, "shares", shares)
	p.emit(MintEvent{
		Pool:      p.addr,
		Recipient: to,
		Amount0:   amount0,
		Amount1:   amount1,
		Shares:    new(big.Int).Set(shares),
	})
	p.emitSync()
	return shares, nil
}

// Burn redeems shares pro rata against current balances (not stale
// reserves, so donated or skim-pending excess is paid out too), transfers
// both assets to the recipient and commits the reduced reserves.
func (p *Pool) Burn(owner common.Address, shares *big.Int, to common.Address) (amount0, amount1 *big.Int, err error) {
	if shares == nil || shares.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: shares", ErrInvalidAmount)
	}
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	cp := p.begin()
	defer func() { p.finish("burn", cp, err) }()

	if p.shares.BalanceOf(owner).Cmp(shares) < 0 {
		return nil, nil, fmt.Errorf("%w: %s holds fewer than %s shares", ErrInsufficientLiquidityBurned, owner.Hex(), shares)
	}

	balance0, balance1 := p.balance0(), p.balance1()
	total := p.shares.TotalSupply()

	amount0 = new(big.Int).Div(new(big.Int).Mul(shares, balance0), total)
	amount1 = new(big.Int).Div(new(big.Int).Mul(shares, balance1), total)
	if amount0.Sign() == 0 || amount1.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: amounts %s / %s", ErrInsufficientLiquidityBurned, amount0, amount1)
	}

	if err := p.shares.Burn(owner, shares); err != nil {
		return nil, nil, err
	}
	if err := p.asset0.Transfer(p.addr, to, amount0); err != nil {
		return nil, nil, err
	}
	if err := p.asset1.Transfer(p.addr, to, amount1); err != nil {
		return nil, nil, err
	}

	if err := p.update(p.balance0(), p.balance1()); err != nil {
		return nil, nil, err
	}

	p.logger.Debug("liquidity burned", "owner", owner.Hex(), "to", to.Hex(), "amount0", amount0, "amount1", amount1, "shares", shares)
	p.emit(BurnEvent{
		Pool:    p.addr,
		Owner:   owner,
		To:      to,
		Amount0: new(big.Int).Set(amount0),
		Amount1: new(big.Int).Set(amount1),
		Shares:  new(big.Int).Set(shares),
	})
	p.emitSync()
	return amount0, amount1, nil
}

// Skim pays out any balance in excess of reserves. Only available under
// LeftoverSkim; the default policy donates excess to share holders.
func (p *Pool) Skim(to common.Address) (err error) {
	if p.leftoverPolicy != LeftoverSkim {
		return ErrSkimDisabled
	}
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	cp := p.begin()
	defer func() { p.finish("skim", cp, err) }()

	excess0 := new(big.Int).Sub(p.balance0(), cp.reserve0)
	excess1 := new(big.Int).Sub(p.balance1(), cp.reserve1)
	if excess0.Sign() > 0 {
		if err := p.asset0.Transfer(p.addr, to, excess0); err != nil {
			return err
		}
	}
	if excess1.Sign() > 0 {
		if err := p.asset1.Transfer(p.addr, to, excess1); err != nil {
			return err
		}
	}
	return nil
}

// Sync force-commits current ledger balances as reserves, for recovering
// from unsolicited transfers.
func (p *Pool) Sync() (err error) {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	cp := p.begin()
	defer func() { p.finish("sync", cp, err) }()

	if err := p.update(p.balance0(), p.balance1()); err != nil {
		return err
	}
	p.emitSync()
	return nil
}
