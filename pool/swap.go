package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapCallee is the optional hook invoked by Swap after the optimistic
// output transfer and before invariant verification. Returning an error
// aborts the swap with a full rollback. The pool guard is held for the
// duration: a callee re-entering the pool gets ErrReentrantCall.
type SwapCallee interface {
	OnSwap(initiator, to common.Address, amount0Out, amount1Out *big.Int, data []byte) error
}

// Swap is the push-then-verify entry point: the caller names desired output
// amounts and a recipient, outputs are transferred optimistically, the hook
// (if any) runs, and actual inputs are inferred from observed balance
// deltas. The fee-adjusted constant product must not decrease:
//
//	(balance0*1000 - in0*3) * (balance1*1000 - in1*3) >= reserve0*reserve1*1000^2
//
// Any violation aborts the whole operation with no partial effect.
func (p *Pool) Swap(amount0Out, amount1Out *big.Int, to common.Address, callee SwapCallee, data []byte) (err error) {
	if amount0Out == nil {
		amount0Out = new(big.Int)
	}
	if amount1Out == nil {
		amount1Out = new(big.Int)
	}
	if amount0Out.Sign() < 0 || amount1Out.Sign() < 0 {
		return fmt.Errorf("%w: negative output", ErrInvalidAmount)
	}
	if amount0Out.Sign() == 0 && amount1Out.Sign() == 0 {
		return ErrInsufficientOutputAmount
	}
	if to == p.token0 || to == p.token1 {
		return fmt.Errorf("%w: %s", ErrInvalidRecipient, to.Hex())
	}

	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	cp := p.begin()
	defer func() { p.finish("swap", cp, err) }()

	// Reserves may never be fully drained.
	if amount0Out.Cmp(cp.reserve0) >= 0 || amount1Out.Cmp(cp.reserve1) >= 0 {
		return fmt.Errorf("%w: outputs %s / %s against reserves %s / %s",
			ErrInsufficientLiquidity, amount0Out, amount1Out, cp.reserve0, cp.reserve1)
	}

	if amount0Out.Sign() > 0 {
		if err := p.asset0.Transfer(p.addr, to, amount0Out); err != nil {
			return err
		}
	}
	if amount1Out.Sign() > 0 {
		if err := p.asset1.Transfer(p.addr, to, amount1Out); err != nil {
			return err
		}
	}
	if callee != nil {
		if err := callee.OnSwap(p.addr, to, amount0Out, amount1Out, data); err != nil {
			return fmt.Errorf("%w: %v", ErrCallbackFailed, err)
		}
	}

	balance0, balance1 := p.balance0(), p.balance1()

	// in = balance - (reserve - out), clamped at zero.
	amount0In := inferInput(balance0, cp.reserve0, amount0Out)
	amount1In := inferInput(balance1, cp.reserve1, amount1Out)
	if amount0In.Sign() == 0 && amount1In.Sign() == 0 {
		return ErrInsufficientInputAmount
	}

	adjusted0 := new(big.Int).Mul(balance0, big1000)
	adjusted0.Sub(adjusted0, new(big.Int).Mul(amount0In, big3))
	adjusted1 := new(big.Int).Mul(balance1, big1000)
	adjusted1.Sub(adjusted1, new(big.Int).Mul(amount1In, big3))

	kBefore := new(big.Int).Mul(new(big.Int).Mul(cp.reserve0, cp.reserve1), kScaleSq)
	if new(big.Int).Mul(adjusted0, adjusted1).Cmp(kBefore) < 0 {
		return fmt.Errorf("%w: inputs %s / %s, outputs %s / %s",
			ErrKInvariant, amount0In, amount1In, amount0Out, amount1Out)
	}

	if err := p.update(balance0, balance1); err != nil {
		return err
	}

	p.logger.Debug("swap executed", "to", to.Hex(),
		"amount0In", amount0In, "amount1In", amount1In,
		"amount0Out", amount0Out, "amount1Out", amount1Out)
	p.emit(SwapEvent{
		Pool:       p.addr,
		To:         to,
		Amount0In:  amount0In,
		Amount1In:  amount1In,
		Amount0Out: new(big.Int).Set(amount0Out),
		Amount1Out: new(big.Int).Set(amount1Out),
	})
	p.emitSync()
	return nil
}

// SwapExactIn is the pull-then-compute entry point: the pool pulls amountIn
// of tokenIn from the holder, measures what actually arrived, applies the
// fee to the measured input and pays out
//
//	amountOut = actualIn*997 * reserveOut / (reserveIn*1000 + actualIn*997)
//
// The holder must have approved the pool address on the input ledger.
func (p *Pool) SwapExactIn(tokenIn common.Address, amountIn, minOut *big.Int, from, to common.Address) (amountOut *big.Int, err error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amountIn", ErrInvalidAmount)
	}
	ledgerIn, ok := p.ledgerFor(tokenIn)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedToken, tokenIn.Hex())
	}
	if minOut == nil {
		minOut = new(big.Int)
	}

	if err := p.lock(); err != nil {
		return nil, err
	}
	defer p.unlock()

	cp := p.begin()
	defer func() { p.finish("swap_exact_in", cp, err) }()

	var ledgerOut = p.asset1
	var reserveIn, reserveOut = cp.reserve0, cp.reserve1
	if tokenIn == p.token1 {
		ledgerOut = p.asset0
		reserveIn, reserveOut = cp.reserve1, cp.reserve0
	}

	before := ledgerIn.BalanceOf(p.addr)
	if err := ledgerIn.TransferFrom(p.addr, from, p.addr, amountIn); err != nil {
		return nil, err
	}
	actualIn := new(big.Int).Sub(ledgerIn.BalanceOf(p.addr), before)
	if actualIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: measured delta %s", ErrInsufficientInputAmount, actualIn)
	}

	inWithFee := new(big.Int).Mul(actualIn, feeNumerator)
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big1000)
	denominator.Add(denominator, inWithFee)
	amountOut = numerator.Div(numerator, denominator)

	if amountOut.Sign() == 0 {
		return nil, ErrInsufficientOutputAmount
	}
	if amountOut.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrBelowMinimumOut, amountOut, minOut)
	}

	if err := ledgerOut.Transfer(p.addr, to, amountOut); err != nil {
		return nil, err
	}
	balance0, balance1 := p.balance0(), p.balance1()
	if err := p.update(balance0, balance1); err != nil {
		return nil, err
	}

	amount0In, amount1In := actualIn, new(big.Int)
	amount0Out, amount1Out := new(big.Int), amountOut
	if tokenIn == p.token1 {
		amount0In, amount1In = amount1In, amount0In
		amount0Out, amount1Out = amount1Out, amount0Out
	}

	p.logger.Debug("swap executed", "to", to.Hex(),
		"amount0In", amount0In, "amount1In", amount1In,
		"amount0Out", amount0Out, "amount1Out", amount1Out)
	p.emit(SwapEvent{
		Pool:       p.addr,
		To:         to,
		Amount0In:  new(big.Int).Set(amount0In),
		Amount1In:  new(big.Int).Set(amount1In),
		Amount0Out: new(big.Int).Set(amount0Out),
		Amount1Out: new(big.Int).Set(amount1Out),
	})
	p.emitSync()
	return amountOut, nil
}

// inferInput measures the inbound amount of one asset: what the balance
// gained over the reserve net of the optimistic output.
func inferInput(balance, reserve, out *big.Int) *big.Int {
	floor := new(big.Int).Sub(reserve, out)
	in := new(big.Int).Sub(balance, floor)
	if in.Sign() < 0 {
		return new(big.Int)
	}
	return in
}
