package pool

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/defistate/amm-pool-go/quote"
)

// FlashLoanSuccess is the well-known value a flash borrower must return to
// acknowledge the loan. Any other value fails the whole operation.
var FlashLoanSuccess = crypto.Keccak256Hash([]byte("amm-pool-go.FlashBorrower.onFlashLoan"))

// FlashBorrower receives an uncollateralized loan for the duration of one
// synchronous callback. The borrower must hold amount+fee at its Address by
// the time the callback returns and must have approved the pool to pull it.
type FlashBorrower interface {
	Address() common.Address
	OnFlashLoan(initiator, asset common.Address, amount, fee *big.Int, data []byte) (common.Hash, error)
}

// FlashSwapReceiver receives pool output before paying for it. The callback
// is told which asset is owed and how much; repayment must have arrived at
// the pool by the time it returns.
type FlashSwapReceiver interface {
	Address() common.Address
	OnFlashSwap(initiator, tokenOut common.Address, amountOut *big.Int, tokenOwed common.Address, amountOwed *big.Int, data []byte) error
}

// FlashFee returns the rounded-down fee for borrowing amount. Rounding
// favors the borrower: small loans can be free.
func (p *Pool) FlashFee(amount *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(int64(p.flashFeeBps)))
	return fee.Div(fee, basisPointDivisor)
}

// FlashLoan lends amount of asset to the receiver for one synchronous
// callback, then pulls amount+fee back and credits the fee to the reserve,
// growing the invariant product for liquidity providers.
func (p *Pool) FlashLoan(receiver FlashBorrower, asset common.Address, amount *big.Int, data []byte) (err error) {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount", ErrInvalidAmount)
	}
	l, ok := p.ledgerFor(asset)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, asset.Hex())
	}

	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	cp := p.begin()
	defer func() { p.finish("flash_loan", cp, err) }()

	reserve := cp.reserve0
	if asset == p.token1 {
		reserve = cp.reserve1
	}
	if amount.Cmp(reserve) > 0 {
		return fmt.Errorf("%w: borrow %s against reserve %s", ErrInsufficientLiquidity, amount, reserve)
	}

	borrower := receiver.Address()
	if err := l.Transfer(p.addr, borrower, amount); err != nil {
		return err
	}
	fee := p.FlashFee(amount)

	ret, cbErr := receiver.OnFlashLoan(p.addr, asset, amount, fee, data)
	if cbErr != nil {
		return fmt.Errorf("%w: %v", ErrFlashLoanFailed, cbErr)
	}
	if ret != FlashLoanSuccess {
		return fmt.Errorf("%w: returned %s", ErrFlashLoanFailed, ret.Hex())
	}

	owed := new(big.Int).Add(amount, fee)
	before := l.BalanceOf(p.addr)
	if err := l.TransferFrom(p.addr, borrower, p.addr, owed); err != nil {
		return fmt.Errorf("%w: %v", ErrFlashLoanNotRepaid, err)
	}
	repaid := new(big.Int).Sub(l.BalanceOf(p.addr), before)
	if repaid.Cmp(owed) < 0 {
		return fmt.Errorf("%w: received %s, owed %s", ErrFlashLoanNotRepaid, repaid, owed)
	}

	if err := p.update(p.balance0(), p.balance1()); err != nil {
		return err
	}

	p.logger.Debug("flash loan settled", "receiver", borrower.Hex(), "asset", asset.Hex(), "amount", amount, "fee", fee)
	p.emit(FlashLoanEvent{
		Pool:     p.addr,
		Receiver: borrower,
		Asset:    asset,
		Amount:   new(big.Int).Set(amount),
		Fee:      fee,
	})
	p.emitSync()
	return nil
}

// FlashSwap transfers amountOut of tokenOut to the receiver, tells the
// callback how much of the other asset is owed, and verifies the repayment
// both arrived and does not exceed maxRepay. The repayment bound defends the
// receiver against unbounded-repayment griefing; nil means no bound.
func (p *Pool) FlashSwap(tokenOut common.Address, amountOut, maxRepay *big.Int, receiver FlashSwapReceiver, data []byte) (err error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return ErrInsufficientOutputAmount
	}
	ledgerOut, ok := p.ledgerFor(tokenOut)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, tokenOut.Hex())
	}

	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	cp := p.begin()
	defer func() { p.finish("flash_swap", cp, err) }()

	tokenIn := p.token0
	ledgerIn := p.asset0
	if tokenOut == p.token0 {
		tokenIn = p.token1
		ledgerIn = p.asset1
	}

	view := quote.View{
		Pool:     p.addr,
		Token0:   p.token0,
		Token1:   p.token1,
		Reserve0: cp.reserve0,
		Reserve1: cp.reserve1,
		FeeBps:   FeeBps,
	}
	required, err := quote.GetAmountIn(amountOut, tokenIn, tokenOut, view)
	if err != nil {
		if errors.Is(err, quote.ErrInsufficientLiquidity) {
			return fmt.Errorf("%w: output %s", ErrInsufficientLiquidity, amountOut)
		}
		return err
	}
	if maxRepay != nil && required.Cmp(maxRepay) > 0 {
		return fmt.Errorf("%w: required %s > max %s", ErrRepaymentAboveMax, required, maxRepay)
	}

	to := receiver.Address()
	if err := ledgerOut.Transfer(p.addr, to, amountOut); err != nil {
		return err
	}

	inBefore := ledgerIn.BalanceOf(p.addr)
	if cbErr := receiver.OnFlashSwap(p.addr, tokenOut, amountOut, tokenIn, required, data); cbErr != nil {
		return fmt.Errorf("%w: %v", ErrCallbackFailed, cbErr)
	}
	received := new(big.Int).Sub(ledgerIn.BalanceOf(p.addr), inBefore)
	if received.Cmp(required) < 0 {
		return fmt.Errorf("%w: received %s, owed %s", ErrFlashLoanNotRepaid, received, required)
	}
	if maxRepay != nil && received.Cmp(maxRepay) > 0 {
		return fmt.Errorf("%w: received %s > max %s", ErrRepaymentAboveMax, received, maxRepay)
	}

	balance0, balance1 := p.balance0(), p.balance1()
	if err := p.update(balance0, balance1); err != nil {
		return err
	}

	amount0In, amount1In := received, new(big.Int)
	amount0Out, amount1Out := new(big.Int), amountOut
	if tokenOut == p.token0 {
		amount0In, amount1In = amount1In, amount0In
		amount0Out, amount1Out = amount1Out, amount0Out
	}

	p.logger.Debug("flash swap settled", "receiver", to.Hex(),
		"tokenOut", tokenOut.Hex(), "amountOut", amountOut, "repaid", received)
	p.emit(SwapEvent{
		Pool:       p.addr,
		To:         to,
		Amount0In:  new(big.Int).Set(amount0In),
		Amount1In:  new(big.Int).Set(amount1In),
		Amount0Out: new(big.Int).Set(amount0Out),
		Amount1Out: new(big.Int).Set(amount1Out),
	})
	p.emitSync()
	return nil
}
