// Package quote provides read-only pricing over a pool view: expected
// output for a given input, required input for a desired output, and full
// swap simulation. It is the off-hot-path counterpart to the pool engine
// and never touches pool state.
package quote

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// basisPointDivisor is a constant representing 100% in basis points (10000).
	basisPointDivisor = big.NewInt(10000)

	one = big.NewInt(1)

	// ErrInvalidAmount is returned when an input/output amount is negative.
	ErrInvalidAmount = errors.New("amount must be non-nil and non-negative")
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrTokenMismatch is returned when the specified input/output tokens do not match the view's tokens.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrInvalidState is returned for internal calculation errors, like division by zero.
	ErrInvalidState = errors.New("invalid internal state")
	// ErrInsufficientLiquidity is returned when an amountOut is requested that is greater than or equal to the available reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
)

// View is an immutable snapshot of a pool taken for pricing. Reserves are
// owned by the view; producers deep-copy before handing one out.
type View struct {
	Pool     common.Address `json:"pool"`
	Token0   common.Address `json:"token0"`
	Token1   common.Address `json:"token1"`
	Reserve0 *big.Int       `json:"reserve0"`
	Reserve1 *big.Int       `json:"reserve1"`
	FeeBps   uint16         `json:"feeBps"` // i.e 30 for 0.3%
}

// Calculator holds reusable big.Int objects to avoid memory allocations during calculations.
// Instances of this struct are NOT safe for concurrent use by themselves.
// They are intended to be managed by the sync.Pool below.
type Calculator struct {
	feeMultiplier   *big.Int
	amountInWithFee *big.Int
	numerator       *big.Int
	denominator     *big.Int

	numeratorIn   *big.Int
	denominatorIn *big.Int

	newReserve0 *big.Int
	newReserve1 *big.Int
}

// calculatorPool manages a pool of Calculator objects, allowing for safe
// concurrent use while keeping per-quote allocations near zero.
var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			feeMultiplier:   new(big.Int),
			amountInWithFee: new(big.Int),
			numerator:       new(big.Int),
			denominator:     new(big.Int),
			numeratorIn:     new(big.Int),
			denominatorIn:   new(big.Int),
			newReserve0:     new(big.Int),
			newReserve1:     new(big.Int),
		}
	},
}

// GetAmountOut calculates the output amount for a swap of amountIn.
func GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, view View) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(amountIn, tokenIn, tokenOut, view)
}

// GetAmountIn calculates the input amount required to receive amountOut.
func GetAmountIn(amountOut *big.Int, tokenIn, tokenOut common.Address, view View) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountIn(amountOut, tokenIn, tokenOut, view)
}

// SimulateSwap calculates the result of a swap and the post-swap view.
func SimulateSwap(amountIn *big.Int, tokenIn, tokenOut common.Address, view View) (*big.Int, View, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.simulateSwap(amountIn, tokenIn, tokenOut, view)
}

// getAmountOut is the internal calculation method that uses the pre-allocated fields.
func (c *Calculator) getAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, view View) (*big.Int, error) {
	if amountIn == nil {
		return nil, ErrNilAmount
	}
	if amountIn.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn, reserveOut, err := Reserves(tokenIn, tokenOut, view)
	if err != nil {
		return nil, err
	}

	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int), nil
	}

	c.feeMultiplier.Sub(basisPointDivisor, big.NewInt(int64(view.FeeBps)))
	c.amountInWithFee.Mul(amountIn, c.feeMultiplier)
	c.numerator.Mul(reserveOut, c.amountInWithFee)
	c.denominator.Mul(reserveIn, basisPointDivisor)
	c.denominator.Add(c.denominator, c.amountInWithFee)

	if c.denominator.Sign() == 0 {
		return nil, fmt.Errorf("%w: quote denominator is zero", ErrInvalidState)
	}

	return new(big.Int).Div(c.numerator, c.denominator), nil
}

// getAmountIn is the internal calculation method for finding the required input for a desired output.
func (c *Calculator) getAmountIn(amountOut *big.Int, tokenIn, tokenOut common.Address, view View) (*big.Int, error) {
	if amountOut == nil {
		return nil, ErrNilAmount
	}
	if amountOut.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn, reserveOut, err := Reserves(tokenIn, tokenOut, view)
	if err != nil {
		return nil, err
	}

	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)",
			ErrInsufficientLiquidity, amountOut.String(), reserveOut.String())
	}

	// amountIn = (reserveIn * amountOut * 10000) / ((reserveOut - amountOut) * (10000 - fee)) + 1
	c.numeratorIn.Mul(reserveIn, amountOut)
	c.numeratorIn.Mul(c.numeratorIn, basisPointDivisor)

	c.feeMultiplier.Sub(basisPointDivisor, big.NewInt(int64(view.FeeBps)))
	c.denominatorIn.Sub(reserveOut, amountOut)
	c.denominatorIn.Mul(c.denominatorIn, c.feeMultiplier)

	if c.denominatorIn.Sign() == 0 {
		return nil, fmt.Errorf("%w: quote denominator is zero", ErrInvalidState)
	}

	amountIn := new(big.Int).Div(c.numeratorIn, c.denominatorIn)
	return amountIn.Add(amountIn, one), nil
}

// simulateSwap is the internal calculation method that uses pre-allocated fields.
func (c *Calculator) simulateSwap(amountIn *big.Int, tokenIn, tokenOut common.Address, view View) (*big.Int, View, error) {
	amountOut, err := c.getAmountOut(amountIn, tokenIn, tokenOut, view)
	if err != nil {
		return nil, View{}, err
	}

	next := view

	if tokenIn == view.Token0 {
		c.newReserve0.Add(view.Reserve0, amountIn)
		c.newReserve1.Sub(view.Reserve1, amountOut)
	} else { // tokenIn == view.Token1
		c.newReserve1.Add(view.Reserve1, amountIn)
		c.newReserve0.Sub(view.Reserve0, amountOut)
	}

	next.Reserve0 = new(big.Int).Set(c.newReserve0)
	next.Reserve1 = new(big.Int).Set(c.newReserve1)

	return amountOut, next, nil
}

// Reserves orients the view's reserves for the given trade direction.
func Reserves(tokenIn, tokenOut common.Address, view View) (reserveIn, reserveOut *big.Int, err error) {
	switch {
	case tokenIn == view.Token0 && tokenOut == view.Token1:
		return view.Reserve0, view.Reserve1, nil
	case tokenIn == view.Token1 && tokenOut == view.Token0:
		return view.Reserve1, view.Reserve0, nil
	}
	return nil, nil, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s",
		ErrTokenMismatch, view.Pool.Hex(), tokenIn.Hex(), tokenOut.Hex())
}
