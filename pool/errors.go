package pool

import "errors"

var (
	// ErrIdenticalAssets is returned when a pool is constructed over one asset.
	ErrIdenticalAssets = errors.New("identical assets")
	// ErrZeroAddress is returned when an asset identifier is the zero address.
	ErrZeroAddress = errors.New("zero address asset")
	// ErrNilLedger is returned when a pool is constructed without both asset ledgers.
	ErrNilLedger = errors.New("nil asset ledger")
	// ErrUnsupportedToken is returned when an operation names an asset outside the pair.
	ErrUnsupportedToken = errors.New("token not in pair")
	// ErrInvalidRecipient is returned when a swap recipient is one of the pool's assets.
	ErrInvalidRecipient = errors.New("invalid recipient")
	// ErrInvalidAmount is returned when an amount is nil or not positive.
	ErrInvalidAmount = errors.New("amount must be non-nil and positive")

	// ErrMinimumLiquidity is returned when the first deposit is too small to
	// cover the permanently locked share allocation.
	ErrMinimumLiquidity = errors.New("first deposit below minimum liquidity")
	// ErrInsufficientLiquidityMinted is returned when a deposit yields zero shares.
	ErrInsufficientLiquidityMinted = errors.New("insufficient liquidity minted")
	// ErrInsufficientLiquidityBurned is returned when a redemption yields a zero
	// amount of either asset, or exceeds the owner's share balance.
	ErrInsufficientLiquidityBurned = errors.New("insufficient liquidity burned")

	// ErrInsufficientOutputAmount is returned when a swap requests no output.
	ErrInsufficientOutputAmount = errors.New("insufficient output amount")
	// ErrInsufficientInputAmount is returned when no input was received for a swap.
	ErrInsufficientInputAmount = errors.New("insufficient input amount")
	// ErrInsufficientLiquidity is returned when a requested output would drain a reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrBelowMinimumOut is returned when a computed output falls short of the
	// caller's minimum bound.
	ErrBelowMinimumOut = errors.New("output below minimum bound")
	// ErrKInvariant is returned when a swap would decrease the fee-adjusted
	// constant product. The whole operation is rolled back.
	ErrKInvariant = errors.New("constant product invariant violated")
	// ErrReserveOverflow is returned when a balance would push a reserve to 2^112 or beyond.
	ErrReserveOverflow = errors.New("reserve exceeds 112-bit bound")

	// ErrCallbackFailed is returned when a swap or flash-swap hook returns an error.
	ErrCallbackFailed = errors.New("callback failed")
	// ErrFlashLoanFailed is returned when a flash borrower does not return the
	// well-known success value.
	ErrFlashLoanFailed = errors.New("flash loan callback did not acknowledge")
	// ErrFlashLoanNotRepaid is returned when principal plus fee did not come back.
	ErrFlashLoanNotRepaid = errors.New("flash loan not repaid")
	// ErrRepaymentAboveMax is returned when a flash swap would require more
	// repayment than the caller allowed.
	ErrRepaymentAboveMax = errors.New("required repayment above caller maximum")

	// ErrReentrantCall is returned when a guarded operation is entered while
	// another one is still running. The guard never waits.
	ErrReentrantCall = errors.New("reentrant call")

	// ErrSkimDisabled is returned by Skim when the pool's leftover policy
	// donates excess balances to liquidity providers.
	ErrSkimDisabled = errors.New("skim disabled by leftover policy")
)
