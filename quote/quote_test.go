package quote

import (
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPoolAddr = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	testToken0   = common.HexToAddress("0x0000000000000000000000000000000000000001") // USDC
	testToken1   = common.HexToAddress("0x0000000000000000000000000000000000000002") // WETH
	testToken99  = common.HexToAddress("0x0000000000000000000000000000000000000099")
)

// newBigIntFromString is a helper function to create a big.Int from a string,
// which is necessary for numbers larger than a standard int64.
func newBigIntFromString(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("failed to set string for big.Int")
	}
	return n
}

func standardView() View {
	return View{
		Pool:     testPoolAddr,
		Token0:   testToken0,
		Token1:   testToken1,
		Reserve0: big.NewInt(100_000_000),                     // 100 USDC (6 decimals)
		Reserve1: newBigIntFromString("50000000000000000000"), // 50 WETH (18 decimals)
		FeeBps:   30,
	}
}

func TestGetAmountOut(t *testing.T) {
	testCases := []struct {
		name           string
		amountIn       *big.Int
		tokenIn        common.Address
		tokenOut       common.Address
		view           View
		expectedAmount *big.Int
		expectError    bool
		expectedErr    error
	}{
		{
			name:           "Standard Swap (Token0 -> Token1)",
			amountIn:       big.NewInt(1_000_000), // 1 USDC
			tokenIn:        testToken0,
			tokenOut:       testToken1,
			view:           standardView(),
			expectedAmount: newBigIntFromString("493579017198530649"),
		},
		{
			name:           "Standard Swap (Token1 -> Token0)",
			amountIn:       newBigIntFromString("1000000000000000000"), // 1 WETH
			tokenIn:        testToken1,
			tokenOut:       testToken0,
			view:           standardView(),
			expectedAmount: big.NewInt(1955016),
		},
		{
			name:     "Swap with Different Fee",
			amountIn: big.NewInt(1_000_000),
			tokenIn:  testToken0,
			tokenOut: testToken1,
			view: View{
				Pool:     testPoolAddr,
				Token0:   testToken0,
				Token1:   testToken1,
				Reserve0: big.NewInt(100_000_000),
				Reserve1: newBigIntFromString("50000000000000000000"),
				FeeBps:   100, // 1% fee
			},
			expectedAmount: newBigIntFromString("490147539360332706"),
		},
		{
			name:     "Edge Case: Zero Liquidity",
			amountIn: big.NewInt(1_000_000),
			tokenIn:  testToken0,
			tokenOut: testToken1,
			view: View{
				Pool:     testPoolAddr,
				Token0:   testToken0,
				Token1:   testToken1,
				Reserve0: big.NewInt(0),
				Reserve1: newBigIntFromString("50000000000000000000"),
				FeeBps:   30,
			},
			expectedAmount: big.NewInt(0),
		},
		{
			name:        "Invalid Input: Nil AmountIn",
			amountIn:    nil,
			tokenIn:     testToken0,
			tokenOut:    testToken1,
			view:        standardView(),
			expectError: true,
			expectedErr: ErrNilAmount,
		},
		{
			name:        "Invalid Input: Negative AmountIn",
			amountIn:    big.NewInt(-100),
			tokenIn:     testToken0,
			tokenOut:    testToken1,
			view:        standardView(),
			expectError: true,
			expectedErr: ErrInvalidAmount,
		},
		{
			name:        "Invalid Input: Token Mismatch",
			amountIn:    big.NewInt(1_000_000),
			tokenIn:     testToken99,
			tokenOut:    testToken1,
			view:        standardView(),
			expectError: true,
			expectedErr: ErrTokenMismatch,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			amountOut, err := GetAmountOut(tc.amountIn, tc.tokenIn, tc.tokenOut, tc.view)

			if tc.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				require.NoError(t, err)
				require.NotNil(t, amountOut)
				assert.Zero(t, tc.expectedAmount.Cmp(amountOut), "Expected %s, but got %s", tc.expectedAmount.String(), amountOut.String())
			}
		})
	}
}

func TestGetAmountIn(t *testing.T) {
	testCases := []struct {
		name           string
		amountOut      *big.Int
		tokenIn        common.Address
		tokenOut       common.Address
		view           View
		expectedAmount *big.Int
		expectError    bool
		expectedErr    error
	}{
		{
			name:           "Standard Swap (Token0 -> Token1)",
			amountOut:      newBigIntFromString("493579017198530649"),
			tokenIn:        testToken0,
			tokenOut:       testToken1,
			view:           standardView(),
			expectedAmount: big.NewInt(1000000),
		},
		{
			name:           "Standard Swap (Token1 -> Token0)",
			amountOut:      big.NewInt(1955016),
			tokenIn:        testToken1,
			tokenOut:       testToken0,
			view:           standardView(),
			expectedAmount: newBigIntFromString("999999498234537320"),
		},
		{
			name:        "Invalid Input: Nil AmountOut",
			amountOut:   nil,
			tokenIn:     testToken0,
			tokenOut:    testToken1,
			view:        standardView(),
			expectError: true,
			expectedErr: ErrNilAmount,
		},
		{
			name:        "Invalid Input: Negative AmountOut",
			amountOut:   big.NewInt(-100),
			tokenIn:     testToken0,
			tokenOut:    testToken1,
			view:        standardView(),
			expectError: true,
			expectedErr: ErrInvalidAmount,
		},
		{
			name:        "Invalid State: Insufficient Liquidity",
			amountOut:   newBigIntFromString("60000000000000000000"), // more than the pool holds
			tokenIn:     testToken0,
			tokenOut:    testToken1,
			view:        standardView(),
			expectError: true,
			expectedErr: ErrInsufficientLiquidity,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			amountIn, err := GetAmountIn(tc.amountOut, tc.tokenIn, tc.tokenOut, tc.view)

			if tc.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				require.NoError(t, err)
				require.NotNil(t, amountIn)
				assert.Zero(t, tc.expectedAmount.Cmp(amountIn), "Expected %s, but got %s", tc.expectedAmount.String(), amountIn.String())
			}
		})
	}
}

func TestSimulateSwap(t *testing.T) {
	view := standardView()
	amountIn := big.NewInt(1_000_000)

	amountOut, next, err := SimulateSwap(amountIn, testToken0, testToken1, view)
	require.NoError(t, err)

	expectedAmountOut := newBigIntFromString("493579017198530649")
	assert.Zero(t, expectedAmountOut.Cmp(amountOut))

	expectedReserve0 := new(big.Int).Add(view.Reserve0, amountIn)
	expectedReserve1 := new(big.Int).Sub(view.Reserve1, amountOut)
	assert.Zero(t, expectedReserve0.Cmp(next.Reserve0))
	assert.Zero(t, expectedReserve1.Cmp(next.Reserve1))
}

// TestSimulateSwap_IdempotencyAndStateIsolation verifies that the simulation
// does not mutate its input view and that the returned view is a proper deep
// copy of the mutable fields.
func TestSimulateSwap_IdempotencyAndStateIsolation(t *testing.T) {
	original := standardView()
	amountIn := big.NewInt(1_000_000)

	amountOut1, next1, err1 := SimulateSwap(amountIn, testToken0, testToken1, original)
	require.NoError(t, err1, "First simulation should succeed")

	amountOut2, next2, err2 := SimulateSwap(amountIn, testToken0, testToken1, original)
	require.NoError(t, err2, "Second simulation should succeed")

	t.Run("Idempotency Check", func(t *testing.T) {
		assert.Equal(t, amountOut1.String(), amountOut2.String(), "Amount out should be identical on consecutive runs")
		assert.True(t, reflect.DeepEqual(next1, next2), "The new view should be identical on consecutive runs")
	})

	t.Run("Deep Copy Check (Reserves)", func(t *testing.T) {
		assert.NotSame(t, original.Reserve0, next1.Reserve0, "New view's Reserve0 should be a new big.Int instance")
		assert.NotSame(t, original.Reserve1, next1.Reserve1, "New view's Reserve1 should be a new big.Int instance")
	})

	t.Run("Result Isolation Check", func(t *testing.T) {
		pristine := new(big.Int).Set(next2.Reserve0)

		next1.Reserve0.Add(next1.Reserve0, big.NewInt(12345))

		assert.NotEqual(t, next1.Reserve0.String(), next2.Reserve0.String(), "Modifying view 1 should not affect view 2")
		assert.Equal(t, pristine.String(), next2.Reserve0.String(), "View 2's Reserve0 should remain pristine")
	})
}

// TestRoundTrip checks that GetAmountIn(GetAmountOut(x)) never quotes less
// than x: the +1 rounding always covers the forward trade.
func TestRoundTrip(t *testing.T) {
	view := standardView()

	for _, amountIn := range []*big.Int{
		big.NewInt(1),
		big.NewInt(1_000),
		big.NewInt(1_000_000),
		big.NewInt(50_000_000),
	} {
		amountOut, err := GetAmountOut(amountIn, testToken0, testToken1, view)
		require.NoError(t, err)
		if amountOut.Sign() == 0 {
			continue
		}
		back, err := GetAmountIn(amountOut, testToken0, testToken1, view)
		require.NoError(t, err)
		assert.True(t, back.Cmp(amountIn) >= 0,
			"round trip for %s quoted %s, below the original input", amountIn, back)
	}
}

// --- Benchmarks ---

// result is a package-level variable to ensure the compiler does not optimize away the benchmarked function call.
var result *big.Int
var resultView View

func benchView() View {
	return View{
		Pool:     testPoolAddr,
		Token0:   testToken0,
		Token1:   testToken1,
		Reserve0: newBigIntFromString("2000000000000"),          // 2,000,000 USDC
		Reserve1: newBigIntFromString("1000000000000000000000"), // 1,000 WETH
		FeeBps:   30,
	}
}

func BenchmarkGetAmountOut(b *testing.B) {
	view := benchView()
	amountIn := newBigIntFromString("1000000000000000000") // 1 WETH

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		amountOut, _ := GetAmountOut(amountIn, testToken1, testToken0, view)
		result = amountOut
	}
}

func BenchmarkGetAmountIn(b *testing.B) {
	view := benchView()
	amountOut := newBigIntFromString("1994000000") // ~1994 USDC

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		amountIn, _ := GetAmountIn(amountOut, testToken1, testToken0, view)
		result = amountIn
	}
}

func BenchmarkSimulateSwap(b *testing.B) {
	view := benchView()
	amountIn := newBigIntFromString("1000000000000000000")

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		amountOut, next, _ := SimulateSwap(amountIn, testToken1, testToken0, view)
		result = amountOut
		resultView = next
	}
}
