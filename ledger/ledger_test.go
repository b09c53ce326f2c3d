package ledger

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x0000000000000000000000000000000000000ca1")
)

func TestMintBurn(t *testing.T) {
	l := New("USDC")

	require.NoError(t, l.Mint(alice, big.NewInt(1000)))
	assert.Zero(t, big.NewInt(1000).Cmp(l.BalanceOf(alice)))
	assert.Zero(t, big.NewInt(1000).Cmp(l.TotalSupply()))

	require.NoError(t, l.Burn(alice, big.NewInt(400)))
	assert.Zero(t, big.NewInt(600).Cmp(l.BalanceOf(alice)))
	assert.Zero(t, big.NewInt(600).Cmp(l.TotalSupply()))

	err := l.Burn(alice, big.NewInt(601))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestTransfer(t *testing.T) {
	testCases := []struct {
		name        string
		amount      *big.Int
		expectedErr error
	}{
		{name: "simple transfer", amount: big.NewInt(300)},
		{name: "whole balance", amount: big.NewInt(1000)},
		{name: "nil amount", amount: nil, expectedErr: ErrInvalidAmount},
		{name: "zero amount", amount: big.NewInt(0), expectedErr: ErrInvalidAmount},
		{name: "negative amount", amount: big.NewInt(-5), expectedErr: ErrInvalidAmount},
		{name: "overdraw", amount: big.NewInt(1001), expectedErr: ErrInsufficientBalance},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l := New("USDC")
			require.NoError(t, l.Mint(alice, big.NewInt(1000)))

			err := l.Transfer(alice, bob, tc.amount)
			if tc.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.expectedErr)
				assert.Zero(t, big.NewInt(1000).Cmp(l.BalanceOf(alice)), "failed transfer must not move funds")
				return
			}
			require.NoError(t, err)
			expectedFrom := new(big.Int).Sub(big.NewInt(1000), tc.amount)
			assert.Zero(t, expectedFrom.Cmp(l.BalanceOf(alice)))
			assert.Zero(t, tc.amount.Cmp(l.BalanceOf(bob)))
			assert.Zero(t, big.NewInt(1000).Cmp(l.TotalSupply()), "transfers never change supply")
		})
	}
}

func TestTransferFrom(t *testing.T) {
	l := New("WETH")
	require.NoError(t, l.Mint(alice, big.NewInt(1000)))

	// no approval yet
	err := l.TransferFrom(bob, alice, carol, big.NewInt(100))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	l.Approve(alice, bob, big.NewInt(250))
	assert.Zero(t, big.NewInt(250).Cmp(l.Allowance(alice, bob)))

	require.NoError(t, l.TransferFrom(bob, alice, carol, big.NewInt(100)))
	assert.Zero(t, big.NewInt(150).Cmp(l.Allowance(alice, bob)), "allowance should be consumed")
	assert.Zero(t, big.NewInt(100).Cmp(l.BalanceOf(carol)))

	// spending past the remaining allowance fails and moves nothing
	err = l.TransferFrom(bob, alice, carol, big.NewInt(200))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)
	assert.Zero(t, big.NewInt(100).Cmp(l.BalanceOf(carol)))
}

func TestTransferFromSelf(t *testing.T) {
	l := New("WETH")
	require.NoError(t, l.Mint(alice, big.NewInt(1000)))

	// a holder moving its own funds needs no allowance
	require.NoError(t, l.TransferFrom(alice, alice, bob, big.NewInt(100)))
	assert.Zero(t, big.NewInt(100).Cmp(l.BalanceOf(bob)))
}

func TestSnapshotRevert(t *testing.T) {
	l := New("USDC")
	require.NoError(t, l.Mint(alice, big.NewInt(1000)))
	l.DiscardJournal()

	id := l.Snapshot()

	require.NoError(t, l.Transfer(alice, bob, big.NewInt(300)))
	require.NoError(t, l.Transfer(bob, carol, big.NewInt(100)))
	require.NoError(t, l.Mint(carol, big.NewInt(50)))

	require.NoError(t, l.RevertToSnapshot(id))

	assert.Zero(t, big.NewInt(1000).Cmp(l.BalanceOf(alice)))
	assert.Zero(t, new(big.Int).Cmp(l.BalanceOf(bob)))
	assert.Zero(t, new(big.Int).Cmp(l.BalanceOf(carol)))
	assert.Zero(t, big.NewInt(1000).Cmp(l.TotalSupply()))
}

func TestNestedSnapshots(t *testing.T) {
	l := New("USDC")
	require.NoError(t, l.Mint(alice, big.NewInt(1000)))

	outer := l.Snapshot()
	require.NoError(t, l.Transfer(alice, bob, big.NewInt(100)))

	inner := l.Snapshot()
	require.NoError(t, l.Transfer(alice, bob, big.NewInt(200)))

	// revert only the inner scope
	require.NoError(t, l.RevertToSnapshot(inner))
	assert.Zero(t, big.NewInt(100).Cmp(l.BalanceOf(bob)))

	// the inner snapshot id is now stale
	require.NoError(t, l.RevertToSnapshot(outer))
	assert.Zero(t, new(big.Int).Cmp(l.BalanceOf(bob)))
	assert.Zero(t, big.NewInt(1000).Cmp(l.BalanceOf(alice)))
}

func TestRevertRestoresAllowance(t *testing.T) {
	l := New("WETH")
	require.NoError(t, l.Mint(alice, big.NewInt(1000)))
	l.Approve(alice, bob, big.NewInt(500))
	l.DiscardJournal()

	id := l.Snapshot()
	require.NoError(t, l.TransferFrom(bob, alice, carol, big.NewInt(200)))
	assert.Zero(t, big.NewInt(300).Cmp(l.Allowance(alice, bob)))

	require.NoError(t, l.RevertToSnapshot(id))
	assert.Zero(t, big.NewInt(500).Cmp(l.Allowance(alice, bob)), "revert should restore consumed allowance")
	assert.Zero(t, new(big.Int).Cmp(l.BalanceOf(carol)))
}

func TestDiscardJournal(t *testing.T) {
	l := New("USDC")
	require.NoError(t, l.Mint(alice, big.NewInt(1000)))
	require.NoError(t, l.Transfer(alice, bob, big.NewInt(100)))
	require.Equal(t, 2, l.Snapshot())

	l.DiscardJournal()
	assert.Zero(t, l.Snapshot(), "discard must drop all undo history")

	// balances stay committed and stale snapshot ids are rejected
	assert.Zero(t, big.NewInt(100).Cmp(l.BalanceOf(bob)))
	assert.ErrorIs(t, l.RevertToSnapshot(2), ErrInvalidSnapshot)
}

func TestRevertInvalidSnapshot(t *testing.T) {
	l := New("USDC")
	assert.ErrorIs(t, l.RevertToSnapshot(-1), ErrInvalidSnapshot)
	assert.ErrorIs(t, l.RevertToSnapshot(1), ErrInvalidSnapshot)
}

// TestBalanceOfIsolation proves the returned balance is a copy; mutating it
// must not corrupt ledger state.
func TestBalanceOfIsolation(t *testing.T) {
	l := New("USDC")
	require.NoError(t, l.Mint(alice, big.NewInt(1000)))

	b := l.BalanceOf(alice)
	b.Add(b, big.NewInt(999999))

	assert.Zero(t, big.NewInt(1000).Cmp(l.BalanceOf(alice)))
}

func TestConcurrentTransfers(t *testing.T) {
	l := New("USDC")
	require.NoError(t, l.Mint(alice, big.NewInt(10_000)))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Transfer(alice, bob, big.NewInt(1))
		}()
	}
	wg.Wait()

	assert.Zero(t, big.NewInt(9_900).Cmp(l.BalanceOf(alice)))
	assert.Zero(t, big.NewInt(100).Cmp(l.BalanceOf(bob)))
	assert.Zero(t, big.NewInt(10_000).Cmp(l.TotalSupply()))
}
