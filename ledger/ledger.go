// Package ledger provides the asset ledger the pool engine settles against.
//
// The pool never trusts caller-declared amounts; it measures balance deltas
// on a ledger before and after every transfer. The ledger therefore exposes
// a journal (Snapshot/RevertToSnapshot) so a failing pool operation can undo
// every transfer it performed and remain all-or-nothing.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidAmount is returned when an amount is nil or not positive.
	ErrInvalidAmount = errors.New("amount must be non-nil and positive")
	// ErrInsufficientBalance is returned when a holder cannot cover a transfer or burn.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientAllowance is returned when a spender exceeds its approved amount.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	// ErrInvalidSnapshot is returned when reverting to an unknown snapshot id.
	ErrInvalidSnapshot = errors.New("invalid snapshot id")
)

// AssetLedger is the surface the pool consumes for each of its two assets.
//
// Implementations must support journaling: Snapshot returns an identifier
// that RevertToSnapshot can later use to undo every mutation made since.
// DiscardJournal drops the undo history once a caller has committed; without
// it the journal would grow for the lifetime of the ledger.
type AssetLedger interface {
	BalanceOf(holder common.Address) *big.Int
	Transfer(from, to common.Address, amount *big.Int) error
	TransferFrom(spender, holder, to common.Address, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(id int) error
	DiscardJournal()
}

// Ledger is an in-memory AssetLedger with mint/burn, approvals, total-supply
// tracking and a closure-based undo journal. It is safe for concurrent use.
type Ledger struct {
	mu          sync.RWMutex
	symbol      string
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	totalSupply *big.Int

	// journal holds undo closures in apply order. A snapshot is an index
	// into this slice; reverting pops and runs everything above it.
	journal []func()
}

// New creates an empty ledger. The symbol is only used in error messages.
func New(symbol string) *Ledger {
	return &Ledger{
		symbol:      symbol,
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
		totalSupply: new(big.Int),
	}
}

// Symbol returns the ledger's asset symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// BalanceOf returns a copy of the holder's balance; callers own the result.
func (l *Ledger) BalanceOf(holder common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if b, ok := l.balances[holder]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// TotalSupply returns a copy of the current total supply.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.totalSupply)
}

// Allowance returns a copy of what spender may move on behalf of holder.
func (l *Ledger) Allowance(holder, spender common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if m, ok := l.allowances[holder]; ok {
		if a, ok := m[spender]; ok {
			return new(big.Int).Set(a)
		}
	}
	return new(big.Int)
}

// Mint credits amount to the holder and grows the total supply.
func (l *Ledger) Mint(to common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.credit(to, amount)
	l.totalSupply.Add(l.totalSupply, amount)
	undo := new(big.Int).Set(amount)
	l.journal = append(l.journal, func() {
		l.debit(to, undo)
		l.totalSupply.Sub(l.totalSupply, undo)
	})
	return nil
}

// Burn debits amount from the holder and shrinks the total supply.
func (l *Ledger) Burn(from common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balance(from).Cmp(amount) < 0 {
		return fmt.Errorf("%w: burn %s from %s", ErrInsufficientBalance, amount, from.Hex())
	}
	l.debit(from, amount)
	l.totalSupply.Sub(l.totalSupply, amount)
	undo := new(big.Int).Set(amount)
	l.journal = append(l.journal, func() {
		l.credit(from, undo)
		l.totalSupply.Add(l.totalSupply, undo)
	})
	return nil
}

// Approve lets spender move up to amount on behalf of holder. A zero amount
// clears the approval. Unlike the other mutations this is not journaled;
// the pool never grants approvals inside a guarded operation.
func (l *Ledger) Approve(holder, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.allowances[holder]
	if !ok {
		m = make(map[common.Address]*big.Int)
		l.allowances[holder] = m
	}
	if amount == nil || amount.Sign() <= 0 {
		delete(m, spender)
		return
	}
	m[spender] = new(big.Int).Set(amount)
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

// TransferFrom moves amount out of holder on behalf of spender, consuming
// allowance unless the spender is the holder itself.
func (l *Ledger) TransferFrom(spender, holder, to common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if spender != holder {
		allowed := l.allowances[holder][spender]
		if allowed == nil || allowed.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s spending %s of %s's %s", ErrInsufficientAllowance,
				spender.Hex(), amount, holder.Hex(), l.symbol)
		}
		allowed.Sub(allowed, amount)
		undo := new(big.Int).Set(amount)
		l.journal = append(l.journal, func() {
			allowed.Add(allowed, undo)
		})
	}
	return l.move(holder, to, amount)
}

// Snapshot marks the current journal position.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.journal)
}

// RevertToSnapshot undoes every mutation recorded after the snapshot was
// taken, newest first.
func (l *Ledger) RevertToSnapshot(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id < 0 || id > len(l.journal) {
		return fmt.Errorf("%w: %d (journal length %d)", ErrInvalidSnapshot, id, len(l.journal))
	}
	for i := len(l.journal) - 1; i >= id; i-- {
		l.journal[i]()
	}
	l.journal = l.journal[:id]
	return nil
}

// DiscardJournal forgets all undo history. Callers use this once an
// operation has committed and can no longer be reverted.
func (l *Ledger) DiscardJournal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal = l.journal[:0]
}

// --- internal, caller must hold l.mu ---

func (l *Ledger) balance(a common.Address) *big.Int {
	if b, ok := l.balances[a]; ok {
		return b
	}
	return new(big.Int)
}

func (l *Ledger) credit(a common.Address, amount *big.Int) {
	b, ok := l.balances[a]
	if !ok {
		b = new(big.Int)
		l.balances[a] = b
	}
	b.Add(b, amount)
}

func (l *Ledger) debit(a common.Address, amount *big.Int) {
	l.balances[a].Sub(l.balances[a], amount)
}

func (l *Ledger) move(from, to common.Address, amount *big.Int) error {
	if l.balance(from).Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s sending %s %s", ErrInsufficientBalance, from.Hex(), amount, l.symbol)
	}
	l.debit(from, amount)
	l.credit(to, amount)
	undoFrom, undoTo, undoAmount := from, to, new(big.Int).Set(amount)
	l.journal = append(l.journal, func() {
		l.debit(undoTo, undoAmount)
		l.credit(undoFrom, undoAmount)
	})
	return nil
}

func validAmount(amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: nil", ErrInvalidAmount)
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}
