// Package ledger implements the single fund ledger backing a taxed asset.
//
// The ledger is the only place monetary balances live. Every component
// that moves value does so through the same debit-then-credit primitive;
// "locked" funds (such as a leading auction bid) are enforced by
// business-rule checks in the callers, never by separate escrow storage.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"
)

// Address identifies a ledger account. The zero value means "no address".
type Address string

// Nobody is the empty address.
const Nobody Address = ""

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrNoAddress         = errors.New("ledger: empty address")
	ErrConservation      = errors.New("ledger: balances do not match deposit/withdrawal totals")
)

// Ledger is a per-address balance mapping with lifetime deposit and
// withdrawal counters, so that conservation can be audited at any time:
//
//	sum(balances) == totalDeposited - totalWithdrawn
type Ledger struct {
	mu        sync.RWMutex
	balances  map[Address]*uint256.Int
	deposited *uint256.Int
	withdrawn *uint256.Int
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:  make(map[Address]*uint256.Int),
		deposited: uint256.NewInt(0),
		withdrawn: uint256.NewInt(0),
	}
}

// Balance returns a copy of the balance for addr. Unknown addresses
// have a zero balance.
func (l *Ledger) Balance(addr Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.balances[addr]; ok {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

// Deposit credits addr with amount of externally supplied funds.
func (l *Ledger) Deposit(addr Address, amount *uint256.Int) error {
	if addr == Nobody {
		return ErrNoAddress
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.creditLocked(addr, amount)
	l.deposited.Add(l.deposited, amount)
	return nil
}

// Withdraw debits addr by amount, counting the funds as having left the
// ledger. The caller is responsible for actually delivering the funds
// externally, after this call returns (checks-effects-interactions).
func (l *Ledger) Withdraw(addr Address, amount *uint256.Int) error {
	if addr == Nobody {
		return ErrNoAddress
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debitLocked(addr, amount); err != nil {
		return err
	}
	l.withdrawn.Add(l.withdrawn, amount)
	return nil
}

// Transfer moves amount from one account to another inside the ledger.
// The debit happens before the credit; on insufficient funds nothing
// changes.
func (l *Ledger) Transfer(from, to Address, amount *uint256.Int) error {
	if from == Nobody || to == Nobody {
		return ErrNoAddress
	}
	if amount == nil || amount.IsZero() || from == to {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debitLocked(from, amount); err != nil {
		return err
	}
	l.creditLocked(to, amount)
	return nil
}

// TotalHeld returns the sum of all balances.
func (l *Ledger) TotalHeld() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalHeldLocked()
}

// TotalDeposited returns the lifetime sum of external deposits.
func (l *Ledger) TotalDeposited() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(uint256.Int).Set(l.deposited)
}

// TotalWithdrawn returns the lifetime sum of external withdrawals.
func (l *Ledger) TotalWithdrawn() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(uint256.Int).Set(l.withdrawn)
}

// Accounts returns all addresses with a non-zero balance, sorted.
func (l *Ledger) Accounts() []Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	addrs := make([]Address, 0, len(l.balances))
	for addr, b := range l.balances {
		if !b.IsZero() {
			addrs = append(addrs, addr)
		}
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// Audit verifies the conservation invariant. Internal transfers never
// change the total; only Deposit and Withdraw do.
func (l *Ledger) Audit() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	expected := new(uint256.Int).Sub(l.deposited, l.withdrawn)
	held := l.totalHeldLocked()
	if !held.Eq(expected) {
		return fmt.Errorf("%w: held %s, expected %s", ErrConservation, held, expected)
	}
	return nil
}

func (l *Ledger) totalHeldLocked() *uint256.Int {
	total := uint256.NewInt(0)
	for _, b := range l.balances {
		total.Add(total, b)
	}
	return total
}

func (l *Ledger) creditLocked(addr Address, amount *uint256.Int) {
	if b, ok := l.balances[addr]; ok {
		b.Add(b, amount)
		return
	}
	l.balances[addr] = new(uint256.Int).Set(amount)
}

func (l *Ledger) debitLocked(addr Address, amount *uint256.Int) error {
	b, ok := l.balances[addr]
	if !ok || b.Lt(amount) {
		have := uint256.NewInt(0)
		if ok {
			have = b
		}
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, addr, have, amount)
	}
	b.Sub(b, amount)
	return nil
}
