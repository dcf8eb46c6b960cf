package asset

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/keepsake/ledger"
)

// OwedSinceLastSettlement returns the tax accrued by the current keeper
// since the last settlement:
//
//	price * taxNumerator * elapsedSeconds / (taxPeriodSeconds * FeeDenominator)
//
// The result is unbounded and may exceed the keeper's balance; callers
// cap it at settlement time. Zero while the creator holds the asset,
// while it is in contract custody, or while the price is zero (a zero
// price never forecloses).
func (a *Asset) OwedSinceLastSettlement() *uint256.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owedLocked(a.clock.Now())
}

func (a *Asset) owedLocked(now time.Time) *uint256.Int {
	if a.custodyLocked() != KeeperHeld || a.price.IsZero() {
		return uint256.NewInt(0)
	}
	elapsed := now.Unix() - a.lastSettlement.Unix()
	if elapsed <= 0 {
		return uint256.NewInt(0)
	}
	// price < 2^128, numerator and elapsed fit in 64 bits each, so the
	// product stays well inside 256 bits.
	owed := new(uint256.Int).Mul(a.price, uint256.NewInt(a.taxNumerator))
	owed.Mul(owed, uint256.NewInt(uint64(elapsed)))
	divisor := uint256.NewInt(uint64(a.taxPeriod/time.Second) * FeeDenominator)
	return owed.Div(owed, divisor)
}

// KeeperSolvent reports whether the keeper's funds cover the tax owed.
// Always true while the creator holds the asset or while the asset is
// in contract custody.
func (a *Asset) KeeperSolvent() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.solventLocked(a.clock.Now())
}

func (a *Asset) solventLocked(now time.Time) bool {
	if a.custodyLocked() != KeeperHeld {
		return true
	}
	owed := a.owedLocked(now)
	return !a.ledger.Balance(a.holder).Lt(owed)
}

// Settle realizes accrued tax: min(owed, balance) moves from the keeper
// to the beneficiary and the settlement clock advances to now. A no-op
// while the creator holds the asset (the creator pays no tax) or while
// the asset is in contract custody.
func (a *Asset) Settle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settleLocked(a.clock.Now())
}

func (a *Asset) settleLocked(now time.Time) {
	if a.custodyLocked() != KeeperHeld {
		return
	}
	owed := a.owedLocked(now)
	paid := owed
	if balance := a.ledger.Balance(a.holder); balance.Lt(owed) {
		paid = balance
	}
	if !paid.IsZero() {
		// The keeper's balance is at least paid by construction.
		if err := a.ledger.Transfer(a.holder, a.beneficiary, paid); err != nil {
			panic(fmt.Sprintf("asset: settlement transfer failed: %v", err))
		}
	}
	a.lastSettlement = now
	a.emit(now, EventSettlement, map[string]any{
		"keeper": string(a.holder),
		"owed":   owed.String(),
		"paid":   paid.String(),
	})
}

// Foreclose returns an insolvent keeper's asset to contract custody.
// Callable by anyone. The remaining settlement drains what the keeper
// can still pay; no other funds move, and whatever is left in the
// keeper's account stays withdrawable by them.
func (a *Asset) Foreclose() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()

	if a.custodyLocked() != KeeperHeld {
		return fmt.Errorf("%w: held by %q", ErrNotKeeperHeld, a.holder)
	}
	if a.solventLocked(now) {
		return fmt.Errorf("%w: %s cannot be foreclosed", ErrKeeperSolvent, a.holder)
	}

	previous := a.holder
	a.settleLocked(now)
	if err := a.setPriceLocked(now, uint256.NewInt(0)); err != nil {
		return err
	}
	a.transferToLocked(now, ledger.Nobody)
	a.emit(now, EventForeclosure, map[string]any{"keeper": string(previous)})
	return nil
}
