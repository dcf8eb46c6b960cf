package asset

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/keepsake/ledger"
)

// ListWithPrice puts the asset up for sale directly: the creator
// becomes keeper at the listed price. Requires contract custody, an
// idle auction, and an honored oath.
func (a *Asset) ListWithPrice(caller ledger.Address, price *uint256.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()

	if caller != a.creator {
		return fmt.Errorf("%w: %s", ErrNotCreator, caller)
	}
	if a.custodyLocked() != ContractHeld {
		return fmt.Errorf("%w: held by %s", ErrNotContractHeld, a.holder)
	}
	if a.auctionLiveLocked() {
		return ErrAuctionRunning
	}
	if err := a.requireHonoredOathLocked(now); err != nil {
		return err
	}
	if price != nil && price.Gt(MaximumPrice) {
		return fmt.Errorf("%w: %s > %s", ErrPriceTooHigh, price, MaximumPrice)
	}

	a.transferToLocked(now, a.creator)
	if err := a.setPriceLocked(now, price); err != nil {
		return err
	}
	a.emit(now, EventListing, map[string]any{"price": a.price.String()})
	return nil
}

// PurchaseTerms restates every front-runnable parameter. A purchase is
// only accepted if all of them match the stored state, which defeats
// term changes racing the buyer's submission.
type PurchaseTerms struct {
	CurrentPrice                  *uint256.Int
	CurrentTaxNumerator           uint64
	CurrentRoyaltyNumerator       uint64
	CurrentCooldown               time.Duration
	CurrentCleartextMaximumLength int
}

// Purchase buys the asset at its current price and declares a new one.
// attached funds (may be nil) are deposited as part of the operation.
// Tax settles first; a purchase in the same second as a settlement is
// rejected, which closes the royalty-avoidance window where the price
// is changed and the asset bought back within one instant.
func (a *Asset) Purchase(buyer ledger.Address, newPrice *uint256.Int, terms PurchaseTerms, attached *uint256.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()

	if buyer == ledger.Nobody {
		return ledger.ErrNoAddress
	}
	if a.custodyLocked() == ContractHeld {
		return fmt.Errorf("%w: buy through the auction or wait for a listing", ErrNotKeeperHeld)
	}
	if err := a.checkTermsLocked(terms); err != nil {
		return err
	}
	if buyer == a.holder {
		return ErrSelfPurchase
	}
	if buyer == a.beneficiary {
		return fmt.Errorf("%w: purchasing", ErrBeneficiaryBarred)
	}
	if !a.solventLocked(now) {
		return fmt.Errorf("%w: asset is awaiting foreclosure", ErrKeeperInsolvent)
	}
	if !a.lastSettlement.IsZero() && a.lastSettlement.Unix() == now.Unix() {
		return ErrSettledThisInstant
	}
	if newPrice != nil && newPrice.Gt(MaximumPrice) {
		return fmt.Errorf("%w: %s > %s", ErrPriceTooHigh, newPrice, MaximumPrice)
	}

	salePrice := new(uint256.Int).Set(a.price)
	available := a.ledger.Balance(buyer)
	if attached != nil {
		available.Add(available, attached)
	}
	if available.Lt(salePrice) {
		return fmt.Errorf("%w: %s has %s, price %s", ledger.ErrInsufficientFunds, buyer, available, salePrice)
	}

	// All checks passed; effects start here.
	a.settleLocked(now)
	if attached != nil && !attached.IsZero() {
		if err := a.ledger.Deposit(buyer, attached); err != nil {
			return err
		}
		a.emit(now, EventDeposit, map[string]any{
			"address": string(buyer),
			"amount":  attached.String(),
		})
	}

	seller := a.holder
	receiver := seller
	if seller == a.creator {
		// A creator sale routes the full amount to the beneficiary.
		receiver = a.beneficiary
	}
	if err := a.splitProceedsLocked(buyer, receiver, salePrice); err != nil {
		return err
	}

	if err := a.setPriceLocked(now, newPrice); err != nil {
		return err
	}
	a.transferToLocked(now, buyer)
	a.emit(now, EventPurchase, map[string]any{
		"buyer":  string(buyer),
		"seller": string(seller),
		"paid":   salePrice.String(),
		"price":  a.price.String(),
	})
	return nil
}

func (a *Asset) checkTermsLocked(terms PurchaseTerms) error {
	stated := terms.CurrentPrice
	if stated == nil {
		stated = uint256.NewInt(0)
	}
	if !stated.Eq(a.price) {
		return fmt.Errorf("%w: price: stated %s, actual %s", ErrCurrentValueIncorrect, stated, a.price)
	}
	if terms.CurrentTaxNumerator != a.taxNumerator {
		return fmt.Errorf("%w: taxNumerator: stated %d, actual %d",
			ErrCurrentValueIncorrect, terms.CurrentTaxNumerator, a.taxNumerator)
	}
	if terms.CurrentRoyaltyNumerator != a.royaltyNumerator {
		return fmt.Errorf("%w: royaltyNumerator: stated %d, actual %d",
			ErrCurrentValueIncorrect, terms.CurrentRoyaltyNumerator, a.royaltyNumerator)
	}
	if terms.CurrentCooldown != a.cooldown {
		return fmt.Errorf("%w: cooldown: stated %s, actual %s",
			ErrCurrentValueIncorrect, terms.CurrentCooldown, a.cooldown)
	}
	if terms.CurrentCleartextMaximumLength != a.cleartextMaximumLength {
		return fmt.Errorf("%w: cleartextMaximumLength: stated %d, actual %d",
			ErrCurrentValueIncorrect, terms.CurrentCleartextMaximumLength, a.cleartextMaximumLength)
	}
	return nil
}

// SetPrice lets a solvent keeper change the sale price. Tax settles at
// the old price first.
func (a *Asset) SetPrice(caller ledger.Address, newPrice *uint256.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()

	if caller != a.holder || a.holder == ledger.Nobody {
		return fmt.Errorf("%w: %s", ErrNotKeeper, caller)
	}
	if !a.solventLocked(now) {
		return ErrKeeperInsolvent
	}
	a.settleLocked(now)
	return a.setPriceLocked(now, newPrice)
}

// splitProceedsLocked moves total out of payer's balance: the royalty
// share to the beneficiary and the remainder to receiver. When the
// receiver is the beneficiary the full amount goes there in one move.
// This is the single path all sale and auction proceeds take.
func (a *Asset) splitProceedsLocked(payer, receiver ledger.Address, total *uint256.Int) error {
	if total == nil || total.IsZero() {
		return nil
	}
	if receiver == a.beneficiary {
		return a.ledger.Transfer(payer, a.beneficiary, total)
	}
	royalty := new(uint256.Int).Mul(total, uint256.NewInt(a.royaltyNumerator))
	royalty.Div(royalty, uint256.NewInt(FeeDenominator))
	remainder := new(uint256.Int).Sub(total, royalty)

	if err := a.ledger.Transfer(payer, a.beneficiary, royalty); err != nil {
		return err
	}
	if err := a.ledger.Transfer(payer, receiver, remainder); err != nil {
		// The royalty leg succeeded, so the payer must still cover the
		// remainder; restore the first leg to keep all-or-nothing.
		if rollback := a.ledger.Transfer(a.beneficiary, payer, royalty); rollback != nil {
			panic(fmt.Sprintf("asset: proceeds rollback failed: %v", rollback))
		}
		return err
	}
	return nil
}
