package asset

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/keepsake/ledger"
)

// AuctionRunning reports whether an auction is accepting bids.
func (a *Asset) AuctionRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.auctionRunningLocked()
}

func (a *Asset) auctionRunningLocked() bool {
	return !a.auctionEndTime.IsZero() && a.clock.Now().Before(a.auctionEndTime)
}

// auctionLiveLocked is true from start until finalization, including
// the expired-but-unfinalized window.
func (a *Asset) auctionLiveLocked() bool {
	return !a.auctionEndTime.IsZero()
}

// AuctionEndTime returns the current auction deadline, zero when idle.
func (a *Asset) AuctionEndTime() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.auctionEndTime
}

// LeadingBid returns the current leading bidder and bid. The bidder is
// ledger.Nobody when there are no bids.
func (a *Asset) LeadingBid() (ledger.Address, *uint256.Int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.leadingBid == nil {
		return a.leadingBidder, uint256.NewInt(0)
	}
	return a.leadingBidder, new(uint256.Int).Set(a.leadingBid)
}

// MinimumBid returns the smallest acceptable next bid: the starting
// price with no bids yet, otherwise the leading bid plus the minimum
// step. The step is floored to 1 so no two bids can ever tie.
func (a *Asset) MinimumBid() *uint256.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.minimumBidLocked()
}

func (a *Asset) minimumBidLocked() *uint256.Int {
	if a.leadingBid == nil {
		return new(uint256.Int).Set(a.auctionStartingPrice)
	}
	step := a.auctionMinimumBidStep
	if step.IsZero() {
		step = uint256.NewInt(1)
	}
	return new(uint256.Int).Add(a.leadingBid, step)
}

// StartAuction opens a creator-initiated auction. Only the creator may
// start one, only while the asset sits in contract custody, only while
// no auction is live, and only under an honored oath.
func (a *Asset) StartAuction(caller ledger.Address) error {
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

	a.beginAuctionLocked(now, a.beneficiary)
	return nil
}

func (a *Asset) beginAuctionLocked(now time.Time, proceedsTo ledger.Address) {
	a.auctionEndTime = now.Add(a.auctionMinimumDuration)
	a.auctionBeneficiary = proceedsTo
	a.leadingBidder = ledger.Nobody
	a.leadingBid = nil
	a.leadingPriceIfWon = nil
	a.emit(now, EventAuctionStart, map[string]any{
		"endTime":    a.auctionEndTime,
		"proceedsTo": string(proceedsTo),
		"minimumBid": a.minimumBidLocked().String(),
	})
}

// Bid places a bid. attached funds (may be nil) are deposited into the
// bidder's ledger account as part of the same operation; the total
// balance must cover the bid amount. priceIfWon becomes the asset's
// price should this bid win. Bids close enough to the deadline extend
// it, so an auction cannot be sniped.
func (a *Asset) Bid(bidder ledger.Address, amount, priceIfWon, attached *uint256.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()

	if bidder == ledger.Nobody {
		return ledger.ErrNoAddress
	}
	if !a.auctionRunningLocked() {
		return ErrAuctionNotRunning
	}
	if bidder == a.beneficiary {
		return fmt.Errorf("%w: bidding", ErrBeneficiaryBarred)
	}
	if amount == nil {
		amount = uint256.NewInt(0)
	}
	if minimum := a.minimumBidLocked(); amount.Lt(minimum) {
		return fmt.Errorf("%w: bid %s, minimum %s", ErrBidTooLow, amount, minimum)
	}
	if priceIfWon == nil {
		priceIfWon = uint256.NewInt(0)
	}
	if priceIfWon.Gt(MaximumPrice) {
		return fmt.Errorf("%w: priceIfWon %s > %s", ErrPriceTooHigh, priceIfWon, MaximumPrice)
	}
	available := a.ledger.Balance(bidder)
	if attached != nil {
		available.Add(available, attached)
	}
	if available.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, bid %s", ledger.ErrInsufficientFunds, bidder, available, amount)
	}

	if attached != nil && !attached.IsZero() {
		if err := a.ledger.Deposit(bidder, attached); err != nil {
			return err
		}
		a.emit(now, EventDeposit, map[string]any{
			"address": string(bidder),
			"amount":  attached.String(),
		})
	}

	a.leadingBidder = bidder
	a.leadingBid = new(uint256.Int).Set(amount)
	a.leadingPriceIfWon = new(uint256.Int).Set(priceIfWon)
	a.emit(now, EventAuctionBid, map[string]any{
		"bidder":     string(bidder),
		"amount":     amount.String(),
		"priceIfWon": priceIfWon.String(),
	})

	if extended := now.Add(a.auctionBidExtension); extended.After(a.auctionEndTime) {
		a.auctionEndTime = extended
		a.emit(now, EventAuctionExtension, map[string]any{"endTime": a.auctionEndTime})
	}
	return nil
}

// FinalizeAuction settles an expired auction. Callable by anyone. With
// a winner: the winning bid moves out of the winner's ledger balance,
// proceeds are split (everything to the beneficiary for a
// creator-initiated auction; royalty to the beneficiary and the
// remainder to the previous keeper for a re-auction), the asset
// transfers, the price becomes the winner's declared priceIfWon, and
// the settlement clock restarts. The invocation cooldown resets only
// for creator-initiated auctions, so a keeper cannot launder their own
// cooldown through a self-auction. With no bids the auction simply
// resets. The end time is always zeroed, which makes a second
// finalization attempt fail without moving funds.
func (a *Asset) FinalizeAuction() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()

	if !a.auctionLiveLocked() {
		return ErrAuctionNotRunning
	}
	if now.Before(a.auctionEndTime) {
		return fmt.Errorf("%w: ends at %s", ErrAuctionNotEnded, a.auctionEndTime)
	}

	winner := a.leadingBidder
	creatorInitiated := a.auctionBeneficiary == a.beneficiary

	if winner != ledger.Nobody {
		bid := a.leadingBid
		if err := a.splitProceedsLocked(winner, a.auctionBeneficiary, bid); err != nil {
			return err
		}
		if err := a.setPriceLocked(now, a.leadingPriceIfWon); err != nil {
			return err
		}
		a.transferToLocked(now, winner)
		if creatorInitiated {
			// The new keeper may invoke immediately.
			a.lastInvocationTime = time.Time{}
		}
		a.emit(now, EventAuctionFinalization, map[string]any{
			"winner": string(winner),
			"bid":    bid.String(),
			"price":  a.price.String(),
		})
	} else {
		a.emit(now, EventAuctionFinalization, map[string]any{"winner": ""})
	}

	a.auctionEndTime = time.Time{}
	a.auctionBeneficiary = ledger.Nobody
	a.leadingBidder = ledger.Nobody
	a.leadingBid = nil
	a.leadingPriceIfWon = nil
	return nil
}

// Relinquish lets the keeper voluntarily return the asset to contract
// custody. With withAuction, a re-auction starts immediately whose
// proceeds (minus royalty) go to the outgoing keeper.
func (a *Asset) Relinquish(caller ledger.Address, withAuction bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()

	if caller != a.holder || a.holder == ledger.Nobody {
		return fmt.Errorf("%w: %s", ErrNotKeeper, caller)
	}
	if !a.solventLocked(now) {
		return fmt.Errorf("%w: settle or deposit first", ErrKeeperInsolvent)
	}

	previous := a.holder
	a.settleLocked(now)
	if err := a.setPriceLocked(now, uint256.NewInt(0)); err != nil {
		return err
	}
	a.transferToLocked(now, ledger.Nobody)
	a.emit(now, EventRelinquishment, map[string]any{
		"keeper":      string(previous),
		"withAuction": withAuction,
	})

	if withAuction {
		proceedsTo := previous
		if previous == a.creator {
			// A creator re-auction is just a creator auction.
			proceedsTo = a.beneficiary
		}
		a.beginAuctionLocked(now, proceedsTo)
	}
	return nil
}
