package asset

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/keepsake/commitment"
	"github.com/keepsake-xyz/keepsake/ledger"
)

// Caps on governed parameters. The tax cap allows up to 1000% of the
// price per tax period; the cooldown cap keeps an asset from being
// locked out of invocations for a decade.
const (
	MaximumTaxNumerator = 100 * FeeDenominator
	MaximumCooldown     = 3650 * 24 * time.Hour
)

func (a *Asset) requireGovernanceLocked(caller ledger.Address) error {
	if caller != a.creator {
		return fmt.Errorf("%w: %s", ErrNotCreator, caller)
	}
	if !a.creatorControlledLocked() {
		return fmt.Errorf("%w: keeper %q, auction end %s",
			ErrCreatorControlsOnly, a.holder, a.auctionEndTime)
	}
	return nil
}

// SetFees updates the tax and royalty numerators. Creator-only, and
// only while the creator controls the asset, so terms can never change
// under an active keeper.
func (a *Asset) SetFees(caller ledger.Address, taxNumerator, royaltyNumerator uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireGovernanceLocked(caller); err != nil {
		return err
	}
	if taxNumerator > MaximumTaxNumerator {
		return fmt.Errorf("%w: taxNumerator %d > %d", ErrInvalidParameter, taxNumerator, MaximumTaxNumerator)
	}
	if royaltyNumerator > FeeDenominator {
		return fmt.Errorf("%w: royaltyNumerator %d > %d", ErrInvalidParameter, royaltyNumerator, FeeDenominator)
	}
	a.taxNumerator = taxNumerator
	a.royaltyNumerator = royaltyNumerator
	a.emit(a.clock.Now(), EventFeesUpdate, map[string]any{
		"taxNumerator":     taxNumerator,
		"royaltyNumerator": royaltyNumerator,
	})
	return nil
}

// SetCooldown updates the invocation cooldown and the response
// flagging period.
func (a *Asset) SetCooldown(caller ledger.Address, cooldown, flaggingPeriod time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireGovernanceLocked(caller); err != nil {
		return err
	}
	if cooldown < 0 || cooldown > MaximumCooldown {
		return fmt.Errorf("%w: cooldown %s", ErrInvalidParameter, cooldown)
	}
	if flaggingPeriod < 0 {
		return fmt.Errorf("%w: negative flagging period", ErrInvalidParameter)
	}
	a.cooldown = cooldown
	a.flaggingPeriod = flaggingPeriod
	a.emit(a.clock.Now(), EventCooldownUpdate, map[string]any{
		"cooldown":       cooldown.String(),
		"flaggingPeriod": flaggingPeriod.String(),
	})
	return nil
}

// SetAuctionParameters updates the auction terms used by the next
// auction. The minimum bid step is floored to 1.
func (a *Asset) SetAuctionParameters(caller ledger.Address, startingPrice, minimumBidStep *uint256.Int, minimumDuration, bidExtension time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireGovernanceLocked(caller); err != nil {
		return err
	}
	if minimumDuration <= 0 {
		return fmt.Errorf("%w: auction duration %s", ErrInvalidParameter, minimumDuration)
	}
	if bidExtension < 0 {
		return fmt.Errorf("%w: negative bid extension", ErrInvalidParameter)
	}
	if startingPrice == nil {
		startingPrice = uint256.NewInt(0)
	}
	if startingPrice.Gt(MaximumPrice) {
		return fmt.Errorf("%w: startingPrice %s > %s", ErrPriceTooHigh, startingPrice, MaximumPrice)
	}
	if minimumBidStep == nil || minimumBidStep.IsZero() {
		minimumBidStep = uint256.NewInt(1)
	}
	a.auctionStartingPrice = new(uint256.Int).Set(startingPrice)
	a.auctionMinimumBidStep = new(uint256.Int).Set(minimumBidStep)
	a.auctionMinimumDuration = minimumDuration
	a.auctionBidExtension = bidExtension
	a.emit(a.clock.Now(), EventAuctionParamsUpdate, map[string]any{
		"startingPrice":   startingPrice.String(),
		"minimumBidStep":  minimumBidStep.String(),
		"minimumDuration": minimumDuration.String(),
		"bidExtension":    bidExtension.String(),
	})
	return nil
}

// SetCleartextMaximumLength updates the invocation cleartext cap.
func (a *Asset) SetCleartextMaximumLength(caller ledger.Address, length int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireGovernanceLocked(caller); err != nil {
		return err
	}
	if length <= 0 {
		return fmt.Errorf("%w: cleartext maximum length %d", ErrInvalidParameter, length)
	}
	a.cleartextMaximumLength = length
	a.emit(a.clock.Now(), EventCleartextLenUpdate, map[string]any{"length": length})
	return nil
}

// SwearOath commits the creator to an oath until honoredUntil. Listing
// and starting an auction require an honored oath.
func (a *Asset) SwearOath(caller ledger.Address, oathHash commitment.Hash, honoredUntil time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()
	if err := a.requireGovernanceLocked(caller); err != nil {
		return err
	}
	if honoredUntil.Before(now) {
		return fmt.Errorf("%w: honoredUntil %s is in the past", ErrInvalidParameter, honoredUntil)
	}
	a.oathHash = oathHash
	a.honoredUntil = honoredUntil
	a.emit(now, EventOathSwearing, map[string]any{
		"oathHash":     oathHash.Hex(),
		"honoredUntil": honoredUntil,
	})
	return nil
}

// HonoredUntil returns the oath expiry.
func (a *Asset) HonoredUntil() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.honoredUntil
}

func (a *Asset) requireHonoredOathLocked(now time.Time) error {
	if a.honoredUntil.Before(now) {
		return fmt.Errorf("%w: honored until %s", ErrOathNotHonored, a.honoredUntil)
	}
	return nil
}
