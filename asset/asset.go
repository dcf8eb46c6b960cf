// Package asset implements the state machine for a single continuously
// taxed asset: keeper custody and solvency, Harberger tax settlement,
// the English auction allocator, the perpetual purchase mechanism, and
// the invocation/response registry.
//
// All operations run under one mutex, so state transitions are atomic
// and serial. Every entry point re-validates its own preconditions;
// nothing is trusted across calls. Monetary state lives exclusively in
// the injected ledger.
package asset

import (
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/keepsake/commitment"
	"github.com/keepsake-xyz/keepsake/ledger"
)

// FeeDenominator is the denominator for the tax and royalty numerators.
// A numerator of 1_000 means 10%.
const FeeDenominator = 10_000

// MaximumPrice bounds every stored price to 2^128, which keeps the tax
// arithmetic comfortably inside 256 bits.
var MaximumPrice = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

// Clock supplies the current time. Injectable for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// PayoutFunc delivers withdrawn funds externally. It is called after
// the ledger has already been debited.
type PayoutFunc func(addr ledger.Address, amount *uint256.Int) error

// Custody describes who controls the asset right now.
type Custody int

const (
	// ContractHeld means the asset sits in neutral custody: no keeper,
	// no tax, purchasable only through an auction or listing.
	ContractHeld Custody = iota
	// CreatorHeld means the creator is the keeper; no tax accrues.
	CreatorHeld
	// KeeperHeld means an external keeper holds the asset and pays tax.
	KeeperHeld
)

// String implements fmt.Stringer.
func (c Custody) String() string {
	switch c {
	case ContractHeld:
		return "contract"
	case CreatorHeld:
		return "creator"
	case KeeperHeld:
		return "keeper"
	}
	return fmt.Sprintf("custody(%d)", int(c))
}

// Invocation is a keeper's committed question.
type Invocation struct {
	ID          uint64          `json:"id"`
	Invoker     ledger.Address  `json:"invoker"`
	ContentHash commitment.Hash `json:"contentHash"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Response is the creator's committed answer, at most one per
// invocation, immutable once written.
type Response struct {
	ContentHash commitment.Hash `json:"contentHash"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Params configures a new asset instance.
type Params struct {
	Creator     ledger.Address
	Beneficiary ledger.Address

	TaxNumerator     uint64
	RoyaltyNumerator uint64
	TaxPeriod        time.Duration

	Cooldown               time.Duration
	FlaggingPeriod         time.Duration
	CleartextMaximumLength int

	AuctionStartingPrice   *uint256.Int
	AuctionMinimumBidStep  *uint256.Int
	AuctionMinimumDuration time.Duration
	AuctionBidExtension    time.Duration
}

// Option configures optional collaborators of an Asset.
type Option func(*Asset)

// WithClock replaces the wall clock, usually with a fake in tests.
func WithClock(c Clock) Option {
	return func(a *Asset) { a.clock = c }
}

// WithRecorder attaches an event recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Asset) { a.recorder = r }
}

// WithPayout sets the external transfer hook used by withdrawals.
func WithPayout(p PayoutFunc) Option {
	return func(a *Asset) { a.payout = p }
}

// Asset is the singleton taxed asset. The zero value is not usable;
// construct with New.
type Asset struct {
	mu       sync.Mutex
	clock    Clock
	ledger   *ledger.Ledger
	recorder Recorder
	payout   PayoutFunc

	creator     ledger.Address
	beneficiary ledger.Address
	holder      ledger.Address // Nobody means contract custody

	price             *uint256.Int
	lastSettlement    time.Time
	keeperReceiveTime time.Time

	taxNumerator     uint64
	royaltyNumerator uint64
	taxPeriod        time.Duration

	auctionStartingPrice   *uint256.Int
	auctionMinimumBidStep  *uint256.Int
	auctionMinimumDuration time.Duration
	auctionBidExtension    time.Duration
	auctionEndTime         time.Time
	auctionBeneficiary     ledger.Address
	leadingBidder          ledger.Address
	leadingBid             *uint256.Int
	leadingPriceIfWon      *uint256.Int

	cooldown               time.Duration
	flaggingPeriod         time.Duration
	cleartextMaximumLength int
	lastInvocationTime     time.Time
	invocations            []Invocation
	responses              map[uint64]Response
	flagged                map[uint64]bool
	flaggedCount           uint64

	oathHash     commitment.Hash
	honoredUntil time.Time
}

// New creates an asset in contract custody, backed by the given ledger.
func New(l *ledger.Ledger, p Params, opts ...Option) (*Asset, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: nil ledger", ErrInvalidParameter)
	}
	if p.Creator == ledger.Nobody {
		return nil, fmt.Errorf("%w: empty creator address", ErrInvalidParameter)
	}
	if p.Beneficiary == ledger.Nobody {
		return nil, fmt.Errorf("%w: empty beneficiary address", ErrInvalidParameter)
	}
	if p.TaxPeriod <= 0 {
		p.TaxPeriod = 365 * 24 * time.Hour
	}
	if p.RoyaltyNumerator > FeeDenominator {
		return nil, fmt.Errorf("%w: royalty numerator %d exceeds denominator %d",
			ErrInvalidParameter, p.RoyaltyNumerator, FeeDenominator)
	}
	if p.CleartextMaximumLength <= 0 {
		p.CleartextMaximumLength = 280
	}
	if p.AuctionStartingPrice == nil {
		p.AuctionStartingPrice = uint256.NewInt(0)
	}
	if p.AuctionMinimumBidStep == nil || p.AuctionMinimumBidStep.IsZero() {
		// A zero step would allow endless ties.
		p.AuctionMinimumBidStep = uint256.NewInt(1)
	}
	if p.AuctionMinimumDuration <= 0 {
		p.AuctionMinimumDuration = 24 * time.Hour
	}
	if p.AuctionBidExtension < 0 {
		return nil, fmt.Errorf("%w: negative bid extension", ErrInvalidParameter)
	}

	a := &Asset{
		clock:                  systemClock{},
		ledger:                 l,
		creator:                p.Creator,
		beneficiary:            p.Beneficiary,
		holder:                 ledger.Nobody,
		price:                  uint256.NewInt(0),
		taxNumerator:           p.TaxNumerator,
		royaltyNumerator:       p.RoyaltyNumerator,
		taxPeriod:              p.TaxPeriod,
		auctionStartingPrice:   new(uint256.Int).Set(p.AuctionStartingPrice),
		auctionMinimumBidStep:  new(uint256.Int).Set(p.AuctionMinimumBidStep),
		auctionMinimumDuration: p.AuctionMinimumDuration,
		auctionBidExtension:    p.AuctionBidExtension,
		cooldown:               p.Cooldown,
		flaggingPeriod:         p.FlaggingPeriod,
		cleartextMaximumLength: p.CleartextMaximumLength,
		responses:              make(map[uint64]Response),
		flagged:                make(map[uint64]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Creator returns the creator address.
func (a *Asset) Creator() ledger.Address { return a.creator }

// Beneficiary returns the beneficiary address.
func (a *Asset) Beneficiary() ledger.Address { return a.beneficiary }

// Keeper returns the current keeper, or ledger.Nobody while the asset
// is in contract custody.
func (a *Asset) Keeper() ledger.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder
}

// Custody reports who controls the asset.
func (a *Asset) Custody() Custody {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.custodyLocked()
}

func (a *Asset) custodyLocked() Custody {
	switch a.holder {
	case ledger.Nobody:
		return ContractHeld
	case a.creator:
		return CreatorHeld
	default:
		return KeeperHeld
	}
}

// creatorControlledLocked reports whether parameters may change: the
// creator controls the asset when no external keeper holds it and no
// auction is running.
func (a *Asset) creatorControlledLocked() bool {
	if a.auctionRunningLocked() {
		return false
	}
	c := a.custodyLocked()
	return c == ContractHeld || c == CreatorHeld
}

// Price returns a copy of the current sale price.
func (a *Asset) Price() *uint256.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(uint256.Int).Set(a.price)
}

// Funds returns addr's withdrawable ledger balance (ignoring any
// auction lock).
func (a *Asset) Funds(addr ledger.Address) *uint256.Int {
	return a.ledger.Balance(addr)
}

// Deposit credits addr with externally supplied funds. The keeper may
// only deposit while solvent, so an insolvent keeper cannot top up to
// look solvent ahead of a foreclosure.
func (a *Asset) Deposit(addr ledger.Address, amount *uint256.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()

	if amount == nil {
		amount = uint256.NewInt(0)
	}
	if addr == a.holder && a.custodyLocked() == KeeperHeld && !a.solventLocked(now) {
		return fmt.Errorf("%w: deposit rejected", ErrKeeperInsolvent)
	}
	if err := a.ledger.Deposit(addr, amount); err != nil {
		return err
	}
	a.emit(now, EventDeposit, map[string]any{
		"address": string(addr),
		"amount":  amount.String(),
	})
	return nil
}

// Withdraw debits addr and delivers the funds through the payout hook.
// The leading bidder's funds are locked until they are outbid or the
// auction is finalized. A keeper withdrawal settles tax first, so the
// beneficiary is always paid before the keeper empties their account.
func (a *Asset) Withdraw(addr ledger.Address, amount *uint256.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.withdrawLocked(addr, amount)
}

// WithdrawAll withdraws addr's entire remaining balance.
func (a *Asset) WithdrawAll(addr ledger.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if addr == a.holder && a.custodyLocked() == KeeperHeld {
		// Settle before reading the balance, or the keeper would walk
		// away with funds the beneficiary is owed.
		a.settleLocked(a.clock.Now())
	}
	return a.withdrawLocked(addr, a.ledger.Balance(addr))
}

func (a *Asset) withdrawLocked(addr ledger.Address, amount *uint256.Int) error {
	now := a.clock.Now()
	if amount == nil {
		amount = uint256.NewInt(0)
	}
	if addr == a.leadingBidder && a.leadingBidder != ledger.Nobody {
		return fmt.Errorf("%w: %s leads the auction with %s", ErrFundsLockedInBid, addr, a.leadingBid)
	}
	if addr == a.holder && a.custodyLocked() == KeeperHeld {
		a.settleLocked(now)
	}
	// Checks-effects-interactions: the ledger is debited and the event
	// recorded before any external transfer happens.
	if err := a.ledger.Withdraw(addr, amount); err != nil {
		return err
	}
	a.emit(now, EventWithdrawal, map[string]any{
		"address": string(addr),
		"amount":  amount.String(),
	})
	if a.payout != nil && amount != nil && !amount.IsZero() {
		if err := a.payout(addr, new(uint256.Int).Set(amount)); err != nil {
			return fmt.Errorf("external payout: %w", err)
		}
	}
	return nil
}

// setPriceLocked is the single bounded price setter. Every price change
// resets the settlement clock.
func (a *Asset) setPriceLocked(now time.Time, newPrice *uint256.Int) error {
	if newPrice == nil {
		newPrice = uint256.NewInt(0)
	}
	if newPrice.Gt(MaximumPrice) {
		return fmt.Errorf("%w: %s > %s", ErrPriceTooHigh, newPrice, MaximumPrice)
	}
	a.price = new(uint256.Int).Set(newPrice)
	a.lastSettlement = now
	a.emit(now, EventPriceUpdate, map[string]any{"price": a.price.String()})
	return nil
}

// transferToLocked moves custody. Passing ledger.Nobody returns the
// asset to contract custody.
func (a *Asset) transferToLocked(now time.Time, to ledger.Address) {
	a.holder = to
	if to == ledger.Nobody {
		a.keeperReceiveTime = time.Time{}
		return
	}
	a.keeperReceiveTime = now
}
