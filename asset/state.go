package asset

import (
	"time"
)

// State is a point-in-time snapshot of every observable field, suitable
// for serialization. Monetary values are decimal strings.
type State struct {
	Creator     string `json:"creator"`
	Beneficiary string `json:"beneficiary"`
	Keeper      string `json:"keeper,omitempty"`
	Custody     string `json:"custody"`

	Price                   string    `json:"price"`
	LastSettlementTime      time.Time `json:"lastSettlementTime"`
	KeeperReceiveTime       time.Time `json:"keeperReceiveTime,omitempty"`
	KeeperSolvent           bool      `json:"keeperSolvent"`
	OwedSinceLastSettlement string    `json:"owedSinceLastSettlement"`

	TaxNumerator     uint64 `json:"taxNumerator"`
	RoyaltyNumerator uint64 `json:"royaltyNumerator"`
	TaxPeriodSeconds int64  `json:"taxPeriodSeconds"`

	AuctionStartingPrice          string    `json:"auctionStartingPrice"`
	AuctionMinimumBidStep         string    `json:"auctionMinimumBidStep"`
	AuctionMinimumDurationSeconds int64     `json:"auctionMinimumDurationSeconds"`
	AuctionBidExtensionSeconds    int64     `json:"auctionBidExtensionSeconds"`
	AuctionEndTime                time.Time `json:"auctionEndTime,omitempty"`
	AuctionRunning                bool      `json:"auctionRunning"`
	LeadingBidder                 string    `json:"leadingBidder,omitempty"`
	LeadingBid                    string    `json:"leadingBid,omitempty"`
	MinimumBid                    string    `json:"minimumBid,omitempty"`

	CooldownSeconds        int64     `json:"cooldownSeconds"`
	FlaggingPeriodSeconds  int64     `json:"flaggingPeriodSeconds"`
	CleartextMaximumLength int       `json:"cleartextMaximumLength"`
	LastInvocationTime     time.Time `json:"lastInvocationTime,omitempty"`
	InvocationCount        uint64    `json:"invocationCount"`
	FlaggedResponseCount   uint64    `json:"flaggedResponseCount"`

	OathHash     string    `json:"oathHash,omitempty"`
	HonoredUntil time.Time `json:"honoredUntil,omitempty"`
}

// State snapshots the asset.
func (a *Asset) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()

	s := State{
		Creator:     string(a.creator),
		Beneficiary: string(a.beneficiary),
		Keeper:      string(a.holder),
		Custody:     a.custodyLocked().String(),

		Price:                   a.price.String(),
		LastSettlementTime:      a.lastSettlement,
		KeeperReceiveTime:       a.keeperReceiveTime,
		KeeperSolvent:           a.solventLocked(now),
		OwedSinceLastSettlement: a.owedLocked(now).String(),

		TaxNumerator:     a.taxNumerator,
		RoyaltyNumerator: a.royaltyNumerator,
		TaxPeriodSeconds: int64(a.taxPeriod / time.Second),

		AuctionStartingPrice:          a.auctionStartingPrice.String(),
		AuctionMinimumBidStep:         a.auctionMinimumBidStep.String(),
		AuctionMinimumDurationSeconds: int64(a.auctionMinimumDuration / time.Second),
		AuctionBidExtensionSeconds:    int64(a.auctionBidExtension / time.Second),
		AuctionEndTime:                a.auctionEndTime,
		AuctionRunning:                a.auctionRunningLocked(),

		CooldownSeconds:        int64(a.cooldown / time.Second),
		FlaggingPeriodSeconds:  int64(a.flaggingPeriod / time.Second),
		CleartextMaximumLength: a.cleartextMaximumLength,
		LastInvocationTime:     a.lastInvocationTime,
		InvocationCount:        uint64(len(a.invocations)),
		FlaggedResponseCount:   a.flaggedCount,

		HonoredUntil: a.honoredUntil,
	}
	if a.auctionLiveLocked() {
		s.LeadingBidder = string(a.leadingBidder)
		if a.leadingBid != nil {
			s.LeadingBid = a.leadingBid.String()
		}
		s.MinimumBid = a.minimumBidLocked().String()
	}
	if !a.oathHash.IsZero() {
		s.OathHash = a.oathHash.Hex()
	}
	return s
}
