package asset

import (
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/keepsake/commitment"
	"github.com/keepsake-xyz/keepsake/ledger"
)

const (
	alice = ledger.Address("alice") // creator
	fund  = ledger.Address("fund")  // beneficiary
	bob   = ledger.Address("bob")
	carol = ledger.Address("carol")
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func defaultParams() Params {
	return Params{
		Creator:                alice,
		Beneficiary:            fund,
		TaxNumerator:           1_000, // 10% per period
		RoyaltyNumerator:       500,   // 5%
		TaxPeriod:              365 * 24 * time.Hour,
		Cooldown:               time.Hour,
		FlaggingPeriod:         72 * time.Hour,
		CleartextMaximumLength: 64,
		AuctionStartingPrice:   uint256.NewInt(100),
		AuctionMinimumBidStep:  uint256.NewInt(10),
		AuctionMinimumDuration: 24 * time.Hour,
		AuctionBidExtension:    15 * time.Minute,
	}
}

func newTestAsset(t *testing.T, p Params, opts ...Option) (*Asset, *ledger.Ledger, *fakeClock) {
	t.Helper()
	l := ledger.New()
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
	a, err := New(l, p, append([]Option{WithClock(clk)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, l, clk
}

// swearAndList swears a year-long oath and lists the asset at price.
func swearAndList(t *testing.T, a *Asset, clk *fakeClock, price uint64) {
	t.Helper()
	oath := commitment.HashCleartext("I will answer honestly")
	if err := a.SwearOath(alice, oath, clk.Now().Add(365*24*time.Hour)); err != nil {
		t.Fatalf("SwearOath: %v", err)
	}
	if err := a.ListWithPrice(alice, uint256.NewInt(price)); err != nil {
		t.Fatalf("ListWithPrice: %v", err)
	}
}

func termsOf(a *Asset) PurchaseTerms {
	s := a.State()
	price := uint256.MustFromDecimal(s.Price)
	return PurchaseTerms{
		CurrentPrice:                  price,
		CurrentTaxNumerator:           s.TaxNumerator,
		CurrentRoyaltyNumerator:       s.RoyaltyNumerator,
		CurrentCooldown:               time.Duration(s.CooldownSeconds) * time.Second,
		CurrentCleartextMaximumLength: s.CleartextMaximumLength,
	}
}

// buyFromListing advances past the listing second and purchases for
// buyer, attaching exactly attached.
func buyFromListing(t *testing.T, a *Asset, clk *fakeClock, buyer ledger.Address, newPrice, attached uint64) {
	t.Helper()
	clk.Advance(time.Second)
	err := a.Purchase(buyer, uint256.NewInt(newPrice), termsOf(a), uint256.NewInt(attached))
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	l := ledger.New()
	if _, err := New(nil, defaultParams()); err == nil {
		t.Fatal("nil ledger accepted")
	}
	p := defaultParams()
	p.Creator = ledger.Nobody
	if _, err := New(l, p); err == nil {
		t.Fatal("empty creator accepted")
	}
	p = defaultParams()
	p.RoyaltyNumerator = FeeDenominator + 1
	if _, err := New(l, p); err == nil {
		t.Fatal("royalty above denominator accepted")
	}

	a, _, _ := newTestAsset(t, defaultParams())
	if got := a.Custody(); got != ContractHeld {
		t.Fatalf("new asset custody = %s, want contract", got)
	}
	if !a.Price().IsZero() {
		t.Fatalf("new asset price = %s, want 0", a.Price())
	}
}

func TestListRequiresOath(t *testing.T) {
	a, _, _ := newTestAsset(t, defaultParams())
	err := a.ListWithPrice(alice, uint256.NewInt(100))
	if !errors.Is(err, ErrOathNotHonored) {
		t.Fatalf("ListWithPrice without oath: %v, want ErrOathNotHonored", err)
	}
}

func TestListTransfersToCreator(t *testing.T) {
	a, _, clk := newTestAsset(t, defaultParams())
	swearAndList(t, a, clk, 1000)

	if got := a.Custody(); got != CreatorHeld {
		t.Fatalf("custody = %s, want creator", got)
	}
	if got := a.Price(); !got.Eq(uint256.NewInt(1000)) {
		t.Fatalf("price = %s, want 1000", got)
	}
	// The creator pays no tax.
	clk.Advance(365 * 24 * time.Hour)
	if owed := a.OwedSinceLastSettlement(); !owed.IsZero() {
		t.Fatalf("creator owes %s, want 0", owed)
	}
}

func TestTaxAccrual(t *testing.T) {
	a, l, clk := newTestAsset(t, defaultParams())
	swearAndList(t, a, clk, 1000)
	buyFromListing(t, a, clk, bob, 1000, 1100) // bob keeps 100 after paying

	// 10% of 1000 over one full period.
	clk.Advance(365 * 24 * time.Hour)
	if owed := a.OwedSinceLastSettlement(); !owed.Eq(uint256.NewInt(100)) {
		t.Fatalf("owed = %s, want 100", owed)
	}
	if !a.KeeperSolvent() {
		t.Fatal("keeper with exact funds reported insolvent")
	}

	before := l.Balance(fund)
	a.Settle()
	if got := new(uint256.Int).Sub(l.Balance(fund), before); !got.Eq(uint256.NewInt(100)) {
		t.Fatalf("beneficiary received %s, want 100", got)
	}
	if got := l.Balance(bob); !got.IsZero() {
		t.Fatalf("keeper balance = %s, want 0", got)
	}
	// Settled up to now, nothing further owed.
	if owed := a.OwedSinceLastSettlement(); !owed.IsZero() {
		t.Fatalf("owed after settle = %s, want 0", owed)
	}
	if err := l.Audit(); err != nil {
		t.Fatalf("Audit: %v", err)
	}
}

func TestSettlementCappedAtBalance(t *testing.T) {
	a, l, clk := newTestAsset(t, defaultParams())
	swearAndList(t, a, clk, 1000)
	buyFromListing(t, a, clk, bob, 1000, 1050) // 50 left over

	clk.Advance(365 * 24 * time.Hour) // owed 100, balance 50
	if a.KeeperSolvent() {
		t.Fatal("underfunded keeper reported solvent")
	}
	before := l.Balance(fund)
	a.Settle()
	if got := new(uint256.Int).Sub(l.Balance(fund), before); !got.Eq(uint256.NewInt(50)) {
		t.Fatalf("beneficiary received %s, want the full balance of 50", got)
	}
	// The clock advanced even though the debt was only partially paid.
	if owed := a.OwedSinceLastSettlement(); !owed.IsZero() {
		t.Fatalf("owed after capped settle = %s, want 0", owed)
	}
}

func TestForeclosure(t *testing.T) {
	a, _, clk := newTestAsset(t, defaultParams())
	swearAndList(t, a, clk, 1000)
	buyFromListing(t, a, clk, bob, 1000, 1050)

	if err := a.Foreclose(); !errors.Is(err, ErrKeeperSolvent) {
		t.Fatalf("foreclosing a solvent keeper: %v, want ErrKeeperSolvent", err)
	}

	clk.Advance(365 * 24 * time.Hour) // owed 100 > 50
	if err := a.Foreclose(); err != nil {
		t.Fatalf("Foreclose: %v", err)
	}
	if got := a.Custody(); got != ContractHeld {
		t.Fatalf("custody after foreclosure = %s, want contract", got)
	}
	if !a.Price().IsZero() {
		t.Fatalf("price after foreclosure = %s, want 0", a.Price())
	}
	if err := a.Foreclose(); !errors.Is(err, ErrNotKeeperHeld) {
		t.Fatalf("double foreclosure: %v, want ErrNotKeeperHeld", err)
	}
}

func TestZeroPriceNeverForecloses(t *testing.T) {
	a, _, clk := newTestAsset(t, defaultParams())
	swearAndList(t, a, clk, 1000)
	buyFromListing(t, a, clk, bob, 0, 1000) // bob declares price 0

	clk.Advance(10 * 365 * 24 * time.Hour)
	if owed := a.OwedSinceLastSettlement(); !owed.IsZero() {
		t.Fatalf("owed at zero price = %s, want 0", owed)
	}
	if err := a.Foreclose(); !errors.Is(err, ErrKeeperSolvent) {
		t.Fatalf("Foreclose at zero price: %v, want ErrKeeperSolvent", err)
	}
}

func TestPurchaseChecks(t *testing.T) {
	a, _, clk := newTestAsset(t, defaultParams())

	t.Run("contract custody", func(t *testing.T) {
		err := a.Purchase(bob, uint256.NewInt(1), termsOf(a), uint256.NewInt(1))
		if !errors.Is(err, ErrNotKeeperHeld) {
			t.Fatalf("got %v, want ErrNotKeeperHeld", err)
		}
	})

	swearAndList(t, a, clk, 1000)
	clk.Advance(time.Second)

	t.Run("self purchase", func(t *testing.T) {
		err := a.Purchase(alice, uint256.NewInt(1), termsOf(a), nil)
		if !errors.Is(err, ErrSelfPurchase) {
			t.Fatalf("got %v, want ErrSelfPurchase", err)
		}
	})
	t.Run("beneficiary barred", func(t *testing.T) {
		err := a.Purchase(fund, uint256.NewInt(1), termsOf(a), uint256.NewInt(1000))
		if !errors.Is(err, ErrBeneficiaryBarred) {
			t.Fatalf("got %v, want ErrBeneficiaryBarred", err)
		}
	})
	t.Run("insufficient funds", func(t *testing.T) {
		err := a.Purchase(bob, uint256.NewInt(1), termsOf(a), uint256.NewInt(999))
		if !errors.Is(err, ledger.ErrInsufficientFunds) {
			t.Fatalf("got %v, want ErrInsufficientFunds", err)
		}
		// The failed purchase must not have deposited the attached funds.
		if got := a.Funds(bob); !got.IsZero() {
			t.Fatalf("attached funds leaked: balance %s", got)
		}
	})
	t.Run("new price above cap", func(t *testing.T) {
		over := new(uint256.Int).AddUint64(MaximumPrice, 1)
		err := a.Purchase(bob, over, termsOf(a), uint256.NewInt(1000))
		if !errors.Is(err, ErrPriceTooHigh) {
			t.Fatalf("got %v, want ErrPriceTooHigh", err)
		}
	})
	t.Run("new price at cap is allowed", func(t *testing.T) {
		err := a.Purchase(bob, MaximumPrice, termsOf(a), uint256.NewInt(1000))
		if err != nil {
			t.Fatalf("Purchase at exactly the cap: %v", err)
		}
	})
}

func TestPurchaseTermsGuard(t *testing.T) {
	a, _, clk := newTestAsset(t, defaultParams())
	swearAndList(t, a, clk, 1000)
	clk.Advance(time.Second)

	cases := []struct {
		name   string
		mutate func(*PurchaseTerms)
	}{
		{"price", func(p *PurchaseTerms) { p.CurrentPrice = uint256.NewInt(999) }},
		{"tax numerator", func(p *PurchaseTerms) { p.CurrentTaxNumerator++ }},
		{"royalty numerator", func(p *PurchaseTerms) { p.CurrentRoyaltyNumerator++ }},
		{"cooldown", func(p *PurchaseTerms) { p.CurrentCooldown += time.Second }},
		{"cleartext length", func(p *PurchaseTerms) { p.CurrentCleartextMaximumLength++ }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			terms := termsOf(a)
			tc.mutate(&terms)
			err := a.Purchase(bob, uint256.NewInt(500), terms, uint256.NewInt(1000))
			if !errors.Is(err, ErrCurrentValueIncorrect) {
				t.Fatalf("got %v, want ErrCurrentValueIncorrect", err)
			}
		})
	}

	// Correct restatement goes through.
	if err := a.Purchase(bob, uint256.NewInt(500), termsOf(a), uint256.NewInt(1000)); err != nil {
		t.Fatalf("Purchase with matching terms: %v", err)
	}
}

func TestPurchaseSameInstantAsSettlement(t *testing.T) {
	a, _, clk := newTestAsset(t, defaultParams())
	swearAndList(t, a, clk, 1000)
	buyFromListing(t, a, clk, bob, 1000, 1100)

	// bob reprices, which settles; carol cannot buy within the same second.
	clk.Advance(time.Hour)
	if err := a.SetPrice(bob, uint256.NewInt(200)); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	err := a.Purchase(carol, uint256.NewInt(200), termsOf(a), uint256.NewInt(200))
	if !errors.Is(err, ErrSettledThisInstant) {
		t.Fatalf("got %v, want ErrSettledThisInstant", err)
	}
	clk.Advance(time.Second)
	if err := a.Purchase(carol, uint256.NewInt(200), termsOf(a), uint256.NewInt(200)); err != nil {
		t.Fatalf("Purchase one second later: %v", err)
	}
}

func TestKeeperSaleSplitsRoyalty(t *testing.T) {
	a, l, clk := newTestAsset(t, defaultParams())
	swearAndList(t, a, clk, 1000)
	buyFromListing(t, a, clk, bob, 2000, 1000) // creator sale: all 1000 to fund

	if got := l.Balance(fund); !got.Eq(uint256.NewInt(1000)) {
		t.Fatalf("beneficiary after creator sale holds %s, want 1000", got)
	}

	// carol buys from bob at 2000: 5% royalty to fund, rest to bob.
	clk.Advance(time.Second)
	if err := a.Purchase(carol, uint256.NewInt(100), termsOf(a), uint256.NewInt(2000)); err != nil {
		t.Fatalf("Purchase from keeper: %v", err)
	}
	if got := l.Balance(fund); !got.Eq(uint256.NewInt(1100)) {
		t.Fatalf("beneficiary holds %s, want 1100 (1000 + 5%% of 2000)", got)
	}
	if got := l.Balance(bob); !got.Eq(uint256.NewInt(1900)) {
		t.Fatalf("outgoing keeper holds %s, want 1900", got)
	}
	if got := a.Keeper(); got != carol {
		t.Fatalf("keeper = %s, want carol", got)
	}
	if err := l.Audit(); err != nil {
		t.Fatalf("Audit: %v", err)
	}
}

func TestWithdrawSettlesKeeperFirst(t *testing.T) {
	var paidOut []string
	payout := func(addr ledger.Address, amount *uint256.Int) error {
		paidOut = append(paidOut, string(addr)+":"+amount.String())
		return nil
	}
	a, l, clk := newTestAsset(t, defaultParams(), WithPayout(payout))
	swearAndList(t, a, clk, 1000)
	buyFromListing(t, a, clk, bob, 1000, 1100) // balance 100

	clk.Advance(365 * 12 * time.Hour) // half a period, owed 50
	if err := a.Withdraw(bob, uint256.NewInt(50)); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got := l.Balance(fund); !got.Eq(uint256.NewInt(1050)) {
		t.Fatalf("beneficiary holds %s, want 1050 after settlement", got)
	}
	if got := l.Balance(bob); !got.IsZero() {
		t.Fatalf("keeper holds %s, want 0", got)
	}
	if len(paidOut) != 1 || paidOut[0] != "bob:50" {
		t.Fatalf("payout calls = %v, want [bob:50]", paidOut)
	}

	// Withdrawing more than remains after settlement fails cleanly.
	clk.Advance(time.Hour)
	if err := a.Withdraw(bob, uint256.NewInt(1)); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("overdraw: %v, want ErrInsufficientFunds", err)
	}
}

func TestInsolventKeeperCannotDeposit(t *testing.T) {
	a, _, clk := newTestAsset(t, defaultParams())
	swearAndList(t, a, clk, 1000)
	buyFromListing(t, a, clk, bob, 1000, 1050)

	clk.Advance(365 * 24 * time.Hour) // owed 100 > 50
	err := a.Deposit(bob, uint256.NewInt(1000))
	if !errors.Is(err, ErrKeeperInsolvent) {
		t.Fatalf("insolvent keeper deposit: %v, want ErrKeeperInsolvent", err)
	}
	// Anyone else can still deposit.
	if err := a.Deposit(carol, uint256.NewInt(10)); err != nil {
		t.Fatalf("bystander deposit: %v", err)
	}
}

func TestGovernanceGating(t *testing.T) {
	a, _, clk := newTestAsset(t, defaultParams())

	if err := a.SetFees(bob, 100, 100); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("non-creator SetFees: %v, want ErrNotCreator", err)
	}
	if err := a.SetFees(alice, MaximumTaxNumerator+1, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("tax above cap: %v, want ErrInvalidParameter", err)
	}
	if err := a.SetFees(alice, 2_000, 1_000); err != nil {
		t.Fatalf("SetFees: %v", err)
	}

	swearAndList(t, a, clk, 1000)
	// Creator custody still counts as creator control.
	if err := a.SetCooldown(alice, 2*time.Hour, 48*time.Hour); err != nil {
		t.Fatalf("SetCooldown while creator-held: %v", err)
	}

	buyFromListing(t, a, clk, bob, 1000, 1000)
	// Terms are frozen while an external keeper holds the asset.
	if err := a.SetFees(alice, 100, 100); !errors.Is(err, ErrCreatorControlsOnly) {
		t.Fatalf("SetFees under a keeper: %v, want ErrCreatorControlsOnly", err)
	}
	if err := a.SetCleartextMaximumLength(alice, 500); !errors.Is(err, ErrCreatorControlsOnly) {
		t.Fatalf("SetCleartextMaximumLength under a keeper: %v, want ErrCreatorControlsOnly", err)
	}
}

func TestEventsRecorded(t *testing.T) {
	var types []string
	rec := RecorderFunc(func(e Event) { types = append(types, e.Type) })
	a, _, clk := newTestAsset(t, defaultParams(), WithRecorder(rec))
	swearAndList(t, a, clk, 1000)
	buyFromListing(t, a, clk, bob, 1000, 1000)

	want := []string{
		EventOathSwearing,
		EventPriceUpdate, EventListing,
		EventDeposit, EventPriceUpdate, EventPurchase,
	}
	if len(types) != len(want) {
		t.Fatalf("recorded %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d = %s, want %s (all: %v)", i, types[i], want[i], types)
		}
	}
}

func TestConservationAcrossLifecycle(t *testing.T) {
	a, l, clk := newTestAsset(t, defaultParams())
	swearAndList(t, a, clk, 1000)
	buyFromListing(t, a, clk, bob, 2000, 1200)

	clk.Advance(30 * 24 * time.Hour)
	a.Settle()
	clk.Advance(time.Second)
	if err := a.Purchase(carol, uint256.NewInt(500), termsOf(a), uint256.NewInt(2100)); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	clk.Advance(90 * 24 * time.Hour)
	if err := a.Relinquish(carol, false); err != nil {
		t.Fatalf("Relinquish: %v", err)
	}
	if err := a.WithdrawAll(bob); err != nil {
		t.Fatalf("WithdrawAll(bob): %v", err)
	}
	if err := a.WithdrawAll(fund); err != nil {
		t.Fatalf("WithdrawAll(fund): %v", err)
	}
	if err := l.Audit(); err != nil {
		t.Fatalf("Audit: %v", err)
	}
}
