package asset

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/keepsake/commitment"
)

// keeperFixture lists at 1000 and sells to bob, leaving bob with
// headroom funds so the keeper stays solvent through the test.
func keeperFixture(t *testing.T) (*Asset, *fakeClock) {
	t.Helper()
	a, _, clk := newTestAsset(t, defaultParams())
	swearAndList(t, a, clk, 1000)
	buyFromListing(t, a, clk, bob, 1000, 1500)
	return a, clk
}

func TestInvokeGating(t *testing.T) {
	a, clk := keeperFixture(t)

	if _, err := a.Invoke(carol, commitment.HashCleartext("q")); !errors.Is(err, ErrNotKeeper) {
		t.Fatalf("non-keeper invoke: %v, want ErrNotKeeper", err)
	}
	long := strings.Repeat("q", 65)
	if _, err := a.InvokeWithCleartext(bob, long); !errors.Is(err, ErrCleartextTooLong) {
		t.Fatalf("oversized cleartext: %v, want ErrCleartextTooLong", err)
	}
	id, err := a.InvokeWithCleartext(bob, strings.Repeat("q", 64))
	if err != nil {
		t.Fatalf("Invoke at the length cap: %v", err)
	}
	if id != 1 {
		t.Fatalf("first invocation id = %d, want 1", id)
	}

	inv, err := a.InvocationByID(1)
	if err != nil {
		t.Fatalf("InvocationByID: %v", err)
	}
	if inv.Invoker != bob || inv.ContentHash.IsZero() {
		t.Fatalf("invocation = %+v, want bob with a non-zero hash", inv)
	}
	if _, err := a.InvocationByID(2); !errors.Is(err, ErrInvocationNotFound) {
		t.Fatalf("unknown id: %v, want ErrInvocationNotFound", err)
	}

	// An insolvent keeper cannot invoke.
	clk.Advance(10 * 365 * 24 * time.Hour)
	if _, err := a.Invoke(bob, commitment.HashCleartext("q2")); !errors.Is(err, ErrKeeperInsolvent) {
		t.Fatalf("insolvent invoke: %v, want ErrKeeperInsolvent", err)
	}
}

func TestCooldownBoundary(t *testing.T) {
	a, clk := keeperFixture(t)

	if _, err := a.InvokeWithCleartext(bob, "first"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	clk.Advance(time.Hour - time.Second)
	if _, err := a.InvokeWithCleartext(bob, "too soon"); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("one second early: %v, want ErrCooldownActive", err)
	}
	clk.Advance(time.Second)
	if _, err := a.InvokeWithCleartext(bob, "on the dot"); err != nil {
		t.Fatalf("invoke at exactly the cooldown boundary: %v", err)
	}
	if got := a.InvocationCount(); got != 2 {
		t.Fatalf("invocation count = %d, want 2", got)
	}
}

func TestRespond(t *testing.T) {
	a, clk := keeperFixture(t)
	if _, err := a.InvokeWithCleartext(bob, "question"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	answer := commitment.HashCleartext("answer")
	if err := a.Respond(bob, 1, answer); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("non-creator respond: %v, want ErrNotCreator", err)
	}
	if err := a.Respond(alice, 2, answer); !errors.Is(err, ErrInvocationNotFound) {
		t.Fatalf("respond to unknown id: %v, want ErrInvocationNotFound", err)
	}

	// No deadline: a very late response is still accepted.
	clk.Advance(400 * 24 * time.Hour)
	if err := a.Respond(alice, 1, answer); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	got, ok := a.ResponseByID(1)
	if !ok || got.ContentHash != answer {
		t.Fatalf("stored response = %+v ok=%v", got, ok)
	}
	// Responses are immutable.
	err := a.Respond(alice, 1, commitment.HashCleartext("revised"))
	if !errors.Is(err, ErrResponseExists) {
		t.Fatalf("second respond: %v, want ErrResponseExists", err)
	}
}

func TestFlagResponse(t *testing.T) {
	a, clk := keeperFixture(t)
	if _, err := a.InvokeWithCleartext(bob, "question"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	clk.Advance(time.Hour)
	if err := a.Respond(alice, 1, commitment.HashCleartext("answer")); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	if err := a.FlagResponse(carol, 1); !errors.Is(err, ErrNotKeeper) {
		t.Fatalf("non-keeper flag: %v, want ErrNotKeeper", err)
	}
	if err := a.FlagResponse(bob, 2); !errors.Is(err, ErrResponseNotFound) {
		t.Fatalf("flag without response: %v, want ErrResponseNotFound", err)
	}

	clk.Advance(time.Hour)
	if err := a.FlagResponse(bob, 1); err != nil {
		t.Fatalf("FlagResponse: %v", err)
	}
	if !a.ResponseFlagged(1) {
		t.Fatal("response not marked flagged")
	}
	if got := a.FlaggedResponseCount(); got != 1 {
		t.Fatalf("flagged count = %d, want 1", got)
	}
	if err := a.FlagResponse(bob, 1); !errors.Is(err, ErrResponseAlreadyFlagged) {
		t.Fatalf("double flag: %v, want ErrResponseAlreadyFlagged", err)
	}
}

func TestFlagResponseDeadline(t *testing.T) {
	a, clk := keeperFixture(t)
	if _, err := a.InvokeWithCleartext(bob, "question"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	clk.Advance(time.Hour)
	if err := a.Respond(alice, 1, commitment.HashCleartext("answer")); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	clk.Advance(72 * time.Hour)
	if err := a.FlagResponse(bob, 1); !errors.Is(err, ErrFlaggingPeriodOver) {
		t.Fatalf("flag at the deadline: %v, want ErrFlaggingPeriodOver", err)
	}
}

func TestNewKeeperCannotFlagOldResponse(t *testing.T) {
	a, clk := keeperFixture(t)
	if _, err := a.InvokeWithCleartext(bob, "question"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	clk.Advance(time.Hour)
	if err := a.Respond(alice, 1, commitment.HashCleartext("answer")); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	// carol buys the asset after the response landed.
	clk.Advance(time.Hour)
	if err := a.Purchase(carol, uint256.NewInt(100), termsOf(a), uint256.NewInt(1100)); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if err := a.FlagResponse(carol, 1); !errors.Is(err, ErrResponseNotToKeeper) {
		t.Fatalf("new keeper flag: %v, want ErrResponseNotToKeeper", err)
	}
	// The old keeper lost standing with the asset.
	if err := a.FlagResponse(bob, 1); !errors.Is(err, ErrNotKeeper) {
		t.Fatalf("old keeper flag: %v, want ErrNotKeeper", err)
	}
}
