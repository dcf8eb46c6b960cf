package ledger

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestDepositAndBalance(t *testing.T) {
	l := New()

	if err := l.Deposit("alice", uint256.NewInt(100)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if err := l.Deposit("alice", uint256.NewInt(50)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	if got := l.Balance("alice"); !got.Eq(uint256.NewInt(150)) {
		t.Errorf("expected balance 150, got %s", got)
	}
	if got := l.Balance("bob"); !got.IsZero() {
		t.Errorf("expected zero balance for unknown account, got %s", got)
	}
}

func TestDepositToEmptyAddress(t *testing.T) {
	l := New()
	if err := l.Deposit(Nobody, uint256.NewInt(1)); !errors.Is(err, ErrNoAddress) {
		t.Errorf("expected ErrNoAddress, got %v", err)
	}
}

func TestWithdraw(t *testing.T) {
	l := New()
	l.Deposit("alice", uint256.NewInt(100))

	if err := l.Withdraw("alice", uint256.NewInt(40)); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if got := l.Balance("alice"); !got.Eq(uint256.NewInt(60)) {
		t.Errorf("expected balance 60, got %s", got)
	}

	err := l.Withdraw("alice", uint256.NewInt(61))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	// A failed withdrawal must not change the balance.
	if got := l.Balance("alice"); !got.Eq(uint256.NewInt(60)) {
		t.Errorf("balance changed after failed withdrawal: %s", got)
	}
}

func TestTransfer(t *testing.T) {
	l := New()
	l.Deposit("alice", uint256.NewInt(100))

	if err := l.Transfer("alice", "bob", uint256.NewInt(30)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if got := l.Balance("alice"); !got.Eq(uint256.NewInt(70)) {
		t.Errorf("expected alice 70, got %s", got)
	}
	if got := l.Balance("bob"); !got.Eq(uint256.NewInt(30)) {
		t.Errorf("expected bob 30, got %s", got)
	}

	err := l.Transfer("bob", "alice", uint256.NewInt(31))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	// Self-transfer is a no-op.
	if err := l.Transfer("alice", "alice", uint256.NewInt(10)); err != nil {
		t.Fatalf("self-transfer failed: %v", err)
	}
	if got := l.Balance("alice"); !got.Eq(uint256.NewInt(70)) {
		t.Errorf("self-transfer changed balance: %s", got)
	}
}

func TestConservation(t *testing.T) {
	l := New()
	l.Deposit("alice", uint256.NewInt(100))
	l.Deposit("bob", uint256.NewInt(200))
	l.Transfer("bob", "carol", uint256.NewInt(150))
	l.Withdraw("alice", uint256.NewInt(25))

	if err := l.Audit(); err != nil {
		t.Fatalf("audit failed: %v", err)
	}

	if got := l.TotalHeld(); !got.Eq(uint256.NewInt(275)) {
		t.Errorf("expected total held 275, got %s", got)
	}
	if got := l.TotalDeposited(); !got.Eq(uint256.NewInt(300)) {
		t.Errorf("expected total deposited 300, got %s", got)
	}
	if got := l.TotalWithdrawn(); !got.Eq(uint256.NewInt(25)) {
		t.Errorf("expected total withdrawn 25, got %s", got)
	}
}

func TestBalanceReturnsCopy(t *testing.T) {
	l := New()
	l.Deposit("alice", uint256.NewInt(100))

	b := l.Balance("alice")
	b.SetUint64(9999)

	if got := l.Balance("alice"); !got.Eq(uint256.NewInt(100)) {
		t.Errorf("mutating the returned balance leaked into the ledger: %s", got)
	}
}

func TestAccounts(t *testing.T) {
	l := New()
	l.Deposit("carol", uint256.NewInt(1))
	l.Deposit("alice", uint256.NewInt(1))
	l.Deposit("bob", uint256.NewInt(1))
	l.Withdraw("bob", uint256.NewInt(1))

	got := l.Accounts()
	want := []Address{"alice", "carol"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
