package common

import (
	"errors"
	"testing"
)

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

func TestGuardPaused(t *testing.T) {
	pauses := pauseMap{"fund": true}
	if err := Guard(pauses, "fund"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected pause error, got %v", err)
	}
	if err := Guard(pauses, "collateral"); err != nil {
		t.Fatalf("unexpected error for unpaused module: %v", err)
	}
	if err := Guard(nil, "fund"); err != nil {
		t.Fatalf("nil view must not guard: %v", err)
	}
}

func TestLockSetRejectsReentry(t *testing.T) {
	locks := NewLockSet()
	release, err := locks.Acquire(7, OpWithdrawCollateral, "ring1...")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !locks.Held(7, OpWithdrawCollateral, "ring1...") {
		t.Fatalf("expected slot to be held")
	}
	if _, err := locks.Acquire(7, OpWithdrawCollateral, "ring1..."); !errors.Is(err, ErrReentrancy) {
		t.Fatalf("expected reentrancy error, got %v", err)
	}
	// A different class or term is independent.
	other, err := locks.Acquire(7, OpWithdrawFund, "ring1...")
	if err != nil {
		t.Fatalf("independent class blocked: %v", err)
	}
	other()
	release()
	if locks.Held(7, OpWithdrawCollateral, "ring1...") {
		t.Fatalf("release did not clear slot")
	}
	if _, err := locks.Acquire(7, OpWithdrawCollateral, "ring1..."); err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
}
