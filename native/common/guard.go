package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// ErrReentrancy is returned when a guarded operation is re-entered for the
// same term and operation class before the first invocation completed.
var ErrReentrancy = errors.New("operation already in flight")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// OpClass identifies a class of mutating operations that must never overlap
// for the same term.
type OpClass string

const (
	OpJoinCollateral     OpClass = "collateral.join"
	OpWithdrawCollateral OpClass = "collateral.withdraw"
	OpContribute         OpClass = "fund.contribute"
	OpWithdrawFund       OpClass = "fund.withdraw"
	OpYieldDeposit       OpClass = "yield.deposit"
	OpClaimYield         OpClass = "yield.claim"
	OpCycleClose         OpClass = "fund.close"
)

type lockKey struct {
	termID uint64
	class  OpClass
	actor  string
}

// LockSet is an explicit in-flight marker per (term, operation class, actor).
// The host runs each call to completion, so the set defends against logical
// reentrancy triggered through transfer callbacks, not against true
// parallelism.
type LockSet struct {
	inflight map[lockKey]struct{}
}

func NewLockSet() *LockSet {
	return &LockSet{inflight: make(map[lockKey]struct{})}
}

// Acquire marks the (term, class, actor) slot as in flight. The returned
// release function must be invoked via defer so the slot clears on every exit
// path.
func (l *LockSet) Acquire(termID uint64, class OpClass, actor string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	if l.inflight == nil {
		l.inflight = make(map[lockKey]struct{})
	}
	key := lockKey{termID: termID, class: class, actor: actor}
	if _, held := l.inflight[key]; held {
		return nil, ErrReentrancy
	}
	l.inflight[key] = struct{}{}
	return func() { delete(l.inflight, key) }, nil
}

// Held reports whether the slot is currently marked in flight.
func (l *LockSet) Held(termID uint64, class OpClass, actor string) bool {
	if l == nil || l.inflight == nil {
		return false
	}
	_, held := l.inflight[lockKey{termID: termID, class: class, actor: actor}]
	return held
}
