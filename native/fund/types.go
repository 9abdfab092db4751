package fund

import (
	"math/big"

	"ringfund/crypto"
)

// State tracks the per-term fund cycle phase.
type State uint8

const (
	// AcceptingContributions is the open funding window of the current cycle.
	AcceptingContributions State = iota
	// CycleOngoing runs from funding close until the next cycle starts.
	CycleOngoing
	// FundClosed is terminal; every remaining participant has had a payout.
	FundClosed
)

// Valid reports whether the state value is within the supported range.
func (s State) Valid() bool {
	switch s {
	case AcceptingContributions, CycleOngoing, FundClosed:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	switch s {
	case AcceptingContributions:
		return "accepting"
	case CycleOngoing:
		return "ongoing"
	case FundClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Fund is the per-term cycle header. Term parameters are snapshotted at
// initialisation and never change while the fund runs.
type Fund struct {
	TermID uint64
	Owner  crypto.Address
	State  State
	// CurrentCycle is 1-indexed.
	CurrentCycle   uint64
	CycleStartedAt int64
	ClosedAt       int64

	ContributionAmount *big.Int
	ContributionPeriod int64
	CycleTime          int64

	// Members is the immutable join order, kept for audit and sweeps.
	Members []crypto.Address
	// Beneficiaries is the payout order. The prefix covering completed
	// cycles is immutable; only the remaining suffix is reordered on
	// defaults or shrunk on expulsion.
	Beneficiaries []crypto.Address
	// StablePool is the RUSD collected for the open cycle, awarded at close.
	StablePool *big.Int
	// OutstandingStable is the term's RUSD still held in the fund vault:
	// the open pool plus awarded-but-unwithdrawn pots.
	OutstandingStable *big.Int
}

func (f *Fund) normalize() *Fund {
	if f.ContributionAmount == nil {
		f.ContributionAmount = big.NewInt(0)
	}
	if f.StablePool == nil {
		f.StablePool = big.NewInt(0)
	}
	if f.OutstandingStable == nil {
		f.OutstandingStable = big.NewInt(0)
	}
	return f
}

// Clone returns a deep copy of the fund header.
func (f *Fund) Clone() *Fund {
	if f == nil {
		return nil
	}
	clone := *f
	clone.ContributionAmount = cloneBig(f.ContributionAmount)
	clone.StablePool = cloneBig(f.StablePool)
	clone.OutstandingStable = cloneBig(f.OutstandingStable)
	clone.Members = append([]crypto.Address(nil), f.Members...)
	clone.Beneficiaries = append([]crypto.Address(nil), f.Beneficiaries...)
	return &clone
}

// Participant is the per-member cycle record.
type Participant struct {
	Address crypto.Address
	// PaidThisCycle and DefaultedThisCycle reset every cycle.
	PaidThisCycle      bool
	DefaultedThisCycle bool
	// AutoPay persists across cycles.
	AutoPay bool
	// Expelled persists for the life of the term and beyond.
	Expelled bool
	// ExemptThisCycle marks a slot excused from contributing this cycle.
	ExemptThisCycle bool
	// WasBeneficiary is set when the participant's payout cycle completed.
	WasBeneficiary bool
	// AwardedPool is the RUSD payout not yet withdrawn.
	AwardedPool *big.Int
	// FrozenPot marks an awarded pool the recipient cannot collect while
	// under-collateralized.
	FrozenPot bool
}

func (p *Participant) normalize() *Participant {
	if p.AwardedPool == nil {
		p.AwardedPool = big.NewInt(0)
	}
	return p
}

// Clone returns a deep copy of the participant record.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	clone := *p
	clone.AwardedPool = cloneBig(p.AwardedPool)
	return &clone
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// CollateralOps is the slice of the collateral ledger the fund engine drives
// during funding close.
type CollateralOps interface {
	Liquidate(termID uint64, defaulter, beneficiary crypto.Address, stableOwed *big.Int) error
	SeizeAndExpel(termID uint64, defaulter, beneficiary crypto.Address, stableOwed *big.Int) (*big.Int, error)
	IsUnderCollateralized(termID uint64, member crypto.Address, remainingStable *big.Int) (bool, error)
}
