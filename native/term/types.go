package term

import (
	"math/big"

	"ringfund/crypto"
)

// State is the top-level term phase.
type State uint8

const (
	// InitializingTerm is the registration window where members join with
	// collateral.
	InitializingTerm State = iota
	// ActiveTerm runs the contribution cycles.
	ActiveTerm
	// ExpiredTerm is terminal: registration lapsed before the term filled.
	ExpiredTerm
	// ClosedTerm is terminal: every cycle completed.
	ClosedTerm
)

// Valid reports whether the state value is within the supported range.
func (s State) Valid() bool {
	switch s {
	case InitializingTerm, ActiveTerm, ExpiredTerm, ClosedTerm:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	switch s {
	case InitializingTerm:
		return "initializing"
	case ActiveTerm:
		return "active"
	case ExpiredTerm:
		return "expired"
	case ClosedTerm:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == ExpiredTerm || s == ClosedTerm }

// Params are the creation-time term parameters. All fields are required.
type Params struct {
	TotalParticipants  uint64
	RegistrationPeriod int64
	ContributionAmount *big.Int
	ContributionPeriod int64
	CycleTime          int64
	// YieldProvider selects the yield venue; zero disables the programme for
	// the term.
	YieldProvider crypto.Address
}

// Term is the top-level record: parameters are snapshotted at creation and
// only the phase, membership and timestamps move afterwards.
type Term struct {
	ID    uint64
	Owner crypto.Address
	State State

	TotalParticipants  uint64
	RegistrationPeriod int64
	ContributionAmount *big.Int
	ContributionPeriod int64
	CycleTime          int64
	YieldProvider      crypto.Address

	CreatedAt int64
	StartedAt int64
	EndedAt   int64

	// Members in join order; a member's slice index is their join position.
	Members []crypto.Address
}

func (t *Term) normalize() *Term {
	if t.ContributionAmount == nil {
		t.ContributionAmount = big.NewInt(0)
	}
	return t
}

// Clone returns a deep copy of the term record.
func (t *Term) Clone() *Term {
	if t == nil {
		return nil
	}
	clone := *t
	clone.ContributionAmount = new(big.Int).Set(t.ContributionAmount)
	clone.Members = append([]crypto.Address(nil), t.Members...)
	return &clone
}

// Filled reports whether every participant slot is taken.
func (t *Term) Filled() bool {
	return uint64(len(t.Members)) >= t.TotalParticipants
}

// CollateralOps is the slice of the collateral ledger the lifecycle drives.
type CollateralOps interface {
	OpenTerm(termID uint64) error
	Join(termID uint64, participant crypto.Address, position uint64, transferred *big.Int) error
	SetYieldOptIn(termID uint64, participant crypto.Address, optIn bool) error
	YieldOptIn(termID uint64, participant crypto.Address) (bool, error)
	IsUnderCollateralized(termID uint64, participant crypto.Address, remainingStable *big.Int) (bool, error)
	Activate(termID uint64) error
	Release(termID uint64) error
	EmptyAfterEnd(termID uint64, members []crypto.Address, recipient crypto.Address) (*big.Int, error)
}

// FundOps is the slice of the fund cycle engine the lifecycle drives.
type FundOps interface {
	Init(termID uint64, owner crypto.Address, members []crypto.Address, contribution *big.Int, contributionPeriod, cycleTime int64) error
	StartNewCycle(termID uint64, caller crypto.Address) (bool, error)
}

// YieldOps is the slice of the yield engine the lifecycle drives.
type YieldOps interface {
	EnrollTerm(termID uint64, provider crypto.Address) error
	DepositOnStart(termID uint64, member crypto.Address) (*big.Int, error)
	ReleaseOnEnd(termID uint64, members []crypto.Address) error
}
