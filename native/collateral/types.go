package collateral

import (
	"math/big"

	"ringfund/crypto"
)

// State tracks the per-term collateral phase.
type State uint8

const (
	// AcceptingCollateral is the registration window where deposits arrive.
	AcceptingCollateral State = iota
	// CycleOngoing locks deposits while the fund cycles run.
	CycleOngoing
	// ReleasingCollateral allows members to reclaim their deposits after the
	// term expired or closed.
	ReleasingCollateral
)

// Valid reports whether the state value is within the supported range.
func (s State) Valid() bool {
	switch s {
	case AcceptingCollateral, CycleOngoing, ReleasingCollateral:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	switch s {
	case AcceptingCollateral:
		return "accepting"
	case CycleOngoing:
		return "ongoing"
	case ReleasingCollateral:
		return "releasing"
	default:
		return "unknown"
	}
}

// TermCollateral is the per-term header record for the collateral ledger.
type TermCollateral struct {
	TermID uint64
	State  State
}

// Position maintains one participant's collateral inside a term. All amounts
// are RNG.
type Position struct {
	Participant crypto.Address
	// Deposited is the security deposit backing the participant's remaining
	// contribution obligation, including any portion forwarded to the yield
	// venue.
	Deposited *big.Int
	// InVault is the portion of Deposited currently held by the yield venue.
	InVault *big.Int
	// PaymentBank holds funds earmarked against this participant's own
	// defaults plus compensation received while they were beneficiary.
	PaymentBank *big.Int
	IsMember    bool
	Expelled    bool
	OptedInYG   bool
}

// Clone returns a deep copy so callers can mutate safely.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Deposited = cloneBig(p.Deposited)
	clone.InVault = cloneBig(p.InVault)
	clone.PaymentBank = cloneBig(p.PaymentBank)
	return &clone
}

func (p *Position) normalize() *Position {
	if p.Deposited == nil {
		p.Deposited = big.NewInt(0)
	}
	if p.InVault == nil {
		p.InVault = big.NewInt(0)
	}
	if p.PaymentBank == nil {
		p.PaymentBank = big.NewInt(0)
	}
	return p
}

// liquid is the portion of the deposit instantly debitable without a vault
// recall.
func (p *Position) liquid() *big.Int {
	return new(big.Int).Sub(p.Deposited, p.InVault)
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// TermParams is the slice of term configuration the collateral ledger needs.
type TermParams struct {
	TotalParticipants  uint64
	ContributionAmount *big.Int
}

// TermSource resolves term parameters by id.
type TermSource interface {
	Params(termID uint64) (TermParams, error)
}

// YieldRecall pulls previously forwarded collateral back from the yield venue
// so a liquidation can be honoured. Recall reports the assets actually
// delivered into the collateral vault, which may differ from the request in
// either direction. RedeemableValue quotes what the member's remaining vault
// holding would deliver right now, letting callers check solvency before
// moving anything.
type YieldRecall interface {
	Recall(termID uint64, member crypto.Address, amount *big.Int) (returned *big.Int, err error)
	RedeemableValue(termID uint64, member crypto.Address) (*big.Int, error)
}
