package yield

import (
	"math/big"

	"ringfund/crypto"
)

// TermYield is the per-term header for the yield programme: which provider
// holds the forwarded collateral and the running share/principal totals.
type TermYield struct {
	TermID   uint64
	Provider crypto.Address
	// FractionBps is the share of each opted-in deposit forwarded to the
	// provider, snapshotted when the term enrols.
	FractionBps uint64
	StartedAt   int64
	Active      bool
	Released    bool

	// TotalPrincipal is the RNG forwarded and not yet recalled or released.
	TotalPrincipal *big.Int
	// TotalShares is the sum of provider shares held across positions.
	TotalShares *big.Int
	// TotalClaimed is the realised surplus already paid out to members.
	TotalClaimed *big.Int
}

func (t *TermYield) normalize() *TermYield {
	if t.TotalPrincipal == nil {
		t.TotalPrincipal = big.NewInt(0)
	}
	if t.TotalShares == nil {
		t.TotalShares = big.NewInt(0)
	}
	if t.TotalClaimed == nil {
		t.TotalClaimed = big.NewInt(0)
	}
	return t
}

// Clone returns a deep copy of the term header.
func (t *TermYield) Clone() *TermYield {
	if t == nil {
		return nil
	}
	clone := *t
	clone.TotalPrincipal = cloneBig(t.TotalPrincipal)
	clone.TotalShares = cloneBig(t.TotalShares)
	clone.TotalClaimed = cloneBig(t.TotalClaimed)
	return &clone
}

// Position tracks one member's stake in the term's yield programme. Principal
// is the forwarded RNG; Shares are the provider shares it bought. Surplus is
// whatever the shares redeem for above the principal.
type Position struct {
	Member    crypto.Address
	Principal *big.Int
	Shares    *big.Int
	// Claimed accumulates surplus already paid out to the member.
	Claimed *big.Int
}

func (p *Position) normalize() *Position {
	if p.Principal == nil {
		p.Principal = big.NewInt(0)
	}
	if p.Shares == nil {
		p.Shares = big.NewInt(0)
	}
	if p.Claimed == nil {
		p.Claimed = big.NewInt(0)
	}
	return p
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Principal = cloneBig(p.Principal)
	clone.Shares = cloneBig(p.Shares)
	clone.Claimed = cloneBig(p.Claimed)
	return &clone
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// CollateralOps is the slice of the collateral ledger the yield engine drives
// when moving deposits to and from the provider.
type CollateralOps interface {
	ForwardToYield(termID uint64, participant, provider crypto.Address, fractionBps uint64) (*big.Int, error)
	ReturnFromYield(termID uint64, participant, provider crypto.Address, returned *big.Int) error
	VaultAddress() crypto.Address
}
