package fund

import (
	"errors"
	"math/big"
	"time"

	"ringfund/core/events"
	"ringfund/core/types"
	"ringfund/crypto"
	nativecommon "ringfund/native/common"
	"ringfund/native/collateral"
)

var (
	errNilState = errors.New("fund engine: state not configured")
	errNilFund  = errors.New("fund engine: fund not initialised")

	// ErrNotAParticipant is returned when the address holds no live slot in
	// the term, including after expulsion.
	ErrNotAParticipant = errors.New("fund engine: not a participant")
	// ErrAlreadyPaid is returned on a second contribution within one cycle.
	ErrAlreadyPaid = errors.New("fund engine: contribution already paid this cycle")
	// ErrBeneficiaryExempt is returned when the cycle's beneficiary attempts
	// to contribute to their own payout.
	ErrBeneficiaryExempt = errors.New("fund engine: beneficiary never pays their own cycle")
	// ErrExempted is returned when an exempted slot attempts to contribute.
	ErrExempted = errors.New("fund engine: participant exempted this cycle")
	// ErrStillTimeToContribute is returned when funding close is requested
	// before the contribution period elapsed.
	ErrStillTimeToContribute = errors.New("fund engine: contribution period still open")
	// ErrTooEarly is returned when a time-gated transition is requested
	// before its window.
	ErrTooEarly = errors.New("fund engine: too early")
	// ErrWrongState is returned when the operation is invalid in the fund's
	// current phase.
	ErrWrongState = errors.New("fund engine: operation invalid in current state")
	// ErrNotOwner is returned when an owner-gated call comes from elsewhere.
	ErrNotOwner = errors.New("fund engine: caller is not the term owner")
	// ErrNothingToWithdraw is returned when no payout or residue is claimable.
	ErrNothingToWithdraw = errors.New("fund engine: nothing to withdraw")
	// ErrPotFrozen is returned while an awarded pot stays locked behind an
	// under-collateralized position.
	ErrPotFrozen = errors.New("fund engine: payout frozen until position is solvent")
	// ErrInsufficientBalance is returned when the payer cannot cover the
	// contribution transfer.
	ErrInsufficientBalance = errors.New("fund engine: insufficient balance")
)

const moduleName = "fund"

type engineState interface {
	GetFund(termID uint64) (*Fund, error)
	PutFund(f *Fund) error
	GetParticipant(termID uint64, addr crypto.Address) (*Participant, error)
	PutParticipant(termID uint64, p *Participant) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, acc *types.Account) error
	RecordExpulsion(termID uint64, addr crypto.Address) error
}

// Engine drives the contribution and payout cycle: who paid, who defaulted,
// beneficiary rotation, expulsion and the end-of-term sweep.
type Engine struct {
	state      engineState
	collateral CollateralOps
	vaultAddr  crypto.Address
	dormancy   time.Duration

	emitter events.Emitter
	pauses  nativecommon.PauseView
	locks   *nativecommon.LockSet
	nowFn   func() int64
}

// NewEngine constructs a fund engine. vaultAddr is the module account holding
// all pooled RUSD; dormancy gates the post-closure residue sweep.
func NewEngine(vaultAddr crypto.Address, dormancy time.Duration) *Engine {
	return &Engine{
		vaultAddr: vaultAddr,
		dormancy:  dormancy,
		emitter:   events.NoopEmitter{},
		locks:     nativecommon.NewLockSet(),
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCollateral wires the collateral ledger consulted during funding close.
func (e *Engine) SetCollateral(c CollateralOps) { e.collateral = c }

// SetPauses wires the module pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter. Nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// VaultAddress returns the module account holding pooled contributions.
func (e *Engine) VaultAddress() crypto.Address { return e.vaultAddr }

// Init creates the cycle state for a freshly started term. The beneficiary
// order is the join order; cycle 1 opens immediately.
func (e *Engine) Init(termID uint64, owner crypto.Address, members []crypto.Address, contribution *big.Int, contributionPeriod, cycleTime int64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	now := e.nowFn()
	f := (&Fund{
		TermID:             termID,
		Owner:              owner,
		State:              AcceptingContributions,
		CurrentCycle:       1,
		CycleStartedAt:     now,
		ContributionAmount: new(big.Int).Set(contribution),
		ContributionPeriod: contributionPeriod,
		CycleTime:          cycleTime,
		Members:            append([]crypto.Address(nil), members...),
		Beneficiaries:      append([]crypto.Address(nil), members...),
	}).normalize()
	if err := e.state.PutFund(f); err != nil {
		return err
	}
	for _, member := range members {
		p := (&Participant{Address: member}).normalize()
		if err := e.state.PutParticipant(termID, p); err != nil {
			return err
		}
	}
	return nil
}

// Beneficiary returns the participant entitled to the current cycle's pool.
func (e *Engine) Beneficiary(termID uint64) (crypto.Address, error) {
	f, err := e.fund(termID)
	if err != nil {
		return crypto.Address{}, err
	}
	return e.beneficiaryOf(f)
}

func (e *Engine) beneficiaryOf(f *Fund) (crypto.Address, error) {
	idx := int(f.CurrentCycle) - 1
	if idx < 0 || idx >= len(f.Beneficiaries) {
		return crypto.Address{}, ErrWrongState
	}
	return f.Beneficiaries[idx], nil
}

// PayContribution records the caller's own contribution for the open cycle.
func (e *Engine) PayContribution(termID uint64, payer crypto.Address) error {
	return e.payContribution(termID, payer, payer)
}

// PayContributionOnBehalfOf lets any funded wallet cover another
// participant's contribution. The slot credited is the participant's.
func (e *Engine) PayContributionOnBehalfOf(termID uint64, payer, participant crypto.Address) error {
	return e.payContribution(termID, payer, participant)
}

func (e *Engine) payContribution(termID uint64, payer, participant crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	// Keyed by the slot credited so a payer covering several participants in
	// one block is still fine.
	release, err := e.locks.Acquire(termID, nativecommon.OpContribute, string(participant.Bytes()))
	if err != nil {
		return err
	}
	defer release()

	f, err := e.fund(termID)
	if err != nil {
		return err
	}
	if f.State != AcceptingContributions {
		return ErrWrongState
	}
	p, err := e.participant(termID, participant)
	if err != nil {
		return err
	}
	if p.Expelled {
		return ErrNotAParticipant
	}
	beneficiary, err := e.beneficiaryOf(f)
	if err != nil {
		return err
	}
	if participant.Equal(beneficiary) {
		return ErrBeneficiaryExempt
	}
	if p.ExemptThisCycle {
		return ErrExempted
	}
	if p.PaidThisCycle {
		return ErrAlreadyPaid
	}
	if err := e.transferRUSD(payer, e.vaultAddr, f.ContributionAmount); err != nil {
		return err
	}
	p.PaidThisCycle = true
	if err := e.state.PutParticipant(termID, p); err != nil {
		return err
	}
	f.StablePool = new(big.Int).Add(f.StablePool, f.ContributionAmount)
	f.OutstandingStable = new(big.Int).Add(f.OutstandingStable, f.ContributionAmount)
	if err := e.state.PutFund(f); err != nil {
		return err
	}
	e.emit(newContributionEvent(termID, f.CurrentCycle, payer, participant, f.ContributionAmount))
	return nil
}

// ToggleAutoPay flips the participant's standing instruction to cover missed
// contributions from their collateral at funding close.
func (e *Engine) ToggleAutoPay(termID uint64, participant crypto.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	p, err := e.participant(termID, participant)
	if err != nil {
		return false, err
	}
	if p.Expelled {
		return false, ErrNotAParticipant
	}
	p.AutoPay = !p.AutoPay
	if err := e.state.PutParticipant(termID, p); err != nil {
		return false, err
	}
	return p.AutoPay, nil
}

// CloseFundingPeriod settles the open cycle: autopay and defaults are
// resolved against collateral, insolvent defaulters are expelled, the
// defaulter-delay reordering is applied to the remaining suffix and the pool
// is awarded to the cycle's beneficiary.
func (e *Engine) CloseFundingPeriod(termID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	release, err := e.locks.Acquire(termID, nativecommon.OpCycleClose, "")
	if err != nil {
		return err
	}
	defer release()

	f, err := e.fund(termID)
	if err != nil {
		return err
	}
	if f.State != AcceptingContributions {
		return ErrWrongState
	}
	now := e.nowFn()
	if now < f.CycleStartedAt+f.ContributionPeriod {
		return ErrStillTimeToContribute
	}
	beneficiary, err := e.beneficiaryOf(f)
	if err != nil {
		return err
	}

	defaultedThisCycle := make(map[string]bool)
	for _, member := range append([]crypto.Address(nil), f.Beneficiaries...) {
		if member.Equal(beneficiary) {
			continue
		}
		p, err := e.participant(termID, member)
		if err != nil {
			return err
		}
		if p.Expelled || p.ExemptThisCycle || p.PaidThisCycle {
			continue
		}
		if p.AutoPay && e.collateral != nil {
			// Best-effort: a failed autopay silently falls through to the
			// defaulter path.
			if err := e.collateral.Liquidate(termID, member, beneficiary, f.ContributionAmount); err == nil {
				p.PaidThisCycle = true
				if err := e.state.PutParticipant(termID, p); err != nil {
					return err
				}
				continue
			}
		}
		p.DefaultedThisCycle = true
		defaultedThisCycle[string(member.Bytes())] = true
		e.emit(newDefaultedEvent(termID, f.CurrentCycle, member))
		if e.collateral == nil {
			if err := e.state.PutParticipant(termID, p); err != nil {
				return err
			}
			continue
		}
		liqErr := e.collateral.Liquidate(termID, member, beneficiary, f.ContributionAmount)
		switch {
		case errors.Is(liqErr, collateral.ErrInsufficientCollateral):
			if _, err := e.collateral.SeizeAndExpel(termID, member, beneficiary, f.ContributionAmount); err != nil {
				return err
			}
			if err := e.expel(f, p); err != nil {
				return err
			}
		case liqErr != nil:
			return liqErr
		default:
			under, err := e.collateral.IsUnderCollateralized(termID, member, e.remainingStable(f))
			if err != nil {
				return err
			}
			if under {
				if _, err := e.collateral.SeizeAndExpel(termID, member, crypto.Address{}, nil); err != nil {
					return err
				}
				if err := e.expel(f, p); err != nil {
					return err
				}
			}
		}
		if err := e.state.PutParticipant(termID, p); err != nil {
			return err
		}
	}

	// Delay this cycle's defaulters behind the next eligible beneficiary.
	// The awarded prefix, including the slot being paid now, never moves.
	f.Beneficiaries = reorderSuffix(f.Beneficiaries, int(f.CurrentCycle), func(addr crypto.Address) bool {
		return defaultedThisCycle[string(addr.Bytes())]
	})

	ben, err := e.participant(termID, beneficiary)
	if err != nil {
		return err
	}
	ben.AwardedPool = new(big.Int).Add(ben.AwardedPool, f.StablePool)
	ben.WasBeneficiary = true
	if e.collateral != nil && ben.AwardedPool.Sign() > 0 {
		under, err := e.collateral.IsUnderCollateralized(termID, beneficiary, e.remainingStable(f))
		if err != nil {
			return err
		}
		ben.FrozenPot = under
	}
	if err := e.state.PutParticipant(termID, ben); err != nil {
		return err
	}
	awarded := new(big.Int).Set(f.StablePool)
	f.StablePool = big.NewInt(0)
	f.State = CycleOngoing
	if err := e.state.PutFund(f); err != nil {
		return err
	}
	e.emit(newBeneficiaryEvent(termID, f.CurrentCycle, beneficiary, awarded, ben.FrozenPot))
	return nil
}

// StartNewCycle advances the fund to the next cycle, or closes it once every
// remaining participant has been beneficiary. Returns true when the fund
// closed. Owner-gated and time-gated by the term's cycle time.
func (e *Engine) StartNewCycle(termID uint64, caller crypto.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return false, err
	}
	f, err := e.fund(termID)
	if err != nil {
		return false, err
	}
	if !caller.Equal(f.Owner) {
		return false, ErrNotOwner
	}
	if f.State != CycleOngoing {
		return false, ErrWrongState
	}
	now := e.nowFn()
	if now < f.CycleStartedAt+f.CycleTime {
		return false, ErrTooEarly
	}
	if f.CurrentCycle >= uint64(len(f.Beneficiaries)) {
		f.State = FundClosed
		f.ClosedAt = now
		if err := e.state.PutFund(f); err != nil {
			return false, err
		}
		e.emit(newFundClosedEvent(termID, f.CurrentCycle))
		return true, nil
	}
	f.CurrentCycle++
	f.CycleStartedAt = now
	remaining := e.remainingCount(termID, f)
	for _, member := range f.Members {
		p, err := e.participant(termID, member)
		if err != nil {
			return false, err
		}
		p.PaidThisCycle = false
		p.DefaultedThisCycle = false
		p.ExemptThisCycle = p.Expelled || remaining < 2
		if err := e.state.PutParticipant(termID, p); err != nil {
			return false, err
		}
	}
	if err := e.state.PutFund(f); err != nil {
		return false, err
	}
	e.emit(newCycleStartedEvent(termID, f.CurrentCycle))
	return false, nil
}

// WithdrawFund pays out the caller's awarded pool to their own wallet.
func (e *Engine) WithdrawFund(termID uint64, participant crypto.Address) (*big.Int, error) {
	return e.WithdrawFundTo(termID, participant, participant)
}

// WithdrawFundTo pays out the caller's awarded pool to the given wallet. Only
// contributed stable leaves here; compensation for liquidated defaulters is
// RNG sitting in the beneficiary's collateral payment bank, collected through
// a collateral withdrawal once the ledger releases.
func (e *Engine) WithdrawFundTo(termID uint64, participant, recipient crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	release, err := e.locks.Acquire(termID, nativecommon.OpWithdrawFund, string(participant.Bytes()))
	if err != nil {
		return nil, err
	}
	defer release()

	f, err := e.fund(termID)
	if err != nil {
		return nil, err
	}
	p, err := e.participant(termID, participant)
	if err != nil {
		return nil, err
	}
	if p.AwardedPool.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}
	if p.FrozenPot {
		if e.collateral == nil {
			return nil, ErrPotFrozen
		}
		under, err := e.collateral.IsUnderCollateralized(termID, participant, e.remainingStable(f))
		if err != nil {
			return nil, err
		}
		if under {
			return nil, ErrPotFrozen
		}
		p.FrozenPot = false
	}
	amount := new(big.Int).Set(p.AwardedPool)
	if err := e.transferRUSD(e.vaultAddr, recipient, amount); err != nil {
		return nil, err
	}
	p.AwardedPool = big.NewInt(0)
	if err := e.state.PutParticipant(termID, p); err != nil {
		return nil, err
	}
	f.OutstandingStable = new(big.Int).Sub(f.OutstandingStable, amount)
	if f.OutstandingStable.Sign() < 0 {
		f.OutstandingStable = big.NewInt(0)
	}
	if err := e.state.PutFund(f); err != nil {
		return nil, err
	}
	e.emit(newFundWithdrawnEvent(termID, participant, recipient, amount))
	return amount, nil
}

// EmptyFundAfterEnd sweeps whatever RUSD the term still holds to the owner.
// Valid only once the fund closed and the dormancy window elapsed.
func (e *Engine) EmptyFundAfterEnd(termID uint64, caller crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	f, err := e.fund(termID)
	if err != nil {
		return nil, err
	}
	if !caller.Equal(f.Owner) {
		return nil, ErrNotOwner
	}
	if f.State != FundClosed {
		return nil, ErrWrongState
	}
	now := e.nowFn()
	if now < f.ClosedAt+int64(e.dormancy/time.Second) {
		return nil, ErrTooEarly
	}
	residual := new(big.Int).Set(f.OutstandingStable)
	if residual.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}
	if err := e.transferRUSD(e.vaultAddr, caller, residual); err != nil {
		return nil, err
	}
	for _, member := range f.Members {
		p, err := e.participant(termID, member)
		if err != nil {
			return nil, err
		}
		if p.AwardedPool.Sign() > 0 {
			p.AwardedPool = big.NewInt(0)
			p.FrozenPot = false
			if err := e.state.PutParticipant(termID, p); err != nil {
				return nil, err
			}
		}
	}
	f.StablePool = big.NewInt(0)
	f.OutstandingStable = big.NewInt(0)
	if err := e.state.PutFund(f); err != nil {
		return nil, err
	}
	e.emit(newFundSweptEvent(termID, caller, residual))
	return residual, nil
}

// IsExempted reports whether the participant is excused from contributing
// this cycle (expelled, or their slot was skipped for lack of counterparts).
func (e *Engine) IsExempted(termID uint64, participant crypto.Address) (bool, error) {
	p, err := e.participant(termID, participant)
	if err != nil {
		return false, err
	}
	return p.Expelled || p.ExemptThisCycle, nil
}

// WasExpelled reports whether the participant was ever expelled from the
// term. The answer persists after closure.
func (e *Engine) WasExpelled(termID uint64, participant crypto.Address) (bool, error) {
	p, err := e.participant(termID, participant)
	if err != nil {
		return false, err
	}
	return p.Expelled, nil
}

// Info returns a copy of the fund header.
func (e *Engine) Info(termID uint64) (*Fund, error) {
	f, err := e.fund(termID)
	if err != nil {
		return nil, err
	}
	return f.Clone(), nil
}

// ParticipantOf returns a copy of the participant record.
func (e *Engine) ParticipantOf(termID uint64, addr crypto.Address) (*Participant, error) {
	p, err := e.participant(termID, addr)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// ClosedAt returns the unix time the fund closed, zero while running.
func (e *Engine) ClosedAt(termID uint64) (int64, error) {
	f, err := e.fund(termID)
	if err != nil {
		return 0, err
	}
	return f.ClosedAt, nil
}

func (e *Engine) expel(f *Fund, p *Participant) error {
	p.Expelled = true
	p.ExemptThisCycle = true
	if err := e.state.RecordExpulsion(f.TermID, p.Address); err != nil {
		return err
	}
	// An unclaimed pot from an earlier beneficiary turn is forfeited into
	// the pool being awarded this cycle.
	if p.AwardedPool.Sign() > 0 {
		f.StablePool = new(big.Int).Add(f.StablePool, p.AwardedPool)
		p.AwardedPool = big.NewInt(0)
		p.FrozenPot = false
	}
	f.Beneficiaries = removeFromSuffix(f.Beneficiaries, int(f.CurrentCycle), p.Address)
	e.emit(newExpelledEvent(f.TermID, f.CurrentCycle, p.Address))
	return nil
}

// remainingStable is the stable obligation from the open cycle to term end,
// used as the solvency threshold input.
func (e *Engine) remainingStable(f *Fund) *big.Int {
	total := uint64(len(f.Beneficiaries))
	if f.CurrentCycle > total {
		return big.NewInt(0)
	}
	cycles := total - f.CurrentCycle + 1
	return new(big.Int).Mul(f.ContributionAmount, new(big.Int).SetUint64(cycles))
}

func (e *Engine) remainingCount(termID uint64, f *Fund) int {
	count := 0
	for _, member := range f.Members {
		p, err := e.participant(termID, member)
		if err != nil {
			continue
		}
		if !p.Expelled {
			count++
		}
	}
	return count
}

func (e *Engine) fund(termID uint64) (*Fund, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	f, err := e.state.GetFund(termID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errNilFund
	}
	return f.normalize(), nil
}

func (e *Engine) participant(termID uint64, addr crypto.Address) (*Participant, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	p, err := e.state.GetParticipant(termID, addr)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotAParticipant
	}
	return p.normalize(), nil
}

func (e *Engine) transferRUSD(from, to crypto.Address, amount *big.Int) error {
	fromAcc, err := e.state.GetAccount(from)
	if err != nil {
		return err
	}
	fromAcc = fromAcc.Normalize()
	if fromAcc.BalanceRUSD.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toAcc, err := e.state.GetAccount(to)
	if err != nil {
		return err
	}
	toAcc = toAcc.Normalize()
	fromAcc.BalanceRUSD = new(big.Int).Sub(fromAcc.BalanceRUSD, amount)
	toAcc.BalanceRUSD = new(big.Int).Add(toAcc.BalanceRUSD, amount)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}
