package term

import (
	"errors"
	"math/big"
	"time"

	"ringfund/core/events"
	"ringfund/crypto"
	nativecommon "ringfund/native/common"
	"ringfund/native/collateral"
)

var (
	errNilState = errors.New("term engine: state not configured")

	// ErrInvalidParameters is returned when a creation parameter is zero or
	// degenerate.
	ErrInvalidParameters = errors.New("term engine: invalid parameters")
	// ErrNotFound is returned for an unknown term id.
	ErrNotFound = errors.New("term engine: term not found")
	// ErrTermFull is returned when a join arrives after every slot is taken.
	ErrTermFull = errors.New("term engine: term full")
	// ErrNotFull is returned when a start is requested with slots remaining.
	ErrNotFull = errors.New("term engine: term not full")
	// ErrPriceDropped is returned when the start-time solvency re-check finds
	// a member under-collateralized at the current price.
	ErrPriceDropped = errors.New("term engine: collateral value dropped below requirement")
	// ErrNotExpirable is returned when expiry is requested before the
	// registration period lapsed or after the term filled.
	ErrNotExpirable = errors.New("term engine: term not expirable")
	// ErrTooLateToChangeOptIn is returned once the term started and the yield
	// split is locked.
	ErrTooLateToChangeOptIn = errors.New("term engine: too late to change yield opt-in")
	// ErrWrongState is returned when the operation is invalid in the term's
	// current phase.
	ErrWrongState = errors.New("term engine: operation invalid in current state")
	// ErrNotOwner is returned when an owner-gated call comes from elsewhere.
	ErrNotOwner = errors.New("term engine: caller is not the term owner")
	// ErrTooEarly is returned when the dormancy window has not elapsed.
	ErrTooEarly = errors.New("term engine: too early")
)

const moduleName = "term"

type engineState interface {
	NextTermID() (uint64, error)
	GetTerm(id uint64) (*Term, error)
	PutTerm(t *Term) error
	AppendTermID(id uint64) error
	AddMembership(addr crypto.Address, termID uint64) error
}

// Engine is the top-level lifecycle: it owns term records and orchestrates the
// collateral ledger, the fund cycle engine and the yield programme through
// their operation contracts.
type Engine struct {
	state      engineState
	collateral CollateralOps
	fund       FundOps
	yield      YieldOps
	dormancy   time.Duration

	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// NewEngine constructs a term engine. dormancy gates the post-closure
// collateral sweep.
func NewEngine(dormancy time.Duration) *Engine {
	return &Engine{
		dormancy: dormancy,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCollateral wires the collateral ledger.
func (e *Engine) SetCollateral(c CollateralOps) { e.collateral = c }

// SetFund wires the fund cycle engine.
func (e *Engine) SetFund(f FundOps) { e.fund = f }

// SetYield wires the yield engine. Nil disables the programme entirely.
func (e *Engine) SetYield(y YieldOps) { e.yield = y }

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

// CreateTerm validates the parameters, allocates the next term id and opens
// every per-term ledger in the initializing phase.
func (e *Engine) CreateTerm(owner crypto.Address, params Params) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if owner.IsZero() ||
		params.TotalParticipants < 2 ||
		params.RegistrationPeriod <= 0 ||
		params.ContributionAmount == nil || params.ContributionAmount.Sign() <= 0 ||
		params.ContributionPeriod <= 0 ||
		params.CycleTime <= 0 {
		return 0, ErrInvalidParameters
	}
	if params.CycleTime < params.ContributionPeriod {
		return 0, ErrInvalidParameters
	}
	id, err := e.state.NextTermID()
	if err != nil {
		return 0, err
	}
	t := (&Term{
		ID:                 id,
		Owner:              owner,
		State:              InitializingTerm,
		TotalParticipants:  params.TotalParticipants,
		RegistrationPeriod: params.RegistrationPeriod,
		ContributionAmount: new(big.Int).Set(params.ContributionAmount),
		ContributionPeriod: params.ContributionPeriod,
		CycleTime:          params.CycleTime,
		YieldProvider:      params.YieldProvider,
		CreatedAt:          e.nowFn(),
	}).normalize()
	if err := e.state.PutTerm(t); err != nil {
		return 0, err
	}
	if err := e.state.AppendTermID(id); err != nil {
		return 0, err
	}
	if e.collateral != nil {
		if err := e.collateral.OpenTerm(id); err != nil {
			return 0, err
		}
	}
	if e.yield != nil && !params.YieldProvider.IsZero() {
		if err := e.yield.EnrollTerm(id, params.YieldProvider); err != nil {
			return 0, err
		}
	}
	e.emit(newCreatedEvent(id, owner, params.TotalParticipants))
	return id, nil
}

// JoinTerm registers a participant in the next free position. The transferred
// RNG must meet the position's minimum deposit; the collateral ledger enforces
// that and moves the funds.
func (e *Engine) JoinTerm(termID uint64, participant crypto.Address, transferred *big.Int, optInYield bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	t, err := e.term(termID)
	if err != nil {
		return err
	}
	if t.State != InitializingTerm {
		return ErrWrongState
	}
	if t.Filled() {
		return ErrTermFull
	}
	position := uint64(len(t.Members))
	if e.collateral == nil {
		return errNilState
	}
	if err := e.collateral.Join(termID, participant, position, transferred); err != nil {
		return err
	}
	if optInYield && !t.YieldProvider.IsZero() {
		if err := e.collateral.SetYieldOptIn(termID, participant, true); err != nil {
			return err
		}
	}
	t.Members = append(t.Members, participant)
	if err := e.state.PutTerm(t); err != nil {
		return err
	}
	if err := e.state.AddMembership(participant, termID); err != nil {
		return err
	}
	e.emit(newJoinedEvent(termID, participant, position))
	if t.Filled() {
		e.emit(newFilledEvent(termID))
	}
	return nil
}

// ToggleYieldOptIn flips the participant's yield preference. Only valid before
// the term starts; afterwards the split is locked in.
func (e *Engine) ToggleYieldOptIn(termID uint64, participant crypto.Address, optIn bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	t, err := e.term(termID)
	if err != nil {
		return err
	}
	if t.State != InitializingTerm {
		return ErrTooLateToChangeOptIn
	}
	if e.collateral == nil {
		return errNilState
	}
	return e.collateral.SetYieldOptIn(termID, participant, optIn)
}

// StartTerm activates a filled term: every member's collateral is re-checked
// against the current price, the collateral ledger locks, cycle 1 opens and
// opted-in collateral is forwarded to the yield venue.
func (e *Engine) StartTerm(termID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	t, err := e.term(termID)
	if err != nil {
		return err
	}
	if t.State != InitializingTerm {
		return ErrWrongState
	}
	if !t.Filled() {
		return ErrNotFull
	}
	if e.collateral == nil || e.fund == nil {
		return errNilState
	}
	// Price may have moved since the deposits arrived; nobody starts the
	// term insolvent.
	for position, member := range t.Members {
		remaining := new(big.Int).Mul(t.ContributionAmount,
			new(big.Int).SetUint64(t.TotalParticipants-uint64(position)))
		under, err := e.collateral.IsUnderCollateralized(termID, member, remaining)
		if err != nil {
			return err
		}
		if under {
			return ErrPriceDropped
		}
	}
	if err := e.collateral.Activate(termID); err != nil {
		return err
	}
	if err := e.fund.Init(termID, t.Owner, t.Members, t.ContributionAmount, t.ContributionPeriod, t.CycleTime); err != nil {
		return err
	}
	if e.yield != nil && !t.YieldProvider.IsZero() {
		for _, member := range t.Members {
			optedIn, err := e.collateral.YieldOptIn(termID, member)
			if err != nil {
				return err
			}
			if !optedIn {
				continue
			}
			if _, err := e.yield.DepositOnStart(termID, member); err != nil {
				return err
			}
		}
	}
	t.State = ActiveTerm
	t.StartedAt = e.nowFn()
	if err := e.state.PutTerm(t); err != nil {
		return err
	}
	e.emit(newStartedEvent(termID))
	return nil
}

// ExpireTerm retires a term whose registration lapsed before filling and
// releases the posted collateral for withdrawal.
func (e *Engine) ExpireTerm(termID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	t, err := e.term(termID)
	if err != nil {
		return err
	}
	if t.State != InitializingTerm {
		return ErrWrongState
	}
	now := e.nowFn()
	if t.Filled() || now < t.CreatedAt+t.RegistrationPeriod {
		return ErrNotExpirable
	}
	if e.collateral != nil {
		if err := e.collateral.Release(termID); err != nil {
			return err
		}
	}
	t.State = ExpiredTerm
	t.EndedAt = now
	if err := e.state.PutTerm(t); err != nil {
		return err
	}
	e.emit(newExpiredEvent(termID))
	return nil
}

// StartNewCycle advances the fund and, once the last cycle completes, closes
// the term: collateral flips to releasing and the yield programme unwinds.
// Returns true when the term closed.
func (e *Engine) StartNewCycle(termID uint64, caller crypto.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return false, err
	}
	t, err := e.term(termID)
	if err != nil {
		return false, err
	}
	if t.State != ActiveTerm {
		return false, ErrWrongState
	}
	if e.fund == nil {
		return false, errNilState
	}
	closed, err := e.fund.StartNewCycle(termID, caller)
	if err != nil {
		return false, err
	}
	if !closed {
		return false, nil
	}
	if e.yield != nil && !t.YieldProvider.IsZero() {
		if err := e.yield.ReleaseOnEnd(termID, t.Members); err != nil {
			return false, err
		}
	}
	if e.collateral != nil {
		if err := e.collateral.Release(termID); err != nil {
			return false, err
		}
	}
	t.State = ClosedTerm
	t.EndedAt = e.nowFn()
	if err := e.state.PutTerm(t); err != nil {
		return false, err
	}
	e.emit(newClosedEvent(termID))
	return true, nil
}

// EmptyCollateralAfterEnd sweeps residual RNG left unclaimed by members after
// the term ended and the dormancy window elapsed. Owner-only; the volatile
// mirror of the fund's residue sweep.
func (e *Engine) EmptyCollateralAfterEnd(termID uint64, caller crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	t, err := e.term(termID)
	if err != nil {
		return nil, err
	}
	if !caller.Equal(t.Owner) {
		return nil, ErrNotOwner
	}
	if !t.State.Terminal() {
		return nil, ErrWrongState
	}
	now := e.nowFn()
	if now < t.EndedAt+int64(e.dormancy/time.Second) {
		return nil, ErrTooEarly
	}
	if e.collateral == nil {
		return nil, errNilState
	}
	residual, err := e.collateral.EmptyAfterEnd(termID, t.Members, caller)
	if err != nil {
		return nil, err
	}
	e.emit(newCollateralSweptEvent(termID, caller, residual))
	return residual, nil
}

// Params implements the collateral ledger's term parameter lookup.
func (e *Engine) Params(termID uint64) (collateral.TermParams, error) {
	t, err := e.term(termID)
	if err != nil {
		return collateral.TermParams{}, err
	}
	return collateral.TermParams{
		TotalParticipants:  t.TotalParticipants,
		ContributionAmount: new(big.Int).Set(t.ContributionAmount),
	}, nil
}

// Info returns a copy of the term record.
func (e *Engine) Info(termID uint64) (*Term, error) {
	t, err := e.term(termID)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// StateOf returns the term's phase.
func (e *Engine) StateOf(termID uint64) (State, error) {
	t, err := e.term(termID)
	if err != nil {
		return 0, err
	}
	return t.State, nil
}

func (e *Engine) term(termID uint64) (*Term, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	t, err := e.state.GetTerm(termID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t.normalize(), nil
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}
