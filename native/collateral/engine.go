package collateral

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"ringfund/core/events"
	"ringfund/core/types"
	"ringfund/crypto"
	nativecommon "ringfund/native/common"
	"ringfund/native/oracle"
)

var (
	errNilState = errors.New("collateral engine: state not configured")
	errNilTerm  = errors.New("collateral engine: term ledger not initialised")

	// ErrIndexOutOfBounds is returned when a join position is outside the
	// term's participant range.
	ErrIndexOutOfBounds = errors.New("collateral engine: position out of bounds")
	// ErrInsufficientPayment is returned when the transferred value does not
	// cover the minimum deposit for the join position.
	ErrInsufficientPayment = errors.New("collateral engine: transferred value below minimum deposit")
	// ErrInsufficientCollateral is returned when a liquidation cannot be
	// covered in full; the caller expels instead of under-debiting.
	ErrInsufficientCollateral = errors.New("collateral engine: deposit cannot cover liquidation")
	// ErrNothingToWithdraw is returned when a release is requested against a
	// zero balance.
	ErrNothingToWithdraw = errors.New("collateral engine: nothing to withdraw")
	// ErrNotMember is returned when the address holds no live position.
	ErrNotMember = errors.New("collateral engine: not a member")
	// ErrAlreadyJoined is returned when a member attempts a second deposit.
	ErrAlreadyJoined = errors.New("collateral engine: already joined")
	// ErrWrongState is returned when the operation is invalid in the ledger's
	// current phase.
	ErrWrongState = errors.New("collateral engine: operation invalid in current state")
	// ErrPriceUnavailable wraps oracle failures; it is never defaulted away.
	ErrPriceUnavailable = errors.New("collateral engine: price unavailable")
	// ErrInsufficientBalance is returned when the payer's token balance does
	// not cover the transfer.
	ErrInsufficientBalance = errors.New("collateral engine: insufficient balance")
)

const moduleName = "collateral"

type engineState interface {
	GetTermCollateral(termID uint64) (*TermCollateral, error)
	PutTermCollateral(tc *TermCollateral) error
	GetPosition(termID uint64, addr crypto.Address) (*Position, error)
	PutPosition(termID uint64, pos *Position) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, acc *types.Account) error
}

// Engine implements the collateral ledger: minimum deposits, solvency checks,
// default liquidation and end-of-term release.
type Engine struct {
	state     engineState
	terms     TermSource
	oracle    oracle.PriceOracle
	recall    YieldRecall
	vaultAddr crypto.Address

	safetyMarginBps      uint64
	solvencyThresholdBps uint64
	maxQuoteAge          time.Duration

	emitter events.Emitter
	pauses  nativecommon.PauseView
	locks   *nativecommon.LockSet
	nowFn   func() int64
}

// NewEngine constructs a collateral engine. vaultAddr is the module account
// holding all posted RNG.
func NewEngine(vaultAddr crypto.Address, safetyMarginBps, solvencyThresholdBps uint64) *Engine {
	return &Engine{
		vaultAddr:            vaultAddr,
		safetyMarginBps:      safetyMarginBps,
		solvencyThresholdBps: solvencyThresholdBps,
		emitter:              events.NoopEmitter{},
		locks:                nativecommon.NewLockSet(),
		nowFn:                func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTermSource wires the term parameter lookup.
func (e *Engine) SetTermSource(src TermSource) { e.terms = src }

// SetOracle wires the RNG/RUSD price feed.
func (e *Engine) SetOracle(o oracle.PriceOracle) { e.oracle = o }

// SetYieldRecall wires the hook used to pull vault-forwarded collateral back
// during liquidations. A nil recall means all collateral is treated as liquid.
func (e *Engine) SetYieldRecall(r YieldRecall) { e.recall = r }

// SetMaxQuoteAge configures the oracle freshness window.
func (e *Engine) SetMaxQuoteAge(d time.Duration) { e.maxQuoteAge = d }

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

// VaultAddress returns the module account holding posted collateral.
func (e *Engine) VaultAddress() crypto.Address { return e.vaultAddr }

// OpenTerm initialises the collateral ledger for a freshly created term.
func (e *Engine) OpenTerm(termID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.PutTermCollateral(&TermCollateral{TermID: termID, State: AcceptingCollateral})
}

// MinDeposit computes the minimum RNG a participant joining at the given
// position must post: the remaining contribution obligation from that slot to
// the end of the term, converted at the current price and scaled by the
// safety margin. Later positions owe less, so the requirement is monotonically
// non-increasing.
func (e *Engine) MinDeposit(termID uint64, position uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	params, err := e.termParams(termID)
	if err != nil {
		return nil, err
	}
	if position >= params.TotalParticipants {
		return nil, ErrIndexOutOfBounds
	}
	rate, err := e.currentRate()
	if err != nil {
		return nil, err
	}
	remaining := new(big.Int).SetUint64(params.TotalParticipants - position)
	stable := new(big.Int).Mul(params.ContributionAmount, remaining)
	return stableToVolatileCeil(stable, rate, e.safetyMarginBps), nil
}

// Join records a deposit for a participant entering at the given position.
// The transferred RNG moves from the participant account into the module
// vault. Guarded against logical reentrancy per (term, participant).
func (e *Engine) Join(termID uint64, participant crypto.Address, position uint64, transferred *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	release, err := e.locks.Acquire(termID, nativecommon.OpJoinCollateral, string(participant.Bytes()))
	if err != nil {
		return err
	}
	defer release()
	if transferred == nil || transferred.Sign() <= 0 {
		return ErrInsufficientPayment
	}
	tc, err := e.termCollateral(termID)
	if err != nil {
		return err
	}
	if tc.State != AcceptingCollateral {
		return ErrWrongState
	}
	existing, err := e.state.GetPosition(termID, participant)
	if err != nil {
		return err
	}
	if existing != nil && existing.IsMember {
		return ErrAlreadyJoined
	}
	min, err := e.MinDeposit(termID, position)
	if err != nil {
		return err
	}
	if transferred.Cmp(min) < 0 {
		return ErrInsufficientPayment
	}
	if err := e.transferRNG(participant, e.vaultAddr, transferred); err != nil {
		return err
	}
	pos := (&Position{
		Participant: participant,
		Deposited:   new(big.Int).Set(transferred),
		IsMember:    true,
	}).normalize()
	if err := e.state.PutPosition(termID, pos); err != nil {
		return err
	}
	e.emit(newDepositedEvent(termID, participant, transferred))
	return nil
}

// SetYieldOptIn flips the participant's yield preference. Valid only while the
// ledger still accepts collateral; once the term starts the split is locked.
func (e *Engine) SetYieldOptIn(termID uint64, participant crypto.Address, optIn bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	tc, err := e.termCollateral(termID)
	if err != nil {
		return err
	}
	if tc.State != AcceptingCollateral {
		return ErrWrongState
	}
	pos, err := e.memberPosition(termID, participant)
	if err != nil {
		return err
	}
	pos.OptedInYG = optIn
	return e.state.PutPosition(termID, pos)
}

// IsUnderCollateralized reports whether the member's deposit value at the
// current price no longer covers the remaining stable obligation scaled by
// the solvency threshold.
func (e *Engine) IsUnderCollateralized(termID uint64, participant crypto.Address, remainingStable *big.Int) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	pos, err := e.memberPosition(termID, participant)
	if err != nil {
		return false, err
	}
	rate, err := e.currentRate()
	if err != nil {
		return false, err
	}
	if remainingStable == nil || remainingStable.Sign() <= 0 {
		return false, nil
	}
	value := volatileValueFloor(pos.Deposited, rate)
	threshold := new(big.Int).Mul(remainingStable, new(big.Int).SetUint64(e.solvencyThresholdBps))
	threshold.Quo(threshold, basisPoints)
	return value.Cmp(threshold) < 0, nil
}

// Liquidate debits the stable-equivalent RNG from the defaulter and earmarks
// it in the beneficiary's payment bank. The debit order is payment bank, then
// the liquid deposit, then a vault recall. The call fails without touching
// state when the full amount cannot be covered; partial liquidation is never
// observable.
func (e *Engine) Liquidate(termID uint64, defaulter, beneficiary crypto.Address, stableOwed *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if stableOwed == nil || stableOwed.Sign() <= 0 {
		return ErrInsufficientCollateral
	}
	rate, err := e.currentRate()
	if err != nil {
		return err
	}
	owedRNG := stableToVolatileCeil(stableOwed, rate, 10_000)
	pos, err := e.memberPosition(termID, defaulter)
	if err != nil {
		return err
	}
	recoverable := new(big.Int).Add(pos.PaymentBank, pos.Deposited)
	if e.recall != nil && pos.InVault.Sign() > 0 {
		redeemable, err := e.recall.RedeemableValue(termID, defaulter)
		if err != nil {
			return err
		}
		if redeemable == nil {
			redeemable = big.NewInt(0)
		}
		if redeemable.Cmp(pos.InVault) < 0 {
			// Vault loss: only the redeemable slice of the earmark counts.
			recoverable.Sub(recoverable, new(big.Int).Sub(pos.InVault, redeemable))
		}
	}
	if recoverable.Cmp(owedRNG) < 0 {
		return ErrInsufficientCollateral
	}
	recovered, surplus, err := e.debitPosition(termID, pos, owedRNG)
	if err != nil {
		return err
	}
	if recovered.Cmp(owedRNG) < 0 {
		// Unreachable unless the vault repriced mid-call.
		return ErrInsufficientCollateral
	}
	if surplus.Sign() > 0 {
		pos.PaymentBank = new(big.Int).Add(pos.PaymentBank, surplus)
	}
	if err := e.state.PutPosition(termID, pos); err != nil {
		return err
	}
	if err := e.creditBank(termID, beneficiary, owedRNG); err != nil {
		return err
	}
	e.emit(newLiquidatedEvent(termID, defaulter, beneficiary, stableOwed, owedRNG))
	return nil
}

// SeizeAndExpel liquidates as much of the owed amount as the defaulter's
// position can cover, marks the position expelled, and returns the seized
// RNG. A vault recall coming up short reduces the seizure, never the
// beneficiary's credit below what was actually recovered. Whatever remains in
// the position stays withdrawable by the expelled member.
func (e *Engine) SeizeAndExpel(termID uint64, defaulter, beneficiary crypto.Address, stableOwed *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	rate, err := e.currentRate()
	if err != nil {
		return nil, err
	}
	pos, err := e.memberPosition(termID, defaulter)
	if err != nil {
		return nil, err
	}
	owedRNG := stableToVolatileCeil(stableOwed, rate, 10_000)
	available := new(big.Int).Add(pos.PaymentBank, pos.Deposited)
	target := owedRNG
	if target.Cmp(available) > 0 {
		target = available
	}
	seized := big.NewInt(0)
	if target.Sign() > 0 {
		recovered, surplus, err := e.debitPosition(termID, pos, target)
		if err != nil {
			return nil, err
		}
		seized = recovered
		if surplus.Sign() > 0 {
			pos.PaymentBank = new(big.Int).Add(pos.PaymentBank, surplus)
		}
	}
	pos.Expelled = true
	if err := e.state.PutPosition(termID, pos); err != nil {
		return nil, err
	}
	if seized.Sign() > 0 && !beneficiary.IsZero() {
		if err := e.creditBank(termID, beneficiary, seized); err != nil {
			return nil, err
		}
	}
	e.emit(newSeizedEvent(termID, defaulter, seized))
	return seized, nil
}

// Release flips the ledger into the withdrawable phase. Called by the term
// lifecycle on expiry or closure.
func (e *Engine) Release(termID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	tc, err := e.termCollateral(termID)
	if err != nil {
		return err
	}
	tc.State = ReleasingCollateral
	return e.state.PutTermCollateral(tc)
}

// Activate locks the ledger for the active phase. Called on term start.
func (e *Engine) Activate(termID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	tc, err := e.termCollateral(termID)
	if err != nil {
		return err
	}
	if tc.State != AcceptingCollateral {
		return ErrWrongState
	}
	tc.State = CycleOngoing
	return e.state.PutTermCollateral(tc)
}

// Withdraw releases the member's full remaining deposit plus payment bank.
// Valid only once the ledger is releasing, or for an expelled member at any
// time. Guarded against logical reentrancy per (term, participant).
func (e *Engine) Withdraw(termID uint64, participant crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	release, err := e.locks.Acquire(termID, nativecommon.OpWithdrawCollateral, string(participant.Bytes()))
	if err != nil {
		return nil, err
	}
	defer release()

	tc, err := e.termCollateral(termID)
	if err != nil {
		return nil, err
	}
	pos, err := e.state.GetPosition(termID, participant)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrNotMember
	}
	pos.normalize()
	if tc.State != ReleasingCollateral && !pos.Expelled {
		return nil, ErrWrongState
	}
	// Pull back anything still sitting in the yield venue before paying out.
	if pos.InVault.Sign() > 0 {
		if e.recall == nil {
			return nil, fmt.Errorf("collateral engine: %d RNG stranded in yield venue", pos.InVault)
		}
		if err := e.recallEarmark(termID, participant, pos); err != nil {
			return nil, err
		}
	}
	amount := new(big.Int).Add(pos.Deposited, pos.PaymentBank)
	if amount.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}
	if err := e.transferRNG(e.vaultAddr, participant, amount); err != nil {
		return nil, err
	}
	pos.Deposited = big.NewInt(0)
	pos.PaymentBank = big.NewInt(0)
	pos.IsMember = false
	if err := e.state.PutPosition(termID, pos); err != nil {
		return nil, err
	}
	e.emit(newWithdrawnEvent(termID, participant, amount))
	return amount, nil
}

// ForwardToYield moves the configured fraction of the member's deposit to the
// yield provider account and earmarks it as vault-held. Returns the forwarded
// amount, which may be zero.
func (e *Engine) ForwardToYield(termID uint64, participant, provider crypto.Address, fractionBps uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.memberPosition(termID, participant)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Mul(pos.Deposited, new(big.Int).SetUint64(fractionBps))
	amount.Quo(amount, basisPoints)
	if amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	if err := e.transferRNG(e.vaultAddr, provider, amount); err != nil {
		return nil, err
	}
	pos.InVault = new(big.Int).Set(amount)
	if err := e.state.PutPosition(termID, pos); err != nil {
		return nil, err
	}
	return amount, nil
}

// ReturnFromYield books collateral coming back from the yield venue at term
// end. A shortfall against the earmarked amount is a vault loss and reduces
// the member's deposit.
func (e *Engine) ReturnFromYield(termID uint64, participant, provider crypto.Address, returned *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	pos, err := e.memberPosition(termID, participant)
	if err != nil {
		return err
	}
	if returned == nil {
		returned = big.NewInt(0)
	}
	if returned.Sign() > 0 {
		if err := e.transferRNG(provider, e.vaultAddr, returned); err != nil {
			return err
		}
	}
	if returned.Cmp(pos.InVault) < 0 {
		loss := new(big.Int).Sub(pos.InVault, returned)
		pos.Deposited = new(big.Int).Sub(pos.Deposited, loss)
		if pos.Deposited.Sign() < 0 {
			pos.Deposited = big.NewInt(0)
		}
	}
	pos.InVault = big.NewInt(0)
	return e.state.PutPosition(termID, pos)
}

// YieldOptIn reports the participant's recorded yield preference.
func (e *Engine) YieldOptIn(termID uint64, participant crypto.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	pos, err := e.memberPosition(termID, participant)
	if err != nil {
		return false, err
	}
	return pos.OptedInYG, nil
}

// EmptyAfterEnd sweeps every listed member's residual collateral and payment
// bank to the recipient. Valid only in the releasing phase; the term lifecycle
// gates the dormancy window and ownership before calling.
func (e *Engine) EmptyAfterEnd(termID uint64, members []crypto.Address, recipient crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	tc, err := e.termCollateral(termID)
	if err != nil {
		return nil, err
	}
	if tc.State != ReleasingCollateral {
		return nil, ErrWrongState
	}
	residual := big.NewInt(0)
	for _, member := range members {
		pos, err := e.state.GetPosition(termID, member)
		if err != nil {
			return nil, err
		}
		if pos == nil {
			continue
		}
		pos.normalize()
		if pos.InVault.Sign() > 0 && e.recall != nil {
			if err := e.recallEarmark(termID, member, pos); err != nil {
				return nil, err
			}
		}
		amount := new(big.Int).Add(pos.Deposited, pos.PaymentBank)
		if amount.Sign() == 0 {
			continue
		}
		residual.Add(residual, amount)
		pos.Deposited = big.NewInt(0)
		pos.PaymentBank = big.NewInt(0)
		pos.IsMember = false
		if err := e.state.PutPosition(termID, pos); err != nil {
			return nil, err
		}
	}
	if residual.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}
	if err := e.transferRNG(e.vaultAddr, recipient, residual); err != nil {
		return nil, err
	}
	e.emit(newSweptEvent(termID, recipient, residual))
	return residual, nil
}

// PositionOf returns a copy of the participant's position.
func (e *Engine) PositionOf(termID uint64, participant crypto.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.GetPosition(termID, participant)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrNotMember
	}
	return pos.Clone().normalize(), nil
}

// StateOf returns the ledger phase for the term.
func (e *Engine) StateOf(termID uint64) (State, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	tc, err := e.termCollateral(termID)
	if err != nil {
		return 0, err
	}
	return tc.State, nil
}

// debitPosition removes amount from the position following the bank → liquid
// deposit → vault recall order. It mutates pos but persists nothing; the
// caller stores the position once all adjustments are applied. recovered is
// the RNG actually extracted, which trails amount when the vault recall
// delivers less than the earmark; surplus is recall proceeds above the
// earmark and belongs to the position owner. Callers that need full coverage
// compare recovered against amount.
func (e *Engine) debitPosition(termID uint64, pos *Position, amount *big.Int) (recovered, surplus *big.Int, err error) {
	remaining := new(big.Int).Set(amount)
	surplus = big.NewInt(0)

	fromBank := min(pos.PaymentBank, remaining)
	pos.PaymentBank = new(big.Int).Sub(pos.PaymentBank, fromBank)
	remaining.Sub(remaining, fromBank)

	if remaining.Sign() > 0 {
		fromLiquid := min(pos.liquid(), remaining)
		pos.Deposited = new(big.Int).Sub(pos.Deposited, fromLiquid)
		remaining.Sub(remaining, fromLiquid)
	}
	if remaining.Sign() > 0 {
		if e.recall == nil {
			// Without a recall hook the whole deposit is treated as liquid.
			fromDeposit := min(pos.Deposited, remaining)
			pos.Deposited = new(big.Int).Sub(pos.Deposited, fromDeposit)
			pos.InVault = min(pos.InVault, pos.Deposited)
			remaining.Sub(remaining, fromDeposit)
		} else if pos.InVault.Sign() > 0 {
			recallAmt := min(pos.InVault, remaining)
			got, err := e.recall.Recall(termID, pos.Participant, recallAmt)
			if err != nil {
				return nil, nil, err
			}
			if got == nil {
				got = big.NewInt(0)
			}
			pos.InVault = new(big.Int).Sub(pos.InVault, recallAmt)
			pos.Deposited = new(big.Int).Sub(pos.Deposited, recallAmt)
			if pos.Deposited.Sign() < 0 {
				pos.Deposited = big.NewInt(0)
			}
			remaining.Sub(remaining, min(got, recallAmt))
			if got.Cmp(recallAmt) > 0 {
				surplus = new(big.Int).Sub(got, recallAmt)
			}
		}
	}
	return new(big.Int).Sub(amount, remaining), surplus, nil
}

// recallEarmark pulls the whole vault earmark back before a payout. Proceeds
// above the earmark land in the payment bank; a shortfall is a vault loss and
// comes off the deposit. Mutates pos without persisting it.
func (e *Engine) recallEarmark(termID uint64, participant crypto.Address, pos *Position) error {
	earmark := new(big.Int).Set(pos.InVault)
	got, err := e.recall.Recall(termID, participant, earmark)
	if err != nil {
		return err
	}
	if got == nil {
		got = big.NewInt(0)
	}
	pos.InVault = big.NewInt(0)
	switch got.Cmp(earmark) {
	case 1:
		pos.PaymentBank = new(big.Int).Add(pos.PaymentBank, new(big.Int).Sub(got, earmark))
	case -1:
		pos.Deposited = new(big.Int).Sub(pos.Deposited, new(big.Int).Sub(earmark, got))
		if pos.Deposited.Sign() < 0 {
			pos.Deposited = big.NewInt(0)
		}
	}
	return nil
}

func (e *Engine) creditBank(termID uint64, beneficiary crypto.Address, amount *big.Int) error {
	pos, err := e.state.GetPosition(termID, beneficiary)
	if err != nil {
		return err
	}
	if pos == nil {
		return ErrNotMember
	}
	pos.normalize()
	pos.PaymentBank = new(big.Int).Add(pos.PaymentBank, amount)
	return e.state.PutPosition(termID, pos)
}

func (e *Engine) termCollateral(termID uint64) (*TermCollateral, error) {
	tc, err := e.state.GetTermCollateral(termID)
	if err != nil {
		return nil, err
	}
	if tc == nil {
		return nil, errNilTerm
	}
	return tc, nil
}

func (e *Engine) memberPosition(termID uint64, participant crypto.Address) (*Position, error) {
	pos, err := e.state.GetPosition(termID, participant)
	if err != nil {
		return nil, err
	}
	if pos == nil || !pos.IsMember {
		return nil, ErrNotMember
	}
	return pos.normalize(), nil
}

func (e *Engine) termParams(termID uint64) (TermParams, error) {
	if e.terms == nil {
		return TermParams{}, errNilState
	}
	params, err := e.terms.Params(termID)
	if err != nil {
		return TermParams{}, err
	}
	if params.ContributionAmount == nil || params.TotalParticipants == 0 {
		return TermParams{}, errNilTerm
	}
	return params, nil
}

func (e *Engine) currentRate() (*big.Rat, error) {
	if e.oracle == nil {
		return nil, ErrPriceUnavailable
	}
	quote, err := e.oracle.GetPrice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	now := time.Unix(e.nowFn(), 0)
	if err := oracle.Validate(quote, now, e.maxQuoteAge); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	return quote.Rate, nil
}

func (e *Engine) transferRNG(from, to crypto.Address, amount *big.Int) error {
	fromAcc, err := e.state.GetAccount(from)
	if err != nil {
		return err
	}
	fromAcc = fromAcc.Normalize()
	if fromAcc.BalanceRNG.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toAcc, err := e.state.GetAccount(to)
	if err != nil {
		return err
	}
	toAcc = toAcc.Normalize()
	fromAcc.BalanceRNG = new(big.Int).Sub(fromAcc.BalanceRNG, amount)
	toAcc.BalanceRNG = new(big.Int).Add(toAcc.BalanceRNG, amount)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func min(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
