package yield

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"ringfund/core/events"
	"ringfund/core/types"
	"ringfund/crypto"
	nativecommon "ringfund/native/common"
	"ringfund/native/vault"
)

var (
	errNilState = errors.New("yield engine: state not configured")

	// ErrNoProvider is returned when the referenced provider address has no
	// registered vault.
	ErrNoProvider = errors.New("yield engine: provider not registered")
	// ErrNotEnrolled is returned when the term never joined the yield
	// programme.
	ErrNotEnrolled = errors.New("yield engine: term not enrolled")
	// ErrNoYieldToWithdraw is returned when the member has no claimable
	// surplus, including members who never opted in.
	ErrNoYieldToWithdraw = errors.New("yield engine: no yield to withdraw")
	// ErrWrongState is returned when the operation is invalid in the
	// programme's current phase.
	ErrWrongState = errors.New("yield engine: operation invalid in current state")
	// ErrLocked is returned while the global yield switch is engaged.
	// Deposits are forced opt-out instead of failing; liquidation recalls
	// bypass the switch entirely.
	ErrLocked = errors.New("yield engine: yield operations locked")
)

const (
	moduleName = "yield"

	secondsPerYear = 365 * 24 * 3600
)

type engineState interface {
	GetTermYield(termID uint64) (*TermYield, error)
	PutTermYield(ty *TermYield) error
	GetYieldPosition(termID uint64, addr crypto.Address) (*Position, error)
	PutYieldPosition(termID uint64, pos *Position) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, acc *types.Account) error
}

// Engine runs the yield programme: forwarding opted-in collateral to a share
// vault, paying out surplus on demand, honouring liquidation recalls and
// unwinding positions at term end.
type Engine struct {
	state       engineState
	collateral  CollateralOps
	providers   map[string]vault.Vault
	fractionBps uint64
	locked      bool

	emitter events.Emitter
	pauses  nativecommon.PauseView
	locks   *nativecommon.LockSet
	nowFn   func() int64
}

// NewEngine constructs a yield engine. fractionBps is the share of each
// opted-in deposit forwarded to the provider on term start.
func NewEngine(fractionBps uint64) *Engine {
	return &Engine{
		providers:   make(map[string]vault.Vault),
		fractionBps: fractionBps,
		emitter:     events.NoopEmitter{},
		locks:       nativecommon.NewLockSet(),
		nowFn:       func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCollateral wires the collateral ledger funds move through.
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

// SetLocked engages or releases the global yield switch. While engaged, new
// deposits are forced opt-out and claims and migrations fail with ErrLocked;
// recalls still run so liquidations are never starved.
func (e *Engine) SetLocked(locked bool) { e.locked = locked }

// Locked reports the global yield switch.
func (e *Engine) Locked() bool { return e.locked }

// RegisterProvider binds a vault implementation to its on-ledger address.
func (e *Engine) RegisterProvider(addr crypto.Address, v vault.Vault) {
	if e.providers == nil {
		e.providers = make(map[string]vault.Vault)
	}
	e.providers[string(addr.Bytes())] = v
}

// EnrollTerm opens the yield programme for a term against the given provider.
func (e *Engine) EnrollTerm(termID uint64, provider crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok := e.providers[string(provider.Bytes())]; !ok {
		return ErrNoProvider
	}
	ty := (&TermYield{
		TermID:      termID,
		Provider:    provider,
		FractionBps: e.fractionBps,
	}).normalize()
	return e.state.PutTermYield(ty)
}

// DepositOnStart forwards the configured fraction of the member's collateral
// to the provider and books the shares issued. Called once per opted-in member
// when the term starts. A zero forward is a no-op.
func (e *Engine) DepositOnStart(termID uint64, member crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	release, err := e.locks.Acquire(termID, nativecommon.OpYieldDeposit, string(member.Bytes()))
	if err != nil {
		return nil, err
	}
	defer release()
	if e.locked {
		// The global switch forces opt-out: the collateral simply stays put.
		return big.NewInt(0), nil
	}
	if e.collateral == nil {
		return nil, errNilState
	}
	ty, v, err := e.termVault(termID)
	if err != nil {
		return nil, err
	}
	if ty.Released {
		return nil, ErrWrongState
	}
	amount, err := e.collateral.ForwardToYield(termID, member, ty.Provider, ty.FractionBps)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	shares, err := v.Deposit(e.positionRef(termID, member), amount)
	if err != nil {
		return nil, err
	}
	pos, err := e.position(termID, member)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = (&Position{Member: member}).normalize()
	}
	pos.Principal = new(big.Int).Add(pos.Principal, amount)
	pos.Shares = new(big.Int).Add(pos.Shares, shares)
	if err := e.state.PutYieldPosition(termID, pos); err != nil {
		return nil, err
	}
	if !ty.Active {
		ty.Active = true
		ty.StartedAt = e.nowFn()
	}
	ty.TotalPrincipal = new(big.Int).Add(ty.TotalPrincipal, amount)
	ty.TotalShares = new(big.Int).Add(ty.TotalShares, shares)
	if err := e.state.PutTermYield(ty); err != nil {
		return nil, err
	}
	e.emit(newDepositedEvent(termID, member, amount, shares))
	return amount, nil
}

// ClaimAvailableYield pays the member's accrued surplus to their own wallet.
func (e *Engine) ClaimAvailableYield(termID uint64, member crypto.Address) (*big.Int, error) {
	return e.claim(termID, member)
}

// ClaimYieldFor lets anyone trigger a claim for a member; proceeds always go
// to the member.
func (e *Engine) ClaimYieldFor(termID uint64, _, member crypto.Address) (*big.Int, error) {
	return e.claim(termID, member)
}

func (e *Engine) claim(termID uint64, member crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.locked {
		return nil, ErrLocked
	}
	release, err := e.locks.Acquire(termID, nativecommon.OpClaimYield, string(member.Bytes()))
	if err != nil {
		return nil, err
	}
	defer release()

	ty, v, err := e.termVault(termID)
	if err != nil {
		return nil, err
	}
	if !ty.Active || ty.Released {
		return nil, ErrWrongState
	}
	pos, err := e.position(termID, member)
	if err != nil {
		return nil, err
	}
	if pos == nil || pos.Shares.Sign() == 0 {
		return nil, ErrNoYieldToWithdraw
	}
	value, err := v.ConvertToAssets(pos.Shares)
	if err != nil {
		return nil, err
	}
	surplus := new(big.Int).Sub(value, pos.Principal)
	if surplus.Sign() <= 0 {
		return nil, ErrNoYieldToWithdraw
	}
	burn, err := v.ConvertToShares(surplus)
	if err != nil {
		return nil, err
	}
	if burn.Cmp(pos.Shares) > 0 {
		burn = new(big.Int).Set(pos.Shares)
	}
	assets, err := v.Withdraw(e.positionRef(termID, member), burn)
	if err != nil {
		return nil, err
	}
	if err := e.transferRNG(ty.Provider, member, assets); err != nil {
		return nil, err
	}
	pos.Shares = new(big.Int).Sub(pos.Shares, burn)
	pos.Claimed = new(big.Int).Add(pos.Claimed, assets)
	if err := e.state.PutYieldPosition(termID, pos); err != nil {
		return nil, err
	}
	ty.TotalShares = new(big.Int).Sub(ty.TotalShares, burn)
	ty.TotalClaimed = new(big.Int).Add(ty.TotalClaimed, assets)
	if err := e.state.PutTermYield(ty); err != nil {
		return nil, err
	}
	e.emit(newClaimedEvent(termID, member, assets))
	return assets, nil
}

// Recall pulls forwarded principal back into the collateral vault so a
// liquidation can be honoured. Runs even while the yield switch is engaged.
// Returns the assets actually delivered, which may exceed the request when
// the shares appreciated or fall short after a vault loss; the caller books
// the difference either way.
func (e *Engine) Recall(termID uint64, member crypto.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	if e.collateral == nil {
		return nil, errNilState
	}
	ty, v, err := e.termVault(termID)
	if err != nil {
		return nil, err
	}
	pos, err := e.position(termID, member)
	if err != nil {
		return nil, err
	}
	if pos == nil || pos.Shares.Sign() == 0 {
		return nil, fmt.Errorf("yield engine: nothing forwarded for recall of %s RNG", amount)
	}
	need, err := v.ConvertToShares(amount)
	if err != nil {
		return nil, err
	}
	burn := need
	if burn.Cmp(pos.Shares) > 0 {
		burn = new(big.Int).Set(pos.Shares)
	}
	assets, err := v.Withdraw(e.positionRef(termID, member), burn)
	if err != nil {
		return nil, err
	}
	if err := e.transferRNG(ty.Provider, e.collateral.VaultAddress(), assets); err != nil {
		return nil, err
	}
	pos.Shares = new(big.Int).Sub(pos.Shares, burn)
	pos.Principal = new(big.Int).Sub(pos.Principal, amount)
	if pos.Principal.Sign() < 0 {
		pos.Principal = big.NewInt(0)
	}
	if err := e.state.PutYieldPosition(termID, pos); err != nil {
		return nil, err
	}
	ty.TotalShares = new(big.Int).Sub(ty.TotalShares, burn)
	ty.TotalPrincipal = new(big.Int).Sub(ty.TotalPrincipal, amount)
	if ty.TotalPrincipal.Sign() < 0 {
		ty.TotalPrincipal = big.NewInt(0)
	}
	if err := e.state.PutTermYield(ty); err != nil {
		return nil, err
	}
	e.emit(newRecalledEvent(termID, member, amount, assets))
	return new(big.Int).Set(assets), nil
}

// RedeemableValue quotes the assets the member's remaining shares would
// deliver at the current vault price. Zero for terms that never enrolled and
// members who never forwarded, so liquidation pre-checks can always call it.
func (e *Engine) RedeemableValue(termID uint64, member crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	_, v, err := e.termVault(termID)
	if err != nil {
		if errors.Is(err, ErrNotEnrolled) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	pos, err := e.position(termID, member)
	if err != nil {
		return nil, err
	}
	if pos == nil || pos.Shares.Sign() == 0 {
		return big.NewInt(0), nil
	}
	return v.ConvertToAssets(pos.Shares)
}

// ReleaseOnEnd unwinds every member's position: principal flows back into the
// collateral ledger (booking any vault loss against the deposit) and residual
// surplus is paid straight to the member. Terminal per term.
func (e *Engine) ReleaseOnEnd(termID uint64, members []crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.collateral == nil {
		return errNilState
	}
	ty, v, err := e.termVault(termID)
	if err != nil {
		return err
	}
	if ty.Released {
		return ErrWrongState
	}
	for _, member := range members {
		pos, err := e.position(termID, member)
		if err != nil {
			return err
		}
		if pos == nil {
			continue
		}
		assets := big.NewInt(0)
		if pos.Shares.Sign() > 0 {
			assets, err = v.Withdraw(e.positionRef(termID, member), pos.Shares)
			if err != nil {
				return err
			}
		}
		principalPart := minBig(assets, pos.Principal)
		surplusPart := new(big.Int).Sub(assets, principalPart)
		if err := e.collateral.ReturnFromYield(termID, member, ty.Provider, principalPart); err != nil {
			return err
		}
		if surplusPart.Sign() > 0 {
			if err := e.transferRNG(ty.Provider, member, surplusPart); err != nil {
				return err
			}
			pos.Claimed = new(big.Int).Add(pos.Claimed, surplusPart)
			ty.TotalClaimed = new(big.Int).Add(ty.TotalClaimed, surplusPart)
		}
		pos.Shares = big.NewInt(0)
		pos.Principal = big.NewInt(0)
		if err := e.state.PutYieldPosition(termID, pos); err != nil {
			return err
		}
	}
	ty.Active = false
	ty.Released = true
	ty.TotalPrincipal = big.NewInt(0)
	ty.TotalShares = big.NewInt(0)
	if err := e.state.PutTermYield(ty); err != nil {
		return err
	}
	e.emit(newReleasedEvent(termID))
	return nil
}

// UpdateProvider migrates the term's positions to a new provider: shares are
// redeemed at the old vault, assets move to the new provider account and are
// re-deposited. Principals are unchanged; the share count re-bases.
func (e *Engine) UpdateProvider(termID uint64, newProvider crypto.Address, members []crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.locked {
		return ErrLocked
	}
	newVault, ok := e.providers[string(newProvider.Bytes())]
	if !ok {
		return ErrNoProvider
	}
	ty, oldVault, err := e.termVault(termID)
	if err != nil {
		return err
	}
	if ty.Released {
		return ErrWrongState
	}
	if ty.Provider.Equal(newProvider) {
		return nil
	}
	totalShares := big.NewInt(0)
	for _, member := range members {
		pos, err := e.position(termID, member)
		if err != nil {
			return err
		}
		if pos == nil || pos.Shares.Sign() == 0 {
			continue
		}
		ref := e.positionRef(termID, member)
		assets, err := oldVault.Withdraw(ref, pos.Shares)
		if err != nil {
			return err
		}
		if err := e.transferRNG(ty.Provider, newProvider, assets); err != nil {
			return err
		}
		shares, err := newVault.Deposit(ref, assets)
		if err != nil {
			return err
		}
		pos.Shares = shares
		totalShares.Add(totalShares, shares)
		if err := e.state.PutYieldPosition(termID, pos); err != nil {
			return err
		}
	}
	oldProvider := ty.Provider
	ty.Provider = newProvider
	ty.TotalShares = totalShares
	if err := e.state.PutTermYield(ty); err != nil {
		return err
	}
	e.emit(newProviderUpdatedEvent(termID, oldProvider, newProvider))
	return nil
}

// UpdateProviderOnTerms migrates several terms at once; membersOf keys the
// term's member set by id.
func (e *Engine) UpdateProviderOnTerms(newProvider crypto.Address, membersOf map[uint64][]crypto.Address) error {
	for termID, members := range membersOf {
		if err := e.UpdateProvider(termID, newProvider, members); err != nil {
			return err
		}
	}
	return nil
}

// PendingYield quotes the member's currently claimable surplus.
func (e *Engine) PendingYield(termID uint64, member crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	_, v, err := e.termVault(termID)
	if err != nil {
		return nil, err
	}
	pos, err := e.position(termID, member)
	if err != nil {
		return nil, err
	}
	if pos == nil || pos.Shares.Sign() == 0 {
		return big.NewInt(0), nil
	}
	value, err := v.ConvertToAssets(pos.Shares)
	if err != nil {
		return nil, err
	}
	surplus := new(big.Int).Sub(value, pos.Principal)
	if surplus.Sign() < 0 {
		surplus = big.NewInt(0)
	}
	return surplus, nil
}

// TotalYieldGenerated reports the term's lifetime yield: surplus still held
// plus surplus already claimed.
func (e *Engine) TotalYieldGenerated(termID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ty, v, err := e.termVault(termID)
	if err != nil {
		return nil, err
	}
	value, err := v.ConvertToAssets(ty.TotalShares)
	if err != nil {
		return nil, err
	}
	surplus := new(big.Int).Sub(value, ty.TotalPrincipal)
	if surplus.Sign() < 0 {
		surplus = big.NewInt(0)
	}
	return surplus.Add(surplus, ty.TotalClaimed), nil
}

// TermAPY annualises the term's lifetime yield over its elapsed runtime, in
// basis points. Zero before the programme starts accruing.
func (e *Engine) TermAPY(termID uint64) (uint64, error) {
	ty, _, err := e.termVault(termID)
	if err != nil {
		return 0, err
	}
	generated, err := e.TotalYieldGenerated(termID)
	if err != nil {
		return 0, err
	}
	principal := new(big.Int).Add(ty.TotalPrincipal, ty.TotalClaimed)
	return annualizedBps(generated, principal, ty.StartedAt, e.nowFn()), nil
}

// UserAPY annualises one member's yield (claimed plus pending) over the term's
// elapsed runtime, in basis points.
func (e *Engine) UserAPY(termID uint64, member crypto.Address) (uint64, error) {
	ty, _, err := e.termVault(termID)
	if err != nil {
		return 0, err
	}
	pending, err := e.PendingYield(termID, member)
	if err != nil {
		return 0, err
	}
	pos, err := e.position(termID, member)
	if err != nil {
		return 0, err
	}
	if pos == nil {
		return 0, nil
	}
	generated := new(big.Int).Add(pending, pos.Claimed)
	return annualizedBps(generated, pos.Principal, ty.StartedAt, e.nowFn()), nil
}

// PositionOf returns a copy of the member's yield position, nil when the
// member never opted in.
func (e *Engine) PositionOf(termID uint64, member crypto.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.position(termID, member)
	if err != nil {
		return nil, err
	}
	return pos.Clone(), nil
}

// TermInfo returns a copy of the term's yield header.
func (e *Engine) TermInfo(termID uint64) (*TermYield, error) {
	ty, _, err := e.termVault(termID)
	if err != nil {
		return nil, err
	}
	return ty.Clone(), nil
}

func annualizedBps(generated, principal *big.Int, startedAt, now int64) uint64 {
	if generated == nil || principal == nil || principal.Sign() <= 0 {
		return 0
	}
	elapsed := now - startedAt
	if startedAt <= 0 || elapsed <= 0 {
		return 0
	}
	num := new(big.Int).Mul(generated, big.NewInt(10_000*secondsPerYear))
	den := new(big.Int).Mul(principal, big.NewInt(elapsed))
	out := num.Quo(num, den)
	if !out.IsUint64() {
		return ^uint64(0)
	}
	return out.Uint64()
}

func (e *Engine) termVault(termID uint64) (*TermYield, vault.Vault, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	ty, err := e.state.GetTermYield(termID)
	if err != nil {
		return nil, nil, err
	}
	if ty == nil {
		return nil, nil, ErrNotEnrolled
	}
	ty.normalize()
	v, ok := e.providers[string(ty.Provider.Bytes())]
	if !ok {
		return nil, nil, ErrNoProvider
	}
	return ty, v, nil
}

func (e *Engine) position(termID uint64, member crypto.Address) (*Position, error) {
	pos, err := e.state.GetYieldPosition(termID, member)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, nil
	}
	return pos.normalize(), nil
}

// positionRef derives the stable vault reference for a (term, member) pair so
// one member can hold independent positions across terms.
func (e *Engine) positionRef(termID uint64, member crypto.Address) crypto.Address {
	return crypto.ModuleAddress(fmt.Sprintf("yield/%d/%x", termID, member.Bytes()))
}

func (e *Engine) transferRNG(from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	fromAcc, err := e.state.GetAccount(from)
	if err != nil {
		return err
	}
	fromAcc = fromAcc.Normalize()
	toAcc, err := e.state.GetAccount(to)
	if err != nil {
		return err
	}
	toAcc = toAcc.Normalize()
	fromAcc.BalanceRNG = new(big.Int).Sub(fromAcc.BalanceRNG, amount)
	if fromAcc.BalanceRNG.Sign() < 0 {
		return errors.New("yield engine: provider account underfunded")
	}
	toAcc.BalanceRNG = new(big.Int).Add(toAcc.BalanceRNG, amount)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}
