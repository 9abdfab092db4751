package fund

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"ringfund/core/types"
	"ringfund/crypto"
	"ringfund/native/collateral"
	nativecommon "ringfund/native/common"
)

type mockEngineState struct {
	funds        map[uint64]*Fund
	participants map[string]*Participant
	accounts     map[string]*types.Account
	expulsions   []crypto.Address
	onPutAccount func()
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		funds:        make(map[uint64]*Fund),
		participants: make(map[string]*Participant),
		accounts:     make(map[string]*types.Account),
	}
}

func (m *mockEngineState) key(termID uint64, addr crypto.Address) string {
	return string(append([]byte{byte(termID)}, addr.Bytes()...))
}

func (m *mockEngineState) GetFund(termID uint64) (*Fund, error) { return m.funds[termID], nil }

func (m *mockEngineState) PutFund(f *Fund) error {
	m.funds[f.TermID] = f
	return nil
}

func (m *mockEngineState) GetParticipant(termID uint64, addr crypto.Address) (*Participant, error) {
	return m.participants[m.key(termID, addr)], nil
}

func (m *mockEngineState) PutParticipant(termID uint64, p *Participant) error {
	m.participants[m.key(termID, p.Address)] = p
	return nil
}

func (m *mockEngineState) GetAccount(addr crypto.Address) (*types.Account, error) {
	acc := m.accounts[string(addr.Bytes())]
	if acc == nil {
		acc = types.NewAccount()
		m.accounts[string(addr.Bytes())] = acc
	}
	return acc, nil
}

func (m *mockEngineState) PutAccount(addr crypto.Address, acc *types.Account) error {
	m.accounts[string(addr.Bytes())] = acc
	if m.onPutAccount != nil {
		m.onPutAccount()
	}
	return nil
}

func (m *mockEngineState) RecordExpulsion(_ uint64, addr crypto.Address) error {
	m.expulsions = append(m.expulsions, addr)
	return nil
}

type liquidation struct {
	defaulter   crypto.Address
	beneficiary crypto.Address
	stableOwed  *big.Int
}

type mockCollateral struct {
	liquidateErr map[byte]error
	under        map[byte]bool
	liquidations []liquidation
	seized       []crypto.Address
}

func newMockCollateral() *mockCollateral {
	return &mockCollateral{
		liquidateErr: make(map[byte]error),
		under:        make(map[byte]bool),
	}
}

func last(addr crypto.Address) byte {
	b := addr.Bytes()
	if len(b) == 0 {
		return 0
	}
	return b[19]
}

func (m *mockCollateral) Liquidate(_ uint64, defaulter, beneficiary crypto.Address, stableOwed *big.Int) error {
	if err := m.liquidateErr[last(defaulter)]; err != nil {
		return err
	}
	m.liquidations = append(m.liquidations, liquidation{defaulter: defaulter, beneficiary: beneficiary, stableOwed: new(big.Int).Set(stableOwed)})
	return nil
}

func (m *mockCollateral) SeizeAndExpel(_ uint64, defaulter, _ crypto.Address, _ *big.Int) (*big.Int, error) {
	m.seized = append(m.seized, defaulter)
	return big.NewInt(0), nil
}

func (m *mockCollateral) IsUnderCollateralized(_ uint64, member crypto.Address, _ *big.Int) (bool, error) {
	return m.under[last(member)], nil
}

type fixture struct {
	engine   *Engine
	state    *mockEngineState
	coll     *mockCollateral
	owner    crypto.Address
	members  []crypto.Address
	now      int64
	termID   uint64
	contrib  *big.Int
	interval int64
}

func newFixture(t *testing.T, memberCount int) *fixture {
	t.Helper()
	fx := &fixture{
		state:    newMockEngineState(),
		coll:     newMockCollateral(),
		owner:    addr(0xf0),
		now:      1_000_000,
		termID:   1,
		contrib:  big.NewInt(100),
		interval: 600,
	}
	for i := 0; i < memberCount; i++ {
		fx.members = append(fx.members, addr(byte(i+1)))
	}
	fx.engine = NewEngine(crypto.ModuleAddress("fundpool"), 180*24*time.Hour)
	fx.engine.SetState(fx.state)
	fx.engine.SetCollateral(fx.coll)
	fx.engine.SetNowFunc(func() int64 { return fx.now })
	if err := fx.engine.Init(fx.termID, fx.owner, fx.members, fx.contrib, fx.interval, 2*fx.interval); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, m := range fx.members {
		fx.state.accounts[string(m.Bytes())] = &types.Account{BalanceRUSD: big.NewInt(10_000), BalanceRNG: big.NewInt(0)}
	}
	return fx
}

func (fx *fixture) pay(t *testing.T, member crypto.Address) {
	t.Helper()
	if err := fx.engine.PayContribution(fx.termID, member); err != nil {
		t.Fatalf("pay contribution for %x: %v", last(member), err)
	}
}

func (fx *fixture) close(t *testing.T) {
	t.Helper()
	fx.now += fx.interval
	if err := fx.engine.CloseFundingPeriod(fx.termID); err != nil {
		t.Fatalf("close funding period: %v", err)
	}
}

func (fx *fixture) nextCycle(t *testing.T) bool {
	t.Helper()
	fx.now += fx.interval
	closed, err := fx.engine.StartNewCycle(fx.termID, fx.owner)
	if err != nil {
		t.Fatalf("start new cycle: %v", err)
	}
	return closed
}

func TestPayContributionRules(t *testing.T) {
	fx := newFixture(t, 3)
	p1, p2 := fx.members[0], fx.members[1]

	if err := fx.engine.PayContribution(fx.termID, p1); !errors.Is(err, ErrBeneficiaryExempt) {
		t.Fatalf("expected beneficiary exempt, got %v", err)
	}
	if err := fx.engine.PayContribution(fx.termID, addr(0x99)); !errors.Is(err, ErrNotAParticipant) {
		t.Fatalf("expected not a participant, got %v", err)
	}
	fx.pay(t, p2)
	if err := fx.engine.PayContribution(fx.termID, p2); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected already paid, got %v", err)
	}
	vault := fx.state.accounts[string(fx.engine.VaultAddress().Bytes())]
	if vault.BalanceRUSD.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected vault balance: %s", vault.BalanceRUSD)
	}
	payerAcc := fx.state.accounts[string(p2.Bytes())]
	if payerAcc.BalanceRUSD.Cmp(big.NewInt(9_900)) != 0 {
		t.Fatalf("unexpected payer balance: %s", payerAcc.BalanceRUSD)
	}
}

func TestPayOnBehalfOfCreditsParticipantSlot(t *testing.T) {
	fx := newFixture(t, 3)
	sponsor := addr(0x77)
	fx.state.accounts[string(sponsor.Bytes())] = &types.Account{BalanceRUSD: big.NewInt(500), BalanceRNG: big.NewInt(0)}

	if err := fx.engine.PayContributionOnBehalfOf(fx.termID, sponsor, fx.members[2]); err != nil {
		t.Fatalf("pay on behalf: %v", err)
	}
	p, _ := fx.engine.ParticipantOf(fx.termID, fx.members[2])
	if !p.PaidThisCycle {
		t.Fatalf("participant slot not credited")
	}
	sponsorAcc := fx.state.accounts[string(sponsor.Bytes())]
	if sponsorAcc.BalanceRUSD.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("sponsor not debited: %s", sponsorAcc.BalanceRUSD)
	}
}

func TestCloseFundingPeriodTooEarly(t *testing.T) {
	fx := newFixture(t, 3)
	if err := fx.engine.CloseFundingPeriod(fx.termID); !errors.Is(err, ErrStillTimeToContribute) {
		t.Fatalf("expected still time to contribute, got %v", err)
	}
}

func TestCloseLiquidatesDefaulterAndAwardsHead(t *testing.T) {
	fx := newFixture(t, 3)
	p1, p2, p3 := fx.members[0], fx.members[1], fx.members[2]
	fx.pay(t, p3) // p2 never pays cycle 1
	fx.close(t)

	if len(fx.coll.liquidations) != 1 {
		t.Fatalf("expected one liquidation, got %d", len(fx.coll.liquidations))
	}
	liq := fx.coll.liquidations[0]
	if !liq.defaulter.Equal(p2) || !liq.beneficiary.Equal(p1) || liq.stableOwed.Cmp(fx.contrib) != 0 {
		t.Fatalf("unexpected liquidation: %+v", liq)
	}
	ben, _ := fx.engine.ParticipantOf(fx.termID, p1)
	if ben.AwardedPool.Cmp(big.NewInt(100)) != 0 || !ben.WasBeneficiary {
		t.Fatalf("unexpected beneficiary record: %+v", ben)
	}
	info, _ := fx.engine.Info(fx.termID)
	if !info.Beneficiaries[0].Equal(p1) {
		t.Fatalf("beneficiary reordered out of position 0")
	}
	// p2 defaulted before its turn: delayed behind p3, not denied.
	if !info.Beneficiaries[1].Equal(p3) || !info.Beneficiaries[2].Equal(p2) {
		t.Fatalf("unexpected order after default: %v", info.Beneficiaries)
	}
}

func TestDefaulterDelayedNotDenied(t *testing.T) {
	fx := newFixture(t, 3)
	p1, p2, p3 := fx.members[0], fx.members[1], fx.members[2]

	// Cycle 1: p2 defaults.
	fx.pay(t, p3)
	fx.close(t)
	fx.nextCycle(t)

	// Cycle 2: beneficiary is p3 now; everyone pays.
	ben, err := fx.engine.Beneficiary(fx.termID)
	if err != nil || !ben.Equal(p3) {
		t.Fatalf("expected p3 as cycle 2 beneficiary, got %v err=%v", ben, err)
	}
	fx.pay(t, p1)
	fx.pay(t, p2)
	fx.close(t)
	fx.nextCycle(t)

	// Cycle 3: p2 finally gets its turn.
	ben, err = fx.engine.Beneficiary(fx.termID)
	if err != nil || !ben.Equal(p2) {
		t.Fatalf("expected p2 as cycle 3 beneficiary, got %v err=%v", ben, err)
	}
}

func TestInsolventDefaulterExpelled(t *testing.T) {
	fx := newFixture(t, 3)
	p2, p3 := fx.members[1], fx.members[2]
	fx.coll.liquidateErr[last(p2)] = collateral.ErrInsufficientCollateral
	fx.pay(t, p3)
	fx.close(t)

	if len(fx.coll.seized) != 1 || !fx.coll.seized[0].Equal(p2) {
		t.Fatalf("expected seizure of p2, got %v", fx.coll.seized)
	}
	expelled, err := fx.engine.WasExpelled(fx.termID, p2)
	if err != nil || !expelled {
		t.Fatalf("expected p2 expelled, got %v err=%v", expelled, err)
	}
	if len(fx.state.expulsions) != 1 {
		t.Fatalf("expulsion history not recorded")
	}
	info, _ := fx.engine.Info(fx.termID)
	if len(info.Beneficiaries) != 2 {
		t.Fatalf("expelled member still in order: %v", info.Beneficiaries)
	}
	fx.nextCycle(t)
	if err := fx.engine.PayContribution(fx.termID, p2); !errors.Is(err, ErrNotAParticipant) {
		t.Fatalf("expected not a participant after expulsion, got %v", err)
	}
	exempt, err := fx.engine.IsExempted(fx.termID, p2)
	if err != nil || !exempt {
		t.Fatalf("expelled member must be exempt, got %v err=%v", exempt, err)
	}
}

func TestExpulsionForfeitsUnclaimedPot(t *testing.T) {
	fx := newFixture(t, 3)
	p1, p2, p3 := fx.members[0], fx.members[1], fx.members[2]

	// Cycle 1: everyone behaves; p1 is awarded but does not withdraw.
	fx.pay(t, p2)
	fx.pay(t, p3)
	fx.close(t)
	fx.nextCycle(t)

	// Cycle 2: p1 becomes an insolvent defaulter.
	fx.coll.liquidateErr[last(p1)] = collateral.ErrInsufficientCollateral
	fx.pay(t, p3)
	fx.close(t)

	// p1's unclaimed 200 pot is forfeited into cycle 2's pool along with
	// p3's 100 contribution.
	ben, _ := fx.engine.ParticipantOf(fx.termID, p2)
	if ben.AwardedPool.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("unexpected cycle 2 award: %s", ben.AwardedPool)
	}
	former, _ := fx.engine.ParticipantOf(fx.termID, p1)
	if former.AwardedPool.Sign() != 0 || !former.Expelled {
		t.Fatalf("unexpected expelled record: %+v", former)
	}
}

func TestAutoPayCoversMissedContribution(t *testing.T) {
	fx := newFixture(t, 3)
	p2, p3 := fx.members[1], fx.members[2]
	if _, err := fx.engine.ToggleAutoPay(fx.termID, p2); err != nil {
		t.Fatalf("toggle autopay: %v", err)
	}
	fx.pay(t, p3)
	fx.close(t)

	p, _ := fx.engine.ParticipantOf(fx.termID, p2)
	if !p.PaidThisCycle || p.DefaultedThisCycle {
		t.Fatalf("autopay did not cover contribution: %+v", p)
	}
	if len(fx.coll.liquidations) != 1 {
		t.Fatalf("expected one autopay liquidation, got %d", len(fx.coll.liquidations))
	}
}

func TestAutoPayFailureFallsBackToDefault(t *testing.T) {
	fx := newFixture(t, 3)
	p2, p3 := fx.members[1], fx.members[2]
	if _, err := fx.engine.ToggleAutoPay(fx.termID, p2); err != nil {
		t.Fatalf("toggle autopay: %v", err)
	}
	fx.coll.liquidateErr[last(p2)] = collateral.ErrInsufficientCollateral
	fx.pay(t, p3)
	fx.close(t)

	p, _ := fx.engine.ParticipantOf(fx.termID, p2)
	if p.PaidThisCycle {
		t.Fatalf("failed autopay marked as paid")
	}
	if !p.Expelled {
		t.Fatalf("insolvent defaulter not expelled after autopay failure")
	}
}

func TestStartNewCycleGates(t *testing.T) {
	fx := newFixture(t, 2)
	p2 := fx.members[1]
	fx.pay(t, p2)
	fx.close(t)

	if _, err := fx.engine.StartNewCycle(fx.termID, p2); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if _, err := fx.engine.StartNewCycle(fx.termID, fx.owner); !errors.Is(err, ErrTooEarly) {
		t.Fatalf("expected too early, got %v", err)
	}
	fx.now += 2 * fx.interval
	closed, err := fx.engine.StartNewCycle(fx.termID, fx.owner)
	if err != nil || closed {
		t.Fatalf("expected cycle 2 to open, closed=%v err=%v", closed, err)
	}
	// Cycle 2 runs; after it completes the fund closes.
	fx.pay(t, fx.members[0])
	fx.close(t)
	fx.now += 2 * fx.interval
	closed, err = fx.engine.StartNewCycle(fx.termID, fx.owner)
	if err != nil || !closed {
		t.Fatalf("expected fund to close, closed=%v err=%v", closed, err)
	}
	info, _ := fx.engine.Info(fx.termID)
	if info.State != FundClosed {
		t.Fatalf("unexpected state: %v", info.State)
	}
}

func TestWithdrawFundAndResidueSweep(t *testing.T) {
	fx := newFixture(t, 2)
	p1, p2 := fx.members[0], fx.members[1]
	fx.pay(t, p2)
	fx.close(t)

	amount, err := fx.engine.WithdrawFund(fx.termID, p1)
	if err != nil || amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("withdraw fund: amount=%v err=%v", amount, err)
	}
	if _, err := fx.engine.WithdrawFund(fx.termID, p1); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected nothing to withdraw, got %v", err)
	}

	// Finish the term with p2's pot left unclaimed.
	fx.now += 2 * fx.interval
	if _, err := fx.engine.StartNewCycle(fx.termID, fx.owner); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	fx.pay(t, p1)
	fx.close(t)
	fx.now += 2 * fx.interval
	closed, err := fx.engine.StartNewCycle(fx.termID, fx.owner)
	if err != nil || !closed {
		t.Fatalf("expected closure, got closed=%v err=%v", closed, err)
	}

	if _, err := fx.engine.EmptyFundAfterEnd(fx.termID, fx.owner); !errors.Is(err, ErrTooEarly) {
		t.Fatalf("expected too early before dormancy, got %v", err)
	}
	fx.now += 181 * 24 * 3600
	residual, err := fx.engine.EmptyFundAfterEnd(fx.termID, fx.owner)
	if err != nil || residual.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("sweep: residual=%v err=%v", residual, err)
	}
	if _, err := fx.engine.EmptyFundAfterEnd(fx.termID, fx.owner); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("second sweep must find nothing, got %v", err)
	}
	info, _ := fx.engine.Info(fx.termID)
	if info.OutstandingStable.Sign() != 0 {
		t.Fatalf("pool not drained: %s", info.OutstandingStable)
	}
}

func TestFrozenPotBlocksWithdrawUntilSolvent(t *testing.T) {
	fx := newFixture(t, 2)
	p1, p2 := fx.members[0], fx.members[1]
	fx.coll.under[last(p1)] = true
	fx.pay(t, p2)
	fx.close(t)

	p, _ := fx.engine.ParticipantOf(fx.termID, p1)
	if !p.FrozenPot {
		t.Fatalf("expected frozen pot for under-collateralized beneficiary")
	}
	if _, err := fx.engine.WithdrawFund(fx.termID, p1); !errors.Is(err, ErrPotFrozen) {
		t.Fatalf("expected frozen pot error, got %v", err)
	}
	fx.coll.under[last(p1)] = false
	amount, err := fx.engine.WithdrawFund(fx.termID, p1)
	if err != nil || amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("withdraw after unfreezing: amount=%v err=%v", amount, err)
	}
}

func TestPaymentCostsSymmetricAcrossCycles(t *testing.T) {
	fx := newFixture(t, 2)
	p1, p2 := fx.members[0], fx.members[1]

	// Cycle 1: p2 defaults against beneficiary p1.
	fx.close(t)
	fx.nextCycle(t)
	// Cycle 2: p1 defaults against beneficiary p2.
	fx.close(t)

	if len(fx.coll.liquidations) != 2 {
		t.Fatalf("expected two liquidations, got %d", len(fx.coll.liquidations))
	}
	first, second := fx.coll.liquidations[0], fx.coll.liquidations[1]
	if !first.defaulter.Equal(p2) || !first.beneficiary.Equal(p1) {
		t.Fatalf("unexpected cycle 1 liquidation: %+v", first)
	}
	if !second.defaulter.Equal(p1) || !second.beneficiary.Equal(p2) {
		t.Fatalf("unexpected cycle 2 liquidation: %+v", second)
	}
	if first.stableOwed.Cmp(second.stableOwed) != 0 {
		t.Fatalf("asymmetric liquidation amounts: %s vs %s", first.stableOwed, second.stableOwed)
	}
	a, _ := fx.engine.ParticipantOf(fx.termID, p1)
	b, _ := fx.engine.ParticipantOf(fx.termID, p2)
	if a.AwardedPool.Cmp(b.AwardedPool) != 0 {
		t.Fatalf("asymmetric pools: %s vs %s", a.AwardedPool, b.AwardedPool)
	}
}

func TestPayContributionRejectsNestedCall(t *testing.T) {
	fx := newFixture(t, 3)
	p2 := fx.members[1]

	var nestedErr error
	nested := false
	fx.state.onPutAccount = func() {
		if nested {
			return
		}
		nested = true
		// Simulates a transfer callback replaying the same contribution.
		nestedErr = fx.engine.PayContribution(fx.termID, p2)
	}
	if err := fx.engine.PayContribution(fx.termID, p2); err != nil {
		t.Fatalf("outer contribution: %v", err)
	}
	if !errors.Is(nestedErr, nativecommon.ErrReentrancy) {
		t.Fatalf("expected reentrancy error on nested contribution, got %v", nestedErr)
	}
}
