package ring

import (
	"math/big"
	"testing"

	"ringfund/crypto"
	"ringfund/native/collateral"
	"ringfund/native/fund"
	"ringfund/native/term"
	"ringfund/native/yield"
	"ringfund/storage"
)

func addr(last byte) crypto.Address {
	buf := make([]byte, 20)
	buf[19] = last
	return crypto.NewAddress(crypto.RingPrefix, buf)
}

func newStore() *Store {
	return NewStore(storage.NewMemDB())
}

func TestNextTermIDIsMonotonicAcrossReopen(t *testing.T) {
	db := storage.NewMemDB()
	store := NewStore(db)
	first, err := store.NextTermID()
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	second, err := store.NextTermID()
	if err != nil || second != first+1 {
		t.Fatalf("expected %d, got %d err=%v", first+1, second, err)
	}
	// A fresh store over the same database continues the sequence.
	reopened := NewStore(db)
	third, err := reopened.NextTermID()
	if err != nil || third != second+1 {
		t.Fatalf("expected %d after reopen, got %d err=%v", second+1, third, err)
	}
}

func TestTermRoundTrip(t *testing.T) {
	store := newStore()
	in := &term.Term{
		ID:                 3,
		Owner:              addr(0xf0),
		State:              term.ActiveTerm,
		TotalParticipants:  4,
		RegistrationPeriod: 3_600,
		ContributionAmount: big.NewInt(250),
		ContributionPeriod: 600,
		CycleTime:          1_200,
		YieldProvider:      crypto.ModuleAddress("yieldprovider"),
		CreatedAt:          1_000_000,
		StartedAt:          1_003_600,
		Members:            []crypto.Address{addr(1), addr(2)},
	}
	if err := store.PutTerm(in); err != nil {
		t.Fatalf("put term: %v", err)
	}
	out, err := store.GetTerm(3)
	if err != nil || out == nil {
		t.Fatalf("get term: %+v err=%v", out, err)
	}
	if out.State != term.ActiveTerm || out.TotalParticipants != 4 ||
		out.ContributionAmount.Cmp(in.ContributionAmount) != 0 ||
		out.StartedAt != in.StartedAt || !out.Owner.Equal(in.Owner) ||
		!out.YieldProvider.Equal(in.YieldProvider) {
		t.Fatalf("term mismatch: %+v", out)
	}
	if len(out.Members) != 2 || !out.Members[1].Equal(addr(2)) {
		t.Fatalf("members mismatch: %v", out.Members)
	}
	missing, err := store.GetTerm(99)
	if err != nil || missing != nil {
		t.Fatalf("expected absent term, got %+v err=%v", missing, err)
	}
}

func TestTermIndexAndMemberships(t *testing.T) {
	store := newStore()
	for _, id := range []uint64{1, 2, 5} {
		if err := store.AppendTermID(id); err != nil {
			t.Fatalf("append id %d: %v", id, err)
		}
	}
	ids, err := store.TermIDs()
	if err != nil || len(ids) != 3 || ids[2] != 5 {
		t.Fatalf("term index: %v err=%v", ids, err)
	}

	member := addr(0x07)
	for _, id := range []uint64{2, 5} {
		if err := store.AddMembership(member, id); err != nil {
			t.Fatalf("add membership: %v", err)
		}
	}
	got, err := store.MembershipsOf(member)
	if err != nil || len(got) != 2 || got[0] != 2 || got[1] != 5 {
		t.Fatalf("memberships: %v err=%v", got, err)
	}
	none, err := store.MembershipsOf(addr(0x08))
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty memberships, got %v err=%v", none, err)
	}
}

func TestExpulsionHistoryPersists(t *testing.T) {
	store := newStore()
	member := addr(0x09)
	if err := store.RecordExpulsion(4, member); err != nil {
		t.Fatalf("record expulsion: %v", err)
	}
	got, err := store.ExpulsionsOf(member)
	if err != nil || len(got) != 1 || got[0] != 4 {
		t.Fatalf("expulsions: %v err=%v", got, err)
	}
}

func TestCollateralRoundTrip(t *testing.T) {
	store := newStore()
	if err := store.PutTermCollateral(&collateral.TermCollateral{TermID: 1, State: collateral.ReleasingCollateral}); err != nil {
		t.Fatalf("put term collateral: %v", err)
	}
	tc, err := store.GetTermCollateral(1)
	if err != nil || tc == nil || tc.State != collateral.ReleasingCollateral {
		t.Fatalf("term collateral: %+v err=%v", tc, err)
	}

	pos := &collateral.Position{
		Participant: addr(0x01),
		Deposited:   big.NewInt(900),
		InVault:     big.NewInt(450),
		PaymentBank: big.NewInt(30),
		IsMember:    true,
		OptedInYG:   true,
	}
	if err := store.PutPosition(1, pos); err != nil {
		t.Fatalf("put position: %v", err)
	}
	got, err := store.GetPosition(1, addr(0x01))
	if err != nil || got == nil {
		t.Fatalf("get position: %+v err=%v", got, err)
	}
	if got.Deposited.Cmp(pos.Deposited) != 0 || got.InVault.Cmp(pos.InVault) != 0 ||
		!got.IsMember || !got.OptedInYG || got.Expelled {
		t.Fatalf("position mismatch: %+v", got)
	}
	absent, err := store.GetPosition(1, addr(0x02))
	if err != nil || absent != nil {
		t.Fatalf("expected absent position, got %+v err=%v", absent, err)
	}
}

func TestFundRoundTrip(t *testing.T) {
	store := newStore()
	in := &fund.Fund{
		TermID:             6,
		Owner:              addr(0xf0),
		State:              fund.CycleOngoing,
		CurrentCycle:       2,
		CycleStartedAt:     1_000_600,
		ContributionAmount: big.NewInt(100),
		ContributionPeriod: 600,
		CycleTime:          1_200,
		Members:            []crypto.Address{addr(1), addr(2), addr(3)},
		Beneficiaries:      []crypto.Address{addr(1), addr(3), addr(2)},
		StablePool:         big.NewInt(200),
		OutstandingStable:  big.NewInt(300),
	}
	if err := store.PutFund(in); err != nil {
		t.Fatalf("put fund: %v", err)
	}
	out, err := store.GetFund(6)
	if err != nil || out == nil {
		t.Fatalf("get fund: %+v err=%v", out, err)
	}
	if out.CurrentCycle != 2 || out.State != fund.CycleOngoing ||
		out.StablePool.Cmp(in.StablePool) != 0 || out.OutstandingStable.Cmp(in.OutstandingStable) != 0 {
		t.Fatalf("fund mismatch: %+v", out)
	}
	if !out.Beneficiaries[1].Equal(addr(3)) {
		t.Fatalf("beneficiary order lost: %v", out.Beneficiaries)
	}

	p := &fund.Participant{
		Address:        addr(0x02),
		PaidThisCycle:  true,
		AutoPay:        true,
		WasBeneficiary: true,
		AwardedPool:    big.NewInt(300),
		FrozenPot:      true,
	}
	if err := store.PutParticipant(6, p); err != nil {
		t.Fatalf("put participant: %v", err)
	}
	gotP, err := store.GetParticipant(6, addr(0x02))
	if err != nil || gotP == nil {
		t.Fatalf("get participant: %+v err=%v", gotP, err)
	}
	if !gotP.PaidThisCycle || !gotP.AutoPay || !gotP.FrozenPot || gotP.AwardedPool.Cmp(p.AwardedPool) != 0 {
		t.Fatalf("participant mismatch: %+v", gotP)
	}
}

func TestYieldRoundTrip(t *testing.T) {
	store := newStore()
	in := &yield.TermYield{
		TermID:         9,
		Provider:       crypto.ModuleAddress("yieldprovider"),
		FractionBps:    9_000,
		StartedAt:      1_000_000,
		Active:         true,
		TotalPrincipal: big.NewInt(1_800),
		TotalShares:    big.NewInt(1_800),
		TotalClaimed:   big.NewInt(25),
	}
	if err := store.PutTermYield(in); err != nil {
		t.Fatalf("put term yield: %v", err)
	}
	out, err := store.GetTermYield(9)
	if err != nil || out == nil {
		t.Fatalf("get term yield: %+v err=%v", out, err)
	}
	if !out.Active || out.FractionBps != 9_000 || out.TotalClaimed.Cmp(in.TotalClaimed) != 0 {
		t.Fatalf("term yield mismatch: %+v", out)
	}

	pos := &yield.Position{
		Member:    addr(0x03),
		Principal: big.NewInt(900),
		Shares:    big.NewInt(750),
		Claimed:   big.NewInt(25),
	}
	if err := store.PutYieldPosition(9, pos); err != nil {
		t.Fatalf("put yield position: %v", err)
	}
	gotPos, err := store.GetYieldPosition(9, addr(0x03))
	if err != nil || gotPos == nil {
		t.Fatalf("get yield position: %+v err=%v", gotPos, err)
	}
	if gotPos.Shares.Cmp(pos.Shares) != 0 || gotPos.Claimed.Cmp(pos.Claimed) != 0 {
		t.Fatalf("yield position mismatch: %+v", gotPos)
	}
}

func TestAccountDefaultsToZeroBalances(t *testing.T) {
	store := newStore()
	acc, err := store.GetAccount(addr(0x0a))
	if err != nil || acc == nil {
		t.Fatalf("get account: %+v err=%v", acc, err)
	}
	if acc.BalanceRUSD.Sign() != 0 || acc.BalanceRNG.Sign() != 0 {
		t.Fatalf("expected zero balances: %+v", acc)
	}
	acc.BalanceRUSD = big.NewInt(500)
	acc.BalanceRNG = big.NewInt(42)
	if err := store.PutAccount(addr(0x0a), acc); err != nil {
		t.Fatalf("put account: %v", err)
	}
	got, err := store.GetAccount(addr(0x0a))
	if err != nil || got.BalanceRUSD.Cmp(big.NewInt(500)) != 0 || got.BalanceRNG.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("account mismatch: %+v err=%v", got, err)
	}
}

func TestStoreSatisfiesEngineWiring(t *testing.T) {
	store := newStore()
	// Compile-time style check that one store backs every engine.
	termEngine := term.NewEngine(0)
	termEngine.SetState(store)
	collEngine := collateral.NewEngine(crypto.ModuleAddress("collateralvault"), 15_000, 10_000)
	collEngine.SetState(store)
	fundEngine := fund.NewEngine(crypto.ModuleAddress("fundpool"), 0)
	fundEngine.SetState(store)
	yieldEngine := yield.NewEngine(9_000)
	yieldEngine.SetState(store)
}
