package ring

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"ringfund/core/types"
	"ringfund/crypto"
	"ringfund/native/collateral"
	"ringfund/native/fund"
	"ringfund/native/term"
	"ringfund/native/yield"
	"ringfund/storage"
)

// Store persists every engine's records in a keyed database. It satisfies the
// state interface of each native engine; records are RLP encoded through
// stored* mirror structs because RLP carries no signed integers.
type Store struct {
	db storage.Database
}

// NewStore wraps a database in the engine state layer.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) put(key []byte, in interface{}) error {
	raw, err := rlp.EncodeToBytes(in)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return s.db.Put(key, raw)
}

func addressBytes(a crypto.Address) []byte {
	return append([]byte(nil), a.Bytes()...)
}

func addressFromBytes(b []byte) crypto.Address {
	if len(b) != 20 {
		return crypto.Address{}
	}
	return crypto.NewAddress(crypto.RingPrefix, append([]byte(nil), b...))
}

func addressesBytes(addrs []crypto.Address) [][]byte {
	out := make([][]byte, len(addrs))
	for i, a := range addrs {
		out[i] = addressBytes(a)
	}
	return out
}

func addressesFromBytes(raw [][]byte) []crypto.Address {
	out := make([]crypto.Address, len(raw))
	for i, b := range raw {
		out[i] = addressFromBytes(b)
	}
	return out
}

func storedBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// --- term records ---

type storedTerm struct {
	ID                 uint64
	Owner              []byte
	State              uint8
	TotalParticipants  uint64
	RegistrationPeriod uint64
	ContributionAmount *big.Int
	ContributionPeriod uint64
	CycleTime          uint64
	YieldProvider      []byte
	CreatedAt          uint64
	StartedAt          uint64
	EndedAt            uint64
	Members            [][]byte
}

// NextTermID allocates the next monotonically increasing term id.
func (s *Store) NextTermID() (uint64, error) {
	var current uint64
	if _, err := s.get([]byte(keyNextTermID), &current); err != nil {
		return 0, err
	}
	next := current + 1
	if err := s.put([]byte(keyNextTermID), next); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) GetTerm(id uint64) (*term.Term, error) {
	var rec storedTerm
	ok, err := s.get(termKey(id), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &term.Term{
		ID:                 rec.ID,
		Owner:              addressFromBytes(rec.Owner),
		State:              term.State(rec.State),
		TotalParticipants:  rec.TotalParticipants,
		RegistrationPeriod: int64(rec.RegistrationPeriod),
		ContributionAmount: storedBig(rec.ContributionAmount),
		ContributionPeriod: int64(rec.ContributionPeriod),
		CycleTime:          int64(rec.CycleTime),
		YieldProvider:      addressFromBytes(rec.YieldProvider),
		CreatedAt:          int64(rec.CreatedAt),
		StartedAt:          int64(rec.StartedAt),
		EndedAt:            int64(rec.EndedAt),
		Members:            addressesFromBytes(rec.Members),
	}, nil
}

func (s *Store) PutTerm(t *term.Term) error {
	rec := storedTerm{
		ID:                 t.ID,
		Owner:              addressBytes(t.Owner),
		State:              uint8(t.State),
		TotalParticipants:  t.TotalParticipants,
		RegistrationPeriod: uint64(t.RegistrationPeriod),
		ContributionAmount: storedBig(t.ContributionAmount),
		ContributionPeriod: uint64(t.ContributionPeriod),
		CycleTime:          uint64(t.CycleTime),
		YieldProvider:      addressBytes(t.YieldProvider),
		CreatedAt:          uint64(t.CreatedAt),
		StartedAt:          uint64(t.StartedAt),
		EndedAt:            uint64(t.EndedAt),
		Members:            addressesBytes(t.Members),
	}
	return s.put(termKey(t.ID), rec)
}

// AppendTermID records the id in the global term index.
func (s *Store) AppendTermID(id uint64) error {
	ids, err := s.TermIDs()
	if err != nil {
		return err
	}
	return s.put([]byte(keyTermIndex), append(ids, id))
}

// TermIDs lists every created term id in creation order.
func (s *Store) TermIDs() ([]uint64, error) {
	var ids []uint64
	if _, err := s.get([]byte(keyTermIndex), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// AddMembership records that the address joined the term.
func (s *Store) AddMembership(addr crypto.Address, termID uint64) error {
	ids, err := s.MembershipsOf(addr)
	if err != nil {
		return err
	}
	return s.put(membershipKey(addr), append(ids, termID))
}

// MembershipsOf lists every term the address joined, in join order.
func (s *Store) MembershipsOf(addr crypto.Address) ([]uint64, error) {
	var ids []uint64
	if _, err := s.get(membershipKey(addr), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// RecordExpulsion appends the term to the address's expulsion history.
func (s *Store) RecordExpulsion(termID uint64, addr crypto.Address) error {
	ids, err := s.ExpulsionsOf(addr)
	if err != nil {
		return err
	}
	return s.put(expulsionKey(addr), append(ids, termID))
}

// ExpulsionsOf lists every term the address was expelled from. The history
// persists after term closure.
func (s *Store) ExpulsionsOf(addr crypto.Address) ([]uint64, error) {
	var ids []uint64
	if _, err := s.get(expulsionKey(addr), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// --- collateral records ---

type storedTermCollateral struct {
	TermID uint64
	State  uint8
}

type storedPosition struct {
	Participant []byte
	Deposited   *big.Int
	InVault     *big.Int
	PaymentBank *big.Int
	IsMember    bool
	Expelled    bool
	OptedInYG   bool
}

func (s *Store) GetTermCollateral(termID uint64) (*collateral.TermCollateral, error) {
	var rec storedTermCollateral
	ok, err := s.get(collateralKey(termID), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &collateral.TermCollateral{TermID: rec.TermID, State: collateral.State(rec.State)}, nil
}

func (s *Store) PutTermCollateral(tc *collateral.TermCollateral) error {
	return s.put(collateralKey(tc.TermID), storedTermCollateral{TermID: tc.TermID, State: uint8(tc.State)})
}

func (s *Store) GetPosition(termID uint64, addr crypto.Address) (*collateral.Position, error) {
	var rec storedPosition
	ok, err := s.get(positionKey(termID, addr), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &collateral.Position{
		Participant: addressFromBytes(rec.Participant),
		Deposited:   storedBig(rec.Deposited),
		InVault:     storedBig(rec.InVault),
		PaymentBank: storedBig(rec.PaymentBank),
		IsMember:    rec.IsMember,
		Expelled:    rec.Expelled,
		OptedInYG:   rec.OptedInYG,
	}, nil
}

func (s *Store) PutPosition(termID uint64, pos *collateral.Position) error {
	rec := storedPosition{
		Participant: addressBytes(pos.Participant),
		Deposited:   storedBig(pos.Deposited),
		InVault:     storedBig(pos.InVault),
		PaymentBank: storedBig(pos.PaymentBank),
		IsMember:    pos.IsMember,
		Expelled:    pos.Expelled,
		OptedInYG:   pos.OptedInYG,
	}
	return s.put(positionKey(termID, pos.Participant), rec)
}

// --- fund records ---

type storedFund struct {
	TermID             uint64
	Owner              []byte
	State              uint8
	CurrentCycle       uint64
	CycleStartedAt     uint64
	ClosedAt           uint64
	ContributionAmount *big.Int
	ContributionPeriod uint64
	CycleTime          uint64
	Members            [][]byte
	Beneficiaries      [][]byte
	StablePool         *big.Int
	OutstandingStable  *big.Int
}

type storedParticipant struct {
	Address            []byte
	PaidThisCycle      bool
	DefaultedThisCycle bool
	AutoPay            bool
	Expelled           bool
	ExemptThisCycle    bool
	WasBeneficiary     bool
	AwardedPool        *big.Int
	FrozenPot          bool
}

func (s *Store) GetFund(termID uint64) (*fund.Fund, error) {
	var rec storedFund
	ok, err := s.get(fundKey(termID), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &fund.Fund{
		TermID:             rec.TermID,
		Owner:              addressFromBytes(rec.Owner),
		State:              fund.State(rec.State),
		CurrentCycle:       rec.CurrentCycle,
		CycleStartedAt:     int64(rec.CycleStartedAt),
		ClosedAt:           int64(rec.ClosedAt),
		ContributionAmount: storedBig(rec.ContributionAmount),
		ContributionPeriod: int64(rec.ContributionPeriod),
		CycleTime:          int64(rec.CycleTime),
		Members:            addressesFromBytes(rec.Members),
		Beneficiaries:      addressesFromBytes(rec.Beneficiaries),
		StablePool:         storedBig(rec.StablePool),
		OutstandingStable:  storedBig(rec.OutstandingStable),
	}, nil
}

func (s *Store) PutFund(f *fund.Fund) error {
	rec := storedFund{
		TermID:             f.TermID,
		Owner:              addressBytes(f.Owner),
		State:              uint8(f.State),
		CurrentCycle:       f.CurrentCycle,
		CycleStartedAt:     uint64(f.CycleStartedAt),
		ClosedAt:           uint64(f.ClosedAt),
		ContributionAmount: storedBig(f.ContributionAmount),
		ContributionPeriod: uint64(f.ContributionPeriod),
		CycleTime:          uint64(f.CycleTime),
		Members:            addressesBytes(f.Members),
		Beneficiaries:      addressesBytes(f.Beneficiaries),
		StablePool:         storedBig(f.StablePool),
		OutstandingStable:  storedBig(f.OutstandingStable),
	}
	return s.put(fundKey(f.TermID), rec)
}

func (s *Store) GetParticipant(termID uint64, addr crypto.Address) (*fund.Participant, error) {
	var rec storedParticipant
	ok, err := s.get(participantKey(termID, addr), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &fund.Participant{
		Address:            addressFromBytes(rec.Address),
		PaidThisCycle:      rec.PaidThisCycle,
		DefaultedThisCycle: rec.DefaultedThisCycle,
		AutoPay:            rec.AutoPay,
		Expelled:           rec.Expelled,
		ExemptThisCycle:    rec.ExemptThisCycle,
		WasBeneficiary:     rec.WasBeneficiary,
		AwardedPool:        storedBig(rec.AwardedPool),
		FrozenPot:          rec.FrozenPot,
	}, nil
}

func (s *Store) PutParticipant(termID uint64, p *fund.Participant) error {
	rec := storedParticipant{
		Address:            addressBytes(p.Address),
		PaidThisCycle:      p.PaidThisCycle,
		DefaultedThisCycle: p.DefaultedThisCycle,
		AutoPay:            p.AutoPay,
		Expelled:           p.Expelled,
		ExemptThisCycle:    p.ExemptThisCycle,
		WasBeneficiary:     p.WasBeneficiary,
		AwardedPool:        storedBig(p.AwardedPool),
		FrozenPot:          p.FrozenPot,
	}
	return s.put(participantKey(termID, p.Address), rec)
}

// --- yield records ---

type storedTermYield struct {
	TermID         uint64
	Provider       []byte
	FractionBps    uint64
	StartedAt      uint64
	Active         bool
	Released       bool
	TotalPrincipal *big.Int
	TotalShares    *big.Int
	TotalClaimed   *big.Int
}

type storedYieldPosition struct {
	Member    []byte
	Principal *big.Int
	Shares    *big.Int
	Claimed   *big.Int
}

func (s *Store) GetTermYield(termID uint64) (*yield.TermYield, error) {
	var rec storedTermYield
	ok, err := s.get(yieldKey(termID), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &yield.TermYield{
		TermID:         rec.TermID,
		Provider:       addressFromBytes(rec.Provider),
		FractionBps:    rec.FractionBps,
		StartedAt:      int64(rec.StartedAt),
		Active:         rec.Active,
		Released:       rec.Released,
		TotalPrincipal: storedBig(rec.TotalPrincipal),
		TotalShares:    storedBig(rec.TotalShares),
		TotalClaimed:   storedBig(rec.TotalClaimed),
	}, nil
}

func (s *Store) PutTermYield(ty *yield.TermYield) error {
	rec := storedTermYield{
		TermID:         ty.TermID,
		Provider:       addressBytes(ty.Provider),
		FractionBps:    ty.FractionBps,
		StartedAt:      uint64(ty.StartedAt),
		Active:         ty.Active,
		Released:       ty.Released,
		TotalPrincipal: storedBig(ty.TotalPrincipal),
		TotalShares:    storedBig(ty.TotalShares),
		TotalClaimed:   storedBig(ty.TotalClaimed),
	}
	return s.put(yieldKey(ty.TermID), rec)
}

func (s *Store) GetYieldPosition(termID uint64, addr crypto.Address) (*yield.Position, error) {
	var rec storedYieldPosition
	ok, err := s.get(yieldPositionKey(termID, addr), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &yield.Position{
		Member:    addressFromBytes(rec.Member),
		Principal: storedBig(rec.Principal),
		Shares:    storedBig(rec.Shares),
		Claimed:   storedBig(rec.Claimed),
	}, nil
}

func (s *Store) PutYieldPosition(termID uint64, pos *yield.Position) error {
	rec := storedYieldPosition{
		Member:    addressBytes(pos.Member),
		Principal: storedBig(pos.Principal),
		Shares:    storedBig(pos.Shares),
		Claimed:   storedBig(pos.Claimed),
	}
	return s.put(yieldPositionKey(termID, pos.Member), rec)
}

// --- accounts ---

type storedAccount struct {
	BalanceRUSD *big.Int
	BalanceRNG  *big.Int
}

func (s *Store) GetAccount(addr crypto.Address) (*types.Account, error) {
	var rec storedAccount
	ok, err := s.get(accountKey(addr), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	return &types.Account{
		BalanceRUSD: storedBig(rec.BalanceRUSD),
		BalanceRNG:  storedBig(rec.BalanceRNG),
	}, nil
}

func (s *Store) PutAccount(addr crypto.Address, acc *types.Account) error {
	acc = acc.Normalize()
	return s.put(accountKey(addr), storedAccount{
		BalanceRUSD: acc.BalanceRUSD,
		BalanceRNG:  acc.BalanceRNG,
	})
}
