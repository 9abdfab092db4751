package types

import "math/big"

// Account holds the token balances tracked by the host ledger for a single
// address. RUSD is the stable unit of account used for contributions and
// payouts; RNG is the volatile unit backing collateral.
type Account struct {
	BalanceRUSD *big.Int
	BalanceRNG  *big.Int
}

// NewAccount returns an account with zeroed balances.
func NewAccount() *Account {
	return &Account{BalanceRUSD: big.NewInt(0), BalanceRNG: big.NewInt(0)}
}

// Normalize replaces nil balances with zero values so callers can do
// arithmetic without nil checks.
func (a *Account) Normalize() *Account {
	if a == nil {
		return NewAccount()
	}
	if a.BalanceRUSD == nil {
		a.BalanceRUSD = big.NewInt(0)
	}
	if a.BalanceRNG == nil {
		a.BalanceRNG = big.NewInt(0)
	}
	return a
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	clone := NewAccount()
	if a.BalanceRUSD != nil {
		clone.BalanceRUSD = new(big.Int).Set(a.BalanceRUSD)
	}
	if a.BalanceRNG != nil {
		clone.BalanceRNG = new(big.Int).Set(a.BalanceRNG)
	}
	return clone
}
