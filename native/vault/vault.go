package vault

import (
	"errors"
	"math/big"
	"sync"

	"ringfund/crypto"
)

var (
	errInvalidAmount     = errors.New("vault: amount must be positive")
	errInsufficientShare = errors.New("vault: insufficient share balance")
)

// Vault models the external yield venue. Shares issued on deposit are the
// source of truth for redeemable value; the engine never assumes a fixed
// exchange rate.
type Vault interface {
	// Deposit forwards assets on behalf of ref and returns the shares issued.
	Deposit(ref crypto.Address, amount *big.Int) (*big.Int, error)
	// Withdraw burns shares held by ref and returns the assets released.
	Withdraw(ref crypto.Address, shares *big.Int) (*big.Int, error)
	// BalanceOf reports the share balance held by ref.
	BalanceOf(ref crypto.Address) (*big.Int, error)
	// ConvertToAssets quotes the current redeemable value of shares.
	ConvertToAssets(shares *big.Int) (*big.Int, error)
	// ConvertToShares quotes the shares required to redeem assets, rounding
	// up so a withdrawal never under-delivers.
	ConvertToShares(assets *big.Int) (*big.Int, error)
}

// SimVault is a deterministic in-process vault used in tests and local
// deployments. The price per share is a rational the test fixture moves to
// simulate gains and losses.
type SimVault struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	// price per share as num/denom, assets = shares * num / denom
	priceNum   *big.Int
	priceDenom *big.Int
}

func NewSimVault() *SimVault {
	return &SimVault{
		balances:   make(map[string]*big.Int),
		priceNum:   big.NewInt(1),
		priceDenom: big.NewInt(1),
	}
}

// SetPricePerShare moves the vault's exchange rate. num/denom must be
// positive.
func (v *SimVault) SetPricePerShare(num, denom int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if num <= 0 || denom <= 0 {
		return
	}
	v.priceNum = big.NewInt(num)
	v.priceDenom = big.NewInt(denom)
}

func (v *SimVault) Deposit(ref crypto.Address, amount *big.Int) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	shares := v.toShares(amount)
	key := string(ref.Bytes())
	current := v.balances[key]
	if current == nil {
		current = big.NewInt(0)
	}
	v.balances[key] = new(big.Int).Add(current, shares)
	return shares, nil
}

func (v *SimVault) Withdraw(ref crypto.Address, shares *big.Int) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if shares == nil || shares.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	key := string(ref.Bytes())
	current := v.balances[key]
	if current == nil || current.Cmp(shares) < 0 {
		return nil, errInsufficientShare
	}
	v.balances[key] = new(big.Int).Sub(current, shares)
	return v.toAssets(shares), nil
}

func (v *SimVault) BalanceOf(ref crypto.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	current := v.balances[string(ref.Bytes())]
	if current == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(current), nil
}

func (v *SimVault) ConvertToAssets(shares *big.Int) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if shares == nil || shares.Sign() < 0 {
		return nil, errInvalidAmount
	}
	return v.toAssets(shares), nil
}

func (v *SimVault) ConvertToShares(assets *big.Int) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if assets == nil || assets.Sign() < 0 {
		return nil, errInvalidAmount
	}
	return v.toShares(assets), nil
}

// assets = shares * num / denom, floor
func (v *SimVault) toAssets(shares *big.Int) *big.Int {
	out := new(big.Int).Mul(shares, v.priceNum)
	return out.Quo(out, v.priceDenom)
}

// shares = ceil(assets * denom / num) so redeeming them covers the assets
func (v *SimVault) toShares(assets *big.Int) *big.Int {
	num := new(big.Int).Mul(assets, v.priceDenom)
	rem := new(big.Int)
	out, rem := new(big.Int).QuoRem(num, v.priceNum, rem)
	if rem.Sign() != 0 {
		out.Add(out, big.NewInt(1))
	}
	return out
}
