package collateral

import "math/big"

var basisPoints = big.NewInt(10_000)

// stableToVolatileCeil converts a stable amount into RNG at rate (RUSD per
// RNG), scaled by marginBps, rounding up so the converted amount always covers
// the stable obligation.
func stableToVolatileCeil(stable *big.Int, rate *big.Rat, marginBps uint64) *big.Int {
	if stable == nil || stable.Sign() <= 0 || rate == nil || rate.Sign() <= 0 {
		return big.NewInt(0)
	}
	// rng = ceil(stable * marginBps * rate.Denom / (10000 * rate.Num))
	num := new(big.Int).Mul(stable, new(big.Int).SetUint64(marginBps))
	num.Mul(num, rate.Denom())
	den := new(big.Int).Mul(basisPoints, rate.Num())
	out, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		out.Add(out, big.NewInt(1))
	}
	return out
}

// volatileValueFloor returns the stable value of an RNG amount at rate,
// rounding down so solvency checks never overstate collateral.
func volatileValueFloor(amount *big.Int, rate *big.Rat) *big.Int {
	if amount == nil || amount.Sign() <= 0 || rate == nil || rate.Sign() <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(amount, rate.Num())
	return num.Quo(num, rate.Denom())
}
