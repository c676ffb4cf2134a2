package lending

import "math/big"

var (
	basisPoints = big.NewInt(10_000)
	// wad is the 18-decimal fixed-point unit shared by indices, rates and
	// oracle prices.
	wad = mustBigInt("1000000000000000000")
)

const secondsPerYear = 31_536_000

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// wadMul multiplies two 18-decimal fixed-point values, truncating toward
// zero. Truncation, not rounding, keeps every operation's dust in the pool
// rather than letting it compound into insolvency.
func wadMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, wad)
}

// wadDiv divides two 18-decimal fixed-point values, truncating toward zero.
func wadDiv(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(a, wad)
	return numerator.Quo(numerator, b)
}

var pow10Table = map[uint8]*big.Int{
	6:  mustBigInt("1000000"),
	8:  mustBigInt("100000000"),
	18: mustBigInt("1000000000000000000"),
}

func pow10(decimals uint8) *big.Int {
	if cached, ok := pow10Table[decimals]; ok {
		return cached
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

func bigZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
