package lending

import "math/big"

// InterestModel encapsulates the kinked borrow-rate curve. All parameters are
// 18-decimal fixed-point annualized fractions.
type InterestModel struct {
	// BaseRate is the minimum borrow rate applied at zero utilization.
	BaseRate *big.Int
	// Slope1 is the borrow rate increase per unit of utilization below the
	// kink. With the default kink at 80%, a slope of 0.10 adds up to 8%/year
	// at the kink.
	Slope1 *big.Int
	// Slope2 is applied to the excess utilization fraction above the kink.
	// With the default kink at 80%, a slope of 5.0 adds up to 100%/year at
	// full utilization.
	Slope2 *big.Int
	// Kink is the utilization ratio where the slope steepens.
	Kink *big.Int
}

// Clone returns a deep copy of the interest model.
func (m *InterestModel) Clone() *InterestModel {
	if m == nil {
		return nil
	}
	return &InterestModel{
		BaseRate: cloneBig(m.BaseRate),
		Slope1:   cloneBig(m.Slope1),
		Slope2:   cloneBig(m.Slope2),
		Kink:     cloneBig(m.Kink),
	}
}

// Utilization computes U = totalBorrowed * 1e18 / totalSupplied. When no
// liquidity exists the utilization is defined as zero.
func (m *InterestModel) Utilization(totalBorrowed, totalSupplied *big.Int) *big.Int {
	if totalBorrowed == nil || totalBorrowed.Sign() == 0 {
		return big.NewInt(0)
	}
	if totalSupplied == nil || totalSupplied.Sign() == 0 {
		return big.NewInt(0)
	}
	return wadDiv(totalBorrowed, totalSupplied)
}

// BorrowRate derives the annualized borrow rate for the given utilization.
func (m *InterestModel) BorrowRate(utilization *big.Int) *big.Int {
	if m == nil {
		return big.NewInt(0)
	}
	rate := new(big.Int).Set(bigZero(m.BaseRate))
	util := bigZero(utilization)
	if util.Sign() == 0 {
		return rate
	}

	kink := bigZero(m.Kink)
	if kink.Sign() == 0 || util.Cmp(kink) <= 0 {
		// Linear region before the kink.
		return rate.Add(rate, wadMul(bigZero(m.Slope1), util))
	}

	// Rate at the kink using slope1, then the excess fraction at slope2.
	rate.Add(rate, wadMul(bigZero(m.Slope1), kink))
	excess := new(big.Int).Sub(util, kink)
	return rate.Add(rate, wadMul(bigZero(m.Slope2), excess))
}

// SupplyRate derives the annualized supply rate from the borrow rate, the
// utilization, and the protocol fee share in basis points.
func (m *InterestModel) SupplyRate(borrowRate, utilization *big.Int, protocolFeeBps uint64) *big.Int {
	if borrowRate == nil || borrowRate.Sign() == 0 {
		return big.NewInt(0)
	}
	if utilization == nil || utilization.Sign() == 0 {
		return big.NewInt(0)
	}
	feeBps := protocolFeeBps
	if feeBps > 10_000 {
		feeBps = 10_000
	}
	rate := wadMul(borrowRate, utilization)
	rate.Mul(rate, new(big.Int).SetUint64(10_000-feeBps))
	return rate.Quo(rate, basisPoints)
}

// DefaultInterestModel carries the reference curve: 2%/year base, 8%/year
// added linearly up to the 80% kink, and a further 100%/year added on the
// excess utilization fraction above it.
func DefaultInterestModel() *InterestModel {
	return &InterestModel{
		BaseRate: mustBigInt("20000000000000000"),   // 0.02
		Slope1:   mustBigInt("100000000000000000"),  // 0.10
		Slope2:   mustBigInt("5000000000000000000"), // 5.00
		Kink:     mustBigInt("800000000000000000"),  // 0.80
	}
}
