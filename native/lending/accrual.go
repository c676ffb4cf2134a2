package lending

import "math/big"

// accrue advances the asset's compound indices and the protocol fee accrual
// for the elapsed wall-clock time. Mutations happen on the in-memory asset;
// the caller persists at the end of the operation so a later failure leaves
// no partial index update visible.
//
// The per-period multiplier is 1e18 + rate*elapsed/secondsPerYear applied
// once per call (simple-rate compounding). Calling accrue more often than
// rarely therefore yields a slightly different accumulated total; that
// quantization is a load-bearing property of the protocol's economics and
// must not be "fixed" to continuous compounding.
func (l *Ledger) accrue(asset *Asset) (*FeeAccrual, bool, error) {
	if asset == nil {
		return nil, false, ErrAssetNotFound
	}
	normalizeAsset(asset)

	now := l.now()
	if now <= asset.LastAccrualTime {
		return nil, false, nil
	}
	elapsed := now - asset.LastAccrualTime
	asset.LastAccrualTime = now

	if asset.TotalBorrowed.Sign() == 0 {
		return nil, false, nil
	}

	utilization := l.model.Utilization(asset.TotalBorrowed, asset.TotalSupplied)
	borrowRate := l.model.BorrowRate(utilization)
	if borrowRate.Sign() == 0 {
		return nil, false, nil
	}
	supplyRate := l.model.SupplyRate(borrowRate, utilization, protocolFeeBps)

	asset.BorrowIndex = wadMul(asset.BorrowIndex, rateFactor(borrowRate, elapsed))
	asset.SupplyIndex = wadMul(asset.SupplyIndex, rateFactor(supplyRate, elapsed))

	// Borrow interest inflates both aggregates so totalBorrowed never
	// overtakes totalSupplied and interest-inclusive withdrawals stay
	// covered by the supplied total.
	interest := computeInterest(asset.TotalBorrowed, borrowRate, elapsed)
	if interest.Sign() == 0 {
		return nil, false, nil
	}
	asset.TotalBorrowed = new(big.Int).Add(asset.TotalBorrowed, interest)
	asset.TotalSupplied = new(big.Int).Add(asset.TotalSupplied, interest)

	feeShare := new(big.Int).Mul(interest, big.NewInt(protocolFeeBps))
	feeShare.Quo(feeShare, basisPoints)
	if feeShare.Sign() == 0 {
		return nil, false, nil
	}
	fees, err := l.loadFeeAccrual(asset.Underlying)
	if err != nil {
		return nil, false, err
	}
	fees.Accrued = new(big.Int).Add(fees.Accrued, feeShare)
	return fees, true, nil
}

// rateFactor converts an annualized rate into the per-period index
// multiplier 1e18 + rate*elapsed/secondsPerYear.
func rateFactor(rate *big.Int, elapsedSeconds int64) *big.Int {
	if rate == nil || rate.Sign() == 0 || elapsedSeconds <= 0 {
		return cloneBig(wad)
	}
	scaled := new(big.Int).Mul(rate, big.NewInt(elapsedSeconds))
	scaled.Quo(scaled, big.NewInt(secondsPerYear))
	return scaled.Add(scaled, wad)
}

// computeInterest derives the raw-unit borrow interest generated over the
// elapsed period.
func computeInterest(totalBorrowed, rate *big.Int, elapsedSeconds int64) *big.Int {
	if totalBorrowed == nil || totalBorrowed.Sign() == 0 || rate == nil || rate.Sign() == 0 || elapsedSeconds <= 0 {
		return big.NewInt(0)
	}
	interest := new(big.Int).Mul(totalBorrowed, rate)
	interest.Mul(interest, big.NewInt(elapsedSeconds))
	interest.Quo(interest, big.NewInt(secondsPerYear))
	return interest.Quo(interest, wad)
}
