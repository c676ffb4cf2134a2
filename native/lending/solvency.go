package lending

import (
	"math/big"

	"crosslend/crypto"
)

// hypothetical describes the balance change a health check must assume
// before valuing the changed asset: the delta is subtracted from supply when
// withdrawing, or added to debt when borrowing.
type hypothetical struct {
	assetID    uint32
	delta      *big.Int
	isWithdraw bool
}

// portfolio aggregates a user's collateral and debt values in 18-decimal
// USD-equivalent terms across every registered asset. One oracle quote is
// fetched per active asset, so the cost is linear in the registry size; the
// registration cap bounds the worst case.
//
// When weighted is true the collateral side is scaled by each asset's
// max-LTV fraction (the borrowing-power view); when false the raw value is
// used (the liquidation view). The overrides map substitutes freshly accrued
// in-memory copies for assets the running operation already touched.
//
// Inactive assets are skipped entirely: balances stranded in a deactivated
// asset count toward neither side. This mirrors the reference behavior and
// is deliberately left uncorrected (see DESIGN.md).
func (l *Ledger) portfolio(owner crypto.Address, overrides map[uint32]*Asset, weighted bool, hypo *hypothetical) (*big.Int, *big.Int, error) {
	count, err := l.state.AssetCount()
	if err != nil {
		return nil, nil, err
	}
	collateralValue := big.NewInt(0)
	debtValue := big.NewInt(0)

	for id := uint32(0); id < count; id++ {
		asset := overrides[id]
		if asset == nil {
			asset, err = l.loadAsset(id)
			if err != nil {
				return nil, nil, err
			}
		}
		if !asset.Active {
			continue
		}
		position, err := l.state.GetPosition(owner, id)
		if err != nil {
			return nil, nil, err
		}
		supply := big.NewInt(0)
		borrow := big.NewInt(0)
		if position != nil {
			supply = position.liveSupply(asset)
			borrow = position.liveBorrow(asset)
		}
		if hypo != nil && hypo.assetID == id {
			if hypo.isWithdraw {
				supply = new(big.Int).Sub(supply, hypo.delta)
				if supply.Sign() < 0 {
					supply.SetInt64(0)
				}
			} else {
				borrow = new(big.Int).Add(borrow, hypo.delta)
			}
		}
		if supply.Sign() == 0 && borrow.Sign() == 0 {
			continue
		}

		price, err := l.oracle.GetPrice(asset.PriceSource)
		if err != nil {
			return nil, nil, err
		}
		scale := pow10(asset.Decimals)

		if supply.Sign() > 0 {
			value := new(big.Int).Mul(supply, price)
			if weighted {
				value.Mul(value, new(big.Int).SetUint64(asset.MaxLTVBps))
				value.Quo(value, new(big.Int).Mul(basisPoints, scale))
			} else {
				value.Quo(value, scale)
			}
			collateralValue.Add(collateralValue, value)
		}
		if borrow.Sign() > 0 {
			value := new(big.Int).Mul(borrow, price)
			value.Quo(value, scale)
			debtValue.Add(debtValue, value)
		}
	}
	return collateralValue, debtValue, nil
}

// isHealthy evaluates the LTV-weighted health of the owner's portfolio with
// the hypothetical post-operation balances applied to the changed asset.
// The operation is rejected (not rolled back) when the check fails.
func (l *Ledger) isHealthy(owner crypto.Address, changed *Asset, delta *big.Int, isWithdraw bool) (bool, error) {
	overrides := map[uint32]*Asset{changed.ID: changed}
	hypo := &hypothetical{assetID: changed.ID, delta: delta, isWithdraw: isWithdraw}
	collateralValue, debtValue, err := l.portfolio(owner, overrides, true, hypo)
	if err != nil {
		return false, err
	}
	return collateralValue.Cmp(debtValue) >= 0, nil
}

// isLiquidatable reports whether the owner's debt value, scaled by the
// global liquidation threshold, exceeds their unweighted collateral value:
// liquidatable iff debtValue * 10000 > collateralValue * threshold.
func (l *Ledger) isLiquidatable(owner crypto.Address, overrides map[uint32]*Asset) (bool, error) {
	collateralValue, debtValue, err := l.portfolio(owner, overrides, false, nil)
	if err != nil {
		return false, err
	}
	if debtValue.Sign() == 0 {
		return false, nil
	}
	params, err := l.loadParams()
	if err != nil {
		return false, err
	}
	lhs := new(big.Int).Mul(debtValue, basisPoints)
	rhs := new(big.Int).Mul(collateralValue, new(big.Int).SetUint64(params.LiquidationThresholdBps))
	return lhs.Cmp(rhs) > 0, nil
}
