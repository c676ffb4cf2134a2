package lending

import (
	"math/big"

	"crosslend/crypto"
	nativecommon "crosslend/native/common"
)

// Liquidate lets a third party repay part of an under-collateralized
// borrower's debt in exchange for a bonus-adjusted slice of their
// collateral. The caller's repay amount is clamped to the outstanding live
// debt; the seizure is rejected outright (no partial seizure) when the
// borrower's live collateral cannot cover it. Seized collateral is split
// 90/10 between the caller and the team address.
//
// The repaid debt and seized collateral amounts are returned.
func (l *Ledger) Liquidate(caller, borrower crypto.Address, debtAssetID, collateralAssetID uint32, amount *big.Int) (*big.Int, *big.Int, error) {
	if err := l.beginOp(); err != nil {
		return nil, nil, err
	}
	defer l.endOp()
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if caller.IsZero() || borrower.IsZero() {
		return nil, nil, ErrInvalidAddress
	}
	if debtAssetID == collateralAssetID {
		return nil, nil, ErrInvalidConfig
	}

	params, err := l.loadParams()
	if err != nil {
		return nil, nil, err
	}
	if params.TeamAddress.IsZero() {
		return nil, nil, ErrTeamAddressUnset
	}

	debtAsset, err := l.loadAsset(debtAssetID)
	if err != nil {
		return nil, nil, err
	}
	collateralAsset, err := l.loadAsset(collateralAssetID)
	if err != nil {
		return nil, nil, err
	}
	if !debtAsset.Active || !collateralAsset.Active {
		return nil, nil, ErrInactiveAsset
	}

	debtFees, debtFeesChanged, err := l.accrue(debtAsset)
	if err != nil {
		return nil, nil, err
	}
	collateralFees, collateralFeesChanged, err := l.accrue(collateralAsset)
	if err != nil {
		return nil, nil, err
	}

	overrides := map[uint32]*Asset{debtAsset.ID: debtAsset, collateralAsset.ID: collateralAsset}
	eligible, err := l.isLiquidatable(borrower, overrides)
	if err != nil {
		return nil, nil, err
	}
	if !eligible {
		return nil, nil, ErrNotLiquidatable
	}

	debtPosition, err := l.loadOrCreatePosition(borrower, debtAssetID)
	if err != nil {
		return nil, nil, err
	}
	liveDebt := debtPosition.liveBorrow(debtAsset)
	if liveDebt.Sign() == 0 {
		return nil, nil, ErrNotLiquidatable
	}
	repayAmount := new(big.Int).Set(amount)
	if repayAmount.Cmp(liveDebt) > 0 {
		repayAmount.Set(liveDebt)
	}

	debtPrice, err := l.oracle.GetPrice(debtAsset.PriceSource)
	if err != nil {
		return nil, nil, err
	}
	collateralPrice, err := l.oracle.GetPrice(collateralAsset.PriceSource)
	if err != nil {
		return nil, nil, err
	}
	if collateralPrice.Sign() == 0 {
		return nil, nil, ErrInvalidConfig
	}

	// Repaid value in USD-equivalent terms, marked up by the liquidation
	// bonus, then converted into collateral raw units.
	repayValue := new(big.Int).Mul(repayAmount, debtPrice)
	repayValue.Quo(repayValue, pow10(debtAsset.Decimals))
	seizeValue := new(big.Int).Mul(repayValue, big.NewInt(10_000+liquidationBonusBps))
	seizeValue.Quo(seizeValue, basisPoints)
	seizeAmount := new(big.Int).Mul(seizeValue, pow10(collateralAsset.Decimals))
	seizeAmount.Quo(seizeAmount, collateralPrice)

	collateralPosition, err := l.loadOrCreatePosition(borrower, collateralAssetID)
	if err != nil {
		return nil, nil, err
	}
	liveCollateral := collateralPosition.liveSupply(collateralAsset)
	if liveCollateral.Cmp(seizeAmount) < 0 {
		return nil, nil, ErrInsufficientCollateral
	}
	remainingSupplied := new(big.Int).Sub(collateralAsset.TotalSupplied, seizeAmount)
	if remainingSupplied.Cmp(collateralAsset.TotalBorrowed) < 0 {
		return nil, nil, ErrInsufficientLiquidity
	}

	pool, reward, err := l.settleSupplierReward(borrower, collateralAsset, liveCollateral)
	if err != nil {
		return nil, nil, err
	}

	callerShare := new(big.Int).Mul(seizeAmount, big.NewInt(liquidatorShareBps))
	callerShare.Quo(callerShare, basisPoints)
	teamShare := new(big.Int).Sub(seizeAmount, callerShare)

	if err := l.bank.TransferIn(debtAsset.Underlying, caller, repayAmount); err != nil {
		return nil, nil, err
	}
	if callerShare.Sign() > 0 {
		if err := l.bank.TransferOut(collateralAsset.Underlying, caller, callerShare); err != nil {
			l.unwindSeizure(caller, debtAsset.Underlying, repayAmount, collateralAsset.Underlying, nil)
			return nil, nil, err
		}
	}
	if teamShare.Sign() > 0 {
		if err := l.bank.TransferOut(collateralAsset.Underlying, params.TeamAddress, teamShare); err != nil {
			l.unwindSeizure(caller, debtAsset.Underlying, repayAmount, collateralAsset.Underlying, callerShare)
			return nil, nil, err
		}
	}

	debtPosition.BorrowedRaw = new(big.Int).Sub(liveDebt, repayAmount)
	debtPosition.BorrowedAtIndex = cloneBig(debtAsset.BorrowIndex)
	debtAsset.TotalBorrowed = new(big.Int).Sub(debtAsset.TotalBorrowed, repayAmount)
	if debtAsset.TotalBorrowed.Sign() < 0 {
		debtAsset.TotalBorrowed = big.NewInt(0)
	}

	collateralPosition.SuppliedRaw = new(big.Int).Sub(liveCollateral, seizeAmount)
	collateralPosition.SuppliedAtIndex = cloneBig(collateralAsset.SupplyIndex)
	collateralAsset.TotalSupplied = remainingSupplied

	effects := opEffects{
		asset:       debtAsset,
		extraAsset:  collateralAsset,
		position:    debtPosition,
		extraPos:    collateralPosition,
		pool:        pool,
		reward:      reward,
		fees:        debtFees,
		feesChanged: debtFeesChanged,
	}
	if collateralFeesChanged {
		effects.extraFees = collateralFees
	}
	if err := l.persist(effects); err != nil {
		return nil, nil, err
	}
	return repayAmount, seizeAmount, nil
}

// unwindSeizure compensates an aborted settlement. Collateral already paid
// out to the caller is pulled back and the repayment is returned, so any
// abort leaves the bank where the operation found it. Best effort: a
// compensation the transfer collaborator rejects in turn leaves
// reconciliation to its own accounting.
func (l *Ledger) unwindSeizure(caller crypto.Address, debtToken crypto.Address, repayAmount *big.Int, collateralToken crypto.Address, paidCollateral *big.Int) {
	if paidCollateral != nil && paidCollateral.Sign() > 0 {
		_ = l.bank.TransferIn(collateralToken, caller, paidCollateral)
	}
	_ = l.bank.TransferOut(debtToken, caller, repayAmount)
}
