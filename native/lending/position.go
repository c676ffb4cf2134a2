package lending

import (
	"math/big"

	"crosslend/crypto"
	nativecommon "crosslend/native/common"
)

// liveBalance rebases a raw balance recorded at snapshotIndex onto
// currentIndex. An empty position (zero raw, zero snapshot) is defined as a
// zero live balance so no division ever happens for untouched accounts.
func liveBalance(raw, snapshotIndex, currentIndex *big.Int) *big.Int {
	if raw == nil || raw.Sign() == 0 {
		return big.NewInt(0)
	}
	if snapshotIndex == nil || snapshotIndex.Sign() == 0 {
		return big.NewInt(0)
	}
	live := new(big.Int).Mul(raw, bigZero(currentIndex))
	return live.Quo(live, snapshotIndex)
}

func (l *Ledger) loadOrCreatePosition(owner crypto.Address, assetID uint32) (*Position, error) {
	position, err := l.state.GetPosition(owner, assetID)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{Owner: owner, AssetID: assetID}
	}
	position.SuppliedRaw = bigZero(position.SuppliedRaw)
	position.SuppliedAtIndex = bigZero(position.SuppliedAtIndex)
	position.BorrowedRaw = bigZero(position.BorrowedRaw)
	position.BorrowedAtIndex = bigZero(position.BorrowedAtIndex)
	return position, nil
}

func (p *Position) liveSupply(asset *Asset) *big.Int {
	return liveBalance(p.SuppliedRaw, p.SuppliedAtIndex, asset.SupplyIndex)
}

func (p *Position) liveBorrow(asset *Asset) *big.Int {
	return liveBalance(p.BorrowedRaw, p.BorrowedAtIndex, asset.BorrowIndex)
}

// Supply deposits amount of the asset's underlying token into the pool and
// credits the supplier's interest-bearing balance.
func (l *Ledger) Supply(supplier crypto.Address, assetID uint32, amount *big.Int) error {
	if err := l.beginOp(); err != nil {
		return err
	}
	defer l.endOp()
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if supplier.IsZero() {
		return ErrInvalidAddress
	}

	asset, err := l.loadAsset(assetID)
	if err != nil {
		return err
	}
	if !asset.Active {
		return ErrInactiveAsset
	}
	fees, feesChanged, err := l.accrue(asset)
	if err != nil {
		return err
	}

	position, err := l.loadOrCreatePosition(supplier, assetID)
	if err != nil {
		return err
	}
	live := position.liveSupply(asset)

	pool, reward, err := l.settleSupplierReward(supplier, asset, live)
	if err != nil {
		return err
	}

	position.SuppliedRaw = new(big.Int).Add(live, amount)
	position.SuppliedAtIndex = cloneBig(asset.SupplyIndex)
	asset.TotalSupplied = new(big.Int).Add(asset.TotalSupplied, amount)

	if err := l.bank.TransferIn(asset.Underlying, supplier, amount); err != nil {
		return err
	}
	return l.persist(opEffects{
		asset:       asset,
		position:    position,
		pool:        pool,
		reward:      reward,
		fees:        fees,
		feesChanged: feesChanged,
	})
}

// Withdraw redeems amount of the supplier's live balance back to their
// account, provided the remaining portfolio stays healthy and the pool keeps
// enough un-borrowed liquidity.
func (l *Ledger) Withdraw(supplier crypto.Address, assetID uint32, amount *big.Int) error {
	if err := l.beginOp(); err != nil {
		return err
	}
	defer l.endOp()
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if supplier.IsZero() {
		return ErrInvalidAddress
	}

	asset, err := l.loadAsset(assetID)
	if err != nil {
		return err
	}
	if !asset.Active {
		return ErrInactiveAsset
	}
	fees, feesChanged, err := l.accrue(asset)
	if err != nil {
		return err
	}

	position, err := l.loadOrCreatePosition(supplier, assetID)
	if err != nil {
		return err
	}
	live := position.liveSupply(asset)
	if live.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	healthy, err := l.isHealthy(supplier, asset, amount, true)
	if err != nil {
		return err
	}
	if !healthy {
		return ErrUnhealthyOperation
	}

	remainingSupplied := new(big.Int).Sub(asset.TotalSupplied, amount)
	if remainingSupplied.Cmp(asset.TotalBorrowed) < 0 {
		return ErrInsufficientLiquidity
	}

	pool, reward, err := l.settleSupplierReward(supplier, asset, live)
	if err != nil {
		return err
	}

	position.SuppliedRaw = new(big.Int).Sub(live, amount)
	position.SuppliedAtIndex = cloneBig(asset.SupplyIndex)
	asset.TotalSupplied = remainingSupplied

	if err := l.bank.TransferOut(asset.Underlying, supplier, amount); err != nil {
		return err
	}
	return l.persist(opEffects{
		asset:       asset,
		position:    position,
		pool:        pool,
		reward:      reward,
		fees:        fees,
		feesChanged: feesChanged,
	})
}

// Borrow draws amount of the asset's underlying token against the caller's
// aggregate collateral.
func (l *Ledger) Borrow(borrower crypto.Address, assetID uint32, amount *big.Int) error {
	if err := l.beginOp(); err != nil {
		return err
	}
	defer l.endOp()
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if borrower.IsZero() {
		return ErrInvalidAddress
	}

	asset, err := l.loadAsset(assetID)
	if err != nil {
		return err
	}
	if !asset.Active {
		return ErrInactiveAsset
	}
	fees, feesChanged, err := l.accrue(asset)
	if err != nil {
		return err
	}

	available := new(big.Int).Sub(asset.TotalSupplied, asset.TotalBorrowed)
	if available.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}

	healthy, err := l.isHealthy(borrower, asset, amount, false)
	if err != nil {
		return err
	}
	if !healthy {
		return ErrUnhealthyOperation
	}

	position, err := l.loadOrCreatePosition(borrower, assetID)
	if err != nil {
		return err
	}
	live := position.liveBorrow(asset)

	position.BorrowedRaw = new(big.Int).Add(live, amount)
	position.BorrowedAtIndex = cloneBig(asset.BorrowIndex)
	asset.TotalBorrowed = new(big.Int).Add(asset.TotalBorrowed, amount)

	if err := l.bank.TransferOut(asset.Underlying, borrower, amount); err != nil {
		return err
	}
	return l.persist(opEffects{
		asset:       asset,
		position:    position,
		fees:        fees,
		feesChanged: feesChanged,
	})
}

// Repay settles up to amount of the borrower's live debt. Payment beyond the
// outstanding debt is truncated to the owed amount; the excess is never
// pulled in.
func (l *Ledger) Repay(borrower crypto.Address, assetID uint32, amount *big.Int) (*big.Int, error) {
	if err := l.beginOp(); err != nil {
		return nil, err
	}
	defer l.endOp()
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if borrower.IsZero() {
		return nil, ErrInvalidAddress
	}

	asset, err := l.loadAsset(assetID)
	if err != nil {
		return nil, err
	}
	if !asset.Active {
		return nil, ErrInactiveAsset
	}
	fees, feesChanged, err := l.accrue(asset)
	if err != nil {
		return nil, err
	}

	position, err := l.loadOrCreatePosition(borrower, assetID)
	if err != nil {
		return nil, err
	}
	live := position.liveBorrow(asset)
	if live.Sign() == 0 {
		return nil, ErrNoOutstandingDebt
	}
	repayAmount := new(big.Int).Set(amount)
	if repayAmount.Cmp(live) > 0 {
		repayAmount.Set(live)
	}

	if err := l.bank.TransferIn(asset.Underlying, borrower, repayAmount); err != nil {
		return nil, err
	}

	position.BorrowedRaw = new(big.Int).Sub(live, repayAmount)
	position.BorrowedAtIndex = cloneBig(asset.BorrowIndex)
	asset.TotalBorrowed = new(big.Int).Sub(asset.TotalBorrowed, repayAmount)
	if asset.TotalBorrowed.Sign() < 0 {
		asset.TotalBorrowed = big.NewInt(0)
	}

	if err := l.persist(opEffects{
		asset:       asset,
		position:    position,
		fees:        fees,
		feesChanged: feesChanged,
	}); err != nil {
		return nil, err
	}
	return repayAmount, nil
}

// opEffects collects the records touched by one operation so they land in a
// single persist pass after all collaborator calls succeeded.
type opEffects struct {
	asset       *Asset
	extraAsset  *Asset
	position    *Position
	extraPos    *Position
	pool        *RewardPool
	reward      *UserReward
	fees        *FeeAccrual
	feesChanged bool
	extraFees   *FeeAccrual
}

func (l *Ledger) persist(effects opEffects) error {
	if effects.asset != nil {
		if err := l.state.PutAsset(effects.asset); err != nil {
			return err
		}
	}
	if effects.extraAsset != nil {
		if err := l.state.PutAsset(effects.extraAsset); err != nil {
			return err
		}
	}
	if effects.position != nil {
		if err := l.state.PutPosition(effects.position); err != nil {
			return err
		}
	}
	if effects.extraPos != nil {
		if err := l.state.PutPosition(effects.extraPos); err != nil {
			return err
		}
	}
	if effects.pool != nil {
		if err := l.state.PutRewardPool(effects.pool); err != nil {
			return err
		}
	}
	if effects.reward != nil {
		if err := l.state.PutUserReward(effects.reward); err != nil {
			return err
		}
	}
	if effects.feesChanged && effects.fees != nil {
		if err := l.state.PutFeeAccrual(effects.fees); err != nil {
			return err
		}
	}
	if effects.extraFees != nil {
		if err := l.state.PutFeeAccrual(effects.extraFees); err != nil {
			return err
		}
	}
	return nil
}
