package lending

import (
	"math/big"
	"strings"

	"crosslend/crypto"
)

// PositionView reports a user's balances rebased onto the indices the asset
// would carry if accrual ran at query time. Views never persist the accrual;
// the next mutating operation recomputes it from the stored snapshot.
type PositionView struct {
	Owner       crypto.Address `json:"owner"`
	AssetID     uint32         `json:"assetId"`
	Supplied    *big.Int       `json:"supplied"`
	Borrowed    *big.Int       `json:"borrowed"`
	SupplyIndex *big.Int       `json:"supplyIndex"`
	BorrowIndex *big.Int       `json:"borrowIndex"`
}

// RewardView reports a user's reward standing including the share of the
// stream that has not been settled into their accrued balance yet.
type RewardView struct {
	Owner       crypto.Address `json:"owner"`
	AssetID     uint32         `json:"assetId"`
	RewardToken crypto.Address `json:"rewardToken"`
	Earned      *big.Int       `json:"earned"`
	RatePerDay  *big.Int       `json:"ratePerDay"`
	PeriodEnd   int64          `json:"periodEnd"`
}

// GetAsset returns the stored asset record with accrual projected forward to
// the current time.
func (l *Ledger) GetAsset(assetID uint32) (*Asset, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	asset, err := l.loadAsset(assetID)
	if err != nil {
		return nil, err
	}
	if _, _, err := l.accrue(asset); err != nil {
		return nil, err
	}
	return asset, nil
}

// ListAssets returns every registered asset in id order, accrual projected.
func (l *Ledger) ListAssets() ([]*Asset, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	count, err := l.state.AssetCount()
	if err != nil {
		return nil, err
	}
	assets := make([]*Asset, 0, count)
	for id := uint32(0); id < count; id++ {
		asset, err := l.GetAsset(id)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

// GetUserPosition reports the owner's live balances for one asset.
func (l *Ledger) GetUserPosition(owner crypto.Address, assetID uint32) (*PositionView, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	if owner.IsZero() {
		return nil, ErrInvalidAddress
	}
	asset, err := l.GetAsset(assetID)
	if err != nil {
		return nil, err
	}
	position, err := l.loadOrCreatePosition(owner, assetID)
	if err != nil {
		return nil, err
	}
	return &PositionView{
		Owner:       owner,
		AssetID:     assetID,
		Supplied:    position.liveSupply(asset),
		Borrowed:    position.liveBorrow(asset),
		SupplyIndex: cloneBig(asset.SupplyIndex),
		BorrowIndex: cloneBig(asset.BorrowIndex),
	}, nil
}

// GetUtilization reports borrowed/supplied in 1e18 fixed point.
func (l *Ledger) GetUtilization(assetID uint32) (*big.Int, error) {
	asset, err := l.GetAsset(assetID)
	if err != nil {
		return nil, err
	}
	return l.model.Utilization(asset.TotalBorrowed, asset.TotalSupplied), nil
}

// GetBorrowRate reports the annualized borrow rate at current utilization.
func (l *Ledger) GetBorrowRate(assetID uint32) (*big.Int, error) {
	utilization, err := l.GetUtilization(assetID)
	if err != nil {
		return nil, err
	}
	return l.model.BorrowRate(utilization), nil
}

// GetSupplyRate reports the annualized supply rate at current utilization,
// net of the protocol fee.
func (l *Ledger) GetSupplyRate(assetID uint32) (*big.Int, error) {
	utilization, err := l.GetUtilization(assetID)
	if err != nil {
		return nil, err
	}
	borrowRate := l.model.BorrowRate(utilization)
	return l.model.SupplyRate(borrowRate, utilization, protocolFeeBps), nil
}

// CheckLiquidatable reports whether the owner's portfolio crossed the
// liquidation threshold.
func (l *Ledger) CheckLiquidatable(owner crypto.Address) (bool, error) {
	if l == nil || l.state == nil {
		return false, errNilState
	}
	if owner.IsZero() {
		return false, ErrInvalidAddress
	}
	return l.isLiquidatable(owner, nil)
}

// HealthFactor renders weighted-collateral/debt as a decimal string with up
// to 18 fractional digits. A portfolio with no debt reports "inf".
func (l *Ledger) HealthFactor(owner crypto.Address) (string, error) {
	if l == nil || l.state == nil {
		return "", errNilState
	}
	if owner.IsZero() {
		return "", ErrInvalidAddress
	}
	collateralValue, debtValue, err := l.portfolio(owner, nil, true, nil)
	if err != nil {
		return "", err
	}
	if debtValue.Sign() == 0 {
		return "inf", nil
	}
	ratio := new(big.Rat).SetFrac(collateralValue, debtValue)
	rendered := ratio.FloatString(18)
	rendered = strings.TrimRight(rendered, "0")
	rendered = strings.TrimSuffix(rendered, ".")
	return rendered, nil
}

// GetRewardPool returns the pool record with streaming projected forward.
func (l *Ledger) GetRewardPool(assetID uint32) (*RewardPool, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	asset, err := l.GetAsset(assetID)
	if err != nil {
		return nil, err
	}
	pool, err := l.loadRewardPool(assetID)
	if err != nil {
		return nil, err
	}
	l.advanceRewardPool(pool, asset.TotalSupplied)
	return pool, nil
}

// GetUserReward reports the owner's claimable reward balance for one asset,
// including the stream accrued since their last settlement.
func (l *Ledger) GetUserReward(owner crypto.Address, assetID uint32) (*RewardView, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	if owner.IsZero() {
		return nil, ErrInvalidAddress
	}
	asset, err := l.GetAsset(assetID)
	if err != nil {
		return nil, err
	}
	pool, err := l.loadRewardPool(assetID)
	if err != nil {
		return nil, err
	}
	position, err := l.loadOrCreatePosition(owner, assetID)
	if err != nil {
		return nil, err
	}
	live := position.liveSupply(asset)
	pool, reward, err := l.settleAgainstPool(owner, pool, asset.TotalSupplied, live)
	if err != nil {
		return nil, err
	}
	return &RewardView{
		Owner:       owner,
		AssetID:     assetID,
		RewardToken: pool.RewardToken,
		Earned:      cloneBig(reward.Accrued),
		RatePerDay:  cloneBig(pool.RatePerDay),
		PeriodEnd:   pool.PeriodEnd,
	}, nil
}

// GetProtocolFees reports the unclaimed fee balance for an underlying token.
func (l *Ledger) GetProtocolFees(underlying crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	if underlying.IsZero() {
		return nil, ErrInvalidAddress
	}
	fees, err := l.loadFeeAccrual(underlying)
	if err != nil {
		return nil, err
	}
	return cloneBig(fees.Accrued), nil
}
