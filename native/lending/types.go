package lending

import (
	"math/big"

	"crosslend/crypto"
)

// Asset captures the per-instrument configuration and aggregate accounting
// state. Amounts are raw token units expressed as big integers; indices are
// 18-decimal fixed-point multipliers.
type Asset struct {
	// ID is the dense identifier assigned at registration.
	ID uint32
	// Underlying identifies the token handled by the transfer collaborator.
	Underlying crypto.Address
	// PriceSource identifies the oracle feed quoting the asset.
	PriceSource crypto.Address
	// Decimals is the token precision captured once at registration.
	Decimals uint8
	// MaxLTVBps is the fraction of collateral value counted as borrowing
	// power, in basis points.
	MaxLTVBps uint64
	// TotalSupplied is the aggregate raw-unit liquidity deposited by lenders.
	TotalSupplied *big.Int
	// TotalBorrowed tracks the outstanding raw-unit debt across all accounts.
	TotalBorrowed *big.Int
	// SupplyIndex is the cumulative interest index applied to supplier
	// balances.
	SupplyIndex *big.Int
	// BorrowIndex is the cumulative interest index applied to borrower debt.
	BorrowIndex *big.Int
	// LastAccrualTime records the unix time when the indices were last
	// refreshed.
	LastAccrualTime int64
	// Active reports whether the asset accepts new operations.
	Active bool
}

// Position maintains one user's balances in a single asset. Raw balances are
// recorded at the index value current when the position was last touched.
type Position struct {
	Owner   crypto.Address
	AssetID uint32
	// SuppliedRaw and SuppliedAtIndex together determine the live supply
	// balance: raw * currentIndex / snapshotIndex.
	SuppliedRaw     *big.Int
	SuppliedAtIndex *big.Int
	BorrowedRaw     *big.Int
	BorrowedAtIndex *big.Int
}

// RewardPool streams a linear reward emission to suppliers of one asset.
type RewardPool struct {
	AssetID uint32
	// RewardToken identifies the token paid out by the pool.
	RewardToken crypto.Address
	// RatePerDay is the raw reward amount emitted per day of elapsed time.
	RatePerDay *big.Int
	// PeriodEnd is the unix time when emission stops.
	PeriodEnd int64
	// AccPerSupplyUnit is the 18-decimal accumulator of reward per raw
	// supplied unit. It never decreases.
	AccPerSupplyUnit *big.Int
	// LastUpdateTime records when the accumulator was last advanced.
	LastUpdateTime int64
	// TotalDistributed sums every reward unit streamed into the accumulator.
	TotalDistributed *big.Int
}

// UserReward tracks one user's claim state against an asset's reward pool.
type UserReward struct {
	Owner   crypto.Address
	AssetID uint32
	// PaidPerSupplyUnit snapshots the pool accumulator at last settlement.
	PaidPerSupplyUnit *big.Int
	// Accrued is the settled, claimable reward balance.
	Accrued *big.Int
}

// FeeAccrual accumulates protocol fees per underlying token.
type FeeAccrual struct {
	Underlying crypto.Address
	Accrued    *big.Int
}

// Params groups the globally tunable risk settings.
type Params struct {
	// LiquidationThresholdBps scales debt value when testing liquidation
	// eligibility. Admin-tunable within [5000, 9500].
	LiquidationThresholdBps uint64
	// TeamAddress receives the team share of seized collateral and is the
	// only identity allowed to claim protocol fees.
	TeamAddress crypto.Address
}

// State is the persistence boundary for the ledger. Getters return nil (not
// an error) when a record does not exist.
type State interface {
	AssetCount() (uint32, error)
	GetAsset(id uint32) (*Asset, error)
	PutAsset(asset *Asset) error

	GetPosition(owner crypto.Address, assetID uint32) (*Position, error)
	PutPosition(position *Position) error

	GetRewardPool(assetID uint32) (*RewardPool, error)
	PutRewardPool(pool *RewardPool) error

	GetUserReward(owner crypto.Address, assetID uint32) (*UserReward, error)
	PutUserReward(reward *UserReward) error

	GetFeeAccrual(underlying crypto.Address) (*FeeAccrual, error)
	PutFeeAccrual(fees *FeeAccrual) error

	GetParams() (*Params, error)
	PutParams(params *Params) error
}

// PriceOracle quotes a spot exchange rate for a price source as an 18-decimal
// fixed-point value. No staleness or deviation guarantee is provided; callers
// must not assume freshness.
type PriceOracle interface {
	GetPrice(source crypto.Address) (*big.Int, error)
}

// AssetTransfer moves tokens between accounts and the ledger. Implementations
// must fail loudly rather than silently short-transfer; a returned error
// aborts the surrounding operation.
type AssetTransfer interface {
	TransferIn(token crypto.Address, from crypto.Address, amount *big.Int) error
	TransferOut(token crypto.Address, to crypto.Address, amount *big.Int) error
	// Decimals reports the token precision, queried once at registration.
	Decimals(token crypto.Address) (uint8, error)
}

func (a *Asset) clone() *Asset {
	if a == nil {
		return nil
	}
	c := *a
	c.TotalSupplied = cloneBig(a.TotalSupplied)
	c.TotalBorrowed = cloneBig(a.TotalBorrowed)
	c.SupplyIndex = cloneBig(a.SupplyIndex)
	c.BorrowIndex = cloneBig(a.BorrowIndex)
	return &c
}

func (p *Position) clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	c.SuppliedRaw = cloneBig(p.SuppliedRaw)
	c.SuppliedAtIndex = cloneBig(p.SuppliedAtIndex)
	c.BorrowedRaw = cloneBig(p.BorrowedRaw)
	c.BorrowedAtIndex = cloneBig(p.BorrowedAtIndex)
	return &c
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
