package lending

import (
	"errors"
	"math/big"

	"crosslend/crypto"
	nativecommon "crosslend/native/common"
)

const (
	secondsPerDay    = 86_400
	rewardPeriodDays = 365

	rewardPeriodSeconds = rewardPeriodDays * secondsPerDay
)

// CreateRewardPool attaches an empty reward stream to an asset. The pool
// starts with a zero rate; FundReward opens the first streaming period.
func (l *Ledger) CreateRewardPool(assetID uint32, rewardToken crypto.Address) error {
	if err := l.beginOp(); err != nil {
		return err
	}
	defer l.endOp()

	if rewardToken.IsZero() {
		return ErrInvalidAddress
	}
	if _, err := l.loadAsset(assetID); err != nil {
		return err
	}
	existing, err := l.state.GetRewardPool(assetID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrRewardPoolExists
	}
	now := l.now()
	pool := &RewardPool{
		AssetID:          assetID,
		RewardToken:      rewardToken,
		RatePerDay:       big.NewInt(0),
		PeriodEnd:        now,
		AccPerSupplyUnit: big.NewInt(0),
		LastUpdateTime:   now,
		TotalDistributed: big.NewInt(0),
	}
	return l.state.PutRewardPool(pool)
}

// FundReward pulls amount of the pool's reward token from the funder and
// restarts a full streaming period. Whatever remains unstreamed from the
// current period is folded into the new one, so topping up never strands or
// double-counts reward tokens.
func (l *Ledger) FundReward(funder crypto.Address, assetID uint32, amount *big.Int) error {
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
	if funder.IsZero() {
		return ErrInvalidAddress
	}

	asset, err := l.loadAsset(assetID)
	if err != nil {
		return err
	}
	fees, feesChanged, err := l.accrue(asset)
	if err != nil {
		return err
	}
	pool, err := l.loadRewardPool(assetID)
	if err != nil {
		return err
	}
	l.advanceRewardPool(pool, asset.TotalSupplied)

	now := l.now()
	total := new(big.Int).Set(amount)
	if pool.PeriodEnd > now {
		remaining := new(big.Int).Mul(pool.RatePerDay, big.NewInt(pool.PeriodEnd-now))
		remaining.Quo(remaining, big.NewInt(secondsPerDay))
		total.Add(total, remaining)
	}
	pool.RatePerDay = new(big.Int).Quo(total, big.NewInt(rewardPeriodDays))
	pool.PeriodEnd = now + rewardPeriodSeconds
	pool.LastUpdateTime = now

	if err := l.bank.TransferIn(pool.RewardToken, funder, amount); err != nil {
		return err
	}
	return l.persist(opEffects{
		asset:       asset,
		pool:        pool,
		fees:        fees,
		feesChanged: feesChanged,
	})
}

// ClaimReward pays out the caller's settled reward balance for one asset.
func (l *Ledger) ClaimReward(owner crypto.Address, assetID uint32) (*big.Int, error) {
	if err := l.beginOp(); err != nil {
		return nil, err
	}
	defer l.endOp()
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}
	if owner.IsZero() {
		return nil, ErrInvalidAddress
	}
	payout, err := l.claimRewardLocked(owner, assetID)
	if err != nil {
		return nil, err
	}
	if payout.Sign() == 0 {
		return nil, ErrNothingToClaim
	}
	return payout, nil
}

// ClaimRewardsBatch settles and pays out rewards across several assets in one
// call. Assets with nothing accrued, including assets without a reward pool,
// are skipped; the claim fails only when every asset in the batch came up
// empty.
func (l *Ledger) ClaimRewardsBatch(owner crypto.Address, assetIDs []uint32) (*big.Int, error) {
	if err := l.beginOp(); err != nil {
		return nil, err
	}
	defer l.endOp()
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}
	if owner.IsZero() {
		return nil, ErrInvalidAddress
	}
	total := big.NewInt(0)
	for _, assetID := range assetIDs {
		payout, err := l.claimRewardLocked(owner, assetID)
		if errors.Is(err, ErrRewardPoolNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		total.Add(total, payout)
	}
	if total.Sign() == 0 {
		return nil, ErrNothingToClaim
	}
	return total, nil
}

func (l *Ledger) claimRewardLocked(owner crypto.Address, assetID uint32) (*big.Int, error) {
	asset, err := l.loadAsset(assetID)
	if err != nil {
		return nil, err
	}
	fees, feesChanged, err := l.accrue(asset)
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
	payout := bigZero(reward.Accrued)
	if payout.Sign() > 0 {
		if err := l.bank.TransferOut(pool.RewardToken, owner, payout); err != nil {
			return nil, err
		}
		reward.Accrued = big.NewInt(0)
	}
	if err := l.persist(opEffects{
		asset:       asset,
		pool:        pool,
		reward:      reward,
		fees:        fees,
		feesChanged: feesChanged,
	}); err != nil {
		return nil, err
	}
	return payout, nil
}

// settleSupplierReward folds the pool's streamed rewards into the owner's
// accrued balance before their supply balance changes. Assets without a
// reward pool settle to nothing.
func (l *Ledger) settleSupplierReward(owner crypto.Address, asset *Asset, live *big.Int) (*RewardPool, *UserReward, error) {
	pool, err := l.state.GetRewardPool(asset.ID)
	if err != nil {
		return nil, nil, err
	}
	if pool == nil {
		return nil, nil, nil
	}
	normalizeRewardPool(pool)
	return l.settleAgainstPool(owner, pool, asset.TotalSupplied, live)
}

func (l *Ledger) settleAgainstPool(owner crypto.Address, pool *RewardPool, totalSupplied, live *big.Int) (*RewardPool, *UserReward, error) {
	l.advanceRewardPool(pool, totalSupplied)

	reward, err := l.state.GetUserReward(owner, pool.AssetID)
	if err != nil {
		return nil, nil, err
	}
	if reward == nil {
		reward = &UserReward{Owner: owner, AssetID: pool.AssetID}
	}
	reward.PaidPerSupplyUnit = bigZero(reward.PaidPerSupplyUnit)
	reward.Accrued = bigZero(reward.Accrued)

	delta := new(big.Int).Sub(pool.AccPerSupplyUnit, reward.PaidPerSupplyUnit)
	if delta.Sign() > 0 && live != nil && live.Sign() > 0 {
		earned := new(big.Int).Mul(live, delta)
		earned.Quo(earned, wad)
		reward.Accrued = new(big.Int).Add(reward.Accrued, earned)
	}
	reward.PaidPerSupplyUnit = cloneBig(pool.AccPerSupplyUnit)
	return pool, reward, nil
}

// advanceRewardPool streams the per-day rate over the elapsed wall-clock
// time, capped at the period end, and spreads it across the supplied total.
// Seconds that pass while the pool has no suppliers emit nothing; those
// tokens sit in the pool until a future FundReward folds the stream forward.
func (l *Ledger) advanceRewardPool(pool *RewardPool, totalSupplied *big.Int) {
	now := l.now()
	effective := now
	if pool.PeriodEnd < effective {
		effective = pool.PeriodEnd
	}
	if effective <= pool.LastUpdateTime {
		return
	}
	elapsed := effective - pool.LastUpdateTime
	pool.LastUpdateTime = effective

	if pool.RatePerDay.Sign() == 0 || totalSupplied == nil || totalSupplied.Sign() == 0 {
		return
	}
	streamed := new(big.Int).Mul(pool.RatePerDay, big.NewInt(elapsed))
	streamed.Quo(streamed, big.NewInt(secondsPerDay))
	if streamed.Sign() == 0 {
		return
	}
	perUnit := new(big.Int).Mul(streamed, wad)
	perUnit.Quo(perUnit, totalSupplied)
	pool.AccPerSupplyUnit = new(big.Int).Add(pool.AccPerSupplyUnit, perUnit)
	pool.TotalDistributed = new(big.Int).Add(pool.TotalDistributed, streamed)
}

func (l *Ledger) loadRewardPool(assetID uint32) (*RewardPool, error) {
	pool, err := l.state.GetRewardPool(assetID)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrRewardPoolNotFound
	}
	normalizeRewardPool(pool)
	return pool, nil
}

func normalizeRewardPool(pool *RewardPool) {
	if pool == nil {
		return
	}
	pool.RatePerDay = bigZero(pool.RatePerDay)
	pool.AccPerSupplyUnit = bigZero(pool.AccPerSupplyUnit)
	pool.TotalDistributed = bigZero(pool.TotalDistributed)
}
