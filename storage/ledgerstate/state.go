package ledgerstate

import (
	"encoding/json"
	"errors"
	"fmt"

	"crosslend/crypto"
	"crosslend/native/lending"
	"crosslend/storage"
)

// Keys follow a flat <kind>/<identifiers> scheme so related records cluster
// under a shared prefix in the backing store.
const (
	assetCountKey = "asset/count"

	assetKeyFmt  = "asset/%d"
	poolKeyFmt   = "pool/%d"
	posKeyFmt    = "pos/%d/%s"
	rewardKeyFmt = "reward/%d/%s"
	feesKeyFmt   = "fees/%s"
	paramsKey    = "params"
)

// State persists lending records as JSON documents in a key-value store. It
// implements lending.State; getters return nil for missing records.
type State struct {
	db storage.Database
}

func New(db storage.Database) *State {
	return &State{db: db}
}

func (s *State) getJSON(key string, out interface{}) (bool, error) {
	raw, err := s.db.Get([]byte(key))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *State) putJSON(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.Put([]byte(key), raw)
}

func (s *State) AssetCount() (uint32, error) {
	var count uint32
	ok, err := s.getJSON(assetCountKey, &count)
	if err != nil || !ok {
		return 0, err
	}
	return count, nil
}

func (s *State) GetAsset(id uint32) (*lending.Asset, error) {
	asset := new(lending.Asset)
	ok, err := s.getJSON(fmt.Sprintf(assetKeyFmt, id), asset)
	if err != nil || !ok {
		return nil, err
	}
	return asset, nil
}

// PutAsset stores the asset and bumps the registry count when the id extends
// the dense range.
func (s *State) PutAsset(asset *lending.Asset) error {
	if asset == nil {
		return fmt.Errorf("nil asset")
	}
	if err := s.putJSON(fmt.Sprintf(assetKeyFmt, asset.ID), asset); err != nil {
		return err
	}
	count, err := s.AssetCount()
	if err != nil {
		return err
	}
	if asset.ID >= count {
		return s.putJSON(assetCountKey, asset.ID+1)
	}
	return nil
}

func (s *State) GetPosition(owner crypto.Address, assetID uint32) (*lending.Position, error) {
	position := new(lending.Position)
	ok, err := s.getJSON(fmt.Sprintf(posKeyFmt, assetID, owner.String()), position)
	if err != nil || !ok {
		return nil, err
	}
	return position, nil
}

func (s *State) PutPosition(position *lending.Position) error {
	if position == nil {
		return fmt.Errorf("nil position")
	}
	return s.putJSON(fmt.Sprintf(posKeyFmt, position.AssetID, position.Owner.String()), position)
}

func (s *State) GetRewardPool(assetID uint32) (*lending.RewardPool, error) {
	pool := new(lending.RewardPool)
	ok, err := s.getJSON(fmt.Sprintf(poolKeyFmt, assetID), pool)
	if err != nil || !ok {
		return nil, err
	}
	return pool, nil
}

func (s *State) PutRewardPool(pool *lending.RewardPool) error {
	if pool == nil {
		return fmt.Errorf("nil reward pool")
	}
	return s.putJSON(fmt.Sprintf(poolKeyFmt, pool.AssetID), pool)
}

func (s *State) GetUserReward(owner crypto.Address, assetID uint32) (*lending.UserReward, error) {
	reward := new(lending.UserReward)
	ok, err := s.getJSON(fmt.Sprintf(rewardKeyFmt, assetID, owner.String()), reward)
	if err != nil || !ok {
		return nil, err
	}
	return reward, nil
}

func (s *State) PutUserReward(reward *lending.UserReward) error {
	if reward == nil {
		return fmt.Errorf("nil user reward")
	}
	return s.putJSON(fmt.Sprintf(rewardKeyFmt, reward.AssetID, reward.Owner.String()), reward)
}

func (s *State) GetFeeAccrual(underlying crypto.Address) (*lending.FeeAccrual, error) {
	fees := new(lending.FeeAccrual)
	ok, err := s.getJSON(fmt.Sprintf(feesKeyFmt, underlying.String()), fees)
	if err != nil || !ok {
		return nil, err
	}
	return fees, nil
}

func (s *State) PutFeeAccrual(fees *lending.FeeAccrual) error {
	if fees == nil {
		return fmt.Errorf("nil fee accrual")
	}
	return s.putJSON(fmt.Sprintf(feesKeyFmt, fees.Underlying.String()), fees)
}

func (s *State) GetParams() (*lending.Params, error) {
	params := new(lending.Params)
	ok, err := s.getJSON(paramsKey, params)
	if err != nil || !ok {
		return nil, err
	}
	return params, nil
}

func (s *State) PutParams(params *lending.Params) error {
	if params == nil {
		return fmt.Errorf("nil params")
	}
	return s.putJSON(paramsKey, params)
}
