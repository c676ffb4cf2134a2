package lending

import (
	"math/big"
	"sync"

	"crosslend/crypto"
)

// ReserveView exposes the paired reserve balances backing a price source.
// The quote is the instantaneous ratio of the two reserves; it carries no
// staleness or manipulation protection beyond what the source provides.
type ReserveView interface {
	Reserves(source crypto.Address) (assetReserve, counterReserve *big.Int, err error)
}

// ReservePairOracle quotes spot prices as counterReserve * 1e18 /
// assetReserve over a reserve source.
type ReservePairOracle struct {
	reserves ReserveView
}

func NewReservePairOracle(reserves ReserveView) *ReservePairOracle {
	return &ReservePairOracle{reserves: reserves}
}

func (o *ReservePairOracle) GetPrice(source crypto.Address) (*big.Int, error) {
	if o == nil || o.reserves == nil {
		return nil, ErrInvalidConfig
	}
	assetReserve, counterReserve, err := o.reserves.Reserves(source)
	if err != nil {
		return nil, err
	}
	if assetReserve == nil || assetReserve.Sign() == 0 {
		return nil, ErrInvalidConfig
	}
	price := new(big.Int).Mul(bigZero(counterReserve), wad)
	return price.Quo(price, assetReserve), nil
}

// StaticOracle serves fixed 18-decimal prices keyed by source address. It
// backs deployments without an on-chain reserve pair and the test suites.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[string]*big.Int
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{prices: make(map[string]*big.Int)}
}

// SetPrice installs or replaces the quote for a source.
func (o *StaticOracle) SetPrice(source crypto.Address, price *big.Int) {
	if o == nil || price == nil || price.Sign() < 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[source.String()] = new(big.Int).Set(price)
}

func (o *StaticOracle) GetPrice(source crypto.Address) (*big.Int, error) {
	if o == nil {
		return nil, ErrInvalidConfig
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[source.String()]
	if !ok {
		return nil, ErrInvalidConfig
	}
	return new(big.Int).Set(price), nil
}
