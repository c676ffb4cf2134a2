package lending

import (
	"math/big"
	"sync/atomic"
	"time"

	"crosslend/crypto"
	nativecommon "crosslend/native/common"
)

const moduleName = "lending"

const (
	// maxRegisteredAssets caps the registry so the O(n) portfolio scans in
	// health and liquidation checks stay bounded.
	maxRegisteredAssets = 10_000

	// protocolFeeBps is the share of borrow interest routed to the protocol
	// fee account.
	protocolFeeBps = 100

	// liquidationBonusBps is the premium a liquidator receives over the debt
	// value they repay.
	liquidationBonusBps = 1_000

	// liquidatorShareBps is the fraction of seized collateral paid to the
	// liquidator; the remainder goes to the team address.
	liquidatorShareBps = 9_000

	maxLTVCapBps            = 9_000
	minLiquidationThreshold = 5_000
	maxLiquidationThreshold = 9_500

	defaultLiquidationThreshold = 8_000
)

// Ledger owns the full accounting state of the lending protocol and is the
// only mutator of it. One ledger instance exists per deployment; every
// operation runs to completion before the next begins, and a re-entrancy
// latch rejects nested invocation triggered by outbound transfer calls.
type Ledger struct {
	state  State
	oracle PriceOracle
	bank   AssetTransfer
	model  *InterestModel
	pauses nativecommon.PauseView
	nowFn  func() time.Time

	inOperation atomic.Bool
}

// NewLedger constructs a ledger wired to its persistence layer and external
// collaborators.
func NewLedger(state State, oracle PriceOracle, bank AssetTransfer) *Ledger {
	return &Ledger{
		state:  state,
		oracle: oracle,
		bank:   bank,
		model:  DefaultInterestModel(),
		nowFn:  time.Now,
	}
}

// SetInterestModel replaces the borrow-rate curve.
func (l *Ledger) SetInterestModel(model *InterestModel) {
	if l == nil {
		return
	}
	if model != nil {
		l.model = model.Clone()
	} else {
		l.model = DefaultInterestModel()
	}
}

// SetPauses wires the pause switches consulted before balance-mutating flows.
func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

// SetClock overrides the time source. Tests drive accrual deterministically
// through this hook.
func (l *Ledger) SetClock(now func() time.Time) {
	if l == nil || now == nil {
		return
	}
	l.nowFn = now
}

func (l *Ledger) now() int64 {
	return l.nowFn().Unix()
}

// beginOp acquires the operation latch. A second acquisition before release
// means an outbound collaborator call re-entered the ledger; the nested
// invocation is rejected rather than allowed to observe in-flight state.
func (l *Ledger) beginOp() error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if !l.inOperation.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (l *Ledger) endOp() {
	l.inOperation.Store(false)
}

// RegisterAsset adds an instrument to the registry and assigns it the next
// dense id. The token's decimal precision is captured once here and never
// re-queried.
func (l *Ledger) RegisterAsset(underlying, priceSource crypto.Address, maxLTVBps uint64) (uint32, error) {
	if err := l.beginOp(); err != nil {
		return 0, err
	}
	defer l.endOp()

	if underlying.IsZero() || priceSource.IsZero() {
		return 0, ErrInvalidAddress
	}
	if maxLTVBps > maxLTVCapBps {
		return 0, ErrInvalidConfig
	}
	count, err := l.state.AssetCount()
	if err != nil {
		return 0, err
	}
	if count >= maxRegisteredAssets {
		return 0, ErrAssetLimit
	}
	decimals, err := l.bank.Decimals(underlying)
	if err != nil {
		return 0, err
	}
	switch decimals {
	case 6, 8, 18:
	default:
		return 0, ErrUnsupportedDecimals
	}

	asset := &Asset{
		ID:              count,
		Underlying:      underlying,
		PriceSource:     priceSource,
		Decimals:        decimals,
		MaxLTVBps:       maxLTVBps,
		TotalSupplied:   bigZero(nil),
		TotalBorrowed:   bigZero(nil),
		SupplyIndex:     cloneBig(wad),
		BorrowIndex:     cloneBig(wad),
		LastAccrualTime: l.now(),
		Active:          true,
	}
	if err := l.state.PutAsset(asset); err != nil {
		return 0, err
	}
	return asset.ID, nil
}

// SetMaxLTV updates the borrowing-power weight of an asset.
func (l *Ledger) SetMaxLTV(assetID uint32, maxLTVBps uint64) error {
	if err := l.beginOp(); err != nil {
		return err
	}
	defer l.endOp()

	if maxLTVBps > maxLTVCapBps {
		return ErrInvalidConfig
	}
	asset, err := l.loadAsset(assetID)
	if err != nil {
		return err
	}
	asset.MaxLTVBps = maxLTVBps
	return l.state.PutAsset(asset)
}

// SetAssetActive toggles whether an asset accepts new operations.
// Deactivated assets are skipped by health and liquidation aggregation even
// when balances remain; reactivation restores them.
func (l *Ledger) SetAssetActive(assetID uint32, active bool) error {
	if err := l.beginOp(); err != nil {
		return err
	}
	defer l.endOp()

	asset, err := l.loadAsset(assetID)
	if err != nil {
		return err
	}
	asset.Active = active
	return l.state.PutAsset(asset)
}

// SetLiquidationThreshold tunes the global eligibility threshold, bounded to
// [5000, 9500] basis points.
func (l *Ledger) SetLiquidationThreshold(bps uint64) error {
	if err := l.beginOp(); err != nil {
		return err
	}
	defer l.endOp()

	if bps < minLiquidationThreshold || bps > maxLiquidationThreshold {
		return ErrInvalidConfig
	}
	params, err := l.loadParams()
	if err != nil {
		return err
	}
	params.LiquidationThresholdBps = bps
	return l.state.PutParams(params)
}

// SetTeamAddress designates the recipient of the team collateral share and
// of claimed protocol fees.
func (l *Ledger) SetTeamAddress(addr crypto.Address) error {
	if err := l.beginOp(); err != nil {
		return err
	}
	defer l.endOp()

	if addr.IsZero() {
		return ErrInvalidAddress
	}
	params, err := l.loadParams()
	if err != nil {
		return err
	}
	params.TeamAddress = addr
	return l.state.PutParams(params)
}

// ClaimProtocolFees transfers the accrued fee balance for an underlying
// token to the team address. Only the team address may claim.
func (l *Ledger) ClaimProtocolFees(caller crypto.Address, underlying crypto.Address) error {
	if err := l.beginOp(); err != nil {
		return err
	}
	defer l.endOp()

	if caller.IsZero() || underlying.IsZero() {
		return ErrInvalidAddress
	}
	params, err := l.loadParams()
	if err != nil {
		return err
	}
	if params.TeamAddress.IsZero() {
		return ErrTeamAddressUnset
	}
	if !caller.Equal(params.TeamAddress) {
		return ErrUnauthorized
	}
	fees, err := l.loadFeeAccrual(underlying)
	if err != nil {
		return err
	}
	amount := bigZero(fees.Accrued)
	if amount.Sign() == 0 {
		return ErrNothingToClaim
	}

	// Fees accumulate inside the pooled liquidity of the matching asset, so
	// claiming them reduces that asset's supplied total.
	asset, err := l.findAssetByUnderlying(underlying)
	if err != nil {
		return err
	}
	available := new(big.Int).Sub(asset.TotalSupplied, asset.TotalBorrowed)
	if available.Sign() < 0 || available.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}
	if err := l.bank.TransferOut(underlying, params.TeamAddress, amount); err != nil {
		return err
	}
	asset.TotalSupplied = new(big.Int).Sub(asset.TotalSupplied, amount)
	fees.Accrued = big.NewInt(0)
	if err := l.state.PutAsset(asset); err != nil {
		return err
	}
	return l.state.PutFeeAccrual(fees)
}

func (l *Ledger) loadAsset(assetID uint32) (*Asset, error) {
	asset, err := l.state.GetAsset(assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, ErrAssetNotFound
	}
	normalizeAsset(asset)
	return asset, nil
}

func (l *Ledger) findAssetByUnderlying(underlying crypto.Address) (*Asset, error) {
	count, err := l.state.AssetCount()
	if err != nil {
		return nil, err
	}
	for id := uint32(0); id < count; id++ {
		asset, err := l.loadAsset(id)
		if err != nil {
			return nil, err
		}
		if asset.Underlying.Equal(underlying) {
			return asset, nil
		}
	}
	return nil, ErrAssetNotFound
}

func (l *Ledger) loadParams() (*Params, error) {
	params, err := l.state.GetParams()
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = &Params{LiquidationThresholdBps: defaultLiquidationThreshold}
	}
	if params.LiquidationThresholdBps == 0 {
		params.LiquidationThresholdBps = defaultLiquidationThreshold
	}
	return params, nil
}

func (l *Ledger) loadFeeAccrual(underlying crypto.Address) (*FeeAccrual, error) {
	fees, err := l.state.GetFeeAccrual(underlying)
	if err != nil {
		return nil, err
	}
	if fees == nil {
		fees = &FeeAccrual{Underlying: underlying}
	}
	if fees.Accrued == nil {
		fees.Accrued = bigZero(nil)
	}
	return fees, nil
}

func normalizeAsset(asset *Asset) {
	if asset == nil {
		return
	}
	asset.TotalSupplied = bigZero(asset.TotalSupplied)
	asset.TotalBorrowed = bigZero(asset.TotalBorrowed)
	if asset.SupplyIndex == nil || asset.SupplyIndex.Sign() == 0 {
		asset.SupplyIndex = cloneBig(wad)
	}
	if asset.BorrowIndex == nil || asset.BorrowIndex.Sign() == 0 {
		asset.BorrowIndex = cloneBig(wad)
	}
}
