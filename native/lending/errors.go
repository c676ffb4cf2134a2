package lending

import "errors"

var (
	errNilState               = errors.New("lending ledger: state not configured")
	ErrInvalidAmount          = errors.New("lending ledger: amount must be positive")
	ErrInvalidAddress         = errors.New("lending ledger: address must be non-zero")
	ErrInvalidConfig          = errors.New("lending ledger: configuration value out of range")
	ErrAssetNotFound          = errors.New("lending ledger: asset not registered")
	ErrInactiveAsset          = errors.New("lending ledger: asset not active")
	ErrAssetLimit             = errors.New("lending ledger: registered asset cap reached")
	ErrInsufficientBalance    = errors.New("lending ledger: insufficient balance")
	ErrInsufficientLiquidity  = errors.New("lending ledger: insufficient liquidity")
	ErrUnhealthyOperation     = errors.New("lending ledger: operation would breach solvency")
	ErrNoOutstandingDebt      = errors.New("lending ledger: no outstanding debt to repay")
	ErrNotLiquidatable        = errors.New("lending ledger: borrower not eligible for liquidation")
	ErrInsufficientCollateral = errors.New("lending ledger: seize amount exceeds borrower collateral")
	ErrUnauthorized           = errors.New("lending ledger: caller not authorized")
	ErrReentrantCall          = errors.New("lending ledger: operation already in progress")
	ErrRewardPoolExists       = errors.New("lending ledger: reward pool already created")
	ErrRewardPoolNotFound     = errors.New("lending ledger: reward pool not created")
	ErrNothingToClaim         = errors.New("lending ledger: nothing to claim")
	ErrTeamAddressUnset       = errors.New("lending ledger: team address not configured")
	ErrUnsupportedDecimals    = errors.New("lending ledger: token precision must be 6, 8 or 18")
)
