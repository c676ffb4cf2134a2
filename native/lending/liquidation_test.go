package lending

import (
	"errors"
	"math/big"
	"testing"

	"crosslend/crypto"
)

// stageLiquidatable builds a borrower holding 1000 of collateral against 700
// of debt at 1:1 prices, then halves the collateral price so the portfolio
// crosses the default 80% liquidation threshold.
func stageLiquidatable(t *testing.T) (*testEnv, crypto.Address, uint32, uint32) {
	t.Helper()
	env := newTestEnv(t)
	collateralID := env.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	debtID := env.registerAsset(t, testAddr(2), testAddr(102), 8_000)
	borrower := testAddr(3)

	if err := env.ledger.Supply(borrower, collateralID, wadAmount(1_000)); err != nil {
		t.Fatalf("supply collateral: %v", err)
	}
	if err := env.ledger.Supply(testAddr(4), debtID, wadAmount(1_000)); err != nil {
		t.Fatalf("seed debt liquidity: %v", err)
	}
	if err := env.ledger.Borrow(borrower, debtID, wadAmount(700)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := env.ledger.SetTeamAddress(testAddr(9)); err != nil {
		t.Fatalf("set team address: %v", err)
	}

	// Collateral now worth 500 against 700 of debt: 700*10000 > 500*8000.
	env.oracle.SetPrice(testAddr(101), mustBigInt("500000000000000000"))
	return env, borrower, debtID, collateralID
}

func TestLiquidateSeizesBonusCollateral(t *testing.T) {
	env, borrower, debtID, collateralID := stageLiquidatable(t)
	liquidator := testAddr(5)

	eligible, err := env.ledger.CheckLiquidatable(borrower)
	if err != nil || !eligible {
		t.Fatalf("borrower should be liquidatable: %v %v", eligible, err)
	}

	repaid, seized, err := env.ledger.Liquidate(liquidator, borrower, debtID, collateralID, wadAmount(100))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if repaid.Cmp(wadAmount(100)) != 0 {
		t.Fatalf("repaid = %s, want %s", repaid, wadAmount(100))
	}
	// 100 of debt value, 10% bonus, collateral priced at 0.5: seize 220.
	if want := wadAmount(220); seized.Cmp(want) != 0 {
		t.Fatalf("seized = %s, want %s", seized, want)
	}
	// 90/10 split between liquidator and team, conserving the seizure.
	liquidatorShare := env.bank.outTotal(testAddr(1), liquidator)
	teamShare := env.bank.outTotal(testAddr(1), testAddr(9))
	if liquidatorShare.Cmp(wadAmount(198)) != 0 {
		t.Fatalf("liquidator share = %s, want %s", liquidatorShare, wadAmount(198))
	}
	if teamShare.Cmp(wadAmount(22)) != 0 {
		t.Fatalf("team share = %s, want %s", teamShare, wadAmount(22))
	}
	if sum := new(big.Int).Add(liquidatorShare, teamShare); sum.Cmp(seized) != 0 {
		t.Fatalf("split does not conserve seizure: %s != %s", sum, seized)
	}

	view, err := env.ledger.GetUserPosition(borrower, debtID)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if view.Borrowed.Cmp(wadAmount(600)) != 0 {
		t.Fatalf("remaining debt = %s, want %s", view.Borrowed, wadAmount(600))
	}
	view, err = env.ledger.GetUserPosition(borrower, collateralID)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if view.Supplied.Cmp(wadAmount(780)) != 0 {
		t.Fatalf("remaining collateral = %s, want %s", view.Supplied, wadAmount(780))
	}
}

func TestLiquidateClampsRepayToLiveDebt(t *testing.T) {
	env, borrower, debtID, collateralID := stageLiquidatable(t)

	repaid, _, err := env.ledger.Liquidate(testAddr(5), borrower, debtID, collateralID, wadAmount(100_000))
	if !errors.Is(err, ErrInsufficientCollateral) {
		// Clamped to 700 of debt the seizure would need 1540 collateral
		// against the 1000 held, so the whole call must be rejected.
		t.Fatalf("expected ErrInsufficientCollateral, got %v (repaid %v)", err, repaid)
	}
}

func TestLiquidateRejectsHealthyBorrower(t *testing.T) {
	env, borrower, debtID, collateralID := stageLiquidatable(t)
	// Restore the collateral price; the portfolio is healthy again.
	env.oracle.SetPrice(testAddr(101), cloneBig(wad))

	if _, _, err := env.ledger.Liquidate(testAddr(5), borrower, debtID, collateralID, wadAmount(100)); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("expected ErrNotLiquidatable, got %v", err)
	}
}

func TestLiquidateRequiresTeamAddress(t *testing.T) {
	env := newTestEnv(t)
	collateralID := env.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	debtID := env.registerAsset(t, testAddr(2), testAddr(102), 8_000)

	if _, _, err := env.ledger.Liquidate(testAddr(5), testAddr(3), debtID, collateralID, wadAmount(1)); !errors.Is(err, ErrTeamAddressUnset) {
		t.Fatalf("expected ErrTeamAddressUnset, got %v", err)
	}
}

func TestZeroDebtPositionNeverLiquidatable(t *testing.T) {
	env := newTestEnv(t)
	collateralID := env.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	debtID := env.registerAsset(t, testAddr(2), testAddr(102), 8_000)
	owner := testAddr(3)
	if err := env.ledger.SetTeamAddress(testAddr(9)); err != nil {
		t.Fatalf("set team address: %v", err)
	}

	if err := env.ledger.Supply(owner, collateralID, wadAmount(1_000)); err != nil {
		t.Fatalf("supply: %v", err)
	}
	eligible, err := env.ledger.CheckLiquidatable(owner)
	if err != nil {
		t.Fatalf("check liquidatable: %v", err)
	}
	if eligible {
		t.Fatalf("pure supplier must never be liquidatable")
	}
	if _, _, err := env.ledger.Liquidate(testAddr(5), owner, debtID, collateralID, wadAmount(1)); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("expected ErrNotLiquidatable, got %v", err)
	}
	// The untouched position keeps working afterwards.
	if err := env.ledger.Withdraw(owner, collateralID, wadAmount(1_000)); err != nil {
		t.Fatalf("withdraw after failed liquidation: %v", err)
	}
}

func TestLiquidateSameAssetRejected(t *testing.T) {
	env, borrower, debtID, _ := stageLiquidatable(t)
	if _, _, err := env.ledger.Liquidate(testAddr(5), borrower, debtID, debtID, wadAmount(1)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for matching assets, got %v", err)
	}
}

func TestLiquidateUnwindsOnTeamTransferFailure(t *testing.T) {
	env, borrower, debtID, collateralID := stageLiquidatable(t)
	liquidator := testAddr(5)
	team := testAddr(9)

	failTeam := errors.New("team transfer rejected")
	env.bank.transferOutHook = func(token, to crypto.Address, amount *big.Int) error {
		if to.Equal(team) {
			return failTeam
		}
		return nil
	}
	if _, _, err := env.ledger.Liquidate(liquidator, borrower, debtID, collateralID, wadAmount(100)); !errors.Is(err, failTeam) {
		t.Fatalf("expected team transfer failure to surface, got %v", err)
	}
	// The collateral share already paid to the liquidator was pulled back
	// and the repayment returned.
	paid := env.bank.outTotal(testAddr(1), liquidator)
	if paid.Cmp(wadAmount(198)) != 0 {
		t.Fatalf("caller share before unwind = %s, want %s", paid, wadAmount(198))
	}
	if clawed := env.bank.inTotal(testAddr(1), liquidator); clawed.Cmp(paid) != 0 {
		t.Fatalf("collateral not clawed back: paid %s, returned %s", paid, clawed)
	}
	if refund := env.bank.outTotal(testAddr(2), liquidator); refund.Cmp(wadAmount(100)) != 0 {
		t.Fatalf("repay refund = %s, want %s", refund, wadAmount(100))
	}
	// No ledger state changed.
	view, err := env.ledger.GetUserPosition(borrower, debtID)
	if err != nil {
		t.Fatalf("get debt position: %v", err)
	}
	if view.Borrowed.Cmp(wadAmount(700)) != 0 {
		t.Fatalf("debt after aborted liquidation = %s, want %s", view.Borrowed, wadAmount(700))
	}
	view, err = env.ledger.GetUserPosition(borrower, collateralID)
	if err != nil {
		t.Fatalf("get collateral position: %v", err)
	}
	if view.Supplied.Cmp(wadAmount(1_000)) != 0 {
		t.Fatalf("collateral after aborted liquidation = %s, want %s", view.Supplied, wadAmount(1_000))
	}
}

func TestLiquidateToZeroDebtLeavesPositionReusable(t *testing.T) {
	env := newTestEnv(t)
	collateralID := env.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	debtID := env.registerAsset(t, testAddr(2), testAddr(102), 8_000)
	borrower := testAddr(3)
	liquidator := testAddr(5)
	if err := env.ledger.SetTeamAddress(testAddr(9)); err != nil {
		t.Fatalf("set team address: %v", err)
	}

	if err := env.ledger.Supply(borrower, collateralID, wadAmount(1_000)); err != nil {
		t.Fatalf("supply collateral: %v", err)
	}
	if err := env.ledger.Supply(testAddr(4), debtID, wadAmount(1_000)); err != nil {
		t.Fatalf("seed debt liquidity: %v", err)
	}
	if err := env.ledger.Borrow(borrower, debtID, wadAmount(100)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// Collateral drops to 0.12: 100*10000 > 120*8000, yet seizing the full
	// bonus-adjusted 110 of value still fits inside the 1000 held.
	env.oracle.SetPrice(testAddr(101), mustBigInt("120000000000000000"))

	repaid, seized, err := env.ledger.Liquidate(liquidator, borrower, debtID, collateralID, wadAmount(1_000))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if repaid.Cmp(wadAmount(100)) != 0 {
		t.Fatalf("repaid = %s, want full debt %s", repaid, wadAmount(100))
	}
	// 110 of value converted at 0.12 per unit, truncated toward zero.
	if want := mustBigInt("916666666666666666666"); seized.Cmp(want) != 0 {
		t.Fatalf("seized = %s, want %s", seized, want)
	}

	view, err := env.ledger.GetUserPosition(borrower, debtID)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if view.Borrowed.Sign() != 0 {
		t.Fatalf("debt after full liquidation = %s, want 0", view.Borrowed)
	}
	eligible, err := env.ledger.CheckLiquidatable(borrower)
	if err != nil {
		t.Fatalf("check liquidatable: %v", err)
	}
	if eligible {
		t.Fatalf("zero-debt borrower must not stay liquidatable")
	}

	// The cleared position keeps working: restore the collateral price and
	// borrow against what is left.
	env.oracle.SetPrice(testAddr(101), cloneBig(wad))
	if err := env.ledger.Borrow(borrower, debtID, wadAmount(50)); err != nil {
		t.Fatalf("borrow after full liquidation: %v", err)
	}
	view, err = env.ledger.GetUserPosition(borrower, debtID)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if view.Borrowed.Cmp(wadAmount(50)) != 0 {
		t.Fatalf("re-borrowed = %s, want %s", view.Borrowed, wadAmount(50))
	}
}

func TestLiquidateRefundsOnSeizureTransferFailure(t *testing.T) {
	env, borrower, debtID, collateralID := stageLiquidatable(t)
	liquidator := testAddr(5)

	failSeizure := errors.New("seizure rejected")
	env.bank.transferOutHook = func(token, to crypto.Address, amount *big.Int) error {
		if token.Equal(testAddr(1)) && to.Equal(liquidator) {
			return failSeizure
		}
		return nil
	}
	if _, _, err := env.ledger.Liquidate(liquidator, borrower, debtID, collateralID, wadAmount(100)); !errors.Is(err, failSeizure) {
		t.Fatalf("expected seizure failure to surface, got %v", err)
	}
	// The pulled-in repayment was sent back to the liquidator.
	if refund := env.bank.outTotal(testAddr(2), liquidator); refund.Cmp(wadAmount(100)) != 0 {
		t.Fatalf("refund = %s, want %s", refund, wadAmount(100))
	}
	// No ledger state changed.
	view, err := env.ledger.GetUserPosition(borrower, debtID)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if view.Borrowed.Cmp(wadAmount(700)) != 0 {
		t.Fatalf("debt after aborted liquidation = %s, want %s", view.Borrowed, wadAmount(700))
	}
}
