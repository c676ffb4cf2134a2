package lending

import (
	"errors"
	"math/big"
	"testing"
)

func TestSupplyWithdrawRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	assetID := env.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	supplier := testAddr(2)

	if err := env.ledger.Supply(supplier, assetID, wadAmount(500)); err != nil {
		t.Fatalf("supply: %v", err)
	}
	view, err := env.ledger.GetUserPosition(supplier, assetID)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if view.Supplied.Cmp(wadAmount(500)) != 0 {
		t.Fatalf("supplied = %s, want %s", view.Supplied, wadAmount(500))
	}

	if err := env.ledger.Withdraw(supplier, assetID, wadAmount(500)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	view, err = env.ledger.GetUserPosition(supplier, assetID)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if view.Supplied.Sign() != 0 {
		t.Fatalf("supplied after full withdraw = %s, want 0", view.Supplied)
	}
	if got := env.bank.outTotal(testAddr(1), supplier); got.Cmp(wadAmount(500)) != 0 {
		t.Fatalf("withdrawn transfer = %s, want %s", got, wadAmount(500))
	}
}

func TestWithdrawRejectsBeyondBalance(t *testing.T) {
	env := newTestEnv(t)
	assetID := env.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	supplier := testAddr(2)
	if err := env.ledger.Supply(supplier, assetID, wadAmount(100)); err != nil {
		t.Fatalf("supply: %v", err)
	}
	if err := env.ledger.Withdraw(supplier, assetID, wadAmount(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestBorrowAgainstWeightedCollateral(t *testing.T) {
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

	// 1000 collateral at 80% max LTV yields 800 of borrowing power.
	if err := env.ledger.Borrow(borrower, debtID, wadAmount(801)); !errors.Is(err, ErrUnhealthyOperation) {
		t.Fatalf("expected ErrUnhealthyOperation at 801, got %v", err)
	}
	if err := env.ledger.Borrow(borrower, debtID, wadAmount(799)); err != nil {
		t.Fatalf("borrow within power: %v", err)
	}
	if got := env.bank.outTotal(testAddr(2), borrower); got.Cmp(wadAmount(799)) != 0 {
		t.Fatalf("borrowed transfer = %s, want %s", got, wadAmount(799))
	}
}

func TestBorrowRejectsWithoutLiquidity(t *testing.T) {
	env := newTestEnv(t)
	collateralID := env.registerAsset(t, testAddr(1), testAddr(101), 9_000)
	debtID := env.registerAsset(t, testAddr(2), testAddr(102), 8_000)
	borrower := testAddr(3)

	if err := env.ledger.Supply(borrower, collateralID, wadAmount(10_000)); err != nil {
		t.Fatalf("supply collateral: %v", err)
	}
	if err := env.ledger.Supply(testAddr(4), debtID, wadAmount(100)); err != nil {
		t.Fatalf("seed debt liquidity: %v", err)
	}
	if err := env.ledger.Borrow(borrower, debtID, wadAmount(101)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestWithdrawRejectsWhenLiquidityLocked(t *testing.T) {
	env := newTestEnv(t)
	assetID := env.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	env.seedPool(t, assetID, 1_000, 800, 2, 3, 50)

	// 200 of un-borrowed liquidity remains; the supplier cannot take more.
	if err := env.ledger.Withdraw(testAddr(2), assetID, wadAmount(300)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if err := env.ledger.Withdraw(testAddr(2), assetID, wadAmount(200)); err != nil {
		t.Fatalf("withdraw within liquidity: %v", err)
	}
}

func TestWithdrawRejectsWhenCollateralBacksDebt(t *testing.T) {
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
	// Withdrawing 200 leaves 800 collateral worth 640 of power against 700.
	if err := env.ledger.Withdraw(borrower, collateralID, wadAmount(200)); !errors.Is(err, ErrUnhealthyOperation) {
		t.Fatalf("expected ErrUnhealthyOperation, got %v", err)
	}
	// 120 leaves 880 collateral worth 704 of power, still above the debt.
	if err := env.ledger.Withdraw(borrower, collateralID, wadAmount(120)); err != nil {
		t.Fatalf("withdraw within health: %v", err)
	}
}

func TestRepayClampsToOutstandingDebt(t *testing.T) {
	env := newTestEnv(t)
	assetID := env.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	env.seedPool(t, assetID, 1_000, 500, 2, 3, 50)
	borrower := testAddr(3)

	repaid, err := env.ledger.Repay(borrower, assetID, wadAmount(600))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if repaid.Cmp(wadAmount(500)) != 0 {
		t.Fatalf("repaid = %s, want clamp to %s", repaid, wadAmount(500))
	}
	// Only the clamped amount was pulled in.
	last := env.bank.records[len(env.bank.records)-1]
	if !last.in || last.amount.Cmp(wadAmount(500)) != 0 {
		t.Fatalf("transfer in = %s (in=%v), want %s", last.amount, last.in, wadAmount(500))
	}
	if _, err := env.ledger.Repay(borrower, assetID, wadAmount(1)); !errors.Is(err, ErrNoOutstandingDebt) {
		t.Fatalf("expected ErrNoOutstandingDebt after full repay, got %v", err)
	}
}

func TestRepayCoversAccruedInterest(t *testing.T) {
	env := newTestEnv(t)
	assetID := env.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	env.seedPool(t, assetID, 1_000, 800, 2, 3, 50)
	borrower := testAddr(3)

	env.advance(secondsPerYear)
	// Live debt grew to 880 at the 10% kink rate.
	repaid, err := env.ledger.Repay(borrower, assetID, wadAmount(10_000))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if want := wadAmount(880); repaid.Cmp(want) != 0 {
		t.Fatalf("repaid = %s, want %s", repaid, want)
	}
	asset, err := env.ledger.GetAsset(assetID)
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	if asset.TotalBorrowed.Sign() != 0 {
		t.Fatalf("total borrowed after full repay = %s, want 0", asset.TotalBorrowed)
	}
}

func TestSupplyEarnsInterest(t *testing.T) {
	env := newTestEnv(t)
	assetID := env.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	env.seedPool(t, assetID, 1_000, 800, 2, 3, 50)
	supplier := testAddr(2)

	env.advance(secondsPerYear)
	view, err := env.ledger.GetUserPosition(supplier, assetID)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	// Supply rate 7.92% on 1000 over one year.
	want := new(big.Int).Add(wadAmount(1_000), mustBigInt("79200000000000000000"))
	if view.Supplied.Cmp(want) != 0 {
		t.Fatalf("live supply = %s, want %s", view.Supplied, want)
	}
}

func TestInactiveAssetRejectsOperations(t *testing.T) {
	env := newTestEnv(t)
	assetID := env.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	if err := env.ledger.SetAssetActive(assetID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := env.ledger.Supply(testAddr(2), assetID, wadAmount(10)); !errors.Is(err, ErrInactiveAsset) {
		t.Fatalf("expected ErrInactiveAsset, got %v", err)
	}
}
