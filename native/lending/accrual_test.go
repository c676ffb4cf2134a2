package lending

import (
	"math/big"
	"testing"
)

// seedPool supplies liquidity from a dedicated depositor and draws down the
// requested debt for the borrower so the pool sits at a known utilization.
func (e *testEnv) seedPool(t *testing.T, assetID uint32, supplied, borrowed int64, supplier, borrower, collateralSource byte) {
	t.Helper()
	if err := e.ledger.Supply(testAddr(supplier), assetID, wadAmount(supplied)); err != nil {
		t.Fatalf("seed supply: %v", err)
	}
	if borrowed == 0 {
		return
	}
	// Over-collateralize the borrower in a separate asset so the health check
	// never interferes with the utilization being staged.
	collateralID := e.registerAsset(t, testAddr(collateralSource), testAddr(collateralSource+100), 9_000)
	if err := e.ledger.Supply(testAddr(borrower), collateralID, wadAmount(borrowed*10)); err != nil {
		t.Fatalf("seed collateral: %v", err)
	}
	if err := e.ledger.Borrow(testAddr(borrower), assetID, wadAmount(borrowed)); err != nil {
		t.Fatalf("seed borrow: %v", err)
	}
}

func TestBorrowRateFollowsKinkedCurve(t *testing.T) {
	env := newTestEnv(t)
	assetID := env.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	env.seedPool(t, assetID, 1_000, 800, 2, 3, 50)

	rate, err := env.ledger.GetBorrowRate(assetID)
	if err != nil {
		t.Fatalf("borrow rate: %v", err)
	}
	// 80% utilization sits exactly at the kink: 2% base + 8% slope.
	if want := mustBigInt("100000000000000000"); rate.Cmp(want) != 0 {
		t.Fatalf("rate at kink = %s, want %s", rate, want)
	}

	if err := env.ledger.Borrow(testAddr(3), assetID, wadAmount(100)); err != nil {
		t.Fatalf("borrow to 90%%: %v", err)
	}
	rate, err = env.ledger.GetBorrowRate(assetID)
	if err != nil {
		t.Fatalf("borrow rate: %v", err)
	}
	// 90% utilization: 10% at the kink plus 5.0 * 0.10 excess = 60%.
	if want := mustBigInt("600000000000000000"); rate.Cmp(want) != 0 {
		t.Fatalf("rate above kink = %s, want %s", rate, want)
	}
}

func TestAccrualAddsInterestToBothTotals(t *testing.T) {
	env := newTestEnv(t)
	assetID := env.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	env.seedPool(t, assetID, 1_000, 800, 2, 3, 50)

	env.advance(secondsPerYear)
	asset, err := env.ledger.GetAsset(assetID)
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}

	// One year at the 10% kink rate on 800 units of debt.
	interest := wadAmount(80)
	wantBorrowed := new(big.Int).Add(wadAmount(800), interest)
	wantSupplied := new(big.Int).Add(wadAmount(1_000), interest)
	if asset.TotalBorrowed.Cmp(wantBorrowed) != 0 {
		t.Fatalf("total borrowed = %s, want %s", asset.TotalBorrowed, wantBorrowed)
	}
	if asset.TotalSupplied.Cmp(wantSupplied) != 0 {
		t.Fatalf("total supplied = %s, want %s", asset.TotalSupplied, wantSupplied)
	}
	if asset.TotalBorrowed.Cmp(asset.TotalSupplied) > 0 {
		t.Fatalf("borrowed overtook supplied: %s > %s", asset.TotalBorrowed, asset.TotalSupplied)
	}
	if want := mustBigInt("1100000000000000000"); asset.BorrowIndex.Cmp(want) != 0 {
		t.Fatalf("borrow index = %s, want %s", asset.BorrowIndex, want)
	}
}

func TestAccrualRoutesFeeShare(t *testing.T) {
	env := newTestEnv(t)
	underlying := testAddr(1)
	assetID := env.registerAsset(t, underlying, testAddr(101), 8_000)
	env.seedPool(t, assetID, 1_000, 800, 2, 3, 50)

	env.advance(secondsPerYear)
	// Touch the asset so the accrual persists.
	if err := env.ledger.Supply(testAddr(2), assetID, wadAmount(1)); err != nil {
		t.Fatalf("supply: %v", err)
	}

	fees, err := env.ledger.GetProtocolFees(underlying)
	if err != nil {
		t.Fatalf("get fees: %v", err)
	}
	// 1% of the 80 units of interest.
	if want := mustBigInt("800000000000000000"); fees.Cmp(want) != 0 {
		t.Fatalf("fee accrual = %s, want %s", fees, want)
	}
}

func TestAccrualIdempotentAtSameTimestamp(t *testing.T) {
	env := newTestEnv(t)
	assetID := env.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	env.seedPool(t, assetID, 1_000, 800, 2, 3, 50)
	env.advance(3_600)

	first, err := env.ledger.GetAsset(assetID)
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	second, err := env.ledger.GetAsset(assetID)
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	if first.BorrowIndex.Cmp(second.BorrowIndex) != 0 || first.SupplyIndex.Cmp(second.SupplyIndex) != 0 {
		t.Fatalf("indices moved without elapsed time: %s vs %s", first.BorrowIndex, second.BorrowIndex)
	}
}

func TestBorrowIndexMonotonicAcrossBatchings(t *testing.T) {
	oneShot := newTestEnv(t)
	oneShotID := oneShot.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	oneShot.seedPool(t, oneShotID, 1_000, 800, 2, 3, 50)

	oneShot.advance(secondsPerYear)
	whole, err := oneShot.ledger.GetAsset(oneShotID)
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	if whole.BorrowIndex.Cmp(wad) < 0 {
		t.Fatalf("index fell below its starting value: %s", whole.BorrowIndex)
	}

	// The same year accrued in quarters must keep the index non-decreasing
	// at every step.
	stepped := newTestEnv(t)
	steppedID := stepped.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	stepped.seedPool(t, steppedID, 1_000, 800, 2, 3, 50)
	prev := cloneBig(wad)
	for i := 0; i < 4; i++ {
		stepped.advance(secondsPerYear / 4)
		// Persist each step's accrual so the next one compounds on it.
		if err := stepped.ledger.Supply(testAddr(2), steppedID, wadAmount(1)); err != nil {
			t.Fatalf("touch supply: %v", err)
		}
		asset, err := stepped.ledger.GetAsset(steppedID)
		if err != nil {
			t.Fatalf("get asset: %v", err)
		}
		if asset.BorrowIndex.Cmp(prev) < 0 {
			t.Fatalf("borrow index decreased at step %d: %s -> %s", i, prev, asset.BorrowIndex)
		}
		prev = asset.BorrowIndex
	}
}

func TestSupplyRateNetOfProtocolFee(t *testing.T) {
	env := newTestEnv(t)
	assetID := env.registerAsset(t, testAddr(1), testAddr(101), 8_000)
	env.seedPool(t, assetID, 1_000, 800, 2, 3, 50)

	rate, err := env.ledger.GetSupplyRate(assetID)
	if err != nil {
		t.Fatalf("supply rate: %v", err)
	}
	// borrowRate 0.10 * util 0.80 * 99% fee retention = 0.0792.
	if want := mustBigInt("79200000000000000"); rate.Cmp(want) != 0 {
		t.Fatalf("supply rate = %s, want %s", rate, want)
	}
}

func TestRateFactorZeroElapsed(t *testing.T) {
	factor := rateFactor(mustBigInt("100000000000000000"), 0)
	if factor.Cmp(wad) != 0 {
		t.Fatalf("zero elapsed factor = %s, want %s", factor, wad)
	}
}
