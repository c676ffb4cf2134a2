package bank

import (
	"errors"
	"math/big"
	"testing"

	"crosslend/crypto"
	"crosslend/storage"
)

func testAddr(b byte) crypto.Address {
	buf := make([]byte, 20)
	buf[19] = b
	return crypto.NewAddress(crypto.XCLPrefix, buf)
}

func TestTransferRoundTripConservesTokens(t *testing.T) {
	vault := NewVault(storage.NewMemDB())
	token := testAddr(1)
	account := testAddr(2)

	if err := vault.RegisterToken(token, 18); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if err := vault.Mint(token, account, big.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := vault.TransferIn(token, account, big.NewInt(400)); err != nil {
		t.Fatalf("transfer in: %v", err)
	}

	balance, err := vault.BalanceOf(token, account)
	if err != nil || balance.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("account balance = %s (%v), want 600", balance, err)
	}
	custody, err := vault.VaultBalance(token)
	if err != nil || custody.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("vault balance = %s (%v), want 400", custody, err)
	}

	if err := vault.TransferOut(token, account, big.NewInt(400)); err != nil {
		t.Fatalf("transfer out: %v", err)
	}
	balance, err = vault.BalanceOf(token, account)
	if err != nil || balance.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("final balance = %s (%v), want 1000", balance, err)
	}
}

func TestTransferInRejectsOverdraft(t *testing.T) {
	vault := NewVault(storage.NewMemDB())
	token := testAddr(1)
	account := testAddr(2)
	if err := vault.RegisterToken(token, 6); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if err := vault.TransferIn(token, account, big.NewInt(1)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestTransferOutRejectsVaultOverdraft(t *testing.T) {
	vault := NewVault(storage.NewMemDB())
	token := testAddr(1)
	if err := vault.RegisterToken(token, 18); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if err := vault.TransferOut(token, testAddr(2), big.NewInt(1)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestUnregisteredTokenRejected(t *testing.T) {
	vault := NewVault(storage.NewMemDB())
	if err := vault.Mint(testAddr(1), testAddr(2), big.NewInt(1)); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
	if _, err := vault.Decimals(testAddr(1)); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
}

func TestReRegisterSamePrecisionAllowed(t *testing.T) {
	vault := NewVault(storage.NewMemDB())
	token := testAddr(1)
	if err := vault.RegisterToken(token, 8); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if err := vault.RegisterToken(token, 8); err != nil {
		t.Fatalf("idempotent registration: %v", err)
	}
	if err := vault.RegisterToken(token, 18); err == nil {
		t.Fatalf("expected precision change to be rejected")
	}
}
