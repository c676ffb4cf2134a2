package bank

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"crosslend/crypto"
	"crosslend/storage"
)

var (
	ErrUnknownToken      = errors.New("bank: token not registered")
	ErrInvalidAmount     = errors.New("bank: amount must be positive")
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
)

const (
	tokenKeyFmt   = "tok/%s"
	balanceKeyFmt = "bal/%s/%s"
	vaultKeyFmt   = "vault/%s"
)

type tokenRecord struct {
	Decimals uint8 `json:"decimals"`
}

// Vault keeps per-token account balances in a key-value store and custodies
// the pooled liquidity the ledger controls. TransferIn debits a user account
// into the vault balance; TransferOut pays out of it. Every token must be
// registered with its decimal precision before it can move.
type Vault struct {
	mu sync.Mutex
	db storage.Database
}

func NewVault(db storage.Database) *Vault {
	return &Vault{db: db}
}

// RegisterToken records a token and its precision. Re-registering with the
// same precision is a no-op; changing precision is rejected.
func (v *Vault) RegisterToken(token crypto.Address, decimals uint8) error {
	if token.IsZero() {
		return fmt.Errorf("bank: zero token address")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	existing, err := v.tokenDecimals(token)
	if err == nil {
		if existing != decimals {
			return fmt.Errorf("bank: token %s already registered with %d decimals", token, existing)
		}
		return nil
	}
	if !errors.Is(err, ErrUnknownToken) {
		return err
	}
	raw, err := json.Marshal(tokenRecord{Decimals: decimals})
	if err != nil {
		return err
	}
	return v.db.Put([]byte(fmt.Sprintf(tokenKeyFmt, token)), raw)
}

// Decimals reports the registered precision of a token.
func (v *Vault) Decimals(token crypto.Address) (uint8, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tokenDecimals(token)
}

func (v *Vault) tokenDecimals(token crypto.Address) (uint8, error) {
	raw, err := v.db.Get([]byte(fmt.Sprintf(tokenKeyFmt, token)))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrUnknownToken
	}
	if err != nil {
		return 0, err
	}
	var record tokenRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return 0, err
	}
	return record.Decimals, nil
}

// Mint credits freshly issued tokens to an account. Genesis provisioning and
// test fixtures are the only callers.
func (v *Vault) Mint(token crypto.Address, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, err := v.tokenDecimals(token); err != nil {
		return err
	}
	return v.adjust(balanceKey(token, to), amount)
}

// BalanceOf reports an account's spendable balance.
func (v *Vault) BalanceOf(token crypto.Address, account crypto.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance(balanceKey(token, account))
}

// VaultBalance reports the pooled custody balance for a token.
func (v *Vault) VaultBalance(token crypto.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance(vaultKey(token))
}

// TransferIn moves amount from the account into pooled custody.
func (v *Vault) TransferIn(token crypto.Address, from crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, err := v.tokenDecimals(token); err != nil {
		return err
	}
	if err := v.adjust(balanceKey(token, from), new(big.Int).Neg(amount)); err != nil {
		return err
	}
	return v.adjust(vaultKey(token), amount)
}

// TransferOut moves amount from pooled custody to the account.
func (v *Vault) TransferOut(token crypto.Address, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, err := v.tokenDecimals(token); err != nil {
		return err
	}
	if err := v.adjust(vaultKey(token), new(big.Int).Neg(amount)); err != nil {
		return err
	}
	return v.adjust(balanceKey(token, to), amount)
}

func (v *Vault) balance(key string) (*big.Int, error) {
	raw, err := v.db.Get([]byte(key))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	balance, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("bank: corrupt balance record at %s", key)
	}
	return balance, nil
}

func (v *Vault) adjust(key string, delta *big.Int) error {
	balance, err := v.balance(key)
	if err != nil {
		return err
	}
	balance.Add(balance, delta)
	if balance.Sign() < 0 {
		return ErrInsufficientFunds
	}
	return v.db.Put([]byte(key), []byte(balance.String()))
}

func balanceKey(token crypto.Address, account crypto.Address) string {
	return fmt.Sprintf(balanceKeyFmt, token, account)
}

func vaultKey(token crypto.Address) string {
	return fmt.Sprintf(vaultKeyFmt, token)
}
