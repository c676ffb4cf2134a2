package crypto

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix defines the human-readable prefix applied to encoded addresses.
type AddressPrefix string

// XCLPrefix is the prefix used for crosslend account addresses.
const XCLPrefix AddressPrefix = "xcl"

// Address represents a 20-byte account address with a bech32 prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress constructs an address from a prefix and a 20-byte payload.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != 20 {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: b}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address is unset or all zero bytes.
func (a Address) IsZero() bool {
	if len(a.bytes) == 0 {
		return true
	}
	return bytes.Equal(a.bytes, make([]byte, len(a.bytes)))
}

// Equal reports whether two addresses carry the same payload.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a.bytes, other.bytes)
}

// MarshalText encodes the address as its bech32 string form.
func (a Address) MarshalText() ([]byte, error) {
	if len(a.bytes) == 0 {
		return []byte(""), nil
	}
	return []byte(a.String()), nil
}

// UnmarshalText decodes a bech32 address string.
func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = Address{}
		return nil
	}
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("address payload must be 20 bytes, got %d", len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}
