package wallet

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// AddressSize is the length of a wallet address: a raw ed25519 public key.
const AddressSize = ed25519.PublicKeySize

// ErrInvalidAddress is returned when a string is not a base58 encoded 32 byte key.
var ErrInvalidAddress = errors.New("invalid wallet address")

// Address identifies a wallet. Its text form is base58, the same encoding
// Solana uses for account keys.
type Address [AddressSize]byte

// ParseAddress decodes a base58 wallet address.
func ParseAddress(s string) (Address, error) {
	raw, err := base58.Decode(strings.TrimSpace(s))
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != AddressSize {
		return Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressSize, len(raw))
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromPublicKey converts an ed25519 public key into its wallet address.
func FromPublicKey(pub ed25519.PublicKey) (Address, error) {
	if len(pub) != AddressSize {
		return Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressSize, len(pub))
	}
	var a Address
	copy(a[:], pub)
	return a, nil
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether a is the all-zero address, used as "no wallet".
func (a Address) IsZero() bool {
	return a == Address{}
}

// PublicKey returns the ed25519 verification key behind the address.
func (a Address) PublicKey() ed25519.PublicKey {
	key := make(ed25519.PublicKey, AddressSize)
	copy(key, a[:])
	return key
}

// MarshalText implements encoding.TextMarshaler so JSON and CBOR carry the base58 form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
