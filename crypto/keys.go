package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// IdentityPrefix is the human-readable part of every participant identity.
const IdentityPrefix = "deed"

var ErrInvalidIdentity = errors.New("crypto: invalid identity")

// Address is a 20-byte participant identity rendered as bech32.
type Address struct {
	prefix string
	bytes  [20]byte
}

// NewAddress wraps raw identity bytes.
func NewAddress(b [20]byte) Address {
	return Address{prefix: IdentityPrefix, bytes: b}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	prefix := a.prefix
	if prefix == "" {
		prefix = IdentityPrefix
	}
	encoded, err := bech32.Encode(prefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns the raw 20 identity bytes.
func (a Address) Bytes() [20]byte {
	return a.bytes
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a.bytes == [20]byte{}
}

// DecodeAddress parses a bech32 identity carrying the deed prefix.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("%w: invalid bech32 string: %v", ErrInvalidIdentity, err)
	}
	if prefix != IdentityPrefix {
		return Address{}, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidIdentity, prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("%w: error converting bits: %v", ErrInvalidIdentity, err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("%w: expected 20 bytes, got %d", ErrInvalidIdentity, len(conv))
	}
	var raw [20]byte
	copy(raw[:], conv)
	return NewAddress(raw), nil
}

// ParseIdentity accepts either a bech32 identity or a 0x-prefixed hex string.
func ParseIdentity(value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		raw, err := hex.DecodeString(trimmed[2:])
		if err != nil {
			return [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
		}
		if len(raw) != 20 {
			return [20]byte{}, fmt.Errorf("%w: expected 20 bytes, got %d", ErrInvalidIdentity, len(raw))
		}
		var out [20]byte
		copy(out[:], raw)
		return out, nil
	}
	addr, err := DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Bytes(), nil
}

// FormatIdentity renders raw identity bytes as bech32.
func FormatIdentity(b [20]byte) string {
	return NewAddress(b).String()
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the participant identity controlled by the key.
func (k *PublicKey) Address() Address {
	return NewAddress(crypto.PubkeyToAddress(*k.PublicKey))
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
