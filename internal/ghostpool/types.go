package ghostpool

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/mr-tron/base58"
)

// AddressSize is the byte length of a ledger address.
const AddressSize = 32

// Address is a 32-byte ledger account identity. Derived addresses are never
// stored as authoritative state; they are recomputed on demand.
type Address [AddressSize]byte

// String renders the address in base58, the ledger's canonical text form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether the address is the all-zero identity.
func (a Address) IsZero() bool {
	return a == Address{}
}

// AddressFromBase58 parses a base58-encoded 32-byte address.
func AddressFromBase58(s string) (Address, error) {
	var a Address
	raw, err := base58.Decode(s)
	if err != nil {
		return a, &ValidationError{Field: "address", Reason: err.Error()}
	}
	if len(raw) != AddressSize {
		return a, &ValidationError{Field: "address", Reason: fmt.Sprintf("decoded to %d bytes, want %d", len(raw), AddressSize)}
	}
	copy(a[:], raw)
	return a, nil
}

// MarshalJSON encodes the address as a base58 string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes the address from a base58 string.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := AddressFromBase58(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Uint128 is an unsigned 128-bit value carried little-endian on the wire.
// Used for state nonces, credential nonces, and hashed secrets.
type Uint128 struct {
	Lo uint64
	Hi uint64
}

// Uint128FromLE reads a 16-byte little-endian value.
func Uint128FromLE(b []byte) Uint128 {
	_ = b[15]
	return Uint128{
		Lo: binary.LittleEndian.Uint64(b[0:8]),
		Hi: binary.LittleEndian.Uint64(b[8:16]),
	}
}

// AppendLE appends the 16-byte little-endian encoding to b.
func (u Uint128) AppendLE(b []byte) []byte {
	b = binary.LittleEndian.AppendUint64(b, u.Lo)
	return binary.LittleEndian.AppendUint64(b, u.Hi)
}

// Bytes returns the 16-byte little-endian encoding.
func (u Uint128) Bytes() [16]byte {
	var out [16]byte
	binary.LittleEndian.PutUint64(out[0:8], u.Lo)
	binary.LittleEndian.PutUint64(out[8:16], u.Hi)
	return out
}

// IsZero reports whether the value is zero.
func (u Uint128) IsZero() bool {
	return u.Lo == 0 && u.Hi == 0
}

// Inc returns u+1 with wraparound, matching how the confidential network
// advances the pool's state nonce on every callback.
func (u Uint128) Inc() Uint128 {
	lo := u.Lo + 1
	hi := u.Hi
	if lo == 0 {
		hi++
	}
	return Uint128{Lo: lo, Hi: hi}
}

// BigInt returns the value as a non-negative big integer.
func (u Uint128) BigInt() *big.Int {
	v := new(big.Int).SetUint64(u.Hi)
	v.Lsh(v, 64)
	return v.Or(v, new(big.Int).SetUint64(u.Lo))
}

// String renders the value in decimal.
func (u Uint128) String() string {
	return u.BigInt().String()
}
