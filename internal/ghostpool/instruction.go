// instruction.go - Wire encoding of pool instructions.
//
// Both deposit and withdraw share one payload layout, little-endian, no
// padding: operationTag(8) | computationOffset u64 | amount u64 |
// ciphertext(32) | ephemeralPublicKey(32) | nonce u128.

package ghostpool

import (
	"crypto/rand"
	"encoding/binary"
	"io"
)

// RequestKind selects the pool operation a request performs.
type RequestKind int

const (
	Deposit RequestKind = iota
	Withdraw
	InitializePool
)

func (k RequestKind) String() string {
	switch k {
	case Deposit:
		return "deposit"
	case Withdraw:
		return "withdraw"
	case InitializePool:
		return "initialize-pool"
	default:
		return "unknown"
	}
}

// circuitName returns the circuit a request kind is verified by.
func (k RequestKind) circuitName() string {
	switch k {
	case Withdraw:
		return CircuitAuthorizeWithdrawal
	case InitializePool:
		return CircuitInitPoolState
	default:
		return CircuitProcessDeposit
	}
}

var (
	depositTag        = [8]byte{0xf2, 0x23, 0xc6, 0x89, 0x52, 0xe1, 0xf2, 0xb6}
	withdrawTag       = [8]byte{0xb7, 0x12, 0x46, 0x9c, 0x94, 0x6d, 0xa1, 0x22}
	initializePoolTag = [8]byte{0x5f, 0xb4, 0x0a, 0xac, 0x54, 0xae, 0xe8, 0x28}
)

// InstructionDataSize is the byte length of a deposit/withdraw payload.
const InstructionDataSize = 8 + 8 + 8 + CiphertextSize + 32 + 16

// DerivedAddresses carries every account a request needs to be routed.
// Recomputed per request, never stored as authoritative state.
type DerivedAddresses struct {
	Pool        Address
	Vault       Address
	Signer      Address
	Cluster     Address
	Mempool     Address
	ExecPool    Address
	Computation Address
	CompDef     Address
}

// AddressesFor derives the full account set for one request: the pool and
// vault under the owner identity, the fixed signer, the cluster accounts,
// the per-job computation account, and the definition account of the circuit
// that verifies the request kind.
func (d *AddressDeriver) AddressesFor(kind RequestKind, owner Address, computationOffset uint64) (*DerivedAddresses, error) {
	var (
		addrs DerivedAddresses
		err   error
	)
	if addrs.Pool, _, err = d.PoolAddress(owner); err != nil {
		return nil, err
	}
	if addrs.Vault, _, err = d.VaultAddress(addrs.Pool); err != nil {
		return nil, err
	}
	if addrs.Signer, _, err = d.SignerAddress(); err != nil {
		return nil, err
	}
	if addrs.Cluster, _, err = d.ClusterAddress(); err != nil {
		return nil, err
	}
	if addrs.Mempool, _, err = d.MempoolAddress(); err != nil {
		return nil, err
	}
	if addrs.ExecPool, _, err = d.ExecPoolAddress(); err != nil {
		return nil, err
	}
	if addrs.Computation, _, err = d.ComputationAddress(computationOffset); err != nil {
		return nil, err
	}
	if addrs.CompDef, _, err = d.CompDefAddress(kind.circuitName()); err != nil {
		return nil, err
	}
	return &addrs, nil
}

// NewComputationOffset draws a fresh 64-bit computation offset. Offsets name
// one asynchronous job each and must never be reused across requests, reuse
// risks colliding with an unrelated in-flight job.
func NewComputationOffset() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return 0, &CryptoError{Stage: StageBuild, Op: "computation offset", Err: err}
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// encodeInstructionData serializes the shared deposit/withdraw layout.
func encodeInstructionData(kind RequestKind, computationOffset, amount uint64, cred *EncryptedCredential) []byte {
	out := make([]byte, 0, InstructionDataSize)
	tag := depositTag
	if kind == Withdraw {
		tag = withdrawTag
	}
	out = append(out, tag[:]...)
	out = binary.LittleEndian.AppendUint64(out, computationOffset)
	out = binary.LittleEndian.AppendUint64(out, amount)
	out = append(out, cred.Ciphertext[:]...)
	out = append(out, cred.EphemeralPublicKey[:]...)
	out = cred.Nonce.AppendLE(out)
	return out
}

// EncodeInitializePoolData serializes the pool-initialization instruction:
// operationTag(8) | computationOffset u64 | stateNonce u128 | threshold u64.
func EncodeInitializePoolData(computationOffset uint64, stateNonce Uint128, investmentThreshold uint64) []byte {
	out := make([]byte, 0, 8+8+16+8)
	out = append(out, initializePoolTag[:]...)
	out = binary.LittleEndian.AppendUint64(out, computationOffset)
	out = stateNonce.AppendLE(out)
	return binary.LittleEndian.AppendUint64(out, investmentThreshold)
}
