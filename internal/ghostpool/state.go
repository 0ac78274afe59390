// state.go - Codec for the on-ledger pool state record.
//
// The record layout is fixed, little-endian, with no padding. Decoding is
// total: a short buffer or a tag mismatch fails without partially populating
// a result. The decoded record is the only way the client observes whether a
// deposit or withdrawal eventually took effect.

package ghostpool

import (
	"encoding/binary"
	"fmt"
)

const (
	// EncryptedStateBlocks is the fixed count of 32-byte ciphertext blocks.
	// A decoder must never accept fewer or silently truncate.
	EncryptedStateBlocks = 13

	// EncryptedStateOffset is the byte offset of the ciphertext region
	// within the raw record: tag(8) + bump(1) + owner(32) + mint(32) +
	// vaultBump(1) + threshold(8) + lastInvestmentTime(8) + stateNonce(16).
	EncryptedStateOffset = 106

	// EncryptedStateSize is the byte length of the ciphertext region.
	EncryptedStateSize = EncryptedStateBlocks * CiphertextSize

	// PoolStateSize is the full record length.
	PoolStateSize = EncryptedStateOffset + EncryptedStateSize + 8 + 8 + 8 + 8 + AddressSize + 8
)

// poolRecordTag is the 8-byte record tag identifying a pool state account.
var poolRecordTag = [8]byte{0x43, 0x82, 0x2f, 0x62, 0x19, 0xc9, 0x09, 0xf6}

// PoolState is the decoded on-ledger pool record. Created once by the
// pool-initialization request; the ciphertext blocks and counters are
// mutated only by the confidential network's callback, never by the client.
type PoolState struct {
	Bump                    uint8
	Owner                   Address
	Mint                    Address
	VaultBump               uint8
	InvestmentThreshold     uint64
	LastInvestmentTime      int64
	StateNonce              Uint128
	EncryptedState          [EncryptedStateBlocks][CiphertextSize]byte
	TotalDeposits           uint64
	TotalWithdrawals        uint64
	TotalInvested           uint64
	PendingInvestmentAmount uint64
	CollateralAccount       Address
	TotalCollateralReceived uint64
}

// DecodePoolState decodes a raw account buffer into a PoolState.
func DecodePoolState(data []byte) (*PoolState, error) {
	if len(data) < PoolStateSize {
		return nil, &CodecError{
			Field:  "record",
			Reason: fmt.Sprintf("buffer is %d bytes, layout requires %d", len(data), PoolStateSize),
		}
	}
	if [8]byte(data[:8]) != poolRecordTag {
		return nil, &CodecError{Field: "tag", Reason: "record tag does not identify a pool state account"}
	}

	var st PoolState
	offset := 8
	getUint8(data, &st.Bump, &offset)
	getAddress(data, &st.Owner, &offset)
	getAddress(data, &st.Mint, &offset)
	getUint8(data, &st.VaultBump, &offset)
	getUint64(data, &st.InvestmentThreshold, &offset)
	getInt64(data, &st.LastInvestmentTime, &offset)
	getUint128(data, &st.StateNonce, &offset)
	for i := range st.EncryptedState {
		copy(st.EncryptedState[i][:], data[offset:offset+CiphertextSize])
		offset += CiphertextSize
	}
	getUint64(data, &st.TotalDeposits, &offset)
	getUint64(data, &st.TotalWithdrawals, &offset)
	getUint64(data, &st.TotalInvested, &offset)
	getUint64(data, &st.PendingInvestmentAmount, &offset)
	getAddress(data, &st.CollateralAccount, &offset)
	getUint64(data, &st.TotalCollateralReceived, &offset)
	return &st, nil
}

// EncodePoolState is the exact inverse of DecodePoolState. The client never
// writes this record to the ledger; the encoder exists for fixtures and the
// in-memory ledger used in tests.
func EncodePoolState(st *PoolState) []byte {
	out := make([]byte, 0, PoolStateSize)
	out = append(out, poolRecordTag[:]...)
	out = append(out, st.Bump)
	out = append(out, st.Owner[:]...)
	out = append(out, st.Mint[:]...)
	out = append(out, st.VaultBump)
	out = binary.LittleEndian.AppendUint64(out, st.InvestmentThreshold)
	out = binary.LittleEndian.AppendUint64(out, uint64(st.LastInvestmentTime))
	out = st.StateNonce.AppendLE(out)
	for i := range st.EncryptedState {
		out = append(out, st.EncryptedState[i][:]...)
	}
	out = binary.LittleEndian.AppendUint64(out, st.TotalDeposits)
	out = binary.LittleEndian.AppendUint64(out, st.TotalWithdrawals)
	out = binary.LittleEndian.AppendUint64(out, st.TotalInvested)
	out = binary.LittleEndian.AppendUint64(out, st.PendingInvestmentAmount)
	out = append(out, st.CollateralAccount[:]...)
	out = binary.LittleEndian.AppendUint64(out, st.TotalCollateralReceived)
	return out
}

// EncryptedStateRegion returns the raw ciphertext region of a pool record,
// the exact bytes the pool program hands to the confidential network.
func EncryptedStateRegion(data []byte) ([]byte, error) {
	if len(data) < EncryptedStateOffset+EncryptedStateSize {
		return nil, &CodecError{
			Field:  "encrypted_state",
			Reason: fmt.Sprintf("buffer is %d bytes, region ends at %d", len(data), EncryptedStateOffset+EncryptedStateSize),
		}
	}
	return data[EncryptedStateOffset : EncryptedStateOffset+EncryptedStateSize], nil
}

func getUint8(src []byte, dst *uint8, offset *int) {
	*dst = src[*offset]
	*offset++
}

func getUint64(src []byte, dst *uint64, offset *int) {
	*dst = binary.LittleEndian.Uint64(src[*offset:])
	*offset += 8
}

func getInt64(src []byte, dst *int64, offset *int) {
	*dst = int64(binary.LittleEndian.Uint64(src[*offset:]))
	*offset += 8
}

func getUint128(src []byte, dst *Uint128, offset *int) {
	*dst = Uint128FromLE(src[*offset:])
	*offset += 16
}

func getAddress(src []byte, dst *Address, offset *int) {
	copy(dst[:], src[*offset:*offset+AddressSize])
	*offset += AddressSize
}
