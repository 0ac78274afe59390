package ghostpool

import (
	"bytes"
	"errors"
	"testing"
)

// freshPoolRecord builds the record fixture of a just-initialized pool: tag
// and identities set, every counter and ciphertext block zero.
func freshPoolRecord(bump uint8) []byte {
	var owner, mint Address
	owner[0] = 0xAA
	mint[0] = 0xBB
	return EncodePoolState(&PoolState{
		Bump:                bump,
		Owner:               owner,
		Mint:                mint,
		VaultBump:           254,
		InvestmentThreshold: 1_000_000,
	})
}

func TestDecodePoolState(t *testing.T) {
	t.Run("Fresh Record Decodes To Zero State", func(t *testing.T) {
		raw := freshPoolRecord(255)
		if len(raw) != PoolStateSize {
			t.Fatalf("fixture is %d bytes, layout requires %d", len(raw), PoolStateSize)
		}

		st, err := DecodePoolState(raw)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if st.Bump != 255 || st.VaultBump != 254 {
			t.Errorf("bump mismatch: got %d/%d", st.Bump, st.VaultBump)
		}
		if st.TotalDeposits != 0 || st.TotalWithdrawals != 0 || st.TotalInvested != 0 {
			t.Error("fresh record decoded with non-zero counters")
		}
		if !st.StateNonce.IsZero() {
			t.Error("fresh record decoded with non-zero state nonce")
		}
		for i, block := range st.EncryptedState {
			if block != ([CiphertextSize]byte{}) {
				t.Errorf("ciphertext block %d is non-zero in a fresh record", i)
			}
		}
	})

	t.Run("Bump Flip Changes Only The Bump", func(t *testing.T) {
		a, err := DecodePoolState(freshPoolRecord(255))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		b, err := DecodePoolState(freshPoolRecord(254))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if a.Bump != 255 || b.Bump != 254 {
			t.Errorf("bumps decoded as %d and %d", a.Bump, b.Bump)
		}
		a.Bump = b.Bump
		if *a != *b {
			t.Error("flipping the bump byte perturbed another field")
		}
	})

	t.Run("Short Buffer Rejected", func(t *testing.T) {
		raw := freshPoolRecord(255)
		for _, n := range []int{0, 7, 8, EncryptedStateOffset, PoolStateSize - 1} {
			_, err := DecodePoolState(raw[:n])
			var cerr *CodecError
			if !errors.As(err, &cerr) {
				t.Errorf("length %d: expected CodecError, got %v", n, err)
			}
		}
	})

	t.Run("Wrong Tag Rejected", func(t *testing.T) {
		raw := freshPoolRecord(255)
		raw[0] ^= 0xFF
		_, err := DecodePoolState(raw)
		var cerr *CodecError
		if !errors.As(err, &cerr) {
			t.Fatalf("expected CodecError, got %v", err)
		}
		if cerr.Field != "tag" {
			t.Errorf("expected tag error, got field %q", cerr.Field)
		}
	})

	t.Run("Round Trip", func(t *testing.T) {
		st := &PoolState{
			Bump:                    253,
			VaultBump:               252,
			InvestmentThreshold:     5_000_000,
			LastInvestmentTime:      1724630400,
			StateNonce:              Uint128{Lo: 41, Hi: 1},
			TotalDeposits:           7,
			TotalWithdrawals:        3,
			TotalInvested:           2_500_000,
			PendingInvestmentAmount: 900,
			TotalCollateralReceived: 100,
		}
		st.Owner[5] = 0x01
		st.Mint[9] = 0x02
		st.CollateralAccount[31] = 0x03
		for i := range st.EncryptedState {
			st.EncryptedState[i][0] = byte(i + 1)
		}

		decoded, err := DecodePoolState(EncodePoolState(st))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if *decoded != *st {
			t.Error("decode does not invert encode")
		}
	})
}

func TestEncryptedStateRegion(t *testing.T) {
	t.Run("Region Bounds", func(t *testing.T) {
		st := &PoolState{}
		for i := range st.EncryptedState {
			for j := range st.EncryptedState[i] {
				st.EncryptedState[i][j] = byte(i)
			}
		}
		raw := EncodePoolState(st)

		region, err := EncryptedStateRegion(raw)
		if err != nil {
			t.Fatalf("region extraction failed: %v", err)
		}
		if len(region) != EncryptedStateSize {
			t.Fatalf("region is %d bytes, want %d", len(region), EncryptedStateSize)
		}
		for i := 0; i < EncryptedStateBlocks; i++ {
			block := region[i*CiphertextSize : (i+1)*CiphertextSize]
			if !bytes.Equal(block, bytes.Repeat([]byte{byte(i)}, CiphertextSize)) {
				t.Errorf("block %d does not match the encoded ciphertext", i)
			}
		}
	})

	t.Run("Short Buffer Rejected", func(t *testing.T) {
		_, err := EncryptedStateRegion(make([]byte, EncryptedStateOffset+EncryptedStateSize-1))
		var cerr *CodecError
		if !errors.As(err, &cerr) {
			t.Fatalf("expected CodecError, got %v", err)
		}
	})
}
