package ghostpool

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func testCredential(t *testing.T, secret string) *EncryptedCredential {
	t.Helper()
	network, err := GenerateEphemeralKey()
	if err != nil {
		t.Fatalf("network key generation failed: %v", err)
	}
	cred, err := NewCredential(secret, network.PublicKey())
	if err != nil {
		t.Fatalf("credential creation failed: %v", err)
	}
	return cred
}

func TestEncodeInstructionData(t *testing.T) {
	cred := testCredential(t, "password123")

	t.Run("Layout", func(t *testing.T) {
		data := encodeInstructionData(Deposit, 0x0102030405060708, 500, cred)
		if len(data) != InstructionDataSize {
			t.Fatalf("payload is %d bytes, want %d", len(data), InstructionDataSize)
		}
		if [8]byte(data[:8]) != depositTag {
			t.Error("payload does not start with the deposit tag")
		}
		if binary.LittleEndian.Uint64(data[8:16]) != 0x0102030405060708 {
			t.Error("computation offset not little-endian at offset 8")
		}
		if binary.LittleEndian.Uint64(data[16:24]) != 500 {
			t.Error("amount not little-endian at offset 16")
		}
		if !bytes.Equal(data[24:56], cred.Ciphertext[:]) {
			t.Error("ciphertext misplaced")
		}
		if !bytes.Equal(data[56:88], cred.EphemeralPublicKey[:]) {
			t.Error("ephemeral public key misplaced")
		}
		if Uint128FromLE(data[88:104]) != cred.Nonce {
			t.Error("nonce misplaced")
		}
	})

	t.Run("Kinds Differ Only In Tag", func(t *testing.T) {
		dep := encodeInstructionData(Deposit, 1, 2, cred)
		wd := encodeInstructionData(Withdraw, 1, 2, cred)
		if [8]byte(wd[:8]) != withdrawTag {
			t.Error("withdraw payload does not start with the withdraw tag")
		}
		if !bytes.Equal(dep[8:], wd[8:]) {
			t.Error("deposit and withdraw payload bodies diverge")
		}
	})
}

func TestEncodeInitializePoolData(t *testing.T) {
	data := EncodeInitializePoolData(7, Uint128{Lo: 1, Hi: 2}, 1_000_000)
	if len(data) != 8+8+16+8 {
		t.Fatalf("payload is %d bytes", len(data))
	}
	if [8]byte(data[:8]) != initializePoolTag {
		t.Error("payload does not start with the initialize tag")
	}
	if binary.LittleEndian.Uint64(data[8:16]) != 7 {
		t.Error("computation offset misplaced")
	}
	if Uint128FromLE(data[16:32]) != (Uint128{Lo: 1, Hi: 2}) {
		t.Error("state nonce misplaced")
	}
	if binary.LittleEndian.Uint64(data[32:40]) != 1_000_000 {
		t.Error("threshold misplaced")
	}
}

func TestAddressesFor(t *testing.T) {
	d := NewAddressDeriver(DefaultProtocolConfig())
	var owner Address
	owner[0] = 0x42

	addrs, err := d.AddressesFor(Deposit, owner, 12345)
	if err != nil {
		t.Fatalf("address derivation failed: %v", err)
	}

	t.Run("All Accounts Populated", func(t *testing.T) {
		for name, addr := range map[string]Address{
			"pool":        addrs.Pool,
			"vault":       addrs.Vault,
			"signer":      addrs.Signer,
			"cluster":     addrs.Cluster,
			"mempool":     addrs.Mempool,
			"exec_pool":   addrs.ExecPool,
			"computation": addrs.Computation,
			"comp_def":    addrs.CompDef,
		} {
			if addr.IsZero() {
				t.Errorf("account %s is zero", name)
			}
		}
	})

	t.Run("Kind Selects The Circuit Definition", func(t *testing.T) {
		wd, err := d.AddressesFor(Withdraw, owner, 12345)
		if err != nil {
			t.Fatalf("address derivation failed: %v", err)
		}
		if wd.CompDef == addrs.CompDef {
			t.Error("deposit and withdraw resolve to the same circuit definition")
		}
		if wd.Pool != addrs.Pool || wd.Computation != addrs.Computation {
			t.Error("kind changed an account that should not depend on it")
		}
	})

	t.Run("NewComputationOffset Draws Fresh Values", func(t *testing.T) {
		a, err := NewComputationOffset()
		if err != nil {
			t.Fatalf("offset generation failed: %v", err)
		}
		b, err := NewComputationOffset()
		if err != nil {
			t.Fatalf("offset generation failed: %v", err)
		}
		if a == b {
			t.Error("two drawn computation offsets collide")
		}
	})
}
