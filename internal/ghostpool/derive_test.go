package ghostpool

import (
	"errors"
	"testing"
)

func TestDeriveAddress(t *testing.T) {
	cfg := DefaultProtocolConfig()

	t.Run("Deterministic", func(t *testing.T) {
		seeds := [][]byte{[]byte("ghost_pool"), make([]byte, 32)}
		a1, b1, err := DeriveAddress(seeds, cfg.PoolProgram)
		if err != nil {
			t.Fatalf("derivation failed: %v", err)
		}
		a2, b2, err := DeriveAddress(seeds, cfg.PoolProgram)
		if err != nil {
			t.Fatalf("derivation failed: %v", err)
		}
		if a1 != a2 || b1 != b2 {
			t.Error("derivation is not deterministic")
		}
	})

	t.Run("Result Is Off Curve", func(t *testing.T) {
		addr, _, err := DeriveAddress([][]byte{[]byte("signer")}, cfg.PoolProgram)
		if err != nil {
			t.Fatalf("derivation failed: %v", err)
		}
		if !isOffCurve(addr) {
			t.Error("derived address decompresses as a curve point")
		}
	})

	t.Run("Seeds Change Address", func(t *testing.T) {
		a, _, err := DeriveAddress([][]byte{[]byte("vault")}, cfg.PoolProgram)
		if err != nil {
			t.Fatalf("derivation failed: %v", err)
		}
		b, _, err := DeriveAddress([][]byte{[]byte("vault2")}, cfg.PoolProgram)
		if err != nil {
			t.Fatalf("derivation failed: %v", err)
		}
		if a == b {
			t.Error("different seeds derived the same address")
		}
	})

	t.Run("Program Changes Address", func(t *testing.T) {
		a, _, err := DeriveAddress([][]byte{[]byte("vault")}, cfg.PoolProgram)
		if err != nil {
			t.Fatalf("derivation failed: %v", err)
		}
		b, _, err := DeriveAddress([][]byte{[]byte("vault")}, cfg.NetworkProgram)
		if err != nil {
			t.Fatalf("derivation failed: %v", err)
		}
		if a == b {
			t.Error("different owning programs derived the same address")
		}
	})

	t.Run("Oversized Seed Rejected", func(t *testing.T) {
		_, _, err := DeriveAddress([][]byte{make([]byte, 33)}, cfg.PoolProgram)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("Too Many Seeds Rejected", func(t *testing.T) {
		seeds := make([][]byte, 17)
		for i := range seeds {
			seeds[i] = []byte{byte(i)}
		}
		_, _, err := DeriveAddress(seeds, cfg.PoolProgram)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestOffsetForCircuitName(t *testing.T) {
	t.Run("Registry Agrees With Derivation", func(t *testing.T) {
		for name, registered := range DefaultProtocolConfig().Circuits {
			if derived := OffsetForCircuitName(name); derived != registered {
				t.Errorf("circuit %s: registry has %d, derivation gives %d", name, registered, derived)
			}
		}
	})

	t.Run("Distinct Names Distinct Offsets", func(t *testing.T) {
		seen := make(map[uint32]string)
		for name := range DefaultProtocolConfig().Circuits {
			offset := OffsetForCircuitName(name)
			if prev, ok := seen[offset]; ok {
				t.Errorf("circuits %s and %s collide on offset %d", prev, name, offset)
			}
			seen[offset] = name
		}
	})
}

func TestAddressDeriver(t *testing.T) {
	cfg := DefaultProtocolConfig()
	d := NewAddressDeriver(cfg)

	var owner Address
	owner[0] = 0x11

	t.Run("Named Derivations Are Stable", func(t *testing.T) {
		pool1, bump1, err := d.PoolAddress(owner)
		if err != nil {
			t.Fatalf("pool derivation failed: %v", err)
		}
		pool2, bump2, err := d.PoolAddress(owner)
		if err != nil {
			t.Fatalf("pool derivation failed: %v", err)
		}
		if pool1 != pool2 || bump1 != bump2 {
			t.Error("pool derivation is not stable")
		}

		// The memoized result must match the pure derivation.
		direct, directBump, err := DeriveAddress([][]byte{[]byte(cfg.Seeds.Pool), owner[:]}, cfg.PoolProgram)
		if err != nil {
			t.Fatalf("direct derivation failed: %v", err)
		}
		if pool1 != direct || bump1 != directBump {
			t.Error("memoized derivation disagrees with direct derivation")
		}
	})

	t.Run("Cluster Accounts Are Distinct", func(t *testing.T) {
		cluster, _, err := d.ClusterAddress()
		if err != nil {
			t.Fatalf("cluster derivation failed: %v", err)
		}
		mempool, _, err := d.MempoolAddress()
		if err != nil {
			t.Fatalf("mempool derivation failed: %v", err)
		}
		execPool, _, err := d.ExecPoolAddress()
		if err != nil {
			t.Fatalf("exec pool derivation failed: %v", err)
		}
		if cluster == mempool || cluster == execPool || mempool == execPool {
			t.Error("cluster account derivations collide")
		}
	})

	t.Run("Computation Address Varies With Offset", func(t *testing.T) {
		a, _, err := d.ComputationAddress(1)
		if err != nil {
			t.Fatalf("computation derivation failed: %v", err)
		}
		b, _, err := d.ComputationAddress(2)
		if err != nil {
			t.Fatalf("computation derivation failed: %v", err)
		}
		if a == b {
			t.Error("different computation offsets derived the same address")
		}
	})

	t.Run("Unknown Circuit Rejected", func(t *testing.T) {
		_, _, err := d.CompDefAddress("no_such_circuit")
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("Known Circuits Resolve", func(t *testing.T) {
		for _, name := range []string{CircuitProcessDeposit, CircuitAuthorizeWithdrawal, CircuitInitPoolState} {
			if _, _, err := d.CompDefAddress(name); err != nil {
				t.Errorf("circuit %s: %v", name, err)
			}
		}
	})
}
