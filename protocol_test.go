package main

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ghostpool/internal/ghostpool"
	"ghostpool/internal/transactions/deposit"
	"ghostpool/internal/transactions/withdraw"
)

func TestMain(m *testing.M) {
	if err := ghostpool.InitCredentialCipher(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// =============================================================================
// 1. CRYPTOGRAPHIC BUILDING BLOCKS
// =============================================================================

func TestCredentialPrimitives(t *testing.T) {
	t.Run("Secret Hash Known Vector", func(t *testing.T) {
		got := ghostpool.HashSecret("password123")
		want := ghostpool.Uint128{Lo: 0x1e77feba78b792ef, Hi: 0xa408bcec895b2489}
		if got != want {
			t.Errorf("HashSecret mismatch: got %+v, want %+v", got, want)
		}
	})

	t.Run("Hash Agreement Across Wallets", func(t *testing.T) {
		// A deposit hashed in one process and a withdrawal hashed in
		// another must agree bit for bit on the same secret.
		if ghostpool.HashSecret("shared secret") != ghostpool.HashSecret("shared secret") {
			t.Error("secret hash is not reproducible")
		}
	})

	t.Run("Credentials Are Unlinkable", func(t *testing.T) {
		network, err := ghostpool.GenerateEphemeralKey()
		if err != nil {
			t.Fatalf("key generation failed: %v", err)
		}
		c1, err := ghostpool.NewCredential("password123", network.PublicKey())
		if err != nil {
			t.Fatalf("credential creation failed: %v", err)
		}
		c2, err := ghostpool.NewCredential("password123", network.PublicKey())
		if err != nil {
			t.Fatalf("credential creation failed: %v", err)
		}
		if c1.Ciphertext == c2.Ciphertext || c1.Nonce == c2.Nonce || c1.EphemeralPublicKey == c2.EphemeralPublicKey {
			t.Error("two encryptions of the same secret are linkable")
		}
	})
}

// =============================================================================
// 2. ADDRESS DERIVATION AND PROTOCOL CONSTANTS
// =============================================================================

func TestDerivationAgreement(t *testing.T) {
	cfg := ghostpool.DefaultProtocolConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("protocol config invalid: %v", err)
	}

	t.Run("Two Derivers Agree", func(t *testing.T) {
		var owner ghostpool.Address
		owner[0] = 7

		a, bumpA, err := ghostpool.NewAddressDeriver(cfg).PoolAddress(owner)
		if err != nil {
			t.Fatalf("derivation failed: %v", err)
		}
		b, bumpB, err := ghostpool.NewAddressDeriver(ghostpool.DefaultProtocolConfig()).PoolAddress(owner)
		if err != nil {
			t.Fatalf("derivation failed: %v", err)
		}
		if a != b || bumpA != bumpB {
			t.Error("independent derivers disagree on the pool address")
		}
	})

	t.Run("Full Account Set For Each Kind", func(t *testing.T) {
		d := ghostpool.NewAddressDeriver(cfg)
		var owner ghostpool.Address
		owner[0] = 7

		dep, err := d.AddressesFor(ghostpool.Deposit, owner, 99)
		if err != nil {
			t.Fatalf("derivation failed: %v", err)
		}
		wd, err := d.AddressesFor(ghostpool.Withdraw, owner, 99)
		if err != nil {
			t.Fatalf("derivation failed: %v", err)
		}
		if dep.CompDef == wd.CompDef {
			t.Error("deposit and withdraw share a circuit definition account")
		}
		if dep.Pool != wd.Pool || dep.Vault != wd.Vault {
			t.Error("pool routing should not depend on the request kind")
		}
	})
}

// =============================================================================
// 3. FULL PROTOCOL FLOWS
// =============================================================================

type protocolEnv struct {
	deriver *ghostpool.AddressDeriver
	ledger  *ghostpool.MockLedger
	owner   ghostpool.Address
	pool    ghostpool.Address
	network [32]byte
}

func newProtocolEnv(t *testing.T) *protocolEnv {
	t.Helper()

	deriver := ghostpool.NewAddressDeriver(ghostpool.DefaultProtocolConfig())
	var owner ghostpool.Address
	owner[0] = 0x42

	pool, bump, err := deriver.PoolAddress(owner)
	if err != nil {
		t.Fatalf("pool derivation failed: %v", err)
	}
	ledger := ghostpool.NewMockLedger(pool, &ghostpool.PoolState{Bump: bump, Owner: owner})
	ledger.SetCallbackDelay(1)

	networkKey, err := ghostpool.GenerateEphemeralKey()
	if err != nil {
		t.Fatalf("network key generation failed: %v", err)
	}
	return &protocolEnv{deriver: deriver, ledger: ledger, owner: owner, pool: pool, network: networkKey.PublicKey()}
}

func (e *protocolEnv) orchestratorFor(wallet ghostpool.Address) *ghostpool.Orchestrator {
	return ghostpool.NewOrchestrator(e.ledger, ghostpool.NewMockSigner(wallet), zerolog.Nop(), ghostpool.OrchestratorOptions{
		PollInterval:   time.Millisecond,
		InitialBackoff: time.Millisecond,
	})
}

func (e *protocolEnv) poolState(t *testing.T) *ghostpool.PoolState {
	t.Helper()
	raw, err := e.ledger.AccountData(context.Background(), e.pool)
	if err != nil {
		t.Fatalf("pool fetch failed: %v", err)
	}
	st, err := ghostpool.DecodePoolState(raw)
	if err != nil {
		t.Fatalf("pool record unreadable: %v", err)
	}
	return st
}

func TestProtocolFlows(t *testing.T) {
	ctx := context.Background()

	t.Run("Deposit Then Withdraw From Another Wallet", func(t *testing.T) {
		env := newProtocolEnv(t)

		var walletA, walletB ghostpool.Address
		walletA[0] = 0xA1
		walletB[0] = 0xB2

		depositResult, err := deposit.Run(ctx, env.orchestratorFor(walletA), env.deriver, deposit.Params{
			Secret:           "correct horse battery staple",
			Amount:           1000,
			Owner:            env.owner,
			NetworkPublicKey: env.network,
			CallbackTimeout:  time.Second,
		})
		if err != nil {
			t.Fatalf("deposit failed: %v", err)
		}
		if depositResult.Outcome != ghostpool.OutcomeFinalized {
			t.Fatalf("deposit outcome is %s", depositResult.Outcome)
		}

		withdrawResult, err := withdraw.Run(ctx, env.orchestratorFor(walletB), env.deriver, withdraw.Params{
			Secret:           "correct horse battery staple",
			Amount:           400,
			Owner:            env.owner,
			NetworkPublicKey: env.network,
			CallbackTimeout:  time.Second,
		})
		if err != nil {
			t.Fatalf("withdrawal failed: %v", err)
		}
		if withdrawResult.Outcome != ghostpool.OutcomeFinalized {
			t.Fatalf("withdrawal outcome is %s", withdrawResult.Outcome)
		}
		if withdrawResult.ComputationOffset == depositResult.ComputationOffset {
			t.Error("deposit and withdrawal shared a computation offset")
		}

		st := env.poolState(t)
		if st.TotalDeposits != 1 || st.TotalWithdrawals != 1 {
			t.Errorf("counters are %d/%d, want 1/1", st.TotalDeposits, st.TotalWithdrawals)
		}
		if st.StateNonce.IsZero() {
			t.Error("callbacks did not advance the state nonce")
		}
	})

	t.Run("Validation Failures Make No Network Calls", func(t *testing.T) {
		env := newProtocolEnv(t)

		_, err := deposit.Run(ctx, env.orchestratorFor(env.owner), env.deriver, deposit.Params{
			Secret:           "correct horse battery staple",
			Amount:           0,
			Owner:            env.owner,
			NetworkPublicKey: env.network,
			CallbackTimeout:  time.Second,
		})
		var verr *ghostpool.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if env.ledger.NetworkCalls() != 0 {
			t.Errorf("rejected request made %d network calls", env.ledger.NetworkCalls())
		}
	})

	t.Run("Transient Failures Recover Transparently", func(t *testing.T) {
		env := newProtocolEnv(t)
		env.ledger.FailSubmitWith(&ghostpool.NetworkError{Stage: ghostpool.StageSubmit, Err: errors.New("connection reset")})
		env.ledger.FailConfirmTransient(1)

		result, err := deposit.Run(ctx, env.orchestratorFor(env.owner), env.deriver, deposit.Params{
			Secret:           "correct horse battery staple",
			Amount:           500,
			Owner:            env.owner,
			NetworkPublicKey: env.network,
			CallbackTimeout:  time.Second,
		})
		if err != nil {
			t.Fatalf("deposit failed despite transient-only errors: %v", err)
		}
		if result.Outcome != ghostpool.OutcomeFinalized {
			t.Errorf("outcome is %s, want finalized", result.Outcome)
		}
		if env.ledger.SubmitCalls != 2 {
			t.Errorf("submit attempted %d times, want 2", env.ledger.SubmitCalls)
		}
	})

	t.Run("Timeout Is Ambiguous Not Failed", func(t *testing.T) {
		env := newProtocolEnv(t)
		env.ledger.SetCallbackDelay(3)
		orch := env.orchestratorFor(env.owner)

		result, err := deposit.Run(ctx, orch, env.deriver, deposit.Params{
			Secret:           "correct horse battery staple",
			Amount:           500,
			Owner:            env.owner,
			NetworkPublicKey: env.network,
			CallbackTimeout:  0,
		})
		var terr *ghostpool.TimeoutError
		if !errors.As(err, &terr) {
			t.Fatalf("expected TimeoutError, got %v", err)
		}
		if result == nil || result.Receipt == nil {
			t.Fatal("timed-out deposit lost its receipt")
		}
		if result.Outcome != ghostpool.OutcomeUnknown {
			t.Errorf("outcome is %s, want unknown", result.Outcome)
		}

		// The deposit was accepted; the record eventually advances even
		// though the caller stopped waiting.
		deadline := time.Now().Add(time.Second)
		for env.poolState(t).TotalDeposits == 0 {
			if time.Now().After(deadline) {
				t.Fatal("abandoned deposit never landed")
			}
			time.Sleep(time.Millisecond)
		}
	})

	t.Run("Gating Simulation Blocks Bad Requests", func(t *testing.T) {
		env := newProtocolEnv(t)
		env.ledger.FailSimulateWith(errors.New("program rejected payload"))

		orch := ghostpool.NewOrchestrator(env.ledger, ghostpool.NewMockSigner(env.owner), zerolog.Nop(), ghostpool.OrchestratorOptions{
			SimulationPolicy: ghostpool.SimulationGating,
			PollInterval:     time.Millisecond,
		})
		_, err := deposit.Run(ctx, orch, env.deriver, deposit.Params{
			Secret:           "correct horse battery staple",
			Amount:           500,
			Owner:            env.owner,
			NetworkPublicKey: env.network,
			CallbackTimeout:  time.Second,
		})
		var perr *ghostpool.ProtocolError
		if !errors.As(err, &perr) {
			t.Fatalf("expected ProtocolError, got %v", err)
		}
		if env.ledger.SubmitCalls != 0 {
			t.Errorf("gated request still submitted %d times", env.ledger.SubmitCalls)
		}
	})
}
