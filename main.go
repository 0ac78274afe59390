// main.go - End-to-end confidential pool scenario.
//
// This demonstrates the complete client-side lifecycle against an in-memory
// ledger:
//   - a pool owner initializes the pool record
//   - wallet A deposits 1000 units under a secret
//   - wallet B, knowing only the secret, withdraws 400 from the same pool
//   - a withdrawal with a zero amount is rejected before touching the ledger
//   - a request that outlives its callback window reports an unknown outcome
//     and is resolved by re-polling
//
// Usage:
//
//	go run .
//
// The confidential network is emulated: submitted requests mutate the pool
// record after a delay, the way the network's callback lands asynchronously.
// Nothing here ever prints a secret, a secret hash, or an ephemeral key.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"

	"ghostpool/internal/ghostpool"
	"ghostpool/internal/transactions/deposit"
	"ghostpool/internal/transactions/withdraw"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
		Level(zerolog.InfoLevel).With().Timestamp().Logger()
	ctx := context.Background()

	logger.Info().Msg("=== confidential pool scenario ===")

	if err := ghostpool.InitCredentialCipher(); err != nil {
		logger.Fatal().Err(err).Msg("credential cipher initialization failed")
	}

	cfg := ghostpool.DefaultProtocolConfig()
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("protocol config invalid")
	}
	deriver := ghostpool.NewAddressDeriver(cfg)

	// 1. The pool owner's identity and the pool record derived from it.
	var owner ghostpool.Address
	owner[0] = 0x42
	pool, bump, err := deriver.PoolAddress(owner)
	if err != nil {
		logger.Fatal().Err(err).Msg("pool derivation failed")
	}
	logger.Info().Str("pool", pool.String()).Uint8("bump", bump).Msg("pool account derived")

	ledger := ghostpool.NewMockLedger(pool, &ghostpool.PoolState{
		Bump:                bump,
		Owner:               owner,
		InvestmentThreshold: 1_000_000,
	})
	ledger.SetCallbackDelay(1)

	// 2. The confidential network's encryption key. In a live deployment
	// this comes from the network's published cluster account.
	networkKey, err := ghostpool.GenerateEphemeralKey()
	if err != nil {
		logger.Fatal().Err(err).Msg("network key generation failed")
	}
	networkPub := networkKey.PublicKey()

	const secret = "correct horse battery staple"

	orchestratorFor := func(wallet ghostpool.Address) *ghostpool.Orchestrator {
		return ghostpool.NewOrchestrator(ledger, ghostpool.NewMockSigner(wallet), logger, ghostpool.OrchestratorOptions{
			PollInterval: 10 * time.Millisecond,
		})
	}

	// 3. Wallet A deposits under the secret.
	var walletA ghostpool.Address
	walletA[0] = 0xA1
	depositResult, err := deposit.Run(ctx, orchestratorFor(walletA), deriver, deposit.Params{
		Secret:           secret,
		Amount:           1000,
		Owner:            owner,
		NetworkPublicKey: networkPub,
		CallbackTimeout:  5 * time.Second,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("deposit failed")
	}
	logger.Info().
		Str("signature", depositResult.Receipt.Signature).
		Str("outcome", depositResult.Outcome.String()).
		Msg("wallet A deposited 1000")

	// 4. Wallet B shares nothing with wallet A except the secret.
	var walletB ghostpool.Address
	walletB[0] = 0xB2
	withdrawResult, err := withdraw.Run(ctx, orchestratorFor(walletB), deriver, withdraw.Params{
		Secret:           secret,
		Amount:           400,
		Owner:            owner,
		NetworkPublicKey: networkPub,
		CallbackTimeout:  5 * time.Second,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("withdrawal failed")
	}
	logger.Info().
		Str("signature", withdrawResult.Receipt.Signature).
		Str("outcome", withdrawResult.Outcome.String()).
		Msg("wallet B withdrew 400 using only the secret")

	// 5. A malformed request never reaches the ledger.
	callsBefore := ledger.NetworkCalls()
	_, err = withdraw.Run(ctx, orchestratorFor(walletB), deriver, withdraw.Params{
		Secret:           secret,
		Amount:           0,
		Owner:            owner,
		NetworkPublicKey: networkPub,
		CallbackTimeout:  5 * time.Second,
	})
	var verr *ghostpool.ValidationError
	if !errors.As(err, &verr) {
		logger.Fatal().Err(err).Msg("zero-amount withdrawal was not rejected")
	}
	logger.Info().
		Int("network_calls", ledger.NetworkCalls()-callsBefore).
		Msg("zero-amount withdrawal rejected locally")

	// 6. A slow callback: the first wait times out with an unknown outcome,
	// a later poll on the same request observes the finalized state.
	ledger.SetCallbackDelay(50)
	slowOrch := orchestratorFor(walletA)
	cred, err := slowOrch.PrepareCredential(secret, networkPub)
	if err != nil {
		logger.Fatal().Err(err).Msg("credential preparation failed")
	}
	offset, err := ghostpool.NewComputationOffset()
	if err != nil {
		logger.Fatal().Err(err).Msg("offset generation failed")
	}
	addrs, err := deriver.AddressesFor(ghostpool.Deposit, owner, offset)
	if err != nil {
		logger.Fatal().Err(err).Msg("address derivation failed")
	}
	req, err := slowOrch.BuildRequest(ghostpool.Deposit, 250, offset, cred, addrs)
	if err != nil {
		logger.Fatal().Err(err).Msg("request build failed")
	}
	if _, err := slowOrch.SubmitAndConfirm(ctx, req); err != nil {
		logger.Fatal().Err(err).Msg("submission failed")
	}

	_, err = slowOrch.AwaitCallback(ctx, req, 0)
	var terr *ghostpool.TimeoutError
	if !errors.As(err, &terr) {
		logger.Fatal().Err(err).Msg("expected a timeout on the fast path")
	}
	logger.Info().
		Uint64("computation_offset", terr.ComputationOffset).
		Msg("callback window elapsed, outcome unknown, re-polling")

	outcome, err := slowOrch.AwaitCallback(ctx, req, time.Minute)
	if err != nil {
		logger.Fatal().Err(err).Msg("re-poll failed")
	}
	logger.Info().Str("outcome", outcome.String()).Msg("slow deposit resolved")

	// 7. Final pool record.
	raw, err := ledger.AccountData(ctx, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("pool fetch failed")
	}
	st, err := ghostpool.DecodePoolState(raw)
	if err != nil {
		logger.Fatal().Err(err).Msg("pool record unreadable")
	}
	logger.Info().
		Uint64("total_deposits", st.TotalDeposits).
		Uint64("total_withdrawals", st.TotalWithdrawals).
		Str("state_nonce", st.StateNonce.String()).
		Msg("=== scenario complete ===")
}
