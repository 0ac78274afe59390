// Package withdraw runs the withdrawal flow. The credential re-encrypts the
// same secret hash the deposit used, under a fresh ephemeral key and nonce,
// so the confidential network can match it against the stored deposit
// without the two ciphertexts (or the two wallets) being linkable.
package withdraw

import (
	"context"
	"time"

	"ghostpool/internal/ghostpool"
)

// Params are the inputs of one withdrawal attempt.
type Params struct {
	// Secret must hash bit-for-bit identically to the one the deposit was
	// made under, even when computed by a different wallet or process.
	Secret string
	// Amount in the smallest currency unit. Must be positive.
	Amount uint64
	// Owner is the pool owner's identity.
	Owner ghostpool.Address
	// NetworkPublicKey is the confidential network's x25519 key.
	NetworkPublicKey [32]byte
	// CallbackTimeout bounds how long the flow waits for authorization.
	CallbackTimeout time.Duration
}

// Result reports the submitted withdrawal and its observed outcome.
type Result struct {
	Receipt           *ghostpool.Receipt
	Outcome           ghostpool.CallbackOutcome
	ComputationOffset uint64
}

// Run executes one withdrawal attempt end to end. A fresh computation
// offset, ephemeral key, and nonce are drawn for this attempt; retrying
// after an error must call Run again rather than reuse them.
func Run(ctx context.Context, orch *ghostpool.Orchestrator, deriver *ghostpool.AddressDeriver, p Params) (*Result, error) {
	cred, err := orch.PrepareCredential(p.Secret, p.NetworkPublicKey)
	if err != nil {
		return nil, err
	}

	offset, err := ghostpool.NewComputationOffset()
	if err != nil {
		return nil, err
	}
	addrs, err := deriver.AddressesFor(ghostpool.Withdraw, p.Owner, offset)
	if err != nil {
		return nil, err
	}

	req, err := orch.BuildRequest(ghostpool.Withdraw, p.Amount, offset, cred, addrs)
	if err != nil {
		return nil, err
	}
	if err := orch.Simulate(ctx, req); err != nil {
		return nil, err
	}
	receipt, err := orch.SubmitAndConfirm(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &Result{Receipt: receipt, ComputationOffset: offset}
	outcome, err := orch.AwaitCallback(ctx, req, p.CallbackTimeout)
	result.Outcome = outcome
	if err != nil {
		// Outcome unknown: the authorization may still land; poll again.
		return result, err
	}
	return result, nil
}
