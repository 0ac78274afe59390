// Package deposit runs the deposit flow: encrypt a fresh credential for the
// user's secret, derive the request's account set, and drive the request
// through submission and callback confirmation.
package deposit

import (
	"context"
	"time"

	"ghostpool/internal/ghostpool"
)

// Params are the inputs of one deposit attempt.
type Params struct {
	// Secret is the pool secret the funds are deposited under. It is
	// hashed and encrypted inside the flow and never retained.
	Secret string
	// Amount in the smallest currency unit. Must be positive.
	Amount uint64
	// Owner is the pool owner's identity, from which the pool account is
	// derived.
	Owner ghostpool.Address
	// NetworkPublicKey is the confidential network's x25519 key.
	NetworkPublicKey [32]byte
	// CallbackTimeout bounds how long the flow waits for the callback.
	CallbackTimeout time.Duration
}

// Result reports the submitted deposit and its observed outcome.
type Result struct {
	Receipt           *ghostpool.Receipt
	Outcome           ghostpool.CallbackOutcome
	ComputationOffset uint64
}

// Run executes one deposit attempt end to end. A fresh computation offset,
// ephemeral key, and nonce are drawn for this attempt; retrying after an
// error must call Run again rather than reuse them.
func Run(ctx context.Context, orch *ghostpool.Orchestrator, deriver *ghostpool.AddressDeriver, p Params) (*Result, error) {
	cred, err := orch.PrepareCredential(p.Secret, p.NetworkPublicKey)
	if err != nil {
		return nil, err
	}

	offset, err := ghostpool.NewComputationOffset()
	if err != nil {
		return nil, err
	}
	addrs, err := deriver.AddressesFor(ghostpool.Deposit, p.Owner, offset)
	if err != nil {
		return nil, err
	}

	req, err := orch.BuildRequest(ghostpool.Deposit, p.Amount, offset, cred, addrs)
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
		// An unknown outcome is not a failure: the deposit may still land.
		return result, err
	}
	return result, nil
}
