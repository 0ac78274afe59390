// request.go - Asynchronous request orchestration.
//
// A request moves through Idle -> Encrypting -> Built -> Simulated ->
// Submitted -> AwaitingCallback and ends in Finalized, Failed, or TimedOut.
// Submission confirms only that the request was accepted for asynchronous
// processing; the operation's outcome is observed later by polling the pool
// record through the state codec.

package ghostpool

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// RequestState is one step of the request lifecycle.
type RequestState int

const (
	StateIdle RequestState = iota
	StateEncrypting
	StateBuilt
	StateSimulated
	StateSubmitted
	StateAwaitingCallback
	StateFinalized
	StateFailed
	StateTimedOut
)

func (s RequestState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEncrypting:
		return "encrypting"
	case StateBuilt:
		return "built"
	case StateSimulated:
		return "simulated"
	case StateSubmitted:
		return "submitted"
	case StateAwaitingCallback:
		return "awaiting-callback"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// SimulationPolicy decides whether a failed simulation blocks submission.
type SimulationPolicy int

const (
	// SimulationAdvisory logs a simulation failure and submits anyway,
	// favoring progress over a slow pre-check.
	SimulationAdvisory SimulationPolicy = iota
	// SimulationGating fails the request on any simulation error.
	SimulationGating
)

func (p SimulationPolicy) String() string {
	if p == SimulationGating {
		return "gating"
	}
	return "advisory"
}

// CallbackOutcome is the result of awaiting a request's callback.
type CallbackOutcome int

const (
	// OutcomeUnknown means the callback was not observed within the bound.
	// The side effect may still land; re-poll by computation offset.
	OutcomeUnknown CallbackOutcome = iota
	// OutcomeFinalized means the callback landed and the record advanced.
	OutcomeFinalized
)

func (o CallbackOutcome) String() string {
	if o == OutcomeFinalized {
		return "finalized"
	}
	return "unknown"
}

// LedgerClient is the opaque ledger consumed by the orchestrator. Transient
// failures must be reported as *NetworkError so the retry policy can
// distinguish them from protocol rejections.
type LedgerClient interface {
	AccountData(ctx context.Context, addr Address) ([]byte, error)
	SimulateTransaction(ctx context.Context, tx []byte) error
	SubmitTransaction(ctx context.Context, tx []byte) (string, error)
	ConfirmTransaction(ctx context.Context, signature string) error
}

// WalletSigner produces a signature over supplied transaction bytes, or
// rejects.
type WalletSigner interface {
	PublicKey() Address
	Sign(tx []byte) ([]byte, error)
}

// Receipt records that a request was accepted for asynchronous processing.
// It says nothing about whether the underlying operation succeeded.
type Receipt struct {
	Signature   string
	SubmittedAt time.Time
}

// Request is one in-flight pool operation. Not safe for concurrent use; each
// user operation owns its request.
type Request struct {
	Kind              RequestKind
	ComputationOffset uint64
	Amount            uint64
	Addresses         DerivedAddresses
	Data              []byte

	state    RequestState
	receipt  *Receipt
	baseline *PoolState
}

// State returns the request's current lifecycle state.
func (r *Request) State() RequestState { return r.state }

// Receipt returns the submission receipt, or nil before confirmation.
func (r *Request) Receipt() *Receipt { return r.receipt }

// OrchestratorOptions tunes orchestration policy.
type OrchestratorOptions struct {
	SimulationPolicy SimulationPolicy
	// PollInterval between callback status checks. Defaults to 2s.
	PollInterval time.Duration
	// MaxRetries bounds backoff attempts for transient failures. Defaults to 5.
	MaxRetries uint64
	// InitialBackoff is the first retry delay. Defaults to 500ms.
	InitialBackoff time.Duration
}

// Orchestrator drives requests against the ledger. It holds no per-request
// state and is safe to share across concurrent operations.
type Orchestrator struct {
	client LedgerClient
	signer WalletSigner
	log    zerolog.Logger

	policy         SimulationPolicy
	pollInterval   time.Duration
	maxRetries     uint64
	initialBackoff time.Duration
}

// NewOrchestrator creates an orchestrator over a ledger client and signer.
func NewOrchestrator(client LedgerClient, signer WalletSigner, log zerolog.Logger, opts OrchestratorOptions) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 5
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	return &Orchestrator{
		client:         client,
		signer:         signer,
		log:            log,
		policy:         opts.SimulationPolicy,
		pollInterval:   opts.PollInterval,
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
	}
}

// PrepareCredential encrypts a fresh credential for one attempt. Neither the
// secret nor any intermediate key material is logged.
func (o *Orchestrator) PrepareCredential(secret string, networkPublicKey [32]byte) (*EncryptedCredential, error) {
	cred, err := NewCredential(secret, networkPublicKey)
	if err != nil {
		o.log.Error().Str("stage", string(StageEncrypt)).Err(err).Msg("credential encryption failed")
		return nil, err
	}
	return cred, nil
}

// BuildRequest assembles a deposit or withdraw payload. The amount is in the
// smallest currency unit and must be positive; validation happens before any
// cryptography or network call.
func (o *Orchestrator) BuildRequest(kind RequestKind, amount uint64, computationOffset uint64, cred *EncryptedCredential, addrs *DerivedAddresses) (*Request, error) {
	if amount == 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be a positive integer in the smallest currency unit"}
	}
	if cred == nil {
		return nil, &ValidationError{Field: "credential", Reason: "missing encrypted credential"}
	}
	if addrs == nil {
		return nil, &ValidationError{Field: "addresses", Reason: "missing derived addresses"}
	}
	req := &Request{
		Kind:              kind,
		ComputationOffset: computationOffset,
		Amount:            amount,
		Addresses:         *addrs,
		Data:              encodeInstructionData(kind, computationOffset, amount, cred),
		state:             StateBuilt,
	}
	o.log.Debug().
		Str("kind", kind.String()).
		Uint64("computation_offset", computationOffset).
		Uint64("amount", amount).
		Msg("request built")
	return req, nil
}

// BuildInitializeRequest assembles the pool-initialization payload: a fresh
// state nonce and the investment threshold the pool starts with. Carries no
// credential; the pool record it creates holds only zeroed ciphertext blocks.
func (o *Orchestrator) BuildInitializeRequest(computationOffset uint64, stateNonce Uint128, investmentThreshold uint64, addrs *DerivedAddresses) (*Request, error) {
	if addrs == nil {
		return nil, &ValidationError{Field: "addresses", Reason: "missing derived addresses"}
	}
	req := &Request{
		Kind:              InitializePool,
		ComputationOffset: computationOffset,
		Addresses:         *addrs,
		Data:              EncodeInitializePoolData(computationOffset, stateNonce, investmentThreshold),
		state:             StateBuilt,
	}
	o.log.Debug().
		Str("kind", InitializePool.String()).
		Uint64("computation_offset", computationOffset).
		Msg("request built")
	return req, nil
}

// Simulate runs an advisory pre-check of the payload. Under the advisory
// policy a failure is logged and submission still proceeds; under the gating
// policy it fails the request with the rejection reason.
func (o *Orchestrator) Simulate(ctx context.Context, req *Request) error {
	err := o.client.SimulateTransaction(ctx, req.Data)
	if err == nil {
		req.state = StateSimulated
		return nil
	}
	if o.policy == SimulationGating {
		req.state = StateFailed
		return &ProtocolError{Stage: StageSimulate, Reason: "simulation rejected request", Err: err}
	}
	o.log.Warn().
		Str("kind", req.Kind.String()).
		Uint64("computation_offset", req.ComputationOffset).
		Err(err).
		Msg("simulation failed, submitting anyway under advisory policy")
	req.state = StateSimulated
	return nil
}

// SubmitAndConfirm signs, submits, and confirms the request. Confirmation
// means the ledger accepted it for asynchronous processing, nothing more.
// Transient submit/confirm failures are retried with bounded exponential
// backoff; protocol rejections propagate immediately.
func (o *Orchestrator) SubmitAndConfirm(ctx context.Context, req *Request) (*Receipt, error) {
	// Snapshot the pool record so AwaitCallback can recognize the advance
	// this request causes. A missing snapshot is recovered on first poll.
	if raw, err := o.client.AccountData(ctx, req.Addresses.Pool); err == nil {
		if st, derr := DecodePoolState(raw); derr == nil {
			req.baseline = st
		}
	}

	signed, err := o.signer.Sign(req.Data)
	if err != nil {
		req.state = StateFailed
		return nil, &ProtocolError{Stage: StageSubmit, Reason: "wallet refused to sign", Err: err}
	}

	signature, err := o.submitWithRetry(ctx, signed)
	if err != nil {
		req.state = StateFailed
		return nil, err
	}
	req.state = StateSubmitted

	if err := o.confirmWithRetry(ctx, signature); err != nil {
		req.state = StateFailed
		return nil, err
	}
	req.receipt = &Receipt{Signature: signature, SubmittedAt: time.Now()}
	req.state = StateAwaitingCallback

	o.log.Info().
		Str("kind", req.Kind.String()).
		Uint64("computation_offset", req.ComputationOffset).
		Str("signature", signature).
		Msg("request accepted for asynchronous processing")
	return req.receipt, nil
}

func (o *Orchestrator) submitWithRetry(ctx context.Context, signed []byte) (string, error) {
	return backoff.RetryWithData(func() (string, error) {
		signature, err := o.client.SubmitTransaction(ctx, signed)
		if err == nil {
			return signature, nil
		}
		if IsTransient(err) {
			o.log.Debug().Err(err).Msg("transient submit failure, backing off")
			return "", err
		}
		return "", backoff.Permanent(&ProtocolError{Stage: StageSubmit, Reason: "ledger rejected request", Err: err})
	}, o.newBackOff(ctx))
}

func (o *Orchestrator) confirmWithRetry(ctx context.Context, signature string) error {
	return backoff.Retry(func() error {
		err := o.client.ConfirmTransaction(ctx, signature)
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			o.log.Debug().Err(err).Msg("not yet confirmed, backing off")
			return err
		}
		return backoff.Permanent(&ProtocolError{Stage: StageConfirm, Reason: "confirmation rejected", Err: err})
	}, o.newBackOff(ctx))
}

func (o *Orchestrator) newBackOff(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.initialBackoff
	return backoff.WithContext(backoff.WithMaxRetries(bo, o.maxRetries), ctx)
}

// AwaitCallback polls the pool record until the request's effect is observed
// or the timeout elapses. A zero or elapsed timeout still performs exactly
// one status check. On timeout the outcome is unknown, never a failure: the
// remote computation is not cancelled by abandoning the poll, and a later
// call on the same request observes the eventual outcome.
func (o *Orchestrator) AwaitCallback(ctx context.Context, req *Request, timeout time.Duration) (CallbackOutcome, error) {
	start := time.Now()
	deadline := start.Add(timeout)
	for {
		st, err := o.pollOnce(ctx, req)
		if err != nil && !IsTransient(err) {
			return OutcomeUnknown, err
		}
		if err != nil {
			o.log.Debug().Err(err).Msg("transient poll failure")
		} else if o.callbackObserved(req, st) {
			req.state = StateFinalized
			o.log.Info().
				Str("kind", req.Kind.String()).
				Uint64("computation_offset", req.ComputationOffset).
				Dur("elapsed", time.Since(start)).
				Msg("callback observed")
			return OutcomeFinalized, nil
		}

		if !time.Now().Before(deadline) {
			req.state = StateTimedOut
			return OutcomeUnknown, &TimeoutError{ComputationOffset: req.ComputationOffset, Elapsed: time.Since(start)}
		}
		select {
		case <-ctx.Done():
			req.state = StateTimedOut
			return OutcomeUnknown, &TimeoutError{ComputationOffset: req.ComputationOffset, Elapsed: time.Since(start)}
		case <-time.After(o.pollInterval):
		}
	}
}

func (o *Orchestrator) pollOnce(ctx context.Context, req *Request) (*PoolState, error) {
	raw, err := o.client.AccountData(ctx, req.Addresses.Pool)
	if err != nil {
		if IsTransient(err) {
			return nil, err
		}
		return nil, &ProtocolError{Stage: StageAwaitCallback, Reason: "pool account fetch failed", Err: err}
	}
	st, err := DecodePoolState(raw)
	if err != nil {
		var ce *CodecError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &ProtocolError{Stage: StageAwaitCallback, Reason: "pool record unreadable", Err: err}
	}
	return st, nil
}

// callbackObserved reports whether the record advanced past the snapshot
// taken at submission. Deposits advance the deposit counter, withdrawals the
// withdrawal counter; every state-rewriting callback also advances the state
// nonce by one.
func (o *Orchestrator) callbackObserved(req *Request, st *PoolState) bool {
	// Initialization creates the record; decoding one at all is the effect.
	if req.Kind == InitializePool {
		return true
	}
	if req.baseline == nil {
		req.baseline = st
		return false
	}
	switch req.Kind {
	case Deposit:
		return st.TotalDeposits > req.baseline.TotalDeposits
	case Withdraw:
		return st.TotalWithdrawals > req.baseline.TotalWithdrawals
	default:
		return st.StateNonce != req.baseline.StateNonce
	}
}
