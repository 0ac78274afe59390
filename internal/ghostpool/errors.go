package ghostpool

import (
	"errors"
	"fmt"
	"time"
)

// Stage names the request-lifecycle step an error surfaced from, so callers
// can decide between retrying with a fresh nonce and offset or re-polling.
type Stage string

const (
	StageEncrypt       Stage = "encrypt"
	StageBuild         Stage = "build"
	StageSimulate      Stage = "simulate"
	StageSubmit        Stage = "submit"
	StageConfirm       Stage = "confirm"
	StageAwaitCallback Stage = "await-callback"
)

// ValidationError reports bad input: a non-positive amount, a malformed seed
// or address. It is raised before any cryptography or network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// CryptoError reports that the key exchange or cipher primitive is
// unavailable or misconfigured. There is never a weaker fallback.
type CryptoError struct {
	Stage Stage
	Op    string
	Err   error
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crypto [%s] %s: %v", e.Stage, e.Op, e.Err)
	}
	return fmt.Sprintf("crypto [%s] %s", e.Stage, e.Op)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// CodecError reports a malformed on-ledger record: a short buffer or a
// reserved-region violation. Decoding is total; no partial result escapes.
type CodecError struct {
	Field  string
	Reason string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec: %s: %s", e.Field, e.Reason)
}

// NetworkError is a transient ledger failure (stale chain tip, rate limit,
// not yet confirmed). Retried with bounded exponential backoff.
type NetworkError struct {
	Stage Stage
	Err   error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network [%s]: %v", e.Stage, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError is a non-retryable rejection confirmed by simulation or
// execution, such as insufficient funds. Propagates immediately.
type ProtocolError struct {
	Stage  Stage
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol [%s] %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol [%s] %s", e.Stage, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TimeoutError means the callback was not observed within the bound. The
// outcome is ambiguous, never a definite failure: the remote side effect may
// still land, and the caller can re-poll by computation offset at any time.
type TimeoutError struct {
	ComputationOffset uint64
	Elapsed           time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout [%s] computation %d: outcome unknown after %s, poll again",
		StageAwaitCallback, e.ComputationOffset, e.Elapsed)
}

// IsTransient reports whether err should be retried under the backoff policy.
func IsTransient(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
