// mock.go - In-memory ledger and signer for tests and the demo scenario.
//
// MockLedger emulates just enough of the ledger and the confidential
// network's callback to exercise the full request lifecycle: submitted
// deposit/withdraw payloads mutate the stored pool record after a
// configurable number of polls, the way the real callback lands
// asynchronously.

package ghostpool

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"
)

type pendingCallback struct {
	kind      RequestKind
	remaining int
}

// MockLedger implements LedgerClient against in-memory accounts.
type MockLedger struct {
	mu       sync.Mutex
	accounts map[Address][]byte
	pool     Address

	simulateErr      error
	submitErrs       []error
	confirmTransient int
	callbackDelay    int
	pending          []pendingCallback

	SimulateCalls  int
	SubmitCalls    int
	ConfirmCalls   int
	AccountFetches int
}

// NewMockLedger creates a ledger holding one pool record.
func NewMockLedger(pool Address, initial *PoolState) *MockLedger {
	m := &MockLedger{
		accounts: make(map[Address][]byte),
		pool:     pool,
	}
	if initial != nil {
		m.accounts[pool] = EncodePoolState(initial)
	}
	return m
}

// SetAccount stores raw account data.
func (m *MockLedger) SetAccount(addr Address, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[addr] = append([]byte(nil), data...)
}

// FailSimulateWith makes every simulation return err.
func (m *MockLedger) FailSimulateWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateErr = err
}

// FailSubmitWith queues errors returned by successive submits before the
// next submit succeeds.
func (m *MockLedger) FailSubmitWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitErrs = append(m.submitErrs, errs...)
}

// FailConfirmTransient makes the next n confirmations report "not yet
// confirmed" as a transient failure.
func (m *MockLedger) FailConfirmTransient(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmTransient = n
}

// SetCallbackDelay sets how many pool polls return the pre-callback record
// before a submitted request's callback is applied.
func (m *MockLedger) SetCallbackDelay(polls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbackDelay = polls
}

// NetworkCalls returns the total number of ledger round-trips observed.
func (m *MockLedger) NetworkCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SimulateCalls + m.SubmitCalls + m.ConfirmCalls + m.AccountFetches
}

// AccountData returns a copy of the stored account buffer, applying any
// matured callbacks to the pool record first.
func (m *MockLedger) AccountData(_ context.Context, addr Address) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AccountFetches++

	if addr == m.pool {
		m.advanceCallbacks()
	}
	data, ok := m.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("account %s not found", addr)
	}
	return append([]byte(nil), data...), nil
}

func (m *MockLedger) advanceCallbacks() {
	kept := m.pending[:0]
	for _, cb := range m.pending {
		if cb.remaining <= 0 {
			m.applyCallback(cb.kind)
			continue
		}
		cb.remaining--
		kept = append(kept, cb)
	}
	m.pending = kept
}

func (m *MockLedger) applyCallback(kind RequestKind) {
	raw, ok := m.accounts[m.pool]
	if !ok {
		if kind == InitializePool {
			m.accounts[m.pool] = EncodePoolState(&PoolState{StateNonce: Uint128{Lo: 1}})
		}
		return
	}
	st, err := DecodePoolState(raw)
	if err != nil {
		return
	}
	st.StateNonce = st.StateNonce.Inc()
	switch kind {
	case Deposit:
		st.TotalDeposits++
	case Withdraw:
		st.TotalWithdrawals++
	}
	m.accounts[m.pool] = EncodePoolState(st)
}

// SimulateTransaction returns the configured simulation verdict.
func (m *MockLedger) SimulateTransaction(_ context.Context, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SimulateCalls++
	return m.simulateErr
}

// SubmitTransaction accepts a signed payload, schedules its callback, and
// returns a deterministic signature string.
func (m *MockLedger) SubmitTransaction(_ context.Context, tx []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SubmitCalls++

	if len(m.submitErrs) > 0 {
		err := m.submitErrs[0]
		m.submitErrs = m.submitErrs[1:]
		return "", err
	}
	if len(tx) < 8 {
		return "", errors.New("transaction too short")
	}

	kind := Deposit
	switch [8]byte(tx[:8]) {
	case withdrawTag:
		kind = Withdraw
	case initializePoolTag:
		kind = InitializePool
	}
	m.pending = append(m.pending, pendingCallback{kind: kind, remaining: m.callbackDelay})

	sum := sha256.Sum256(tx)
	return base58.Encode(sum[:]), nil
}

// ConfirmTransaction reports acceptance after any configured transient
// "not yet confirmed" phase.
func (m *MockLedger) ConfirmTransaction(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConfirmCalls++
	if m.confirmTransient > 0 {
		m.confirmTransient--
		return &NetworkError{Stage: StageConfirm, Err: errors.New("not yet confirmed")}
	}
	return nil
}

// MockSigner implements WalletSigner with a fixed identity.
type MockSigner struct {
	pub        Address
	RejectSign bool
	SignCalls  int
}

// NewMockSigner creates a signer for the given identity.
func NewMockSigner(pub Address) *MockSigner {
	return &MockSigner{pub: pub}
}

// PublicKey returns the signer identity.
func (s *MockSigner) PublicKey() Address { return s.pub }

// Sign appends a pseudo-signature, or rejects when configured to.
func (s *MockSigner) Sign(tx []byte) ([]byte, error) {
	s.SignCalls++
	if s.RejectSign {
		return nil, errors.New("user rejected signing")
	}
	first := sha256.Sum256(tx)
	second := sha256.Sum256(first[:])
	signed := append([]byte(nil), tx...)
	signed = append(signed, first[:]...)
	return append(signed, second[:]...), nil
}
