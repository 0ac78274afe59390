// Package ghostpool implements the client-side core of a confidential
// deposit pool protocol.
//
// Overview:
//   - A user deposits funds under a secret and later withdraws them from any
//     wallet by proving knowledge of that secret, without revealing it and
//     without linking the two addresses on the ledger.
//   - The proof itself (equality of two encrypted secret hashes) is performed
//     by an external confidential-computation network; this package only
//     produces the inputs it consumes and observes the outcome it writes back.
//
// Components:
//   - Credential cipher: SHA-256 secret hashing, ephemeral x25519 key
//     exchange, and a MiMC field-element cipher over the BLS12-377 scalar
//     field. The client only ever encrypts; it never gains a decrypt path.
//   - Address derivation: deterministic, key-less program-derived addresses
//     computed from ordered seed lists and an owning program identity.
//   - State codec: decoder for the fixed-layout on-ledger pool record, the
//     only way the client observes whether a request eventually took effect.
//   - Request orchestrator: builds a deposit/withdraw request, submits it,
//     and tracks asynchronous completion through callback polling.
//
// Security model:
//   - All randomness comes from crypto/rand.
//   - Ephemeral private keys and plaintext secret hashes never outlive the
//     call that produced the credential and are never persisted or logged.
//   - A fresh ephemeral key pair and nonce per attempt keep repeated use of
//     the same secret unlinkable on the ledger.
package ghostpool
