// credential.go - Password-authenticated encryption for pool credentials.
//
// A credential proves knowledge of the pool secret without revealing it: the
// secret is hashed, the hash is encrypted under an ephemeral x25519 shared
// secret with a MiMC field-element cipher, and the confidential network
// compares encryptions without ever decrypting. The client encrypts only;
// it never needs, and never gains, the ability to decrypt.

package ghostpool

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr/mimc"
	"golang.org/x/crypto/curve25519"
)

// CiphertextSize is the byte length of one encrypted field element.
const CiphertextSize = 32

// SecretHashSize is the byte length of the truncated secret digest.
const SecretHashSize = 16

// EncryptedCredential is the wire form of one deposit or withdrawal
// credential. Generated fresh per attempt; the ephemeral private key and the
// plaintext secret hash never outlive the call that produced it.
type EncryptedCredential struct {
	EphemeralPublicKey [32]byte
	Ciphertext         [CiphertextSize]byte
	Nonce              Uint128
}

// HashSecret digests the secret and interprets the first 16 bytes of the
// digest as an unsigned little-endian 128-bit integer. Deposits and
// withdrawals computed independently must agree bit for bit on this value.
func HashSecret(secret string) Uint128 {
	sum := sha256.Sum256([]byte(secret))
	return Uint128FromLE(sum[:SecretHashSize])
}

// EphemeralKey is a one-shot x25519 key pair. The private scalar is never
// exposed, persisted, or logged.
type EphemeralKey struct {
	priv [32]byte
	pub  [32]byte
}

// GenerateEphemeralKey draws a fresh x25519 key pair from crypto/rand.
func GenerateEphemeralKey() (*EphemeralKey, error) {
	var k EphemeralKey
	if _, err := io.ReadFull(rand.Reader, k.priv[:]); err != nil {
		return nil, &CryptoError{Stage: StageEncrypt, Op: "ephemeral key generation", Err: err}
	}
	pub, err := curve25519.X25519(k.priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, &CryptoError{Stage: StageEncrypt, Op: "ephemeral key generation", Err: err}
	}
	copy(k.pub[:], pub)
	return &k, nil
}

// PublicKey returns the 32-byte public half.
func (k *EphemeralKey) PublicKey() [32]byte {
	return k.pub
}

// SharedSecret performs x25519 key agreement with the counterparty key.
func (k *EphemeralKey) SharedSecret(counterparty [32]byte) ([32]byte, error) {
	var out [32]byte
	shared, err := curve25519.X25519(k.priv[:], counterparty[:])
	if err != nil {
		return out, &CryptoError{Stage: StageEncrypt, Op: "key agreement", Err: err}
	}
	copy(out[:], shared)
	return out, nil
}

// GenerateNonce draws a fresh 128-bit cipher nonce from crypto/rand. Nonce
// reuse under the same shared secret breaks unlinkability; callers must draw
// a fresh nonce (and a fresh ephemeral key) per attempt, never across
// retries.
func GenerateNonce() (Uint128, error) {
	var b [16]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return Uint128{}, &CryptoError{Stage: StageEncrypt, Op: "nonce generation", Err: err}
	}
	return Uint128FromLE(b[:]), nil
}

var (
	cipherOnce  sync.Once
	cipherErr   error
	cipherReady atomic.Bool
)

// InitCredentialCipher runs the cipher self-test exactly once at startup.
// If the primitive is unavailable or misbehaves, every later EncryptValue
// fails with a CryptoError; there is no per-call retry and no weaker
// substitute.
func InitCredentialCipher() error {
	cipherOnce.Do(func() {
		cipherErr = cipherSelfTest()
		cipherReady.Store(cipherErr == nil)
	})
	return cipherErr
}

func cipherSelfTest() error {
	var key [32]byte
	key[0] = 1
	nonce := Uint128{Lo: 7}
	plaintext := Uint128{Lo: 42}

	a, err := maskedEncrypt(key, nonce, plaintext)
	if err != nil {
		return err
	}
	b, err := maskedEncrypt(key, nonce, plaintext)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(a[:], b[:]) != 1 {
		return &CryptoError{Stage: StageEncrypt, Op: "self-test", Err: fmt.Errorf("cipher is not deterministic")}
	}
	c, err := maskedEncrypt(key, nonce.Inc(), plaintext)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(a[:], c[:]) == 1 {
		return &CryptoError{Stage: StageEncrypt, Op: "self-test", Err: fmt.Errorf("cipher ignores nonce")}
	}
	return nil
}

// EncryptValue encrypts exactly one 128-bit value under the shared secret,
// parameterized by the nonce. Deterministic for fixed inputs: re-encrypting
// the same secret hash under the same key and nonce reproduces the
// ciphertext, which is what lets the network verify equality without
// decrypting.
func EncryptValue(sharedSecret [32]byte, nonce Uint128, plaintext Uint128) ([CiphertextSize]byte, error) {
	if !cipherReady.Load() {
		return [CiphertextSize]byte{}, &CryptoError{
			Stage: StageEncrypt,
			Op:    "encrypt",
			Err:   fmt.Errorf("cipher not initialized: call InitCredentialCipher at startup"),
		}
	}
	return maskedEncrypt(sharedSecret, nonce, plaintext)
}

// maskedEncrypt adds a MiMC-derived mask to the plaintext in the BLS12-377
// scalar field and serializes the sum as a 32-byte field element.
func maskedEncrypt(sharedSecret [32]byte, nonce Uint128, plaintext Uint128) ([CiphertextSize]byte, error) {
	h := mimc.NewMiMC()
	if _, err := h.Write(padToElement(sharedSecret[:])); err != nil {
		return [CiphertextSize]byte{}, &CryptoError{Stage: StageEncrypt, Op: "mask derivation", Err: err}
	}
	nb := nonce.Bytes()
	if _, err := h.Write(padToElement(nb[:])); err != nil {
		return [CiphertextSize]byte{}, &CryptoError{Stage: StageEncrypt, Op: "mask derivation", Err: err}
	}

	var mask, pt, ct fr.Element
	mask.SetBytes(h.Sum(nil))
	pt.SetBigInt(plaintext.BigInt())
	ct.Add(&pt, &mask)
	return ct.Bytes(), nil
}

// padToElement maps raw bytes into one canonical field element block so the
// MiMC writer never rejects an out-of-range limb.
func padToElement(b []byte) []byte {
	var e fr.Element
	e.SetBytes(b)
	out := e.Bytes()
	return out[:]
}

// NewCredential produces a fresh encrypted credential for one deposit or
// withdrawal attempt: fresh ephemeral key, fresh nonce, encrypted secret
// hash. The intermediate key material is discarded before returning.
func NewCredential(secret string, networkPublicKey [32]byte) (*EncryptedCredential, error) {
	if secret == "" {
		return nil, &ValidationError{Field: "secret", Reason: "must not be empty"}
	}
	key, err := GenerateEphemeralKey()
	if err != nil {
		return nil, err
	}
	shared, err := key.SharedSecret(networkPublicKey)
	if err != nil {
		return nil, err
	}
	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}
	ciphertext, err := EncryptValue(shared, nonce, HashSecret(secret))
	if err != nil {
		return nil, err
	}
	return &EncryptedCredential{
		EphemeralPublicKey: key.PublicKey(),
		Ciphertext:         ciphertext,
		Nonce:              nonce,
	}, nil
}
