// derive.go - Deterministic derivation of protocol-owned addresses.
//
// A derived address is a pure function of an ordered seed list and the owning
// program identity. The derivation searches downward for a bump byte whose
// digest falls off the ed25519 curve, so the result can never collide with a
// key-holding account. Exact seed labels are protocol constants; any
// deviation breaks address agreement with the confidential network.

package ghostpool

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"filippo.io/edwards25519"
)

const (
	maxSeedLen     = 32
	maxBumpSeed    = 255
	derivedMarker  = "ProgramDerivedAddress"
	maxSeedsPerKey = 16
)

// OffsetForCircuitName maps a circuit name to its 32-bit offset: the first
// four bytes of the name's digest, little-endian. The offset doubles as the
// circuit identifier and as a seed component for its definition account.
func OffsetForCircuitName(name string) uint32 {
	sum := sha256.Sum256([]byte(name))
	return binary.LittleEndian.Uint32(sum[:4])
}

// DeriveAddress computes the canonical off-curve address for the seed list
// under the owning program, returning the address and the bump that produced
// it. Pure and side-effect-free.
func DeriveAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	if len(seeds) > maxSeedsPerKey {
		return Address{}, 0, &ValidationError{Field: "seeds", Reason: "too many seeds"}
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLen {
			return Address{}, 0, &ValidationError{Field: "seeds", Reason: "seed exceeds 32 bytes"}
		}
	}
	for bump := maxBumpSeed; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{uint8(bump)})
		h.Write(program[:])
		h.Write([]byte(derivedMarker))

		var candidate Address
		copy(candidate[:], h.Sum(nil))
		if isOffCurve(candidate) {
			return candidate, uint8(bump), nil
		}
	}
	return Address{}, 0, &ValidationError{Field: "seeds", Reason: "no off-curve representative for seed list"}
}

// isOffCurve reports whether the bytes fail to decompress as an ed25519
// point, i.e. no private key can ever sign for this address.
func isOffCurve(a Address) bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err != nil
}

type derivedEntry struct {
	addr Address
	bump uint8
}

// AddressDeriver performs the protocol's named derivations with a read-only
// memoization cache. Safe for concurrent use; derivation is deterministic,
// so the cache never invalidates.
type AddressDeriver struct {
	cfg *ProtocolConfig

	mu    sync.RWMutex
	cache map[string]derivedEntry
}

// NewAddressDeriver creates a deriver over a validated protocol config.
func NewAddressDeriver(cfg *ProtocolConfig) *AddressDeriver {
	return &AddressDeriver{
		cfg:   cfg,
		cache: make(map[string]derivedEntry),
	}
}

// Derive is the memoized form of DeriveAddress.
func (d *AddressDeriver) Derive(seeds [][]byte, program Address) (Address, uint8, error) {
	key := cacheKey(seeds, program)

	d.mu.RLock()
	entry, ok := d.cache[key]
	d.mu.RUnlock()
	if ok {
		return entry.addr, entry.bump, nil
	}

	addr, bump, err := DeriveAddress(seeds, program)
	if err != nil {
		return Address{}, 0, err
	}

	d.mu.Lock()
	d.cache[key] = derivedEntry{addr: addr, bump: bump}
	d.mu.Unlock()
	return addr, bump, nil
}

func cacheKey(seeds [][]byte, program Address) string {
	buf := make([]byte, 0, 64)
	buf = append(buf, program[:]...)
	for _, seed := range seeds {
		buf = append(buf, uint8(len(seed)))
		buf = append(buf, seed...)
	}
	return string(buf)
}

// PoolAddress derives the pool account for an owner identity.
func (d *AddressDeriver) PoolAddress(owner Address) (Address, uint8, error) {
	return d.Derive([][]byte{[]byte(d.cfg.Seeds.Pool), owner[:]}, d.cfg.PoolProgram)
}

// VaultAddress derives the token vault for a pool account.
func (d *AddressDeriver) VaultAddress(pool Address) (Address, uint8, error) {
	return d.Derive([][]byte{[]byte(d.cfg.Seeds.Vault), pool[:]}, d.cfg.PoolProgram)
}

// SignerAddress derives the protocol's fixed signing account.
func (d *AddressDeriver) SignerAddress() (Address, uint8, error) {
	return d.Derive([][]byte{[]byte(d.cfg.Seeds.Signer)}, d.cfg.PoolProgram)
}

// ClusterAddress derives the computation cluster account.
func (d *AddressDeriver) ClusterAddress() (Address, uint8, error) {
	return d.Derive(clusterSeeds(d.cfg.Seeds.Cluster, d.cfg.ClusterOffset), d.cfg.NetworkProgram)
}

// MempoolAddress derives the cluster's mempool account.
func (d *AddressDeriver) MempoolAddress() (Address, uint8, error) {
	return d.Derive(clusterSeeds(d.cfg.Seeds.Mempool, d.cfg.ClusterOffset), d.cfg.NetworkProgram)
}

// ExecPoolAddress derives the cluster's execution-pool account.
func (d *AddressDeriver) ExecPoolAddress() (Address, uint8, error) {
	return d.Derive(clusterSeeds(d.cfg.Seeds.ExecPool, d.cfg.ClusterOffset), d.cfg.NetworkProgram)
}

// ComputationAddress derives the per-job computation account for a
// client-chosen 64-bit offset.
func (d *AddressDeriver) ComputationAddress(computationOffset uint64) (Address, uint8, error) {
	seeds := [][]byte{
		[]byte(d.cfg.Seeds.Computation),
		u32LE(d.cfg.ClusterOffset),
		u64LE(computationOffset),
	}
	return d.Derive(seeds, d.cfg.NetworkProgram)
}

// CompDefAddress derives the definition account for a registered circuit.
// An unregistered name is a validation error, not a best-effort fallback.
func (d *AddressDeriver) CompDefAddress(circuitName string) (Address, uint8, error) {
	offset, ok := d.cfg.Circuits[circuitName]
	if !ok {
		return Address{}, 0, &ValidationError{Field: "circuit", Reason: "unknown circuit name " + circuitName}
	}
	seeds := [][]byte{
		[]byte(d.cfg.Seeds.CompDef),
		u32LE(offset),
	}
	return d.Derive(seeds, d.cfg.NetworkProgram)
}

func clusterSeeds(label string, offset uint32) [][]byte {
	return [][]byte{[]byte(label), u32LE(offset)}
}

func u32LE(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func u64LE(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}
