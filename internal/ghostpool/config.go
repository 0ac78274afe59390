// config.go - Protocol constants as one immutable, validated configuration.
//
// Program identities, seed labels, and the circuit registry are protocol
// constants: any deviation breaks address agreement with the confidential
// network. They are loaded once at process start and asserted consistent,
// never patched at call sites.

package ghostpool

import (
	"encoding/json"
	"fmt"
	"os"
)

// Circuit names deployed by the pool program. The registry below must list
// exactly these, with offsets matching OffsetForCircuitName.
const (
	CircuitInitPoolState         = "init_pool_state"
	CircuitProcessDeposit        = "process_deposit"
	CircuitCheckInvestmentNeeded = "check_investment_needed"
	CircuitRecordInvestment      = "record_investment"
	CircuitRecordYield           = "record_yield"
	CircuitAuthorizeWithdrawal   = "authorize_withdrawal"
	CircuitProcessWithdrawal     = "process_withdrawal"
)

// SeedTable holds the label strings used in address derivation.
type SeedTable struct {
	Pool        string `json:"pool"`
	Vault       string `json:"vault"`
	Signer      string `json:"signer"`
	Cluster     string `json:"cluster"`
	Mempool     string `json:"mempool"`
	ExecPool    string `json:"exec_pool"`
	Computation string `json:"computation"`
	CompDef     string `json:"comp_def"`
}

// ProtocolConfig is the single source of protocol constants. Treat it as
// immutable after Validate succeeds.
type ProtocolConfig struct {
	// PoolProgram owns the pool and vault accounts.
	PoolProgram Address `json:"pool_program"`
	// NetworkProgram owns the confidential network's cluster, mempool,
	// execution-pool, computation, and circuit-definition accounts.
	NetworkProgram Address `json:"network_program"`
	// NetworkPublicKey is the network-held x25519 key credentials are
	// encrypted to.
	NetworkPublicKey [32]byte `json:"-"`
	// ClusterOffset selects the computation cluster serving this pool.
	ClusterOffset uint32 `json:"cluster_offset"`

	Seeds SeedTable `json:"seeds"`

	// Circuits is the canonical circuit-name to offset registry. Validate
	// recomputes every entry from the name and fails on any disagreement;
	// neither source silently overrides the other.
	Circuits map[string]uint32 `json:"circuits"`
}

// DefaultProtocolConfig returns the deployed protocol's constants.
func DefaultProtocolConfig() *ProtocolConfig {
	pool, _ := AddressFromBase58("JDCZqN5FRigifouF9PsNMQRt3MxdsVTqYcbaHxS9Y3D3")
	network, _ := AddressFromBase58("E3oF1Epc38gKWnkQNe4HUQvSA2p6yy7EGHUw2aXGtDW8")
	return &ProtocolConfig{
		PoolProgram:    pool,
		NetworkProgram: network,
		ClusterOffset:  0,
		Seeds: SeedTable{
			Pool:        "ghost_pool",
			Vault:       "vault",
			Signer:      "signer",
			Cluster:     "cluster",
			Mempool:     "mempool",
			ExecPool:    "execpool",
			Computation: "computation",
			CompDef:     "compdef",
		},
		Circuits: map[string]uint32{
			CircuitInitPoolState:         4198020096,
			CircuitProcessDeposit:        1057030635,
			CircuitCheckInvestmentNeeded: 2437927019,
			CircuitRecordInvestment:      1413146303,
			CircuitRecordYield:           2614016038,
			CircuitAuthorizeWithdrawal:   340300603,
			CircuitProcessWithdrawal:     3871255462,
		},
	}
}

// LoadProtocolConfig loads the protocol configuration from a JSON file,
// falling back to the deployed defaults when the file does not exist.
// The result is validated before being returned.
func LoadProtocolConfig(path string) (*ProtocolConfig, error) {
	cfg := DefaultProtocolConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("failed to open protocol config: %w", err)
			}
			defer f.Close()
			if err := json.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("failed to parse protocol config: %w", err)
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration once at startup. A circuit registry
// entry disagreeing with its hash-derived offset is a hard error, not a
// fallback.
func (c *ProtocolConfig) Validate() error {
	if c.PoolProgram.IsZero() {
		return &ValidationError{Field: "pool_program", Reason: "identity is zero"}
	}
	if c.NetworkProgram.IsZero() {
		return &ValidationError{Field: "network_program", Reason: "identity is zero"}
	}
	labels := map[string]string{
		"seeds.pool":        c.Seeds.Pool,
		"seeds.vault":       c.Seeds.Vault,
		"seeds.signer":      c.Seeds.Signer,
		"seeds.cluster":     c.Seeds.Cluster,
		"seeds.mempool":     c.Seeds.Mempool,
		"seeds.exec_pool":   c.Seeds.ExecPool,
		"seeds.computation": c.Seeds.Computation,
		"seeds.comp_def":    c.Seeds.CompDef,
	}
	for field, label := range labels {
		if label == "" {
			return &ValidationError{Field: field, Reason: "seed label is empty"}
		}
		if len(label) > maxSeedLen {
			return &ValidationError{Field: field, Reason: "seed label exceeds 32 bytes"}
		}
	}
	if len(c.Circuits) == 0 {
		return &ValidationError{Field: "circuits", Reason: "registry is empty"}
	}
	for name, registered := range c.Circuits {
		derived := OffsetForCircuitName(name)
		if derived != registered {
			return &ValidationError{
				Field:  "circuits." + name,
				Reason: fmt.Sprintf("registry offset %d disagrees with derived offset %d", registered, derived),
			}
		}
	}
	return nil
}
