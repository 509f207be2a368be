// Package config provides the project configuration types for attendchain.
// This package is decoupled from CLI concerns and can be used by the API
// server and other tools that need the network and compiler settings.
package config

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// WildcardNetworkID accepts a node reporting any network id.
const WildcardNetworkID NetworkID = "*"

// NetworkID identifies the chain a network definition expects to reach.
// It is either the wildcard "*" or a decimal identifier.
type NetworkID string

// IsWildcard reports whether the id accepts any network.
func (id NetworkID) IsWildcard() bool {
	return strings.TrimSpace(string(id)) == string(WildcardNetworkID)
}

// Uint64 returns the numeric value of a literal id.
func (id NetworkID) Uint64() (uint64, error) {
	if id.IsWildcard() {
		return 0, fmt.Errorf("network id %q is a wildcard", string(id))
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(id)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("network id %q is not a decimal identifier", string(id))
	}
	return v, nil
}

// Matches reports whether a node reporting the given network id is accepted.
func (id NetworkID) Matches(reported uint64) bool {
	if id.IsWildcard() {
		return true
	}
	v, err := id.Uint64()
	if err != nil {
		return false
	}
	return v == reported
}

// Validate checks the id is the wildcard or a positive decimal integer.
func (id NetworkID) Validate() error {
	if id.IsWildcard() {
		return nil
	}
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("network_id is required (use %q to match any network)", string(WildcardNetworkID))
	}
	v, err := id.Uint64()
	if err != nil {
		return err
	}
	if v == 0 {
		return fmt.Errorf("network id must be positive")
	}
	return nil
}

func (id NetworkID) String() string {
	return string(id)
}

// NetworkConfig describes how to reach one blockchain node.
type NetworkConfig struct {
	Host      string    `koanf:"host" yaml:"host" json:"host"`
	Port      int       `koanf:"port" yaml:"port" json:"port"`
	NetworkID NetworkID `koanf:"network_id" yaml:"network_id" json:"network_id"`

	// From is the account used to send transactions. Empty means the
	// first account the node reports.
	From string `koanf:"from" yaml:"from,omitempty" json:"from,omitempty"`

	// Gas is the gas limit for transactions sent on this network.
	Gas uint64 `koanf:"gas" yaml:"gas,omitempty" json:"gas,omitempty"`

	Websockets bool `koanf:"websockets" yaml:"websockets,omitempty" json:"websockets,omitempty"`
}

// Endpoint returns the RPC URL of the node.
func (n NetworkConfig) Endpoint() string {
	scheme := "http"
	if n.Websockets {
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(strings.Trim(n.Host, "[]"), strconv.Itoa(n.Port)))
}

// OptimizerConfig holds solc optimizer settings.
type OptimizerConfig struct {
	Enabled bool `koanf:"enabled" yaml:"enabled" json:"enabled"`
	Runs    int  `koanf:"runs" yaml:"runs" json:"runs"`
}

// SolcSettings holds compiler settings passed through to solc.
type SolcSettings struct {
	Optimizer  OptimizerConfig `koanf:"optimizer" yaml:"optimizer" json:"optimizer"`
	EVMVersion string          `koanf:"evm_version" yaml:"evm_version,omitempty" json:"evm_version,omitempty"`
}

// SolcConfig pins the Solidity compiler.
type SolcConfig struct {
	Version  string       `koanf:"version" yaml:"version" json:"version"`
	Settings SolcSettings `koanf:"settings" yaml:"settings,omitempty" json:"settings"`
}

// CompilersConfig holds compiler pins by compiler name.
type CompilersConfig struct {
	Solc SolcConfig `koanf:"solc" yaml:"solc" json:"solc"`
}

// ProjectConfig holds the configuration read from attendchain.yaml.
type ProjectConfig struct {
	Networks          map[string]NetworkConfig `koanf:"networks" yaml:"networks" json:"networks"`
	Compilers         CompilersConfig          `koanf:"compilers" yaml:"compilers" json:"compilers"`
	ContractsBuildDir string                   `koanf:"contracts_build_dir" yaml:"contracts_build_dir" json:"contracts_build_dir"`
}

// UnknownNetworkError is returned when a network name is not configured.
type UnknownNetworkError struct {
	Name      string
	Available []string
}

func (e *UnknownNetworkError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown network %q: no networks configured in %s", e.Name, ConfigFileName)
	}
	return fmt.Sprintf("unknown network %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// Is lets errors.Is match ErrNetworkNotFound.
func (e *UnknownNetworkError) Is(target error) bool {
	return target == ErrNetworkNotFound
}

// Network returns the named network definition.
func (c *ProjectConfig) Network(name string) (NetworkConfig, error) {
	if n, ok := c.Networks[name]; ok {
		return n, nil
	}
	return NetworkConfig{}, &UnknownNetworkError{Name: name, Available: c.NetworkNames()}
}

// NetworkNames returns the configured network names in sorted order.
func (c *ProjectConfig) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
