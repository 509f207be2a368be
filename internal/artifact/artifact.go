// Package artifact reads contract build artifacts: the JSON files the
// contract toolchain writes per contract, holding the ABI, the compiler
// that produced it and the address of each deployment keyed by network id.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultNetworkID is the network id Ganache uses out of the box.
const DefaultNetworkID = "5777"

var (
	// ErrNotDeployed is returned when an artifact has no deployment for a network.
	ErrNotDeployed = errors.New("contract not deployed on network")

	// ErrCompilerMismatch is returned when an artifact was built by a
	// compiler other than the pinned one.
	ErrCompilerMismatch = errors.New("compiler version mismatch")
)

// Deployment is one network entry of an artifact.
type Deployment struct {
	Address         string `json:"address"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

// Compiler identifies the compiler that produced an artifact.
type Compiler struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Artifact is a parsed build artifact.
type Artifact struct {
	ContractName string
	ABI          abi.ABI
	Networks     map[string]Deployment
	Compiler     Compiler
	SourcePath   string
	Path         string
}

type rawArtifact struct {
	ContractName string                `json:"contractName"`
	ABI          json.RawMessage       `json:"abi"`
	Networks     map[string]Deployment `json:"networks"`
	Compiler     Compiler              `json:"compiler"`
	SourcePath   string                `json:"sourcePath"`
}

// Parse decodes artifact JSON.
func Parse(data []byte) (*Artifact, error) {
	var raw rawArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	if len(raw.ABI) == 0 {
		return nil, errors.New("artifact has no abi")
	}
	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse abi of %s: %w", raw.ContractName, err)
	}
	if raw.Networks == nil {
		raw.Networks = make(map[string]Deployment)
	}
	return &Artifact{
		ContractName: raw.ContractName,
		ABI:          parsed,
		Networks:     raw.Networks,
		Compiler:     raw.Compiler,
		SourcePath:   raw.SourcePath,
	}, nil
}

// Load reads and parses the artifact at path.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	a, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	a.Path = path
	return a, nil
}

// PathFor returns the artifact path of contract inside buildDir.
func PathFor(buildDir, contract string) string {
	return filepath.Join(buildDir, contract+".json")
}

// LoadFromDir loads <buildDir>/<contract>.json.
func LoadFromDir(buildDir, contract string) (*Artifact, error) {
	return Load(PathFor(buildDir, contract))
}

// Address returns the deployed address for networkID.
func (a *Artifact) Address(networkID string) (common.Address, error) {
	d, ok := a.Networks[networkID]
	if !ok || !common.IsHexAddress(d.Address) || common.HexToAddress(d.Address) == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s has no deployment for network id %s (deployed on: %s)",
			ErrNotDeployed, a.ContractName, networkID, a.describeNetworks())
	}
	return common.HexToAddress(d.Address), nil
}

func (a *Artifact) describeNetworks() string {
	ids := a.NetworkIDs()
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}

// NetworkIDs returns the network ids with a deployment, sorted.
func (a *Artifact) NetworkIDs() []string {
	ids := make([]string, 0, len(a.Networks))
	for id := range a.Networks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Methods returns the ABI method names, sorted.
func (a *Artifact) Methods() []string {
	names := make([]string, 0, len(a.ABI.Methods))
	for name := range a.ABI.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Events returns the ABI event names, sorted.
func (a *Artifact) Events() []string {
	names := make([]string, 0, len(a.ABI.Events))
	for name := range a.ABI.Events {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CompilerVersion returns the compiler version without build metadata,
// e.g. 0.8.0 for 0.8.0+commit.c7dfd78e.Emscripten.clang.
func (a *Artifact) CompilerVersion() string {
	v, _, _ := strings.Cut(a.Compiler.Version, "+")
	return v
}

// CheckCompiler compares the artifact's compiler with the pinned version.
// Artifacts that do not record a compiler are accepted.
func (a *Artifact) CheckCompiler(pinned string) error {
	if a.Compiler.Version == "" {
		return nil
	}
	want, _, _ := strings.Cut(pinned, "+")
	if a.CompilerVersion() != want {
		return fmt.Errorf("%w: %s was built with %s %s but solc %s is pinned",
			ErrCompilerMismatch, a.ContractName, a.Compiler.Name, a.CompilerVersion(), pinned)
	}
	return nil
}
