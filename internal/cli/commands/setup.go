package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/iotsdd/attendchain/internal/artifact"
	"github.com/iotsdd/attendchain/internal/attendance"
	"github.com/iotsdd/attendchain/internal/chain"
	"github.com/iotsdd/attendchain/internal/cli/config"
	"github.com/iotsdd/attendchain/internal/cli/output"
	intconfig "github.com/iotsdd/attendchain/internal/config"
	"github.com/iotsdd/attendchain/internal/state"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with a renderer for the
// configured output mode.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise loads the
// project found from the working directory without flags.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg, err := config.LoadConfig("", nil)
	if err != nil {
		return &config.Config{
			ProjectConfig: *intconfig.Default(),
			NetworkName:   config.DefaultNetwork,
			StatePath:     config.DefaultStateFile,
			OutputFormat:  config.DefaultOutput,
			API:           config.DefaultAPIConfig(),
		}
	}
	return cfg
}

// validated returns the configuration after checking it, so commands
// never dial a network the project does not define correctly.
func (c *CommandContext) validated() error {
	if err := c.Cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w\nHint: run 'attendchain validate' for details", err)
	}
	return nil
}

// dial connects to the selected network.
func (c *CommandContext) dial(ctx context.Context) (*chain.Client, error) {
	if err := c.validated(); err != nil {
		return nil, err
	}
	network, err := c.Cfg.SelectedNetwork()
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("connecting", "network", c.Cfg.NetworkName, "endpoint", network.Endpoint())
	return chain.Dial(ctx, c.Cfg.NetworkName, network, c.Logger)
}

// openStore opens the state database, creating and migrating it as needed.
func (c *CommandContext) openStore() (*state.SQLiteStore, error) {
	store, err := state.OpenAndMigrate(c.Cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database %s: %w", c.Cfg.StatePath, err)
	}
	return store, nil
}

// loadArtifact reads the AttendanceTracker build artifact. A compiler that
// differs from the pinned solc version is reported but not fatal.
func (c *CommandContext) loadArtifact() (*artifact.Artifact, error) {
	if err := c.Cfg.ValidateBuildDir(); err != nil {
		return nil, err
	}
	a, err := artifact.LoadFromDir(c.Cfg.ContractsBuildDir, attendance.ContractName)
	if err != nil {
		return nil, err
	}
	if err := a.CheckCompiler(c.Cfg.Compilers.Solc.Version); err != nil {
		c.Renderer.Warning(err.Error())
	}
	return a, nil
}

// deployment is a contract resolved on a live network.
type deployment struct {
	client  *chain.Client
	info    *chain.NodeInfo
	address common.Address
	abi     abi.ABI
}

// resolve dials the selected network, checks it is the expected one and
// finds the contract address: the override when given, otherwise the
// artifact's deployment for the node's network id.
func (c *CommandContext) resolve(ctx context.Context, override string) (*deployment, error) {
	if override != "" && !common.IsHexAddress(override) {
		return nil, fmt.Errorf("invalid contract address %q", override)
	}

	client, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	info, err := client.Verify(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}

	d := &deployment{client: client, info: info}

	a, err := c.loadArtifact()
	switch {
	case err == nil:
		d.abi = a.ABI
	case override != "":
		c.Logger.Debug("no build artifact, using built-in abi", "error", err)
		if d.abi, err = attendance.ParseABI(); err != nil {
			client.Close()
			return nil, err
		}
	default:
		client.Close()
		return nil, err
	}

	if override != "" {
		d.address = common.HexToAddress(override)
		return d, nil
	}

	networkID := chain.DeployNetworkID(client.Network(), info)
	d.address, err = a.Address(networkID)
	if err != nil {
		client.Close()
		if errors.Is(err, artifact.ErrNotDeployed) {
			return nil, fmt.Errorf("%w\nHint: migrate the contracts to network %s or pass --address", err, c.Cfg.NetworkName)
		}
		return nil, err
	}
	c.Logger.Debug("resolved contract", "address", d.address.Hex(), "network_id", networkID)
	return d, nil
}

func (d *deployment) tracker(logger *slog.Logger) *attendance.Tracker {
	return attendance.NewTracker(d.address, d.abi, d.client.Caller(), logger)
}

func (d *deployment) Close() {
	d.client.Close()
}
