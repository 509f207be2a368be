package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iotsdd/attendchain/internal/artifact"
	"github.com/iotsdd/attendchain/internal/attendance"
	"github.com/iotsdd/attendchain/internal/chain"
	"github.com/iotsdd/attendchain/internal/cli/output"
)

// CheckOutput is the JSON output for the check command.
type CheckOutput struct {
	Network string          `json:"network"`
	Node    *chain.NodeInfo `json:"node,omitempty"`
	Checks  []CheckResult   `json:"checks"`
	OK      bool            `json:"ok"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "success", "warning", "error", "skipped"
	Detail string `json:"detail,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the selected network and the contract deployment",
		Long: `Connect to the node of the selected network and check that:
  - the configuration is valid
  - the node answers and reports a network id the definition accepts
  - the AttendanceTracker build artifact exists and was built with the
    pinned solc version
  - the artifact records a deployment for the node's network`,
		Example: `  # Check the development network
  attendchain check

  # Check another network as JSON
  attendchain check -n staging -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			r := cmdCtx.Renderer
			out := runCheck(cmd, cmdCtx)

			if r.EffectiveMode() == output.ModeJSON {
				if err := r.JSON(out); err != nil {
					return err
				}
			} else {
				r.Header(2, fmt.Sprintf("Network %s", output.Title(out.Network)))
				if out.Node != nil {
					r.KeyValues([][2]string{
						{"endpoint", out.Node.Endpoint},
						{"network id", strconv.FormatUint(out.Node.NetworkID, 10)},
						{"chain id", strconv.FormatUint(out.Node.ChainID, 10)},
						{"block", strconv.FormatUint(out.Node.BlockNumber, 10)},
						{"client", out.Node.ClientVersion},
					})
				}
				for _, c := range out.Checks {
					r.StatusLine(c.Name, c.Status, c.Detail)
				}
			}

			if !out.OK {
				return errors.New("check failed")
			}
			return nil
		},
	}
}

func runCheck(cmd *cobra.Command, cmdCtx *CommandContext) *CheckOutput {
	ctx := cmd.Context()
	cfg := cmdCtx.Cfg
	out := &CheckOutput{Network: cfg.NetworkName, OK: true}

	add := func(name, status, detail string) {
		out.Checks = append(out.Checks, CheckResult{Name: name, Status: status, Detail: detail})
		if status == "error" {
			out.OK = false
		}
	}

	if err := cfg.Validate(); err != nil {
		add("configuration", "error", err.Error())
		return out
	}
	add("configuration", "success", "")

	client, err := cmdCtx.dial(ctx)
	if err != nil {
		add("node", "error", err.Error())
		return out
	}
	defer client.Close()

	info, err := client.Verify(ctx)
	out.Node = info
	switch {
	case info == nil:
		add("node", "error", err.Error())
		return out
	case err != nil:
		add("node", "success", "reachable")
		add("network id", "error", err.Error())
	default:
		add("node", "success", "reachable")
		add("network id", "success", fmt.Sprintf("%s accepts %d", client.Network().NetworkID, info.NetworkID))
	}

	if err := cfg.ValidateBuildDir(); err != nil {
		add("artifact", "warning", err.Error())
		return out
	}
	a, err := artifact.LoadFromDir(cfg.ContractsBuildDir, attendance.ContractName)
	if err != nil {
		add("artifact", "error", err.Error())
		return out
	}
	add("artifact", "success", a.Path)

	if err := a.CheckCompiler(cfg.Compilers.Solc.Version); err != nil {
		add("compiler", "warning", err.Error())
	} else {
		add("compiler", "success", "solc "+cfg.Compilers.Solc.Version)
	}

	networkID := chain.DeployNetworkID(client.Network(), info)
	addr, err := a.Address(networkID)
	if err != nil {
		add("deployment", "error", err.Error())
		return out
	}
	add("deployment", "success", addr.Hex())
	return out
}
