package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/iotsdd/attendchain/internal/cli/output"
)

// ArtifactOutput is the JSON output for the artifact command.
type ArtifactOutput struct {
	Contract    string            `json:"contract"`
	Path        string            `json:"path"`
	Compiler    string            `json:"compiler"`
	Pinned      string            `json:"pinned"`
	Methods     []string          `json:"methods"`
	Events      []string          `json:"events"`
	Deployments map[string]string `json:"deployments"`
}

// NewArtifactCommand creates the artifact command.
func NewArtifactCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "artifact",
		Short: "Show the AttendanceTracker build artifact",
		Long: `Read the AttendanceTracker build artifact from the contracts build
directory and show its compiler, ABI surface and deployments.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			r := cmdCtx.Renderer

			a, err := cmdCtx.loadArtifact()
			if err != nil {
				return err
			}

			out := ArtifactOutput{
				Contract:    a.ContractName,
				Path:        a.Path,
				Compiler:    a.CompilerVersion(),
				Pinned:      cmdCtx.Cfg.Compilers.Solc.Version,
				Methods:     a.Methods(),
				Events:      a.Events(),
				Deployments: make(map[string]string, len(a.Networks)),
			}
			for _, id := range a.NetworkIDs() {
				addr, err := a.Address(id)
				if err != nil {
					continue
				}
				out.Deployments[id] = addr.Hex()
			}

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(out)
			}

			r.Header(2, out.Contract)
			r.KeyValues([][2]string{
				{"path", out.Path},
				{"compiler", out.Compiler},
				{"pinned solc", out.Pinned},
				{"methods", strings.Join(out.Methods, ", ")},
				{"events", strings.Join(out.Events, ", ")},
			})

			rows := make([][]string, 0, len(out.Deployments))
			for _, id := range a.NetworkIDs() {
				if addr, ok := out.Deployments[id]; ok {
					rows = append(rows, []string{id, addr})
				}
			}
			if len(rows) == 0 {
				r.Warning("not deployed on any network")
				return nil
			}
			r.Println()
			r.Table([]string{"Network ID", "Address"}, rows)
			return nil
		},
	}
}
