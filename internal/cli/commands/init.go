package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	intconfig "github.com/iotsdd/attendchain/internal/config"
)

const configHeader = `# attendchain project configuration.
#
# networks: named nodes the tool can reach. network_id "*" accepts
# whatever network the node reports.
# compilers.solc.version: the solc release the contracts are built with.
`

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new attendchain project",
		Long: `Initialize a new attendchain project with the default configuration.

This creates:
  - attendchain.yaml with the development network (127.0.0.1:7545,
    any network id) and solc pinned to 0.8.0
  - build/contracts/ for the contract build artifacts`,
		Example: `  # Initialize in current directory
  attendchain init

  # Initialize in a new directory
  attendchain init my-project

  # Force overwrite existing config
  attendchain init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			r := NewCommandContext(cmd).Renderer

			path, err := runInit(dir, force)
			if err != nil {
				return err
			}
			r.Success(fmt.Sprintf("Created %s", path))
			r.Muted("Next: compile and migrate the contracts, then run 'attendchain check'")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(dir string, force bool) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, intconfig.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return "", fmt.Errorf("%s already exists. Use --force to overwrite", intconfig.ConfigFileName)
	}

	cfg := intconfig.Default()
	var buf bytes.Buffer
	buf.WriteString(configHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	if err := os.WriteFile(configPath, buf.Bytes(), 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	buildDir := filepath.Join(dir, cfg.ContractsBuildDir)
	if err := os.MkdirAll(buildDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", buildDir, err)
	}
	return configPath, nil
}
