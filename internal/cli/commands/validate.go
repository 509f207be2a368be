package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iotsdd/attendchain/internal/cli/config"
	"github.com/iotsdd/attendchain/internal/cli/output"
	intconfig "github.com/iotsdd/attendchain/internal/config"
)

// ValidationOutput is the JSON output for the validate command.
type ValidationOutput struct {
	Valid      bool           `json:"valid"`
	ConfigFile string         `json:"config_file,omitempty"`
	Errors     []ProblemEntry `json:"errors"`
}

// ProblemEntry is one invalid field.
type ProblemEntry struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the project configuration",
		Long: `Check attendchain.yaml without contacting any node.

Every network must have a valid host, a port in 1..65535 and a network_id
that is "*" or a positive integer; the solc version must be a semantic
version; the selected network must exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			r := cmdCtx.Renderer

			out := ValidationOutput{
				ConfigFile: config.GetConfigFileUsed(),
				Errors:     collectProblems(cmdCtx.Cfg),
			}
			out.Valid = len(out.Errors) == 0

			if r.EffectiveMode() == output.ModeJSON {
				if err := r.JSON(out); err != nil {
					return err
				}
			} else {
				source := out.ConfigFile
				if source == "" {
					source = "built-in defaults"
				}
				r.Header(2, "Configuration")
				r.Muted(fmt.Sprintf("source: %s", source))
				for _, p := range out.Errors {
					r.StatusLine(p.Field, "error", p.Message)
				}
				if out.Valid {
					r.StatusLine("configuration", "success", "valid")
				}
			}

			if !out.Valid {
				return fmt.Errorf("configuration has %d problem(s)", len(out.Errors))
			}
			return nil
		},
	}
}

// collectProblems flattens the validation result into one entry per field.
func collectProblems(cfg *config.Config) []ProblemEntry {
	problems := []ProblemEntry{}
	err := cfg.ProjectConfig.Validate()
	var verrs intconfig.ValidationErrors
	switch {
	case err == nil:
	case errors.As(err, &verrs):
		for _, ve := range verrs {
			problems = append(problems, ProblemEntry{Field: ve.Field, Message: ve.Message})
		}
	default:
		problems = append(problems, ProblemEntry{Field: "config", Message: err.Error()})
	}

	if _, err := cfg.SelectedNetwork(); err != nil {
		problems = append(problems, ProblemEntry{Field: "network", Message: err.Error()})
	}
	return problems
}
