package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iotsdd/attendchain/internal/attendance"
	"github.com/iotsdd/attendchain/internal/cli/output"
	"github.com/iotsdd/attendchain/internal/state"
)

// KeyOutput is the JSON output for one keychain entry. Key material is
// only filled in with --reveal.
type KeyOutput struct {
	state.CourseKey
	KeyHex string `json:"key,omitempty"`
	IVHex  string `json:"iv,omitempty"`
}

// NewKeysCommand creates the keys command and its subcommands.
func NewKeysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the course keychain",
		Long: `Manage the AES keys that encrypt student ids.

Each course keeps one key for registrations and one per lesson name or
exam date. Keys are created on first use by 'attendchain record'; the
generate subcommand creates one ahead of time.`,
	}

	cmd.AddCommand(newKeysListCommand())
	cmd.AddCommand(newKeysGenerateCommand())
	return cmd
}

func newKeysListCommand() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "list [course]",
		Short: "List keychain entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			r := cmdCtx.Renderer

			store, err := cmdCtx.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			keys, err := store.ListKeys(cmd.Context(), optionalArg(args, 0))
			if err != nil {
				return err
			}

			entries := make([]KeyOutput, 0, len(keys))
			for _, k := range keys {
				entries = append(entries, keyOutput(k, reveal))
			}

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(entries)
			}
			if len(entries) == 0 {
				r.Muted("keychain is empty")
				return nil
			}

			headers := []string{"Course", "Label", "Created"}
			if reveal {
				headers = append(headers, "Key", "IV")
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				row := []string{e.Course, e.Label, e.CreatedAt.Format("2006-01-02 15:04:05")}
				if reveal {
					row = append(row, e.KeyHex, e.IVHex)
				}
				rows = append(rows, row)
			}
			r.Table(headers, rows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Include the key and IV in hex")
	return cmd
}

func newKeysGenerateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <course> <operation> [info]",
		Short: "Create the key for a course label if it does not exist",
		Example: `  attendchain keys generate "Reti di Calcolatori" registration
  attendchain keys generate "Reti di Calcolatori" exam 15/06/2024`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, course, info, err := parseRecordTarget(args[1], args[0], optionalArg(args, 2))
			if err != nil {
				return err
			}

			cmdCtx := NewCommandContext(cmd)
			r := cmdCtx.Renderer

			store, err := cmdCtx.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			fresh, err := attendance.GenerateKey()
			if err != nil {
				return err
			}
			ck, created, err := store.PutKey(cmd.Context(), course, attendance.KeyLabel(op, info), fresh.Key, fresh.IV)
			if err != nil {
				return err
			}

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(keyOutput(*ck, false))
			}
			if created {
				r.Success(fmt.Sprintf("Generated key for %s / %s", ck.Course, ck.Label))
			} else {
				r.Warning(fmt.Sprintf("Key for %s / %s already exists", ck.Course, ck.Label))
			}
			return nil
		},
	}
}

func keyOutput(k state.CourseKey, reveal bool) KeyOutput {
	out := KeyOutput{CourseKey: k}
	if reveal {
		out.KeyHex = hex.EncodeToString(k.Key)
		out.IVHex = hex.EncodeToString(k.IV)
	}
	return out
}
