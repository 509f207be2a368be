package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iotsdd/attendchain/internal/attendance"
	"github.com/iotsdd/attendchain/internal/cli/output"
	"github.com/iotsdd/attendchain/internal/state"
)

// RecordsOutput is the JSON output for the records command.
type RecordsOutput struct {
	Contract  string              `json:"contract"`
	Operation string              `json:"operation"`
	Course    string              `json:"course"`
	Info      string              `json:"info"`
	Decrypted bool                `json:"decrypted"`
	Records   []attendance.Record `json:"records"`
}

// NewRecordsCommand creates the records command.
func NewRecordsCommand() *cobra.Command {
	var address string
	var raw bool

	cmd := &cobra.Command{
		Use:   "records <operation> <course> [info]",
		Short: "List attendance records on chain",
		Long: `List the records stored for an operation of a course.

operation is Registrazione, Lezione or Esame (or registration, lesson,
exam). info is the lesson name for lessons and the dd/mm/yyyy date for
exams. Student ids are decrypted with the course key from the keychain
unless --raw is given.`,
		Example: `  attendchain records lesson "Reti di Calcolatori" "Lezione 1"
  attendchain records exam "Reti di Calcolatori" 15/06/2024 -o json
  attendchain records registration "Reti di Calcolatori" --raw`,
		Args: cobra.RangeArgs(2, 3),
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return operationNames(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			op, course, info, err := parseRecordTarget(args[0], args[1], optionalArg(args, 2))
			if err != nil {
				return err
			}

			cmdCtx := NewCommandContext(cmd)
			r := cmdCtx.Renderer
			ctx := cmd.Context()

			d, err := cmdCtx.resolve(ctx, address)
			if err != nil {
				return err
			}
			defer d.Close()

			records, err := d.tracker(cmdCtx.Logger).RecordsByOperation(ctx, op, course, info)
			if err != nil {
				return fmt.Errorf("failed to retrieve records: %w", err)
			}

			if !raw && len(records) > 0 {
				store, err := cmdCtx.openStore()
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()

				label := attendance.KeyLabel(op, info)
				ck, err := store.GetKey(ctx, course, label)
				if errors.Is(err, state.ErrKeyNotFound) {
					return fmt.Errorf("%w for course %q label %q\nHint: use --raw to list the encrypted ids", err, course, label)
				}
				if err != nil {
					return err
				}
				if records, err = attendance.DecryptRecords(records, attendance.Key{Key: ck.Key, IV: ck.IV}); err != nil {
					return fmt.Errorf("failed to decrypt records: %w", err)
				}
			}

			out := RecordsOutput{
				Contract:  d.address.Hex(),
				Operation: op.String(),
				Course:    course,
				Info:      info,
				Decrypted: !raw,
				Records:   records,
			}
			if out.Records == nil {
				out.Records = []attendance.Record{}
			}

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(out)
			}
			if len(records) == 0 {
				r.Muted("no records")
				return nil
			}

			idHeader := "Student ID"
			if raw {
				idHeader = "Encrypted ID"
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{rec.OperationType, rec.CourseName, rec.AdditionalInfo, rec.EncryptedId})
			}
			r.Table([]string{"Operation", "Course", "Info", idHeader}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Contract address (default: from the build artifact)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Show encrypted ids without decrypting")

	return cmd
}

// parseRecordTarget checks the operation and the info it needs: a lesson
// name for lessons, a valid dd/mm/yyyy date for exams.
func parseRecordTarget(opArg, course, info string) (attendance.Operation, string, string, error) {
	op, err := attendance.ParseOperation(opArg)
	if err != nil {
		return "", "", "", err
	}
	if course == "" {
		return "", "", "", errors.New("course name is required")
	}
	switch op {
	case attendance.OpLesson:
		if info == "" {
			return "", "", "", errors.New("lesson records need the lesson name")
		}
	case attendance.OpExam:
		if info == "" {
			return "", "", "", errors.New("exam records need the exam date (dd/mm/yyyy)")
		}
		if _, _, _, err := attendance.SplitExamDate(info); err != nil {
			return "", "", "", err
		}
	}
	return op, course, info, nil
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func operationNames() []string {
	names := make([]string, len(attendance.Operations))
	for i, op := range attendance.Operations {
		names[i] = op.String()
	}
	return names
}
