package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iotsdd/attendchain/internal/attendance"
	"github.com/iotsdd/attendchain/internal/cli/output"
)

// CountOutput is the JSON output for the count subcommands.
type CountOutput struct {
	Contract  string `json:"contract"`
	Operation string `json:"operation"`
	Course    string `json:"course"`
	Info      string `json:"info,omitempty"`
	Count     uint64 `json:"count"`
}

// NewCountCommand creates the count command and its subcommands.
func NewCountCommand() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count attendance records on chain",
		Long: `Count the records of a course stored in the deployed AttendanceTracker.

The contract address comes from the build artifact's deployment for the
selected network unless --address is given.`,
	}
	cmd.PersistentFlags().StringVar(&address, "address", "", "Contract address (default: from the build artifact)")

	cmd.AddCommand(&cobra.Command{
		Use:     "registrations <course>",
		Short:   "Count the registrations to a course",
		Example: `  attendchain count registrations "Reti di Calcolatori"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(cmd, address, attendance.OpRegistration, args[0], "",
				func(ctx context.Context, t *attendance.Tracker) (uint64, error) {
					return t.CountRegistrations(ctx, args[0])
				})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "lessons <course> <lesson>",
		Aliases: []string{"attendances"},
		Short:   "Count the attendances to a lesson",
		Example: `  attendchain count lessons "Reti di Calcolatori" "Lezione 1"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(cmd, address, attendance.OpLesson, args[0], args[1],
				func(ctx context.Context, t *attendance.Tracker) (uint64, error) {
					return t.CountLessonAttendances(ctx, args[0], args[1])
				})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "exams <course> <day> <month> <year>",
		Aliases: []string{"exam-participations"},
		Short:   "Count the participations to an exam",
		Example: `  attendchain count exams "Reti di Calcolatori" 15 06 2024`,
		Args:    cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := attendance.ExamDate(args[1], args[2], args[3])
			if err != nil {
				return err
			}
			if _, _, _, err := attendance.SplitExamDate(date); err != nil {
				return err
			}
			return runCount(cmd, address, attendance.OpExam, args[0], date,
				func(ctx context.Context, t *attendance.Tracker) (uint64, error) {
					return t.CountExamParticipations(ctx, args[0], date)
				})
		},
	})

	return cmd
}

func runCount(cmd *cobra.Command, address string, op attendance.Operation, course, info string,
	count func(context.Context, *attendance.Tracker) (uint64, error)) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer
	ctx := cmd.Context()

	d, err := cmdCtx.resolve(ctx, address)
	if err != nil {
		return err
	}
	defer d.Close()

	n, err := count(ctx, d.tracker(cmdCtx.Logger))
	if err != nil {
		return err
	}

	out := CountOutput{
		Contract:  d.address.Hex(),
		Operation: op.String(),
		Course:    course,
		Info:      info,
		Count:     n,
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	subject := course
	if info != "" {
		subject = fmt.Sprintf("%s / %s", course, info)
	}
	r.Printf("%s %s: %d\n", op, subject, n)
	return nil
}
