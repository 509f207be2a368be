package commands

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/iotsdd/attendchain/internal/attendance"
	"github.com/iotsdd/attendchain/internal/cli/output"
)

// RecordOutput is the JSON output for the record command.
type RecordOutput struct {
	Contract    string `json:"contract"`
	Transaction string `json:"transaction"`
	Mined       bool   `json:"mined"`
	Block       uint64 `json:"block,omitempty"`
	KeyCreated  bool   `json:"key_created"`
	attendance.Record
}

// NewRecordCommand creates the record command.
func NewRecordCommand() *cobra.Command {
	var (
		address string
		from    string
		gas     uint64
		noWait  bool
	)

	cmd := &cobra.Command{
		Use:   "record <operation> <course> <student-id> [info]",
		Short: "Append an attendance record",
		Long: `Encrypt a student id with the course key and append a record to the
deployed AttendanceTracker.

The key is looked up in the keychain under the course and the record's
label (the operation for registrations, the lesson name or exam date
otherwise); a new key is generated and stored the first time a label is
used. The transaction is sent from --from, the network's configured
account or the node's first account, in that order.`,
		Example: `  attendchain record registration "Reti di Calcolatori" 0612700001
  attendchain record lesson "Reti di Calcolatori" 0612700001 "Lezione 1"
  attendchain record exam "Reti di Calcolatori" 0612700001 15/06/2024`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, course, info, err := parseRecordTarget(args[0], args[1], optionalArg(args, 3))
			if err != nil {
				return err
			}
			studentID := args[2]
			if from != "" && !common.IsHexAddress(from) {
				return fmt.Errorf("invalid sender address %q", from)
			}

			cmdCtx := NewCommandContext(cmd)
			r := cmdCtx.Renderer
			ctx := cmd.Context()

			d, err := cmdCtx.resolve(ctx, address)
			if err != nil {
				return err
			}
			defer d.Close()

			store, err := cmdCtx.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			fresh, err := attendance.GenerateKey()
			if err != nil {
				return err
			}
			ck, created, err := store.PutKey(ctx, course, attendance.KeyLabel(op, info), fresh.Key, fresh.IV)
			if err != nil {
				return err
			}
			if created {
				cmdCtx.Logger.Info("generated course key", "course", course, "label", ck.Label)
			}

			encrypted, err := attendance.EncryptID(studentID, attendance.Key{Key: ck.Key, IV: ck.IV})
			if err != nil {
				return err
			}

			rec := attendance.Record{
				OperationType:  op.String(),
				CourseName:     course,
				AdditionalInfo: info,
				EncryptedId:    encrypted,
			}
			if gas == 0 {
				gas = d.client.Network().Gas
			}
			var sender common.Address
			if from != "" {
				sender = common.HexToAddress(from)
			}

			recorder := attendance.NewRecorder(d.address, d.abi, d.client, cmdCtx.Logger)
			hash, err := recorder.AddRecord(ctx, sender, gas, rec)
			if err != nil {
				return err
			}

			out := RecordOutput{
				Contract:    d.address.Hex(),
				Transaction: hash.Hex(),
				KeyCreated:  created,
				Record:      rec,
			}
			if !noWait {
				receipt, _, err := recorder.Wait(ctx, hash)
				if err != nil {
					return err
				}
				out.Mined = true
				if receipt.BlockNumber != nil {
					out.Block = receipt.BlockNumber.Uint64()
				}
			}

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(out)
			}
			if out.Mined {
				r.Success(fmt.Sprintf("Recorded %s for %s in block %d", op, course, out.Block))
			} else {
				r.Success(fmt.Sprintf("Submitted %s for %s", op, course))
			}
			r.KeyValues([][2]string{
				{"transaction", out.Transaction},
				{"encrypted id", encrypted},
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Contract address (default: from the build artifact)")
	cmd.Flags().StringVar(&from, "from", "", "Sender account (default: network from or first node account)")
	cmd.Flags().Uint64Var(&gas, "gas", 0, "Gas limit (default: network gas)")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return once the transaction is submitted")

	return cmd
}
