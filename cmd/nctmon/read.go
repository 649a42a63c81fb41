package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mscrnt/nctmon/pkg/board"
	"github.com/mscrnt/nctmon/pkg/display"
)

func chipidCmd(opts *globalOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "chipid",
		Short: "Read the Super I/O chip id",
		Long: `Read the 16-bit chip identity from configuration registers 0x20/0x21
and compare it with the id the board profile expects.

Examples:
  # Check the chip on this machine
  sudo nctmon chipid

  # Fail unless the chip is the expected one
  sudo nctmon chipid --strict`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hw, err := opts.open()
			if err != nil {
				return err
			}
			defer func() { _ = hw.Close() }()

			id, err := hw.checkChip(cmd.ErrOrStderr(), strict || opts.requireChip)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chipid: %v\n", id)
			fmt.Fprintf(out, "device: 0x%02x revision: 0x%02x\n", id.Device(), id.Revision())
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail if the chip id does not match the profile")

	return cmd
}

func readCmd(opts *globalOptions) *cobra.Command {
	var (
		asJSON bool
		kind   string
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read every sensor once",
		Long: `Initialize the hardware monitor and print every channel of the board
profile once.

Examples:
  # Print all sensors
  sudo nctmon read

  # Only fans, as JSON
  sudo nctmon read --kind fan --json

  # Try it without hardware
  nctmon read --simulate`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter *board.Kind
			if kind != "" {
				k, err := board.ParseKind(kind)
				if err != nil {
					return err
				}
				filter = &k
			}

			hw, err := opts.open()
			if err != nil {
				return err
			}
			defer func() { _ = hw.Close() }()

			if err := hw.init(cmd.ErrOrStderr(), opts.requireChip); err != nil {
				return err
			}

			snap, err := hw.dec.Snapshot()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				var v interface{} = snap
				if filter != nil {
					v = snap.Readings(*filter)
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}

			r := display.NewRenderer(out)
			r.SetClear(false)
			if filter != nil {
				return r.Kind(snap, *filter)
			}
			return r.Frame(snap)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&kind, "kind", "", "Only read one kind: temperature, voltage or fan")

	return cmd
}
