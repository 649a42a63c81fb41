package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mscrnt/nctmon/pkg/board"
)

func profileCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect board profiles",
		Long: `Board profiles map monitor registers to sensor names and voltage divider
ratios. Built-in profiles are selected by name; any other board can be
described in a YAML file passed to --profile.`,
	}

	cmd.AddCommand(profileListCmd())
	cmd.AddCommand(profileShowCmd(opts))
	cmd.AddCommand(profileDumpCmd(opts))
	cmd.AddCommand(profileCheckCmd())

	return cmd
}

// profileArg resolves the profile named by args, falling back to --profile
func profileArg(opts *globalOptions, args []string) (*board.Profile, error) {
	if len(args) > 0 {
		return board.Resolve(args[0])
	}
	return board.Resolve(opts.profile)
}

func profileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-20s %-10s %-8s %5s %5s %5s\n", "NAME", "CHIP", "ID", "TEMP", "VOLT", "FAN")
			for _, name := range board.List() {
				p, err := board.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-20s %-10s %-8v %5d %5d %5d\n",
					p.Name, p.Chip, p.ChipID,
					p.Count(board.Temperature), p.Count(board.Voltage), p.Count(board.Fan))
			}
			return nil
		},
	}
}

func profileShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [name|file]",
		Short: "Show the channel table of a profile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := profileArg(opts, args)
			if err != nil {
				return err
			}
			showProfile(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func showProfile(out io.Writer, p *board.Profile) {
	fmt.Fprintf(out, "Profile:    %s\n", p.Name)
	if p.Description != "" {
		fmt.Fprintf(out, "Board:      %s\n", p.Description)
	}
	if p.Source != "" {
		fmt.Fprintf(out, "File:       %s\n", p.Source)
	}
	fmt.Fprintf(out, "Chip:       %s (%v)\n", p.Chip, p.ChipID)
	fmt.Fprintf(out, "Index port: %v\n", p.IndexPort)
	fmt.Fprintf(out, "HWM LDN:    0x%02x\n\n", p.HWMonLDN)

	fmt.Fprintf(out, "%-12s %-4s %-16s %-9s %s\n", "KIND", "IDX", "NAME", "REGISTER", "MULTIPLIER")
	for _, kind := range board.Kinds {
		for i, ch := range p.Channels(kind) {
			mult := ""
			if kind == board.Voltage {
				mult = fmt.Sprintf("x%g", ch.Multiplier)
			}
			fmt.Fprintf(out, "%-12s %-4d %-16s %-9v %s\n", kind, i, ch.Name, ch.Register, mult)
		}
	}
}

func profileDumpCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump [name|file]",
		Short: "Print a profile as YAML",
		Long: `Print a profile as YAML. Dumping a built-in profile is the easiest way to
start a profile for another board.

Examples:
  nctmon profile dump > myboard.yaml
  nctmon read --profile myboard.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := profileArg(opts, args)
			if err != nil {
				return err
			}
			data, err := board.Marshal(p)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func profileCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a profile file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := board.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d temperatures, %d voltages, %d fans)\n",
				p.Name, p.Count(board.Temperature), p.Count(board.Voltage), p.Count(board.Fan))
			return nil
		},
	}
}
