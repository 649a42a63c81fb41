package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mscrnt/nctmon/internal/version"
	"github.com/mscrnt/nctmon/pkg/portio"
)

var (
	// Build variables set by ldflags
	buildVersion string
	buildCommit  string
	buildTime    string
)

// exitPrivilege is returned when port I/O access is denied
const exitPrivilege = 2

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts := &globalOptions{}
	rootCmd := newRootCmd(opts)
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, portio.ErrPermission) {
			fmt.Fprintln(os.Stderr, "Port I/O needs root or CAP_SYS_RAWIO; use --simulate to run without hardware")
			return exitPrivilege
		}
		return 1
	}
	return 0
}

func newRootCmd(opts *globalOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nctmon",
		Short: "nctmon - Nuvoton NCT6687D hardware monitor",
		Long: `nctmon reads temperatures, voltages and fan speeds from the hardware
monitor of a Nuvoton NCT6687D Super I/O chip, as found on MSI motherboards.

Readings come straight from the chip's I/O ports through /dev/port, so
reading real hardware needs root. --simulate runs against an emulated chip.`,
		Version:       version.GetVersion(buildVersion, buildCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			opts.applyEnv()
		},
	}

	opts.addFlags(rootCmd)

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(chipidCmd(opts))
	rootCmd.AddCommand(readCmd(opts))
	rootCmd.AddCommand(watchCmd(opts))
	rootCmd.AddCommand(profileCmd(opts))
	rootCmd.AddCommand(infoCmd(opts))
	rootCmd.AddCommand(agentCmd(opts))

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetDetailedVersion(buildVersion, buildCommit, buildTime))
		},
	}
}
