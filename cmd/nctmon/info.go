package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mscrnt/nctmon/pkg/agent"
)

func infoCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show host, chip and profile information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			sys := agent.CollectSysInfo(0)
			fmt.Fprintf(out, "Host:       %s\n", sys.Host.Hostname)
			fmt.Fprintf(out, "Platform:   %s %s (%s)\n", sys.Host.Platform, sys.Host.PlatformVersion, sys.Host.Architecture)
			fmt.Fprintf(out, "Kernel:     %s\n", sys.Host.KernelVersion)
			fmt.Fprintf(out, "CPU:        %s (%d cores, %d threads)\n", sys.CPU.ModelName, sys.CPU.PhysicalCores, sys.CPU.LogicalCores)

			hw, err := opts.open()
			if err != nil {
				return err
			}
			defer func() { _ = hw.Close() }()

			id, err := hw.checkChip(cmd.ErrOrStderr(), opts.requireChip)
			if err != nil {
				return err
			}
			base, err := hw.regs.BaseAddress()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Device:     %s\n", hw.device)
			fmt.Fprintf(out, "Index port: 0x%02x\n", hw.tr.IndexPort())
			fmt.Fprintf(out, "Chip id:    %v\n", id)
			fmt.Fprintf(out, "HWM base:   0x%04x\n", base)
			fmt.Fprintf(out, "Profile:    %s\n", hw.profile.Name)
			return nil
		},
	}
}
