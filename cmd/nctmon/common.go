package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mscrnt/nctmon/pkg/board"
	"github.com/mscrnt/nctmon/pkg/chipsim"
	"github.com/mscrnt/nctmon/pkg/hwmon"
	"github.com/mscrnt/nctmon/pkg/portio"
	"github.com/mscrnt/nctmon/pkg/sensor"
	"github.com/mscrnt/nctmon/pkg/superio"
)

// globalOptions are the flags shared by every command
type globalOptions struct {
	profile     string
	portDevice  string
	simulate    bool
	requireChip bool
	verbose     bool

	flags *pflag.FlagSet
}

func (o *globalOptions) addFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.profile, "profile", board.DefaultProfile, "Board profile name or YAML file")
	f.StringVar(&o.portDevice, "port-device", portio.DefaultDevice, "Port I/O device")
	f.BoolVar(&o.simulate, "simulate", false, "Use an emulated chip instead of real hardware")
	f.BoolVar(&o.requireChip, "require-chip", false, "Fail if the chip id does not match the profile")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Log chip initialization to stderr")
	o.flags = f
}

// applyEnv fills unset flags from NCTMON_* environment variables
func (o *globalOptions) applyEnv() {
	changed := func(name string) bool {
		return o.flags != nil && o.flags.Changed(name)
	}

	if v := os.Getenv("NCTMON_PROFILE"); v != "" && !changed("profile") {
		o.profile = v
	}
	if v := os.Getenv("NCTMON_PORT_DEVICE"); v != "" && !changed("port-device") {
		o.portDevice = v
	}
	if v := os.Getenv("NCTMON_SIMULATE"); v != "" && !changed("simulate") {
		o.simulate, _ = strconv.ParseBool(v)
	}
}

func (o *globalOptions) logger() *log.Logger {
	if !o.verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "", 0)
}

// hardware is an opened chip with its register map and decoder
type hardware struct {
	profile *board.Profile
	port    portio.Port
	closer  portio.Closer
	device  string
	tr      *superio.Transport
	regs    *hwmon.RegisterMap
	dec     *sensor.Decoder
	logger  *log.Logger
}

// open acquires port access once, before any transport use
func (o *globalOptions) open() (*hardware, error) {
	profile, err := board.Resolve(o.profile)
	if err != nil {
		return nil, err
	}

	logger := o.logger()

	if o.simulate {
		cfg := chipsim.ReferenceConfig()
		if profile.IndexPort != 0 {
			cfg.IndexPort = uint16(profile.IndexPort)
		}
		if profile.HWMonLDN != 0 {
			cfg.HWMonLDN = profile.HWMonLDN
		}
		if profile.ChipID != 0 {
			cfg.ChipID = uint16(profile.ChipID)
		}
		logger.Printf("Using emulated chip")
		hw := newHardware(profile, chipsim.NewBoard(cfg), logger)
		hw.device = "simulated"
		return hw, nil
	}

	dev, err := portio.Open(o.portDevice)
	if err != nil {
		return nil, err
	}
	logger.Printf("Successfully gained I/O privileges.")

	hw := newHardware(profile, dev, logger)
	hw.closer = dev
	hw.device = dev.Path()
	return hw, nil
}

// newHardware builds the transport, register map and decoder over port
func newHardware(profile *board.Profile, port portio.Port, logger *log.Logger) *hardware {
	hw := &hardware{profile: profile, port: port, logger: logger}

	regOpts := []hwmon.Option{hwmon.WithLogger(logger)}
	if profile.HWMonLDN != 0 {
		regOpts = append(regOpts, hwmon.WithLogicalDevice(profile.HWMonLDN))
	}

	hw.tr = superio.New(port, uint16(profile.IndexPort))
	hw.regs = hwmon.New(hw.tr, regOpts...)
	hw.dec = sensor.NewDecoder(hw.regs, profile)
	return hw
}

func (hw *hardware) Close() error {
	if hw.closer == nil {
		return nil
	}
	return hw.closer.Close()
}

// checkChip reads the chip id and compares it with the profile. A mismatch
// is a warning unless strict is set.
func (hw *hardware) checkChip(w io.Writer, strict bool) (superio.ChipID, error) {
	id, err := hw.tr.ReadChipID()
	if err != nil {
		return 0, fmt.Errorf("failed to read chip id: %w", err)
	}
	hw.logger.Printf("chipid: %v", id)

	if hw.profile.ChipID != 0 && uint16(id) != uint16(hw.profile.ChipID) {
		msg := fmt.Sprintf("chip id %v does not match profile %s (expects 0x%04x)",
			id, hw.profile.Name, uint16(hw.profile.ChipID))
		if strict {
			return id, fmt.Errorf("%s", msg)
		}
		fmt.Fprintf(w, "Warning: %s\n", msg)
	}
	return id, nil
}

// init checks the chip and runs the monitor startup sequence
func (hw *hardware) init(w io.Writer, strict bool) error {
	if _, err := hw.checkChip(w, strict); err != nil {
		return err
	}
	if err := hw.regs.Init(); err != nil {
		return fmt.Errorf("failed to initialize hardware monitor: %w", err)
	}
	return nil
}
