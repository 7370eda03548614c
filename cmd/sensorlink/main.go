// sensorlink reads the CPU and GPU temperatures once a second and sends
// them to an external display over a serial link or, failing that, over
// UDP to a display found through DNS-SD.
//
// Usage:
//
//	sensorlink [run] [flags]      forward readings (default)
//	sensorlink ports              list serial ports
//	sensorlink discover [flags]   list advertised displays
//	sensorlink history [flags]    browse recorded days
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/luki/sensorlink/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sensorlink: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := "run"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	flagSet := pflag.NewFlagSet("sensorlink "+cmd, pflag.ContinueOnError)
	config.Default().AddFlags(flagSet)
	configPath := flagSet.StringP("config", "c", os.Getenv(config.EnvPath), "path to the YAML configuration file")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	cfg, err := config.Resolve(flagSet, *configPath)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	switch cmd {
	case "run":
		return runTelemetry(cfg)
	case "ports":
		return listPorts()
	case "discover":
		return discover(cfg)
	case "history":
		return browseHistory(cfg)
	default:
		return fmt.Errorf("unknown command %q (want run, ports, discover or history)", cmd)
	}
}
