package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/ja7ad/socmon/pkg/config"
)

var version = "dev"

type globals struct {
	configPath string
	source     string
	logLevel   string
}

// load reads the configuration file and applies flag overrides.
func (g *globals) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.source != "" {
		cfg.Source = g.source
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log := cfg.Logger(os.Stderr)
	slog.SetDefault(log)
	return cfg, log, nil
}

func newRootCmd() *cobra.Command {
	var g globals

	root := &cobra.Command{
		Use:   "socmon",
		Short: "SoC frequency, utilization, power and thermal sampler",
		Long: `socmon samples per-domain CPU/GPU frequency and utilization, power by
rail, die temperatures and memory for a System-on-Chip, and prints the
static capability descriptor (chip identity, core counts, frequency steps).

On macOS counters come from powermetrics (requires root). On Linux they come
from cpufreq, /proc/stat, powercap and thermal zones.

Examples:
  socmon sample -i 500ms -s 10
  socmon sample --format json -s 1 | jq .all_power
  socmon describe --format yaml`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (yaml, json or jsonc); defaults to $"+config.EnvPath)
	root.PersistentFlags().StringVar(&g.source, "source", "", "counter source: auto, sysfs or powermetrics")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(newSampleCmd(&g), newDescribeCmd(&g), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the socmon version",
		Run: func(cmd *cobra.Command, _ []string) {
			v := version
			if info, ok := debug.ReadBuildInfo(); ok && v == "dev" && info.Main.Version != "" {
				v = info.Main.Version
			}
			fmt.Fprintln(cmd.OutOrStdout(), "socmon", v)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
