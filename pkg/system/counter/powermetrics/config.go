package powermetrics

import (
	"fmt"
	"time"
)

const (
	defaultPath     = "/usr/bin/powermetrics"
	defaultInterval = 100 * time.Millisecond
)

var defaultArgs = []string{
	"--samplers", "cpu_power,gpu_power,thermal",
}

// Config holds configuration for the powermetrics subprocess.
type Config struct {
	Path string
	Args []string
	// Interval is the sampling period requested with -i. Windows shorter
	// than it see no new samples.
	Interval time.Duration
	// StartTimeout bounds how long Open waits for the first sample.
	StartTimeout time.Duration
}

func normalizeConfig(cfg Config) Config {
	normalized := cfg

	if normalized.Path == "" {
		normalized.Path = defaultPath
	}

	args := normalized.Args
	if len(args) == 0 {
		args = append([]string{}, defaultArgs...)
	} else {
		args = append([]string{}, args...)
	}

	interval := normalized.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	args = ensureIntervalArgument(args, interval)

	if normalized.StartTimeout <= 0 {
		normalized.StartTimeout = 5*interval + 2*time.Second
	}

	normalized.Args = args
	normalized.Interval = interval
	return normalized
}

func ensureIntervalArgument(args []string, interval time.Duration) []string {
	ms := fmt.Sprintf("%d", interval.Milliseconds())
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" || args[i] == "--sample-rate" {
			args[i+1] = ms
			return args
		}
	}
	return append(args, "-i", ms)
}
