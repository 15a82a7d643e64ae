package soc

import "errors"

var (
	// ErrInit indicates that a session with the hardware counter source
	// could not be established (unsupported platform, permission denied,
	// device busy).
	ErrInit = errors.New("soc: init")

	// ErrSampling indicates that the session was lost or its counters
	// became unreadable while a window was being sampled.
	ErrSampling = errors.New("soc: sampling")

	// ErrDescribe indicates that the capability source could not be queried.
	ErrDescribe = errors.New("soc: describe")

	// ErrUnsupported indicates that the host platform has no usable source.
	ErrUnsupported = errors.New("soc: unsupported platform")

	// ErrClosed indicates use of a sampler after Close.
	ErrClosed = errors.New("soc: sampler closed")

	// ErrNoCounters indicates that a source exposes none of the counters
	// it needs (e.g. no cpufreq residency statistics).
	ErrNoCounters = errors.New("soc: no counters")
)

// Kind names the taxonomy bucket of err for logging: "init", "sampling",
// "describe" or "unknown".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInit):
		return "init"
	case errors.Is(err, ErrSampling):
		return "sampling"
	case errors.Is(err, ErrDescribe):
		return "describe"
	default:
		return "unknown"
	}
}
