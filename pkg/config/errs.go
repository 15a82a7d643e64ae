package config

import "errors"

var (
	// ErrUnknownSource is returned for a source name other than auto,
	// sysfs or powermetrics.
	ErrUnknownSource = errors.New("config: unknown source")

	// ErrParse wraps file read and decode failures.
	ErrParse = errors.New("config: parse")
)
