//go:build !linux && !darwin

package capability

import (
	"log/slog"
	"runtime"
)

// Default returns the capability source for the host.
func Default(*slog.Logger) Source { return Unsupported(runtime.GOOS) }
