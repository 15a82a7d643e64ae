//go:build darwin

package capability

import "log/slog"

// Default returns the capability source for the host.
func Default(log *slog.Logger) Source { return NewDarwin(log) }
