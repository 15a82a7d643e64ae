package proc

import "errors"

var (
	// ErrNoCPU indicates that /proc/stat had no aggregate CPU line.
	ErrNoCPU = errors.New("proc: no cpu line")

	// ErrShortStat indicates a cpu line with fewer fields than expected.
	ErrShortStat = errors.New("proc: short stat")
)
