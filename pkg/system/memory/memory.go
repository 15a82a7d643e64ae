// Package memory reads RAM and swap totals and usage for snapshots and the
// capability descriptor.
package memory

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/ja7ad/socmon/pkg/soc"
	"github.com/ja7ad/socmon/pkg/system/cgroup"
)

type (
	virtualReader func() (*mem.VirtualMemoryStat, error)
	swapReader    func() (*mem.SwapMemoryStat, error)
)

// Reader reads host memory through gopsutil and, when cgroup-aware,
// narrows RAM to the enclosing cgroup's limit.
type Reader struct {
	virtual virtualReader
	swap    swapReader

	cgroupAware bool
	procRoot    string
	hostRoot    string
	log         *slog.Logger

	once   sync.Once
	mounts cgroup.Mounts
	// limited is false once the cgroup turned out to have no limit, so
	// later reads skip the lookup. One Reader serves every session of a
	// source, so Read may run concurrently.
	limited atomic.Bool
}

// Option configures a Reader.
type Option func(*Reader)

// WithCgroup enables cgroup limits. procRoot locates mountinfo and hostRoot
// is prepended to cgroup mount points.
func WithCgroup(procRoot, hostRoot string) Option {
	return func(r *Reader) {
		r.cgroupAware = true
		r.procRoot = procRoot
		r.hostRoot = hostRoot
	}
}

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.log = l
		}
	}
}

func withReaders(v virtualReader, s swapReader) Option {
	return func(r *Reader) {
		r.virtual = v
		r.swap = s
	}
}

// New returns a Reader backed by gopsutil.
func New(opts ...Option) *Reader {
	r := &Reader{
		virtual:  mem.VirtualMemory,
		swap:     mem.SwapMemory,
		procRoot: "/proc",
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read returns current RAM and swap figures with usage capped at totals.
func (r *Reader) Read() (soc.Memory, error) {
	vm, err := r.virtual()
	if err != nil {
		return soc.Memory{}, fmt.Errorf("memory: virtual: %w", err)
	}
	out := soc.Memory{RAMTotal: vm.Total, RAMUsage: vm.Used}

	// Swap is optional; hosts without swap report zeros.
	if sw, err := r.swap(); err == nil && sw != nil {
		out.SwapTotal = sw.Total
		out.SwapUsage = sw.Used
	} else if err != nil {
		r.log.Debug("swap read failed", "err", err)
	}

	if r.cgroupAware {
		r.applyCgroup(&out)
	}
	return out.Clamped(), nil
}

// Total returns installed RAM in bytes.
func (r *Reader) Total() (uint64, error) {
	vm, err := r.virtual()
	if err != nil {
		return 0, fmt.Errorf("memory: virtual: %w", err)
	}
	return vm.Total, nil
}

func (r *Reader) applyCgroup(m *soc.Memory) {
	r.once.Do(func() {
		mounts, err := cgroup.DetectFrom(r.procRoot)
		if err != nil {
			r.log.Debug("cgroup detection failed", "err", err)
			return
		}
		r.mounts = mounts
		r.limited.Store(mounts.Version != cgroup.Unsupported)
		r.log.Debug("cgroup detected", "mounts", mounts.String())
	})
	if !r.limited.Load() {
		return
	}

	lim, err := cgroup.ReadMemory(r.mounts, r.hostRoot)
	if errors.Is(err, cgroup.ErrNoLimit) {
		r.limited.Store(false)
		return
	}
	if err != nil {
		r.log.Debug("cgroup memory read failed", "err", err)
		return
	}
	if lim.Limit == 0 || lim.Limit >= m.RAMTotal {
		return
	}
	m.RAMTotal = lim.Limit
	m.RAMUsage = lim.Usage
}
