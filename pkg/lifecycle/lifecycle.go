// Package lifecycle owns every resource handed across the C boundary:
// samplers, snapshots and descriptors live in handle tables and are only
// reachable through the handles issued here. Resources enter a table only
// once fully built, and a released handle can never be dereferenced again.
package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ja7ad/socmon/pkg/descriptor"
	"github.com/ja7ad/socmon/pkg/handle"
	"github.com/ja7ad/socmon/pkg/sampler"
	"github.com/ja7ad/socmon/pkg/soc"
	"github.com/ja7ad/socmon/pkg/system/capability"
	"github.com/ja7ad/socmon/pkg/system/counter"
)

// samplerEntry serializes calls on one sampler; independent samplers run
// concurrently.
type samplerEntry struct {
	mu sync.Mutex
	s  *sampler.Sampler
}

// Manager issues and releases handles.
type Manager struct {
	counters    counter.Source
	builder     *descriptor.Builder
	samplerOpts []sampler.Option
	log         *slog.Logger

	samplers    *handle.Table[*samplerEntry]
	snapshots   *handle.Table[*soc.Snapshot]
	descriptors *handle.Table[*soc.FixedDescriptor]
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithSamplerOptions are applied to every sampler the manager creates.
func WithSamplerOptions(opts ...sampler.Option) Option {
	return func(m *Manager) { m.samplerOpts = append(m.samplerOpts, opts...) }
}

// New returns a Manager that opens samplers on counters and builds
// descriptors from caps.
func New(counters counter.Source, caps capability.Source, opts ...Option) *Manager {
	m := &Manager{
		counters:    counters,
		log:         slog.Default(),
		samplers:    handle.NewTable[*samplerEntry](),
		snapshots:   handle.NewTable[*soc.Snapshot](),
		descriptors: handle.NewTable[*soc.FixedDescriptor](),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.builder = descriptor.New(caps, descriptor.WithLogger(m.log))
	m.samplerOpts = append(m.samplerOpts, sampler.WithLogger(m.log))
	return m
}

func (m *Manager) fail(op string, err error) error {
	m.log.Error(op+" failed", "kind", soc.Kind(err), "err", err)
	return err
}

// CreateSampler opens a sampler and returns its handle.
func (m *Manager) CreateSampler() (handle.Handle, error) {
	s, err := sampler.New(m.counters, m.samplerOpts...)
	if err != nil {
		return 0, m.fail("create sampler", err)
	}
	h := m.samplers.Insert(&samplerEntry{s: s})
	m.log.Debug("sampler created", "handle", h, "sampler", s.ID())
	return h, nil
}

// Sample runs one window on the sampler behind h and returns a snapshot
// handle. window <= 0 selects the default window.
func (m *Manager) Sample(h handle.Handle, window time.Duration) (handle.Handle, error) {
	e, err := m.samplers.Get(h)
	if err != nil {
		return 0, m.fail("sample", fmt.Errorf("%w: sampler %d: %w", soc.ErrSampling, h, err))
	}
	e.mu.Lock()
	snap, err := e.s.Sample(window)
	e.mu.Unlock()
	if err != nil {
		return 0, m.fail("sample", err)
	}
	return m.snapshots.Insert(snap), nil
}

// Snapshot returns the snapshot behind h.
func (m *Manager) Snapshot(h handle.Handle) (*soc.Snapshot, error) {
	return m.snapshots.Get(h)
}

// ReleaseSampler closes the sampler behind h. The null handle is ignored;
// an unknown or already released handle is logged and ignored.
func (m *Manager) ReleaseSampler(h handle.Handle) {
	if h == 0 {
		return
	}
	e, err := m.samplers.Remove(h)
	if err != nil {
		m.log.Warn("release of unknown sampler", "handle", h)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.s.Close(); err != nil {
		m.log.Warn("sampler close failed", "handle", h, "err", err)
	}
}

// ReleaseSnapshot releases the snapshot behind h.
func (m *Manager) ReleaseSnapshot(h handle.Handle) {
	if h == 0 {
		return
	}
	if _, err := m.snapshots.Remove(h); err != nil {
		m.log.Warn("release of unknown snapshot", "handle", h)
	}
}

// QueryDescriptor builds a fresh fixed descriptor and returns its handle.
func (m *Manager) QueryDescriptor() (handle.Handle, error) {
	d, err := m.builder.Query()
	if err != nil {
		return 0, m.fail("query descriptor", err)
	}
	return m.descriptors.Insert(d), nil
}

// Descriptor returns the descriptor behind h.
func (m *Manager) Descriptor(h handle.Handle) (*soc.FixedDescriptor, error) {
	return m.descriptors.Get(h)
}

// ReleaseDescriptor releases the descriptor behind h.
func (m *Manager) ReleaseDescriptor(h handle.Handle) {
	if h == 0 {
		return
	}
	if _, err := m.descriptors.Remove(h); err != nil {
		m.log.Warn("release of unknown descriptor", "handle", h)
	}
}

// Live reports how many samplers, snapshots and descriptors are held.
func (m *Manager) Live() (samplers, snapshots, descriptors int) {
	return m.samplers.Len(), m.snapshots.Len(), m.descriptors.Len()
}

// Close releases every outstanding resource.
func (m *Manager) Close() error {
	var errs []error
	for _, e := range m.samplers.Drain() {
		e.mu.Lock()
		errs = append(errs, e.s.Close())
		e.mu.Unlock()
	}
	m.snapshots.Drain()
	m.descriptors.Drain()
	return errors.Join(errs...)
}
