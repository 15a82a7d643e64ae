// Package descriptor builds the static SoC capability descriptor from a
// capability source.
package descriptor

import (
	"fmt"
	"log/slog"

	"github.com/ja7ad/socmon/pkg/soc"
	"github.com/ja7ad/socmon/pkg/system/capability"
)

// Builder queries a capability source. It holds no state between calls.
type Builder struct {
	src capability.Source
	log *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.log = l
		}
	}
}

// New returns a Builder over src.
func New(src capability.Source, opts ...Option) *Builder {
	b := &Builder{src: src, log: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Describe queries the source once and returns the growable descriptor.
// Failures wrap soc.ErrDescribe.
func (b *Builder) Describe() (soc.Descriptor, error) {
	if b.src == nil {
		return soc.Descriptor{}, fmt.Errorf("%w: nil capability source", soc.ErrDescribe)
	}
	d, err := b.src.Capabilities()
	if err != nil {
		b.log.Warn("capability query failed", "err", err)
		return soc.Descriptor{}, fmt.Errorf("%w: %w", soc.ErrDescribe, err)
	}
	b.log.Debug("descriptor built",
		"model", d.MacModel, "chip", d.ChipName, "memory_gb", d.MemoryGB,
		"ecpu", d.ECPUCores, "pcpu", d.PCPUCores, "gpu", d.GPUCores)
	return d, nil
}

// Query returns the fixed-capacity boundary form of Describe.
func (b *Builder) Query() (*soc.FixedDescriptor, error) {
	d, err := b.Describe()
	if err != nil {
		return nil, err
	}
	return d.Fixed(), nil
}
