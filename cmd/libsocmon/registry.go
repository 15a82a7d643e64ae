package main

import (
	"log/slog"
	"sync"
	"time"
	"unsafe"

	"github.com/ja7ad/socmon/pkg/handle"
	"github.com/ja7ad/socmon/pkg/lifecycle"
	"github.com/ja7ad/socmon/pkg/soc"
)

// allocator hands out zeroed memory the caller can free.
type allocator interface {
	calloc(size int) unsafe.Pointer
	free(p unsafe.Pointer)
}

// registry maps pointers given to C callers back to lifecycle handles.
// Every pointer it returns is tracked until freed, so freeing NULL, a
// foreign pointer or an already freed pointer is a logged no-op.
type registry struct {
	mgr   *lifecycle.Manager
	alloc allocator
	log   *slog.Logger

	mu       sync.Mutex
	samplers map[unsafe.Pointer]handle.Handle
	metrics  map[unsafe.Pointer]handle.Handle
	infos    map[unsafe.Pointer]handle.Handle
}

func newRegistry(mgr *lifecycle.Manager, alloc allocator, log *slog.Logger) *registry {
	return &registry{
		mgr:      mgr,
		alloc:    alloc,
		log:      log,
		samplers: make(map[unsafe.Pointer]handle.Handle),
		metrics:  make(map[unsafe.Pointer]handle.Handle),
		infos:    make(map[unsafe.Pointer]handle.Handle),
	}
}

func (r *registry) track(m map[unsafe.Pointer]handle.Handle, p unsafe.Pointer, h handle.Handle) {
	r.mu.Lock()
	m[p] = h
	r.mu.Unlock()
}

func (r *registry) lookup(m map[unsafe.Pointer]handle.Handle, p unsafe.Pointer) (handle.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := m[p]
	return h, ok
}

func (r *registry) untrack(m map[unsafe.Pointer]handle.Handle, p unsafe.Pointer) (handle.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := m[p]
	if ok {
		delete(m, p)
	}
	return h, ok
}

// copyOut allocates size bytes and copies the encoded struct into them.
// MarshalBinary emits the little-endian C layout, which matches every
// supported target.
func (r *registry) copyOut(b []byte, size int) unsafe.Pointer {
	p := r.alloc.calloc(size)
	if p == nil {
		r.log.Error("allocation failed", "size", size)
		return nil
	}
	copy(unsafe.Slice((*byte)(p), size), b)
	return p
}

func (r *registry) newSampler() unsafe.Pointer {
	h, err := r.mgr.CreateSampler()
	if err != nil {
		return nil
	}
	tok := r.alloc.calloc(1)
	if tok == nil {
		r.log.Error("allocation failed", "size", 1)
		r.mgr.ReleaseSampler(h)
		return nil
	}
	r.track(r.samplers, tok, h)
	return tok
}

func (r *registry) sample(tok unsafe.Pointer, window time.Duration) unsafe.Pointer {
	if tok == nil {
		return nil
	}
	h, ok := r.lookup(r.samplers, tok)
	if !ok {
		r.log.Warn("sample on unknown sampler pointer")
		return nil
	}
	sh, err := r.mgr.Sample(h, window)
	if err != nil {
		return nil
	}
	snap, err := r.mgr.Snapshot(sh)
	if err != nil {
		r.mgr.ReleaseSnapshot(sh)
		return nil
	}
	b, err := snap.MarshalBinary()
	if err != nil {
		r.log.Error("encode snapshot", "err", err)
		r.mgr.ReleaseSnapshot(sh)
		return nil
	}
	p := r.copyOut(b, soc.SnapshotSize)
	if p == nil {
		r.mgr.ReleaseSnapshot(sh)
		return nil
	}
	r.track(r.metrics, p, sh)
	return p
}

func (r *registry) freeSampler(tok unsafe.Pointer) {
	if tok == nil {
		return
	}
	h, ok := r.untrack(r.samplers, tok)
	if !ok {
		r.log.Warn("free of unknown sampler pointer")
		return
	}
	r.mgr.ReleaseSampler(h)
	r.alloc.free(tok)
}

func (r *registry) freeMetrics(p unsafe.Pointer) {
	if p == nil {
		return
	}
	h, ok := r.untrack(r.metrics, p)
	if !ok {
		r.log.Warn("free of unknown metrics pointer")
		return
	}
	r.mgr.ReleaseSnapshot(h)
	r.alloc.free(p)
}

func (r *registry) socInfo() unsafe.Pointer {
	dh, err := r.mgr.QueryDescriptor()
	if err != nil {
		return nil
	}
	d, err := r.mgr.Descriptor(dh)
	if err != nil {
		r.mgr.ReleaseDescriptor(dh)
		return nil
	}
	b, err := d.MarshalBinary()
	if err != nil {
		r.log.Error("encode descriptor", "err", err)
		r.mgr.ReleaseDescriptor(dh)
		return nil
	}
	p := r.copyOut(b, soc.DescriptorSize)
	if p == nil {
		r.mgr.ReleaseDescriptor(dh)
		return nil
	}
	r.track(r.infos, p, dh)
	return p
}

func (r *registry) freeSocInfo(p unsafe.Pointer) {
	if p == nil {
		return
	}
	h, ok := r.untrack(r.infos, p)
	if !ok {
		r.log.Warn("free of unknown soc info pointer")
		return
	}
	r.mgr.ReleaseDescriptor(h)
	r.alloc.free(p)
}
