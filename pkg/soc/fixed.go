package soc

import (
	"bytes"
	"encoding/binary"
)

const (
	// NameCapacity is the size of the fixed identity buffers, terminator
	// included.
	NameCapacity = 64
	// FreqCapacity is the number of slots in each fixed frequency array.
	FreqCapacity = 32

	// DescriptorSize and SnapshotSize are the C ABI sizes of the boundary
	// structs, trailing padding included.
	DescriptorSize = 520
	SnapshotSize   = 96
)

// FixedDescriptor is the byte-stable boundary form of Descriptor. Counts
// always reflect the truncated length, never the device's true list length.
type FixedDescriptor struct {
	MacModel       [NameCapacity]byte
	ChipName       [NameCapacity]byte
	MemoryGB       uint8
	ECPUCores      uint8
	PCPUCores      uint8
	GPUCores       uint8
	ECPUFreqs      [FreqCapacity]uint32
	PCPUFreqs      [FreqCapacity]uint32
	GPUFreqs       [FreqCapacity]uint32
	ECPUFreqsCount uint8
	PCPUFreqsCount uint8
	GPUFreqsCount  uint8
}

// Fixed applies the bounded copy: identity strings are cut at 63 bytes so
// a NUL terminator always fits, and frequency lists keep their first 32
// entries.
func (d Descriptor) Fixed() *FixedDescriptor {
	f := &FixedDescriptor{
		MemoryGB:  d.MemoryGB,
		ECPUCores: d.ECPUCores,
		PCPUCores: d.PCPUCores,
		GPUCores:  d.GPUCores,
	}
	copyName(&f.MacModel, d.MacModel)
	copyName(&f.ChipName, d.ChipName)
	f.ECPUFreqsCount = copyFreqs(&f.ECPUFreqs, d.ECPUFreqs)
	f.PCPUFreqsCount = copyFreqs(&f.PCPUFreqs, d.PCPUFreqs)
	f.GPUFreqsCount = copyFreqs(&f.GPUFreqs, d.GPUFreqs)
	return f
}

func copyName(dst *[NameCapacity]byte, s string) {
	n := min(len(s), NameCapacity-1)
	copy(dst[:n], s[:n])
}

func copyFreqs(dst *[FreqCapacity]uint32, src []uint32) uint8 {
	n := min(len(src), FreqCapacity)
	copy(dst[:n], src[:n])
	return uint8(n)
}

// Descriptor converts the fixed form back to the growable one.
func (f *FixedDescriptor) Descriptor() Descriptor {
	return Descriptor{
		MacModel:  cString(f.MacModel[:]),
		ChipName:  cString(f.ChipName[:]),
		MemoryGB:  f.MemoryGB,
		ECPUCores: f.ECPUCores,
		PCPUCores: f.PCPUCores,
		GPUCores:  f.GPUCores,
		ECPUFreqs: append([]uint32(nil), f.ECPUFreqs[:min(int(f.ECPUFreqsCount), FreqCapacity)]...),
		PCPUFreqs: append([]uint32(nil), f.PCPUFreqs[:min(int(f.PCPUFreqsCount), FreqCapacity)]...),
		GPUFreqs:  append([]uint32(nil), f.GPUFreqs[:min(int(f.GPUFreqsCount), FreqCapacity)]...),
	}
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// MarshalBinary encodes f in the little-endian C layout (DescriptorSize bytes).
func (f *FixedDescriptor) MarshalBinary() ([]byte, error) {
	return appendPadded(make([]byte, 0, DescriptorSize), f, DescriptorSize)
}

// MarshalBinary encodes s in the little-endian C layout (SnapshotSize bytes).
func (s *Snapshot) MarshalBinary() ([]byte, error) {
	return appendPadded(make([]byte, 0, SnapshotSize), s, SnapshotSize)
}

// appendPadded writes v packed, then zero-fills up to size to reproduce the
// trailing padding the C compiler inserts.
func appendPadded(buf []byte, v any, size int) ([]byte, error) {
	buf, err := binary.Append(buf, binary.LittleEndian, v)
	if err != nil {
		return nil, err
	}
	for len(buf) < size {
		buf = append(buf, 0)
	}
	return buf, nil
}
