package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/ja7ad/socmon/pkg/soc"
	"github.com/ja7ad/socmon/pkg/types"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatCBOR  = "cbor"
	formatRaw   = "raw"
)

// cborMode uses core deterministic encoding so equal snapshots produce
// identical bytes.
var cborMode = func() cbor.EncMode {
	m, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("socmon: cbor encoder: " + err.Error())
	}
	return m
}()

// timedSnapshot is a snapshot stamped with the end of its window.
type timedSnapshot struct {
	Time time.Time `json:"time" yaml:"time" cbor:"time"`

	soc.Snapshot `yaml:",inline"`
}

type encoder interface {
	snapshot(at time.Time, s *soc.Snapshot) error
	descriptor(d *soc.FixedDescriptor) error
	close() error
}

func normalizeFormat(format string) string {
	return strings.ToLower(strings.TrimSpace(format))
}

func newEncoder(format string, w io.Writer) (encoder, error) {
	switch normalizeFormat(format) {
	case formatTable:
		return &tableEncoder{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}, nil
	case formatJSON:
		return &valueEncoder{marshal: func(v any) error { return json.NewEncoder(w).Encode(v) }}, nil
	case formatYAML:
		ye := yaml.NewEncoder(w)
		ye.SetIndent(2)
		return &valueEncoder{marshal: ye.Encode, done: ye.Close}, nil
	case formatCBOR:
		ce := cborMode.NewEncoder(w)
		return &valueEncoder{marshal: ce.Encode}, nil
	case formatRaw:
		return &rawEncoder{w: w}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// valueEncoder writes one document per value.
type valueEncoder struct {
	marshal func(any) error
	done    func() error
}

func (e *valueEncoder) snapshot(at time.Time, s *soc.Snapshot) error {
	return e.marshal(timedSnapshot{Time: at.UTC(), Snapshot: *s})
}

func (e *valueEncoder) descriptor(d *soc.FixedDescriptor) error {
	return e.marshal(d.Descriptor())
}

func (e *valueEncoder) close() error {
	if e.done != nil {
		return e.done()
	}
	return nil
}

// rawEncoder writes the little-endian C layout.
type rawEncoder struct{ w io.Writer }

func (e *rawEncoder) snapshot(_ time.Time, s *soc.Snapshot) error {
	b, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = e.w.Write(b)
	return err
}

func (e *rawEncoder) descriptor(d *soc.FixedDescriptor) error {
	b, err := d.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = e.w.Write(b)
	return err
}

func (e *rawEncoder) close() error { return nil }

type tableEncoder struct {
	tw     *tabwriter.Writer
	header bool
}

func (e *tableEncoder) snapshot(at time.Time, s *soc.Snapshot) error {
	if !e.header {
		fmt.Fprintln(e.tw, "TIME\tE-CPU\tP-CPU\tGPU\tCPU (W)\tGPU (W)\tANE (W)\tALL (W)\tSYS (W)\tCPU °C\tGPU °C\tRAM\tSWAP")
		fmt.Fprintln(e.tw, "----\t-----\t-----\t---\t-------\t-------\t-------\t-------\t-------\t------\t------\t---\t----")
		e.header = true
	}
	used, total := s.Memory.RAM()
	swapUsed, swapTotal := s.Memory.Swap()
	fmt.Fprintf(e.tw, "%s\t%s\t%s\t%s\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.1f\t%.1f\t%s\t%s\n",
		at.Format("2006-01-02 15:04:05"),
		usageCell(s.ECPU), usageCell(s.PCPU), usageCell(s.GPU),
		s.CPUPower, s.GPUPower, s.ANEPower, s.AllPower, s.SysPower,
		s.Temp.CPUAvg, s.Temp.GPUAvg,
		types.Usage(used, total),
		types.Usage(swapUsed, swapTotal),
	)
	return e.tw.Flush()
}

func usageCell(u soc.Usage) string {
	return fmt.Sprintf("%4d MHz %5.1f%%", u.Frequency, 100*u.Usage)
}

func (e *tableEncoder) descriptor(f *soc.FixedDescriptor) error {
	d := f.Descriptor()
	rows := [][2]string{
		{"Model", d.MacModel},
		{"Chip", d.ChipName},
		{"Memory", fmt.Sprintf("%d GB", d.MemoryGB)},
		{"E-cores", fmt.Sprint(d.ECPUCores)},
		{"P-cores", fmt.Sprint(d.PCPUCores)},
		{"GPU cores", fmt.Sprint(d.GPUCores)},
		{"E-CPU MHz", joinFreqs(d.ECPUFreqs)},
		{"P-CPU MHz", joinFreqs(d.PCPUFreqs)},
		{"GPU MHz", joinFreqs(d.GPUFreqs)},
	}
	for _, r := range rows {
		fmt.Fprintf(e.tw, "%s:\t%s\n", r[0], r[1])
	}
	return e.tw.Flush()
}

func joinFreqs(fs []uint32) string {
	if len(fs) == 0 {
		return "-"
	}
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = fmt.Sprint(f)
	}
	return strings.Join(parts, " ")
}

func (e *tableEncoder) close() error { return e.tw.Flush() }
