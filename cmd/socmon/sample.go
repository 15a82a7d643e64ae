package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ja7ad/socmon/pkg/sampler"
	"github.com/ja7ad/socmon/pkg/soc"
	"github.com/ja7ad/socmon/pkg/system/util"
)

type sampleOpts struct {
	samples  int
	interval time.Duration
	ema      float64
	format   string
	header   bool
}

func newSampleCmd(g *globals) *cobra.Command {
	var o sampleOpts

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Sample SoC metrics over consecutive windows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := o.validate(); err != nil {
				return err
			}
			enc, err := newEncoder(o.format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			window := o.interval
			if window <= 0 {
				window = cfg.Window.Std()
			}
			src, _ := cfg.Sources(log)
			s, err := sampler.New(src,
				sampler.WithWindow(window),
				sampler.WithSteps(cfg.Steps),
				sampler.WithLogger(log),
			)
			if err != nil {
				return err
			}
			defer s.Close()

			if o.header && o.format == formatTable {
				printHostHeader(cmd.OutOrStdout(), s.Source())
			}
			return runSample(cmd.Context(), s, window, o, enc, cmd.OutOrStdout(), log)
		},
	}

	cmd.Flags().IntVarP(&o.samples, "samples", "s", 5, "number of windows to sample (0 = run until Ctrl-C)")
	cmd.Flags().DurationVarP(&o.interval, "interval", "i", 0, "window length (e.g. 1s, 500ms); defaults to the configured window")
	cmd.Flags().Float64Var(&o.ema, "ema", 1, "EMA alpha for smoothing table output [0..1]; 1 disables smoothing")
	cmd.Flags().StringVar(&o.format, "format", formatTable, "output format: table, json, yaml, cbor or raw")
	cmd.Flags().BoolVar(&o.header, "header", true, "print a host header before the table")
	return cmd
}

// validate checks flag values and normalizes the format so later
// comparisons against the format constants hold.
func (o *sampleOpts) validate() error {
	if o.ema < 0 || o.ema > 1 {
		return fmt.Errorf("ema must be in [0,1]")
	}
	o.format = normalizeFormat(o.format)
	return nil
}

type windowSampler interface {
	Sample(time.Duration) (*soc.Snapshot, error)
}

// runSample prints o.samples windows (or until ctx is cancelled) and, for
// table output, a summary of window averages.
func runSample(ctx context.Context, s windowSampler, window time.Duration, o sampleOpts, enc encoder, out io.Writer, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	smooth := newSmoother(o.ema)
	var sum summary
	for n := 0; o.samples == 0 || n < o.samples; n++ {
		if ctx.Err() != nil {
			log.Info("interrupted")
			break
		}
		snap, err := s.Sample(window)
		if err != nil {
			return err
		}
		sum.add(snap)
		if err := enc.snapshot(time.Now(), smooth.apply(snap)); err != nil {
			return err
		}
	}
	if err := enc.close(); err != nil {
		return err
	}
	if o.format == formatTable && sum.n > 0 {
		sum.print(out, window)
	}
	return nil
}

// smoother applies an EMA per field shown in the table.
type smoother struct {
	alpha  float64
	fields []*util.EMA
}

func newSmoother(alpha float64) *smoother {
	s := &smoother{alpha: alpha}
	for range 9 {
		s.fields = append(s.fields, util.NewEMA(alpha))
	}
	return s
}

func (s *smoother) apply(in *soc.Snapshot) *soc.Snapshot {
	if s.alpha >= 1 {
		return in
	}
	out := *in
	vals := []*float32{
		&out.ECPU.Usage, &out.PCPU.Usage, &out.GPU.Usage,
		&out.CPUPower, &out.GPUPower, &out.ANEPower, &out.AllPower, &out.SysPower, &out.RAMPower,
	}
	for i, p := range vals {
		*p = float32(s.fields[i].Next(float64(*p)))
	}
	return &out
}

type summary struct {
	n                        int
	cpu, gpu, ane, all, sys  float64
	ecpuUse, pcpuUse, gpuUse float64
}

func (m *summary) add(s *soc.Snapshot) {
	m.n++
	m.cpu += float64(s.CPUPower)
	m.gpu += float64(s.GPUPower)
	m.ane += float64(s.ANEPower)
	m.all += float64(s.AllPower)
	m.sys += float64(s.SysPower)
	m.ecpuUse += float64(s.ECPU.Usage)
	m.pcpuUse += float64(s.PCPU.Usage)
	m.gpuUse += float64(s.GPU.Usage)
}

func (m *summary) print(w io.Writer, window time.Duration) {
	n := float64(m.n)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "socmon avg (over %d windows of ~%s):\n", m.n, window)
	fmt.Fprintf(w, "- usage (ecpu):  %.1f%%\n", 100*m.ecpuUse/n)
	fmt.Fprintf(w, "- usage (pcpu):  %.1f%%\n", 100*m.pcpuUse/n)
	fmt.Fprintf(w, "- usage (gpu):   %.1f%%\n", 100*m.gpuUse/n)
	fmt.Fprintf(w, "- watt (cpu):    %.3f W\n", m.cpu/n)
	fmt.Fprintf(w, "- watt (gpu):    %.3f W\n", m.gpu/n)
	fmt.Fprintf(w, "- watt (ane):    %.3f W\n", m.ane/n)
	fmt.Fprintf(w, "- watt (all):    %.3f W\n", m.all/n)
	fmt.Fprintf(w, "- watt (sys):    %.3f W\n", m.sys/n)
	fmt.Fprintln(w)
}
