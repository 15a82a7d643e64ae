package powermetrics

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ja7ad/socmon/pkg/system/counter"
	"github.com/ja7ad/socmon/pkg/system/util"
)

var (
	headerRegex           = regexp.MustCompile(`^\*\*\* Sampled system activity .*\(([\d.]+)ms elapsed\) \*\*\*`)
	clusterResidencyRegex = regexp.MustCompile(`^([A-Z][A-Z0-9]*)-Cluster HW active residency: +([\d.]+)%(?:\s*\((.*)\))?`)
	gpuResidencyRegex     = regexp.MustCompile(`^GPU HW active residency: +([\d.]+)%(?:\s*\((.*)\))?`)
	freqResidencyRegex    = regexp.MustCompile(`(\d+) MHz: +([\d.]+)%`)
	powerRegex            = regexp.MustCompile(`^(CPU|GPU|ANE|DRAM|GPU SRAM) Power: ([\d.]+) mW`)
	combinedPowerRegex    = regexp.MustCompile(`^Combined Power \(CPU \+ GPU \+ ANE\): ([\d.]+) mW`)
	dieTempRegex          = regexp.MustCompile(`^(CPU|GPU) die temperature: ([\d.]+) C`)
)

// residency is one cluster (or the GPU) in one sample.
type residency struct {
	domain counter.Domain
	name   string
	// active fraction of the sample interval in [0,1]
	active float64
	// fraction of the sample interval spent at each step
	steps map[uint32]float64
}

// sample is one "*** Sampled system activity ***" block.
type sample struct {
	elapsed  time.Duration
	clusters []residency
	powerMW  map[counter.Rail]float64
	cpuTemps []float64
	gpuTemps []float64
}

// parser accumulates lines into samples. It emits the previous block when
// the next header arrives and the last block on flush.
type parser struct {
	cur *sample
}

func (p *parser) parseLine(line string) *sample {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if m := headerRegex.FindStringSubmatch(line); m != nil {
		done := p.flush()
		ms, _ := strconv.ParseFloat(m[1], 64)
		p.cur = &sample{
			elapsed: time.Duration(ms * float64(time.Millisecond)),
			powerMW: map[counter.Rail]float64{},
		}
		return done
	}
	if p.cur == nil {
		// preamble (machine model, OS version)
		return nil
	}

	switch {
	case clusterResidencyRegex.MatchString(line):
		m := clusterResidencyRegex.FindStringSubmatch(line)
		domain := counter.PCPU
		if strings.HasPrefix(m[1], "E") {
			domain = counter.ECPU
		}
		p.cur.clusters = append(p.cur.clusters, newResidency(domain, m[1], m[2], m[3]))
	case gpuResidencyRegex.MatchString(line):
		m := gpuResidencyRegex.FindStringSubmatch(line)
		p.cur.clusters = append(p.cur.clusters, newResidency(counter.GPU, "GPU", m[1], m[2]))
	case combinedPowerRegex.MatchString(line):
		m := combinedPowerRegex.FindStringSubmatch(line)
		p.cur.powerMW[counter.RailAll], _ = strconv.ParseFloat(m[1], 64)
	case powerRegex.MatchString(line):
		m := powerRegex.FindStringSubmatch(line)
		if rail, ok := railFor(m[1]); ok {
			p.cur.powerMW[rail], _ = strconv.ParseFloat(m[2], 64)
		}
	case dieTempRegex.MatchString(line):
		m := dieTempRegex.FindStringSubmatch(line)
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil || v <= 0 {
			return nil
		}
		if m[1] == "GPU" {
			p.cur.gpuTemps = append(p.cur.gpuTemps, v)
		} else {
			p.cur.cpuTemps = append(p.cur.cpuTemps, v)
		}
	}
	return nil
}

// flush returns the block in progress, if any.
func (p *parser) flush() *sample {
	s := p.cur
	p.cur = nil
	if s == nil || s.elapsed <= 0 {
		return nil
	}
	return s
}

func railFor(label string) (counter.Rail, bool) {
	switch label {
	case "CPU":
		return counter.RailCPU, true
	case "GPU":
		return counter.RailGPU, true
	case "ANE":
		return counter.RailANE, true
	case "DRAM":
		return counter.RailRAM, true
	case "GPU SRAM":
		return counter.RailGPURAM, true
	default:
		return 0, false
	}
}

func newResidency(domain counter.Domain, name, activePct, steps string) residency {
	r := residency{domain: domain, name: name, steps: map[uint32]float64{}}
	pct, _ := strconv.ParseFloat(activePct, 64)
	r.active = util.Clamp01(pct / 100)
	for _, m := range freqResidencyRegex.FindAllStringSubmatch(steps, -1) {
		mhz, err1 := strconv.ParseUint(m[1], 10, 32)
		share, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		r.steps[uint32(mhz)] += util.Clamp01(share / 100)
	}
	return r
}
