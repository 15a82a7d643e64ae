package sampler

import (
	"math"
	"time"

	"github.com/ja7ad/socmon/pkg/soc"
	"github.com/ja7ad/socmon/pkg/system/counter"
	"github.com/ja7ad/socmon/pkg/system/util"
)

type channelKey struct {
	domain counter.Domain
	name   string
}

// channelUsage reduces one channel between two reads.
//
//	freq  = Σ(MHz·Δresidency) / ΣΔresidency
//	usage = clamp01(1 − Δidle / span)
//
// ok is false when neither idle nor any step advanced, i.e. the counter
// produced no data during the window.
func channelUsage(prev, cur counter.Channel, span time.Duration) (freq, usage float64, ok bool) {
	before := make(map[uint32]time.Duration, len(prev.Steps))
	for _, st := range prev.Steps {
		before[st.MHz] += st.Residency
	}
	after := make(map[uint32]time.Duration, len(cur.Steps))
	for _, st := range cur.Steps {
		after[st.MHz] += st.Residency
	}

	var weighted float64
	var active time.Duration
	for mhz, res := range after {
		d := util.DeltaDuration(res, before[mhz])
		active += d
		weighted += float64(mhz) * d.Seconds()
	}
	idle := util.DeltaDuration(cur.Idle, prev.Idle)

	if active == 0 && idle == 0 {
		return 0, 0, false
	}
	if span <= 0 {
		return 0, 0, false
	}
	freq = util.SafeDiv(weighted, active.Seconds())
	usage = util.Clamp01(1 - idle.Seconds()/span.Seconds())
	return freq, usage, true
}

// domainUsages averages channel results per domain. Counters are
// cumulative since the session opened, so a channel absent from first
// starts from zero.
func domainUsages(first, last []counter.Channel, span time.Duration) map[counter.Domain]soc.Usage {
	base := make(map[channelKey]counter.Channel, len(first))
	for _, ch := range first {
		base[channelKey{ch.Domain, ch.Name}] = ch
	}

	type acc struct {
		freqSum, usageSum float64
		n                 int
	}
	sums := map[counter.Domain]*acc{}
	for _, ch := range last {
		prev := base[channelKey{ch.Domain, ch.Name}]
		freq, usage, ok := channelUsage(prev, ch, span)
		if !ok {
			continue
		}
		a := sums[ch.Domain]
		if a == nil {
			a = &acc{}
			sums[ch.Domain] = a
		}
		a.freqSum += freq
		a.usageSum += usage
		a.n++
	}

	out := make(map[counter.Domain]soc.Usage, len(sums))
	for d, a := range sums {
		n := float64(a.n)
		out[d] = soc.Usage{
			Frequency: uint32(math.Round(math.Max(a.freqSum/n, 0))),
			Usage:     float32(util.Clamp01(a.usageSum / n)),
		}
	}
	return out
}

// railWatts converts cumulative microjoule counters into average watts over
// span. A rail absent from first has accumulated nothing before it; a
// rail absent from last reports zero.
func railWatts(first, last map[counter.Rail]uint64, span time.Duration) map[counter.Rail]float32 {
	out := make(map[counter.Rail]float32, len(last))
	if span <= 0 {
		return out
	}
	for rail, now := range last {
		joules := float64(util.DeltaU64(now, first[rail])) / 1e6
		out[rail] = float32(joules / span.Seconds())
	}
	return out
}
