// Package monitor implements the tier-distribution health monitor: four
// monotonic counters tracking which tier served each request, and a health
// check comparing the live distribution against the 95/4/1% steady-state
// target the pattern library and router are authored to hit.
package monitor

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// WarmupRequests is the minimum sample size before Health reports anything
// other than "insufficient data".
const WarmupRequests = 50

// target tier percentage bands, inclusive.
var (
	tier1Band = band{92, 98}
	tier2Band = band{2, 7}
	tier3Band = band{0, 3}
)

type band struct {
	min, max float64
}

func (b band) contains(pct float64) bool {
	return pct >= b.min && pct <= b.max
}

// tierStats accumulates count, latency, and threat counts for one tier.
type tierStats struct {
	count        atomic.Int64
	threatCount  atomic.Int64
	latencySumNs atomic.Int64
}

// Distribution tracks per-request tier usage and exposes a health check.
// Record uses only atomic increments (no lock), matching the concurrency
// discipline spec §5 requires for this state: it is on the hot path of
// every request.
type Distribution struct {
	total atomic.Int64
	tiers [4]tierStats // index 0 unused, 1..3 map to tiers 1..3
}

// New returns a Distribution with all counters at zero.
func New() *Distribution {
	return &Distribution{}
}

// Record logs one request's outcome against the counters for tier (1, 2, or
// 3), its processing latency, and whether it resulted in a non-ALLOW
// action.
func (d *Distribution) Record(tier int, elapsed time.Duration, isThreat bool) {
	if tier < 1 || tier > 3 {
		return
	}
	d.total.Add(1)
	t := &d.tiers[tier]
	t.count.Add(1)
	t.latencySumNs.Add(elapsed.Nanoseconds())
	if isThreat {
		t.threatCount.Add(1)
	}
}

// TierSnapshot is the reporting shape for one tier's accumulated stats.
type TierSnapshot struct {
	Count         int64
	Percentage    float64
	AvgLatencyMs  float64
	ThreatCount   int64
	ThreatRate    float64
}

// Snapshot is the full distribution report.
type Snapshot struct {
	Total int64
	Tier1 TierSnapshot
	Tier2 TierSnapshot
	Tier3 TierSnapshot
}

// Snapshot returns the current counts, percentages, average latency, and
// threat rate per tier.
func (d *Distribution) Snapshot() Snapshot {
	total := d.total.Load()
	return Snapshot{
		Total: total,
		Tier1: d.tierSnapshot(1, total),
		Tier2: d.tierSnapshot(2, total),
		Tier3: d.tierSnapshot(3, total),
	}
}

func (d *Distribution) tierSnapshot(tier int, total int64) TierSnapshot {
	t := &d.tiers[tier]
	count := t.count.Load()
	threats := t.threatCount.Load()

	var pct, avgLatencyMs, threatRate float64
	if total > 0 {
		pct = float64(count) / float64(total) * 100
	}
	if count > 0 {
		avgLatencyMs = float64(t.latencySumNs.Load()) / float64(count) / float64(time.Millisecond)
		threatRate = float64(threats) / float64(count)
	}
	return TierSnapshot{
		Count:        count,
		Percentage:   pct,
		AvgLatencyMs: avgLatencyMs,
		ThreatCount:  threats,
		ThreatRate:   threatRate,
	}
}

// HealthStatus is the outcome of a distribution health check.
type HealthStatus struct {
	Healthy bool
	Message string
}

// Health reports whether the live tier distribution is within its target
// bands; a degraded message names every tier outside its band. Below
// WarmupRequests total calls it always reports healthy with an
// "insufficient data" message, matching the reference router's refusal to
// judge on a small sample.
func (d *Distribution) Health() HealthStatus {
	snap := d.Snapshot()
	if snap.Total < WarmupRequests {
		return HealthStatus{Healthy: true, Message: "healthy - insufficient data"}
	}

	var offending []string
	if !tier1Band.contains(snap.Tier1.Percentage) {
		offending = append(offending, degradedMessage("tier1", snap.Tier1.Percentage, tier1Band))
	}
	if !tier2Band.contains(snap.Tier2.Percentage) {
		offending = append(offending, degradedMessage("tier2", snap.Tier2.Percentage, tier2Band))
	}
	if !tier3Band.contains(snap.Tier3.Percentage) {
		offending = append(offending, degradedMessage("tier3", snap.Tier3.Percentage, tier3Band))
	}
	if len(offending) > 0 {
		return HealthStatus{Healthy: false, Message: "degraded: " + strings.Join(offending, "; ")}
	}
	return HealthStatus{Healthy: true, Message: "healthy"}
}

func degradedMessage(tier string, pct float64, target band) string {
	return fmt.Sprintf("%s at %.1f%%, target [%.0f%%, %.0f%%]", tier, pct, target.min, target.max)
}
