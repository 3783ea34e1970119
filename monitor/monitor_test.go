package monitor

import (
	"strings"
	"testing"
	"time"
)

func TestRecordKeepsCountersConsistent(t *testing.T) {
	d := New()
	for i := 0; i < 95; i++ {
		d.Record(1, time.Microsecond, false)
	}
	for i := 0; i < 4; i++ {
		d.Record(2, time.Millisecond, false)
	}
	d.Record(3, 10*time.Millisecond, true)

	snap := d.Snapshot()
	if snap.Total != 100 {
		t.Fatalf("expected total 100, got %d", snap.Total)
	}
	if snap.Tier1.Count+snap.Tier2.Count+snap.Tier3.Count != snap.Total {
		t.Fatalf("tier counts do not sum to total: %+v", snap)
	}
}

func TestHealthBelowWarmupIsHealthy(t *testing.T) {
	d := New()
	for i := 0; i < WarmupRequests-1; i++ {
		d.Record(1, time.Microsecond, false)
	}
	h := d.Health()
	if !h.Healthy || h.Message != "healthy - insufficient data" {
		t.Fatalf("expected insufficient-data healthy status, got %+v", h)
	}
}

func TestHealthWithinTargetBands(t *testing.T) {
	d := New()
	for i := 0; i < 95; i++ {
		d.Record(1, time.Microsecond, false)
	}
	for i := 0; i < 4; i++ {
		d.Record(2, time.Microsecond, false)
	}
	d.Record(3, time.Microsecond, false)

	h := d.Health()
	if !h.Healthy {
		t.Fatalf("expected healthy distribution, got %+v", h)
	}
}

func TestHealthDegradedWhenTier3Overshoots(t *testing.T) {
	d := New()
	for i := 0; i < 80; i++ {
		d.Record(1, time.Microsecond, false)
	}
	for i := 0; i < 20; i++ {
		d.Record(3, time.Microsecond, true)
	}

	h := d.Health()
	if h.Healthy {
		t.Fatal("expected a degraded status when tier3 share is far above target")
	}
	if !strings.Contains(h.Message, "tier3") {
		t.Fatalf("expected message to name the offending tier, got %q", h.Message)
	}
}

func TestSnapshotReportsThreatRate(t *testing.T) {
	d := New()
	d.Record(3, time.Millisecond, true)
	d.Record(3, time.Millisecond, false)

	snap := d.Snapshot()
	if snap.Tier3.ThreatRate != 0.5 {
		t.Fatalf("expected threat rate 0.5, got %f", snap.Tier3.ThreatRate)
	}
}

func TestBadgeProducesSVG(t *testing.T) {
	d := New()
	svg := d.Badge()
	if !strings.Contains(svg, "<svg") || !strings.Contains(svg, "warming up") {
		t.Fatalf("expected an SVG badge mentioning the warm-up state, got %q", svg)
	}
}
