package main

import (
	"strings"
	"testing"
	"time"
)

func TestFormatHashrate(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 0, want: "0 H/s"},
		{rate: 999, want: "999 H/s"},
		{rate: 1500, want: "1.50 kH/s"},
		{rate: 2.5e6, want: "2.50 MH/s"},
		{rate: 3.2e9, want: "3.20 GH/s"},
	}
	for _, tt := range tests {
		if got := formatHashrate(tt.rate); got != tt.want {
			t.Fatalf("formatHashrate(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestStatsReporterSmoothing(t *testing.T) {
	state := newMiningState(testAddress(t), nil)
	sr := newStatsReporter(state, time.Second)
	sr.started = time.Now().Add(-time.Minute)
	sr.lastTick = time.Now().Add(-time.Second)

	state.addHashes(1_000_000)
	sr.report(time.Now())
	first := sr.ema
	if first <= 0 {
		t.Fatalf("ema = %v after first report", first)
	}

	// A quiet interval pulls the average down, but not to zero.
	sr.lastTick = time.Now().Add(-time.Second)
	sr.report(time.Now())
	if sr.ema >= first || sr.ema <= 0 {
		t.Fatalf("ema = %v after quiet interval, first was %v", sr.ema, first)
	}
}

func TestFormatAttrs(t *testing.T) {
	if got := formatAttrs(nil); got != "" {
		t.Fatalf("formatAttrs(nil) = %q", got)
	}
	got := formatAttrs([]any{"work", 7712, "block", "000000000cad"})
	if got != "work=7712 block=000000000cad" {
		t.Fatalf("formatAttrs = %q", got)
	}
	// Odd trailing key is kept bare.
	if got := formatAttrs([]any{"dangling"}); !strings.Contains(got, "dangling") {
		t.Fatalf("formatAttrs dropped dangling key: %q", got)
	}
}
