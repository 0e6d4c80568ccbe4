package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hako/durafmt"
)

// emaTauSeconds smooths the reported hashrate over roughly a minute of
// batch completions.
const emaTauSeconds = 60.0

// statsReporter periodically logs the aggregate mining rate across all
// device workers, smoothed with an exponential moving average so one slow
// batch does not bounce the number around.
type statsReporter struct {
	state    *miningState
	interval time.Duration

	started    time.Time
	lastHashes uint64
	lastTick   time.Time
	ema        float64
}

func newStatsReporter(state *miningState, interval time.Duration) *statsReporter {
	return &statsReporter{state: state, interval: interval}
}

func (sr *statsReporter) run(ctx context.Context) {
	sr.started = time.Now()
	sr.lastTick = sr.started

	ticker := time.NewTicker(sr.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sr.report(now)
		}
	}
}

func (sr *statsReporter) report(now time.Time) {
	hashes := sr.state.hashes()
	elapsed := now.Sub(sr.lastTick).Seconds()
	if elapsed <= 0 {
		return
	}
	rate := float64(hashes-sr.lastHashes) / elapsed
	sr.lastHashes = hashes
	sr.lastTick = now

	// Standard EMA update with a time-constant decay, same shape as the
	// per-connection hashrate smoothing on the pool side.
	alpha := 1.0 - math.Exp(-elapsed/emaTauSeconds)
	if sr.ema == 0 {
		sr.ema = rate
	} else {
		sr.ema += alpha * (rate - sr.ema)
	}

	attrs := []any{
		"hashrate", formatHashrate(sr.ema),
		"total_hashes", hashes,
		"solved", sr.state.solved(),
		"uptime", durafmt.Parse(now.Sub(sr.started).Round(time.Second)).LimitFirstN(2).String(),
	}
	if age, ok := sr.state.targetAge(); ok {
		attrs = append(attrs, "target_age", durafmt.Parse(age.Round(time.Second)).LimitFirstN(2).String())
	}
	logger.Info("mining", attrs...)
}

func formatHashrate(rate float64) string {
	switch {
	case rate >= 1e9:
		return fmt.Sprintf("%.2f GH/s", rate/1e9)
	case rate >= 1e6:
		return fmt.Sprintf("%.2f MH/s", rate/1e6)
	case rate >= 1e3:
		return fmt.Sprintf("%.2f kH/s", rate/1e3)
	default:
		return fmt.Sprintf("%.0f H/s", rate)
	}
}
