// Package progress provides the background progress reporter. It polls
// the aggregator's snapshot on a fixed interval and emits throughput
// and ETA without ever blocking the workers.
package progress

import (
	"time"

	"vmtag/perm-engine/pkg/logger"
	"vmtag/perm-engine/pkg/types"
)

// DefaultInterval is the polling interval when none is configured.
const DefaultInterval = 5 * time.Second

// Update is one progress observation.
type Update struct {
	Processed int
	Total     int
	// Rate is operations per second since the run started.
	Rate float64
	// ETA estimates the remaining wall-clock time; zero when unknown.
	ETA     time.Duration
	Elapsed time.Duration
}

// SnapshotFunc supplies a point-in-time run summary.
type SnapshotFunc func() *types.RunSummary

// EmitFunc receives each update.
type EmitFunc func(Update)

// Reporter samples the aggregator on its own goroutine.
type Reporter struct {
	interval time.Duration
	snapshot SnapshotFunc
	emit     EmitFunc

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewReporter creates a reporter. A nil emit falls back to a logger
// line per interval.
func NewReporter(interval time.Duration, snapshot SnapshotFunc, emit EmitFunc) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if emit == nil {
		emit = logEmit
	}
	return &Reporter{
		interval: interval,
		snapshot: snapshot,
		emit:     emit,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the polling goroutine.
func (r *Reporter) Start() {
	go r.loop()
}

// Stop halts polling and waits for the goroutine to exit, so no
// reporter outlives the run that started it. Safe to call once.
func (r *Reporter) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reporter) loop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.emit(Observe(r.snapshot()))
		case <-r.stopCh:
			return
		}
	}
}

// Observe derives an Update from a summary snapshot. Exposed so the CLI
// printer can reuse the same arithmetic on its final snapshot.
func Observe(summary *types.RunSummary) Update {
	u := Update{
		Processed: summary.Processed(),
		Total:     summary.Total,
		Elapsed:   summary.Elapsed,
	}

	secs := summary.Elapsed.Seconds()
	if secs > 0 {
		u.Rate = float64(u.Processed) / secs
	}
	if u.Rate > 0 && u.Processed < u.Total {
		remaining := float64(u.Total-u.Processed) / u.Rate
		u.ETA = time.Duration(remaining * float64(time.Second)).Round(time.Second)
	}

	return u
}

func logEmit(u Update) {
	logger.Info("progress: %d/%d operations, %.1f op/s, eta %s",
		u.Processed, u.Total, u.Rate, u.ETA.Round(time.Second))
}
