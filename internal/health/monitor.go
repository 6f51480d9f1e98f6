// Package health watches pipeline delivery quality and decides when a
// recording is beyond saving.
package health

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/recordnode/internal/media"
)

const (
	// windowDuration is the sliding window drop rates are computed over.
	windowDuration = 3 * time.Second
	// logInterval throttles the periodic rate report.
	logInterval = 5 * time.Second
	// cleanupInterval bounds how often old events are evicted outside
	// of rate checks.
	cleanupInterval = 100 * time.Millisecond

	// maxDropRate is the fatal threshold. Short bursts are tolerated by
	// minSampleCount so a recording never dies on its first frames.
	maxDropRate    = 0.25
	minSampleCount = 10
)

type frameEvent struct {
	at      time.Time
	dropped bool
}

// DropRateMonitor tracks per-frame delivery outcomes over a sliding
// window. Not safe for concurrent use; it lives on the stage goroutine
// that produces the events.
type DropRateMonitor struct {
	source string
	logger *slog.Logger
	now    func() time.Time

	events       []frameEvent
	totalDropped uint64
	lastCleanup  time.Time
	lastLog      time.Time
}

// NewDropRateMonitor creates a monitor for the named source.
func NewDropRateMonitor(source string, logger *slog.Logger) *DropRateMonitor {
	return newDropRateMonitor(source, logger, time.Now)
}

func newDropRateMonitor(source string, logger *slog.Logger, now func() time.Time) *DropRateMonitor {
	t := now()
	return &DropRateMonitor{
		source:      source,
		logger:      logger,
		now:         now,
		lastCleanup: t,
		lastLog:     t,
	}
}

// Record notes one frame outcome. It returns a fatal error when the
// windowed drop rate shows the pipeline cannot keep up, nil otherwise.
func (m *DropRateMonitor) Record(dropped bool) error {
	now := m.now()
	m.events = append(m.events, frameEvent{at: now, dropped: dropped})
	if dropped {
		m.totalDropped++
	}

	if now.Sub(m.lastCleanup) > cleanupInterval {
		m.evictBefore(now.Add(-windowDuration))
		m.lastCleanup = now
	}

	rate, droppedCount, total := m.rate(now)

	if rate > maxDropRate && total >= minSampleCount {
		m.logger.Error("High frame drop rate, aborting capture",
			"source", m.source,
			"rate", fmt.Sprintf("%.1f%%", rate*100),
			"dropped", droppedCount, "total", total,
			"window", windowDuration)
		return fmt.Errorf("%w: %d/%d frames dropped in %v",
			media.ErrCapacityExceeded, droppedCount, total, windowDuration)
	}

	if now.Sub(m.lastLog) > logInterval && total > 0 {
		m.logger.Info("Frame drop rate",
			"source", m.source,
			"rate", fmt.Sprintf("%.1f%%", rate*100),
			"dropped", droppedCount, "total", total,
			"total_dropped", m.totalDropped)
		m.lastLog = now
	}
	return nil
}

// TotalDropped returns the all-time drop count.
func (m *DropRateMonitor) TotalDropped() uint64 {
	return m.totalDropped
}

// Rate returns the current windowed drop rate and counts.
func (m *DropRateMonitor) Rate() (rate float64, dropped, total int) {
	return m.rate(m.now())
}

// rate evicts expired events before computing, so a stale burst never
// poisons the current window.
func (m *DropRateMonitor) rate(now time.Time) (float64, int, int) {
	m.evictBefore(now.Add(-windowDuration))

	total := len(m.events)
	if total == 0 {
		return 0, 0, 0
	}
	dropped := 0
	for _, e := range m.events {
		if e.dropped {
			dropped++
		}
	}
	return float64(dropped) / float64(total), dropped, total
}

func (m *DropRateMonitor) evictBefore(cutoff time.Time) {
	i := 0
	for i < len(m.events) && m.events[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.events = append(m.events[:0], m.events[i:]...)
	}
}
