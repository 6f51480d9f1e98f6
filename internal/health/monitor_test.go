package health

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/smazurov/recordnode/internal/media"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMonitor(clock *fakeClock) *DropRateMonitor {
	return newDropRateMonitor("screen", slog.Default(), clock.now)
}

func TestHighDropRateIsFatal(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestMonitor(clock)

	// 8 delivered, 4 dropped: 33% over 12 samples crosses the line.
	var fatal error
	for i := 0; i < 12; i++ {
		clock.advance(10 * time.Millisecond)
		if err := m.Record(i%3 == 0); err != nil {
			fatal = err
			break
		}
	}
	if !errors.Is(fatal, media.ErrCapacityExceeded) {
		t.Errorf("expected ErrCapacityExceeded, got %v", fatal)
	}
}

func TestSmallSampleNeverFatal(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestMonitor(clock)

	// 3 of 8 dropped is above the rate threshold but under the minimum
	// sample count.
	for i := 0; i < 8; i++ {
		clock.advance(10 * time.Millisecond)
		if err := m.Record(i < 3); err != nil {
			t.Fatalf("unexpected fatal on sample %d: %v", i, err)
		}
	}
}

func TestOldEventsExpireFromWindow(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestMonitor(clock)

	// A bad burst, then recovery beyond the window.
	for i := 0; i < 9; i++ {
		clock.advance(10 * time.Millisecond)
		_ = m.Record(true)
	}
	clock.advance(4 * time.Second)

	for i := 0; i < 20; i++ {
		clock.advance(10 * time.Millisecond)
		if err := m.Record(false); err != nil {
			t.Fatalf("expired burst must not trip the monitor: %v", err)
		}
	}

	rate, dropped, total := m.Rate()
	if rate != 0 || dropped != 0 {
		t.Errorf("expected clean window, got rate=%f dropped=%d total=%d", rate, dropped, total)
	}
	if m.TotalDropped() != 9 {
		t.Errorf("all-time counter must survive eviction, got %d", m.TotalDropped())
	}
}

func TestCleanBurstKeepsRateZero(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestMonitor(clock)

	for i := 0; i < 100; i++ {
		clock.advance(time.Millisecond)
		if err := m.Record(false); err != nil {
			t.Fatalf("unexpected fatal: %v", err)
		}
	}
	rate, _, total := m.Rate()
	if rate != 0 || total != 100 {
		t.Errorf("expected 0%% over 100, got rate=%f total=%d", rate, total)
	}
}
