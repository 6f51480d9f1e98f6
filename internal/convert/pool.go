package convert

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/recordnode/internal/media"
	"github.com/smazurov/recordnode/internal/router"
)

// ErrPoolFull is returned by Submit when the input queue is at
// capacity. Callers treat it as a dropped-input event, not a failure.
var ErrPoolFull = errors.New("converter pool input full")

// ErrPoolShutdown is returned once the pool has been shut down.
var ErrPoolShutdown = errors.New("converter pool shut down")

// PoolConfig sizes the worker pool and its queues.
type PoolConfig struct {
	Workers        int
	InputCapacity  int
	OutputCapacity int
}

// DefaultPoolConfig returns the sizing used for recording pipelines.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Workers: 2, InputCapacity: 8, OutputCapacity: 8}
}

// Stats are the pool's monotonic counters. At every observation point
// Received == Converted + Dropped + InFlight.
type Stats struct {
	FramesReceived  uint64
	FramesConverted uint64
	FramesDropped   uint64
}

// InFlight derives the frames currently inside the pool.
func (s Stats) InFlight() uint64 {
	return s.FramesReceived - s.FramesConverted - s.FramesDropped
}

// Pool is a fixed-size worker pool converting frames between bounded
// input and output queues. Input drops are counted on Submit; output
// drops are counted by the worker when the output queue is full.
type Pool struct {
	input  *router.Router[*media.VideoFrame]
	output *router.Router[*media.VideoFrame]
	logger *slog.Logger

	received  atomic.Uint64
	converted atomic.Uint64
	dropped   atomic.Uint64

	shutdown  atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPool starts cfg.Workers workers, each with its own converter from
// the factory so backends never share state across threads.
func NewPool(cfg PoolConfig, factory func(worker int) (Converter, error), logger *slog.Logger) (*Pool, error) {
	p := &Pool{
		input:  router.New[*media.VideoFrame](cfg.InputCapacity, router.DropNewest),
		output: router.New[*media.VideoFrame](cfg.OutputCapacity, router.DropNewest),
		logger: logger,
	}

	for i := 0; i < cfg.Workers; i++ {
		conv, err := factory(i)
		if err != nil {
			p.Shutdown()
			return nil, err
		}
		p.wg.Add(1)
		go p.worker(i, conv)
	}

	logger.Info("Converter pool started", "workers", cfg.Workers,
		"input_capacity", cfg.InputCapacity, "output_capacity", cfg.OutputCapacity)
	return p, nil
}

// Submit offers a frame to the pool without blocking. ErrPoolFull means
// the frame was dropped and accounted; ErrPoolShutdown is fatal.
func (p *Pool) Submit(frame *media.VideoFrame) error {
	if p.shutdown.Load() {
		return ErrPoolShutdown
	}

	p.received.Add(1)
	ok, err := p.input.TrySend(frame)
	if err != nil {
		return ErrPoolShutdown
	}
	if !ok {
		dropped := p.dropped.Add(1)
		if dropped%30 == 0 {
			p.logger.Warn("Converter pool input full", "dropped_total", dropped)
		}
		return ErrPoolFull
	}
	return nil
}

// TryRecv polls the output queue without blocking.
func (p *Pool) TryRecv() (*media.VideoFrame, bool) {
	return p.output.TryRecv()
}

// RecvTimeout waits up to d for a converted frame. Intended for the
// drain/shutdown path only.
func (p *Pool) RecvTimeout(d time.Duration) (*media.VideoFrame, bool) {
	return p.output.RecvTimeout(d)
}

// Output exposes the converted-frame channel for select loops.
func (p *Pool) Output() <-chan *media.VideoFrame {
	return p.output.Chan()
}

// Stats snapshots the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		FramesReceived:  p.received.Load(),
		FramesConverted: p.converted.Load(),
		FramesDropped:   p.dropped.Load(),
	}
}

// DrainWithTimeout stops accepting input and hands remaining converted
// frames to the handler until the pool is empty or the deadline passes,
// then stops the workers. Returns the number of frames drained.
func (p *Pool) DrainWithTimeout(handler func(*media.VideoFrame), timeout time.Duration) int {
	p.shutdown.Store(true)

	deadline := time.Now().Add(timeout)
	drained := 0

	for time.Now().Before(deadline) {
		frame, ok := p.output.RecvTimeout(50 * time.Millisecond)
		if ok {
			handler(frame)
			drained++
			continue
		}
		if p.Stats().InFlight() == 0 {
			break
		}
	}

	p.stopWorkers()

	for {
		frame, ok := p.output.TryRecv()
		if !ok {
			break
		}
		handler(frame)
		drained++
	}

	stats := p.Stats()
	p.logger.Info("Converter pool drained", "collected", drained,
		"received", stats.FramesReceived, "converted", stats.FramesConverted,
		"dropped", stats.FramesDropped)
	return drained
}

// Shutdown stops the workers without draining. Idempotent.
func (p *Pool) Shutdown() {
	p.shutdown.Store(true)
	p.stopWorkers()

	stats := p.Stats()
	p.logger.Info("Converter pool shutdown", "received", stats.FramesReceived,
		"converted", stats.FramesConverted, "dropped", stats.FramesDropped)
}

func (p *Pool) stopWorkers() {
	p.closeOnce.Do(func() {
		p.input.Close()
		p.wg.Wait()
		p.output.Close()
	})
}

func (p *Pool) worker(id int, conv Converter) {
	defer p.wg.Done()
	p.logger.Debug("Converter worker started", "worker", id, "backend", conv.Name())

	var converted, failed uint64

	for {
		frame, ok := p.input.RecvTimeout(100 * time.Millisecond)
		if !ok {
			if p.input.Closed() && p.input.Len() == 0 {
				break
			}
			continue
		}

		out, err := conv.Convert(frame)
		if err != nil {
			// Recoverable: count as a drop and keep going.
			failed++
			p.dropped.Add(1)
			if failed%10 == 1 {
				p.logger.Warn("Conversion error", "worker", id, "errors", failed, "error", err)
			}
			continue
		}

		sent, sendErr := p.output.TrySend(out)
		if sendErr != nil {
			p.dropped.Add(1)
			break
		}
		if !sent {
			// Output full: the frame was converted but nobody will see
			// it. Counted as a drop, and only delivered frames count as
			// converted, so the counters never move backwards.
			p.dropped.Add(1)
			continue
		}

		p.converted.Add(1)
		converted++
	}

	p.logger.Debug("Converter worker finished", "worker", id, "converted", converted, "errors", failed)
}
