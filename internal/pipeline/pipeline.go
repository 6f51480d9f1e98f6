// Package pipeline orchestrates a recording session: capture sources
// feeding a conversion pool and an external encoder, with start-skew
// compensation and an ordered shutdown that preserves trailing frames.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/recordnode/internal/avsync"
	"github.com/smazurov/recordnode/internal/capture"
	"github.com/smazurov/recordnode/internal/convert"
	"github.com/smazurov/recordnode/internal/encoder"
	"github.com/smazurov/recordnode/internal/events"
	"github.com/smazurov/recordnode/internal/ffmpeg"
	"github.com/smazurov/recordnode/internal/health"
	"github.com/smazurov/recordnode/internal/media"
	"github.com/smazurov/recordnode/internal/metrics"
	"github.com/smazurov/recordnode/internal/router"
)

const (
	// startSkewTimeout bounds how long streams may take to produce
	// their first frame before the session aborts.
	startSkewTimeout = 10 * time.Second
	// drainTimeout bounds the converter drain during shutdown.
	drainTimeout = 2 * time.Second
	// encoderFlushTimeout bounds the encoder's flush after EOF.
	encoderFlushTimeout = 10 * time.Second
	// audioStageCapacity buffers audio while the encoder spawns.
	audioStageCapacity = 32
)

// State is a session's lifecycle phase.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// CameraSlot grants exclusive recording access to the node's shared
// camera. A physical device admits one open handle at a time, so
// camera recordings must go through the slot instead of opening the
// device again. Implemented by camera.Feed.
type CameraSlot interface {
	AcquireSource(ctx context.Context, deviceID string) (capture.Source, error)
}

// Config describes one recording session.
type Config struct {
	Capture media.CaptureConfig

	// Camera routes camera recordings through the shared slot when set.
	// Injected by the session manager, not by presets.
	Camera CameraSlot

	// VideoKind selects the capture backend; empty picks the platform
	// screen grabber, or the camera backend when only a camera is set.
	VideoKind string

	OutputPath string
	// SegmentSeconds > 0 splits the output into segments with a
	// playlist next to them.
	SegmentSeconds int
	SegmentList    string
	Encoder        string

	// EncoderBinary overrides the ffmpeg executable, for tests.
	EncoderBinary string
}

func (c *Config) videoKind() string {
	if c.VideoKind != "" {
		return c.VideoKind
	}
	if c.Capture.DisplayID == "" && c.Capture.CameraID != "" {
		return capture.KindCamera
	}
	return capture.DefaultScreenKind()
}

// Pipeline is one recording session. Create with Start; a Pipeline is
// not reusable after Stop.
type Pipeline struct {
	ID     string
	cfg    Config
	logger *slog.Logger
	bus    *events.Bus

	videoSource capture.Source
	// audioSource is nil when the video source delivers audio itself.
	audioSource  capture.Source
	audioEnabled bool
	outputs      capture.Outputs
	pool         *convert.Pool
	clock        *avsync.Clock
	audioStage   *router.Router[*media.AudioChunk]

	mu        sync.Mutex
	state     State
	enc       *encoder.Process
	startedAt time.Time
	failure   error

	stopping  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	doneCh    chan struct{}
	closeDone sync.Once
}

// Start builds and launches a session. On success the pipeline is
// running; fatal errors afterwards surface on Done and as a
// RecordingFailedEvent.
func Start(cfg Config, bus *events.Bus, logger *slog.Logger) (*Pipeline, error) {
	if cfg.VideoKind == "" && !cfg.Capture.HasVideo() {
		return nil, fmt.Errorf("%w: a recording needs a video input", media.ErrDeviceNotFound)
	}

	p := &Pipeline{
		ID:       uuid.NewString(),
		cfg:      cfg,
		bus:      bus,
		state:    StateStarting,
		stopping: make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	p.logger = logger.With("session_id", shortID(p.ID))

	if err := p.build(); err != nil {
		return nil, err
	}

	ref := media.NewTimestamps()
	if err := p.videoSource.Start(ref, p.outputs); err != nil {
		p.teardownSources()
		return nil, err
	}
	if p.audioSource != nil {
		if err := p.audioSource.Start(ref, p.outputs); err != nil {
			p.teardownSources()
			return nil, err
		}
	}

	p.startedAt = time.Now()

	p.wg.Add(2)
	go p.videoIngest()
	go p.audioIngest()
	go p.launchEncoder()

	p.logger.Info("Recording session starting",
		"video_kind", p.videoSource.Name(),
		"audio", p.audioEnabled,
		"output", cfg.OutputPath)
	return p, nil
}

func (p *Pipeline) build() error {
	cfg := &p.cfg

	var err error
	if cfg.videoKind() == capture.KindCamera && cfg.Camera != nil {
		ctx, cancel := context.WithTimeout(context.Background(), startSkewTimeout)
		p.videoSource, err = cfg.Camera.AcquireSource(ctx, cfg.Capture.CameraID)
		cancel()
	} else {
		p.videoSource, err = capture.New(cfg.videoKind(), cfg.Capture, p.logger)
	}
	if err != nil {
		return err
	}
	p.audioEnabled = cfg.Capture.HasAudio()
	// The synthetic backend emits its own tone; only real recordings
	// need a separate microphone process.
	if p.audioEnabled && cfg.videoKind() != capture.KindSynthetic {
		p.audioSource, err = capture.New(capture.KindMicrophone, cfg.Capture, p.logger)
		if err != nil {
			return err
		}
	}

	p.outputs = capture.NewOutputs()
	p.clock = avsync.NewClock(p.logger)
	p.audioStage = router.New[*media.AudioChunk](audioStageCapacity, router.DropNewest)

	convCfg := convert.Config{
		InputFormat:  cfg.Capture.Pixel,
		OutputFormat: media.PixelFormatNV12,
		Width:        cfg.Capture.Width,
		Height:       cfg.Capture.Height,
	}
	p.pool, err = convert.NewPool(convert.DefaultPoolConfig(), func(int) (convert.Converter, error) {
		return convert.NewConverter(convCfg, p.logger)
	}, p.logger)
	if err != nil {
		p.teardownSources()
		return err
	}
	return nil
}

// videoIngest moves captured frames into the conversion pool, feeding
// the sync clock and the drop-rate monitor along the way.
func (p *Pipeline) videoIngest() {
	defer p.wg.Done()

	monitor := health.NewDropRateMonitor(p.videoSource.Name(), p.logger)
	first := true

	for {
		frame, ok := p.recvVideo()
		if !ok {
			return
		}
		if first {
			p.clock.MarkVideoStart(time.Now())
			first = false
		}

		dropped := false
		if err := p.pool.Submit(frame); err != nil {
			if errors.Is(err, convert.ErrPoolShutdown) {
				return
			}
			dropped = true
			metrics.AddFramesDropped(p.ID, "convert", 1)
		}
		metrics.AddFramesCaptured(p.ID, p.videoSource.Name(), 1)

		if err := monitor.Record(dropped); err != nil {
			rate, droppedCount, total := monitor.Rate()
			p.bus.Publish(events.DropRateAlertEvent{
				SessionID: p.ID,
				Source:    p.videoSource.Name(),
				Rate:      rate,
				Dropped:   droppedCount,
				Total:     total,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
			p.fail(err)
			return
		}
		rate, _, _ := monitor.Rate()
		metrics.SetDropRate(p.ID, "capture", rate)
	}
}

func (p *Pipeline) recvVideo() (*media.VideoFrame, bool) {
	select {
	case <-p.stopping:
		return nil, false
	case frame := <-p.outputs.Video.Chan():
		return frame, true
	case <-p.outputs.Video.Done():
		frame, ok := p.outputs.Video.TryRecv()
		return frame, ok
	}
}

// audioIngest stages captured audio for the encoder writer.
func (p *Pipeline) audioIngest() {
	defer p.wg.Done()
	if !p.audioEnabled {
		return
	}

	first := true
	for {
		select {
		case <-p.stopping:
			return
		case chunk := <-p.outputs.Audio.Chan():
			if first {
				p.clock.MarkAudioStart(time.Now())
				first = false
			}
			if err := p.audioStage.Send(chunk); err != nil {
				return
			}
		case <-p.outputs.Audio.Done():
			return
		}
	}
}

// launchEncoder waits for both streams to start, computes the skew
// offset, spawns the encoder, and starts the writer goroutines.
func (p *Pipeline) launchEncoder() {
	// With no audio stream there is nothing to sync against; satisfy
	// the clock so the wait only covers the video start.
	if !p.audioEnabled {
		p.clock.MarkAudioStart(time.Now())
	}
	offset, err := p.clock.ComputeOffset(startSkewTimeout)
	if err != nil {
		p.fail(err)
		return
	}
	if !p.audioEnabled {
		offset = avsync.Offset{}
	}

	mux := ffmpeg.MuxParams{
		Width:          p.cfg.Capture.Width,
		Height:         p.cfg.Capture.Height,
		FrameRate:      p.cfg.Capture.FrameRate,
		PixelFormat:    media.PixelFormatNV12.String(),
		HasAudio:       p.audioEnabled,
		SampleRate:     p.cfg.Capture.SampleRate,
		Channels:       p.cfg.Capture.Channels,
		Encoder:        p.cfg.Encoder,
		SegmentSeconds: p.cfg.SegmentSeconds,
		SegmentList:    p.cfg.SegmentList,
		OutputPath:     p.cfg.OutputPath,
	}
	switch offset.Target {
	case avsync.TargetVideo:
		mux.VideoOffsetArgs = offset.MuxArgs()
	case avsync.TargetAudio:
		mux.AudioOffsetArgs = offset.MuxArgs()
	}

	select {
	case <-p.stopping:
		return
	default:
	}

	enc, err := encoder.Start(encoder.Config{
		SessionID: p.ID,
		Mux:       mux,
		Binary:    p.cfg.EncoderBinary,
	}, p.logger)
	if err != nil {
		p.fail(err)
		return
	}

	p.mu.Lock()
	if p.state != StateStarting {
		// Stop or failure won the race; the encoder must not outlive it.
		p.mu.Unlock()
		enc.Kill()
		return
	}
	p.enc = enc
	p.state = StateRunning
	// Registering the writers under the lock orders the Add before any
	// Wait that Stop issues after observing the running state.
	p.wg.Add(1)
	go p.videoWrite(enc)
	if p.audioEnabled {
		p.wg.Add(1)
		go p.audioWrite(enc)
	}
	p.mu.Unlock()

	p.bus.Publish(events.RecordingStartedEvent{
		SessionID: p.ID,
		Output:    p.cfg.OutputPath,
		HasAudio:  p.audioEnabled,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	p.logger.Info("Recording session running", "offset_target", offset.Target.String(),
		"offset", offset.Duration)
}

// videoWrite feeds converted frames to the encoder.
func (p *Pipeline) videoWrite(enc *encoder.Process) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopping:
			return
		case frame := <-p.pool.Output():
			if err := enc.WriteVideo(frame); err != nil {
				p.fail(err)
				return
			}
			metrics.AddFramesConverted(p.ID, 1)
		}
	}
}

// audioWrite feeds staged audio to the encoder.
func (p *Pipeline) audioWrite(enc *encoder.Process) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopping:
			return
		case chunk := <-p.audioStage.Chan():
			if err := enc.WriteAudio(chunk); err != nil {
				p.fail(err)
				return
			}
		}
	}
}

// Stop ends the session in the order that preserves trailing media:
// stop producers, drain the converter into the encoder, signal EOF,
// then wait for the encoder to flush. Safe to call more than once.
func (p *Pipeline) Stop() error {
	var stopErr error
	p.stopOnce.Do(func() {
		p.mu.Lock()
		wasRunning := p.state == StateRunning
		if p.state != StateFailed {
			p.state = StateStopping
		}
		enc := p.enc
		p.mu.Unlock()

		p.logger.Info("Stopping recording session")

		// 1. Producers first: no new frames enter the pipeline.
		p.teardownSources()

		// 2. Unblock the stage goroutines.
		close(p.stopping)
		p.wg.Wait()

		// 3. Drain what the converter still holds into the encoder.
		if enc != nil {
			drained := p.pool.DrainWithTimeout(func(frame *media.VideoFrame) {
				if err := enc.WriteVideo(frame); err == nil {
					metrics.AddFramesConverted(p.ID, 1)
				}
			}, drainTimeout)
			for {
				chunk, ok := p.audioStage.TryRecv()
				if !ok {
					break
				}
				_ = enc.WriteAudio(chunk)
			}
			p.logger.Debug("Converter drained", "frames", drained)

			// 4. EOF lets ffmpeg flush; poll for its exit.
			enc.CloseInputs()
			stopErr = enc.WaitExit(encoderFlushTimeout)
		} else {
			p.pool.Shutdown()
		}

		p.outputs.Close()
		p.audioStage.Close()

		duration := time.Since(p.startedAt)

		p.mu.Lock()
		failure := p.failure
		if p.state != StateFailed {
			p.state = StateStopped
		}
		p.mu.Unlock()

		if failure == nil && wasRunning && stopErr == nil {
			p.bus.Publish(events.RecordingStoppedEvent{
				SessionID: p.ID,
				Output:    p.cfg.OutputPath,
				Duration:  duration.Seconds(),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
		}

		stats := p.pool.Stats()
		p.logger.Info("Recording session stopped",
			"duration", duration.Round(time.Millisecond),
			"received", stats.FramesReceived,
			"converted", stats.FramesConverted,
			"dropped", stats.FramesDropped)

		metrics.DeleteSession(p.ID)
		p.closeDone.Do(func() { close(p.doneCh) })
	})
	return stopErr
}

// fail records the first fatal error and tears the session down.
func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	if p.failure != nil {
		p.mu.Unlock()
		return
	}
	p.failure = err
	p.state = StateFailed
	p.mu.Unlock()

	p.logger.Error("Recording session failed", "error", err)
	p.bus.Publish(events.RecordingFailedEvent{
		SessionID: p.ID,
		Error:     err.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	// Stop blocks on the stage goroutines, so it cannot run on the
	// goroutine that reported the failure.
	go func() { _ = p.Stop() }()
}

// Err returns the fatal error that ended the session, if any.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failure
}

// State returns the session's current phase.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done is closed when the session has fully stopped.
func (p *Pipeline) Done() <-chan struct{} {
	return p.doneCh
}

// Output returns the session's output path.
func (p *Pipeline) Output() string {
	return p.cfg.OutputPath
}

// Duration reports how long the session has been running.
func (p *Pipeline) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		return 0
	}
	return time.Since(p.startedAt)
}

func (p *Pipeline) teardownSources() {
	if p.videoSource != nil {
		if err := p.videoSource.Stop(); err != nil {
			p.logger.Warn("Video source stop failed", "error", err)
		}
	}
	if p.audioSource != nil {
		if err := p.audioSource.Stop(); err != nil {
			p.logger.Warn("Audio source stop failed", "error", err)
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
