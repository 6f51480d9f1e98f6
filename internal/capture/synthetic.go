package capture

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/smazurov/recordnode/internal/media"
)

// KindSynthetic names the generated test-pattern backend.
const KindSynthetic = "synthetic"

const toneFrequencyHz = 440.0

func init() {
	Register(KindSynthetic, func(cfg media.CaptureConfig, logger *slog.Logger) (Source, error) {
		return newSyntheticSource(cfg, logger), nil
	})
}

// syntheticSource emits a scrolling gradient and a sine tone at the
// configured rates. It exists for pipeline tests and for verifying an
// install without touching real devices.
type syntheticSource struct {
	cfg    media.CaptureConfig
	logger *slog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	stopped bool
}

func newSyntheticSource(cfg media.CaptureConfig, logger *slog.Logger) *syntheticSource {
	if cfg.Width == 0 {
		cfg.Width = 1280
	}
	if cfg.Height == 0 {
		cfg.Height = 720
	}
	if cfg.FrameRate == 0 {
		cfg.FrameRate = 30
	}
	if cfg.Pixel == 0 {
		cfg.Pixel = media.PixelFormatNV12
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 2
	}
	return &syntheticSource{cfg: cfg, logger: logger}
}

func (s *syntheticSource) Name() string { return KindSynthetic }

func (s *syntheticSource) Formats() ([]media.CaptureFormat, error) {
	return []media.CaptureFormat{{
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
		FrameRate: s.cfg.FrameRate,
		Pixel:     s.cfg.Pixel,
	}}, nil
}

func (s *syntheticSource) Start(ref media.Timestamps, out Outputs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return fmt.Errorf("synthetic source already started")
	}
	s.stop = make(chan struct{})
	s.stopped = false

	s.wg.Add(1)
	go s.videoLoop(out)
	if s.cfg.HasAudio() {
		s.wg.Add(1)
		go s.audioLoop(out)
	}

	s.logger.Info("Synthetic source started", "width", s.cfg.Width,
		"height", s.cfg.Height, "fps", s.cfg.FrameRate, "audio", s.cfg.HasAudio())
	return nil
}

func (s *syntheticSource) Stop() error {
	s.mu.Lock()
	if s.stopped || s.stop == nil {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.mu.Lock()
	s.stop = nil
	s.mu.Unlock()
	return nil
}

func (s *syntheticSource) videoLoop(out Outputs) {
	defer s.wg.Done()

	interval := time.Duration(float64(time.Second) / s.cfg.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		frame := &media.VideoFrame{
			Data:      s.renderPattern(seq),
			Width:     s.cfg.Width,
			Height:    s.cfg.Height,
			Format:    s.cfg.Pixel,
			Timestamp: media.Now(),
			Seq:       seq,
		}
		seq++

		if _, err := out.Video.TrySend(frame); err != nil {
			return
		}
	}
}

// renderPattern draws a horizontal gradient that scrolls one pixel per
// frame, so encoded output visibly moves.
func (s *syntheticSource) renderPattern(seq uint64) []byte {
	w, h := s.cfg.Width, s.cfg.Height
	data := make([]byte, s.cfg.Pixel.FrameSize(w, h))

	shift := int(seq) % w
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			data[row*w+col] = byte((col + shift) * 255 / w)
		}
	}
	// Chroma stays neutral grey for every planar layout.
	for i := w * h; i < len(data); i++ {
		data[i] = 128
	}
	return data
}

func (s *syntheticSource) audioLoop(out Outputs) {
	defer s.wg.Done()

	const chunkDuration = 10 * time.Millisecond
	samplesPerChunk := int(float64(s.cfg.SampleRate) * chunkDuration.Seconds())
	ticker := time.NewTicker(chunkDuration)
	defer ticker.Stop()

	var phase float64
	step := 2 * math.Pi * toneFrequencyHz / float64(s.cfg.SampleRate)

	var seq uint64
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		data := make([]byte, samplesPerChunk*s.cfg.Channels*2)
		for i := 0; i < samplesPerChunk; i++ {
			sample := int16(math.Sin(phase) * 0.2 * math.MaxInt16)
			phase += step
			for ch := 0; ch < s.cfg.Channels; ch++ {
				binary.LittleEndian.PutUint16(data[(i*s.cfg.Channels+ch)*2:], uint16(sample))
			}
		}

		chunk := &media.AudioChunk{
			Data:       data,
			Format:     media.AudioFormatS16,
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
			Timestamp:  media.Now(),
			Seq:        seq,
		}
		seq++

		if _, err := out.Audio.TrySend(chunk); err != nil {
			return
		}
	}
}
