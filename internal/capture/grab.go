package capture

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/recordnode/internal/ffmpeg"
	"github.com/smazurov/recordnode/internal/media"
)

// Backend kinds registered by this file.
const (
	KindScreen     = "screen"
	KindCamera     = "camera"
	KindMicrophone = "microphone"
)

const grabStopTimeout = 3 * time.Second

func init() {
	Register(KindScreen, func(cfg media.CaptureConfig, logger *slog.Logger) (Source, error) {
		params, err := screenGrabParams(cfg)
		if err != nil {
			return nil, err
		}
		return newGrabSource(KindScreen, cfg, params, logger), nil
	})
	Register(KindCamera, func(cfg media.CaptureConfig, logger *slog.Logger) (Source, error) {
		params, err := cameraGrabParams(cfg)
		if err != nil {
			return nil, err
		}
		return newGrabSource(KindCamera, cfg, params, logger), nil
	})
	Register(KindMicrophone, func(cfg media.CaptureConfig, logger *slog.Logger) (Source, error) {
		params, err := micGrabParams(cfg)
		if err != nil {
			return nil, err
		}
		return newGrabSource(KindMicrophone, cfg, params, logger), nil
	})
}

func screenGrabParams(cfg media.CaptureConfig) (ffmpeg.GrabParams, error) {
	switch runtime.GOOS {
	case "linux":
		display := cfg.DisplayID
		if display == "" {
			display = os.Getenv("DISPLAY")
		}
		if display == "" {
			return ffmpeg.GrabParams{}, fmt.Errorf("%w: no display to grab", media.ErrDeviceNotFound)
		}
		if cfg.Crop != nil {
			display = fmt.Sprintf("%s+%d,%d", display, cfg.Crop.X, cfg.Crop.Y)
		}
		return ffmpeg.GrabParams{
			Backend:     "x11grab",
			Input:       display,
			Width:       cfg.Width,
			Height:      cfg.Height,
			FrameRate:   cfg.FrameRate,
			PixelFormat: cfg.Pixel.String(),
		}, nil
	case "darwin":
		return ffmpeg.GrabParams{
			Backend:     "avfoundation",
			Input:       cfg.DisplayID + ":none",
			Width:       cfg.Width,
			Height:      cfg.Height,
			FrameRate:   cfg.FrameRate,
			PixelFormat: cfg.Pixel.String(),
		}, nil
	default:
		return ffmpeg.GrabParams{}, fmt.Errorf("%w: no screen grabber on %s", media.ErrDeviceNotFound, runtime.GOOS)
	}
}

func cameraGrabParams(cfg media.CaptureConfig) (ffmpeg.GrabParams, error) {
	if cfg.CameraID == "" {
		return ffmpeg.GrabParams{}, fmt.Errorf("%w: no camera configured", media.ErrDeviceNotFound)
	}
	backend := "v4l2"
	if runtime.GOOS == "darwin" {
		backend = "avfoundation"
	}
	return ffmpeg.GrabParams{
		Backend:     backend,
		Input:       cfg.CameraID,
		Width:       cfg.Width,
		Height:      cfg.Height,
		FrameRate:   cfg.FrameRate,
		PixelFormat: cfg.Pixel.String(),
	}, nil
}

func micGrabParams(cfg media.CaptureConfig) (ffmpeg.GrabParams, error) {
	if cfg.MicID == "" {
		return ffmpeg.GrabParams{}, fmt.Errorf("%w: no microphone configured", media.ErrDeviceNotFound)
	}
	backend := "pulse"
	if runtime.GOOS == "darwin" {
		backend = "avfoundation"
	}
	return ffmpeg.GrabParams{
		Backend:    backend,
		Input:      cfg.MicID,
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
	}, nil
}

// grabSource runs an ffmpeg grab subprocess and slices its raw stdout
// into frames or audio chunks.
type grabSource struct {
	name   string
	cfg    media.CaptureConfig
	params ffmpeg.GrabParams
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stop    chan struct{}
	wg      sync.WaitGroup
	stopped bool
}

func newGrabSource(name string, cfg media.CaptureConfig, params ffmpeg.GrabParams, logger *slog.Logger) *grabSource {
	return &grabSource{name: name, cfg: cfg, params: params, logger: logger}
}

func (g *grabSource) Name() string { return g.name }

func (g *grabSource) Formats() ([]media.CaptureFormat, error) {
	return []media.CaptureFormat{{
		Width:     g.cfg.Width,
		Height:    g.cfg.Height,
		FrameRate: g.cfg.FrameRate,
		Pixel:     g.cfg.Pixel,
	}}, nil
}

func (g *grabSource) Start(ref media.Timestamps, out Outputs) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cmd != nil {
		return fmt.Errorf("%s grab already started", g.name)
	}

	args := g.params.Args()
	cmd := exec.Command(ffmpeg.Binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("grab stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("grab stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s", media.ErrEncoderSpawn, err)
	}

	g.cmd = cmd
	g.stop = make(chan struct{})
	g.stopped = false
	g.logger.Info("Grab started", "backend", g.params.Backend,
		"input", g.params.Input, "pid", cmd.Process.Pid)

	g.wg.Add(2)
	go g.streamLogs(stderr)
	if g.params.SampleRate > 0 && g.params.Width == 0 {
		go g.readAudio(stdout, out)
	} else {
		go g.readVideo(stdout, out)
	}
	return nil
}

func (g *grabSource) Stop() error {
	g.mu.Lock()
	if g.stopped || g.cmd == nil {
		g.mu.Unlock()
		return nil
	}
	g.stopped = true
	close(g.stop)
	cmd := g.cmd
	g.mu.Unlock()

	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGINT)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(grabStopTimeout):
		g.logger.Warn("Grab did not exit, killing", "backend", g.params.Backend)
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	}

	g.wg.Wait()
	g.mu.Lock()
	g.cmd = nil
	g.mu.Unlock()
	g.logger.Info("Grab stopped", "backend", g.params.Backend)
	return nil
}

func (g *grabSource) readVideo(r io.Reader, out Outputs) {
	defer g.wg.Done()

	frameSize := g.cfg.Pixel.FrameSize(g.cfg.Width, g.cfg.Height)
	if frameSize == 0 {
		g.logger.Error("Unusable frame geometry",
			"width", g.cfg.Width, "height", g.cfg.Height, "format", g.cfg.Pixel)
		return
	}

	var seq uint64
	for {
		select {
		case <-g.stop:
			return
		default:
		}

		buf := make([]byte, frameSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			if !g.isStopping() && err != io.EOF {
				g.logger.Error("Grab read failed", "backend", g.params.Backend, "error", err)
			}
			return
		}

		frame := &media.VideoFrame{
			Data:      buf,
			Width:     g.cfg.Width,
			Height:    g.cfg.Height,
			Format:    g.cfg.Pixel,
			Timestamp: media.Now(),
			Seq:       seq,
		}
		seq++
		if _, err := out.Video.TrySend(frame); err != nil {
			return
		}
	}
}

func (g *grabSource) readAudio(r io.Reader, out Outputs) {
	defer g.wg.Done()

	// 10ms of interleaved S16 per chunk.
	chunkSize := g.cfg.SampleRate / 100 * g.cfg.Channels * 2
	if chunkSize == 0 {
		g.logger.Error("Unusable audio geometry",
			"sample_rate", g.cfg.SampleRate, "channels", g.cfg.Channels)
		return
	}

	var seq uint64
	for {
		select {
		case <-g.stop:
			return
		default:
		}

		buf := make([]byte, chunkSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			if !g.isStopping() && err != io.EOF {
				g.logger.Error("Grab read failed", "backend", g.params.Backend, "error", err)
			}
			return
		}

		chunk := &media.AudioChunk{
			Data:       buf,
			SampleRate: g.cfg.SampleRate,
			Channels:   g.cfg.Channels,
			Format:     media.AudioFormatS16,
			Timestamp:  media.Now(),
			Seq:        seq,
		}
		seq++
		if _, err := out.Audio.TrySend(chunk); err != nil {
			return
		}
	}
}

func (g *grabSource) isStopping() bool {
	select {
	case <-g.stop:
		return true
	default:
		return false
	}
}

func (g *grabSource) streamLogs(r io.Reader) {
	defer g.wg.Done()

	logger := g.logger.With("module", "ffmpeg", "backend", g.params.Backend)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		level, msg := ffmpeg.ParseLogLevel(scanner.Text())
		switch level {
		case "fatal", "error":
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		default:
			logger.Debug(msg)
		}
	}
}
