// Package encoder manages the external ffmpeg encode process: raw
// frames in over pipes, compressed output on disk, with a strict
// shutdown order so the last frames are never lost.
package encoder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/recordnode/internal/ffmpeg"
	"github.com/smazurov/recordnode/internal/media"
)

const (
	// exitPollInterval paces the wait loop after inputs close. ffmpeg
	// needs time to flush its muxer; polling avoids both busy-waiting
	// and killing it mid-flush.
	exitPollInterval = 300 * time.Millisecond
	// killTimeout bounds how long a SIGINT'd process may linger.
	killTimeout = 5 * time.Second
)

// Config describes one encoder process.
type Config struct {
	SessionID string
	Mux       ffmpeg.MuxParams
	// Binary overrides the ffmpeg executable, for tests.
	Binary string
}

// Process is a running encoder. Writes are not synchronized; the
// pipeline owns one writer goroutine per input.
type Process struct {
	sessionID string
	logger    *slog.Logger

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	audioPipe *os.File

	exited    chan struct{}
	exitErr   error
	closeOnce sync.Once

	progress *progressTracker
}

// Start spawns the encoder and begins consuming its stderr.
func Start(cfg Config, logger *slog.Logger) (*Process, error) {
	binary := cfg.Binary
	if binary == "" {
		binary = ffmpeg.Binary
	}

	cmd := exec.Command(binary, cfg.Mux.Args()...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %s", media.ErrEncoderSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %s", media.ErrEncoderSpawn, err)
	}

	p := &Process{
		sessionID: cfg.SessionID,
		logger:    logger,
		cmd:       cmd,
		stdin:     stdin,
		exited:    make(chan struct{}),
		progress:  newProgressTracker(cfg.SessionID),
	}

	if cfg.Mux.HasAudio {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("%w: audio pipe: %s", media.ErrEncoderSpawn, err)
		}
		// ExtraFiles[0] becomes fd 3 in the child, matching pipe:3 in
		// the mux arguments.
		cmd.ExtraFiles = []*os.File{r}
		p.audioPipe = w
		defer r.Close()
	}

	if err := cmd.Start(); err != nil {
		if p.audioPipe != nil {
			p.audioPipe.Close()
		}
		return nil, fmt.Errorf("%w: %s", media.ErrEncoderSpawn, err)
	}

	logger.Info("Encoder started", "session_id", cfg.SessionID,
		"pid", cmd.Process.Pid, "output", cfg.Mux.OutputPath)

	go p.streamLogs(stderr)
	go func() {
		p.finish(cmd.Wait())
		close(p.exited)
	}()
	return p, nil
}

// WriteVideo feeds one raw frame to the encoder's stdin.
func (p *Process) WriteVideo(frame *media.VideoFrame) error {
	if _, err := p.stdin.Write(frame.Data); err != nil {
		return p.writeError("video", err)
	}
	return nil
}

// WriteAudio feeds one raw chunk to the encoder's audio pipe.
func (p *Process) WriteAudio(chunk *media.AudioChunk) error {
	if p.audioPipe == nil {
		return fmt.Errorf("encoder has no audio input")
	}
	if _, err := p.audioPipe.Write(chunk.Data); err != nil {
		return p.writeError("audio", err)
	}
	return nil
}

func (p *Process) writeError(input string, err error) error {
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("%w: %s input closed", media.ErrEncoderProcess, input)
	}
	return fmt.Errorf("%w: %s write: %s", media.ErrEncoderProcess, input, err)
}

// CloseInputs signals end-of-stream on every input pipe. ffmpeg then
// flushes and exits on its own. Idempotent.
func (p *Process) CloseInputs() {
	p.closeOnce.Do(func() {
		if err := p.stdin.Close(); err != nil {
			p.logger.Warn("Closing encoder stdin failed", "error", err)
		}
		if p.audioPipe != nil {
			if err := p.audioPipe.Close(); err != nil {
				p.logger.Warn("Closing encoder audio pipe failed", "error", err)
			}
		}
	})
}

// WaitExit polls for the encoder to finish after CloseInputs. Past the
// deadline it escalates: SIGINT, then kill. Returns the process error,
// nil on a clean exit.
func (p *Process) WaitExit(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case <-p.exited:
			return p.exitErr
		default:
		}
		time.Sleep(exitPollInterval)
	}

	p.logger.Warn("Encoder did not flush in time, sending SIGINT",
		"session_id", p.sessionID, "timeout", timeout)
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGINT)
	}

	select {
	case <-p.exited:
	case <-time.After(killTimeout):
		p.logger.Error("Encoder ignored SIGINT, killing", "session_id", p.sessionID)
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		<-p.exited
	}
	return p.exitErr
}

// Kill force-stops the encoder without flushing. For failure paths.
func (p *Process) Kill() {
	p.CloseInputs()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	<-p.exited
}

// Exited reports whether the process has finished, without blocking.
func (p *Process) Exited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

func (p *Process) finish(err error) {
	if err == nil {
		p.logger.Info("Encoder exited cleanly", "session_id", p.sessionID)
		return
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		p.exitErr = fmt.Errorf("%w: exit code %d", media.ErrEncoderProcess, exitErr.ExitCode())
	} else {
		p.exitErr = fmt.Errorf("%w: %s", media.ErrEncoderProcess, err)
	}
	p.logger.Error("Encoder exited with error", "session_id", p.sessionID, "error", p.exitErr)
}

// streamLogs routes encoder stderr through the ffmpeg level parser and
// feeds progress lines to the tracker.
func (p *Process) streamLogs(r io.Reader) {
	logger := p.logger.With("module", "ffmpeg", "session_id", p.sessionID)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if p.progress.Observe(line) {
			continue
		}

		level, msg := ffmpeg.ParseLogLevel(line)
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
