// Package camera manages the lifecycle of an attachable camera device:
// connecting, attached, and locked-for-recording states, with frame
// fan-out to any number of consumers.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/recordnode/internal/media"
	"github.com/smazurov/recordnode/internal/router"
)

// initTimeout bounds how long a device may take to deliver its first
// frame during SetInput.
const initTimeout = 4 * time.Second

// ErrFeedLocked is returned when the input is changed while a recording
// holds the feed.
var ErrFeedLocked = errors.New("camera feed locked by recording")

// ErrNoInput is returned by Lock when no device is attached.
var ErrNoInput = errors.New("no camera input attached")

// DeviceInfo identifies an attached camera.
type DeviceInfo struct {
	ID   string
	Name string
}

// Connection is a live link to a camera produced by an Opener. Frames
// flow on Frames until Stop is called.
type Connection struct {
	Info   DeviceInfo
	Format media.CaptureFormat
	Frames <-chan *media.VideoFrame
	Stop   func()
}

// Opener establishes a connection to the named device. It must respect
// ctx cancellation and return once the device produced its first frame
// or failed.
type Opener func(ctx context.Context, deviceID string) (*Connection, error)

type connecting struct {
	id     string
	gen    uint64
	cancel context.CancelFunc
	result chan error
}

type attachment struct {
	conn *Connection
}

// Actor owns a single camera slot. All state transitions run on one
// goroutine; public methods enqueue work and wait for the reply.
type Actor struct {
	opener Opener
	logger *slog.Logger

	cmds      chan func()
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	// Loop-owned state. Never touched outside run().
	gen        uint64
	connecting *connecting
	attached   *attachment
	locked     bool
	consumers  []*router.Router[*media.VideoFrame]
	lockWait   []chan error
}

// NewActor starts the actor loop.
func NewActor(opener Opener, logger *slog.Logger) *Actor {
	a := &Actor{
		opener:  opener,
		logger:  logger,
		cmds:    make(chan func(), 16),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Actor) run() {
	defer close(a.done)
	for {
		var frames <-chan *media.VideoFrame
		if a.attached != nil {
			frames = a.attached.conn.Frames
		}

		select {
		case <-a.closing:
			a.detachLocked()
			return
		case cmd := <-a.cmds:
			cmd()
		case frame, ok := <-frames:
			if !ok {
				// Device went away on its own.
				a.logger.Warn("Camera stream ended", "device", a.attached.conn.Info.ID)
				a.detachLocked()
				continue
			}
			a.fanOut(frame)
		}
	}
}

func (a *Actor) do(cmd func()) error {
	select {
	case a.cmds <- cmd:
		return nil
	case <-a.closing:
		return media.ErrChannelDisconnected
	case <-a.done:
		return media.ErrChannelDisconnected
	}
}

// SetInput switches the feed to the named device. An in-flight switch
// is superseded: its connection attempt is cancelled and its caller
// receives success, since the newer request expresses the user's
// current intent. Blocks until the device produces its first frame,
// fails, or the init timeout passes.
func (a *Actor) SetInput(ctx context.Context, deviceID string) error {
	result := make(chan error, 1)

	err := a.do(func() {
		if a.locked {
			result <- ErrFeedLocked
			return
		}
		a.startConnect(deviceID, result)
	})
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startConnect runs on the loop goroutine.
func (a *Actor) startConnect(deviceID string, result chan error) {
	if prev := a.connecting; prev != nil {
		prev.cancel()
		prev.result <- nil
		a.connecting = nil
	}

	a.gen++
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	conn := &connecting{id: deviceID, gen: a.gen, cancel: cancel, result: result}
	a.connecting = conn

	a.logger.Info("Connecting camera", "device", deviceID)

	go func() {
		c, err := a.opener(ctx, deviceID)
		if err != nil && ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w: camera %s", media.ErrInitTimeout, deviceID)
		}
		_ = a.do(func() { a.finishConnect(conn.gen, c, err) })
	}()
}

// finishConnect runs on the loop goroutine.
func (a *Actor) finishConnect(gen uint64, c *Connection, err error) {
	cur := a.connecting
	if cur == nil || cur.gen != gen {
		// Superseded while connecting; the caller was already answered.
		if c != nil {
			c.Stop()
		}
		return
	}
	a.connecting = nil
	cur.cancel()

	if err != nil {
		a.logger.Error("Camera connection failed", "device", cur.id, "error", err)
		cur.result <- err
		a.resolveLockWaiters(err)
		return
	}

	if a.attached != nil {
		a.attached.conn.Stop()
	}
	a.attached = &attachment{conn: c}
	a.logger.Info("Camera attached", "device", c.Info.ID, "name", c.Info.Name,
		"format", fmt.Sprintf("%dx%d@%g", c.Format.Width, c.Format.Height, c.Format.FrameRate))

	cur.result <- nil
	a.resolveLockWaiters(nil)
}

// RemoveInput detaches the current device and cancels any in-flight
// switch.
func (a *Actor) RemoveInput() error {
	result := make(chan error, 1)
	err := a.do(func() {
		if a.locked {
			result <- ErrFeedLocked
			return
		}
		if prev := a.connecting; prev != nil {
			prev.cancel()
			prev.result <- nil
			a.connecting = nil
		}
		// A Lock waiting on the cancelled connect would otherwise wait
		// forever for a device that is no longer coming.
		a.resolveLockWaiters(ErrNoInput)
		a.detach()
		result <- nil
	})
	if err != nil {
		return err
	}
	return <-result
}

func (a *Actor) detach() {
	if a.attached == nil {
		return
	}
	id := a.attached.conn.Info.ID
	a.attached.conn.Stop()
	a.attached = nil
	a.logger.Info("Camera detached", "device", id)
}

func (a *Actor) detachLocked() {
	a.locked = false
	a.detach()
}

// AttachConsumer registers a new frame consumer and returns its router.
// Closed routers are pruned lazily on the next delivered frame.
func (a *Actor) AttachConsumer(capacity int, policy router.Policy) (*router.Router[*media.VideoFrame], error) {
	r := router.New[*media.VideoFrame](capacity, policy)
	err := a.do(func() {
		a.consumers = append(a.consumers, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// fanOut runs on the loop goroutine.
func (a *Actor) fanOut(frame *media.VideoFrame) {
	live := a.consumers[:0]
	for _, c := range a.consumers {
		if _, err := c.TrySend(frame); err != nil {
			continue // closed, drop the consumer
		}
		live = append(live, c)
	}
	if len(live) != len(a.consumers) {
		a.logger.Debug("Pruned disconnected camera consumers",
			"removed", len(a.consumers)-len(live))
	}
	a.consumers = live
}

// Lock reserves the feed for a recording. If a switch is in flight the
// call waits for it. Unlock releases the reservation.
func (a *Actor) Lock(ctx context.Context) (DeviceInfo, media.CaptureFormat, error) {
	type lockReply struct {
		info   DeviceInfo
		format media.CaptureFormat
		err    error
	}
	result := make(chan lockReply, 1)

	tryLock := func() lockReply {
		if a.locked {
			return lockReply{err: ErrFeedLocked}
		}
		if a.attached == nil {
			return lockReply{err: ErrNoInput}
		}
		a.locked = true
		return lockReply{info: a.attached.conn.Info, format: a.attached.conn.Format}
	}

	err := a.do(func() {
		if a.connecting != nil {
			wait := make(chan error, 1)
			a.lockWait = append(a.lockWait, wait)
			go func() {
				if err := <-wait; err != nil {
					result <- lockReply{err: err}
					return
				}
				inner := make(chan lockReply, 1)
				if doErr := a.do(func() { inner <- tryLock() }); doErr != nil {
					result <- lockReply{err: doErr}
					return
				}
				result <- <-inner
			}()
			return
		}
		result <- tryLock()
	})
	if err != nil {
		return DeviceInfo{}, media.CaptureFormat{}, err
	}

	select {
	case r := <-result:
		return r.info, r.format, r.err
	case <-ctx.Done():
		return DeviceInfo{}, media.CaptureFormat{}, ctx.Err()
	}
}

// resolveLockWaiters runs on the loop goroutine.
func (a *Actor) resolveLockWaiters(err error) {
	for _, w := range a.lockWait {
		w <- err
	}
	a.lockWait = nil
}

// Unlock releases a recording's hold on the feed.
func (a *Actor) Unlock() {
	_ = a.do(func() { a.locked = false })
}

// Current returns the attached device, if any.
func (a *Actor) Current() (DeviceInfo, bool) {
	type reply struct {
		info DeviceInfo
		ok   bool
	}
	result := make(chan reply, 1)
	err := a.do(func() {
		if a.attached == nil {
			result <- reply{}
			return
		}
		result <- reply{info: a.attached.conn.Info, ok: true}
	})
	if err != nil {
		return DeviceInfo{}, false
	}
	r := <-result
	return r.info, r.ok
}

// Attached reports whether a device is currently delivering frames.
func (a *Actor) Attached() bool {
	result := make(chan bool, 1)
	if err := a.do(func() { result <- a.attached != nil }); err != nil {
		return false
	}
	return <-result
}

// Close detaches any device and stops the loop. Idempotent.
func (a *Actor) Close() {
	a.closeOnce.Do(func() { close(a.closing) })
	<-a.done
}
