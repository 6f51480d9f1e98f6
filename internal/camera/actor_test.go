package camera

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/recordnode/internal/media"
	"github.com/smazurov/recordnode/internal/router"
)

type fakeDevice struct {
	id      string
	frames  chan *media.VideoFrame
	stopped atomic.Bool
}

func newFakeOpener(delay time.Duration, devices map[string]*fakeDevice) Opener {
	return func(ctx context.Context, deviceID string) (*Connection, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		dev, ok := devices[deviceID]
		if !ok {
			return nil, media.ErrDeviceNotFound
		}
		return &Connection{
			Info:   DeviceInfo{ID: dev.id, Name: "Fake " + dev.id},
			Format: media.CaptureFormat{Width: 1280, Height: 720, FrameRate: 30, Pixel: media.PixelFormatNV12},
			Frames: dev.frames,
			Stop:   func() { dev.stopped.Store(true) },
		}, nil
	}
}

func newFakeDevice(id string) *fakeDevice {
	return &fakeDevice{id: id, frames: make(chan *media.VideoFrame, 8)}
}

func TestSetInputAttachesDevice(t *testing.T) {
	dev := newFakeDevice("cam0")
	actor := NewActor(newFakeOpener(0, map[string]*fakeDevice{"cam0": dev}), slog.Default())
	defer actor.Close()

	if err := actor.SetInput(context.Background(), "cam0"); err != nil {
		t.Fatalf("SetInput failed: %v", err)
	}
	if !actor.Attached() {
		t.Error("expected device attached")
	}
}

func TestSetInputUnknownDevice(t *testing.T) {
	actor := NewActor(newFakeOpener(0, nil), slog.Default())
	defer actor.Close()

	err := actor.SetInput(context.Background(), "nope")
	if !errors.Is(err, media.ErrDeviceNotFound) {
		t.Errorf("expected ErrDeviceNotFound, got %v", err)
	}
	if actor.Attached() {
		t.Error("expected no attachment after failure")
	}
}

func TestSupersededSwitchSucceedsAndNewDeviceWins(t *testing.T) {
	slow := newFakeDevice("slow")
	fast := newFakeDevice("fast")
	devices := map[string]*fakeDevice{"slow": slow, "fast": fast}

	// The slow opener ignores cancellation so its connection completes
	// after being superseded, exercising the stale-connection cleanup.
	actor := NewActor(func(ctx context.Context, id string) (*Connection, error) {
		if id == "slow" {
			time.Sleep(200 * time.Millisecond)
			return &Connection{
				Info:   DeviceInfo{ID: id},
				Frames: slow.frames,
				Stop:   func() { slow.stopped.Store(true) },
			}, nil
		}
		return newFakeOpener(0, devices)(ctx, id)
	}, slog.Default())
	defer actor.Close()

	firstDone := make(chan error, 1)
	go func() { firstDone <- actor.SetInput(context.Background(), "slow") }()
	time.Sleep(20 * time.Millisecond)

	if err := actor.SetInput(context.Background(), "fast"); err != nil {
		t.Fatalf("second SetInput failed: %v", err)
	}

	// The superseded caller gets success: the switch it was replaced by
	// reflects the current intent.
	select {
	case err := <-firstDone:
		if err != nil {
			t.Errorf("superseded SetInput should succeed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("superseded SetInput never returned")
	}

	// The stale connection, if it completed, must have been stopped.
	deadline := time.Now().Add(time.Second)
	for !slow.stopped.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !slow.stopped.Load() {
		t.Error("stale connection was not stopped")
	}
	if fast.stopped.Load() {
		t.Error("winning connection must stay open")
	}
}

func TestFanOutPrunesClosedConsumers(t *testing.T) {
	dev := newFakeDevice("cam0")
	actor := NewActor(newFakeOpener(0, map[string]*fakeDevice{"cam0": dev}), slog.Default())
	defer actor.Close()

	if err := actor.SetInput(context.Background(), "cam0"); err != nil {
		t.Fatalf("SetInput failed: %v", err)
	}

	keep, err := actor.AttachConsumer(4, router.DropNewest)
	if err != nil {
		t.Fatalf("AttachConsumer failed: %v", err)
	}
	gone, err := actor.AttachConsumer(4, router.DropNewest)
	if err != nil {
		t.Fatalf("AttachConsumer failed: %v", err)
	}
	gone.Close()

	dev.frames <- &media.VideoFrame{Seq: 1}
	dev.frames <- &media.VideoFrame{Seq: 2}

	for want := uint64(1); want <= 2; want++ {
		frame, ok := keep.RecvTimeout(time.Second)
		if !ok || frame.Seq != want {
			t.Fatalf("expected frame %d on live consumer, got %v ok=%v", want, frame, ok)
		}
	}
}

func TestLockBlocksInputChanges(t *testing.T) {
	dev := newFakeDevice("cam0")
	actor := NewActor(newFakeOpener(0, map[string]*fakeDevice{"cam0": dev}), slog.Default())
	defer actor.Close()

	if err := actor.SetInput(context.Background(), "cam0"); err != nil {
		t.Fatalf("SetInput failed: %v", err)
	}

	info, format, err := actor.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if info.ID != "cam0" || format.Width != 1280 {
		t.Errorf("unexpected lock result: %+v %+v", info, format)
	}

	if err := actor.SetInput(context.Background(), "cam0"); !errors.Is(err, ErrFeedLocked) {
		t.Errorf("expected ErrFeedLocked during recording, got %v", err)
	}
	if err := actor.RemoveInput(); !errors.Is(err, ErrFeedLocked) {
		t.Errorf("expected ErrFeedLocked on RemoveInput, got %v", err)
	}

	actor.Unlock()
	if err := actor.RemoveInput(); err != nil {
		t.Errorf("RemoveInput after unlock failed: %v", err)
	}
	if !dev.stopped.Load() {
		t.Error("expected device stopped on detach")
	}
}

func TestRemoveInputReleasesPendingLock(t *testing.T) {
	dev := newFakeDevice("cam0")
	actor := NewActor(newFakeOpener(300*time.Millisecond, map[string]*fakeDevice{"cam0": dev}), slog.Default())
	defer actor.Close()

	setDone := make(chan error, 1)
	go func() { setDone <- actor.SetInput(context.Background(), "cam0") }()
	time.Sleep(20 * time.Millisecond)

	// Lock while the switch is still in flight, so it queues behind the
	// connect.
	lockDone := make(chan error, 1)
	go func() {
		_, _, err := actor.Lock(context.Background())
		lockDone <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if err := actor.RemoveInput(); err != nil {
		t.Fatalf("RemoveInput failed: %v", err)
	}

	// The queued Lock must resolve once the connect it waited on is
	// cancelled, not sit on a device that is never coming.
	select {
	case err := <-lockDone:
		if !errors.Is(err, ErrNoInput) {
			t.Errorf("expected ErrNoInput for a lock pending on a removed input, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Lock never returned after RemoveInput")
	}

	select {
	case <-setDone:
	case <-time.After(time.Second):
		t.Fatal("cancelled SetInput never returned")
	}
}

func TestLockWithoutInput(t *testing.T) {
	actor := NewActor(newFakeOpener(0, nil), slog.Default())
	defer actor.Close()

	if _, _, err := actor.Lock(context.Background()); !errors.Is(err, ErrNoInput) {
		t.Errorf("expected ErrNoInput, got %v", err)
	}
}

func TestCloseStopsAttachedDevice(t *testing.T) {
	dev := newFakeDevice("cam0")
	actor := NewActor(newFakeOpener(0, map[string]*fakeDevice{"cam0": dev}), slog.Default())

	if err := actor.SetInput(context.Background(), "cam0"); err != nil {
		t.Fatalf("SetInput failed: %v", err)
	}
	actor.Close()

	if !dev.stopped.Load() {
		t.Error("expected device stopped on close")
	}
	if err := actor.SetInput(context.Background(), "cam0"); !errors.Is(err, media.ErrChannelDisconnected) {
		t.Errorf("expected ErrChannelDisconnected after close, got %v", err)
	}
}
