package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/recordnode/internal/capture"
	"github.com/smazurov/recordnode/internal/events"
	"github.com/smazurov/recordnode/internal/media"
	"github.com/smazurov/recordnode/internal/router"
)

// firstFramePoll is how often the opener checks for the first frame
// while a device warms up.
const firstFramePoll = 20 * time.Millisecond

// Feed is the node's shared camera slot. It opens devices through the
// capture layer and announces attach/detach transitions on the event
// bus so API clients can follow along.
type Feed struct {
	actor  *Actor
	bus    *events.Bus
	logger *slog.Logger
}

// NewFeed creates the feed with a capture-backed opener.
func NewFeed(bus *events.Bus, logger *slog.Logger) *Feed {
	f := &Feed{bus: bus, logger: logger}
	f.actor = NewActor(f.open, logger)
	return f
}

// open connects to a camera and waits until it delivers its first
// frame, so a successful switch means a live device.
func (f *Feed) open(ctx context.Context, deviceID string) (*Connection, error) {
	cfg := media.CaptureConfig{CameraID: deviceID}
	src, err := capture.New(capture.KindCamera, cfg, f.logger)
	if err != nil {
		return nil, err
	}

	var format media.CaptureFormat
	if formats, err := src.Formats(); err == nil && len(formats) > 0 {
		format = formats[0]
	}

	out := capture.NewOutputs()
	if err := src.Start(media.NewTimestamps(), out); err != nil {
		out.Close()
		return nil, err
	}

	ticker := time.NewTicker(firstFramePoll)
	defer ticker.Stop()
	for out.Video.Len() == 0 {
		select {
		case <-ctx.Done():
			_ = src.Stop()
			out.Close()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return &Connection{
		Info:   DeviceInfo{ID: deviceID, Name: src.Name()},
		Format: format,
		Frames: out.Video.Chan(),
		Stop: func() {
			_ = src.Stop()
			out.Close()
		},
	}, nil
}

// SetInput switches the feed to the named camera and announces the
// attachment.
func (f *Feed) SetInput(ctx context.Context, deviceID string) error {
	if err := f.actor.SetInput(ctx, deviceID); err != nil {
		return err
	}

	info, ok := f.actor.Current()
	if !ok {
		// Superseded by a newer switch; that request will announce.
		return nil
	}
	f.bus.Publish(events.CameraAttachedEvent{
		DeviceID:  info.ID,
		Name:      info.Name,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	return nil
}

// RemoveInput detaches the current camera and announces the detach.
func (f *Feed) RemoveInput() error {
	info, had := f.actor.Current()
	if err := f.actor.RemoveInput(); err != nil {
		return err
	}
	if had {
		f.bus.Publish(events.CameraDetachedEvent{
			DeviceID:  info.ID,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
	return nil
}

// AcquireSource locks the feed for a recording and returns a capture
// source that delivers the slot's frames until stopped. When deviceID
// names a camera that is not already attached, the feed switches to it
// first. The lock is released by stopping the returned source.
func (f *Feed) AcquireSource(ctx context.Context, deviceID string) (capture.Source, error) {
	if deviceID != "" {
		if info, ok := f.actor.Current(); !ok || info.ID != deviceID {
			if err := f.SetInput(ctx, deviceID); err != nil {
				return nil, err
			}
		}
	}

	info, format, err := f.actor.Lock(ctx)
	if err != nil {
		if errors.Is(err, ErrNoInput) {
			return nil, fmt.Errorf("%w: no camera attached", media.ErrDeviceNotFound)
		}
		return nil, err
	}

	f.logger.Info("Camera feed locked for recording", "device", info.ID)
	return &feedSource{feed: f, info: info, format: format}, nil
}

// feedSource adapts a locked camera feed to the capture source
// contract for the duration of one recording. The device itself stays
// owned by the feed; only the lock and the consumer belong to the
// recording.
type feedSource struct {
	feed   *Feed
	info   DeviceInfo
	format media.CaptureFormat

	consumer *router.Router[*media.VideoFrame]
	done     chan struct{}
	stopOnce sync.Once
}

func (s *feedSource) Name() string { return capture.KindCamera }

func (s *feedSource) Formats() ([]media.CaptureFormat, error) {
	return []media.CaptureFormat{s.format}, nil
}

func (s *feedSource) Start(_ media.Timestamps, out capture.Outputs) error {
	consumer, err := s.feed.actor.AttachConsumer(capture.VideoQueueCapacity, router.DropNewest)
	if err != nil {
		return err
	}
	s.consumer = consumer
	s.done = make(chan struct{})
	go s.forward(out)
	return nil
}

func (s *feedSource) forward(out capture.Outputs) {
	defer close(s.done)
	for {
		frame, ok := s.consumer.Recv()
		if !ok {
			return
		}
		if _, err := out.Video.TrySend(frame); err != nil {
			return
		}
	}
}

// Stop detaches the recording's consumer and releases the lock. The
// feed keeps the device attached for the next consumer. Idempotent.
func (s *feedSource) Stop() error {
	s.stopOnce.Do(func() {
		if s.consumer != nil {
			s.consumer.Close()
			<-s.done
		}
		s.feed.actor.Unlock()
		s.feed.logger.Info("Camera feed released by recording", "device", s.info.ID)
	})
	return nil
}

// Current returns the attached device, if any.
func (f *Feed) Current() (DeviceInfo, bool) {
	return f.actor.Current()
}

// Actor exposes the underlying actor for consumers that need frame
// fan-out or recording locks.
func (f *Feed) Actor() *Actor {
	return f.actor
}

// Close shuts the feed down.
func (f *Feed) Close() {
	f.actor.Close()
}
