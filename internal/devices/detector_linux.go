//go:build linux && cgo

package devices

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jochenvg/go-udev"

	"github.com/smazurov/recordnode/internal/logging"
)

type linuxDetector struct {
	mu     sync.Mutex
	known  map[string]DeviceInfo
	logger *slog.Logger
}

func newDetector() Detector {
	return &linuxDetector{
		known:  make(map[string]DeviceInfo),
		logger: logging.GetLogger("devices"),
	}
}

// List scans sysfs for video4linux nodes and ALSA capture cards, and
// reports the X display when one is present.
func (d *linuxDetector) List() ([]DeviceInfo, error) {
	var out []DeviceInfo

	if display := os.Getenv("DISPLAY"); display != "" {
		out = append(out, DeviceInfo{
			ID:   display,
			Name: "X display " + display,
			Kind: KindDisplay,
		})
	}

	cameras, err := listV4L2Devices()
	if err != nil {
		return nil, err
	}
	out = append(out, cameras...)
	out = append(out, listALSACaptureDevices()...)

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func listV4L2Devices() ([]DeviceInfo, error) {
	entries, err := filepath.Glob("/sys/class/video4linux/video*")
	if err != nil {
		return nil, fmt.Errorf("scanning video4linux: %w", err)
	}

	var out []DeviceInfo
	for _, sysPath := range entries {
		node := filepath.Base(sysPath)

		name := node
		if raw, err := os.ReadFile(filepath.Join(sysPath, "name")); err == nil {
			name = strings.TrimSpace(string(raw))
		}

		// Metadata-only nodes (index > 0 on the same card) are not
		// capture entry points.
		if raw, err := os.ReadFile(filepath.Join(sysPath, "index")); err == nil {
			if strings.TrimSpace(string(raw)) != "0" {
				continue
			}
		}

		out = append(out, DeviceInfo{
			ID:   node,
			Name: name,
			Path: "/dev/" + node,
			Kind: KindCamera,
		})
	}
	return out, nil
}

// listALSACaptureDevices parses /proc/asound/cards. Enumeration errors
// degrade to an empty list since audio is optional.
func listALSACaptureDevices() []DeviceInfo {
	raw, err := os.ReadFile("/proc/asound/cards")
	if err != nil {
		return nil
	}

	var out []DeviceInfo
	for _, line := range strings.Split(string(raw), "\n") {
		// Card lines look like " 0 [PCH   ]: HDA-Intel - HDA Intel PCH".
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[1], "[") {
			continue
		}
		index := fields[0]
		name := line
		if i := strings.LastIndex(line, " - "); i != -1 {
			name = strings.TrimSpace(line[i+3:])
		}
		out = append(out, DeviceInfo{
			ID:   "hw:" + index,
			Name: name,
			Kind: KindMicrophone,
		})
	}
	return out
}

// Watch replays the current device set and then follows udev hotplug
// events, diffing the device list on each add/remove.
func (d *linuxDetector) Watch(ctx context.Context, fn func(Event)) error {
	initial, err := d.List()
	if err != nil {
		d.logger.Warn("Initial device scan failed", "error", err)
	}
	d.mu.Lock()
	for _, dev := range initial {
		d.known[dev.ID] = dev
		fn(Event{Action: "added", Device: dev})
	}
	d.mu.Unlock()
	d.logger.Info("Device watch started", "initial_devices", len(initial))

	u := udev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	if mon == nil {
		return fmt.Errorf("failed to create udev monitor")
	}
	mon.FilterAddMatchSubsystemDevtype("usb", "usb_device")

	deviceCh, errCh, err := mon.DeviceChan(ctx)
	if err != nil {
		return fmt.Errorf("failed to get udev device channel: %w", err)
	}

	go func() {
		for err := range errCh {
			d.logger.Error("Udev monitor error", "error", err)
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				d.logger.Info("Device watch stopped")
				return
			case dev, ok := <-deviceCh:
				if !ok {
					return
				}
				action := dev.Action()
				if action != "add" && action != "remove" {
					continue
				}
				// The kernel needs a moment to enumerate V4L2 nodes
				// after USB attach.
				if action == "add" {
					time.Sleep(time.Second)
				}
				d.diffAndNotify(fn)
			}
		}
	}()
	return nil
}

func (d *linuxDetector) diffAndNotify(fn func(Event)) {
	current, err := d.List()
	if err != nil {
		d.logger.Warn("Device rescan failed", "error", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[string]bool, len(current))
	for _, dev := range current {
		seen[dev.ID] = true
		if _, ok := d.known[dev.ID]; !ok {
			d.known[dev.ID] = dev
			d.logger.Info("Device added", "id", dev.ID, "name", dev.Name, "kind", dev.Kind)
			fn(Event{Action: "added", Device: dev})
		}
	}
	for id, dev := range d.known {
		if !seen[id] {
			delete(d.known, id)
			d.logger.Info("Device removed", "id", id, "kind", dev.Kind)
			fn(Event{Action: "removed", Device: dev})
		}
	}
}
