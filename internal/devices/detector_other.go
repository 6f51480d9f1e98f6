//go:build !linux || !cgo

package devices

import (
	"context"
	"os"
)

type fallbackDetector struct{}

func newDetector() Detector {
	return fallbackDetector{}
}

// List reports only what can be found without platform bindings.
func (fallbackDetector) List() ([]DeviceInfo, error) {
	var out []DeviceInfo
	if display := os.Getenv("DISPLAY"); display != "" {
		out = append(out, DeviceInfo{
			ID:   display,
			Name: "Display " + display,
			Kind: KindDisplay,
		})
	}
	return out, nil
}

// Watch replays the initial set; hotplug is not available here.
func (d fallbackDetector) Watch(ctx context.Context, fn func(Event)) error {
	devices, err := d.List()
	if err != nil {
		return err
	}
	for _, dev := range devices {
		fn(Event{Action: "added", Device: dev})
	}
	return nil
}
