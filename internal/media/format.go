package media

import (
	"fmt"
	"math"
	"sort"
)

// CaptureFormat is one native mode a capture device can produce.
type CaptureFormat struct {
	Width     int
	Height    int
	FrameRate float64
	Pixel     PixelFormat
}

func (f CaptureFormat) String() string {
	return fmt.Sprintf("%dx%d@%g %s", f.Width, f.Height, f.FrameRate, f.Pixel)
}

// AspectRatio returns width/height, or 0 for degenerate formats.
func (f CaptureFormat) AspectRatio() float64 {
	if f.Height == 0 {
		return 0
	}
	return float64(f.Width) / float64(f.Height)
}

const (
	targetAspectRatio  = 16.0 / 9.0
	maxDimensionFilter = 2000
	minFrameRateFilter = 30.0
)

// SelectFormat picks the best capture format from a device's native
// list. Formats with fps >= 30 and both dimensions under 2000 are
// preferred; if none qualify the full list is ranked instead. Ranking
// is a total order: aspect-ratio distance to 16:9 ascending, then
// resolution descending, then frame rate descending.
func SelectFormat(formats []CaptureFormat) (CaptureFormat, error) {
	if len(formats) == 0 {
		return CaptureFormat{}, ErrFormatNegotiation
	}

	ideal := make([]CaptureFormat, 0, len(formats))
	for _, f := range formats {
		if f.FrameRate >= minFrameRateFilter && f.Width < maxDimensionFilter && f.Height < maxDimensionFilter {
			ideal = append(ideal, f)
		}
	}
	if len(ideal) == 0 {
		ideal = append(ideal, formats...)
	}

	sort.SliceStable(ideal, func(i, j int) bool {
		a, b := ideal[i], ideal[j]

		aspectA := math.Abs(a.AspectRatio() - targetAspectRatio)
		aspectB := math.Abs(b.AspectRatio() - targetAspectRatio)
		if aspectA != aspectB {
			return aspectA < aspectB
		}

		resA := a.Width * a.Height
		resB := b.Width * b.Height
		if resA != resB {
			return resA > resB
		}

		return a.FrameRate > b.FrameRate
	})

	return ideal[0], nil
}
