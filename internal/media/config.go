package media

// CropBounds is an optional capture crop region in source pixels.
type CropBounds struct {
	X      int
	Y      int
	Width  int
	Height int
}

// CaptureConfig is the immutable configuration for one capture session.
// It is created once per recording start and never mutated afterwards;
// changing anything requires tearing down and recreating the source.
type CaptureConfig struct {
	DisplayID   string
	CameraID    string
	MicID       string
	SystemAudio bool

	Width     int
	Height    int
	FrameRate float64
	Pixel     PixelFormat

	SampleRate int
	Channels   int
	Sample     AudioFormat

	Crop *CropBounds
}

// HasVideo reports whether any video input is configured.
func (c CaptureConfig) HasVideo() bool {
	return c.DisplayID != "" || c.CameraID != ""
}

// HasAudio reports whether any audio input is configured.
func (c CaptureConfig) HasAudio() bool {
	return c.MicID != "" || c.SystemAudio
}
