package media

import "errors"

// Setup-time errors are returned synchronously from Start/open paths.
// Runtime errors inside OS capture callbacks cannot propagate by return
// value; they become either a counted frame drop or a fatal signal on
// the pipeline error channel.
var (
	ErrDeviceNotFound      = errors.New("capture device not found")
	ErrPermissionDenied    = errors.New("capture permission denied")
	ErrFormatNegotiation   = errors.New("no usable capture format")
	ErrInitTimeout         = errors.New("device initialization timed out")
	ErrChannelDisconnected = errors.New("pipeline stage disconnected")
	ErrCapacityExceeded    = errors.New("capture can't keep up")
	ErrConvertFailed       = errors.New("frame conversion failed")
	ErrEncoderSpawn        = errors.New("failed to spawn encoder process")
	ErrEncoderProcess      = errors.New("encoder process failed")
)

// IsFatal reports whether an error must abort the active recording
// rather than degrade it.
func IsFatal(err error) bool {
	return errors.Is(err, ErrChannelDisconnected) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrEncoderProcess)
}
