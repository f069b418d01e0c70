// Package capture turns a live microphone stream into a sequence of
// base64-encoded 16 kHz mono PCM16 frames suitable for a remote speech
// session, gated by a voice-activity threshold so that silence is never
// transmitted.
//
// The two primary abstractions are:
//
//   - [Source] acquires the platform microphone and returns a [Stream].
//   - [FrameProducer] adapts a Stream into fixed-cadence frames. Two
//     implementations exist: a low-latency path (preferred) and a buffered
//     fallback for devices that cannot honour small buffer sizes. Both emit
//     the exact same wire format.
//
// Implementations of [Source] are provided by platform adapter packages; the
// mock subpackage provides a scripted source for tests.
package capture

import (
	"context"
	"errors"

	"github.com/oratioapp/oratio/pkg/audio"
)

// Typed acquisition errors. Each maps to a distinct user-facing remediation
// (grant permission, plug in a device, close the other app, change browser),
// so callers must be able to distinguish them with errors.Is.
var (
	// ErrPermissionDenied indicates the user or OS refused microphone access.
	ErrPermissionDenied = errors.New("capture: microphone permission denied")

	// ErrNoDevice indicates no capture device is present.
	ErrNoDevice = errors.New("capture: no microphone found")

	// ErrDeviceBusy indicates the device is held exclusively by another process.
	ErrDeviceBusy = errors.New("capture: microphone is in use by another application")

	// ErrUnsupported indicates the platform offers no capture API at all.
	ErrUnsupported = errors.New("capture: audio capture not supported on this platform")
)

// Stream is an open microphone stream delivering mono PCM16 frames at the
// device's native sample rate.
//
// A Stream is owned by exactly one consumer; it is not safe to share across
// goroutines without external synchronisation.
type Stream interface {
	// SampleRate returns the native sample rate of the device in Hz.
	SampleRate() int

	// Frames returns the channel on which captured frames arrive. The channel
	// is closed when the stream ends or Close is called.
	Frames() <-chan audio.Frame

	// Close releases the device. Safe to call more than once; subsequent
	// calls are no-ops and return nil.
	Close() error
}

// Source acquires the platform microphone.
//
// Open must fail with one of the typed errors above (possibly wrapped) when
// acquisition is impossible, and must not leave partial resources attached on
// failure.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}
