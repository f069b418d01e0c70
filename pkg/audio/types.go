package audio

import "time"

// Wire-format constants for the live interview session. The remote speech
// session consumes 16 kHz mono PCM16 and produces 24 kHz mono PCM16,
// regardless of the native rate of the local device on either side.
const (
	// CaptureRate is the sample rate of frames sent to the live session.
	CaptureRate = 16000

	// PlaybackRate is the sample rate of frames received from the live session.
	PlaybackRate = 24000
)

// Frame represents a single chunk of mono 16-bit little-endian PCM audio
// flowing through the pipeline. Frames are ephemeral: they live for the
// duration of one capture callback or one network transmission and are never
// persisted.
type Frame struct {
	// PCM audio data, little-endian int16, mono.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for a typical microphone, 16000 on the wire).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play time of the frame at its sample rate.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	samples := len(f.Data) / 2
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Samples returns the number of int16 samples in the frame.
func (f Frame) Samples() int { return len(f.Data) / 2 }
