package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oratioapp/oratio/pkg/audio"
)

// defaultFrameDuration is the cadence requested on the low-latency path.
const defaultFrameDuration = 20 * time.Millisecond

// Config tunes a [Capturer].
type Config struct {
	// VADSensitivity is the 1–100 voice-activity knob. Higher values lower
	// the RMS threshold so more frames pass the gate. Defaults to 50.
	VADSensitivity int

	// MinThreshold / MaxThreshold override the RMS bounds of the gate.
	// Zero values use the audio package defaults.
	MinThreshold float64
	MaxThreshold float64

	// FrameDuration is the cadence requested from a low-latency stream.
	// Defaults to 20 ms.
	FrameDuration time.Duration
}

// Capturer drives the full capture pipeline: device stream → frame producer →
// VAD gate → 16 kHz resample → base64 wire frame → caller callback.
//
// Start and Stop are safe for concurrent use. Stop is idempotent.
type Capturer struct {
	source Source
	cfg    Config

	mu       sync.Mutex
	stream   Stream
	producer FrameProducer
	monitor  chan audio.Frame
	running  bool
}

// New creates a Capturer over the given microphone source.
func New(source Source, cfg Config) *Capturer {
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = defaultFrameDuration
	}
	return &Capturer{source: source, cfg: cfg}
}

// Start acquires the microphone and begins invoking onFrame for every
// captured frame that passes the voice-activity gate. Frames are delivered as
// base64-encoded 16 kHz mono PCM16, regardless of the device's native rate.
//
// Acquisition failures surface as a single descriptive error wrapping one of
// the typed errors in this package; no resources remain attached on failure.
func (c *Capturer) Start(ctx context.Context, onFrame func(encoded string)) error {
	if onFrame == nil {
		return fmt.Errorf("capture: onFrame callback must not be nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("capture: already started")
	}

	stream, err := c.source.Open(ctx)
	if err != nil {
		return fmt.Errorf("capture: acquire microphone: %w", err)
	}

	producer := SelectProducer(stream, c.cfg.FrameDuration)

	// Monitor tap: a zero-gain copy of the producer output, consumed and
	// discarded. Some runtimes suspend an idle processing graph; keeping one
	// consumer always attached prevents that. It must never produce audible
	// output, so frames are dropped on the floor.
	monitor := make(chan audio.Frame, 16)
	go audio.Drain(monitor)

	gate := audio.Gate{
		Sensitivity:  c.cfg.VADSensitivity,
		MinThreshold: c.cfg.MinThreshold,
		MaxThreshold: c.cfg.MaxThreshold,
	}

	go pump(producer, gate, monitor, onFrame)

	c.stream = stream
	c.producer = producer
	c.monitor = monitor
	c.running = true
	return nil
}

// pump runs the per-frame pipeline until the producer channel closes.
func pump(producer FrameProducer, gate audio.Gate, monitor chan audio.Frame, onFrame func(string)) {
	defer close(monitor)
	for frame := range producer.Frames() {
		select {
		case monitor <- frame:
		default:
			// The tap is best-effort; never block the capture path on it.
		}

		if len(frame.Data) == 0 || len(frame.Data)%2 != 0 {
			slog.Warn("capture: dropping misaligned frame", "bytes", len(frame.Data))
			continue
		}
		if !gate.Pass(frame.Data) {
			continue
		}

		pcm := audio.ResampleMono16(frame.Data, frame.SampleRate, audio.CaptureRate)
		if len(pcm) == 0 {
			continue
		}
		onFrame(audio.EncodeFrame(pcm))
	}
}

// Stop tears down the pipeline and releases the device. Safe to call multiple
// times and before Start; teardown is defensive so a partially initialised
// pipeline is still fully released.
func (c *Capturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.running = false

	if c.producer != nil {
		if err := c.producer.Close(); err != nil {
			slog.Warn("capture: producer close", "err", err)
		}
		c.producer = nil
	}
	if c.stream != nil {
		if err := c.stream.Close(); err != nil {
			c.stream = nil
			c.monitor = nil
			return fmt.Errorf("capture: release microphone: %w", err)
		}
		c.stream = nil
	}
	c.monitor = nil
	return nil
}
