package live

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nova-labs/nova-live/pkg/audio"
	"github.com/nova-labs/nova-live/pkg/core"
)

// CaptureDevice is a microphone behind an interface so the pipeline can be
// driven by real hardware or a test stub.
//
// Open acquires the hardware without starting the stream; acquisition
// happens before the remote handshake so a failed handshake can release the
// device. Start begins delivering mono float32 sample blocks at the
// negotiated input rate on the device's audio callback thread. Each callback
// invocation hands the pipeline an immutable slice consumed exactly once;
// implementations must not reuse the slice after the callback returns.
// Stop releases the hardware and must be idempotent, safe to call whether
// the device was merely opened or fully started. Stop must not return while
// a callback is executing: once it returns, no callback is in flight and
// none will fire again, so the pipeline may reclaim callback-owned state.
type CaptureDevice interface {
	Open() error
	Start(onSamples func(samples []float32)) error
	Stop() error
}

// AudioSender is the slice of the transport the capture pipeline needs.
type AudioSender interface {
	SendAudio(data string) error
}

// CapturePipeline turns a live microphone into an ordered sequence of
// outbound audio chunks: fixed 4096-sample blocks, encoded to base64 PCM16
// and sent as they fill. Back-pressure is implicit: at most one block is in
// flight because the device callback only fires when the next block of
// samples exists.
//
// The final partial block on Stop is dropped, not sent or padded; at one
// block per ~256 ms the tail is inaudible and padding would inject silence
// mid-stream.
type CapturePipeline struct {
	device CaptureDevice
	sender AudioSender
	meter  *audio.LevelMeter
	logger *slog.Logger

	block    []float32
	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
}

// NewCapturePipeline wires a device to a sender with an analysis tap.
// The meter may be nil.
func NewCapturePipeline(device CaptureDevice, sender AudioSender, meter *audio.LevelMeter, logger *slog.Logger) *CapturePipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &CapturePipeline{
		device: device,
		sender: sender,
		meter:  meter,
		logger: logger,
		block:  make([]float32, 0, CaptureBlockSize),
	}
}

// Start begins streaming from an already-opened device. If the device
// cannot start, the pipeline never runs and nothing more is left open.
func (p *CapturePipeline) Start() error {
	if p.started.Swap(true) {
		return core.NewInvalidRequestError("capture pipeline already started")
	}
	if err := p.device.Start(p.onSamples); err != nil {
		p.stopped.Store(true)
		return core.NewAcquisitionError("microphone: " + err.Error())
	}
	return nil
}

// onSamples runs on the device callback thread. It is the only writer of
// p.block, so block assembly needs no lock; the meter has its own.
func (p *CapturePipeline) onSamples(samples []float32) {
	if p.stopped.Load() {
		return
	}
	if p.meter != nil {
		p.meter.Feed(samples)
	}
	p.block = append(p.block, samples...)
	for len(p.block) >= CaptureBlockSize {
		chunk := p.block[:CaptureBlockSize]
		if err := p.sender.SendAudio(audio.Encode(chunk)); err != nil {
			p.logger.Warn("dropping captured block", "error", err)
		}
		rest := p.block[CaptureBlockSize:]
		p.block = append(p.block[:0], rest...)
	}
}

// Stop detaches the callback and releases the device. Idempotent; any
// partial block is discarded.
func (p *CapturePipeline) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		if err := p.device.Stop(); err != nil {
			p.logger.Warn("stopping capture device", "error", err)
		}
		p.block = p.block[:0]
	})
}
