// Package hw binds the engine's capture and playback interfaces to real
// audio hardware: malgo (miniaudio) for the microphone and oto for the
// speaker. The engine itself only sees the interfaces, so everything above
// this package runs unchanged against test stubs.
package hw

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/nova-labs/nova-live/pkg/audio"
)

const capturePeriodMs = 20

// Microphone captures mono 16-bit PCM from the default input device and
// delivers it as float32 sample blocks on the audio callback thread.
type Microphone struct {
	sampleRate int

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	stopped bool
}

// NewMicrophone creates an unopened microphone at the given sample rate.
func NewMicrophone(sampleRate int) *Microphone {
	return &Microphone{sampleRate: sampleRate}
}

// Open acquires the audio backend context. The device itself is created in
// Start so the data callback can be bound.
func (m *Microphone) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return nil
	}
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime
	ctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	m.ctx = ctx
	m.stopped = false
	return nil
}

// Start initializes the capture device and begins streaming. Each hardware
// callback converts the s16le bytes to a fresh float32 slice; the slice is
// never reused, so downstream consumers own it.
func (m *Microphone) Start(onSamples func([]float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return fmt.Errorf("microphone is not open")
	}
	if m.device != nil {
		return fmt.Errorf("microphone already started")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = capturePeriodMs

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			onSamples(audio.PCM16BytesToFloat(input))
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}
	m.device = device
	return nil
}

// Stop halts the stream and releases the hardware. Idempotent, and safe
// whether the microphone was merely opened or fully started. The device
// stop blocks until the audio thread is quiescent, so no data callback is
// in flight once Stop returns.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil
	}
	m.stopped = true
	if m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
	return nil
}
