// Package live implements the realtime streaming session engine: one
// bidirectional, low-latency voice conversation with the remote realtime
// endpoint. Microphone audio streams out continuously, optional camera
// stills stream out periodically, and synthesized speech streams back for
// gapless playback with server-signaled barge-in interruption.
//
// The Engine façade wires the capture pipeline, frame sampler, session
// transport, and playback scheduler together and exposes connection state,
// errors, transcript fragments, and level-meter taps to the host
// application. Everything else — chat history, persistence, rendering — is
// the host's concern.
package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nova-labs/nova-live/pkg/audio"
	"github.com/nova-labs/nova-live/pkg/core"
)

// sessionState is the engine's session lifecycle as a tagged value, so sends
// against a not-yet-open or already-closed session are a checked condition.
type sessionState int

const (
	stateDisconnected sessionState = iota
	stateConnecting
	stateOpen
)

// sessionTransport is the slice of Transport the engine consumes; tests
// substitute scripted implementations.
type sessionTransport interface {
	Events() <-chan Event
	SendAudio(data string) error
	SendImage(data string) error
	SendText(text string) error
	Close() error
}

// Engine is the public entry point of the realtime core.
//
// At most one session is active per Engine; Connect while a session is open
// or connecting is rejected. The microphone, the output device, and the
// transport connection are owned exclusively by the engine and released
// through a single teardown path shared by user disconnects, remote closes,
// and every error case.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	inputMeter  *audio.LevelMeter
	outputMeter *audio.LevelMeter

	mu            sync.Mutex
	state         sessionState
	gen           int64
	connectCancel context.CancelFunc
	transport     sessionTransport
	capture       *CapturePipeline
	sampler       *FrameSampler
	scheduler     *PlaybackScheduler
	lastErr       error

	// Factories, overridable by tests.
	newCaptureDevice func() (CaptureDevice, error)
	newPlaybackSink  func() (PlaybackSink, error)
	dial             func(ctx context.Context, cfg TransportConfig) (sessionTransport, error)
}

// NewEngine validates the configuration and creates an idle engine. The
// level meters exist from construction so they can be queried before any
// audio flows.
func NewEngine(cfg Config) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:         cfg,
		logger:      cfg.Logger,
		inputMeter:  audio.NewLevelMeter(DefaultMeterBins),
		outputMeter: audio.NewLevelMeter(DefaultMeterBins),
	}
	e.newCaptureDevice = defaultCaptureDevice
	e.newPlaybackSink = defaultPlaybackSink
	e.dial = func(ctx context.Context, tc TransportConfig) (sessionTransport, error) {
		return Dial(ctx, tc)
	}
	return e, nil
}

// Connect acquires the microphone, opens the session transport with the
// configured voice and system instruction, starts the capture pipeline,
// and — only if a video source is supplied — starts the frame sampler.
// It returns once the transport reports open.
//
// On any step's failure every partially-acquired resource is rolled back:
// no dangling microphone handle, no leaked timer. A hung handshake stays
// cancellable via ctx or a concurrent Disconnect.
func (e *Engine) Connect(ctx context.Context, video VideoSource) error {
	e.mu.Lock()
	if e.state != stateDisconnected {
		e.mu.Unlock()
		return core.NewInvalidRequestError("a session is already active")
	}
	e.state = stateConnecting
	e.lastErr = nil
	e.gen++
	gen := e.gen
	connectCtx, cancel := context.WithCancel(ctx)
	e.connectCancel = cancel
	e.mu.Unlock()
	defer cancel()

	e.inputMeter.Reset()
	e.outputMeter.Reset()

	device, err := e.newCaptureDevice()
	if err == nil {
		err = device.Open()
	}
	if err != nil {
		acqErr := core.NewAcquisitionError("microphone: " + err.Error())
		e.connectFailed(gen, acqErr)
		return acqErr
	}

	transport, err := e.dial(connectCtx, TransportConfig{
		Endpoint:          e.cfg.Endpoint,
		APIKey:            e.cfg.APIKey,
		Model:             e.cfg.Model,
		Voice:             e.cfg.Voice,
		SystemInstruction: e.cfg.SystemInstruction,
		Logger:            e.logger,
	})
	if err != nil {
		_ = device.Stop()
		e.connectFailed(gen, err)
		return err
	}

	sink, err := e.newPlaybackSink()
	if err != nil {
		_ = transport.Close()
		_ = device.Stop()
		outErr := core.NewAcquisitionError("output device: " + err.Error())
		e.connectFailed(gen, outErr)
		return outErr
	}

	scheduler := NewPlaybackScheduler(sink, e.outputMeter, e.logger)
	capture := NewCapturePipeline(device, transport, e.inputMeter, e.logger)
	if err := capture.Start(); err != nil {
		_ = scheduler.Close()
		_ = transport.Close()
		_ = device.Stop()
		e.connectFailed(gen, err)
		return err
	}

	var sampler *FrameSampler
	if video != nil {
		sampler = NewFrameSampler(video, transport, e.cfg.FrameInterval, e.logger)
		sampler.Start()
	}

	e.mu.Lock()
	if e.gen != gen || e.state != stateConnecting {
		// Disconnect ran mid-connect; unwind everything we built.
		e.mu.Unlock()
		if sampler != nil {
			sampler.Stop()
		}
		capture.Stop()
		_ = transport.Close()
		_ = scheduler.Close()
		return core.NewInvalidRequestError("connect aborted")
	}
	e.transport = transport
	e.capture = capture
	e.sampler = sampler
	e.scheduler = scheduler
	e.state = stateOpen
	e.connectCancel = nil
	onChange := e.cfg.OnConnectionChange
	e.mu.Unlock()

	if onChange != nil {
		onChange(true)
	}
	go e.consumeEvents(gen, transport, scheduler)
	return nil
}

// connectFailed records a connect-phase failure unless a concurrent
// Disconnect already superseded this attempt.
func (e *Engine) connectFailed(gen int64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen || e.state != stateConnecting {
		return
	}
	e.state = stateDisconnected
	e.connectCancel = nil
	e.lastErr = err
}

// Disconnect tears down every owned resource in reverse acquisition order.
// It is safe to call at any time — repeatedly, when never connected, or
// mid-connect, where it aborts the pending handshake. It never blocks on
// the remote side.
func (e *Engine) Disconnect() {
	e.teardown(-1, nil)
}

// consumeEvents drains the transport's inbound stream for one session,
// feeding the playback scheduler and the host's transcript callback, and
// funnels every exit — remote close, transport error — into the shared
// teardown path.
func (e *Engine) consumeEvents(gen int64, transport sessionTransport, scheduler *PlaybackScheduler) {
	onTranscript := e.cfg.OnTranscript
	var sessionErr error

	for event := range transport.Events() {
		switch v := event.(type) {
		case AudioChunkEvent:
			if err := scheduler.Play(v.Data); err != nil {
				// Decode failures drop the chunk; playback continues
				// with subsequent chunks.
				e.logger.Warn("dropping inbound audio chunk", "error", err)
			}
		case TranscriptEvent:
			if onTranscript != nil {
				onTranscript(v.Text, v.Role, v.Final)
			}
		case TurnCompleteEvent:
			if onTranscript != nil {
				onTranscript("", RoleModel, true)
			}
		case InterruptedEvent:
			scheduler.Interrupt()
		case ErrorEvent:
			sessionErr = core.NewTransportError(v.Message)
		case ClosedEvent, OpenedEvent:
			// Terminal and initial markers; teardown runs when the
			// channel drains.
		}
	}

	e.teardown(gen, sessionErr)
}

// teardown is the single cleanup implementation behind Disconnect, remote
// closes, and every error path. gen guards against tearing down a newer
// session from a stale event loop; pass -1 to target whatever session is
// current. Subscribers are notified exactly once per actual open-to-closed
// transition, not once per call.
func (e *Engine) teardown(gen int64, err error) {
	e.mu.Lock()
	if gen >= 0 && gen != e.gen {
		e.mu.Unlock()
		return
	}
	if e.connectCancel != nil {
		e.connectCancel()
		e.connectCancel = nil
	}
	wasOpen := e.state == stateOpen
	sampler := e.sampler
	capture := e.capture
	transport := e.transport
	scheduler := e.scheduler
	e.sampler = nil
	e.capture = nil
	e.transport = nil
	e.scheduler = nil
	e.state = stateDisconnected
	e.gen++
	if err != nil && e.lastErr == nil {
		e.lastErr = err
	}
	onChange := e.cfg.OnConnectionChange
	e.mu.Unlock()

	if sampler != nil {
		sampler.Stop()
	}
	if capture != nil {
		capture.Stop()
	}
	if transport != nil {
		_ = transport.Close()
	}
	if scheduler != nil {
		_ = scheduler.Close()
	}

	if wasOpen && onChange != nil {
		onChange(false)
	}
}

// SendText forwards a text turn to the session transport. Valid only while
// connected.
func (e *Engine) SendText(text string) error {
	e.mu.Lock()
	transport := e.transport
	open := e.state == stateOpen
	e.mu.Unlock()
	if !open || transport == nil {
		return core.NewInvalidRequestError("not connected")
	}
	return transport.SendText(text)
}

// IsConnected reports whether a session is open.
func (e *Engine) IsConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateOpen
}

// Err returns the last session error, cleared on the next successful
// Connect.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// InputLevels is the capture-path analysis tap.
func (e *Engine) InputLevels() *audio.LevelMeter { return e.inputMeter }

// OutputLevels is the playback-path analysis tap.
func (e *Engine) OutputLevels() *audio.LevelMeter { return e.outputMeter }

// Volume is a scalar reading of the capture path for simple UI meters.
func (e *Engine) Volume() float64 { return e.inputMeter.Volume() }
