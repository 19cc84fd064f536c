package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nova-labs/nova-live/pkg/core"
)

// stubTransport is a scripted sessionTransport: tests push inbound events
// through its channel and observe outbound sends.
type stubTransport struct {
	events chan Event

	mu     sync.Mutex
	texts  []string
	audio  int
	images int
	closes int

	closeOnce sync.Once
}

func newStubTransport() *stubTransport {
	return &stubTransport{events: make(chan Event, 16)}
}

func (s *stubTransport) Events() <-chan Event { return s.events }

func (s *stubTransport) SendAudio(string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio++
	return nil
}

func (s *stubTransport) SendImage(string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images++
	return nil
}

func (s *stubTransport) SendText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *stubTransport) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.events) })
	return nil
}

// push delivers an inbound event as if the remote service produced it.
func (s *stubTransport) push(ev Event) { s.events <- ev }

// endSession closes the event stream as a remote close would.
func (s *stubTransport) endSession() {
	s.closeOnce.Do(func() { close(s.events) })
}

type engineFixture struct {
	engine    *Engine
	device    *stubDevice
	sink      *recordingSink
	transport *stubTransport
	changes   chan bool
}

func newEngineFixture(t *testing.T, mutate func(cfg *Config)) *engineFixture {
	t.Helper()
	f := &engineFixture{
		device:    &stubDevice{},
		sink:      &recordingSink{},
		transport: newStubTransport(),
		changes:   make(chan bool, 8),
	}
	cfg := Config{
		APIKey: "test-key",
		OnConnectionChange: func(connected bool) {
			f.changes <- connected
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	engine.newCaptureDevice = func() (CaptureDevice, error) { return f.device, nil }
	engine.newPlaybackSink = func() (PlaybackSink, error) { return f.sink, nil }
	engine.dial = func(context.Context, TransportConfig) (sessionTransport, error) {
		return f.transport, nil
	}
	f.engine = engine
	return f
}

func (f *engineFixture) waitChange(t *testing.T, want bool) {
	t.Helper()
	select {
	case got := <-f.changes:
		if got != want {
			t.Fatalf("connection change = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for connection change %v", want)
	}
}

func (f *engineFixture) expectNoChange(t *testing.T) {
	t.Helper()
	select {
	case got := <-f.changes:
		t.Fatalf("unexpected connection change %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEngineConnectDisconnect(t *testing.T) {
	f := newEngineFixture(t, nil)

	if err := f.engine.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	f.waitChange(t, true)
	if !f.engine.IsConnected() {
		t.Fatal("IsConnected = false after Connect")
	}
	if !f.device.started {
		t.Fatal("capture device was not started")
	}

	f.engine.Disconnect()
	f.waitChange(t, false)
	if f.engine.IsConnected() {
		t.Fatal("IsConnected = true after Disconnect")
	}
	if f.device.stopCount() == 0 {
		t.Fatal("capture device was not stopped")
	}
	if f.sink.closes == 0 {
		t.Fatal("playback sink was not closed")
	}

	// A second Disconnect is a no-op: no second notification.
	f.engine.Disconnect()
	f.expectNoChange(t)
}

func TestEngineRejectsConcurrentSession(t *testing.T) {
	f := newEngineFixture(t, nil)
	if err := f.engine.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	f.waitChange(t, true)

	err := f.engine.Connect(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error connecting while a session is active")
	}
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrInvalidRequest {
		t.Fatalf("error = %v, want invalid request", err)
	}

	f.engine.Disconnect()
	f.waitChange(t, false)
}

func TestEngineDialFailureRollsBack(t *testing.T) {
	f := newEngineFixture(t, nil)
	dialErr := core.NewConnectionError("refused")
	f.engine.dial = func(context.Context, TransportConfig) (sessionTransport, error) {
		return nil, dialErr
	}

	if err := f.engine.Connect(context.Background(), nil); err == nil {
		t.Fatal("expected Connect to fail")
	}
	if f.device.stopCount() == 0 {
		t.Fatal("microphone not released after failed handshake")
	}
	if f.engine.IsConnected() {
		t.Fatal("IsConnected = true after failed Connect")
	}
	if f.engine.Err() == nil {
		t.Fatal("Err = nil after failed Connect")
	}
	f.expectNoChange(t)

	// The failure leaves no residue: a retry succeeds and clears the error.
	f.engine.dial = func(context.Context, TransportConfig) (sessionTransport, error) {
		return f.transport, nil
	}
	if err := f.engine.Connect(context.Background(), nil); err != nil {
		t.Fatalf("retry Connect: %v", err)
	}
	f.waitChange(t, true)
	if err := f.engine.Err(); err != nil {
		t.Fatalf("Err after successful retry = %v, want nil", err)
	}
	f.engine.Disconnect()
	f.waitChange(t, false)
}

func TestEngineSinkFailureRollsBack(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.engine.newPlaybackSink = func() (PlaybackSink, error) {
		return nil, errors.New("output device busy")
	}

	err := f.engine.Connect(context.Background(), nil)
	if err == nil {
		t.Fatal("expected Connect to fail")
	}
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrAcquisition {
		t.Fatalf("error = %v, want acquisition error", err)
	}
	if f.device.stopCount() == 0 {
		t.Fatal("microphone not released after sink failure")
	}
	f.transport.mu.Lock()
	closes := f.transport.closes
	f.transport.mu.Unlock()
	if closes == 0 {
		t.Fatal("transport not closed after sink failure")
	}
	f.expectNoChange(t)
}

func TestEngineTranscriptAssembly(t *testing.T) {
	builder := &TranscriptBuilder{}
	sealed := make(chan []TranscriptMessage, 4)
	f := newEngineFixture(t, func(cfg *Config) {
		cfg.OnTranscript = func(text string, role Role, final bool) {
			if msgs := builder.Add(text, role, final); len(msgs) > 0 {
				sealed <- msgs
			}
		}
	})

	if err := f.engine.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	f.waitChange(t, true)

	// Fragments accumulate per role until the turn completes.
	f.transport.push(TranscriptEvent{Role: RoleUser, Text: "Hi", Final: false})
	f.transport.push(TranscriptEvent{Role: RoleUser, Text: " there", Final: false})
	f.transport.push(TranscriptEvent{Role: RoleModel, Text: "Hello!", Final: false})
	f.transport.push(TurnCompleteEvent{})

	select {
	case msgs := <-sealed:
		if len(msgs) != 2 {
			t.Fatalf("sealed %d messages, want 2", len(msgs))
		}
		if msgs[0].Role != RoleUser || msgs[0].Text != "Hi there" {
			t.Fatalf("message 0 = %+v, want user %q", msgs[0], "Hi there")
		}
		if msgs[1].Role != RoleModel || msgs[1].Text != "Hello!" {
			t.Fatalf("message 1 = %+v, want model %q", msgs[1], "Hello!")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sealed transcript")
	}

	f.engine.Disconnect()
	f.waitChange(t, false)
}

func TestEngineAudioReachesSink(t *testing.T) {
	f := newEngineFixture(t, nil)
	if err := f.engine.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	f.waitChange(t, true)

	f.transport.push(AudioChunkEvent{Data: make([]byte, 4800)})

	deadline := time.Now().Add(2 * time.Second)
	for f.sink.writeCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("inbound audio never reached the sink")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.engine.Disconnect()
	f.waitChange(t, false)
}

func TestEngineInterruptFlushesPlayback(t *testing.T) {
	f := newEngineFixture(t, nil)
	if err := f.engine.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	f.waitChange(t, true)

	f.transport.push(AudioChunkEvent{Data: make([]byte, 4800)})
	f.transport.push(InterruptedEvent{})

	deadline := time.Now().Add(2 * time.Second)
	for {
		f.sink.mu.Lock()
		flushes := f.sink.flushes
		f.sink.mu.Unlock()
		if flushes > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("barge-in never flushed the sink")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.engine.Disconnect()
	f.waitChange(t, false)
}

func TestEngineRemoteClose(t *testing.T) {
	f := newEngineFixture(t, nil)
	if err := f.engine.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	f.waitChange(t, true)

	f.transport.push(ClosedEvent{})
	f.transport.endSession()
	f.waitChange(t, false)
	if f.engine.IsConnected() {
		t.Fatal("IsConnected = true after remote close")
	}
	if err := f.engine.Err(); err != nil {
		t.Fatalf("Err after clean remote close = %v, want nil", err)
	}

	// Disconnect after the remote already closed: no second notification.
	f.engine.Disconnect()
	f.expectNoChange(t)
}

func TestEngineTransportError(t *testing.T) {
	f := newEngineFixture(t, nil)
	if err := f.engine.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	f.waitChange(t, true)

	f.transport.push(ErrorEvent{Message: "connection reset"})
	f.transport.push(ClosedEvent{})
	f.transport.endSession()
	f.waitChange(t, false)

	err := f.engine.Err()
	if err == nil {
		t.Fatal("Err = nil after transport error")
	}
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrTransport {
		t.Fatalf("error = %v, want transport error", err)
	}
}

func TestEngineSendText(t *testing.T) {
	f := newEngineFixture(t, nil)

	if err := f.engine.SendText("too early"); err == nil {
		t.Fatal("expected error sending before Connect")
	}

	if err := f.engine.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	f.waitChange(t, true)
	if err := f.engine.SendText("hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	f.transport.mu.Lock()
	texts := append([]string(nil), f.transport.texts...)
	f.transport.mu.Unlock()
	if len(texts) != 1 || texts[0] != "hello" {
		t.Fatalf("sent texts = %v, want [hello]", texts)
	}

	f.engine.Disconnect()
	f.waitChange(t, false)
	if err := f.engine.SendText("too late"); err == nil {
		t.Fatal("expected error sending after Disconnect")
	}
}

func TestEngineMetersZeroBeforeAudio(t *testing.T) {
	f := newEngineFixture(t, nil)
	for _, b := range f.engine.InputLevels().Levels() {
		if b != 0 {
			t.Fatal("input meter not zeroed before any audio")
		}
	}
	for _, b := range f.engine.OutputLevels().Levels() {
		if b != 0 {
			t.Fatal("output meter not zeroed before any audio")
		}
	}
	if f.engine.Volume() != 0 {
		t.Fatal("Volume not zero before any audio")
	}
}

func TestEngineConnectAbortedByDisconnect(t *testing.T) {
	f := newEngineFixture(t, nil)
	dialEntered := make(chan struct{})
	release := make(chan struct{})
	f.engine.dial = func(ctx context.Context, _ TransportConfig) (sessionTransport, error) {
		close(dialEntered)
		select {
		case <-release:
			return f.transport, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	done := make(chan error, 1)
	go func() { done <- f.engine.Connect(context.Background(), nil) }()

	<-dialEntered
	f.engine.Disconnect()
	close(release)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected aborted Connect to fail")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after Disconnect")
	}
	if f.engine.IsConnected() {
		t.Fatal("IsConnected = true after aborted Connect")
	}
	if f.device.stopCount() == 0 {
		t.Fatal("microphone not released after aborted Connect")
	}
	f.expectNoChange(t)
}

func TestEngineConfigValidation(t *testing.T) {
	if _, err := NewEngine(Config{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
	if _, err := NewEngine(Config{APIKey: "k", Voice: "Nonexistent"}); err == nil {
		t.Fatal("expected error for unknown voice")
	}

	engine, err := NewEngine(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if engine.cfg.Model != DefaultModel {
		t.Errorf("default model = %q, want %q", engine.cfg.Model, DefaultModel)
	}
	if engine.cfg.Voice != VoicePuck {
		t.Errorf("default voice = %q, want %q", engine.cfg.Voice, VoicePuck)
	}
	if engine.cfg.FrameInterval != DefaultFrameInterval {
		t.Errorf("default frame interval = %v, want %v", engine.cfg.FrameInterval, DefaultFrameInterval)
	}
}
