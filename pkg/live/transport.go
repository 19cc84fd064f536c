package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nova-labs/nova-live/pkg/core"
	"github.com/nova-labs/nova-live/pkg/live/protocol"
)

const (
	defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/" +
		"google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultConnectTimeout = 15 * time.Second

	// eventBufferSize bounds the inbound event channel. The read loop
	// drops events rather than deadlocking if the consumer stops.
	eventBufferSize = 256
)

// TransportError wraps a websocket-level failure with the operation and URL
// it occurred on.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TransportConfig configures one remote realtime session.
type TransportConfig struct {
	Endpoint          string
	APIKey            string
	Model             string
	Voice             Voice
	SystemInstruction string
	ConnectTimeout    time.Duration
	Logger            *slog.Logger
}

// Transport owns the single multiplexed websocket to the remote realtime
// endpoint: setup handshake, outbound audio/image/text frames, and inbound
// event demultiplexing.
//
// Sends are serialized by a write mutex; the read loop runs on its own
// goroutine and fans events out through a buffered channel. Close is
// idempotent.
type Transport struct {
	conn   *websocket.Conn
	logger *slog.Logger

	events chan Event
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// Dial opens a realtime session: websocket dial, setup frame, setupComplete
// ack. On any failure the caller holds nothing; partial state is torn down
// here.
func Dial(ctx context.Context, cfg TransportConfig) (*Transport, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, core.NewInvalidRequestError("api key must not be empty")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, core.NewInvalidRequestError("model must not be empty")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	wsURL, err := endpointURL(cfg.Endpoint, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, &TransportError{Op: "GET", URL: cfg.Endpoint, Err: fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)}
		}
		return nil, &TransportError{Op: "GET", URL: cfg.Endpoint, Err: err}
	}

	setup := protocol.SetupMessage{
		Setup: &protocol.Setup{
			Model: cfg.Model,
			GenerationConfig: &protocol.GenerationConfig{
				ResponseModalities: []string{protocol.ModalityAudio},
				SpeechConfig: &protocol.SpeechConfig{
					VoiceConfig: &protocol.VoiceConfig{
						PrebuiltVoiceConfig: &protocol.PrebuiltVoiceConfig{VoiceName: string(cfg.Voice)},
					},
				},
			},
			InputAudioTranscription:  &protocol.AudioTranscriptionConfig{},
			OutputAudioTranscription: &protocol.AudioTranscriptionConfig{},
		},
	}
	if strings.TrimSpace(cfg.SystemInstruction) != "" {
		setup.Setup.SystemInstruction = &protocol.Content{
			Parts: []protocol.Part{{Text: cfg.SystemInstruction}},
		}
	}

	if err := conn.WriteJSON(setup); err != nil {
		_ = conn.Close()
		return nil, core.NewConnectionError("send setup: " + err.Error())
	}

	_ = conn.SetReadDeadline(time.Now().Add(cfg.ConnectTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, core.NewConnectionError("read setup ack: " + err.Error())
	}
	_ = conn.SetReadDeadline(time.Time{})

	var first protocol.ServerMessage
	if err := json.Unmarshal(payload, &first); err != nil {
		_ = conn.Close()
		return nil, core.NewConnectionError("decode setup ack: " + err.Error())
	}
	if first.SetupComplete == nil {
		_ = conn.Close()
		return nil, core.NewConnectionError("remote endpoint rejected session configuration")
	}

	t := &Transport{
		conn:   conn,
		logger: logger,
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}
	t.emit(OpenedEvent{})
	go t.readLoop()
	return t, nil
}

// Events yields inbound session events. The channel closes after the
// terminal ClosedEvent.
func (t *Transport) Events() <-chan Event {
	if t == nil {
		return nil
	}
	return t.events
}

// SendAudio enqueues one base64 PCM16 mono 16 kHz chunk. Fire and forget.
func (t *Transport) SendAudio(data string) error {
	return t.sendJSON(protocol.RealtimeInputMessage{
		RealtimeInput: &protocol.RealtimeInput{
			MediaChunks: []protocol.Blob{{MIMEType: protocol.MIMEPCM16k, Data: data}},
		},
	})
}

// SendImage enqueues one base64 JPEG context frame. Fire and forget; frames
// carry no ordering guarantee.
func (t *Transport) SendImage(data string) error {
	return t.sendJSON(protocol.RealtimeInputMessage{
		RealtimeInput: &protocol.RealtimeInput{
			MediaChunks: []protocol.Blob{{MIMEType: protocol.MIMEJPEG, Data: data}},
		},
	})
}

// SendText submits a text turn and marks it complete, signaling the remote
// service that a full user utterance was submitted.
func (t *Transport) SendText(text string) error {
	return t.sendJSON(protocol.ClientContentMessage{
		ClientContent: &protocol.ClientContent{
			Turns: []protocol.Content{{
				Role:  string(RoleUser),
				Parts: []protocol.Part{{Text: text}},
			}},
			TurnComplete: true,
		},
	})
}

func (t *Transport) sendJSON(v any) error {
	if t == nil {
		return core.NewInvalidRequestError("transport must not be nil")
	}
	if t.closed.Load() {
		return core.NewInvalidRequestError("session is closed")
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(v)
}

// Close closes the session. Idempotent: closing an already-closed transport
// is a no-op, never an error. Blocks until the read loop drains.
func (t *Transport) Close() error {
	if t == nil {
		return nil
	}
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		t.writeMu.Unlock()
		_ = t.conn.Close()
	})
	<-t.done
	return nil
}

// Err returns the terminal session error, if any. Blocks until the session
// ends.
func (t *Transport) Err() error {
	if t == nil {
		return nil
	}
	<-t.done
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *Transport) setErr(err error) {
	if err == nil {
		return
	}
	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *Transport) readLoop() {
	defer close(t.done)
	defer close(t.events)

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if !t.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.setErr(core.NewTransportError(err.Error()))
				t.emit(ErrorEvent{Message: err.Error()})
			}
			t.emit(ClosedEvent{})
			return
		}

		var msg protocol.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			frameErr := core.NewTransportError("decode server frame: " + err.Error())
			t.setErr(frameErr)
			t.emit(ErrorEvent{Message: frameErr.Message})
			t.emit(ClosedEvent{})
			return
		}
		t.dispatch(&msg)
	}
}

// dispatch fans one server frame out as events, preserving the order the
// service produced them in.
func (t *Transport) dispatch(msg *protocol.ServerMessage) {
	content := msg.ServerContent
	if content == nil {
		if msg.GoAway != nil {
			t.logger.Warn("session going away", "time_left", msg.GoAway.TimeLeft)
		}
		return
	}

	if tr := content.OutputTranscription; tr != nil && tr.Text != "" {
		t.emit(TranscriptEvent{Role: RoleModel, Text: tr.Text, Final: tr.Finished})
	}
	if tr := content.InputTranscription; tr != nil && tr.Text != "" {
		t.emit(TranscriptEvent{Role: RoleUser, Text: tr.Text, Final: tr.Finished})
	}

	if blob, ok := content.AudioData(); ok {
		raw, err := base64.StdEncoding.DecodeString(blob.Data)
		if err != nil {
			// Malformed chunk: drop it and keep the session alive.
			t.logger.Warn("dropping undecodable audio chunk", "error", err)
		} else {
			t.emit(AudioChunkEvent{Data: raw})
		}
	}

	if content.Interrupted {
		t.emit(InterruptedEvent{})
	}
	if content.TurnComplete {
		t.emit(TurnCompleteEvent{})
	}
}

func (t *Transport) emit(event Event) {
	if event == nil {
		return
	}
	select {
	case t.events <- event:
		return
	default:
	}

	// Buffer full: the consumer stalled. Audio and transcript events are
	// droppable, but interruption and close carry session semantics and
	// must get through. The read loop is the only sender, so freeing one
	// slot guarantees the retry lands.
	switch event.(type) {
	case InterruptedEvent, ClosedEvent:
		select {
		case <-t.events:
		default:
		}
		select {
		case t.events <- event:
		default:
		}
	default:
		// Drop rather than deadlock the read loop.
	}
}

func endpointURL(endpoint, apiKey string) (string, error) {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", core.NewInvalidRequestError("invalid endpoint URL")
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already websocket scheme.
	default:
		return "", core.NewInvalidRequestError("endpoint must use http(s) or ws(s)")
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
