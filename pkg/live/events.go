package live

// Role identifies which side of the conversation a transcript fragment
// belongs to.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Event is an inbound session event emitted by Transport.Events().
// Events for a single inbound turn are delivered in the order the remote
// service produced them; the transport never reorders or coalesces.
type Event interface {
	eventType() string
}

// OpenedEvent signals the remote session handshake completed.
type OpenedEvent struct{}

func (OpenedEvent) eventType() string { return "opened" }

// AudioChunkEvent carries one decoded inbound audio chunk: raw little-endian
// 16-bit PCM at the output sample rate.
type AudioChunkEvent struct {
	Data []byte
}

func (AudioChunkEvent) eventType() string { return "audio_chunk" }

// TranscriptEvent is an incremental transcript fragment for one side of the
// conversation. Final is set when the fragment seals the current message.
type TranscriptEvent struct {
	Role  Role
	Text  string
	Final bool
}

func (TranscriptEvent) eventType() string { return "transcript" }

// TurnCompleteEvent marks the end of one inbound model turn.
type TurnCompleteEvent struct{}

func (TurnCompleteEvent) eventType() string { return "turn_complete" }

// InterruptedEvent signals user barge-in: all pending playback must stop
// immediately.
type InterruptedEvent struct{}

func (InterruptedEvent) eventType() string { return "interrupted" }

// ClosedEvent is the terminal event on every session; emitted exactly once
// before the event channel closes.
type ClosedEvent struct{}

func (ClosedEvent) eventType() string { return "closed" }

// ErrorEvent carries a session-fatal transport error. A ClosedEvent follows.
type ErrorEvent struct {
	Message string
}

func (ErrorEvent) eventType() string { return "error" }
