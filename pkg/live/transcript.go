package live

import (
	"strings"
	"sync"
)

// TranscriptMessage is one sealed conversation message assembled from
// transcript fragments.
type TranscriptMessage struct {
	Role Role
	Text string
}

// TranscriptBuilder accumulates transcript fragments into messages on the
// host's behalf: fragments append while not final, and a final fragment (or
// the turn-complete signal the engine forwards as an empty final fragment)
// seals everything accumulated so far.
//
// Safe for concurrent use; the engine invokes the transcript callback from
// its event loop while hosts typically read from a render loop.
type TranscriptBuilder struct {
	mu      sync.Mutex
	user    strings.Builder
	model   strings.Builder
	history []TranscriptMessage
}

// Add feeds one fragment. When final is true the pending user text (if any)
// and the pending model text are sealed, user first, and the newly sealed
// messages are returned.
func (b *TranscriptBuilder) Add(text string, role Role, final bool) []TranscriptMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	if text != "" {
		switch role {
		case RoleUser:
			b.user.WriteString(text)
		case RoleModel:
			b.model.WriteString(text)
		}
	}
	if !final {
		return nil
	}

	var sealed []TranscriptMessage
	if b.user.Len() > 0 {
		sealed = append(sealed, TranscriptMessage{Role: RoleUser, Text: b.user.String()})
		b.user.Reset()
	}
	if b.model.Len() > 0 {
		sealed = append(sealed, TranscriptMessage{Role: RoleModel, Text: b.model.String()})
		b.model.Reset()
	}
	b.history = append(b.history, sealed...)
	return sealed
}

// Flush seals any in-progress text without a final fragment, as hosts do
// when the connection drops mid-turn.
func (b *TranscriptBuilder) Flush() []TranscriptMessage {
	return b.Add("", RoleModel, true)
}

// Messages returns all sealed messages so far.
func (b *TranscriptBuilder) Messages() []TranscriptMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]TranscriptMessage, len(b.history))
	copy(out, b.history)
	return out
}
