package hw

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// otoShared holds the process-wide oto context. The library allows a single
// context per process, so sessions share it and only the player is
// per-session.
var otoShared struct {
	once sync.Once
	ctx  *oto.Context
	rate int
	err  error
}

func otoContext(sampleRate int) (*oto.Context, error) {
	otoShared.once.Do(func() {
		opts := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			// Small buffer keeps barge-in latency low at the cost of
			// glitch headroom.
			BufferSize: 100 * time.Millisecond,
		}
		ctx, ready, err := oto.NewContext(opts)
		if err != nil {
			otoShared.err = err
			return
		}
		<-ready
		otoShared.ctx = ctx
		otoShared.rate = sampleRate
	})
	if otoShared.err != nil {
		return nil, otoShared.err
	}
	if otoShared.rate != sampleRate {
		return nil, fmt.Errorf("output context already initialized at %d Hz", otoShared.rate)
	}
	return otoShared.ctx, nil
}

// Speaker renders a gapless stream of little-endian 16-bit PCM through the
// default output device. Write appends to an internal buffer the player
// pulls from; Flush discards everything buffered and resets the player so
// stale audio never overlaps what follows.
type Speaker struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	player  *oto.Player
	playing bool
	closed  bool
}

// NewSpeaker opens the output device at the given sample rate.
func NewSpeaker(sampleRate int) (*Speaker, error) {
	ctx, err := otoContext(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	s := &Speaker{
		otoCtx: ctx,
		buf:    make([]byte, 0, sampleRate*4),
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Write appends PCM to the playback stream, starting the player on first
// write.
func (s *Speaker) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("speaker is closed")
	}
	s.buf = append(s.buf, pcm...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
	return nil
}

// Read implements io.Reader for the oto player, pulling buffered audio on
// the playback thread.
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		// Feed silence so oto drains gracefully.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Flush discards all pending audio and stops the current player so playback
// cuts immediately; the next Write starts fresh.
func (s *Speaker) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	if s.player == nil || !s.playing {
		s.mu.Unlock()
		return
	}
	player := s.player
	s.player = nil
	s.playing = false
	s.mu.Unlock()

	// Pause stops audio now; Reset drops oto's internal buffer so old
	// audio cannot overlap the next turn.
	player.Pause()
	player.Reset()
	_ = player.Close()
}

// Close releases the player. The shared output context stays alive for the
// next session. Idempotent.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	player := s.player
	s.player = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	if player != nil {
		_ = player.Close()
	}
	return nil
}
