package live

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nova-labs/nova-live/pkg/audio"
	"github.com/nova-labs/nova-live/pkg/core"
)

// Clock is the playback scheduler's notion of time: a monotonic duration
// since the output context was created. Real sessions use the wall clock;
// tests substitute a manual one.
type Clock interface {
	Now() time.Duration
}

type wallClock struct {
	start time.Time
}

func newWallClock() *wallClock { return &wallClock{start: time.Now()} }

func (c *wallClock) Now() time.Duration { return time.Since(c.start) }

// PlaybackSink is the output device behind an interface: a gapless byte
// stream of little-endian 16-bit PCM at the output sample rate.
//
// Write appends audio to the tail of the stream. Flush discards everything
// buffered but not yet rendered, taking effect before the next frame is
// rendered. Close must be idempotent.
type PlaybackSink interface {
	Write(pcm []byte) error
	Flush()
	Close() error
}

const prunePeriod = 20 * time.Millisecond

// PlaybackScheduler renders inbound audio chunks on a gapless virtual
// timeline and supports immediate flush on interruption.
//
// Each decoded chunk is scheduled at max(now, cursor); the cursor then
// advances by the chunk's duration, so back-to-back chunks play with no gap
// and no overlap regardless of arrival jitter. An interruption stops every
// pending handle, clears the set, and resets the cursor to zero, so the
// next chunk after a barge-in starts at "now" rather than at the stale
// cursor.
type PlaybackScheduler struct {
	sink   PlaybackSink
	meter  *audio.LevelMeter
	clock  Clock
	logger *slog.Logger

	mu        sync.Mutex
	nextStart time.Duration
	pending   map[int64]*playbackHandle
	nextID    int64
	closed    bool

	stop     chan struct{}
	stopOnce sync.Once
}

// playbackHandle is one scheduled-but-not-finished chunk on the timeline.
type playbackHandle struct {
	id    int64
	start time.Duration
	end   time.Duration
}

// NewPlaybackScheduler creates a scheduler over the given sink, driven by
// the wall clock. The meter may be nil. A background loop retires handles
// whose playback window has passed.
func NewPlaybackScheduler(sink PlaybackSink, meter *audio.LevelMeter, logger *slog.Logger) *PlaybackScheduler {
	s := newPlaybackScheduler(sink, meter, newWallClock(), logger)
	go s.pruneLoop()
	return s
}

// newPlaybackScheduler is the clock-injectable constructor used by tests;
// it does not start the prune loop.
func newPlaybackScheduler(sink PlaybackSink, meter *audio.LevelMeter, clock Clock, logger *slog.Logger) *PlaybackScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybackScheduler{
		sink:    sink,
		meter:   meter,
		clock:   clock,
		logger:  logger,
		pending: make(map[int64]*playbackHandle),
		stop:    make(chan struct{}),
	}
}

// Play decodes one inbound chunk of raw little-endian PCM16 bytes, schedules
// it on the timeline, and hands it to the sink. A trailing partial sample is
// truncated; an empty chunk is a DecodeError and is dropped without touching
// the timeline.
func (s *PlaybackScheduler) Play(raw []byte) error {
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	buf := audio.DecodeAudioData(raw, OutputSampleRate, 1)
	if buf.NumFrames() == 0 {
		return core.NewDecodeError("empty audio chunk")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.NewInvalidRequestError("playback scheduler is closed")
	}
	now := s.clock.Now()
	s.retireFinishedLocked(now)

	start := now
	if s.nextStart > start {
		start = s.nextStart
	}
	s.nextID++
	handle := &playbackHandle{
		id:    s.nextID,
		start: start,
		end:   start + buf.Duration(),
	}
	s.pending[handle.id] = handle
	s.nextStart = handle.end
	s.mu.Unlock()

	if s.meter != nil {
		s.meter.Feed(buf.Data)
	}
	return s.sink.Write(raw)
}

// Interrupt stops every pending handle immediately, clears the set, and
// resets the timeline cursor to zero. Stopping an already-finished handle is
// a no-op, not an error.
func (s *PlaybackScheduler) Interrupt() {
	s.mu.Lock()
	clear(s.pending)
	s.nextStart = 0
	s.mu.Unlock()
	s.sink.Flush()
}

// Close interrupts pending playback and releases the output device.
// Idempotent.
func (s *PlaybackScheduler) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	clear(s.pending)
	s.nextStart = 0
	s.mu.Unlock()

	s.sink.Flush()
	return s.sink.Close()
}

// retireFinishedLocked removes handles whose playback window has fully
// passed; this is the completion callback in pull form.
func (s *PlaybackScheduler) retireFinishedLocked(now time.Duration) {
	for id, h := range s.pending {
		if h.end <= now {
			delete(s.pending, id)
		}
	}
}

func (s *PlaybackScheduler) pruneLoop() {
	ticker := time.NewTicker(prunePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.retireFinishedLocked(s.clock.Now())
			s.mu.Unlock()
		}
	}
}

// pendingCount reports the size of the pending playback set.
func (s *PlaybackScheduler) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// cursor reports the next-start-time cursor.
func (s *PlaybackScheduler) cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// lastScheduled reports the most recently scheduled handle's window.
func (s *PlaybackScheduler) lastScheduled() (start, end time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *playbackHandle
	for _, h := range s.pending {
		if last == nil || h.id > last.id {
			last = h
		}
	}
	if last == nil {
		return 0, 0, false
	}
	return last.start, last.end, true
}
