package lessdetail

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/lessdetail/surface"
)

// FrameHandle identifies a pending frame registration.
type FrameHandle uint64

// VideoSource is a Source that produces frames over time.
//
// RequestFrame registers fn to be called once when the next frame is ready.
// CancelFrame drops a registration that has not fired yet; cancelling a
// fired or unknown handle must be harmless. The loop never holds its own
// lock while calling either method, so fn may run synchronously from
// RequestFrame, although each such frame then nests one call deeper.
type VideoSource interface {
	Source
	Paused() bool
	Ended() bool
	RequestFrame(fn func()) FrameHandle
	CancelFrame(h FrameHandle)
}

// VideoLoop draws each new frame of a video into a surface until the video
// pauses or ends, the loop is stopped, or its context is cancelled.
//
// A loop holds at most one frame registration, and re-registers only after
// the previous frame has been drawn, so frames never overlap.
type VideoLoop struct {
	f     *Filter
	video VideoSource
	dst   surface.Surface
	id    uuid.UUID

	mu      sync.Mutex
	running bool
	run     uint64
	seq     uint64 // current registration
	pending bool   // registration seq has not fired
	known   bool   // handle belongs to registration seq
	handle  FrameHandle
	cancel  context.CancelFunc
	frames  uint64
	skipped uint64
}

// NewVideoLoop creates a stopped loop drawing video into dst.
func (f *Filter) NewVideoLoop(video VideoSource, dst surface.Surface) *VideoLoop {
	return &VideoLoop{f: f, video: video, dst: dst, id: uuid.New()}
}

// ID returns the loop's session id, attached to every log record.
func (l *VideoLoop) ID() uuid.UUID { return l.id }

// Start registers for the next frame. Starting a running loop is a no-op.
// Cancelling ctx stops the loop.
func (l *VideoLoop) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	l.running = true
	l.run++
	l.cancel = cancel
	run := l.run
	l.mu.Unlock()

	Logger().Info("lessdetail: video loop started", slog.String("session", l.id.String()))

	go func() {
		<-ctx.Done()
		l.stopRun(run, "context done")
	}()
	l.register(run)
	return nil
}

// register asks the source for the next frame of run. A registration that
// returns after run was stopped is cancelled at once.
func (l *VideoLoop) register(run uint64) {
	l.mu.Lock()
	if !l.running || l.run != run {
		l.mu.Unlock()
		return
	}
	l.seq++
	seq := l.seq
	l.pending = true
	l.known = false
	l.mu.Unlock()

	h := l.video.RequestFrame(func() { l.onFrame(run, seq) })

	l.mu.Lock()
	switch {
	case l.running && l.run == run && l.seq == seq:
		if l.pending {
			l.handle = h
			l.known = true
		}
		l.mu.Unlock()
	case !l.running || l.run != run:
		l.mu.Unlock()
		l.video.CancelFrame(h)
	default:
		// fired synchronously and already re-registered
		l.mu.Unlock()
	}
}

// onFrame draws one frame and re-registers unless the video stopped.
func (l *VideoLoop) onFrame(run, seq uint64) {
	l.mu.Lock()
	if !l.running || l.run != run || l.seq != seq || !l.pending {
		l.mu.Unlock()
		return
	}
	l.pending = false
	l.known = false
	l.mu.Unlock()

	err := l.f.DrawFrame(l.video, l.dst)
	stop := errors.Is(err, ErrClosed) || l.video.Paused() || l.video.Ended()

	l.mu.Lock()
	if err != nil {
		l.skipped++
		Logger().Warn("lessdetail: video frame skipped",
			slog.String("session", l.id.String()), slog.Any("err", err))
	} else {
		l.frames++
	}
	live := l.running && l.run == run
	l.mu.Unlock()

	switch {
	case !live:
	case stop:
		l.stopRun(run, "video stopped")
	default:
		l.register(run)
	}
}

// Stop cancels the pending registration. Stop is idempotent.
func (l *VideoLoop) Stop() {
	l.mu.Lock()
	run := l.run
	l.mu.Unlock()
	l.stopRun(run, "stopped")
}

func (l *VideoLoop) stopRun(run uint64, reason string) {
	l.mu.Lock()
	if !l.running || l.run != run {
		l.mu.Unlock()
		return
	}
	l.running = false
	drop := l.pending && l.known
	h := l.handle
	l.pending = false
	l.known = false
	cancel := l.cancel
	l.cancel = nil
	frames := l.frames
	l.mu.Unlock()

	if drop {
		l.video.CancelFrame(h)
	}
	cancel()
	Logger().Info("lessdetail: video loop stopped",
		slog.String("session", l.id.String()),
		slog.String("reason", reason),
		slog.Uint64("frames", frames))
}

// Detach stops the loop and clears the surface.
func (l *VideoLoop) Detach() {
	l.Stop()
	l.f.Clear(l.dst)
}

// Running reports whether the loop is waiting for or drawing a frame.
func (l *VideoLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Frames returns the number of frames drawn and skipped so far.
func (l *VideoLoop) Frames() (drawn, skipped uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames, l.skipped
}
