package cli

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/gogpu/lessdetail"
	"github.com/gogpu/lessdetail/surface"
)

// videoOpts holds the command-line flags for the video command.
type videoOpts struct {
	output    string  // output .gif, or a directory for PNG frames
	intensity float64 // 0 disables the effect
	realtime  bool    // honour the GIF frame delays
	noop      bool    // draw frames unchanged
}

func (c *CLI) videoCommand() *cobra.Command {
	opts := videoOpts{intensity: 0.5}

	cmd := &cobra.Command{
		Use:   "video [file.gif]",
		Short: "Stylize an animated GIF frame by frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runVideo(cmd, args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", "", "output .gif file or frame directory")
	flags.Float64VarP(&opts.intensity, "intensity", "i", opts.intensity, "effect intensity in [0, 1]")
	flags.BoolVar(&opts.realtime, "realtime", false, "play frames at their recorded delays")
	flags.BoolVar(&opts.noop, "no-op", false, "copy frames without the effect")

	return cmd
}

func (c *CLI) runVideo(cmd *cobra.Command, path string, opts videoOpts) error {
	s, err := c.loadSettings(cmd, opts.intensity)
	if err != nil {
		return err
	}
	if opts.noop {
		s.videoIntensity = 0
	}

	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	anim, err := gif.DecodeAll(fh)
	fh.Close()
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	src, err := newGIFSource(anim, opts.realtime)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	f, err := c.newFilter(s)
	if err != nil {
		return err
	}
	defer f.Close()

	w, h := src.Size()
	dst := newRecordingSurface(w, h)
	defer dst.Close()

	start := time.Now()
	loop := f.NewVideoLoop(src, dst)
	c.Logger.Info("playing", "file", path, "frames", len(anim.Image), "session", loop.ID())
	if err := loop.Start(cmd.Context()); err != nil {
		return err
	}

	if err := awaitPlayback(cmd.Context(), src.Done(), loop); err != nil {
		return err
	}

	drawn, skipped := loop.Frames()
	c.Logger.Info("played", "drawn", drawn, "skipped", skipped, "elapsed", time.Since(start).Round(time.Millisecond))

	out := opts.output
	if out == "" {
		out = outputPath(path, "", ".gif")
	}
	return writeFrames(out, dst.Frames(), anim.Delay)
}

// awaitPlayback blocks until the source has delivered its last frame or
// ctx is cancelled, in which case the loop is stopped.
func awaitPlayback(ctx context.Context, done <-chan struct{}, loop *lessdetail.VideoLoop) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		loop.Stop()
		return ctx.Err()
	}
}

// gifSource plays decoded GIF frames as a lessdetail.VideoSource. Each
// registration fires on a timer after the current frame's delay.
type gifSource struct {
	frames   []*image.NRGBA
	delays   []time.Duration
	realtime bool

	mu      sync.Mutex
	current int
	next    lessdetail.FrameHandle
	timers  map[lessdetail.FrameHandle]*time.Timer
	done    chan struct{}
}

// newGIFSource composites the frames of anim onto full-size canvases.
func newGIFSource(anim *gif.GIF, realtime bool) (*gifSource, error) {
	if len(anim.Image) == 0 {
		return nil, errors.New("gif has no frames")
	}

	bounds := image.Rect(0, 0, anim.Config.Width, anim.Config.Height)
	if bounds.Empty() {
		bounds = anim.Image[0].Bounds()
	}

	s := &gifSource{
		realtime: realtime,
		current:  -1,
		timers:   make(map[lessdetail.FrameHandle]*time.Timer),
		done:     make(chan struct{}),
	}

	canvas := image.NewNRGBA(bounds)
	for i, frame := range anim.Image {
		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		s.frames = append(s.frames, imaging.Clone(canvas))

		var delay time.Duration
		if i < len(anim.Delay) {
			delay = time.Duration(anim.Delay[i]) * 10 * time.Millisecond
		}
		s.delays = append(s.delays, delay)

		if i < len(anim.Disposal) && anim.Disposal[i] == gif.DisposalBackground {
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		}
	}
	return s, nil
}

func (s *gifSource) Size() (int, int) {
	b := s.frames[0].Bounds()
	return b.Dx(), b.Dy()
}

func (s *gifSource) Pixels() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < 0 {
		return nil, errors.New("no frame decoded yet")
	}
	return s.frames[s.current], nil
}

func (s *gifSource) Paused() bool { return false }

func (s *gifSource) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current >= len(s.frames)-1
}

// RequestFrame advances to the next frame once its delay has passed.
func (s *gifSource) RequestFrame(fn func()) lessdetail.FrameHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	var delay time.Duration
	if s.realtime && s.current >= 0 {
		delay = s.delays[s.current]
	}

	s.next++
	h := s.next
	s.timers[h] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if _, ok := s.timers[h]; !ok {
			s.mu.Unlock()
			return
		}
		delete(s.timers, h)
		if s.current < len(s.frames)-1 {
			s.current++
		}
		last := s.current == len(s.frames)-1
		s.mu.Unlock()

		fn()
		if last {
			close(s.done)
		}
	})
	return h
}

func (s *gifSource) CancelFrame(h lessdetail.FrameHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[h]; ok {
		t.Stop()
		delete(s.timers, h)
	}
}

// Done is closed after the last frame has been handed out and drawn.
func (s *gifSource) Done() <-chan struct{} { return s.done }

// recordingSurface keeps a snapshot of every flushed frame.
type recordingSurface struct {
	*surface.ImageSurface

	mu     sync.Mutex
	frames []*image.RGBA
}

func newRecordingSurface(w, h int) *recordingSurface {
	return &recordingSurface{ImageSurface: surface.NewImageSurface(w, h)}
}

func (r *recordingSurface) Flush() error {
	if err := r.ImageSurface.Flush(); err != nil {
		return err
	}
	r.mu.Lock()
	r.frames = append(r.frames, r.Snapshot())
	r.mu.Unlock()
	return nil
}

// Frames returns the recorded frames in draw order.
func (r *recordingSurface) Frames() []*image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// writeFrames writes an animated GIF, or numbered PNGs when out is not a
// .gif path.
func writeFrames(out string, frames []*image.RGBA, delays []int) error {
	if len(frames) == 0 {
		return errors.New("no frames were drawn")
	}

	if !strings.EqualFold(filepath.Ext(out), ".gif") {
		if err := os.MkdirAll(out, 0o755); err != nil {
			return err
		}
		for i, frame := range frames {
			if err := imaging.Save(frame, filepath.Join(out, fmt.Sprintf("frame_%04d.png", i))); err != nil {
				return err
			}
		}
		return nil
	}

	anim := &gif.GIF{}
	for i, frame := range frames {
		p := image.NewPaletted(frame.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(p, frame.Bounds(), frame, image.Point{})
		anim.Image = append(anim.Image, p)
		delay := 0
		if i < len(delays) {
			delay = delays[i]
		}
		anim.Delay = append(anim.Delay, delay)
	}

	fh, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := gif.EncodeAll(fh, anim); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}
