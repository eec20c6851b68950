package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/lessdetail/internal/gpu"
	"github.com/gogpu/lessdetail/internal/params"
	"github.com/gogpu/lessdetail/internal/stage"
	"github.com/gogpu/lessdetail/internal/texture"
)

func acceptAll(string) ([]byte, error) { return []byte{0x03, 0x02, 0x23, 0x07}, nil }

// displayOnly rejects every module except the display program.
func displayOnly(src string) ([]byte, error) {
	if strings.Contains(src, "1.0 - frag.texCoord.y") {
		return acceptAll(src)
	}
	return nil, errors.New("unsupported")
}

type fixture struct {
	dev *gpu.Device
	res *texture.Manager
	p   *Pipeline
}

func newFixture(t *testing.T, compiler gpu.Compiler) *fixture {
	t.Helper()
	dev, err := gpu.NewDevice(gpu.DeviceConfig{Workers: 4, Compiler: compiler})
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	t.Cleanup(func() { _ = dev.Close() })
	res := texture.NewManager(dev, 1024)
	return &fixture{dev: dev, res: res, p: New(dev, res)}
}

// scene is a dark disc on a light gradient: enough structure for edges.
func scene(size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	c := size / 2
	for y := range size {
		for x := range size {
			v := uint8(150 + x*100/size)
			col := color.NRGBA{R: v, G: v, B: 220, A: 255}
			if dx, dy := x-c, y-c; dx*dx+dy*dy < size*size/9 {
				col = color.NRGBA{R: 40, G: 20, B: 10, A: 255}
			}
			img.SetNRGBA(x, y, col)
		}
	}
	return img
}

func (fx *fixture) source(t *testing.T, img *image.NRGBA) *gpu.Texture {
	t.Helper()
	if err := fx.res.UploadImage(texture.ImageSource(img)); err != nil {
		t.Fatal(err)
	}
	tex, err := fx.res.WorkingTexture(texture.SlotImage)
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bounds()
	if _, err := fx.dev.ResizeCanvas(b.Dx(), b.Dy()); err != nil {
		t.Fatal(err)
	}
	return tex
}

func (fx *fixture) read(t *testing.T, tex *gpu.Texture) *image.NRGBA {
	t.Helper()
	img, err := fx.dev.ReadPixels(tex)
	if err != nil {
		t.Fatalf("ReadPixels() error = %v", err)
	}
	return img
}

func TestPassthroughMatchesSource(t *testing.T) {
	fx := newFixture(t, acceptAll)
	img := scene(32)
	src := fx.source(t, img)

	out, err := fx.p.RunPassthrough(src)
	if err != nil {
		t.Fatalf("RunPassthrough() error = %v", err)
	}
	if out != fx.dev.Canvas() {
		t.Fatal("RunPassthrough() should draw to the canvas")
	}
	if got := fx.read(t, out); !bytes.Equal(got.Pix, img.Pix) {
		t.Error("passthrough output differs from source")
	}
}

func TestStylizedDiffersFromSource(t *testing.T) {
	fx := newFixture(t, acceptAll)
	img := scene(32)
	src := fx.source(t, img)

	c := params.DefaultConstants()
	c.BFNE, c.BFNA = 2, 3

	out, err := fx.p.RunStylized(src, c)
	if err != nil {
		t.Fatalf("RunStylized() error = %v", err)
	}
	got := fx.read(t, out)
	if bytes.Equal(got.Pix, img.Pix) {
		t.Error("stylized output equals source")
	}
	for i := 3; i < len(got.Pix); i += 4 {
		if got.Pix[i] != 255 {
			t.Fatalf("alpha at byte %d = %d, want 255", i, got.Pix[i])
		}
	}
	if !fx.dev.State().IsClear() {
		t.Errorf("device bindings not reset: %+v", fx.dev.State())
	}
}

func TestStylizedIsDeterministic(t *testing.T) {
	fx := newFixture(t, acceptAll)
	src := fx.source(t, scene(24))
	c := params.DefaultConstants()

	first, err := fx.p.RunStylized(src, c)
	if err != nil {
		t.Fatal(err)
	}
	a := fx.read(t, first)

	second, err := fx.p.RunStylized(src, c)
	if err != nil {
		t.Fatal(err)
	}
	if b := fx.read(t, second); !bytes.Equal(a.Pix, b.Pix) {
		t.Error("identical runs produced different output")
	}
}

func TestStylizedDegradesToPassthrough(t *testing.T) {
	fx := newFixture(t, displayOnly)
	img := scene(16)
	src := fx.source(t, img)

	out, err := fx.p.RunStylized(src, params.DefaultConstants())
	if err != nil {
		t.Fatalf("RunStylized() error = %v", err)
	}
	if got := fx.read(t, out); !bytes.Equal(got.Pix, img.Pix) {
		t.Error("with every effect disabled the output should equal the source")
	}
	degraded := 0
	for _, s := range fx.p.Passes() {
		if s.State() == stage.StateDegraded {
			degraded++
		}
	}
	if degraded == 0 {
		t.Error("no pass reported degraded state")
	}
}

func TestRunWithoutInput(t *testing.T) {
	fx := newFixture(t, acceptAll)
	if _, err := fx.p.RunStylized(nil, params.DefaultConstants()); !errors.Is(err, ErrNoInput) {
		t.Errorf("RunStylized(nil) error = %v, want ErrNoInput", err)
	}
	if _, err := fx.p.RunPassthrough(nil); !errors.Is(err, ErrNoInput) {
		t.Errorf("RunPassthrough(nil) error = %v, want ErrNoInput", err)
	}
}

// drawRecorder is a slog handler collecting the program of every draw.
type drawRecorder struct {
	mu       sync.Mutex
	programs []string
}

func (r *drawRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *drawRecorder) Handle(_ context.Context, rec slog.Record) error {
	if rec.Message != "gpu: draw" {
		return nil
	}
	rec.Attrs(func(a slog.Attr) bool {
		if a.Key != "program" {
			return true
		}
		r.mu.Lock()
		r.programs = append(r.programs, a.Value.String())
		r.mu.Unlock()
		return false
	})
	return nil
}

func (r *drawRecorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *drawRecorder) WithGroup(string) slog.Handler      { return r }

func recordDraws(t *testing.T) *drawRecorder {
	t.Helper()
	rec := &drawRecorder{}
	gpu.SetLogger(slog.New(rec))
	t.Cleanup(func() { gpu.SetLogger(nil) })
	return rec
}

// stylizedDraws is the expected draw sequence for the given bilateral
// iteration counts: two draws per iteration.
func stylizedDraws(bfne, bfna int) []string {
	seq := []string{"rgb2lab", "sst", "gauss", "gauss", "tfm"}
	for range 2 * (bfne + bfna) {
		seq = append(seq, "bilateral")
	}
	return append(seq, "fdog0", "fdog1",
		"color_quantization", "gauss3x3", "lab2rgb",
		"mix", "gauss3x3", "display")
}

func TestStylizedDrawSequence(t *testing.T) {
	store := params.NewStore(params.DefaultConstants())
	if _, err := store.SetIntensity(0.5); err != nil {
		t.Fatal(err)
	}
	half := store.Constants()
	if half.BFNE != 7 || half.BFNA != 7 {
		t.Fatalf("intensity 0.5 gives BFNE=%d BFNA=%d, want 7 and 7", half.BFNE, half.BFNA)
	}
	noAbstraction := half
	noAbstraction.BFNA = 0

	tests := []struct {
		name      string
		c         params.Constants
		wantDraws int
	}{
		{"intensity 0.5", half, 41},
		{"abstraction bypassed", noAbstraction, 27},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, acceptAll)
			src := fx.source(t, scene(32))
			rec := recordDraws(t)

			before := fx.dev.Stats().Draws
			if _, err := fx.p.RunStylized(src, tt.c); err != nil {
				t.Fatalf("RunStylized() error = %v", err)
			}
			if got := fx.dev.Stats().Draws - before; got != uint64(tt.wantDraws) {
				t.Errorf("draws = %d, want %d", got, tt.wantDraws)
			}

			want := stylizedDraws(tt.c.BFNE, tt.c.BFNA)
			if len(want) != tt.wantDraws {
				t.Fatalf("expected sequence has %d draws, want %d", len(want), tt.wantDraws)
			}
			rec.mu.Lock()
			defer rec.mu.Unlock()
			if !slices.Equal(rec.programs, want) {
				t.Errorf("draw order = %v, want %v", rec.programs, want)
			}
			for _, p := range fx.p.Passes() {
				if p.State() == stage.StateDegraded {
					t.Errorf("pass %s degraded", p.Kind().Name())
				}
			}
		})
	}
}
