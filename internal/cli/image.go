package cli

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/lessdetail"
	"github.com/gogpu/lessdetail/surface"
)

// imageOpts holds the command-line flags for the image command.
type imageOpts struct {
	output    string  // output file, single input only
	outDir    string  // output directory for derived names
	intensity float64 // 0 disables the effect
	width     int     // surface width, 0 keeps the natural width
	height    int     // surface height, 0 keeps the natural height
	backend   string  // surface backend name
}

func (c *CLI) imageCommand() *cobra.Command {
	opts := imageOpts{intensity: 0.5, backend: "image"}

	cmd := &cobra.Command{
		Use:   "image [files...]",
		Short: "Stylize still images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "" && len(args) > 1 {
				return errors.New("--output needs exactly one input; use --out-dir")
			}
			return c.runImage(cmd, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", "", "output file (single input)")
	flags.StringVar(&opts.outDir, "out-dir", "", "output directory (default: next to each input)")
	flags.Float64VarP(&opts.intensity, "intensity", "i", opts.intensity, "effect intensity in [0, 1]")
	flags.IntVar(&opts.width, "width", 0, "output width (default: source width)")
	flags.IntVar(&opts.height, "height", 0, "output height (default: source height)")
	flags.StringVar(&opts.backend, "backend", opts.backend, "surface backend")

	return cmd
}

func (c *CLI) runImage(cmd *cobra.Command, paths []string, opts imageOpts) error {
	s, err := c.loadSettings(cmd, opts.intensity)
	if err != nil {
		return err
	}

	start := time.Now()
	images, err := decodeAll(cmd, paths)
	if err != nil {
		return err
	}
	c.Logger.Debug("decoded inputs", "count", len(images), "elapsed", time.Since(start).Round(time.Millisecond))

	f, err := c.newFilter(s)
	if err != nil {
		return err
	}
	defer f.Close()

	var dst surface.Surface
	defer func() {
		if dst != nil {
			dst.Close()
		}
	}()

	for i, img := range images {
		out := opts.output
		if out == "" {
			out = outputPath(paths[i], opts.outDir, "")
		}
		b := img.Bounds()
		w, h := surfaceSize(b.Dx(), b.Dy(), opts.width, opts.height)
		if dst, err = reuseSurface(dst, opts.backend, w, h); err != nil {
			return fmt.Errorf("%s: %w", paths[i], err)
		}
		if err := c.renderImage(f, img, dst, out); err != nil {
			return fmt.Errorf("%s: %w", paths[i], err)
		}
	}
	return nil
}

// reuseSurface returns dst sized w×h. A surface that cannot be resized is
// closed and replaced.
func reuseSurface(dst surface.Surface, backend string, w, h int) (surface.Surface, error) {
	if dst != nil && dst.Width() == w && dst.Height() == h {
		return dst, nil
	}
	if rs, ok := dst.(surface.ResizableSurface); ok {
		if err := rs.Resize(w, h); err == nil {
			return rs, nil
		}
	}
	if dst != nil {
		dst.Close()
	}
	return surface.NewSurfaceByName(backend, surface.Options{Width: w, Height: h})
}

// decodeAll decodes every input concurrently, preserving order.
func decodeAll(cmd *cobra.Command, paths []string) ([]image.Image, error) {
	images := make([]image.Image, len(paths))
	g, ctx := errgroup.WithContext(cmd.Context())
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := imaging.Open(path, imaging.AutoOrientation(true))
			if err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

func (c *CLI) renderImage(f *lessdetail.Filter, img image.Image, dst surface.Surface, out string) error {
	start := time.Now()
	if err := f.Filter(lessdetail.ImageSource(img), dst); err != nil {
		return err
	}
	if err := imaging.Save(dst.Snapshot(), out); err != nil {
		return err
	}
	c.Logger.Info("wrote", "file", out, "size", fmt.Sprintf("%dx%d", dst.Width(), dst.Height()),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// surfaceSize fills a missing output dimension from the source aspect.
func surfaceSize(srcW, srcH, w, h int) (int, int) {
	switch {
	case w <= 0 && h <= 0:
		return srcW, srcH
	case w <= 0:
		return max(1, srcW*h/srcH), h
	case h <= 0:
		return w, max(1, srcH*w/srcW)
	default:
		return w, h
	}
}
