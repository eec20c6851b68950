// Package cli implements the lessdetail command-line interface.
//
// The CLI stands in for a host page: it loads images or animated GIFs,
// runs them through a [lessdetail.Filter] and writes the stylized result.
//
// # Commands
//
//   - image: stylize one or more still images
//   - video: stylize an animated GIF frame by frame through a video loop
//
// # Logging
//
// Commands log through charmbracelet/log. The same logger is installed as
// the slog handler of the library, so pipeline diagnostics appear with
// --verbose.
package cli

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/gogpu/lessdetail"
	"github.com/gogpu/lessdetail/internal/config"
	"github.com/gogpu/lessdetail/internal/params"
)

const appName = "lessdetail"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	maxSize    int
	workers    int

	// compiler is nil outside tests.
	compiler lessdetail.Compiler
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
			Prefix:          appName,
		}),
		maxSize: -1,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Lessdetail renders a reduced-detail stylization of images and video",
		Long:         `Lessdetail flattens regions along the image flow, draws flow-guided edges and quantizes colours, producing a painterly rendition with less detail.`,
		Version:      lessdetail.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// The library logs through the same handler as the CLI.
			lessdetail.SetLogger(slog.New(c.Logger))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "TOML file overriding the filter constants")
	flags.IntVar(&c.maxSize, "max-size", -1, "working resolution cap in pixels (-1 keeps the configured value)")
	flags.IntVar(&c.workers, "workers", 0, "draw goroutines (0 uses all CPUs)")

	root.AddCommand(c.imageCommand())
	root.AddCommand(c.videoCommand())

	return root
}

// settings is the resolved configuration of one command run.
type settings struct {
	constants      params.Constants
	imageIntensity float64
	videoIntensity float64
}

// loadSettings merges the config file and flags. Flags set on the command
// line win over the file.
func (c *CLI) loadSettings(cmd *cobra.Command, intensity float64) (settings, error) {
	s := settings{
		constants:      params.DefaultConstants(),
		imageIntensity: intensity,
		videoIntensity: intensity,
	}

	if c.configPath != "" {
		f, err := config.Load(c.configPath)
		if err != nil {
			return s, err
		}
		s.constants = f.Constants.Apply(s.constants)
		if f.Intensity != nil && !cmd.Flags().Changed("intensity") {
			s.imageIntensity = *f.Intensity
			s.videoIntensity = *f.Intensity
		}
		if f.VideoIntensity != nil && !cmd.Flags().Changed("intensity") {
			s.videoIntensity = *f.VideoIntensity
		}
		c.Logger.Debug("config loaded", "path", c.configPath)
	}

	if c.maxSize >= 0 {
		s.constants.MaxSize = c.maxSize
	}
	return s, nil
}

// newFilter builds a filter from the resolved settings.
func (c *CLI) newFilter(s settings) (*lessdetail.Filter, error) {
	opts := []lessdetail.Option{
		lessdetail.WithConstants(s.constants),
		lessdetail.WithWorkers(c.workers),
	}
	if c.compiler != nil {
		opts = append(opts, lessdetail.WithCompiler(c.compiler))
	}

	f, err := lessdetail.New(opts...)
	if err != nil {
		return nil, err
	}
	if err := f.SetIntensity(lessdetail.ContextImage, s.imageIntensity); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.SetIntensity(lessdetail.ContextVideo, s.videoIntensity); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// outputPath derives the output file for input inside dir.
// "photo.jpg" becomes "<dir>/photo_lessdetail.jpg".
func outputPath(input, dir, ext string) string {
	base := filepath.Base(input)
	inExt := filepath.Ext(base)
	if ext == "" {
		ext = inExt
	}
	name := strings.TrimSuffix(base, inExt) + "_" + appName + ext
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, name)
}
