// Package config loads constant overrides from a TOML file.
//
// Every key is optional. A missing key keeps the default, so a file only
// needs to name what it changes:
//
//	intensity = 0.6
//
//	[constants]
//	max_size = 512
//	bf_sigma_d = 4.5
//	edge_color = "#202040"
package config

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/gogpu/lessdetail/internal/params"
)

// ErrUnknownKey is returned when a file sets a key this package does not
// know, which is almost always a typo.
var ErrUnknownKey = errors.New("config: unknown key")

// File is the decoded configuration.
type File struct {
	// Intensity is the default intensity for both contexts.
	Intensity *float64 `toml:"intensity"`

	// VideoIntensity overrides Intensity for video.
	VideoIntensity *float64 `toml:"video_intensity"`

	Constants Overrides `toml:"constants"`
}

// Overrides is a partial constant group. Nil fields keep the default.
type Overrides struct {
	MaxSize     *int `toml:"max_size"`
	DefaultSize *int `toml:"default_size"`

	SSTSigma   *float64 `toml:"sst_sigma"`
	BFSigmaD   *float64 `toml:"bf_sigma_d"`
	BFSigmaR   *float64 `toml:"bf_sigma_r"`
	DoGSigmaE  *float64 `toml:"dog_sigma_e"`
	DoGSigmaR  *float64 `toml:"dog_sigma_r"`
	DoGSigmaM  *float64 `toml:"dog_sigma_m"`
	DoGTau     *float64 `toml:"dog_tau"`
	DoGPhi     *float64 `toml:"dog_phi"`
	DoGEpsilon *float64 `toml:"dog_epsilon"`
	CQPhiQ     *float64 `toml:"cq_phi_q"`
	FSSigma    *float64 `toml:"fs_sigma"`

	BFNE    *int `toml:"bf_n_e"`
	BFNA    *int `toml:"bf_n_a"`
	CQNBins *int `toml:"cq_nbins"`

	// EdgeColor is "#rrggbb" or "#rrggbbaa".
	EdgeColor *string `toml:"edge_color"`
}

// Load reads and validates the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates TOML data.
func Parse(data []byte) (*File, error) {
	var f File
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, strings.Join(keys, ", "))
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate reports values the pipeline cannot run with.
func (f *File) Validate() error {
	for _, kv := range []struct {
		name string
		v    *float64
	}{{"intensity", f.Intensity}, {"video_intensity", f.VideoIntensity}} {
		if kv.v != nil && (math.IsNaN(*kv.v) || *kv.v < 0 || *kv.v > 1) {
			return fmt.Errorf("config: %s must be within [0, 1], got %v", kv.name, *kv.v)
		}
	}

	o := f.Constants
	switch {
	case o.MaxSize != nil && *o.MaxSize < 0:
		return fmt.Errorf("config: max_size must not be negative, got %d", *o.MaxSize)
	case o.DefaultSize != nil && *o.DefaultSize <= 0:
		return fmt.Errorf("config: default_size must be positive, got %d", *o.DefaultSize)
	case o.CQNBins != nil && *o.CQNBins <= 0:
		return fmt.Errorf("config: cq_nbins must be positive, got %d", *o.CQNBins)
	case o.BFNE != nil && *o.BFNE < 0, o.BFNA != nil && *o.BFNA < 0:
		return errors.New("config: bilateral iteration counts must not be negative")
	}
	if o.EdgeColor != nil {
		if _, err := ParseColor(*o.EdgeColor); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns c with every set override replaced.
func (o Overrides) Apply(c params.Constants) params.Constants {
	setInt := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setFloat := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}

	setInt(&c.MaxSize, o.MaxSize)
	setInt(&c.DefaultSize, o.DefaultSize)
	setFloat(&c.SSTSigma, o.SSTSigma)
	setFloat(&c.BFSigmaD, o.BFSigmaD)
	setFloat(&c.BFSigmaR, o.BFSigmaR)
	setFloat(&c.DoGSigmaE, o.DoGSigmaE)
	setFloat(&c.DoGSigmaR, o.DoGSigmaR)
	setFloat(&c.DoGSigmaM, o.DoGSigmaM)
	setFloat(&c.DoGTau, o.DoGTau)
	setFloat(&c.DoGPhi, o.DoGPhi)
	setFloat(&c.DoGEpsilon, o.DoGEpsilon)
	setFloat(&c.CQPhiQ, o.CQPhiQ)
	setFloat(&c.FSSigma, o.FSSigma)
	setInt(&c.BFNE, o.BFNE)
	setInt(&c.BFNA, o.BFNA)
	setInt(&c.CQNBins, o.CQNBins)

	if o.EdgeColor != nil {
		if col, err := ParseColor(*o.EdgeColor); err == nil {
			c.EdgeColor = col
		}
	}
	return c
}

// ParseColor parses "#rrggbb" or "#rrggbbaa". The leading '#' is optional.
func ParseColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("config: invalid colour %q: want 6 or 8 hex digits", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("config: invalid colour %q: %w", s, err)
	}
	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
