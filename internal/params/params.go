// Package params derives the stylization constants from a user intensity.
//
// An intensity in [0, 1] maps to a level of abstraction and an edge
// enhancement bucket through fixed, reviewer-tuned tables. Each level and
// bucket then sets bilateral iteration counts and the DoG decay. Two
// independently owned [Store] values exist per filter, one for still images
// and one for video, so adjusting one never perturbs the other.
package params

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sync"
)

// ErrIntensityRange is returned for intensities outside [0, 1] or NaN.
var ErrIntensityRange = errors.New("params: intensity must be within [0, 1]")

// edgeEnhancementByPercent maps intensity percent / 5 to an edge
// enhancement bucket. The values are not monotonic.
var edgeEnhancementByPercent = [21]int{
	0, 3, 2, 1, 2, 1, 2, 1, 4, 3, 5, 4, 6, 5, 6, 5, 6, 5, 6, 5, 4,
}

// abstractionIterations maps a level of abstraction (1..9) to bf_n_a.
var abstractionIterations = map[int]int{
	1: 0, 2: 1, 3: 3, 4: 5, 5: 7, 6: 10, 7: 13, 8: 16, 9: 20,
}

// edgeSettings maps an edge enhancement bucket (1..9) to bf_n_e and tau.
var edgeSettings = map[int]struct {
	iterations int
	tau        float64
}{
	1: {20, 0.93},
	2: {16, 0.94},
	3: {13, 0.95},
	4: {10, 0.96},
	5: {7, 0.97},
	6: {5, 0.98},
	7: {3, 0.99},
	8: {1, 0.99},
	9: {0, 0.99},
}

// Params is the discrete tuning pair derived from an intensity.
type Params struct {
	LevelOfAbstraction int
	EdgeEnhancement    int
}

// Derive maps an intensity to its tuning pair. It is pure.
//
// The edge bucket comes from rounding intensity*100 to the nearest multiple
// of 5. The level of abstraction is the intensity rounded to one decimal,
// capped at 0.9, times ten.
func Derive(intensity float64) Params {
	if math.IsNaN(intensity) {
		return Params{}
	}
	intensity = min(max(intensity, 0), 1)

	bucket := int(math.Round(intensity * 100 / 5))
	level := int(math.Round(min(math.Round(intensity*10)/10, 0.9) * 10))

	return Params{
		LevelOfAbstraction: level,
		EdgeEnhancement:    edgeEnhancementByPercent[bucket],
	}
}

// Constants is the numeric constant group read by the pipeline stages.
type Constants struct {
	// MaxSize caps the working resolution. Values <= 0 keep the last size.
	MaxSize int
	// DefaultSize is the resolution the sigmas are tuned for.
	DefaultSize int

	SSTSigma   float64
	BFSigmaD   float64
	BFSigmaR   float64
	DoGSigmaE  float64
	DoGSigmaR  float64
	DoGSigmaM  float64
	DoGTau     float64
	DoGPhi     float64
	DoGEpsilon float64
	CQPhiQ     float64
	FSSigma    float64

	// BFNE is the bilateral iteration count feeding the edge path.
	BFNE int
	// BFNA is the bilateral iteration count feeding the colour path.
	BFNA int
	// CQNBins is the number of luminance quantization bins.
	CQNBins int

	// EdgeColor is blended in where the edge map is dark.
	EdgeColor color.NRGBA
}

// DefaultConstants returns the stock constant group.
func DefaultConstants() Constants {
	return Constants{
		MaxSize:     1024,
		DefaultSize: 1024,
		SSTSigma:    2.0,
		BFSigmaD:    6.0,
		BFSigmaR:    5.25,
		DoGSigmaE:   1.0,
		DoGSigmaR:   1.6,
		DoGSigmaM:   3.0,
		DoGTau:      0.99,
		DoGPhi:      2.0,
		DoGEpsilon:  0.0,
		CQPhiQ:      2.0,
		FSSigma:     1.0,
		BFNE:        1,
		BFNA:        3,
		CQNBins:     8,
		EdgeColor:   color.NRGBA{A: 255},
	}
}

// Validate reports constant groups the pipeline cannot run with.
func (c Constants) Validate() error {
	switch {
	case c.DefaultSize <= 0:
		return fmt.Errorf("params: default size must be positive, got %d", c.DefaultSize)
	case c.CQNBins <= 0:
		return fmt.Errorf("params: quantization bins must be positive, got %d", c.CQNBins)
	case c.BFNE < 0 || c.BFNA < 0:
		return fmt.Errorf("params: bilateral iterations must not be negative, got %d/%d", c.BFNE, c.BFNA)
	}
	return nil
}

// ResolutionScale scales a sigma tuned for DefaultSize to a working texture
// whose larger edge is size texels.
func (c Constants) ResolutionScale(v float64, size int) float64 {
	return v * float64(size) / float64(c.DefaultSize)
}

// ApplyLevel sets the abstraction iteration count for level. Levels outside
// 1..9 leave the constants unchanged.
func (c *Constants) ApplyLevel(level int) bool {
	n, ok := abstractionIterations[level]
	if ok {
		c.BFNA = n
	}
	return ok
}

// ApplyEdgeEnhancement sets the edge iteration count and DoG decay for
// bucket. Bucket 0 and unmapped buckets leave the constants unchanged.
func (c *Constants) ApplyEdgeEnhancement(bucket int) bool {
	s, ok := edgeSettings[bucket]
	if ok {
		c.BFNE = s.iterations
		c.DoGTau = s.tau
	}
	return ok
}

// Store owns one constant group and the intensity that produced it.
//
// Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	intensity float64
	params    Params
	constants Constants
}

// NewStore returns a store seeded with c.
func NewStore(c Constants) *Store {
	return &Store{constants: c}
}

// SetIntensity derives parameters from v and applies them to the store.
func (s *Store) SetIntensity(v float64) (Params, error) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return Params{}, fmt.Errorf("%w: %v", ErrIntensityRange, v)
	}

	p := Derive(v)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.intensity = v
	s.params = p
	s.constants.ApplyLevel(p.LevelOfAbstraction)
	s.constants.ApplyEdgeEnhancement(p.EdgeEnhancement)
	return p, nil
}

// Intensity returns the last accepted intensity.
func (s *Store) Intensity() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.intensity
}

// Params returns the last derived tuning pair.
func (s *Store) Params() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// Constants returns a copy of the current constant group.
func (s *Store) Constants() Constants {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.constants
}

// Reset replaces the constant group. The intensity is kept but not
// re-applied.
func (s *Store) Reset(c Constants) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constants = c
}

// SetMaxSize changes the working resolution cap.
func (s *Store) SetMaxSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constants.MaxSize = n
}
