package allocator

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/heapkit/btmalloc/internal/errors"
	"github.com/heapkit/btmalloc/internal/osmem"
)

// AllocatorVersion is this layout's wire-compatibility version. Block size
// and bitmap widths are only compatible within a major version.
const AllocatorVersion = "1.0.0"

// Build-time constants from spec.md §6. Unlike the teacher's Config, these
// describe the fixed geometry of the bitmap layout rather than general
// allocator policy, so most are not independently tunable: changing
// BlockSize requires re-deriving every bitmap width in class.go.
const (
	BlockSize           = 512
	BlockAlignment      = 512
	DefaultMaxHoard     = 3000
	PredictorSize       = 12
	DefaultPredictorFuzz = 4
	DefaultPCompressThreshold = 1000
	maxCacheEntries     = 8
)

// Config configures a Heap, following the teacher's functional-options
// pattern (internal/allocator/allocator.go's Config/Option).
type Config struct {
	// MaxHoard is the per-Handle hoard byte cap (spec.md §4.7).
	MaxHoard uintptr

	// PredictorFuzz is the precise-tracking window width (spec.md §4.8).
	PredictorFuzz int

	// PCompressThreshold triggers predictor aging once the histogram's
	// total count exceeds it (spec.md §4.8).
	PCompressThreshold uint64

	// Reserver is the OS collaborator new zones are carved from. Defaults
	// to osmem.Default (mmap/VirtualAlloc). Tests substitute a mock to
	// exercise OutOfMemory deterministically.
	Reserver osmem.Reserver

	// MinCompat, if set, is checked against AllocatorVersion at NewHeap
	// time so an embedder that pins a layout version fails fast instead of
	// silently running against an incompatible bitmap geometry.
	MinCompat string

	// EnableDebug gates verbose *cli.Logger output; the only event logged is
	// zone growth.
	EnableDebug bool
}

// Option mutates a Config, built by one of the With* constructors below.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		MaxHoard:           DefaultMaxHoard,
		PredictorFuzz:      DefaultPredictorFuzz,
		PCompressThreshold: DefaultPCompressThreshold,
		Reserver:           osmem.Default,
		EnableDebug:        false,
	}
}

// WithMaxHoard overrides the per-Handle hoard byte cap.
func WithMaxHoard(bytes uintptr) Option {
	return func(c *Config) { c.MaxHoard = bytes }
}

// WithPredictorFuzz overrides the predictor's fuzz-zone width.
func WithPredictorFuzz(entries int) Option {
	return func(c *Config) { c.PredictorFuzz = entries }
}

// WithPCompressThreshold overrides the predictor's aging trigger.
func WithPCompressThreshold(threshold uint64) Option {
	return func(c *Config) { c.PCompressThreshold = threshold }
}

// WithReserver overrides the OS collaborator, primarily for tests.
func WithReserver(r osmem.Reserver) Option {
	return func(c *Config) { c.Reserver = r }
}

// WithMinCompat pins a minimum compatible layout version, checked at
// NewHeap time via checkCompat.
func WithMinCompat(constraint string) Option {
	return func(c *Config) { c.MinCompat = constraint }
}

// WithDebug toggles verbose diagnostic logging.
func WithDebug(enabled bool) Option {
	return func(c *Config) { c.EnableDebug = enabled }
}

func (c *Config) validate() error {
	if c.MaxHoard == 0 {
		return errors.InvalidSize(c.MaxHoard, "Config.MaxHoard")
	}

	if c.PredictorFuzz <= 0 || c.PredictorFuzz >= PredictorSize {
		return errors.InvalidSize(uintptr(c.PredictorFuzz), "Config.PredictorFuzz")
	}

	if c.PCompressThreshold == 0 {
		return errors.InvalidSize(uintptr(c.PCompressThreshold), "Config.PCompressThreshold")
	}

	if c.Reserver == nil {
		return fmt.Errorf("allocator: Config.Reserver must not be nil")
	}

	return c.checkCompat()
}

// checkCompat validates MinCompat, if set, against AllocatorVersion using
// semver — ambient operational hygiene for embedders pinning against a
// specific on-heap layout version (DOMAIN STACK #4).
func (c *Config) checkCompat() error {
	if c.MinCompat == "" {
		return nil
	}

	constraint, err := semver.NewConstraint(c.MinCompat)
	if err != nil {
		return fmt.Errorf("allocator: invalid MinCompat constraint %q: %w", c.MinCompat, err)
	}

	version, err := semver.NewVersion(AllocatorVersion)
	if err != nil {
		return fmt.Errorf("allocator: invalid internal AllocatorVersion %q: %w", AllocatorVersion, err)
	}

	if !constraint.Check(version) {
		return fmt.Errorf("allocator: layout version %s does not satisfy MinCompat %q", AllocatorVersion, c.MinCompat)
	}

	return nil
}
