package compressor

import (
	"errors"
	"fmt"
	"math"

	"github.com/ManuelReschke/PhotoShrink/internal/pkg/env"
)

// Defaults for profile photos
const (
	DefaultMaxWidth                = 800
	DefaultMaxHeight               = 800
	DefaultTargetSizeKB            = 500
	DefaultMaxSizeKB               = 1024 // 1MB
	DefaultStartQuality            = 0.92
	DefaultMinQuality              = 0.5
	DefaultQualityStep             = 0.05
	DefaultSecondaryQualityCeiling = 0.8
	DefaultMaxSourceBytes          = 50 << 20
	DefaultMaxSourcePixels         = 50_000_000
)

// Config is fixed per Compressor; it is never supplied per call.
type Config struct {
	MaxWidth     int
	MaxHeight    int
	TargetSizeKB float64
	MaxSizeKB    float64
	StartQuality float64
	MinQuality   float64
	QualityStep  float64
	// SecondaryQualityCeiling is the quality below which a candidate between
	// TargetSizeKB and MaxSizeKB is accepted as good enough.
	SecondaryQualityCeiling float64
	MaxSourceBytes          int64
	// MaxSourcePixels caps width*height of the source, checked from the
	// header before the raster is allocated.
	MaxSourcePixels int64
}

// DefaultConfig returns the profile photo settings.
func DefaultConfig() Config {
	return Config{
		MaxWidth:                DefaultMaxWidth,
		MaxHeight:               DefaultMaxHeight,
		TargetSizeKB:            DefaultTargetSizeKB,
		MaxSizeKB:               DefaultMaxSizeKB,
		StartQuality:            DefaultStartQuality,
		MinQuality:              DefaultMinQuality,
		QualityStep:             DefaultQualityStep,
		SecondaryQualityCeiling: DefaultSecondaryQualityCeiling,
		MaxSourceBytes:          DefaultMaxSourceBytes,
		MaxSourcePixels:         DefaultMaxSourcePixels,
	}
}

// LoadConfig overlays COMPRESS_* environment variables on DefaultConfig.
func LoadConfig() (Config, error) {
	d := DefaultConfig()
	cfg := Config{
		MaxWidth:                env.GetEnvInt("COMPRESS_MAX_WIDTH", d.MaxWidth),
		MaxHeight:               env.GetEnvInt("COMPRESS_MAX_HEIGHT", d.MaxHeight),
		TargetSizeKB:            env.GetEnvFloat("COMPRESS_TARGET_SIZE_KB", d.TargetSizeKB),
		MaxSizeKB:               env.GetEnvFloat("COMPRESS_MAX_SIZE_KB", d.MaxSizeKB),
		StartQuality:            env.GetEnvFloat("COMPRESS_START_QUALITY", d.StartQuality),
		MinQuality:              env.GetEnvFloat("COMPRESS_MIN_QUALITY", d.MinQuality),
		QualityStep:             env.GetEnvFloat("COMPRESS_QUALITY_STEP", d.QualityStep),
		SecondaryQualityCeiling: env.GetEnvFloat("COMPRESS_SECONDARY_QUALITY_CEILING", d.SecondaryQualityCeiling),
		MaxSourceBytes:          int64(env.GetEnvInt("COMPRESS_MAX_SOURCE_MB", int(d.MaxSourceBytes>>20))) << 20,
		MaxSourcePixels:         int64(env.GetEnvInt("COMPRESS_MAX_SOURCE_PIXELS", int(d.MaxSourcePixels))),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the bounds are usable and that the quality loop terminates.
func (c Config) Validate() error {
	var errs []error
	if c.MaxWidth <= 0 || c.MaxHeight <= 0 {
		errs = append(errs, fmt.Errorf("max dimensions must be positive, got %dx%d", c.MaxWidth, c.MaxHeight))
	}
	if c.TargetSizeKB <= 0 {
		errs = append(errs, fmt.Errorf("target size must be positive, got %g", c.TargetSizeKB))
	}
	if c.MaxSizeKB < c.TargetSizeKB {
		errs = append(errs, fmt.Errorf("max size %gKB is below target size %gKB", c.MaxSizeKB, c.TargetSizeKB))
	}
	if c.StartQuality <= 0 || c.StartQuality > 1 {
		errs = append(errs, fmt.Errorf("start quality must be in (0,1], got %g", c.StartQuality))
	}
	if c.MinQuality <= 0 || c.MinQuality > c.StartQuality {
		errs = append(errs, fmt.Errorf("min quality must be in (0,%g], got %g", c.StartQuality, c.MinQuality))
	}
	if c.QualityStep <= 0 {
		errs = append(errs, fmt.Errorf("quality step must be positive, got %g", c.QualityStep))
	}
	if c.MaxSourceBytes <= 0 {
		errs = append(errs, fmt.Errorf("max source bytes must be positive, got %d", c.MaxSourceBytes))
	}
	if c.MaxSourcePixels <= 0 {
		errs = append(errs, fmt.Errorf("max source pixels must be positive, got %d", c.MaxSourcePixels))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid compressor config: %w", errors.Join(errs...))
	}
	return nil
}

// MaxAttempts is the number of encodes after which the quality floor forces acceptance.
func (c Config) MaxAttempts() int {
	retries := int(math.Ceil(roundQuality((c.StartQuality - c.MinQuality) / c.QualityStep)))
	if retries < 0 {
		retries = 0
	}
	return retries + 1
}

// qualityAt returns the quality of the n-th encode (0-based). It is derived
// from the start value rather than accumulated so rounding does not drift.
func (c Config) qualityAt(attempt int) float64 {
	return roundQuality(c.StartQuality - float64(attempt)*c.QualityStep)
}

// accepts applies the three acceptance clauses in order.
func (c Config) accepts(sizeKB, quality float64) bool {
	if sizeKB <= c.TargetSizeKB || quality <= c.MinQuality {
		return true
	}
	return sizeKB <= c.MaxSizeKB && quality < c.SecondaryQualityCeiling
}

func roundQuality(q float64) float64 {
	return math.Round(q*1e6) / 1e6
}
