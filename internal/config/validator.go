package config

import (
	"errors"
	"fmt"
	"runtime"

	scopeerrors "github.com/standardbeagle/scopegraph/internal/errors"
)

// Validator validates configuration and fills in smart defaults for unset
// fields.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates cfg and applies smart defaults in place.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProject(&cfg.Project); err != nil {
		return scopeerrors.NewConfigError("project", "", err)
	}
	if err := v.validateIndex(&cfg.Index); err != nil {
		return scopeerrors.NewConfigError("index", "", err)
	}
	if err := v.validatePipeline(&cfg.Pipeline); err != nil {
		return scopeerrors.NewConfigError("pipeline", "", err)
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateProject(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}
	return nil
}

func (v *Validator) validateIndex(index *Index) error {
	if index.MaxFileSize <= 0 {
		return fmt.Errorf("MaxFileSize must be positive, got %d", index.MaxFileSize)
	}
	if index.MaxFileSize > 100*1024*1024 {
		return fmt.Errorf("MaxFileSize should not exceed 100MB, got %d", index.MaxFileSize)
	}
	return nil
}

func (v *Validator) validatePipeline(p *Pipeline) error {
	if p.Parallelism < 0 {
		return fmt.Errorf("Parallelism cannot be negative, got %d", p.Parallelism)
	}
	if p.ScanIntervalSeconds < 0 {
		return fmt.Errorf("ScanIntervalSeconds cannot be negative, got %v", p.ScanIntervalSeconds)
	}
	return nil
}

func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Pipeline.Parallelism == 0 {
		cfg.Pipeline.Parallelism = max(1, runtime.GOMAXPROCS(0))
	}
	if cfg.Pipeline.ScanIntervalSeconds == 0 {
		cfg.Pipeline.ScanIntervalSeconds = 60
	}
	if cfg.Index.MaxFileSize == 0 {
		cfg.Index.MaxFileSize = 10 * 1024 * 1024
	}
}

// ValidateConfig is a convenience wrapper around Validator.
func ValidateConfig(cfg *Config) error {
	return NewValidator().ValidateAndSetDefaults(cfg)
}
