// Package matching assigns transit lines to vehicle trajectories. Detection
// scores every (trajectory, reference path) pair by the share of trajectory
// samples near the path; correction labels each sample of the flagged
// trajectories with a single line.
package matching

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidConfig marks a missing or out-of-range parameter.
	ErrInvalidConfig = errors.New("invalid matching configuration")
	// ErrNoMatches is returned when correction labels no sample of any trajectory.
	ErrNoMatches = errors.New("no matches detected")
	// ErrBudgetTooSmall is returned when even a single trajectory against a
	// single path does not fit the memory budget.
	ErrBudgetTooSmall = errors.New("memory budget too small for one batch pair")
)

var validate = validator.New()

// DetectionConfig holds the candidate detection parameters.
type DetectionConfig struct {
	DistanceTolerance   float64 `yaml:"distanceTolerance" validate:"gt=0"`        // meters
	DetectionPercentage float64 `yaml:"detectionPercentage" validate:"gt=0,lt=1"` // strict lower bound on belonging
	TrajectoryBatchSize int     `yaml:"trajectoryBatchSize" validate:"gte=1"`
	PathBatchSize       int     `yaml:"pathBatchSize" validate:"gte=1"`
	MemoryBudgetMB      int     `yaml:"memoryBudgetMB" validate:"gte=0"` // 0 leaves batch sizes as configured
	Workers             int     `yaml:"workers" validate:"gte=0"`        // 0 uses GOMAXPROCS
	Prefilter           bool    `yaml:"prefilter"`
}

// DefaultDetectionConfig mirrors the values the matcher has been run with.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		DistanceTolerance:   300,
		DetectionPercentage: 0.9,
		TrajectoryBatchSize: 5,
		PathBatchSize:       5,
		Prefilter:           true,
	}
}

func (c DetectionConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// CorrectionConfig holds the point-level correction parameters.
type CorrectionConfig struct {
	DistanceTolerance float64 `yaml:"distanceTolerance" validate:"gt=0"`
	MinGroupLength    int     `yaml:"minGroupLength" validate:"gte=1"`
	Workers           int     `yaml:"workers" validate:"gte=0"`
}

func DefaultCorrectionConfig() CorrectionConfig {
	return CorrectionConfig{
		DistanceTolerance: 300,
		MinGroupLength:    3,
	}
}

func (c CorrectionConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
