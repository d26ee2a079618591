// Package config parses the two configuration surfaces the runtime reads
// from disk: per-strategy deploy specs (YAML, validated with struct
// tags the way internal/types/order.go validates an Order) and the
// smaller process-wide settings file (TOML, see process.go). Grounded on
// internal/types/order.go's validator.New().Struct(...) pattern.
package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/argo-trading/internal/supervisor"
	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// DeploySpecFile is the on-disk YAML shape of a strategy deploy spec
// . AllocationFraction and AllocationAbsolute are mutually
// exclusive; exactly one must be set.
type DeploySpecFile struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	SourcePath string `yaml:"source_path" json:"source_path"`
	Engine string `yaml:"engine" json:"engine" validate:"required"`
	Provider string `yaml:"provider" json:"provider" validate:"required"`
	Symbol string `yaml:"symbol" json:"symbol" validate:"required"`
	Granularity string `yaml:"granularity" json:"granularity" validate:"required"`
	Lookback int `yaml:"lookback" json:"lookback" validate:"required,gt=0"`
	AllocationFraction float64 `yaml:"allocation_fraction" json:"allocation_fraction" validate:"omitempty,gt=0,lte=1"`
	AllocationAbsolute float64 `yaml:"allocation_absolute" json:"allocation_absolute" validate:"omitempty,gt=0"`
	Mode string `yaml:"mode" json:"mode" validate:"required,oneof=signals paper live"`
	Params map[string]string `yaml:"params" json:"params"`
}

// LoadDeploySpec reads and validates a deploy spec file, returning the
// supervisor.DeploySpec it describes.
func LoadDeploySpec(path string) (supervisor.DeploySpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return supervisor.DeploySpec{}, errors.Wrapf(errors.ErrCodeStrategyFileNotFound, err, "reading deploy spec %s", path)
	}

	var file DeploySpecFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return supervisor.DeploySpec{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "parsing deploy spec %s", path)
	}

	return DeploySpecFromFile(file)
}

// DeploySpecFromFile validates an already-decoded DeploySpecFile (used by
// both the YAML file loader above and the HTTP API's JSON deploy body,
// which shares the same field set and validation rules) and converts it
// to a supervisor.DeploySpec.
func DeploySpecFromFile(file DeploySpecFile) (supervisor.DeploySpec, error) {
	if err := validator.New().Struct(file); err != nil {
		return supervisor.DeploySpec{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "validating deploy spec", err)
	}

	if (file.AllocationFraction == 0) == (file.AllocationAbsolute == 0) {
		return supervisor.DeploySpec{}, errors.Newf(errors.ErrCodeInvalidConfiguration, "deploy spec %s: exactly one of allocation_fraction, allocation_absolute must be set", file.Name)
	}

	alloc := types.Allocation{IsFraction: file.AllocationFraction != 0, Fraction: file.AllocationFraction, Absolute: file.AllocationAbsolute}

	return supervisor.DeploySpec{
		Name: file.Name,
		SourcePath: file.SourcePath,
		Engine: file.Engine,
		Provider: file.Provider,
		Symbol: file.Symbol,
		Granularity: file.Granularity,
		Lookback: file.Lookback,
		Allocation: alloc,
		Mode: types.Mode(file.Mode),
		Params: file.Params,
	}, nil
}
