// Package config loads batch configuration files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/cavesweep/internal/settings"
)

// DefaultOutputDir is used when no output directory is configured.
const DefaultOutputDir = "cavecalc_output"

// maxFileSize caps batch configuration files.
const maxFileSize = 1 * 1024 * 1024

var validate = validator.New()

// BatchConfig is the root of a batch file. Unset optional fields fall back to
// the defaults returned by the Get* methods.
type BatchConfig struct {
	// Settings maps model parameters to a value, a list of candidates or a
	// "min:max:step" range.
	Settings settings.Spec `json:"settings" yaml:"settings"`

	OutputDir    *string `json:"output_dir,omitempty" yaml:"output_dir,omitempty" validate:"omitempty,min=1"`
	MeasuredData *string `json:"measured_data,omitempty" yaml:"measured_data,omitempty" validate:"omitempty,min=1"`

	// Tolerances overrides per-proxy half-widths, e.g. "d13C" or
	// "tolerance_d13C".
	Tolerances map[string]float64 `json:"tolerances,omitempty" yaml:"tolerances,omitempty" validate:"omitempty,dive,keys,min=1,endkeys,gte=0"`

	Solver SolverConfig `json:"solver" yaml:"solver"`

	ReusePrevious *bool   `json:"reuse_previous,omitempty" yaml:"reuse_previous,omitempty"`
	MetricsFile   *string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty" validate:"omitempty,min=1"`
}

// SolverConfig selects how the solver is reached: a local command or a gRPC
// address, never both.
type SolverConfig struct {
	Command string   `json:"command,omitempty" yaml:"command,omitempty" validate:"omitempty,excluded_with=Address"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
	Address string   `json:"address,omitempty" yaml:"address,omitempty" validate:"omitempty,hostname_port"`
	// Databases maps precipitate mineralogy to a thermodynamic database.
	Databases map[string]string `json:"databases,omitempty" yaml:"databases,omitempty" validate:"omitempty,dive,keys,min=1,endkeys,min=1"`
}

// LoadBatchConfig reads a .json, .yaml or .yml batch file.
func LoadBatchConfig(path string) (*BatchConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &BatchConfig{}
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *BatchConfig) Validate() error {
	return validate.Struct(c)
}

// GetOutputDir returns the output directory or DefaultOutputDir.
func (c *BatchConfig) GetOutputDir() string {
	if c.OutputDir == nil {
		return DefaultOutputDir
	}
	return *c.OutputDir
}

// GetMeasuredData returns the measured-data path, empty when comparison is
// disabled.
func (c *BatchConfig) GetMeasuredData() string {
	if c.MeasuredData == nil {
		return ""
	}
	return *c.MeasuredData
}

// GetReusePrevious reports whether configurations completed by earlier
// batches in the output directory are skipped.
func (c *BatchConfig) GetReusePrevious() bool {
	if c.ReusePrevious == nil {
		return false
	}
	return *c.ReusePrevious
}

// GetMetricsFile returns the metrics textfile path, empty when disabled.
func (c *BatchConfig) GetMetricsFile() string {
	if c.MetricsFile == nil {
		return ""
	}
	return *c.MetricsFile
}

// SetOutputDir overrides the output directory.
func (c *BatchConfig) SetOutputDir(dir string) { c.OutputDir = &dir }

// SetMeasuredData overrides the measured-data path.
func (c *BatchConfig) SetMeasuredData(path string) { c.MeasuredData = &path }

// SetReusePrevious overrides reuse of earlier runs.
func (c *BatchConfig) SetReusePrevious(v bool) { c.ReusePrevious = &v }

// SetMetricsFile overrides the metrics textfile path.
func (c *BatchConfig) SetMetricsFile(path string) { c.MetricsFile = &path }
