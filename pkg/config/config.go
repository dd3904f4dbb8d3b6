// Package config provides configuration loading and management for shapeletfit.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"shapeletfit/internal/models"
	"shapeletfit/pkg/decomp"
	"shapeletfit/pkg/noise"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Fit parameters
	Fit struct {
		// NMax is the model order (row, col) used while optimising beta and centroid
		NMax [2]int `yaml:"nmax"`

		// Brute is the largest number of terms per axis tried by the order scan
		Brute int `yaml:"brute"`

		// Beta overrides the initial beta guess when > 0
		Beta float64 `yaml:"beta"`

		// XTol is the relative error in parameters acceptable for convergence
		XTol float64 `yaml:"xtol"`

		// FTol is the relative error in chi^2 acceptable for convergence
		FTol float64 `yaml:"ftol"`

		// MaxIterations caps the simplex iterations
		MaxIterations int `yaml:"maxIterations"`

		// StallIterations is how long the simplex must stay within tolerance
		StallIterations int `yaml:"stallIterations"`

		// ScaleFraction multiplies the moment-based beta guess
		ScaleFraction float64 `yaml:"scaleFraction"`

		// MinScale is the beta fallback for degenerate images
		MinScale float64 `yaml:"minScale"`

		// CentroidRadius is the fractional radius of the image the centroid
		// must stay within; 0 leaves it unconstrained
		CentroidRadius float64 `yaml:"centroidRadius"`

		// MaxPosition starts from the brightest pixel instead of the centroid
		MaxPosition bool `yaml:"maxPosition"`

		// OrderTolerance is the chi^2 difference treated as a tie between orders
		OrderTolerance float64 `yaml:"orderTolerance"`

		// Workers is the number of concurrent order evaluations
		Workers int `yaml:"workers"`
	} `yaml:"fit"`

	// Input parameters
	Input struct {
		// Region is the cutout to decompose as "ymin,ymax,xmin,xmax"
		Region string `yaml:"region"`

		// NoiseRegion is a source-free area of the full image used to
		// estimate the noise, as "ymin,ymax,xmin,xmax"
		NoiseRegion string `yaml:"noiseRegion"`

		// Header is the WCS sidecar path; empty derives it from the image path
		Header string `yaml:"header"`
	} `yaml:"input"`

	// Noise estimation parameters
	Noise noise.Options `yaml:"noise"`

	// Output parameters
	Output struct {
		// CoeffFile is where the coefficients are written
		CoeffFile string `yaml:"coeffFile"`

		// PlotFile, when set, receives the 2x2 diagnostic panel
		PlotFile string `yaml:"plotFile"`

		// ModelFile, when set, receives the reconstructed model image
		ModelFile string `yaml:"modelFile"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	opts := decomp.DefaultOptions()

	// Set default fit parameters
	cfg.Fit.NMax = [2]int{opts.InitialOrder.Row, opts.InitialOrder.Col}
	cfg.Fit.Brute = opts.MaxOrder
	cfg.Fit.XTol = opts.XTol
	cfg.Fit.FTol = opts.FTol
	cfg.Fit.MaxIterations = opts.MaxIterations
	cfg.Fit.StallIterations = opts.StallIterations
	cfg.Fit.ScaleFraction = opts.ScaleFraction
	cfg.Fit.MinScale = opts.MinScale
	cfg.Fit.OrderTolerance = opts.OrderTolerance
	cfg.Fit.Workers = runtime.NumCPU() // Use all available cores by default

	cfg.Noise = noise.DefaultOptions()

	// Set default output parameters
	cfg.Output.CoeffFile = "tempCart.coeff"
	cfg.Output.Verbose = true

	return cfg
}

// FitOptions converts the fit section into decomposition options
func (c *Config) FitOptions() decomp.Options {
	opts := decomp.DefaultOptions()
	opts.InitialOrder = models.OrderPair{Row: c.Fit.NMax[0], Col: c.Fit.NMax[1]}
	opts.MaxOrder = c.Fit.Brute
	opts.XTol = c.Fit.XTol
	opts.FTol = c.Fit.FTol
	opts.MaxIterations = c.Fit.MaxIterations
	opts.StallIterations = c.Fit.StallIterations
	opts.ScaleFraction = c.Fit.ScaleFraction
	opts.MinScale = c.Fit.MinScale
	if c.Fit.Beta > 0 {
		opts.InitialScale = models.ScalePair{Row: c.Fit.Beta, Col: c.Fit.Beta}
	}
	opts.UseMaxPosition = c.Fit.MaxPosition
	opts.CentroidRadius = c.Fit.CentroidRadius
	opts.OrderTolerance = c.Fit.OrderTolerance
	opts.Workers = c.Fit.Workers
	return opts
}

// Regions parses the cutout and noise regions; unset regions are nil
func (c *Config) Regions() (region, noiseRegion *models.Region, err error) {
	if c.Input.Region != "" {
		r, err := models.ParseRegion(c.Input.Region)
		if err != nil {
			return nil, nil, err
		}
		region = &r
	}
	if c.Input.NoiseRegion != "" {
		r, err := models.ParseRegion(c.Input.NoiseRegion)
		if err != nil {
			return nil, nil, err
		}
		noiseRegion = &r
	}
	return region, noiseRegion, nil
}

// Validate checks every section holds usable values
func (c *Config) Validate() error {
	if c.Fit.Beta < 0 {
		return fmt.Errorf("invalid config: beta %v must be >= 0", c.Fit.Beta)
	}
	if err := c.FitOptions().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Noise.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, _, err := c.Regions(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Output.CoeffFile == "" {
		return fmt.Errorf("invalid config: coefficient file must be set")
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
