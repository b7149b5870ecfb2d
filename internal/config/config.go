// Package config handles tool configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRequest is returned for invocation arguments that cannot produce
// a thumbnail.
var ErrInvalidRequest = errors.New("invalid thumbnail request")

// Config holds all tool settings for one invocation.
type Config struct {
	// Subject is the scene asset being thumbnailed (positional argument,
	// never read from the config file).
	Subject string `yaml:"-"`

	Output  OutputConfig  `yaml:"output"`
	Render  RenderConfig  `yaml:"render"`
	Logging LoggingConfig `yaml:"logging"`
}

// OutputConfig holds image and archive output settings.
type OutputConfig struct {
	Width int `yaml:"width"`
	// Height 0 means square output matching the width.
	Height           int    `yaml:"height"`
	Extension        string `yaml:"extension"`
	Dir              string `yaml:"dir"`
	CreateUsdzResult bool   `yaml:"create_usdz_result"`
}

// RenderConfig holds external renderer settings.
type RenderConfig struct {
	// Renderer overrides the per-platform backend when set.
	Renderer  string `yaml:"renderer"`
	DomeLight string `yaml:"dome_light"`
	// Timeout 0 waits for the render process indefinitely.
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Output: OutputConfig{
			Width:     2048,
			Height:    0,
			Extension: "png",
			Dir:       "renders",
		},
		Render: RenderConfig{
			Renderer: "",
			Timeout:  0,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate rejects argument combinations that cannot produce a thumbnail.
func (c *Config) Validate() error {
	if c.Subject == "" {
		return fmt.Errorf("%w: subject asset path is required", ErrInvalidRequest)
	}
	if c.Output.Width <= 0 {
		return fmt.Errorf("%w: width must be positive, got %d", ErrInvalidRequest, c.Output.Width)
	}
	if c.Output.Height < 0 {
		return fmt.Errorf("%w: height must not be negative, got %d", ErrInvalidRequest, c.Output.Height)
	}
	if c.Output.Extension == "" {
		return fmt.Errorf("%w: output extension is required", ErrInvalidRequest)
	}
	return nil
}
