// Package config loads xvfbctl settings.
//
// Configuration Hierarchy (highest to lowest priority):
//  1. Command-line flags (applied by the cli package)
//  2. Environment variables (XVFBCTL_*)
//  3. Config file (~/.xvfbctl/config.yml, or --config)
//  4. Built-in defaults
//
// Nested keys map to environment variables with underscores, e.g.
// display.timeout_ms → XVFBCTL_DISPLAY_TIMEOUT_MS.
package config

import (
	"path/filepath"
	"time"

	"github.com/mvp-joe/xvfb-supervisor/internal/display"
	"github.com/mvp-joe/xvfb-supervisor/internal/process"
	"github.com/mvp-joe/xvfb-supervisor/internal/xvfb"
)

// DirName is the per-user directory holding config and session state.
const DirName = ".xvfbctl"

// Config represents the complete xvfbctl configuration.
type Config struct {
	Display  DisplayConfig `yaml:"display" mapstructure:"display"`
	StateDir string        `yaml:"state_dir" mapstructure:"state_dir"` // Session registry and server logs
	Log      LogConfig     `yaml:"log" mapstructure:"log"`
}

// DisplayConfig holds the supervisor options.
type DisplayConfig struct {
	Num       *int     `yaml:"num" mapstructure:"num"`               // Fixed display number; unset auto-allocates from :99
	Reuse     bool     `yaml:"reuse" mapstructure:"reuse"`           // Attach to an already locked display
	TimeoutMs int      `yaml:"timeout_ms" mapstructure:"timeout_ms"` // Start/stop wait in milliseconds
	Silent    bool     `yaml:"silent" mapstructure:"silent"`         // Discard Xvfb stderr
	XvfbArgs  []string `yaml:"xvfb_args" mapstructure:"xvfb_args"`   // Extra arguments after the display
	Binary    string   `yaml:"binary" mapstructure:"binary"`         // Server executable
	LockDir   string   `yaml:"lock_dir" mapstructure:"lock_dir"`     // Where .X<n>-lock files live
}

// LogConfig controls diagnostic logging of xvfbctl itself.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// Default returns a configuration with sensible defaults rooted at dir,
// normally ~/.xvfbctl.
func Default(dir string) *Config {
	return &Config{
		Display: DisplayConfig{
			TimeoutMs: int(xvfb.DefaultTimeout / time.Millisecond),
			XvfbArgs:  []string{},
			Binary:    process.DefaultBinary,
			LockDir:   display.DefaultLockDir,
		},
		StateDir: filepath.Join(dir, "state"),
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Timeout returns the configured wait as a duration.
func (d DisplayConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// Options converts the display section into supervisor options. Process
// wiring (stderr, logger, environment) is left to the caller.
func (d DisplayConfig) Options() xvfb.Options {
	opts := xvfb.Options{
		Reuse:    d.Reuse,
		Timeout:  d.Timeout(),
		Silent:   d.Silent,
		XvfbArgs: append([]string(nil), d.XvfbArgs...),
		Binary:   d.Binary,
		LockDir:  d.LockDir,
	}
	if d.Num != nil {
		opts.DisplayNum = xvfb.Int(*d.Num)
	}
	return opts
}
