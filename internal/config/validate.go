package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDisplayNum indicates a negative display number
	ErrInvalidDisplayNum = errors.New("invalid display number")

	// ErrInvalidTimeout indicates a non-positive start/stop timeout
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrEmptyBinary indicates a missing server executable
	ErrEmptyBinary = errors.New("empty server binary")

	// ErrEmptyPath indicates a missing directory setting
	ErrEmptyPath = errors.New("empty path")

	// ErrInvalidLogFormat indicates an unsupported log format
	ErrInvalidLogFormat = errors.New("invalid log format")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateDisplay(&cfg.Display); err != nil {
		errs = append(errs, err)
	}

	if strings.TrimSpace(cfg.StateDir) == "" {
		errs = append(errs, fmt.Errorf("%w: state_dir is required", ErrEmptyPath))
	}

	if err := validateLog(&cfg.Log); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateDisplay(cfg *DisplayConfig) error {
	var errs []error

	if cfg.Num != nil && *cfg.Num < 0 {
		errs = append(errs, fmt.Errorf("%w: must not be negative, got %d", ErrInvalidDisplayNum, *cfg.Num))
	}

	if cfg.TimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("%w: timeout_ms must be positive, got %d", ErrInvalidTimeout, cfg.TimeoutMs))
	}

	if strings.TrimSpace(cfg.Binary) == "" {
		errs = append(errs, fmt.Errorf("%w: binary is required", ErrEmptyBinary))
	}

	if strings.TrimSpace(cfg.LockDir) == "" {
		errs = append(errs, fmt.Errorf("%w: lock_dir is required", ErrEmptyPath))
	}

	return errors.Join(errs...)
}

func validateLog(cfg *LogConfig) error {
	switch strings.ToLower(cfg.Format) {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("%w: must be 'text' or 'json', got '%s'", ErrInvalidLogFormat, cfg.Format)
	}
}
