package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	dir  string
	file string
}

// NewLoader returns a Loader that looks for config.yml in dir. If file is
// non-empty it is read instead and must exist.
func NewLoader(dir, file string) Loader {
	return &loader{dir: dir, file: file}
}

// Load reads the config file (missing is not an error unless it was named
// explicitly), applies XVFBCTL_* overrides and validates the result.
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	if l.file != "" {
		v.SetConfigFile(l.file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(l.dir)
	}

	v.SetEnvPrefix("XVFBCTL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVars(v)
	setDefaults(v, l.dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || l.file != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// bindEnvVars binds every key so AutomaticEnv sees it during Unmarshal.
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("display.num")
	v.BindEnv("display.reuse")
	v.BindEnv("display.timeout_ms")
	v.BindEnv("display.silent")
	v.BindEnv("display.xvfb_args")
	v.BindEnv("display.binary")
	v.BindEnv("display.lock_dir")

	v.BindEnv("state_dir")

	v.BindEnv("log.level")
	v.BindEnv("log.format")
}

// setDefaults configures viper with default values. display.num has no
// default: absent means auto-allocate.
func setDefaults(v *viper.Viper, dir string) {
	defaults := Default(dir)

	v.SetDefault("display.reuse", defaults.Display.Reuse)
	v.SetDefault("display.timeout_ms", defaults.Display.TimeoutMs)
	v.SetDefault("display.silent", defaults.Display.Silent)
	v.SetDefault("display.xvfb_args", defaults.Display.XvfbArgs)
	v.SetDefault("display.binary", defaults.Display.Binary)
	v.SetDefault("display.lock_dir", defaults.Display.LockDir)

	v.SetDefault("state_dir", defaults.StateDir)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
}

// Dir returns ~/.xvfbctl.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Load is a convenience function that loads from ~/.xvfbctl, or from file
// when non-empty.
func Load(file string) (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return NewLoader(dir, file).Load()
}
