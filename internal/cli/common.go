package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mvp-joe/xvfb-supervisor/internal/config"
	"github.com/mvp-joe/xvfb-supervisor/internal/display"
	xlog "github.com/mvp-joe/xvfb-supervisor/internal/log"
	"github.com/mvp-joe/xvfb-supervisor/internal/session"
	"github.com/mvp-joe/xvfb-supervisor/internal/xvfb"
)

// displayFlags override the display section of the config.
type displayFlags struct {
	num       int
	reuse     bool
	timeoutMs int
	silent    bool
	xvfbArgs  []string
	binary    string
}

func (f *displayFlags) register(fs *pflag.FlagSet) {
	fs.IntVarP(&f.num, "display-num", "n", 0, "use this display number instead of allocating one")
	fs.BoolVar(&f.reuse, "reuse", false, "attach to the display if it is already running")
	fs.IntVar(&f.timeoutMs, "timeout", 0, "milliseconds to wait for the server to start or stop (default 500)")
	fs.BoolVar(&f.silent, "silent", false, "discard Xvfb's stderr")
	fs.StringArrayVarP(&f.xvfbArgs, "xvfb-arg", "a", nil, "extra argument for Xvfb (repeatable)")
	fs.StringVar(&f.binary, "binary", "", "Xvfb executable (default Xvfb from PATH)")
}

// apply copies explicitly set flags over cfg.
func (f *displayFlags) apply(fs *pflag.FlagSet, cfg *config.DisplayConfig) {
	if fs.Changed("display-num") {
		n := f.num
		cfg.Num = &n
	}
	if fs.Changed("reuse") {
		cfg.Reuse = f.reuse
	}
	if fs.Changed("timeout") {
		cfg.TimeoutMs = f.timeoutMs
	}
	if fs.Changed("silent") {
		cfg.Silent = f.silent
	}
	if fs.Changed("xvfb-arg") {
		cfg.XvfbArgs = append([]string(nil), f.xvfbArgs...)
	}
	if fs.Changed("binary") {
		cfg.Binary = f.binary
	}
}

// app is the per-invocation state every command starts from.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

// loadApp reads configuration, applies global and display flags, and
// builds the logger.
func loadApp(cmd *cobra.Command, df *displayFlags) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if lockDir != "" {
		cfg.Display.LockDir = lockDir
	}
	if df != nil {
		df.apply(cmd.Flags(), &cfg.Display)
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}

	return &app{
		cfg:    cfg,
		logger: newLogger(cfg, verbose, cmd.ErrOrStderr()),
		stdout: cmd.OutOrStdout(),
		stderr: cmd.ErrOrStderr(),
	}, nil
}

// newLogger layers XVFBCTL_DEBUG and LOG_FORMAT from the environment and
// the --verbose flag over the configured log settings.
func newLogger(cfg *config.Config, debug bool, out io.Writer) *slog.Logger {
	lc := xlog.FromEnv()
	if !lc.AddSource {
		lc.Level = cfg.Log.Level
	}
	if os.Getenv("LOG_FORMAT") == "" {
		lc.Format = xlog.Format(cfg.Log.Format)
	}
	if debug {
		lc.Level = "debug"
	}
	lc.Output = out
	return xlog.New(lc)
}

// supervisorOptions returns supervisor options for the loaded config.
func (a *app) supervisorOptions() xvfb.Options {
	opts := a.cfg.Display.Options()
	opts.Stderr = a.stderr
	opts.Logger = a.logger
	return opts
}

func (a *app) probe() *display.Probe {
	return display.NewProbe(a.cfg.Display.LockDir)
}

func (a *app) registry() (*session.Registry, error) {
	return session.Open(a.cfg.StateDir)
}
