package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/xvfb-supervisor/internal/display"
	xlog "github.com/mvp-joe/xvfb-supervisor/internal/log"
	"github.com/mvp-joe/xvfb-supervisor/internal/process"
	"github.com/mvp-joe/xvfb-supervisor/internal/session"
	"github.com/mvp-joe/xvfb-supervisor/internal/xvfb"
)

var processFromPID = process.FromPID

var (
	stopAll       bool
	stopTimeoutMs int
)

var stopCmd = &cobra.Command{
	Use:   "stop [display]",
	Short: "Stop a detached Xvfb display",
	Long: `Stop a display started with 'xvfbctl start --detach'.

The server is sent SIGTERM and xvfbctl waits for its lock file to
disappear. The session is forgotten either way.

A recorded server whose PID no longer owns the display's lock file (or, with
no lock file, no longer runs the recorded binary) is assumed gone. Its
session is forgotten and nothing is signalled.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStop,
}

func init() {
	stopCmd.Flags().BoolVar(&stopAll, "all", false, "stop every recorded server")
	stopCmd.Flags().IntVar(&stopTimeoutMs, "timeout", 0, "milliseconds to wait for the lock file to disappear")

	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, nil)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("timeout") {
		a.cfg.Display.TimeoutMs = stopTimeoutMs
	}

	reg, err := a.registry()
	if err != nil {
		return err
	}

	var targets []session.Session
	switch {
	case stopAll:
		if targets, err = reg.List(); err != nil {
			return err
		}
	case len(args) == 1:
		s, err := reg.Get(args[0])
		if errors.Is(err, session.ErrNotFound) {
			return fmt.Errorf("no detached server recorded for %s", args[0])
		}
		if err != nil {
			return err
		}
		targets = []session.Session{s}
	default:
		return errors.New("specify a display or --all")
	}

	var errs []error
	for _, s := range targets {
		stopped, err := stopSession(a, reg, s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if stopped {
			fmt.Fprintf(a.stdout, "Stopped %s\n", s.Display)
		}
	}
	return errors.Join(errs...)
}

// stopSession stops a recorded server and forgets it. It reports false when
// the recorded PID no longer belongs to the server, in which case nothing
// is signalled.
func stopSession(a *app, reg *session.Registry, s session.Session) (bool, error) {
	if !session.Owned(a.probe(), s) {
		if err := forget(reg, s); err != nil {
			return false, err
		}
		a.logger.Debug("recorded pid is not the display server",
			xlog.DisplayKey, s.Display,
			xlog.PIDKey, s.PID)
		fmt.Fprintf(a.stderr, "Forgot stale session %s (pid %d is no longer its server)\n", s.Display, s.PID)
		return false, nil
	}

	sup, err := sessionSupervisor(a, s)
	if err != nil {
		return false, fmt.Errorf("%s: %w", s.Display, err)
	}

	stopErr := sup.Stop()
	if err := forget(reg, s); err != nil {
		return false, err
	}
	return stopErr == nil, stopErr
}

func forget(reg *session.Registry, s session.Session) error {
	if err := reg.Remove(s.Display); err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}
	return nil
}

// sessionSupervisor builds a supervisor pinned to a recorded session's
// display and hands it the session's process, ready for Stop.
func sessionSupervisor(a *app, s session.Session) (*xvfb.Supervisor, error) {
	n, err := display.Parse(s.Display)
	if err != nil {
		return nil, err
	}

	opts := a.supervisorOptions()
	opts.DisplayNum = xvfb.Int(n)
	sup, err := xvfb.New(opts)
	if err != nil {
		return nil, err
	}

	h, err := processFromPID(s.PID)
	if err != nil {
		return nil, err
	}
	if err := sup.Adopt(h); err != nil {
		return nil, err
	}
	return sup, nil
}
