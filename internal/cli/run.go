package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/xvfb-supervisor/internal/envguard"
	xlog "github.com/mvp-joe/xvfb-supervisor/internal/log"
	"github.com/mvp-joe/xvfb-supervisor/internal/xvfb"
)

// childWaitDelay bounds how long run waits for a signalled command's
// output pipes to close.
const childWaitDelay = 5 * time.Second

var runFlags displayFlags

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Run a command against a throwaway display",
	Long: `Start Xvfb, run command with DISPLAY pointing at it, then stop the
server. xvfbctl exits with the command's exit status.

Interrupting xvfbctl forwards SIGTERM to the command and still stops the
server.`,
	Example: `  xvfbctl run -- npm test
  xvfbctl run -a -screen -a 0 -a 1920x1080x24 -- ./e2e.sh`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runFlags.register(runCmd.Flags())
	runCmd.Flags().SetInterspersed(false)

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, &runFlags)
	if err != nil {
		return err
	}

	sup, err := xvfb.New(a.supervisorOptions())
	if err != nil {
		return err
	}
	if _, err := sup.Start(); err != nil {
		return cleanupFailedStart(a, err)
	}

	runErr := runChild(cmd, a, sup.Display(), args)
	stopErr := sup.Stop()

	var exitErr *ExitError
	if errors.As(runErr, &exitErr) {
		if stopErr != nil {
			a.logger.Warn("failed to stop display server", xlog.Error(stopErr))
		}
		return runErr
	}
	return errors.Join(runErr, stopErr)
}

// runChild runs args with DISPLAY set to d and maps a non-zero exit to
// ExitError.
func runChild(cmd *cobra.Command, a *app, d string, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	child := exec.CommandContext(ctx, args[0], args[1:]...)
	child.Env = envguard.Environ(os.Environ(), d)
	child.Stdin = cmd.InOrStdin()
	child.Stdout = a.stdout
	child.Stderr = a.stderr
	child.Cancel = func() error {
		return child.Process.Signal(syscall.SIGTERM)
	}
	child.WaitDelay = childWaitDelay

	a.logger.Debug("running command", xlog.DisplayKey, d, "argv", args)

	err := child.Run()
	if err == nil {
		return nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code := ee.ExitCode()
		if code < 0 {
			// Killed by a signal.
			code = 1
		}
		return &ExitError{Code: code}
	}
	return fmt.Errorf("failed to run %s: %w", args[0], err)
}
