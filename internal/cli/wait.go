package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/xvfb-supervisor/internal/display"
	"github.com/mvp-joe/xvfb-supervisor/internal/watcher"
)

var (
	waitGone    bool
	waitTimeout time.Duration
)

var waitCmd = &cobra.Command{
	Use:   "wait display",
	Short: "Block until a display comes up or goes away",
	Long: `Block until the lock file for display exists, or with --gone until it
has been removed. Uses filesystem notifications rather than polling, so it
can wait indefinitely.`,
	Example: `  xvfbctl wait :99
  xvfbctl wait --gone --timeout 10s :99`,
	Args: cobra.ExactArgs(1),
	RunE: runWait,
}

func init() {
	waitCmd.Flags().BoolVar(&waitGone, "gone", false, "wait for the lock file to be removed")
	waitCmd.Flags().DurationVar(&waitTimeout, "timeout", 0, "give up after this long (default: wait forever)")

	rootCmd.AddCommand(waitCmd)
}

func runWait(cmd *cobra.Command, args []string) error {
	d := args[0]
	if _, err := display.Parse(d); err != nil {
		return err
	}

	a, err := loadApp(cmd, nil)
	if err != nil {
		return err
	}

	w, err := watcher.NewLockWatcher(a.probe(), a.logger)
	if err != nil {
		return err
	}
	defer w.Close()

	ctx := cmd.Context()
	if waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, waitTimeout)
		defer cancel()
	}

	err = w.WaitFor(ctx, d, !waitGone)
	if errors.Is(err, context.DeadlineExceeded) {
		state := "up"
		if waitGone {
			state = "gone"
		}
		return fmt.Errorf("%s was not %s after %s", d, state, waitTimeout)
	}
	return err
}
