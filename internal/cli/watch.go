package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/xvfb-supervisor/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print displays as they come up and go away",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, nil)
	if err != nil {
		return err
	}

	w, err := watcher.NewLockWatcher(a.probe(), a.logger)
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	events, err := w.Events(ctx)
	if err != nil {
		return err
	}
	for ev := range events {
		state := "down"
		if ev.Locked {
			state = "up"
		}
		fmt.Fprintf(a.stdout, "%s %s %s\n", time.Now().Format(time.TimeOnly), ev.Display, state)
	}
	return nil
}
