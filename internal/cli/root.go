// Package cli implements the xvfbctl command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	lockDir string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xvfbctl",
	Short: "Start, stop and inspect headless X displays",
	Long: `xvfbctl supervises Xvfb virtual displays.

It picks a free display (from :99 upward), launches Xvfb on it, waits for
the server's lock file to appear, and later kills it and waits for the
lock file to go away. DISPLAY is set for the server's lifetime and
restored afterwards.

Run a command against a throwaway display:

  xvfbctl run -- npm test

Or keep a display around between commands:

  export DISPLAY=$(xvfbctl start --detach)
  ...
  xvfbctl stop $DISPLAY`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExitError carries a child's exit status out of `xvfbctl run`.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute runs the root command and exits with an appropriate status.
// This is called by main.main().
func Execute() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes rootCmd with args and maps the outcome to an exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return 1
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.xvfbctl/config.yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&lockDir, "lock-dir", "", "directory holding .X<n>-lock files (default /tmp)")
}
