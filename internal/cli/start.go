package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/xvfb-supervisor/internal/display"
	xlog "github.com/mvp-joe/xvfb-supervisor/internal/log"
	"github.com/mvp-joe/xvfb-supervisor/internal/metrics"
	"github.com/mvp-joe/xvfb-supervisor/internal/session"
	"github.com/mvp-joe/xvfb-supervisor/internal/xvfb"
)

var (
	startFlags       displayFlags
	startDetach      bool
	startMetricsAddr string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an Xvfb display",
	Long: `Start Xvfb and print its display identifier once the server's lock
file exists.

Without --detach the server runs until xvfbctl is interrupted, then it is
stopped. With --detach xvfbctl records the server in its session registry
and exits, leaving the server running; stop it later with 'xvfbctl stop'.
A detached server's stderr goes to a log file in the state directory.`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func init() {
	startFlags.register(startCmd.Flags())
	startCmd.Flags().BoolVarP(&startDetach, "detach", "d", false, "leave the server running and exit")
	startCmd.Flags().StringVar(&startMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9101)")

	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, &startFlags)
	if err != nil {
		return err
	}
	if startDetach {
		if startMetricsAddr != "" {
			return errors.New("--metrics-addr needs a foreground start")
		}
		return runStartDetached(a)
	}
	return runStartForeground(cmd, a, startMetricsAddr)
}

func runStartForeground(cmd *cobra.Command, a *app, metricsAddr string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rec := metrics.NewRecorder()
	if metricsAddr != "" {
		stop, err := serveMetrics(a, rec, metricsAddr)
		if err != nil {
			return err
		}
		defer stop()
	}

	sup, err := xvfb.New(a.supervisorOptions())
	if err != nil {
		return err
	}

	began := time.Now()
	h, err := sup.Start()
	rec.Start(sup.Display(), sup.Attached(), time.Since(began), err)
	if err != nil {
		return cleanupFailedStart(a, err)
	}
	fmt.Fprintln(a.stdout, sup.Display())

	var exited <-chan struct{}
	if h != nil {
		exited = h.Done()
	}
	select {
	case <-ctx.Done():
	case <-exited:
		a.logger.Warn("display server exited on its own",
			xlog.DisplayKey, sup.Display(),
			xlog.Error(h.Err()))
	}

	began = time.Now()
	err = sup.Stop()
	rec.Stop(sup.Display(), time.Since(began), err)
	return err
}

// serveMetrics exposes rec on addr until the returned func is called.
func serveMetrics(a *app, rec *metrics.Recorder, addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server failed", xlog.Error(err))
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

func runStartDetached(a *app) error {
	reg, err := a.registry()
	if err != nil {
		return err
	}

	opts := a.supervisorOptions()
	opts.Detach = true

	// Pin the display so the log file name matches the server.
	d := display.NewAllocator(a.probe(), opts.DisplayNum, opts.Reuse).Resolve()
	n, err := display.Parse(d)
	if err != nil {
		return err
	}
	opts.DisplayNum = xvfb.Int(n)

	logPath := ""
	if !opts.Silent {
		logPath = reg.LogPath(d)
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open server log: %w", err)
		}
		defer logFile.Close()
		opts.Stderr = logFile
	}

	sup, err := xvfb.New(opts)
	if err != nil {
		return err
	}

	h, err := sup.Start()
	if err != nil {
		return cleanupFailedStart(a, err)
	}

	if h != nil {
		s, err := reg.Add(session.Session{
			Display:  sup.Display(),
			PID:      h.Pid(),
			LockFile: sup.LockFile(),
			Binary:   a.cfg.Display.Binary,
			Args:     a.cfg.Display.XvfbArgs,
			LogFile:  logPath,
		})
		if err != nil {
			return fmt.Errorf("server started on %s but could not be recorded: %w", sup.Display(), err)
		}
		a.logger.Info("detached display server",
			xlog.DisplayKey, s.Display,
			xlog.PIDKey, s.PID,
			xlog.SessionIDKey, s.ID)
	}

	fmt.Fprintln(a.stdout, sup.Display())
	return nil
}

// cleanupFailedStart kills a server left behind by a start timeout. The
// supervisor leaves that decision to its caller; the CLI has no use for a
// server it could not confirm.
func cleanupFailedStart(a *app, err error) error {
	var xerr *xvfb.Error
	if errors.As(err, &xerr) && xerr.Handle != nil && xerr.Handle.Process() != nil {
		if killErr := xerr.Handle.Process().Kill(); killErr == nil {
			a.logger.Debug("killed unconfirmed display server", xlog.PIDKey, xerr.Handle.Pid())
		}
	}
	if errors.Is(err, xvfb.ErrCollision) {
		return fmt.Errorf("%w (use --reuse to attach, or pick another display)", err)
	}
	return err
}
