package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/prscore/internal/api"
	"github.com/joescharf/prscore/internal/daemon"
)

const (
	shutdownTimeout = 10 * time.Second
	stopTimeout     = 10 * time.Second
	startTimeout    = 5 * time.Second
	pollInterval    = 100 * time.Millisecond
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server in the foreground",
	Long: `Run the prscore HTTP API.

Listens on server.port (default 3001, or $PORT). CORS admits only
server.frontend_url. Use 'prscore serve start' to run it in the
background instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background API server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 0, "Port to listen on (overrides server.port)")
	_ = viper.BindPFlag("server.port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

// pidFile returns the PID file of the background server.
func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "prscore-serve.pid"))
}

// serveLogPath returns where the background server writes its output.
func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "prscore-serve.log")
}

func serveRun(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	cfg, log, svc, err := setup(ctx)
	if err != nil {
		return err
	}

	pf := pidFile()
	if err := pf.Acquire(); err != nil {
		return err
	}
	defer pf.Release()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(svc, cfg.Server.FrontendURL, log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			slog.String("addr", srv.Addr),
			slog.String("frontend_url", cfg.Server.FrontendURL),
			slog.String("db_driver", cfg.DB.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	logPath := serveLogPath()
	args := []string{"serve"}
	if port := viper.GetInt("server.port"); port != 0 {
		args = append(args, "--port", fmt.Sprint(port))
	}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	if verbose {
		args = append(args, "--verbose")
	}

	if dryRun {
		ui.DryRunMsg("Would start prscore %v, logging to %s", args, logPath)
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	pid := child.Process.Pid

	// The child writes the PID file once its config and store are ready.
	exited := make(chan error, 1)
	go func() { exited <- child.Wait() }()

	deadline := time.After(startTimeout)
	for {
		select {
		case err := <-exited:
			return fmt.Errorf("server exited during startup (see %s): %v", logPath, err)
		case <-deadline:
			ui.Warning("Server (pid %d) has not written %s yet; check %s", pid, pf.Path, logPath)
			return nil
		case <-time.After(pollInterval):
			if got, err := pf.Read(); err == nil && got == pid {
				ui.Success("Server started (pid %d)", pid)
				ui.Info("Logs: %s", logPath)
				return nil
			}
		}
	}
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		if pid != 0 {
			ui.VerboseLog("Removing stale PID file %s", pf.Path)
			_ = pf.Remove()
		}
		return fmt.Errorf("server is %w", daemon.ErrNotRunning)
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", pid)
		return nil
	}

	term, kill := stopSignals()
	if err := pf.Signal(term); err != nil {
		return fmt.Errorf("signal server: %w", err)
	}
	if !pf.WaitExit(stopTimeout, pollInterval) {
		ui.Warning("Server (pid %d) did not exit within %s, killing", pid, stopTimeout)
		if err := pf.Signal(kill); err != nil {
			return fmt.Errorf("kill server: %w", err)
		}
		pf.WaitExit(2*time.Second, pollInterval)
		_ = pf.Remove()
	}

	ui.Success("Server stopped (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	switch {
	case running:
		ui.Success("Server running (pid %d)", pid)
		ui.Info("Port: %d", viper.GetInt("server.port"))
		ui.Info("Logs: %s", serveLogPath())
	case pid != 0:
		ui.Warning("Server not running (stale PID file for pid %d)", pid)
	default:
		ui.Info("Server not running")
	}
	return nil
}
