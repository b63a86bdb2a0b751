package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/harun/engram/internal/observability"
	"github.com/harun/engram/internal/tracing"
	"github.com/harun/engram/pkg/gateway"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the memory service in the foreground",
	Long: `Run the memory service in the foreground. When the gateway is
enabled in config, memories are served over WebSocket and HTTP JSON-RPC;
otherwise the process only keeps the index warm and flushed.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	pidFile := getPIDFilePath()
	if isRunning(pidFile) {
		return fmt.Errorf("service is already running (PID file: %s)", pidFile)
	}

	rt, err := buildRuntime(false)
	if err != nil {
		return err
	}
	defer rt.close()
	log := rt.logger()

	observability.EnsureRegistered()
	if rt.cfg.DataDir != "" {
		if err := observability.InitAuditLogger(filepath.Join(rt.cfg.DataDir, "audit.log")); err != nil {
			log.Warn().Err(err).Msg("Audit log unavailable, events go to stderr")
		}
	}
	if err := tracing.InitOpenTelemetry("engram"); err != nil {
		log.Warn().Err(err).Msg("OpenTelemetry init failed, continuing without traces")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.ShutdownOpenTelemetry(ctx)
	}()

	if err := writePIDFile(pidFile); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer os.Remove(pidFile)

	var srv *gateway.Server
	if rt.cfg.Gateway.Enabled {
		srv, err = gateway.NewServer(gateway.Config{
			Host:          rt.cfg.Gateway.Host,
			Port:          rt.cfg.Gateway.Port,
			SharedSecret:  rt.cfg.Gateway.SharedSecret,
			MemoryManager: rt.manager,
			Logger:        log,
		})
		if err != nil {
			return fmt.Errorf("failed to create gateway: %w", err)
		}
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start gateway: %w", err)
		}
	}

	log.Info().Str("version", version).Msg("Engram service started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	if srv != nil {
		if err := srv.Stop(); err != nil {
			log.Error().Err(err).Msg("Gateway shutdown error")
		}
	}
	if !rt.manager.ForceFlush() {
		log.Warn().Msg("Final index flush failed")
	}
	return nil
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644)
}

func getPIDFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/engram.pid"
	}
	return filepath.Join(home, ".engram", "engram.pid")
}

func isRunning(pidFile string) bool {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return false
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so probe with signal 0
	return process.Signal(syscall.Signal(0)) == nil
}
