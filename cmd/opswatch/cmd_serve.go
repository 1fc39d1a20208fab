package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/user/opswatch/internal/history"
	"github.com/user/opswatch/internal/monitor"
	"github.com/user/opswatch/internal/session"
	"github.com/user/opswatch/internal/transcript"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the opswatch daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "opswatch.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Session store with background sweep. The request layer that
	// serves sessions lives outside this process boundary.
	sessions := session.New(session.Config{
		TTL:           cfg.SessionTTL(),
		MaxPerOwner:   cfg.Sessions.MaxPerOwner,
		SweepInterval: cfg.SweepInterval(),
	})
	sessions.Start()
	defer sessions.Stop()

	// Cycle history
	records := history.NewRecordStore(cfg.DataDir)
	loader := history.NewLoader(records, history.TrendPolicy{
		Window:    cfg.History.TrendWindow,
		Threshold: cfg.History.TrendThreshold,
	})

	// Transcript pruning; exact tokenizer only when configured.
	var estimator transcript.SizeEstimator = transcript.CharEstimator{}
	if cfg.Transcript.TokenizerModel != "" {
		tok, err := transcript.NewTokenEstimator(cfg.Transcript.TokenizerModel)
		if err != nil {
			return fmt.Errorf("create token estimator: %w", err)
		}
		estimator = tok
	}
	pruner := transcript.NewPruner(estimator, transcript.Config{
		PriorityKeywords: cfg.Transcript.PriorityKeywords,
		RecentEntries:    cfg.Transcript.RecentEntries,
		MaxEntries:       cfg.Transcript.MaxEntries,
	})

	// Monitoring cycles
	runner := monitor.NewRunner(
		monitor.NewFileInspector(cfg.DataDir),
		records, loader, pruner,
		monitor.Config{
			MaxRecords: cfg.History.MaxRecords,
			MaxAge:     cfg.HistoryMaxAge(),
			Budget:     cfg.Transcript.Budget,
		},
	)

	queue := monitor.NewQueue(int64(cfg.Monitor.MaxConcurrent))
	queue.SetProcessor(func(c *monitor.Cycle) error {
		return runner.RunCycle(c.Ctx, c.Target)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue.Start(ctx)
	defer queue.Stop()

	scheduler := monitor.NewScheduler(cfg.Monitor.Schedule, cfg.Monitor.Targets, queue)
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	slog.Info("opswatch started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"session_ttl", cfg.SessionTTL().String(),
		"max_sessions_per_owner", cfg.Sessions.MaxPerOwner,
		"monitor_schedule", cfg.Monitor.Schedule,
		"targets", len(cfg.Monitor.Targets),
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	stats := sessions.Stats()
	slog.Info("shutting down",
		"total_sessions", stats.TotalSessions,
		"active_sessions", stats.ActiveSessions,
		"owners", stats.TotalOwners,
	)
	return nil
}
