package cmd

import (
	"context"
	"os"
	"os/signal"
	"streamwatch/internal/daemon"
	"streamwatch/internal/db"
	"streamwatch/internal/logger"
	"streamwatch/internal/repository"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start the daemon and copy files as they become stable",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	defer logger.Sync()
	// runs after srv.Stop, once the last records are saved
	defer func() {
		if err := db.Close(); err != nil {
			logger.Log.Warn("failed to close history db", zap.Error(err))
		}
	}()

	repo := repository.NewHistoryRepository()

	manager, err := daemon.NewManager(cfg, repo)
	if err != nil {
		return err
	}

	if err := manager.Start(context.Background()); err != nil {
		return err
	}

	srv := daemon.NewServer(manager, repo, cfg.DaemonPort)
	srv.Start()

	logger.Log.Info("streamwatch daemon started",
		zap.String("src", cfg.SourceRoot),
		zap.String("dst", cfg.DestinationRoot),
		zap.Int("port", cfg.DaemonPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))
	case <-srv.StopCh():
		logger.Log.Info("stop requested via API")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace+5*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
