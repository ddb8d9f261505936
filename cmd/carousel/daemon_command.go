package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"carousel/internal/ipc"
	"carousel/internal/logging"
	"carousel/internal/mounts"
	"carousel/internal/notifications"
	"carousel/internal/orchestrator"
	"carousel/internal/session"
	"carousel/internal/stage"
	"carousel/internal/worker"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the carousel daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), ctx)
		},
	}
}

func runDaemon(cmdCtx context.Context, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another carousel daemon is already running (lock %s)", cfg.LockPath())
	}
	defer func() { _ = lock.Unlock() }()

	store, err := session.Open(cfg.SessionDBPath())
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)

	factories := orchestrator.Factories{
		Scan:   func() worker.Transport { return worker.NewExecTransport(stage.Scan) },
		Copy:   func() worker.Transport { return worker.NewExecTransport(stage.Copy) },
		Rename: func() worker.Transport { return worker.NewExecTransport(stage.Rename) },
		Backup: func() worker.Transport { return worker.NewExecTransport(stage.Backup) },
	}
	orch := orchestrator.New(cfg, factories, notifier, store, logger)

	runDone := make(chan error, 1)
	runCtx, stopRun := context.WithCancel(signalCtx)
	defer stopRun()
	go func() { runDone <- orch.Run(runCtx) }()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), orch, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	monitor := mounts.NewMonitor(logger, orch.HandleMountEvent)
	if err := monitor.Start(signalCtx); err != nil {
		logger.Warn("mount monitor", logging.Error(err))
	}
	defer monitor.Stop()

	announceExistingVolumes(orch, logger)

	if cfg.Download.ThisComputerPath != "" {
		if _, err := orch.AddPath(cfg.Download.ThisComputerPath); err != nil {
			logger.Warn("failed to register this-computer path",
				logging.Error(err),
				logging.String("path", cfg.Download.ThisComputerPath))
		}
	}

	logger.Info("carousel daemon ready",
		logging.String("socket", cfg.SocketPath()),
		logging.String(logging.FieldEventType, "daemon_ready"))

	select {
	case <-signalCtx.Done():
		logger.Info("carousel daemon shutting down")
		stopRun()
		<-runDone
	case err := <-runDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("carousel daemon exiting")
	}
	return nil
}

// announceExistingVolumes feeds volumes already mounted at startup through
// the same path hotplug events take.
func announceExistingVolumes(orch *orchestrator.Orchestrator, logger *slog.Logger) {
	mounted, err := mounts.List()
	if err != nil {
		logger.Warn("failed to enumerate mounts", logging.Error(err))
		return
	}
	for _, m := range mounts.External(mounted) {
		orch.HandleMountEvent(mounts.Event{
			Added:  true,
			Device: m.Device,
			Path:   m.Path,
			Label:  mounts.DisplayName(m.Path),
		})
	}
}
