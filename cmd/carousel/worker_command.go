package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"carousel/internal/stage"
	"carousel/internal/worker"
	"carousel/internal/worker/backupworker"
	"carousel/internal/worker/copyworker"
	"carousel/internal/worker/renameworker"
	"carousel/internal/worker/scanworker"
)

// newWorkerCommand is the child-process entrypoint the daemon spawns for
// each pipeline stage. It speaks the envelope protocol over stdio and is
// not meant to be invoked by hand.
func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "worker <stage>",
		Hidden:      true,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var run worker.RunFunc
			switch args[0] {
			case stage.Scan:
				run = scanworker.Run
			case stage.Copy:
				run = copyworker.Run
			case stage.Rename:
				run = renameworker.Run
			case stage.Backup:
				run = backupworker.Run
			default:
				return fmt.Errorf("unknown worker stage %q", args[0])
			}
			return worker.ServeStdio(cmd.Context(), run)
		},
	}
}
