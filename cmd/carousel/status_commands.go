package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"carousel/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and download status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Running", statusOK, fmt.Sprintf("pid %d", status.PID), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Socket", statusInfo, status.SocketPath, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Devices", statusInfo, fmt.Sprintf("%d", status.Devices), colorize))
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Download", colorize) {
					fmt.Fprintln(stdout, line)
				}
				switch {
				case status.Downloading && status.Paused:
					fmt.Fprintln(stdout, renderStatusLine("State", statusWarn, "paused", colorize))
				case status.Downloading:
					fmt.Fprintln(stdout, renderStatusLine("State", statusOK, "downloading", colorize))
				default:
					fmt.Fprintln(stdout, renderStatusLine("State", statusInfo, "idle", colorize))
				}
				if status.Downloading {
					fmt.Fprintln(stdout, renderStatusLine("Progress", statusInfo,
						fmt.Sprintf("%.1f%%", status.OverallPercent), colorize))
					if status.TimeRemaining != "" {
						fmt.Fprintln(stdout, renderStatusLine("Remaining", statusInfo, status.TimeRemaining, colorize))
					}
				}
				if status.JobCodeNeeded {
					fmt.Fprintln(stdout, renderStatusLine("Job code", statusWarn,
						"waiting; supply one with `carousel jobcode <code>`", colorize))
				}
				return nil
			})
		},
	}
}

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List attached devices and their pipeline state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Devices()
				if err != nil {
					return err
				}

				stdout := cmd.OutOrStdout()
				if len(resp.Devices) == 0 {
					fmt.Fprintln(stdout, "No devices attached")
					return nil
				}

				rows := make([][]string, 0, len(resp.Devices))
				for _, d := range resp.Devices {
					rows = append(rows, []string{
						fmt.Sprintf("%d", d.ID),
						d.Kind,
						d.Name,
						d.State,
						fmt.Sprintf("%d", d.Photos),
						fmt.Sprintf("%d", d.Videos),
						humanize.Bytes(uint64(d.TotalBytes)),
						fmt.Sprintf("%.1f%%", d.Percent),
					})
				}
				table := renderTable(
					[]string{"ID", "Kind", "Name", "State", "Photos", "Videos", "Size", "Progress"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
				)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}
}
