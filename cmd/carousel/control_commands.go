package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"carousel/internal/ipc"
)

func newControlCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start [device-id]",
		Short: "Start downloading scanned devices (all ready devices when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID := 0
			if len(args) == 1 {
				id, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("device id must be a number: %q", args[0])
				}
				deviceID = id
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StartDownload(deviceID)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Started == 0 {
					if resp.Message != "" {
						return fmt.Errorf("%s", resp.Message)
					}
					return fmt.Errorf("no downloads started")
				}
				fmt.Fprintf(stdout, "Download started on %d device(s)\n", resp.Started)
				return nil
			})
		},
	}

	pauseCmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause the active download",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Pause()
				if err != nil {
					return err
				}
				if !resp.Paused {
					fmt.Fprintln(cmd.OutOrStdout(), "No active download to pause")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Download paused")
				return nil
			})
		},
	}

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused download",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Resume()
				if err != nil {
					return err
				}
				if !resp.Resumed {
					fmt.Fprintln(cmd.OutOrStdout(), "No paused download to resume")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Download resumed")
				return nil
			})
		},
	}

	jobCodeCmd := &cobra.Command{
		Use:   "jobcode <code>",
		Short: "Supply the job code a pending download is waiting on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SubmitJobCode(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job code accepted; %d device(s) released\n", resp.Released)
				return nil
			})
		},
	}

	scanDecisionCmd := &cobra.Command{
		Use:   "scan-decision <device-id> <retry|ignore>",
		Short: "Answer a scan error prompt for a device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("device id must be a number: %q", args[0])
			}
			var retry bool
			switch args[1] {
			case "retry":
				retry = true
			case "ignore":
			default:
				return fmt.Errorf("decision must be retry or ignore, got %q", args[1])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ResolveScanError(deviceID, retry); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Decision applied")
				return nil
			})
		},
	}

	testNotifyCmd := &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the configured channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			})
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask the daemon to shut down cleanly",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Shutdown(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Shutdown requested")
				return nil
			})
		},
	}

	return []*cobra.Command{startCmd, pauseCmd, resumeCmd, jobCodeCmd, scanDecisionCmd, testNotifyCmd, stopCmd}
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a download source manually",
	}

	addPathCmd := &cobra.Command{
		Use:   "path <directory>",
		Short: "Register a local directory as a download source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.AddPath(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered device %d\n", resp.DeviceID)
				return nil
			})
		},
	}

	var cameraPort string
	var cameraMount string
	addCameraCmd := &cobra.Command{
		Use:   "camera <model>",
		Short: "Register a camera, unmounting it first if the desktop grabbed it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.AddCamera(args[0], cameraPort, cameraMount)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.DeviceID == 0 {
					fmt.Fprintln(stdout, "Camera unmount negotiated; it will be registered once released")
					return nil
				}
				fmt.Fprintf(stdout, "Registered camera as device %d\n", resp.DeviceID)
				return nil
			})
		},
	}
	addCameraCmd.Flags().StringVar(&cameraPort, "port", "", "Camera port, e.g. usb:001,004")
	addCameraCmd.Flags().StringVar(&cameraMount, "mount", "", "Mount point the desktop auto-mounted the camera at")

	addCmd.AddCommand(addPathCmd)
	addCmd.AddCommand(addCameraCmd)
	return addCmd
}
