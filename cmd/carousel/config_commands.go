package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"carousel/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigValidateCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set your download folders before running the daemon.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Download", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Photo folder", statusInfo, cfg.Download.PhotoFolder, colorize))
			fmt.Fprintln(out, renderStatusLine("Video folder", statusInfo, cfg.Download.VideoFolder, colorize))
			fmt.Fprintln(out, renderStatusLine("Autodetect", statusInfo, yesNo(cfg.Download.DeviceAutodetection), colorize))
			fmt.Fprintln(out, renderStatusLine("Auto download", statusInfo, yesNo(cfg.Download.AutoDownloadOnInsert), colorize))
			fmt.Fprintln(out, renderStatusLine("Verify files", statusInfo, yesNo(cfg.Download.VerifyFiles), colorize))
			fmt.Fprintln(out, renderStatusLine("Move", statusInfo, yesNo(cfg.Download.Move), colorize))
			fmt.Fprintln(out)

			for _, line := range renderSectionHeader("Rename", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Photo template", statusInfo, cfg.Rename.PhotoTemplate, colorize))
			fmt.Fprintln(out, renderStatusLine("Video template", statusInfo, cfg.Rename.VideoTemplate, colorize))
			fmt.Fprintln(out, renderStatusLine("Job code", statusInfo, yesNo(cfg.UsesJobCode()), colorize))
			fmt.Fprintln(out)

			for _, line := range renderSectionHeader("Backup", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Enabled", statusInfo, yesNo(cfg.Backup.Enabled), colorize))
			fmt.Fprintln(out, renderStatusLine("Auto-detect", statusInfo, yesNo(cfg.Backup.AutoDetect), colorize))
			if cfg.Backup.AutoDetect {
				fmt.Fprintln(out, renderStatusLine("Photo marker", statusInfo, cfg.Backup.PhotoIdentifier, colorize))
				fmt.Fprintln(out, renderStatusLine("Video marker", statusInfo, cfg.Backup.VideoIdentifier, colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Photo location", statusInfo, cfg.Backup.PhotoLocation, colorize))
				fmt.Fprintln(out, renderStatusLine("Video location", statusInfo, cfg.Backup.VideoLocation, colorize))
			}
			return nil
		},
	}
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load("")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
