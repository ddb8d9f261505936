package config

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateRename(); err != nil {
		return err
	}
	if err := c.validateBackup(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateDownload() error {
	if c.Download.PhotoFolder == "" {
		return errors.New("download.photo_folder must be set")
	}
	if c.Download.VideoFolder == "" {
		return errors.New("download.video_folder must be set")
	}
	switch c.Download.ScanErrorPolicy {
	case "prompt", "retry", "ignore":
	default:
		return fmt.Errorf("download.scan_error_policy must be prompt, retry, or ignore, got %q", c.Download.ScanErrorPolicy)
	}
	return nil
}

func (c *Config) validateRename() error {
	for name, tpl := range map[string]string{
		"rename.photo_template": c.Rename.PhotoTemplate,
		"rename.video_template": c.Rename.VideoTemplate,
	} {
		if tpl == "" {
			return fmt.Errorf("%s must be set", name)
		}
	}
	return nil
}

func (c *Config) validateBackup() error {
	if !c.Backup.Enabled || c.Backup.AutoDetect {
		return nil
	}
	if c.Backup.PhotoLocation == "" && c.Backup.VideoLocation == "" {
		return errors.New("backup is enabled without auto-detection but no backup location is set")
	}
	return nil
}

// InvalidDownloadFolders returns the configured download folders that cannot
// accept a download of the given types, with one diagnostic per folder.
// An empty result means the download may proceed.
func (c *Config) InvalidDownloadFolders(photos, videos bool) []string {
	var problems []string
	if photos {
		if msg := checkWritableDir(c.Download.PhotoFolder); msg != "" {
			problems = append(problems, fmt.Sprintf("photo download folder %s: %s", c.Download.PhotoFolder, msg))
		}
	}
	if videos {
		if msg := checkWritableDir(c.Download.VideoFolder); msg != "" {
			problems = append(problems, fmt.Sprintf("video download folder %s: %s", c.Download.VideoFolder, msg))
		}
	}
	return problems
}

func checkWritableDir(path string) string {
	if path == "" {
		return "not set"
	}
	info, err := os.Stat(path)
	if err != nil {
		return "does not exist"
	}
	if !info.IsDir() {
		return "not a directory"
	}
	if err := unix.Access(path, unix.W_OK); err != nil {
		return "not writable"
	}
	return ""
}
