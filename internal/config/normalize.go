package config

import (
	"fmt"
	"strings"
)

// normalize expands user paths and canonicalizes enum-like fields so the rest
// of the repository never re-checks them.
func (c *Config) normalize() error {
	for name, field := range map[string]*string{
		"paths.state_dir":            &c.Paths.StateDir,
		"paths.log_dir":              &c.Paths.LogDir,
		"download.photo_folder":      &c.Download.PhotoFolder,
		"download.video_folder":      &c.Download.VideoFolder,
		"download.this_computer_path": &c.Download.ThisComputerPath,
		"backup.photo_location":      &c.Backup.PhotoLocation,
		"backup.video_location":      &c.Backup.VideoLocation,
	} {
		value := strings.TrimSpace(*field)
		if value == "" {
			*field = ""
			continue
		}
		expanded, err := expandPath(value)
		if err != nil {
			return fmt.Errorf("normalize %s: %w", name, err)
		}
		*field = expanded
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	c.Download.ScanErrorPolicy = strings.ToLower(strings.TrimSpace(c.Download.ScanErrorPolicy))
	if c.Download.ScanErrorPolicy == "" {
		c.Download.ScanErrorPolicy = defaultScanErrorPolicy
	}

	c.Backup.PhotoIdentifier = strings.TrimSpace(c.Backup.PhotoIdentifier)
	if c.Backup.PhotoIdentifier == "" {
		c.Backup.PhotoIdentifier = defaultPhotoIdentifier
	}
	c.Backup.VideoIdentifier = strings.TrimSpace(c.Backup.VideoIdentifier)
	if c.Backup.VideoIdentifier == "" {
		c.Backup.VideoIdentifier = defaultVideoIdentifier
	}

	if c.Rename.SequenceDigits <= 0 {
		c.Rename.SequenceDigits = defaultSequenceDigits
	}
	if c.Workers.ScanBatchSize <= 0 {
		c.Workers.ScanBatchSize = defaultScanBatchSize
	}
	if c.Workers.CopyChunkKiB <= 0 {
		c.Workers.CopyChunkKiB = defaultCopyChunkKiB
	}

	return nil
}
