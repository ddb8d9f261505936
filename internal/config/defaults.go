package config

const (
	defaultStateDir        = "~/.local/share/carousel"
	defaultLogDir          = "~/.local/share/carousel/logs"
	defaultPhotoFolder     = "~/Pictures"
	defaultVideoFolder     = "~/Videos"
	defaultPhotoTemplate   = "{date}-{time}-{seq}{ext}"
	defaultVideoTemplate   = "{date}-{time}-{seq}{ext}"
	defaultPhotoSubfolders = "{year}/{date}"
	defaultVideoSubfolders = "{year}/{date}"
	defaultPhotoIdentifier = "Photos"
	defaultVideoIdentifier = "Videos"
	defaultScanErrorPolicy = "ignore"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultScanGraceMS     = 2000
	defaultCopyGraceMS     = 1000
	defaultStopGraceMS     = 500
	defaultScanBatchSize   = 25
	defaultCopyChunkKiB    = 1024
	defaultSequenceDigits  = 4
	defaultNotifyTimeout   = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Download: Download{
			PhotoFolder:         defaultPhotoFolder,
			VideoFolder:         defaultVideoFolder,
			DeviceAutodetection: true,
			GenerateThumbnails:  true,
			IgnoredPaths:        []string{".Trash", ".thumbnails"},
			ScanErrorPolicy:     defaultScanErrorPolicy,
			OnlyExternalMounts:  true,
		},
		Rename: Rename{
			PhotoTemplate:    defaultPhotoTemplate,
			VideoTemplate:    defaultVideoTemplate,
			PhotoSubfolders:  defaultPhotoSubfolders,
			VideoSubfolders:  defaultVideoSubfolders,
			RememberJobCode:  true,
			SequenceDigits:   defaultSequenceDigits,
			StripIncompatble: true,
		},
		Backup: Backup{
			AutoDetect:      true,
			PhotoIdentifier: defaultPhotoIdentifier,
			VideoIdentifier: defaultVideoIdentifier,
		},
		Workers: Workers{
			ScanStopGraceMS:   defaultScanGraceMS,
			CopyStopGraceMS:   defaultCopyGraceMS,
			RenameStopGraceMS: defaultStopGraceMS,
			BackupStopGraceMS: defaultStopGraceMS,
			ScanBatchSize:     defaultScanBatchSize,
			CopyChunkKiB:      defaultCopyChunkKiB,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
