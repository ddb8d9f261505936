package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains daemon directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Download contains source discovery and download behavior settings.
type Download struct {
	PhotoFolder            string   `toml:"photo_folder"`
	VideoFolder            string   `toml:"video_folder"`
	ThisComputerPath       string   `toml:"this_computer_path"`
	DeviceAutodetection    bool     `toml:"device_autodetection"`
	AutoDownloadOnInsert   bool     `toml:"auto_download_on_insertion"`
	AutoExit               bool     `toml:"auto_exit"`
	AutoExitForce          bool     `toml:"auto_exit_force"`
	Move                   bool     `toml:"move"`
	AutoUnmount            bool     `toml:"auto_unmount"`
	VerifyFiles            bool     `toml:"verify_files"`
	GenerateThumbnails     bool     `toml:"generate_thumbnails"`
	IgnoredPaths           []string `toml:"ignored_paths"`
	ScanNonMediaVolumes    bool     `toml:"scan_non_media_volumes"`
	ScanErrorPolicy        string   `toml:"scan_error_policy"`
	DeviceBlacklist        []string `toml:"device_blacklist"`
	OnlyExternalMounts     bool     `toml:"only_external_mounts"`
	DownloadTimeoutMinutes int      `toml:"download_timeout_minutes"`
}

// Rename contains destination naming configuration.
type Rename struct {
	PhotoTemplate    string `toml:"photo_template"`
	VideoTemplate    string `toml:"video_template"`
	PhotoSubfolders  string `toml:"photo_subfolders"`
	VideoSubfolders  string `toml:"video_subfolders"`
	RememberJobCode  bool   `toml:"remember_job_code"`
	SequenceDigits   int    `toml:"sequence_digits"`
	StripIncompatble bool   `toml:"strip_incompatible_characters"`
}

// Backup contains backup destination configuration.
type Backup struct {
	Enabled            bool   `toml:"enabled"`
	AutoDetect         bool   `toml:"auto_detect"`
	PhotoIdentifier    string `toml:"photo_identifier"`
	VideoIdentifier    string `toml:"video_identifier"`
	PhotoLocation      string `toml:"photo_location"`
	VideoLocation      string `toml:"video_location"`
	DuplicateOverwrite bool   `toml:"duplicate_overwrite"`
}

// Workers contains worker process tuning, including per-stage shutdown
// grace periods in milliseconds.
type Workers struct {
	ScanStopGraceMS   int `toml:"scan_stop_grace_ms"`
	CopyStopGraceMS   int `toml:"copy_stop_grace_ms"`
	RenameStopGraceMS int `toml:"rename_stop_grace_ms"`
	BackupStopGraceMS int `toml:"backup_stop_grace_ms"`
	ScanBatchSize     int `toml:"scan_batch_size"`
	CopyChunkKiB      int `toml:"copy_chunk_kib"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Carousel.
//
// Configuration sections by subsystem:
//   - Paths: state and log directories
//   - Download: source detection, download folders, post-download behavior
//   - Rename: destination naming templates and job code use
//   - Backup: backup destinations, auto-detection identifiers
//   - Workers: worker process grace periods and transfer tuning
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Download      Download      `toml:"download"`
	Rename        Rename        `toml:"rename"`
	Backup        Backup        `toml:"backup"`
	Workers       Workers       `toml:"workers"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/carousel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("carousel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the unix socket path used by the IPC server.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "carousel.sock")
}

// LockPath returns the daemon singleton lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "carousel.lock")
}

// SessionDBPath returns the path of the persisted session database.
func (c *Config) SessionDBPath() string {
	return filepath.Join(c.Paths.StateDir, "session.db")
}

// LogPath returns the daemon log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "carousel.log")
}

// UsesJobCode reports whether any naming template embeds the job code token.
func (c *Config) UsesJobCode() bool {
	for _, tpl := range []string{
		c.Rename.PhotoTemplate, c.Rename.VideoTemplate,
		c.Rename.PhotoSubfolders, c.Rename.VideoSubfolders,
	} {
		if strings.Contains(tpl, "{jobcode}") {
			return true
		}
	}
	return false
}

// StopGrace returns the configured shutdown grace period for a stage.
func (c *Config) StopGrace(stage string) time.Duration {
	ms := 0
	switch stage {
	case "scan":
		ms = c.Workers.ScanStopGraceMS
	case "copy":
		ms = c.Workers.CopyStopGraceMS
	case "rename":
		ms = c.Workers.RenameStopGraceMS
	case "backup":
		ms = c.Workers.BackupStopGraceMS
	}
	if ms <= 0 {
		ms = defaultStopGraceMS
	}
	return time.Duration(ms) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
