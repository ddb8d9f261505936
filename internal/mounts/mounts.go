// Package mounts watches block-device hotplug events, enumerates mounted
// volumes, and performs asynchronous unmounts. It is the device/mount
// discovery collaborator feeding the orchestrator.
package mounts

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Mount is one mounted filesystem.
type Mount struct {
	Device string
	Path   string
	FSType string
}

// externalPrefixes are the mount roots treated as removable volumes.
var externalPrefixes = []string{"/media/", "/run/media/", "/mnt/"}

// List enumerates currently mounted filesystems from /proc/self/mounts.
func List() ([]Mount, error) {
	f, err := os.Open("/proc/self/mounts")
	if err != nil {
		return nil, fmt.Errorf("read mount table: %w", err)
	}
	defer f.Close()

	var mounts []Mount
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mounts = append(mounts, Mount{
			Device: fields[0],
			Path:   unescapeMountPath(fields[1]),
			FSType: fields[2],
		})
	}
	return mounts, scanner.Err()
}

// External filters a mount list down to removable volumes.
func External(mounts []Mount) []Mount {
	var out []Mount
	for _, m := range mounts {
		if IsExternal(m.Path) {
			out = append(out, m)
		}
	}
	return out
}

// IsExternal reports whether a path sits under a removable-volume root.
func IsExternal(path string) bool {
	for _, prefix := range externalPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// PathForDevice returns the mount point of a block device, if mounted.
func PathForDevice(device string) (string, bool) {
	mounts, err := List()
	if err != nil {
		return "", false
	}
	for _, m := range mounts {
		if m.Device == device {
			return m.Path, true
		}
	}
	return "", false
}

// HasDCIM reports whether the volume carries a camera-style DCIM folder.
func HasDCIM(path string) bool {
	info, err := os.Stat(filepath.Join(path, "DCIM"))
	return err == nil && info.IsDir()
}

// DisplayName derives a human-readable volume name from its mount point.
func DisplayName(path string) string {
	name := filepath.Base(path)
	if name == "/" || name == "." {
		return path
	}
	return name
}

// UnmountAsync releases a mounted volume without blocking the caller and
// reports the outcome through done.
func UnmountAsync(path string, done func(error)) {
	go func() {
		err := unix.Unmount(path, 0)
		if err != nil {
			err = fmt.Errorf("unmount %s: %w", path, err)
		}
		done(err)
	}()
}

// unescapeMountPath decodes the octal escapes /proc/self/mounts uses for
// spaces and other special characters.
func unescapeMountPath(path string) string {
	if !strings.Contains(path, `\`) {
		return path
	}
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		if path[i] == '\\' && i+3 < len(path) {
			if v, err := strconv.ParseUint(path[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(path[i])
	}
	return b.String()
}
