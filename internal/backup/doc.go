// Package backup resolves backup-capable destinations and tracks how many
// destinations exist per file type. Capability is detected from writable
// marker subfolders or matched literally against configured locations.
package backup
