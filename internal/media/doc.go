// Package media defines the file model shared by every pipeline stage:
// file types, lifecycle statuses, extension classification, and the
// per-type counters used for progress accounting.
package media
