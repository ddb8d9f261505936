// Package orchestrator supervises the download pipeline. A single event
// loop owns the device registry, the backup destination table, progress
// accounting, and job-code gating; stage workers report in over one shared
// event channel and IPC commands are marshaled onto the same goroutine.
package orchestrator
