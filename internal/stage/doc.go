// Package stage defines the four pipeline stage managers (scan, copy,
// rename, backup) and the envelope payloads and typed events they
// exchange with workers and the orchestrator. Managers translate domain
// requests into worker envelopes and decode results onto a single event
// channel consumed by the orchestrator's loop.
package stage
