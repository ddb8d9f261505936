// Package worker provides the message conduits to out-of-process stage
// workers: a line-delimited JSON envelope protocol, an exec transport that
// re-invokes the carousel binary, an in-process pipe transport for tests,
// and two channel strategies: a pooled channel spawning one worker per
// device, and a singleton channel serializing all devices' requests.
package worker
