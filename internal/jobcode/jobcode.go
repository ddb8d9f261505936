// Package jobcode holds the active job code and the most-recently-used
// history, and serializes job-code prompting so at most one prompt is
// outstanding process-wide.
package jobcode

// Coordinator owns job-code state for the supervising goroutine. Devices
// whose download is gated on a code register as waiters; resolving the
// prompt releases all of them at once, so concurrent scan completions
// produce a single prompt.
type Coordinator struct {
	active    string
	history   []string
	prompting bool
	waiters   []int
}

// NewCoordinator returns a coordinator seeded with a previously used
// history, most recent first.
func NewCoordinator(history []string) *Coordinator {
	c := &Coordinator{}
	c.history = append(c.history, history...)
	return c
}

// Active returns the currently active job code, or "" when unset.
func (c *Coordinator) Active() string { return c.active }

// History returns the used codes, most recent first.
func (c *Coordinator) History() []string {
	out := make([]string, len(c.history))
	copy(out, c.history)
	return out
}

// NeedToPrompt reports whether a download start must wait for a job code:
// naming requires one, none is set, and no prompt has resolved it yet.
func (c *Coordinator) NeedToPrompt(required bool) bool {
	return required && c.active == ""
}

// Prompting reports whether a prompt is currently outstanding.
func (c *Coordinator) Prompting() bool { return c.prompting }

// Defer registers a device waiting on the outstanding prompt and reports
// whether the caller should issue the prompt. Only the first deferral while
// no prompt is outstanding issues one; later callers just wait.
func (c *Coordinator) Defer(deviceID int) (prompt bool) {
	for _, id := range c.waiters {
		if id == deviceID {
			return false
		}
	}
	c.waiters = append(c.waiters, deviceID)
	if c.prompting {
		return false
	}
	c.prompting = true
	return true
}

// Resolve installs the confirmed code, moves it to the front of the
// history, and returns the devices whose deferred transitions can now
// proceed.
func (c *Coordinator) Resolve(code string) []int {
	c.active = code
	c.remember(code)
	c.prompting = false
	waiters := c.waiters
	c.waiters = nil
	return waiters
}

// Cancel abandons the outstanding prompt. The returned devices were
// waiting on it and remain gated; the caller decides their fate.
func (c *Coordinator) Cancel() []int {
	c.prompting = false
	waiters := c.waiters
	c.waiters = nil
	return waiters
}

// Reset clears the active code at the end of a download cycle. History is
// kept for the next prompt's suggestions.
func (c *Coordinator) Reset() {
	c.active = ""
}

// remember moves the code to the front of the history, deduplicating.
func (c *Coordinator) remember(code string) {
	if code == "" {
		return
	}
	for i, existing := range c.history {
		if existing == code {
			c.history = append(c.history[:i], c.history[i+1:]...)
			break
		}
	}
	c.history = append([]string{code}, c.history...)
}
