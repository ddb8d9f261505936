package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

var commandContext = exec.CommandContext

// maxEnvelopeSize bounds a single message line. Scan batches dominate and
// stay well under this.
const maxEnvelopeSize = 4 * 1024 * 1024

// execTransport talks to a re-invocation of our own binary over stdin and
// stdout, one JSON envelope per line.
type execTransport struct {
	stage string

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	messages chan Envelope

	mu     sync.Mutex
	encode *json.Encoder
}

// NewExecTransport returns a transport that spawns `<self> worker <stage>`.
func NewExecTransport(stage string) Transport {
	return &execTransport{stage: stage, messages: make(chan Envelope, 16)}
}

func (t *execTransport) Start(ctx context.Context) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	cmd := commandContext(ctx, self, "worker", t.stage)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s worker: %w", t.stage, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.encode = json.NewEncoder(stdin)

	go t.pump(stdout)
	return nil
}

func (t *execTransport) pump(stdout io.Reader) {
	defer close(t.messages)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxEnvelopeSize)
	for scanner.Scan() {
		var env Envelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			continue
		}
		t.messages <- env
	}
}

func (t *execTransport) Send(env Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.encode == nil {
		return errors.New("transport not started")
	}
	return t.encode.Encode(env)
}

func (t *execTransport) Messages() <-chan Envelope { return t.messages }

func (t *execTransport) Wait() error {
	t.stdin.Close()
	return t.cmd.Wait()
}

func (t *execTransport) Kill() error {
	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}
	return t.cmd.Process.Kill()
}
