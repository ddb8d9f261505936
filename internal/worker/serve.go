package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
)

// ServeStdio runs a worker body against the process's stdin and stdout,
// bridging the line-delimited envelope protocol to channels. It is the
// child-process half of the exec transport and returns when stdin closes
// or the body exits.
func ServeStdio(ctx context.Context, run RunFunc) error {
	return serve(ctx, os.Stdin, os.Stdout, run)
}

func serve(ctx context.Context, r io.Reader, w io.Writer, run RunFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan Envelope, 16)
	out := make(chan Envelope, 16)

	go func() {
		defer close(in)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxEnvelopeSize)
		for scanner.Scan() {
			var env Envelope
			if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
				continue
			}
			select {
			case in <- env:
			case <-ctx.Done():
				return
			}
		}
	}()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		enc := json.NewEncoder(w)
		for env := range out {
			if err := enc.Encode(env); err != nil {
				return
			}
		}
	}()

	err := run(ctx, in, out)
	close(out)
	<-writeDone
	return err
}
