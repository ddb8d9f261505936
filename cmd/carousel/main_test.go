package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	want := []string{
		"daemon", "status", "devices", "start", "pause", "resume",
		"jobcode", "scan-decision", "test-notify", "stop", "add", "config", "worker",
	}
	have := make(map[string]bool)
	for _, cmd := range root.Commands() {
		have[cmd.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestWorkerCommandRejectsUnknownStage(t *testing.T) {
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"worker", "transcode"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown worker stage") {
		t.Fatalf("expected unknown stage error, got %v", err)
	}
}

func TestScanDecisionArgumentValidation(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"bad id", []string{"scan-decision", "abc", "retry"}, "device id must be a number"},
		{"bad decision", []string{"scan-decision", "3", "maybe"}, "decision must be retry or ignore"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := newRootCommand()
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(tc.args)
			err := root.Execute()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("args %v: got %v, want %q", tc.args, err, tc.want)
			}
		})
	}
}

func TestYesNo(t *testing.T) {
	if yesNo(true) != "yes" || yesNo(false) != "no" {
		t.Fatal("yesNo rendering wrong")
	}
}
