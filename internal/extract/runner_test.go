package extract

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func TestExecRunner_CapturesStdoutAndStderr(t *testing.T) {
	r := execRunner{}

	stdout, stderr, err := r.Run(context.Background(), "sh", "-c", "echo out; echo err 1>&2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.TrimSpace(string(stdout)); got != "out" {
		t.Errorf("stdout = %q", got)
	}
	if got := strings.TrimSpace(string(stderr)); got != "err" {
		t.Errorf("stderr = %q", got)
	}
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	r := execRunner{}

	_, stderr, err := r.Run(context.Background(), "sh", "-c", "echo broken 1>&2; exit 3")
	if err == nil {
		t.Fatal("expected error")
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) || ee.ExitCode() != 3 {
		t.Errorf("expected exit code 3, got %v", err)
	}
	if !strings.Contains(string(stderr), "broken") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestExecRunner_CommandNotFound(t *testing.T) {
	r := execRunner{}

	_, _, err := r.Run(context.Background(), "definitely-not-a-real-binary-xyz")
	if err == nil {
		t.Fatal("expected error")
	}
	if code := exitCode(err); code != -1 {
		t.Errorf("exitCode = %d, want -1 for spawn failure", code)
	}
}

func TestCapStderr(t *testing.T) {
	if got := capStderr("short", 10); got != "short" {
		t.Errorf("capStderr = %q", got)
	}
	long := strings.Repeat("x", 20)
	got := capStderr(long, 10)
	if !strings.HasPrefix(got, strings.Repeat("x", 10)) || !strings.HasSuffix(got, "(truncated)") {
		t.Errorf("capStderr = %q", got)
	}
}
