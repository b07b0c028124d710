package procrunner

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunSuccess(t *testing.T) {
	r := New()
	if err := r.Run(context.Background(), "test", ".", "sh", "-c", "echo hello"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestRunFailureCarriesContext(t *testing.T) {
	r := New()
	err := r.Run(context.Background(), "test", ".", "sh", "-c", "echo boom >&2; exit 3")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if perr.Dir != "." {
		t.Errorf("Dir = %q, want \".\"", perr.Dir)
	}
	found := false
	for _, l := range perr.Lines {
		if l == "boom" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected captured lines to include stderr output, got %v", perr.Lines)
	}
}

func TestRunWindowedCapturesAllLines(t *testing.T) {
	r := New()
	err := r.RunWindowed(context.Background(), 3, "test", ".", "sh", "-c", "for i in 1 2 3 4 5; do echo line$i; done")
	if err != nil {
		t.Fatalf("RunWindowed returned error: %v", err)
	}
}

func TestRunSupervisedSuccess(t *testing.T) {
	r := New()
	if err := r.RunSupervised(context.Background(), time.Second, "test", ".", "sh", "-c", "echo hello"); err != nil {
		t.Fatalf("RunSupervised returned error: %v", err)
	}
}

func TestRunSupervisedCancelSendsSIGTERM(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- r.RunSupervised(ctx, 2*time.Second, "test", ".", "sh", "-c", "trap 'exit 0' TERM; while true; do sleep 0.05; done")
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunSupervised after graceful SIGTERM exit: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("RunSupervised did not return after cancellation")
	}
}

func TestCollapseCR(t *testing.T) {
	cases := map[string]string{
		"abc":          "abc",
		"abc\rdef":     "def",
		"a\rb\rc":      "c",
		"":             "",
	}
	for in, want := range cases {
		if got := collapseCR(in); got != want {
			t.Errorf("collapseCR(%q) = %q, want %q", in, got, want)
		}
	}
}
