package cluster

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fakeKubectl(t *testing.T, logPath string, failArgsContaining string) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "kubectl")
	body := "#!/bin/sh\necho \"$@\" >> " + logPath + "\n"
	if failArgsContaining != "" {
		body += "case \"$*\" in *" + failArgsContaining + "*) exit 1 ;; esac\n"
	}
	body += "exit 0\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write fake kubectl: %v", err)
	}
	return script
}

func TestApplyInvokesRecursiveApply(t *testing.T) {
	log := filepath.Join(t.TempDir(), "kubectl.log")
	d := New(fakeKubectl(t, log, ""))

	if err := d.Apply(context.Background(), "/out/100_api"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	logged, _ := os.ReadFile(log)
	if !strings.Contains(string(logged), "apply -R -f /out/100_api") {
		t.Errorf("log = %q, want recursive apply invocation", logged)
	}
}

func TestApplyPropagatesFailure(t *testing.T) {
	log := filepath.Join(t.TempDir(), "kubectl.log")
	d := New(fakeKubectl(t, log, "apply"))

	if err := d.Apply(context.Background(), "/out/100_api"); err == nil {
		t.Fatal("expected Apply to return an error on kubectl failure")
	}
}

func TestUnapplyDeletesInReverseOrder(t *testing.T) {
	log := filepath.Join(t.TempDir(), "kubectl.log")
	d := New(fakeKubectl(t, log, ""))

	d.Unapply(context.Background(), []string{"/out/10_a/a.yaml", "/out/20_b/b.yaml", "/out/30_c/c.yaml"})

	logged, _ := os.ReadFile(log)
	lines := strings.Split(strings.TrimSpace(string(logged)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 delete invocations, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "30_c/c.yaml") {
		t.Errorf("first delete = %q, want the highest-sorted file first", lines[0])
	}
	if !strings.Contains(lines[2], "10_a/a.yaml") {
		t.Errorf("last delete = %q, want the lowest-sorted file last", lines[2])
	}
}

func TestUnapplyToleratesFailures(t *testing.T) {
	log := filepath.Join(t.TempDir(), "kubectl.log")
	d := New(fakeKubectl(t, log, "delete"))

	// Must not panic or need an error return; failures are swallowed.
	d.Unapply(context.Background(), []string{"/out/10_a/a.yaml"})
}

func TestCreateNamespaceToleratesAlreadyExists(t *testing.T) {
	log := filepath.Join(t.TempDir(), "kubectl.log")
	d := New(fakeKubectl(t, log, "namespace"))

	if err := d.CreateNamespace(context.Background(), "acme-dev"); err != nil {
		t.Fatalf("CreateNamespace should tolerate failures, got: %v", err)
	}
}
