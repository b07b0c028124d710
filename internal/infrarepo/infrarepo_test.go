package infrarepo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func newBareRemote(t *testing.T) string {
	t.Helper()
	remote := t.TempDir()
	runGit(t, remote, "init", "--bare", "-b", "main")
	return remote
}

func TestCheckoutClonesThenPulls(t *testing.T) {
	remote := newBareRemote(t)

	seed := t.TempDir()
	runGit(t, seed, "init", "-b", "main")
	if err := os.WriteFile(filepath.Join(seed, "README.md"), []byte("seed\n"), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	runGit(t, seed, "add", ".")
	runGit(t, seed, "commit", "-m", "seed")
	runGit(t, seed, "remote", "add", "origin", remote)
	runGit(t, seed, "push", "origin", "main")

	local := filepath.Join(t.TempDir(), "clone")
	gw := New(remote, local, "acme", "dev")

	if err := gw.Checkout(context.Background()); err != nil {
		t.Fatalf("Checkout (clone): %v", err)
	}
	if _, err := os.Stat(filepath.Join(local, "README.md")); err != nil {
		t.Fatalf("expected cloned README.md: %v", err)
	}

	if err := gw.Checkout(context.Background()); err != nil {
		t.Fatalf("Checkout (pull on existing clone): %v", err)
	}
}

func TestCopyManifestsAndCommitAndPush(t *testing.T) {
	remote := newBareRemote(t)

	seed := t.TempDir()
	runGit(t, seed, "init", "-b", "main")
	if err := os.WriteFile(filepath.Join(seed, "README.md"), []byte("seed\n"), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	runGit(t, seed, "add", ".")
	runGit(t, seed, "commit", "-m", "seed")
	runGit(t, seed, "remote", "add", "origin", remote)
	runGit(t, seed, "push", "origin", "main")

	local := filepath.Join(t.TempDir(), "clone")
	gw := New(remote, local, "acme", "dev")
	if err := gw.Checkout(context.Background()); err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	rendered := t.TempDir()
	if err := os.WriteFile(filepath.Join(rendered, "deployment.yaml"), []byte("kind: Deployment\n"), 0o644); err != nil {
		t.Fatalf("write rendered manifest: %v", err)
	}

	if err := gw.CopyManifests(context.Background(), rendered); err != nil {
		t.Fatalf("CopyManifests: %v", err)
	}
	target := filepath.Join(local, "products", "acme", "dev", "deployment.yaml")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected copied manifest at %s: %v", target, err)
	}

	if err := gw.CommitAndPush(context.Background(), "rollout acme/dev"); err != nil {
		t.Fatalf("CommitAndPush: %v", err)
	}

	// A second rollout against an unchanged tree should be a no-op, not
	// an error (empty commit tolerance per the manifest pipeline's
	// idempotence requirement).
	if err := gw.CopyManifests(context.Background(), rendered); err != nil {
		t.Fatalf("CopyManifests (second pass): %v", err)
	}
	if err := gw.CommitAndPush(context.Background(), "rollout acme/dev"); err != nil {
		t.Fatalf("CommitAndPush on unchanged tree should not error: %v", err)
	}
}
