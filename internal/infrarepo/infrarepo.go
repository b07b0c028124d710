// Package infrarepo is the gateway to the auxiliary infrastructure
// repository that receives rendered cluster manifests for promotion:
// clone-or-pull, copy rendered manifests in under a product/environment
// subtree, then commit and push.
package infrarepo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/wonop-io/rushd/internal/fileops"
	"github.com/wonop-io/rushd/internal/rushderrors"
)

// Gateway drives the infra repository's git lifecycle and manifest
// staging.
type Gateway struct {
	url         string
	local       string
	product     string
	environment string
	files       fileops.FileOps
}

// New returns a Gateway for the infra repo at url, checked out locally
// at local, scoped to one product and environment.
func New(url, local, product, environment string) *Gateway {
	return &Gateway{url: url, local: local, product: product, environment: environment, files: fileops.New()}
}

func (g *Gateway) run(ctx context.Context, label string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.local
	slog.InfoContext(ctx, "infrarepo."+label, "cmd", strings.Join(cmd.Args, " "), "dir", g.local)
	output, err := cmd.CombinedOutput()
	if err != nil {
		slog.ErrorContext(ctx, "infrarepo."+label, "error", err, "output", string(output))
		return fmt.Errorf("infrarepo: %s: %w (output: %s)", label, rushderrors.ErrGit, output)
	}
	return nil
}

// Checkout ensures the local clone exists and is clean and current: if
// it already exists, hard-reset, clean, and pull; otherwise clone fresh.
func (g *Gateway) Checkout(ctx context.Context) error {
	if _, err := os.Stat(g.local); err == nil {
		if err := g.run(ctx, "Checkout.reset", "reset", "HEAD", "--hard"); err != nil {
			return err
		}
		if err := g.run(ctx, "Checkout.clean", "clean", "-fd"); err != nil {
			return err
		}
		return g.run(ctx, "Checkout.pull", "pull")
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("infrarepo: stat %s: %w", g.local, rushderrors.ErrIO)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", g.url, g.local)
	slog.InfoContext(ctx, "infrarepo.Checkout.clone", "cmd", strings.Join(cmd.Args, " "))
	output, err := cmd.CombinedOutput()
	if err != nil {
		slog.ErrorContext(ctx, "infrarepo.Checkout.clone", "error", err, "output", string(output))
		return fmt.Errorf("infrarepo: clone %s: %w (output: %s)", g.url, rushderrors.ErrGit, output)
	}
	return nil
}

// target returns the infra repo's product/environment subtree that
// receives rendered manifests.
func (g *Gateway) target() string {
	return filepath.Join(g.local, "products", g.product, g.environment)
}

// CopyManifests replaces the product/environment subtree with a fresh
// recursive copy of src.
func (g *Gateway) CopyManifests(ctx context.Context, src string) error {
	target := g.target()
	if _, err := g.files.Stat(target); err == nil {
		if err := g.files.RemoveAll(target); err != nil {
			return fmt.Errorf("infrarepo: remove %s: %w", target, rushderrors.ErrIO)
		}
	}
	if err := g.files.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("infrarepo: create %s: %w", target, rushderrors.ErrIO)
	}
	return g.files.CopyTree(ctx, src, target)
}

// CommitAndPush stages every change, commits with message, and pushes.
// A rollout against an unchanged manifest tree leaves nothing staged;
// that case is tolerated as a no-op rather than surfaced as an error,
// since re-running rollout idempotently is the expected steady state.
func (g *Gateway) CommitAndPush(ctx context.Context, message string) error {
	if err := g.run(ctx, "CommitAndPush.add", "add", "."); err != nil {
		return err
	}

	clean, err := g.isClean(ctx)
	if err != nil {
		return err
	}
	if clean {
		slog.InfoContext(ctx, "infrarepo.CommitAndPush", "skipped", "no changes staged")
		return nil
	}

	if err := g.run(ctx, "CommitAndPush.commit", "commit", "-m", message); err != nil {
		return err
	}
	return g.run(ctx, "CommitAndPush.push", "push")
}

func (g *Gateway) isClean(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = g.local
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("infrarepo: git status: %w", rushderrors.ErrGit)
	}
	return strings.TrimSpace(string(output)) == "", nil
}
