// Package cluster is a thin facade over the external cluster CLI:
// recursive apply, reverse-order delete, and context switching.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"

	"github.com/wonop-io/rushd/internal/rushderrors"
)

// Driver wraps kubectl (or a compatible CLI) resolved from a toolchain.
type Driver struct {
	binary string
}

// New returns a Driver invoking the given resolved cluster CLI binary.
func New(binary string) *Driver {
	return &Driver{binary: binary}
}

func (d *Driver) run(ctx context.Context, label string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, d.binary, args...)
	slog.InfoContext(ctx, "cluster."+label, "cmd", strings.Join(cmd.Args, " "))
	output, err := cmd.CombinedOutput()
	if err != nil {
		slog.ErrorContext(ctx, "cluster."+label, "error", err, "output", string(output))
		return output, fmt.Errorf("cluster: %s: %w (output: %s)", label, rushderrors.ErrCluster, output)
	}
	return output, nil
}

// Apply recursively applies every manifest under dir. Failures are
// fatal per spec.md §4.9.
func (d *Driver) Apply(ctx context.Context, dir string) error {
	_, err := d.run(ctx, "Apply", "apply", "-R", "-f", dir)
	return err
}

// Unapply deletes every rendered .yaml file under files in reverse sort
// order. Failures are logged and skipped (best-effort teardown).
func (d *Driver) Unapply(ctx context.Context, files []string) {
	sorted := make([]string, len(files))
	copy(sorted, files)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))

	for _, f := range sorted {
		if _, err := d.run(ctx, "Unapply", "delete", "-f", f); err != nil {
			slog.WarnContext(ctx, "cluster.Unapply: delete failed, continuing", "file", f, "error", err)
		}
	}
}

// SetContext switches the active cluster context.
func (d *Driver) SetContext(ctx context.Context, name string) error {
	_, err := d.run(ctx, "SetContext", "config", "use-context", name)
	return err
}

// CreateNamespace creates a namespace, tolerating "already exists"
// failures (idempotent per spec.md §4.8's install_manifests).
func (d *Driver) CreateNamespace(ctx context.Context, name string) error {
	_, err := d.run(ctx, "CreateNamespace", "create", "namespace", name)
	if err != nil {
		slog.InfoContext(ctx, "cluster.CreateNamespace: tolerating failure (namespace may already exist)", "namespace", name, "error", err)
	}
	return nil
}

// DeleteNamespace deletes a namespace, tolerating failures (used by
// uninstall_manifests' best-effort teardown).
func (d *Driver) DeleteNamespace(ctx context.Context, name string) {
	if _, err := d.run(ctx, "DeleteNamespace", "delete", "namespace", name); err != nil {
		slog.WarnContext(ctx, "cluster.DeleteNamespace: delete failed, continuing", "namespace", name, "error", err)
	}
}

// ApplyFile applies a single raw manifest file. Failures are fatal on
// install (caller decides), tolerated on uninstall via DeleteFile.
func (d *Driver) ApplyFile(ctx context.Context, file string) error {
	_, err := d.run(ctx, "ApplyFile", "apply", "-f", file)
	return err
}

// DeleteFile deletes a single raw manifest file, logging but not
// returning failures (uninstall_manifests' best-effort teardown).
func (d *Driver) DeleteFile(ctx context.Context, file string) {
	if _, err := d.run(ctx, "DeleteFile", "delete", "-f", file); err != nil {
		slog.WarnContext(ctx, "cluster.DeleteFile: delete failed, continuing", "file", file, "error", err)
	}
}
