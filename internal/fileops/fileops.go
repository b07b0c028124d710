// Package fileops is the filesystem-mutation interface the infra-repo
// gateway uses: directory creation,
// recursive copy, and the handful of stat/readlink operations symlink
// handling needs.
package fileops

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/wonop-io/rushd/internal/rushderrors"
)

// FileOps abstracts filesystem mutation behind an interface so callers can
// substitute a fake in tests.
type FileOps interface {
	MkdirAll(path string, perm os.FileMode) error
	Copy(ctx context.Context, src, dst string) error
	CopyTree(ctx context.Context, src, dst string) error
	Stat(path string) (os.FileInfo, error)
	Lstat(path string) (os.FileInfo, error)
	Readlink(path string) (string, error)
	Create(path string) (*os.File, error)
	RemoveAll(path string) error
	WriteFile(path string, data []byte, perm os.FileMode) error
}

type defaultFileOps struct{}

// New returns the default, host-filesystem-backed FileOps.
func New() FileOps {
	return &defaultFileOps{}
}

func (f *defaultFileOps) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (f *defaultFileOps) Copy(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, "cp", src, dst)
	slog.InfoContext(ctx, "FileOps.Copy", "cmd", strings.Join(cmd.Args, " "))
	output, err := cmd.CombinedOutput()
	if err != nil {
		slog.ErrorContext(ctx, "FileOps.Copy", "error", err, "output", string(output))
		return fmt.Errorf("fileops: copy %s to %s: %w (output: %s)", src, dst, rushderrors.ErrIO, output)
	}
	return nil
}

// CopyTree recursively copies every file under src into dst, preserving
// relative layout. Used by the infra-repo gateway's copy_manifests step.
func (f *defaultFileOps) CopyTree(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, "cp", "-R", src+"/.", dst)
	slog.InfoContext(ctx, "FileOps.CopyTree", "cmd", strings.Join(cmd.Args, " "))
	output, err := cmd.CombinedOutput()
	if err != nil {
		slog.ErrorContext(ctx, "FileOps.CopyTree", "error", err, "output", string(output))
		return fmt.Errorf("fileops: copy tree %s to %s: %w (output: %s)", src, dst, rushderrors.ErrIO, output)
	}
	return nil
}

func (f *defaultFileOps) Stat(path string) (os.FileInfo, error)  { return os.Stat(path) }
func (f *defaultFileOps) Lstat(path string) (os.FileInfo, error) { return os.Lstat(path) }
func (f *defaultFileOps) Readlink(path string) (string, error)   { return os.Readlink(path) }

func (f *defaultFileOps) Create(path string) (*os.File, error) {
	return os.Create(path)
}

func (f *defaultFileOps) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (f *defaultFileOps) WriteFile(path string, data []byte, perm os.FileMode) error {
	return os.WriteFile(path, data, perm)
}
