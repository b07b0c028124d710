package builder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wonop-io/rushd/internal/stackspec"
)

func writeContainerFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "Dockerfile")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write container file: %v", err)
	}
	return path
}

func TestDiscoverImageScansExposes(t *testing.T) {
	dir := t.TempDir()
	cf := writeContainerFile(t, dir, "FROM scratch\nEXPOSE 8080/tcp\nCMD [\"run\"]\n")

	spec := &stackspec.ComponentSpec{
		ComponentName: "api",
		ProductName:   "acme",
		BuildKind:     stackspec.NativeBinary{SourceDir: dir, ContainerFile: cf, ContextDir: dir},
	}

	img, err := DiscoverImage(spec)
	if err != nil {
		t.Fatalf("DiscoverImage: %v", err)
	}
	if img.ImageName != "acme-api" {
		t.Errorf("ImageName = %q, want acme-api", img.ImageName)
	}
	if img.Port == nil || *img.Port != 8080 {
		t.Fatalf("Port = %v, want 8080", img.Port)
	}
	if img.TargetPort == nil || *img.TargetPort != 8080 {
		t.Fatalf("TargetPort = %v, want 8080", img.TargetPort)
	}
}

func TestDiscoverImageSpecPortOverridesExpose(t *testing.T) {
	dir := t.TempDir()
	cf := writeContainerFile(t, dir, "FROM scratch\nEXPOSE 8080\n")
	want := uint16(9090)

	spec := &stackspec.ComponentSpec{
		ComponentName: "api",
		ProductName:   "acme",
		BuildKind:     stackspec.NativeBinary{SourceDir: dir, ContainerFile: cf, ContextDir: dir},
		Port:          &want,
	}

	img, err := DiscoverImage(spec)
	if err != nil {
		t.Fatalf("DiscoverImage: %v", err)
	}
	if *img.Port != 9090 {
		t.Errorf("Port = %d, want 9090 (spec override)", *img.Port)
	}
}

func TestDiscoverImagePrebuilt(t *testing.T) {
	spec := &stackspec.ComponentSpec{
		ComponentName: "cache",
		ProductName:   "acme",
		BuildKind:     stackspec.PrebuiltImage{ImageWithTag: "redis:7.2"},
	}

	img, err := DiscoverImage(spec)
	if err != nil {
		t.Fatalf("DiscoverImage: %v", err)
	}
	if img.Tag != "7.2" {
		t.Errorf("Tag = %q, want 7.2", img.Tag)
	}
	if img.TaggedName() != "index.docker.io/library/redis:7.2" {
		// go-containerregistry's default registry/namespace expansion;
		// any registry-qualified form is acceptable here, so just assert
		// the tag split worked and a plausible name was produced.
		if img.ImageName == "" {
			t.Errorf("ImageName unexpectedly empty")
		}
	}
}

func TestDiscoverImageNoExposeLeavesPortsNil(t *testing.T) {
	dir := t.TempDir()
	cf := writeContainerFile(t, dir, "FROM scratch\nCMD [\"run\"]\n")

	spec := &stackspec.ComponentSpec{
		ComponentName: "worker",
		ProductName:   "acme",
		BuildKind:     stackspec.Script{SourceDir: dir, ContainerFile: cf, ContextDir: dir},
	}

	img, err := DiscoverImage(spec)
	if err != nil {
		t.Fatalf("DiscoverImage: %v", err)
	}
	if img.Port != nil {
		t.Errorf("Port = %v, want nil", img.Port)
	}
	if len(img.Exposes) != 0 {
		t.Errorf("Exposes = %v, want empty", img.Exposes)
	}
}

func TestPlatformCrossCompileTriple(t *testing.T) {
	cases := []struct {
		platform Platform
		want     string
	}{
		{Platform{OS: "linux", Arch: "amd64"}, "x86_64-unknown-linux-gnu"},
		{Platform{OS: "linux", Arch: "arm64"}, "aarch64-unknown-linux-gnu"},
		{Platform{OS: "darwin", Arch: "arm64"}, "aarch64-apple-darwin"},
	}
	for _, c := range cases {
		if got := c.platform.CrossCompileTriple(); got != c.want {
			t.Errorf("CrossCompileTriple(%+v) = %q, want %q", c.platform, got, c.want)
		}
	}
}

func TestPlatformString(t *testing.T) {
	if got := (Platform{}).String(); got != "" {
		t.Errorf("empty Platform.String() = %q, want empty", got)
	}
	if got := (Platform{OS: "linux", Arch: "amd64"}).String(); got != "linux/amd64" {
		t.Errorf("Platform.String() = %q, want linux/amd64", got)
	}
}
