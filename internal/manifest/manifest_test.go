package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wonop-io/rushd/internal/stackspec"
)

func writeYAML(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDiscoverSkipsNonYAMLAndClusterInstall(t *testing.T) {
	manifestDir := t.TempDir()
	writeYAML(t, manifestDir, "deployment.yaml", "kind: Deployment\nname: {{ .Name }}\n")
	writeYAML(t, manifestDir, "README.md", "ignored")

	subDir := filepath.Join(manifestDir, "extra")
	if err := os.Mkdir(subDir, 0o755); err != nil {
		t.Fatalf("mkdir subdir: %v", err)
	}
	writeYAML(t, subDir, "configmap.yaml", "kind: ConfigMap\n")

	installDir := t.TempDir()
	writeYAML(t, installDir, "crd.yaml", "kind: CustomResourceDefinition\n")

	specs := []*stackspec.ComponentSpec{
		{ComponentName: "api", Priority: 100, ClusterManifestDir: manifestDir},
		{ComponentName: "crds", Priority: 10, ClusterManifestDir: installDir, BuildKind: stackspec.ClusterInstall{Namespace: "ns"}},
		{ComponentName: "no-manifests", Priority: 50},
	}

	groups, err := Discover(specs, "/out")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("len(groups) = %d, want 1 (ClusterInstall and manifestless components excluded)", len(groups))
	}
	g := groups[0]
	if g.OrderKey != "100_api" {
		t.Errorf("OrderKey = %q, want 100_api", g.OrderKey)
	}
	if len(g.Artifacts) != 2 {
		t.Fatalf("len(Artifacts) = %d, want 2 (deployment.yaml + extra/configmap.yaml)", len(g.Artifacts))
	}
}

func TestRenderAllWritesOutputs(t *testing.T) {
	manifestDir := t.TempDir()
	writeYAML(t, manifestDir, "deployment.yaml", "name: {{ .Name }}\n")

	specs := []*stackspec.ComponentSpec{
		{ComponentName: "api", Priority: 100, ClusterManifestDir: manifestDir},
	}
	outRoot := t.TempDir()

	groups, err := Discover(specs, outRoot)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	p := New()
	if err := p.RenderAll(groups, struct{ Name string }{Name: "acme-api"}); err != nil {
		t.Fatalf("RenderAll: %v", err)
	}

	outPath := filepath.Join(outRoot, "100_api", "deployment.yaml")
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read rendered output: %v", err)
	}
	if string(got) != "name: acme-api\n" {
		t.Errorf("rendered = %q, want %q", got, "name: acme-api\n")
	}

	files := OutputFiles(groups)
	if len(files) != 1 || files[0] != outPath {
		t.Errorf("OutputFiles = %v, want [%s]", files, outPath)
	}
}
