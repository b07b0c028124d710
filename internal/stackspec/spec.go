// Package stackspec parses a product's stack.yaml into typed component
// specs, applying {{name}} variable substitution as it goes.
package stackspec

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wonop-io/rushd/internal/productconfig"
	"github.com/wonop-io/rushd/internal/rushderrors"
	"github.com/wonop-io/rushd/internal/variables"
)

const (
	defaultPriority          = 100
	defaultColor             = "blue"
	defaultArtifactOutputDir = "target/rushd"
)

// ServiceEntry is one row of the service table: the port mapping ingress
// and template rendering consult for a component.
type ServiceEntry struct {
	Name       string
	Port       uint16
	TargetPort uint16
	MountPoint string
}

// ServiceTable is the read-mostly mapping from component name to its
// service entry. It is mutated exactly once, during reactor construction,
// then shared read-only across every component spec.
type ServiceTable struct {
	mu      sync.RWMutex
	entries map[string]ServiceEntry
}

// NewServiceTable returns an empty, ready-to-populate table.
func NewServiceTable() *ServiceTable {
	return &ServiceTable{entries: map[string]ServiceEntry{}}
}

// Set records entry for a component name. Called only during the reactor's
// load phase.
func (t *ServiceTable) Set(name string, entry ServiceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[name] = entry
}

// Lookup returns the service entry for name, if any.
func (t *ServiceTable) Lookup(name string) (ServiceEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[name]
	return e, ok
}

// All returns a snapshot copy of every entry, for template rendering.
func (t *ServiceTable) All() map[string]ServiceEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]ServiceEntry, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// ComponentSpec is everything needed to build and run one component. It
// starts mutable during the load phase (Config, Variables wiring, then the
// two post-load setters) and is read-mostly thereafter; the reactor never
// mutates spec fields once the load phase completes.
type ComponentSpec struct {
	BuildKind BuildKind

	ComponentName string
	ProductName   string
	Color         string

	DependsOn  []string
	Build      string
	Watch      string
	Subdomain  string
	MountPoint string

	Artifacts         map[string]string
	ArtifactOutputDir string

	ExtraRunArgs []string
	Env          map[string]string
	Volumes      map[string]string

	Port       *uint16
	TargetPort *uint16

	ClusterManifestDir string
	Priority           int

	Config    *productconfig.Config
	Variables *variables.Store

	mu              sync.Mutex
	services        *ServiceTable
	taggedImageName string
}

// SetServices injects the shared, frozen service table. Called once by the
// reactor after port assignment.
func (c *ComponentSpec) SetServices(t *ServiceTable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services = t
}

// Services returns the shared service table, or nil if not yet set.
func (c *ComponentSpec) Services() *ServiceTable {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.services
}

// SetTaggedImageName injects the resolved "<product>-<component>:<tag>"
// (or prebuilt equivalent) once the reactor has computed it.
func (c *ComponentSpec) SetTaggedImageName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taggedImageName = name
}

// TaggedImageName returns the previously injected tagged image name.
func (c *ComponentSpec) TaggedImageName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.taggedImageName
}

// rawComponent mirrors one stack.yaml component body before variable
// substitution and build-kind dispatch.
type rawComponent struct {
	ComponentName string `yaml:"component_name"`
	BuildType     string `yaml:"build_type"`

	Location   string   `yaml:"location"`
	Dockerfile string   `yaml:"dockerfile"`
	ContextDir string   `yaml:"context_dir"`
	Components []string `yaml:"components"`
	Image      string   `yaml:"image"`
	Command    string   `yaml:"command"`
	Entrypoint string   `yaml:"entrypoint"`
	Namespace  string   `yaml:"namespace"`
	Component  string   `yaml:"component"`
	OpenAPI    string   `yaml:"open_api"`

	Build                string            `yaml:"build"`
	Watch                string            `yaml:"watch"`
	Color                string            `yaml:"color"`
	DependsOn            []string          `yaml:"depends_on"`
	MountPoint           string            `yaml:"mount_point"`
	Subdomain            string            `yaml:"subdomain"`
	Artefacts            map[string]string `yaml:"artefacts"`
	ArtefactOutputDir    string            `yaml:"artefact_output_dir"`
	DockerExtraRunArgs   []string          `yaml:"docker_extra_run_args"`
	Env                  map[string]string `yaml:"env"`
	Volumes              map[string]string `yaml:"volumes"`
	Port                 *yaml.Node        `yaml:"port"`
	TargetPort           *yaml.Node        `yaml:"target_port"`
	K8s                  string            `yaml:"k8s"`
	Priority             *int              `yaml:"priority"`
}

// Load reads stack.yaml from the product directory and returns its
// component specs in file order.
func Load(productDir string, cfg *productconfig.Config, vars *variables.Store) ([]*ComponentSpec, error) {
	path := filepath.Join(productDir, "stack.yaml")
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("stackspec: read %s: %w", path, rushderrors.ErrIO)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(contents, &root); err != nil {
		return nil, fmt.Errorf("stackspec: parse %s: %w: %v", path, rushderrors.ErrSpec, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("stackspec: %s is empty: %w", path, rushderrors.ErrSpec)
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("stackspec: %s must be a top-level mapping: %w", path, rushderrors.ErrSpec)
	}

	var specs []*ComponentSpec
	seen := map[string]bool{}
	for i := 0; i+1 < len(top.Content); i += 2 {
		key := top.Content[i].Value
		bodyNode := top.Content[i+1]

		var raw rawComponent
		if err := bodyNode.Decode(&raw); err != nil {
			return nil, fmt.Errorf("stackspec: decode component %q: %w: %v", key, rushderrors.ErrSpec, err)
		}
		if raw.ComponentName == "" {
			raw.ComponentName = key
		}
		if seen[raw.ComponentName] {
			return nil, fmt.Errorf("stackspec: duplicate component name %q: %w", raw.ComponentName, rushderrors.ErrSpec)
		}
		seen[raw.ComponentName] = true

		spec, err := fromRaw(&raw, cfg, vars)
		if err != nil {
			return nil, fmt.Errorf("stackspec: component %q: %w", raw.ComponentName, err)
		}
		specs = append(specs, spec)
	}

	if err := validateDependencies(specs); err != nil {
		return nil, err
	}

	return specs, nil
}

func validateDependencies(specs []*ComponentSpec) error {
	names := map[string]bool{}
	for _, s := range specs {
		names[s.ComponentName] = true
	}
	for _, s := range specs {
		for _, dep := range s.DependsOn {
			if !names[dep] {
				return fmt.Errorf("stackspec: component %q depends on unknown component %q: %w", s.ComponentName, dep, rushderrors.ErrSpec)
			}
		}
	}
	return nil
}

func fromRaw(raw *rawComponent, cfg *productconfig.Config, vars *variables.Store) (*ComponentSpec, error) {
	sub := func(s string) (string, error) { return vars.Substitute(s) }

	kind, err := buildKindFromRaw(raw, sub)
	if err != nil {
		return nil, err
	}

	color := raw.Color
	if color == "" {
		color = defaultColor
	} else if color, err = sub(color); err != nil {
		return nil, err
	}

	artifactOutputDir := raw.ArtefactOutputDir
	if artifactOutputDir == "" {
		artifactOutputDir = defaultArtifactOutputDir
	} else if artifactOutputDir, err = sub(artifactOutputDir); err != nil {
		return nil, err
	}

	priority := defaultPriority
	if raw.Priority != nil {
		priority = *raw.Priority
	}

	build, err := subOptional(raw.Build, sub)
	if err != nil {
		return nil, err
	}
	watch, err := subOptional(raw.Watch, sub)
	if err != nil {
		return nil, err
	}
	subdomain, err := subOptional(raw.Subdomain, sub)
	if err != nil {
		return nil, err
	}
	mountPoint, err := subOptional(raw.MountPoint, sub)
	if err != nil {
		return nil, err
	}

	dependsOn := make([]string, len(raw.DependsOn))
	for i, d := range raw.DependsOn {
		if dependsOn[i], err = sub(d); err != nil {
			return nil, err
		}
	}

	extraArgs := make([]string, len(raw.DockerExtraRunArgs))
	for i, a := range raw.DockerExtraRunArgs {
		if extraArgs[i], err = sub(a); err != nil {
			return nil, err
		}
	}

	env, err := subMap(raw.Env, sub)
	if err != nil {
		return nil, err
	}

	// Volume keys are resolved to absolute host paths relative to the
	// current working directory *before* substitution of the value.
	volumes := map[string]string{}
	for k, v := range raw.Volumes {
		absKey, err := filepath.Abs(k)
		if err != nil {
			return nil, fmt.Errorf("stackspec: resolve volume path %q: %w", k, rushderrors.ErrIO)
		}
		subVal, err := sub(v)
		if err != nil {
			return nil, err
		}
		volumes[absKey] = subVal
	}

	artifacts, err := subMap(raw.Artefacts, sub)
	if err != nil {
		return nil, err
	}

	port, err := portFromNode(raw.Port, vars)
	if err != nil {
		return nil, err
	}
	targetPort, err := portFromNode(raw.TargetPort, vars)
	if err != nil {
		return nil, err
	}

	clusterDir, err := subOptional(raw.K8s, sub)
	if err != nil {
		return nil, err
	}

	return &ComponentSpec{
		BuildKind:          kind,
		ComponentName:      raw.ComponentName,
		ProductName:        cfg.ProductName,
		Color:              color,
		DependsOn:          dependsOn,
		Build:              build,
		Watch:              watch,
		Subdomain:          subdomain,
		MountPoint:         mountPoint,
		Artifacts:          artifacts,
		ArtifactOutputDir:  artifactOutputDir,
		ExtraRunArgs:       extraArgs,
		Env:                env,
		Volumes:            volumes,
		Port:               port,
		TargetPort:         targetPort,
		ClusterManifestDir: clusterDir,
		Priority:           priority,
		Config:             cfg,
		Variables:          vars,
	}, nil
}

func subOptional(s string, sub func(string) (string, error)) (string, error) {
	if s == "" {
		return "", nil
	}
	return sub(s)
}

func subMap(m map[string]string, sub func(string) (string, error)) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		sk, err := sub(k)
		if err != nil {
			return nil, err
		}
		sv, err := sub(v)
		if err != nil {
			return nil, err
		}
		out[sk] = sv
	}
	return out, nil
}

// portFromNode resolves a port/target_port field that may arrive as a
// numeric YAML scalar or a {{ name }} variable reference.
func portFromNode(n *yaml.Node, vars *variables.Store) (*uint16, error) {
	if n == nil {
		return nil, nil
	}
	var raw string
	if err := n.Decode(&raw); err == nil {
		p, err := vars.SubstitutePort(raw)
		if err != nil {
			return nil, err
		}
		return &p, nil
	}
	var num int
	if err := n.Decode(&num); err != nil {
		return nil, fmt.Errorf("stackspec: invalid port value: %w", rushderrors.ErrSpec)
	}
	if num < 0 || num > 65535 {
		return nil, fmt.Errorf("stackspec: port %d out of range: %w", num, rushderrors.ErrSpec)
	}
	p := uint16(num)
	return &p, nil
}

func buildKindFromRaw(raw *rawComponent, sub func(string) (string, error)) (BuildKind, error) {
	location, err := subOptional(raw.Location, sub)
	if err != nil {
		return nil, err
	}
	dockerfile, err := subOptional(raw.Dockerfile, sub)
	if err != nil {
		return nil, err
	}
	contextDir, err := subOptional(raw.ContextDir, sub)
	if err != nil {
		return nil, err
	}
	if contextDir == "" {
		contextDir = "."
	}

	switch raw.BuildType {
	case "TrunkWasm":
		if location == "" || dockerfile == "" {
			return nil, fmt.Errorf("stackspec: TrunkWasm requires location and dockerfile: %w", rushderrors.ErrSpec)
		}
		return WasmBundle{SourceDir: location, ContainerFile: dockerfile, ContextDir: contextDir}, nil
	case "RustBinary":
		if location == "" || dockerfile == "" {
			return nil, fmt.Errorf("stackspec: RustBinary requires location and dockerfile: %w", rushderrors.ErrSpec)
		}
		return NativeBinary{SourceDir: location, ContainerFile: dockerfile, ContextDir: contextDir}, nil
	case "Script":
		if location == "" || dockerfile == "" {
			return nil, fmt.Errorf("stackspec: Script requires location and dockerfile: %w", rushderrors.ErrSpec)
		}
		return Script{SourceDir: location, ContainerFile: dockerfile, ContextDir: contextDir}, nil
	case "Ingress":
		if len(raw.Components) == 0 || dockerfile == "" {
			return nil, fmt.Errorf("stackspec: Ingress requires components and dockerfile: %w", rushderrors.ErrSpec)
		}
		refs := make([]string, len(raw.Components))
		for i, c := range raw.Components {
			if refs[i], err = sub(c); err != nil {
				return nil, err
			}
		}
		return Ingress{ComponentRefs: refs, ContainerFile: dockerfile, ContextDir: contextDir}, nil
	case "Image":
		image, err := subOptional(raw.Image, sub)
		if err != nil {
			return nil, err
		}
		if image == "" {
			return nil, fmt.Errorf("stackspec: Image requires image: %w", rushderrors.ErrSpec)
		}
		command, err := subOptional(raw.Command, sub)
		if err != nil {
			return nil, err
		}
		entrypoint, err := subOptional(raw.Entrypoint, sub)
		if err != nil {
			return nil, err
		}
		return PrebuiltImage{ImageWithTag: image, Command: command, Entrypoint: entrypoint}, nil
	case "K8sOnly":
		return ClusterOnly{}, nil
	case "K8sInstall":
		namespace, err := subOptional(raw.Namespace, sub)
		if err != nil {
			return nil, err
		}
		if namespace == "" {
			return nil, fmt.Errorf("stackspec: K8sInstall requires namespace: %w", rushderrors.ErrSpec)
		}
		return ClusterInstall{Namespace: namespace}, nil
	case "ApiDocumentation":
		component, err := subOptional(raw.Component, sub)
		if err != nil {
			return nil, err
		}
		openAPI, err := subOptional(raw.OpenAPI, sub)
		if err != nil {
			return nil, err
		}
		if component == "" || openAPI == "" {
			return nil, fmt.Errorf("stackspec: ApiDocumentation requires component and open_api: %w", rushderrors.ErrSpec)
		}
		return ApiDoc{ComponentRef: component, OpenAPIPath: openAPI}, nil
	default:
		return nil, fmt.Errorf("stackspec: unknown build_type %q: %w", raw.BuildType, rushderrors.ErrSpec)
	}
}

// SortedByPriorityName returns the specs ordered by
// "<priority>_<component>" lexically ascending, the ordering the
// reactor's install path uses.
func SortedByPriorityName(specs []*ComponentSpec) []*ComponentSpec {
	out := make([]*ComponentSpec, len(specs))
	copy(out, specs)
	sort.SliceStable(out, func(i, j int) bool {
		return priorityNameKey(out[i]) < priorityNameKey(out[j])
	})
	return out
}

func priorityNameKey(s *ComponentSpec) string {
	return fmt.Sprintf("%d_%s", s.Priority, s.ComponentName)
}
