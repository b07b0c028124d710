package stackspec

// BuildKind is a closed sum type: the set of ways a component can become
// an image. Each variant carries only the fields it needs; dispatch is by
// type switch, never by a shared struct of optional fields.
type BuildKind interface {
	buildKind()
}

// WasmBundle builds a trunk-built WASM bundle from source.
type WasmBundle struct {
	SourceDir     string
	ContainerFile string
	ContextDir    string
}

// NativeBinary cross-compiles a native binary from source.
type NativeBinary struct {
	SourceDir     string
	ContainerFile string
	ContextDir    string
}

// Script builds an image by running an arbitrary build script.
type Script struct {
	SourceDir     string
	ContainerFile string
	ContextDir    string
}

// Ingress builds an ingress image that fronts a set of other components.
type Ingress struct {
	ComponentRefs []string
	ContainerFile string
	ContextDir    string
}

// PrebuiltImage references an already-built, externally maintained image.
type PrebuiltImage struct {
	ImageWithTag string
	Command      string
	Entrypoint   string
}

// ClusterOnly contributes only cluster manifests; it has no image.
type ClusterOnly struct{}

// ClusterInstall is a one-shot, namespaced cluster installation bundle
// (e.g. a Helm chart's rendered CRDs) applied directly from its input
// directory rather than the rendered output tree.
type ClusterInstall struct {
	Namespace string
}

// ApiDoc publishes an OpenAPI document on behalf of another component.
type ApiDoc struct {
	ComponentRef string
	OpenAPIPath  string
}

func (WasmBundle) buildKind()      {}
func (NativeBinary) buildKind()    {}
func (Script) buildKind()          {}
func (Ingress) buildKind()         {}
func (PrebuiltImage) buildKind()   {}
func (ClusterOnly) buildKind()     {}
func (ClusterInstall) buildKind()  {}
func (ApiDoc) buildKind()          {}

// ContainerFileOf returns the container file path for kinds that carry
// one, and ok=false for kinds that don't (PrebuiltImage, ClusterOnly,
// ClusterInstall, ApiDoc never build an image directly from a file).
func ContainerFileOf(k BuildKind) (string, bool) {
	switch v := k.(type) {
	case WasmBundle:
		return v.ContainerFile, true
	case NativeBinary:
		return v.ContainerFile, true
	case Script:
		return v.ContainerFile, true
	case Ingress:
		return v.ContainerFile, true
	default:
		return "", false
	}
}

// ContextDirOf returns the build context directory for kinds that carry
// one, defaulting to "." when unset.
func ContextDirOf(k BuildKind) string {
	var dir string
	switch v := k.(type) {
	case WasmBundle:
		dir = v.ContextDir
	case NativeBinary:
		dir = v.ContextDir
	case Script:
		dir = v.ContextDir
	case Ingress:
		dir = v.ContextDir
	}
	if dir == "" {
		return "."
	}
	return dir
}

// BuildScriptLogicalName returns the registered template name for the
// kind's default build script, or "" if the kind produces no build
// script of its own (Script/ClusterOnly/ClusterInstall/Ingress/
// PrebuiltImage/ApiDoc all produce none; an explicit spec.Build string
// always takes precedence over this).
func BuildScriptLogicalName(k BuildKind) string {
	switch k.(type) {
	case WasmBundle:
		return "build/wasm_trunk.sh"
	case NativeBinary:
		return "build/rust_binary.sh"
	default:
		return ""
	}
}
