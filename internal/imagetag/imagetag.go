// Package imagetag resolves tagged image identities: the product-subtree
// git hash used to tag every built image, and reference parsing for the
// one-colon-permitted "image:tag" syntax accepted by prebuilt images and
// the final registry-qualified push target.
package imagetag

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/wonop-io/rushd/internal/rushderrors"
)

// GitHashTag computes the 8-char short hash of dir's git tree, suffixed
// "-wip" if the tree is dirty. The same tag is applied to every
// non-prebuilt image in one reactor run.
func GitHashTag(ctx context.Context, dir string) (string, error) {
	hashCmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	hashCmd.Dir = dir
	out, err := hashCmd.Output()
	if err != nil {
		return "", fmt.Errorf("imagetag: git rev-parse: %w", rushderrors.ErrGit)
	}
	hash := strings.TrimSpace(string(out))
	if len(hash) < 8 {
		return "", fmt.Errorf("imagetag: git hash too short: %w", rushderrors.ErrGit)
	}
	short := hash[:8]

	statusCmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	statusCmd.Dir = dir
	statusOut, err := statusCmd.Output()
	if err != nil {
		return "", fmt.Errorf("imagetag: git status: %w", rushderrors.ErrGit)
	}
	if strings.TrimSpace(string(statusOut)) != "" {
		short += "-wip"
	}
	return short, nil
}

// ParsePrebuilt splits a prebuilt "image[:tag]" string into its name and
// optional tag. A string with more than one colon is accepted only when
// go-containerregistry parses it as a reference (such as a registry
// host:port/repo:tag); any other multi-colon string is rejected. Validated
// through go-containerregistry's reference parser rather than a manual
// string split, so malformed references fail the same way a docker pull
// of the same string would.
func ParsePrebuilt(imageWithTag string) (repo, tag string, err error) {
	if strings.Count(imageWithTag, ":") > 1 {
		// Registries with a port (host:port/repo) are still one colon in
		// the repo portion once a tag is present; go-containerregistry
		// handles that disambiguation, so only reject the pathological
		// case it would itself reject.
		if _, perr := name.ParseReference(imageWithTag); perr != nil {
			return "", "", fmt.Errorf("imagetag: invalid image reference %q: %w", imageWithTag, rushderrors.ErrBuild)
		}
	}
	ref, err := name.ParseReference(imageWithTag, name.WeakValidation)
	if err != nil {
		return "", "", fmt.Errorf("imagetag: invalid image reference %q: %w", imageWithTag, rushderrors.ErrBuild)
	}
	if tagged, ok := ref.(name.Tag); ok {
		return tagged.Repository.Name(), tagged.TagStr(), nil
	}
	return ref.Context().Name(), "", nil
}

// QualifyForRegistry returns "<registry>/<localTag>", validated as a real
// image reference before the push is attempted.
func QualifyForRegistry(registry, localTag string) (string, error) {
	qualified := registry + "/" + localTag
	if _, err := name.ParseReference(qualified, name.WeakValidation); err != nil {
		return "", fmt.Errorf("imagetag: invalid registry-qualified reference %q: %w", qualified, rushderrors.ErrBuild)
	}
	return qualified, nil
}
