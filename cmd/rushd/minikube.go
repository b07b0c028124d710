package main

import (
	"fmt"

	"github.com/wonop-io/rushd/internal/procrunner"
	"github.com/wonop-io/rushd/internal/toolchain"
)

// MinikubeCmd is a thin passthrough to the minikube binary for the three
// lifecycle verbs rushd's original CLI surface named.
type MinikubeCmd struct {
	Start  MinikubeStartCmd  `cmd:"" help:"start the local minikube cluster"`
	Stop   MinikubeStopCmd   `cmd:"" help:"stop the local minikube cluster"`
	Delete MinikubeDeleteCmd `cmd:"" help:"delete the local minikube cluster"`
}

type MinikubeStartCmd struct{}

func (c *MinikubeStartCmd) Run(cctx *Context) error { return runMinikube(cctx, "start") }

type MinikubeStopCmd struct{}

func (c *MinikubeStopCmd) Run(cctx *Context) error { return runMinikube(cctx, "stop") }

type MinikubeDeleteCmd struct{}

func (c *MinikubeDeleteCmd) Run(cctx *Context) error { return runMinikube(cctx, "delete") }

func runMinikube(cctx *Context, verb string) error {
	tc, err := toolchain.Resolve()
	if err != nil {
		return err
	}
	bin := tc.Path("minikube")
	if bin == "minikube" {
		return fmt.Errorf("rushd: minikube not found on PATH")
	}
	return procrunner.New().Run(cctx.ctx, "minikube:"+verb, ".", bin, verb)
}
