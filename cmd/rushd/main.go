// Command rushd builds, renders, and deploys the components of a
// product stack described by stack.yaml.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
	kongcompletion "github.com/jotaen/kong-completion"
	"github.com/posener/complete"
	"gopkg.in/yaml.v3"

	"github.com/wonop-io/rushd/internal/builder"
	"github.com/wonop-io/rushd/internal/productconfig"
	"github.com/wonop-io/rushd/internal/reactor"
	"github.com/wonop-io/rushd/internal/statedb"
	"github.com/wonop-io/rushd/internal/telemetry"
	"github.com/wonop-io/rushd/internal/toolchain"
)

// Context is threaded into every subcommand's Run method.
type Context struct {
	ctx   context.Context
	cli   *CLI
	state *statedb.DB
}

// newReactor resolves the toolchain, product config, and reactor for
// the current global flags. Every subcommand but minikube, completion,
// and describe toolchain/runs needs one, so they go through this.
func (c *Context) newReactor() (*reactor.Reactor, error) {
	tc, err := toolchain.Resolve()
	if err != nil {
		return nil, err
	}
	cfg, err := productconfig.New(c.cli.Root, c.cli.Product, c.cli.Env, c.cli.Registry)
	if err != nil {
		return nil, err
	}
	platform := builder.Platform{OS: c.cli.OS, Arch: c.cli.Arch}
	return reactor.New(cfg, tc, platform)
}

// CLI is the top-level flag/command surface, wired the way
// cmd/sand/main.go wires kong: a flat struct of global flags plus one
// field per subcommand.
type CLI struct {
	Arch     string `default:"amd64" help:"target CPU architecture for cross-compiled builds"`
	OS       string `default:"linux" help:"target OS for cross-compiled builds"`
	Env      string `default:"dev" placeholder:"<dev|staging|prod>" help:"deployment environment"`
	Registry string `default:"" help:"container registry host to push and pull images against"`
	Root     string `default:"." help:"repository root containing products/<name>"`
	Product  string `required:"" help:"product name under products/"`

	LogLevel string `default:"info" placeholder:"<debug|info|warn|error>" help:"logging level"`
	LogFile  string `default:"" placeholder:"<path>" help:"write logs to this file (rotated), instead of stderr"`

	Describe  DescribeCmd  `cmd:"" help:"print resolved toolchain, images, services, or manifests"`
	Dev       DevCmd       `cmd:"" help:"run the full stack locally with hot rebuilds on source change"`
	Build     BuildCmd     `cmd:"" help:"build every component's image"`
	Push      PushCmd      `cmd:"" help:"build and push every component's image"`
	Minikube  MinikubeCmd  `cmd:"" help:"start, stop, or delete the local minikube cluster"`
	Rollout   RolloutCmd   `cmd:"" help:"build, push, render manifests, and promote to the infra repository"`
	Deploy    DeployCmd    `cmd:"" help:"build, push, render manifests, and apply to the cluster"`
	Install   InstallCmd   `cmd:"" help:"install raw cluster-install manifests"`
	Uninstall UninstallCmd `cmd:"" help:"uninstall raw cluster-install manifests"`
	Apply     ApplyCmd     `cmd:"" help:"apply every rendered manifest to the cluster"`
	Unapply   UnapplyCmd   `cmd:"" help:"delete every rendered manifest from the cluster"`

	Completion kongcompletion.Cmd `cmd:"" help:"print shell completion script"`
}

func main() {
	var cli CLI
	parser := kong.Must(&cli,
		kong.Name("rushd"),
		kong.Description("Build-and-deploy orchestrator for multi-component product stacks."),
		kong.Configuration(exportEnvAndLoad, "rushd.yaml"),
		kong.UsageOnError(),
	)

	kongcompletion.Register(parser,
		kongcompletion.WithPredictor("product", complete.PredictAnything),
	)

	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	logger, closeLog := newLogger(cli.LogLevel, cli.LogFile)
	defer closeLog()
	slog.SetDefault(logger)

	tracer, shutdownTelemetry, err := telemetry.Setup(context.Background(), "dev")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	ctx, span := telemetry.StartCommand(context.Background(), tracer, kctx.Command(), cli.Product, cli.Env)
	defer span.End()

	dbPath := stateDBPath(cli.Root, cli.Product)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		slog.Warn("main: could not create run-history dir", "error", err)
	}
	state, err := statedb.Open(dbPath)
	if err != nil {
		slog.WarnContext(ctx, "main: run history unavailable", "error", err)
		state = nil
	} else {
		defer state.Close()
	}

	started := time.Now()
	runErr := kctx.Run(&Context{ctx: ctx, cli: &cli, state: state})

	if state != nil {
		run := statedb.Run{
			Command:     kctx.Command(),
			Product:     cli.Product,
			Environment: cli.Env,
			StartedAt:   started,
			FinishedAt:  time.Now(),
			OK:          runErr == nil,
		}
		if runErr != nil {
			run.Detail = runErr.Error()
		}
		if err := state.RecordRun(context.Background(), run); err != nil {
			slog.WarnContext(ctx, "main: record run failed", "error", err)
		}
	}

	kctx.FatalIfErrorf(runErr)
}

// stateDBPath returns the per-product run-history database path, rooted
// under root/.rushd so it sits alongside products/ without polluting it.
func stateDBPath(root, product string) string {
	return filepath.Join(root, ".rushd", product+".db")
}

// exportEnvAndLoad wraps kongyaml.Loader to pull rushd.yaml's top-level
// env map out before kongyaml ever sees it, export each entry into the
// process environment, and hand the rest of the document to kongyaml for
// normal flag binding. This must happen before productconfig.New, which
// reads DEV_CTX/DEV_DOMAIN/INFRASTRUCTURE_REPOSITORY straight from the
// OS environment, and it must not let env's map value reach kongyaml's
// flag binder, which would otherwise collide with the --env string flag.
func exportEnvAndLoad(r io.Reader) (kong.Resolver, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("rushd.yaml: %w", err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("rushd.yaml: %w", err)
	}

	if rawEnv, ok := doc["env"]; ok {
		env, ok := rawEnv.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("rushd.yaml: env must be a map of string to string")
		}
		for k, v := range env {
			if err := os.Setenv(k, fmt.Sprint(v)); err != nil {
				return nil, fmt.Errorf("rushd.yaml: export env %s: %w", k, err)
			}
		}
		delete(doc, "env")
	}

	rest, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("rushd.yaml: %w", err)
	}
	return kongyaml.Loader(bytes.NewReader(rest))
}
