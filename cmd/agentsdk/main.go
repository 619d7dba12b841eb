// Command agentsdk runs the planner-executor runtime: one-shot runs from
// the command line, the HTTP server with the durable queue worker, and
// config validation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/agentsdk/pkg/config"
	"github.com/kadirpekel/agentsdk/pkg/llms"
	"github.com/kadirpekel/agentsdk/pkg/logger"
	"github.com/kadirpekel/agentsdk/pkg/queue"
	"github.com/kadirpekel/agentsdk/pkg/runtime"
	"github.com/kadirpekel/agentsdk/pkg/server"
	"github.com/kadirpekel/agentsdk/pkg/utils"
)

type globals struct {
	Config   string `help:"Path to the YAML config file." default:"agentsdk.yaml" type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
	Provider string `help:"LLM provider (openai, anthropic, mock)." default:"mock"`
	Model    string `help:"Model name." default:"gpt-4o-mini"`
}

type runCmd struct {
	Task      string `arg:"" help:"Task to plan and execute."`
	SessionID string `help:"Session to continue; empty starts a new one."`
	Preset    string `help:"Runtime preset when no config file exists." default:"standard"`
}

type serveCmd struct {
	Addr   string `help:"HTTP listen address." default:":8080"`
	Preset string `help:"Runtime preset when no config file exists." default:"standard"`
}

type validateCmd struct{}

type cli struct {
	globals

	Run      runCmd      `cmd:"" help:"Plan and execute a single task."`
	Serve    serveCmd    `cmd:"" help:"Serve the HTTP API with the durable queue worker."`
	Validate validateCmd `cmd:"" help:"Validate the config file."`
}

func main() {
	var app cli
	ctx := kong.Parse(&app,
		kong.Name("agentsdk"),
		kong.Description("Planner-executor agent runtime with a durable execution queue."),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(app.LogLevel)
	if err != nil {
		ctx.FatalIfErrorf(err)
	}
	logger.Init(level, os.Stderr, "simple")
	config.LoadEnv("")

	switch ctx.Command() {
	case "run <task>":
		err = app.runOnce()
	case "serve":
		err = app.serve()
	case "validate":
		err = app.validate()
	default:
		err = fmt.Errorf("unknown command %q", ctx.Command())
	}
	ctx.FatalIfErrorf(err)
}

func (app *cli) modelConfig() llms.ModelConfig {
	return llms.ModelConfig{
		Provider: app.Provider,
		Model:    app.Model,
	}
}

// buildRuntime prefers the config file and falls back to the preset when
// the file does not exist.
func (app *cli) buildRuntime(preset string) (*runtime.PlannerExecutorRuntime, *config.Config, error) {
	model := app.modelConfig()

	providers := llms.NewRegistry()
	provider, err := providers.CreateFromConfig(model)
	if err != nil {
		return nil, nil, err
	}

	if _, statErr := os.Stat(app.Config); statErr == nil {
		cfg, err := config.Load(app.Config)
		if err != nil {
			return nil, nil, err
		}
		rt, err := runtime.NewFromConfig(cfg, model, provider)
		if err != nil {
			return nil, nil, err
		}
		app.attachTokenCounter(rt)
		return rt, cfg, nil
	}

	rt, err := runtime.NewFromPreset(preset, model, provider)
	if err != nil {
		return nil, nil, err
	}
	app.attachTokenCounter(rt)
	return rt, nil, nil
}

// attachTokenCounter gives both agents the model's tokenizer for rate
// limit accounting; without it they fall back to the whitespace
// estimate.
func (app *cli) attachTokenCounter(rt *runtime.PlannerExecutorRuntime) {
	counter, err := utils.NewTokenCounter(app.Model)
	if err != nil {
		slog.Debug("Tokenizer unavailable, using whitespace token estimate", "model", app.Model, "error", err)
		return
	}
	rt.Planner().Context().Tokens = counter
	rt.Executor().Context().Tokens = counter
}

func (app *cli) runOnce() error {
	rt, _, err := app.buildRuntime(app.Run.Preset)
	if err != nil {
		return err
	}

	messages, err := rt.Run(context.Background(), app.Run.Task, app.Run.SessionID, "")
	if err != nil {
		return err
	}

	for _, msg := range messages {
		fmt.Printf("[%s] %s\n", msg.Metadata["type"], msg.Content)
	}
	return nil
}

func (app *cli) serve() error {
	rt, cfg, err := app.buildRuntime(app.Serve.Preset)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if obs := rt.Observability(); obs != nil {
		if err := obs.Initialize(ctx); err != nil {
			return err
		}
		defer obs.Shutdown(context.Background())
	}

	queueCfg := config.QueueConfig{}
	if cfg != nil {
		queueCfg = cfg.Queue
	}
	backend, err := queue.NewBackend(queueCfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	q := queue.New(backend, queue.RuntimeHandler(rt), queueCfg)
	q.Start(ctx)
	defer q.Stop()

	srv := server.New(rt, q, app.Serve.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (app *cli) validate() error {
	cfg, err := config.Load(app.Config)
	if err != nil {
		return err
	}
	fmt.Printf("%s is valid (queue backend: %s)\n", app.Config, cfg.Queue.Backend)
	return nil
}
