package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"chipdeck/internal/config"
	"chipdeck/internal/dashboard"
)

const defaultRenderWait = 2 * time.Second

type Deps struct {
	LoadConfig   func() config.Config
	RunServe     func(context.Context, config.Config) error
	RunRender    func(context.Context, config.Config, time.Duration) ([]dashboard.Rendered, error)
	RunCheck     func(config.Config) (path string, warnings []string, err error)
	RunMigrateUp func(context.Context, config.Config) error
}

func BuildApp(deps Deps) *cli.App {
	return &cli.App{
		Name:  "chipdeck",
		Usage: "live Home Assistant chips dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dashboard", Aliases: []string{"d"}, Usage: "dashboard file (yaml, toml or json)"},
			&cli.StringFlag{Name: "config-dir", Usage: "directory holding config.toml"},
		},
		Action: func(ctx *cli.Context) error {
			return runServe(ctx.Context, deps, loadConfig(ctx, deps))
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "mount the dashboard and serve the local API",
				Action: func(ctx *cli.Context) error {
					return runServe(ctx.Context, deps, loadConfig(ctx, deps))
				},
			},
			{
				Name:  "render",
				Usage: "connect once and print every chip as JSON",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "wait", Value: defaultRenderWait, Usage: "time to let live templates deliver"},
				},
				Action: func(ctx *cli.Context) error {
					if deps.RunRender == nil {
						return errors.New("render runner is not configured")
					}
					out, err := deps.RunRender(ctx.Context, loadConfig(ctx, deps), ctx.Duration("wait"))
					if err != nil {
						return err
					}
					enc := json.NewEncoder(ctx.App.Writer)
					enc.SetIndent("", "  ")
					return enc.Encode(out)
				},
			},
			{
				Name:  "check",
				Usage: "validate the dashboard file",
				Action: func(ctx *cli.Context) error {
					if deps.RunCheck == nil {
						return errors.New("check runner is not configured")
					}
					path, warnings, err := deps.RunCheck(loadConfig(ctx, deps))
					for _, w := range warnings {
						_, _ = fmt.Fprintf(ctx.App.ErrWriter, "warning: %s\n", w)
					}
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					_, _ = fmt.Fprintf(ctx.App.Writer, "%s: ok\n", path)
					return nil
				},
			},
			{
				Name:  "migrate",
				Usage: "run render history migrations",
				Subcommands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply pending migrations",
						Action: func(ctx *cli.Context) error {
							return runMigrateUp(ctx.Context, deps, loadConfig(ctx, deps))
						},
					},
				},
			},
		},
	}
}

// loadConfig reads the environment and applies the global flags on top.
func loadConfig(ctx *cli.Context, deps Deps) config.Config {
	var cfg config.Config
	if deps.LoadConfig != nil {
		cfg = deps.LoadConfig()
	} else {
		cfg = config.LoadConfig()
	}
	if v := strings.TrimSpace(ctx.String("dashboard")); v != "" {
		cfg.Dashboard = v
	}
	if v := strings.TrimSpace(ctx.String("config-dir")); v != "" {
		cfg.ConfigDir = v
	}
	return cfg
}

func runServe(ctx context.Context, deps Deps, cfg config.Config) error {
	if deps.RunServe == nil {
		return errors.New("serve runner is not configured")
	}
	return deps.RunServe(ctx, cfg)
}

func runMigrateUp(ctx context.Context, deps Deps, cfg config.Config) error {
	if deps.RunMigrateUp == nil {
		return errors.New("migrate up runner is not configured")
	}
	return deps.RunMigrateUp(ctx, cfg)
}
