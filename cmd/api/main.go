package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Apurer/catalog-gateway/internal/app/api"
	platformobservability "github.com/Apurer/catalog-gateway/internal/platform/observability"
)

func main() {
	app := &cli.App{
		Name:  "api",
		Usage: "catalog gateway aggregating product catalog and stock upstreams",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API until interrupted",
				Action: serve,
			},
			{
				Name:   "probe",
				Usage:  "check upstream health once; exits 1 when any upstream is unhealthy",
				Action: probe,
			},
		},
		DefaultCommand: "serve",
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serve(c *cli.Context) error {
	cfg, err := api.LoadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return api.Run(ctx, cfg)
}

func probe(c *cli.Context) error {
	cfg, err := api.LoadConfig()
	if err != nil {
		return err
	}
	logger := platformobservability.NewLogger(c.App.ErrWriter, cfg.LogLevel)
	ctx, cancel := context.WithTimeout(c.Context, cfg.RequestTimeout)
	defer cancel()

	results, err := api.Probe(ctx, cfg, logger)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	for _, name := range names {
		status := "healthy"
		if !results[name] {
			status = "unhealthy"
			healthy = false
		}
		fmt.Fprintf(c.App.Writer, "%s: %s\n", name, status)
	}
	if !healthy {
		logger.Warn("upstream probe failed", slog.Any("results", results))
		return cli.Exit("one or more upstreams are unhealthy", 1)
	}
	return nil
}
