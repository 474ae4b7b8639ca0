package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robertmeta/ainews/config"
	"github.com/robertmeta/ainews/pipeline"
	"github.com/robertmeta/ainews/scheduler"
	"github.com/robertmeta/ainews/server"
	"github.com/robertmeta/ainews/store"
	"github.com/urfave/cli/v2"
)

// ingestAllJob ingests every stored source. Per-source failures are logged
// and do not fail the run.
func ingestAllJob(s *store.Store, ingester *pipeline.Ingester, logger *slog.Logger) scheduler.Job {
	return func(ctx context.Context) error {
		sources, err := s.GetAllSources()
		if err != nil {
			return fmt.Errorf("failed to get sources: %w", err)
		}

		reports := ingester.IngestAll(ctx, sources)
		for _, r := range reports {
			if r.Error != "" {
				logger.Warn("source failed", "source", r.Source, "error", r.Error)
			}
		}

		summary := summarize(reports)
		logger.Info("ingestion run complete",
			"sources", summary["sources"],
			"failed", summary["failed"],
			"new_issues", summary["new_issues"],
			"segments", summary["segments"],
		)
		return nil
	}
}

func startScheduler(cfg *config.Config, spec string, timeout time.Duration, job scheduler.Job, logger *slog.Logger) (*scheduler.Scheduler, error) {
	if spec == "" {
		spec = cfg.Schedule
	}

	sched := scheduler.New(logger, timeout)
	if err := sched.Schedule(spec, job); err != nil {
		return nil, err
	}
	sched.Start()
	logger.Info("scheduler started", "schedule", spec, "next_run", sched.NextRun())
	return sched, nil
}

func watch(c *cli.Context) error {
	s, cfg, logger, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	ingester, err := newIngester(cfg, s, logger)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}
	job := ingestAllJob(s, ingester, logger)

	sched, err := startScheduler(cfg, c.String("schedule"), c.Duration("run-timeout"), job, logger)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	if c.Bool("now") {
		sched.RunNow(job)
	}

	<-c.Context.Done()
	logger.Info("shutting down")
	sched.Stop()
	return nil
}

func serve(c *cli.Context) error {
	s, cfg, logger, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	addr := cfg.Server.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	handler := server.NewHandler(s, logger)

	if c.Bool("watch") {
		ingester, err := newIngester(cfg, s, logger)
		if err != nil {
			return cli.Exit(err.Error(), ExitUsageError)
		}
		sched, err := startScheduler(cfg, "", c.Duration("run-timeout"), ingestAllJob(s, ingester, logger), logger)
		if err != nil {
			return cli.Exit(err.Error(), ExitUsageError)
		}
		defer sched.Stop()
		handler.SetScheduler(sched)
	}

	if err := server.Run(c.Context, addr, server.NewRouter(handler), logger); err != nil {
		return cli.Exit(err.Error(), ExitGeneralError)
	}
	return nil
}
