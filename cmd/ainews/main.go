package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robertmeta/ainews/config"
	"github.com/robertmeta/ainews/feed"
	"github.com/robertmeta/ainews/logging"
	"github.com/robertmeta/ainews/model"
	"github.com/robertmeta/ainews/opml"
	"github.com/robertmeta/ainews/pipeline"
	"github.com/robertmeta/ainews/segment"
	"github.com/robertmeta/ainews/store"
	"github.com/urfave/cli/v2"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
)

func main() {
	app := newApp()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "ainews",
		Usage:   "Split AI newsletters into tagged news segments",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Database file path (default: from config)",
				EnvVars: []string{"AINEWS_DB"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath(),
				Usage:   "Config file path",
				EnvVars: []string{"AINEWS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"AINEWS_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a newsletter source",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "category",
						Usage: "Source category",
					},
				},
				Action: addSource,
			},
			{
				Name:   "sources",
				Usage:  "List all sources",
				Action: listSources,
			},
			{
				Name:      "remove",
				Usage:     "Remove a source and everything ingested from it",
				ArgsUsage: "<source-id>",
				Action:    removeSource,
			},
			{
				Name:  "ingest",
				Usage: "Fetch sources and store segments of new issues",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:    "source-id",
						Aliases: []string{"s"},
						Usage:   "Ingest a specific source by ID (if not set, ingests all)",
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Ingest a local RSS/Atom file instead of fetching",
					},
				},
				Action: ingest,
			},
			{
				Name:  "segments",
				Usage: "List stored segments, newest issue first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Value:   50,
						Usage:   "Maximum number of segments to return",
					},
					&cli.IntFlag{
						Name:    "offset",
						Aliases: []string{"o"},
						Usage:   "Offset for pagination",
					},
					&cli.StringFlag{
						Name:  "since",
						Usage: "Show segments since duration (e.g., 1d, 1w, 3m, 1yr, all)",
					},
					&cli.StringFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "Filter by type (main_news, quick_news, top_tools)",
					},
					&cli.StringFlag{
						Name:  "topic",
						Usage: "Filter by topic",
					},
					&cli.StringFlag{
						Name:  "company",
						Usage: "Filter by company",
					},
					&cli.Int64Flag{
						Name:  "source-id",
						Usage: "Filter by source ID",
					},
				},
				Action: listSegments,
			},
			{
				Name:      "show",
				Usage:     "Show segment details",
				ArgsUsage: "<segment-id>",
				Action:    showSegment,
			},
			{
				Name:  "topics",
				Usage: "Count segments per topic",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "since",
						Usage: "Count segments since duration (e.g., 1w, all)",
					},
				},
				Action: listTopics,
			},
			{
				Name:      "parse",
				Usage:     "Segment and tag a local newsletter without storing it",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "feed",
						Usage: "Treat the file as an RSS/Atom feed and parse every item",
					},
				},
				Action: parseFile,
			},
			{
				Name:      "import",
				Usage:     "Import sources from OPML file",
				ArgsUsage: "<opml-file>",
				Action:    importOPML,
			},
			{
				Name:  "export",
				Usage: "Export sources to OPML file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default: stdout)",
					},
				},
				Action: exportOPML,
			},
			{
				Name:  "watch",
				Usage: "Ingest all sources on a cron schedule",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "schedule",
						Usage: "Cron expression (default: from config)",
					},
					&cli.BoolFlag{
						Name:  "now",
						Usage: "Run once immediately before waiting for the schedule",
					},
					&cli.DurationFlag{
						Name:  "run-timeout",
						Value: 30 * time.Minute,
						Usage: "Upper bound for a single ingestion run",
					},
				},
				Action: watch,
			},
			{
				Name:  "serve",
				Usage: "Serve stored segments over a JSON HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Aliases: []string{"a"},
						Usage:   "Listen address (default: from config)",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Also ingest all sources on the configured schedule",
					},
					&cli.DurationFlag{
						Name:  "run-timeout",
						Value: 30 * time.Minute,
						Usage: "Upper bound for a single scheduled ingestion run",
					},
				},
				Action: serve,
			},
		},
	}
}

// getConfig loads the config file and applies global flag overrides.
func getConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}

	logger, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Path == "" {
		logger.Debug("no config file, using defaults", "path", c.String("config"))
	}
	return cfg, logger, nil
}

func getStore(cfg *config.Config) (*store.Store, error) {
	// Create directory if it doesn't exist
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	s, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return s, nil
}

// openStore is getConfig followed by getStore, for commands that only
// read or write the database.
func openStore(c *cli.Context) (*store.Store, *config.Config, *slog.Logger, error) {
	cfg, logger, err := getConfig(c)
	if err != nil {
		return nil, nil, nil, cli.Exit(err.Error(), ExitUsageError)
	}
	s, err := getStore(cfg)
	if err != nil {
		return nil, nil, nil, cli.Exit(err.Error(), ExitDataError)
	}
	return s, cfg, logger, nil
}

func newFetcher(cfg *config.Config) *feed.Fetcher {
	return feed.NewFetcher(
		feed.WithTimeout(cfg.FetchTimeout()),
		feed.WithUserAgent(cfg.Fetch.UserAgent),
	)
}

func newPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, error) {
	opts, err := cfg.SegmenterOptions()
	if err != nil {
		return nil, err
	}
	classifier, err := cfg.Classifier()
	if err != nil {
		return nil, err
	}
	return pipeline.New(segment.New(opts), classifier, logger), nil
}

func newIngester(cfg *config.Config, s *store.Store, logger *slog.Logger) (*pipeline.Ingester, error) {
	p, err := newPipeline(cfg, logger)
	if err != nil {
		return nil, err
	}
	return pipeline.NewIngester(newFetcher(cfg), s, p, logger, cfg.Fetch.Workers), nil
}

func parseID(arg, what string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(arg, "%d", &id); err != nil || id <= 0 {
		return 0, cli.Exit(fmt.Sprintf("Invalid %s ID", what), ExitUsageError)
	}
	return id, nil
}

func outputJSON(v interface{}) error {
	return writeJSON(os.Stdout, v)
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func addSource(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: ainews add <url>", ExitUsageError)
	}

	src := &model.Source{
		URL:      c.Args().Get(0),
		Category: c.String("category"),
	}
	if err := src.Validate(); err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	s, cfg, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.GetSourceByURL(src.URL); err == nil {
		return cli.Exit(fmt.Sprintf("Source already exists: %s", src.URL), ExitDataError)
	} else if !errors.Is(err, store.ErrSourceNotFound) {
		return cli.Exit(err.Error(), ExitDataError)
	}

	// Fetch feed to get title
	result, err := newFetcher(cfg).Fetch(c.Context, src.URL)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to fetch feed: %v", err), ExitDataError)
	}
	src.Title = result.Title

	if err := s.SaveSource(src); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to save source: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"success": true,
		"source":  src,
	})
}

func listSources(c *cli.Context) error {
	s, _, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	sources, err := s.GetAllSources()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get sources: %v", err), ExitDataError)
	}
	if sources == nil {
		sources = []*model.Source{}
	}

	return outputJSON(sources)
}

func removeSource(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: ainews remove <source-id>", ExitUsageError)
	}

	sourceID, err := parseID(c.Args().Get(0), "source")
	if err != nil {
		return err
	}

	s, _, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteSource(sourceID); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to delete source: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"success":   true,
		"source_id": sourceID,
	})
}

func ingest(c *cli.Context) error {
	s, cfg, logger, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	ingester, err := newIngester(cfg, s, logger)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	sourceID := c.Int64("source-id")
	var src *model.Source
	if sourceID > 0 {
		src, err = s.GetSource(sourceID)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to get source: %v", err), ExitDataError)
		}
	}

	var reports []*pipeline.IngestReport

	if path := c.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to read file: %v", err), ExitDataError)
		}
		result, err := newFetcher(cfg).Parse(string(data))
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to parse feed: %v", err), ExitDataError)
		}

		report, err := ingester.IngestIssues(c.Context, sourceID, result.Issues)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to ingest file: %v", err), ExitDataError)
		}
		report.Source = path
		reports = append(reports, report)
	} else {
		var sources []*model.Source
		if src != nil {
			sources = append(sources, src)
		} else {
			sources, err = s.GetAllSources()
			if err != nil {
				return cli.Exit(fmt.Sprintf("Failed to get sources: %v", err), ExitDataError)
			}
		}
		reports = ingester.IngestAll(c.Context, sources)
	}

	return outputJSON(summarize(reports))
}

// summarize totals ingestion reports for JSON output.
func summarize(reports []*pipeline.IngestReport) map[string]interface{} {
	newIssues, segments, failed := 0, 0, 0
	for _, r := range reports {
		newIssues += r.NewIssues
		segments += r.Segments
		if r.Error != "" {
			failed++
		}
	}
	if reports == nil {
		reports = []*pipeline.IngestReport{}
	}

	return map[string]interface{}{
		"sources":    len(reports),
		"failed":     failed,
		"new_issues": newIssues,
		"segments":   segments,
		"results":    reports,
	}
}

func listSegments(c *cli.Context) error {
	opts, err := store.BuildQueryOptions(
		c.Int("limit"),
		c.Int("offset"),
		c.String("since"),
		c.String("type"),
		c.String("topic"),
		c.String("company"),
	)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid query options: %v", err), ExitUsageError)
	}
	opts.SourceID = c.Int64("source-id")

	s, _, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	segments, err := s.GetSegments(opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get segments: %v", err), ExitDataError)
	}
	if segments == nil {
		segments = []*model.Segment{}
	}

	return outputJSON(map[string]interface{}{
		"count":    len(segments),
		"limit":    opts.Limit,
		"offset":   opts.Offset,
		"segments": segments,
	})
}

func showSegment(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: ainews show <segment-id>", ExitUsageError)
	}

	id, err := parseID(c.Args().Get(0), "segment")
	if err != nil {
		return err
	}

	s, _, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	seg, err := s.GetSegment(id)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get segment: %v", err), ExitDataError)
	}

	return outputJSON(seg)
}

func listTopics(c *cli.Context) error {
	since, err := store.SinceToUnixTime(c.String("since"), time.Now())
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid since: %v", err), ExitUsageError)
	}

	s, _, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	counts, err := s.TopicCounts(since)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to count topics: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"topics": counts,
	})
}

func parseFile(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: ainews parse <file>", ExitUsageError)
	}
	path := c.Args().Get(0)

	cfg, logger, err := getConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}
	p, err := newPipeline(cfg, logger)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to read file: %v", err), ExitDataError)
	}

	issues := []model.Issue{{GUID: path, Title: filepath.Base(path), RawBody: string(data)}}
	if c.Bool("feed") {
		result, err := newFetcher(cfg).Parse(string(data))
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to parse feed: %v", err), ExitDataError)
		}
		issues = result.Issues
	}

	return outputJSON(parsedIssues(p.ProcessAll(c.Context, issues, cfg.Fetch.Workers)))
}

type parsedIssue struct {
	GUID     string          `json:"guid"`
	Title    string          `json:"title"`
	Segments []model.Segment `json:"segments"`
	Warning  string          `json:"warning,omitempty"`
}

func parsedIssues(results []pipeline.Result) []parsedIssue {
	out := make([]parsedIssue, 0, len(results))
	for _, res := range results {
		pi := parsedIssue{
			GUID:     res.Issue.GUID,
			Title:    res.Issue.Title,
			Segments: res.Segments,
		}
		if pi.Segments == nil {
			pi.Segments = []model.Segment{}
		}
		if res.Err != nil {
			pi.Warning = res.Err.Error()
		}
		out = append(out, pi)
	}
	return out
}

func importOPML(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: ainews import <opml-file>", ExitUsageError)
	}

	file, err := os.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to open OPML file: %v", err), ExitDataError)
	}
	defer file.Close()

	sources, err := opml.Parse(file)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to parse OPML: %v", err), ExitDataError)
	}

	s, _, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	imported := 0
	skipped := 0
	errs := []string{}

	for _, src := range sources {
		if _, err := s.GetSourceByURL(src.URL); err == nil {
			skipped++
			continue
		}
		if err := s.SaveSource(src); err != nil {
			skipped++
			errs = append(errs, fmt.Sprintf("%s: %v", src.URL, err))
			continue
		}
		imported++
	}

	return outputJSON(map[string]interface{}{
		"success":  true,
		"imported": imported,
		"skipped":  skipped,
		"total":    len(sources),
		"errors":   errs,
	})
}

func exportOPML(c *cli.Context) error {
	s, _, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	sources, err := s.GetAllSources()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get sources: %v", err), ExitDataError)
	}

	outputPath := c.String("output")
	var writer io.Writer = os.Stdout

	if outputPath != "" {
		file, err := os.Create(outputPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to create output file: %v", err), ExitDataError)
		}
		defer file.Close()
		writer = file
	}

	if err := opml.Generate(writer, sources, time.Now()); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to generate OPML: %v", err), ExitDataError)
	}

	// If outputting to file, also return JSON status
	if outputPath != "" {
		return outputJSON(map[string]interface{}{
			"success": true,
			"file":    outputPath,
			"count":   len(sources),
		})
	}

	return nil
}
