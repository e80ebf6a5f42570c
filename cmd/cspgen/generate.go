package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/cspgen/internal/config"
	"github.com/nao1215/cspgen/internal/crawler"
	"github.com/nao1215/cspgen/internal/log"
	"github.com/nao1215/cspgen/internal/model"
	"github.com/nao1215/cspgen/internal/pipeline"
	"github.com/spf13/cobra"
)

// addGenerateFlags registers the policy generation flags on cmd.
func addGenerateFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("url", "u", "",
		"Start URL of the crawl (required)")
	cmd.Flags().StringP("output-dir", "o", "",
		"Directory receiving csp_policy.json and web.config, created if absent (required)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to fetch, including failed fetches")
	cmd.Flags().IntP("max-depth", "d", config.DefaultMaxDepth,
		"Maximum number of link hops from the start URL")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each page fetch")
	cmd.Flags().Duration("delay", config.DefaultCrawlDelay,
		"Delay between page fetches")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .cspgen.yaml in current or home directory)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Also write csp_report.md with the evidence behind every origin")
	cmd.Flags().Bool("save", false,
		"Record the run in the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"History database directory")

	_ = cmd.MarkFlagRequired("url")        //nolint:errcheck // flag is defined above
	_ = cmd.MarkFlagRequired("output-dir") //nolint:errcheck // flag is defined above
}

// runGenerateCmd crawls the site and writes the artifacts.
func runGenerateCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.StartURL != "" {
		start, err := crawler.ParseStartURL(cfg.StartURL)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		cfg.StartURL = start.String()
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd, cfg.Verbose)

	// An interrupt ends only the crawl; the policy collected so far is
	// still written.
	crawlCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runGenerate(context.WithoutCancel(cmd.Context()), cmd, cfg, logger,
		pipeline.WithPipelineCrawlContext(crawlCtx))
}

// runGenerate executes the generation pipeline for cfg.
func runGenerate(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, opts ...pipeline.DefaultPipelineOption) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Crawling %s (max %d pages)...\n\n", cfg.StartURL, cfg.MaxPages)

	opts = append(opts, pipeline.WithPipelineSummaryOutput(out))
	p := pipeline.DefaultPipeline(cfg, []pipeline.Option{pipeline.WithLogger(logger)}, opts...)

	session := model.NewSession(cfg.StartURL, cfg.MaxPages)
	if err := p.Execute(ctx, session); err != nil {
		if errors.Is(err, crawler.ErrStartURLUnreachable) {
			return fmt.Errorf("no policy written: %w", err)
		}
		return err
	}

	return nil
}

// buildConfig creates a Config from defaults, the configuration file and
// the command line, in that order. Only flags set explicitly override the
// file.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		file.Apply(cfg)
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if cfg.StartURL, err = flags.GetString("url"); err != nil {
		return nil, err
	}
	if cfg.OutputDir, err = flags.GetString("output-dir"); err != nil {
		return nil, err
	}
	if flags.Changed("max-pages") {
		if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("max-depth") {
		if cfg.MaxDepth, err = flags.GetInt("max-depth"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("delay") {
		if cfg.CrawlDelay, err = flags.GetDuration("delay"); err != nil {
			return nil, err
		}
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.SaveToDB, err = flags.GetBool("save"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	return cfg, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// newLogger creates the secure logger writing to the command's stderr.
func newLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	jsonLog, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		jsonLog, _ = cmd.Root().PersistentFlags().GetBool("log-json") //nolint:errcheck // defined on root
	}
	if jsonLog {
		return log.NewSecureJSONLogger(cmd.ErrOrStderr(), verbose)
	}
	return log.NewSecureLogger(cmd.ErrOrStderr(), verbose)
}
