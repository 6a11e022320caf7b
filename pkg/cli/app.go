package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/config"
	"github.com/ekaya-inc/ekaya-quality/pkg/database"
	"github.com/ekaya-inc/ekaya-quality/pkg/llm"
	"github.com/ekaya-inc/ekaya-quality/pkg/logging"
	"github.com/ekaya-inc/ekaya-quality/pkg/metrics"
	"github.com/ekaya-inc/ekaya-quality/pkg/repositories"
	"github.com/ekaya-inc/ekaya-quality/pkg/services"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	version     string
	configPath  string
	metricsFile string
	logLevel    string
	output      string
}

// app holds the dependencies of one command invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	recorder *metrics.Recorder
	db       *database.DB

	catalogRepo      repositories.CatalogRepository
	profileRepo      repositories.ProfileRepository
	issueRepo        repositories.IssueRepository
	schemaChangeRepo repositories.SchemaChangeRepository
	lineageRepo      repositories.LineageRepository
}

func newApp(opts *globalOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath, opts.version)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.metricsFile != "" {
		cfg.Metrics.TextfilePath = opts.metricsFile
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	recorder, err := metrics.NewRecorder()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics recorder: %w", err)
	}

	return &app{
		cfg:              cfg,
		logger:           logger,
		recorder:         recorder,
		catalogRepo:      repositories.NewCatalogRepository(),
		profileRepo:      repositories.NewProfileRepository(),
		issueRepo:        repositories.NewIssueRepository(),
		schemaChangeRepo: repositories.NewSchemaChangeRepository(),
		lineageRepo:      repositories.NewLineageRepository(),
	}, nil
}

func (a *app) connect(ctx context.Context) error {
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            a.cfg.Database.URL(),
		MaxConnections: a.cfg.Database.MaxConnections,
	}, a.logger)
	if err != nil {
		return err
	}
	a.db = db
	a.logger.Debug("Connected to catalog database",
		zap.String("url", logging.SanitizeConnectionString(a.cfg.Database.URL())))
	return nil
}

// close writes the metrics textfile and releases the pool.
func (a *app) close() {
	if err := a.recorder.WriteToTextfile(a.cfg.Metrics.TextfilePath); err != nil {
		a.logger.Warn("Failed to write metrics textfile",
			zap.String("path", a.cfg.Metrics.TextfilePath),
			zap.Error(err))
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logger.Sync()
}

func (a *app) profilerOptions() services.ProfilerOptions {
	return services.ProfilerOptions{
		HistogramBins:  a.cfg.Analysis.HistogramBins,
		SampleValueCap: a.cfg.Analysis.SampleValueCap,
	}
}

func (a *app) catalogService() services.CatalogService {
	return services.NewCatalogService(a.catalogRepo, a.db, a.logger)
}

func (a *app) analyzerService() services.QualityAnalyzerService {
	return services.NewQualityAnalyzerService(a.catalogRepo, a.issueRepo, a.db, a.cfg.Analysis.DeduplicateIssues, a.logger)
}

func (a *app) lineageService() services.LineageTrackerService {
	return services.NewLineageTrackerService(a.catalogRepo, a.lineageRepo, a.logger)
}

func (a *app) scanService() services.ScanService {
	profiler := services.NewProfilerService(a.catalogRepo, a.profileRepo, a.db, a.profilerOptions(), a.logger)
	drift := services.NewDriftDetectorService(a.catalogRepo, a.profileRepo, a.issueRepo, a.schemaChangeRepo, a.db,
		a.cfg.Analysis.DriftThreshold, a.logger)
	return services.NewScanService(a.catalogService(), profiler, drift, a.analyzerService(), a.recorder, a.logger)
}

func (a *app) fixSuggestionService() (services.FixSuggestionService, error) {
	gen, err := llm.NewGenerator(a.cfg.LLM, a.logger)
	if err != nil {
		return nil, err
	}
	return services.NewFixSuggestionService(a.catalogRepo, a.issueRepo, gen, a.recorder, a.logger), nil
}

// runOffline runs fn with configuration, logging and metrics but no catalog
// connection.
func runOffline(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(cmd.Context(), a)
}

// runWithPool connects to the catalog and runs fn. fn must bind its own
// connection scopes; use it for commands that work concurrently.
func runWithPool(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, a *app) error) error {
	return runOffline(cmd, opts, func(ctx context.Context, a *app) error {
		if err := a.connect(ctx); err != nil {
			return err
		}
		return fn(ctx, a)
	})
}

// runWithCatalog connects to the catalog and runs fn with a connection
// scope bound to its context.
func runWithCatalog(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, a *app) error) error {
	return runWithPool(cmd, opts, func(ctx context.Context, a *app) error {
		scoped, release, err := a.db.WithScope(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire connection: %w", err)
		}
		defer release()
		return fn(scoped, a)
	})
}
