package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"social_automation/application/jobs"
	"social_automation/application/runner"
	"social_automation/domain/interfaces"
	"social_automation/infrastructure/browser"
	"social_automation/infrastructure/catalog"
	"social_automation/infrastructure/config"
	"social_automation/infrastructure/logging"
	"social_automation/infrastructure/metrics"
	"social_automation/infrastructure/security"
	"social_automation/infrastructure/storage"
	"social_automation/infrastructure/telemetry"

	"github.com/sirupsen/logrus"
)

// callback delivery policy for finished jobs
const (
	callbackTimeout = 10 * time.Second
	callbackRetries = 3
)

// App is the wired dependency graph shared by the bridge and run commands
type App struct {
	Config      *config.Config
	Logger      *logrus.Logger
	Catalog     *catalog.Catalog
	Credentials *storage.FileCredentialStore
	Browsers    *browser.Controller
	Metrics     *metrics.Metrics
	Runner      *runner.Runner

	driver interfaces.Driver
	tracer *telemetry.TracerProvider
}

// loadConfig - .env then environment
func loadConfig() (*config.Config, *logrus.Logger, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.Logging.Level, cfg.Logging.Format), nil
}

// NewApp - builds every long-lived component from cfg
func NewApp(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	cat, err := catalog.Load(cfg.Storage.CatalogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	app.Catalog = cat

	app.Credentials, err = storage.NewFileCredentialStore(cfg.Storage.CredentialsFile, logger)
	if err != nil {
		return nil, err
	}
	profiles, err := storage.NewProfileStore(cfg.Storage.BrowserDataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare browser profiles: %w", err)
	}

	switch cfg.Browser.Driver {
	case "selenium":
		drv, err := browser.NewSeleniumDriver(logger, cfg.Browser.DriverPath, cfg.Browser.ChromeBinaryPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize browser: %w", err)
		}
		app.driver = drv
	default:
		app.driver = browser.NewPlaywrightDriver(logger, cfg.Browser.ChromeBinaryPath)
	}

	controllerOpts := []browser.ControllerOption{browser.WithRecorder(app.Metrics)}
	if headless, ok, _ := cfg.HeadlessOverride(); ok {
		controllerOpts = append(controllerOpts, browser.WithHeadlessOverride(headless))
	}
	app.Browsers = browser.NewController(app.driver, profiles, logger, controllerOpts...)

	if cfg.Tracing.Enabled {
		app.tracer, err = telemetry.NewTracerProvider("social_automation", os.Stderr)
		if err != nil {
			return nil, err
		}
	}

	runnerOpts := []runner.Option{
		runner.WithRetry(cfg.Runner.MaxAttempts, cfg.Runner.RetryDelay),
		runner.WithRecorder(app.Metrics),
	}
	if cfg.Runner.TimeoutOverride > 0 {
		runnerOpts = append(runnerOpts, runner.WithTimeoutOverride(cfg.Runner.TimeoutOverride))
	}
	app.Runner = runner.New(cat, app.Credentials, app.Browsers,
		security.NewValidator(cat, logger), logger, runnerOpts...)

	return app, nil
}

// Queue - job queue over the runner
func (a *App) Queue() *jobs.Queue {
	return jobs.NewQueue(a.Runner, a.Logger,
		jobs.WithWorkers(a.Config.Jobs.Workers),
		jobs.WithQueueSize(a.Config.Jobs.QueueSize),
		jobs.WithNotifier(jobs.NewHTTPNotifier(callbackTimeout, callbackRetries)),
		jobs.WithDepthGauge(a.Metrics.QueueDepth),
	)
}

// WatchCredentials - keeps the credential cache fresh until ctx is done
func (a *App) WatchCredentials(ctx context.Context) {
	if !a.Config.Storage.WatchCredentials {
		return
	}
	go func() {
		if err := a.Credentials.Watch(ctx); err != nil {
			a.Logger.Warnf("Credential watcher stopped: %v", err)
		}
	}()
}

// Close - flushes spans and stops the browser runtime
func (a *App) Close(ctx context.Context) {
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.Logger.Warnf("Failed to flush traces: %v", err)
	}
	if stopper, ok := a.driver.(interface{ Stop() error }); ok {
		if err := stopper.Stop(); err != nil {
			a.Logger.Warnf("Failed to stop browser runtime: %v", err)
		}
	}
}
