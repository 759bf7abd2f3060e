package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mongoinit/internal/initializer"
	"mongoinit/pkg/config"
	"mongoinit/pkg/logger"
	"mongoinit/pkg/metrics"
	"mongoinit/pkg/mongodb"
	"mongoinit/pkg/report"
	"mongoinit/pkg/schema"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func profileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "profile",
		Usage: fmt.Sprintf("plan profile, one of %v (default from config, %q)", schema.Profiles(), schema.ProfileScript),
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "mongoinit",
		Usage: "create the application's MongoDB collections, indexes and database user",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a config file (yaml, json or toml)",
				EnvVars: []string{"MONGOINIT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file to load before reading the environment",
				Value: ".env",
			},
		},
		Before: func(c *cli.Context) error {
			return loadEnvFile(c.String("env-file"), c.IsSet("env-file"))
		},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "initialize the database",
				Flags:  []cli.Flag{profileFlag()},
				Action: runInit,
			},
			{
				Name:   "verify",
				Usage:  "check that every planned collection and index exists",
				Flags:  []cli.Flag{profileFlag()},
				Action: runVerify,
			},
			{
				Name:  "plan",
				Usage: "print what init would apply, without connecting",
				Flags: []cli.Flag{
					profileFlag(),
					&cli.StringFlag{
						Name:  "database",
						Usage: "override mongodb.database",
					},
				},
				Action: runPlan,
			},
			{
				Name:   "status",
				Usage:  "print the report of the last init run",
				Action: runStatus,
			},
		},
	}
}

// loadEnvFile loads a dotenv file. A missing default file is fine; a missing
// file the operator asked for is not.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// session bundles what every database-touching command sets up.
type session struct {
	cfg    *config.AppConfig
	logger *logger.Logger
	client *mongo.Client
	plan   schema.Plan
}

// loadConfig reads the config file and environment, then applies the
// command's --profile and --database flags. Offline commands do not need
// mongodb.uri.
func loadConfig(c *cli.Context, offline bool) (*config.AppConfig, error) {
	load, validate := config.Load, (*config.AppConfig).Validate
	if offline {
		load, validate = config.LoadOffline, (*config.AppConfig).ValidateOffline
	}

	cfg, err := load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	overridden := false
	if c.IsSet("profile") {
		cfg.Profile = c.String("profile")
		overridden = true
	}
	if c.IsSet("database") {
		cfg.MongoDB.Database = c.String("database")
		overridden = true
	}
	if overridden {
		if err := validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// buildPlan resolves the configured profile into the plan to apply.
func buildPlan(cfg *config.AppConfig) (schema.Plan, error) {
	plan, err := schema.PlanFor(cfg.Profile, cfg.MongoDB.Database)
	if err != nil {
		return schema.Plan{}, err
	}
	return plan.WithUser(cfg.AppUser.Username, cfg.AppUser.Password, cfg.AppUser.Role), nil
}

func openSession(ctx context.Context, c *cli.Context) (*session, error) {
	// 1. Load config
	cfg, err := loadConfig(c, false)
	if err != nil {
		return nil, err
	}
	plan, err := buildPlan(cfg)
	if err != nil {
		return nil, err
	}

	// 2. Initialize logger
	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	// 3. Connect to MongoDB
	l.Info("connecting to mongodb",
		zap.String("database", cfg.MongoDB.Database),
		zap.String("profile", cfg.Profile),
	)
	client, err := mongodb.Connect(ctx, mongodb.ConnectConfig{
		URI:      cfg.MongoDB.URI,
		AppName:  cfg.ServiceName,
		Timeout:  cfg.MongoDB.ConnectTimeout,
		Attempts: cfg.MongoDB.ConnectAttempts,
	}, l)
	if err != nil {
		l.Error("failed to connect to mongodb", err)
		l.Sync()
		return nil, err
	}

	return &session{cfg: cfg, logger: l, client: client, plan: plan}, nil
}

func (s *session) close() {
	if err := s.client.Disconnect(context.Background()); err != nil {
		s.logger.Warn("failed to disconnect from mongodb", zap.Error(err))
	}
	s.logger.Sync()
}

func (s *session) service() *initializer.Service {
	return initializer.NewService(s.logger, mongodb.NewStore(s.client.Database(s.plan.Database)), s.plan)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func runInit(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	s, err := openSession(ctx, c)
	if err != nil {
		return err
	}
	defer s.close()

	runCtx, cancelRun := context.WithTimeout(ctx, s.cfg.MongoDB.OperationTimeout)
	defer cancelRun()

	rep, runErr := s.service().Run(runCtx)

	// Bookkeeping uses a fresh context so a timed-out run still leaves a report.
	bgCtx, cancelBg := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelBg()
	saveReport(bgCtx, s.cfg, s.logger, rep)
	pushMetrics(bgCtx, s.cfg, s.logger, rep)

	if runErr != nil {
		s.logger.Error("initialization failed", runErr)
		return runErr
	}
	return nil
}

func runVerify(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	s, err := openSession(ctx, c)
	if err != nil {
		return err
	}
	defer s.close()

	verifyCtx, cancelVerify := context.WithTimeout(ctx, s.cfg.MongoDB.OperationTimeout)
	defer cancelVerify()

	res, err := s.service().Verify(verifyCtx)
	if err != nil {
		return err
	}
	if !res.OK() {
		return cli.Exit(fmt.Sprintf("database %s is missing %d collection(s) and %d index(es)",
			res.Database, len(res.MissingCollections), len(res.MissingIndexes)), 1)
	}
	return nil
}

func runPlan(c *cli.Context) error {
	cfg, err := loadConfig(c, true)
	if err != nil {
		return err
	}
	plan, err := buildPlan(cfg)
	if err != nil {
		return err
	}
	return printPlan(c.App.Writer, plan)
}

func runStatus(c *cli.Context) error {
	cfg, err := loadConfig(c, true)
	if err != nil {
		return err
	}
	store, closeStore, err := newReportStore(cfg.Report)
	if err != nil {
		return err
	}
	defer closeStore()

	rep, err := store.Load(c.Context, cfg.MongoDB.Database)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	if rep == nil {
		fmt.Fprintf(c.App.Writer, "no report recorded for database %s\n", cfg.MongoDB.Database)
		return nil
	}
	return writeJSON(c.App.Writer, rep)
}

func printPlan(w io.Writer, plan schema.Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	return writeJSON(w, plan)
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newReportStore(cfg config.ReportConfig) (report.Store, func() error, error) {
	switch cfg.Backend {
	case config.ReportBackendFile:
		return report.NewFileStore(cfg.Path), func() error { return nil }, nil
	case config.ReportBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return report.NewRedisStore(client, cfg.RedisKey), client.Close, nil
	case config.ReportBackendNone, "":
		return report.NopStore{}, func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown report backend %q", cfg.Backend)
}

func saveReport(ctx context.Context, cfg *config.AppConfig, l *logger.Logger, rep *report.RunReport) {
	store, closeStore, err := newReportStore(cfg.Report)
	if err != nil {
		l.Warn("report not saved", zap.Error(err))
		return
	}
	defer closeStore()

	if err := store.Save(ctx, rep); err != nil {
		l.Warn("report not saved", zap.String("backend", cfg.Report.Backend), zap.Error(err))
		return
	}
	l.Debug("report saved", zap.String("backend", cfg.Report.Backend))
}

func pushMetrics(ctx context.Context, cfg *config.AppConfig, l *logger.Logger, rep *report.RunReport) {
	if cfg.Metrics.PushgatewayURL == "" {
		return
	}
	m := metrics.New()
	m.Observe(rep)
	if err := m.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.ServiceName, rep.Database); err != nil {
		l.Warn("metrics not pushed", zap.Error(err))
	}
}
