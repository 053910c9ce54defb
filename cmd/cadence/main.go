package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/server"
	"github.com/cadencehq/cadence/internal/service"
	"github.com/cadencehq/cadence/internal/service/content"
	"github.com/cadencehq/cadence/internal/service/linkedin"
	"github.com/cadencehq/cadence/pkg/logger"
)

var (
	configPath string
	version    = "0.1.0"
	gitCommit  = "unknown"
	buildTime  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Cadence - Scheduled social posting automation",
	Long: `Cadence turns external triggers into at-most-one social posting action
per schedule slot, with AI-generated content, persisted budgets, and a
full activity ledger.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate the schedule once and post if a slot is due",
	RunE:  runOnce,
}

var articleCmd = &cobra.Command{
	Use:   "article [topic]",
	Short: "Generate and publish one long-form article",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runArticle,
}

var engageCmd = &cobra.Command{
	Use:   "engage",
	Short: "Run one engagement cycle over recent network posts",
	RunE:  runEngage,
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Send connection requests to configured prospects",
	RunE:  runConnect,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check configuration and API credentials without posting",
	RunE:  runValidate,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the weekly activity report",
	RunE:  runReport,
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run continuously, triggering schedule slots on an internal cron",
	RunE:  runAgent,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Cadence %s\n", version)
		fmt.Printf("Git commit: %s\n", gitCommit)
		fmt.Printf("Build time: %s\n", buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/cadence.yaml", "config file path")
	rootCmd.AddCommand(runCmd, articleCmd, engageCmd, connectCmd, validateCmd, reportCmd, agentCmd, serveCmd, versionCmd)
}

// app bundles everything the one-shot commands need.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	driver     *service.ScheduleDriver
	engagement *service.EngagementWorker
	network    *service.NetworkWorker
	analytics  *service.Analytics
	schedule   *service.Schedule
	social     *linkedin.Client
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	schedule, err := service.ParseSchedule(cfg.Schedule.Entries)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule: %w", err)
	}

	ledger := service.NewLedgerStore(db, appLogger, cfg.Schedule.ClaimTTLDuration())
	limiter := service.NewRateLimitStore(db, &cfg.Limits)
	posts := service.NewPostStore(db)
	analytics := service.NewAnalytics(db, appLogger)
	generator := content.NewClient(&cfg.Gemini, &cfg.Content, appLogger)
	social := linkedin.NewClient(&cfg.LinkedIn, appLogger)

	return &app{
		cfg:        cfg,
		logger:     appLogger,
		driver:     service.NewScheduleDriver(cfg, schedule, appLogger, ledger, limiter, posts, generator, social, analytics),
		engagement: service.NewEngagementWorker(&cfg.Engagement, appLogger, ledger, limiter, generator, social),
		network:    service.NewNetworkWorker(&cfg.Network, appLogger, ledger, limiter, generator, social),
		analytics:  analytics,
		schedule:   schedule,
		social:     social,
	}, nil
}

func runOnce(*cobra.Command, []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	outcome, err := a.driver.Run(context.Background(), time.Now())
	if err != nil {
		return fmt.Errorf("run failed (%s): %w", outcome.ErrorKind, err)
	}

	a.logger.Info("Run completed",
		zap.String("result", string(outcome.Result)),
		zap.String("slot", outcome.SlotKey),
		zap.String("post_id", outcome.ExternalPostID))
	return nil
}

func runArticle(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	topic := ""
	if len(args) > 0 {
		topic = args[0]
	}

	outcome, err := a.driver.PublishArticle(context.Background(), time.Now(), topic)
	if err != nil {
		return fmt.Errorf("article run failed (%s): %w", outcome.ErrorKind, err)
	}

	a.logger.Info("Article run completed",
		zap.String("result", string(outcome.Result)),
		zap.String("topic", outcome.Topic),
		zap.String("post_id", outcome.ExternalPostID))
	return nil
}

func runEngage(*cobra.Command, []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	outcomes, err := a.engagement.Cycle(context.Background(), time.Now())
	if err != nil {
		return fmt.Errorf("engagement cycle failed: %w", err)
	}

	a.logger.Info("Engagement cycle completed", zap.Int("actions", len(outcomes)))
	return nil
}

func runConnect(*cobra.Command, []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	outcomes, err := a.network.RunBatch(context.Background(), time.Now())
	if err != nil {
		return fmt.Errorf("connection batch failed: %w", err)
	}

	a.logger.Info("Connection batch completed", zap.Int("actions", len(outcomes)))
	return nil
}

func runValidate(*cobra.Command, []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}

	profile, err := a.social.ValidateToken(context.Background())
	if err != nil {
		return fmt.Errorf("token validation failed: %w", err)
	}

	fmt.Printf("Config OK, %d schedule slots\n", len(a.schedule.Entries()))
	fmt.Printf("Authenticated as %s <%s>\n", profile.Name, profile.Email)
	return nil
}

func runReport(*cobra.Command, []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	report, err := a.analytics.WeeklyReport(time.Now())
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	fmt.Print(service.FormatReport(report))
	return nil
}

func runAgent(*cobra.Command, []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agent := service.NewAgent(a.cfg, a.logger, a.driver, a.engagement, a.network)
	if err := agent.Start(ctx, a.schedule); err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	a.logger.Info("Shutting down agent...")
	agent.Stop()
	return nil
}

func runServe(*cobra.Command, []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Cadence server", zap.String("version", version))

	srv, err := server.NewServer(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := srv.Start(ctx); err != nil {
			appLogger.Error("Server failed to start", zap.Error(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down server...")
	case <-ctx.Done():
		appLogger.Info("Server context cancelled")
	}

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	appLogger.Info("Server exited")
	return nil
}

func main() {
	// Local .env files override nothing already in the environment
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
