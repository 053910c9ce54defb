package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/service"
	"github.com/cadencehq/cadence/internal/service/content"
	"github.com/cadencehq/cadence/internal/service/linkedin"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Driver     *service.ScheduleDriver
	Engagement *service.EngagementWorker
	Network    *service.NetworkWorker
	Ledger     *service.LedgerStore
	Analytics  *service.Analytics
	Auth       *service.AuthService
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	schedule, err := service.ParseSchedule(cfg.Schedule.Entries)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule: %w", err)
	}

	// Initialize services
	ledger := service.NewLedgerStore(db, logger, cfg.Schedule.ClaimTTLDuration())
	limiter := service.NewRateLimitStore(db, &cfg.Limits)
	posts := service.NewPostStore(db)
	analytics := service.NewAnalytics(db, logger)
	generator := content.NewClient(&cfg.Gemini, &cfg.Content, logger)
	social := linkedin.NewClient(&cfg.LinkedIn, logger)

	driver := service.NewScheduleDriver(cfg, schedule, logger, ledger, limiter, posts, generator, social, analytics)
	engagement := service.NewEngagementWorker(&cfg.Engagement, logger, ledger, limiter, generator, social)
	network := service.NewNetworkWorker(&cfg.Network, logger, ledger, limiter, generator, social)

	// Create router
	router := gin.New()

	srv := &Server{
		Config:     cfg,
		DB:         db,
		Router:     router,
		Logger:     logger,
		Driver:     driver,
		Engagement: engagement,
		Network:    network,
		Ledger:     ledger,
		Analytics:  analytics,
		Auth:       service.NewAuthService(logger, cfg.Server.TOTPSecret),
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// Prometheus metrics
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := s.Router.Group("/api/v1")
	api.Use(s.Auth.AuthMiddleware())
	{
		trigger := api.Group("/trigger")
		{
			trigger.POST("/post", s.handleTriggerPost)
			trigger.POST("/article", s.handleTriggerArticle)
			trigger.POST("/engage", s.handleTriggerEngage)
			trigger.POST("/connect", s.handleTriggerConnect)
		}
		api.GET("/activity", s.handleGetActivity)
		api.GET("/report", s.handleGetReport)
	}
}

func (s *Server) handleTriggerPost(c *gin.Context) {
	start := time.Now()
	outcome, err := s.Driver.Run(c.Request.Context(), time.Now())
	triggerDuration.WithLabelValues("post").Observe(time.Since(start).Seconds())
	actionsTotal.WithLabelValues("post", string(outcome.Result)).Inc()

	if err != nil {
		s.Logger.Error("Triggered post run failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"outcome": outcome, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (s *Server) handleTriggerArticle(c *gin.Context) {
	var body struct {
		Topic string `json:"topic"`
	}
	// An empty body means "pick a topic for me"
	_ = c.ShouldBindJSON(&body)

	start := time.Now()
	outcome, err := s.Driver.PublishArticle(c.Request.Context(), time.Now(), body.Topic)
	triggerDuration.WithLabelValues("article").Observe(time.Since(start).Seconds())
	actionsTotal.WithLabelValues("article", string(outcome.Result)).Inc()

	if err != nil {
		s.Logger.Error("Triggered article run failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"outcome": outcome, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (s *Server) handleTriggerEngage(c *gin.Context) {
	start := time.Now()
	outcomes, err := s.Engagement.Cycle(c.Request.Context(), time.Now())
	triggerDuration.WithLabelValues("engagement").Observe(time.Since(start).Seconds())
	for _, o := range outcomes {
		actionsTotal.WithLabelValues("engagement", string(o.Result)).Inc()
	}

	if err != nil {
		s.Logger.Error("Triggered engagement cycle failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"outcomes": outcomes, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

func (s *Server) handleTriggerConnect(c *gin.Context) {
	start := time.Now()
	outcomes, err := s.Network.RunBatch(c.Request.Context(), time.Now())
	triggerDuration.WithLabelValues("connection").Observe(time.Since(start).Seconds())
	for _, o := range outcomes {
		actionsTotal.WithLabelValues("connection", string(o.Result)).Inc()
	}

	if err != nil {
		s.Logger.Error("Triggered connection batch failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"outcomes": outcomes, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

func (s *Server) handleGetActivity(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := s.Ledger.RecentEntries(limit)
	if err != nil {
		s.Logger.Error("Failed to load activity", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load activity"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleGetReport(c *gin.Context) {
	report, err := s.Analytics.WeeklyReport(time.Now())
	if err != nil {
		s.Logger.Error("Failed to build report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build report"})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
