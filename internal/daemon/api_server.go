package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"autopublish/internal/logging"
	"autopublish/internal/queue"
)

const defaultListLimit = 100

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind, apiKey string, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.router(apiKey),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) router(apiKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLog())

	r.GET("/api/health", s.handleHealth)
	api := r.Group("/api")
	api.Use(authMiddleware(apiKey))
	{
		api.GET("/status", s.handleStatus)
		api.GET("/candidates", s.handleCandidates)
		api.GET("/decisions", s.handleDecisions)
		api.POST("/cycle", s.handleCycle)
	}
	return r
}

func (s *apiServer) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("api request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("latency", time.Since(start)),
		)
	}
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(c *gin.Context) {
	health, err := s.daemon.store.CheckHealth(c.Request.Context())
	code := http.StatusOK
	state := "ok"
	if err != nil || !health.IntegrityCheck {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}
	body := gin.H{
		"status":    state,
		"running":   s.daemon.running.Load(),
		"database":  health,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(code, body)
}

func (s *apiServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.daemon.Status(c.Request.Context()))
}

func (s *apiServer) handleCandidates(c *gin.Context) {
	filter := queue.CandidateFilter{Limit: queryLimit(c)}
	for _, value := range c.QueryArray("status") {
		status, ok := queue.ParseStatus(value)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status %q", value)})
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if value := c.Query("needs_review"); value != "" {
		flag, err := strconv.ParseBool(value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "needs_review must be a boolean"})
			return
		}
		filter.NeedsReview = &flag
	}
	items, err := s.daemon.store.ListCandidates(c.Request.Context(), filter)
	if err != nil {
		s.internalError(c, "list candidates", err)
		return
	}
	views := make([]CandidateView, 0, len(items))
	for _, item := range items {
		views = append(views, NewCandidateView(item))
	}
	c.JSON(http.StatusOK, gin.H{"candidates": views})
}

func (s *apiServer) handleDecisions(c *gin.Context) {
	filter := queue.DecisionFilter{
		CycleID: strings.TrimSpace(c.Query("cycle")),
		Limit:   queryLimit(c),
	}
	if value := c.Query("candidate"); value != "" {
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "candidate must be a positive integer"})
			return
		}
		filter.CandidateID = id
	}
	for _, value := range c.QueryArray("decision") {
		decision, ok := queue.ParseDecision(value)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown decision %q", value)})
			return
		}
		filter.Decisions = append(filter.Decisions, decision)
	}
	records, err := s.daemon.store.ListDecisions(c.Request.Context(), filter)
	if err != nil {
		s.internalError(c, "list decisions", err)
		return
	}
	if records == nil {
		records = []queue.DecisionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"decisions": records})
}

func (s *apiServer) handleCycle(c *gin.Context) {
	summary := s.daemon.RunCycle(c.Request.Context())
	c.JSON(http.StatusOK, summary)
}

func (s *apiServer) internalError(c *gin.Context, op string, err error) {
	logging.ErrorWithContext(s.logger, "api query failed", "api_query_failed",
		logging.String("operation", op),
		logging.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return limit
}
