// Package server exposes the chat pipeline and operational endpoints over
// HTTP. It is a thin adapter: all behavior lives in the packages it calls.
package server

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dbsmedya/logops/internal/apperr"
	"github.com/dbsmedya/logops/internal/chat"
	"github.com/dbsmedya/logops/internal/config"
	"github.com/dbsmedya/logops/internal/joblog"
	"github.com/dbsmedya/logops/internal/logger"
	"github.com/dbsmedya/logops/internal/region"
)

// Server wires the HTTP routes.
type Server struct {
	cfg     config.ServerConfig
	orch    *chat.Orchestrator
	regions *region.Manager
	jobs    *joblog.Service
	log     *logger.Logger
	engine  *gin.Engine
}

// New creates the server and registers its routes.
func New(cfg config.ServerConfig, orch *chat.Orchestrator, regions *region.Manager,
	jobs *joblog.Service, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault()
	}

	gin.SetMode(cfg.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:     cfg,
		orch:    orch,
		regions: regions,
		jobs:    jobs,
		log:     log,
		engine:  engine,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealthz)

	api := s.engine.Group("/api")
	{
		api.POST("/chat", s.handleChat)
		api.POST("/confirm", s.handleConfirm)
		api.GET("/regions", s.handleRegions)
		api.POST("/regions/:region/connect", s.handleRegionConnect)
		api.POST("/regions/:region/disconnect", s.handleRegionDisconnect)
		api.GET("/regions/:region/test", s.handleRegionTest)
		api.GET("/joblogs", s.handleJobLogs)
		api.GET("/joblogs/summary", s.handleJobLogSummary)
	}
}

// Handler exposes the router for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails.
func (s *Server) Run() error {
	addr := s.cfg.Addr()
	s.log.Infof("listening on %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"regions": s.regions.ConnectionStatus(c.Request.Context()),
	})
}

func (s *Server) handleChat(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.orch.Handle(c.Request.Context(), req))
}

// confirmRequest executes a previewed operation by token.
type confirmRequest struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role" binding:"required"`
	Token     string `json:"token" binding:"required"`
	Confirm   bool   `json:"confirm"`
}

func (s *Server) handleConfirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message := "CANCEL"
	token := ""
	if req.Confirm {
		// The orchestrator resolves the operation from the token.
		message = "CONFIRM"
		token = req.Token
	}
	resp := s.orch.Handle(c.Request.Context(), chat.Request{
		SessionID: req.SessionID,
		Role:      req.Role,
		Message:   message,
		Token:     token,
	})
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRegions(c *gin.Context) {
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"regions":   s.regions.AvailableRegions(ctx),
		"connected": s.regions.ConnectionStatus(ctx),
	})
}

func (s *Server) handleRegionConnect(c *gin.Context) {
	name := c.Param("region")
	if err := s.regions.Connect(c.Request.Context(), name); err != nil {
		s.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"region": name, "connected": true})
}

func (s *Server) handleRegionDisconnect(c *gin.Context) {
	name := c.Param("region")
	if err := s.regions.Disconnect(c.Request.Context(), name); err != nil {
		s.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"region": name, "connected": false})
}

func (s *Server) handleRegionTest(c *gin.Context) {
	name := c.Param("region")
	report, err := s.regions.TestConnection(c.Request.Context(), name)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"region": name, "report": report, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"region": name, "report": report})
}

func (s *Server) handleJobLogs(c *gin.Context) {
	db, f, err := s.jobLogQuery(c)
	if err != nil {
		s.jsonError(c, err)
		return
	}
	entries, err := s.jobs.Query(c.Request.Context(), db, f)
	if err != nil {
		s.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (s *Server) handleJobLogSummary(c *gin.Context) {
	db, f, err := s.jobLogQuery(c)
	if err != nil {
		s.jsonError(c, err)
		return
	}
	summary, err := s.jobs.Summarize(c.Request.Context(), db, f)
	if err != nil {
		s.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// jobLogQuery resolves the target region's database and the query filters
// from the request.
func (s *Server) jobLogQuery(c *gin.Context) (*sql.DB, joblog.Filters, error) {
	ctx := c.Request.Context()

	name := c.Query("region")
	if name == "" {
		name = s.regions.DefaultRegion(ctx)
	}
	db, err := s.regions.DB(name)
	if err != nil {
		if connErr := s.regions.Connect(ctx, name); connErr != nil {
			return nil, joblog.Filters{}, connErr
		}
		db, err = s.regions.DB(name)
		if err != nil {
			return nil, joblog.Filters{}, err
		}
	}

	f := joblog.Filters{
		DateRange:      c.Query("date_range"),
		ReasonContains: c.Query("reason_contains"),
	}
	if v := c.Query("status"); v != "" {
		f.Status = []string{v}
	}
	if v := c.Query("job_type"); v != "" {
		f.JobType = []string{v}
	}
	if v := c.Query("table"); v != "" {
		f.TableName = []string{v}
	}
	if v := c.Query("source"); v != "" {
		f.Source = []string{v}
	}
	f.FailedOnly = c.Query("failed_only") == "true"
	if c.Query("today_only") == "true" && f.DateRange == "" {
		f.DateRange = "today"
	}

	return db, f, nil
}

func (s *Server) jsonError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"error": err.Error(),
		"kind":  apperr.KindOf(err).String(),
	})
}

// statusFor maps error kinds onto HTTP statuses.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidRegion, apperr.KindValidation, apperr.KindParseFailure:
		return http.StatusBadRequest
	case apperr.KindPermissionDenied:
		return http.StatusForbidden
	case apperr.KindNotConnected, apperr.KindDBUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindSafetyRule, apperr.KindSQLSafety:
		return http.StatusUnprocessableEntity
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
