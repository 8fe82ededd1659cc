package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-conferencia/internal/accesskey"
	"github.com/rezonia/nfe-conferencia/internal/auth"
	"github.com/rezonia/nfe-conferencia/internal/meudanfe"
	"github.com/rezonia/nfe-conferencia/internal/model"
	"github.com/rezonia/nfe-conferencia/internal/processor"
	"github.com/rezonia/nfe-conferencia/internal/report"
	"github.com/rezonia/nfe-conferencia/internal/store"
)

// Headers identifying the operator when login is disabled
const (
	HeaderOperator = "X-Operador"
	HeaderPolo     = "X-Polo"
)

const (
	lookupTimeout = 45 * time.Second
	storeTimeout  = 30 * time.Second
	maxUpload     = 10 << 20
)

// Config holds server configuration
type Config struct {
	Address      string
	Provider     meudanfe.Config
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Debug        bool
}

// Pinger tests provider connectivity
type Pinger interface {
	Ping(ctx context.Context, cfg meudanfe.Config) (meudanfe.TraceEntry, error)
}

// Server represents the HTTP API server
type Server struct {
	config   *Config
	router   *gin.Engine
	pipeline *processor.Pipeline
	auth     *auth.Service
	pinger   Pinger
	logger   *zap.Logger
}

// Option configures the server
type Option func(*Server)

// WithPipeline sets the conference pipeline
func WithPipeline(p *processor.Pipeline) Option {
	return func(s *Server) {
		s.pipeline = p
	}
}

// WithAuth enables login and token-protected routes
func WithAuth(a *auth.Service) Option {
	return func(s *Server) {
		s.auth = a
	}
}

// WithPinger sets the provider connectivity checker
func WithPinger(p Pinger) Option {
	return func(s *Server) {
		s.pinger = p
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a new API server
func NewServer(config *Config, opts ...Option) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if config.Debug {
		router.Use(gin.Logger())
	}

	s := &Server{
		config: config,
		router: router,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pipeline == nil {
		s.pipeline = processor.NewPipeline(
			processor.WithStore(store.NewMemory()),
			processor.WithLogger(s.logger),
		)
	}
	if s.pinger == nil {
		s.pinger = meudanfe.NewClient(meudanfe.WithLogger(s.logger))
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/login", s.handleLogin)
		v1.GET("/keys/:key", s.handleDecodeKey)

		protected := v1.Group("/")
		protected.Use(s.sessionMiddleware())
		{
			protected.POST("/lookup", s.handleLookup)
			protected.GET("/provider/ping", s.handlePing)
			protected.POST("/parse", s.handleParse)

			protected.GET("/conferences", s.handleHistory)
			protected.POST("/conferences", s.handleSave)

			protected.GET("/reports/export", s.handleExport)
			protected.GET("/reports/template", s.handleTemplate)
		}
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return srv.ListenAndServe()
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// sessionMiddleware requires a token when login is enabled, otherwise the operator headers
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	if s.auth != nil {
		return auth.Middleware(s.auth)
	}
	return func(c *gin.Context) {
		sess := model.Session{
			Operator: strings.TrimSpace(c.GetHeader(HeaderOperator)),
			Polo:     strings.TrimSpace(c.GetHeader(HeaderPolo)),
		}
		if sess.Operator == "" || sess.Polo == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
				Error: "missing " + HeaderOperator + " or " + HeaderPolo + " header",
			})
			return
		}
		c.Set("session", sess)
		c.Next()
	}
}

func (s *Server) session(c *gin.Context) model.Session {
	if sess, ok := auth.SessionFrom(c); ok {
		return sess
	}
	v, _ := c.Get("session")
	sess, _ := v.(model.Session)
	return sess
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	if s.auth == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "login is disabled"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	token, sess, err := s.auth.Login(c.Request.Context(), req.Username, req.Password, req.Polo)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrPoloNotAllowed):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		s.logger.Error("login failed", zap.String("user", req.Username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "login failed"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token, Session: sess})
}

func (s *Server) handleDecodeKey(c *gin.Context) {
	key := accesskey.Clean(c.Param("key"))
	parsed, err := accesskey.Parse(key)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, KeyResponse{Key: parsed, Header: accesskey.Decode(key)})
}

func (s *Server) handleLookup(c *gin.Context) {
	var req LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), lookupTimeout)
	defer cancel()

	res := s.pipeline.Query(ctx, s.session(c), s.config.Provider, req.Key)

	var keyErr *model.KeyError
	switch {
	case errors.As(res.Error, &keyErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: res.Error.Error()})
	case res.Error != nil:
		c.JSON(http.StatusBadGateway, newLookupResponse(res))
	default:
		c.JSON(http.StatusOK, newLookupResponse(res))
	}
}

func (s *Server) handlePing(c *gin.Context) {
	entry, err := s.pinger.Ping(c.Request.Context(), s.config.Provider)
	if err != nil {
		c.JSON(http.StatusBadGateway, PingResponse{Trace: entry, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, PingResponse{Reachable: true, Trace: entry})
}

func (s *Server) handleParse(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return
	}

	if len(bytes.TrimSpace(body)) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body"})
		return
	}
	if len(body) > maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "document too large"})
		return
	}

	res := s.pipeline.ParseDocument(c.Request.Context(), body)
	if res.Error != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:    res.Error.Error(),
			Warnings: res.Warnings,
		})
		return
	}

	c.JSON(http.StatusOK, newLookupResponse(res))
}

func (s *Server) handleSave(c *gin.Context) {
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}
	conf, err := req.conference()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid date: expected dd/mm/yyyy", Details: err.Error()})
		return
	}

	sess := s.session(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), lookupTimeout+storeTimeout)
	defer cancel()

	res := s.pipeline.Query(ctx, sess, s.config.Provider, req.Key)
	var keyErr *model.KeyError
	if errors.As(res.Error, &keyErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: res.Error.Error()})
		return
	}

	rows, err := s.pipeline.Save(ctx, sess, res, conf)
	switch {
	case errors.Is(err, processor.ErrLookupFailed):
		s.logger.Warn("save refused, lookup failed", zap.String("key", req.Key), zap.Error(res.Error))
		resp := newLookupResponse(res)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error(), Details: resp.ErrorKind, Warnings: res.Warnings})
		return
	case errors.Is(err, processor.ErrUnknownOperation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Details: strings.Join(model.Operations, ", ")})
		return
	case err != nil:
		s.logger.Error("save failed", zap.String("key", req.Key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to save conference", Details: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, SaveResponse{ConferenceID: rows[0].ConferenceID, Rows: rows})
}

func (s *Server) bindFilter(c *gin.Context) (report.Filter, bool) {
	var filter report.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid filter", Details: err.Error()})
		return filter, false
	}
	if err := filter.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return filter, false
	}
	return filter, true
}

func (s *Server) handleHistory(c *gin.Context) {
	filter, ok := s.bindFilter(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	h, err := s.pipeline.History(ctx, s.session(c).Polo, filter)
	if err != nil {
		s.logger.Error("history failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load history", Details: err.Error()})
		return
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) handleExport(c *gin.Context) {
	filter, ok := s.bindFilter(c)
	if !ok {
		return
	}
	enc, err := report.ParseEncoding(c.Query("encoding"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	polo := s.session(c).Polo
	h, err := s.pipeline.History(ctx, polo, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load history", Details: err.Error()})
		return
	}

	var buf bytes.Buffer
	switch c.DefaultQuery("format", "xlsx") {
	case "csv":
		err = report.WriteCSV(&buf, h.Rows, enc)
		s.attachment(c, report.FileName(polo, "csv"), report.ContentTypeCSV+"; charset="+string(enc), buf.Bytes(), err)
	case "xlsx":
		err = report.WriteXLSX(&buf, h.Rows)
		s.attachment(c, report.FileName(polo, "xlsx"), report.ContentTypeXLSX, buf.Bytes(), err)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "format must be csv or xlsx"})
	}
}

func (s *Server) handleTemplate(c *gin.Context) {
	var buf bytes.Buffer
	err := report.WriteTemplate(&buf)
	s.attachment(c, "template_conferencias_"+s.session(c).Polo+".xlsx", report.ContentTypeXLSX, buf.Bytes(), err)
}

func (s *Server) attachment(c *gin.Context, name, contentType string, data []byte, err error) {
	if err != nil {
		s.logger.Error("export failed", zap.String("file", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to build file", Details: err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, contentType, data)
}
