// Package server serves the live dashboard: the page itself plus a JSON API
// that drives render passes from the prediction backend.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Zachdehooge/traffic-dashboard/internal/fetcher"
	"github.com/Zachdehooge/traffic-dashboard/internal/generator"
	"github.com/Zachdehooge/traffic-dashboard/internal/logging"
	"github.com/Zachdehooge/traffic-dashboard/internal/observability"
	"github.com/Zachdehooge/traffic-dashboard/internal/visualizer"
	"github.com/Zachdehooge/traffic-dashboard/pkg/response"
	"github.com/gin-gonic/gin"
)

// Backend is the subset of the prediction client the server drives.
type Backend interface {
	Status(ctx context.Context) (*fetcher.Status, error)
	UploadModel(ctx context.Context, modelType, path string) (string, error)
	UploadCSV(ctx context.Context, path string) ([]fetcher.LocationRecord, error)
	SamplePredict(ctx context.Context) ([]fetcher.LocationRecord, error)
}

type Options struct {
	Page      generator.PageOptions
	Fit       visualizer.FitOptions
	Logger    logging.Logger
	Collector *observability.Collector
}

// Server owns one dashboard session. Render passes and marker events are
// serialized by mu.
type Server struct {
	backend   Backend
	log       logging.Logger
	collector *observability.Collector
	pageOpts  generator.PageOptions
	engine    *gin.Engine

	mu   sync.Mutex
	page *generator.Page
	vis  *visualizer.Visualizer
	plan visualizer.RenderPlan
}

// StatusView is the /api/status payload.
type StatusView struct {
	Status       string   `json:"status"`
	ModelsLoaded []string `json:"models_loaded"`
	Ready        bool     `json:"ready"`
}

// LocationView is the /api/locations/:id payload. Popup is only set for a
// hover event.
type LocationView struct {
	Detail     visualizer.DetailView `json:"detail"`
	DetailHTML string                `json:"detailHtml"`
	Popup      string                `json:"popup,omitempty"`
}

// StatsView is the /api/stats payload.
type StatsView struct {
	Stats   visualizer.Stats           `json:"stats"`
	Counts  []visualizer.CategoryCount `json:"counts"`
	Markers int                        `json:"markers"`
}

func New(backend Backend, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Noop()
	}
	if opts.Fit == (visualizer.FitOptions{}) {
		opts.Fit = visualizer.DefaultFitOptions()
	}
	opts.Page.Live = true

	s := &Server{
		backend:   backend,
		log:       opts.Logger,
		collector: opts.Collector,
		pageOpts:  opts.Page,
		page:      generator.NewPage(),
	}

	visOpts := []visualizer.Option{
		visualizer.WithFitOptions(opts.Fit),
		visualizer.WithDetailPanel(s.page),
	}
	if opts.Collector != nil {
		visOpts = append(visOpts, visualizer.WithRecorder(opts.Collector))
	}
	s.vis = visualizer.New(s.page, visOpts...)
	s.plan = s.vis.Plan()
	s.engine = s.routes()
	return s
}

// Handler returns the gin engine.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.log), CORS())

	r.GET("/health", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})
	if s.collector != nil {
		r.GET("/metrics", gin.WrapH(s.collector.Handler()))
	}
	r.GET("/", s.handlePage)

	api := r.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.POST("/sample", s.handleSample)
		api.POST("/upload-csv", s.handleUploadCSV)
		api.POST("/upload-model", s.handleUploadModel)
		api.GET("/plan", s.handlePlan)
		api.GET("/stats", s.handleStats)
		api.GET("/locations/:id", s.handleLocation)
		api.POST("/locations/:id/events", s.handleLocationEvent)
	}
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info(ctx, "dashboard server listening", logging.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info(shutdownCtx, "shutting down dashboard server")
	return srv.Shutdown(shutdownCtx)
}

// Render runs one render pass and returns the page payload for it.
func (s *Server) Render(records []fetcher.LocationRecord) generator.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plan = s.vis.Render(records)
	s.page.Prerender()
	return generator.NewPayload(s.page, s.plan.Stats)
}

func (s *Server) handlePage(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := generator.RenderDashboard(c.Writer, s.page, s.plan.Stats, s.pageOpts); err != nil {
		_ = c.Error(err)
		response.InternalError(c, "failed to render dashboard")
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	st, err := s.backend.Status(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	models := st.ModelsLoaded
	if models == nil {
		models = []string{}
	}
	response.Success(c, StatusView{Status: st.Status, ModelsLoaded: models, Ready: st.Ready()})
}

func (s *Server) handleSample(c *gin.Context) {
	records, err := s.backend.SamplePredict(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	response.Success(c, s.Render(records))
}

func (s *Server) handleUploadCSV(c *gin.Context) {
	path, cleanup, ok := s.saveUpload(c, "file", "Please select a CSV file")
	if !ok {
		return
	}
	defer cleanup()

	records, err := s.backend.UploadCSV(c.Request.Context(), path)
	if err != nil {
		s.fail(c, err)
		return
	}
	response.Success(c, s.Render(records))
}

func (s *Server) handleUploadModel(c *gin.Context) {
	modelType := c.PostForm("model_type")
	path, cleanup, ok := s.saveUpload(c, "model_file", "Please select a model file (.pkl)")
	if !ok {
		return
	}
	defer cleanup()

	msg, err := s.backend.UploadModel(c.Request.Context(), modelType, path)
	if err != nil {
		s.fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": msg})
}

func (s *Server) handlePlan(c *gin.Context) {
	s.mu.Lock()
	plan := s.plan
	s.mu.Unlock()
	response.Success(c, plan)
}

func (s *Server) handleStats(c *gin.Context) {
	s.mu.Lock()
	stats := s.vis.Stats()
	markers := len(s.plan.Markers)
	s.mu.Unlock()
	response.Success(c, StatsView{Stats: stats, Counts: stats.Counts(), Markers: markers})
}

// handleLocation returns the detail view of a marker without touching the
// page's popups or selection.
func (s *Server) handleLocation(c *gin.Context) {
	id, ok := locationID(c)
	if !ok {
		return
	}

	s.mu.Lock()
	view, err := s.vis.Inspect(id)
	s.mu.Unlock()
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.Success(c, LocationView{Detail: view, DetailHTML: generator.DetailHTML(view)})
}

// handleLocationEvent delivers a marker event (click unless ?event= says
// otherwise). Hover opens the popup and moves the selection, leave closes
// the popup, click moves the selection.
func (s *Server) handleLocationEvent(c *gin.Context) {
	id, ok := locationID(c)
	if !ok {
		return
	}
	ev := visualizer.EventClick
	if raw := c.Query("event"); raw != "" {
		var err error
		if ev, err = visualizer.ParseEvent(raw); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.vis.Dispatch(id, ev); err != nil {
		response.NotFound(c, err.Error())
		return
	}
	view, err := s.vis.Inspect(id)
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	out := LocationView{Detail: view, DetailHTML: generator.DetailHTML(view)}
	if ev == visualizer.EventHover {
		out.Popup, _ = s.page.Popup(id)
	}
	response.Success(c, out)
}

func locationID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "location id must be an integer")
		return 0, false
	}
	return id, true
}

// saveUpload stores the multipart file under its original base name in a
// fresh temp dir, so suffix checks see what the user picked.
func (s *Server) saveUpload(c *gin.Context, field, missing string) (string, func(), bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		response.BadRequest(c, missing)
		return "", nil, false
	}
	name := filepath.Base(fh.Filename)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		response.BadRequest(c, missing)
		return "", nil, false
	}
	dir, err := os.MkdirTemp("", "traffic-upload-")
	if err != nil {
		s.fail(c, err)
		return "", nil, false
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	path := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(fh, path); err != nil {
		cleanup()
		s.fail(c, err)
		return "", nil, false
	}
	return path, cleanup, true
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	msg := fetcher.UserMessage(err)

	var verr *fetcher.ValidationError
	var apiErr *fetcher.APIError
	switch {
	case errors.As(err, &verr):
		response.BadRequest(c, msg)
	case errors.As(err, &apiErr):
		code := apiErr.StatusCode
		if code < http.StatusBadRequest {
			code = http.StatusBadGateway
		}
		response.Error(c, code, msg)
	case errors.Is(err, fetcher.ErrUnreachable), errors.Is(err, fetcher.ErrBadCoordinates):
		response.BadGateway(c, msg)
	default:
		response.InternalError(c, msg)
	}
	s.log.Warn(c.Request.Context(), "backend call failed",
		logging.String("path", c.Request.URL.Path),
		logging.Err(err))
}
