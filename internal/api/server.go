package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"safewatch/internal/config"
	"safewatch/internal/dashboard"
	"safewatch/internal/ingest"
	"safewatch/internal/metrics"
	"safewatch/internal/model"
	"safewatch/internal/push"
	"safewatch/internal/report"
)

type Server struct {
	cfg      *config.Manager
	svc      *dashboard.Service
	hub      *push.Hub
	stats    *metrics.Store
	readings chan<- model.Reading
	logger   *zap.Logger
	version  string
}

type statusResponse struct {
	Status      string           `json:"status"`
	Time        string           `json:"time"`
	Version     string           `json:"version"`
	ConfigPath  string           `json:"config_path"`
	Storage     string           `json:"storage"`
	Cache       string           `json:"cache"`
	Ingest      ingestStatus     `json:"ingest"`
	Connections int              `json:"connections"`
	Readings    metrics.Snapshot `json:"readings"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	Kafka     bool `json:"kafka"`
	MQTT      bool `json:"mqtt"`
	TCPStream bool `json:"tcp_stream"`
}

// New wires the handlers. hub, stats and readings may be nil; the matching
// routes then report their feature as unavailable.
func New(cfg *config.Manager, svc *dashboard.Service, hub *push.Hub, stats *metrics.Store, readings chan<- model.Reading, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		svc:      svc,
		hub:      hub,
		stats:    stats,
		readings: readings,
		logger:   logger,
		version:  version,
	}
}

func (s *Server) Routes() http.Handler {
	cfg := s.cfg.Get()
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/status", s.handleStatus)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/workers", s.handleListWorkers)
		r.Post("/workers", s.handleCreateWorker)
		r.Route("/health-history", func(r chi.Router) {
			r.Get("/", s.handleHealthHistory)
			r.Get("/summary", s.handleSummary)
			r.Get("/export", s.handleExport)
		})
		if cfg.Ingest.REST.Enabled && s.readings != nil {
			r.Method(http.MethodPost, "/readings", ingest.NewRESTHandler(s.cfg, s.readings, s.logger))
		}
	})

	if s.hub != nil {
		r.Method(http.MethodGet, "/ws", push.NewWSHandler(s.hub, cfg.Push.WriteTimeout, s.logger))
	}
	if cfg.API.WebDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.API.WebDir)))
	}
	return r
}

// Start serves until ctx ends, then shuts down with a five second grace period.
func Start(ctx context.Context, s *Server) *http.Server {
	addr := s.cfg.Get().API.Addr
	s.logger.Info("api enabled", zap.String("addr", addr))

	httpServer := &http.Server{Addr: addr, Handler: s.Routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", zap.Error(err))
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Storage:    cfg.Storage.Driver,
		Cache:      cfg.Cache.Backend,
		Ingest: ingestStatus{
			REST:      cfg.Ingest.REST.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
			MQTT:      cfg.Ingest.MQTT.Enabled,
			TCPStream: cfg.Ingest.TCP.Enabled,
		},
	}
	if s.hub != nil {
		resp.Connections = s.hub.Len()
	}
	if s.stats != nil {
		resp.Readings = s.stats.Snapshot()
	}
	render.JSON(w, r, resp)
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.svc.ListWorkers(r.Context())
	if err != nil {
		s.logger.Error("list workers", zap.Error(err))
		fail(w, r, http.StatusInternalServerError, "Error fetching workers")
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "workers": workers})
}

func (s *Server) handleCreateWorker(w http.ResponseWriter, r *http.Request) {
	var in dashboard.WorkerInput
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, 1<<20), &in); err != nil {
		fail(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	worker, err := s.svc.CreateWorker(r.Context(), in)
	if err != nil {
		var verr *dashboard.ValidationError
		if errors.As(err, &verr) {
			fail(w, r, http.StatusBadRequest, verr.Message)
			return
		}
		fail(w, r, http.StatusInternalServerError, "Error adding worker to database")
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]any{
		"success": true,
		"message": "Worker added successfully",
		"worker":  worker,
	})
}

func (s *Server) handleHealthHistory(w http.ResponseWriter, r *http.Request) {
	workerID, err := parseWorkerID(r.URL.Query().Get("worker_id"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "Invalid worker_id")
		return
	}
	res := s.svc.HealthHistory(r.Context(), workerID, parseDays(r.URL.Query().Get("days")))
	if !res.OK() {
		render.Status(r, http.StatusInternalServerError)
	}
	render.JSON(w, r, res.Data)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	workerID, err := parseWorkerID(r.URL.Query().Get("worker_id"))
	if err != nil || workerID == nil {
		fail(w, r, http.StatusBadRequest, "worker_id is required")
		return
	}
	res := s.svc.HealthStatsSummary(r.Context(), *workerID, parseDays(r.URL.Query().Get("days")))
	if !res.OK() {
		render.Status(r, http.StatusInternalServerError)
	}
	render.JSON(w, r, res.Data)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	workerID, err := parseWorkerID(r.URL.Query().Get("worker_id"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "Invalid worker_id")
		return
	}
	data, err := s.svc.ExportHistory(r.Context(), workerID, parseDays(r.URL.Query().Get("days")))
	if err != nil {
		fail(w, r, http.StatusInternalServerError, "Error exporting health history")
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=health-history.xlsx")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// parseWorkerID treats "" and "all" as every worker.
func parseWorkerID(v string) (*int64, error) {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "all") {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.New("invalid worker id")
	}
	return &id, nil
}

// parseDays falls back to the default window for missing or non-positive values.
func parseDays(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return dashboard.DefaultHistoryDays
	}
	return n
}

func fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]any{"success": false, "message": message})
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
