// Package server exposes the analysis service over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/config"
	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/util"
)

const (
	exportBodyLimit    = 4 << 20
	analysisBodyLimit  = 64 << 10
	defaultHistorySize = 20
	maxHistorySize     = 100
)

// Analyzer answers analysis requests.
type Analyzer interface {
	FetchAnalysis(ctx context.Context, req domain.AnalysisRequest) (*domain.Outcome, error)
}

// Uploader forwards inventory files to the products endpoint.
type Uploader interface {
	Upload(ctx context.Context, fileName string, data []byte, formName string) (*domain.ProductUploadResponse, error)
}

// HistoryReader lists stored outcomes.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
}

type Deps struct {
	Analyzer Analyzer
	Uploader Uploader
	History  HistoryReader
	Clock    util.Clock
	Logger   *zap.Logger
}

type Server struct {
	addr           string
	uploadMaxBytes int64
	analyzer       Analyzer
	uploader       Uploader
	history        HistoryReader
	clock          util.Clock
	logger         *zap.Logger
	router         *chi.Mux
	upgrader       websocket.Upgrader
	httpServer     *http.Server
}

func New(cfg config.ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = util.RealClock()
	}

	s := &Server{
		addr:           cfg.Addr,
		uploadMaxBytes: cfg.UploadMaxBytes,
		analyzer:       deps.Analyzer,
		uploader:       deps.Uploader,
		history:        deps.History,
		clock:          clock,
		logger:         logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/analysis", s.handleAnalysisPost)
		r.Get("/analysis", s.handleAnalysisGet)
		r.Post("/analysis/export", s.handleExport)
		r.Post("/products/upload", s.handleUpload)
		r.Get("/history", s.handleHistory)
	})

	r.Get("/ws/analysis", s.handleAnalysisSocket)
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("HTTP server listening", zap.String("addr", s.addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
