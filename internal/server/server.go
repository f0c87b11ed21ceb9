package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"photo-thumbnailer/internal/models"
	"photo-thumbnailer/internal/processor"
)

// Enqueuer publishes generation jobs for background processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, bucket, file string) (string, error)
}

type Server struct {
	cfg      *models.Config
	router   *gin.Engine
	http     *http.Server
	proc     *processor.Processor
	producer Enqueuer
	log      *slog.Logger
}

// NewServer wires the routes. producer and metricsHandler may be nil, in
// which case /enqueue-thumbnails and /metrics are not registered.
func NewServer(cfg *models.Config, proc *processor.Processor, producer Enqueuer, metricsHandler http.Handler, log *slog.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	s := &Server{
		cfg:      cfg,
		router:   r,
		proc:     proc,
		producer: producer,
		log:      log,
	}
	s.http = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	r.GET("/healthz", s.handleHealth)
	r.POST("/generate-thumbnails", s.handleGenerate)
	r.POST("/delete-job", s.handleDeleteJob)
	r.DELETE("/delete-job", s.handleDeleteJob)
	r.POST("/generate-upload-url", s.handleUploadURL)
	r.POST("/record-upload", s.handleRecordUpload)
	if producer != nil {
		r.POST("/enqueue-thumbnails", s.handleEnqueue)
	}
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	cfg.ExposeHeaders = []string{requestIDHeader}
	return cfg
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.cfg.ServerAddr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop waits for in-flight requests to finish or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
