package server

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"imagebank/internal/blob"
	"imagebank/internal/models"
	"imagebank/internal/progress"
	"imagebank/internal/ratelimit"
	"imagebank/internal/storage"
)

type Server struct {
	cfg       *models.Config
	router    *gin.Engine
	db        *storage.Storage
	blobs     *blob.Store
	uploads   *kafka.Writer
	downloads *kafka.Writer
	limiter   *ratelimit.Limiter
	estimator progress.Estimator
}

func NewServer(cfg *models.Config, db *storage.Storage, blobs *blob.Store, uploads, downloads *kafka.Writer) *Server {
	r := gin.Default()

	s := &Server{
		cfg:       cfg,
		router:    r,
		db:        db,
		blobs:     blobs,
		uploads:   uploads,
		downloads: downloads,
		limiter: ratelimit.New(ratelimit.Limit{
			Requests: cfg.RateLimitRequests,
			Window:   cfg.RateLimitWindowDuration(),
		}),
		estimator: progress.Estimator{Default: cfg.DefaultProcessingTime},
	}

	api := r.Group("/api/v1", ratelimit.Middleware(s.limiter))
	api.POST("/upload", s.handleUpload)
	api.POST("/upload/test", s.handleUploadTest)
	api.GET("/upload/status/:id", s.handleUploadStatus)
	api.PUT("/download/request", s.handleDownloadRequest)
	api.GET("/download/status/:id", s.handleDownloadStatus)
	api.PUT("/download/get/:id", s.handleDownloadFetch)
	api.PUT("/admin/rate-limit", s.handleSetRateLimit)
	api.GET("/admin/rate-limit", s.handleGetRateLimit)

	return s
}

func (s *Server) Start() error {
	return s.router.Run(s.cfg.ServerAddr)
}

func (s *Server) Stop() {
	// No shutdown needed for gin
}

// publish hands a batch id to one of the pipeline topics. The request
// returns as soon as the message is written; nobody waits on the pipeline.
func (s *Server) publish(ctx context.Context, w *kafka.Writer, id uuid.UUID) error {
	const op = "server.publish"
	if err := w.WriteMessages(ctx, kafka.Message{Value: []byte(id.String())}); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}
