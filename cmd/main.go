package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"imagebank/internal/blob"
	"imagebank/internal/ingest"
	"imagebank/internal/models"
	"imagebank/internal/pack"
	"imagebank/internal/server"
	"imagebank/internal/storage"
)

func main() {
	cfg, err := models.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := storage.NewStorage(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}
	defer db.Close()

	blobs, err := blob.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init blob store: %v", err)
	}
	if err := blobs.EnsureBuckets(); err != nil {
		log.Fatalf("failed to create buckets: %v", err)
	}

	uploads := kafka.NewWriter(kafka.WriterConfig{
		Brokers: []string{cfg.KafkaBroker},
		Topic:   cfg.UploadTopic,
	})
	downloads := kafka.NewWriter(kafka.WriterConfig{
		Brokers: []string{cfg.KafkaBroker},
		Topic:   cfg.DownloadTopic,
	})

	ingestion := ingest.New(db, blobs, cfg)
	packaging := pack.New(db, blobs, cfg)

	// Both pipelines are fire-and-forget: the upload/download endpoints
	// publish a batch id and return, the consumer loops do the work.
	ctx, cancel := context.WithCancel(context.Background())
	go consume(ctx, cfg.KafkaBroker, cfg.UploadTopic, "ingest-workers", ingestion.Run)
	go consume(ctx, cfg.KafkaBroker, cfg.DownloadTopic, "pack-workers", packaging.Run)

	srv := server.NewServer(cfg, db, blobs, uploads, downloads)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cancel()
	srv.Stop()
	uploads.Close()
	downloads.Close()
}

func consume(ctx context.Context, broker, topic, group string, handle func(context.Context, uuid.UUID) error) {
	consumer := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   topic,
		GroupID: group,
	})
	defer consumer.Close()

	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if err == context.Canceled {
				return
			}
			log.Printf("error reading message from %s: %v", topic, err)
			continue
		}
		id, err := uuid.Parse(string(msg.Value))
		if err != nil {
			log.Printf("bad batch id on %s: %v", topic, err)
			continue
		}
		if err := handle(ctx, id); err != nil {
			log.Printf("error processing batch %s: %v", id, err)
		}
	}
}
