package models

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	ServerAddr    string `yaml:"server_addr"`
	DatabaseURL   string `yaml:"database_url"`
	KafkaBroker   string `yaml:"kafka_broker"`
	UploadTopic   string `yaml:"upload_topic"`
	DownloadTopic string `yaml:"download_topic"`

	MinioEndpoint  string `yaml:"minio_endpoint"`
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl"`

	// Canonical image dimensions; every stored image is exactly this size.
	ImageWidth  int `yaml:"image_width"`
	ImageHeight int `yaml:"image_height"`

	MaxFileSize      int64 `yaml:"max_file_size"`
	MaxDownloadCount int   `yaml:"max_download_count"`

	// Seconds reported while a batch has produced no progress signal yet.
	DefaultProcessingTime float64 `yaml:"default_processing_time"`

	RateLimitRequests int `yaml:"rate_limit_requests"`
	RateLimitWindow   int `yaml:"rate_limit_window"` // seconds
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	return &cfg, err
}

// RateLimitWindowDuration returns the configured default window.
func (c *Config) RateLimitWindowDuration() time.Duration {
	return time.Duration(c.RateLimitWindow) * time.Second
}
