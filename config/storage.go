package config

import (
	"strings"
	"time"
)

const (
	StorageBackendNone  = "none"
	StorageBackendMinio = "minio"
	StorageBackendS3    = "s3"
)

// StorageConfig holds object storage sink settings.
type StorageConfig struct {
	Backend       string // none, minio, s3 (R2 and other S3-compatible services)
	Bucket        string
	Timeout       time.Duration
	PublicBaseURL string // optional prefix used to build returned object urls

	MinioHost     string
	MinioPort     string
	MinioUsername string
	MinioPassword string
	MinioUseSSL   bool

	S3Endpoint  string // e.g. https://<account>.r2.cloudflarestorage.com
	S3Region    string
	S3AccessKey string
	S3SecretKey string
}

// Enabled reports whether uploads to an object store are configured.
func (c StorageConfig) Enabled() bool {
	return c.Backend == StorageBackendMinio || c.Backend == StorageBackendS3
}

func loadStorageConfig() StorageConfig {
	backend := strings.ToLower(strings.TrimSpace(getEnv("STORAGE_BACKEND", StorageBackendNone)))
	switch backend {
	case StorageBackendMinio, StorageBackendS3:
	default:
		backend = StorageBackendNone
	}
	return StorageConfig{
		Backend:       backend,
		Bucket:        getEnv("BUCKET_NAME", "dyvine"),
		Timeout:       getEnvDuration("STORAGE_TIMEOUT", 2*time.Minute),
		PublicBaseURL: strings.TrimRight(getEnv("STORAGE_PUBLIC_BASE_URL", ""), "/"),
		MinioHost:     getEnv("MINIO_HOST", "localhost"),
		MinioPort:     getEnv("MINIO_PORT", "9000"),
		MinioUsername: getEnv("MINIO_USERNAME", "minioadmin"),
		MinioPassword: getEnv("MINIO_PASSWORD", "minioadmin"),
		MinioUseSSL:   getEnvBool("MINIO_USE_SSL", false),
		S3Endpoint:    getEnv("S3_ENDPOINT", ""),
		S3Region:      getEnv("S3_REGION", "auto"),
		S3AccessKey:   getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:   getEnv("S3_SECRET_KEY", ""),
	}
}
