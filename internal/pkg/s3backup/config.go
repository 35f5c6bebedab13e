package s3backup

import (
	"fmt"
	"time"

	"github.com/nusapay/qrisgate/internal/pkg/env"
)

// Config holds the database snapshot backup settings.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // optional, for S3-compatible services
	Enabled         bool
	Retention       int // how many snapshots to keep
}

// LoadConfig reads the snapshot backup settings from the environment.
// With S3_BACKUP_ENABLED unset a config with Enabled false is returned and
// the backup loop in cmd/qrisgate is not started.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-west-001"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnvBool("S3_BACKUP_ENABLED", false),
		Retention:       env.GetEnvInt("S3_BACKUP_RETENTION", 14),
	}
	if !cfg.Enabled {
		return cfg, nil
	}

	for _, required := range []struct {
		name  string
		value string
	}{
		{"S3_ACCESS_KEY_ID", cfg.AccessKeyID},
		{"S3_SECRET_ACCESS_KEY", cfg.SecretAccessKey},
		{"S3_BUCKET_NAME", cfg.BucketName},
	} {
		if required.value == "" {
			return nil, fmt.Errorf("%s is required when S3 backup is enabled", required.name)
		}
	}
	return cfg, nil
}

// SnapshotKey generates the object key for a snapshot taken at t.
// Format: snapshots/YYYY/MM/qrisgate-20060102T150405Z.db
func (c *Config) SnapshotKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("snapshots/%04d/%02d/qrisgate-%s.db",
		t.Year(), int(t.Month()), t.Format("20060102T150405Z"))
}
