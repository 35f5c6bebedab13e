package s3backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nusapay/qrisgate/internal/pkg/database"
)

// Client wraps the S3 client with snapshot-specific functionality.
type Client struct {
	s3Client *s3.Client
	config   *Config
}

// NewClient creates a new snapshot backup client and verifies the bucket
// is reachable.
func NewClient(cfg *Config) (*Client, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("S3 backup is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	client := &Client{
		s3Client: s3Client,
		config:   cfg,
	}

	if _, err := client.s3Client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(cfg.BucketName),
	}); err != nil {
		return nil, fmt.Errorf("bucket %s not accessible: %w", cfg.BucketName, err)
	}

	log.Infof("[S3Backup] Successfully initialized S3 client for bucket: %s", cfg.BucketName)
	return client, nil
}

// UploadSnapshot writes a consistent copy of the live database via
// VACUUM INTO and uploads it under a timestamped object key. The local
// copy is removed afterwards.
func (c *Client) UploadSnapshot(now time.Time) (string, error) {
	ctx := context.Background()
	bucketName := c.config.BucketName
	objectKey := c.config.SnapshotKey(now)

	tmpPath := filepath.Join(os.TempDir(), fmt.Sprintf("qrisgate-snapshot-%d.db", now.UnixNano()))
	if err := database.GetDB().Exec("VACUUM INTO ?", tmpPath).Error; err != nil {
		return "", fmt.Errorf("failed to snapshot database: %w", err)
	}
	defer os.Remove(tmpPath)

	file, err := os.Open(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to open snapshot %s: %w", tmpPath, err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat snapshot %s: %w", tmpPath, err)
	}

	log.Infof("[S3Backup] Starting upload: %s -> s3://%s/%s (Size: %d bytes)",
		tmpPath, bucketName, objectKey, fileInfo.Size())

	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucketName),
		Key:           aws.String(objectKey),
		Body:          file,
		ContentType:   aws.String("application/octet-stream"),
		ContentLength: aws.Int64(fileInfo.Size()),
		Metadata: map[string]string{
			"upload-source": "qrisgate-backup",
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Infof("[S3Backup] Successfully uploaded: s3://%s/%s", bucketName, objectKey)
	return objectKey, nil
}

// PruneOld deletes the oldest snapshots beyond the configured retention
// count. Key order matches creation order because keys embed timestamps.
func (c *Client) PruneOld() error {
	ctx := context.Background()
	bucketName := c.config.BucketName

	var keys []string
	var token *string
	for {
		out, err := c.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucketName),
			Prefix:            aws.String("snapshots/"),
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("failed to list snapshots: %w", err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}

	if len(keys) <= c.config.Retention {
		return nil
	}
	sort.Strings(keys)

	for _, key := range keys[:len(keys)-c.config.Retention] {
		if _, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucketName),
			Key:    aws.String(key),
		}); err != nil {
			return fmt.Errorf("failed to delete snapshot %s: %w", key, err)
		}
		log.Infof("[S3Backup] Pruned old snapshot: s3://%s/%s", bucketName, key)
	}
	return nil
}
