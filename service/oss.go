package service

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"TrendToVideo-server/config"
	"TrendToVideo-server/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var MinioClient *minio.Client

// InitMinIO initializes the shared client, called from main.go.
func InitMinIO() {
	cfg := config.AppConfig.MinIO
	var err error
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		logger.L().Fatalf("MinIO init failed: %v", err)
	}
	logger.L().Info("MinIO client initialized")
}

// MinioArtifactStore uploads rendered files to MinIO. On storage outage it
// returns pending:// placeholder references instead of an error so the
// pipeline can finish and the job can be re-uploaded by an operator later.
type MinioArtifactStore struct {
	Client *minio.Client
	Bucket string
}

func NewMinioArtifactStore() *MinioArtifactStore {
	return &MinioArtifactStore{
		Client: MinioClient,
		Bucket: config.AppConfig.MinIO.Bucket,
	}
}

func (s *MinioArtifactStore) StoreArtifacts(ctx context.Context, videoPath, thumbnailPath, jobID string) (StoredArtifacts, error) {
	log := logger.L()

	videoObject := fmt.Sprintf("jobs/%s/%s", jobID, filepath.Base(videoPath))
	thumbObject := fmt.Sprintf("jobs/%s/%s", jobID, filepath.Base(thumbnailPath))

	storageURL, err := s.uploadFile(ctx, videoPath, videoObject)
	if err != nil {
		log.WithError(err).Warnf("video upload failed for job %s, using placeholder reference", jobID)
		return StoredArtifacts{
			StorageURL:   "pending://" + videoObject,
			ThumbnailURL: "pending://" + thumbObject,
		}, nil
	}

	thumbnailURL, err := s.uploadFile(ctx, thumbnailPath, thumbObject)
	if err != nil {
		log.WithError(err).Warnf("thumbnail upload failed for job %s", jobID)
		thumbnailURL = ""
	}

	log.Infof("artifacts stored for job %s: %s", jobID, videoObject)
	return StoredArtifacts{
		StorageURL:   storageURL,
		ThumbnailURL: thumbnailURL,
	}, nil
}

func (s *MinioArtifactStore) uploadFile(ctx context.Context, localPath, objectName string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	contentType := contentTypeFor(objectName)
	_, err := s.Client.FPutObject(ctx, s.Bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("MinIO upload failed: %w", err)
	}

	expiry := time.Hour * 72
	reqParams := make(url.Values)
	presignedURL, err := s.Client.PresignedGetObject(ctx, s.Bucket, objectName, expiry, reqParams)
	if err != nil {
		return "", fmt.Errorf("presign URL failed: %w", err)
	}
	return presignedURL.String(), nil
}

func (s *MinioArtifactStore) ensureBucket(ctx context.Context) error {
	exists, err := s.Client.BucketExists(ctx, s.Bucket)
	if err != nil {
		return fmt.Errorf("bucket check failed: %w", err)
	}
	if !exists {
		if err := s.Client.MakeBucket(ctx, s.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("bucket create failed: %w", err)
		}
		logger.L().Infof("bucket %q created", s.Bucket)
	}
	return nil
}

// BucketUsageBytes walks the bucket and sums object sizes. Used by the
// health check's storage sub-check.
func (s *MinioArtifactStore) BucketUsageBytes(ctx context.Context) (int64, error) {
	var total int64
	for object := range s.Client.ListObjects(ctx, s.Bucket, minio.ListObjectsOptions{Recursive: true}) {
		if object.Err != nil {
			return 0, object.Err
		}
		total += object.Size
	}
	return total, nil
}

// CleanupStaleArtifacts removes objects older than the retention window.
// Runs from the scheduler's weekly storage-cleanup task; local render output
// in the worker's scratch dir is also swept.
func (s *MinioArtifactStore) CleanupStaleArtifacts(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	removed := 0
	for object := range s.Client.ListObjects(ctx, s.Bucket, minio.ListObjectsOptions{Recursive: true}) {
		if object.Err != nil {
			return removed, object.Err
		}
		if object.LastModified.After(cutoff) {
			continue
		}
		if err := s.Client.RemoveObject(ctx, s.Bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			logger.L().WithError(err).Warnf("failed to remove stale object %s", object.Key)
			continue
		}
		removed++
	}
	return removed, nil
}

func contentTypeFor(objectName string) string {
	switch filepath.Ext(objectName) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// RemoveLocalArtifacts deletes the local render output for a job once its
// files are durably stored.
func RemoveLocalArtifacts(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.L().WithError(err).Warnf("failed to remove local artifact %s", p)
		}
	}
}
