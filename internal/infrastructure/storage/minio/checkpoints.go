// Package minio persists model checkpoints in S3-compatible object storage.
package minio

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/pkg/errors"
)

// ObjectAPI abstracts the minio client operations the checkpoint store
// needs, so tests can inject a fake.
type ObjectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// Config holds object storage connection settings.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
}

// CheckpointStore stores gob-encoded model checkpoints as objects.  It
// implements training.CheckpointStore.
type CheckpointStore struct {
	api    ObjectAPI
	bucket string
	logger logging.Logger
}

// NewCheckpointStore connects to object storage and ensures the checkpoint
// bucket exists.
func NewCheckpointStore(ctx context.Context, cfg Config, logger logging.Logger) (*CheckpointStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create object storage client")
	}

	s := &CheckpointStore{api: client, bucket: cfg.Bucket, logger: logger}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	logger.Info("checkpoint store ready",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
	)
	return s, nil
}

// NewCheckpointStoreWithAPI injects an ObjectAPI, for tests.
func NewCheckpointStoreWithAPI(api ObjectAPI, bucket string, logger logging.Logger) *CheckpointStore {
	return &CheckpointStore{api: api, bucket: bucket, logger: logger}
}

func (s *CheckpointStore) ensureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to check checkpoint bucket")
	}
	if exists {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create checkpoint bucket "+s.bucket)
	}
	return nil
}

// Put uploads checkpoint bytes under the given key.
func (s *CheckpointStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.api.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to upload checkpoint "+key)
	}
	s.logger.Debug("checkpoint uploaded",
		logging.String("key", key),
		logging.Int("bytes", len(data)),
	)
	return nil
}

// Get downloads the checkpoint stored under key.
func (s *CheckpointStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.api.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to fetch checkpoint "+key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to read checkpoint "+key)
	}
	return data, nil
}

// Delete removes the checkpoint stored under key.
func (s *CheckpointStore) Delete(ctx context.Context, key string) error {
	if err := s.api.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to delete checkpoint "+key)
	}
	return nil
}

// List returns the checkpoint keys under a run prefix, e.g. "run-id/".
func (s *CheckpointStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for info := range s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, errors.Wrap(info.Err, errors.ErrCodeStorageError, "failed to list checkpoints")
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}
