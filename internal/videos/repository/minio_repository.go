package repository

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/minio/minio-go/v7"
)

type minioRepository struct {
	client *minio.Client
}

func NewMinioRepository(client *minio.Client) videos.ObjectStore {
	return &minioRepository{
		client: client,
	}
}

func (m *minioRepository) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (m *minioRepository) PutFile(ctx context.Context, bucket, key, path, contentType string) error {
	_, err := m.client.FPutObject(ctx, bucket, key, path, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (m *minioRepository) GetStream(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s/%s: %w", bucket, key, err)
	}
	// GetObject is lazy; surface a missing key here rather than on first read
	if _, err = obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("failed to download %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

func (m *minioRepository) Delete(ctx context.Context, bucket, key string) error {
	if err := m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (m *minioRepository) DeleteMany(ctx context.Context, bucket string, keys []string) error {
	objects := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objects <- minio.ObjectInfo{Key: key}
	}
	close(objects)

	var errs []error
	for res := range m.client.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		errs = append(errs, fmt.Errorf("%s: %w", res.ObjectName, res.Err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to remove objects from %s: %w", bucket, errors.Join(errs...))
	}
	return nil
}

func (m *minioRepository) List(ctx context.Context, bucket, prefix string) ([]models.ObjectInfo, error) {
	objects := make([]models.ObjectInfo, 0)
	for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects : %w", obj.Err)
		}
		objects = append(objects, models.ObjectInfo{Key: obj.Key, Size: obj.Size})
	}
	return objects, nil
}
