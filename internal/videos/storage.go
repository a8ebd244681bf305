package videos

import (
	"context"
	"io"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
)

type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	PutFile(ctx context.Context, bucket, key, path, contentType string) error
	GetStream(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, key string) error
	DeleteMany(ctx context.Context, bucket string, keys []string) error
	List(ctx context.Context, bucket, prefix string) ([]models.ObjectInfo, error)
}

type Encoder interface {
	Probe(ctx context.Context, path string) (*models.MediaInfo, error)
	Thumbnail(ctx context.Context, path string, atSeconds float64, outPath string) error
	Encode(ctx context.Context, req *models.EncodeRequest, onProgress func(fraction float64)) (*models.EncodeResult, error)
}
