//go:build integration

package repository

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/config"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	awsclient "github.com/amankumarsingh77/streamscale-pipeline/pkg/db/aws"
	minioclient "github.com/amankumarsingh77/streamscale-pipeline/pkg/db/minio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startMinio(t *testing.T) *config.Config {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Cmd:          []string{"server", "/data"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     "minioadmin",
				"MINIO_ROOT_PASSWORD": "minioadmin",
			},
			WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("minio container unavailable: %v", err)
	}
	t.Cleanup(func() {
		termCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(termCtx)
	})

	endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "")
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.S3.Endpoint = endpoint
	cfg.S3.Region = "us-east-1"
	cfg.S3.AccessKey = "minioadmin"
	cfg.S3.SecretKey = "minioadmin"
	cfg.S3.RawBucket = "raw"
	cfg.S3.EncodedBucket = "encoded"
	cfg.S3.ThumbnailBucket = "thumbnails"
	return cfg
}

func TestObjectStores(t *testing.T) {
	cfg := startMinio(t)
	ctx := context.Background()

	mc, err := minioclient.NewMinioClient(ctx, cfg)
	require.NoError(t, err)

	awsCfg := *cfg
	awsCfg.S3.Endpoint = "http://" + cfg.S3.Endpoint
	s3c, err := awsclient.NewAWSClient(ctx, &awsCfg)
	require.NoError(t, err)

	stores := map[string]videos.ObjectStore{
		"minio": NewMinioRepository(mc),
		"aws":   NewAwsRepository(s3c),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			exerciseObjectStore(t, store, cfg.S3.EncodedBucket, name)
		})
	}
}

func exerciseObjectStore(t *testing.T, store videos.ObjectStore, bucket, prefix string) {
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, bucket, prefix+"/master.m3u8", strings.NewReader("#EXTM3U\n"), 8, "application/vnd.apple.mpegurl"))

	segment := filepath.Join(t.TempDir(), "seg_000.ts")
	require.NoError(t, os.WriteFile(segment, []byte("segment"), 0600))
	require.NoError(t, store.PutFile(ctx, bucket, prefix+"/720p/seg_000.ts", segment, "video/mp2t"))
	require.NoError(t, store.PutFile(ctx, bucket, prefix+"/720p/seg_001.ts", segment, "video/mp2t"))

	body, err := store.GetStream(ctx, bucket, prefix+"/master.m3u8")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, body.Close())
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", string(data))

	_, err = store.GetStream(ctx, bucket, prefix+"/missing.m3u8")
	assert.Error(t, err)

	objects, err := store.List(ctx, bucket, prefix+"/")
	require.NoError(t, err)
	assert.Len(t, objects, 3)

	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		if strings.HasSuffix(o.Key, ".ts") {
			assert.Equal(t, int64(7), o.Size)
			keys = append(keys, o.Key)
		}
	}
	require.NoError(t, store.DeleteMany(ctx, bucket, keys))
	require.NoError(t, store.Delete(ctx, bucket, prefix+"/master.m3u8"))
	// deleting a missing key is not an error
	require.NoError(t, store.Delete(ctx, bucket, prefix+"/master.m3u8"))

	objects, err = store.List(ctx, bucket, prefix+"/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}
