package minio

import (
	"context"
	"fmt"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/config"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/utils"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewMinioClient connects and makes sure every pipeline bucket exists.
func NewMinioClient(ctx context.Context, c *config.Config) (*minio.Client, error) {
	client, err := minio.New(c.S3.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.S3.AccessKey, c.S3.SecretKey, ""),
		Secure: c.S3.UseSSL,
		Region: c.S3.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init minio client: %w", err)
	}

	for _, bucket := range []string{c.S3.RawBucket, c.S3.EncodedBucket, c.S3.ThumbnailBucket} {
		bucket := bucket
		_, err := utils.RetryConnect(ctx, func() (bool, error) {
			exists, err := client.BucketExists(ctx, bucket)
			if err != nil {
				return false, err
			}
			if !exists {
				if err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.S3.Region}); err != nil {
					return false, err
				}
			}
			return true, nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to ensure bucket %s: %w", bucket, err)
		}
	}
	return client, nil
}
