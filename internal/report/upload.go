package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader pushes encoded reports to an S3-compatible object store.
type Uploader struct {
	client *minio.Client
	bucket string
	region string
}

// NewUploader connects to the object store and ensures the bucket exists.
func NewUploader(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Uploader, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to object store: %w", err)
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %q: %w", bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, fmt.Errorf("creating bucket %q: %w", bucket, err)
		}
	}

	return &Uploader{client: cli, bucket: bucket, region: region}, nil
}

// Upload stores the report under key and returns the object URL. The URL is
// only directly fetchable when the bucket is public.
func (u *Uploader) Upload(ctx context.Context, key string, r *Report) (string, error) {
	data, err := r.Encode()
	if err != nil {
		return "", err
	}
	_, err = u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("uploading report: %w", err)
	}
	return fmt.Sprintf("%s/%s/%s", u.client.EndpointURL(), u.bucket, key), nil
}
