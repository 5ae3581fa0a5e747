package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// s3Env names the environment variables the s3:// source resolver reads.
// Endpoint must be host[:port] without a scheme; S3_USE_SSL defaults to true.
const (
	envS3Endpoint  = "S3_ENDPOINT"
	envS3AccessKey = "S3_ACCESS_KEY"
	envS3SecretKey = "S3_SECRET_KEY"
	envS3Region    = "S3_REGION"
	envS3UseSSL    = "S3_USE_SSL"
)

// newS3Client builds a minio client from the environment.
var newS3Client = func() (*minio.Client, error) {
	endpoint := os.Getenv(envS3Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("media: %s not set; s3:// sources need an object store endpoint", envS3Endpoint)
	}

	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv(envS3AccessKey), os.Getenv(envS3SecretKey), ""),
		Secure: os.Getenv(envS3UseSSL) != "false",
		Region: os.Getenv(envS3Region),
	})
}

// fromS3 downloads s3://bucket/key and classifies the object by its key.
func fromS3(ctx context.Context, src string) (Input, error) {
	rest := strings.TrimPrefix(src, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("media: malformed s3 source %q, want s3://bucket/key", src)
	}

	client, err := newS3Client()
	if err != nil {
		return nil, err
	}

	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("media: get s3 object %s: %w", src, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(io.LimitReader(obj, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("media: read s3 object %s: %w", src, err)
	}

	name := key
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		name = key[i+1:]
	}

	return classify(name, data, mimeFromName(key))
}
