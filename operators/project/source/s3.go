package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"qexec-go/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go"
)

type mime string

var (
	MimeCSV     mime = "csv"
	MimeParquet mime = "parquet"
)

// ObjectStore fetches table files by key.
type ObjectStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

var (
	_ = (ObjectStore)(&MinioStore{})
	_ = (ObjectStore)(&S3Store{})
)

// NewObjectStore picks the client named by cfg.Client.
func NewObjectStore(cfg config.S3Config) (ObjectStore, error) {
	switch cfg.Client {
	case "minio":
		return NewMinioStore(cfg)
	case "aws":
		return NewS3Store(cfg), nil
	}
	return nil, fmt.Errorf("unknown object store client %q", cfg.Client)
}

type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(cfg config.S3Config) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, cfg.Secrets.AccessKey, cfg.Secrets.SecretKey, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func (ms *MinioStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	obj, err := ms.client.GetObject(ms.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

type S3Store struct {
	client *s3.Client
	bucket string
}

func NewS3Store(cfg config.S3Config) *S3Store {
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     cfg.Secrets.AccessKey,
			SecretAccessKey: cfg.Secrets.SecretKey,
			Source:          "qexec-env",
		}, nil
	})
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  aws.NewCredentialsCache(creds),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return &S3Store{client: s3.New(opts), bucket: cfg.Bucket}
}

func (ss *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := ss.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ss.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", ss.bucket, key, err)
	}
	return out.Body, nil
}

// DownloadLocally copies an object into dir so readers that need to seek
// (parquet) can use it. The caller removes the file.
func DownloadLocally(ctx context.Context, store ObjectStore, key, dir string) (*os.File, error) {
	body, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	f, err := os.CreateTemp(dir, filepath.Base(key)+"-*")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return f, nil
}

// MimeOf guesses the file kind from its extension.
func MimeOf(key string) (mime, error) {
	switch filepath.Ext(key) {
	case ".csv":
		return MimeCSV, nil
	case ".parquet":
		return MimeParquet, nil
	}
	return "", fmt.Errorf("cannot tell the format of %q, expected .csv or .parquet", key)
}
