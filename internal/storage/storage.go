// Package storage wraps the S3 operations the pipeline needs: streaming
// object download, upload with an explicit content type, and deletion of
// consumed source objects. Custom endpoints and path-style addressing are
// supported so S3-compatible stores work unchanged.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// ObjectStore is the object storage contract the pipeline depends on.
// *S3 implements it; tests substitute fakes.
type ObjectStore interface {
	HeadObject(ctx context.Context, bucket, key string) (int64, error)
	Download(ctx context.Context, bucket, key, destPath string) error
	Upload(ctx context.Context, bucket, key, srcPath, contentType string) error
	DeleteObject(ctx context.Context, bucket, key string) error
}

// S3 adapts the AWS S3 client to the ObjectStore contract.
type S3 struct {
	client     *s3.Client
	downloader *manager.Downloader
	uploader   *manager.Uploader
}

// NewS3 wraps an AWS S3 client with transfer managers for concurrent
// multipart download and upload.
func NewS3(client *s3.Client) *S3 {
	return &S3{
		client:     client,
		downloader: manager.NewDownloader(client),
		uploader:   manager.NewUploader(client),
	}
}

// HeadObject returns the object size in bytes without fetching the body.
func (s *S3) HeadObject(ctx context.Context, bucket, key string) (int64, error) {
	output, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("head object %s/%s: %w", bucket, key, err)
	}
	return aws.ToInt64(output.ContentLength), nil
}

// Download fetches the object into destPath, creating parent directories
// as needed. The partial file is removed when the transfer fails.
func (s *S3) Download(ctx context.Context, bucket, key, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}
	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}
	_, err = s.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	closeErr := file.Close()
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}
	if closeErr != nil {
		os.Remove(destPath)
		return fmt.Errorf("close download file: %w", closeErr)
	}
	return nil
}

// Upload streams srcPath to the bucket under key with the given content
// type.
func (s *S3) Upload(ctx context.Context, bucket, key, srcPath, contentType string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open upload file: %w", err)
	}
	defer file.Close()

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   io.Reader(file),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *S3) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// ClientOptions selects the AWS endpoint and addressing mode for both S3
// and SQS clients.
type ClientOptions struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// NewAWSClients builds the S3 and SQS clients from the ambient credential
// chain plus the configured overrides.
func NewAWSClients(ctx context.Context, opts ClientOptions) (*s3.Client, *sqs.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}
	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	sqsClient := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return s3Client, sqsClient, nil
}
