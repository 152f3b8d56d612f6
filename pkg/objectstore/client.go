// Package objectstore wraps the AWS S3 SDK into the narrow surface the
// Bronze layer needs: ensure a bucket exists, put an object, and read it
// back. It targets S3-compatible endpoints (MinIO, Hetzner, AWS) the same
// way, through a single configurable endpoint resolver.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"hydropipe/pkg/apperror"
)

// API is the subset of the S3 SDK client the Bronze layer depends on,
// narrowed for dependency injection and mock-backed tests.
type API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config describes how to reach the S3-compatible endpoint backing Bronze.
type Config struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Region       string
	UsePathStyle bool
}

// Client is the Bronze object store: objects are addressed by caller-supplied
// bucket and key on every call.
type Client struct {
	api API
}

// New builds a Client against the given endpoint. MinIO and other
// self-hosted S3-compatible stores need path-style addressing and a
// static credential pair; AWS itself resolves region/credentials normally
// when Endpoint is empty.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigError, "loading object store configuration")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Client{api: client}, nil
}

// NewWithAPI wraps an already-configured API implementation, used by tests
// to inject a mock.
func NewWithAPI(api API) *Client {
	return &Client{api: api}
}

// EnsureBucket creates bucket if it doesn't already exist. Idempotent:
// called once per bucket at startup and is safe to call repeatedly.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}

	_, err = c.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return apperror.Wrap(err, apperror.CodeStoreWrite, fmt.Sprintf("creating bucket %s", bucket))
	}
	return nil
}

// PutObject writes body to bucket/key with the given content type,
// replacing anything already there. Bronze writes are whole-object
// overwrites, never appends or partial updates.
func (c *Client) PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return apperror.Wrap(err, apperror.CodeStoreWrite, fmt.Sprintf("putting object %s/%s", bucket, key))
	}
	return nil
}

// GetObject reads bucket/key fully into memory. Bronze objects are
// bounded by one harvest page/GML document, so buffering is fine.
func (c *Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, apperror.New(apperror.CodeNotFound, fmt.Sprintf("object %s/%s not found", bucket, key))
		}
		return nil, apperror.Wrap(err, apperror.CodeStoreWrite, fmt.Sprintf("getting object %s/%s", bucket, key))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeStoreWrite, fmt.Sprintf("reading object %s/%s", bucket, key))
	}
	return data, nil
}

// HeadObject checks whether bucket/key exists without transferring its
// body.
func (c *Client) HeadObject(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return false, nil
		}
		return false, apperror.Wrap(err, apperror.CodeStoreWrite, fmt.Sprintf("heading object %s/%s", bucket, key))
	}
	return true, nil
}

// uploader returns a manager.Uploader for large Bronze payloads (GML
// feature collections can exceed the single-PutObject size comfortably
// handled for JSON pages).
func (c *Client) uploader() (*manager.Uploader, error) {
	client, ok := c.api.(*s3.Client)
	if !ok {
		return nil, apperror.New(apperror.CodeConfigError, "multipart upload requires a concrete S3 client")
	}
	return manager.NewUploader(client), nil
}

// PutObjectStreaming uploads body via the multipart manager, for payloads
// whose size is not known to be small up front. It works only with a
// concrete *s3.Client.
func (c *Client) PutObjectStreaming(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	uploader, err := c.uploader()
	if err != nil {
		return err
	}

	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return apperror.Wrap(err, apperror.CodeStoreWrite, fmt.Sprintf("streaming object %s/%s", bucket, key))
	}
	return nil
}
