package imagehost

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config points the S3 host at a bucket. Endpoint is only needed for
// S3-compatible stores such as MinIO; PublicURL is the prefix images are
// served from (defaults to Endpoint/Bucket).
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string
}

// objectAPI is the part of *s3.Client the host uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Host struct {
	client    objectAPI
	bucket    string
	publicURL string
}

func NewS3Host(ctx context.Context, cfg S3Config) (*S3Host, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3_BUCKET is not set")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Host(client, cfg), nil
}

func newS3Host(client objectAPI, cfg S3Config) *S3Host {
	public := cfg.PublicURL
	if public == "" {
		public = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return &S3Host{client: client, bucket: cfg.Bucket, publicURL: strings.TrimRight(public, "/")}
}

func (h *S3Host) Upload(ctx context.Context, kind string, img Image) (string, error) {
	key := objectKey(kind, img.Ext, time.Now())
	_, err := h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(h.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(img.Data),
		ContentType:   aws.String(img.ContentType),
		ContentLength: aws.Int64(int64(len(img.Data))),
	})
	if err != nil {
		return "", err
	}
	return h.publicURL + "/" + key, nil
}

func (h *S3Host) Destroy(ctx context.Context, url string) error {
	key, ok := keyFromURL(h.publicURL, url)
	if !ok {
		return nil
	}
	_, err := h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	return err
}
