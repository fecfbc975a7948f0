package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
	// AccessKeyID and SecretAccessKey are optional; the default AWS
	// credential chain is used when they are empty.
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

// S3Backend writes to any S3-compatible blob store (AWS, MinIO, R2).
type S3Backend struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

func NewS3(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("S3_BUCKET is required for blob storage")
	}
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Backend{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

func (b *S3Backend) Name() string { return "blob" }

func (b *S3Backend) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	if b.publicBaseURL != "" {
		return b.publicBaseURL + "/" + key, nil
	}
	return "s3://" + b.bucket + "/" + key, nil
}
