package store

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/smallbiznis/cookiejar/internal/config"
	"github.com/smallbiznis/cookiejar/internal/media/domain"
	"go.uber.org/zap"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes objects to an S3 compatible bucket.
type S3Store struct {
	client        putObjectAPI
	bucket        string
	publicBaseURL string
}

// NewFromConfig returns a disabled store when no bucket is configured.
func NewFromConfig(cfg config.Config, log *zap.Logger) (domain.Store, error) {
	storage := cfg.Storage
	if !storage.Enabled() {
		log.Named("media.store").Info("object storage not configured, uploads disabled")
		return Disabled{}, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(storage.Region),
	}
	if storage.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(storage.AccessKey, storage.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(client, storage), nil
}

func NewS3Store(client putObjectAPI, storage config.StorageConfig) *S3Store {
	base := strings.TrimRight(strings.TrimSpace(storage.PublicBaseURL), "/")
	if base == "" {
		switch {
		case storage.Endpoint != "":
			base = strings.TrimRight(storage.Endpoint, "/") + "/" + storage.Bucket
		default:
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", storage.Bucket, storage.Region)
		}
	}
	return &S3Store{
		client:        client,
		bucket:        storage.Bucket,
		publicBaseURL: base,
	}
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) URL(key string) string {
	return s.publicBaseURL + "/" + key
}

// Disabled rejects every write.
type Disabled struct{}

func (Disabled) Put(ctx context.Context, key, contentType string, body []byte) error {
	return domain.ErrStorageUnavailable
}

func (Disabled) URL(key string) string { return "" }
