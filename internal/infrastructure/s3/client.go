package s3infra

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-recovery-api/internal/config"
	"github.com/go-recovery-api/internal/domain"
)

// maxTemplateSize caps how much of an object is read into memory.
const maxTemplateSize = 256 << 10

type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// TemplateStore reads email template overrides from a bucket.
type TemplateStore struct {
	client objectGetter
	bucket string
}

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(awsCfg aws.Config, cfg *config.Config) *s3.Client {
	clientOpts := []func(*s3.Options){}
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, clientOpts...)
}

func NewTemplateStore(client objectGetter, bucket string) *TemplateStore {
	return &TemplateStore{client: client, bucket: bucket}
}

// Fetch returns the object body as a string, or domain.ErrNotFound when the key is absent.
func (s *TemplateStore) Fetch(ctx context.Context, key string) (string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", fmt.Errorf("template %s: %w", key, domain.ErrNotFound)
		}
		return "", fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(io.LimitReader(out.Body, maxTemplateSize))
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", key, err)
	}
	return string(b), nil
}
