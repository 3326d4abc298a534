package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/footballistika/predictor/internal/config"
	"github.com/footballistika/predictor/internal/domain"
)

// Source opens a named dump
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// FileSource reads dumps from the local filesystem, relative to Dir when set
type FileSource struct {
	Dir string
}

// Open opens name as a file
func (s FileSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	path := name
	if s.Dir != "" && !filepath.IsAbs(name) {
		path = filepath.Join(s.Dir, name)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dump: %w", err)
	}
	return f, nil
}

// S3Source reads dumps from an S3-compatible bucket
type S3Source struct {
	client *s3.Client
	bucket string
}

// NewS3Source builds an S3 client from cfg. Static credentials are used when
// given, otherwise the default AWS credential chain applies.
func NewS3Source(ctx context.Context, cfg config.S3Config) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Source{client: client, bucket: cfg.Bucket}, nil
}

// Open fetches the object stored under key name
func (s *S3Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("getting object %s/%s: %w", s.bucket, name, err)
	}
	return out.Body, nil
}

// Run opens the named dumps from src and imports them. An empty name skips
// that dump.
func (im *Importer) Run(ctx context.Context, src Source, matchesName, predictionsName string) (domain.ImportReport, error) {
	var matches, predictions io.Reader
	if matchesName != "" {
		rc, err := src.Open(ctx, matchesName)
		if err != nil {
			return domain.ImportReport{}, err
		}
		defer rc.Close()
		matches = rc
	}
	if predictionsName != "" {
		rc, err := src.Open(ctx, predictionsName)
		if err != nil {
			return domain.ImportReport{}, err
		}
		defer rc.Close()
		predictions = rc
	}
	return im.Import(ctx, matches, predictions)
}
