package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store persists an uploaded image and returns its public URL.
type Store interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// S3Config describes an S3-compatible bucket (AWS, MinIO, R2, ...).
type S3Config struct {
	Endpoint  string // e.g. http://localhost:9000; empty means AWS
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PublicURL is the base returned to clients. When empty it is
	// Endpoint/Bucket.
	PublicURL string
}

// Enabled reports whether enough is configured to build a store.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// S3Store uploads avatars through the s3 manager uploader.
type S3Store struct {
	uploader  *manager.Uploader
	bucket    string
	publicURL string
}

// NewS3Store builds the client. Path-style addressing is used so MinIO and
// other self-hosted endpoints work without wildcard DNS.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if !cfg.Enabled() {
		return nil, errors.New("avatar: S3 bucket and credentials must be set")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("avatar: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		base := cfg.Endpoint
		if base == "" {
			base = fmt.Sprintf("https://s3.%s.amazonaws.com", region)
		}
		publicURL = strings.TrimRight(base, "/") + "/" + cfg.Bucket
	}

	return &S3Store{
		uploader:  manager.NewUploader(client),
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// Upload writes body under key, overwriting any previous object.
func (s *S3Store) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("avatar: uploading %s: %w", key, err)
	}
	return s.publicURL + "/" + key, nil
}
