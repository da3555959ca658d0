// Package storage persists crawl outputs to an S3-compatible object store.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	crd "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/aluiziolira/bookcrawl/config"
)

const (
	ContentTypeCSV    = "text/csv; charset=utf-8"
	ContentTypeBinary = "application/octet-stream"

	keyTimeLayout = "20060102_150405"
)

var regionPattern = regexp.MustCompile(`ru-(\d+)`)

// Options configures an S3Store.
type Options struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	PathStyle bool

	// HTTPClient replaces the SDK transport. Tests inject a mock here.
	HTTPClient s3.HTTPClient
}

// OptionsFromConfig maps the crawler settings onto store options. The region is
// taken from the endpoint host when it names one.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Endpoint:  cfg.S3Endpoint,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Region:    RegionFromEndpoint(cfg.S3Endpoint, cfg.S3Region),
		PathStyle: cfg.S3PathStyle,
	}
}

// Object describes one stored object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// S3Store uploads payloads and files into a single bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	region string
}

// NewS3Store builds a client with static credentials.
func NewS3Store(ctx context.Context, opts Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, errors.New("storage: access key and secret key are required")
	}
	region := opts.Region
	if region == "" {
		region = config.DefaultConfig().S3Region
	}

	awsConfig, err := awsCfg.LoadDefaultConfig(ctx,
		awsCfg.WithRegion(region),
		awsCfg.WithCredentialsProvider(crd.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
		// Most S3-compatible stores reject the newer default checksum headers.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		if opts.HTTPClient != nil {
			o.HTTPClient = opts.HTTPClient
		}
	})

	return &S3Store{client: client, bucket: opts.Bucket, region: region}, nil
}

// Bucket returns the target bucket name.
func (s *S3Store) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}

	slog.Info("creating bucket", slog.String("bucket", s.bucket), slog.String("region", s.region))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
		CreateBucketConfiguration: &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		},
	})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// PutObject stores body under key.
func (s *S3Store) PutObject(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
	if key == "" {
		return errors.New("storage: empty object key")
	}
	if contentType == "" {
		contentType = ContentTypeBinary
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
		Metadata:      metadata,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, describe(err))
	}

	slog.Info("uploaded object",
		slog.String("bucket", s.bucket),
		slog.String("key", key),
		slog.Int("bytes", len(body)),
	)
	return nil
}

// PutFile uploads a local file. The content type follows the file extension.
func (s *S3Store) PutFile(ctx context.Context, localPath, key string, metadata map[string]string) error {
	body, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", localPath, err)
	}
	return s.PutObject(ctx, key, body, contentTypeFor(localPath), metadata)
}

// List returns every object under prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", s.bucket, prefix, describe(err))
		}
		for _, obj := range page.Contents {
			objects = append(objects, Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

// RegionFromEndpoint extracts an "ru-N" region from the endpoint, or returns fallback.
func RegionFromEndpoint(endpoint, fallback string) string {
	if m := regionPattern.FindStringSubmatch(endpoint); m != nil {
		return "ru-" + m[1]
	}
	return fallback
}

// ObjectKey builds "<prefix><YYYYMMDD_HHMMSS>_<name>".
func ObjectKey(prefix, name string, now time.Time) string {
	return prefix + now.Format(keyTimeLayout) + "_" + name
}

func contentTypeFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return ContentTypeCSV
	}
	return ContentTypeBinary
}

// describe keeps the API error code visible in wrapped messages.
func describe(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", apiErr.ErrorCode(), err)
	}
	return err
}
