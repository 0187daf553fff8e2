package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/voltgrid/receipt-engine/common"
)

// S3Config holds the connection settings for an S3-compatible store.
// Endpoint and PathStyle support MinIO and Hetzner object storage in
// addition to AWS itself.
type S3Config struct {
	Endpoint   string
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	PathStyle  bool
	MaxRetries int
	Logger     *logrus.Logger
}

// S3Store implements ObjectStore against an S3-compatible endpoint.
type S3Store struct {
	client    *s3.Client
	uploader  *manager.Uploader
	presigner *s3.PresignClient
	bucket    string
	log       *logrus.Logger
}

// NewS3Store builds an S3-backed ObjectStore. Credentials are static;
// the standard retryer is capped at MaxRetries attempts (default 3).
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, &common.ConfigError{Param: "bucket", Msg: "must not be empty"}
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), maxRetries)
		}),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts,
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:               cfg.Endpoint,
						SigningRegion:     region,
						HostnameImmutable: true, // important for MinIO
					}, nil
				})))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, &common.StorageError{Op: "configure", Err: err}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		o.HTTPClient = &http.Client{}
	})

	log := cfg.Logger
	if log == nil {
		log = common.Logger
	}

	return &S3Store{
		client:    client,
		uploader:  manager.NewUploader(client),
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		log:       log,
	}, nil
}

// Put uploads body to key. The managed uploader splits large PDFs into
// multipart uploads transparently.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return &common.StorageError{Op: "put", Key: key, Err: err}
	}
	s.log.WithFields(logrus.Fields{
		"op":   "put",
		"key":  key,
		"size": humanize.Bytes(uint64(len(body))),
	}).Debug("object stored")
	return nil
}

// Get retrieves the full object at key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, &common.NotFoundError{Key: key}
		}
		return nil, &common.StorageError{Op: "get", Key: key, Err: err}
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &common.StorageError{Op: "get", Key: key, Err: err}
	}
	return body, nil
}

// Delete removes the object at key. S3 treats deletion of an absent key
// as success, which matches the rollback manager's needs.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return &common.StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// List returns every key under prefix, following continuation tokens.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &common.StorageError{Op: "list", Key: prefix, Err: err}
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Select runs the expression against the gzip-compressed NDJSON object
// at key via S3 Select and returns the concatenated matched records.
// Every failure, including vendor-specific rejections of the dialect,
// surfaces as a PushdownError so the caller can fall back.
func (s *S3Store) Select(ctx context.Context, key, expression string) ([]byte, error) {
	out, err := s.client.SelectObjectContent(ctx, &s3.SelectObjectContentInput{
		Bucket:         aws.String(s.bucket),
		Key:            aws.String(key),
		Expression:     aws.String(expression),
		ExpressionType: types.ExpressionTypeSql,
		InputSerialization: &types.InputSerialization{
			JSON:            &types.JSONInput{Type: types.JSONTypeLines},
			CompressionType: types.CompressionTypeGzip,
		},
		OutputSerialization: &types.OutputSerialization{
			JSON: &types.JSONOutput{},
		},
	})
	if err != nil {
		return nil, &common.PushdownError{Key: key, Err: err}
	}

	stream := out.GetStream()
	defer stream.Close()

	var buf bytes.Buffer
	for event := range stream.Events() {
		if records, ok := event.(*types.SelectObjectContentEventStreamMemberRecords); ok {
			buf.Write(records.Value.Payload)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, &common.PushdownError{Key: key, Err: err}
	}
	return buf.Bytes(), nil
}

// PresignGet issues a presigned GET URL for key. The response content
// type is forced to application/pdf so browsers render rather than
// download raw octets.
func (s *S3Store) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = DefaultPresignTTL
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:              aws.String(s.bucket),
		Key:                 aws.String(key),
		ResponseContentType: aws.String("application/pdf"),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", &common.StorageError{Op: "presign", Key: key, Err: err}
	}
	return req.URL, nil
}

func isNoSuchKey(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}
