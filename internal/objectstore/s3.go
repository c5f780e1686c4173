package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Config configures the S3 client. Endpoint is set for MinIO and other S3
// compatible services, which usually also need PathStyle.
type S3Config struct {
	Endpoint   string
	Region     string
	AccessKey  string
	SecretKey  string
	PathStyle  bool
	DisableSSL bool
}

// awsConfig converts the settings into an SDK config. Without static keys
// the default credential chain applies.
func (c S3Config) awsConfig() *aws.Config {
	cfg := &aws.Config{
		Region:           aws.String(c.Region),
		S3ForcePathStyle: aws.Bool(c.PathStyle),
		DisableSSL:       aws.Bool(c.DisableSSL),
	}
	if c.Endpoint != "" {
		cfg.Endpoint = aws.String(c.Endpoint)
	}
	if c.AccessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(c.AccessKey, c.SecretKey, "")
	}
	return cfg
}

// S3Store stores objects in one S3 bucket.
type S3Store struct {
	bucket     string
	client     *s3.S3
	downloader *s3manager.Downloader
	uploader   *s3manager.Uploader
}

// NewS3Store creates a store for bucket.
func NewS3Store(bucket string, cfg S3Config) (*S3Store, error) {
	sess, err := session.NewSession(cfg.awsConfig())
	if err != nil {
		return nil, fmt.Errorf("NewS3Store: create aws session: %w", err)
	}

	return &S3Store{
		bucket:     bucket,
		client:     s3.New(sess),
		downloader: s3manager.NewDownloader(sess),
		uploader:   s3manager.NewUploader(sess),
	}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	buf := &aws.WriteAtBuffer{}
	_, err := s.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("download s3://%s/%s: %w", s.bucket, key, err)
	}
	return buf.Bytes(), nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(asPrefix(prefix)),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, prefix, err)
	}
	return keys, nil
}

func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) error {
	if err := checkPrefix(prefix); err != nil {
		return err
	}
	iter := s3manager.NewDeleteListIterator(s.client, &s3.ListObjectsInput{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(asPrefix(prefix)),
	})
	if err := s3manager.NewBatchDeleteWithClient(s.client).Delete(ctx, iter); err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", s.bucket, prefix, err)
	}
	return nil
}

func (s *S3Store) Close() error { return nil }
