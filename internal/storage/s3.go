package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// objectAPI is the subset of the S3 client used here.
type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Client downloads uploaded study material, decrypting it when it was stored encrypted.
type S3Client struct {
	client   objectAPI
	password string
	maxBytes int64
}

// Options configures NewS3Client. Endpoint is for S3-compatible stores (path-style addressing).
type Options struct {
	Region   string
	Endpoint string
	Password string
	MaxBytes int64
}

// ObjectInfo describes a downloaded object.
type ObjectInfo struct {
	Name        string
	ContentType string
	Size        int64
	Encrypted   bool
}

func NewS3Client(ctx context.Context, opts Options) (*S3Client, error) {
	var loaders []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, awscfg.WithRegion(opts.Region))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Client(cli, opts), nil
}

func newS3Client(api objectAPI, opts Options) *S3Client {
	return &S3Client{client: api, password: opts.Password, maxBytes: opts.MaxBytes}
}

// Download reads bucket/key. Objects carrying the encryption magic are decrypted with the
// configured password.
func (s *S3Client) Download(ctx context.Context, bucket, key string) ([]byte, *ObjectInfo, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}
	defer result.Body.Close()

	var body io.Reader = result.Body
	if s.maxBytes > 0 {
		body = io.LimitReader(result.Body, s.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read s3 object: %w", err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, nil, fmt.Errorf("s3 object %s exceeds %d bytes", key, s.maxBytes)
	}

	info := &ObjectInfo{Name: key[strings.LastIndex(key, "/")+1:], Size: int64(len(data))}
	if result.ContentType != nil {
		info.ContentType = *result.ContentType
	}
	for k, v := range result.Metadata {
		if strings.EqualFold(k, "name") && v != "" {
			info.Name = v
		}
	}

	if IsEncrypted(data) {
		if s.password == "" {
			return nil, nil, fmt.Errorf("s3 object %s is encrypted and no password is configured", key)
		}
		plain, err := DecryptGCM(data, s.password)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decrypt data: %w", err)
		}
		data = plain
		info.Encrypted = true
		info.Size = int64(len(data))
	}

	log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Str("name", info.Name).
		Bool("encrypted", info.Encrypted).
		Int64("size", info.Size).
		Msg("downloaded object from s3")
	return data, info, nil
}

// Ping checks that bucket exists and is reachable with the configured credentials.
func (s *S3Client) Ping(ctx context.Context, bucket string) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", bucket, err)
	}
	return nil
}
