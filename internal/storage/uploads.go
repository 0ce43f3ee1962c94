package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

var ErrInvalidUpload = errors.New("invalid upload request")

// SignedUpload is a pre-signed PUT target and the public URL the object will have.
type SignedUpload struct {
	SignedURL string `json:"signedUrl"`
	FileURL   string `json:"fileUrl"`
}

// Signer issues pre-signed upload URLs.
type Signer interface {
	SignUpload(ctx context.Context, fileName, contentType string) (SignedUpload, error)
}

// S3Signer signs uploads into a single bucket under uploads/.
type S3Signer struct {
	presign putPresigner
	bucket  string
	region  string
	expiry  time.Duration
	timeout time.Duration
}

type putPresigner func(ctx context.Context, in *s3.PutObjectInput, expiry time.Duration) (string, error)

// S3Config holds what NewS3Signer needs. Empty keys use the default AWS
// credential chain.
type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Expiry    time.Duration
	Timeout   time.Duration
}

func NewS3Signer(ctx context.Context, cfg S3Config) (*S3Signer, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewPresignClient(s3.NewFromConfig(awsCfg))
	presign := func(ctx context.Context, in *s3.PutObjectInput, expiry time.Duration) (string, error) {
		req, err := client.PresignPutObject(ctx, in, s3.WithPresignExpires(expiry))
		if err != nil {
			return "", err
		}
		return req.URL, nil
	}
	return newS3Signer(presign, cfg), nil
}

func newS3Signer(presign putPresigner, cfg S3Config) *S3Signer {
	return &S3Signer{
		presign: presign,
		bucket:  cfg.Bucket,
		region:  cfg.Region,
		expiry:  cfg.Expiry,
		timeout: cfg.Timeout,
	}
}

// SignUpload returns a URL the client can PUT the file to. The object key is
// random; only the extension of fileName is kept.
func (s *S3Signer) SignUpload(ctx context.Context, fileName, contentType string) (SignedUpload, error) {
	fileName, contentType = strings.TrimSpace(fileName), strings.TrimSpace(contentType)
	if fileName == "" || contentType == "" {
		return SignedUpload{}, fmt.Errorf("%w: fileName and fileType are required", ErrInvalidUpload)
	}

	key := "uploads/" + uuid.NewString() + path.Ext(fileName)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	signed, err := s.presign(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	}, s.expiry)
	if err != nil {
		return SignedUpload{}, fmt.Errorf("presign upload: %w", err)
	}

	return SignedUpload{
		SignedURL: signed,
		FileURL:   fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key),
	}, nil
}
