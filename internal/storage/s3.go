package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrUnsupportedImage is returned for uploads that are not jpeg, png, gif or webp
var ErrUnsupportedImage = errors.New("unsupported image type")

// ImageUploader stores post images and returns their public URL
type ImageUploader interface {
	UploadPostImage(ctx context.Context, data []byte, userID string) (*UploadResult, error)
}

// ObjectAPI is the part of the S3 client the uploader needs
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Uploader handles image uploads to AWS S3
type S3Uploader struct {
	client  ObjectAPI
	bucket  string
	region  string
	baseURL string
	now     func() time.Time
}

// UploadResult contains the result of an S3 upload
type UploadResult struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// NewS3Uploader creates an uploader using the default AWS credential chain
func NewS3Uploader(ctx context.Context, region, bucket, baseURL string) (*S3Uploader, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3UploaderWithClient(s3.NewFromConfig(cfg), region, bucket, baseURL), nil
}

// NewS3UploaderWithClient creates an uploader around an existing client.
// An empty baseURL falls back to the bucket's virtual-hosted endpoint.
func NewS3UploaderWithClient(client ObjectAPI, region, bucket, baseURL string) *S3Uploader {
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &S3Uploader{
		client:  client,
		bucket:  bucket,
		region:  region,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		now:     time.Now,
	}
}

// UploadPostImage sniffs the image type and stores it under
// post-images/{year}/{month}/{userID}/{uuid}.{ext}
func (u *S3Uploader) UploadPostImage(ctx context.Context, data []byte, userID string) (*UploadResult, error) {
	contentType := http.DetectContentType(data)
	ext, ok := imageExtension(contentType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, contentType)
	}

	now := u.now().UTC()
	key := fmt.Sprintf("post-images/%d/%02d/%s/%s%s", now.Year(), now.Month(), userID, uuid.New().String(), ext)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(u.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("max-age=31536000"),
		Metadata: map[string]string{
			"uploaded-by": userID,
			"file-type":   "post-image",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}

	return &UploadResult{
		Key:         key,
		URL:         u.baseURL + "/" + key,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

// CheckBucketAccess verifies that we can access the S3 bucket
func (u *S3Uploader) CheckBucketAccess(ctx context.Context) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(u.bucket),
	})
	if err != nil {
		return fmt.Errorf("cannot access S3 bucket %s: %w", u.bucket, err)
	}
	return nil
}

func imageExtension(contentType string) (string, bool) {
	switch contentType {
	case "image/jpeg":
		return ".jpg", true
	case "image/png":
		return ".png", true
	case "image/gif":
		return ".gif", true
	case "image/webp":
		return ".webp", true
	default:
		return "", false
	}
}
