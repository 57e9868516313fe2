package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/snd-ksa/docmigrate/internal/logger"
)

// S3Config configures the S3-compatible target store.
type S3Config struct {
	Endpoint        string // e.g. https://minio.example.com; empty uses AWS
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool // required by MinIO and most self-hosted stores

	// HTTPClient overrides the SDK transport; tests inject httpmock here.
	HTTPClient *http.Client
}

// S3Client implements Client on aws-sdk-go-v2.
type S3Client struct {
	api *s3.Client
	log logger.Logger
}

var _ Client = (*S3Client)(nil)

// NewS3Client builds an S3 client from explicit credentials. Nothing is read
// from the process environment beyond what cfg carries.
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(cfg.HTTPClient))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(strings.TrimRight(cfg.Endpoint, "/"))
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{
		api: api,
		log: GetLogger().Module("s3"),
	}, nil
}

// Exists reports whether bucket/key is present.
func (c *S3Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.Stat(ctx, bucket, key)
	switch {
	case err == nil:
		return true, nil
	case IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// Stat issues HeadObject.
func (c *S3Client) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return ObjectInfo{}, notFound(bucket, key)
		}
		return ObjectInfo{}, storageError(err, "stat", bucket, key)
	}

	return ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// Get downloads the object into memory.
func (c *S3Client) Get(ctx context.Context, bucket, key string) (*Object, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, notFound(bucket, key)
		}
		return nil, storageError(err, "get", bucket, key)
	}
	defer func() {
		if cerr := out.Body.Close(); cerr != nil {
			c.log.Debug("failed to close object body", logger.String("key", key), logger.Error(cerr))
		}
	}()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, storageError(err, "read", bucket, key)
	}

	return &Object{
		Data:        data,
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
	}, nil
}

// Put uploads data with the given content type.
func (c *S3Client) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (ObjectInfo, error) {
	contentType = ContentTypeFor(key, contentType)

	out, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return ObjectInfo{}, storageError(err, "put", bucket, key)
	}

	c.log.Debug("object uploaded",
		logger.String("bucket", bucket),
		logger.String("key", key),
		logger.Int("bytes", len(data)))

	return ObjectInfo{
		Bucket:      bucket,
		Key:         key,
		Size:        int64(len(data)),
		ETag:        aws.ToString(out.ETag),
		ContentType: contentType,
	}, nil
}

// Copy performs a server-side CopyObject.
func (c *S3Client) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	_, err := c.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(srcBucket, srcKey)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return notFound(srcBucket, srcKey)
		}
		return storageError(err, "copy", dstBucket, dstKey)
	}
	return nil
}

// Delete removes the object. S3 reports success for missing keys.
func (c *S3Client) Delete(ctx context.Context, bucket, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return storageError(err, "delete", bucket, key)
	}
	return nil
}

// List pages through ListObjectsV2 for prefix.
func (c *S3Client) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	var objects []ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, storageError(err, "list", bucket, prefix)
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Bucket:       bucket,
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         aws.ToString(obj.ETag),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	return objects, nil
}

// copySource builds the URL-encoded "bucket/key" CopySource value,
// escaping each key segment but keeping the separators.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}
