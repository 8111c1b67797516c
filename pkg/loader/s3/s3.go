package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"

	"github.com/OFFIS-RIT/lexgraph/pkg/loader"
)

// objectGetter is the part of *s3.Client the loader needs.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3FileLoader loads chunk files from S3 or S3-compatible storage.
// Locations without a bucket are read from the default bucket.
type S3FileLoader struct {
	bucket string
	client objectGetter

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewS3FileLoaderWithClient reuses a configured client, e.g. the one built
// by internal/storage.
func NewS3FileLoaderWithClient(bucket string, client *s3.Client) *S3FileLoader {
	return newLoader(bucket, client)
}

func newLoader(bucket string, client objectGetter) *S3FileLoader {
	return &S3FileLoader{
		bucket: bucket,
		client: client,
		cache:  make(map[string][]byte),
	}
}

// NewS3FileLoaderParams configures a loader with static credentials.
// Endpoint overrides the S3 endpoint for S3-compatible storage such as
// MinIO.
type NewS3FileLoaderParams struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3FileLoader creates an S3FileLoader with its own client.
//
// Example:
//
//	l, err := s3.NewS3FileLoader(ctx, s3.NewS3FileLoaderParams{
//		Bucket:    "chunks",
//		Endpoint:  "http://localhost:9000",
//		Region:    "eu-central-1",
//		AccessKey: os.Getenv("AWS_ACCESS_KEY"),
//		SecretKey: os.Getenv("AWS_SECRET_KEY"),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	chunks, err := loader.LoadChunks(ctx, l, "s3://chunks/gazzetta/2024.jsonl")
func NewS3FileLoader(ctx context.Context, params NewS3FileLoaderParams) (*S3FileLoader, error) {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(params.Region),
		config.WithBaseEndpoint(params.Endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return newLoader(params.Bucket, client), nil
}

// GetFileText downloads the object behind loc. Results are cached per
// bucket and key.
func (l *S3FileLoader) GetFileText(ctx context.Context, loc loader.Location) ([]byte, error) {
	bucket := loc.Bucket
	if bucket == "" {
		bucket = l.bucket
	}
	if bucket == "" {
		return nil, fmt.Errorf("no bucket for %s", loc.Path)
	}
	cacheKey := bucket + "/" + loc.Path

	l.cacheMu.RLock()
	if cached, ok := l.cache[cacheKey]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(cacheKey, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[cacheKey]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(loc.Path),
		})
		if err != nil {
			return nil, fmt.Errorf("get object %s: %w", cacheKey, err)
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, fmt.Errorf("read object %s: %w", cacheKey, err)
		}

		byts := buf.Bytes()

		l.cacheMu.Lock()
		l.cache[cacheKey] = byts
		l.cacheMu.Unlock()

		return byts, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
