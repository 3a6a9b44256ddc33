package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrijs2005/keepershare/internal/common"
)

// s3API is the subset of *s3.Client used by S3Store.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Options configures an S3-compatible (AWS, MinIO) bucket used as a Store.
type S3Options struct {
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	BaseEndpoint string
	// Prefix is prepended to every object key, e.g. "keepershare/".
	Prefix string
}

// S3Store implements Store on an object-storage bucket. Compare-and-swap uses
// conditional writes (If-Match / If-None-Match on the object ETag). A delete
// through CompareAndSwap first overwrites the object with an empty tombstone
// under If-Match and then removes it; empty objects are treated as absent.
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Store builds an S3 client from static credentials and opts.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config error: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, opts.Bucket, opts.Prefix), nil
}

func newS3Store(client s3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) objectKey(key string) *string {
	return aws.String(s.prefix + key)
}

// read returns the object body and ETag; a missing or tombstoned object
// yields common.ErrorNotFound together with the tombstone ETag if any.
func (s *S3Store) read(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: s.objectKey(key)})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", common.ErrorNotFound
		}
		return nil, "", fmt.Errorf("s3 get error: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("s3 read error: %w", err)
	}
	etag := aws.ToString(out.ETag)
	if len(body) == 0 {
		return nil, etag, common.ErrorNotFound
	}
	return body, etag, nil
}

func (s *S3Store) put(ctx context.Context, key string, value []byte, ifMatch, ifNoneMatch *string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         s.objectKey(key),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/octet-stream"),
		IfMatch:     ifMatch,
		IfNoneMatch: ifNoneMatch,
	})
	return err
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	body, _, err := s.read(ctx, key)
	return body, err
}

func (s *S3Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.put(ctx, key, value, nil, nil); err != nil {
		return fmt.Errorf("s3 put error: %w", err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: s.objectKey(key)})
	if err != nil {
		return fmt.Errorf("s3 delete error: %w", err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + prefix),
	})

	keys := make([]string, 0)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list error: %w", err)
		}
		for _, obj := range page.Contents {
			if aws.ToInt64(obj.Size) == 0 {
				continue
			}
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s.prefix))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *S3Store) CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error) {
	cur, etag, err := s.read(ctx, key)
	exists := err == nil
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return false, err
	}

	if old == nil {
		if exists {
			return false, nil
		}
		if new == nil {
			return true, nil
		}
		// A leftover tombstone still occupies the key, so match on its ETag.
		var ifMatch, ifNoneMatch *string
		if etag != "" {
			ifMatch = aws.String(etag)
		} else {
			ifNoneMatch = aws.String("*")
		}
		return s.conditional(s.put(ctx, key, new, ifMatch, ifNoneMatch))
	}

	if !exists || !bytes.Equal(cur, old) {
		return false, nil
	}

	if new != nil {
		return s.conditional(s.put(ctx, key, new, aws.String(etag), nil))
	}

	ok, err := s.conditional(s.put(ctx, key, []byte{}, aws.String(etag), nil))
	if !ok || err != nil {
		return ok, err
	}
	return true, s.Delete(ctx, key)
}

// conditional maps a conditional-write failure to (false, nil).
func (s *S3Store) conditional(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return false, nil
		}
	}
	return false, fmt.Errorf("s3 put error: %w", err)
}
