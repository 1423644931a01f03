// Package s3 implements store.Store on an S3-compatible bucket (AWS S3 or
// MinIO). All keys live under an optional prefix inside a single bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/caarlos0/env/v11"

	"github.com/zjrosen/layerforge/internal/log"
	"github.com/zjrosen/layerforge/internal/store"
)

// Config holds construction parameters. ConfigFromEnv fills it from:
//
//	LAYERFORGE_S3_BUCKET      bucket name (required)
//	LAYERFORGE_S3_REGION      region (default us-east-1)
//	LAYERFORGE_S3_ENDPOINT    custom endpoint, e.g. MinIO
//	LAYERFORGE_S3_PREFIX      key prefix for the collection
//	LAYERFORGE_S3_PATH_STYLE  true for path-style addressing
//
// Credentials come from the default AWS chain.
type Config struct {
	Bucket    string `env:"LAYERFORGE_S3_BUCKET"`
	Region    string `env:"LAYERFORGE_S3_REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"LAYERFORGE_S3_ENDPOINT"`
	Prefix    string `env:"LAYERFORGE_S3_PREFIX"`
	PathStyle bool   `env:"LAYERFORGE_S3_PATH_STYLE"`
}

// ConfigFromEnv parses Config from the process environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse s3 env: %w", err)
	}
	return cfg, nil
}

// Store is the S3 backend.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ store.Store = (*Store)(nil)

// New creates a store from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required (LAYERFORGE_S3_BUCKET)")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket, prefix: normalizePrefix(cfg.Prefix)}, nil
}

// OpenFromEnv builds a store from ConfigFromEnv.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func (s *Store) Driver() store.Driver { return store.DriverS3 }

func (s *Store) objectKey(key string) string { return s.prefix + key }

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts store.PutOptions) (store.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return store.Info{}, err
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return store.Info{}, fmt.Errorf("put %s: %w", key, err)
	}
	log.Debug(log.CatStore, "Uploaded object", "bucket", s.bucket, "key", s.objectKey(key), "size", len(data))
	return store.Info{Key: key, Size: int64(len(data)), ContentType: opts.ContentType}, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(s.objectKey(key))})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, key)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return out.Body, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]store.Info, error) {
	var infos []store.Info
	var token *string
	full := s.objectKey(prefix)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(full),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			infos = append(infos, store.Info{
				Key:          strings.TrimPrefix(aws.ToString(obj.Key), s.prefix),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(s.objectKey(key))})
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return true, nil
}

// Reset deletes every object under the prefix.
func (s *Store) Reset(ctx context.Context) error {
	infos, err := s.List(ctx, "")
	if err != nil {
		return err
	}
	for _, info := range infos {
		if _, err := s.Delete(ctx, info.Key); err != nil {
			return err
		}
	}
	log.Debug(log.CatStore, "Reset bucket prefix", "bucket", s.bucket, "prefix", s.prefix, "deleted", len(infos))
	return nil
}

func isNotFound(err error) bool {
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
