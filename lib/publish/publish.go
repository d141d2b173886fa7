// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package publish uploads build outputs to an S3-compatible bucket.
//
// Each build is stored under <prefix>/<build id>/<file name>, so
// successive builds never overwrite each other. The bucket is created
// on first use if it does not exist.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Stage is the pipeline stage name.
const Stage = "publish"

// Config describes the target bucket.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Client is the subset of *minio.Client the publisher uses.
type Client interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

var _ Client = (*minio.Client)(nil)

// NewClient connects to the configured endpoint with static
// credentials.
func NewClient(config Config) (*minio.Client, error) {
	endpoint := strings.TrimSpace(config.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("publish endpoint is required")
	}
	if config.AccessKey == "" || config.SecretKey == "" {
		return nil, fmt.Errorf("publish access key and secret key are required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: region(config),
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client for %s: %w", endpoint, err)
	}
	return client, nil
}

func region(config Config) string {
	if r := strings.TrimSpace(config.Region); r != "" {
		return r
	}
	return "us-east-1"
}

// Publisher uploads files for one build.
type Publisher struct {
	Client Client
	Config Config
	Logger *slog.Logger
}

// Publish uploads every file and returns the object keys in argument
// order.
func (p *Publisher) Publish(ctx context.Context, buildID string, files []string) ([]string, error) {
	bucket := strings.TrimSpace(p.Config.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("publish bucket is required")
	}
	if strings.TrimSpace(buildID) == "" {
		return nil, fmt.Errorf("build id is required")
	}

	exists, err := p.Client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := p.Client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region(p.Config)}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", bucket, err)
		}
	}

	keys := make([]string, 0, len(files))
	for _, file := range files {
		key := ObjectKey(p.Config.Prefix, buildID, filepath.Base(file))
		info, err := p.Client.FPutObject(ctx, bucket, key, file, minio.PutObjectOptions{
			ContentType: contentType(file),
		})
		if err != nil {
			return nil, fmt.Errorf("uploading %s to %s/%s: %w", file, bucket, key, err)
		}
		if p.Logger != nil {
			p.Logger.Info("published", "bucket", bucket, "key", key, "size", info.Size)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ObjectKey joins the key prefix, build ID and file name.
func ObjectKey(prefix, buildID, name string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return path.Join(buildID, name)
	}
	return path.Join(prefix, buildID, name)
}

func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".iso":
		return "application/x-iso9660-image"
	case ".cbor":
		return "application/cbor"
	}
	return "application/octet-stream"
}
