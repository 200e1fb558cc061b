// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package kvstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/onfeat/fetchcore/pkg/fstore"
)

// S3Config configures an S3Store.
type S3Config struct {
	Kind            string `json:"kind"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	Region          string `json:"region"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
}

// S3Store is a batch-only Store: every object under "<prefix>/<dataset>/<key>"
// is treated as the single most-recent TimedValue for that key, with the
// object's metadata carrying the storage timestamp. Streaming datasets get
// no special handling: a streaming read resolves to at most one object in
// the same way. FetchGroupBys does not know which Store backs it, so it
// still issues streaming reads for temporal feature sets.
type S3Store struct {
	bucket string
	prefix string
	client *s3.Client
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("kvstore: loading aws config: %w", err)
	}

	return &S3Store{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		client: s3.NewFromConfig(awsCfg),
	}, nil
}

func (s *S3Store) objectKey(dataset string, keyBytes []byte) string {
	encoded := fmt.Sprintf("%x", keyBytes)
	if s.prefix == "" {
		return fmt.Sprintf("%s/%s", dataset, encoded)
	}
	return fmt.Sprintf("%s/%s/%s", s.prefix, dataset, encoded)
}

func (s *S3Store) MultiGet(ctx context.Context, reqs []fstore.GetRequest) ([]fstore.GetResponse, error) {
	out := make([]fstore.GetResponse, len(reqs))
	for i, req := range reqs {
		out[i] = s.get(ctx, req)
	}
	return out, nil
}

func (s *S3Store) get(ctx context.Context, req fstore.GetRequest) fstore.GetResponse {
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    strPtr(s.objectKey(req.Dataset, req.KeyBytes)),
	})
	if err != nil {
		// Absence is not an error at this layer: a missing object is a
		// legal empty GetResponse, matching any key never written.
		return fstore.GetResponse{Request: req}
	}
	defer obj.Body.Close()

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, obj.Body); err != nil {
		return fstore.GetResponse{Request: req, Err: fmt.Errorf("kvstore: reading s3 object: %w", err)}
	}

	millis := int64(0)
	if obj.LastModified != nil {
		millis = obj.LastModified.UnixMilli()
	}
	return fstore.GetResponse{
		Request: req,
		Values:  []fstore.TimedValue{{Bytes: buf.Bytes(), Millis: millis}},
	}
}

func strPtr(s string) *string { return &s }
