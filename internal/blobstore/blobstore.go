// Package blobstore implements the Snapshot Store (spec §4.5): an
// S3-compatible object store for compacted CRDT snapshots, via
// minio-go. Snapshots are best-effort — callers must remain correct
// via full Update Log replay when the store is unavailable or
// unconfigured (see Enabled).
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go"
	"github.com/rs/zerolog"

	"github.com/collabhub/server/internal/apperr"
)

// Config configures the underlying S3 client.
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Store puts and gets snapshot blobs.
type Store struct {
	client *minio.Client
	bucket string
	log    zerolog.Logger
}

// New constructs a Store. Returns (nil, nil) when cfg is the zero
// value, signaling snapshots are disabled rather than misconfigured.
func New(cfg Config, log zerolog.Logger) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, nil
	}

	client, err := minio.New(cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.UseSSL)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "construct blob client", err)
	}

	return &Store{client: client, bucket: cfg.Bucket, log: log.With().Str("component", "blobstore").Logger()}, nil
}

// Key derives the deterministic object key for a document snapshot.
func Key(docID string, seq int64) string {
	return fmt.Sprintf("docs/%s/snapshots/%d.bin", docID, seq)
}

// Put uploads a snapshot and returns its storage key.
func (s *Store) Put(ctx context.Context, docID string, seq int64, data []byte) (string, error) {
	key := Key(docID, seq)

	_, err := s.client.PutObjectWithContext(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", apperr.Wrap(apperr.Transient, "put snapshot", err)
	}

	return key, nil
}

// ErrNotFound is returned by Get when the object does not exist.
var ErrNotFound = apperr.New(apperr.NotFound, "snapshot not found")

// Get downloads a snapshot's bytes.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObjectWithContext(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "get snapshot", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil, ErrNotFound
		}

		return nil, apperr.Wrap(apperr.Transient, "read snapshot", err)
	}

	return data, nil
}

// Remove deletes a snapshot object, used by opportunistic retention
// pruning. Failures are non-fatal to the caller by convention (old
// snapshot accumulation is a storage cost, not a correctness issue).
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(s.bucket, key); err != nil {
		return apperr.Wrap(apperr.Transient, "remove snapshot", err)
	}

	return nil
}

// EnsureBucket creates the bucket if it doesn't already exist.
func (s *Store) EnsureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(s.bucket)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "check bucket", err)
	}

	if exists {
		return nil
	}

	if err := s.client.MakeBucket(s.bucket, region); err != nil {
		return apperr.Wrap(apperr.Transient, "create bucket", err)
	}

	return nil
}
