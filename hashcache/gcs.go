package hashcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
)

// entry is the JSON object stored per feed URL.
type entry struct {
	URL       string    `json:"url"`
	Digest    string    `json:"digest"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GCSStore keeps one digest object per key in a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
	now    func() time.Time
}

// NewGCSStore creates a bucket-backed store.
func NewGCSStore(client *storage.Client, bucket string, logger *slog.Logger) *GCSStore {
	return &GCSStore{
		client: client,
		bucket: bucket,
		logger: logger,
		now:    time.Now,
	}
}

// ObjectKey maps a feed URL to a stable object name.
func ObjectKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("hash-%s.json", hex.EncodeToString(sum[:]))
}

// Get returns the digest stored for key.
func (s *GCSStore) Get(ctx context.Context, key string) (string, bool, error) {
	object := ObjectKey(key)

	var data []byte
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					return retry.Unrecoverable(openErr)
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying hash load after error", "attempt", n, "object", object, "error", retryErr)
		}),
	)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load after retries: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return "", false, fmt.Errorf("unmarshal hash entry %s: %w", object, err)
	}
	return e.Digest, true, nil
}

// Put stores digest for key.
func (s *GCSStore) Put(ctx context.Context, key, digest string) error {
	object := ObjectKey(key)
	data, err := json.Marshal(entry{URL: key, Digest: digest, UpdatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal hash entry: %w", err)
	}

	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying hash save after error", "attempt", n, "object", object, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	s.logger.Debug("Hash saved to bucket", "bucket", s.bucket, "object", object)
	return nil
}
