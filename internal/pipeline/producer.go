package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mvp-joe/project-atlas/internal/indexer"
)

// GroupName is the consumer group every atlas consumer joins.
const GroupName = "indexers"

// StreamKey returns the per-repository stream name.
func StreamKey(repository string) string {
	return "index:stream:" + repository
}

// ProgressKey returns the per-repository progress hash name.
func ProgressKey(repository string) string {
	return "index:progress:" + repository
}

// Producer stages uploaded files on disk and appends batch messages to the
// repository stream. Consumers hand the staged paths straight to worker
// subprocesses, so file content never rides through Redis.
type Producer struct {
	rdb        *redis.Client
	stagingDir string
	batchSize  int
	logger     *zap.Logger
}

func NewProducer(rdb *redis.Client, stagingDir string, batchSize int, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stagingDir == "" {
		stagingDir = filepath.Join(os.TempDir(), "atlas-staging")
	}
	return &Producer{rdb: rdb, stagingDir: stagingDir, batchSize: batchSize, logger: logger}
}

// EnqueueResult reports what one upload produced.
type EnqueueResult struct {
	UploadID   string `json:"upload_id"`
	Repository string `json:"repository"`
	TotalFiles int    `json:"total_files"`
	Batches    int    `json:"batches"`
}

// Enqueue validates the upload, stages contents under
// <staging>/<upload-id>/, ensures the consumer group exists, resets the
// progress hash, and appends one message per batch.
func (p *Producer) Enqueue(ctx context.Context, repository string, files []indexer.FileInput) (*EnqueueResult, error) {
	if err := indexer.ValidateRepositoryName(repository); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("upload has no files")
	}

	uploadID := uuid.NewString()
	uploadDir := filepath.Join(p.stagingDir, uploadID)

	staged := make([]string, 0, len(files))
	for _, f := range files {
		if err := indexer.ValidateFile(f.Path, f.Content); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		dest := filepath.Join(uploadDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return nil, fmt.Errorf("staging %s: %w", f.Path, err)
		}
		if err := os.WriteFile(dest, []byte(f.Content), 0644); err != nil {
			return nil, fmt.Errorf("staging %s: %w", f.Path, err)
		}
		staged = append(staged, dest)
	}

	stream := StreamKey(repository)
	if err := EnsureGroup(ctx, p.rdb, stream); err != nil {
		return nil, err
	}

	if err := resetProgress(ctx, p.rdb, repository, len(files)); err != nil {
		return nil, err
	}

	batches := splitBatches(staged, p.batchSize)
	for i, batch := range batches {
		payload, err := json.Marshal(batch)
		if err != nil {
			return nil, err
		}
		err = p.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			Values: map[string]any{
				"upload_id":  uploadID,
				"repository": repository,
				"batch":      i + 1,
				"files":      string(payload),
			},
		}).Err()
		if err != nil {
			return nil, fmt.Errorf("appending batch %d: %w", i+1, err)
		}
	}

	p.logger.Info("upload enqueued",
		zap.String("upload_id", uploadID),
		zap.String("repository", repository),
		zap.Int("files", len(files)),
		zap.Int("batches", len(batches)))

	return &EnqueueResult{
		UploadID:   uploadID,
		Repository: repository,
		TotalFiles: len(files),
		Batches:    len(batches),
	}, nil
}

// Cleanup removes one upload's staged files.
func (p *Producer) Cleanup(uploadID string) error {
	if uploadID == "" || strings.ContainsAny(uploadID, "/\\") {
		return fmt.Errorf("invalid upload id %q", uploadID)
	}
	return os.RemoveAll(filepath.Join(p.stagingDir, uploadID))
}

// NewClient opens a Redis connection for stream work. Consumers block for
// seconds per read, so they get their own client instead of sharing the
// cache pool.
func NewClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// EnsureGroup creates the consumer group from the stream head, tolerating
// both an existing group and an existing stream.
func EnsureGroup(ctx context.Context, rdb *redis.Client, stream string) error {
	err := rdb.XGroupCreateMkStream(ctx, stream, GroupName, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group on %s: %w", stream, err)
	}
	return nil
}

// splitBatches chops files into batchSize groups, preserving order.
func splitBatches(files []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}
	var batches [][]string
	for start := 0; start < len(files); start += batchSize {
		end := start + batchSize
		if end > len(files) {
			end = len(files)
		}
		batches = append(batches, files[start:end])
	}
	return batches
}
