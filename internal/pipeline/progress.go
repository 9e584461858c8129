package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Progress hash fields.
const (
	fieldTotalFiles     = "total_files"
	fieldProcessedFiles = "processed_files"
	fieldFailedFiles    = "failed_files"
	fieldCurrentBatch   = "current_batch"
	fieldStatus         = "status"
	fieldCompletedAt    = "completed_at"
)

// Progress statuses mirrored into the hash.
const (
	ProgressProcessing = "processing"
	ProgressCompleted  = "completed"
	ProgressError      = "error"
)

// progressTTL keeps finished hashes around long enough to poll, without
// leaking keys for repositories nobody asks about again.
const progressTTL = 24 * time.Hour

// ProgressState is a decoded snapshot of the per-repository progress hash.
type ProgressState struct {
	TotalFiles     int    `json:"total_files"`
	ProcessedFiles int    `json:"processed_files"`
	FailedFiles    int    `json:"failed_files"`
	CurrentBatch   string `json:"current_batch,omitempty"`
	Status         string `json:"status"`
	CompletedAt    string `json:"completed_at,omitempty"`
}

// resetProgress initializes the hash for a fresh upload.
func resetProgress(ctx context.Context, rdb *redis.Client, repository string, totalFiles int) error {
	key := ProgressKey(repository)
	pipe := rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		fieldTotalFiles, totalFiles,
		fieldProcessedFiles, 0,
		fieldFailedFiles, 0,
		fieldStatus, ProgressProcessing,
	)
	pipe.Expire(ctx, key, progressTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// recordBatch applies one batch outcome with atomic increments.
func recordBatch(ctx context.Context, rdb *redis.Client, repository string, processed, failed int, batchLabel string) error {
	key := ProgressKey(repository)
	pipe := rdb.TxPipeline()
	if processed != 0 {
		pipe.HIncrBy(ctx, key, fieldProcessedFiles, int64(processed))
	}
	if failed != 0 {
		pipe.HIncrBy(ctx, key, fieldFailedFiles, int64(failed))
	}
	if batchLabel != "" {
		pipe.HSet(ctx, key, fieldCurrentBatch, batchLabel)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// setProgressStatus writes a terminal or intermediate status.
func setProgressStatus(ctx context.Context, rdb *redis.Client, repository, status string) error {
	key := ProgressKey(repository)
	fields := []any{fieldStatus, status}
	if status == ProgressCompleted || status == ProgressError {
		fields = append(fields, fieldCompletedAt, time.Now().UTC().Format(time.RFC3339))
	}
	return rdb.HSet(ctx, key, fields...).Err()
}

// ReadProgress returns the decoded progress hash; ok is false when no
// upload has touched the repository.
func ReadProgress(ctx context.Context, rdb *redis.Client, repository string) (ProgressState, bool, error) {
	raw, err := rdb.HGetAll(ctx, ProgressKey(repository)).Result()
	if err != nil {
		return ProgressState{}, false, err
	}
	if len(raw) == 0 {
		return ProgressState{}, false, nil
	}
	return ProgressState{
		TotalFiles:     atoiField(raw[fieldTotalFiles]),
		ProcessedFiles: atoiField(raw[fieldProcessedFiles]),
		FailedFiles:    atoiField(raw[fieldFailedFiles]),
		CurrentBatch:   raw[fieldCurrentBatch],
		Status:         raw[fieldStatus],
		CompletedAt:    raw[fieldCompletedAt],
	}, true, nil
}

func atoiField(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
