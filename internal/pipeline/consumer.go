package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mvp-joe/project-atlas/internal/graph"
)

// reclaimScanCount bounds how many pending entries one sweep inspects.
const reclaimScanCount = 10

// GraphBuilder rebuilds a repository's graph once its stream drains.
type GraphBuilder interface {
	Build(ctx context.Context, repository string, languages []string) (*graph.Stats, error)
}

// ConsumerConfig tunes one consumer. Zero durations keep the documented
// defaults.
type ConsumerConfig struct {
	Repository      string
	ConsumerID      string        // defaults to hostname-pid
	Block           time.Duration // XREADGROUP block, default 5s
	ReclaimInterval time.Duration // abandoned-message sweep cadence, default 60s
	ReclaimIdle     time.Duration // pending age before reclaim, default 10m
	MaxDeliveries   int64         // redeliveries before giving up, default 3
}

func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	if cfg.ConsumerID == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "atlas"
		}
		cfg.ConsumerID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = 60 * time.Second
	}
	if cfg.ReclaimIdle <= 0 {
		cfg.ReclaimIdle = 10 * time.Minute
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 3
	}
	return cfg
}

// Consumer pulls batch messages for one repository and runs each through a
// worker subprocess. A message is acknowledged only after the worker exits
// zero and the progress hash is updated; anything less leaves it pending
// for redelivery or the reclaim sweep.
type Consumer struct {
	rdb    *redis.Client
	runner BatchRunner
	graphs GraphBuilder
	logger *zap.Logger
	cfg    ConsumerConfig

	stream  string
	stopped atomic.Bool
	dirty   bool // batches processed since the last completion mark
}

func NewConsumer(rdb *redis.Client, runner BatchRunner, graphs GraphBuilder, cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Consumer{
		rdb:    rdb,
		runner: runner,
		graphs: graphs,
		logger: logger,
		cfg:    cfg,
		stream: StreamKey(cfg.Repository),
	}
}

// Stop requests a graceful exit: the in-flight batch finishes, progress is
// flushed, then Run returns.
func (c *Consumer) Stop() {
	c.stopped.Store(true)
}

// Run consumes until the context is canceled, Stop is called, or a
// critical worker failure occurs. Only the critical case returns an error.
func (c *Consumer) Run(ctx context.Context) error {
	if err := EnsureGroup(ctx, c.rdb, c.stream); err != nil {
		return err
	}

	reclaim := time.NewTicker(c.cfg.ReclaimInterval)
	defer reclaim.Stop()

	c.logger.Info("consumer started",
		zap.String("stream", c.stream),
		zap.String("consumer", c.cfg.ConsumerID))

	for {
		if c.stopped.Load() {
			c.logger.Info("consumer stopped", zap.String("stream", c.stream))
			return nil
		}

		select {
		case <-ctx.Done():
			c.logger.Info("consumer context canceled", zap.String("stream", c.stream))
			return nil
		case <-reclaim.C:
			if err := c.reclaimAbandoned(ctx); err != nil {
				if isShutdown(ctx, err) {
					return nil
				}
				var we *WorkerError
				if errors.As(err, &we) && we.Class.StopsConsumer() {
					return err
				}
				c.logger.Error("reclaim sweep failed", zap.Error(err))
			}
		default:
		}

		msgs, err := c.read(ctx)
		if err != nil {
			if isShutdown(ctx, err) {
				return nil
			}
			c.logger.Error("stream read failed", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		if len(msgs) == 0 {
			if err := c.maybeComplete(ctx); err != nil && !isShutdown(ctx, err) {
				c.logger.Error("completion handling failed", zap.Error(err))
			}
			continue
		}

		for _, msg := range msgs {
			if err := c.process(ctx, msg, 1); err != nil {
				if isShutdown(ctx, err) {
					return nil
				}
				return err
			}
		}
	}
}

// read pulls up to one fresh message, blocking up to the configured window.
func (c *Consumer) read(ctx context.Context) ([]redis.XMessage, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    GroupName,
		Consumer: c.cfg.ConsumerID,
		Streams:  []string{c.stream, ">"},
		Count:    1,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	return res[0].Messages, nil
}

// batchMessage is one decoded stream entry.
type batchMessage struct {
	UploadID   string
	Repository string
	Batch      string
	Files      []string
}

func (m batchMessage) label() string {
	return m.UploadID + "/" + m.Batch
}

func decodeMessage(values map[string]any) (batchMessage, error) {
	get := func(k string) string {
		v, _ := values[k].(string)
		return v
	}
	m := batchMessage{
		UploadID:   get("upload_id"),
		Repository: get("repository"),
		Batch:      get("batch"),
	}
	if m.Repository == "" {
		return m, fmt.Errorf("message missing repository field")
	}
	raw := get("files")
	if raw == "" {
		return m, fmt.Errorf("message missing files field")
	}
	if err := json.Unmarshal([]byte(raw), &m.Files); err != nil {
		return m, fmt.Errorf("files field not parseable: %w", err)
	}
	if len(m.Files) == 0 {
		return m, fmt.Errorf("message has an empty batch")
	}
	return m, nil
}

// process runs one message through the worker. The returned error is
// non-nil only when the consumer must stop.
func (c *Consumer) process(ctx context.Context, msg redis.XMessage, deliveries int64) error {
	batch, err := decodeMessage(msg.Values)
	if err != nil {
		// Poison message: will never become processable.
		c.logger.Error("dropping malformed message", zap.String("id", msg.ID), zap.Error(err))
		c.ack(ctx, msg.ID)
		return nil
	}

	if deliveries > c.cfg.MaxDeliveries {
		c.logger.Error("batch exceeded delivery limit",
			zap.String("id", msg.ID),
			zap.Int64("deliveries", deliveries),
			zap.Int("files", len(batch.Files)))
		if err := recordBatch(ctx, c.rdb, batch.Repository, 0, len(batch.Files), batch.label()); err != nil {
			return nil // keep pending; the next reclaim retries the bookkeeping
		}
		c.ack(ctx, msg.ID)
		c.dirty = true
		return nil
	}

	result, err := c.runner.Run(ctx, batch.Repository, batch.Files)
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down mid-batch: leave the message pending.
			return nil
		}
		we := AsWorkerError(err)
		switch {
		case we.Class.StopsConsumer():
			c.logger.Error("critical worker failure, stopping consumer",
				zap.String("id", msg.ID), zap.Error(we))
			_ = setProgressStatus(ctx, c.rdb, batch.Repository, ProgressError)
			return we
		case we.Class.Retryable():
			c.logger.Warn("batch left for redelivery",
				zap.String("id", msg.ID),
				zap.String("class", string(we.Class)),
				zap.Int64("deliveries", deliveries),
				zap.Error(we))
			return nil
		default:
			c.logger.Warn("batch failed permanently",
				zap.String("id", msg.ID),
				zap.String("class", string(we.Class)),
				zap.Error(we))
			if err := recordBatch(ctx, c.rdb, batch.Repository, 0, len(batch.Files), batch.label()); err != nil {
				return nil
			}
			c.ack(ctx, msg.ID)
			c.dirty = true
			return nil
		}
	}

	// Progress before acknowledgement: a crash between the two redelivers
	// the batch instead of losing its counts.
	if err := recordBatch(ctx, c.rdb, batch.Repository, result.SuccessCount, result.ErrorCount, batch.label()); err != nil {
		c.logger.Error("progress update failed, leaving message pending",
			zap.String("id", msg.ID), zap.Error(err))
		return nil
	}
	c.ack(ctx, msg.ID)
	c.dirty = true
	return nil
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.rdb.XAck(ctx, c.stream, GroupName, id).Err(); err != nil {
		c.logger.Error("ack failed", zap.String("id", id), zap.Error(err))
	}
}

// maybeComplete finishes the repository when the stream is drained: no
// fresh messages and nothing pending. Builds the graph, then flips the
// progress status.
func (c *Consumer) maybeComplete(ctx context.Context) error {
	if !c.dirty {
		return nil
	}

	pending, err := c.rdb.XPending(ctx, c.stream, GroupName).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if pending != nil && pending.Count > 0 {
		return nil
	}

	if c.graphs != nil {
		stats, err := c.graphs.Build(ctx, c.cfg.Repository, nil)
		if err != nil {
			_ = setProgressStatus(ctx, c.rdb, c.cfg.Repository, ProgressError)
			return fmt.Errorf("graph build after drain: %w", err)
		}
		c.logger.Info("graph rebuilt",
			zap.String("repository", c.cfg.Repository),
			zap.Int("nodes", stats.TotalNodes),
			zap.Int("edges", stats.TotalEdges))
	}

	if err := setProgressStatus(ctx, c.rdb, c.cfg.Repository, ProgressCompleted); err != nil {
		return err
	}
	c.dirty = false
	c.logger.Info("repository indexing completed", zap.String("repository", c.cfg.Repository))
	return nil
}

// reclaimAbandoned claims messages another consumer took but never
// acknowledged, and reprocesses them here with their delivery count.
func (c *Consumer) reclaimAbandoned(ctx context.Context) error {
	pending, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  GroupName,
		Idle:   c.cfg.ReclaimIdle,
		Start:  "-",
		End:    "+",
		Count:  reclaimScanCount,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	for _, entry := range pending {
		msgs, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.stream,
			Group:    GroupName,
			Consumer: c.cfg.ConsumerID,
			MinIdle:  c.cfg.ReclaimIdle,
			Messages: []string{entry.ID},
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // claimed by someone else between XPENDING and XCLAIM
			}
			return err
		}

		for _, msg := range msgs {
			c.logger.Info("reclaimed abandoned batch",
				zap.String("id", msg.ID),
				zap.Int64("deliveries", entry.RetryCount))
			if err := c.process(ctx, msg, entry.RetryCount+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func isShutdown(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
