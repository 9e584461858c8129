package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan:
// 1. decodeMessage accepts the producer's field layout and rejects
//    messages missing the repository or files fields, carrying malformed
//    JSON, or describing an empty batch.
// 2. ConsumerConfig.withDefaults fills the documented defaults and leaves
//    explicit values alone.

func TestDecodeMessage_Valid(t *testing.T) {
	values := map[string]any{
		"upload_id":  "3f2a",
		"repository": "acme",
		"batch":      "2",
		"files":      `["/stage/3f2a/a.py","/stage/3f2a/b.ts"]`,
	}

	msg, err := decodeMessage(values)
	require.NoError(t, err)
	assert.Equal(t, "3f2a", msg.UploadID)
	assert.Equal(t, "acme", msg.Repository)
	assert.Equal(t, "2", msg.Batch)
	assert.Equal(t, []string{"/stage/3f2a/a.py", "/stage/3f2a/b.ts"}, msg.Files)
	assert.Equal(t, "3f2a/2", msg.label())
}

func TestDecodeMessage_MissingRepository(t *testing.T) {
	_, err := decodeMessage(map[string]any{
		"upload_id": "3f2a",
		"files":     `["/stage/a.py"]`,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository")
}

func TestDecodeMessage_MissingFiles(t *testing.T) {
	_, err := decodeMessage(map[string]any{
		"upload_id":  "3f2a",
		"repository": "acme",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "files")
}

func TestDecodeMessage_MalformedFiles(t *testing.T) {
	_, err := decodeMessage(map[string]any{
		"repository": "acme",
		"files":      "/stage/a.py,/stage/b.py",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not parseable")
}

func TestDecodeMessage_EmptyBatch(t *testing.T) {
	_, err := decodeMessage(map[string]any{
		"repository": "acme",
		"files":      `[]`,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty batch")
}

func TestConsumerConfig_Defaults(t *testing.T) {
	cfg := ConsumerConfig{Repository: "acme"}.withDefaults()

	assert.Equal(t, 5*time.Second, cfg.Block)
	assert.Equal(t, 60*time.Second, cfg.ReclaimInterval)
	assert.Equal(t, 10*time.Minute, cfg.ReclaimIdle)
	assert.EqualValues(t, 3, cfg.MaxDeliveries)
	assert.NotEmpty(t, cfg.ConsumerID)
	assert.True(t, strings.Contains(cfg.ConsumerID, "-"))
}

func TestConsumerConfig_ExplicitValuesKept(t *testing.T) {
	cfg := ConsumerConfig{
		Repository:      "acme",
		ConsumerID:      "worker-7",
		Block:           time.Second,
		ReclaimInterval: 5 * time.Second,
		ReclaimIdle:     time.Minute,
		MaxDeliveries:   5,
	}.withDefaults()

	assert.Equal(t, "worker-7", cfg.ConsumerID)
	assert.Equal(t, time.Second, cfg.Block)
	assert.Equal(t, 5*time.Second, cfg.ReclaimInterval)
	assert.Equal(t, time.Minute, cfg.ReclaimIdle)
	assert.EqualValues(t, 5, cfg.MaxDeliveries)
}
