package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Encoder turns texts into vectors. Implementations must be safe for
// concurrent use.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// RemoteEncoder calls an HTTP inference endpoint that hosts the models.
// Keeping model memory in a separate process is what lets the batch
// pipeline run many short-lived workers without reloading weights.
type RemoteEncoder struct {
	endpoint string
	model    string
	device   string
	client   *http.Client
}

type encodeRequest struct {
	Model  string   `json:"model"`
	Texts  []string `json:"texts"`
	Device string   `json:"device,omitempty"`
}

type encodeResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewRemoteEncoder builds an encoder for one model behind the endpoint.
func NewRemoteEncoder(endpoint, model, device string) (*RemoteEncoder, error) {
	if endpoint == "" {
		return nil, errors.New("embedding endpoint not configured")
	}
	if model == "" {
		return nil, errors.New("embedding model not configured")
	}
	return &RemoteEncoder{
		endpoint: endpoint,
		model:    model,
		device:   device,
		client:   &http.Client{},
	}, nil
}

// Encode posts the batch and returns one vector per input, in order.
// Timeouts come from the caller's context.
func (e *RemoteEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(encodeRequest{Model: e.model, Texts: texts, Device: e.device})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("embedding endpoint: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint: status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var decoded encodeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("embedding endpoint: decode response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("embedding endpoint: %s", decoded.Error)
	}
	return decoded.Embeddings, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
