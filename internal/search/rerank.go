package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// DefaultRerankPoolSize bounds how many fused candidates reach the
// cross-encoder.
const DefaultRerankPoolSize = 30

const rerankPreviewBytes = 512

// Reranker scores (query, document) pairs with a cross-encoder. Slower and
// more accurate than the bi-encoder retrieval stages, so it only sees the
// fused head.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
}

// RemoteReranker calls the inference endpoint's /rerank route.
type RemoteReranker struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewRemoteReranker(endpoint, model string) (*RemoteReranker, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("reranker endpoint is required")
	}
	return &RemoteReranker{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
	Error string `json:"error,omitempty"`
}

// Rerank returns one score per document, in document order.
func (r *RemoteReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents, Model: r.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank endpoint returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var decoded rerankResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("rerank endpoint error: %s", decoded.Error)
	}

	scores := make([]float64, len(documents))
	for _, res := range decoded.Results {
		if res.Index >= 0 && res.Index < len(scores) {
			scores[res.Index] = res.Score
		}
	}
	return scores, nil
}

// applyRerank re-sorts the top pool candidates by cross-encoder score and
// reattaches the untouched tail, which keeps its RRF ordering.
func applyRerank(ctx context.Context, rr Reranker, query string, cands []*Candidate, pool int) ([]*Candidate, error) {
	if pool <= 0 {
		pool = DefaultRerankPoolSize
	}
	if pool > len(cands) {
		pool = len(cands)
	}
	if pool == 0 {
		return cands, nil
	}

	head := cands[:pool]
	docs := make([]string, len(head))
	for i, c := range head {
		docs[i] = documentPreview(c.Chunk.NamePath, c.Chunk.SourceCode)
	}

	scores, err := rr.Rerank(ctx, query, docs)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(head) {
		return nil, fmt.Errorf("reranker returned %d scores for %d documents", len(scores), len(head))
	}

	reranked := make([]*Candidate, len(head))
	copy(reranked, head)
	for i, c := range reranked {
		s := scores[i]
		c.RerankScore = &s
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return *reranked[i].RerankScore > *reranked[j].RerankScore
	})

	return append(reranked, cands[pool:]...), nil
}

// documentPreview trims a candidate to what the cross-encoder sees.
func documentPreview(namePath, source string) string {
	if len(source) > rerankPreviewBytes {
		source = source[:rerankPreviewBytes]
	}
	if namePath == "" {
		return source
	}
	return namePath + "\n" + source
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
