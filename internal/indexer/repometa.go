package indexer

import (
	"context"
	"encoding/json"

	"github.com/mvp-joe/project-atlas/internal/cache"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

// RepositorySummarizer aggregates what the store holds for one repository.
type RepositorySummarizer interface {
	Summary(ctx context.Context, repository string) (*storage.RepositorySummary, error)
}

// RefreshRepoMeta recomputes the repository summary and caches it under
// repo:meta:<name>. Called after any indexing run completes. The summary
// is returned so callers can print it without a second query.
func RefreshRepoMeta(ctx context.Context, store RepositorySummarizer, shared *cache.SharedCache, repository string) (*storage.RepositorySummary, error) {
	summary, err := store.Summary(ctx, repository)
	if err != nil {
		return nil, err
	}

	if shared != nil {
		if payload, err := json.Marshal(summary); err == nil {
			shared.Set(ctx, cache.RepoMetaKey(repository), payload, cache.RepoMetaTTL)
		}
	}
	return summary, nil
}

// CachedRepoMeta reads the cached summary, falling back to the store on a
// miss and repopulating the cache.
func CachedRepoMeta(ctx context.Context, store RepositorySummarizer, shared *cache.SharedCache, repository string) (*storage.RepositorySummary, error) {
	if shared != nil {
		if payload, ok := shared.Get(ctx, cache.RepoMetaKey(repository)); ok {
			var summary storage.RepositorySummary
			if err := json.Unmarshal(payload, &summary); err == nil {
				return &summary, nil
			}
		}
	}
	return RefreshRepoMeta(ctx, store, shared, repository)
}
