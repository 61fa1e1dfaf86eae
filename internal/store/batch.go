package store

import (
	"context"
	"sort"

	"github.com/iudanet/storysync/internal/models"
)

// BatchResult collects per-key outcomes of a batch operation
type BatchResult struct {
	Failed    map[string]error `json:"-"`
	Succeeded []string         `json:"succeeded"`
}

// OK reports whether every key succeeded
func (r BatchResult) OK() bool {
	return len(r.Failed) == 0
}

func newBatchResult() BatchResult {
	return BatchResult{Failed: make(map[string]error)}
}

// BatchSave saves every document in key order. One failure does not stop the rest.
func (s *Service) BatchSave(ctx context.Context, docs map[string]models.Document) BatchResult {
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := newBatchResult()
	for _, key := range keys {
		if _, err := s.Save(ctx, key, docs[key], nil); err != nil {
			res.Failed[key] = err
			continue
		}
		res.Succeeded = append(res.Succeeded, key)
	}
	return res
}

// BatchLoad loads every key. Missing or failing keys are reported in the result.
func (s *Service) BatchLoad(ctx context.Context, keys []string) (map[string]models.Document, BatchResult) {
	docs := make(map[string]models.Document, len(keys))
	res := newBatchResult()

	for _, key := range keys {
		if _, seen := docs[key]; seen {
			continue
		}
		doc, err := s.Load(ctx, key)
		if err != nil {
			res.Failed[key] = err
			continue
		}
		docs[key] = doc
		res.Succeeded = append(res.Succeeded, key)
	}
	return docs, res
}

// BatchDelete deletes every key
func (s *Service) BatchDelete(ctx context.Context, keys []string) BatchResult {
	res := newBatchResult()
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			res.Failed[key] = err
			continue
		}
		res.Succeeded = append(res.Succeeded, key)
	}
	return res
}
