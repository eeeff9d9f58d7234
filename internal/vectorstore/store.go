// Package vectorstore wraps chromem-go collections behind a small interface
// used by the episodic, knowledge, and discovery stores.
package vectorstore

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"otto/internal/embedding"
	"otto/internal/logging"
)

// Document is one stored record with its embedding and metadata.
type Document struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]string
}

// SearchResult pairs a document with its cosine similarity to the query.
type SearchResult struct {
	Document
	Similarity float64
}

// Store is a named-collection vector store.
type Store interface {
	Add(ctx context.Context, collection string, doc Document) error
	Search(ctx context.Context, collection string, vector []float32, limit int, where map[string]string) ([]SearchResult, error)
	SearchByText(ctx context.Context, collection string, query string, limit int, where map[string]string) ([]SearchResult, error)
	Delete(ctx context.Context, collection string, ids ...string) error
	Count(collection string) int
	Close() error
}

type chromemStore struct {
	db       *chromem.DB
	embedder embedding.Embedder
	logger   logging.Logger

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// New builds an in-memory store. When persistPath is non-empty the store is
// backed by a persistent chromem database at that path.
func New(persistPath string, embedder embedding.Embedder, logger logging.Logger) (Store, error) {
	var db *chromem.DB
	var err error
	if persistPath != "" {
		db, err = chromem.NewPersistentDB(persistPath, false)
		if err != nil {
			return nil, fmt.Errorf("open vector store at %s: %w", persistPath, err)
		}
	} else {
		db = chromem.NewDB()
	}
	return &chromemStore{
		db:          db,
		embedder:    embedder,
		logger:      logging.OrNop(logger),
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (s *chromemStore) collection(name string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[name]; ok {
		return col, nil
	}
	col, err := s.db.GetOrCreateCollection(name, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

func (s *chromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.Embed(ctx, text)
	}
}

func (s *chromemStore) Add(ctx context.Context, collection string, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("vectorstore: document id is required")
	}
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	return col.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: doc.Vector,
		Metadata:  doc.Metadata,
	})
}

func (s *chromemStore) Search(ctx context.Context, collection string, vector []float32, limit int, where map[string]string) ([]SearchResult, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit, col.Count())
	if limit == 0 {
		return nil, nil
	}
	results, err := col.QueryEmbedding(ctx, vector, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}
	return convertResults(results), nil
}

func (s *chromemStore) SearchByText(ctx context.Context, collection string, query string, limit int, where map[string]string) ([]SearchResult, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.Search(ctx, collection, vec, limit, where)
}

func (s *chromemStore) Delete(ctx context.Context, collection string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	return col.Delete(ctx, nil, nil, ids...)
}

func (s *chromemStore) Count(collection string) int {
	s.mu.Lock()
	col, ok := s.collections[collection]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return col.Count()
}

func (s *chromemStore) Close() error {
	return nil
}

func clampLimit(limit, available int) int {
	if limit <= 0 {
		limit = 10
	}
	if limit > available {
		limit = available
	}
	return limit
}

func convertResults(results []chromem.Result) []SearchResult {
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			Document: Document{
				ID:       r.ID,
				Content:  r.Content,
				Vector:   r.Embedding,
				Metadata: r.Metadata,
			},
			Similarity: float64(r.Similarity),
		})
	}
	return out
}
