package standardize

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/fyrsmithlabs/featmine/internal/config"
)

var (
	// ErrNoCanonicalKeys indicates the schema index was created empty.
	ErrNoCanonicalKeys = errors.New("no canonical keys configured")
)

// Matcher resolves a raw field name against the canonical schema.
type Matcher interface {
	Match(ctx context.Context, field string) (key string, score float64, err error)
}

// SchemaIndex is a vector index over the canonical schema keys.
//
// The key set is append-only; concurrent runs share the index and a
// last-writer-wins upsert per key, which is safe because entries are keyed
// deterministically by the canonical name.
type SchemaIndex struct {
	mu         sync.RWMutex
	collection *chromem.Collection
	keys       map[string]struct{}
}

// NewSchemaIndex builds an in-memory index seeded with the canonical keys.
func NewSchemaIndex(ctx context.Context, keys []string, embed chromem.EmbeddingFunc) (*SchemaIndex, error) {
	if len(keys) == 0 {
		return nil, ErrNoCanonicalKeys
	}

	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection("canonical_schema", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("creating schema collection: %w", err)
	}

	idx := &SchemaIndex{
		collection: collection,
		keys:       make(map[string]struct{}, len(keys)),
	}
	for _, key := range keys {
		if err := idx.AddKey(ctx, key); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// AddKey adds a canonical key to the index. Re-adding an existing key is a
// no-op upsert.
func (s *SchemaIndex) AddKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.collection.AddDocuments(ctx, []chromem.Document{{
		ID:      key,
		Content: keyText(key),
	}}, 1)
	if err != nil {
		return fmt.Errorf("indexing canonical key %q: %w", key, err)
	}
	s.keys[key] = struct{}{}
	return nil
}

// Match returns the nearest canonical key and its similarity score.
func (s *SchemaIndex) Match(ctx context.Context, field string) (string, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results, err := s.collection.Query(ctx, keyText(field), 1, nil, nil)
	if err != nil {
		return "", 0, fmt.Errorf("querying schema index: %w", err)
	}
	if len(results) == 0 {
		return "", 0, nil
	}
	return results[0].ID, float64(results[0].Similarity), nil
}

// Keys returns the canonical key set, sorted.
func (s *SchemaIndex) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// keyText normalizes a schema key or raw field name for embedding.
func keyText(key string) string {
	text := strings.NewReplacer("_", " ", "-", " ").Replace(key)
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// NewEmbeddingFunc selects the schema embedder from configuration.
func NewEmbeddingFunc(cfg config.StandardizeConfig) (chromem.EmbeddingFunc, error) {
	switch cfg.EmbeddingProvider {
	case "", "local":
		return LocalEmbeddingFunc(), nil
	case "ollama":
		baseURL := cfg.OllamaURL
		if baseURL != "" && !strings.HasSuffix(baseURL, "/api") {
			baseURL = strings.TrimSuffix(baseURL, "/") + "/api"
		}
		return chromem.NewEmbeddingFuncOllama(cfg.EmbeddingModel, baseURL), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.EmbeddingProvider)
	}
}

const localEmbeddingDims = 128

// LocalEmbeddingFunc is a deterministic character-trigram embedder. It needs
// no external service and scores near-identical field names highly, which is
// enough for tests and offline runs.
func LocalEmbeddingFunc() chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, localEmbeddingDims)
		padded := "  " + strings.ToLower(text) + "  "
		for i := 0; i+3 <= len(padded); i++ {
			h := fnv.New32a()
			_, _ = h.Write([]byte(padded[i : i+3]))
			vec[h.Sum32()%localEmbeddingDims]++
		}

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm == 0 {
			vec[0] = 1
			return vec, nil
		}
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
		return vec, nil
	}
}
