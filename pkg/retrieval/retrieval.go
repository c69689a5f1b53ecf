// Package retrieval maintains an embedded vector store of labeled request
// examples and returns the nearest neighbors of an incoming request. The
// formatted neighbors give the escalation model concrete precedents instead
// of a bare payload.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/sochq/rampart/pkg/httputil"
)

// Example is one labeled request in the store.
type Example struct {
	Text     string `yaml:"text" json:"text"`
	Label    string `yaml:"label" json:"label"` // "malicious" or "benign"
	Category string `yaml:"category" json:"category"`
}

// Match is a store entry with its similarity to the query.
type Match struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Category   string  `json:"category"`
	Similarity float32 `json:"similarity"`
}

// Retriever wraps a chromem collection of request examples.
type Retriever struct {
	db         *chromem.DB
	collection *chromem.Collection
	mu         sync.RWMutex
	ready      bool
}

// NewRetriever creates a retriever backed by the given embedding function.
func NewRetriever(embed chromem.EmbeddingFunc) (*Retriever, error) {
	if embed == nil {
		return nil, fmt.Errorf("embedding function is nil")
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection("request_examples", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return &Retriever{db: db, collection: collection}, nil
}

// NewOllamaRetriever creates a retriever embedding through a local Ollama
// instance. The default embedding model is embeddinggemma.
func NewOllamaRetriever(model, baseURL string) (*Retriever, error) {
	if model == "" {
		model = "embeddinggemma"
	}
	return NewRetriever(newOllamaEmbeddingFunc(model, baseURL))
}

// newOllamaEmbeddingFunc calls Ollama's /api/embeddings endpoint, which uses
// a different request shape than the OpenAI-compatible one chromem ships.
func newOllamaEmbeddingFunc(model, baseURL string) chromem.EmbeddingFunc {
	client := httputil.Client(httputil.TierMedium)

	return func(ctx context.Context, text string) ([]float32, error) {
		reqBody, err := json.Marshal(map[string]string{
			"model":  model,
			"prompt": text,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/embeddings", bytes.NewBuffer(reqBody))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer httputil.DrainAndClose(resp.Body)

		if err := httputil.CheckResponse(resp, "ollama embedding"); err != nil {
			return nil, err
		}

		var result struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return result.Embedding, nil
	}
}

// Load indexes the given examples. Examples from YAML seed files in dir are
// added first; when dir is empty or yields nothing, the builtin example set
// is used alone.
func (r *Retriever) Load(ctx context.Context, dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	examples := builtinExamples()
	if dir != "" {
		seeded, err := LoadSeedDir(dir)
		if err != nil {
			return fmt.Errorf("failed to load seed dir: %w", err)
		}
		examples = append(examples, seeded...)
	}

	docs := make([]chromem.Document, len(examples))
	for i, ex := range examples {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("example_%d", i),
			Content: ex.Text,
			Metadata: map[string]string{
				"label":    ex.Label,
				"category": ex.Category,
			},
		}
	}

	// One worker keeps the embedding endpoint from being flooded at startup.
	if err := r.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to add examples: %w", err)
	}

	r.ready = true
	return nil
}

// IsReady reports whether Load completed.
func (r *Retriever) IsReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// Count returns the number of indexed examples.
func (r *Retriever) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collection.Count()
}

// Search returns up to k nearest examples for the query text.
func (r *Retriever) Search(ctx context.Context, text string, k int) ([]Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.ready {
		return nil, fmt.Errorf("retriever not initialized - call Load first")
	}
	if k <= 0 {
		k = 3
	}
	if n := r.collection.Count(); k > n {
		k = n
	}

	// Case-folded query matches the case-folded store entries better.
	results, err := r.collection.Query(ctx, strings.ToLower(text), k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	matches := make([]Match, len(results))
	for i, res := range results {
		matches[i] = Match{
			Text:       res.Content,
			Label:      res.Metadata["label"],
			Category:   res.Metadata["category"],
			Similarity: res.Similarity,
		}
	}
	return matches, nil
}

// FormatContext renders matches as one precedent per line for inclusion in
// an escalation prompt, e.g. "[MALICIOUS] sql_injection: 1 union select ...".
func FormatContext(matches []Match) string {
	if len(matches) == 0 {
		return ""
	}

	var b strings.Builder
	for i, m := range matches {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s: %s", strings.ToUpper(m.Label), m.Category, m.Text)
	}
	return b.String()
}
