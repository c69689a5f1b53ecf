package retrieval

import (
	"context"
	"crypto/sha256"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeEmbedding is deterministic and cheap: a unit vector derived from word
// hashes, so texts sharing words land near each other without a model.
func fakeEmbedding(_ context.Context, text string) ([]float32, error) {
	const dim = 64
	vec := make([]float32, dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(word))
		for i := 0; i < dim; i++ {
			vec[i] += float32(int8(sum[i%32])) / 127
		}
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	inv := 1 / float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

func newTestRetriever(t *testing.T) *Retriever {
	t.Helper()
	r, err := NewRetriever(fakeEmbedding)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	if err := r.Load(context.Background(), ""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return r
}

func TestSearchFindsNeighbors(t *testing.T) {
	r := newTestRetriever(t)

	matches, err := r.Search(context.Background(), "id=1 union select password from users", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("matches = %d, want 3", len(matches))
	}
	for _, m := range matches {
		if m.Label != "malicious" && m.Label != "benign" {
			t.Errorf("match carries unknown label %q", m.Label)
		}
		if m.Category == "" {
			t.Error("match missing category")
		}
	}
}

func TestSearchBeforeLoadFails(t *testing.T) {
	r, err := NewRetriever(fakeEmbedding)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	if _, err := r.Search(context.Background(), "anything", 3); err == nil {
		t.Fatal("Search before Load must fail")
	}
}

func TestSearchCapsK(t *testing.T) {
	r := newTestRetriever(t)

	matches, err := r.Search(context.Background(), "hello", 10000)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) > r.Count() {
		t.Errorf("matches = %d exceeds store size %d", len(matches), r.Count())
	}
}

func TestLoadSeedDir(t *testing.T) {
	dir := t.TempDir()
	seed := `examples:
  - text: "1 or 1=1"
    label: malicious
    category: sql_injection
  - text: "get /about http/1.1"
    label: benign
    category: normal_http
`
	if err := os.WriteFile(filepath.Join(dir, "custom.yaml"), []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	// Non-YAML files are skipped, not parsed.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatal(err)
	}

	examples, err := LoadSeedDir(dir)
	if err != nil {
		t.Fatalf("LoadSeedDir: %v", err)
	}
	if len(examples) != 2 {
		t.Fatalf("examples = %d, want 2", len(examples))
	}
	if examples[0].Category != "sql_injection" {
		t.Errorf("category = %s", examples[0].Category)
	}
}

func TestLoadSeedDirRejectsBadLabel(t *testing.T) {
	dir := t.TempDir()
	seed := `examples:
  - text: "something"
    label: dangerous
    category: misc
`
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSeedDir(dir); err == nil {
		t.Fatal("unknown label must be rejected")
	}
}

func TestLoadWithSeedDir(t *testing.T) {
	dir := t.TempDir()
	seed := `examples:
  - text: "custom payload example"
    label: malicious
    category: custom
`
	if err := os.WriteFile(filepath.Join(dir, "extra.yml"), []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewRetriever(fakeEmbedding)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	if err := r.Load(context.Background(), dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.Count() != len(builtinExamples())+1 {
		t.Errorf("count = %d, want builtin+1 = %d", r.Count(), len(builtinExamples())+1)
	}
}

func TestFormatContext(t *testing.T) {
	got := FormatContext([]Match{
		{Text: "1 or 1=1", Label: "malicious", Category: "sql_injection", Similarity: 0.91},
		{Text: "get /health http/1.1", Label: "benign", Category: "normal_http", Similarity: 0.40},
	})
	want := "[MALICIOUS] sql_injection: 1 or 1=1\n[BENIGN] normal_http: get /health http/1.1"
	if got != want {
		t.Errorf("FormatContext:\n got %q\nwant %q", got, want)
	}

	if FormatContext(nil) != "" {
		t.Error("empty matches must format to empty string")
	}
}
