package pipeline

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sochq/rampart/pkg/cache"
	"github.com/sochq/rampart/pkg/config"
	"github.com/sochq/rampart/pkg/engine"
	"github.com/sochq/rampart/pkg/escalation"
	"github.com/sochq/rampart/pkg/patterns"
	"github.com/sochq/rampart/pkg/retrieval"
)

type stubEscalator struct {
	calls   atomic.Int64
	verdict string
	lastRAG string
}

func (s *stubEscalator) Classify(_ context.Context, _, ragContext string) escalation.Result {
	s.calls.Add(1)
	s.lastRAG = ragContext
	return escalation.Result{Verdict: s.verdict, Model: "stub-model"}
}

type stubRetriever struct{}

func (stubRetriever) Search(_ context.Context, _ string, _ int) ([]retrieval.Match, error) {
	return []retrieval.Match{
		{Text: "1 or 1=1", Label: "malicious", Category: "sql_injection", Similarity: 0.9},
	}, nil
}

func newTestPipeline(t *testing.T, esc Escalator) (*Pipeline, *cache.Memory) {
	t.Helper()
	lib, err := patterns.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := config.NewRulesOnlyConfig()
	cfg.EnableRetrieval = true
	store := cache.NewMemory()
	return New(cfg, engine.NewEngine(lib, cfg), store, stubRetriever{}, esc), store
}

func item(text string) *Item {
	return &Item{ID: "test-id", RawText: text, State: StateNew}
}

func TestProcessFastAllowSkipsEverything(t *testing.T) {
	esc := &stubEscalator{verdict: "should not be asked"}
	p, store := newTestPipeline(t, esc)

	it := item("hello world")
	p.Process(context.Background(), []*Item{it})

	if !it.Finalized() {
		t.Fatalf("state = %s, want FINAL", it.State)
	}
	if it.Decision != engine.DecisionAllow || it.Blocked {
		t.Errorf("decision = %s blocked = %v, want ALLOW unblocked", it.Decision, it.Blocked)
	}
	if esc.calls.Load() != 0 {
		t.Error("fast-allowed item must not escalate")
	}
	stats, _ := store.Stats(context.Background())
	if stats.Writes != 0 {
		t.Error("fast-allowed item must not be cached")
	}
}

func TestProcessBlocksAndCaches(t *testing.T) {
	esc := &stubEscalator{verdict: "should not be asked"}
	p, store := newTestPipeline(t, esc)

	it := item("id=1 UNION SELECT password FROM users")
	p.Process(context.Background(), []*Item{it})

	if !it.Blocked || it.Decision != engine.DecisionBlock {
		t.Fatalf("blocked = %v decision = %s, want blocked BLOCK", it.Blocked, it.Decision)
	}
	want := "[BLOCKED] SQL Injection | Score=10 | Severity=High"
	if it.FinalMessage != want {
		t.Errorf("final message = %q, want %q", it.FinalMessage, want)
	}
	if esc.calls.Load() != 0 {
		t.Error("blocked item must not escalate")
	}
	stats, _ := store.Stats(context.Background())
	if stats.Writes != 1 {
		t.Errorf("cache writes = %d, want 1", stats.Writes)
	}
}

func TestProcessEscalatesAmbiguousItem(t *testing.T) {
	esc := &stubEscalator{verdict: "Benign request – no malicious intent detected."}
	p, store := newTestPipeline(t, esc)

	it := item("name='")
	p.Process(context.Background(), []*Item{it})

	if esc.calls.Load() != 1 {
		t.Fatalf("escalator calls = %d, want 1", esc.calls.Load())
	}
	if !strings.Contains(esc.lastRAG, "sql_injection") {
		t.Errorf("rag context = %q, want retrieved precedent", esc.lastRAG)
	}
	if it.Escalation == nil || it.Escalation.Model != "stub-model" {
		t.Fatalf("escalation result = %+v", it.Escalation)
	}
	if it.FinalMessage != esc.verdict {
		t.Errorf("final message = %q", it.FinalMessage)
	}
	if it.Blocked {
		t.Error("benign verdict must not block")
	}
	stats, _ := store.Stats(context.Background())
	if stats.Writes != 1 {
		t.Errorf("cache writes = %d, want 1", stats.Writes)
	}
}

func TestProcessEscalationAutoBlock(t *testing.T) {
	esc := &stubEscalator{verdict: "Malicious request detected: SQL injection probe."}
	p, _ := newTestPipeline(t, esc)

	it := item("name='")
	p.Process(context.Background(), []*Item{it})

	if !it.Blocked || it.Decision != engine.DecisionBlock {
		t.Errorf("malicious verdict must upgrade to BLOCK, got blocked=%v decision=%s", it.Blocked, it.Decision)
	}
}

func TestProcessMonitorItemEscalates(t *testing.T) {
	esc := &stubEscalator{verdict: "Benign request – no malicious intent detected."}
	p, _ := newTestPipeline(t, esc)

	// "0x41414141" only trips a notice-tier rule: score 2, MONITOR.
	it := item("value=0x41414141")
	p.Process(context.Background(), []*Item{it})

	if it.Decision != engine.DecisionMonitor {
		t.Fatalf("decision = %s, want MONITOR", it.Decision)
	}
	if esc.calls.Load() != 1 {
		t.Error("monitored item must still gather a second opinion")
	}
}

func TestProcessCacheHitSkipsReanalysis(t *testing.T) {
	esc := &stubEscalator{verdict: "Benign request – no malicious intent detected."}
	p, _ := newTestPipeline(t, esc)

	first := item("name='")
	p.Process(context.Background(), []*Item{first})

	second := item("NAME='") // case variant, same fingerprint
	p.Process(context.Background(), []*Item{second})

	if !second.CacheHit {
		t.Fatal("second submission must hit the cache")
	}
	if esc.calls.Load() != 1 {
		t.Errorf("escalator calls = %d, want 1 (cached item skips escalation)", esc.calls.Load())
	}
	if second.FinalMessage != first.FinalMessage {
		t.Errorf("cached message = %q, want %q", second.FinalMessage, first.FinalMessage)
	}
	if second.AttackType != first.AttackType || second.Decision != first.Decision {
		t.Error("cached item must copy the terminal verdict fields")
	}
	if !second.Finalized() {
		t.Errorf("state = %s, want FINAL", second.State)
	}
}

func TestProcessBatchAllFinalize(t *testing.T) {
	esc := &stubEscalator{verdict: "Benign request – no malicious intent detected."}
	p, _ := newTestPipeline(t, esc)

	texts := []string{
		"hello world",
		"id=1 UNION SELECT password FROM users",
		"name='",
		"GET /health HTTP/1.1",
		"run `whoami` please",
	}
	var items []*Item
	for _, tx := range texts {
		items = append(items, item(tx))
	}

	p.Process(context.Background(), items)

	for i, it := range items {
		if !it.Finalized() {
			t.Errorf("item %d (%q) state = %s, want FINAL", i, texts[i], it.State)
		}
	}
}

func TestItemTransitionGuards(t *testing.T) {
	it := item("x")

	if err := it.To(StateFinal); err == nil {
		t.Error("NEW -> FINAL must be rejected")
	}
	if err := it.To(StateBlocked); err != nil {
		t.Fatalf("NEW -> BLOCKED: %v", err)
	}
	if err := it.To(StateEscalated); err == nil {
		t.Error("BLOCKED -> ESCALATED must be rejected")
	}
	if err := it.To(StateFinal); err != nil {
		t.Fatalf("BLOCKED -> FINAL: %v", err)
	}
	if err := it.To(StateNew); err == nil {
		t.Error("FINAL is terminal")
	}
}

func TestParseBatch(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"single string", `"hello"`, 1, false},
		{"array", `["a", "b", "c"]`, 3, false},
		{"envelope", `{"requests": ["a", "b"]}`, 2, false},
		{"empty array", `[]`, 0, true},
		{"empty envelope", `{"requests": []}`, 0, true},
		{"object without requests", `{"foo": 1}`, 0, true},
		{"number", `42`, 0, true},
		{"null", `null`, 0, true},
		{"empty body", ``, 0, true},
		{"garbage", `{{{`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseBatch([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatal("want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBatch: %v", err)
			}
			if len(items) != tt.want {
				t.Fatalf("items = %d, want %d", len(items), tt.want)
			}
			seen := map[string]bool{}
			for _, it := range items {
				if it.ID == "" || seen[it.ID] {
					t.Errorf("item ID %q missing or duplicated", it.ID)
				}
				seen[it.ID] = true
				if it.State != StateNew {
					t.Errorf("state = %s, want NEW", it.State)
				}
			}
		})
	}
}
