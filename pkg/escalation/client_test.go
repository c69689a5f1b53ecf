package escalation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sochq/rampart/pkg/config"
)

func testConfig(baseURL string) *config.Config {
	cfg := config.NewRulesOnlyConfig()
	cfg.LLMProvider = config.ProviderOllama // no API key required
	cfg.LLMModel = "test-model"
	cfg.LLMBaseURL = baseURL
	cfg.LLMTimeoutMs = 2000
	return cfg
}

func TestClassifyParsesVerdict(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  Benign request – no malicious intent detected.  "}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	res := c.Classify(context.Background(), "name='", "[MALICIOUS] sql_injection: 1 or 1=1")

	if res.Verdict != "Benign request – no malicious intent detected." {
		t.Errorf("verdict = %q", res.Verdict)
	}
	if res.Model != "test-model" {
		t.Errorf("model = %q", res.Model)
	}
	if res.Fallback {
		t.Error("successful call must not be marked fallback")
	}

	if gotBody.Model != "test-model" {
		t.Errorf("request model = %q", gotBody.Model)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v, want system then user", gotBody.Messages)
	}
	user := gotBody.Messages[1].Content
	if !strings.Contains(user, "name='") {
		t.Error("user message missing request text")
	}
	if !strings.Contains(user, "sql_injection") {
		t.Error("user message missing retrieved context")
	}
}

func TestClassifyOmitsEmptyContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !strings.Contains(body.Messages[1].Content, "RELATED CONTEXT (RAG):\nNone") {
			t.Errorf("empty context must render as None, got %q", body.Messages[1].Content)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "ok"}}},
		})
	}))
	defer srv.Close()

	NewClient(testConfig(srv.URL)).Classify(context.Background(), "x", "")
}

func TestClassifyOutageFallsBackBenign(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	res := c.Classify(context.Background(), "name='", "")

	if !res.Fallback {
		t.Fatal("outage must produce a fallback result")
	}
	if res.Model != FallbackModel {
		t.Errorf("model = %q, want %s", res.Model, FallbackModel)
	}
	if !strings.Contains(res.Verdict, "Benign request") {
		t.Errorf("verdict = %q, want the benign fallback", res.Verdict)
	}
	if res.IsMalicious() {
		t.Error("fallback verdict must not read as malicious")
	}
}

func TestClassifyOutageFallsBackReview(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1") // nothing listens here
	cfg.FallbackBehavior = config.FallbackReview

	res := NewClient(cfg).Classify(context.Background(), "x", "")
	if !res.Fallback {
		t.Fatal("unreachable provider must produce a fallback result")
	}
	if !strings.Contains(res.Verdict, "manual review required") {
		t.Errorf("verdict = %q, want the review fallback", res.Verdict)
	}
}

func TestClassifyMissingAPIKeyFallsBack(t *testing.T) {
	cfg := testConfig("")
	cfg.LLMProvider = config.ProviderGroq
	cfg.LLMAPIKey = ""

	res := NewClient(cfg).Classify(context.Background(), "x", "")
	if !res.Fallback || res.Model != FallbackModel {
		t.Errorf("missing key must fall back, got %+v", res)
	}
}

func TestIsMalicious(t *testing.T) {
	tests := []struct {
		verdict string
		want    bool
	}{
		{"Malicious request detected: SQL injection in the id parameter.", true},
		{"This looks like a path traversal attack.", true},
		{"Benign request – no malicious intent detected.", false},
		{"Generic text with no indicators.", false},
	}
	for _, tt := range tests {
		if got := (Result{Verdict: tt.verdict}).IsMalicious(); got != tt.want {
			t.Errorf("IsMalicious(%q) = %v, want %v", tt.verdict, got, tt.want)
		}
	}
}
