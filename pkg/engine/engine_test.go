package engine

import (
	"reflect"
	"testing"

	"github.com/sochq/rampart/pkg/config"
	"github.com/sochq/rampart/pkg/patterns"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	lib, err := patterns.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return NewEngine(lib, config.NewRulesOnlyConfig())
}

func TestAnalyzeSafePhrase(t *testing.T) {
	e := newTestEngine(t)

	v := e.Analyze("hello world")
	if v.Decision != DecisionAllow {
		t.Fatalf("decision = %s, want ALLOW", v.Decision)
	}
	if v.Score != 0 {
		t.Errorf("score = %d, want 0", v.Score)
	}
	if v.Severity != SeveritySafe {
		t.Errorf("severity = %s, want Safe", v.Severity)
	}
	if v.AttackType != "Normal" {
		t.Errorf("attack type = %s, want Normal", v.AttackType)
	}
	if len(v.Evidence) != 1 || v.Evidence[0] != ReasonSafePhrase {
		t.Errorf("evidence = %v, want [%s]", v.Evidence, ReasonSafePhrase)
	}
	if v.RequiresEscalation {
		t.Error("safe phrase must not require escalation")
	}
}

func TestAnalyzeNormalHTTPRequest(t *testing.T) {
	e := newTestEngine(t)

	v := e.Analyze("GET /api/v1/users?page=2 HTTP/1.1")
	if v.Decision != DecisionAllow {
		t.Fatalf("decision = %s, want ALLOW", v.Decision)
	}
	if v.Severity != SeverityInfo {
		t.Errorf("severity = %s, want Info", v.Severity)
	}
	if len(v.Evidence) != 1 || v.Evidence[0] != ReasonNormalRequest {
		t.Errorf("evidence = %v, want [%s]", v.Evidence, ReasonNormalRequest)
	}
}

func TestAnalyzeUnionSelectBlocks(t *testing.T) {
	e := newTestEngine(t)

	v := e.Analyze("id=1 UNION SELECT password FROM users")
	if v.Decision != DecisionBlock {
		t.Fatalf("decision = %s, want BLOCK", v.Decision)
	}
	if v.AttackType != "SQL Injection" {
		t.Errorf("attack type = %s, want SQL Injection", v.AttackType)
	}
	if v.Score != 10 {
		t.Errorf("score = %d, want 10 (two critical rules)", v.Score)
	}
	if v.Severity != SeverityHigh {
		t.Errorf("severity = %s, want High", v.Severity)
	}
	if v.MatchedRules != 2 {
		t.Errorf("matched rules = %d, want 2", v.MatchedRules)
	}
}

func TestAnalyzeScriptTagBlocks(t *testing.T) {
	e := newTestEngine(t)

	v := e.Analyze("<script>alert(1)</script>")
	if v.Decision != DecisionBlock {
		t.Fatalf("decision = %s, want BLOCK", v.Decision)
	}
	if v.AttackType != "Cross-Site Scripting" {
		t.Errorf("attack type = %s, want Cross-Site Scripting", v.AttackType)
	}
	// Opening tag (critical) plus closing tag (notice).
	if v.Score != 7 {
		t.Errorf("score = %d, want 7", v.Score)
	}
	if v.Severity != SeverityHigh {
		t.Errorf("severity = %s, want High", v.Severity)
	}
}

func TestAnalyzeBacktickSubstitutionReviews(t *testing.T) {
	e := newTestEngine(t)

	v := e.Analyze("run `whoami` please")
	if v.Decision != DecisionReview {
		t.Fatalf("decision = %s, want REVIEW", v.Decision)
	}
	if v.AttackType != "Command Injection" {
		t.Errorf("attack type = %s, want Command Injection", v.AttackType)
	}
	if v.Score != 4 {
		t.Errorf("score = %d, want 4", v.Score)
	}
	if v.Severity != SeverityMedium {
		t.Errorf("severity = %s, want Medium", v.Severity)
	}
	if v.RequiresEscalation {
		t.Error("scored verdicts must not require escalation")
	}
}

func TestAnalyzeNoMatchEscalates(t *testing.T) {
	e := newTestEngine(t)

	v := e.Analyze("name='")
	if v.AttackType != "Unknown" {
		t.Fatalf("attack type = %s, want Unknown", v.AttackType)
	}
	if v.Decision != DecisionReview {
		t.Errorf("decision = %s, want REVIEW", v.Decision)
	}
	if v.Score != 0 {
		t.Errorf("score = %d, want 0", v.Score)
	}
	if !v.RequiresEscalation {
		t.Error("unmatched input must require escalation")
	}
	if len(v.Evidence) != 1 || v.Evidence[0] != "no_pattern_match" {
		t.Errorf("evidence = %v, want [no_pattern_match]", v.Evidence)
	}
}

func TestAnalyzeEncodedPayloadCountsRulesOnce(t *testing.T) {
	e := newTestEngine(t)

	// After decoding, the payload appears in all three comparison forms;
	// each rule must still contribute its weight exactly once.
	plain := e.Analyze("<script>alert(1)</script>")
	encoded := e.Analyze("%3Cscript%3Ealert(1)%3C%2Fscript%3E")

	if encoded.Decision != DecisionBlock {
		t.Fatalf("decision = %s, want BLOCK", encoded.Decision)
	}
	if encoded.Score != plain.Score {
		t.Errorf("encoded score = %d, plain score = %d, want equal", encoded.Score, plain.Score)
	}
}

func TestAnalyzeScoreSumsAcrossCategories(t *testing.T) {
	e := newTestEngine(t)

	v := e.Analyze("<script>alert(1)</script> UNION SELECT password FROM users")
	if len(v.Candidates) < 2 {
		t.Fatalf("candidates = %d, want at least 2", len(v.Candidates))
	}

	sum := 0
	for _, c := range v.Candidates {
		sum += c.Score
	}
	if v.Score != sum {
		t.Errorf("score = %d, want sum of candidate scores %d", v.Score, sum)
	}

	// The winner is the highest-scoring candidate, but the total includes
	// every category that fired.
	for _, c := range v.Candidates {
		if c.Score > v.Score {
			t.Errorf("candidate %s score %d exceeds total %d", c.Type, c.Score, v.Score)
		}
	}
}

func TestAnalyzeCriticalSeverity(t *testing.T) {
	e := newTestEngine(t)

	v := e.Analyze("UNION SELECT sleep(5) FROM dual")
	if v.Decision != DecisionBlock {
		t.Fatalf("decision = %s, want BLOCK", v.Decision)
	}
	if v.Score < 15 {
		t.Fatalf("score = %d, want >= 15", v.Score)
	}
	if v.Severity != SeverityCritical {
		t.Errorf("severity = %s, want Critical", v.Severity)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	e := newTestEngine(t)

	inputs := []string{
		"id=1 UNION SELECT password FROM users",
		"<script>alert(1)</script>",
		"run `whoami` please",
		"name='",
		"hello world",
	}
	for _, in := range inputs {
		a := e.Analyze(in)
		b := e.Analyze(in)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("verdict for %q not deterministic:\n  %+v\n  %+v", in, a, b)
		}
	}
}

func TestAnalyzeEvidenceCapped(t *testing.T) {
	e := newTestEngine(t)

	// Payload designed to hit many categories at once.
	v := e.Analyze("<script>eval(atob('x'))</script>' UNION SELECT password FROM users; cat /etc/passwd | bash ../../../../etc/shadow {{7*7}}")
	if len(v.Evidence) > 3 {
		t.Errorf("evidence entries = %d, want at most 3", len(v.Evidence))
	}
	for _, c := range v.Candidates {
		if len(c.Evidence) > 3 {
			t.Errorf("candidate %s carries %d match summaries, want at most 3", c.Type, len(c.Evidence))
		}
	}
}
