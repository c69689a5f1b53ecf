// Package response maps finalized pipeline items onto the external result
// schema. Assembly is pure: given the same items it always produces the same
// envelope, apart from the generation timestamp.
package response

import (
	"fmt"
	"strings"
	"time"

	"github.com/sochq/rampart/pkg/engine"
	"github.com/sochq/rampart/pkg/pipeline"
)

// FlowVersion identifies the pipeline revision that produced an envelope.
const FlowVersion = "rampart.http_analyzer.hybrid.v1"

// attackGroups maps internal attack-type names onto the coarse external
// taxonomy. Types without an entry report "generic".
var attackGroups = map[string]string{
	"SQL Injection":               "sql",
	"Cross-Site Scripting":        "xss",
	"Command Injection":           "command",
	"Directory Traversal":         "path_traversal",
	"Local File Inclusion":        "lfi",
	"Server-Side Request Forgery": "ssrf",
	"Log Injection":               "log_injection",
	"Unknown":                     "generic",
	"Normal":                      "generic",
}

// learningNotes are fixed security notes keyed by attack type.
var learningNotes = map[string]string{
	"SQL Injection":               "SQL injection attacks can compromise database integrity. Always use parameterized queries and input validation.",
	"Cross-Site Scripting":        "XSS attacks can steal user sessions and credentials. Implement proper output encoding and Content Security Policy.",
	"Command Injection":           "Command injection can lead to remote code execution. Never pass user input directly to system commands.",
	"Directory Traversal":         "Path traversal attacks can expose sensitive files. Validate and sanitize all file path inputs.",
	"Local File Inclusion":        "LFI attacks can read sensitive server files. Restrict file access and validate wrapper usage.",
	"Server-Side Request Forgery": "SSRF can expose internal services. Validate URLs and restrict outbound connections.",
	"Log Injection":               "Log injection can corrupt audit trails. Sanitize all log inputs and use structured logging.",
	"Unknown":                     "Unknown patterns require careful analysis to determine legitimacy and potential risk.",
}

const defaultLearningNote = "Review request context and user behavior to assess risk."

// ObservedPattern summarizes one matched category for the response.
type ObservedPattern struct {
	PatternName string `json:"pattern_name"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	RuleMatches int    `json:"rule_matches,omitempty"`
}

// Result is the external per-item result schema.
type Result struct {
	ID                    string            `json:"id"`
	Label                 string            `json:"label"`
	AttackGroup           string            `json:"attack_group"`
	AttackType            string            `json:"attack_type"`
	Confidence            float64           `json:"confidence"`
	RiskScore             int               `json:"risk_score"`
	Severity              string            `json:"severity"`
	Decision              engine.Decision   `json:"decision"`
	Blocked               bool              `json:"blocked"`
	CacheHit              bool              `json:"cache_hit"`
	Evidence              []string          `json:"evidence"`
	RAGContext            string            `json:"rag_context,omitempty"`
	ObservedPatterns      []ObservedPattern `json:"observed_patterns"`
	SuggestedActions      []string          `json:"suggested_actions"`
	Route                 string            `json:"route"`
	EventType             string            `json:"event_type"`
	Source                string            `json:"source"`
	Explanation           string            `json:"explanation"`
	LearningNote          string            `json:"learning_note"`
	HallucinationSuspected bool             `json:"hallucination_suspected"`
	HallucinationReasons  []string          `json:"hallucination_reasons"`
	LLMModel              string            `json:"llm_model,omitempty"`
	GeneratedAt           string            `json:"generated_at"`
}

// Envelope wraps the per-item results of one batch.
type Envelope struct {
	Results     []Result `json:"results"`
	FlowVersion string   `json:"flow_version"`
	GeneratedAt string   `json:"generated_at"`
}

// Build assembles the batch envelope from finalized items.
func Build(items []*pipeline.Item) Envelope {
	now := time.Now().UTC().Format(time.RFC3339)

	results := make([]Result, len(items))
	for i, item := range items {
		results[i] = buildResult(item, now)
	}

	return Envelope{
		Results:     results,
		FlowVersion: FlowVersion,
		GeneratedAt: now,
	}
}

func buildResult(item *pipeline.Item, now string) Result {
	usedLLM := item.Escalation != nil && item.Escalation.Model != ""
	route := "fast"
	source := "rule_engine"
	if usedLLM {
		route = "slow"
		source = "llm_explainer"
	}

	var eventType string
	switch {
	case item.Blocked && route == "fast":
		eventType = "fast_block"
	case item.Blocked:
		eventType = "slow_block"
	case route == "slow":
		eventType = "slow_explanation"
	default:
		eventType = "fast_allow"
	}

	// Unknown and Normal collapse onto the generic label; real attack
	// types become snake_case field values.
	label := item.AttackType
	attackTypeField := strings.ReplaceAll(strings.ToLower(item.AttackType), " ", "_")
	if item.AttackType == "Unknown" || item.AttackType == "Normal" {
		label = "Normal"
		attackTypeField = "none"
	}

	group, ok := attackGroups[item.AttackType]
	if !ok {
		group = "generic"
	}

	note, ok := learningNotes[item.AttackType]
	if !ok {
		note = defaultLearningNote
	}

	explanation := item.FinalMessage
	if explanation == "" {
		explanation = fmt.Sprintf("Request analyzed with %s", source)
	}

	r := Result{
		ID:                   item.ID,
		Label:                label,
		AttackGroup:          group,
		AttackType:           attackTypeField,
		Confidence:           confidence(item.AnomalyScore),
		RiskScore:            item.AnomalyScore,
		Severity:             item.Severity,
		Decision:             item.Decision,
		Blocked:              item.Blocked,
		CacheHit:             item.CacheHit,
		Evidence:             item.Evidence,
		RAGContext:           item.RAGContext,
		ObservedPatterns:     observedPatterns(item),
		SuggestedActions:     suggestedActions(item.Decision, item.Blocked),
		Route:                route,
		EventType:            eventType,
		Source:               source,
		Explanation:          explanation,
		LearningNote:         note,
		HallucinationReasons: []string{},
		GeneratedAt:          now,
	}
	if usedLLM {
		r.LLMModel = item.Escalation.Model
	}
	return r
}

// confidence derives a band from the anomaly score when no external
// confidence is available.
func confidence(score int) float64 {
	switch {
	case score >= 10:
		return 0.95
	case score >= 5:
		return 0.85
	case score >= 3:
		return 0.6
	default:
		return 0.4
	}
}

// suggestedActions depends only on the routing outcome, never on the
// attack specifics.
func suggestedActions(decision engine.Decision, blocked bool) []string {
	switch {
	case blocked:
		return []string{"Block request", "Log attack for forensics", "Alert security team"}
	case decision == engine.DecisionReview:
		return []string{"Review manually", "Log for monitoring", "Check user context"}
	case decision == engine.DecisionMonitor:
		return []string{"Allow request", "Log for monitoring"}
	default:
		return []string{"Allow request"}
	}
}

// observedPatterns prefers candidate summaries; with no candidates the raw
// evidence strings stand in, so fast-path items still report something.
func observedPatterns(item *pipeline.Item) []ObservedPattern {
	var out []ObservedPattern

	for i, c := range item.Candidates {
		if i == 3 {
			break
		}
		out = append(out, ObservedPattern{
			PatternName: c.Type,
			Description: fmt.Sprintf("Detected %d rule matches with score %d", c.RuleMatches, c.Score),
			Severity:    item.Severity,
			RuleMatches: c.RuleMatches,
		})
	}

	if len(out) == 0 {
		for i, ev := range item.Evidence {
			if i == 3 {
				break
			}
			out = append(out, ObservedPattern{
				PatternName: ev,
				Description: fmt.Sprintf("Pattern match detected: %s", ev),
				Severity:    item.Severity,
			})
		}
	}

	if out == nil {
		out = []ObservedPattern{}
	}
	return out
}
