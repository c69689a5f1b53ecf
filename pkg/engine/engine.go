package engine

import (
	"github.com/sochq/rampart/pkg/config"
	"github.com/sochq/rampart/pkg/patterns"
)

// Decision is the routing outcome of rules-only analysis.
type Decision string

const (
	DecisionAllow   Decision = "ALLOW"
	DecisionMonitor Decision = "MONITOR"
	DecisionReview  Decision = "REVIEW"
	DecisionBlock   Decision = "BLOCK"
)

// Severity buckets reported alongside a decision, ordered from benign to worst.
const (
	SeveritySafe     = "Safe"
	SeverityInfo     = "Info"
	SeverityLow      = "Low"
	SeverityMedium   = "Medium"
	SeverityHigh     = "High"
	SeverityCritical = "Critical"
)

// RuleMatch summarizes one fired rule inside a candidate.
type RuleMatch struct {
	RuleID   string            `json:"rule_id"`
	Pattern  string            `json:"pattern"`
	Severity patterns.Severity `json:"severity"`
	Score    int               `json:"score"`
}

// maxMatchPatternLen truncates the pattern text carried in match summaries.
const maxMatchPatternLen = 60

// Candidate is one attack category that had at least one rule fire.
type Candidate struct {
	Type        string      `json:"type"`
	Score       int         `json:"score"`
	RuleMatches int         `json:"rule_matches"`
	Evidence    []RuleMatch `json:"evidence"` // at most 3
}

// Verdict is the full rules-only analysis result for one request.
type Verdict struct {
	AttackType         string      `json:"attack_type"`
	Score              int         `json:"anomaly_score"`
	Threshold          int         `json:"threshold"`
	Severity           string      `json:"severity"`
	Decision           Decision    `json:"decision"`
	Evidence           []string    `json:"evidence"`
	Candidates         []Candidate `json:"attack_candidates"`
	MatchedRules       int         `json:"matched_rules_count"`
	RequiresEscalation bool        `json:"requires_llm"`
}

// Engine scores requests against the pattern library using additive anomaly
// scoring: every matched rule contributes its severity weight to one total,
// regardless of which category it belongs to.
type Engine struct {
	lib             *patterns.Library
	blockThreshold  int
	reviewThreshold int
	criticalScore   int
}

func NewEngine(lib *patterns.Library, cfg *config.Config) *Engine {
	return &Engine{
		lib:             lib,
		blockThreshold:  cfg.BlockThreshold,
		reviewThreshold: cfg.ReviewThreshold,
		criticalScore:   cfg.CriticalScore,
	}
}

// Analyze runs the fast-allow checks and then, if neither applies, full
// pattern scoring across all normalized forms. It is deterministic: the same
// input always yields the same verdict.
func (e *Engine) Analyze(raw string) Verdict {
	if IsSafePhrase(raw) {
		return Verdict{
			AttackType: "Normal",
			Threshold:  e.blockThreshold,
			Severity:   SeveritySafe,
			Decision:   DecisionAllow,
			Evidence:   []string{ReasonSafePhrase},
		}
	}

	if IsNormalRequest(raw) {
		return Verdict{
			AttackType: "Normal",
			Threshold:  e.blockThreshold,
			Severity:   SeverityInfo,
			Decision:   DecisionAllow,
			Evidence:   []string{ReasonNormalRequest},
		}
	}

	forms := Normalize(raw)

	total := 0
	matchedRules := 0
	var candidates []Candidate

	for _, cat := range e.lib.Categories() {
		score := 0
		var matches []RuleMatch

		for _, rule := range cat.Rules {
			// A rule counts once even when it matches several forms.
			if rule.Regex.MatchString(forms.Lowered) ||
				rule.Regex.MatchString(forms.Cleaned) ||
				rule.Regex.MatchString(forms.Decoded) {
				w := rule.Severity.Score()
				score += w
				total += w
				matches = append(matches, RuleMatch{
					RuleID:   rule.ID,
					Pattern:  truncate(rule.Regex.String(), maxMatchPatternLen),
					Severity: rule.Severity,
					Score:    w,
				})
			}
		}

		if len(matches) > 0 {
			matchedRules += len(matches)
			summary := matches
			if len(summary) > 3 {
				summary = summary[:3]
			}
			candidates = append(candidates, Candidate{
				Type:        cat.Name,
				Score:       score,
				RuleMatches: len(matches),
				Evidence:    summary,
			})
		}
	}

	// Nothing fired: the rules cannot vouch either way, so hand the
	// request to the escalation path rather than guessing.
	if len(candidates) == 0 {
		return Verdict{
			AttackType:         "Unknown",
			Threshold:          e.blockThreshold,
			Severity:           SeverityInfo,
			Decision:           DecisionReview,
			Evidence:           []string{"no_pattern_match"},
			RequiresEscalation: true,
		}
	}

	// Highest-scoring category names the attack; ties go to the earlier
	// category in library order, keeping verdicts stable across runs.
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Score > best.Score {
			best = c
		}
	}

	var decision Decision
	var severity string
	switch {
	case total >= e.blockThreshold:
		decision = DecisionBlock
		if total >= e.criticalScore {
			severity = SeverityCritical
		} else {
			severity = SeverityHigh
		}
	case total >= e.reviewThreshold:
		decision = DecisionReview
		severity = SeverityMedium
	default:
		decision = DecisionMonitor
		severity = SeverityLow
	}

	evidence := make([]string, 0, 3)
	for _, c := range candidates {
		evidence = append(evidence, c.Type)
		if len(evidence) == 3 {
			break
		}
	}

	return Verdict{
		AttackType:   best.Type,
		Score:        total,
		Threshold:    e.blockThreshold,
		Severity:     severity,
		Decision:     decision,
		Evidence:     evidence,
		Candidates:   candidates,
		MatchedRules: matchedRules,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
