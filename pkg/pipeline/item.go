package pipeline

import (
	"fmt"

	"github.com/sochq/rampart/pkg/engine"
	"github.com/sochq/rampart/pkg/escalation"
)

// State is an item's position in the routing lifecycle.
type State string

const (
	StateNew         State = "NEW"
	StateFastAllowed State = "FAST_ALLOWED"
	StateBlocked     State = "BLOCKED"
	StateEscalated   State = "ESCALATED"
	StateCached      State = "CACHED"
	StateFinal       State = "FINAL"
)

// transitions is the allowed edge set. An item follows exactly one resolution
// path; anything else is a routing bug, caught at the transition.
var transitions = map[State][]State{
	StateNew:         {StateFastAllowed, StateBlocked, StateEscalated, StateCached},
	StateFastAllowed: {StateFinal},
	StateBlocked:     {StateFinal},
	StateEscalated:   {StateFinal},
	StateCached:      {StateFinal},
	StateFinal:       {},
}

// Item is one request moving through the pipeline.
type Item struct {
	ID      string `json:"id"`
	RawText string `json:"raw_text"`
	State   State  `json:"state"`

	// Rule engine verdict
	AttackType   string            `json:"attack_type"`
	AnomalyScore int               `json:"anomaly_score"`
	Severity     string            `json:"severity"`
	Decision     engine.Decision   `json:"decision"`
	Evidence     []string          `json:"evidence"`
	Candidates   []engine.Candidate `json:"attack_candidates,omitempty"`

	// Routing outcome
	Blocked bool `json:"blocked"`

	// Cache / retrieval
	Fingerprint string `json:"fingerprint"`
	CacheHit    bool   `json:"cache_hit"`
	RAGContext  string `json:"rag_context,omitempty"`

	// Escalation
	Escalation *escalation.Result `json:"escalation_result,omitempty"`

	FinalMessage string `json:"final_message"`
}

// To advances the item to the next state, rejecting edges outside the
// transition table.
func (it *Item) To(next State) error {
	for _, allowed := range transitions[it.State] {
		if allowed == next {
			it.State = next
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s for item %s", it.State, next, it.ID)
}

// Finalized reports whether the item reached its terminal state.
func (it *Item) Finalized() bool {
	return it.State == StateFinal
}
