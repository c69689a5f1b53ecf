// Package pipeline routes request items through analysis: cache check, rule
// scoring, fast-allow short circuit, and escalation for items the rules
// could not settle. Every item leaves in state FINAL having taken exactly
// one resolution path.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/sochq/rampart/pkg/cache"
	"github.com/sochq/rampart/pkg/config"
	"github.com/sochq/rampart/pkg/engine"
	"github.com/sochq/rampart/pkg/escalation"
	"github.com/sochq/rampart/pkg/httputil"
	"github.com/sochq/rampart/pkg/retrieval"
)

// Escalator resolves items the rule engine left ambiguous.
type Escalator interface {
	Classify(ctx context.Context, requestText, ragContext string) escalation.Result
}

// ContextRetriever supplies similar historical examples for escalated items.
type ContextRetriever interface {
	Search(ctx context.Context, text string, k int) ([]retrieval.Match, error)
}

// Pipeline owns the per-item routing. The retriever may be nil (retrieval
// disabled); the escalator must not be, escalation outages are handled
// inside the client.
type Pipeline struct {
	cfg       *config.Config
	engine    *engine.Engine
	store     cache.Store
	retriever ContextRetriever
	escalator Escalator
	sem       *httputil.Semaphore
}

func New(cfg *config.Config, eng *engine.Engine, store cache.Store, retriever ContextRetriever, escalator Escalator) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		engine:    eng,
		store:     store,
		retriever: retriever,
		escalator: escalator,
		sem:       httputil.NewSemaphore(cfg.BatchConcurrency),
	}
}

// cachedResult is the terminal field set persisted per fingerprint and
// copied back on a hit.
type cachedResult struct {
	AttackType   string             `json:"attack_type"`
	AnomalyScore int                `json:"anomaly_score"`
	Severity     string             `json:"severity"`
	Decision     engine.Decision    `json:"decision"`
	Evidence     []string           `json:"evidence"`
	Candidates   []engine.Candidate `json:"attack_candidates,omitempty"`
	Blocked      bool               `json:"blocked"`
	Escalation   *escalation.Result `json:"escalation_result,omitempty"`
	FinalMessage string             `json:"final_message"`
}

// Process analyzes all items of a batch in parallel, bounded by the
// configured concurrency. It returns when every item is FINAL.
func (p *Pipeline) Process(ctx context.Context, items []*Item) {
	var wg sync.WaitGroup
	for _, item := range items {
		if err := p.sem.Acquire(ctx); err != nil {
			// Context gone: resolve remaining items inline without
			// parallelism rather than dropping them.
			p.processItem(ctx, item)
			continue
		}
		wg.Add(1)
		go func(it *Item) {
			defer wg.Done()
			defer p.sem.Release()
			p.processItem(ctx, it)
		}(item)
	}
	wg.Wait()
}

func (p *Pipeline) processItem(ctx context.Context, item *Item) {
	item.Fingerprint = cache.Fingerprint(item.RawText)

	if p.restoreFromCache(ctx, item) {
		return
	}

	v := p.engine.Analyze(item.RawText)
	item.AttackType = v.AttackType
	item.AnomalyScore = v.Score
	item.Severity = v.Severity
	item.Decision = v.Decision
	item.Evidence = v.Evidence
	item.Candidates = v.Candidates

	switch v.Decision {
	case engine.DecisionAllow:
		// Cheap enough to recompute; fast-allowed items skip the cache.
		p.mustTo(item, StateFastAllowed)

	case engine.DecisionBlock:
		item.Blocked = true
		item.FinalMessage = fmt.Sprintf("[BLOCKED] %s | Score=%d | Severity=%s",
			item.AttackType, item.AnomalyScore, item.Severity)
		p.mustTo(item, StateBlocked)
		p.writeCache(ctx, item)

	default: // REVIEW and MONITOR gather context and escalate
		p.mustTo(item, StateEscalated)
		p.escalate(ctx, item)
		p.writeCache(ctx, item)
	}

	p.mustTo(item, StateFinal)
}

// restoreFromCache copies a prior verdict for the same fingerprint, if any.
// Cache errors degrade to a miss: a broken cache slows the gateway down, it
// must never change a verdict.
func (p *Pipeline) restoreFromCache(ctx context.Context, item *Item) bool {
	payload, err := p.store.Get(ctx, item.Fingerprint)
	if err == cache.ErrMiss {
		return false
	}
	if err != nil {
		log.Printf("[WARN] cache lookup failed for %s: %v", item.Fingerprint, err)
		return false
	}

	var cached cachedResult
	if err := json.Unmarshal(payload, &cached); err != nil {
		log.Printf("[WARN] corrupt cache entry %s: %v", item.Fingerprint, err)
		return false
	}

	item.CacheHit = true
	item.AttackType = cached.AttackType
	item.AnomalyScore = cached.AnomalyScore
	item.Severity = cached.Severity
	item.Decision = cached.Decision
	item.Evidence = cached.Evidence
	item.Candidates = cached.Candidates
	item.Blocked = cached.Blocked
	item.Escalation = cached.Escalation
	item.FinalMessage = cached.FinalMessage

	p.mustTo(item, StateCached)
	p.mustTo(item, StateFinal)
	return true
}

// escalate retrieves similar examples and asks the escalation client for a
// verdict. A verdict that flags the request upgrades the item to BLOCK.
func (p *Pipeline) escalate(ctx context.Context, item *Item) {
	if p.retriever != nil && p.cfg.EnableRetrieval {
		matches, err := p.retriever.Search(ctx, item.RawText, p.cfg.RetrievalK)
		if err != nil {
			log.Printf("[WARN] context retrieval failed for item %s: %v", item.ID, err)
		} else {
			item.RAGContext = retrieval.FormatContext(matches)
		}
	}

	res := p.escalator.Classify(ctx, item.RawText, item.RAGContext)
	item.Escalation = &res
	item.FinalMessage = res.Verdict

	if res.IsMalicious() {
		item.Blocked = true
		item.Decision = engine.DecisionBlock
	}
}

func (p *Pipeline) writeCache(ctx context.Context, item *Item) {
	payload, err := json.Marshal(cachedResult{
		AttackType:   item.AttackType,
		AnomalyScore: item.AnomalyScore,
		Severity:     item.Severity,
		Decision:     item.Decision,
		Evidence:     item.Evidence,
		Candidates:   item.Candidates,
		Blocked:      item.Blocked,
		Escalation:   item.Escalation,
		FinalMessage: item.FinalMessage,
	})
	if err != nil {
		log.Printf("[WARN] cache marshal failed for item %s: %v", item.ID, err)
		return
	}

	if _, err := p.store.Put(ctx, item.Fingerprint, payload); err != nil {
		log.Printf("[WARN] cache write failed for %s: %v", item.Fingerprint, err)
	}
}

// mustTo applies a transition that the routing logic guarantees is legal.
func (p *Pipeline) mustTo(item *Item, next State) {
	if err := item.To(next); err != nil {
		log.Printf("[WARN] %v", err)
	}
}
