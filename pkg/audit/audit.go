// Package audit appends finalized verdicts to a JSONL file and, when a
// Postgres DSN is configured, mirrors them into a table for SQL-side
// forensics. Auditing is best-effort: a failed write is logged and dropped,
// it never delays or fails the verdict itself.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sochq/rampart/pkg/httputil"
)

const schema = `
CREATE TABLE IF NOT EXISTS rampart_audit (
	id            BIGSERIAL PRIMARY KEY,
	item_id       TEXT        NOT NULL,
	fingerprint   TEXT        NOT NULL,
	attack_type   TEXT        NOT NULL,
	decision      TEXT        NOT NULL,
	blocked       BOOLEAN     NOT NULL,
	anomaly_score INTEGER     NOT NULL,
	severity      TEXT        NOT NULL,
	cache_hit     BOOLEAN     NOT NULL,
	final_message TEXT        NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Entry is one audit record, serialized as a JSON line.
type Entry struct {
	ItemID       string `json:"item_id"`
	Fingerprint  string `json:"fingerprint"`
	AttackType   string `json:"attack_type"`
	Decision     string `json:"decision"`
	Blocked      bool   `json:"blocked"`
	AnomalyScore int    `json:"anomaly_score"`
	Severity     string `json:"severity"`
	CacheHit     bool   `json:"cache_hit"`
	FinalMessage string `json:"final_message"`
	RecordedAt   string `json:"recorded_at"`
}

// Logger writes audit entries. The file sink is synchronous (append to a
// local file is cheap); the Postgres sink runs async behind a semaphore so
// a slow database backs pressure onto dropped audit rows, not onto verdicts.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	pool *pgxpool.Pool
	sem  *httputil.Semaphore
}

// New opens the JSONL sink at path and, when dsn is non-empty, connects the
// Postgres sink and ensures its table exists.
func New(ctx context.Context, path, dsn string) (*Logger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}

	l := &Logger{file: file, sem: httputil.NewSemaphore(8)}

	if dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("connect audit database: %w", err)
		}
		if _, err := pool.Exec(ctx, schema); err != nil {
			pool.Close()
			file.Close()
			return nil, fmt.Errorf("ensure audit table: %w", err)
		}
		l.pool = pool
	}

	return l, nil
}

// Record persists one entry. The timestamp is stamped here so callers pass
// only verdict fields.
func (l *Logger) Record(entry Entry) {
	entry.RecordedAt = time.Now().UTC().Format(time.RFC3339)

	line, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[WARN] audit marshal failed for item %s: %v", entry.ItemID, err)
		return
	}

	l.mu.Lock()
	_, err = l.file.Write(append(line, '\n'))
	l.mu.Unlock()
	if err != nil {
		log.Printf("[WARN] audit file write failed: %v", err)
	}

	if l.pool == nil {
		return
	}
	if !l.sem.TryAcquire() {
		// Database sink saturated; the file line above is the record.
		return
	}
	go func() {
		defer l.sem.Release()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := l.pool.Exec(ctx,
			`INSERT INTO rampart_audit
			 (item_id, fingerprint, attack_type, decision, blocked, anomaly_score, severity, cache_hit, final_message)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			entry.ItemID, entry.Fingerprint, entry.AttackType, entry.Decision,
			entry.Blocked, entry.AnomalyScore, entry.Severity, entry.CacheHit, entry.FinalMessage)
		if err != nil {
			log.Printf("[WARN] audit database insert failed: %v", err)
		}
	}()
}

// DroppedDatabaseWrites reports how many entries skipped the Postgres sink
// because it was saturated.
func (l *Logger) DroppedDatabaseWrites() int64 {
	return l.sem.DroppedCount()
}

func (l *Logger) Close() error {
	if l.pool != nil {
		l.pool.Close()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
