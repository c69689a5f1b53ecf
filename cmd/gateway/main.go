package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/sochq/rampart/pkg/audit"
	"github.com/sochq/rampart/pkg/cache"
	"github.com/sochq/rampart/pkg/config"
	"github.com/sochq/rampart/pkg/engine"
	"github.com/sochq/rampart/pkg/escalation"
	"github.com/sochq/rampart/pkg/patterns"
	"github.com/sochq/rampart/pkg/pipeline"
	"github.com/sochq/rampart/pkg/response"
	"github.com/sochq/rampart/pkg/retrieval"
)

const Version = "0.1.0"

// Gateway wires the analysis components together. The cache, retriever and
// escalation provider are optional and degrade gracefully; the pattern
// library and rule engine are not.
type Gateway struct {
	cfg      *config.Config
	store    cache.Store
	pipeline *pipeline.Pipeline
	audit    *audit.Logger
}

func NewGateway(cfg *config.Config) *Gateway {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	cfg.MustValidate()

	lib, err := patterns.Load(cfg.PatternOverlayPath)
	if err != nil {
		log.Fatalf("[STARTUP] FATAL: pattern library: %v", err)
	}
	log.Printf("✓ Pattern library loaded (%d categories, %d rules)", len(lib.CategoryNames()), lib.RuleCount())

	eng := engine.NewEngine(lib, cfg)

	// Result cache: Redis when configured, in-process memory otherwise.
	var store cache.Store
	if cfg.RedisAddr != "" {
		redisStore, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.CacheTTL)
		if err != nil {
			log.Fatalf("[STARTUP] FATAL: redis cache: %v", err)
		}
		store = redisStore
		log.Printf("✓ Result cache enabled (redis at %s)", cfg.RedisAddr)
	} else {
		store = cache.NewMemory()
		log.Println("✓ Result cache enabled (in-process memory)")
	}

	// Context retriever - optional, needs an embedding source.
	var retriever pipeline.ContextRetriever
	if cfg.EnableRetrieval {
		ollamaURL := config.GetEnv("RAMPART_OLLAMA_URL", "http://localhost:11434")
		r, err := retrieval.NewOllamaRetriever(config.GetEnv("RAMPART_EMBED_MODEL", ""), ollamaURL)
		if err != nil {
			log.Printf("○ Context retrieval disabled (init failed: %v)", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			if err := r.Load(ctx, cfg.SeedDir); err != nil {
				log.Printf("○ Context retrieval disabled (seed load failed: %v)", err)
			} else {
				retriever = r
				log.Printf("✓ Context retrieval enabled (%d examples indexed)", r.Count())
			}
			cancel()
		}
	} else {
		log.Println("○ Context retrieval disabled")
	}

	escalator := escalation.NewClient(cfg)
	if cfg.LLMProvider == config.ProviderNone {
		log.Println("○ Escalation disabled (rules-only mode, ambiguous items use the fallback verdict)")
	} else {
		log.Printf("✓ Escalation enabled (provider: %s, model: %s)", cfg.LLMProvider, cfg.LLMModel)
	}

	var auditLogger *audit.Logger
	al, err := audit.New(context.Background(), cfg.AuditLogPath, cfg.PostgresDSN)
	if err != nil {
		log.Printf("○ Audit log disabled (%v)", err)
	} else {
		auditLogger = al
		if cfg.PostgresDSN != "" {
			log.Printf("✓ Audit log enabled (%s + postgres)", cfg.AuditLogPath)
		} else {
			log.Printf("✓ Audit log enabled (%s)", cfg.AuditLogPath)
		}
	}

	return &Gateway{
		cfg:      cfg,
		store:    store,
		pipeline: pipeline.New(cfg, eng, store, retriever, escalator),
		audit:    auditLogger,
	}
}

// Analyze runs one batch end to end and assembles the response envelope.
func (g *Gateway) Analyze(ctx context.Context, body []byte) (response.Envelope, error) {
	items, err := pipeline.ParseBatch(body)
	if err != nil {
		return response.Envelope{}, err
	}

	g.pipeline.Process(ctx, items)

	if g.audit != nil {
		for _, it := range items {
			g.audit.Record(audit.Entry{
				ItemID:       it.ID,
				Fingerprint:  it.Fingerprint,
				AttackType:   it.AttackType,
				Decision:     string(it.Decision),
				Blocked:      it.Blocked,
				AnomalyScore: it.AnomalyScore,
				Severity:     it.Severity,
				CacheHit:     it.CacheHit,
				FinalMessage: it.FinalMessage,
			})
		}
	}

	return response.Build(items), nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		port := "3000"
		if len(os.Args) > 2 {
			port = os.Args[2]
		}
		runHTTPServer(port)
	case "analyze":
		if len(os.Args) < 3 {
			fmt.Println("Usage: rampart analyze <request text>")
			os.Exit(1)
		}
		runCLIAnalyze(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("Rampart v%s\n", Version)
		fmt.Println("HTTP Request Threat Triage Gateway")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Rampart v%s - HTTP Request Threat Triage Gateway\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  rampart serve [port]      Start HTTP server (default: 3000)")
	fmt.Println("  rampart analyze <text>    Analyze one request from the command line")
	fmt.Println("  rampart version           Show version")
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Println("  rampart serve 8080")
	fmt.Println("  rampart analyze \"id=1 UNION SELECT password FROM users\"")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  RAMPART_LLM_PROVIDER     Escalation provider: none, ollama, openrouter, groq")
	fmt.Println("  RAMPART_LLM_API_KEY      API key for cloud escalation providers")
	fmt.Println("  RAMPART_REDIS_ADDR       Redis address for the shared result cache")
	fmt.Println("  RAMPART_PATTERN_OVERLAY  YAML file overriding pattern categories")
	fmt.Println("  RAMPART_SEED_DIR         Directory of YAML retrieval seed files")
}

// ============================================================================
// HTTP Server Mode
// ============================================================================

func runHTTPServer(port string) {
	gw := NewGateway(config.NewDefaultConfig())

	app := fiber.New(fiber.Config{
		AppName: "Rampart",
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": Version})
	})

	// Batch analysis. Body: JSON string, array of strings, or {"requests": [...]}.
	app.Post("/analyze", func(c fiber.Ctx) error {
		envelope, err := gw.Analyze(c.Context(), c.Body())
		if err != nil {
			if errors.Is(err, pipeline.ErrInvalidBatch) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(envelope)
	})

	app.Get("/cache/stats", func(c fiber.Ctx) error {
		stats, err := gw.store.Stats(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(stats)
	})

	// Operator purge: reopens the write-once slot for one fingerprint.
	app.Delete("/cache/:fingerprint", func(c fiber.Ctx) error {
		deleted, err := gw.store.Delete(c.Context(), c.Params("fingerprint"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		if !deleted {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no entry for fingerprint"})
		}
		return c.JSON(fiber.Map{"deleted": c.Params("fingerprint")})
	})

	log.Printf("Rampart HTTP server starting on :%s", port)
	log.Printf("Endpoints:")
	log.Printf("  GET    /health              - Health check")
	log.Printf("  POST   /analyze             - Analyze a batch of request strings")
	log.Printf("  GET    /cache/stats         - Result cache counters")
	log.Printf("  DELETE /cache/:fingerprint  - Purge one cached verdict")

	if err := app.Listen(":" + port); err != nil {
		log.Fatal(err)
	}
}

// ============================================================================
// CLI Mode
// ============================================================================

func runCLIAnalyze(text string) {
	gw := NewGateway(config.NewDefaultConfig())

	body, err := json.Marshal(text)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	envelope, err := gw.Analyze(context.Background(), body)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	out, _ := json.MarshalIndent(envelope, "", "  ")
	fmt.Println(string(out))
}
