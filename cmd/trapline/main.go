package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/saat-labs/trapline/pkg/config"
	"github.com/saat-labs/trapline/pkg/detect"
	"github.com/saat-labs/trapline/pkg/honeypot"
	"github.com/saat-labs/trapline/pkg/intel"
	"github.com/saat-labs/trapline/pkg/oracle"
	"github.com/saat-labs/trapline/pkg/pipeline"
	"github.com/saat-labs/trapline/pkg/risk"
	"github.com/saat-labs/trapline/pkg/session"
)

const Version = "0.1.0"

// Gateway holds the assembled detection-and-engagement pipeline.
type Gateway struct {
	engine     *pipeline.Engine
	classifier *detect.Classifier
	store      session.Store
	config     *config.Config
}

// NewGateway assembles the pipeline from config. Optional components (YAML
// detection overlay, Redis backend, semantic annotator) degrade to their
// defaults with a logged notice rather than failing startup.
func NewGateway(cfg *config.Config) (*Gateway, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	var keywords []string
	var followups map[detect.ScamType][]string
	if cfg.DetectionConfig != "" {
		dc, err := config.LoadDetectionConfig(cfg.DetectionConfig)
		if err != nil {
			return nil, err
		}
		dc.Apply(cfg)
		keywords = dc.Keywords
		followups = make(map[detect.ScamType][]string, len(dc.Followups))
		for k, v := range dc.Followups {
			followups[detect.ParseScamType(k)] = v
		}
		log.Printf("✓ detection config loaded from %s", cfg.DetectionConfig)
	}

	oc := oracle.NewClient(oracle.ClientConfig{
		Provider:    oracle.Provider(cfg.LLMProvider),
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		BaseURL:     cfg.LLMBaseURL,
		Timeout:     cfg.OracleTimeout,
		MaxInFlight: cfg.OracleMaxInFlight,
	})
	log.Printf("✓ oracle enabled (provider: %s, model: %s)", cfg.LLMProvider, cfg.LLMModel)

	classifierOpts := []detect.ClassifierOption{
		detect.WithKeywordConfidence(cfg.KeywordConfidence),
	}
	if len(keywords) > 0 {
		classifierOpts = append(classifierOpts, detect.WithKeywords(keywords))
	}
	classifier := detect.NewClassifier(oc, classifierOpts...)

	agentOpts := []honeypot.AgentOption{}
	if len(followups) > 0 {
		agentOpts = append(agentOpts, honeypot.WithFollowups(followups))
	}
	agent := honeypot.NewAgent(oc, agentOpts...)

	tracker := risk.NewTracker(cfg.BlockConfidence, cfg.HighRiskAvg, cfg.IncreasingDelta)

	var store session.Store
	switch cfg.SessionBackend {
	case config.BackendRedis:
		rs, err := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			session.WithRedisWindow(cfg.TranscriptWindow),
			session.WithRedisRiskHistory(cfg.RiskHistory),
			session.WithRedisMaxAge(cfg.SessionTTL),
		)
		if err != nil {
			log.Printf("○ redis session backend unavailable (%v), falling back to memory", err)
			store = newMemoryStore(cfg)
		} else {
			store = rs
			log.Printf("✓ session backend: redis (%s)", cfg.RedisAddr)
		}
	default:
		store = newMemoryStore(cfg)
	}

	var annotator *detect.PhraseIndex
	if cfg.EnableSemantics {
		idx, err := detect.NewPhraseIndex(detect.NewOllamaEmbeddingFunc(cfg.EmbedModel, cfg.EmbedBaseURL))
		if err != nil {
			log.Printf("○ semantic annotation disabled (init failed: %v)", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			if err := idx.Load(ctx, nil); err != nil {
				log.Printf("○ semantic annotation disabled (phrase load failed: %v)", err)
			} else {
				annotator = idx
				log.Println("✓ semantic annotation enabled (chromem-go + embeddings)")
			}
			cancel()
		}
	} else {
		log.Println("○ semantic annotation disabled")
	}

	return &Gateway{
		engine:     pipeline.NewEngine(store, classifier, agent, tracker, annotator),
		classifier: classifier,
		store:      store,
		config:     cfg,
	}, nil
}

func newMemoryStore(cfg *config.Config) session.Store {
	log.Println("✓ session backend: memory")
	return session.NewMemoryStore(
		session.WithWindow(cfg.TranscriptWindow),
		session.WithRiskHistory(cfg.RiskHistory),
		session.WithMaxAge(cfg.SessionTTL),
		session.WithMaxSessions(cfg.MaxSessions),
	)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		port := "8000"
		if len(os.Args) > 2 {
			port = os.Args[2]
		}
		runHTTPServer(port)
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Usage: trapline scan <text>")
			os.Exit(1)
		}
		runCLIScan(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("TrapLine v%s\n", Version)
		fmt.Println("Conversational scam detection and honeypot gateway")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("TrapLine v%s - scam detection and honeypot gateway\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  trapline serve [port]   Start the webhook gateway (default: 8000)")
	fmt.Println("  trapline scan <text>    Classify a single message")
	fmt.Println("  trapline version        Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  TRAPLINE_API_KEY           Shared secret for the webhook (X-API-Key)")
	fmt.Println("  TRAPLINE_LLM_PROVIDER      Provider: groq, ollama, openrouter, custom")
	fmt.Println("  TRAPLINE_LLM_API_KEY       API key for cloud providers")
	fmt.Println("  TRAPLINE_SESSION_BACKEND   Session store: memory (default) or redis")
	fmt.Println("  TRAPLINE_DETECTION_CONFIG  YAML overlay for keywords/followups/thresholds")
}

// ============================================================================
// HTTP Server Mode
// ============================================================================

func runHTTPServer(port string) {
	cfg := config.NewDefaultConfig()
	gw, err := NewGateway(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer gw.store.Close()

	app := fiber.New(fiber.Config{
		AppName: "TrapLine",
	})

	// Health check - no dependency on the detection core
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": Version, "sessions": gw.store.Stats()})
	})

	// Webhook platforms probe the endpoint before registering it
	preflight := func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	}
	app.Get("/webhook", preflight)
	app.Head("/webhook", preflight)
	app.Options("/webhook", preflight)

	app.Post("/webhook", func(c fiber.Ctx) error {
		// Auth first: a mismatch must cause no side effects, not even a
		// body parse.
		if !authorized(c.Get("X-API-Key"), cfg.APIKey) {
			return c.Status(401).JSON(fiber.Map{"error": "invalid API key"})
		}

		var req pipeline.Request
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.SessionID == "" {
			return c.Status(400).JSON(fiber.Map{"error": "session_id field is required"})
		}
		if req.Message == "" {
			return c.Status(400).JSON(fiber.Map{"error": "message field is required"})
		}

		resp, err := gw.engine.Handle(c.Context(), req)
		if err != nil {
			log.Printf("pipeline error: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "internal error"})
		}
		return c.JSON(resp)
	})

	// Stateless one-shot classification; no session mutation
	app.Post("/scan", func(c fiber.Ctx) error {
		var req struct {
			Text string `json:"text"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.Text == "" {
			return c.Status(400).JSON(fiber.Map{"error": "text field is required"})
		}
		result := gw.classifier.ClassifySession(c.Context(), []session.Turn{session.UserTurn(req.Text)})
		return c.JSON(fiber.Map{
			"result":                 result,
			"extracted_intelligence": intel.Extract(req.Text),
		})
	})

	log.Printf("TrapLine gateway starting on :%s", port)
	log.Printf("Endpoints:")
	log.Printf("  GET  /health   - Liveness probe")
	log.Printf("  POST /webhook  - Detection and engagement (X-API-Key)")
	log.Printf("  POST /scan     - Stateless classification")

	if err := app.Listen(":" + port); err != nil {
		log.Fatal(err)
	}
}

// authorized compares the presented key in constant time.
func authorized(presented, expected string) bool {
	if presented == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

// ============================================================================
// CLI Mode
// ============================================================================

func runCLIScan(text string) {
	gw, err := NewGateway(config.NewDefaultConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer gw.store.Close()

	result := gw.classifier.ClassifySession(context.Background(), []session.Turn{session.UserTurn(text)})
	out := struct {
		Result detect.Result `json:"result"`
		Intel  intel.Report  `json:"extracted_intelligence"`
	}{result, intel.Extract(text)}

	encoded, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(encoded))
}
