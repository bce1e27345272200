package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/saat-labs/trapline/pkg/httputil"
)

// ScamPhrase is a known scam opener with its category label.
type ScamPhrase struct {
	Text     string
	Category ScamType
}

// DefaultScamPhrases seeds the phrase index. These are canonical openers per
// category; the embedding similarity generalizes over paraphrases.
var DefaultScamPhrases = []ScamPhrase{
	{"your account will be suspended unless you verify your details now", ScamPhishing},
	{"your bank account has been blocked, share the otp to reactivate", ScamPhishing},
	{"click this link to verify your identity immediately", ScamPhishing},
	{"pay the processing fee to release your funds", ScamPayment},
	{"send the amount to this upi id to complete the transaction", ScamPayment},
	{"a small advance payment is required to confirm your order", ScamPayment},
	{"congratulations you have won a lucky draw prize", ScamLottery},
	{"you have been selected for a cash reward, claim it today", ScamLottery},
	{"i am calling from your bank's fraud department", ScamImpersonation},
	{"this is the customs office, your parcel is held and needs clearance", ScamImpersonation},
	{"i am a government officer and your documents are incomplete", ScamImpersonation},
}

// CategoryHint is the advisory output of the phrase index. It annotates
// logs and telemetry only; the classification decision path never reads it.
type CategoryHint struct {
	Category ScamType `json:"category"`
	Score    float32  `json:"score"`
	Matched  string   `json:"matched"`
	IsStrong bool     `json:"is_strong"`
}

// PhraseIndex holds embedded scam phrases for similarity lookup.
type PhraseIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	threshold  float32

	mu    sync.RWMutex
	ready bool
}

// NewPhraseIndex creates an index over the given embedding function. Call
// Load before Annotate; Load is where embeddings are computed, so it needs
// the embedding backend up.
func NewPhraseIndex(embed chromem.EmbeddingFunc) (*PhraseIndex, error) {
	if embed == nil {
		return nil, fmt.Errorf("embedding function is nil")
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection("scam_phrases", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &PhraseIndex{
		db:         db,
		collection: collection,
		threshold:  0.65,
	}, nil
}

// Load embeds and stores the phrase set.
func (p *PhraseIndex) Load(ctx context.Context, phrases []ScamPhrase) error {
	if len(phrases) == 0 {
		phrases = DefaultScamPhrases
	}

	docs := make([]chromem.Document, 0, len(phrases))
	for i, ph := range phrases {
		docs = append(docs, chromem.Document{
			ID:       fmt.Sprintf("phrase-%d", i),
			Content:  ph.Text,
			Metadata: map[string]string{"category": string(ph.Category)},
		})
	}
	if err := p.collection.AddDocuments(ctx, docs, 2); err != nil {
		return fmt.Errorf("embed phrases: %w", err)
	}

	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()
	return nil
}

// IsReady reports whether the index is loaded.
func (p *PhraseIndex) IsReady() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// Annotate returns the closest scam-category hint for the text. Nil result
// with nil error means the index has nothing to say (not loaded or empty
// text).
func (p *PhraseIndex) Annotate(ctx context.Context, text string) (*CategoryHint, error) {
	if !p.IsReady() || text == "" {
		return nil, nil
	}

	results, err := p.collection.Query(ctx, text, 1, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query phrases: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	top := results[0]
	return &CategoryHint{
		Category: ParseScamType(top.Metadata["category"]),
		Score:    top.Similarity,
		Matched:  top.Content,
		IsStrong: top.Similarity >= p.threshold,
	}, nil
}

// NewOllamaEmbeddingFunc builds an embedding function against Ollama's
// native /api/embeddings endpoint (its OpenAI-compatible surface does not
// cover embeddings for all models).
func NewOllamaEmbeddingFunc(model, baseURL string) chromem.EmbeddingFunc {
	client := httputil.Client(httputil.TierSlow)

	return func(ctx context.Context, text string) ([]float32, error) {
		reqBody := map[string]string{
			"model":  model,
			"prompt": text,
		}
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/api/embeddings", bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer httputil.DrainAndClose(resp.Body)

		if resp.StatusCode != 200 {
			body, _ := httputil.ReadResponseBody(resp.Body, 4096)
			return nil, fmt.Errorf("ollama embedding error %d: %s", resp.StatusCode, string(body))
		}

		var result struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}

		return result.Embedding, nil
	}
}
