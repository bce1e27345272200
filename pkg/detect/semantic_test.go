package detect

import (
	"context"
	"math"
	"testing"

	chromem "github.com/philippgille/chromem-go"
)

// stubEmbedder maps known texts to fixed unit vectors so similarity scores
// are fully deterministic. Unknown texts land on a reserved axis.
func stubEmbedder(vecs map[string][]float32, fallback []float32) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		if v, ok := vecs[text]; ok {
			return v, nil
		}
		return fallback, nil
	}
}

func axis(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

func TestPhraseIndexAnnotate(t *testing.T) {
	const dim = 8
	phrases := []ScamPhrase{
		{"pay the processing fee to release your funds", ScamPayment},
		{"congratulations you have won a lucky draw prize", ScamLottery},
	}

	vecs := map[string][]float32{
		phrases[0].Text: axis(dim, 0),
		phrases[1].Text: axis(dim, 1),
	}
	// A paraphrase that leans strongly toward the payment axis.
	paraphrase := "a release fee must be paid first"
	vecs[paraphrase] = []float32{0.9, 0, 0, 0, 0, 0, 0, float32(math.Sqrt(1 - 0.81))}

	idx, err := NewPhraseIndex(stubEmbedder(vecs, axis(dim, 7)))
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	if err := idx.Load(context.Background(), phrases); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !idx.IsReady() {
		t.Fatalf("index should be ready after Load")
	}

	hint, err := idx.Annotate(context.Background(), paraphrase)
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if hint == nil {
		t.Fatalf("expected a hint")
	}
	if hint.Category != ScamPayment {
		t.Fatalf("wrong category: %s", hint.Category)
	}
	if !hint.IsStrong {
		t.Fatalf("similarity %v should clear the threshold", hint.Score)
	}
	if hint.Matched != phrases[0].Text {
		t.Fatalf("wrong matched phrase: %q", hint.Matched)
	}
}

func TestPhraseIndexWeakMatch(t *testing.T) {
	const dim = 8
	phrases := []ScamPhrase{
		{"pay the processing fee to release your funds", ScamPayment},
	}
	vecs := map[string][]float32{
		phrases[0].Text: axis(dim, 0),
	}
	// Mostly off-axis: cosine against the phrase is 0.3, well under 0.65.
	offTopic := "see you at the gym tomorrow"
	vecs[offTopic] = []float32{0.3, 0, 0, 0, 0, 0, 0, float32(math.Sqrt(1 - 0.09))}

	idx, err := NewPhraseIndex(stubEmbedder(vecs, axis(dim, 7)))
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	if err := idx.Load(context.Background(), phrases); err != nil {
		t.Fatalf("load: %v", err)
	}

	hint, err := idx.Annotate(context.Background(), offTopic)
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if hint == nil {
		t.Fatalf("expected a hint even for weak matches")
	}
	if hint.IsStrong {
		t.Fatalf("similarity %v should not clear the threshold", hint.Score)
	}
}

func TestPhraseIndexNotReady(t *testing.T) {
	idx, err := NewPhraseIndex(stubEmbedder(nil, axis(8, 0)))
	if err != nil {
		t.Fatalf("new index: %v", err)
	}

	// Annotate before Load is a silent no-op.
	hint, err := idx.Annotate(context.Background(), "anything")
	if err != nil || hint != nil {
		t.Fatalf("unloaded index must return (nil, nil), got (%v, %v)", hint, err)
	}

	if err := idx.Load(context.Background(), nil); err != nil {
		t.Fatalf("load with default phrases: %v", err)
	}
	if !idx.IsReady() {
		t.Fatalf("index should be ready")
	}
}

func TestPhraseIndexEmptyText(t *testing.T) {
	idx, err := NewPhraseIndex(stubEmbedder(nil, axis(8, 0)))
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	if err := idx.Load(context.Background(), DefaultScamPhrases[:2]); err != nil {
		t.Fatalf("load: %v", err)
	}

	hint, err := idx.Annotate(context.Background(), "")
	if err != nil || hint != nil {
		t.Fatalf("empty text must return (nil, nil), got (%v, %v)", hint, err)
	}
}

func TestNewPhraseIndexNilEmbedder(t *testing.T) {
	if _, err := NewPhraseIndex(nil); err == nil {
		t.Fatalf("nil embedding function must be rejected")
	}
}
