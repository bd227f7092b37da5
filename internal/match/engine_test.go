package match

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/starford/othala/internal/extract"
	"github.com/starford/othala/internal/rules"
	"github.com/starford/othala/internal/testutil"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doc(path, text string) *extract.Content {
	return &extract.Content{SourcePath: path, Type: extract.TypeText, Text: text}
}

func rule(name, dest string, keywords ...string) rules.Rule {
	return rules.Rule{ID: name, Name: name, Keywords: keywords, Destination: dest, Active: true}
}

func TestFindBestMatch_FilenameStageWins(t *testing.T) {
	e := New(&testutil.StaticEmbedder{}, discard())

	finance := rule("Receipts", "/Archive/Finance", "invoice", "receipt")
	media := rule("Media", "/Archive/Media", "photo")

	res, err := e.FindBestMatch(context.Background(),
		[]rules.Rule{finance, media},
		doc("invoice_march.pdf", "invoice payment details"))
	if err != nil {
		t.Fatalf("FindBestMatch: %v", err)
	}
	if res == nil {
		t.Fatal("expected a match")
	}
	if res.Rule.Name != "Receipts" {
		t.Errorf("rule = %q, want Receipts", res.Rule.Name)
	}
	if res.Stage != StageFilename {
		t.Errorf("stage = %q, want filename", res.Stage)
	}
	if res.Score < DefaultRuleThreshold || res.Score > 1 {
		t.Errorf("score = %f, want within [%f, 1]", res.Score, DefaultRuleThreshold)
	}
	if len(res.Matched) != 1 || res.Matched[0].Keyword != "invoice" || res.Matched[0].Token != "invoice" {
		t.Errorf("matched = %+v", res.Matched)
	}
}

func TestFindBestMatch_ContentFallback(t *testing.T) {
	e := New(&testutil.StaticEmbedder{}, discard())

	finance := rule("Receipts", "/Archive/Finance", "invoice")

	res, err := e.FindBestMatch(context.Background(),
		[]rules.Rule{finance},
		doc("scan0001.pdf", "this invoice covers consulting services"))
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("expected a content-stage match")
	}
	if res.Stage != StageContent {
		t.Errorf("stage = %q, want content", res.Stage)
	}
}

func TestFindBestMatch_NoRuleClearsThreshold(t *testing.T) {
	e := New(&testutil.StaticEmbedder{}, discard())

	finance := rule("Receipts", "/Archive/Finance", "invoice")

	res, err := e.FindBestMatch(context.Background(),
		[]rules.Rule{finance},
		doc("holiday_photos.zip", "beach sunset mountains"))
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
}

func TestFindBestMatch_EmptyRuleSet(t *testing.T) {
	e := New(&testutil.StaticEmbedder{}, discard())
	res, err := e.FindBestMatch(context.Background(), nil, doc("a.txt", "text"))
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Errorf("expected nil result for empty rule set, got %+v", res)
	}
}

func TestFindBestMatch_ResultNeverBelowThreshold(t *testing.T) {
	// Keyword similarity 0.6 clears the keyword floor but a single keyword
	// pooling to 0.6 must not clear the 0.7 rule threshold.
	emb := &testutil.StaticEmbedder{Vectors: map[string][]float32{
		"statement": {1, 0, 0},
		"bank":      {0.6, 0.8, 0},
	}}
	e := New(emb, discard())

	r := rule("Bank", "/Archive/Bank", "statement")
	res, err := e.FindBestMatch(context.Background(), []rules.Rule{r}, doc("bank.txt", "bank"))
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Errorf("score 0.6 cleared the 0.7 threshold: %+v", res)
	}
}

func TestFindBestMatch_KeywordFloorFiltersWeakKeywords(t *testing.T) {
	// "invoice" matches exactly; "receipt" has only a 0.3 neighbor and must
	// not drag the pooled average down.
	emb := &testutil.StaticEmbedder{Vectors: map[string][]float32{
		"invoice": {1, 0, 0, 0},
		"receipt": {0, 1, 0, 0},
		"summary": {0, 0.3, 0.9539392, 0},
	}}
	e := New(emb, discard())

	r := rule("Receipts", "/Archive/Finance", "invoice", "receipt")
	res, err := e.FindBestMatch(context.Background(), []rules.Rule{r}, doc("x.txt", "invoice summary"))
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("expected a match")
	}
	if len(res.Matched) != 1 || res.Matched[0].Keyword != "invoice" {
		t.Errorf("matched = %+v, want only invoice", res.Matched)
	}
	if res.Score < 0.999 {
		t.Errorf("score = %f, want ~1.0 (weak keyword excluded from pool)", res.Score)
	}
}

func TestFindBestMatch_TieBreaksByRuleOrder(t *testing.T) {
	e := New(&testutil.StaticEmbedder{}, discard())

	first := rule("First", "/a", "report")
	second := rule("Second", "/b", "report")

	res, err := e.FindBestMatch(context.Background(),
		[]rules.Rule{first, second}, doc("report.txt", ""))
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("expected a match")
	}
	if res.Rule.Name != "First" {
		t.Errorf("rule = %q, want First (tie broken by order)", res.Rule.Name)
	}
}

func TestFindBestMatch_UsesCachedRuleEmbeddings(t *testing.T) {
	// The rule carries a precomputed embedding for "invoice" that points at
	// the same vector the document token will get, while the embedder would
	// assign a different basis vector if asked to embed the keyword fresh.
	emb := &testutil.StaticEmbedder{Vectors: map[string][]float32{
		"invoice": {0, 0, 1},
	}}
	r := rule("Receipts", "/Archive/Finance", "invoice")
	r.Embeddings = [][]float32{{0, 0, 1}}

	e := New(emb, discard())
	res, err := e.FindBestMatch(context.Background(), []rules.Rule{r}, doc("invoice.pdf", ""))
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.Score < 0.999 {
		t.Fatalf("expected exact match via cached embedding, got %+v", res)
	}
}
