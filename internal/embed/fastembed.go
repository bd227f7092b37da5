package embed

import (
	"context"
	"fmt"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig configures the local ONNX embedding model.
type FastEmbedConfig struct {
	// Model is the embedding model name. Defaults to BAAI/bge-small-en-v1.5.
	Model string
	// CacheDir is where model files are downloaded and cached.
	CacheDir string
	// MaxLength is the maximum input sequence length. Defaults to 512.
	MaxLength int
}

// modelMapping maps config model names to fastembed constants.
var modelMapping = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// modelDimensions maps fastembed models to their output dimensions.
var modelDimensions = map[fastembed.EmbeddingModel]int{
	fastembed.BGESmallENV15: 384,
	fastembed.BGEBaseENV15:  768,
	fastembed.AllMiniLML6V2: 384,
}

// FastEmbed is a Provider backed by a pretrained local ONNX model. Keywords
// and tokens are short strings that repeat heavily across documents, so
// results are memoized.
type FastEmbed struct {
	model     *fastembed.FlagEmbedding
	dimension int

	mu    sync.Mutex
	cache map[string][]float32
}

// cacheLimit bounds the memoization map. Rule keywords plus the content-token
// cap keep working sets far below this; the limit only guards pathological
// vocabularies.
const cacheLimit = 8192

// NewFastEmbed downloads (on first use) and loads the configured model.
func NewFastEmbed(cfg FastEmbedConfig) (*FastEmbed, error) {
	name := cfg.Model
	if name == "" {
		name = "BAAI/bge-small-en-v1.5"
	}
	model, ok := modelMapping[name]
	if !ok {
		return nil, fmt.Errorf("embed: unsupported model %q", name)
	}

	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}
	showProgress := false

	fe, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cfg.CacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: init model %q: %w", name, err)
	}

	return &FastEmbed{
		model:     fe,
		dimension: modelDimensions[model],
		cache:     make(map[string][]float32),
	}, nil
}

// Embed returns the L2-normalized embedding of text.
func (f *FastEmbed) Embed(ctx context.Context, text string) ([]float32, error) {
	text = normalizeInput(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	if v, ok := f.cache[text]; ok {
		f.mu.Unlock()
		return v, nil
	}
	f.mu.Unlock()

	v, err := f.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	v = Normalize(v)

	f.mu.Lock()
	if len(f.cache) >= cacheLimit {
		f.cache = make(map[string][]float32)
	}
	f.cache[text] = v
	f.mu.Unlock()

	return v, nil
}

// Dimension returns the embedding dimension of the loaded model.
func (f *FastEmbed) Dimension() int {
	return f.dimension
}

// Close releases the underlying ONNX session.
func (f *FastEmbed) Close() error {
	return f.model.Destroy()
}

// Verify FastEmbed satisfies Provider at compile time.
var _ Provider = (*FastEmbed)(nil)
