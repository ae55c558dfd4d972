package passage

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog/log"
)

//go:embed words.txt
var embeddedWords string

const (
	MinWordCount     = 5
	MaxWordCount     = 100
	DefaultWordCount = 25
)

var ErrInvalidConfig = errors.New("invalid-passage-config")

// Config controls how a passage is built.
type Config struct {
	WordCount   int  `json:"wordCount"`
	Punctuation bool `json:"punctuation"`
	Capitals    bool `json:"capitals"`
}

func DefaultConfig() Config {
	return Config{WordCount: DefaultWordCount}
}

func (c Config) Validate() error {
	if c.WordCount < MinWordCount || c.WordCount > MaxWordCount {
		return ErrInvalidConfig
	}
	return nil
}

type WordSource interface {
	RandomWords(ctx context.Context, count int) ([]string, error)
}

type Generator struct {
	source   WordSource
	fallback []string
	mu       sync.Mutex
	rng      *rand.Rand
}

// NewGenerator builds passages from source, falling back to the embedded
// list when source is nil, fails, or returns fewer words than asked for.
func NewGenerator(source WordSource, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{source: source, fallback: loadEmbedded(), rng: rng}
}

func loadEmbedded() []string {
	var words []string
	scanner := bufio.NewScanner(strings.NewReader(embeddedWords))
	for scanner.Scan() {
		if w := strings.TrimSpace(scanner.Text()); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func (g *Generator) Generate(ctx context.Context, cfg Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	words := g.pickWords(ctx, cfg.WordCount)

	g.mu.Lock()
	defer g.mu.Unlock()

	var sb strings.Builder
	sentenceStart := true
	for i, w := range words {
		if cfg.Capitals && (sentenceStart || g.rng.IntN(5) == 0) {
			w = capitalize(w)
		}
		sentenceStart = false
		sb.WriteString(w)

		last := i == len(words)-1
		if cfg.Punctuation {
			switch {
			case last:
				sb.WriteByte('.')
			case g.rng.IntN(8) == 0:
				sb.WriteByte('.')
				sentenceStart = true
			case g.rng.IntN(6) == 0:
				sb.WriteByte(',')
			}
		}
		if !last {
			sb.WriteByte(' ')
		}
	}
	return sb.String(), nil
}

func (g *Generator) pickWords(ctx context.Context, count int) []string {
	if g.source != nil {
		words, err := g.source.RandomWords(ctx, count)
		if err == nil && len(words) >= count {
			return words[:count]
		}
		if err != nil {
			log.Warn().Err(err).Msg("word source failed, using embedded list")
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	words := make([]string, count)
	for i := range words {
		words[i] = g.fallback[g.rng.IntN(len(g.fallback))]
	}
	return words
}

func capitalize(w string) string {
	r := []rune(w)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
