package event

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// ErrEmptyText indicates an incoming item with no usable text.
var ErrEmptyText = errors.New("event text cannot be empty")

// urlPattern strips URLs during canonicalization.
var urlPattern = regexp.MustCompile(`(?i)\bhttps?://\S+`)

// Embedder generates a semantic vector for a single text.
// The embedding provider is an external collaborator; only this narrow
// slice of it is needed here.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// defaultKeywords is the watchlist consulted when none is configured.
var defaultKeywords = []string{
	"listing", "lists", "delist", "hack", "exploit", "drained", "rug",
	"etf", "sec", "cftc", "lawsuit", "settlement", "bankruptcy",
	"partnership", "acquisition", "mainnet", "upgrade", "halving",
	"airdrop", "giveaway", "burn", "staking", "regulation", "approval",
}

// defaultAssets maps recognizable symbols/names to canonical tickers.
var defaultAssets = map[string]string{
	"btc": "BTC", "bitcoin": "BTC",
	"eth": "ETH", "ethereum": "ETH",
	"sol": "SOL", "solana": "SOL",
	"xrp": "XRP", "ripple": "XRP",
	"doge": "DOGE", "dogecoin": "DOGE",
	"ada": "ADA", "cardano": "ADA",
	"bnb": "BNB", "usdt": "USDT", "usdc": "USDC",
}

// informalMarkers flag chatter-style text; the dedup layer uses the
// looser similarity bar for those events.
var informalMarkers = []string{"lol", "lmao", "gm ", "wagmi", "moon", "!!!", "🚀", "🔥", "💎"}

// FingerprinterConfig holds the tunables for fingerprinting.
type FingerprinterConfig struct {
	// Keywords overrides the default watchlist.
	Keywords []string

	// FormalSources lists sources always treated as formal.
	FormalSources []string

	// EmbedTimeout bounds the embedding call.
	EmbedTimeout time.Duration
}

// Fingerprinter computes an event's identity triple: raw hash, canonical
// hash, and optional embedding.
type Fingerprinter struct {
	embedder      Embedder
	keywords      []string
	formalSources map[string]bool
	embedTimeout  time.Duration
	logger        *zap.Logger
}

// NewFingerprinter creates a Fingerprinter. A nil embedder disables the
// embedding stage; events then carry only the hash pair.
func NewFingerprinter(embedder Embedder, cfg FingerprinterConfig, logger *zap.Logger) *Fingerprinter {
	if logger == nil {
		logger = zap.NewNop()
	}
	keywords := cfg.Keywords
	if len(keywords) == 0 {
		keywords = defaultKeywords
	}
	formal := make(map[string]bool, len(cfg.FormalSources))
	for _, s := range cfg.FormalSources {
		formal[strings.ToLower(s)] = true
	}
	timeout := cfg.EmbedTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Fingerprinter{
		embedder:      embedder,
		keywords:      keywords,
		formalSources: formal,
		embedTimeout:  timeout,
		logger:        logger,
	}
}

// Fingerprint builds the immutable Event from an incoming item.
//
// The embedding call is bounded by the configured timeout; on failure the
// event simply carries no embedding. It is never retried inline and never
// blocks the pipeline beyond the timeout.
func (f *Fingerprinter) Fingerprint(ctx context.Context, in Incoming) (*Event, error) {
	if strings.TrimSpace(in.RawText) == "" {
		return nil, ErrEmptyText
	}

	ev := newEvent(in)
	ev.CanonicalText = Canonicalize(in.RawText)
	ev.HashRaw = hashHex([]byte(in.RawText))
	ev.HashCanonical = hashHex([]byte(ev.CanonicalText))
	ev.Language = detectLanguage(in.RawText)
	ev.KeywordsHit = f.matchKeywords(ev.CanonicalText)
	ev.AssetHint = detectAsset(ev.CanonicalText)
	ev.Formal = f.isFormal(ev)

	if f.embedder != nil {
		embedCtx, cancel := context.WithTimeout(ctx, f.embedTimeout)
		defer cancel()

		vec, err := f.embedder.EmbedQuery(embedCtx, ev.CanonicalText)
		if err != nil {
			f.logger.Warn("embedding unavailable, event proceeds without vector",
				zap.String("event_id", ev.ID),
				zap.Error(err))
		} else {
			ev.Embedding = vec
		}
	}

	return ev, nil
}

// Canonicalize normalizes text for canonical hashing: URLs removed,
// punctuation stripped (multi-script alphanumerics preserved), whitespace
// collapsed, lowercased.
func Canonicalize(text string) string {
	text = urlPattern.ReplaceAllString(text, " ")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// detectLanguage is a coarse script-based tag, enough to tag events for
// downstream formatting. Translation is an external collaborator.
func detectLanguage(text string) string {
	var letters, han int
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.Is(unicode.Han, r) {
				han++
			}
		}
	}
	switch {
	case letters == 0:
		return "und"
	case han*2 > letters:
		return "zh"
	default:
		return "en"
	}
}

func (f *Fingerprinter) matchKeywords(canonical string) []string {
	var hits []string
	padded := " " + canonical + " "
	for _, kw := range f.keywords {
		if strings.Contains(padded, " "+kw+" ") {
			hits = append(hits, kw)
		}
	}
	return hits
}

func detectAsset(canonical string) string {
	for _, tok := range strings.Fields(canonical) {
		if asset, ok := defaultAssets[tok]; ok {
			return asset
		}
	}
	return ""
}

func (f *Fingerprinter) isFormal(ev *Event) bool {
	if f.formalSources[strings.ToLower(ev.Source)] {
		return true
	}
	if kind, ok := ev.Metadata["source_kind"]; ok {
		if kind == "wire" || kind == "announcement" || kind == "official" {
			return true
		}
	}
	lower := strings.ToLower(ev.RawText)
	for _, marker := range informalMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	// Terse, punctuated single-sentence items read as formal.
	return !strings.Contains(ev.RawText, "!")
}
