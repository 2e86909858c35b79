package core

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/unicproject/unic/internal/embedding"
	"github.com/unicproject/unic/internal/store"
)

// Intent is a short-circuit classification of a query.
type Intent int

const (
	IntentQuery Intent = iota
	IntentGreeting
	IntentFarewell
)

// QueryContext is the transient result of processing one query. It is never
// persisted.
type QueryContext struct {
	Raw        string
	Normalized string
	Intent     Intent
	Category   string
	Keywords   []string
	Results    []ScoredEntry
	Confidence float64
}

var stopWords = map[string]bool{
	"a": true, "about": true, "after": true, "again": true, "all": true, "also": true,
	"am": true, "an": true, "and": true, "any": true, "are": true, "as": true, "at": true,
	"be": true, "because": true, "been": true, "before": true, "being": true, "between": true,
	"both": true, "but": true, "by": true, "can": true, "could": true, "did": true,
	"do": true, "does": true, "doing": true, "down": true, "during": true, "each": true,
	"few": true, "for": true, "from": true, "further": true, "had": true, "has": true,
	"have": true, "having": true, "he": true, "her": true, "here": true, "hers": true,
	"him": true, "his": true, "how": true, "i": true, "if": true, "in": true, "into": true,
	"is": true, "it": true, "its": true, "just": true, "me": true, "more": true,
	"most": true, "my": true, "no": true, "nor": true, "not": true, "now": true,
	"of": true, "off": true, "on": true, "once": true, "only": true, "or": true,
	"other": true, "our": true, "out": true, "over": true, "own": true, "same": true,
	"she": true, "should": true, "so": true, "some": true, "such": true, "than": true,
	"that": true, "the": true, "their": true, "them": true, "then": true, "there": true,
	"these": true, "they": true, "this": true, "those": true, "through": true, "to": true,
	"too": true, "under": true, "until": true, "up": true, "very": true, "was": true,
	"we": true, "were": true, "what": true, "when": true, "where": true, "which": true,
	"while": true, "who": true, "whom": true, "why": true, "will": true, "with": true,
	"would": true, "you": true, "your": true, "yours": true, "tell": true, "please": true,
}

var greetingPhrases = []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening", "greetings"}

var farewellPhrases = []string{"goodbye", "bye", "see you", "farewell", "thank you", "thanks"}

// categoryKeywords maps each category to its fixed keyword set. Keywords are
// reduced to the same base form as query tokens before matching.
var categoryKeywords = map[string][]string{
	store.CategoryArts:         {"art", "creative", "beauty", "music", "painting", "sculpture", "design"},
	store.CategoryCreativity:   {"innovation", "create", "invent", "new", "original", "creative", "idea"},
	store.CategoryDefence:      {"military", "defense", "defence", "security", "war", "strategy", "tactic"},
	store.CategoryLove:         {"love", "heart", "relationship", "romance", "affection", "passion"},
	store.CategoryPhilosophy:   {"philosophy", "wisdom", "truth", "meaning", "existence", "knowledge"},
	store.CategoryScientific:   {"science", "research", "experiment", "theory", "data", "analysis"},
	store.CategorySpirituality: {"spiritual", "soul", "divine", "god", "faith", "religion", "meditation"},
}

// categoryKeywordSets holds categoryKeywords with baseForm applied, so
// "painting" and a query's "paintings" collapse to the same token.
var categoryKeywordSets = func() map[string]map[string]bool {
	sets := make(map[string]map[string]bool, len(categoryKeywords))
	for category, keywords := range categoryKeywords {
		set := make(map[string]bool, len(keywords))
		for _, keyword := range keywords {
			set[baseForm(keyword)] = true
		}
		sets[category] = set
	}
	return sets
}()

// Processor turns raw query text into a ranked QueryContext.
type Processor struct {
	embedder embedding.Embedder
	index    *Index
	topK     int
	logger   *zap.Logger
}

func NewProcessor(embedder embedding.Embedder, index *Index, topK int, logger *zap.Logger) *Processor {
	if topK <= 0 {
		topK = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		embedder: embedder,
		index:    index,
		topK:     topK,
		logger:   logger,
	}
}

// Process normalizes the text, resolves intent, category and keywords, and
// runs the similarity search. Greeting and farewell intents bypass the search
// entirely. An unavailable embedder degrades to empty results with
// confidence 0 rather than failing the turn.
func (p *Processor) Process(ctx context.Context, raw string) (*QueryContext, error) {
	qc := &QueryContext{
		Raw:      raw,
		Category: store.DefaultCategory,
	}

	if intent := detectIntent(raw); intent != IntentQuery {
		qc.Intent = intent
		return qc, nil
	}

	tokens := NormalizeTokens(raw)
	qc.Normalized = strings.Join(tokens, " ")
	qc.Category = Categorize(tokens)
	qc.Keywords = ExtractKeywords(tokens, 10)

	queryEmbedding, err := p.embedder.Embed(ctx, raw)
	if err != nil {
		p.logger.Warn("query embedding unavailable, returning no results", zap.Error(err))
		return qc, nil
	}

	qc.Results = p.index.Search(ctx, queryEmbedding, qc.Category, p.topK)
	if len(qc.Results) > 0 {
		qc.Confidence = ClampConfidence(qc.Results[0].Score)
	}
	return qc, nil
}

// SearchRaw embeds the query text and ranks entries against it, optionally
// filtered by category. Unlike Process it derives no intent or category from
// the text; it backs the direct search operation.
func (p *Processor) SearchRaw(ctx context.Context, query, category string, topK int) ([]ScoredEntry, error) {
	if topK <= 0 {
		topK = p.topK
	}
	queryEmbedding, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return p.index.Search(ctx, queryEmbedding, category, topK), nil
}

// NormalizeTokens case-folds, strips punctuation, collapses whitespace,
// drops stop-words and reduces tokens to a base form.
func NormalizeTokens(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return ' '
		}
	}, text)

	var tokens []string
	for _, token := range strings.Fields(cleaned) {
		if stopWords[token] {
			continue
		}
		tokens = append(tokens, baseForm(token))
	}
	return tokens
}

// baseForm applies light suffix stripping. It is intentionally crude: the
// ranking only needs matching tokens to collapse to the same form.
func baseForm(token string) string {
	switch {
	case strings.HasSuffix(token, "ies") && len(token) > 4:
		return token[:len(token)-3] + "y"
	case strings.HasSuffix(token, "sses"):
		return token[:len(token)-2]
	case strings.HasSuffix(token, "ing") && len(token) > 5:
		return token[:len(token)-3]
	case strings.HasSuffix(token, "ed") && len(token) > 4:
		return token[:len(token)-2]
	case strings.HasSuffix(token, "s") && !strings.HasSuffix(token, "ss") && len(token) > 3:
		return token[:len(token)-1]
	default:
		return token
	}
}

// detectIntent matches the raw text against the fixed greeting and farewell
// phrase sets. Multi-word phrases match as substrings; single words must
// match a whole token so "hi" does not fire inside "this".
func detectIntent(raw string) Intent {
	lowered := strings.ToLower(raw)
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	tokenSet := make(map[string]bool, len(fields))
	for _, f := range fields {
		tokenSet[f] = true
	}

	match := func(phrases []string) bool {
		for _, phrase := range phrases {
			if strings.Contains(phrase, " ") {
				if strings.Contains(lowered, phrase) {
					return true
				}
			} else if tokenSet[phrase] {
				return true
			}
		}
		return false
	}

	if match(greetingPhrases) {
		return IntentGreeting
	}
	if match(farewellPhrases) {
		return IntentFarewell
	}
	return IntentQuery
}

// Categorize scores normalized tokens against each category's keyword set
// and returns the single highest-scoring category. Ties and an all-zero
// score set fall back to the default category.
func Categorize(tokens []string) string {
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	bestScore := 0
	bestCount := 0
	best := store.DefaultCategory
	for _, category := range store.Categories {
		score := 0
		for keyword := range categoryKeywordSets[category] {
			if tokenSet[keyword] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestCount = 1
			best = category
		} else if score == bestScore && score > 0 {
			bestCount++
		}
	}
	if bestScore == 0 || bestCount > 1 {
		return store.DefaultCategory
	}
	return best
}

// ExtractKeywords ranks normalized tokens longer than three characters by
// frequency and returns the top max. First appearance breaks frequency ties
// so the result is deterministic.
func ExtractKeywords(tokens []string, max int) []string {
	type freq struct {
		token string
		count int
		first int
	}
	seen := make(map[string]*freq)
	var order []*freq
	for i, token := range tokens {
		if len(token) <= 3 {
			continue
		}
		if f, ok := seen[token]; ok {
			f.count++
			continue
		}
		f := &freq{token: token, count: 1, first: i}
		seen[token] = f
		order = append(order, f)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].first < order[j].first
	})

	if max > 0 && len(order) > max {
		order = order[:max]
	}
	keywords := make([]string, len(order))
	for i, f := range order {
		keywords[i] = f.token
	}
	return keywords
}
