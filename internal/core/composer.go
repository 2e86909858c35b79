package core

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/unicproject/unic/internal/store"
)

const (
	// Content at or below this length is quoted verbatim; anything longer is
	// summarized extractively.
	maxVerbatimContent = 300
	summarySentences   = 2
)

var greetingTemplates = []string{
	"Hello! I'm UnIC, your Universal Intelligent Communicator. How can I help you today?",
	"Greetings! I'm here to assist you with knowledge and wisdom. What would you like to explore?",
	"Welcome! I'm UnIC, ready to share insights and answer your questions. What's on your mind?",
}

var farewellTemplates = []string{
	"Thank you for our conversation. I hope I've been helpful!",
	"It's been a pleasure talking with you. Feel free to return anytime!",
	"Goodbye! Remember, knowledge is always here when you need it.",
}

var noResultsTemplates = []string{
	"I don't have specific information about that, but I'd be happy to explore related topics with you.",
	"That's an interesting question. While I don't have exact information, I can share some general wisdom on related subjects.",
	"I'm not sure about that specific topic, but I can help you find information on similar subjects.",
}

var highConfidenceTemplates = []string{
	"Based on my knowledge, here's what I can tell you:",
	"I found some relevant information that might help:",
	"Here's what I know about that topic:",
}

var lowConfidenceTemplates = []string{
	"I'm not entirely certain, but here's what I think might be relevant:",
	"This is a bit outside my expertise, but I can share some related thoughts:",
	"I'm not completely sure about this, but here's some information that might be helpful:",
}

var categorySuggestions = map[string]string{
	store.CategoryArts:         "Perhaps you'd like to explore topics about creativity, beauty, or artistic expression?",
	store.CategoryCreativity:   "I can help you with topics about innovation, invention, or creative thinking.",
	store.CategoryDefence:      "I have information about military strategy, security, and defense topics.",
	store.CategoryLove:         "I can share wisdom about relationships, love, and matters of the heart.",
	store.CategoryPhilosophy:   "I have access to philosophical wisdom and existential questions.",
	store.CategoryScientific:   "I can help with scientific research, theories, and discoveries.",
	store.CategorySpirituality: "I have knowledge about spiritual matters, faith, and inner peace.",
}

const defaultSuggestion = "I can help you explore various topics in my knowledge base."

// Composer selects a response template tier from the query's confidence and
// produces the final reply text.
type Composer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewComposer creates a Composer. Pass a seeded rand for deterministic
// template selection in tests; nil uses a time-based seed.
func NewComposer(rng *rand.Rand) *Composer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Composer{rng: rng}
}

func (c *Composer) pick(templates []string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return templates[c.rng.Intn(len(templates))]
}

// Compose renders the reply for a processed query.
func (c *Composer) Compose(qc *QueryContext) string {
	switch qc.Intent {
	case IntentGreeting:
		return c.pick(greetingTemplates)
	case IntentFarewell:
		return c.pick(farewellTemplates)
	}

	if len(qc.Results) == 0 {
		suggestion, ok := categorySuggestions[qc.Category]
		if !ok {
			suggestion = defaultSuggestion
		}
		return c.pick(noResultsTemplates) + " " + suggestion
	}

	var intro string
	if qc.Confidence > 0.8 {
		intro = c.pick(highConfidenceTemplates)
	} else {
		intro = c.pick(lowConfidenceTemplates)
	}

	top := qc.Results[0].Entry
	summary := top.Content
	if len(summary) > maxVerbatimContent {
		summary = Summarize(top.Content, qc.Keywords, summarySentences)
	}

	parts := []string{intro}
	if top.Title != "" && top.Title != "Untitled" {
		parts = append(parts, "From '"+top.Title+"'")
	}
	if top.Author != "" && top.Author != "Unknown" {
		parts = append(parts, "by "+top.Author)
	}
	parts = append(parts, ": "+summary)

	if len(qc.Results) > 1 {
		parts = append(parts, "\n\nI also found some related information that might interest you.")
	}
	return strings.Join(parts, " ")
}

// Summarize returns an extractive summary: each sentence is scored by how
// many of the query's top keywords it contains, the highest-scoring
// maxSentences are kept, and the survivors are re-ordered by their original
// position so the summary still reads naturally.
func Summarize(content string, keywords []string, maxSentences int) string {
	sentences := splitSentences(content)
	if len(sentences) <= maxSentences {
		return content
	}

	keywordSet := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		keywordSet[k] = true
	}

	type scored struct {
		index int
		score int
	}
	ranked := make([]scored, len(sentences))
	for i, sentence := range sentences {
		score := 0
		for _, token := range NormalizeTokens(sentence) {
			if keywordSet[token] {
				score++
			}
		}
		ranked[i] = scored{index: i, score: score}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	ranked = ranked[:maxSentences]
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].index < ranked[j].index })

	kept := make([]string, len(ranked))
	for i, r := range ranked {
		kept[i] = sentences[r.index]
	}
	return strings.Join(kept, " ")
}

// splitSentences breaks text on terminal punctuation, keeping the
// punctuation attached to its sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			atEnd := i == len(runes)-1
			followedBySpace := !atEnd && (runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t')
			if atEnd || followedBySpace {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
