// Package search ranks listings for text browse and keeps an optional
// external Meilisearch index in step with the active set.
//
// Ranking is deterministic and dependency-light:
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options (Option pattern)
//   - Unicode-aware tokenization with case folding and optional stop words
//   - Stable order for ties
//
// Scoring uses Jaccard similarity between the query token set and each
// listing's token set, score = |Q ∩ D| / |Q ∪ D|, with title hits weighted
// above description hits.
package search

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Doc is the text of one listing as seen by the ranker.
type Doc struct {
	ID    string
	Title string
	Body  string
}

// Result is a ranked listing id with its relevance score.
type Result struct {
	ID    string
	Score float64
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords   map[string]struct{}
	titleWeight float64
	minScore    float64
}

func defaultConfig() config {
	return config{
		stopwords:   defaultStopwords(),
		titleWeight: 2,
		minScore:    0,
	}
}

// WithStopwords replaces the default stop-word list. An empty list disables
// stop-word removal.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = fold(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		c.stopwords = m
	}
}

// WithTitleWeight sets how much a title overlap counts relative to a
// description overlap. Values below 1 are ignored.
func WithTitleWeight(w float64) Option {
	return func(c *config) {
		if w >= 1 {
			c.titleWeight = w
		}
	}
}

// WithMinScore drops results scoring below s.
func WithMinScore(s float64) Option {
	return func(c *config) {
		if s >= 0 {
			c.minScore = s
		}
	}
}

// Ranker scores documents against a query. It is immutable and safe for
// concurrent use.
type Ranker struct {
	cfg config
}

// NewRanker builds a Ranker with opts applied over the defaults.
func NewRanker(opts ...Option) *Ranker {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Ranker{cfg: cfg}
}

// Terms returns the distinct, folded query tokens in first-seen order,
// minus stop words. Callers use them to prefilter candidates.
func (r *Ranker) Terms(q string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range wordRE.FindAllString(fold(q), -1) {
		if _, stop := r.cfg.stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Rank scores docs against q and returns matches best first. Documents with
// no overlap are dropped. Ties keep the input order, so callers that pass
// newest-first candidates get newest-first ties.
func (r *Ranker) Rank(q string, docs []Doc) []Result {
	qTokens := tokenize(q, r.cfg.stopwords)
	if len(qTokens) == 0 || len(docs) == 0 {
		return nil
	}

	out := make([]Result, 0, len(docs))
	for _, d := range docs {
		title := tokenize(d.Title, r.cfg.stopwords)
		body := tokenize(d.Body, r.cfg.stopwords)
		score := r.score(qTokens, title, body)
		if score <= 0 || score < r.cfg.minScore {
			continue
		}
		out = append(out, Result{ID: d.ID, Score: score})
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out
}

func (r *Ranker) score(q, title, body map[string]struct{}) float64 {
	all := make(map[string]struct{}, len(title)+len(body))
	for k := range title {
		all[k] = struct{}{}
	}
	for k := range body {
		all[k] = struct{}{}
	}
	over := overlap(q, all)
	if over == 0 {
		return 0
	}
	union := float64(len(q) + len(all) - over)
	jac := float64(over) / union

	// Boost by the fraction of query terms found in the title.
	titleHits := overlap(q, title)
	boost := 1 + (r.cfg.titleWeight-1)*float64(titleHits)/float64(len(q))
	return jac * boost
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

// fold builds a Caser per call; Casers are stateful.
func fold(s string) string { return cases.Fold().String(s) }

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(fold(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func defaultStopwords() map[string]struct{} {
	words := []string{"a", "an", "and", "the", "of", "for", "to", "in", "on", "with", "or", "is", "my"}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
