package intents

import (
	"errors"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultThreshold is the similarity a fuzzy match must exceed.
const DefaultThreshold = 0.6

// Match describes a resolved intent.
type Match struct {
	Tag      string
	Response string
	Score    float64
	Exact    bool
}

// Resolver picks a response for a message: exact pattern equality first, then
// the best fuzzy match above the threshold.
type Resolver struct {
	store     *Store
	threshold float64

	mu  sync.Mutex
	rnd *rand.Rand
}

type ResolverOption func(*Resolver)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(t float64) ResolverOption {
	return func(r *Resolver) {
		r.threshold = t
	}
}

// NewResolver returns a Resolver over store. rnd drives the choice between
// several responses of one intent; pass a seeded source for deterministic
// output.
func NewResolver(store *Store, rnd *rand.Rand, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("intents: store must not be nil")
	}
	if rnd == nil {
		return nil, errors.New("intents: random source must not be nil")
	}
	r := &Resolver{store: store, threshold: DefaultThreshold, rnd: rnd}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns a response for text, or false when nothing matches.
func (r *Resolver) Resolve(text string) (string, bool) {
	m, ok := r.Match(text)
	if !ok {
		return "", false
	}
	return m.Response, true
}

// Match is Resolve with the matched tag and score.
func (r *Resolver) Match(text string) (Match, bool) {
	input := normalize(text)
	if input == "" {
		return Match{}, false
	}

	// Store order decides between intents sharing a pattern.
	for i := range r.store.intents {
		in := &r.store.intents[i]
		for _, p := range in.Patterns {
			if normalize(p) == input {
				return Match{Tag: in.Tag, Response: r.pick(in.Responses), Score: 1, Exact: true}, true
			}
		}
	}

	best := -1
	bestScore := 0.0
	for i := range r.store.intents {
		for _, p := range r.store.intents[i].Patterns {
			if score := Similarity(input, normalize(p)); score > bestScore {
				best, bestScore = i, score
			}
		}
	}
	if best < 0 || bestScore <= r.threshold {
		return Match{}, false
	}
	in := &r.store.intents[best]
	return Match{Tag: in.Tag, Response: r.pick(in.Responses), Score: bestScore}, true
}

func (r *Resolver) pick(responses []string) string {
	if len(responses) == 1 {
		return responses[0]
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return responses[r.rnd.IntN(len(responses))]
}

// Similarity is the matching-blocks ratio of a and b compared rune by rune,
// in the range [0, 1].
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
