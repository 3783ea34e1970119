// Package tier1 implements the first, cheapest detection tier: compiling
// and running the pattern library against pre-truncated text.
package tier1

import (
	"regexp"
	"sync"
	"time"

	"github.com/pranaya-mathur/sovereign-gateway/contracts"
	"github.com/pranaya-mathur/sovereign-gateway/patterns"
)

// SafeLength is the maximum number of characters the matcher will examine.
// Text is truncated to this length before any pattern runs, the same
// belt-and-suspenders guard the reference detector applies ahead of regex
// matching.
const SafeLength = 500

// Result is the outcome of running Tier 1 against a piece of text.
type Result struct {
	// Allowed is true when a strong-grounding allow-pattern matched; the
	// tower should treat this as evidence against escalating further.
	Allowed bool
	// Matched is true when a failure pattern matched.
	Matched        bool
	Pattern        patterns.Pattern
	MatchText      string
	Position       int
	ProcessingTime time.Duration
}

// Matcher runs a pattern catalogue against text, caching compiled regexes
// behind a mutex so concurrent callers share one compilation per pattern.
type Matcher struct {
	mu    sync.Mutex
	cache map[string]*regexp.Regexp
	cat   *patterns.Catalogue
}

// NewMatcher builds a Matcher over the given catalogue.
func NewMatcher(cat *patterns.Catalogue) *Matcher {
	return &Matcher{
		cache: make(map[string]*regexp.Regexp),
		cat:   cat,
	}
}

func (m *Matcher) compile(p patterns.Pattern) (*regexp.Regexp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if re, ok := m.cache[p.Name]; ok {
		return re, nil
	}
	re, err := regexp.Compile(p.Regex)
	if err != nil {
		return nil, err
	}
	m.cache[p.Name] = re
	return re, nil
}

// Evaluate runs the catalogue against text in two passes, mirroring the
// reference detector: allow patterns are checked first and short-circuit
// with Allowed=true on the first hit; otherwise every failure pattern is
// checked and the highest-confidence match wins (ties broken by catalogue
// order), matching _tier1_detect's best_match bookkeeping rather than
// stopping at the first hit.
func (m *Matcher) Evaluate(text string) Result {
	start := time.Now()
	truncated := text
	if len(truncated) > SafeLength {
		truncated = truncated[:SafeLength]
	}

	if r, ok := m.scanFirst(truncated, m.cat.Allow()); ok {
		r.Allowed = true
		r.ProcessingTime = time.Since(start)
		return r
	}

	if r, ok := m.scanBest(truncated, m.cat.Failures()); ok {
		r.Matched = true
		r.ProcessingTime = time.Since(start)
		return r
	}

	return Result{ProcessingTime: time.Since(start)}
}

// scanFirst returns the first pattern in ps that matches text.
func (m *Matcher) scanFirst(text string, ps []patterns.Pattern) (Result, bool) {
	for _, p := range ps {
		r, ok := m.match(text, p)
		if ok {
			return r, true
		}
	}
	return Result{}, false
}

// scanBest returns the highest-confidence pattern in ps that matches text,
// breaking ties by catalogue order (the first pattern reached keeps the tie).
func (m *Matcher) scanBest(text string, ps []patterns.Pattern) (Result, bool) {
	var best Result
	found := false
	for _, p := range ps {
		r, ok := m.match(text, p)
		if !ok {
			continue
		}
		if !found || r.Pattern.Confidence > best.Pattern.Confidence {
			best = r
			found = true
		}
	}
	return best, found
}

// match runs one pattern against text, returning its Result on a hit.
func (m *Matcher) match(text string, p patterns.Pattern) (Result, bool) {
	re, err := m.compile(p)
	if err != nil {
		// An invalid pattern is an authoring bug, not a detection signal;
		// skip it rather than let one bad pattern take down the whole tier.
		return Result{}, false
	}
	loc := re.FindStringIndex(text)
	if loc == nil {
		return Result{}, false
	}
	return Result{
		Pattern:   p,
		MatchText: text[loc[0]:loc[1]],
		Position:  loc[0],
	}, true
}

// FiredSignal converts a matched Result into the canonical signal shape the
// router and policy engine operate on. Returns the zero value and false if
// the result carries no failure match.
func (r Result) FiredSignal() (contracts.FiredSignal, bool) {
	if !r.Matched {
		return contracts.FiredSignal{}, false
	}
	return contracts.FiredSignal{
		SignalName:  r.Pattern.Name,
		Confidence:  r.Pattern.Confidence,
		Explanation: r.Pattern.Description,
		Tier:        1,
	}, true
}
