// Package tower implements the Control Tower: the orchestrator that
// validates and sanitizes a response, drives it through whichever detection
// tiers the router selects, resolves the outcome through the policy engine,
// and returns a single immutable Verdict. It is grounded wholesale on the
// reference implementation's evaluate_response method, expressed here as a
// pipeline object constructed once and called repeatedly rather than a
// per-call closure, the same shape the reference rule engine uses.
package tower

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pranaya-mathur/sovereign-gateway/audit"
	"github.com/pranaya-mathur/sovereign-gateway/cache"
	"github.com/pranaya-mathur/sovereign-gateway/contracts"
	"github.com/pranaya-mathur/sovereign-gateway/monitor"
	"github.com/pranaya-mathur/sovereign-gateway/patterns"
	"github.com/pranaya-mathur/sovereign-gateway/policy"
	"github.com/pranaya-mathur/sovereign-gateway/router"
	"github.com/pranaya-mathur/sovereign-gateway/tier1"
	"github.com/pranaya-mathur/sovereign-gateway/tier2"
	"github.com/pranaya-mathur/sovereign-gateway/tier3"
)

// MaxTextLength is the absolute input size the tower will consider at all;
// anything longer is treated as a denial-of-service probe rather than
// analyzed.
const MaxTextLength = 10000

// repeatingCharWindow and repeatingCharFloor implement the reference
// validator's "suspicious repeating pattern in long input" heuristic: among
// texts over 5000 characters, fewer than 10 distinct characters in the first
// 1000 is treated as an attack rather than prose.
const (
	repeatingCharThreshold = 5000
	repeatingCharWindow    = 1000
	repeatingCharFloor     = 10
)

// Tower wires every detection tier, the cache, the policy engine, the audit
// sink, and the distribution monitor into one evaluation pipeline.
type Tower struct {
	cat     *patterns.Catalogue
	t1      *tier1.Matcher
	t2      *tier2.Detector
	t3      tier3.Provider
	cache   *cache.Cache
	pol     *policy.Document
	monitor *monitor.Distribution
	sink    audit.Sink
}

// Option configures a Tower.
type Option func(*Tower)

// WithTier3 sets the Tier-3 provider. Without this option the tower treats
// Tier 3 as unavailable and fails open to ALLOW whenever routing selects it,
// matching the reference tower's enable_tier3=False default.
func WithTier3(p tier3.Provider) Option {
	return func(t *Tower) { t.t3 = p }
}

// WithCache sets the decision cache returned by Cache. The tower does not
// read it during evaluation; a Tier-3 agent consults the cache it was built
// with.
func WithCache(c *cache.Cache) Option {
	return func(t *Tower) { t.cache = c }
}

// WithPolicy sets the policy document; without this option the tower uses
// policy.Default().
func WithPolicy(p *policy.Document) Option {
	return func(t *Tower) { t.pol = p }
}

// WithMonitor sets the distribution monitor; without this option the tower
// builds its own.
func WithMonitor(m *monitor.Distribution) Option {
	return func(t *Tower) { t.monitor = m }
}

// WithAuditSink sets the audit sink every verdict is appended to; without
// this option the tower uses audit.NopSink{}.
func WithAuditSink(s audit.Sink) Option {
	return func(t *Tower) { t.sink = s }
}

// New builds a Tower over the given pattern catalogue.
func New(cat *patterns.Catalogue, opts ...Option) *Tower {
	t := &Tower{
		cat:     cat,
		t1:      tier1.NewMatcher(cat),
		t2:      tier2.NewDetector(),
		pol:     policy.Default(),
		monitor: monitor.New(),
		sink:    audit.NopSink{},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Evaluate runs the full detection pipeline against text and returns the
// resulting verdict. It never returns an error: every failure mode this
// pipeline can hit resolves to a verdict, fail-open on an external
// dependency error (Tier 2/3 unavailable or erroring) and fail-closed on an
// internal panic, matching the reference tower's outer try/except around
// the whole evaluation.
func (t *Tower) Evaluate(ctx context.Context, text string, reqContext map[string]string) (verdict contracts.Verdict) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			verdict = contracts.NewBlockVerdict(fmt.Sprintf("internal error during evaluation: %v", r))
			verdict.TierUsed = 1
			verdict.ProcessingTime = time.Since(start)
			t.finish(ctx, 1, verdict)
		}
	}()

	sanitized, earlyVerdict, tierUsed := validateAndSanitize(text)
	if earlyVerdict != nil {
		v := *earlyVerdict
		v.TierUsed = tierUsed
		v.ProcessingTime = time.Since(start)
		t.finish(ctx, tierUsed, v)
		return v
	}

	t1Result := t.t1.Evaluate(sanitized)
	decision := router.Route(t1Result)

	var v contracts.Verdict
	switch decision.TierUsed {
	case 1:
		v = t.resolveTier1(t1Result)
	case 2:
		v = t.resolveTier2(ctx, sanitized)
	default:
		v = t.resolveTier3(ctx, sanitized, reqContext)
	}

	v.TierUsed = decision.TierUsed
	v.ProcessingTime = time.Since(start)
	t.finish(ctx, decision.TierUsed, v)
	return v
}

// finish records the verdict's tier usage and latency against the
// distribution monitor and appends it to the audit sink. Audit write errors
// are not surfaced to the caller: the audit sink is best-effort from the
// request path's point of view, per spec.
func (t *Tower) finish(ctx context.Context, tier int, v contracts.Verdict) {
	t.monitor.Record(tier, v.ProcessingTime, v.Action != contracts.ActionAllow)
	_ = t.sink.Append(ctx, v)
}

// validateAndSanitize mirrors the reference tower's
// _validate_and_sanitize_input: it catches the pathological-input cases
// before any tier runs, returning a fully-formed verdict and the tier number
// to attribute it to when validation itself decides the outcome. A nil
// verdict means text passed through and is safe to hand to Tier 1.
func validateAndSanitize(text string) (sanitized string, verdict *contracts.Verdict, tierUsed int) {
	if strings.TrimSpace(text) == "" {
		v := contracts.NewAllowVerdict("empty input - allowing")
		return "", &v, 1
	}

	if len(text) > MaxTextLength {
		sig := contracts.FiredSignal{
			SignalName:  "input_validation:dos_protection",
			Confidence:  0.85,
			Explanation: fmt.Sprintf("input too long (%d chars) - potential denial-of-service attempt", len(text)),
			Tier:        1,
		}
		v := contracts.NewVerdictFromSignal(sig, contracts.SeverityCritical, contracts.ActionBlock, contracts.FailureClassPromptInjection, sig.Explanation, "")
		return text[:MaxTextLength], &v, 1
	}

	if len(text) > repeatingCharThreshold {
		window := text
		if len(window) > repeatingCharWindow {
			window = window[:repeatingCharWindow]
		}
		if countUnique(window) < repeatingCharFloor {
			sig := contracts.FiredSignal{
				SignalName:  "input_validation:pattern_analysis",
				Confidence:  0.80,
				Explanation: "suspicious repeating pattern in long input",
				Tier:        1,
			}
			v := contracts.NewVerdictFromSignal(sig, contracts.SeverityHigh, contracts.ActionBlock, contracts.FailureClassPromptInjection, sig.Explanation, "")
			return text[:tier1.SafeLength], &v, 1
		}
	}

	return text, nil, 0
}

func countUnique(s string) int {
	seen := make(map[rune]struct{})
	for _, r := range s {
		seen[r] = struct{}{}
	}
	return len(seen)
}

// resolveTier1 turns an accepted Tier-1 result into a verdict: an allow
// match is a clean ALLOW, a failure match runs through the policy engine,
// and the router never selects Tier 1 for the gray zone (no pattern fired),
// so that case cannot reach here.
func (t *Tower) resolveTier1(r tier1.Result) contracts.Verdict {
	if r.Allowed {
		return contracts.NewAllowVerdict("strong grounding indicator: " + r.Pattern.Description)
	}
	sig, ok := r.FiredSignal()
	if !ok {
		return contracts.NewAllowVerdict("no tier-1 signal fired")
	}
	sig.Metadata = map[string]string{"pattern": r.Pattern.Name}
	severity, action, reason := t.pol.Evaluate(r.Pattern.FailureClass, sig.Confidence)
	return contracts.NewVerdictFromSignal(sig, severity, action, r.Pattern.FailureClass, reason, t.pol.Version)
}

// resolveTier2 runs the semantic detector and resolves its result through
// policy, failing open to ALLOW if the detector itself errors (a cancelled
// context, for instance): an external-dependency failure must never turn
// into a block.
func (t *Tower) resolveTier2(ctx context.Context, text string) contracts.Verdict {
	result, err := t.t2.Evaluate(ctx, text)
	if err != nil {
		return contracts.NewAllowVerdict("semantic analysis unavailable - allowing conservatively")
	}
	sig, ok := result.FiredSignal()
	if !ok {
		return contracts.NewAllowVerdict(fmt.Sprintf("no issues detected (max confidence: %.2f)", result.Confidence))
	}
	severity, action, reason := t.pol.Evaluate(result.FailureClass, sig.Confidence)
	return contracts.NewVerdictFromSignal(sig, severity, action, result.FailureClass, reason, t.pol.Version)
}

// resolveTier3 consults the LLM agent, failing open to ALLOW when no
// provider is configured or the agent itself errors.
func (t *Tower) resolveTier3(ctx context.Context, text string, reqContext map[string]string) contracts.Verdict {
	if t.t3 == nil {
		return contracts.NewAllowVerdict("LLM agent unavailable - allowing conservatively")
	}
	llmText := text
	if len(llmText) > tier3SafeLength {
		llmText = llmText[:tier3SafeLength]
	}

	v, err := t.t3.Analyze(ctx, llmText, reqContext)
	if err != nil {
		return contracts.NewAllowVerdict("LLM agent error - allowing conservatively")
	}
	if v.Decision != contracts.ActionBlock {
		return contracts.NewAllowVerdict(v.Reasoning)
	}

	sig := contracts.FiredSignal{
		SignalName:  "llm_agent:prompt_injection",
		Confidence:  v.Confidence,
		Explanation: v.Reasoning,
		Tier:        3,
		Metadata:    map[string]string{"cached": fmt.Sprintf("%t", v.Cached)},
	}
	severity, action, reason := t.pol.Evaluate(contracts.FailureClassPromptInjection, sig.Confidence)
	return contracts.NewVerdictFromSignal(sig, severity, action, contracts.FailureClassPromptInjection, reason, t.pol.Version)
}

// tier3SafeLength mirrors the reference tower's LLM_SAFE_LENGTH.
const tier3SafeLength = 2000

// Monitor exposes the tower's distribution monitor for health/badge
// reporting surfaces.
func (t *Tower) Monitor() *monitor.Distribution { return t.monitor }

// Cache exposes the tower's decision cache for cache-stats reporting
// surfaces. Returns nil when no cache was configured.
func (t *Tower) Cache() *cache.Cache { return t.cache }
