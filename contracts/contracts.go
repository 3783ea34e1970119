// Package contracts defines the governance gateway's core data model: the
// severities and actions a verdict can carry, the failure classes a signal
// can name, and the verdict itself.
package contracts

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies the impact of a detected failure, ordered from most
// to least severe.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Action is the enforcement behavior a verdict directs the caller to take.
type Action string

const (
	ActionBlock Action = "block"
	ActionWarn  Action = "warn"
	ActionLog   Action = "log"
	ActionAllow Action = "allow"
)

// FailureClass names the kind of problem a fired signal detected. The zero
// value means no specific failure class applies (an ALLOW verdict, or a
// signal that fired without the tower resolving it to a named class).
type FailureClass string

const (
	FailureClassPromptInjection  FailureClass = "prompt_injection"
	FailureClassBias             FailureClass = "bias"
	FailureClassToxicity         FailureClass = "toxicity"
	FailureClassFabricatedConcept FailureClass = "fabricated_concept"
	FailureClassMissingGrounding FailureClass = "missing_grounding"
	FailureClassOverconfidence   FailureClass = "overconfidence"
	FailureClassDomainMismatch   FailureClass = "domain_mismatch"
	FailureClassFabricatedFact   FailureClass = "fabricated_fact"
)

// FiredSignal records one signal that fired during evaluation: which tier
// produced it, how confident it was, and why.
type FiredSignal struct {
	SignalName  string            `json:"signal_name"`
	Confidence  float64           `json:"confidence"`
	Explanation string            `json:"explanation"`
	Tier        int               `json:"tier"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Verdict is the immutable outcome of evaluating a single LLM response. It
// is the only thing the Control Tower hands back to its caller and the only
// thing the audit sink ever persists.
type Verdict struct {
	VerdictID      string        `json:"verdict_id"`
	Severity       Severity      `json:"severity"`
	Action         Action        `json:"action"`
	FailureClass   FailureClass  `json:"failure_class,omitempty"`
	FiredSignals   []FiredSignal `json:"fired_signals,omitempty"`
	Reason         string        `json:"reason"`
	Confidence     float64       `json:"confidence"`
	PolicyVersion  string        `json:"policy_version"`
	Timestamp      time.Time     `json:"timestamp"`
	TierUsed       int           `json:"tier_used"`
	ProcessingTime time.Duration `json:"processing_time_ns"`
}

// ShouldBlock reports whether this verdict requires the response to be
// withheld from the caller.
func (v Verdict) ShouldBlock() bool {
	return v.Action == ActionBlock
}

// SignalCount is the number of signals that fired en route to this verdict.
func (v Verdict) SignalCount() int {
	return len(v.FiredSignals)
}

// NewAllowVerdict builds the baseline ALLOW verdict used whenever no tier
// finds anything worth reporting.
func NewAllowVerdict(reason string) Verdict {
	return Verdict{
		VerdictID:  uuid.NewString(),
		Severity:   SeverityInfo,
		Action:     ActionAllow,
		Reason:     reason,
		Confidence: 1.0,
		Timestamp:  time.Now().UTC(),
	}
}

// NewVerdictFromSignal builds a verdict driven by a single fired signal,
// after the policy engine has resolved severity and action for it.
func NewVerdictFromSignal(sig FiredSignal, severity Severity, action Action, fc FailureClass, reason, policyVersion string) Verdict {
	return Verdict{
		VerdictID:     uuid.NewString(),
		Severity:      severity,
		Action:        action,
		FailureClass:  fc,
		FiredSignals:  []FiredSignal{sig},
		Reason:        reason,
		Confidence:    sig.Confidence,
		PolicyVersion: policyVersion,
		TierUsed:      sig.Tier,
		Timestamp:     time.Now().UTC(),
	}
}

// NewBlockVerdict builds the fail-closed verdict the tower returns whenever
// an internal error leaves it unable to reason about a response safely.
func NewBlockVerdict(reason string) Verdict {
	return Verdict{
		VerdictID:    uuid.NewString(),
		Severity:     SeverityHigh,
		Action:       ActionBlock,
		FailureClass: FailureClassPromptInjection,
		Reason:       reason,
		Confidence:   1.0,
		Timestamp:    time.Now().UTC(),
	}
}

// Summary aggregates verdict statistics across many verdicts for reporting.
// No other package in this module uses it; the CLI's badge and cache-stats
// output are built without it.
type Summary struct {
	TotalVerdicts int `json:"total_verdicts"`
	Blocked       int `json:"blocked"`
	Warned        int `json:"warned"`
	Logged        int `json:"logged"`
	Allowed       int `json:"allowed"`

	BySeverity     map[Severity]int     `json:"by_severity"`
	ByFailureClass map[FailureClass]int `json:"by_failure_class"`
	SignalCounts   map[string]int       `json:"signal_counts"`
}

// NewSummary returns a zero-value Summary with its maps initialized.
func NewSummary() *Summary {
	return &Summary{
		BySeverity:     make(map[Severity]int),
		ByFailureClass: make(map[FailureClass]int),
		SignalCounts:   make(map[string]int),
	}
}

// Add folds one verdict into the running summary.
func (s *Summary) Add(v Verdict) {
	s.TotalVerdicts++
	switch v.Action {
	case ActionBlock:
		s.Blocked++
	case ActionWarn:
		s.Warned++
	case ActionLog:
		s.Logged++
	case ActionAllow:
		s.Allowed++
	}
	s.BySeverity[v.Severity]++
	if v.FailureClass != "" {
		s.ByFailureClass[v.FailureClass]++
	}
	for _, sig := range v.FiredSignals {
		s.SignalCounts[sig.SignalName]++
	}
}
