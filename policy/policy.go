// Package policy implements the declarative policy engine: mapping a
// detected failure class and confidence to a severity and an enforcement
// action via a version-stamped document loaded from YAML.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pranaya-mathur/sovereign-gateway/contracts"
)

// FailurePolicy is the severity/action/reason triple a document assigns to
// one failure class.
type FailurePolicy struct {
	Severity contracts.Severity `yaml:"severity"`
	Action   contracts.Action   `yaml:"action"`
	Reason   string             `yaml:"reason"`
}

// documentFile is the on-disk shape of a policy document.
type documentFile struct {
	Version         string                                       `yaml:"version"`
	Global          globalSection                                `yaml:"global"`
	Thresholds      map[contracts.Severity]float64                `yaml:"thresholds"`
	FailurePolicies map[contracts.FailureClass]FailurePolicy      `yaml:"failure_policies"`
	Messages        map[contracts.Action]string                   `yaml:"messages"`
}

type globalSection struct {
	StrictMode bool `yaml:"strict_mode"`
}

// Document is a loaded, queryable policy document.
type Document struct {
	Version         string
	StrictMode      bool
	Thresholds      map[contracts.Severity]float64
	FailurePolicies map[contracts.FailureClass]FailurePolicy
	Messages        map[contracts.Action]string
}

// severityRank orders severities from most to least severe, lower is worse.
var severityRank = map[contracts.Severity]int{
	contracts.SeverityCritical: 0,
	contracts.SeverityHigh:     1,
	contracts.SeverityMedium:   2,
	contracts.SeverityLow:      3,
	contracts.SeverityInfo:     4,
}

// defaultThreshold is used when a document has no threshold entry for a
// severity, matching the reference loader's get_threshold fallback.
const defaultThreshold = 0.5

// Load reads a policy document from a YAML file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file %s: %w", path, err)
	}

	var df documentFile
	if err := yaml.Unmarshal(data, &df); err != nil {
		return nil, fmt.Errorf("parsing policy file %s: %w", path, err)
	}

	return fromFile(df), nil
}

func fromFile(df documentFile) *Document {
	d := &Document{
		Version:         df.Version,
		StrictMode:      df.Global.StrictMode,
		Thresholds:      df.Thresholds,
		FailurePolicies: df.FailurePolicies,
		Messages:        df.Messages,
	}
	if d.Thresholds == nil {
		d.Thresholds = map[contracts.Severity]float64{}
	}
	if d.FailurePolicies == nil {
		d.FailurePolicies = map[contracts.FailureClass]FailurePolicy{}
	}
	if d.Messages == nil {
		d.Messages = map[contracts.Action]string{}
	}
	return d
}

// threshold returns the confidence floor below which a detection at the
// given severity is demoted to LOG, defaulting to 0.5 when unset.
func (d *Document) threshold(sev contracts.Severity) float64 {
	if t, ok := d.Thresholds[sev]; ok {
		return t
	}
	return defaultThreshold
}

// Evaluate maps a failure class and confidence to a severity, action, and
// human-readable reason.
//
// An unrecognized failure class maps to (LOW, LOG, "default policy"). A
// recognized class whose confidence falls below that severity's threshold
// is demoted to LOG, unless the document is in strict mode, in which case a
// BLOCK action is never demoted (WARN/LOG below threshold still demote).
func (d *Document) Evaluate(fc contracts.FailureClass, confidence float64) (contracts.Severity, contracts.Action, string) {
	fp, ok := d.FailurePolicies[fc]
	if !ok {
		return contracts.SeverityLow, contracts.ActionLog, "default policy"
	}

	action := fp.Action
	if confidence < d.threshold(fp.Severity) {
		if !(d.StrictMode && action == contracts.ActionBlock) {
			action = contracts.ActionLog
		}
	}

	return fp.Severity, action, fp.Reason
}

// EvaluateUnclassified maps a tier result that flagged a problem without
// resolving it to a specific failure class (should_allow=false with no
// class) to the policy default of MEDIUM/WARN. No tier in this gateway
// currently produces that shape, since every detector resolves a concrete
// failure class before reaching the policy layer; kept for contract
// completeness with the reference decision engine, which exposes the same
// branch.
func (d *Document) EvaluateUnclassified() (contracts.Severity, contracts.Action, string) {
	return contracts.SeverityMedium, contracts.ActionWarn, "unclassified signal flagged by detection tier"
}

// Message returns the user-facing message template for an action, falling
// back to a generic "Action: {reason}"-shaped default when the document
// defines none.
func (d *Document) Message(action contracts.Action, reason string) string {
	if tmpl, ok := d.Messages[action]; ok {
		return tmpl
	}
	return fmt.Sprintf("%s: %s", action, reason)
}

// SeverityAtLeast reports whether sev is at least as severe as threshold.
func SeverityAtLeast(sev, threshold contracts.Severity) bool {
	sr, ok1 := severityRank[sev]
	tr, ok2 := severityRank[threshold]
	if !ok1 || !ok2 {
		return false
	}
	return sr <= tr
}

// Default returns the built-in policy document shipped with the gateway,
// covering every canonical failure class, used when no policy.yaml is
// configured.
func Default() *Document {
	return fromFile(documentFile{
		Version: "1.0.0",
		Thresholds: map[contracts.Severity]float64{
			contracts.SeverityCritical: 0.8,
			contracts.SeverityHigh:     0.7,
			contracts.SeverityMedium:   0.6,
			contracts.SeverityLow:      0.5,
			contracts.SeverityInfo:     0.0,
		},
		FailurePolicies: map[contracts.FailureClass]FailurePolicy{
			contracts.FailureClassPromptInjection: {
				Severity: contracts.SeverityCritical,
				Action:   contracts.ActionBlock,
				Reason:   "prompt injection attempt detected",
			},
			contracts.FailureClassToxicity: {
				Severity: contracts.SeverityCritical,
				Action:   contracts.ActionBlock,
				Reason:   "toxic or dehumanizing language detected",
			},
			contracts.FailureClassBias: {
				Severity: contracts.SeverityHigh,
				Action:   contracts.ActionWarn,
				Reason:   "biased or stereotyping language detected",
			},
			contracts.FailureClassFabricatedFact: {
				Severity: contracts.SeverityHigh,
				Action:   contracts.ActionWarn,
				Reason:   "response contains an unverifiable factual claim",
			},
			contracts.FailureClassFabricatedConcept: {
				Severity: contracts.SeverityMedium,
				Action:   contracts.ActionWarn,
				Reason:   "response references a concept with no external referent",
			},
			contracts.FailureClassMissingGrounding: {
				Severity: contracts.SeverityMedium,
				Action:   contracts.ActionWarn,
				Reason:   "claim made without supporting evidence or citation",
			},
			contracts.FailureClassOverconfidence: {
				Severity: contracts.SeverityLow,
				Action:   contracts.ActionLog,
				Reason:   "response expresses certainty beyond what the claim supports",
			},
			contracts.FailureClassDomainMismatch: {
				Severity: contracts.SeverityLow,
				Action:   contracts.ActionLog,
				Reason:   "response drifted away from the asked question",
			},
		},
		Messages: map[contracts.Action]string{
			contracts.ActionBlock: "Response blocked due to a critical safety issue.",
			contracts.ActionWarn:  "Response flagged for review; delivered with a warning.",
			contracts.ActionLog:   "Response delivered; issue recorded for audit.",
			contracts.ActionAllow: "Response delivered.",
		},
	})
}
