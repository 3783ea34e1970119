package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pranaya-mathur/sovereign-gateway/contracts"
)

func TestDefaultDocumentCoversAllFailureClasses(t *testing.T) {
	d := Default()
	classes := []contracts.FailureClass{
		contracts.FailureClassPromptInjection,
		contracts.FailureClassBias,
		contracts.FailureClassToxicity,
		contracts.FailureClassFabricatedConcept,
		contracts.FailureClassMissingGrounding,
		contracts.FailureClassOverconfidence,
		contracts.FailureClassDomainMismatch,
		contracts.FailureClassFabricatedFact,
	}
	for _, c := range classes {
		if _, ok := d.FailurePolicies[c]; !ok {
			t.Errorf("default policy document has no entry for %s", c)
		}
	}
}

func TestEvaluateUnknownClassDefaultsToLowLog(t *testing.T) {
	d := Default()
	sev, action, reason := d.Evaluate(contracts.FailureClass("unknown_class"), 0.99)
	if sev != contracts.SeverityLow || action != contracts.ActionLog {
		t.Fatalf("expected LOW/LOG for unknown class, got %s/%s", sev, action)
	}
	if reason != "default policy" {
		t.Fatalf("unexpected reason: %s", reason)
	}
}

func TestEvaluateDemotesLowConfidenceToLog(t *testing.T) {
	d := Default()
	sev, action, _ := d.Evaluate(contracts.FailureClassPromptInjection, 0.1)
	if sev != contracts.SeverityCritical {
		t.Fatalf("severity should not change on demotion, got %s", sev)
	}
	if action != contracts.ActionLog {
		t.Fatalf("expected demotion to LOG, got %s", action)
	}
}

func TestEvaluateMonotonicWithConfidence(t *testing.T) {
	// Policy monotonicity (spec P6): for a fixed failure class, increasing
	// confidence never weakens the action along ALLOW < LOG < WARN < BLOCK.
	rank := map[contracts.Action]int{
		contracts.ActionAllow: 0,
		contracts.ActionLog:   1,
		contracts.ActionWarn:  2,
		contracts.ActionBlock: 3,
	}
	d := Default()
	confidences := []float64{0.0, 0.2, 0.4, 0.6, 0.65, 0.7, 0.75, 0.8, 0.9, 1.0}
	for _, fc := range []contracts.FailureClass{
		contracts.FailureClassPromptInjection,
		contracts.FailureClassBias,
		contracts.FailureClassFabricatedConcept,
	} {
		prev := -1
		for _, c := range confidences {
			_, action, _ := d.Evaluate(fc, c)
			r := rank[action]
			if r < prev {
				t.Errorf("%s: action weakened as confidence increased to %.2f: rank %d < previous %d", fc, c, r, prev)
			}
			prev = r
		}
	}
}

func TestStrictModeNeverDemotesBlock(t *testing.T) {
	d := Default()
	d.StrictMode = true
	_, action, _ := d.Evaluate(contracts.FailureClassPromptInjection, 0.01)
	if action != contracts.ActionBlock {
		t.Fatalf("strict mode should keep BLOCK regardless of confidence, got %s", action)
	}
}

func TestEvaluateUnclassifiedReturnsMediumWarn(t *testing.T) {
	d := Default()
	sev, action, _ := d.EvaluateUnclassified()
	if sev != contracts.SeverityMedium || action != contracts.ActionWarn {
		t.Fatalf("expected MEDIUM/WARN, got %s/%s", sev, action)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	doc := `
version: "2.0.0"
global:
  strict_mode: true
thresholds:
  critical: 0.8
  high: 0.7
  medium: 0.6
  low: 0.5
failure_policies:
  prompt_injection:
    severity: critical
    action: block
    reason: "blocked"
messages:
  block: "nope"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Version != "2.0.0" || !d.StrictMode {
		t.Fatalf("unexpected document: %+v", d)
	}
	sev, action, reason := d.Evaluate(contracts.FailureClassPromptInjection, 0.95)
	if sev != contracts.SeverityCritical || action != contracts.ActionBlock || reason != "blocked" {
		t.Fatalf("unexpected evaluation: %s/%s/%s", sev, action, reason)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/policy.yaml"); err == nil {
		t.Fatal("expected an error loading a missing policy file")
	}
}
