// Package router implements the tier router: a pure function that decides,
// from the Tier-1 matcher's own result, whether the Control Tower should
// accept that result outright or escalate to Tier 2 or Tier 3.
package router

import (
	"github.com/pranaya-mathur/sovereign-gateway/tier1"
)

// Decision names which tier the Control Tower should use for a request.
type Decision struct {
	TierUsed int
}

// tier1Signal reduces a tier1.Result to the (confidence, grayZone) shape the
// routing table in the reference control tower keys off: an allow match or a
// failure match both carry the matched pattern's confidence, while no match
// at all is the gray zone that forces escalation regardless of its nominal
// 0.5 confidence.
func tier1Signal(r tier1.Result) (confidence float64, grayZone bool) {
	switch {
	case r.Allowed:
		return r.Pattern.Confidence, false
	case r.Matched:
		return r.Pattern.Confidence, false
	default:
		return 0.5, true
	}
}

// Route chooses the next tier for a request given its Tier-1 result.
//
//   - confidence >= 0.8 and the result resolved to an allow or failure match:
//     accept Tier 1.
//   - the gray zone (no pattern fired), or confidence in (0.3, 0.8): escalate
//     to Tier 2.
//   - confidence <= 0.3: escalate straight to Tier 3.
//
// Route is a pure function of its input; it performs no I/O and has no
// observable side effects, which is what makes it trivially deterministic
// (spec property P1) and trivially unit-testable on its own.
func Route(r tier1.Result) Decision {
	confidence, grayZone := tier1Signal(r)

	switch {
	case grayZone:
		return Decision{TierUsed: 2}
	case confidence >= 0.8:
		return Decision{TierUsed: 1}
	case confidence > 0.3:
		return Decision{TierUsed: 2}
	default:
		return Decision{TierUsed: 3}
	}
}
