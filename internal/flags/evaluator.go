package flags

import "fmt"

// EvaluateFlag decides the flag outcome for one caller. It is a total
// function: every input yields a result with a human-readable reason.
//
// Rule iteration stops at the first structural match. When that rule's
// rollout check misses, the default value is returned and later rules are
// NOT consulted. Fallthrough-on-rollout-miss is deliberately not
// implemented; the behavior is pinned by tests.
func EvaluateFlag(flag *Flag, input EvaluationInput) EvaluationResult {
	if flag == nil {
		return EvaluationResult{Value: false, Reason: ReasonNotFound}
	}

	if !flag.Enabled {
		return EvaluationResult{Value: flag.DefaultValue, Reason: ReasonDisabled}
	}

	for i, rule := range flag.Rules {
		if !ruleMatches(rule, input.Attributes) {
			continue
		}

		if Bucket(input.UnitID, flag.Key) < clampRollout(rule.Rollout) {
			return EvaluationResult{Value: true, Reason: fmt.Sprintf("matched rule %d", i+1)}
		}

		return EvaluationResult{Value: flag.DefaultValue, Reason: ReasonNoRuleMatched}
	}

	return EvaluationResult{Value: flag.DefaultValue, Reason: ReasonNoRuleMatched}
}

func clampRollout(rollout int) int {
	if rollout < 0 {
		return 0
	}
	if rollout > 100 {
		return 100
	}
	return rollout
}
