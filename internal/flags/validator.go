package flags

import (
	"fmt"
)

func ValidateUpsertFlag(req UpsertFlagRequest) error {
	if req.Key == "" {
		return fmt.Errorf("key is required")
	}

	for i, rule := range req.Rules {
		if rule.Attribute == "" {
			return fmt.Errorf("rules[%d].attribute is required", i)
		}
		switch Comparator(rule.Comparator) {
		case ComparatorEquals, ComparatorInSet:
		default:
			return fmt.Errorf("rules[%d].comparator must be %q or %q, got %q",
				i, ComparatorEquals, ComparatorInSet, rule.Comparator)
		}
		if rule.Rollout < 0 || rule.Rollout > 100 {
			return fmt.Errorf("rules[%d].rollout must be between 0 and 100, got %d", i, rule.Rollout)
		}
	}

	return nil
}

func ValidateEvaluate(req EvaluateRequest) error {
	if req.Key == "" {
		return fmt.Errorf("key is required")
	}
	if req.UnitID == "" {
		return fmt.Errorf("unit_id is required")
	}
	return nil
}
