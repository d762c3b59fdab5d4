package flags

import (
	"fmt"
	"strings"
)

// ruleMatches reports whether a caller's attribute bag structurally matches
// a rule. A rule with an empty value never matches, and an unknown
// comparator is a no-match rather than an error.
func ruleMatches(rule Rule, attributes map[string]interface{}) bool {
	if rule.Value == "" {
		return false
	}

	left := attributeString(attributes, rule.Attribute)

	switch rule.Comparator {
	case ComparatorEquals:
		return left == rule.Value
	case ComparatorInSet:
		for _, part := range strings.Split(rule.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if part == left {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// attributeString coerces an attribute value to its string form; absent or
// nil attributes coerce to the empty string.
func attributeString(attributes map[string]interface{}, name string) string {
	v, ok := attributes[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
