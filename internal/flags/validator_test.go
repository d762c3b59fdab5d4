package flags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateUpsertFlag(t *testing.T) {
	tests := []struct {
		name      string
		req       UpsertFlagRequest
		wantError bool
	}{
		{
			name:      "minimal valid",
			req:       UpsertFlagRequest{Key: "beta"},
			wantError: false,
		},
		{
			name: "valid with rules",
			req: UpsertFlagRequest{
				Key: "beta",
				Rules: []RuleRequest{
					{Attribute: "plan", Comparator: "equals", Value: "pro", Rollout: 50},
					{Attribute: "country", Comparator: "in-set", Value: "US,CA", Rollout: 100},
				},
			},
			wantError: false,
		},
		{
			name:      "missing key",
			req:       UpsertFlagRequest{},
			wantError: true,
		},
		{
			name: "missing rule attribute",
			req: UpsertFlagRequest{
				Key: "beta",
				Rules: []RuleRequest{
					{Comparator: "equals", Value: "pro", Rollout: 50},
				},
			},
			wantError: true,
		},
		{
			name: "unknown comparator",
			req: UpsertFlagRequest{
				Key: "beta",
				Rules: []RuleRequest{
					{Attribute: "plan", Comparator: "matches", Value: "pro", Rollout: 50},
				},
			},
			wantError: true,
		},
		{
			name: "rollout below range",
			req: UpsertFlagRequest{
				Key: "beta",
				Rules: []RuleRequest{
					{Attribute: "plan", Comparator: "equals", Value: "pro", Rollout: -1},
				},
			},
			wantError: true,
		},
		{
			name: "rollout above range",
			req: UpsertFlagRequest{
				Key: "beta",
				Rules: []RuleRequest{
					{Attribute: "plan", Comparator: "equals", Value: "pro", Rollout: 101},
				},
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpsertFlag(tt.req)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEvaluate(t *testing.T) {
	assert.NoError(t, ValidateEvaluate(EvaluateRequest{Key: "beta", UnitID: "user-1"}))
	assert.Error(t, ValidateEvaluate(EvaluateRequest{UnitID: "user-1"}))
	assert.Error(t, ValidateEvaluate(EvaluateRequest{Key: "beta"}))
}
