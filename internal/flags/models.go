package flags

import "time"

type Comparator string

const (
	ComparatorEquals Comparator = "equals"
	ComparatorInSet  Comparator = "in-set"
)

// Rule is one targeting condition plus a rollout percentage. Rules are owned
// by their flag and evaluated in stored order, first structural match wins.
type Rule struct {
	Attribute  string     `json:"attribute" db:"attribute"`
	Comparator Comparator `json:"comparator" db:"comparator"`
	Value      string     `json:"value" db:"value"`
	Rollout    int        `json:"rollout" db:"rollout"`
}

// Flag is a named boolean toggle scoped to a tenant. The key is immutable
// after creation; updates replace the rule set wholesale.
type Flag struct {
	Key          string    `json:"key" db:"key"`
	DefaultValue bool      `json:"default_value" db:"default_value"`
	Enabled      bool      `json:"enabled" db:"enabled"`
	Rules        []Rule    `json:"rules"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type EvaluationInput struct {
	FlagKey    string                 `json:"key"`
	UnitID     string                 `json:"unit_id"`
	Attributes map[string]interface{} `json:"attributes"`
}

type EvaluationResult struct {
	Value  bool   `json:"value"`
	Reason string `json:"reason"`
}

const (
	ReasonNotFound      = "flag not found"
	ReasonDisabled      = "flag disabled"
	ReasonNoRuleMatched = "no rule matched"
)

// Actor is the identity the external auth layer resolved for the caller.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

type FieldChange struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// ChangeEvent describes a single mutation. It is published once per
// mutation and never persisted by this package.
type ChangeEvent struct {
	ID        string                 `json:"id"`
	Type      ChangeType             `json:"type"`
	Tenant    string                 `json:"tenant"`
	Flag      Flag                   `json:"flag"`
	Actor     Actor                  `json:"actor"`
	Changes   map[string]FieldChange `json:"changes,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type AuditEntry struct {
	ID        string     `json:"id"`
	Tenant    string     `json:"tenant"`
	Actor     Actor      `json:"actor"`
	FlagKey   string     `json:"flag_key"`
	Action    ChangeType `json:"action"`
	Enabled   *bool      `json:"enabled,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

type RuleRequest struct {
	Attribute  string `json:"attribute"`
	Comparator string `json:"comparator"`
	Value      string `json:"value"`
	Rollout    int    `json:"rollout"`
}

type UpsertFlagRequest struct {
	Key          string        `json:"key" binding:"required"`
	DefaultValue bool          `json:"default_value"`
	Enabled      *bool         `json:"enabled"`
	Rules        []RuleRequest `json:"rules"`
}

type EvaluateRequest struct {
	Key        string                 `json:"key"`
	UnitID     string                 `json:"unit_id"`
	Attributes map[string]interface{} `json:"attributes"`
}
