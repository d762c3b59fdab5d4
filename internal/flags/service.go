package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"flipswitch/internal/constants"
	"flipswitch/internal/logger"
	pkgerrors "flipswitch/pkg/errors"
	"flipswitch/pkg/metrics"
)

type service struct {
	repo   Repository
	audit  AuditStore
	events *ChangeEventPublisher
	logger logger.Logger
}

type ServiceOption func(*service)

func WithChangeEvents(events *ChangeEventPublisher) ServiceOption {
	return func(s *service) {
		s.events = events
	}
}

func NewService(repo Repository, audit AuditStore, log logger.Logger, opts ...ServiceOption) Service {
	s := &service{
		repo:   repo,
		audit:  audit,
		logger: log,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Evaluate never fails for flag state, only for infrastructure. An unknown
// flag is a normal outcome carried in the result's reason.
func (s *service) Evaluate(ctx context.Context, tenant string, input EvaluationInput) (EvaluationResult, error) {
	if input.FlagKey == "" || input.UnitID == "" {
		return EvaluationResult{}, pkgerrors.ErrValidation.
			WithDetail("message", "key and unit_id are required")
	}

	start := time.Now()
	flag, err := s.repo.Get(ctx, tenant, input.FlagKey)
	if err != nil {
		return EvaluationResult{}, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	result := EvaluateFlag(flag, input)
	metrics.EvaluationsTotal.WithLabelValues(reasonLabel(result.Reason)).Inc()
	metrics.ObserveEvaluationDuration(time.Since(start))
	return result, nil
}

func (s *service) GetFlag(ctx context.Context, tenant, key string) (*Flag, error) {
	flag, err := s.repo.Get(ctx, tenant, key)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if flag == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("key", key)
	}
	return flag, nil
}

func (s *service) ListFlags(ctx context.Context, tenant string) ([]Flag, error) {
	list, err := s.repo.List(ctx, tenant)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return list, nil
}

func (s *service) CreateFlag(ctx context.Context, tenant string, req UpsertFlagRequest, actor Actor) (*Flag, error) {
	if err := ValidateUpsertFlag(req); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	existing, err := s.repo.Get(ctx, tenant, req.Key)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if existing != nil {
		return nil, pkgerrors.ErrConflict.
			WithDetail("message", fmt.Sprintf("flag with key '%s' already exists", req.Key))
	}

	return s.applyUpsert(ctx, tenant, flagFromRequest(req), nil, actor)
}

func (s *service) UpdateFlag(ctx context.Context, tenant, key string, req UpsertFlagRequest, actor Actor) (*Flag, error) {
	req.Key = key
	if err := ValidateUpsertFlag(req); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	existing, err := s.repo.Get(ctx, tenant, key)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if existing == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("key", key)
	}

	return s.applyUpsert(ctx, tenant, flagFromRequest(req), existing, actor)
}

// applyUpsert is the shared create-or-update pipeline: diff against the
// pre-write state, persist (which invalidates the cache), append the audit
// entry, then publish. The store commit and audit entry strictly precede
// the publish so subscribers can re-read current state without racing the
// write.
func (s *service) applyUpsert(ctx context.Context, tenant string, next *Flag, existing *Flag, actor Actor) (*Flag, error) {
	changes := diffFlags(existing, next)

	written, err := s.repo.Write(ctx, tenant, next)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	action := ChangeCreated
	if existing != nil {
		action = ChangeUpdated
	}
	metrics.MutationsTotal.WithLabelValues(string(action)).Inc()

	s.appendAudit(ctx, tenant, actor, action, written.Key)
	s.publish(ctx, tenant, newChangeEvent(action, tenant, *written, actor, changes))

	return written, nil
}

func (s *service) RemoveFlag(ctx context.Context, tenant, key string, actor Actor) error {
	existing, err := s.repo.Get(ctx, tenant, key)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if existing == nil {
		return pkgerrors.ErrNotFound.WithDetail("key", key)
	}

	deleted, err := s.repo.Delete(ctx, tenant, key)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if !deleted {
		// Lost a race with another delete; same outcome for the caller.
		return pkgerrors.ErrNotFound.WithDetail("key", key)
	}

	metrics.MutationsTotal.WithLabelValues(string(ChangeDeleted)).Inc()

	s.appendAudit(ctx, tenant, actor, ChangeDeleted, key)
	s.publish(ctx, tenant, newChangeEvent(ChangeDeleted, tenant, *existing, actor, nil))

	return nil
}

func (s *service) ListAuditEntries(ctx context.Context, tenant, flagKey string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = constants.DefaultAuditPageSize
	}
	if limit > constants.MaxAuditPageSize {
		limit = constants.MaxAuditPageSize
	}

	entries, err := s.audit.ListAuditEntries(ctx, tenant, flagKey, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return entries, nil
}

func (s *service) appendAudit(ctx context.Context, tenant string, actor Actor, action ChangeType, key string) {
	entry := &AuditEntry{
		Actor:   actor,
		FlagKey: key,
		Action:  action,
	}
	if err := s.audit.AppendAuditEntry(ctx, tenant, entry); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to append audit entry",
			"tenant", tenant, "flag_key", key, "action", action, "error", err)
	}
}

// publish failures never fail the mutation: state is already durably
// committed, and clients converge on their next full-list refresh.
func (s *service) publish(ctx context.Context, tenant string, event ChangeEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishChangeEvent(ctx, tenant, event); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues("error").Inc()
		s.logger.ErrorwCtx(ctx, "Failed to publish change event",
			"tenant", tenant, "flag_key", event.Flag.Key, "type", event.Type, "error", err)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues("ok").Inc()
}

func flagFromRequest(req UpsertFlagRequest) *Flag {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	rules := make([]Rule, len(req.Rules))
	for i, r := range req.Rules {
		rules[i] = Rule{
			Attribute:  r.Attribute,
			Comparator: Comparator(r.Comparator),
			Value:      r.Value,
			Rollout:    r.Rollout,
		}
	}

	return &Flag{
		Key:          req.Key,
		DefaultValue: req.DefaultValue,
		Enabled:      enabled,
		Rules:        rules,
	}
}

// diffFlags computes field-level old/new pairs for updates. Rules are
// compared by their serialized form; the diff is notification-grade, not a
// reconciliation source.
func diffFlags(existing, next *Flag) map[string]FieldChange {
	if existing == nil {
		return nil
	}

	changes := make(map[string]FieldChange)

	if existing.Enabled != next.Enabled {
		changes["enabled"] = FieldChange{From: existing.Enabled, To: next.Enabled}
	}
	if existing.DefaultValue != next.DefaultValue {
		changes["default_value"] = FieldChange{From: existing.DefaultValue, To: next.DefaultValue}
	}
	if !rulesEqual(existing.Rules, next.Rules) {
		changes["rules"] = FieldChange{From: existing.Rules, To: next.Rules}
	}

	return changes
}

func rulesEqual(a, b []Rule) bool {
	// A nil slice and an empty slice are the same rule set even though
	// they serialize differently.
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	aJSON, errA := json.Marshal(a)
	bJSON, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aJSON) == string(bJSON)
}

func reasonLabel(reason string) string {
	switch reason {
	case ReasonNotFound:
		return "not_found"
	case ReasonDisabled:
		return "disabled"
	case ReasonNoRuleMatched:
		return "default"
	default:
		return "matched"
	}
}
