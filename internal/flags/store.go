package flags

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the durable source of truth for flags. It is strongly consistent
// per (tenant, key); concurrent writes to the same key are last-writer-wins.
type Store interface {
	FindFlag(ctx context.Context, tenant, key string) (*Flag, error)
	ListFlags(ctx context.Context, tenant string) ([]Flag, error)
	UpsertFlag(ctx context.Context, tenant string, flag *Flag) (*Flag, error)
	DeleteFlag(ctx context.Context, tenant, key string) (bool, error)
}

// AuditStore records who changed which flag. Entry shape is owned here; the
// storage backend is pluggable (postgres by default, mongo optional).
type AuditStore interface {
	AppendAuditEntry(ctx context.Context, tenant string, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, tenant, flagKey string, limit int) ([]AuditEntry, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindFlag(ctx context.Context, tenant, key string) (*Flag, error) {
	query := `
		SELECT key, default_value, enabled, updated_at
		FROM flags
		WHERE tenant = $1 AND key = $2
	`

	var flag Flag
	err := s.db.QueryRowContext(ctx, query, tenant, key).Scan(
		&flag.Key, &flag.DefaultValue, &flag.Enabled, &flag.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find flag: %w", err)
	}

	rules, err := s.loadRules(ctx, tenant, key)
	if err != nil {
		return nil, err
	}
	flag.Rules = rules

	return &flag, nil
}

func (s *PostgresStore) ListFlags(ctx context.Context, tenant string) ([]Flag, error) {
	query := `
		SELECT key, default_value, enabled, updated_at
		FROM flags
		WHERE tenant = $1
		ORDER BY key ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}
	defer rows.Close()

	flags := []Flag{}
	for rows.Next() {
		var flag Flag
		if err := rows.Scan(&flag.Key, &flag.DefaultValue, &flag.Enabled, &flag.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan flag: %w", err)
		}
		flags = append(flags, flag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flags: %w", err)
	}

	for i := range flags {
		rules, err := s.loadRules(ctx, tenant, flags[i].Key)
		if err != nil {
			return nil, err
		}
		flags[i].Rules = rules
	}

	return flags, nil
}

// UpsertFlag persists a flag and replaces its rule set wholesale in one
// transaction. UpdatedAt is stamped on every write.
func (s *PostgresStore) UpsertFlag(ctx context.Context, tenant string, flag *Flag) (*Flag, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	flag.UpdatedAt = time.Now().UTC()

	upsert := `
		INSERT INTO flags (tenant, key, default_value, enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant, key) DO UPDATE
		SET default_value = EXCLUDED.default_value,
		    enabled = EXCLUDED.enabled,
		    updated_at = EXCLUDED.updated_at
	`
	if _, err := tx.ExecContext(ctx, upsert,
		tenant, flag.Key, flag.DefaultValue, flag.Enabled, flag.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to upsert flag: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM flag_rules WHERE tenant = $1 AND flag_key = $2`,
		tenant, flag.Key,
	); err != nil {
		return nil, fmt.Errorf("failed to clear flag rules: %w", err)
	}

	insertRule := `
		INSERT INTO flag_rules (id, tenant, flag_key, position, attribute, comparator, value, rollout)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i, rule := range flag.Rules {
		if _, err := tx.ExecContext(ctx, insertRule,
			uuid.New().String(), tenant, flag.Key, i,
			rule.Attribute, string(rule.Comparator), rule.Value, rule.Rollout,
		); err != nil {
			return nil, fmt.Errorf("failed to insert flag rule: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit flag upsert: %w", err)
	}

	return flag, nil
}

func (s *PostgresStore) DeleteFlag(ctx context.Context, tenant, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM flags WHERE tenant = $1 AND key = $2`,
		tenant, key,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete flag: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *PostgresStore) loadRules(ctx context.Context, tenant, key string) ([]Rule, error) {
	query := `
		SELECT attribute, comparator, value, rollout
		FROM flag_rules
		WHERE tenant = $1 AND flag_key = $2
		ORDER BY position ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenant, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load flag rules: %w", err)
	}
	defer rows.Close()

	rules := []Rule{}
	for rows.Next() {
		var rule Rule
		var comparator string
		if err := rows.Scan(&rule.Attribute, &comparator, &rule.Value, &rule.Rollout); err != nil {
			return nil, fmt.Errorf("failed to scan flag rule: %w", err)
		}
		rule.Comparator = Comparator(comparator)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flag rules: %w", err)
	}

	return rules, nil
}

func (s *PostgresStore) AppendAuditEntry(ctx context.Context, tenant string, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Tenant = tenant

	query := `
		INSERT INTO audit_entries (id, tenant, actor_id, actor_name, actor_email, actor_role, flag_key, action, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := s.db.ExecContext(ctx, query,
		entry.ID, tenant,
		entry.Actor.ID, entry.Actor.Name, entry.Actor.Email, entry.Actor.Role,
		entry.FlagKey, string(entry.Action), entry.Timestamp,
	); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// ListAuditEntries returns newest-first entries, joined with the flag's
// current enabled state when the flag still exists.
func (s *PostgresStore) ListAuditEntries(ctx context.Context, tenant, flagKey string, limit int) ([]AuditEntry, error) {
	query := `
		SELECT a.id, a.actor_id, a.actor_name, a.actor_email, a.actor_role,
		       a.flag_key, a.action, a.created_at, f.enabled
		FROM audit_entries a
		LEFT JOIN flags f ON f.tenant = a.tenant AND f.key = a.flag_key
		WHERE a.tenant = $1 AND ($2 = '' OR a.flag_key = $2)
		ORDER BY a.created_at DESC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, tenant, flagKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var entry AuditEntry
		var action string
		var enabled sql.NullBool
		if err := rows.Scan(
			&entry.ID,
			&entry.Actor.ID, &entry.Actor.Name, &entry.Actor.Email, &entry.Actor.Role,
			&entry.FlagKey, &action, &entry.Timestamp, &enabled,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Tenant = tenant
		entry.Action = ChangeType(action)
		if enabled.Valid {
			v := enabled.Bool
			entry.Enabled = &v
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}

	return entries, nil
}
