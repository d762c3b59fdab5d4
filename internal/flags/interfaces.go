package flags

import (
	"context"
)

type Service interface {
	Evaluate(ctx context.Context, tenant string, input EvaluationInput) (EvaluationResult, error)
	GetFlag(ctx context.Context, tenant, key string) (*Flag, error)
	ListFlags(ctx context.Context, tenant string) ([]Flag, error)
	CreateFlag(ctx context.Context, tenant string, req UpsertFlagRequest, actor Actor) (*Flag, error)
	UpdateFlag(ctx context.Context, tenant, key string, req UpsertFlagRequest, actor Actor) (*Flag, error)
	RemoveFlag(ctx context.Context, tenant, key string, actor Actor) error
	ListAuditEntries(ctx context.Context, tenant, flagKey string, limit int) ([]AuditEntry, error)
}
