package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureAuditCollection creates the indexes the audit listing queries rely
// on. Mongo creates the collection itself on first insert.
func EnsureAuditCollection(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection("audit_entries")

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_entries_tenant_created_at"),
		},
		{
			Keys:    bson.D{{Key: "tenant", Value: 1}, {Key: "flag_key", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_entries_tenant_flag_created_at"),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
