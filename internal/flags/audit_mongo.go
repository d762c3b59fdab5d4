package flags

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoAuditDocument is the storage shape for one audit entry. The current
// enabled state is not stored; Mongo-backed listings report it as unknown.
type mongoAuditDocument struct {
	ID         string    `bson:"_id"`
	Tenant     string    `bson:"tenant"`
	ActorID    string    `bson:"actor_id"`
	ActorName  string    `bson:"actor_name"`
	ActorEmail string    `bson:"actor_email"`
	ActorRole  string    `bson:"actor_role"`
	FlagKey    string    `bson:"flag_key"`
	Action     string    `bson:"action"`
	CreatedAt  time.Time `bson:"created_at"`
}

type MongoAuditStore struct {
	collection *mongo.Collection
}

func NewMongoAuditStore(db *mongo.Database) *MongoAuditStore {
	return &MongoAuditStore{
		collection: db.Collection("audit_entries"),
	}
}

func (s *MongoAuditStore) AppendAuditEntry(ctx context.Context, tenant string, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Tenant = tenant

	doc := mongoAuditDocument{
		ID:         entry.ID,
		Tenant:     entry.Tenant,
		ActorID:    entry.Actor.ID,
		ActorName:  entry.Actor.Name,
		ActorEmail: entry.Actor.Email,
		ActorRole:  entry.Actor.Role,
		FlagKey:    entry.FlagKey,
		Action:     string(entry.Action),
		CreatedAt:  entry.Timestamp,
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

func (s *MongoAuditStore) ListAuditEntries(ctx context.Context, tenant, flagKey string, limit int) ([]AuditEntry, error) {
	filter := bson.M{"tenant": tenant}
	if flagKey != "" {
		filter["flag_key"] = flagKey
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoAuditDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}

	entries := make([]AuditEntry, len(docs))
	for i, doc := range docs {
		entries[i] = AuditEntry{
			ID:     doc.ID,
			Tenant: doc.Tenant,
			Actor: Actor{
				ID:    doc.ActorID,
				Name:  doc.ActorName,
				Email: doc.ActorEmail,
				Role:  doc.ActorRole,
			},
			FlagKey:   doc.FlagKey,
			Action:    ChangeType(doc.Action),
			Timestamp: doc.CreatedAt,
		}
	}

	return entries, nil
}
