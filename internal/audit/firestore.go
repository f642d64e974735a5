package audit

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/xid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultLimit caps Recent when the caller passes a non-positive limit
const DefaultLimit = 20

// ErrDuplicateRecord is returned when a record ID is already taken
var ErrDuplicateRecord = errors.New("audit record already exists")

// FirestoreRecorder implements Recorder and Reader using Firestore.
//
// Recent filters on subject and orders by occurredAt, which needs a
// composite index on (subject ASC, occurredAt DESC).
type FirestoreRecorder struct {
	client     *firestore.Client
	collection string
}

var (
	_ Recorder = (*FirestoreRecorder)(nil)
	_ Reader   = (*FirestoreRecorder)(nil)
)

// NewFirestoreRecorder creates a recorder writing to the given collection
func NewFirestoreRecorder(client *firestore.Client, collection string) *FirestoreRecorder {
	return &FirestoreRecorder{
		client:     client,
		collection: collection,
	}
}

// Collection returns the Firestore collection name
func (r *FirestoreRecorder) Collection() string {
	return r.collection
}

// Record stores rec. A record without an ID gets a fresh xid.
func (r *FirestoreRecorder) Record(ctx context.Context, rec Record) error {
	if r.client == nil {
		return fmt.Errorf("firestore client is nil")
	}

	id := rec.ID
	if id == "" {
		id = xid.New().String()
	}

	_, err := r.client.Collection(r.collection).Doc(id).Create(ctx, recordToMap(rec))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ErrDuplicateRecord
		}
		return fmt.Errorf("failed to create audit record: %w", err)
	}

	return nil
}

// Recent returns up to limit records for subject ordered by occurredAt descending
func (r *FirestoreRecorder) Recent(ctx context.Context, subject string, limit int) ([]Record, error) {
	if r.client == nil {
		return nil, fmt.Errorf("firestore client is nil")
	}

	if limit <= 0 {
		limit = DefaultLimit
	}

	iter := r.client.Collection(r.collection).
		Where("subject", "==", subject).
		OrderBy("occurredAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	records := make([]Record, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate audit records: %w", err)
		}

		var rec Record
		if err := doc.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit record: %w", err)
		}
		rec.ID = doc.Ref.ID
		records = append(records, rec)
	}

	return records, nil
}

// recordToMap converts a Record to the Firestore document layout
func recordToMap(rec Record) map[string]interface{} {
	data := map[string]interface{}{
		"subject":    rec.Subject,
		"outcome":    string(rec.Outcome),
		"occurredAt": rec.OccurredAt,
	}
	if rec.TenantID != "" {
		data["tenantId"] = rec.TenantID
	}
	if rec.ProviderID != "" {
		data["providerId"] = rec.ProviderID
	}
	if rec.Reason != "" {
		data["reason"] = rec.Reason
	}
	if rec.CorrelationID != "" {
		data["correlationId"] = rec.CorrelationID
	}
	return data
}
