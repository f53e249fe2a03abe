// Package store defines the persistence contract shared by the MongoDB
// repositories and the in-memory implementation used in tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate key")
	ErrInvalidID = errors.New("invalid id")
)

// Repository is the per-collection contract. Update methods take a $set
// document; updatedAt is stamped by the implementation.
type Repository[T any] interface {
	Create(ctx context.Context, doc *T) error
	Get(ctx context.Context, id string) (*T, error)
	FindOne(ctx context.Context, q Query) (*T, error)
	List(ctx context.Context, q Query) ([]T, error)
	Count(ctx context.Context, q Query) (int64, error)
	Update(ctx context.Context, id string, set bson.M) (*T, error)
	UpdateOne(ctx context.Context, q Query, set bson.M) (*T, error)
	UpdateMany(ctx context.Context, q Query, set bson.M) (int64, error)
	Delete(ctx context.Context, id string) error
}

// Store groups every collection the application uses.
type Store struct {
	Users              Repository[models.User]
	Freelancers        Repository[models.Freelancer]
	Services           Repository[models.Service]
	RegisteredServices Repository[models.RegisteredService]
	Messages           Repository[models.Message]
	Payments           Repository[models.Payment]
	Reports            Repository[models.Report]
	Integrations       Repository[models.Integration]
	Jobs               Repository[models.Job]
	PushSubscriptions  Repository[models.PushSubscription]
}

// ParseID converts a hex id, returning ErrInvalidID when malformed.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return oid, nil
}

// PrepareInsert turns doc into a BSON map ready for insertion: a fresh _id is
// assigned when missing and zero createdAt/updatedAt are stamped with now.
func PrepareInsert(doc interface{}, now time.Time) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if id, ok := m["_id"].(primitive.ObjectID); !ok || id.IsZero() {
		m["_id"] = primitive.NewObjectID()
	}
	stamp := primitive.NewDateTimeFromTime(now)
	for _, key := range []string{"createdAt", "updatedAt"} {
		if dt, ok := m[key].(primitive.DateTime); !ok || dt.Time().IsZero() || int64(dt) <= 0 {
			m[key] = stamp
		}
	}
	return m, nil
}

// DecodeInto copies a BSON map back onto a typed document.
func DecodeInto(m bson.M, doc interface{}) error {
	raw, err := bson.Marshal(m)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, doc)
}
