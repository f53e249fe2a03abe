package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"marketplace/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the MongoDB implementation of store.Repository.
type Collection[T any] struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewCollection[T any](coll *mongo.Collection) *Collection[T] {
	return &Collection[T]{coll: coll, now: time.Now}
}

func (c *Collection[T]) Create(ctx context.Context, doc *T) error {
	m, err := store.PrepareInsert(doc, c.now())
	if err != nil {
		return err
	}
	if _, err := c.coll.InsertOne(ctx, m); err != nil {
		return mapError(err)
	}
	return store.DecodeInto(m, doc)
}

func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	q, err := store.ByID(id)
	if err != nil {
		return nil, err
	}
	return c.FindOne(ctx, q)
}

func (c *Collection[T]) FindOne(ctx context.Context, q store.Query) (*T, error) {
	opts := options.FindOne()
	if sort := sortDoc(q); sort != nil {
		opts.SetSort(sort)
	}

	doc := new(T)
	if err := c.coll.FindOne(ctx, filterDoc(q), opts).Decode(doc); err != nil {
		return nil, mapError(err)
	}
	return doc, nil
}

func (c *Collection[T]) List(ctx context.Context, q store.Query) ([]T, error) {
	opts := options.Find()
	if sort := sortDoc(q); sort != nil {
		opts.SetSort(sort)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cursor, err := c.coll.Find(ctx, filterDoc(q), opts)
	if err != nil {
		return nil, mapError(err)
	}
	defer cursor.Close(ctx)

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (c *Collection[T]) Count(ctx context.Context, q store.Query) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, filterDoc(q))
	return n, mapError(err)
}

func (c *Collection[T]) Update(ctx context.Context, id string, set bson.M) (*T, error) {
	q, err := store.ByID(id)
	if err != nil {
		return nil, err
	}
	return c.UpdateOne(ctx, q, set)
}

func (c *Collection[T]) UpdateOne(ctx context.Context, q store.Query, set bson.M) (*T, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	doc := new(T)
	err := c.coll.FindOneAndUpdate(ctx, filterDoc(q), c.setDoc(set), opts).Decode(doc)
	if err != nil {
		return nil, mapError(err)
	}
	return doc, nil
}

func (c *Collection[T]) UpdateMany(ctx context.Context, q store.Query, set bson.M) (int64, error) {
	res, err := c.coll.UpdateMany(ctx, filterDoc(q), c.setDoc(set))
	if err != nil {
		return 0, mapError(err)
	}
	return res.ModifiedCount, nil
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	q, err := store.ByID(id)
	if err != nil {
		return err
	}
	res, err := c.coll.DeleteOne(ctx, filterDoc(q))
	if err != nil {
		return mapError(err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Collection[T]) setDoc(set bson.M) bson.M {
	fields := bson.M{}
	for k, v := range set {
		if k == "_id" {
			continue
		}
		fields[k] = v
	}
	fields["updatedAt"] = c.now()
	return bson.M{"$set": fields}
}

// filterDoc translates a store.Query into a MongoDB filter document.
func filterDoc(q store.Query) bson.M {
	var clauses []bson.M
	for _, f := range q.Filters {
		switch f.Op {
		case store.OpEq:
			clauses = append(clauses, bson.M{f.Field: f.Value})
		case store.OpNe:
			clauses = append(clauses, bson.M{f.Field: bson.M{"$ne": f.Value}})
		case store.OpGte:
			clauses = append(clauses, bson.M{f.Field: bson.M{"$gte": f.Value}})
		case store.OpLte:
			clauses = append(clauses, bson.M{f.Field: bson.M{"$lte": f.Value}})
		}
	}
	if q.Search != "" && len(q.SearchFields) > 0 {
		pattern := regexp.QuoteMeta(q.Search)
		or := make(bson.A, 0, len(q.SearchFields))
		for _, field := range q.SearchFields {
			or = append(or, bson.M{field: bson.M{"$regex": pattern, "$options": "i"}})
		}
		clauses = append(clauses, bson.M{"$or": or})
	}

	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0]
	}
	and := make(bson.A, 0, len(clauses))
	for _, c := range clauses {
		and = append(and, c)
	}
	return bson.M{"$and": and}
}

func sortDoc(q store.Query) bson.D {
	if q.SortBy == "" {
		return nil
	}
	dir := 1
	if q.Descending {
		dir = -1
	}
	return bson.D{{Key: q.SortBy, Value: dir}, {Key: "_id", Value: dir}}
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	}
	return err
}
