// Package memstore is an in-memory store.Repository implementation. It keeps
// documents as BSON maps so filters, dotted $set paths and unique keys behave
// like the MongoDB repositories.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"marketplace/models"
	"marketplace/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// New returns a Store whose collections carry the same unique keys as the MongoDB indexes.
func New() *store.Store {
	return &store.Store{
		Users:              NewCollection[models.User]("email"),
		Freelancers:        NewCollection[models.Freelancer]("email"),
		Services:           NewCollection[models.Service]("name"),
		RegisteredServices: NewCollection[models.RegisteredService](),
		Messages:           NewCollection[models.Message](),
		Payments:           NewCollection[models.Payment]("transactionId"),
		Reports:            NewCollection[models.Report](),
		Integrations:       NewCollection[models.Integration]("name"),
		Jobs:               NewCollection[models.Job](),
		PushSubscriptions:  NewCollection[models.PushSubscription]("endpoint"),
	}
}

type Collection[T any] struct {
	mu     sync.RWMutex
	docs   []bson.M
	unique []string
	now    func() time.Time

	// FailWrites makes every write return the error; used to exercise failure paths.
	FailWrites error
}

func NewCollection[T any](unique ...string) *Collection[T] {
	return &Collection[T]{unique: unique, now: time.Now}
}

func (c *Collection[T]) Create(_ context.Context, doc *T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites != nil {
		return c.FailWrites
	}

	m, err := store.PrepareInsert(doc, c.now())
	if err != nil {
		return err
	}
	if c.indexOf(m["_id"]) >= 0 {
		return fmt.Errorf("%w: _id", store.ErrDuplicate)
	}
	if err := c.checkUnique(m, -1); err != nil {
		return err
	}
	c.docs = append(c.docs, m)
	return store.DecodeInto(m, doc)
}

func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	q, err := store.ByID(id)
	if err != nil {
		return nil, err
	}
	return c.FindOne(ctx, q)
}

func (c *Collection[T]) FindOne(_ context.Context, q store.Query) (*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	matched := c.sorted(q)
	if len(matched) == 0 {
		return nil, store.ErrNotFound
	}
	return decode[T](matched[0])
}

func (c *Collection[T]) List(_ context.Context, q store.Query) ([]T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	matched := c.sorted(q)
	if q.Limit > 0 && int64(len(matched)) > q.Limit {
		matched = matched[:q.Limit]
	}
	out := make([]T, 0, len(matched))
	for _, m := range matched {
		doc, err := decode[T](m)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, nil
}

func (c *Collection[T]) Count(_ context.Context, q store.Query) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int64
	for _, m := range c.docs {
		if matches(m, q) {
			n++
		}
	}
	return n, nil
}

func (c *Collection[T]) Update(ctx context.Context, id string, set bson.M) (*T, error) {
	q, err := store.ByID(id)
	if err != nil {
		return nil, err
	}
	return c.UpdateOne(ctx, q, set)
}

func (c *Collection[T]) UpdateOne(_ context.Context, q store.Query, set bson.M) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites != nil {
		return nil, c.FailWrites
	}

	for i, m := range c.docs {
		if !matches(m, q) {
			continue
		}
		patched, err := c.apply(m, set)
		if err != nil {
			return nil, err
		}
		if err := c.checkUnique(patched, i); err != nil {
			return nil, err
		}
		c.docs[i] = patched
		return decode[T](patched)
	}
	return nil, store.ErrNotFound
}

func (c *Collection[T]) UpdateMany(_ context.Context, q store.Query, set bson.M) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites != nil {
		return 0, c.FailWrites
	}

	var n int64
	for i, m := range c.docs {
		if !matches(m, q) {
			continue
		}
		patched, err := c.apply(m, set)
		if err != nil {
			return n, err
		}
		c.docs[i] = patched
		n++
	}
	return n, nil
}

func (c *Collection[T]) Delete(_ context.Context, id string) error {
	oid, err := store.ParseID(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites != nil {
		return c.FailWrites
	}

	i := c.indexOf(oid)
	if i < 0 {
		return store.ErrNotFound
	}
	c.docs = append(c.docs[:i], c.docs[i+1:]...)
	return nil
}

// apply returns a patched deep copy of m.
func (c *Collection[T]) apply(m bson.M, set bson.M) (bson.M, error) {
	cp, err := clone(m)
	if err != nil {
		return nil, err
	}
	fields := bson.M{}
	for k, v := range set {
		fields[k] = v
	}
	fields["updatedAt"] = c.now()

	norm, err := normalizeMap(fields)
	if err != nil {
		return nil, err
	}
	for path, v := range norm {
		if path == "_id" {
			continue
		}
		setPath(cp, path, v)
	}
	// Round-trip through T so the stored shape matches what the codec produces.
	doc, err := decode[T](cp)
	if err != nil {
		return nil, err
	}
	return toMap(doc)
}

func (c *Collection[T]) indexOf(id interface{}) int {
	for i, m := range c.docs {
		if reflect.DeepEqual(m["_id"], id) {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) checkUnique(m bson.M, skip int) error {
	for _, field := range c.unique {
		v, ok := getPath(m, field)
		if !ok || v == nil || v == "" {
			continue
		}
		for i, other := range c.docs {
			if i == skip || reflect.DeepEqual(other["_id"], m["_id"]) {
				continue
			}
			if ov, ok := getPath(other, field); ok && equal(ov, v) {
				return fmt.Errorf("%w: %s", store.ErrDuplicate, field)
			}
		}
	}
	return nil
}

func (c *Collection[T]) sorted(q store.Query) []bson.M {
	var out []bson.M
	for _, m := range c.docs {
		if matches(m, q) {
			out = append(out, m)
		}
	}
	if q.SortBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := getPath(out[i], q.SortBy)
			b, _ := getPath(out[j], q.SortBy)
			cmp, _ := compare(a, b)
			if q.Descending {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	return out
}

func matches(m bson.M, q store.Query) bool {
	for _, f := range q.Filters {
		want, err := normalize(f.Value)
		if err != nil {
			return false
		}
		got, ok := getPath(m, f.Field)
		switch f.Op {
		case store.OpEq:
			if !ok || !equal(got, want) {
				return false
			}
		case store.OpNe:
			if ok && equal(got, want) {
				return false
			}
		case store.OpGte, store.OpLte:
			if !ok {
				return false
			}
			cmp, ok := compare(got, want)
			if !ok || (f.Op == store.OpGte && cmp < 0) || (f.Op == store.OpLte && cmp > 0) {
				return false
			}
		}
	}
	if q.Search != "" {
		term := strings.ToLower(q.Search)
		found := false
		for _, field := range q.SearchFields {
			if v, ok := getPath(m, field); ok {
				if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), term) {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func equal(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

// compare orders numbers, strings and datetimes; nil sorts first.
func compare(a, b interface{}) (int, bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return sign(fa - fb), true
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case primitive.DateTime:
		if bv, ok := b.(primitive.DateTime); ok {
			return sign(float64(av) - float64(bv)), true
		}
	case primitive.ObjectID:
		if bv, ok := b.(primitive.ObjectID); ok {
			return strings.Compare(av.Hex(), bv.Hex()), true
		}
	}
	return 0, false
}

func sign(f float64) int {
	switch {
	case f < 0:
		return -1
	case f > 0:
		return 1
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func getPath(m bson.M, path string) (interface{}, bool) {
	var cur interface{} = m
	for _, part := range strings.Split(path, ".") {
		doc, ok := cur.(bson.M)
		if !ok {
			return nil, false
		}
		cur, ok = doc[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(m bson.M, path string, v interface{}) {
	parts := strings.Split(path, ".")
	cur := m
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(bson.M)
		if !ok {
			next = bson.M{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

// normalize converts v to the representation a BSON round trip yields.
func normalize(v interface{}) (interface{}, error) {
	m, err := normalizeMap(bson.M{"v": v})
	if err != nil {
		return nil, err
	}
	return m["v"], nil
}

func normalizeMap(in bson.M) (bson.M, error) {
	raw, err := bson.Marshal(in)
	if err != nil {
		return nil, err
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func clone(m bson.M) (bson.M, error) {
	return normalizeMap(m)
}

func toMap(doc interface{}) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out bson.M
	err = bson.Unmarshal(raw, &out)
	return out, err
}

func decode[T any](m bson.M) (*T, error) {
	doc := new(T)
	if err := store.DecodeInto(m, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
