package store

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Op int

const (
	OpEq Op = iota
	OpNe
	OpGte
	OpLte
)

type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Query is a backend-neutral description of a find. Filters are ANDed;
// Search matches case-insensitively as a substring of any SearchFields.
type Query struct {
	Filters      []Filter
	Search       string
	SearchFields []string
	SortBy       string
	Descending   bool
	Limit        int64
}

func (q Query) Eq(field string, value interface{}) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: OpEq, Value: value})
	return q
}

func (q Query) Ne(field string, value interface{}) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: OpNe, Value: value})
	return q
}

func (q Query) Gte(field string, value interface{}) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: OpGte, Value: value})
	return q
}

func (q Query) Lte(field string, value interface{}) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: OpLte, Value: value})
	return q
}

// Matching sets the free-text search term and the fields it applies to.
func (q Query) Matching(term string, fields ...string) Query {
	q.Search = term
	q.SearchFields = fields
	return q
}

func (q Query) Sort(field string, descending bool) Query {
	q.SortBy = field
	q.Descending = descending
	return q
}

// ByID is a query on the document id.
func ByID(id string) (Query, error) {
	oid, err := ParseID(id)
	if err != nil {
		return Query{}, err
	}
	return Query{}.Eq("_id", oid), nil
}

// ByObjectID is ByID for an already parsed id.
func ByObjectID(id primitive.ObjectID) Query {
	return Query{}.Eq("_id", id)
}

// RangeSince resolves a date-range preset (last7, last30, last90) to its lower bound.
// An empty preset returns ok=false.
func RangeSince(preset string, now time.Time) (since time.Time, ok bool, err error) {
	var days int
	switch preset {
	case "":
		return time.Time{}, false, nil
	case "last7", "7d":
		days = 7
	case "last30", "30d":
		days = 30
	case "last90", "90d":
		days = 90
	default:
		return time.Time{}, false, fmt.Errorf("unknown date range %q", preset)
	}
	return now.AddDate(0, 0, -days), true, nil
}
