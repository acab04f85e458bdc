// Package docstore exposes durable keyed document collections with the
// small query surface the rest of the system relies on: equality and
// half-open range filters, array membership, single-field ordering,
// limits, and start-after cursors keyed by document id.
package docstore

import (
	"context"
	"errors"
)

// Operator identifies a filter comparison.
type Operator string

const (
	OpEqual            Operator = "=="
	OpGreaterOrEqual   Operator = ">="
	OpLessThan         Operator = "<"
	OpArrayContainsAny Operator = "array-contains-any"
)

// Direction identifies a sort direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

var (
	// ErrNotFound is returned when a document id does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrCursorNotFound is returned by Query when the start-after
	// document has been deleted out from under the caller.
	ErrCursorNotFound = errors.New("docstore: cursor document not found")
)

// Document is a stored document plus its id.
type Document struct {
	ID   string
	Data map[string]interface{}
}

// Filter is a single field predicate.
//
// OpArrayContainsAny expects Value to be a []string and matches documents
// whose array field shares at least one element with it.
type Filter struct {
	Field string
	Op    Operator
	Value interface{}
}

// Query describes one collection scan. The zero value returns the whole
// collection ordered by document id.
type Query struct {
	Filters    []Filter
	OrderField string
	OrderDir   Direction
	StartAfter string // document id to resume after
	Limit      int
}

// Collection is a keyed document collection.
type Collection interface {
	Get(ctx context.Context, id string) (*Document, error)
	Set(ctx context.Context, id string, data map[string]interface{}) error
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, q Query) ([]*Document, error)
}

// Store hands out collections by name.
type Store interface {
	Collection(name string) Collection
	Close() error
}
