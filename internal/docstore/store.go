// Package docstore is the document-store boundary of the storefront: named
// collections of JSON documents with equality filters, a single ordering
// clause and a result limit.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

const (
	Products        = "products"
	DeliveryCharges = "deliveryCharges"
	Orders          = "orders"
	Gallery         = "gallery"
	HeroImages      = "heroImages"
)

// Collections lists every collection the storefront keeps.
var Collections = []string{Products, DeliveryCharges, Orders, Gallery, HeroImages}

var (
	ErrNotFound     = errors.New("document not found")
	ErrUnavailable  = errors.New("document store unavailable")
	ErrInvalidQuery = errors.New("invalid document query")
)

// Document is a stored record. The assigned identifier is merged in under "id".
type Document map[string]interface{}

func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

type Store interface {
	List(ctx context.Context, collection string, constraints ...Constraint) ([]Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Insert(ctx context.Context, collection string, fields Document) (string, error)
	Update(ctx context.Context, collection, id string, fields Document) error
	Delete(ctx context.Context, collection, id string) error
}

// Importer writes a document under a caller-chosen id, exactly as given.
// Stamps are not applied, so copies keep their original timestamps.
type Importer interface {
	Put(ctx context.Context, collection, id string, doc Document) error
}

type Direction int

const (
	Ascending Direction = iota
	Descending
)

type filter struct {
	field string
	value interface{}
}

type ordering struct {
	field     string
	direction Direction
}

// Query is the resolved form of a constraint list.
type Query struct {
	filters []filter
	order   *ordering
	limit   int
}

type Constraint func(*Query)

// Where keeps documents whose field equals value.
func Where(field string, value interface{}) Constraint {
	return func(q *Query) {
		q.filters = append(q.filters, filter{field: field, value: value})
	}
}

// OrderBy sorts results by field. Only the last OrderBy in a list applies.
func OrderBy(field string, direction Direction) Constraint {
	return func(q *Query) {
		q.order = &ordering{field: field, direction: direction}
	}
}

func Limit(n int) Constraint {
	return func(q *Query) {
		q.limit = n
	}
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// BuildQuery applies constraints and validates field names.
func BuildQuery(constraints ...Constraint) (Query, error) {
	var q Query
	for _, c := range constraints {
		c(&q)
	}
	for _, f := range q.filters {
		if !fieldPattern.MatchString(f.field) {
			return Query{}, fmt.Errorf("%w: field %q", ErrInvalidQuery, f.field)
		}
	}
	if q.order != nil && !fieldPattern.MatchString(q.order.field) {
		return Query{}, fmt.Errorf("%w: order field %q", ErrInvalidQuery, q.order.field)
	}
	if q.limit < 0 {
		return Query{}, fmt.Errorf("%w: negative limit %d", ErrInvalidQuery, q.limit)
	}
	return q, nil
}

// Encode turns a model value into document fields. Any "id" key is dropped
// because identifiers are owned by the store.
func Encode(v interface{}) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	delete(doc, "id")
	return doc, nil
}

// Decode copies document fields, including the id, into a model value.
func Decode(doc Document, v interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", doc.ID(), err)
	}
	return nil
}

// normalize round-trips a value through JSON so comparisons see the same
// representation that is stored.
func normalize(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
