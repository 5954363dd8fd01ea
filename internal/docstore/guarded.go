package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jogardn/craft-storefront/internal/circuitbreaker"
)

// Observer receives the outcome of every guarded store call.
type Observer interface {
	ObserveStoreCall(operation, collection string, duration time.Duration, err error)
}

// Guarded routes store calls through a circuit breaker. Misses and bad
// queries are caller errors and do not count against the breaker.
type Guarded struct {
	next     Store
	breaker  *circuitbreaker.CircuitBreaker
	observer Observer
}

func NewGuarded(next Store, breaker *circuitbreaker.CircuitBreaker, observer Observer) *Guarded {
	return &Guarded{next: next, breaker: breaker, observer: observer}
}

// CountsAsFailure is the breaker predicate for document-store calls.
func CountsAsFailure(err error) bool {
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidQuery)
}

func (g *Guarded) run(ctx context.Context, operation, collection string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := g.breaker.Execute(ctx, fn)
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		err = fmt.Errorf("%w: %s %s: %v", ErrUnavailable, operation, collection, err)
	}
	if g.observer != nil {
		g.observer.ObserveStoreCall(operation, collection, time.Since(start), err)
	}
	return err
}

func (g *Guarded) List(ctx context.Context, collection string, constraints ...Constraint) ([]Document, error) {
	var docs []Document
	err := g.run(ctx, "list", collection, func(ctx context.Context) error {
		var err error
		docs, err = g.next.List(ctx, collection, constraints...)
		return err
	})
	return docs, err
}

func (g *Guarded) Get(ctx context.Context, collection, id string) (Document, error) {
	var doc Document
	err := g.run(ctx, "get", collection, func(ctx context.Context) error {
		var err error
		doc, err = g.next.Get(ctx, collection, id)
		return err
	})
	return doc, err
}

func (g *Guarded) Insert(ctx context.Context, collection string, fields Document) (string, error) {
	var id string
	err := g.run(ctx, "insert", collection, func(ctx context.Context) error {
		var err error
		id, err = g.next.Insert(ctx, collection, fields)
		return err
	})
	return id, err
}

func (g *Guarded) Update(ctx context.Context, collection, id string, fields Document) error {
	return g.run(ctx, "update", collection, func(ctx context.Context) error {
		return g.next.Update(ctx, collection, id, fields)
	})
}

func (g *Guarded) Delete(ctx context.Context, collection, id string) error {
	return g.run(ctx, "delete", collection, func(ctx context.Context) error {
		return g.next.Delete(ctx, collection, id)
	})
}
