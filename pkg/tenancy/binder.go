package tenancy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/digiklausur/data-gateway/pkg/observability"
)

var (
	// ErrMalformedStoreRef indicates a store reference that does not split
	// into exactly "<store>#<course>".
	ErrMalformedStoreRef = errors.New("malformed store reference")

	// ErrStoreNotBound indicates a store that is not on record for the
	// course and a caller without the right to bind it.
	ErrStoreNotBound = errors.New("store does not belong to course")
)

// RefDelimiter separates store name and course ID in a store reference.
const RefDelimiter = "#"

// StoreRef is a parsed "<store>#<course>" reference.
type StoreRef struct {
	Store  string
	Course string
}

// ParseStoreRef splits a store reference into its store and course parts.
func ParseStoreRef(ref string) (StoreRef, error) {
	parts := strings.Split(ref, RefDelimiter)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return StoreRef{}, fmt.Errorf("%w: %q", ErrMalformedStoreRef, ref)
	}
	return StoreRef{Store: parts[0], Course: parts[1]}, nil
}

// Binder verifies and creates store-to-course bindings.
type Binder struct {
	catalog *Catalog
	log     *observability.Logger
}

// NewBinder creates a binder over the given catalog.
func NewBinder(catalog *Catalog, log *observability.Logger) *Binder {
	return &Binder{catalog: catalog, log: log}
}

// Bind ensures storeName is bound to the course. Already-bound stores
// succeed immediately; unbound stores are registered when the caller is a
// global admin and rejected with ErrStoreNotBound otherwise.
func (b *Binder) Bind(ctx context.Context, course *Course, storeName string, isAdmin bool) error {
	if course.HasStore(storeName) {
		return nil
	}

	if !isAdmin {
		return fmt.Errorf("%w: %q in course %q", ErrStoreNotBound, storeName, course.ID)
	}

	course.AddStore(storeName)
	if err := b.catalog.Save(ctx, course); err != nil {
		return err
	}
	b.log.WithField("course", course.ID).WithField("store", storeName).Info("store bound to course")
	return nil
}
