package tenancy

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/digiklausur/data-gateway/pkg/dataset"
	"github.com/digiklausur/data-gateway/pkg/observability"
	"github.com/digiklausur/data-gateway/pkg/storage"
)

// CoursesCollection is the collection holding course documents.
const CoursesCollection = "courses"

const (
	cacheSize = 256
	cacheTTL  = 30 * time.Second
)

// Course is a tenant: a role assignment per user plus the set of stores
// bound to the course.
type Course struct {
	ID          string
	Roles       map[string]string
	Collections map[string]bool
}

// NewCourse returns an empty course document for the given ID.
func NewCourse(id string) *Course {
	return &Course{
		ID:          id,
		Roles:       make(map[string]string),
		Collections: make(map[string]bool),
	}
}

// RoleOf returns the recorded role for username, if any.
func (c *Course) RoleOf(username string) (string, bool) {
	role, ok := c.Roles[username]
	return role, ok
}

// AssignRole records a role for username. A course holds at most one role
// per username; assigning overwrites.
func (c *Course) AssignRole(username, role string) {
	c.Roles[username] = role
}

// HasStore reports whether the named store is bound to the course.
func (c *Course) HasStore(name string) bool {
	return c.Collections[name]
}

// AddStore binds the named store to the course.
func (c *Course) AddStore(name string) {
	c.Collections[name] = true
}

func (c *Course) clone() *Course {
	out := NewCourse(c.ID)
	for k, v := range c.Roles {
		out.Roles[k] = v
	}
	for k, v := range c.Collections {
		out.Collections[k] = v
	}
	return out
}

func (c *Course) toDataset() dataset.Dataset {
	roles := make(map[string]interface{}, len(c.Roles))
	for k, v := range c.Roles {
		roles[k] = v
	}
	collections := make(map[string]interface{}, len(c.Collections))
	for k, v := range c.Collections {
		if v {
			collections[k] = true
		}
	}
	ds := dataset.New(dataset.StringKey(c.ID))
	ds["roles"] = roles
	ds["collections"] = collections
	return ds
}

func courseFromDataset(id string, ds dataset.Dataset) *Course {
	course := NewCourse(id)
	if roles, ok := ds["roles"].(map[string]interface{}); ok {
		for username, role := range roles {
			if name, ok := role.(string); ok {
				course.Roles[username] = name
			}
		}
	}
	if cols, ok := ds["collections"].(map[string]interface{}); ok {
		for store, bound := range cols {
			if b, ok := bound.(bool); ok && b {
				course.Collections[store] = true
			}
		}
	}
	return course
}

// Catalog loads and saves course documents with a short-lived LRU cache in
// front of the store.
type Catalog struct {
	store *storage.Store
	cache *lru.LRU[string, *Course]
	log   *observability.Logger
}

// NewCatalog creates a course catalog over the given store.
func NewCatalog(store *storage.Store, log *observability.Logger) *Catalog {
	return &Catalog{
		store: store,
		cache: lru.NewLRU[string, *Course](cacheSize, nil, cacheTTL),
		log:   log,
	}
}

// Load returns the course document for courseID, default-constructing an
// empty one when none is stored yet. Callers get a private copy.
func (c *Catalog) Load(ctx context.Context, courseID string) (*Course, error) {
	if cached, ok := c.cache.Get(courseID); ok {
		return cached.clone(), nil
	}

	ds, err := c.store.Get(ctx, CoursesCollection, dataset.StringKey(courseID))
	if errors.Is(err, storage.ErrNotFound) {
		return NewCourse(courseID), nil
	}
	if err != nil {
		return nil, err
	}

	course := courseFromDataset(courseID, ds)
	c.cache.Add(courseID, course.clone())
	return course, nil
}

// Save persists the course document and refreshes the cache.
func (c *Catalog) Save(ctx context.Context, course *Course) error {
	if _, err := c.store.Set(ctx, CoursesCollection, course.toDataset()); err != nil {
		return err
	}
	c.cache.Add(course.ID, course.clone())
	c.log.WithField("course", course.ID).Debug("course document saved")
	return nil
}
