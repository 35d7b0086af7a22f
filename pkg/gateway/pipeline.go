package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digiklausur/data-gateway/pkg/answers"
	"github.com/digiklausur/data-gateway/pkg/auth"
	"github.com/digiklausur/data-gateway/pkg/dataset"
	"github.com/digiklausur/data-gateway/pkg/observability"
	"github.com/digiklausur/data-gateway/pkg/rbac"
	"github.com/digiklausur/data-gateway/pkg/storage"
	"github.com/digiklausur/data-gateway/pkg/tenancy"
)

// Options are the pipeline's feature flags.
type Options struct {
	// CourseScoping requires store references of the form
	// "<store>#<course>" and enforces store-to-course bindings. When
	// disabled the store field names the collection directly and roles
	// resolve without a course document.
	CourseScoping bool

	// AnswerAggregation merges answer payloads into shared per-question
	// documents when a user writes their own dataset.
	AnswerAggregation bool
}

// Dependencies are the collaborators a pipeline is built from.
type Dependencies struct {
	Store      *storage.Store
	Catalog    *tenancy.Catalog
	Binder     *tenancy.Binder
	Resolver   *auth.Resolver
	Engine     *rbac.Engine
	Aggregator *answers.Aggregator
	Metrics    *Metrics
	Logger     *observability.Logger
}

// Pipeline executes requests in a fixed order: validate, authenticate,
// bind store, authorize, then perform the operation.
type Pipeline struct {
	store      *storage.Store
	catalog    *tenancy.Catalog
	binder     *tenancy.Binder
	resolver   *auth.Resolver
	engine     *rbac.Engine
	aggregator *answers.Aggregator
	metrics    *Metrics
	opts       Options
	log        *observability.Logger
}

// NewPipeline assembles a request pipeline.
func NewPipeline(deps Dependencies, opts Options) *Pipeline {
	return &Pipeline{
		store:      deps.Store,
		catalog:    deps.Catalog,
		binder:     deps.Binder,
		resolver:   deps.Resolver,
		engine:     deps.Engine,
		aggregator: deps.Aggregator,
		metrics:    deps.Metrics,
		opts:       opts,
		log:        deps.Logger,
	}
}

// Handle runs one request through the pipeline. On success the result is
// the operation's response value: a dataset or dataset slice for get (nil
// when nothing matches), a {key} map for set, and the pre-deletion dataset
// for del.
func (p *Pipeline) Handle(ctx context.Context, req *Request) (interface{}, error) {
	start := time.Now()
	op, result, err := p.handle(ctx, req)
	p.metrics.observe(op, time.Since(start), err)
	if err != nil {
		p.log.WithError(err).WithField("operation", op).Debug("request rejected")
	}
	return result, err
}

func (p *Pipeline) handle(ctx context.Context, req *Request) (string, interface{}, error) {
	op, err := req.operation()
	if err != nil {
		return "invalid", nil, err
	}

	collection := req.Store
	var course *tenancy.Course
	if p.opts.CourseScoping {
		ref, err := tenancy.ParseStoreRef(req.Store)
		if err != nil {
			return op, nil, err
		}
		collection = ref.Store
		course, err = p.catalog.Load(ctx, ref.Course)
		if err != nil {
			return op, nil, err
		}
	}

	identity, err := p.resolver.Resolve(ctx, req.Token, course)
	if err != nil {
		return op, nil, err
	}
	ctx = observability.WithUsername(ctx, identity.Username)

	if course != nil {
		if err := p.binder.Bind(ctx, course, collection, identity.IsAdmin); err != nil {
			return op, nil, err
		}
	}

	var result interface{}
	switch op {
	case rbac.OpGet:
		result, err = p.handleGet(ctx, collection, identity, req.Get)
	case rbac.OpSet:
		result, err = p.handleSet(ctx, collection, identity, req.Set)
	default:
		result, err = p.handleDel(ctx, collection, identity, req.Del)
	}
	return op, result, err
}

func (p *Pipeline) handleGet(ctx context.Context, collection string, id auth.Identity, query interface{}) (interface{}, error) {
	// A structured query names no single document, so only %all% rules can
	// grant it.
	if filter, ok := query.(map[string]interface{}); ok {
		if !p.engine.IsAllowed(id.Role, id.Username, collection, "", rbac.OpGet) {
			return nil, p.denied(id, collection, "", rbac.OpGet)
		}
		return p.store.Query(ctx, collection, filter)
	}

	key, err := dataset.KeyFromValue(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	docName := key.StorageID()
	if !p.engine.IsAllowed(id.Role, id.Username, collection, docName, rbac.OpGet) {
		return nil, p.denied(id, collection, docName, rbac.OpGet)
	}

	if docName == RoleDocument {
		return dataset.Dataset{"name": id.Role}, nil
	}

	ds, err := p.store.Get(ctx, collection, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func (p *Pipeline) handleSet(ctx context.Context, collection string, id auth.Identity, ds dataset.Dataset) (interface{}, error) {
	key, err := ds.Key()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	docName := key.StorageID()
	if !p.engine.IsAllowed(id.Role, id.Username, collection, docName, rbac.OpSet) {
		return nil, p.denied(id, collection, docName, rbac.OpSet)
	}

	// Writing your own document may carry answers to fold into the shared
	// per-question documents. Aggregation failures are diagnosed but do not
	// fail the user's own write.
	if p.opts.AnswerAggregation && docName == id.Username {
		if sub, ok := answers.ParseSubmission(ds); ok {
			if err := p.aggregator.Merge(ctx, collection, id.Username, sub); err != nil {
				p.log.WithError(err).WithField("username", id.Username).Warn("answer aggregation failed")
			}
		}
	}

	stored, err := p.store.Set(ctx, collection, ds)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{dataset.FieldKey: stored.Value()}, nil
}

func (p *Pipeline) handleDel(ctx context.Context, collection string, id auth.Identity, target interface{}) (interface{}, error) {
	key, err := dataset.KeyFromValue(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	docName := key.StorageID()
	if !p.engine.IsAllowed(id.Role, id.Username, collection, docName, rbac.OpDel) {
		return nil, p.denied(id, collection, docName, rbac.OpDel)
	}

	ds, err := p.store.Delete(ctx, collection, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func (p *Pipeline) denied(id auth.Identity, collection, docName, op string) error {
	p.log.WithFields(map[string]interface{}{
		"username": id.Username,
		"role":     id.Role,
		"store":    collection,
		"document": docName,
		"op":       op,
	}).Info("request denied by policy")
	return fmt.Errorf("%w: role %q may not %s in store %q", ErrUnauthorized, id.Role, op, collection)
}
