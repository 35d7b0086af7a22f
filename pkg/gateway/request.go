package gateway

import (
	"errors"
	"fmt"

	"github.com/digiklausur/data-gateway/pkg/dataset"
	"github.com/digiklausur/data-gateway/pkg/rbac"
)

var (
	// ErrMalformedRequest indicates a request that fails shape validation
	// before any store access.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrUnauthorized indicates an authenticated caller whose role does not
	// permit the requested operation.
	ErrUnauthorized = errors.New("operation not permitted")
)

// RoleDocument is the virtual document name that answers with the caller's
// resolved role instead of stored data.
const RoleDocument = "role"

// Request is the transport-agnostic request payload: a bearer token, a
// store reference and exactly one operation.
type Request struct {
	Token string          `json:"token,omitempty"`
	Store string          `json:"store,omitempty"`
	Get   interface{}     `json:"get,omitempty"`
	Set   dataset.Dataset `json:"set,omitempty"`
	Del   interface{}     `json:"del,omitempty"`
}

// operation validates the request shape and returns the requested
// operation name.
func (r *Request) operation() (string, error) {
	if r.Store == "" {
		return "", fmt.Errorf("%w: missing store", ErrMalformedRequest)
	}

	count := 0
	op := ""
	if r.Get != nil {
		count++
		op = rbac.OpGet
	}
	if r.Set != nil {
		count++
		op = rbac.OpSet
	}
	if r.Del != nil {
		count++
		op = rbac.OpDel
	}
	if count != 1 {
		return "", fmt.Errorf("%w: exactly one of get, set, del is required", ErrMalformedRequest)
	}

	switch op {
	case rbac.OpGet:
		if _, isQuery := r.Get.(map[string]interface{}); !isQuery && !dataset.IsKeyValue(r.Get) {
			return "", fmt.Errorf("%w: get is neither a dataset key nor a query object", ErrMalformedRequest)
		}
	case rbac.OpSet:
		if _, err := r.Set.Key(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
	case rbac.OpDel:
		if !dataset.IsKeyValue(r.Del) {
			return "", fmt.Errorf("%w: del is not a dataset key", ErrMalformedRequest)
		}
	}
	return op, nil
}
