package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/digiklausur/data-gateway/pkg/dataset"
	"github.com/digiklausur/data-gateway/pkg/observability"
	"github.com/digiklausur/data-gateway/pkg/storage"
	"github.com/digiklausur/data-gateway/pkg/tenancy"
)

// UsersCollection is the global collection holding user records.
const UsersCollection = "users"

// TokenDelimiter separates username and secret in a bearer token.
const TokenDelimiter = "#"

// RoleAdmin is the role assigned to global administrators inside a course.
const RoleAdmin = "admin"

var (
	// ErrMissingToken indicates a request without a token.
	ErrMissingToken = errors.New("missing token")

	// ErrMalformedToken indicates a token that is not "<username>#<secret>".
	ErrMalformedToken = errors.New("malformed token")

	// ErrUnauthenticated indicates a failed credential check.
	ErrUnauthenticated = errors.New("authentication failed")
)

// User record fields.
const (
	fieldUsername  = "username"
	fieldIsAdmin   = "is_admin"
	fieldSalt      = "salt"
	fieldTokenHash = "token_hash"
)

// LegacyCredentialPolicy decides what happens when a user record exists
// but carries no salt/hash pair.
type LegacyCredentialPolicy string

const (
	// LegacyAdopt issues credentials from the presented secret without
	// verifying it, preserving the historical behavior. The first caller
	// to present any secret owns the account from then on.
	LegacyAdopt LegacyCredentialPolicy = "adopt"

	// LegacyReject denies such records until an explicit credential reset
	// exists.
	LegacyReject LegacyCredentialPolicy = "reject"
)

// Identity is the authenticated caller, scoped to a course.
type Identity struct {
	Username string
	Role     string
	IsAdmin  bool
}

// Resolver authenticates bearer tokens into identities.
type Resolver struct {
	store       *storage.Store
	creds       *CredentialManager
	catalog     *tenancy.Catalog
	defaultRole string
	legacy      LegacyCredentialPolicy
	log         *observability.Logger
}

// NewResolver creates an identity resolver. defaultRole is assigned to
// users without a recorded role in the requested course.
func NewResolver(store *storage.Store, creds *CredentialManager, catalog *tenancy.Catalog, defaultRole string, legacy LegacyCredentialPolicy, log *observability.Logger) *Resolver {
	if legacy == "" {
		legacy = LegacyAdopt
	}
	return &Resolver{
		store:       store,
		creds:       creds,
		catalog:     catalog,
		defaultRole: defaultRole,
		legacy:      legacy,
		log:         log,
	}
}

// Resolve authenticates the token and resolves the caller's role within
// course. A nil course (course scoping disabled) resolves the role without
// consulting or mutating any course document.
func (r *Resolver) Resolve(ctx context.Context, token string, course *tenancy.Course) (Identity, error) {
	username, secret, err := splitToken(token)
	if err != nil {
		return Identity{}, err
	}

	record, err := r.authenticate(ctx, username, secret)
	if err != nil {
		return Identity{}, err
	}

	isAdmin := record.Bool(fieldIsAdmin)
	role, err := r.resolveRole(ctx, username, isAdmin, course)
	if err != nil {
		return Identity{}, err
	}

	return Identity{Username: username, Role: role, IsAdmin: isAdmin}, nil
}

func splitToken(token string) (username, secret string, err error) {
	if token == "" {
		return "", "", ErrMissingToken
	}
	parts := strings.Split(token, TokenDelimiter)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("%w: expected \"<username>%s<secret>\"", ErrMalformedToken, TokenDelimiter)
	}
	if !dataset.IsKeyValue(parts[0]) {
		return "", "", fmt.Errorf("%w: invalid username", ErrMalformedToken)
	}
	return parts[0], parts[1], nil
}

// authenticate returns the stored user record for username, creating it
// when needed.
func (r *Resolver) authenticate(ctx context.Context, username, secret string) (dataset.Dataset, error) {
	count, err := r.store.Count(ctx, UsersCollection, 2)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		record, created, err := r.createUser(ctx, username, secret, true)
		if err != nil {
			return nil, err
		}
		if created {
			r.log.WithField("username", username).Info("bootstrap administrator created")
			return record, nil
		}
		// Lost the bootstrap race for this username; fall through and
		// verify against whatever won.
	}

	record, err := r.store.Get(ctx, UsersCollection, dataset.StringKey(username))
	if errors.Is(err, storage.ErrNotFound) {
		record, created, err := r.createUser(ctx, username, secret, false)
		if err != nil {
			return nil, err
		}
		if created {
			r.log.WithField("username", username).Info("user auto-provisioned")
			return record, nil
		}
		// Concurrent provisioning; re-read and verify below.
		record, err = r.store.Get(ctx, UsersCollection, dataset.StringKey(username))
		if err != nil {
			return nil, err
		}
		return r.verifyRecord(ctx, record, username, secret)
	}
	if err != nil {
		return nil, err
	}

	return r.verifyRecord(ctx, record, username, secret)
}

func (r *Resolver) verifyRecord(ctx context.Context, record dataset.Dataset, username, secret string) (dataset.Dataset, error) {
	salt := record.String(fieldSalt)
	hash := record.String(fieldTokenHash)

	if salt == "" || hash == "" {
		return r.handleLegacyRecord(ctx, record, username, secret)
	}

	if err := r.creds.Verify(secret, salt, hash); err != nil {
		if errors.Is(err, ErrCredentialMismatch) {
			return nil, fmt.Errorf("%w: %s", ErrUnauthenticated, "token does not match")
		}
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return record, nil
}

func (r *Resolver) handleLegacyRecord(ctx context.Context, record dataset.Dataset, username, secret string) (dataset.Dataset, error) {
	if r.legacy == LegacyReject {
		return nil, fmt.Errorf("%w: record has no credentials", ErrUnauthenticated)
	}

	// Adopt: issue credentials from the presented secret without
	// verification. The record is claimed by whoever shows up first.
	creds, err := r.creds.Issue(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	record[fieldSalt] = creds.Salt
	record[fieldTokenHash] = creds.TokenHash
	if _, err := r.store.Set(ctx, UsersCollection, record); err != nil {
		return nil, err
	}
	r.log.WithField("username", username).Warn("credentials adopted for legacy record without verification")
	return record, nil
}

// createUser issues credentials and inserts the record if the username is
// still free.
func (r *Resolver) createUser(ctx context.Context, username, secret string, isAdmin bool) (dataset.Dataset, bool, error) {
	creds, err := r.creds.Issue(secret)
	if err != nil {
		return nil, false, err
	}

	record := dataset.New(dataset.StringKey(username))
	record[fieldUsername] = username
	record[fieldIsAdmin] = isAdmin
	record[fieldSalt] = creds.Salt
	record[fieldTokenHash] = creds.TokenHash

	created, err := r.store.CreateIfAbsent(ctx, UsersCollection, record)
	if err != nil {
		return nil, false, err
	}
	return record, created, nil
}

// resolveRole resolves the caller's role in the course, persisting fresh
// assignments into the course document.
func (r *Resolver) resolveRole(ctx context.Context, username string, isAdmin bool, course *tenancy.Course) (string, error) {
	fallback := r.defaultRole
	if isAdmin {
		fallback = RoleAdmin
	}

	if course == nil {
		return fallback, nil
	}

	if role, ok := course.RoleOf(username); ok {
		return role, nil
	}

	course.AssignRole(username, fallback)
	if err := r.catalog.Save(ctx, course); err != nil {
		return "", err
	}
	r.log.WithField("username", username).WithField("course", course.ID).WithField("role", fallback).Info("role assigned in course")
	return fallback, nil
}
