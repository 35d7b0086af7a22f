// Package tenancy manages courses, the tenant boundary of the gateway.
//
// # Overview
//
// A course owns two things: a per-user role assignment and the set of
// stores (document collections) bound to it. Course documents live in the
// "courses" collection and are created lazily with empty role and store
// sets the first time anything under the course is touched.
//
// The Catalog loads and saves course documents, keeping a short-lived LRU
// cache in front of the store. The Binder resolves "<store>#<course>"
// references and enforces the binding rule: a store is readable only if it
// is on record for the course, and only global admins may put new stores
// on record.
//
//	ref, err := tenancy.ParseStoreRef("quiz#course1")
//	course, err := catalog.Load(ctx, ref.Course)
//	err = binder.Bind(ctx, course, ref.Store, identity.IsAdmin)
//
// Binding runs before any permission check; an unbound store is never
// accessible regardless of role.
package tenancy
