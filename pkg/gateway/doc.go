// Package gateway is the request pipeline tying authentication, tenancy,
// permissions and storage together.
//
// # Overview
//
// A request carries a bearer token ("<username>#<secret>"), a store
// reference and exactly one of get, set or del. Every request runs the
// same fixed sequence:
//
//  1. validate the request shape
//  2. resolve the course and authenticate the token
//  3. verify (or, for admins, create) the store-to-course binding
//  4. authorize the operation against the permission policy
//  5. perform the store operation
//
// With course scoping enabled, store references take the form
// "<store>#<course>" and the course document tracks which stores belong
// to it. With answer aggregation enabled, a user writing their own
// dataset has its answers folded into the shared per-question documents.
// Both behaviors are feature flags on Options, so a deployment without
// tenancy or collaborative answers runs the identical pipeline.
//
// All failures surface to the transport as a denial; the error values
// distinguish malformed requests, failed authentication, unbound stores
// and policy denials for logging and metrics.
package gateway
