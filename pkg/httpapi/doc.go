// Package httpapi exposes the gateway over HTTP.
//
// A request is either a JSON POST body or GET query parameters carrying
// the same fields (token, store, get/set/del). Responses are JSON with
// permissive CORS, matching the browser clients the service exists for.
// Oversized bodies get 413; every other failure is a uniform 403 so the
// response leaks nothing about users, stores or policy.
//
// Middleware adds a per-request ID (honoring an inbound X-Request-ID)
// and, when configured, Redis-backed rate limiting per client IP that
// fails open if Redis is unreachable. /healthz and /metrics serve
// liveness checks and prometheus scrapes.
package httpapi
