// Package config loads the gateway configuration from GATEWAY_* environment
// variables.
//
// Every setting has a default suitable for local development: an in-memory
// storage backend, the built-in permission policy, course scoping and answer
// aggregation enabled, rate limiting disabled. Production deployments point
// GATEWAY_STORAGE_TYPE at mongo and GATEWAY_POLICY_FILE at an external
// policy file.
package config
