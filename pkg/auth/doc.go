// Package auth implements token-based identity resolution for the gateway.
//
// # Overview
//
// Clients present a bearer token of the form "<username>#<secret>". The
// CredentialManager derives salted scrypt hashes from secrets; user records
// store the hex salt and derived hash, never the secret. The Resolver turns
// a token into an Identity scoped to a course:
//
//   - The first user ever seen becomes the bootstrap administrator. The
//     creation goes through an atomic insert-if-absent keyed on the
//     username, so concurrent first requests cannot mint two admins for
//     the same name.
//   - Unknown usernames are auto-provisioned with freshly issued
//     credentials and the policy default role.
//   - Known users are verified against their stored salt/hash with a
//     constant-time comparison.
//   - The user's role is read from the course document; missing
//     assignments default to "admin" for global admins and the configured
//     default role otherwise, and are persisted back.
//
// Records missing salt or hash (legacy data) are handled per the
// configured LegacyCredentialPolicy: LegacyAdopt issues credentials from
// the presented secret without verification (the historical behavior, a
// documented risk), LegacyReject denies until the record is reset.
package auth
