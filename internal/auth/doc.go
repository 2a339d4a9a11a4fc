// Package auth provides authentication and authorisation for the housing
// back office.
//
// Two disjoint principal kinds can sign in:
//   - Primary accounts (Admin, Managing Agent) own the organisation's data
//   - Staff accounts belong to a primary account and carry a fine-grained
//     StaffPermissions set on top of the Staff page set
//
// The package implements:
//   - Argon2id password hashing, with bcrypt verification for imported hashes
//   - HS256 session tokens with a single fixed lifetime (no refresh, no revocation)
//   - An immutable role to page table (PageAccess) injected into the HTTP layer
//   - A single Resolver (primary first, then staff) shared by login and
//     current-principal resolution
//
// Access is decided by set membership only. Roles are never compared by
// numeric order.
package auth
