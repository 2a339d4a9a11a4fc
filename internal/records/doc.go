// Package records stores the owned back office records (tenants,
// properties, registered social landlords) behind the page-gated routes.
//
// Records are opaque JSON objects. The access-control layer cares about
// who added the record (AddedBy, AddedByRole) and whose books it belongs
// to (OwnerID): the primary account that added it, or the owning primary
// of the staff member who did. The domain schema of each collection lives
// with the front end.
//
// # Thread Safety
//
// SQLiteStore is safe for concurrent use from multiple goroutines.
package records
