package records

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/housing-backoffice/internal/auth"
)

// Collection names a record type. It matches the URL segment and the page
// that gates it.
type Collection string

// Collection constants.
const (
	Tenants    Collection = "tenants"
	Properties Collection = "properties"
	RSLs       Collection = "rsls"
)

// Collections lists every supported collection.
var Collections = []Collection{Tenants, Properties, RSLs}

// Valid reports whether c is a supported collection.
func (c Collection) Valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

// Page returns the page that gates c.
func (c Collection) Page() auth.Page {
	return auth.Page(c)
}

// MaxBodySize caps a record body in bytes.
const MaxBodySize = 64 * 1024

// Record is one owned entry in a collection.
type Record struct {
	ID          string          `json:"id"`
	Collection  Collection      `json:"collection"`
	Body        json.RawMessage `json:"body"`
	AddedBy     string          `json:"addedBy"`
	AddedByRole auth.Role       `json:"addedByRole"`
	OwnerID     string          `json:"ownerId"`
	SignOutDate string          `json:"signOutDate,omitempty"` // YYYY-MM-DD
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Filter controls which records List returns.
type Filter struct {
	Collection Collection
	AddedBy    string // optional
	OwnerID    string // optional; scopes the list to one owner's records
	Limit      int    // default 50, max 200
	Offset     int
}

// ListResult is one page of records.
type ListResult struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}
