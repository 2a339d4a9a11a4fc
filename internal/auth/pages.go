package auth

import (
	"fmt"
	"sort"
)

// Page is a named area of the back office UI. Route groups are gated by page.
type Page string

// Page constants.
const (
	PageDashboard  Page = "dashboard"
	PageUsers      Page = "users"
	PageStaff      Page = "staff"
	PageTenants    Page = "tenants"
	PageProperties Page = "properties"
	PageRSLs       Page = "rsls"
	PageActivity   Page = "activity"
)

// AllPages lists every page in display order.
var AllPages = []Page{
	PageDashboard, PageUsers, PageStaff, PageTenants, PageProperties, PageRSLs, PageActivity,
}

// PageAccess maps roles to the pages they may open.
//
// A PageAccess is built once at startup and never changes afterwards, so it
// can be shared between goroutines without locking. Roles missing from the
// table have no pages.
type PageAccess struct {
	table map[Role]map[Page]struct{}
}

// NewPageAccess builds a PageAccess from a role to pages table. The input
// is copied. Every role listed must have at least one page.
func NewPageAccess(table map[Role][]Page) (*PageAccess, error) {
	pa := &PageAccess{table: make(map[Role]map[Page]struct{}, len(table))}
	for role, pages := range table {
		if len(pages) == 0 {
			return nil, fmt.Errorf("role %s has no pages", role)
		}
		set := make(map[Page]struct{}, len(pages))
		for _, p := range pages {
			set[p] = struct{}{}
		}
		pa.table[role] = set
	}
	return pa, nil
}

// DefaultPageAccess returns the standard back office page table.
func DefaultPageAccess() *PageAccess {
	pa, err := NewPageAccess(map[Role][]Page{
		RoleAdmin: AllPages,
		RoleManagingAgent: {
			PageDashboard, PageStaff, PageTenants, PageProperties, PageRSLs,
		},
		RoleStaff: {
			PageDashboard, PageTenants, PageProperties,
		},
	})
	if err != nil {
		panic(err) // static table
	}
	return pa
}

// PagesFor returns the pages role may open, sorted by name. The result is
// a fresh slice; an unknown role yields an empty, non-nil slice.
func (pa *PageAccess) PagesFor(role Role) []Page {
	set := pa.table[role]
	pages := make([]Page, 0, len(set))
	for p := range set {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })
	return pages
}

// CanAccess reports whether role may open page.
func (pa *PageAccess) CanAccess(role Role, page Page) bool {
	_, ok := pa.table[role][page]
	return ok
}
