package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// PermissionVectorVersion identifies the positional layout accepted by
// FromVector and by the boolean-array form of StaffPermissions JSON.
// Version 1 order:
//
//	0 AddTenant, 1 EditTenant, 2 DeleteTenant,
//	3 AddProperty, 4 EditProperty, 5 DeleteProperty,
//	6 SignOutTenant, 7 ManageRSL
//
// New capabilities are appended; existing indexes never move.
const PermissionVectorVersion = 1

// Capability is a single fine-grained staff permission.
type Capability int

// Capability constants, in vector order.
const (
	CapAddTenant Capability = iota
	CapEditTenant
	CapDeleteTenant
	CapAddProperty
	CapEditProperty
	CapDeleteProperty
	CapSignOutTenant
	CapManageRSL

	capabilityCount
)

var capabilityNames = [capabilityCount]string{
	"add_tenant", "edit_tenant", "delete_tenant",
	"add_property", "edit_property", "delete_property",
	"sign_out_tenant", "manage_rsl",
}

// String returns the capability's snake_case name.
func (c Capability) String() string {
	if c < 0 || c >= capabilityCount {
		return "unknown"
	}
	return capabilityNames[c]
}

// ParseCapability looks up a capability by name.
func ParseCapability(name string) (Capability, bool) {
	for i, n := range capabilityNames {
		if n == name {
			return Capability(i), true
		}
	}
	return 0, false
}

// StaffPermissions is the set of capabilities granted to a staff account.
// The zero value grants nothing.
type StaffPermissions struct {
	AddTenant      bool `json:"addTenant"`
	EditTenant     bool `json:"editTenant"`
	DeleteTenant   bool `json:"deleteTenant"`
	AddProperty    bool `json:"addProperty"`
	EditProperty   bool `json:"editProperty"`
	DeleteProperty bool `json:"deleteProperty"`
	SignOutTenant  bool `json:"signOutTenant"`
	ManageRSL      bool `json:"manageRsl"`
}

// field returns a pointer to the flag for c, or nil if c is unknown.
func (p *StaffPermissions) field(c Capability) *bool {
	switch c {
	case CapAddTenant:
		return &p.AddTenant
	case CapEditTenant:
		return &p.EditTenant
	case CapDeleteTenant:
		return &p.DeleteTenant
	case CapAddProperty:
		return &p.AddProperty
	case CapEditProperty:
		return &p.EditProperty
	case CapDeleteProperty:
		return &p.DeleteProperty
	case CapSignOutTenant:
		return &p.SignOutTenant
	case CapManageRSL:
		return &p.ManageRSL
	default:
		return nil
	}
}

// Has reports whether c is granted. Unknown capabilities are never granted.
func (p StaffPermissions) Has(c Capability) bool {
	f := p.field(c)
	return f != nil && *f
}

// With returns a copy of p with c set to granted.
func (p StaffPermissions) With(c Capability, granted bool) StaffPermissions {
	if f := p.field(c); f != nil {
		*f = granted
	}
	return p
}

// Granted lists the granted capabilities in vector order.
func (p StaffPermissions) Granted() []Capability {
	var caps []Capability
	for c := range capabilityCount {
		if p.Has(c) {
			caps = append(caps, c)
		}
	}
	return caps
}

// FromVector converts a positional permission vector. Indexes past the end
// of v read as false; extra entries are ignored.
func FromVector(v []bool) StaffPermissions {
	var p StaffPermissions
	for c := range capabilityCount {
		if int(c) < len(v) && v[c] {
			p = p.With(c, true)
		}
	}
	return p
}

// staffPermissionsObject has the fields of StaffPermissions without its
// UnmarshalJSON method.
type staffPermissionsObject StaffPermissions

// UnmarshalJSON accepts three forms: the named-flag object, a positional
// boolean vector, or a list of capability names. Unknown object keys and
// unknown capability names are errors.
func (p *StaffPermissions) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case len(data) > 0 && data[0] == '[':
		return p.unmarshalList(data)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var obj staffPermissionsObject
	if err := dec.Decode(&obj); err != nil {
		return fmt.Errorf("decoding permissions: %w", err)
	}
	*p = StaffPermissions(obj)
	return nil
}

func (p *StaffPermissions) unmarshalList(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("decoding permissions: %w", err)
	}
	if len(items) == 0 {
		*p = StaffPermissions{}
		return nil
	}

	var vec []bool
	if err := json.Unmarshal(data, &vec); err == nil {
		*p = FromVector(vec)
		return nil
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return errors.New("permissions list must hold only booleans or only capability names")
	}
	var out StaffPermissions
	for _, n := range names {
		c, ok := ParseCapability(n)
		if !ok {
			return fmt.Errorf("unknown capability %q", n)
		}
		out = out.With(c, true)
	}
	*p = out
	return nil
}
