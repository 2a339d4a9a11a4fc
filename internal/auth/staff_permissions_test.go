package auth

import (
	"encoding/json"
	"slices"
	"testing"
)

func TestFromVector_ShortVectorReadsFalse(t *testing.T) {
	tests := []struct {
		name   string
		vector []bool
		want   []Capability
	}{
		{"nil", nil, nil},
		{"empty", []bool{}, nil},
		{"first only", []bool{true}, []Capability{CapAddTenant}},
		{"three", []bool{true, false, true}, []Capability{CapAddTenant, CapDeleteTenant}},
		{"full", []bool{false, false, false, false, false, false, true, true}, []Capability{CapSignOutTenant, CapManageRSL}},
		{"extra ignored", []bool{false, false, false, false, false, false, false, true, true, true}, []Capability{CapManageRSL}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromVector(tt.vector).Granted()
			if !slices.Equal(got, tt.want) {
				t.Errorf("FromVector(%v).Granted() = %v, want %v", tt.vector, got, tt.want)
			}
		})
	}
}

func TestFromVector_MissingIndexesAreFalse(t *testing.T) {
	p := FromVector([]bool{true, true})

	for c := CapDeleteTenant; c < capabilityCount; c++ {
		if p.Has(c) {
			t.Errorf("Has(%s) = true for index beyond the vector", c)
		}
	}
}

func TestStaffPermissions_HasAndWith(t *testing.T) {
	var p StaffPermissions
	if p.Has(CapAddProperty) {
		t.Error("zero value should grant nothing")
	}

	granted := p.With(CapAddProperty, true)
	if !granted.Has(CapAddProperty) || !granted.AddProperty {
		t.Error("With(AddProperty, true) should grant AddProperty")
	}
	if p.Has(CapAddProperty) {
		t.Error("With must not modify the receiver")
	}
	if granted.With(CapAddProperty, false).Has(CapAddProperty) {
		t.Error("With(AddProperty, false) should revoke")
	}

	if granted.Has(Capability(42)) || granted.Has(Capability(-1)) {
		t.Error("unknown capabilities are never granted")
	}
}

func TestCapability_Names(t *testing.T) {
	for c := range capabilityCount {
		parsed, ok := ParseCapability(c.String())
		if !ok || parsed != c {
			t.Errorf("ParseCapability(%q) = %v, %v", c.String(), parsed, ok)
		}
	}
	if _, ok := ParseCapability("launch_missiles"); ok {
		t.Error("ParseCapability should reject unknown names")
	}
	if Capability(99).String() != "unknown" {
		t.Errorf("String() for out of range = %q", Capability(99).String())
	}
}

func TestStaffPermissions_JSONFieldNames(t *testing.T) {
	body, err := json.Marshal(StaffPermissions{SignOutTenant: true})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var fields map[string]bool
	if err := json.Unmarshal(body, &fields); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if len(fields) != int(capabilityCount) || !fields["signOutTenant"] {
		t.Errorf("unexpected JSON shape: %s", body)
	}
}

func TestStaffPermissions_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []Capability
		wantErr bool
	}{
		{"object", `{"editTenant":true,"manageRsl":true}`, []Capability{CapEditTenant, CapManageRSL}, false},
		{"object unknown key", `{"editTenant":true,"launchMissiles":true}`, nil, true},
		{"null", `null`, nil, false},
		{"empty list", `[]`, nil, false},
		{"short vector", `[true]`, []Capability{CapAddTenant}, false},
		{"legacy vector", `[false,false,false,false,false,false,true]`, []Capability{CapSignOutTenant}, false},
		{"names", `["sign_out_tenant","add_property"]`, []Capability{CapAddProperty, CapSignOutTenant}, false},
		{"unknown name", `["add_tenant","launch_missiles"]`, nil, true},
		{"mixed list", `[true,"add_tenant"]`, nil, true},
		{"wrong type", `"add_tenant"`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p StaffPermissions
			err := json.Unmarshal([]byte(tt.body), &p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("json.Unmarshal(%s) error = %v, wantErr %v", tt.body, err, tt.wantErr)
			}
			if err == nil && !slices.Equal(p.Granted(), tt.want) {
				t.Errorf("Granted() = %v, want %v", p.Granted(), tt.want)
			}
		})
	}
}

func TestStaffPermissions_UnmarshalInsideRequest(t *testing.T) {
	var req struct {
		Email       string           `json:"email"`
		Permissions StaffPermissions `json:"permissions"`
	}
	body := `{"email":"staff@example.com","permissions":[true,false,true]}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if !slices.Equal(req.Permissions.Granted(), []Capability{CapAddTenant, CapDeleteTenant}) {
		t.Errorf("Granted() = %v", req.Permissions.Granted())
	}
}
