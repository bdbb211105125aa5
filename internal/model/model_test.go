package model

import "testing"

func TestParseRole(t *testing.T) {
	cases := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"admin", RoleAdmin, true},
		{"DIRECTOR", RoleDirector, true},
		{" teacher ", RoleTeacher, true},
		{"Parent", RoleParent, true},
		{"superuser", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseRole(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseRole(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRequiresSchool(t *testing.T) {
	if RoleAdmin.RequiresSchool() {
		t.Fatalf("admin must not require a school")
	}
	for _, role := range []Role{RoleDirector, RoleTeacher, RoleParent} {
		if !role.RequiresSchool() {
			t.Fatalf("%s must require a school", role)
		}
	}
}
