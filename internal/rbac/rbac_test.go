package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "tenant upvote", role: RoleTenant, action: ActionUpvote, allow: true},
		{name: "tenant submit", role: RoleTenant, action: ActionSubmitConcern, allow: false},
		{name: "tenant upload", role: RoleTenant, action: ActionUploadFile, allow: false},
		{name: "owner submit", role: RoleOwner, action: ActionSubmitConcern, allow: true},
		{name: "owner upload", role: RoleOwner, action: ActionUploadFile, allow: true},
		{name: "owner list files", role: RoleOwner, action: ActionListFiles, allow: true},
		{name: "owner delete file", role: RoleOwner, action: ActionDeleteFile, allow: false},
		{name: "owner delete concern", role: RoleOwner, action: ActionDeleteConcern, allow: false},
		{name: "owner manage roles", role: RoleOwner, action: ActionManageRoles, allow: false},
		{name: "admin delete concern", role: RoleAdmin, action: ActionDeleteConcern, allow: true},
		{name: "admin restore concern", role: RoleAdmin, action: ActionRestoreConcern, allow: true},
		{name: "admin view deleted", role: RoleAdmin, action: ActionViewDeleted, allow: true},
		{name: "admin manage roles", role: RoleAdmin, action: ActionManageRoles, allow: true},
		{name: "unassigned upvote", role: RoleUnassigned, action: ActionUpvote, allow: false},
		{name: "unassigned anything", role: RoleUnassigned, action: ActionListFiles, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want Role
	}{
		{in: "admin", want: RoleAdmin},
		{in: "owner", want: RoleOwner},
		{in: "tenant", want: RoleTenant},
		{in: "unassigned", want: RoleUnassigned},
		{in: "", want: RoleUnassigned},
		{in: "superuser", want: RoleUnassigned},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
