package app

import (
	"context"
	"net/http"
	"testing"

	"github.com/rajeshradhakrishnanmvk/opinion/internal/store"
)

func TestRoleGatingOnRoutes(t *testing.T) {
	tests := []struct {
		name   string
		role   string
		method string
		path   string
		body   any
		want   int
	}{
		{"tenant cannot post concerns", "tenant", http.MethodPost, "/api/concerns", map[string]any{"title": "Lobby lights", "description": "The lobby lights have been out for a week."}, http.StatusForbidden},
		{"owner can post concerns", "owner", http.MethodPost, "/api/concerns", map[string]any{"title": "Lobby lights", "description": "The lobby lights have been out for a week."}, http.StatusCreated},
		{"tenant can upvote", "tenant", http.MethodPost, "/api/concerns/con_1/upvote", nil, http.StatusOK},
		{"owner cannot delete concerns", "owner", http.MethodDelete, "/api/concerns/con_1", nil, http.StatusForbidden},
		{"admin can delete concerns", "admin", http.MethodDelete, "/api/concerns/con_1", nil, http.StatusOK},
		{"owner cannot restore concerns", "owner", http.MethodPost, "/api/concerns/con_1/restore", nil, http.StatusForbidden},
		{"admin can restore concerns", "admin", http.MethodPost, "/api/concerns/con_1/restore", nil, http.StatusOK},
		{"tenant cannot list deleted", "tenant", http.MethodGet, "/api/concerns?includeDeleted=true", nil, http.StatusForbidden},
		{"admin can list deleted", "admin", http.MethodGet, "/api/concerns?includeDeleted=true", nil, http.StatusOK},
		{"everyone lists the board", "tenant", http.MethodGet, "/api/concerns", nil, http.StatusOK},
		{"tenant cannot list files", "tenant", http.MethodGet, "/api/files", nil, http.StatusForbidden},
		{"owner can list files", "owner", http.MethodGet, "/api/files", nil, http.StatusOK},
		{"owner cannot delete files", "owner", http.MethodDelete, "/api/files/1_notice.pdf", nil, http.StatusForbidden},
		{"admin can delete files", "admin", http.MethodDelete, "/api/files/1_notice.pdf", nil, http.StatusOK},
		{"owner cannot manage roles", "owner", http.MethodGet, "/api/admin/users", nil, http.StatusForbidden},
		{"admin manages roles", "admin", http.MethodGet, "/api/admin/users", nil, http.StatusOK},
		{"tenant cannot export", "tenant", http.MethodPost, "/api/export/board", nil, http.StatusForbidden},
		{"owner can export", "owner", http.MethodPost, "/api/export/board", nil, http.StatusOK},
		{"owner cannot export deleted", "owner", http.MethodPost, "/api/export/board", map[string]any{"includeDeleted": true}, http.StatusForbidden},
		{"admin exports deleted", "admin", http.MethodPost, "/api/export/board", map[string]any{"includeDeleted": true}, http.StatusOK},
		{"unassigned cannot upvote", "unassigned", http.MethodPost, "/api/concerns/con_1/upvote", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService()
			handler := newTestServer(svc)
			token := mintToken(t, svc, tt.role, "2A", true)

			rec := doJSON(t, handler, tt.method, tt.path, token, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestUnverifiedSessionCannotPostOrVote(t *testing.T) {
	svc, _, _ := newTestService()
	handler := newTestServer(svc)
	token := mintToken(t, svc, "owner", "", false)

	create := doJSON(t, handler, http.MethodPost, "/api/concerns", token, map[string]any{
		"title":       "Lobby lights",
		"description": "The lobby lights have been out for a week.",
	})
	if create.Code != http.StatusForbidden {
		t.Fatalf("create status = %d, want %d", create.Code, http.StatusForbidden)
	}
	if code := decodeResponse(t, create)["code"]; code != "UNVERIFIED" {
		t.Fatalf("create code = %v, want UNVERIFIED", code)
	}

	upvote := doJSON(t, handler, http.MethodPost, "/api/concerns/con_1/upvote", token, nil)
	if upvote.Code != http.StatusForbidden {
		t.Fatalf("upvote status = %d, want %d", upvote.Code, http.StatusForbidden)
	}
	if code := decodeResponse(t, upvote)["code"]; code != "UNVERIFIED" {
		t.Fatalf("upvote code = %v, want UNVERIFIED", code)
	}
}

func TestAssignRoleEndpoint(t *testing.T) {
	var gotTarget, gotRole, gotAssignedBy string
	svc, _, _ := newTestService()
	svc.identity = &fakeIdentity{
		assignRoleFn: func(_ context.Context, targetID, role, assignedBy string) error {
			gotTarget, gotRole, gotAssignedBy = targetID, role, assignedBy
			return nil
		},
	}
	handler := newTestServer(svc)
	token := mintToken(t, svc, "admin", "", false)

	rec := doJSON(t, handler, http.MethodPost, "/api/admin/users/prn_42/role", token, map[string]any{"role": "owner"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if gotTarget != "prn_42" || gotRole != "owner" || gotAssignedBy != "prn_1" {
		t.Fatalf("AssignRole got (%q, %q, %q)", gotTarget, gotRole, gotAssignedBy)
	}

	forbidden := doJSON(t, handler, http.MethodPost, "/api/admin/users/prn_42/role", mintToken(t, svc, "owner", "2A", true), map[string]any{"role": "admin"})
	if forbidden.Code != http.StatusForbidden {
		t.Fatalf("owner assigning roles: status = %d, want %d", forbidden.Code, http.StatusForbidden)
	}
}

func TestForceRefreshPicksUpNewRole(t *testing.T) {
	svc, sessions, claims := newTestService()
	svc.identity = &fakeIdentity{
		resolveProfileFn: func(_ context.Context, principalID, displayName string) (*store.Profile, error) {
			return &store.Profile{PrincipalID: principalID, FullName: displayName, Role: "tenant", ApartmentNumber: "2A", Verified: true}, nil
		},
	}
	handler := newTestServer(svc)
	token := mintToken(t, svc, "tenant", "2A", true)

	// Role assignment writes the claims channel; force-refresh reads it.
	claims.roles["prn_1"] = "owner"

	rec := doJSON(t, handler, http.MethodPost, "/api/session/force-refresh", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	if payload["role"] != "owner" {
		t.Fatalf("role = %v, want owner", payload["role"])
	}
	if !sessions.revoked["jti_test"] {
		t.Fatal("previous access token not revoked")
	}
}
