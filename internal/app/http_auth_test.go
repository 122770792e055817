package app

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rajeshradhakrishnanmvk/opinion/internal/authpw"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/store"
)

func TestSignUpOpensSession(t *testing.T) {
	svc, _, _ := newTestService()
	handler := newTestServer(svc)

	rec := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":       "jane@example.com",
		"password":    "correct-horse",
		"displayName": "Jane Smith",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	if payload["token"] == "" || payload["token"] == nil {
		t.Fatal("token missing from signup payload")
	}
	if payload["refreshToken"] == "" || payload["refreshToken"] == nil {
		t.Fatal("refreshToken missing from signup payload")
	}
	if payload["role"] != "tenant" {
		t.Fatalf("role = %v, want tenant (first sign-in defaults)", payload["role"])
	}
	if payload["verified"] != false {
		t.Fatalf("verified = %v, want false", payload["verified"])
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()
	svc.authpw = &fakeAuth{
		signUpFn: func(context.Context, authpw.SignUpRequest) (store.Principal, error) {
			return store.Principal{}, errors.New("email already registered")
		},
	}
	handler := newTestServer(svc)

	rec := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":       "jane@example.com",
		"password":    "correct-horse",
		"displayName": "Jane Smith",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	payload := decodeResponse(t, rec)
	if payload["code"] != "EMAIL_EXISTS" {
		t.Fatalf("code = %v, want EMAIL_EXISTS", payload["code"])
	}
}

func TestSignInInvalidCredentials(t *testing.T) {
	svc, _, _ := newTestService()
	svc.authpw = &fakeAuth{
		signInFn: func(context.Context, authpw.SignInRequest) (store.Principal, error) {
			return store.Principal{}, authpw.ErrInvalidCredentials
		},
	}
	handler := newTestServer(svc)

	rec := doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email":    "jane@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	payload := decodeResponse(t, rec)
	if payload["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("code = %v, want INVALID_CREDENTIALS", payload["code"])
	}
}

func TestSessionEndpointWithoutToken(t *testing.T) {
	svc, _, _ := newTestService()
	handler := newTestServer(svc)

	rec := doJSON(t, handler, http.MethodGet, "/api/session", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	payload := decodeResponse(t, rec)
	if payload["authenticated"] != false {
		t.Fatalf("authenticated = %v, want false", payload["authenticated"])
	}
}

func TestSessionEndpointWithToken(t *testing.T) {
	svc, _, _ := newTestService()
	handler := newTestServer(svc)
	token := mintToken(t, svc, "owner", "2A", true)

	rec := doJSON(t, handler, http.MethodGet, "/api/session", token, nil)
	payload := decodeResponse(t, rec)
	if payload["authenticated"] != true {
		t.Fatalf("authenticated = %v, want true", payload["authenticated"])
	}
	if payload["role"] != "owner" || payload["apartmentNumber"] != "2A" {
		t.Fatalf("claims not reflected: %v", payload)
	}
}

func TestRoleClaimWinsAtIssuance(t *testing.T) {
	svc, _, claims := newTestService()
	claims.roles["prn_1"] = "owner"
	handler := newTestServer(svc)

	rec := doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email":    "jane@example.com",
		"password": "correct-horse",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	payload := decodeResponse(t, rec)
	if payload["role"] != "owner" {
		t.Fatalf("role = %v, want owner from the claims channel", payload["role"])
	}
}

func TestRefreshRotation(t *testing.T) {
	svc, _, _ := newTestService()
	handler := newTestServer(svc)

	signin := doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email":    "jane@example.com",
		"password": "correct-horse",
	})
	if signin.Code != http.StatusOK {
		t.Fatalf("signin status = %d", signin.Code)
	}
	refreshToken, _ := decodeResponse(t, signin)["refreshToken"].(string)
	if refreshToken == "" {
		t.Fatal("no refresh token issued")
	}

	refresh := doJSON(t, handler, http.MethodPost, "/api/session/refresh", "", map[string]any{
		"refreshToken": refreshToken,
	})
	if refresh.Code != http.StatusOK {
		t.Fatalf("refresh status = %d (body %s)", refresh.Code, refresh.Body.String())
	}
	rotated, _ := decodeResponse(t, refresh)["refreshToken"].(string)
	if rotated == "" || rotated == refreshToken {
		t.Fatalf("refresh token not rotated: %q", rotated)
	}

	// The consumed token must be rejected on reuse.
	reuse := doJSON(t, handler, http.MethodPost, "/api/session/refresh", "", map[string]any{
		"refreshToken": refreshToken,
	})
	if reuse.Code != http.StatusUnauthorized {
		t.Fatalf("reuse status = %d, want %d", reuse.Code, http.StatusUnauthorized)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	svc, _, _ := newTestService()
	handler := newTestServer(svc)

	signin := doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email":    "jane@example.com",
		"password": "correct-horse",
	})
	payload := decodeResponse(t, signin)
	token, _ := payload["token"].(string)
	refreshToken, _ := payload["refreshToken"].(string)

	logout := doJSON(t, handler, http.MethodPost, "/api/session/logout", token, map[string]any{
		"refreshToken": refreshToken,
	})
	if logout.Code != http.StatusOK {
		t.Fatalf("logout status = %d", logout.Code)
	}

	after := doJSON(t, handler, http.MethodGet, "/api/session", token, nil)
	if decodeResponse(t, after)["authenticated"] != false {
		t.Fatal("revoked token still authenticates")
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	svc, _, _ := newTestService()
	handler := newTestServer(svc)

	rec := doJSON(t, handler, http.MethodGet, "/api/profile", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/profile", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
