package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rajeshradhakrishnanmvk/opinion/internal/auth"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/authpw"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/board"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/config"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/docs"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/export"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/search"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/store"
)

type fakeData struct {
	getPrincipalByIDFn func(context.Context, string) (store.Principal, error)
	pingFn             func(context.Context) error
}

func (f *fakeData) GetPrincipalByID(ctx context.Context, id string) (store.Principal, error) {
	if f.getPrincipalByIDFn != nil {
		return f.getPrincipalByIDFn(ctx, id)
	}
	return store.Principal{ID: id, DisplayName: "Resident"}, nil
}

func (f *fakeData) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeSessions struct {
	refresh map[string]string
	revoked map[string]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{refresh: make(map[string]string), revoked: make(map[string]bool)}
}

func (f *fakeSessions) SaveRefreshSession(ctx context.Context, tokenHash, principalID string, expiresAt time.Time) error {
	f.refresh[tokenHash] = principalID
	return nil
}

func (f *fakeSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	if id, ok := f.refresh[tokenHash]; ok {
		return id, nil
	}
	return "", sql.ErrNoRows
}

func (f *fakeSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeSessions) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	f.revoked[jti] = true
	return nil
}

func (f *fakeSessions) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return f.revoked[jti], nil
}

type fakeClaims struct {
	roles map[string]string
}

func newFakeClaims() *fakeClaims {
	return &fakeClaims{roles: make(map[string]string)}
}

func (f *fakeClaims) GetRoleClaim(ctx context.Context, principalID string) (string, bool, error) {
	role, ok := f.roles[principalID]
	return role, ok, nil
}

type fakeAuth struct {
	signUpFn func(context.Context, authpw.SignUpRequest) (store.Principal, error)
	signInFn func(context.Context, authpw.SignInRequest) (store.Principal, error)
}

func (f *fakeAuth) SignUp(ctx context.Context, req authpw.SignUpRequest) (store.Principal, error) {
	if f.signUpFn != nil {
		return f.signUpFn(ctx, req)
	}
	return store.Principal{ID: "prn_new", Email: req.Email, DisplayName: req.DisplayName}, nil
}

func (f *fakeAuth) SignIn(ctx context.Context, req authpw.SignInRequest) (store.Principal, error) {
	if f.signInFn != nil {
		return f.signInFn(ctx, req)
	}
	return store.Principal{ID: "prn_1", Email: req.Email, DisplayName: "Resident"}, nil
}

type fakeIdentity struct {
	resolveProfileFn     func(context.Context, string, string) (*store.Profile, error)
	submitVerificationFn func(context.Context, string, store.VerificationFields) error
	assignRoleFn         func(context.Context, string, string, string) error
	listProfilesFn       func(context.Context) ([]store.Profile, error)
}

func (f *fakeIdentity) ResolveProfile(ctx context.Context, principalID, displayName string) (*store.Profile, error) {
	if f.resolveProfileFn != nil {
		return f.resolveProfileFn(ctx, principalID, displayName)
	}
	return &store.Profile{PrincipalID: principalID, FullName: displayName, Role: "tenant"}, nil
}

func (f *fakeIdentity) SubmitVerification(ctx context.Context, principalID string, fields store.VerificationFields) error {
	if f.submitVerificationFn != nil {
		return f.submitVerificationFn(ctx, principalID, fields)
	}
	return nil
}

func (f *fakeIdentity) AssignRole(ctx context.Context, targetID, role, assignedBy string) error {
	if f.assignRoleFn != nil {
		return f.assignRoleFn(ctx, targetID, role, assignedBy)
	}
	return nil
}

func (f *fakeIdentity) ListProfiles(ctx context.Context) ([]store.Profile, error) {
	if f.listProfilesFn != nil {
		return f.listProfilesFn(ctx)
	}
	return nil, nil
}

type fakeBoard struct {
	createFn  func(context.Context, board.CreateRequest) (store.Concern, error)
	upvoteFn  func(context.Context, string, string) (store.Concern, error)
	deleteFn  func(context.Context, string, string) error
	restoreFn func(context.Context, string) error
	getFn     func(context.Context, string) (store.Concern, error)
	listFn    func(context.Context, bool) ([]store.Concern, error)
}

func (f *fakeBoard) Create(ctx context.Context, req board.CreateRequest) (store.Concern, error) {
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return store.Concern{
		ID:              "con_1",
		Title:           req.Title,
		Description:     req.Description,
		AuthorName:      req.AuthorName,
		ApartmentNumber: req.ApartmentNumber,
		Upvotes:         1,
		UpvotedBy:       []string{req.ApartmentNumber},
		CreatedAt:       time.Now(),
	}, nil
}

func (f *fakeBoard) Upvote(ctx context.Context, concernID, apartmentNumber string) (store.Concern, error) {
	if f.upvoteFn != nil {
		return f.upvoteFn(ctx, concernID, apartmentNumber)
	}
	return store.Concern{ID: concernID, Upvotes: 2, UpvotedBy: []string{"1A", apartmentNumber}}, nil
}

func (f *fakeBoard) SoftDelete(ctx context.Context, concernID, deletedBy string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, concernID, deletedBy)
	}
	return nil
}

func (f *fakeBoard) Restore(ctx context.Context, concernID string) error {
	if f.restoreFn != nil {
		return f.restoreFn(ctx, concernID)
	}
	return nil
}

func (f *fakeBoard) Get(ctx context.Context, concernID string) (store.Concern, error) {
	if f.getFn != nil {
		return f.getFn(ctx, concernID)
	}
	return store.Concern{ID: concernID}, nil
}

func (f *fakeBoard) List(ctx context.Context, includeDeleted bool) ([]store.Concern, error) {
	if f.listFn != nil {
		return f.listFn(ctx, includeDeleted)
	}
	return nil, nil
}

type fakeDocs struct {
	uploadFn func(context.Context, string, string, int64, io.Reader, string) (docs.Document, error)
	listFn   func(context.Context) ([]docs.Document, error)
	removeFn func(context.Context, string) error
}

func (f *fakeDocs) Upload(ctx context.Context, name, contentType string, size int64, body io.Reader, uploadedBy string) (docs.Document, error) {
	if f.uploadFn != nil {
		return f.uploadFn(ctx, name, contentType, size, body, uploadedBy)
	}
	return docs.Document{Key: "documents/1_" + name, Name: name, Size: size}, nil
}

func (f *fakeDocs) List(ctx context.Context) ([]docs.Document, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return nil, nil
}

func (f *fakeDocs) DownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://storage.example.com/" + key, nil
}

func (f *fakeDocs) Remove(ctx context.Context, key string) error {
	if f.removeFn != nil {
		return f.removeFn(ctx, key)
	}
	return nil
}

type fakeExporter struct {
	exportFn func(context.Context, export.Request) (*export.Result, error)
}

func (f *fakeExporter) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	if f.exportFn != nil {
		return f.exportFn(ctx, req)
	}
	return &export.Result{Data: []byte("%PDF-1.7"), Filename: "board.pdf", MimeType: "application/pdf"}, nil
}

type fakeSearch struct {
	indexed []search.ConcernRecord
	deleted []string
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (f *fakeSearch) IndexConcern(rec search.ConcernRecord) {
	f.indexed = append(f.indexed, rec)
}

func (f *fakeSearch) DeleteConcern(id string) {
	f.deleted = append(f.deleted, id)
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}
}

func newTestServer(svc *Service) http.Handler {
	return NewHTTPServer(svc, "http://localhost:3000").Handler()
}

func mintToken(t *testing.T, svc *Service, role, apartment string, verified bool) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(svc.cfg.JWTSecret), auth.Claims{
		Sub:       "prn_1",
		Name:      "Resident",
		Role:      role,
		Apartment: apartment,
		Verified:  verified,
		JTI:       "jti_test",
		Exp:       time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return payload
}

func newTestService() (*Service, *fakeSessions, *fakeClaims) {
	sessions := newFakeSessions()
	claims := newFakeClaims()
	svc := &Service{
		cfg:      testConfig(),
		store:    &fakeData{},
		sessions: sessions,
		claims:   claims,
		authpw:   &fakeAuth{},
		identity: &fakeIdentity{},
		board:    &fakeBoard{},
		docs:     &fakeDocs{},
		exporter: &fakeExporter{},
		search:   &fakeSearch{},
	}
	return svc, sessions, claims
}
