package app

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/rajeshradhakrishnanmvk/opinion/internal/auth"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/authpw"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/board"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/config"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/docs"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/export"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/identity"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/livesync"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/rbac"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/search"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/store"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	PrincipalID  string
	DisplayName  string
	Role         string
	Apartment    string
	Verified     bool
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetPrincipalByID(ctx context.Context, id string) (store.Principal, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, principalID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type claimsReader interface {
	GetRoleClaim(ctx context.Context, principalID string) (string, bool, error)
}

type authService interface {
	SignUp(ctx context.Context, req authpw.SignUpRequest) (store.Principal, error)
	SignIn(ctx context.Context, req authpw.SignInRequest) (store.Principal, error)
}

type identityService interface {
	ResolveProfile(ctx context.Context, principalID, displayName string) (*store.Profile, error)
	SubmitVerification(ctx context.Context, principalID string, fields store.VerificationFields) error
	AssignRole(ctx context.Context, targetID, role, assignedBy string) error
	ListProfiles(ctx context.Context) ([]store.Profile, error)
}

type boardService interface {
	Create(ctx context.Context, req board.CreateRequest) (store.Concern, error)
	Upvote(ctx context.Context, concernID, apartmentNumber string) (store.Concern, error)
	SoftDelete(ctx context.Context, concernID, deletedBy string) error
	Restore(ctx context.Context, concernID string) error
	Get(ctx context.Context, concernID string) (store.Concern, error)
	List(ctx context.Context, includeDeleted bool) ([]store.Concern, error)
}

type docsService interface {
	Upload(ctx context.Context, name, contentType string, size int64, body io.Reader, uploadedBy string) (docs.Document, error)
	List(ctx context.Context) ([]docs.Document, error)
	DownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}

type exportService interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexConcern(rec search.ConcernRecord)
	DeleteConcern(id string)
}

type liveEngine interface {
	Subscribe(ctx context.Context, includeDeleted bool, fn func([]store.Concern)) (*livesync.Subscription, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	claims   claimsReader
	authpw   authService
	identity identityService
	board    boardService
	docs     docsService
	exporter exportService
	search   searchService
	live     liveEngine
}

type Deps struct {
	Store    *store.PostgresStore
	Sessions sessionStore
	Claims   claimsReader
	AuthPW   *authpw.Service
	Identity *identity.Service
	Board    *board.Service
	Docs     *docs.Service
	Exporter *export.Service
	Search   *search.Service
	Live     *livesync.Engine
}

func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:      cfg,
		store:    deps.Store,
		sessions: deps.Sessions,
		claims:   deps.Claims,
	}
	if deps.AuthPW != nil {
		s.authpw = deps.AuthPW
	}
	if deps.Identity != nil {
		s.identity = deps.Identity
	}
	if deps.Board != nil {
		s.board = deps.Board
	}
	if deps.Docs != nil {
		s.docs = deps.Docs
	}
	if deps.Exporter != nil {
		s.exporter = deps.Exporter
	}
	if deps.Search != nil {
		s.search = deps.Search
	}
	if deps.Live != nil {
		s.live = deps.Live
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// SignUp registers a principal, resolves their default profile, and opens a
// session.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	principal, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Session{}, err
	}
	return s.openSession(ctx, principal)
}

// SignIn authenticates a principal and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	principal, err := s.authpw.SignIn(ctx, authpw.SignInRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return Session{}, err
	}
	return s.openSession(ctx, principal)
}

// openSession resolves the profile for a principal and mints tokens. Profile
// resolution degrading to nil leaves the session usable but unverified.
func (s *Service) openSession(ctx context.Context, principal store.Principal) (Session, error) {
	profile, err := s.identity.ResolveProfile(ctx, principal.ID, principal.DisplayName)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, principal, profile)
}

// Refresh rotates a refresh token and mints a new session. Role changes made
// since the last issue land in the new token via the claims channel.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	principalID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	principal, err := s.store.GetPrincipalByID(ctx, principalID)
	if err != nil {
		return Session{}, err
	}
	return s.openSession(ctx, principal)
}

// ForceRefresh reissues the access token for a live session so that a role
// change takes effect without waiting for the refresh cycle. The old access
// token is revoked.
func (s *Service) ForceRefresh(ctx context.Context, session Session) (Session, error) {
	principal, err := s.store.GetPrincipalByID(ctx, session.PrincipalID)
	if err != nil {
		return Session{}, err
	}
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	profile, err := s.identity.ResolveProfile(ctx, principal.ID, principal.DisplayName)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, principal, profile)
}

func (s *Service) issueSession(ctx context.Context, principal store.Principal, profile *store.Profile) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	role := string(rbac.RoleUnassigned)
	apartment := ""
	verified := false
	if profile != nil {
		role = profile.Role
		apartment = profile.ApartmentNumber
		verified = profile.Verified
	}
	// The claims channel wins over the profile row: it is what role
	// assignment writes synchronously.
	if claimRole, ok, err := s.claims.GetRoleClaim(ctx, principal.ID); err != nil {
		log.Printf(`{"level":"warn","msg":"role claim read failed","principal":%q,"error":%q}`, principal.ID, err.Error())
	} else if ok {
		role = claimRole
	}

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:       principal.ID,
		Name:      principal.DisplayName,
		Role:      role,
		Apartment: apartment,
		Verified:  verified,
		JTI:       jti,
		Exp:       expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), principal.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		PrincipalID:  principal.ID,
		DisplayName:  principal.DisplayName,
		Role:         role,
		Apartment:    apartment,
		Verified:     verified,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:       token,
		PrincipalID: claims.Sub,
		DisplayName: claims.Name,
		Role:        claims.Role,
		Apartment:   claims.Apartment,
		Verified:    claims.Verified,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// Profile returns the session principal's profile.
func (s *Service) Profile(ctx context.Context, session Session) (*store.Profile, error) {
	profile, err := s.identity.ResolveProfile(ctx, session.PrincipalID, session.DisplayName)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, domainError(http.StatusServiceUnavailable, "PROFILE_UNAVAILABLE", "Profile could not be loaded", nil)
	}
	return profile, nil
}

// SubmitVerification records residence details for the session principal.
func (s *Service) SubmitVerification(ctx context.Context, session Session, fields store.VerificationFields) error {
	if err := s.identity.SubmitVerification(ctx, session.PrincipalID, fields); err != nil {
		var verr *identity.ValidationError
		if errors.As(err, &verr) {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", verr.Message, map[string]any{"field": verr.Field})
		}
		if errors.Is(err, identity.ErrProfileNotFound) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "Profile not found", nil)
		}
		return err
	}
	return nil
}

// ListProfiles returns every resident profile. Admin only; the HTTP layer
// gates on ActionManageRoles.
func (s *Service) ListProfiles(ctx context.Context) ([]store.Profile, error) {
	return s.identity.ListProfiles(ctx)
}

// AssignRole sets a resident's role.
func (s *Service) AssignRole(ctx context.Context, session Session, targetID, role string) error {
	if err := s.identity.AssignRole(ctx, targetID, role, session.PrincipalID); err != nil {
		var verr *identity.ValidationError
		if errors.As(err, &verr) {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", verr.Message, map[string]any{"field": verr.Field})
		}
		if errors.Is(err, identity.ErrProfileNotFound) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "Profile not found", nil)
		}
		return err
	}
	return nil
}

// ListConcerns returns the board.
func (s *Service) ListConcerns(ctx context.Context, includeDeleted bool) ([]map[string]any, error) {
	items, err := s.board.List(ctx, includeDeleted)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, concernPayload(item))
	}
	return payload, nil
}

// CreateConcern posts a concern authored by the session principal's
// apartment.
func (s *Service) CreateConcern(ctx context.Context, session Session, title, description string) (map[string]any, error) {
	if !session.Verified || session.Apartment == "" {
		return nil, domainError(http.StatusForbidden, "UNVERIFIED", "Verify your residence before posting", nil)
	}
	item, err := s.board.Create(ctx, board.CreateRequest{
		Title:           title,
		Description:     description,
		AuthorName:      session.DisplayName,
		ApartmentNumber: session.Apartment,
	})
	if err != nil {
		var verr *board.ValidationError
		if errors.As(err, &verr) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", verr.Message, map[string]any{"field": verr.Field})
		}
		return nil, err
	}
	if s.search != nil {
		s.search.IndexConcern(concernRecord(item))
	}
	return concernPayload(item), nil
}

// UpvoteConcern registers the session apartment's vote.
func (s *Service) UpvoteConcern(ctx context.Context, session Session, concernID string) (map[string]any, error) {
	if !session.Verified || session.Apartment == "" {
		return nil, domainError(http.StatusForbidden, "UNVERIFIED", "Verify your residence before voting", nil)
	}
	item, err := s.board.Upvote(ctx, concernID, session.Apartment)
	if err != nil {
		if errors.Is(err, board.ErrConcernNotFound) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Concern not found", nil)
		}
		var verr *board.ValidationError
		if errors.As(err, &verr) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", verr.Message, map[string]any{"field": verr.Field})
		}
		return nil, err
	}
	if s.search != nil {
		s.search.IndexConcern(concernRecord(item))
	}
	return concernPayload(item), nil
}

// DeleteConcern soft-deletes a concern.
func (s *Service) DeleteConcern(ctx context.Context, session Session, concernID string) error {
	if err := s.board.SoftDelete(ctx, concernID, session.PrincipalID); err != nil {
		if errors.Is(err, board.ErrConcernNotFound) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "Concern not found", nil)
		}
		return err
	}
	if s.search != nil {
		s.search.DeleteConcern(concernID)
	}
	return nil
}

// RestoreConcern brings a soft-deleted concern back.
func (s *Service) RestoreConcern(ctx context.Context, concernID string) (map[string]any, error) {
	if err := s.board.Restore(ctx, concernID); err != nil {
		if errors.Is(err, board.ErrConcernNotFound) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Concern not found", nil)
		}
		return nil, err
	}
	item, err := s.board.Get(ctx, concernID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexConcern(concernRecord(item))
	}
	return concernPayload(item), nil
}

// Subscribe attaches a live snapshot feed.
func (s *Service) Subscribe(ctx context.Context, includeDeleted bool, fn func([]store.Concern)) (*livesync.Subscription, error) {
	if s.live == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SYNC_UNAVAILABLE", "Live sync not configured", nil)
	}
	return s.live.Subscribe(ctx, includeDeleted, fn)
}

// UploadDocument stores a PDF in the registry, tagged with the uploader.
func (s *Service) UploadDocument(ctx context.Context, session Session, name, contentType string, size int64, body io.Reader) (docs.Document, error) {
	doc, err := s.docs.Upload(ctx, name, contentType, size, body, session.PrincipalID)
	if err != nil {
		return docs.Document{}, mapDocsError(err)
	}
	return doc, nil
}

// ListDocuments lists the registry, attaching short-lived download links.
func (s *Service) ListDocuments(ctx context.Context) ([]docs.Document, error) {
	items, err := s.docs.List(ctx)
	if err != nil {
		return nil, mapDocsError(err)
	}
	for i := range items {
		url, err := s.docs.DownloadURL(ctx, items[i].Key, 15*time.Minute)
		if err != nil {
			log.Printf(`{"level":"warn","msg":"presign failed","key":%q,"error":%q}`, items[i].Key, err.Error())
			continue
		}
		items[i].URL = url
	}
	return items, nil
}

// RemoveDocument deletes a file from the registry.
func (s *Service) RemoveDocument(ctx context.Context, key string) error {
	if err := s.docs.Remove(ctx, key); err != nil {
		return mapDocsError(err)
	}
	return nil
}

// Search queries the board.
func (s *Service) Search(ctx context.Context, text string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{Text: text, Limit: limit, Offset: offset}), nil
}

// ExportBoard renders the board as a PDF report.
func (s *Service) ExportBoard(ctx context.Context, includeDeleted bool) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export not configured", nil)
	}
	result, err := s.exporter.Export(ctx, export.Request{IncludeDeleted: includeDeleted})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF renderer not installed", nil)
		}
		return nil, err
	}
	return result, nil
}

func mapDocsError(err error) error {
	var verr *docs.ValidationError
	if errors.As(err, &verr) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", verr.Message, nil)
	}
	if errors.Is(err, docs.ErrDocumentNotFound) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Document not found", nil)
	}
	if errors.Is(err, docs.ErrStorageDenied) {
		return domainError(http.StatusForbidden, "STORAGE_DENIED", "Storage permission denied. Check your role or refresh your session.", nil)
	}
	return err
}

func concernRecord(item store.Concern) search.ConcernRecord {
	return search.ConcernRecord{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		AuthorName:  item.AuthorName,
		Apartment:   item.ApartmentNumber,
		Upvotes:     item.Upvotes,
	}
}

func concernPayload(item store.Concern) map[string]any {
	payload := map[string]any{
		"id":              item.ID,
		"title":           item.Title,
		"description":     item.Description,
		"authorName":      item.AuthorName,
		"apartmentNumber": item.ApartmentNumber,
		"upvotes":         item.Upvotes,
		"upvotedBy":       item.UpvotedBy,
		"createdAt":       item.CreatedAt.UTC().Format(time.RFC3339),
		"isDeleted":       item.IsDeleted,
	}
	if item.DeletedAt != nil {
		payload["deletedAt"] = item.DeletedAt.UTC().Format(time.RFC3339)
		payload["deletedBy"] = item.DeletedBy
	}
	return payload
}
