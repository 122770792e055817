// Package identity resolves board profiles and keeps role claims in sync.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/rajeshradhakrishnanmvk/opinion/internal/rbac"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/store"
)

// ProfileStore defines the storage interface for profiles
type ProfileStore interface {
	GetProfile(ctx context.Context, principalID string) (store.Profile, error)
	CreateProfileIfAbsent(ctx context.Context, p store.Profile) error
	UpdateVerification(ctx context.Context, principalID string, fields store.VerificationFields) error
	UpdateRole(ctx context.Context, principalID, role, assignedBy string) error
	ListProfiles(ctx context.Context) ([]store.Profile, error)
}

// ClaimsChannel propagates role changes to the session side channel so that
// freshly issued tokens carry the current role.
type ClaimsChannel interface {
	SetRoleClaim(ctx context.Context, principalID, role string) error
}

// Service resolves profiles for authenticated principals and manages roles.
type Service struct {
	store  ProfileStore
	claims ClaimsChannel
}

func NewService(store ProfileStore, claims ClaimsChannel) *Service {
	return &Service{store: store, claims: claims}
}

// ErrProfileNotFound is returned when an operation targets a missing profile.
var ErrProfileNotFound = errors.New("profile not found")

// ValidationError reports a rejected field on a verification submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ResolveProfile looks up the profile for a principal, creating a default
// tenant profile on first sight. Resolution is idempotent: concurrent callers
// racing on the same principal converge on a single row.
//
// A failure to create or re-read the default profile is not fatal to the
// session; the caller gets a nil profile and should treat the principal as
// having no verified residence yet.
func (s *Service) ResolveProfile(ctx context.Context, principalID, displayName string) (*store.Profile, error) {
	p, err := s.store.GetProfile(ctx, principalID)
	if err == nil {
		return &p, nil
	}
	if !store.IsNotFound(err) {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	def := store.Profile{
		PrincipalID: principalID,
		FullName:    strings.TrimSpace(displayName),
		Role:        string(rbac.RoleTenant),
	}
	if err := s.store.CreateProfileIfAbsent(ctx, def); err != nil {
		log.Printf(`{"level":"warn","msg":"default profile create failed","principal":%q,"error":%q}`, principalID, err.Error())
		return nil, nil
	}
	if err := s.claims.SetRoleClaim(ctx, principalID, string(rbac.RoleTenant)); err != nil {
		// Claims catch up on the next role assignment; token issuance falls
		// back to the profile row in the meantime.
		log.Printf(`{"level":"warn","msg":"claim sync failed on profile create","principal":%q,"error":%q}`, principalID, err.Error())
	}

	p, err = s.store.GetProfile(ctx, principalID)
	if err != nil {
		log.Printf(`{"level":"warn","msg":"default profile re-read failed","principal":%q,"error":%q}`, principalID, err.Error())
		return nil, nil
	}
	return &p, nil
}

var apartmentPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// SubmitVerification records residence details on a profile and marks it
// verified.
func (s *Service) SubmitVerification(ctx context.Context, principalID string, fields store.VerificationFields) error {
	fields.FullName = strings.TrimSpace(fields.FullName)
	fields.Tower = strings.TrimSpace(fields.Tower)
	fields.ApartmentNumber = strings.TrimSpace(fields.ApartmentNumber)
	fields.Phone = strings.TrimSpace(fields.Phone)

	if len(fields.FullName) < 2 {
		return &ValidationError{Field: "fullName", Message: "full name must be at least 2 characters"}
	}
	if fields.Tower == "" {
		return &ValidationError{Field: "tower", Message: "tower is required"}
	}
	if !apartmentPattern.MatchString(fields.ApartmentNumber) {
		return &ValidationError{Field: "apartmentNumber", Message: "apartment number may only contain letters, digits, and hyphens"}
	}
	if len(fields.Phone) < 8 {
		return &ValidationError{Field: "phone", Message: "phone number must be at least 8 digits"}
	}

	if err := s.store.UpdateVerification(ctx, principalID, fields); err != nil {
		if store.IsNotFound(err) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("update verification: %w", err)
	}
	return nil
}

// AssignRole sets a principal's role and synchronizes the claims side
// channel. The role lands in tokens only after the claim write succeeds, so a
// claims failure here is surfaced to the caller rather than swallowed.
func (s *Service) AssignRole(ctx context.Context, targetID, role, assignedBy string) error {
	if !rbac.Assignable(role) {
		return &ValidationError{Field: "role", Message: fmt.Sprintf("role %q cannot be assigned", role)}
	}

	if err := s.store.UpdateRole(ctx, targetID, role, assignedBy); err != nil {
		if store.IsNotFound(err) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("update role: %w", err)
	}

	if err := s.claims.SetRoleClaim(ctx, targetID, role); err != nil {
		return fmt.Errorf("sync role claim: %w", err)
	}
	return nil
}

// ListProfiles returns every profile, oldest first.
func (s *Service) ListProfiles(ctx context.Context) ([]store.Profile, error) {
	profiles, err := s.store.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}
