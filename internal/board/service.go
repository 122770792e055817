// Package board implements the community concern board: submissions, one
// upvote per apartment, and recoverable removal.
package board

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/rajeshradhakrishnanmvk/opinion/internal/store"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/util"
)

// ConcernStore defines the storage interface for concerns
type ConcernStore interface {
	InsertConcern(ctx context.Context, item store.Concern) error
	GetConcern(ctx context.Context, concernID string) (store.Concern, error)
	ListConcerns(ctx context.Context, includeDeleted bool) ([]store.Concern, error)
	AppendUpvote(ctx context.Context, concernID, apartmentNumber string) (bool, error)
	SoftDeleteConcern(ctx context.Context, concernID, deletedBy string) (bool, error)
	RestoreConcern(ctx context.Context, concernID string) (bool, error)
	SeedConcerns(ctx context.Context, items []store.Concern) (bool, error)
}

// Notifier signals that the concern set changed and subscribers should pick
// up a fresh snapshot.
type Notifier interface {
	NotifyChanged(ctx context.Context) error
}

// Service coordinates concern mutations and change notifications.
type Service struct {
	store    ConcernStore
	notifier Notifier
}

func NewService(store ConcernStore, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// ErrConcernNotFound is returned when an operation targets a missing concern.
var ErrConcernNotFound = errors.New("concern not found")

// ValidationError reports a rejected field on a concern submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

const (
	titleMinLen       = 5
	titleMaxLen       = 100
	descriptionMinLen = 10
	descriptionMaxLen = 500
)

// CreateRequest contains concern submission parameters
type CreateRequest struct {
	Title           string
	Description     string
	AuthorName      string
	ApartmentNumber string
}

// Create submits a new concern. The author's apartment counts as the first
// upvote.
func (s *Service) Create(ctx context.Context, req CreateRequest) (store.Concern, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.AuthorName = strings.TrimSpace(req.AuthorName)
	req.ApartmentNumber = strings.TrimSpace(req.ApartmentNumber)

	if n := len(req.Title); n < titleMinLen || n > titleMaxLen {
		return store.Concern{}, &ValidationError{Field: "title", Message: fmt.Sprintf("title must be between %d and %d characters", titleMinLen, titleMaxLen)}
	}
	if n := len(req.Description); n < descriptionMinLen || n > descriptionMaxLen {
		return store.Concern{}, &ValidationError{Field: "description", Message: fmt.Sprintf("description must be between %d and %d characters", descriptionMinLen, descriptionMaxLen)}
	}
	if req.AuthorName == "" {
		return store.Concern{}, &ValidationError{Field: "authorName", Message: "author name is required"}
	}
	if req.ApartmentNumber == "" {
		return store.Concern{}, &ValidationError{Field: "apartmentNumber", Message: "apartment number is required"}
	}

	item := store.Concern{
		ID:              util.NewID("con"),
		Title:           req.Title,
		Description:     req.Description,
		AuthorName:      req.AuthorName,
		ApartmentNumber: req.ApartmentNumber,
		Upvotes:         1,
		UpvotedBy:       []string{req.ApartmentNumber},
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.InsertConcern(ctx, item); err != nil {
		return store.Concern{}, fmt.Errorf("insert concern: %w", err)
	}
	s.notify(ctx)
	return item, nil
}

// Upvote registers one vote per apartment on a concern. A repeat vote from
// the same apartment is a no-op and returns the concern unchanged.
func (s *Service) Upvote(ctx context.Context, concernID, apartmentNumber string) (store.Concern, error) {
	apartmentNumber = strings.TrimSpace(apartmentNumber)
	if apartmentNumber == "" {
		return store.Concern{}, &ValidationError{Field: "apartmentNumber", Message: "apartment number is required"}
	}

	changed, err := s.store.AppendUpvote(ctx, concernID, apartmentNumber)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Concern{}, ErrConcernNotFound
		}
		return store.Concern{}, fmt.Errorf("append upvote: %w", err)
	}

	item, err := s.store.GetConcern(ctx, concernID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Concern{}, ErrConcernNotFound
		}
		return store.Concern{}, fmt.Errorf("fetch concern: %w", err)
	}
	if changed {
		s.notify(ctx)
	}
	return item, nil
}

// SoftDelete hides a concern from the default listing while keeping its
// votes recoverable. Deleting an already-deleted concern succeeds without
// effect.
func (s *Service) SoftDelete(ctx context.Context, concernID, deletedBy string) error {
	changed, err := s.store.SoftDeleteConcern(ctx, concernID, deletedBy)
	if err != nil {
		if store.IsNotFound(err) {
			return ErrConcernNotFound
		}
		return fmt.Errorf("soft delete concern: %w", err)
	}
	if changed {
		s.notify(ctx)
	}
	return nil
}

// Restore brings a soft-deleted concern back with its votes intact.
// Restoring a live concern succeeds without effect.
func (s *Service) Restore(ctx context.Context, concernID string) error {
	changed, err := s.store.RestoreConcern(ctx, concernID)
	if err != nil {
		if store.IsNotFound(err) {
			return ErrConcernNotFound
		}
		return fmt.Errorf("restore concern: %w", err)
	}
	if changed {
		s.notify(ctx)
	}
	return nil
}

// Get returns a single concern regardless of deletion state.
func (s *Service) Get(ctx context.Context, concernID string) (store.Concern, error) {
	item, err := s.store.GetConcern(ctx, concernID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Concern{}, ErrConcernNotFound
		}
		return store.Concern{}, fmt.Errorf("fetch concern: %w", err)
	}
	return item, nil
}

// List returns concerns newest first. The store already orders the result;
// the sort here pins the contract for stores that do not.
func (s *Service) List(ctx context.Context, includeDeleted bool) ([]store.Concern, error) {
	items, err := s.store.ListConcerns(ctx, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("list concerns: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *Service) notify(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyChanged(ctx); err != nil {
		log.Printf(`{"level":"warn","msg":"concern change notify failed","error":%q}`, err.Error())
	}
}
