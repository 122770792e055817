package export

import (
	"context"
	"fmt"
	"time"

	"github.com/rajeshradhakrishnanmvk/opinion/internal/store"
)

// BoardLister provides the concerns that go into a report.
type BoardLister interface {
	List(ctx context.Context, includeDeleted bool) ([]store.Concern, error)
}

// Service renders board reports.
type Service struct {
	board BoardLister
}

// NewService creates a new export service
func NewService(board BoardLister) *Service {
	return &Service{board: board}
}

// Export renders the current board as a PDF report.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	items, err := s.board.List(ctx, req.IncludeDeleted)
	if err != nil {
		return nil, fmt.Errorf("list concerns: %w", err)
	}

	title := req.Title
	if title == "" {
		title = "Community Concern Board"
	}

	data := TemplateData{
		Title:       title,
		GeneratedAt: time.Now().UTC(),
		Concerns:    make([]TemplateConcern, 0, len(items)),
	}
	for _, item := range items {
		data.Concerns = append(data.Concerns, TemplateConcern{
			Title:       item.Title,
			Description: item.Description,
			AuthorName:  item.AuthorName,
			Apartment:   item.ApartmentNumber,
			Upvotes:     item.Upvotes,
			CreatedAt:   item.CreatedAt,
			IsDeleted:   item.IsDeleted,
		})
	}

	html, err := RenderBoardHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	return exportPDF(html, title)
}
