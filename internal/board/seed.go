package board

import (
	"context"
	"fmt"
	"time"

	"github.com/rajeshradhakrishnanmvk/opinion/internal/store"
	"github.com/rajeshradhakrishnanmvk/opinion/internal/util"
)

// sampleConcerns returns the starter board shown to a fresh community.
// Timestamps are relative to now so the board looks recently active.
func sampleConcerns(now time.Time) []store.Concern {
	return []store.Concern{
		{
			ID:              util.NewID("con"),
			Title:           "Leaky Faucet in Apartment 2A",
			Description:     "The kitchen faucet in apartment 2A has been dripping for the past three days. It's wasting water and the sound is constant.",
			AuthorName:      "Jane Smith",
			ApartmentNumber: "2A",
			Upvotes:         12,
			UpvotedBy:       []string{"3B", "5C", "1A", "4D", "2B", "6A", "1C", "5A", "3D", "4A", "6B", "2C"},
			CreatedAt:       now.Add(-48 * time.Hour),
		},
		{
			ID:              util.NewID("con"),
			Title:           "Noise complaints on the 5th floor",
			Description:     "There have been loud parties on the 5th floor almost every night this week, going on past midnight. It's difficult to sleep.",
			AuthorName:      "Robert Johnson",
			ApartmentNumber: "6B",
			Upvotes:         25,
			UpvotedBy:       []string{"1A", "2A", "3A", "4A", "5A", "6A", "1B", "2B", "3B", "4B", "5B", "1C", "2C", "3C", "4C", "5C", "1D", "2D", "3D", "4D", "5D", "6D", "6C", "3A", "4B"},
			CreatedAt:       now.Add(-24 * time.Hour),
		},
		{
			ID:              util.NewID("con"),
			Title:           "Package theft from the lobby",
			Description:     "I had a package stolen from the lobby yesterday. The area is not secure enough. We should consider getting security cameras or a better system.",
			AuthorName:      "Emily White",
			ApartmentNumber: "3D",
			Upvotes:         8,
			UpvotedBy:       []string{"1B", "4A", "5C", "2D", "6A", "3A", "1D", "4B"},
			CreatedAt:       now.Add(-30 * time.Minute),
		},
		{
			ID:              util.NewID("con"),
			Title:           "Request for more recycling bins",
			Description:     "The recycling bins are always overflowing by the middle of the week. Can we please get additional bins to handle the volume?",
			AuthorName:      "Michael Brown",
			ApartmentNumber: "1A",
			Upvotes:         18,
			UpvotedBy:       []string{"2B", "3C", "4D", "5A", "6B", "1C", "2D", "3A", "4B", "5C", "6D", "1B", "2C", "3D", "4A", "5B", "6C", "2A"},
			CreatedAt:       now.Add(-120 * time.Hour),
		},
	}
}

// SeedIfEmpty populates the starter concerns exactly once across all
// processes. The store claims a marker row transactionally, so concurrent
// callers race safely: one seeds, the rest see seeded=false.
func (s *Service) SeedIfEmpty(ctx context.Context) (bool, error) {
	seeded, err := s.store.SeedConcerns(ctx, sampleConcerns(time.Now().UTC()))
	if err != nil {
		return false, fmt.Errorf("seed concerns: %w", err)
	}
	if seeded {
		s.notify(ctx)
	}
	return seeded, nil
}
