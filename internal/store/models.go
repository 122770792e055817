package store

import "time"

// Principal is an identity-provider account. Separate from Profile: a
// principal exists the moment sign-up succeeds, a profile is created lazily
// on first resolve.
type Principal struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	CreatedAt    time.Time
}

// Profile is the per-resident record keyed by principal id. The role field
// is the sole authority for feature gating.
type Profile struct {
	PrincipalID     string
	FullName        string
	Tower           string
	ApartmentNumber string
	Phone           string
	Verified        bool
	Role            string
	AssignedBy      string
	AssignedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// VerificationFields are the self-service identity fields a resident
// submits; merging them flips Verified on.
type VerificationFields struct {
	FullName        string
	Tower           string
	ApartmentNumber string
	Phone           string
}

// Concern is a community post. Title, description, and the author snapshot
// are immutable after creation; only vote and delete state ever change.
// Upvotes must always equal len(UpvotedBy).
type Concern struct {
	ID              string
	Title           string
	Description     string
	AuthorName      string
	ApartmentNumber string
	Upvotes         int
	UpvotedBy       []string
	CreatedAt       time.Time
	IsDeleted       bool
	DeletedAt       *time.Time
	DeletedBy       string
}
