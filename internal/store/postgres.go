package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- principals (identity provider accounts) ----

func (s *PostgresStore) CreatePrincipal(ctx context.Context, p Principal) (Principal, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO principals (email, password_hash, display_name)
		VALUES ($1, $2, $3)
		RETURNING id, email, password_hash, display_name, created_at
	`, p.Email, p.PasswordHash, p.DisplayName).Scan(&p.ID, &p.Email, &p.PasswordHash, &p.DisplayName, &p.CreatedAt)
	if err != nil {
		return Principal{}, fmt.Errorf("insert principal: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetPrincipalByEmail(ctx context.Context, email string) (Principal, error) {
	var p Principal
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, display_name, created_at
		FROM principals WHERE email = $1
	`, email).Scan(&p.ID, &p.Email, &p.PasswordHash, &p.DisplayName, &p.CreatedAt)
	if err != nil {
		return Principal{}, err
	}
	return p, nil
}

func (s *PostgresStore) GetPrincipalByID(ctx context.Context, id string) (Principal, error) {
	var p Principal
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, display_name, created_at
		FROM principals WHERE id = $1
	`, id).Scan(&p.ID, &p.Email, &p.PasswordHash, &p.DisplayName, &p.CreatedAt)
	if err != nil {
		return Principal{}, err
	}
	return p, nil
}

// ---- profiles ----

const profileColumns = `principal_id, full_name, tower, apartment_number, phone, verified, role,
	COALESCE(assigned_by, ''), assigned_at, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (Profile, error) {
	var p Profile
	err := row.Scan(&p.PrincipalID, &p.FullName, &p.Tower, &p.ApartmentNumber, &p.Phone,
		&p.Verified, &p.Role, &p.AssignedBy, &p.AssignedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) GetProfile(ctx context.Context, principalID string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE principal_id = $1`, principalID)
	return scanProfile(row)
}

// CreateProfileIfAbsent persists a default profile keyed by principal id.
// Concurrent resolves for the same principal both succeed; the row written
// first wins and the loser is a no-op.
func (s *PostgresStore) CreateProfileIfAbsent(ctx context.Context, p Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (principal_id, full_name, tower, apartment_number, phone, verified, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (principal_id) DO NOTHING
	`, p.PrincipalID, p.FullName, p.Tower, p.ApartmentNumber, p.Phone, p.Verified, p.Role)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateVerification(ctx context.Context, principalID string, fields VerificationFields) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET full_name = $2, tower = $3, apartment_number = $4, phone = $5,
			verified = TRUE, updated_at = NOW()
		WHERE principal_id = $1
	`, principalID, fields.FullName, fields.Tower, fields.ApartmentNumber, fields.Phone)
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateRole writes the role assignment audit fields alongside the role.
// Assigning "unassigned" clears them, mirroring a role removal.
func (s *PostgresStore) UpdateRole(ctx context.Context, principalID, role, assignedBy string) error {
	var result sql.Result
	var err error
	if role == "unassigned" {
		result, err = s.db.ExecContext(ctx, `
			UPDATE profiles
			SET role = $2, assigned_by = NULL, assigned_at = NULL, updated_at = NOW()
			WHERE principal_id = $1
		`, principalID, role)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE profiles
			SET role = $2, assigned_by = $3, assigned_at = NOW(), updated_at = NOW()
			WHERE principal_id = $1
		`, principalID, role, assignedBy)
	}
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	items := make([]Profile, 0)
	for rows.Next() {
		item, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return items, nil
}

// ---- concerns ----

const concernColumns = `id, title, description, author_name, apartment_number, upvotes, upvoted_by,
	created_at, is_deleted, deleted_at, COALESCE(deleted_by, '')`

func scanConcern(row interface{ Scan(...any) error }) (Concern, error) {
	var item Concern
	var upvotedBy []byte
	err := row.Scan(&item.ID, &item.Title, &item.Description, &item.AuthorName, &item.ApartmentNumber,
		&item.Upvotes, &upvotedBy, &item.CreatedAt, &item.IsDeleted, &item.DeletedAt, &item.DeletedBy)
	if err != nil {
		return Concern{}, err
	}
	if err := json.Unmarshal(upvotedBy, &item.UpvotedBy); err != nil {
		return Concern{}, fmt.Errorf("decode upvoted_by: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertConcern(ctx context.Context, item Concern) error {
	upvotedBy, err := json.Marshal(item.UpvotedBy)
	if err != nil {
		return fmt.Errorf("encode upvoted_by: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO concerns (id, title, description, author_name, apartment_number, upvotes, upvoted_by, created_at, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
	`, item.ID, item.Title, item.Description, item.AuthorName, item.ApartmentNumber, item.Upvotes, upvotedBy, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert concern: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConcern(ctx context.Context, concernID string) (Concern, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+concernColumns+` FROM concerns WHERE id = $1`, concernID)
	return scanConcern(row)
}

// ListConcerns orders createdAt descending with id ascending as tie-break so
// reloads reproduce the same ordering.
func (s *PostgresStore) ListConcerns(ctx context.Context, includeDeleted bool) ([]Concern, error) {
	query := `SELECT ` + concernColumns + ` FROM concerns`
	if !includeDeleted {
		query += ` WHERE NOT is_deleted`
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list concerns: %w", err)
	}
	defer rows.Close()

	items := make([]Concern, 0)
	for rows.Next() {
		item, err := scanConcern(rows)
		if err != nil {
			return nil, fmt.Errorf("scan concern: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate concerns: %w", err)
	}
	return items, nil
}

// AppendUpvote records a voter in a single conditional statement: the
// already-voted check, the set append, and the derived count all happen
// server-side, so concurrent upvotes cannot lose updates and the count
// cannot drift from the set. Returns false without error when the voter is
// already present.
func (s *PostgresStore) AppendUpvote(ctx context.Context, concernID, apartmentNumber string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE concerns
		SET upvoted_by = upvoted_by || to_jsonb($2::text),
			upvotes = jsonb_array_length(upvoted_by || to_jsonb($2::text))
		WHERE id = $1 AND NOT jsonb_exists(upvoted_by, $2)
	`, concernID, apartmentNumber)
	if err != nil {
		return false, fmt.Errorf("append upvote: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append upvote: %w", err)
	}
	if affected > 0 {
		return true, nil
	}
	exists, err := s.concernExists(ctx, concernID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, sql.ErrNoRows
	}
	return false, nil
}

func (s *PostgresStore) SoftDeleteConcern(ctx context.Context, concernID, deletedBy string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE concerns
		SET is_deleted = TRUE, deleted_at = NOW(), deleted_by = $2
		WHERE id = $1 AND NOT is_deleted
	`, concernID, deletedBy)
	if err != nil {
		return false, fmt.Errorf("soft delete concern: %w", err)
	}
	return s.mutationOutcome(ctx, result, concernID)
}

// RestoreConcern clears the delete state entirely; restoring a concern that
// is not deleted reports no change.
func (s *PostgresStore) RestoreConcern(ctx context.Context, concernID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE concerns
		SET is_deleted = FALSE, deleted_at = NULL, deleted_by = NULL
		WHERE id = $1 AND is_deleted
	`, concernID)
	if err != nil {
		return false, fmt.Errorf("restore concern: %w", err)
	}
	return s.mutationOutcome(ctx, result, concernID)
}

func (s *PostgresStore) mutationOutcome(ctx context.Context, result sql.Result, concernID string) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}
	exists, err := s.concernExists(ctx, concernID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, sql.ErrNoRows
	}
	return false, nil
}

func (s *PostgresStore) concernExists(ctx context.Context, concernID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM concerns WHERE id = $1)`, concernID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check concern: %w", err)
	}
	return exists, nil
}

// SeedConcerns inserts the sample set if and only if this caller wins the
// seed marker. A non-empty collection with no marker records the marker and
// seeds nothing, so pre-existing data is never duplicated.
func (s *PostgresStore) SeedConcerns(ctx context.Context, items []Concern) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `INSERT INTO seed_markers (name) VALUES ('concerns') ON CONFLICT (name) DO NOTHING`)
	if err != nil {
		return false, fmt.Errorf("claim seed marker: %w", err)
	}
	claimed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim seed marker: %w", err)
	}
	if claimed == 0 {
		return false, nil
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM concerns`).Scan(&count); err != nil {
		return false, fmt.Errorf("count concerns: %w", err)
	}
	if count > 0 {
		// Marker was missing but data exists; record the marker and skip.
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("commit seed tx: %w", err)
		}
		return false, nil
	}

	for _, item := range items {
		upvotedBy, err := json.Marshal(item.UpvotedBy)
		if err != nil {
			return false, fmt.Errorf("encode upvoted_by: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO concerns (id, title, description, author_name, apartment_number, upvotes, upvoted_by, created_at, is_deleted)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
		`, item.ID, item.Title, item.Description, item.AuthorName, item.ApartmentNumber, item.Upvotes, upvotedBy, item.CreatedAt); err != nil {
			return false, fmt.Errorf("seed concern %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit seed tx: %w", err)
	}
	return true, nil
}

// IsNotFound reports whether err is the store's row-absent condition.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
