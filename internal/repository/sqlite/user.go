package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// UpsertGoogleUser inserts or refreshes a user keyed by their Google subject.
//
// ON CONFLICT keeps the existing internal id and username; only the fields
// the provider owns (email, image) are refreshed on later sign-ins.
func (db *DB) UpsertGoogleUser(ctx context.Context, user *model.User) error {
	now := db.now()

	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (google_id, email, username, profile_image_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (google_id) DO UPDATE SET
		     email = excluded.email,
		     profile_image_url = excluded.profile_image_url,
		     updated_at = excluded.updated_at
		 RETURNING id`,
		user.GoogleID,
		user.Email,
		user.Username,
		user.ProfileImageURL,
		now,
		now,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("sqlite: upserting user (googleID=%s): %w", user.GoogleID, err)
	}

	stored, err := db.GetUserByID(ctx, user.ID)
	if err != nil {
		return err
	}
	*user = *stored

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, google_id, email, username, profile_image_url, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(
		&u.ID,
		&u.GoogleID,
		&u.Email,
		&u.Username,
		&u.ProfileImageURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}

	return &u, nil
}

// SearchUsers matches a case-insensitive substring of the username.
func (db *DB) SearchUsers(ctx context.Context, query string, limit int) ([]model.UserSummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, username, profile_image_url
		 FROM users
		 WHERE LOWER(username) LIKE ? ESCAPE '\'
		 ORDER BY username COLLATE NOCASE, id
		 LIMIT ?`,
		likePattern(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching users: %w", err)
	}
	defer rows.Close()

	return scanUserSummaries(rows)
}

func scanUserSummaries(rows *sql.Rows) ([]model.UserSummary, error) {
	users := []model.UserSummary{}
	for rows.Next() {
		var u model.UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.ProfileImageURL); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// likePattern builds a lower-cased %substring% pattern with LIKE
// metacharacters escaped.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(query)) + "%"
}
