package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/repository"
)

// compile-time check that *DB implements repository.GroupRepository
var _ repository.GroupRepository = (*DB)(nil)

const groupColumns = `g.id, g.name, g.owner_id, g.created_at`

func lockGroup(ctx context.Context, tx dbtx, groupID int64) error {
	return lockRow(ctx, tx, "play_groups", "name", groupID, "group")
}

// CreateGroup inserts a group owned by group.OwnerID. Names are unique.
func (db *DB) CreateGroup(ctx context.Context, group *model.Group) error {
	group.CreatedAt = db.now()

	return db.withTx(ctx, func(tx dbtx) error {
		if err := lockUser(ctx, tx, group.OwnerID); err != nil {
			return err
		}

		err := tx.QueryRowContext(ctx,
			`INSERT INTO play_groups (name, owner_id, created_at) VALUES (?, ?, ?) RETURNING id`,
			group.Name, group.OwnerID, group.CreatedAt,
		).Scan(&group.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict(fmt.Sprintf("group name %q is already taken", group.Name))
			}
			return fmt.Errorf("sqlite: inserting group %q: %w", group.Name, err)
		}
		return nil
	})
}

// GetGroup retrieves a group by ID.
func (db *DB) GetGroup(ctx context.Context, id int64) (*model.Group, error) {
	var g model.Group
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM play_groups g WHERE g.id = ?`, id,
	).Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("group", id)
		}
		return nil, fmt.Errorf("sqlite: getting group %d: %w", id, err)
	}
	return &g, nil
}

// GroupMembers lists members in join order. The owner is not a member row.
func (db *DB) GroupMembers(ctx context.Context, groupID int64) ([]model.UserSummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT u.id, u.username, u.profile_image_url
		 FROM group_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.group_id = ?
		 ORDER BY m.joined_at, u.id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing members of group %d: %w", groupID, err)
	}
	defer rows.Close()

	return scanUserSummaries(rows)
}

// GroupGames lists every game owned by the owner or any member, once.
func (db *DB) GroupGames(ctx context.Context, groupID int64) ([]model.Game, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+gameColumns+`
		 FROM games g
		 WHERE g.id IN (
		     SELECT uc.item_id FROM user_collections uc
		     WHERE uc.collection = ?
		       AND uc.user_id IN (
		           SELECT owner_id FROM play_groups WHERE id = ?
		           UNION
		           SELECT user_id FROM group_members WHERE group_id = ?
		       )
		 )
		 ORDER BY g.name COLLATE NOCASE, g.id`,
		string(model.CollectionOwned), groupID, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing games of group %d: %w", groupID, err)
	}
	defer rows.Close()

	return scanGames(rows)
}

// AddMember adds userID to the group; an existing member is a conflict.
func (db *DB) AddMember(ctx context.Context, groupID, userID int64) error {
	return db.withTx(ctx, func(tx dbtx) error {
		if err := lockGroup(ctx, tx, groupID); err != nil {
			return err
		}
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)
			 ON CONFLICT (group_id, user_id) DO NOTHING`,
			groupID, userID, db.now(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: adding user %d to group %d: %w", userID, groupID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: adding user %d to group %d: %w", userID, groupID, err)
		}
		if n == 0 {
			return apperror.Conflict(fmt.Sprintf("user %d is already a member of the group", userID))
		}
		return nil
	})
}

// RemoveMember drops userID from the group. Non-members are a no-op.
func (db *DB) RemoveMember(ctx context.Context, groupID, userID int64) error {
	return db.withTx(ctx, func(tx dbtx) error {
		if err := lockGroup(ctx, tx, groupID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`,
			groupID, userID,
		); err != nil {
			return fmt.Errorf("sqlite: removing user %d from group %d: %w", userID, groupID, err)
		}
		return nil
	})
}

// DeleteGroup removes the group and everything hanging off it.
func (db *DB) DeleteGroup(ctx context.Context, groupID int64) error {
	return db.withTx(ctx, func(tx dbtx) error {
		if err := lockGroup(ctx, tx, groupID); err != nil {
			return err
		}

		steps := []struct {
			what  string
			query string
		}{
			{"votes", `DELETE FROM event_game_votes
			           WHERE event_id IN (SELECT id FROM calendar_events WHERE group_id = ?)`},
			{"events", `DELETE FROM calendar_events WHERE group_id = ?`},
			{"members", `DELETE FROM group_members WHERE group_id = ?`},
			{"messages", `DELETE FROM group_messages WHERE group_id = ?`},
			{"group", `DELETE FROM play_groups WHERE id = ?`},
		}
		for _, step := range steps {
			if _, err := tx.ExecContext(ctx, step.query, groupID); err != nil {
				return fmt.Errorf("sqlite: deleting %s of group %d: %w", step.what, groupID, err)
			}
		}
		return nil
	})
}

// UserGroups lists groups the user owns or belongs to.
func (db *DB) UserGroups(ctx context.Context, userID int64) ([]model.Group, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+groupColumns+`
		 FROM play_groups g
		 WHERE g.owner_id = ?
		    OR EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = ?)
		 ORDER BY g.name COLLATE NOCASE, g.id`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing groups of user %d: %w", userID, err)
	}
	defer rows.Close()

	return scanGroups(rows)
}

// EligibleGroups lists groups owned by ownerID that userID could be added to.
func (db *DB) EligibleGroups(ctx context.Context, ownerID, userID int64) ([]model.Group, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+groupColumns+`
		 FROM play_groups g
		 WHERE g.owner_id = ?
		   AND g.owner_id != ?
		   AND NOT EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = ?)
		 ORDER BY g.name COLLATE NOCASE, g.id`,
		ownerID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing eligible groups: %w", err)
	}
	defer rows.Close()

	return scanGroups(rows)
}

// IsParticipant reports whether userID owns or is a member of the group.
func (db *DB) IsParticipant(ctx context.Context, groupID, userID int64) (bool, error) {
	ok, err := exists(ctx, db.conn,
		`SELECT 1 FROM play_groups WHERE id = ? AND owner_id = ?
		 UNION ALL
		 SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?
		 LIMIT 1`,
		groupID, userID, groupID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking participation in group %d: %w", groupID, err)
	}
	return ok, nil
}

func scanGroups(rows *sql.Rows) ([]model.Group, error) {
	groups := []model.Group{}
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating groups: %w", err)
	}
	return groups, nil
}
