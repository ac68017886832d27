package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/repository"
)

// compile-time check that *DB implements repository.CollectionRepository
var _ repository.CollectionRepository = (*DB)(nil)

// AddToCollection inserts itemID into one of userID's sets.
//
// The (user_id, collection, item_id) primary key is the set invariant: a
// second insert of the same member affects no rows and is reported as a
// conflict, leaving the set untouched.
func (db *DB) AddToCollection(ctx context.Context, userID int64, c model.Collection, itemID int64) (model.IDSet, error) {
	var set model.IDSet

	err := db.withTx(ctx, func(tx dbtx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := requireItem(ctx, tx, c, itemID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO user_collections (user_id, collection, item_id, added_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (user_id, collection, item_id) DO NOTHING`,
			userID, string(c), itemID, db.now(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: adding %d to %s of user %d: %w", itemID, c, userID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: adding %d to %s of user %d: %w", itemID, c, userID, err)
		}
		if n == 0 {
			return duplicateMember(c, itemID)
		}

		set, err = readCollection(ctx, tx, userID, c)
		return err
	})
	if err != nil {
		return nil, err
	}

	return set, nil
}

// RemoveFromCollection deletes itemID from the set. Removing a non-member
// is not an error.
func (db *DB) RemoveFromCollection(ctx context.Context, userID int64, c model.Collection, itemID int64) (model.IDSet, error) {
	var set model.IDSet

	err := db.withTx(ctx, func(tx dbtx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_collections WHERE user_id = ? AND collection = ? AND item_id = ?`,
			userID, string(c), itemID,
		); err != nil {
			return fmt.Errorf("sqlite: removing %d from %s of user %d: %w", itemID, c, userID, err)
		}

		var err error
		set, err = readCollection(ctx, tx, userID, c)
		return err
	})
	if err != nil {
		return nil, err
	}

	return set, nil
}

// IsMember reports whether itemID is in the user's set.
func (db *DB) IsMember(ctx context.Context, userID int64, c model.Collection, itemID int64) (bool, error) {
	ok, err := exists(ctx, db.conn,
		`SELECT 1 FROM user_collections WHERE user_id = ? AND collection = ? AND item_id = ?`,
		userID, string(c), itemID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking %s membership of %d: %w", c, itemID, err)
	}
	return ok, nil
}

// Collection returns the raw id set.
func (db *DB) Collection(ctx context.Context, userID int64, c model.Collection) (model.IDSet, error) {
	return readCollection(ctx, db.conn, userID, c)
}

// CollectionGames resolves a game collection in insertion order.
func (db *DB) CollectionGames(ctx context.Context, userID int64, c model.Collection) ([]model.Game, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+gameColumns+`
		 FROM user_collections uc
		 JOIN games g ON g.id = uc.item_id
		 WHERE uc.user_id = ? AND uc.collection = ?
		 ORDER BY uc.added_at, g.id`,
		userID, string(c),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s of user %d: %w", c, userID, err)
	}
	defer rows.Close()

	return scanGames(rows)
}

// Friends resolves the friends collection to user summaries.
func (db *DB) Friends(ctx context.Context, userID int64) ([]model.UserSummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT u.id, u.username, u.profile_image_url
		 FROM user_collections uc
		 JOIN users u ON u.id = uc.item_id
		 WHERE uc.user_id = ? AND uc.collection = ?
		 ORDER BY uc.added_at, u.id`,
		userID, string(model.CollectionFriends),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing friends of user %d: %w", userID, err)
	}
	defer rows.Close()

	return scanUserSummaries(rows)
}

func readCollection(ctx context.Context, q dbtx, userID int64, c model.Collection) (model.IDSet, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT item_id FROM user_collections WHERE user_id = ? AND collection = ?`,
		userID, string(c),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading %s of user %d: %w", c, userID, err)
	}
	defer rows.Close()

	set := model.NewIDSet()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s member: %w", c, err)
		}
		set.Add(id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s: %w", c, err)
	}
	return set, nil
}

// requireItem checks that the member being added exists: a game for game
// collections, a user for friends.
func requireItem(ctx context.Context, tx dbtx, c model.Collection, itemID int64) error {
	resource, query := "game", `SELECT 1 FROM games WHERE id = ?`
	if !c.HoldsGames() {
		resource, query = "user", `SELECT 1 FROM users WHERE id = ?`
	}

	ok, err := exists(ctx, tx, query, itemID)
	if err != nil {
		return fmt.Errorf("sqlite: checking %s %d: %w", resource, itemID, err)
	}
	if !ok {
		return apperror.NotFound(resource, itemID)
	}
	return nil
}

func duplicateMember(c model.Collection, itemID int64) error {
	if c == model.CollectionFriends {
		return apperror.Conflict(fmt.Sprintf("user %d already followed", itemID))
	}
	return apperror.Conflict(fmt.Sprintf("game %d already in %s", itemID, c.Label()))
}
