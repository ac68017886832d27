package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/repository"
)

// compile-time check that *DB implements repository.RatingRepository
var _ repository.RatingRepository = (*DB)(nil)

// SubmitRating records userID's rating of gameID and keeps the game's
// (total_rating_score, rating_count) pair equal to the sum and count of its
// rating rows.
//
//	new rating:     total += rating,       count += 1
//	changed rating: total += rating - old, count unchanged
//
// The game row is locked first, so concurrent submissions for the same game
// serialise and none of their deltas is lost.
func (db *DB) SubmitRating(ctx context.Context, userID, gameID int64, rating int) (model.Aggregate, error) {
	var agg model.Aggregate

	err := db.withTx(ctx, func(tx dbtx) error {
		if err := lockGame(ctx, tx, gameID); err != nil {
			return err
		}
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}

		old, rated, err := currentRating(ctx, tx, userID, gameID)
		if err != nil {
			return err
		}

		now := db.now()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_game_ratings (user_id, game_id, rating, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (user_id, game_id) DO UPDATE SET
			     rating = excluded.rating,
			     updated_at = excluded.updated_at`,
			userID, gameID, rating, now, now,
		); err != nil {
			return fmt.Errorf("sqlite: upserting rating (user=%d, game=%d): %w", userID, gameID, err)
		}

		deltaTotal, deltaCount := int64(rating), int64(1)
		if rated {
			deltaTotal, deltaCount = int64(rating-old), 0
		}
		if err := adjustAggregate(ctx, tx, gameID, deltaTotal, deltaCount); err != nil {
			return err
		}

		agg, err = readAggregate(ctx, tx, gameID)
		return err
	})
	if err != nil {
		return model.Aggregate{}, err
	}

	return agg, nil
}

// RemoveRating deletes userID's rating of gameID, if any, and subtracts it
// from the aggregate. Removing a rating that does not exist changes nothing.
func (db *DB) RemoveRating(ctx context.Context, userID, gameID int64) (model.Aggregate, error) {
	var agg model.Aggregate

	err := db.withTx(ctx, func(tx dbtx) error {
		if err := lockGame(ctx, tx, gameID); err != nil {
			return err
		}

		old, rated, err := currentRating(ctx, tx, userID, gameID)
		if err != nil {
			return err
		}

		if rated {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM user_game_ratings WHERE user_id = ? AND game_id = ?`,
				userID, gameID,
			); err != nil {
				return fmt.Errorf("sqlite: deleting rating (user=%d, game=%d): %w", userID, gameID, err)
			}
			if err := adjustAggregate(ctx, tx, gameID, -int64(old), -1); err != nil {
				return err
			}
		}

		agg, err = readAggregate(ctx, tx, gameID)
		return err
	})
	if err != nil {
		return model.Aggregate{}, err
	}

	return agg, nil
}

// UserRating returns userID's rating of gameID, or an unrated value.
// Returns apperror.ErrNotFound if the game does not exist.
func (db *DB) UserRating(ctx context.Context, userID, gameID int64) (model.UserRating, error) {
	var rating sql.NullInt64

	err := db.conn.QueryRowContext(ctx,
		`SELECT r.rating
		 FROM games g
		 LEFT JOIN user_game_ratings r ON r.game_id = g.id AND r.user_id = ?
		 WHERE g.id = ?`,
		userID, gameID,
	).Scan(&rating)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.UserRating{}, apperror.NotFound("game", gameID)
		}
		return model.UserRating{}, fmt.Errorf("sqlite: getting rating (user=%d, game=%d): %w", userID, gameID, err)
	}

	return model.UserRating{
		GameID: gameID,
		Rating: int(rating.Int64),
		Rated:  rating.Valid,
	}, nil
}

// Aggregate returns the stored aggregate for gameID.
func (db *DB) Aggregate(ctx context.Context, gameID int64) (model.Aggregate, error) {
	return readAggregate(ctx, db.conn, gameID)
}

// RankGames orders the catalogue by rounded average, then by number of
// ratings, then by id so ties are stable.
func (db *DB) RankGames(ctx context.Context, limit int) ([]model.Game, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+gameColumns+`
		 FROM games g
		 ORDER BY `+averageExpr+` DESC, g.rating_count DESC, g.id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ranking games: %w", err)
	}
	defer rows.Close()

	return scanGames(rows)
}

func currentRating(ctx context.Context, tx dbtx, userID, gameID int64) (int, bool, error) {
	var old int
	err := tx.QueryRowContext(ctx,
		`SELECT rating FROM user_game_ratings WHERE user_id = ? AND game_id = ?`,
		userID, gameID,
	).Scan(&old)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: reading rating (user=%d, game=%d): %w", userID, gameID, err)
	}
	return old, true, nil
}

func adjustAggregate(ctx context.Context, tx dbtx, gameID, deltaTotal, deltaCount int64) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE games
		 SET total_rating_score = total_rating_score + ?,
		     rating_count = rating_count + ?
		 WHERE id = ?`,
		deltaTotal, deltaCount, gameID,
	); err != nil {
		return fmt.Errorf("sqlite: adjusting aggregate of game %d: %w", gameID, err)
	}
	return nil
}

func readAggregate(ctx context.Context, q dbtx, gameID int64) (model.Aggregate, error) {
	var total, count int64
	err := q.QueryRowContext(ctx,
		`SELECT total_rating_score, rating_count FROM games WHERE id = ?`, gameID,
	).Scan(&total, &count)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Aggregate{}, apperror.NotFound("game", gameID)
		}
		return model.Aggregate{}, fmt.Errorf("sqlite: reading aggregate of game %d: %w", gameID, err)
	}
	return model.NewAggregate(gameID, total, count), nil
}

func requireUser(ctx context.Context, tx dbtx, userID int64) error {
	ok, err := exists(ctx, tx, `SELECT 1 FROM users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("sqlite: checking user %d: %w", userID, err)
	}
	if !ok {
		return apperror.NotFound("user", userID)
	}
	return nil
}
