package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/repository"
)

// compile-time check that *DB implements repository.GameRepository
var _ repository.GameRepository = (*DB)(nil)

// gameColumns is the select list understood by scanGame. Queries that join
// other tables alias games as g.
const gameColumns = `g.id, g.name, g.publishers, g.year, g.description, g.categories,
	g.min_players, g.max_players, g.play_time, g.age, g.foreign_names, g.image,
	COALESCE(g.bgg_id, 0), g.total_rating_score, g.rating_count`

// averageExpr is the rounded average in tenths used for ordering. It is the
// integer formula of model.AverageTenths; SQLite divides integers exactly.
const averageExpr = `CASE WHEN g.rating_count = 0 THEN 0
	ELSE (g.total_rating_score * 20 + g.rating_count) / (2 * g.rating_count) END`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*model.Game, error) {
	var (
		g                                   model.Game
		publishers, categories, foreignName string
	)
	err := row.Scan(
		&g.ID, &g.Name, &publishers, &g.Year, &g.Description, &categories,
		&g.MinPlayers, &g.MaxPlayers, &g.PlayTime, &g.Age, &foreignName, &g.Image,
		&g.BGGID, &g.TotalRatingScore, &g.RatingCount,
	)
	if err != nil {
		return nil, err
	}

	if g.Publishers, err = decodeStrings(publishers); err != nil {
		return nil, fmt.Errorf("decoding publishers of game %d: %w", g.ID, err)
	}
	if g.Categories, err = decodeStrings(categories); err != nil {
		return nil, fmt.Errorf("decoding categories of game %d: %w", g.ID, err)
	}
	if g.ForeignNames, err = decodeStrings(foreignName); err != nil {
		return nil, fmt.Errorf("decoding foreign names of game %d: %w", g.ID, err)
	}
	g.AverageRating = model.RoundedAverage(g.TotalRatingScore, g.RatingCount)

	return &g, nil
}

func scanGames(rows *sql.Rows) ([]model.Game, error) {
	games := []model.Game{}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning game: %w", err)
		}
		games = append(games, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating games: %w", err)
	}
	return games, nil
}

// CreateGame inserts a catalogue entry with its category index rows.
// The aggregate columns are written as given; the catalogue service always
// starts them empty.
func (db *DB) CreateGame(ctx context.Context, game *model.Game) error {
	publishers, err := encodeStrings(game.Publishers)
	if err != nil {
		return fmt.Errorf("sqlite: encoding publishers: %w", err)
	}
	categories, err := encodeStrings(game.Categories)
	if err != nil {
		return fmt.Errorf("sqlite: encoding categories: %w", err)
	}
	foreignNames, err := encodeStrings(game.ForeignNames)
	if err != nil {
		return fmt.Errorf("sqlite: encoding foreign names: %w", err)
	}

	var bggID any
	if game.BGGID != 0 {
		bggID = game.BGGID
	}

	return db.withTx(ctx, func(tx dbtx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO games (name, publishers, year, description, categories,
			     min_players, max_players, play_time, age, foreign_names, image, bgg_id,
			     total_rating_score, rating_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 RETURNING id`,
			game.Name, publishers, game.Year, game.Description, categories,
			game.MinPlayers, game.MaxPlayers, game.PlayTime, game.Age, foreignNames, game.Image, bggID,
			game.TotalRatingScore, game.RatingCount,
		).Scan(&game.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict(fmt.Sprintf("game with bgg id %d already exists", game.BGGID))
			}
			return fmt.Errorf("sqlite: inserting game %q: %w", game.Name, err)
		}

		for _, c := range game.Categories {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO game_categories (game_id, category) VALUES (?, ?)`,
				game.ID, c,
			); err != nil {
				return fmt.Errorf("sqlite: indexing category %q: %w", c, err)
			}
		}

		game.AverageRating = model.RoundedAverage(game.TotalRatingScore, game.RatingCount)
		return nil
	})
}

// GetGame retrieves a game by ID.
func (db *DB) GetGame(ctx context.Context, id int64) (*model.Game, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games g WHERE g.id = ?`, id)

	g, err := scanGame(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("game", id)
		}
		return nil, fmt.Errorf("sqlite: getting game %d: %w", id, err)
	}
	return g, nil
}

// SearchGames matches a case-insensitive substring of the name.
func (db *DB) SearchGames(ctx context.Context, query string, limit int) ([]model.Game, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+gameColumns+`
		 FROM games g
		 WHERE LOWER(g.name) LIKE ? ESCAPE '\'
		 ORDER BY g.name COLLATE NOCASE, g.id
		 LIMIT ?`,
		likePattern(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching games: %w", err)
	}
	defer rows.Close()

	return scanGames(rows)
}

// Categories returns every distinct category, sorted.
func (db *DB) Categories(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT category FROM game_categories ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("sqlite: scanning category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating categories: %w", err)
	}
	return categories, nil
}

// GamesByCategory lists games tagged with category, best rated first.
func (db *DB) GamesByCategory(ctx context.Context, category string, opts repository.ListOptions) ([]model.Game, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+gameColumns+`
		 FROM games g
		 JOIN game_categories gc ON gc.game_id = g.id
		 WHERE gc.category = ?
		 ORDER BY `+averageExpr+` DESC, g.rating_count DESC, g.id
		 LIMIT ? OFFSET ?`,
		category, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing games in %q: %w", category, err)
	}
	defer rows.Close()

	return scanGames(rows)
}
