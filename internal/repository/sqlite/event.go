package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/model"
	"github.com/sakif/tabletop/internal/repository"
)

var (
	_ repository.EventRepository   = (*DB)(nil)
	_ repository.MessageRepository = (*DB)(nil)
)

// CreateEvent schedules an event in an existing group.
func (db *DB) CreateEvent(ctx context.Context, event *model.Event) error {
	return db.withTx(ctx, func(tx dbtx) error {
		if err := lockGroup(ctx, tx, event.GroupID); err != nil {
			return err
		}
		err := tx.QueryRowContext(ctx,
			`INSERT INTO calendar_events (group_id, name, date) VALUES (?, ?, ?) RETURNING id`,
			event.GroupID, event.Name, event.Date.UTC(),
		).Scan(&event.ID)
		if err != nil {
			return fmt.Errorf("sqlite: inserting event in group %d: %w", event.GroupID, err)
		}
		return nil
	})
}

func (db *DB) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	var e model.Event
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, group_id, name, date FROM calendar_events WHERE id = ?`, id,
	).Scan(&e.ID, &e.GroupID, &e.Name, &e.Date)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("event", id)
		}
		return nil, fmt.Errorf("sqlite: getting event %d: %w", id, err)
	}
	return &e, nil
}

// GroupEvents lists a group's events by date.
func (db *DB) GroupEvents(ctx context.Context, groupID int64) ([]model.Event, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, group_id, name, date FROM calendar_events
		 WHERE group_id = ? ORDER BY date, id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing events of group %d: %w", groupID, err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.GroupID, &e.Name, &e.Date); err != nil {
			return nil, fmt.Errorf("sqlite: scanning event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating events: %w", err)
	}
	return events, nil
}

// ToggleVote flips userID's vote for gameID on eventID.
func (db *DB) ToggleVote(ctx context.Context, eventID, gameID, userID int64) (bool, error) {
	var voted bool

	err := db.withTx(ctx, func(tx dbtx) error {
		if err := lockRow(ctx, tx, "calendar_events", "name", eventID, "event"); err != nil {
			return err
		}
		ok, err := exists(ctx, tx, `SELECT 1 FROM games WHERE id = ?`, gameID)
		if err != nil {
			return fmt.Errorf("sqlite: checking game %d: %w", gameID, err)
		}
		if !ok {
			return apperror.NotFound("game", gameID)
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM event_game_votes WHERE event_id = ? AND game_id = ? AND user_id = ?`,
			eventID, gameID, userID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: withdrawing vote: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: withdrawing vote: %w", err)
		}
		if n > 0 {
			voted = false
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO event_game_votes (event_id, game_id, user_id) VALUES (?, ?, ?)`,
			eventID, gameID, userID,
		); err != nil {
			return fmt.Errorf("sqlite: casting vote: %w", err)
		}
		voted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return voted, nil
}

// VoteTally counts votes per game, most voted first.
func (db *DB) VoteTally(ctx context.Context, eventID int64) ([]model.VoteCount, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT game_id, COUNT(*) AS votes
		 FROM event_game_votes
		 WHERE event_id = ?
		 GROUP BY game_id
		 ORDER BY votes DESC, game_id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: tallying votes of event %d: %w", eventID, err)
	}
	defer rows.Close()

	tally := []model.VoteCount{}
	for rows.Next() {
		var v model.VoteCount
		if err := rows.Scan(&v.GameID, &v.Votes); err != nil {
			return nil, fmt.Errorf("sqlite: scanning vote count: %w", err)
		}
		tally = append(tally, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating vote counts: %w", err)
	}
	return tally, nil
}

// SaveMessage persists a chat line and resolves the author's username.
func (db *DB) SaveMessage(ctx context.Context, msg *model.ChatMessage) error {
	msg.CreatedAt = db.now()

	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO group_messages (group_id, user_id, message, created_at)
		 VALUES (?, ?, ?, ?)
		 RETURNING id`,
		msg.GroupID, msg.UserID, msg.Message, msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("sqlite: saving message in group %d: %w", msg.GroupID, err)
	}

	err = db.conn.QueryRowContext(ctx,
		`SELECT username FROM users WHERE id = ?`, msg.UserID,
	).Scan(&msg.Username)
	if err != nil {
		return fmt.Errorf("sqlite: resolving author of message %d: %w", msg.ID, err)
	}
	return nil
}

// GroupMessages returns the newest limit messages, oldest first.
func (db *DB) GroupMessages(ctx context.Context, groupID int64, limit int) ([]model.ChatMessage, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT m.id, m.group_id, m.user_id, u.username, m.message, m.created_at
		 FROM group_messages m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.group_id = ?
		 ORDER BY m.id DESC
		 LIMIT ?`,
		groupID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages of group %d: %w", groupID, err)
	}
	defer rows.Close()

	messages := []model.ChatMessage{}
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Username, &m.Message, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating messages: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}
