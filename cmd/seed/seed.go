package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/model"
)

// creator is the part of service.CatalogService the seeder needs.
type creator interface {
	Create(ctx context.Context, game *model.Game) error
}

// report counts what a seeding run did.
type report struct {
	Created int
	Skipped int
}

// seed reads a JSON array of games from r and adds each one through c.
//
// Games that fail validation or already exist (same bggId) are logged and
// skipped, so a catalogue file can be loaded again after it grows. Any other
// error stops the run.
func seed(ctx context.Context, r io.Reader, c creator, logger *slog.Logger) (report, error) {
	var rep report

	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return rep, fmt.Errorf("reading catalogue: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return rep, errors.New("catalogue must be a JSON array of games")
	}

	for i := 0; dec.More(); i++ {
		var game model.Game
		if err := dec.Decode(&game); err != nil {
			return rep, fmt.Errorf("decoding game #%d: %w", i, err)
		}

		err := c.Create(ctx, &game)
		switch {
		case err == nil:
			rep.Created++
		case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrConflict):
			rep.Skipped++
			logger.Warn("skipping game",
				slog.Int("index", i),
				slog.String("name", game.Name),
				slog.String("reason", err.Error()),
			)
		default:
			return rep, fmt.Errorf("creating game #%d %q: %w", i, game.Name, err)
		}
	}

	if _, err := dec.Token(); err != nil {
		return rep, fmt.Errorf("reading catalogue: %w", err)
	}
	return rep, nil
}
