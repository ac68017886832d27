package model

// Game is a catalogue entry.
//
// TotalRatingScore and RatingCount are the denormalised aggregate over
// user_game_ratings; they are only ever changed inside the same transaction
// that changes a rating row.
type Game struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Publishers       []string `json:"publishers"`
	Year             int      `json:"year"`
	Description      string   `json:"description"`
	Categories       []string `json:"categories"`
	MinPlayers       int      `json:"minPlayers"`
	MaxPlayers       int      `json:"maxPlayers"`
	PlayTime         string   `json:"playTime"`
	Age              int      `json:"age"`
	ForeignNames     []string `json:"foreignNames"`
	Image            string   `json:"image"`
	BGGID            int64    `json:"bggId"`
	TotalRatingScore int64    `json:"totalRatingScore"`
	RatingCount      int64    `json:"ratingCount"`
	AverageRating    float64  `json:"averageRating"`
}

// Aggregate returns the rating aggregate carried on the game row.
func (g *Game) Aggregate() Aggregate {
	return NewAggregate(g.ID, g.TotalRatingScore, g.RatingCount)
}

// GameDetails is a game page as seen by a signed-in user: the game plus
// which of the user's sets contain it and the user's own rating.
type GameDetails struct {
	Game
	InOwned     bool        `json:"inOwned"`
	InWishlist  bool        `json:"inWishlist"`
	InFavorites bool        `json:"inFavorites"`
	UserRating  *UserRating `json:"userRating,omitempty"`
}
