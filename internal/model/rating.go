package model

import "encoding/json"

const (
	MinRating = 1
	MaxRating = 10
)

// Aggregate is the stored (total, count) pair for one game together with the
// derived average.
//
// Average is round(total/count, 1) and 0 when there are no ratings.
// HasRatings tells the "no data" case apart from a real average.
type Aggregate struct {
	GameID     int64   `json:"gameId"`
	Total      int64   `json:"totalRatingScore"`
	Count      int64   `json:"ratingCount"`
	Average    float64 `json:"averageRating"`
	HasRatings bool    `json:"hasRatings"`
}

func NewAggregate(gameID, total, count int64) Aggregate {
	return Aggregate{
		GameID:     gameID,
		Total:      total,
		Count:      count,
		Average:    RoundedAverage(total, count),
		HasRatings: count > 0,
	}
}

// AverageTenths is total/count in tenths, rounded half up with integer
// arithmetic. Totals and counts are never negative. The SQL ranking key in
// the sqlite store computes the same expression, so ordering and the
// displayed average always agree.
func AverageTenths(total, count int64) int64 {
	if count <= 0 {
		return 0
	}
	return (total*20 + count) / (2 * count)
}

// RoundedAverage is AverageTenths as a one-decimal number.
func RoundedAverage(total, count int64) float64 {
	return float64(AverageTenths(total, count)) / 10
}

// UserRating is one user's rating of one game, or the absence of one.
// Rated=false is the "unrated" sentinel and encodes as {"rating": null}.
type UserRating struct {
	GameID int64
	Rating int
	Rated  bool
}

func (r UserRating) MarshalJSON() ([]byte, error) {
	out := struct {
		GameID int64 `json:"gameId"`
		Rating *int  `json:"rating"`
	}{GameID: r.GameID}
	if r.Rated {
		v := r.Rating
		out.Rating = &v
	}
	return json.Marshal(out)
}

func (r *UserRating) UnmarshalJSON(data []byte) error {
	var in struct {
		GameID int64 `json:"gameId"`
		Rating *int  `json:"rating"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.GameID = in.GameID
	r.Rated = in.Rating != nil
	r.Rating = 0
	if in.Rating != nil {
		r.Rating = *in.Rating
	}
	return nil
}
