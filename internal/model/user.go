// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Identity is delegated to Google; GoogleID is the stable subject returned by
// the provider and is UNIQUE in the store. ID is our own integer key and is
// what every other table references.
type User struct {
	ID              int64     `json:"id"`
	GoogleID        string    `json:"-"`
	Email           string    `json:"email"`
	Username        string    `json:"username"`
	ProfileImageURL string    `json:"profileImageUrl"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Summary returns the public projection of the user.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, ProfileImageURL: u.ProfileImageURL}
}

// UserSummary is the projection used when one user is listed on another
// user's page: friend lists, group members, search results.
type UserSummary struct {
	ID              int64  `json:"id"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profileImageUrl"`
}

// Profile is a user's public page: identity plus the id sets of their
// game collections.
type Profile struct {
	UserSummary
	OwnedGames IDSet `json:"ownedGames"`
	Wishlist   IDSet `json:"wishlist"`
	Favorites  IDSet `json:"favorites"`
}

// Shelf is a profile with its game collections resolved to game records.
type Shelf struct {
	UserSummary
	OwnedGames []Game `json:"ownedGames"`
	Wishlist   []Game `json:"wishlist"`
	Favorites  []Game `json:"favorites"`
}
