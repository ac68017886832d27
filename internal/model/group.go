package model

import "time"

const (
	MaxGroupNameLength = 30
	MaxEventNameLength = 30
	MaxMessageLength   = 2000
)

// Group is a play group. Only the owner may change membership or delete it.
type Group struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OwnerID   int64     `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// GroupDetails is a group page: the owner, the members, and every game
// owned by anyone in the group.
type GroupDetails struct {
	Group
	Owner   UserSummary   `json:"owner"`
	Members []UserSummary `json:"members"`
	Games   []Game        `json:"games"`
}

// Event is a dated game night inside a group.
type Event struct {
	ID      int64     `json:"id"`
	GroupID int64     `json:"groupId"`
	Name    string    `json:"name"`
	Date    time.Time `json:"date"`
}

// VoteCount is the tally for one game on one event.
type VoteCount struct {
	GameID int64 `json:"gameId"`
	Votes  int64 `json:"votes"`
}

// ChatMessage is one persisted group chat line. Username is resolved at
// read time and carried on the live stream.
type ChatMessage struct {
	ID        int64     `json:"id"`
	GroupID   int64     `json:"groupId"`
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"timestamp"`
}
