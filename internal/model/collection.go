package model

import (
	"encoding/json"
	"slices"
)

// Collection names one of a user's four membership sets.
type Collection string

const (
	CollectionOwned     Collection = "owned"
	CollectionWishlist  Collection = "wishlist"
	CollectionFavorites Collection = "favorites"
	CollectionFriends   Collection = "friends"
)

// Collections lists every collection in display order.
var Collections = []Collection{
	CollectionOwned,
	CollectionWishlist,
	CollectionFavorites,
	CollectionFriends,
}

// ParseCollection accepts the collection names used on the wire.
// "shelf" is accepted as an alias of "owned".
func ParseCollection(s string) (Collection, bool) {
	switch s {
	case "owned", "shelf":
		return CollectionOwned, true
	case "wishlist":
		return CollectionWishlist, true
	case "favorites":
		return CollectionFavorites, true
	case "friends":
		return CollectionFriends, true
	}
	return "", false
}

// HoldsGames reports whether members of c are game ids (otherwise user ids).
func (c Collection) HoldsGames() bool {
	return c != CollectionFriends
}

// Label is the human name used in error messages.
func (c Collection) Label() string {
	switch c {
	case CollectionOwned:
		return "shelf"
	case CollectionFriends:
		return "friends"
	}
	return string(c)
}

// IDSet is a set of entity ids. It encodes as a JSON array sorted ascending
// so responses are stable.
type IDSet map[int64]struct{}

func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id int64)      { s[id] = struct{}{} }
func (s IDSet) Remove(id int64)   { delete(s, id) }
func (s IDSet) Len() int          { return len(s) }
func (s IDSet) Has(id int64) bool { _, ok := s[id]; return ok }

// Sorted returns the members in ascending order.
func (s IDSet) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}
