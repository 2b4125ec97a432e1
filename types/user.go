package types

import "time"

type UserStatus int

const (
	StatusOffline UserStatus = iota
	StatusInactive
	StatusActive
)

func (s UserStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	}
	return "offline"
}

// User is a chat identity. It may be unclaimed (no password) or claimed
// (protected by a password digest). Room membership and ownership are not
// stored here, they live in the repository index sets.
type User struct {
	Id             string     `json:"id" gorm:"primaryKey"`
	Name           string     `json:"name"` // unique, case-insensitive
	HashedPassword string     `json:"-"`
	ClientId       string     `json:"-" gorm:"-"` // current connection binding, never persisted
	GravatarHash   string     `json:"gravatar_hash"`
	Status         UserStatus `json:"status"`
	LastActivity   time.Time  `json:"last_activity"`
	LastNudged     *time.Time `json:"last_nudged,omitempty"`
}

// Online is true unless the user has gone fully offline. Inactive users
// still show up in room listings.
func (u *User) Online() bool {
	return u.Status != StatusOffline
}
