package domain

import (
	"strings"
	"time"
)

// User is a participant identified by their external (Telegram) id
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// UpsertOutcome describes what an idempotent write did
type UpsertOutcome string

const (
	OutcomeCreated   UpsertOutcome = "created"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// ValidateUserID rejects ids that cannot be an external identity
func ValidateUserID(id int64) error {
	if id <= 0 {
		return ErrInvalidUserID
	}
	return nil
}

// RefreshUsername applies a new display name. Empty names never overwrite.
func (u *User) RefreshUsername(username string) bool {
	username = strings.TrimSpace(username)
	if username == "" || username == u.Username {
		return false
	}
	u.Username = username
	return true
}
