package models

import (
	"time"

	"github.com/google/uuid"
)

// Phonetic mapping categories.
const (
	CategoryNumber  = "number"
	CategoryCommand = "command"
)

// PhoneticMapping maps a commonly misheard word to its canonical form.
// Alternatives are unique per user and stored lowercased.
type PhoneticMapping struct {
	ID          uuid.UUID `json:"id"`
	UserLogin   string    `json:"user_login"`
	Canonical   string    `json:"canonical"`
	Alternative string    `json:"alternative"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
}

// ValidCategory reports whether c is a known mapping category.
func ValidCategory(c string) bool {
	return c == CategoryNumber || c == CategoryCommand
}

// UserSetting is a single key/value preference.
type UserSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
