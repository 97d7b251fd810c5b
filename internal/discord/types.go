package discord

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWidgetUnavailable = errors.New("guild widget unavailable")
	ErrMissingToken      = errors.New("missing bot token")
)

// Guild is the subset of the guild object read with counts enabled.
type Guild struct {
	ID                       string  `json:"id"`
	Name                     string  `json:"name"`
	Icon                     *string `json:"icon"`
	ApproximateMemberCount   int     `json:"approximate_member_count"`
	ApproximatePresenceCount int     `json:"approximate_presence_count"`
	PremiumTier              int     `json:"premium_tier"`
}

// Widget is the subset of the public guild widget. Presences and members are
// kept as raw JSON and passed through untouched.
type Widget struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	InstantInvite *string         `json:"instant_invite"`
	PresenceCount int             `json:"presence_count"`
	Presences     json.RawMessage `json:"presences"`
	Members       json.RawMessage `json:"members"`
}

// APIError is returned when Discord answers with a non-success status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Discord API error: %d - %s", e.StatusCode, e.Body)
}

// Temporary reports whether repeating the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
