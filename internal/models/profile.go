package models

import (
	"strings"
	"time"
)

// TeeShirtSize is the shirt size a profile asks for at the venue.
type TeeShirtSize string

const (
	TeeShirtNotSpecified TeeShirtSize = "NOT_SPECIFIED"
	TeeShirtXS           TeeShirtSize = "XS"
	TeeShirtS            TeeShirtSize = "S"
	TeeShirtM            TeeShirtSize = "M"
	TeeShirtL            TeeShirtSize = "L"
	TeeShirtXL           TeeShirtSize = "XL"
	TeeShirtXXL          TeeShirtSize = "XXL"
	TeeShirtXXXL         TeeShirtSize = "XXXL"
)

// Valid reports whether s is a known size.
func (s TeeShirtSize) Valid() bool {
	switch s {
	case TeeShirtNotSpecified, TeeShirtXS, TeeShirtS, TeeShirtM, TeeShirtL, TeeShirtXL, TeeShirtXXL, TeeShirtXXXL:
		return true
	}
	return false
}

// Profile is the per-user record. Attendance and wishlist lists are derived
// from join rows in insertion order.
type Profile struct {
	UserID                 string       `json:"user_id"`
	DisplayName            string       `json:"display_name"`
	MainEmail              string       `json:"main_email"`
	TeeShirtSize           TeeShirtSize `json:"tee_shirt_size"`
	ConferenceKeysToAttend []string     `json:"conference_keys_to_attend"`
	SessionKeysInWishlist  []string     `json:"session_keys_in_wishlist"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

// NewProfile builds a profile with default values for a user seen for the first time.
func NewProfile(userID, email string) *Profile {
	return &Profile{
		UserID:                 userID,
		DisplayName:            DisplayNameFromEmail(email),
		MainEmail:              email,
		TeeShirtSize:           TeeShirtNotSpecified,
		ConferenceKeysToAttend: []string{},
		SessionKeysInWishlist:  []string{},
	}
}

// DisplayNameFromEmail returns the local part of an e-mail address.
func DisplayNameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// IsAttending reports whether the profile is registered for the conference.
func (p *Profile) IsAttending(key ConferenceKey) bool {
	s := key.String()
	for _, k := range p.ConferenceKeysToAttend {
		if k == s {
			return true
		}
	}
	return false
}
