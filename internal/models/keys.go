package models

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// ErrMalformedKey is returned when a websafe key cannot be decoded.
var ErrMalformedKey = errors.New("malformed key")

const (
	kindProfile    = "Profile"
	kindConference = "Conference"
	kindSession    = "Session"
)

// ConferenceKey identifies a conference. A conference is owned by the profile
// of its organizer, so the key embeds the organizer's user id.
type ConferenceKey struct {
	OrganizerID string
	ID          int64
}

// SessionKey identifies a session under its parent conference.
type SessionKey struct {
	Conference ConferenceKey
	ID         int64
}

func (k ConferenceKey) path() string {
	return kindProfile + ":" + url.PathEscape(k.OrganizerID) + "/" + kindConference + ":" + strconv.FormatInt(k.ID, 10)
}

// String returns the websafe form of the key.
func (k ConferenceKey) String() string {
	return base64.RawURLEncoding.EncodeToString([]byte(k.path()))
}

// IsZero reports whether the key was never assigned.
func (k ConferenceKey) IsZero() bool {
	return k.OrganizerID == "" && k.ID == 0
}

// MarshalText encodes the key in websafe form.
func (k ConferenceKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a websafe conference key.
func (k *ConferenceKey) UnmarshalText(b []byte) error {
	parsed, err := ParseConferenceKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// String returns the websafe form of the key.
func (k SessionKey) String() string {
	p := k.Conference.path() + "/" + kindSession + ":" + strconv.FormatInt(k.ID, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(p))
}

// MarshalText encodes the key in websafe form.
func (k SessionKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a websafe session key.
func (k *SessionKey) UnmarshalText(b []byte) error {
	parsed, err := ParseSessionKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseConferenceKey decodes a websafe conference key.
func ParseConferenceKey(s string) (ConferenceKey, error) {
	parts, err := decodePath(s, 2)
	if err != nil {
		return ConferenceKey{}, err
	}
	return conferenceKeyFromParts(parts)
}

// ParseSessionKey decodes a websafe session key.
func ParseSessionKey(s string) (SessionKey, error) {
	parts, err := decodePath(s, 3)
	if err != nil {
		return SessionKey{}, err
	}
	conf, err := conferenceKeyFromParts(parts[:2])
	if err != nil {
		return SessionKey{}, err
	}
	id, err := numericPart(parts[2], kindSession)
	if err != nil {
		return SessionKey{}, err
	}
	return SessionKey{Conference: conf, ID: id}, nil
}

func decodePath(s string, want int) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrMalformedKey
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrMalformedKey
	}
	parts := strings.Split(string(raw), "/")
	if len(parts) != want {
		return nil, ErrMalformedKey
	}
	return parts, nil
}

func conferenceKeyFromParts(parts []string) (ConferenceKey, error) {
	kind, escaped, ok := strings.Cut(parts[0], ":")
	if !ok || kind != kindProfile {
		return ConferenceKey{}, ErrMalformedKey
	}
	organizer, err := url.PathUnescape(escaped)
	if err != nil || organizer == "" {
		return ConferenceKey{}, ErrMalformedKey
	}
	id, err := numericPart(parts[1], kindConference)
	if err != nil {
		return ConferenceKey{}, err
	}
	return ConferenceKey{OrganizerID: organizer, ID: id}, nil
}

func numericPart(part, wantKind string) (int64, error) {
	kind, value, ok := strings.Cut(part, ":")
	if !ok || kind != wantKind {
		return 0, ErrMalformedKey
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrMalformedKey
	}
	return id, nil
}
