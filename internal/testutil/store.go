// Package testutil provides store fixtures for tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conference-central/backend/internal/models"
	"github.com/conference-central/backend/internal/store"
	"github.com/conference-central/backend/internal/store/sqlite"
)

// NewStore opens a fresh SQLite store in a temporary directory.
func NewStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "conference.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

// ConferenceOption customizes a conference built by Builder.
type ConferenceOption func(*models.Conference)

// WithCity sets the conference city.
func WithCity(city string) ConferenceOption {
	return func(c *models.Conference) { c.City = city }
}

// WithTopics sets the conference topics.
func WithTopics(topics ...string) ConferenceOption {
	return func(c *models.Conference) { c.Topics = topics }
}

// WithMonth sets the conference month.
func WithMonth(month int) ConferenceOption {
	return func(c *models.Conference) { c.Month = month }
}

// WithSeats sets both the capacity and the seats left.
func WithSeats(max, available int) ConferenceOption {
	return func(c *models.Conference) {
		c.MaxAttendees = max
		c.SeatsAvailable = available
	}
}

// Builder inserts profiles and conferences.
type Builder struct {
	t  *testing.T
	st store.Querier
}

// NewBuilder creates a builder for the given store.
func NewBuilder(t *testing.T, st store.Querier) *Builder {
	t.Helper()
	return &Builder{t: t, st: st}
}

// Profile inserts a default profile for userID unless one exists.
func (b *Builder) Profile(userID string) *Builder {
	b.t.Helper()
	_, err := b.st.CreateProfileIfAbsent(context.Background(), models.NewProfile(userID, userID+"@example.com"))
	require.NoError(b.t, err)
	return b
}

// Conference inserts a conference organized by organizerID, creating the
// organizer's profile first.
func (b *Builder) Conference(organizerID, name string, opts ...ConferenceOption) *models.Conference {
	b.t.Helper()
	b.Profile(organizerID)
	c := &models.Conference{
		Key:             models.ConferenceKey{OrganizerID: organizerID},
		Name:            name,
		OrganizerUserID: organizerID,
		Topics:          []string{},
		MaxAttendees:    10,
		SeatsAvailable:  10,
	}
	for _, opt := range opts {
		opt(c)
	}
	require.NoError(b.t, b.st.CreateConference(context.Background(), c))
	return c
}

// Session inserts a session into conf.
func (b *Builder) Session(conf models.ConferenceKey, name, speaker string, typ models.TypeOfSession) *models.Session {
	b.t.Helper()
	s := &models.Session{ConferenceKey: conf, Name: name, Speaker: speaker, TypeOfSession: typ}
	require.NoError(b.t, b.st.CreateSession(context.Background(), s))
	return s
}
