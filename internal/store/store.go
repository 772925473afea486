// Package store defines the entity store used by the conference services.
// Implementations live in the postgres and sqlite subpackages.
package store

import (
	"context"
	"errors"

	"github.com/conference-central/backend/internal/models"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrTxConflict is returned when a transaction lost a race with a concurrent
	// writer and may succeed if retried.
	ErrTxConflict = errors.New("store: transaction conflict")
)

// Querier is the set of entity operations. It is implemented both by the store
// itself and by the handle passed to RunInTx.
type Querier interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	// CreateProfileIfAbsent inserts p unless a profile with the same user id
	// exists. It reports whether a row was inserted.
	CreateProfileIfAbsent(ctx context.Context, p *models.Profile) (bool, error)
	// SaveProfile inserts or updates the scalar fields of p.
	SaveProfile(ctx context.Context, p *models.Profile) error

	// CreateConference assigns c.Key.ID and timestamps.
	CreateConference(ctx context.Context, c *models.Conference) error
	GetConference(ctx context.Context, key models.ConferenceKey) (*models.Conference, error)
	// GetConferenceForUpdate loads the conference and holds a write lock on it
	// until the surrounding transaction ends.
	GetConferenceForUpdate(ctx context.Context, key models.ConferenceKey) (*models.Conference, error)
	SetSeatsAvailable(ctx context.Context, key models.ConferenceKey, seats int) error
	ListConferencesByOrganizer(ctx context.Context, organizerID string) ([]models.Conference, error)
	QueryConferences(ctx context.Context, q models.ConferenceQuery) ([]models.Conference, error)
	// ListConferencesByKeys returns the conferences in key order, skipping absent ones.
	ListConferencesByKeys(ctx context.Context, keys []models.ConferenceKey) ([]models.Conference, error)
	// ListNearlySoldOut returns names of conferences with above < seats < below.
	ListNearlySoldOut(ctx context.Context, above, below int) ([]string, error)

	// AddAttendance and RemoveAttendance report whether the attendance relation changed.
	AddAttendance(ctx context.Context, userID string, key models.ConferenceKey) (bool, error)
	RemoveAttendance(ctx context.Context, userID string, key models.ConferenceKey) (bool, error)

	// CreateSession assigns s.Key.ID and CreatedAt.
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, key models.SessionKey) (*models.Session, error)
	ListSessions(ctx context.Context, conf models.ConferenceKey, f models.SessionFilter) ([]models.Session, error)
	ListSessionsByKeys(ctx context.Context, keys []models.SessionKey) ([]models.Session, error)

	AddToWishlist(ctx context.Context, userID string, key models.SessionKey) (bool, error)
	RemoveFromWishlist(ctx context.Context, userID string, key models.SessionKey) (bool, error)
}

// Store is a Querier with transactions.
type Store interface {
	Querier
	// RunInTx runs fn atomically. Errors from fn roll the transaction back and
	// are returned unchanged; contention surfaces as ErrTxConflict.
	RunInTx(ctx context.Context, fn func(q Querier) error) error
	Ping(ctx context.Context) error
	Close()
}
