package registration

import "github.com/conference-central/backend/internal/apperr"

// Business outcomes returned by Register and Unregister. They are never retried.
var (
	ErrUnauthorized      = apperr.Unauthorized("authorization required")
	ErrAlreadyRegistered = apperr.Conflict("you are already registered")
	ErrNoSeatsAvailable  = apperr.Conflict("no seats available")
	ErrProfileNotFound   = apperr.NotFound("profile doesn't exist")
)

// Reasons attached to successful results.
const (
	ReasonRegistered    = "registered"
	ReasonUnregistered  = "unregistered"
	ReasonNotRegistered = "not registered"
)

func conferenceNotFound(websafeKey string) *apperr.Error {
	return apperr.NotFound("no conference found with key: " + websafeKey)
}
