// Package registration adds and removes conference attendance while keeping
// the conference's seat count consistent.
package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/conference-central/backend/internal/apperr"
	"github.com/conference-central/backend/internal/auth"
	"github.com/conference-central/backend/internal/models"
	"github.com/conference-central/backend/internal/store"
)

const (
	// MaxTxAttempts bounds how often a conflicting transaction is run.
	MaxTxAttempts = 3
	// RetryBackoff is multiplied by the attempt number between attempts.
	RetryBackoff = 20 * time.Millisecond
)

// Result is the outcome reported to the caller.
type Result struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

// Service runs registrations against the entity store.
type Service struct {
	store       store.Store
	logger      *zap.Logger
	maxAttempts int
	backoff     time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithRetry overrides the attempt bound and backoff.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		s.backoff = backoff
	}
}

// NewService creates a registration service.
func NewService(st store.Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: st, logger: logger, maxAttempts: MaxTxAttempts, backoff: RetryBackoff}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register takes one seat of the conference for the caller. The caller's
// profile is created on first use.
func (s *Service) Register(ctx context.Context, id auth.Identity, websafeKey string) (Result, error) {
	key, err := s.authorize(id, websafeKey)
	if err != nil {
		return failed(err), err
	}

	var seats int
	attempts, err := s.runTx(ctx, func(q store.Querier) error {
		conf, err := q.GetConferenceForUpdate(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return conferenceNotFound(websafeKey)
		}
		if err != nil {
			return fmt.Errorf("load conference: %w", err)
		}
		if _, err := q.CreateProfileIfAbsent(ctx, models.NewProfile(id.UserID, id.Email)); err != nil {
			return fmt.Errorf("ensure profile: %w", err)
		}
		added, err := q.AddAttendance(ctx, id.UserID, key)
		if err != nil {
			return fmt.Errorf("add attendance: %w", err)
		}
		if !added {
			return ErrAlreadyRegistered
		}
		if conf.SeatsAvailable <= 0 {
			return ErrNoSeatsAvailable
		}
		seats = conf.SeatsAvailable - 1
		if err := q.SetSeatsAvailable(ctx, key, seats); err != nil {
			return fmt.Errorf("update seats: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Info("registration rejected",
			zap.String("user_id", id.UserID),
			zap.String("conference", websafeKey),
			zap.Int("attempts", attempts),
			zap.Stringer("kind", apperr.KindOf(err)),
			zap.Error(err),
		)
		return failed(err), err
	}
	s.logger.Info("registered for conference",
		zap.String("user_id", id.UserID),
		zap.String("conference", websafeKey),
		zap.Int("seats_available", seats),
		zap.Int("attempts", attempts),
	)
	return Result{Success: true, Reason: ReasonRegistered}, nil
}

// Unregister gives the caller's seat back. Unregistering from a conference
// the caller never joined succeeds without touching the seat count.
func (s *Service) Unregister(ctx context.Context, id auth.Identity, websafeKey string) (Result, error) {
	key, err := s.authorize(id, websafeKey)
	if err != nil {
		return failed(err), err
	}

	var removed bool
	attempts, err := s.runTx(ctx, func(q store.Querier) error {
		removed = false
		conf, err := q.GetConferenceForUpdate(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return conferenceNotFound(websafeKey)
		}
		if err != nil {
			return fmt.Errorf("load conference: %w", err)
		}
		if _, err := q.GetProfile(ctx, id.UserID); errors.Is(err, store.ErrNotFound) {
			return ErrProfileNotFound
		} else if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		removed, err = q.RemoveAttendance(ctx, id.UserID, key)
		if err != nil {
			return fmt.Errorf("remove attendance: %w", err)
		}
		if !removed {
			return nil
		}
		if err := q.SetSeatsAvailable(ctx, key, conf.SeatsAvailable+1); err != nil {
			return fmt.Errorf("update seats: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Info("unregistration rejected",
			zap.String("user_id", id.UserID),
			zap.String("conference", websafeKey),
			zap.Int("attempts", attempts),
			zap.Stringer("kind", apperr.KindOf(err)),
			zap.Error(err),
		)
		return failed(err), err
	}
	reason := ReasonUnregistered
	if !removed {
		reason = ReasonNotRegistered
	}
	s.logger.Info("unregistered from conference",
		zap.String("user_id", id.UserID),
		zap.String("conference", websafeKey),
		zap.Bool("removed", removed),
		zap.Int("attempts", attempts),
	)
	return Result{Success: true, Reason: reason}, nil
}

func (s *Service) authorize(id auth.Identity, websafeKey string) (models.ConferenceKey, error) {
	if !id.Authenticated() {
		return models.ConferenceKey{}, ErrUnauthorized
	}
	key, err := models.ParseConferenceKey(websafeKey)
	if err != nil {
		return models.ConferenceKey{}, apperr.Wrap(apperr.KindBadRequest, "malformed conference key: "+websafeKey, err)
	}
	return key, nil
}

// linearBackOff waits attempt*step before the next attempt.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// runTx runs fn in a transaction, retrying store conflicts with a linear
// backoff. It returns the number of attempts made.
func (s *Service) runTx(ctx context.Context, fn func(q store.Querier) error) (int, error) {
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := s.store.RunInTx(ctx, fn)
		if err == nil || errors.Is(err, store.ErrTxConflict) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(&linearBackOff{step: s.backoff}),
		backoff.WithMaxTries(uint(s.maxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.logger.Warn("transaction conflict", zap.Int("attempt", attempts), zap.Duration("retry_in", wait), zap.Error(err))
		}),
	)
	switch {
	case err == nil:
		return attempts, nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return attempts, apperr.Wrap(apperr.KindTransactionConflict, "request timed out, try again", err)
	case errors.Is(err, store.ErrTxConflict):
		s.logger.Warn("transaction conflict retries exhausted", zap.Int("attempts", attempts), zap.Error(err))
		return attempts, apperr.Wrap(apperr.KindInternal, "conference is busy, try again later", err)
	}
	return attempts, classify(err)
}

// classify keeps business errors as they are and gives everything else an
// internal classification with a readable reason.
func classify(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Wrap(apperr.KindInternal, "registration failed", err)
}

func failed(err error) Result {
	return Result{Success: false, Reason: apperr.ReasonOf(err, "registration failed")}
}
