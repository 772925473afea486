package registration_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/conference-central/backend/internal/apperr"
	"github.com/conference-central/backend/internal/auth"
	"github.com/conference-central/backend/internal/models"
	"github.com/conference-central/backend/internal/registration"
	"github.com/conference-central/backend/internal/store"
	"github.com/conference-central/backend/internal/store/sqlite"
	"github.com/conference-central/backend/internal/testutil"
)

func user(id string) auth.Identity {
	return auth.Identity{UserID: id, Email: id + "@example.com"}
}

func setup(t *testing.T, seats int) (*sqlite.Store, *registration.Service, *models.Conference) {
	t.Helper()
	st := testutil.NewStore(t)
	conf := testutil.NewBuilder(t, st).Conference("organizer", "DevCon", testutil.WithSeats(seats, seats))
	return st, registration.NewService(st, nil), conf
}

func seatsOf(t *testing.T, st store.Querier, key models.ConferenceKey) int {
	t.Helper()
	c, err := st.GetConference(context.Background(), key)
	require.NoError(t, err)
	return c.SeatsAvailable
}

func TestRegister_Success(t *testing.T) {
	st, svc, conf := setup(t, 3)
	ctx := context.Background()

	res, err := svc.Register(ctx, user("alice"), conf.Key.String())
	require.NoError(t, err)
	require.Equal(t, registration.Result{Success: true, Reason: registration.ReasonRegistered}, res)
	require.Equal(t, 2, seatsOf(t, st, conf.Key))

	p, err := st.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", p.DisplayName)
	require.Equal(t, models.TeeShirtNotSpecified, p.TeeShirtSize)
	require.Equal(t, []string{conf.Key.String()}, p.ConferenceKeysToAttend)
}

func TestRegister_Twice(t *testing.T) {
	st, svc, conf := setup(t, 3)
	ctx := context.Background()

	_, err := svc.Register(ctx, user("alice"), conf.Key.String())
	require.NoError(t, err)

	res, err := svc.Register(ctx, user("alice"), conf.Key.String())
	require.ErrorIs(t, err, registration.ErrAlreadyRegistered)
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	require.False(t, res.Success)
	require.Equal(t, "you are already registered", res.Reason)
	require.Equal(t, 2, seatsOf(t, st, conf.Key))
}

func TestRegister_NoSeats(t *testing.T) {
	st, svc, conf := setup(t, 0)
	ctx := context.Background()

	res, err := svc.Register(ctx, user("bob"), conf.Key.String())
	require.ErrorIs(t, err, registration.ErrNoSeatsAvailable)
	require.Equal(t, "no seats available", res.Reason)
	require.Equal(t, 0, seatsOf(t, st, conf.Key))

	// The rejected transaction leaves nothing behind, not even the lazily created profile.
	_, err = st.GetProfile(ctx, "bob")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRegister_AlreadyRegisteredWinsOverNoSeats(t *testing.T) {
	st, svc, conf := setup(t, 1)
	ctx := context.Background()

	_, err := svc.Register(ctx, user("alice"), conf.Key.String())
	require.NoError(t, err)
	_, err = svc.Register(ctx, user("alice"), conf.Key.String())
	require.ErrorIs(t, err, registration.ErrAlreadyRegistered)
	require.Equal(t, 0, seatsOf(t, st, conf.Key))
}

func TestRegister_Preconditions(t *testing.T) {
	_, svc, conf := setup(t, 1)
	ctx := context.Background()

	_, err := svc.Register(ctx, auth.Identity{}, conf.Key.String())
	require.ErrorIs(t, err, registration.ErrUnauthorized)

	_, err = svc.Register(ctx, user("alice"), "not-a-key")
	require.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	missing := models.ConferenceKey{OrganizerID: "organizer", ID: conf.Key.ID + 100}.String()
	res, err := svc.Register(ctx, user("alice"), missing)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	require.Equal(t, "no conference found with key: "+missing, res.Reason)
}

func TestRegisterThenUnregister_RestoresSeats(t *testing.T) {
	st, svc, conf := setup(t, 2)
	ctx := context.Background()

	_, err := svc.Register(ctx, user("alice"), conf.Key.String())
	require.NoError(t, err)
	res, err := svc.Unregister(ctx, user("alice"), conf.Key.String())
	require.NoError(t, err)
	require.Equal(t, registration.Result{Success: true, Reason: registration.ReasonUnregistered}, res)
	require.Equal(t, 2, seatsOf(t, st, conf.Key))

	p, err := st.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, p.ConferenceKeysToAttend)
}

func TestUnregister_NeverJoinedDoesNotInflateSeats(t *testing.T) {
	st, svc, conf := setup(t, 1)
	ctx := context.Background()
	testutil.NewBuilder(t, st).Profile("carol")

	res, err := svc.Unregister(ctx, user("carol"), conf.Key.String())
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, registration.ReasonNotRegistered, res.Reason)
	require.Equal(t, 1, seatsOf(t, st, conf.Key))
}

func TestUnregister_Preconditions(t *testing.T) {
	_, svc, conf := setup(t, 1)
	ctx := context.Background()

	_, err := svc.Unregister(ctx, auth.Identity{}, conf.Key.String())
	require.ErrorIs(t, err, registration.ErrUnauthorized)

	res, err := svc.Unregister(ctx, user("nobody"), conf.Key.String())
	require.ErrorIs(t, err, registration.ErrProfileNotFound)
	require.Equal(t, "profile doesn't exist", res.Reason)

	missing := models.ConferenceKey{OrganizerID: "organizer", ID: conf.Key.ID + 1}.String()
	_, err = svc.Unregister(ctx, user("organizer"), missing)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

// The DevCon walkthrough: one seat, two users.
func TestScenario_SingleSeat(t *testing.T) {
	st, svc, conf := setup(t, 1)
	ctx := context.Background()
	key := conf.Key.String()

	_, err := svc.Register(ctx, user("a"), key)
	require.NoError(t, err)
	require.Equal(t, 0, seatsOf(t, st, conf.Key))

	_, err = svc.Register(ctx, user("b"), key)
	require.ErrorIs(t, err, registration.ErrNoSeatsAvailable)

	_, err = svc.Unregister(ctx, user("a"), key)
	require.NoError(t, err)
	require.Equal(t, 1, seatsOf(t, st, conf.Key))

	res, err := svc.Unregister(ctx, user("a"), key)
	require.NoError(t, err)
	require.Equal(t, registration.ReasonNotRegistered, res.Reason)
	require.Equal(t, 1, seatsOf(t, st, conf.Key))
}

func TestRegister_ConcurrentLastSeat(t *testing.T) {
	st, svc, conf := setup(t, 1)
	const users = 8

	var wg sync.WaitGroup
	errs := make([]error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Register(context.Background(), user(fmt.Sprintf("u%d", i)), conf.Key.String())
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, registration.ErrNoSeatsAvailable)
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 0, seatsOf(t, st, conf.Key))
}

// conflictingStore runs fn and then reports a conflict for the first n
// transactions, so the work is rolled back and retried.
type conflictingStore struct {
	store.Store
	mu    sync.Mutex
	n     int
	calls int
}

func (s *conflictingStore) RunInTx(ctx context.Context, fn func(q store.Querier) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.n
	s.mu.Unlock()
	if !fail {
		return s.Store.RunInTx(ctx, fn)
	}
	err := s.Store.RunInTx(ctx, func(q store.Querier) error {
		if err := fn(q); err != nil {
			return err
		}
		return fmt.Errorf("%w: injected", store.ErrTxConflict)
	})
	return err
}

func TestRegister_RetriesTransactionConflicts(t *testing.T) {
	st, _, conf := setup(t, 5)
	cs := &conflictingStore{Store: st, n: registration.MaxTxAttempts - 1}
	svc := registration.NewService(cs, nil, registration.WithRetry(registration.MaxTxAttempts, 0))

	_, err := svc.Register(context.Background(), user("alice"), conf.Key.String())
	require.NoError(t, err)
	require.Equal(t, registration.MaxTxAttempts, cs.calls)
	require.Equal(t, 4, seatsOf(t, st, conf.Key))
}

func TestRegister_RetriesExhausted(t *testing.T) {
	st, _, conf := setup(t, 5)
	cs := &conflictingStore{Store: st, n: registration.MaxTxAttempts}
	svc := registration.NewService(cs, nil, registration.WithRetry(registration.MaxTxAttempts, 0))

	res, err := svc.Register(context.Background(), user("alice"), conf.Key.String())
	require.Error(t, err)
	require.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	require.ErrorIs(t, err, store.ErrTxConflict)
	require.NotEmpty(t, res.Reason)
	require.Equal(t, registration.MaxTxAttempts, cs.calls)
	require.Equal(t, 5, seatsOf(t, st, conf.Key))
}

func TestRegister_BusinessErrorsAreNotRetried(t *testing.T) {
	st, _, conf := setup(t, 0)
	cs := &conflictingStore{Store: st}
	svc := registration.NewService(cs, nil)

	_, err := svc.Register(context.Background(), user("alice"), conf.Key.String())
	require.ErrorIs(t, err, registration.ErrNoSeatsAvailable)
	require.Equal(t, 1, cs.calls)
}

type failingStore struct {
	store.Store
	err error
}

func (s failingStore) RunInTx(context.Context, func(q store.Querier) error) error {
	return s.err
}

func TestRegister_UnexpectedFailureIsInternal(t *testing.T) {
	st, _, conf := setup(t, 1)
	svc := registration.NewService(failingStore{Store: st, err: errors.New("disk on fire")}, nil)

	res, err := svc.Register(context.Background(), user("alice"), conf.Key.String())
	require.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	require.False(t, res.Success)
	require.Equal(t, "registration failed", res.Reason)
}

func TestRegister_CanceledContextIsRetryable(t *testing.T) {
	st, _, conf := setup(t, 1)
	svc := registration.NewService(failingStore{Store: st, err: context.DeadlineExceeded}, nil)

	_, err := svc.Register(context.Background(), user("alice"), conf.Key.String())
	require.Equal(t, apperr.KindTransactionConflict, apperr.KindOf(err))
}

// TestRegistration_SeatAccounting drives random register/unregister sequences
// against a model and checks that seats plus attendees always equal capacity.
func TestRegistration_SeatAccounting(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		capacity := rapid.IntRange(0, 3).Draw(r, "capacity")
		st := testutil.NewStore(t)
		conf := testutil.NewBuilder(t, st).Conference("organizer", "Prop", testutil.WithSeats(capacity, capacity))
		svc := registration.NewService(st, nil)
		ctx := context.Background()

		attending := map[string]bool{}
		known := map[string]bool{}
		ops := rapid.IntRange(1, 15).Draw(r, "ops")
		for i := 0; i < ops; i++ {
			who := fmt.Sprintf("u%d", rapid.IntRange(0, 3).Draw(r, "user"))
			seats := capacity - len(attending)

			if rapid.Bool().Draw(r, "register") {
				_, err := svc.Register(ctx, user(who), conf.Key.String())
				switch {
				case attending[who]:
					if !errors.Is(err, registration.ErrAlreadyRegistered) {
						r.Fatalf("%s registered twice: %v", who, err)
					}
				case seats <= 0:
					if !errors.Is(err, registration.ErrNoSeatsAvailable) {
						r.Fatalf("%s registered with no seats: %v", who, err)
					}
				default:
					if err != nil {
						r.Fatalf("%s register: %v", who, err)
					}
					attending[who] = true
					known[who] = true
				}
			} else {
				_, err := svc.Unregister(ctx, user(who), conf.Key.String())
				if !known[who] {
					if !errors.Is(err, registration.ErrProfileNotFound) {
						r.Fatalf("%s unregistered without profile: %v", who, err)
					}
				} else if err != nil {
					r.Fatalf("%s unregister: %v", who, err)
				}
				delete(attending, who)
			}

			got, err := st.GetConference(ctx, conf.Key)
			if err != nil {
				r.Fatalf("load conference: %v", err)
			}
			if got.SeatsAvailable < 0 || got.SeatsAvailable != capacity-len(attending) {
				r.Fatalf("seats %d, want %d", got.SeatsAvailable, capacity-len(attending))
			}
		}
	})
}
