// Package storetest holds behavioural tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conference-central/backend/internal/auth"
	"github.com/conference-central/backend/internal/models"
	"github.com/conference-central/backend/internal/registration"
	"github.com/conference-central/backend/internal/store"
	"github.com/conference-central/backend/internal/testutil"
)

// Run runs the suite. open must return an empty, migrated store and arrange
// for it to be closed.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	cases := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"ProfileCreateIfAbsentKeepsExisting", testProfileCreateIfAbsentKeepsExisting},
		{"ProfileNotFound", testProfileNotFound},
		{"ConferenceCreateAndGet", testConferenceCreateAndGet},
		{"ConferenceKeyMustMatchOrganizer", testConferenceKeyMustMatchOrganizer},
		{"ConferenceSeatsCannotGoNegative", testConferenceSeatsCannotGoNegative},
		{"AttendanceChangedFlagsAndOrder", testAttendanceChangedFlagsAndOrder},
		{"QueryConferences", testQueryConferences},
		{"ListByOrganizerAndNearlySoldOut", testListByOrganizerAndNearlySoldOut},
		{"SessionsAndWishlist", testSessionsAndWishlist},
		{"WishlistRemoveNeedsFullKey", testWishlistRemoveNeedsFullKey},
		{"RunInTxRollsBackOnError", testRunInTxRollsBackOnError},
		{"ConcurrentLastSeat", testConcurrentLastSeat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

func testProfileCreateIfAbsentKeepsExisting(t *testing.T, st store.Store) {
	ctx := context.Background()

	created, err := st.CreateProfileIfAbsent(ctx, models.NewProfile("u1", "ann@example.com"))
	require.NoError(t, err)
	require.True(t, created)

	p, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	p.DisplayName = "Ann"
	p.TeeShirtSize = models.TeeShirtM
	require.NoError(t, st.SaveProfile(ctx, p))

	created, err = st.CreateProfileIfAbsent(ctx, models.NewProfile("u1", "ann@example.com"))
	require.NoError(t, err)
	require.False(t, created)

	p, err = st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Ann", p.DisplayName)
	require.Equal(t, models.TeeShirtM, p.TeeShirtSize)
	require.Empty(t, p.ConferenceKeysToAttend)
	require.Empty(t, p.SessionKeysInWishlist)
}

func testProfileNotFound(t *testing.T, st store.Store) {

	_, err := st.GetProfile(context.Background(), "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testConferenceCreateAndGet(t *testing.T, st store.Store) {
	ctx := context.Background()
	start := time.Date(2026, time.May, 4, 0, 0, 0, 0, time.UTC)

	conf := testutil.NewBuilder(t, st).Conference("org", "GopherCon",
		testutil.WithCity("Berlin"), testutil.WithTopics("Go", "Cloud"), testutil.WithSeats(100, 100))
	require.Positive(t, conf.Key.ID)

	require.NoError(t, st.SetSeatsAvailable(ctx, conf.Key, 99))
	_, err := st.CreateProfileIfAbsent(ctx, models.NewProfile("org2", "org2@example.com"))
	require.NoError(t, err)
	dated := &models.Conference{
		Key:            models.ConferenceKey{OrganizerID: "org2"},
		Name:           "Dated",
		StartDate:      &start,
		Month:          models.MonthOf(&start),
		MaxAttendees:   1,
		SeatsAvailable: 1,
	}
	require.NoError(t, st.CreateConference(ctx, dated))

	got, err := st.GetConference(ctx, conf.Key)
	require.NoError(t, err)
	require.Equal(t, "GopherCon", got.Name)
	require.Equal(t, "Berlin", got.City)
	require.Equal(t, []string{"Go", "Cloud"}, got.Topics)
	require.Equal(t, 99, got.SeatsAvailable)
	require.Equal(t, "org", got.OrganizerDisplayName)
	require.Equal(t, "org", got.OrganizerUserID)
	require.Empty(t, got.SessionKeys)

	got, err = st.GetConference(ctx, dated.Key)
	require.NoError(t, err)
	require.NotNil(t, got.StartDate)
	require.True(t, start.Equal(*got.StartDate))
	require.Equal(t, 5, got.Month)
}

func testConferenceKeyMustMatchOrganizer(t *testing.T, st store.Store) {
	conf := testutil.NewBuilder(t, st).Conference("org", "DevCon")

	_, err := st.GetConference(context.Background(), models.ConferenceKey{OrganizerID: "someone-else", ID: conf.Key.ID})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, st.SetSeatsAvailable(context.Background(), models.ConferenceKey{OrganizerID: "x", ID: 999}, 1), store.ErrNotFound)
}

func testConferenceSeatsCannotGoNegative(t *testing.T, st store.Store) {
	conf := testutil.NewBuilder(t, st).Conference("org", "DevCon", testutil.WithSeats(1, 1))

	require.Error(t, st.SetSeatsAvailable(context.Background(), conf.Key, -1))
	require.Error(t, st.SetSeatsAvailable(context.Background(), conf.Key, 2))
}

func testAttendanceChangedFlagsAndOrder(t *testing.T, st store.Store) {
	ctx := context.Background()
	b := testutil.NewBuilder(t, st)
	first := b.Conference("org", "First")
	second := b.Conference("org", "Second")
	b.Profile("u1")

	added, err := st.AddAttendance(ctx, "u1", second.Key)
	require.NoError(t, err)
	require.True(t, added)
	added, err = st.AddAttendance(ctx, "u1", first.Key)
	require.NoError(t, err)
	require.True(t, added)
	added, err = st.AddAttendance(ctx, "u1", first.Key)
	require.NoError(t, err)
	require.False(t, added)

	p, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{second.Key.String(), first.Key.String()}, p.ConferenceKeysToAttend)

	list, err := st.ListConferencesByKeys(ctx, []models.ConferenceKey{second.Key, first.Key})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Second", list[0].Name)

	removed, err := st.RemoveAttendance(ctx, "u1", second.Key)
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = st.RemoveAttendance(ctx, "u1", second.Key)
	require.NoError(t, err)
	require.False(t, removed)
}

func testQueryConferences(t *testing.T, st store.Store) {
	ctx := context.Background()
	b := testutil.NewBuilder(t, st)
	b.Conference("a", "Zeta", testutil.WithCity("London"), testutil.WithTopics("Go"), testutil.WithMonth(6), testutil.WithSeats(50, 50))
	b.Conference("a", "Alpha", testutil.WithCity("London"), testutil.WithTopics("Rust"), testutil.WithMonth(3), testutil.WithSeats(200, 200))
	b.Conference("b", "Beta", testutil.WithCity("Paris"), testutil.WithTopics("Go", "Web"), testutil.WithMonth(9), testutil.WithSeats(20, 20))

	names := func(q models.ConferenceQuery) []string {
		t.Helper()
		list, err := st.QueryConferences(ctx, q)
		require.NoError(t, err)
		out := make([]string, 0, len(list))
		for _, c := range list {
			out = append(out, c.Name)
		}
		return out
	}

	require.Equal(t, []string{"Alpha", "Beta", "Zeta"}, names(models.ConferenceQuery{}))
	require.Equal(t, []string{"Alpha", "Zeta"}, names(models.ConferenceQuery{Filters: []models.Filter{
		{Field: models.FieldCity, Operator: models.OpEQ, Value: "London"},
	}}))
	require.Equal(t, []string{"Beta", "Zeta"}, names(models.ConferenceQuery{Filters: []models.Filter{
		{Field: models.FieldTopic, Operator: models.OpEQ, Value: "Go"},
	}}))
	require.Equal(t, []string{"Alpha"}, names(models.ConferenceQuery{Filters: []models.Filter{
		{Field: models.FieldTopic, Operator: models.OpNE, Value: "Go"},
	}}))
	// Ordered by the range field first.
	require.Equal(t, []string{"Zeta", "Beta"}, names(models.ConferenceQuery{Filters: []models.Filter{
		{Field: models.FieldMonth, Operator: models.OpGTEQ, Value: "6"},
	}}))
	require.Equal(t, []string{"Beta", "Zeta"}, names(models.ConferenceQuery{Filters: []models.Filter{
		{Field: models.FieldMaxAttendees, Operator: models.OpLT, Value: "100"},
	}}))

	_, err := st.QueryConferences(ctx, models.ConferenceQuery{Filters: []models.Filter{
		{Field: models.FieldMonth, Operator: models.OpGT, Value: "1"},
		{Field: models.FieldMaxAttendees, Operator: models.OpGT, Value: "1"},
	}})
	require.Error(t, err)
}

func testListByOrganizerAndNearlySoldOut(t *testing.T, st store.Store) {
	ctx := context.Background()
	b := testutil.NewBuilder(t, st)
	b.Conference("a", "Full", testutil.WithSeats(10, 0))
	b.Conference("a", "Almost", testutil.WithSeats(10, 2))
	b.Conference("b", "Edge", testutil.WithSeats(10, 4))
	b.Conference("b", "Roomy", testutil.WithSeats(10, 5))

	created, err := st.ListConferencesByOrganizer(ctx, "a")
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.Equal(t, "Almost", created[0].Name)

	names, err := st.ListNearlySoldOut(ctx, 0, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"Almost", "Edge"}, names)
}

func testSessionsAndWishlist(t *testing.T, st store.Store) {
	ctx := context.Background()
	b := testutil.NewBuilder(t, st)
	conf := b.Conference("org", "DevCon")
	keynote := b.Session(conf.Key, "Opening", "Ada", models.SessionKeynote)
	workshop := b.Session(conf.Key, "Hands on", "Grace", models.SessionWorkshop)
	b.Session(conf.Key, "Deep dive", "Ada", models.SessionWorkshop)

	got, err := st.GetSession(ctx, keynote.Key)
	require.NoError(t, err)
	require.Equal(t, "Opening", got.Name)
	require.Equal(t, conf.Key, got.ConferenceKey)

	loaded, err := st.GetConference(ctx, conf.Key)
	require.NoError(t, err)
	require.Len(t, loaded.SessionKeys, 3)
	require.Equal(t, keynote.Key.String(), loaded.SessionKeys[0])

	all, err := st.ListSessions(ctx, conf.Key, models.SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	byType, err := st.ListSessions(ctx, conf.Key, models.SessionFilter{Type: models.SessionWorkshop})
	require.NoError(t, err)
	require.Len(t, byType, 2)
	bySpeaker, err := st.ListSessions(ctx, conf.Key, models.SessionFilter{Speaker: "Ada", Type: models.SessionWorkshop})
	require.NoError(t, err)
	require.Len(t, bySpeaker, 1)
	require.Equal(t, "Deep dive", bySpeaker[0].Name)

	b.Profile("u1")
	added, err := st.AddToWishlist(ctx, "u1", workshop.Key)
	require.NoError(t, err)
	require.True(t, added)
	added, err = st.AddToWishlist(ctx, "u1", workshop.Key)
	require.NoError(t, err)
	require.False(t, added)

	p, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{workshop.Key.String()}, p.SessionKeysInWishlist)

	sessions, err := st.ListSessionsByKeys(ctx, []models.SessionKey{workshop.Key})
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	removed, err := st.RemoveFromWishlist(ctx, "u1", workshop.Key)
	require.NoError(t, err)
	require.True(t, removed)
}

func testRunInTxRollsBackOnError(t *testing.T, st store.Store) {
	ctx := context.Background()
	conf := testutil.NewBuilder(t, st).Conference("org", "DevCon", testutil.WithSeats(5, 5))
	boom := errors.New("boom")

	err := st.RunInTx(ctx, func(q store.Querier) error {
		if err := q.SetSeatsAvailable(ctx, conf.Key, 1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := st.GetConference(ctx, conf.Key)
	require.NoError(t, err)
	require.Equal(t, 5, got.SeatsAvailable)
}

func testWishlistRemoveNeedsFullKey(t *testing.T, st store.Store) {
	ctx := context.Background()
	b := testutil.NewBuilder(t, st)
	conf := b.Conference("org", "DevCon")
	other := b.Conference("org", "OtherCon")
	talk := b.Session(conf.Key, "Talk", "Ada", models.SessionLecture)
	b.Profile("u1")

	added, err := st.AddToWishlist(ctx, "u1", talk.Key)
	require.NoError(t, err)
	require.True(t, added)

	wrongOrganizer := talk.Key
	wrongOrganizer.Conference.OrganizerID = "someone-else"
	wrongConference := talk.Key
	wrongConference.Conference = other.Key
	for _, key := range []models.SessionKey{wrongOrganizer, wrongConference} {
		removed, err := st.RemoveFromWishlist(ctx, "u1", key)
		require.NoError(t, err)
		require.False(t, removed, key.String())
	}

	p, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{talk.Key.String()}, p.SessionKeysInWishlist)

	removed, err := st.RemoveFromWishlist(ctx, "u1", talk.Key)
	require.NoError(t, err)
	require.True(t, removed)
}

func testConcurrentLastSeat(t *testing.T, st store.Store) {
	conf := testutil.NewBuilder(t, st).Conference("org", "DevCon", testutil.WithSeats(1, 1))
	svc := registration.NewService(st, nil)
	const users = 8

	var wg sync.WaitGroup
	errs := make([]error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i)
			_, errs[i] = svc.Register(context.Background(), auth.Identity{UserID: id, Email: id + "@example.com"}, conf.Key.String())
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

	got, err := st.GetConference(context.Background(), conf.Key)
	require.NoError(t, err)
	require.Equal(t, 0, got.SeatsAvailable)
}
