// Package postgres implements store.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conference-central/backend/internal/models"
	"github.com/conference-central/backend/internal/store"
)

// SQLSTATE codes that mean the transaction may succeed if retried.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Store is the PostgreSQL entity store.
type Store struct {
	queries
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New creates a store on an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

// RunInTx runs fn in a READ COMMITTED transaction. Registration paths lock the
// conference row with SELECT ... FOR UPDATE, which serializes writers per conference.
func (s *Store) RunInTx(ctx context.Context, fn func(q store.Querier) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&queries{db: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %s", store.ErrTxConflict, pgErr.Message)
		}
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

type queries struct {
	db dbtx
}

// Profiles

func (q *queries) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	const profileQ = `SELECT user_id, display_name, main_email, tee_shirt_size, created_at, updated_at
		FROM profiles WHERE user_id = $1`
	var p models.Profile
	err := q.db.QueryRow(ctx, profileQ, userID).
		Scan(&p.UserID, &p.DisplayName, &p.MainEmail, &p.TeeShirtSize, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	const attendQ = `SELECT c.organizer_id, c.id FROM conference_attendees a
		JOIN conferences c ON c.id = a.conference_id
		WHERE a.user_id = $1 ORDER BY a.seq`
	rows, err := q.db.Query(ctx, attendQ, userID)
	if err != nil {
		return nil, err
	}
	p.ConferenceKeysToAttend = []string{}
	for rows.Next() {
		var k models.ConferenceKey
		if err := rows.Scan(&k.OrganizerID, &k.ID); err != nil {
			rows.Close()
			return nil, err
		}
		p.ConferenceKeysToAttend = append(p.ConferenceKeysToAttend, k.String())
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const wishQ = `SELECT c.organizer_id, c.id, s.id FROM session_wishlist w
		JOIN sessions s ON s.id = w.session_id
		JOIN conferences c ON c.id = s.conference_id
		WHERE w.user_id = $1 ORDER BY w.seq`
	rows, err = q.db.Query(ctx, wishQ, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	p.SessionKeysInWishlist = []string{}
	for rows.Next() {
		var k models.SessionKey
		if err := rows.Scan(&k.Conference.OrganizerID, &k.Conference.ID, &k.ID); err != nil {
			return nil, err
		}
		p.SessionKeysInWishlist = append(p.SessionKeysInWishlist, k.String())
	}
	return &p, rows.Err()
}

func (q *queries) CreateProfileIfAbsent(ctx context.Context, p *models.Profile) (bool, error) {
	const stmt = `INSERT INTO profiles (user_id, display_name, main_email, tee_shirt_size)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`
	tag, err := q.db.Exec(ctx, stmt, p.UserID, p.DisplayName, p.MainEmail, string(p.TeeShirtSize))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q *queries) SaveProfile(ctx context.Context, p *models.Profile) error {
	const stmt = `INSERT INTO profiles (user_id, display_name, main_email, tee_shirt_size)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name,
			main_email = EXCLUDED.main_email, tee_shirt_size = EXCLUDED.tee_shirt_size, updated_at = NOW()
		RETURNING created_at, updated_at`
	return q.db.QueryRow(ctx, stmt, p.UserID, p.DisplayName, p.MainEmail, string(p.TeeShirtSize)).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

// Conferences

const conferenceColumns = `SELECT c.id, c.organizer_id, p.display_name, c.name, c.description, c.city, c.topics,
	c.start_date, c.end_date, c.month, c.max_attendees, c.seats_available, c.created_at, c.updated_at
	FROM conferences c JOIN profiles p ON p.user_id = c.organizer_id`

func scanConference(row scanner) (models.Conference, error) {
	var c models.Conference
	var start, end *time.Time
	err := row.Scan(&c.Key.ID, &c.Key.OrganizerID, &c.OrganizerDisplayName, &c.Name, &c.Description, &c.City, &c.Topics,
		&start, &end, &c.Month, &c.MaxAttendees, &c.SeatsAvailable, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	c.OrganizerUserID = c.Key.OrganizerID
	c.StartDate, c.EndDate = start, end
	if c.Topics == nil {
		c.Topics = []string{}
	}
	c.SessionKeys = []string{}
	return c, nil
}

func (q *queries) listConferences(ctx context.Context, sql string, args ...any) ([]models.Conference, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Conference{}
	for rows.Next() {
		c, err := scanConference(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (q *queries) CreateConference(ctx context.Context, c *models.Conference) error {
	const stmt = `INSERT INTO conferences (organizer_id, name, description, city, topics, start_date, end_date,
			month, max_attendees, seats_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`
	if c.Topics == nil {
		c.Topics = []string{}
	}
	return q.db.QueryRow(ctx, stmt, c.Key.OrganizerID, c.Name, c.Description, c.City, c.Topics, c.StartDate, c.EndDate,
		c.Month, c.MaxAttendees, c.SeatsAvailable).
		Scan(&c.Key.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (q *queries) GetConference(ctx context.Context, key models.ConferenceKey) (*models.Conference, error) {
	c, err := scanConference(q.db.QueryRow(ctx, conferenceColumns+` WHERE c.id = $1 AND c.organizer_id = $2`, key.ID, key.OrganizerID))
	if err != nil {
		return nil, notFound(err)
	}
	rows, err := q.db.Query(ctx, `SELECT id FROM sessions WHERE conference_id = $1 ORDER BY id`, key.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		sk := models.SessionKey{Conference: key}
		if err := rows.Scan(&sk.ID); err != nil {
			return nil, err
		}
		c.SessionKeys = append(c.SessionKeys, sk.String())
	}
	return &c, rows.Err()
}

func (q *queries) GetConferenceForUpdate(ctx context.Context, key models.ConferenceKey) (*models.Conference, error) {
	c, err := scanConference(q.db.QueryRow(ctx, conferenceColumns+` WHERE c.id = $1 AND c.organizer_id = $2 FOR UPDATE OF c`, key.ID, key.OrganizerID))
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (q *queries) SetSeatsAvailable(ctx context.Context, key models.ConferenceKey, seats int) error {
	const stmt = `UPDATE conferences SET seats_available = $1, updated_at = NOW() WHERE id = $2 AND organizer_id = $3`
	tag, err := q.db.Exec(ctx, stmt, seats, key.ID, key.OrganizerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *queries) ListConferencesByOrganizer(ctx context.Context, organizerID string) ([]models.Conference, error) {
	return q.listConferences(ctx, conferenceColumns+` WHERE c.organizer_id = $1 ORDER BY c.name, c.id`, organizerID)
}

type dialect struct{}

func (dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (dialect) TopicContains(ph string) string { return ph + " = ANY(c.topics)" }

func (q *queries) QueryConferences(ctx context.Context, cq models.ConferenceQuery) ([]models.Conference, error) {
	inequality, err := cq.Validate()
	if err != nil {
		return nil, err
	}
	where, orderBy, args := store.ConferenceWhere(cq, inequality, dialect{}, 1)
	return q.listConferences(ctx, conferenceColumns+where+orderBy, args...)
}

func (q *queries) ListConferencesByKeys(ctx context.Context, keys []models.ConferenceKey) ([]models.Conference, error) {
	if len(keys) == 0 {
		return []models.Conference{}, nil
	}
	ids := make([]int64, len(keys))
	for i, k := range keys {
		ids[i] = k.ID
	}
	list, err := q.listConferences(ctx, conferenceColumns+` WHERE c.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return store.IndexConferences(keys, list), nil
}

func (q *queries) ListNearlySoldOut(ctx context.Context, above, below int) ([]string, error) {
	rows, err := q.db.Query(ctx, `SELECT name FROM conferences WHERE seats_available > $1 AND seats_available < $2 ORDER BY name`, above, below)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Attendance

func (q *queries) AddAttendance(ctx context.Context, userID string, key models.ConferenceKey) (bool, error) {
	const stmt = `INSERT INTO conference_attendees (user_id, conference_id) VALUES ($1, $2)
		ON CONFLICT (user_id, conference_id) DO NOTHING`
	tag, err := q.db.Exec(ctx, stmt, userID, key.ID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q *queries) RemoveAttendance(ctx context.Context, userID string, key models.ConferenceKey) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM conference_attendees WHERE user_id = $1 AND conference_id = $2`, userID, key.ID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Sessions

const sessionColumns = `SELECT s.id, s.conference_id, c.organizer_id, s.name, s.highlights, s.speaker,
	s.duration_minutes, s.type_of_session, s.session_date, s.start_time, s.created_at
	FROM sessions s JOIN conferences c ON c.id = s.conference_id`

func scanSession(row scanner) (models.Session, error) {
	var s models.Session
	var date *time.Time
	err := row.Scan(&s.Key.ID, &s.Key.Conference.ID, &s.Key.Conference.OrganizerID, &s.Name, &s.Highlights, &s.Speaker,
		&s.DurationMinutes, &s.TypeOfSession, &date, &s.StartTime, &s.CreatedAt)
	if err != nil {
		return s, err
	}
	s.Date = date
	s.ConferenceKey = s.Key.Conference
	return s, nil
}

func (q *queries) listSessions(ctx context.Context, sql string, args ...any) ([]models.Session, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (q *queries) CreateSession(ctx context.Context, s *models.Session) error {
	const stmt = `INSERT INTO sessions (conference_id, name, highlights, speaker, duration_minutes, type_of_session,
			session_date, start_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	s.Key.Conference = s.ConferenceKey
	return q.db.QueryRow(ctx, stmt, s.ConferenceKey.ID, s.Name, s.Highlights, s.Speaker, s.DurationMinutes,
		string(s.TypeOfSession), s.Date, s.StartTime).
		Scan(&s.Key.ID, &s.CreatedAt)
}

func (q *queries) GetSession(ctx context.Context, key models.SessionKey) (*models.Session, error) {
	s, err := scanSession(q.db.QueryRow(ctx, sessionColumns+` WHERE s.id = $1 AND s.conference_id = $2 AND c.organizer_id = $3`,
		key.ID, key.Conference.ID, key.Conference.OrganizerID))
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (q *queries) ListSessions(ctx context.Context, conf models.ConferenceKey, f models.SessionFilter) ([]models.Session, error) {
	sql := sessionColumns + ` WHERE s.conference_id = $1 AND c.organizer_id = $2`
	args := []any{conf.ID, conf.OrganizerID}
	if f.Type != "" {
		args = append(args, string(f.Type))
		sql += fmt.Sprintf(" AND s.type_of_session = $%d", len(args))
	}
	if f.Speaker != "" {
		args = append(args, f.Speaker)
		sql += fmt.Sprintf(" AND s.speaker = $%d", len(args))
	}
	return q.listSessions(ctx, sql+" ORDER BY s.session_date NULLS LAST, s.start_time, s.id", args...)
}

func (q *queries) ListSessionsByKeys(ctx context.Context, keys []models.SessionKey) ([]models.Session, error) {
	if len(keys) == 0 {
		return []models.Session{}, nil
	}
	ids := make([]int64, len(keys))
	for i, k := range keys {
		ids[i] = k.ID
	}
	list, err := q.listSessions(ctx, sessionColumns+` WHERE s.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return store.IndexSessions(keys, list), nil
}

// Wishlist

func (q *queries) AddToWishlist(ctx context.Context, userID string, key models.SessionKey) (bool, error) {
	const stmt = `INSERT INTO session_wishlist (user_id, session_id) VALUES ($1, $2)
		ON CONFLICT (user_id, session_id) DO NOTHING`
	tag, err := q.db.Exec(ctx, stmt, userID, key.ID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q *queries) RemoveFromWishlist(ctx context.Context, userID string, key models.SessionKey) (bool, error) {
	const stmt = `DELETE FROM session_wishlist w USING sessions s, conferences c
		WHERE w.user_id = $1 AND w.session_id = s.id AND s.conference_id = c.id
			AND s.id = $2 AND s.conference_id = $3 AND c.organizer_id = $4`
	tag, err := q.db.Exec(ctx, stmt, userID, key.ID, key.Conference.ID, key.Conference.OrganizerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
