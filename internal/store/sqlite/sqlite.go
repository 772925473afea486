// Package sqlite implements store.Store on an embedded SQLite database.
// Transactions start with BEGIN IMMEDIATE so writers are serialized.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/conference-central/backend/internal/models"
	"github.com/conference-central/backend/internal/store"
)

//go:embed schema.sql
var schema string

const dateLayout = "2006-01-02"

// BusyTimeout is how long a writer waits for the database lock.
const BusyTimeout = 5 * time.Second

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Store is the SQLite entity store.
type Store struct {
	queries
	conn *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(wal)",
		path, BusyTimeout.Milliseconds())
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{queries: queries{db: conn}, conn: conn}, nil
}

// Connection returns the underlying *sql.DB.
func (s *Store) Connection() *sql.DB {
	return s.conn
}

// RunInTx runs fn in an immediate transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(q store.Querier) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&queries{db: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() {
	_ = s.conn.Close()
}

func classify(err error) error {
	if errors.Is(err, sqlite3.BUSY) || errors.Is(err, sqlite3.LOCKED) {
		return fmt.Errorf("%w: %v", store.ErrTxConflict, err)
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func now() int64 { return time.Now().Unix() }

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func parseDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", s.String, err)
	}
	return &t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func changed(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type queries struct {
	db dbtx
}

// Profiles

func (q *queries) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	const profileQ = `SELECT user_id, display_name, main_email, tee_shirt_size, created_at, updated_at
		FROM profiles WHERE user_id = ?`
	var p models.Profile
	var created, updated int64
	err := q.db.QueryRowContext(ctx, profileQ, userID).
		Scan(&p.UserID, &p.DisplayName, &p.MainEmail, &p.TeeShirtSize, &created, &updated)
	if err != nil {
		return nil, notFound(err)
	}
	p.CreatedAt, p.UpdatedAt = time.Unix(created, 0), time.Unix(updated, 0)

	const attendQ = `SELECT c.organizer_id, c.id FROM conference_attendees a
		JOIN conferences c ON c.id = a.conference_id
		WHERE a.user_id = ? ORDER BY a.seq`
	rows, err := q.db.QueryContext(ctx, attendQ, userID)
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
		WHERE w.user_id = ? ORDER BY w.seq`
	rows, err = q.db.QueryContext(ctx, wishQ, userID)
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
	const stmt = `INSERT INTO profiles (user_id, display_name, main_email, tee_shirt_size, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`
	ts := now()
	return changed(q.db.ExecContext(ctx, stmt, p.UserID, p.DisplayName, p.MainEmail, string(p.TeeShirtSize), ts, ts))
}

func (q *queries) SaveProfile(ctx context.Context, p *models.Profile) error {
	const stmt = `INSERT INTO profiles (user_id, display_name, main_email, tee_shirt_size, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET display_name = excluded.display_name,
			main_email = excluded.main_email, tee_shirt_size = excluded.tee_shirt_size, updated_at = excluded.updated_at
		RETURNING created_at, updated_at`
	ts := now()
	var created, updated int64
	err := q.db.QueryRowContext(ctx, stmt, p.UserID, p.DisplayName, p.MainEmail, string(p.TeeShirtSize), ts, ts).
		Scan(&created, &updated)
	if err != nil {
		return err
	}
	p.CreatedAt, p.UpdatedAt = time.Unix(created, 0), time.Unix(updated, 0)
	return nil
}

// Conferences

const conferenceColumns = `SELECT c.id, c.organizer_id, p.display_name, c.name, c.description, c.city, c.topics,
	c.start_date, c.end_date, c.month, c.max_attendees, c.seats_available, c.created_at, c.updated_at
	FROM conferences c JOIN profiles p ON p.user_id = c.organizer_id`

func scanConference(row scanner) (models.Conference, error) {
	var c models.Conference
	var topics string
	var start, end sql.NullString
	var created, updated int64
	err := row.Scan(&c.Key.ID, &c.Key.OrganizerID, &c.OrganizerDisplayName, &c.Name, &c.Description, &c.City, &topics,
		&start, &end, &c.Month, &c.MaxAttendees, &c.SeatsAvailable, &created, &updated)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(topics), &c.Topics); err != nil {
		return c, fmt.Errorf("decode topics: %w", err)
	}
	if c.Topics == nil {
		c.Topics = []string{}
	}
	if c.StartDate, err = parseDate(start); err != nil {
		return c, err
	}
	if c.EndDate, err = parseDate(end); err != nil {
		return c, err
	}
	c.OrganizerUserID = c.Key.OrganizerID
	c.CreatedAt, c.UpdatedAt = time.Unix(created, 0), time.Unix(updated, 0)
	c.SessionKeys = []string{}
	return c, nil
}

func (q *queries) listConferences(ctx context.Context, query string, args ...any) ([]models.Conference, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
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
			month, max_attendees, seats_available, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	if c.Topics == nil {
		c.Topics = []string{}
	}
	topics, err := json.Marshal(c.Topics)
	if err != nil {
		return fmt.Errorf("encode topics: %w", err)
	}
	ts := now()
	err = q.db.QueryRowContext(ctx, stmt, c.Key.OrganizerID, c.Name, c.Description, c.City, string(topics),
		formatDate(c.StartDate), formatDate(c.EndDate), c.Month, c.MaxAttendees, c.SeatsAvailable, ts, ts).
		Scan(&c.Key.ID)
	if err != nil {
		return err
	}
	c.CreatedAt, c.UpdatedAt = time.Unix(ts, 0), time.Unix(ts, 0)
	return nil
}

func (q *queries) GetConference(ctx context.Context, key models.ConferenceKey) (*models.Conference, error) {
	c, err := q.GetConferenceForUpdate(ctx, key)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.QueryContext(ctx, `SELECT id FROM sessions WHERE conference_id = ? ORDER BY id`, key.ID)
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
	return c, rows.Err()
}

// GetConferenceForUpdate needs no row lock: the enclosing transaction already
// holds the database write lock.
func (q *queries) GetConferenceForUpdate(ctx context.Context, key models.ConferenceKey) (*models.Conference, error) {
	c, err := scanConference(q.db.QueryRowContext(ctx, conferenceColumns+` WHERE c.id = ? AND c.organizer_id = ?`, key.ID, key.OrganizerID))
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (q *queries) SetSeatsAvailable(ctx context.Context, key models.ConferenceKey, seats int) error {
	ok, err := changed(q.db.ExecContext(ctx, `UPDATE conferences SET seats_available = ?, updated_at = ? WHERE id = ? AND organizer_id = ?`,
		seats, now(), key.ID, key.OrganizerID))
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

func (q *queries) ListConferencesByOrganizer(ctx context.Context, organizerID string) ([]models.Conference, error) {
	return q.listConferences(ctx, conferenceColumns+` WHERE c.organizer_id = ? ORDER BY c.name, c.id`, organizerID)
}

type dialect struct{}

func (dialect) Placeholder(int) string { return "?" }

func (dialect) TopicContains(ph string) string {
	return "EXISTS (SELECT 1 FROM json_each(c.topics) WHERE json_each.value = " + ph + ")"
}

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
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k.ID
	}
	list, err := q.listConferences(ctx, conferenceColumns+` WHERE c.id IN (`+placeholders(len(keys))+`)`, args...)
	if err != nil {
		return nil, err
	}
	return store.IndexConferences(keys, list), nil
}

func (q *queries) ListNearlySoldOut(ctx context.Context, above, below int) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT name FROM conferences WHERE seats_available > ? AND seats_available < ? ORDER BY name`, above, below)
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
	const stmt = `INSERT INTO conference_attendees (user_id, conference_id, registered_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, conference_id) DO NOTHING`
	return changed(q.db.ExecContext(ctx, stmt, userID, key.ID, now()))
}

func (q *queries) RemoveAttendance(ctx context.Context, userID string, key models.ConferenceKey) (bool, error) {
	return changed(q.db.ExecContext(ctx, `DELETE FROM conference_attendees WHERE user_id = ? AND conference_id = ?`, userID, key.ID))
}

// Sessions

const sessionColumns = `SELECT s.id, s.conference_id, c.organizer_id, s.name, s.highlights, s.speaker,
	s.duration_minutes, s.type_of_session, s.session_date, s.start_time, s.created_at
	FROM sessions s JOIN conferences c ON c.id = s.conference_id`

func scanSession(row scanner) (models.Session, error) {
	var s models.Session
	var date sql.NullString
	var created int64
	err := row.Scan(&s.Key.ID, &s.Key.Conference.ID, &s.Key.Conference.OrganizerID, &s.Name, &s.Highlights, &s.Speaker,
		&s.DurationMinutes, &s.TypeOfSession, &date, &s.StartTime, &created)
	if err != nil {
		return s, err
	}
	if s.Date, err = parseDate(date); err != nil {
		return s, err
	}
	s.ConferenceKey = s.Key.Conference
	s.CreatedAt = time.Unix(created, 0)
	return s, nil
}

func (q *queries) listSessions(ctx context.Context, query string, args ...any) ([]models.Session, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
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
			session_date, start_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	s.Key.Conference = s.ConferenceKey
	ts := now()
	err := q.db.QueryRowContext(ctx, stmt, s.ConferenceKey.ID, s.Name, s.Highlights, s.Speaker, s.DurationMinutes,
		string(s.TypeOfSession), formatDate(s.Date), s.StartTime, ts).
		Scan(&s.Key.ID)
	if err != nil {
		return err
	}
	s.CreatedAt = time.Unix(ts, 0)
	return nil
}

func (q *queries) GetSession(ctx context.Context, key models.SessionKey) (*models.Session, error) {
	s, err := scanSession(q.db.QueryRowContext(ctx, sessionColumns+` WHERE s.id = ? AND s.conference_id = ? AND c.organizer_id = ?`,
		key.ID, key.Conference.ID, key.Conference.OrganizerID))
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (q *queries) ListSessions(ctx context.Context, conf models.ConferenceKey, f models.SessionFilter) ([]models.Session, error) {
	query := sessionColumns + ` WHERE s.conference_id = ? AND c.organizer_id = ?`
	args := []any{conf.ID, conf.OrganizerID}
	if f.Type != "" {
		query += " AND s.type_of_session = ?"
		args = append(args, string(f.Type))
	}
	if f.Speaker != "" {
		query += " AND s.speaker = ?"
		args = append(args, f.Speaker)
	}
	return q.listSessions(ctx, query+" ORDER BY s.session_date IS NULL, s.session_date, s.start_time, s.id", args...)
}

func (q *queries) ListSessionsByKeys(ctx context.Context, keys []models.SessionKey) ([]models.Session, error) {
	if len(keys) == 0 {
		return []models.Session{}, nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k.ID
	}
	list, err := q.listSessions(ctx, sessionColumns+` WHERE s.id IN (`+placeholders(len(keys))+`)`, args...)
	if err != nil {
		return nil, err
	}
	return store.IndexSessions(keys, list), nil
}

// Wishlist

func (q *queries) AddToWishlist(ctx context.Context, userID string, key models.SessionKey) (bool, error) {
	const stmt = `INSERT INTO session_wishlist (user_id, session_id, added_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, session_id) DO NOTHING`
	return changed(q.db.ExecContext(ctx, stmt, userID, key.ID, now()))
}

func (q *queries) RemoveFromWishlist(ctx context.Context, userID string, key models.SessionKey) (bool, error) {
	const stmt = `DELETE FROM session_wishlist WHERE user_id = ? AND session_id IN (
		SELECT s.id FROM sessions s JOIN conferences c ON c.id = s.conference_id
		WHERE s.id = ? AND s.conference_id = ? AND c.organizer_id = ?)`
	return changed(q.db.ExecContext(ctx, stmt, userID, key.ID, key.Conference.ID, key.Conference.OrganizerID))
}
