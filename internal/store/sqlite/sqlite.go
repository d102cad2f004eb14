// Package sqlite is the default Store backend, on the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"xnom/internal/model"
	"xnom/internal/store"
)

// DB implements store.Store.
type DB struct{ sql *sql.DB }

var _ store.Store = (*DB)(nil)

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection: keeps ":memory:" databases shared and serialises writers
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) Ping(ctx context.Context) error { return d.sql.PingContext(ctx) }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS notifications (
	  id TEXT PRIMARY KEY,
	  kind TEXT NOT NULL,
	  source_user_id TEXT NOT NULL,
	  source_username TEXT NOT NULL,
	  text TEXT NOT NULL,
	  ts INTEGER NOT NULL,
	  linked_event_id TEXT,
	  processed INTEGER NOT NULL DEFAULT 0,
	  priority TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_ts ON notifications(ts);
	CREATE TABLE IF NOT EXISTS engagement_actions (
	  id TEXT PRIMARY KEY,
	  kind TEXT NOT NULL,
	  target_id TEXT NOT NULL,
	  actor_id TEXT NOT NULL,
	  ts INTEGER NOT NULL,
	  success INTEGER NOT NULL,
	  retry_count INTEGER NOT NULL,
	  error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_actions_ts ON engagement_actions(ts);
	CREATE INDEX IF NOT EXISTS idx_actions_target ON engagement_actions(target_id, kind, success);
	CREATE TABLE IF NOT EXISTS user_settings (
	  id TEXT PRIMARY KEY,
	  payload TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS post_ideas (
	  id TEXT PRIMARY KEY,
	  content TEXT NOT NULL,
	  score REAL NOT NULL,
	  category TEXT,
	  analysis TEXT,
	  approved INTEGER NOT NULL DEFAULT 0,
	  created_at INTEGER NOT NULL,
	  scheduled_for INTEGER
	);
	CREATE TABLE IF NOT EXISTS users (
	  id TEXT PRIMARY KEY,
	  x_user_id TEXT NOT NULL UNIQUE,
	  username TEXT NOT NULL,
	  display_name TEXT,
	  profile_image_url TEXT,
	  created_at INTEGER NOT NULL,
	  last_login_at INTEGER
	);
	CREATE TABLE IF NOT EXISTS cursors (
	  key TEXT PRIMARY KEY,
	  value TEXT NOT NULL
	);
	`)
	return err
}

func ms(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// notifications

const notificationCols = `id, kind, source_user_id, source_username, text, ts, COALESCE(linked_event_id,''), processed, priority`

type scanner interface{ Scan(dest ...any) error }

func scanNotification(s scanner) (model.Notification, error) {
	var n model.Notification
	var ts int64
	var processed int
	if err := s.Scan(&n.ID, &n.Kind, &n.SourceUserID, &n.SourceUsername, &n.Text, &ts, &n.LinkedEventID, &processed, &n.Priority); err != nil {
		return n, err
	}
	n.Timestamp = fromMS(ts)
	n.Processed = processed != 0
	return n, nil
}

func (d *DB) GetNotification(ctx context.Context, id string) (model.Notification, error) {
	n, err := scanNotification(d.sql.QueryRowContext(ctx, `SELECT `+notificationCols+` FROM notifications WHERE id=?`, id))
	return n, notFound(err)
}

func (d *DB) InsertNotification(ctx context.Context, n model.Notification) (bool, error) {
	res, err := d.sql.ExecContext(ctx, `INSERT INTO notifications(id, kind, source_user_id, source_username, text, ts, linked_event_id, processed, priority)
	VALUES(?,?,?,?,?,?,?,?,?) ON CONFLICT(id) DO NOTHING`,
		n.ID, string(n.Kind), n.SourceUserID, n.SourceUsername, n.Text, ms(n.Timestamp), n.LinkedEventID, boolInt(n.Processed), string(n.Priority))
	if err != nil {
		return false, err
	}
	k, err := res.RowsAffected()
	return k > 0, err
}

func (d *DB) MarkProcessed(ctx context.Context, id string) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE notifications SET processed=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if k, _ := res.RowsAffected(); k == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *DB) ListNotifications(ctx context.Context, f store.NotificationFilter) ([]model.Notification, error) {
	var where []string
	var args []any
	if f.Kind != "" {
		where = append(where, "kind=?")
		args = append(args, string(f.Kind))
	}
	if f.Priority != "" {
		where = append(where, "priority=?")
		args = append(args, string(f.Priority))
	}
	q := `SELECT ` + notificationCols + ` FROM notifications`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts DESC, id LIMIT ? OFFSET ?"
	args = append(args, f.EffectiveLimit(), f.Offset)
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (d *DB) CountNotificationsSince(ctx context.Context, since time.Time) ([]store.KindPriorityCount, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT kind, priority, COUNT(*) FROM notifications WHERE ts>=? GROUP BY kind, priority ORDER BY kind, priority`, ms(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.KindPriorityCount
	for rows.Next() {
		var c store.KindPriorityCount
		if err := rows.Scan(&c.Kind, &c.Priority, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// engagement actions

const actionCols = `id, kind, target_id, actor_id, ts, success, retry_count, COALESCE(error,'')`

func scanAction(s scanner) (model.EngagementAction, error) {
	var a model.EngagementAction
	var ts int64
	var success int
	if err := s.Scan(&a.ID, &a.Kind, &a.TargetEventID, &a.ActorID, &ts, &success, &a.RetryCount, &a.Error); err != nil {
		return a, err
	}
	a.Timestamp = fromMS(ts)
	a.Success = success != 0
	return a, nil
}

func (d *DB) InsertAction(ctx context.Context, a model.EngagementAction) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var errText *string
	if a.Error != "" {
		errText = &a.Error
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO engagement_actions(id, kind, target_id, actor_id, ts, success, retry_count, error) VALUES(?,?,?,?,?,?,?,?)`,
		a.ID, string(a.Kind), a.TargetEventID, a.ActorID, ms(a.Timestamp), boolInt(a.Success), a.RetryCount, errText)
	return err
}

func (d *DB) HasSuccessfulAction(ctx context.Context, targetID string, kind model.ActionKind) (bool, error) {
	var exists int
	err := d.sql.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM engagement_actions WHERE target_id=? AND kind=? AND success=1)`, targetID, string(kind)).Scan(&exists)
	return exists != 0, err
}

func (d *DB) queryActions(ctx context.Context, q string, args ...any) ([]model.EngagementAction, error) {
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.EngagementAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (d *DB) ActionsSince(ctx context.Context, since time.Time) ([]model.EngagementAction, error) {
	return d.queryActions(ctx, `SELECT `+actionCols+` FROM engagement_actions WHERE ts>=? ORDER BY ts`, ms(since))
}

func (d *DB) RecentActions(ctx context.Context, limit int) ([]model.EngagementAction, error) {
	if limit <= 0 {
		limit = 10
	}
	return d.queryActions(ctx, `SELECT `+actionCols+` FROM engagement_actions ORDER BY ts DESC LIMIT ?`, limit)
}

// settings

func (d *DB) GetSettings(ctx context.Context, id string) (model.Settings, error) {
	var payload string
	if err := d.sql.QueryRowContext(ctx, `SELECT payload FROM user_settings WHERE id=?`, id).Scan(&payload); err != nil {
		return model.Settings{}, notFound(err)
	}
	var s model.Settings
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return s, fmt.Errorf("decode settings %s: %w", id, err)
	}
	return s, nil
}

func (d *DB) PutSettings(ctx context.Context, s model.Settings) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx, `INSERT INTO user_settings(id, payload) VALUES(?,?) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload`, s.ID, string(b))
	return err
}

// post ideas

const ideaCols = `id, content, score, COALESCE(category,''), COALESCE(analysis,''), approved, created_at, scheduled_for`

func scanIdea(s scanner) (model.PostIdea, error) {
	var p model.PostIdea
	var approved int
	var created int64
	var sched sql.NullInt64
	if err := s.Scan(&p.ID, &p.Content, &p.Score, &p.Category, &p.AIAnalysis, &approved, &created, &sched); err != nil {
		return p, err
	}
	p.Approved = approved != 0
	p.CreatedAt = fromMS(created)
	if sched.Valid {
		t := fromMS(sched.Int64)
		p.ScheduledFor = &t
	}
	return p, nil
}

func (d *DB) InsertIdea(ctx context.Context, p model.PostIdea) error {
	var sched *int64
	if p.ScheduledFor != nil {
		v := ms(*p.ScheduledFor)
		sched = &v
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO post_ideas(id, content, score, category, analysis, approved, created_at, scheduled_for) VALUES(?,?,?,?,?,?,?,?)`,
		p.ID, p.Content, p.Score, p.Category, p.AIAnalysis, boolInt(p.Approved), ms(p.CreatedAt), sched)
	return err
}

func (d *DB) GetIdea(ctx context.Context, id string) (model.PostIdea, error) {
	p, err := scanIdea(d.sql.QueryRowContext(ctx, `SELECT `+ideaCols+` FROM post_ideas WHERE id=?`, id))
	return p, notFound(err)
}

func (d *DB) ListIdeas(ctx context.Context, approvedOnly bool, limit int) ([]model.PostIdea, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + ideaCols + ` FROM post_ideas`
	if approvedOnly {
		q += ` WHERE approved=1`
	}
	q += ` ORDER BY score DESC, created_at DESC LIMIT ?`
	rows, err := d.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PostIdea
	for rows.Next() {
		p, err := scanIdea(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) ApproveIdea(ctx context.Context, id string) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE post_ideas SET approved=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if k, _ := res.RowsAffected(); k == 0 {
		return store.ErrNotFound
	}
	return nil
}

// accounts

const accountCols = `id, x_user_id, username, COALESCE(display_name,''), COALESCE(profile_image_url,''), created_at, last_login_at`

func scanAccount(s scanner) (model.Account, error) {
	var a model.Account
	var created int64
	var last sql.NullInt64
	if err := s.Scan(&a.ID, &a.XUserID, &a.Username, &a.DisplayName, &a.ProfileImageURL, &created, &last); err != nil {
		return a, err
	}
	a.CreatedAt = fromMS(created)
	if last.Valid {
		t := fromMS(last.Int64)
		a.LastLoginAt = &t
	}
	return a, nil
}

func (d *DB) UpsertAccount(ctx context.Context, a model.Account) (model.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var last *int64
	if a.LastLoginAt != nil {
		v := ms(*a.LastLoginAt)
		last = &v
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO users(id, x_user_id, username, display_name, profile_image_url, created_at, last_login_at)
	VALUES(?,?,?,?,?,?,?)
	ON CONFLICT(x_user_id) DO UPDATE SET username=excluded.username, display_name=excluded.display_name,
	  profile_image_url=excluded.profile_image_url, last_login_at=excluded.last_login_at`,
		a.ID, a.XUserID, a.Username, a.DisplayName, a.ProfileImageURL, ms(a.CreatedAt), last)
	if err != nil {
		return model.Account{}, err
	}
	out, err := scanAccount(d.sql.QueryRowContext(ctx, `SELECT `+accountCols+` FROM users WHERE x_user_id=?`, a.XUserID))
	return out, notFound(err)
}

func (d *DB) GetAccount(ctx context.Context, id string) (model.Account, error) {
	a, err := scanAccount(d.sql.QueryRowContext(ctx, `SELECT `+accountCols+` FROM users WHERE id=?`, id))
	return a, notFound(err)
}

// cursors

func (d *DB) SaveCursor(ctx context.Context, key, value string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO cursors(key, value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

func (d *DB) LoadCursor(ctx context.Context, key string) (string, error) {
	var v string
	err := d.sql.QueryRowContext(ctx, `SELECT value FROM cursors WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
