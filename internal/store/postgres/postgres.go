// Package postgres is the Store backend for shared deployments, on pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"xnom/internal/model"
	"xnom/internal/store"
)

// DB implements store.Store.
type DB struct {
	Pool *pgxpool.Pool
}

var _ store.Store = (*DB)(nil)

func Open(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	d := &DB{Pool: pool}
	if err := d.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) Close() error {
	d.Pool.Close()
	return nil
}

func (d *DB) Ping(ctx context.Context) error { return d.Pool.Ping(ctx) }

func (d *DB) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			source_user_id TEXT NOT NULL,
			source_username TEXT NOT NULL,
			text TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			linked_event_id TEXT,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			priority TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_ts ON notifications(ts)`,
		`CREATE TABLE IF NOT EXISTS engagement_actions (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			target_id TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			success BOOLEAN NOT NULL,
			retry_count INT NOT NULL,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_ts ON engagement_actions(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_target ON engagement_actions(target_id, kind, success)`,
		`CREATE TABLE IF NOT EXISTS user_settings (id TEXT PRIMARY KEY, payload JSONB NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS post_ideas (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			category TEXT,
			analysis TEXT,
			approved BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			scheduled_for TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			x_user_id TEXT NOT NULL UNIQUE,
			username TEXT NOT NULL,
			display_name TEXT,
			profile_image_url TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			last_login_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS cursors (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	}
	for _, q := range queries {
		if _, err := d.Pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

const notificationCols = `id, kind, source_user_id, source_username, text, ts, COALESCE(linked_event_id,''), processed, priority`

func scanNotification(row pgx.Row) (model.Notification, error) {
	var n model.Notification
	var kind, priority string
	err := row.Scan(&n.ID, &kind, &n.SourceUserID, &n.SourceUsername, &n.Text, &n.Timestamp, &n.LinkedEventID, &n.Processed, &priority)
	n.Kind = model.NotificationKind(kind)
	n.Priority = model.Priority(priority)
	n.Timestamp = n.Timestamp.UTC()
	return n, err
}

func (d *DB) GetNotification(ctx context.Context, id string) (model.Notification, error) {
	n, err := scanNotification(d.Pool.QueryRow(ctx, `SELECT `+notificationCols+` FROM notifications WHERE id=$1`, id))
	return n, notFound(err)
}

func (d *DB) InsertNotification(ctx context.Context, n model.Notification) (bool, error) {
	tag, err := d.Pool.Exec(ctx, `INSERT INTO notifications (id, kind, source_user_id, source_username, text, ts, linked_event_id, processed, priority)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) ON CONFLICT (id) DO NOTHING`,
		n.ID, string(n.Kind), n.SourceUserID, n.SourceUsername, n.Text, n.Timestamp.UTC(), n.LinkedEventID, n.Processed, string(n.Priority))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (d *DB) MarkProcessed(ctx context.Context, id string) error {
	tag, err := d.Pool.Exec(ctx, `UPDATE notifications SET processed=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *DB) ListNotifications(ctx context.Context, f store.NotificationFilter) ([]model.Notification, error) {
	var where []string
	var args []any
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		where = append(where, fmt.Sprintf("kind=$%d", len(args)))
	}
	if f.Priority != "" {
		args = append(args, string(f.Priority))
		where = append(where, fmt.Sprintf("priority=$%d", len(args)))
	}
	q := `SELECT ` + notificationCols + ` FROM notifications`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.EffectiveLimit(), f.Offset)
	q += fmt.Sprintf(" ORDER BY ts DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := d.Pool.Query(ctx, q, args...)
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
	rows, err := d.Pool.Query(ctx, `SELECT kind, priority, COUNT(*) FROM notifications WHERE ts>=$1 GROUP BY kind, priority ORDER BY kind, priority`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.KindPriorityCount
	for rows.Next() {
		var kind, priority string
		var n int64
		if err := rows.Scan(&kind, &priority, &n); err != nil {
			return nil, err
		}
		out = append(out, store.KindPriorityCount{Kind: model.NotificationKind(kind), Priority: model.Priority(priority), Count: int(n)})
	}
	return out, rows.Err()
}

const actionCols = `id, kind, target_id, actor_id, ts, success, retry_count, COALESCE(error,'')`

func scanAction(row pgx.Row) (model.EngagementAction, error) {
	var a model.EngagementAction
	var kind string
	err := row.Scan(&a.ID, &kind, &a.TargetEventID, &a.ActorID, &a.Timestamp, &a.Success, &a.RetryCount, &a.Error)
	a.Kind = model.ActionKind(kind)
	a.Timestamp = a.Timestamp.UTC()
	return a, err
}

func (d *DB) InsertAction(ctx context.Context, a model.EngagementAction) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var errText *string
	if a.Error != "" {
		errText = &a.Error
	}
	_, err := d.Pool.Exec(ctx, `INSERT INTO engagement_actions (id, kind, target_id, actor_id, ts, success, retry_count, error) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, string(a.Kind), a.TargetEventID, a.ActorID, a.Timestamp.UTC(), a.Success, a.RetryCount, errText)
	return err
}

func (d *DB) HasSuccessfulAction(ctx context.Context, targetID string, kind model.ActionKind) (bool, error) {
	var exists bool
	err := d.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM engagement_actions WHERE target_id=$1 AND kind=$2 AND success)`, targetID, string(kind)).Scan(&exists)
	return exists, err
}

func (d *DB) queryActions(ctx context.Context, q string, args ...any) ([]model.EngagementAction, error) {
	rows, err := d.Pool.Query(ctx, q, args...)
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
	return d.queryActions(ctx, `SELECT `+actionCols+` FROM engagement_actions WHERE ts>=$1 ORDER BY ts`, since.UTC())
}

func (d *DB) RecentActions(ctx context.Context, limit int) ([]model.EngagementAction, error) {
	if limit <= 0 {
		limit = 10
	}
	return d.queryActions(ctx, `SELECT `+actionCols+` FROM engagement_actions ORDER BY ts DESC LIMIT $1`, limit)
}

func (d *DB) GetSettings(ctx context.Context, id string) (model.Settings, error) {
	var payload []byte
	if err := d.Pool.QueryRow(ctx, `SELECT payload FROM user_settings WHERE id=$1`, id).Scan(&payload); err != nil {
		return model.Settings{}, notFound(err)
	}
	var s model.Settings
	if err := json.Unmarshal(payload, &s); err != nil {
		return s, fmt.Errorf("decode settings %s: %w", id, err)
	}
	return s, nil
}

func (d *DB) PutSettings(ctx context.Context, s model.Settings) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = d.Pool.Exec(ctx, `INSERT INTO user_settings (id, payload) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET payload = $2`, s.ID, b)
	return err
}

const ideaCols = `id, content, score, COALESCE(category,''), COALESCE(analysis,''), approved, created_at, scheduled_for`

func scanIdea(row pgx.Row) (model.PostIdea, error) {
	var p model.PostIdea
	err := row.Scan(&p.ID, &p.Content, &p.Score, &p.Category, &p.AIAnalysis, &p.Approved, &p.CreatedAt, &p.ScheduledFor)
	p.CreatedAt = p.CreatedAt.UTC()
	if p.ScheduledFor != nil {
		t := p.ScheduledFor.UTC()
		p.ScheduledFor = &t
	}
	return p, err
}

func (d *DB) InsertIdea(ctx context.Context, p model.PostIdea) error {
	_, err := d.Pool.Exec(ctx, `INSERT INTO post_ideas (id, content, score, category, analysis, approved, created_at, scheduled_for) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.Content, p.Score, p.Category, p.AIAnalysis, p.Approved, p.CreatedAt.UTC(), p.ScheduledFor)
	return err
}

func (d *DB) GetIdea(ctx context.Context, id string) (model.PostIdea, error) {
	p, err := scanIdea(d.Pool.QueryRow(ctx, `SELECT `+ideaCols+` FROM post_ideas WHERE id=$1`, id))
	return p, notFound(err)
}

func (d *DB) ListIdeas(ctx context.Context, approvedOnly bool, limit int) ([]model.PostIdea, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + ideaCols + ` FROM post_ideas`
	if approvedOnly {
		q += ` WHERE approved`
	}
	q += ` ORDER BY score DESC, created_at DESC LIMIT $1`
	rows, err := d.Pool.Query(ctx, q, limit)
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
	tag, err := d.Pool.Exec(ctx, `UPDATE post_ideas SET approved=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const accountCols = `id, x_user_id, username, COALESCE(display_name,''), COALESCE(profile_image_url,''), created_at, last_login_at`

func scanAccount(row pgx.Row) (model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.XUserID, &a.Username, &a.DisplayName, &a.ProfileImageURL, &a.CreatedAt, &a.LastLoginAt)
	a.CreatedAt = a.CreatedAt.UTC()
	if a.LastLoginAt != nil {
		t := a.LastLoginAt.UTC()
		a.LastLoginAt = &t
	}
	return a, err
}

func (d *DB) UpsertAccount(ctx context.Context, a model.Account) (model.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	row := d.Pool.QueryRow(ctx, `INSERT INTO users (id, x_user_id, username, display_name, profile_image_url, created_at, last_login_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (x_user_id) DO UPDATE SET username=$3, display_name=$4, profile_image_url=$5, last_login_at=$7
		RETURNING `+accountCols,
		a.ID, a.XUserID, a.Username, a.DisplayName, a.ProfileImageURL, a.CreatedAt, a.LastLoginAt)
	return scanAccount(row)
}

func (d *DB) GetAccount(ctx context.Context, id string) (model.Account, error) {
	a, err := scanAccount(d.Pool.QueryRow(ctx, `SELECT `+accountCols+` FROM users WHERE id=$1`, id))
	return a, notFound(err)
}

func (d *DB) SaveCursor(ctx context.Context, key, value string) error {
	_, err := d.Pool.Exec(ctx, `INSERT INTO cursors (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = $2`, key, value)
	return err
}

func (d *DB) LoadCursor(ctx context.Context, key string) (string, error) {
	var v string
	err := d.Pool.QueryRow(ctx, `SELECT value FROM cursors WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return v, err
}
