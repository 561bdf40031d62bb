package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UpsertSettings(ctx context.Context) (*Settings, error) {
	_, _ = r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(id) VALUES (1)`,
	)
	return r.GetSettings(ctx)
}

func (r *Repo) GetSettings(ctx context.Context) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, watch_history, playback_resume, auto_queue,
	       seek_duration_ms, preferred_caption, default_resolution
	FROM settings WHERE id = 1`)

	var s Settings
	var b1, b2, b3 int
	if err := row.Scan(
		&s.ID,
		&b1, // watch_history
		&b2, // playback_resume
		&b3, // auto_queue
		&s.SeekDurationMs,
		&s.PreferredCaption,
		&s.DefaultResolution,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}

	s.WatchHistory = b1 != 0
	s.PlaybackResume = b2 != 0
	s.AutoQueue = b3 != 0
	return &s, nil
}

func (r *Repo) UpdateSettings(ctx context.Context, s *Settings) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settings SET
		  watch_history=?,
		  playback_resume=?,
		  auto_queue=?,
		  seek_duration_ms=?,
		  preferred_caption=?,
		  default_resolution=?
		WHERE id=1`,
		boolToInt(s.WatchHistory), boolToInt(s.PlaybackResume),
		boolToInt(s.AutoQueue), s.SeekDurationMs,
		s.PreferredCaption, s.DefaultResolution,
	)
	return err
}

// SaveStreamState stores the last playback progress for a stream, replacing
// any prior value.
func (r *Repo) SaveStreamState(ctx context.Context, url string, progressMs int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO stream_state(url, progress_ms, updated_at) VALUES (?,?,?)`,
		url, progressMs, time.Now().Unix(),
	)
	return err
}

// LoadStreamState returns sql.ErrNoRows when no progress has been saved.
func (r *Repo) LoadStreamState(ctx context.Context, url string) (*StreamState, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT url, progress_ms, updated_at FROM stream_state WHERE url=?`, url)
	var st StreamState
	var updated int64
	if err := row.Scan(&st.URL, &st.ProgressMs, &updated); err != nil {
		return nil, err
	}
	st.UpdatedAt = time.Unix(updated, 0)
	return &st, nil
}

func (r *Repo) ResetStreamState(ctx context.Context, url string) error {
	return r.SaveStreamState(ctx, url, 0)
}

// RecordView bumps the watch-history entry for a stream, creating it on
// first view.
func (r *Repo) RecordView(ctx context.Context, url, title, uploader string) error {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO history(url, title, uploader, access_count, last_access)
		VALUES (?,?,?,1,?)
		ON CONFLICT(url) DO UPDATE SET
		  title=excluded.title,
		  uploader=excluded.uploader,
		  access_count=access_count+1,
		  last_access=excluded.last_access`,
		url, title, uploader, now,
	)
	return err
}

func (r *Repo) ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, url, title, uploader, access_count, last_access
		FROM history ORDER BY last_access DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var last int64
		if err := rows.Scan(&h.ID, &h.URL, &h.Title, &h.Uploader, &h.AccessCount, &last); err != nil {
			return nil, err
		}
		h.LastAccess = time.Unix(last, 0)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repo) AddSubscription(ctx context.Context, url, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO subscriptions(url, name) VALUES (?,?)`, url, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) RemoveSubscription(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repo) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, url, name FROM subscriptions ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ID, &s.URL, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReplaceFeedItems swaps the stored feed entries for one subscription in a
// single transaction.
func (r *Repo) ReplaceFeedItems(ctx context.Context, subscriptionID int64, items []FeedItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM feed_items WHERE subscription_id=?`, subscriptionID); err != nil {
		return err
	}
	now := time.Now().Unix()
	for _, it := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO feed_items(subscription_id, url, title, uploader, duration_ms, fetched_at)
			VALUES (?,?,?,?,?,?)`,
			subscriptionID, it.URL, it.Title, it.Uploader, it.DurationMs, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) ListFeedItems(ctx context.Context, limit int) ([]FeedItem, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, subscription_id, url, title, uploader, duration_ms, fetched_at
		FROM feed_items ORDER BY fetched_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FeedItem
	for rows.Next() {
		var f FeedItem
		var fetched int64
		if err := rows.Scan(&f.ID, &f.SubscriptionID, &f.URL, &f.Title, &f.Uploader, &f.DurationMs, &fetched); err != nil {
			return nil, err
		}
		f.FetchedAt = time.Unix(fetched, 0)
		out = append(out, f)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
