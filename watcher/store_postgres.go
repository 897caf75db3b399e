package watcher

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// PostgresStore backs both repos with the watcher's bookkeeping tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var (
	_ StateRepo = (*PostgresStore)(nil)
	_ SeenRepo  = (*PostgresStore)(nil)
)

// EnsureSchema creates the watcher tables. Safe to run repeatedly.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		create table if not exists state (
			key   text primary key,
			value text not null
		)`)
	if err != nil {
		return errors.Wrap(err, "[PostgresStore.EnsureSchema] state")
	}

	_, err = s.pool.Exec(ctx, `
		create table if not exists seen_episodes (
			id                 bigserial primary key,
			feed_url           text not null,
			rss_guid           text,
			spotify_episode_id text,
			published_at       timestamptz,
			first_seen_at      timestamptz default now()
		)`)
	if err != nil {
		return errors.Wrap(err, "[PostgresStore.EnsureSchema] seen_episodes")
	}

	// Postgres disallows expressions in table-level unique constraints, so
	// the dedup rule lives in a unique index instead.
	_, err = s.pool.Exec(ctx, `
		create unique index if not exists uq_seen
			on seen_episodes (
				feed_url,
				coalesce(rss_guid, ''),
				coalesce(spotify_episode_id, '')
			)`)
	return errors.Wrap(err, "[PostgresStore.EnsureSchema] uq_seen")
}

func (s *PostgresStore) Baseline(ctx context.Context, feedURL string) (time.Time, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`select value from state where key = $1`, baselineKey(feedURL)).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "[PostgresStore.Baseline] select")
	}

	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		// An unreadable baseline is treated as absent so the feed re-anchors
		// on its newest entry rather than replaying history.
		return time.Time{}, false, nil
	}
	return at, true, nil
}

func (s *PostgresStore) SetBaseline(ctx context.Context, feedURL string, publishedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		insert into state (key, value)
		values ($1, $2)
		on conflict (key) do update set value = excluded.value`,
		baselineKey(feedURL), publishedAt.UTC().Format(time.RFC3339))
	return errors.Wrap(err, "[PostgresStore.SetBaseline] upsert")
}

func (s *PostgresStore) Seen(ctx context.Context, feedURL, guid string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `
		select 1 from seen_episodes
		where feed_url = $1
		  and coalesce(rss_guid, '') = $2`,
		feedURL, guid).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[PostgresStore.Seen] select")
	}
	return true, nil
}

func (s *PostgresStore) MarkSeen(ctx context.Context, feedURL, guid, episodeID string, publishedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		insert into seen_episodes (feed_url, rss_guid, spotify_episode_id, published_at)
		values ($1, nullif($2, ''), nullif($3, ''), $4)
		on conflict do nothing`,
		feedURL, guid, episodeID, publishedAt)
	return errors.Wrap(err, "[PostgresStore.MarkSeen] insert")
}
