package handshake

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/podwatch-dev/podwatch/internal/cryptobox"
)

// PostgresRepo persists handshake records in Postgres. Payloads are stored
// as one opaque (optionally sealed) blob; expiry is enforced on read since
// Postgres has no native TTL.
type PostgresRepo struct {
	pool    *pgxpool.Pool
	box     *cryptobox.Box
	ttl     time.Duration
	nowTime func() time.Time
}

// PostgresOption modifies a PostgresRepo instance.
type PostgresOption func(*PostgresRepo)

// WithPostgresNowTime sets the now time function (primarily for testing)
func WithPostgresNowTime(nowFunc func() time.Time) PostgresOption {
	return func(r *PostgresRepo) {
		r.nowTime = nowFunc
	}
}

// NewPostgresRepo creates a Postgres backed handshake repository. box may be
// nil for plaintext payloads.
func NewPostgresRepo(pool *pgxpool.Pool, box *cryptobox.Box, ttl time.Duration, options ...PostgresOption) *PostgresRepo {
	r := &PostgresRepo{
		pool:    pool,
		box:     box,
		ttl:     ttl,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

var _ Repo = (*PostgresRepo)(nil)

// EnsureSchema creates the handshake table. Safe to run repeatedly.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		create table if not exists oauth_handshakes (
			state      text primary key,
			payload    bytea not null,
			created_at timestamptz not null
		)`)
	return errors.Wrap(err, "[PostgresRepo.EnsureSchema] oauth_handshakes")
}

func (r *PostgresRepo) Upsert(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record cannot be nil")
	}
	if rec.State == "" {
		return errors.New("state cannot be empty")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "[PostgresRepo.Upsert] marshal")
	}
	sealed, err := r.box.Seal(payload)
	if err != nil {
		return errors.Wrap(err, "[PostgresRepo.Upsert] seal")
	}

	_, err = r.pool.Exec(ctx, `
		insert into oauth_handshakes (state, payload, created_at)
		values ($1, $2, $3)
		on conflict (state) do update set payload = excluded.payload, created_at = excluded.created_at`,
		rec.State, sealed, rec.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "[PostgresRepo.Upsert] insert")
	}

	// Opportunistic purge of expired rows keeps the table from growing on
	// abandoned handshakes.
	if r.ttl > 0 {
		_, _ = r.pool.Exec(ctx, `delete from oauth_handshakes where created_at < $1`, r.nowTime().Add(-r.ttl))
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, state string) (*Record, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	var sealed []byte
	var createdAt time.Time
	err := r.pool.QueryRow(ctx,
		`select payload, created_at from oauth_handshakes where state = $1`, state).
		Scan(&sealed, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[PostgresRepo.Get] select")
	}

	if r.ttl > 0 && r.nowTime().After(createdAt.Add(r.ttl)) {
		_, _ = r.pool.Exec(ctx, `delete from oauth_handshakes where state = $1`, state)
		return nil, ErrNotFound
	}

	payload, err := r.box.Open(sealed)
	if err != nil {
		return nil, errors.Wrap(err, "[PostgresRepo.Get] open")
	}
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, errors.Wrap(err, "[PostgresRepo.Get] unmarshal")
	}
	rec.State = state
	return &rec, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	_, err := r.pool.Exec(ctx, `delete from oauth_handshakes where state = $1`, state)
	return errors.Wrap(err, "[PostgresRepo.Delete] delete")
}
