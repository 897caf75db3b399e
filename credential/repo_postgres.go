package credential

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/podwatch-dev/podwatch/internal/cryptobox"
)

// PostgresRepo persists credential records in Postgres. Every write updates
// the session row and the singleton current-subject pointer in one
// transaction, so the pointer can never name a missing record.
type PostgresRepo struct {
	pool *pgxpool.Pool
	box  *cryptobox.Box
}

// NewPostgresRepo creates a Postgres backed credential repository. box may
// be nil for plaintext payloads.
func NewPostgresRepo(pool *pgxpool.Pool, box *cryptobox.Box) *PostgresRepo {
	return &PostgresRepo{
		pool: pool,
		box:  box,
	}
}

var _ Repo = (*PostgresRepo)(nil)

// EnsureSchema creates the session tables. Safe to run repeatedly.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		create table if not exists oauth_sessions (
			did        text primary key,
			payload    bytea not null,
			updated_at timestamptz not null
		)`)
	if err != nil {
		return errors.Wrap(err, "[PostgresRepo.EnsureSchema] oauth_sessions")
	}

	// The check constraint pins the pointer to a single row.
	_, err = r.pool.Exec(ctx, `
		create table if not exists oauth_current_session (
			id  smallint primary key default 1 check (id = 1),
			did text not null
		)`)
	return errors.Wrap(err, "[PostgresRepo.EnsureSchema] oauth_current_session")
}

func (r *PostgresRepo) Put(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record cannot be nil")
	}
	if rec.DID == "" {
		return errors.New("did cannot be empty")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "[PostgresRepo.Put] marshal")
	}
	sealed, err := r.box.Seal(payload)
	if err != nil {
		return errors.Wrap(err, "[PostgresRepo.Put] seal")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "[PostgresRepo.Put] begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		insert into oauth_sessions (did, payload, updated_at)
		values ($1, $2, $3)
		on conflict (did) do update set payload = excluded.payload, updated_at = excluded.updated_at`,
		rec.DID, sealed, rec.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "[PostgresRepo.Put] upsert session")
	}

	_, err = tx.Exec(ctx, `
		insert into oauth_current_session (id, did)
		values (1, $1)
		on conflict (id) do update set did = excluded.did`,
		rec.DID)
	if err != nil {
		return errors.Wrap(err, "[PostgresRepo.Put] upsert pointer")
	}

	return errors.Wrap(tx.Commit(ctx), "[PostgresRepo.Put] commit")
}

func (r *PostgresRepo) Get(ctx context.Context, did string) (*Record, error) {
	if did == "" {
		return nil, errors.New("did cannot be empty")
	}

	var sealed []byte
	err := r.pool.QueryRow(ctx,
		`select payload from oauth_sessions where did = $1`, did).Scan(&sealed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[PostgresRepo.Get] select")
	}
	return r.decode(did, sealed)
}

func (r *PostgresRepo) Current(ctx context.Context) (*Record, error) {
	var did string
	var sealed []byte
	err := r.pool.QueryRow(ctx, `
		select s.did, s.payload
		from oauth_current_session c
		join oauth_sessions s on s.did = c.did
		where c.id = 1`).Scan(&did, &sealed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[PostgresRepo.Current] select")
	}
	return r.decode(did, sealed)
}

func (r *PostgresRepo) Delete(ctx context.Context, did string) error {
	if did == "" {
		return errors.New("did cannot be empty")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "[PostgresRepo.Delete] begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `delete from oauth_sessions where did = $1`, did); err != nil {
		return errors.Wrap(err, "[PostgresRepo.Delete] delete session")
	}
	if _, err := tx.Exec(ctx, `delete from oauth_current_session where did = $1`, did); err != nil {
		return errors.Wrap(err, "[PostgresRepo.Delete] delete pointer")
	}

	return errors.Wrap(tx.Commit(ctx), "[PostgresRepo.Delete] commit")
}

func (r *PostgresRepo) Clear(ctx context.Context) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "[PostgresRepo.Clear] begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `delete from oauth_sessions`); err != nil {
		return errors.Wrap(err, "[PostgresRepo.Clear] delete sessions")
	}
	if _, err := tx.Exec(ctx, `delete from oauth_current_session`); err != nil {
		return errors.Wrap(err, "[PostgresRepo.Clear] delete pointer")
	}

	return errors.Wrap(tx.Commit(ctx), "[PostgresRepo.Clear] commit")
}

func (r *PostgresRepo) decode(did string, sealed []byte) (*Record, error) {
	payload, err := r.box.Open(sealed)
	if err != nil {
		return nil, errors.Wrap(err, "[PostgresRepo] open payload")
	}
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, errors.Wrap(err, "[PostgresRepo] unmarshal payload")
	}
	rec.DID = did
	return &rec, nil
}
