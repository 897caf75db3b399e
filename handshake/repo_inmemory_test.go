package handshake_test

import (
	"context"
	"testing"
	"time"

	"github.com/podwatch-dev/podwatch/handshake"
	"github.com/podwatch-dev/podwatch/signingkey"
	"github.com/stretchr/testify/require"
)

func testRecord(t *testing.T, state string, createdAt time.Time) *handshake.Record {
	t.Helper()

	key, err := signingkey.Generate()
	require.NoError(t, err)

	return &handshake.Record{
		State:            state,
		DID:              "did:plc:abc123",
		PDSURL:           "https://pds.example.com",
		AuthServerIssuer: "https://auth.example.com",
		Scope:            "atproto transition:generic",
		PKCEVerifier:     "verifier-value",
		DPoPKey:          key.PrivateJWK(),
		CreatedAt:        createdAt,
	}
}

func TestInMemoryRepo_UpsertGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := handshake.NewInMemoryRepo(30 * time.Minute)

	rec := testRecord(t, "state-1", time.Now())
	require.NoError(t, repo.Upsert(ctx, rec))

	got, err := repo.Get(ctx, "state-1")
	require.NoError(t, err)
	require.Equal(t, rec.DID, got.DID)
	require.Equal(t, rec.PKCEVerifier, got.PKCEVerifier)
	require.Equal(t, rec.DPoPKey, got.DPoPKey)

	// Mutating the returned copy must not touch the stored record.
	got.PKCEVerifier = "changed"
	again, err := repo.Get(ctx, "state-1")
	require.NoError(t, err)
	require.Equal(t, rec.PKCEVerifier, again.PKCEVerifier)

	require.NoError(t, repo.Delete(ctx, "state-1"))
	_, err = repo.Get(ctx, "state-1")
	require.ErrorIs(t, err, handshake.ErrNotFound)
}

func TestInMemoryRepo_UnknownStateIsNotFound(t *testing.T) {
	repo := handshake.NewInMemoryRepo(30 * time.Minute)
	_, err := repo.Get(context.Background(), "never-stored")
	require.ErrorIs(t, err, handshake.ErrNotFound)
}

func TestInMemoryRepo_ExpiredRecordIsNotFound(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := handshake.NewInMemoryRepo(30*time.Minute, handshake.WithNowTime(func() time.Time { return now }))

	require.NoError(t, repo.Upsert(ctx, testRecord(t, "state-old", now.Add(-31*time.Minute))))
	_, err := repo.Get(ctx, "state-old")
	require.ErrorIs(t, err, handshake.ErrNotFound)

	// A record inside the window is still live.
	require.NoError(t, repo.Upsert(ctx, testRecord(t, "state-live", now.Add(-29*time.Minute))))
	_, err = repo.Get(ctx, "state-live")
	require.NoError(t, err)
}

func TestInMemoryRepo_EmptyStateRejected(t *testing.T) {
	ctx := context.Background()
	repo := handshake.NewInMemoryRepo(time.Minute)

	require.Error(t, repo.Upsert(ctx, &handshake.Record{}))
	_, err := repo.Get(ctx, "")
	require.Error(t, err)
	require.Error(t, repo.Delete(ctx, ""))
}

func TestInMemoryRepo_DeleteIsIdempotent(t *testing.T) {
	repo := handshake.NewInMemoryRepo(time.Minute)
	require.NoError(t, repo.Delete(context.Background(), "absent"))
}
