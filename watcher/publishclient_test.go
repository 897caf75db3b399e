package watcher_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/podwatch-dev/podwatch/internal/apierr"
	"github.com/podwatch-dev/podwatch/watcher"
)

func TestServiceClient_PostThread_SendsTokenAndBody(t *testing.T) {
	var gotToken string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/publish", r.URL.Path)
		gotToken = r.Header.Get("X-Internal-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	t.Cleanup(srv.Close)

	client := watcher.NewServiceClient(srv.URL, "secret-token")
	err := client.PostThread(context.Background(), "first post", "second post")
	require.NoError(t, err)
	require.Equal(t, "secret-token", gotToken)
	require.Equal(t, "first post", gotBody["firstText"])
	require.Equal(t, "second post", gotBody["secondText"])
}

func TestServiceClient_PostThread_ReauthRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(apierr.Response{
			Error:       apierr.CodeReauthRequired,
			Description: "no usable session, re-run authorization",
		})
	}))
	t.Cleanup(srv.Close)

	client := watcher.NewServiceClient(srv.URL, "secret-token")
	err := client.PostThread(context.Background(), "a", "b")
	require.ErrorIs(t, err, watcher.ErrReauthRequired)
}

func TestServiceClient_PostThread_OtherFailuresAreNotReauth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(apierr.Response{Error: apierr.CodePublishFailed})
	}))
	t.Cleanup(srv.Close)

	client := watcher.NewServiceClient(srv.URL, "secret-token")
	err := client.PostThread(context.Background(), "a", "b")
	require.Error(t, err)
	require.NotErrorIs(t, err, watcher.ErrReauthRequired)
	require.Contains(t, err.Error(), "publish_failed")
}
