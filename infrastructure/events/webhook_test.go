package events

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSignsAndDelivers(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "sha256="+Sign(body, "s3cret"), r.Header.Get("X-Hub-Signature-256"))
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier := NewStageNotifier(NewWebhook(WebhookConfig{URLs: []string{srv.URL}, Secret: "s3cret"}), func() string { return "evt-1" })
	require.NoError(t, notifier.OnAllPostsPublished(context.Background(), "project-9"))

	assert.Equal(t, TypeProjectPostsPublished, got.Type)
	assert.Equal(t, "project-9", got.ProjectID)
	assert.Equal(t, "evt-1", got.ID)
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := NewWebhook(WebhookConfig{URLs: []string{srv.URL}, InitialBackoff: time.Millisecond})
	require.NoError(t, hook.Send(context.Background(), Event{Type: "t"}))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestWebhookFailsOnlyWhenAllTargetsFail(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ok.Close()
	var badCalls int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&badCalls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer bad.Close()

	partial := NewWebhook(WebhookConfig{URLs: []string{bad.URL, ok.URL}, InitialBackoff: time.Millisecond})
	assert.NoError(t, partial.Send(context.Background(), Event{Type: "t"}))
	assert.EqualValues(t, 1, atomic.LoadInt32(&badCalls), "4xx responses are not retried")

	allBad := NewWebhook(WebhookConfig{URLs: []string{bad.URL}, InitialBackoff: time.Millisecond})
	assert.Error(t, allBad.Send(context.Background(), Event{Type: "t"}))
}

func TestSignWithoutSecret(t *testing.T) {
	assert.Empty(t, Sign([]byte("x"), ""))
}
