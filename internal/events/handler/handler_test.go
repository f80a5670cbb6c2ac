package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofdrop/internal/events"
	eventsmemory "proofdrop/internal/events/store/memory"
	"proofdrop/internal/platform/logger"
)

func serve(t *testing.T, pub *events.Publisher, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	New(pub, logger.Discard()).Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestListEvents(t *testing.T) {
	ctx := context.Background()
	pub := events.NewPublisher(eventsmemory.New())
	require.NoError(t, pub.Emit(ctx, events.New(events.Verified, "account", "0x01")))
	require.NoError(t, pub.Emit(ctx, events.New(events.Claimed, "amount", "5")))
	require.NoError(t, pub.Emit(ctx, events.New(events.Claimed, "amount", "7")))

	t.Run("filters by name", func(t *testing.T) {
		rec := serve(t, pub, "/events?name=Claimed")
		require.Equal(t, http.StatusOK, rec.Code)
		var got ListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got.Events, 2)
		for _, e := range got.Events {
			assert.Equal(t, events.Claimed, e.Name)
		}
	})

	t.Run("limit", func(t *testing.T) {
		rec := serve(t, pub, "/events?limit=1")
		require.Equal(t, http.StatusOK, rec.Code)
		var got ListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Len(t, got.Events, 1)
	})

	t.Run("empty result is a list", func(t *testing.T) {
		rec := serve(t, pub, "/events?name=AirdropCancelled")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"events":[]}`, rec.Body.String())
	})

	t.Run("rejects bad limits", func(t *testing.T) {
		for _, q := range []string{"limit=0", "limit=abc", "limit=501"} {
			rec := serve(t, pub, "/events?"+q)
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
	})
}
