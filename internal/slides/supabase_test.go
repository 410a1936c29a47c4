package slides

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/pptagent/types"
)

func TestSupabaseStore_LoadDeck(t *testing.T) {
	var gotQuery, gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/slides", r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"s2","presentation_id":"p1","slide_number":2,"image_url":"p1/2.png","extracted_text":"Agenda","created_at":"2024-01-01"},
			{"id":"s1","presentation_id":"p1","slide_number":1,"image_url":"https://cdn.example.com/1.png","extracted_text":null}
		]`))
	}))
	defer srv.Close()

	store := NewSupabaseStore(SupabaseConfig{URL: srv.URL + "/", ServiceKey: "service-key", Bucket: "decks"}, nil)
	deck, err := store.LoadDeck(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, "service-key", gotKey)
	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Contains(t, gotQuery, "presentation_id=eq.p1")
	assert.Contains(t, gotQuery, "order=slide_number.asc")
	assert.Contains(t, gotQuery, "select=%2A")

	require.Len(t, deck, 2)
	assert.Equal(t, "s1", deck[0].ID)
	assert.Equal(t, "https://cdn.example.com/1.png", deck[0].ImageURL)
	assert.Empty(t, deck[0].ExtractedText)
	assert.Equal(t, srv.URL+"/storage/v1/object/public/decks/p1/2.png", deck[1].ImageURL)
}

func TestSupabaseStore_EmptyDeck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := NewSupabaseStore(SupabaseConfig{URL: srv.URL}, nil).LoadDeck(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrDeckNotFound))
}

func TestSupabaseStore_UpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid API key"}`))
	}))
	defer srv.Close()

	store := NewSupabaseStore(SupabaseConfig{URL: srv.URL}, nil)
	_, err := store.LoadDeck(context.Background(), "p1")
	require.Error(t, err)
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "Invalid API key")

	assert.Error(t, store.Ping(context.Background()))

	_, err = store.LoadDeck(context.Background(), " ")
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestSupabaseStore_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewSupabaseStore(SupabaseConfig{URL: url}, nil).LoadDeck(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
}

func TestSupabaseStore_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"id":"s1"}]`))
	}))
	defer srv.Close()

	assert.NoError(t, NewSupabaseStore(SupabaseConfig{URL: srv.URL}, nil).Ping(context.Background()))
}

func TestSupabaseStore_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewSupabaseStore(SupabaseConfig{URL: srv.URL, Timeout: 5 * time.Second}, nil).LoadDeck(ctx, "p1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSupabaseStore_SchemaHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "public", r.Header.Get("Accept-Profile"))
		assert.Equal(t, "/rest/v1/decks", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":"s1","presentation_id":"p1","slide_number":1}]`))
	}))
	defer srv.Close()

	deck, err := NewSupabaseStore(SupabaseConfig{URL: srv.URL, Table: "decks"}, nil).LoadDeck(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, deck, 1)
}
