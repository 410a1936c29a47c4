package handlers

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/pptagent/internal/history"
	"github.com/BaSui01/pptagent/types"
)

func newHistoryMux(t *testing.T) (*http.ServeMux, *history.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "history.db")), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&history.Record{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := history.NewStore(db)
	mux := http.NewServeMux()
	NewHistoryHandler(store, nil).Register(mux)
	return mux, store
}

func seedHistory(t *testing.T, store *history.Store) {
	t.Helper()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	for i, room := range []string{"room-a", "room-b", "room-a"} {
		started := base.Add(time.Duration(i) * time.Hour)
		ended := started.Add(90 * time.Second)
		require.NoError(t, store.Save(context.Background(), &history.Record{
			ID:              room + "-" + started.Format("150405"),
			Room:            room,
			PresentationID:  "deck-1",
			TotalSlides:     4,
			SlidesPresented: 4,
			Outcome:         history.OutcomeCompleted,
			StartedAt:       started,
			EndedAt:         &ended,
		}))
	}
}

func TestHistoryHandler_List(t *testing.T) {
	mux, store := newHistoryMux(t)
	seedHistory(t, store)

	w := doJSON(t, mux, http.MethodGet, "/api/v1/history?room=room-a", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeResponse(t, w).Data.([]any)
	require.Len(t, list, 2)

	first := list[0].(map[string]any)
	assert.Equal(t, "room-a-110000", first["id"])
	assert.Equal(t, float64(90), first["duration_seconds"])

	w = doJSON(t, mux, http.MethodGet, "/api/v1/history?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeResponse(t, w).Data.([]any), 1)
}

func TestHistoryHandler_ListInvalidLimit(t *testing.T) {
	mux, _ := newHistoryMux(t)

	w := doJSON(t, mux, http.MethodGet, "/api/v1/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(types.ErrInvalidRequest), errorCode(t, w))
}

func TestHistoryHandler_Get(t *testing.T) {
	mux, store := newHistoryMux(t)
	seedHistory(t, store)

	w := doJSON(t, mux, http.MethodGet, "/api/v1/history/room-b-100000", "")
	require.Equal(t, http.StatusOK, w.Code)
	rec := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "room-b", rec["room"])
	assert.Equal(t, history.OutcomeCompleted, rec["outcome"])

	w = doJSON(t, mux, http.MethodGet, "/api/v1/history/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(types.ErrNotFound), errorCode(t, w))
}
