package livekit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/pptagent/types"
)

func TestHTTPURL(t *testing.T) {
	assert.Equal(t, "https://demo.livekit.cloud", HTTPURL("wss://demo.livekit.cloud/"))
	assert.Equal(t, "http://localhost:7880", HTTPURL("ws://localhost:7880"))
	assert.Equal(t, "https://x", HTTPURL("https://x"))
}

// roomServer 模拟 RoomService，并校验管理令牌
func roomServer(t *testing.T, handle func(method string, req map[string]any) (int, any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.True(t, strings.HasPrefix(r.URL.Path, "/twirp/livekit.RoomService/"))
		method := strings.TrimPrefix(r.URL.Path, "/twirp/livekit.RoomService/")

		claims, err := ParseToken(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "), "key", "secret")
		require.NoError(t, err)
		require.NotNil(t, claims.Video)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if room, ok := req["room"].(string); ok {
			assert.True(t, claims.Video.RoomAdmin)
			assert.Equal(t, room, claims.Video.Room)
		}

		status, out := handle(method, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func newTestClient(srv *httptest.Server) *RoomClient {
	return NewRoomClient(ClientConfig{
		URL:       strings.Replace(srv.URL, "http://", "ws://", 1),
		APIKey:    "key",
		APISecret: "secret",
	}, nil)
}

func TestRoomClient_ListParticipants(t *testing.T) {
	srv := roomServer(t, func(method string, req map[string]any) (int, any) {
		assert.Equal(t, "ListParticipants", method)
		assert.Equal(t, "room-a", req["room"])
		return http.StatusOK, map[string]any{"participants": []map[string]any{
			{"sid": "PA_1", "identity": "user-1", "metadata": "pres-1", "kind": "STANDARD"},
			{"sid": "PA_2", "identity": "ppt-presenter", "kind": "AGENT"},
		}}
	})
	defer srv.Close()

	ps, err := newTestClient(srv).ListParticipants(context.Background(), "room-a")
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "pres-1", ps[0].Metadata)
	assert.True(t, ps[0].IsAudience())
	assert.False(t, ps[1].IsAudience())
}

func TestRoomClient_UpdateAttributes(t *testing.T) {
	var got map[string]any
	srv := roomServer(t, func(method string, req map[string]any) (int, any) {
		assert.Equal(t, "UpdateParticipant", method)
		got = req
		return http.StatusOK, map[string]any{"identity": "ppt-presenter"}
	})
	defer srv.Close()

	err := newTestClient(srv).UpdateAttributes(context.Background(), "room-a", "ppt-presenter", map[string]string{
		"current_slide_number": "2",
	})
	require.NoError(t, err)
	assert.Equal(t, "ppt-presenter", got["identity"])
	assert.Equal(t, map[string]any{"current_slide_number": "2"}, got["attributes"])
}

func TestRoomClient_ErrorMapping(t *testing.T) {
	srv := roomServer(t, func(method string, req map[string]any) (int, any) {
		return http.StatusNotFound, map[string]string{"code": "not_found", "msg": "participant not found"}
	})
	defer srv.Close()

	_, err := newTestClient(srv).GetParticipant(context.Background(), "room-a", "ghost")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "participant not found")
}

func TestRoomClient_ListRoomsAndPing(t *testing.T) {
	srv := roomServer(t, func(method string, req map[string]any) (int, any) {
		assert.Equal(t, "ListRooms", method)
		return http.StatusOK, map[string]any{"rooms": []map[string]any{{"sid": "RM_1", "name": "room-a", "num_participants": 2}}}
	})
	defer srv.Close()

	c := newTestClient(srv)
	rooms, err := c.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, 2, rooms[0].NumParticipants)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestRoomClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	err := newTestClient(srv).RemoveParticipant(context.Background(), "room-a", "x")
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
}
