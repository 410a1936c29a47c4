package livekit

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEvent = `{"event":"participant_joined","id":"EV_1","createdAt":"1700000000",
"room":{"sid":"RM_1","name":"room-a"},
"participant":{"sid":"PA_1","identity":"user-1","metadata":"pres-1","kind":"STANDARD","state":"ACTIVE"}}`

func webhookRequest(body []byte, token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook/livekit", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	req.Header.Set("Content-Type", "application/webhook+json")
	return req
}

func TestWebhookReceiver_Receive(t *testing.T) {
	body := []byte(sampleEvent)
	token, err := SignWebhook("key", "secret", body)
	require.NoError(t, err)

	ev, err := NewWebhookReceiver("key", "secret").Receive(webhookRequest(body, token))
	require.NoError(t, err)
	assert.Equal(t, "EV_1", ev.ID)
	assert.Equal(t, EventParticipantJoined, ev.Event)
	assert.Equal(t, "room-a", ev.RoomName())
	assert.Equal(t, int64(1700000000), ev.CreatedAt)
	require.NotNil(t, ev.Participant)
	assert.Equal(t, "pres-1", ev.Participant.Metadata)
	assert.Equal(t, KindStandard, ev.Participant.Kind)
	assert.True(t, ev.Participant.IsAudience())
}

func TestWebhookReceiver_Rejects(t *testing.T) {
	recv := NewWebhookReceiver("key", "secret")
	body := []byte(sampleEvent)

	_, err := recv.Receive(webhookRequest(body, ""))
	assert.ErrorIs(t, err, ErrMissingAuth)

	// 令牌签的是另一份请求体
	token, err := SignWebhook("key", "secret", []byte(`{"event":"room_started"}`))
	require.NoError(t, err)
	_, err = recv.Receive(webhookRequest(body, token))
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	forged, err := SignWebhook("key", "wrong", body)
	require.NoError(t, err)
	_, err = recv.Receive(webhookRequest(body, forged))
	assert.Error(t, err)

	unknownKey, err := SignWebhook("other-key", "secret", body)
	require.NoError(t, err)
	_, err = recv.Receive(webhookRequest(body, unknownKey))
	assert.Error(t, err)
}

func TestWebhookEvent_RoomNameNil(t *testing.T) {
	assert.Empty(t, (&WebhookEvent{}).RoomName())
}

func TestBodyChecksum(t *testing.T) {
	assert.Equal(t, "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=", BodyChecksum(nil))
}
