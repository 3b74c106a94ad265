package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withServer(t *testing.T, status int) *[]map[string]string {
	t.Helper()
	var received []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		received = append(received, body)
		w.WriteHeader(status)
	}))
	orig := baseURL
	baseURL = srv.URL
	t.Cleanup(func() {
		srv.Close()
		baseURL = orig
		initialized = false
	})
	return &received
}

func TestSend_NotInitialized(t *testing.T) {
	Init("")
	assert.ErrorIs(t, Send("title", "message"), ErrNotInitialized)
}

func TestSend_PostsPayload(t *testing.T) {
	received := withServer(t, http.StatusOK)
	Init("thermostat-alerts")

	require.NoError(t, Send("office", "heater stuck on"))
	require.Len(t, *received, 1)
	assert.Equal(t, "thermostat-alerts", (*received)[0]["topic"])
	assert.Equal(t, "office", (*received)[0]["title"])
	assert.Equal(t, "heater stuck on", (*received)[0]["message"])
}

func TestSend_NonSuccessStatus(t *testing.T) {
	withServer(t, http.StatusInternalServerError)
	Init("thermostat-alerts")

	assert.Error(t, Send("office", "heater stuck on"))
}
