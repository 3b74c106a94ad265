package notifications

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrNotInitialized = errors.New("notifications not initialized")

var baseURL = "https://ntfy.sh"

var client *http.Client
var topic string
var initialized bool

// Init enables ntfy notifications on topic. An empty topic leaves them off.
func Init(ntfyTopic string) {
	if ntfyTopic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		initialized = false
		return
	}

	client = &http.Client{
		Timeout: 10 * time.Second,
	}
	topic = ntfyTopic
	initialized = true

	log.Info().
		Str("topic", topic).
		Msg("Ntfy notifications initialized")
}

// Send posts a notification to the configured ntfy topic.
func Send(title, message string) error {
	if !initialized {
		return ErrNotInitialized
	}

	payload := map[string]interface{}{
		"topic":   topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}
