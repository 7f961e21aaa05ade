package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hds-conecte/conecte/internal/models"
)

// StreamNotifications follows the caller's live notification feed and calls fn
// for every new notification until ctx ends or the server closes the stream.
// ready, when non-nil, is called once the server confirmed the subscription.
func (c *Client) StreamNotifications(ctx context.Context, ready func(), fn func(models.Notification)) error {
	session, err := c.GetSession(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrNotAuthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/notifications/stream", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)

	// The stream outlives the default request timeout
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	var event string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if err := c.dispatchEvent(event, data.String(), ready, fn); err != nil {
				return err
			}
			event = ""
			data.Reset()
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("stream interrupted: %w", err)
	}
	return nil
}

func (c *Client) dispatchEvent(event, data string, ready func(), fn func(models.Notification)) error {
	switch event {
	case "ready":
		if ready != nil {
			ready()
		}
	case "notification":
		var n models.Notification
		if err := json.Unmarshal([]byte(data), &n); err != nil {
			return fmt.Errorf("failed to decode notification: %w", err)
		}
		fn(n)
	case "ping", "":
	default:
		c.logger.Debug().Str("event", event).Msg("Ignoring unknown stream event")
	}
	return nil
}
