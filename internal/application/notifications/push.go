package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidToken means the provider no longer accepts the device token.
var ErrInvalidToken = errors.New("push: device token is no longer valid")

type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Sender delivers one message to one device.
type Sender interface {
	Send(ctx context.Context, token string, msg Message) error
}

// PushClient talks to an FCM-compatible HTTP API (PUSH_API_URL, PUSH_SERVER_KEY).
type PushClient struct {
	BaseURL   string
	ServerKey string
	Client    *http.Client
}

type pushRequest struct {
	To           string            `json:"to"`
	Notification pushNotification  `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type pushResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		Error string `json:"error"`
	} `json:"results"`
}

func (c *PushClient) Send(ctx context.Context, token string, msg Message) error {
	if c.ServerKey == "" || c.BaseURL == "" {
		return nil
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 10 * time.Second}
	}
	body, err := json.Marshal(pushRequest{
		To:           token,
		Notification: pushNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+"/fcm/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "key="+c.ServerKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push error: status %d body: %s", resp.StatusCode, string(raw))
	}
	var pr pushResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return fmt.Errorf("push response decode: %w", err)
	}
	for _, r := range pr.Results {
		switch r.Error {
		case "":
		case "NotRegistered", "InvalidRegistration", "MismatchSenderId":
			return ErrInvalidToken
		default:
			return fmt.Errorf("push rejected: %s", r.Error)
		}
	}
	return nil
}
