package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw desk webhook body.
const SignatureHeader = "X-Desk-Signature"

type DeskTicket struct {
	LocalID        string
	Subject        string
	Description    string
	Priority       string
	RequesterEmail string
	Tags           []string
}

// Desk mirrors tickets into the external support desk.
type Desk interface {
	CreateTicket(ctx context.Context, t DeskTicket) (externalID string, err error)
}

// DeskClient talks to a Zendesk-compatible tickets API (SUPPORT_DESK_URL, SUPPORT_DESK_EMAIL,
// SUPPORT_DESK_TOKEN).
type DeskClient struct {
	BaseURL string
	Email   string
	Token   string
	Client  *http.Client
}

type deskRequest struct {
	Ticket deskTicketBody `json:"ticket"`
}

type deskTicketBody struct {
	Subject    string        `json:"subject"`
	Comment    deskComment   `json:"comment"`
	Priority   string        `json:"priority,omitempty"`
	ExternalID string        `json:"external_id,omitempty"`
	Requester  deskRequester `json:"requester"`
	Tags       []string      `json:"tags,omitempty"`
}

type deskComment struct {
	Body string `json:"body"`
}

type deskRequester struct {
	Email string `json:"email"`
}

type deskResponse struct {
	Ticket struct {
		ID int64 `json:"id"`
	} `json:"ticket"`
}

func (c *DeskClient) CreateTicket(ctx context.Context, t DeskTicket) (string, error) {
	if c.BaseURL == "" || c.Token == "" {
		return "", errors.New("support desk is not configured")
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	body, err := json.Marshal(deskRequest{Ticket: deskTicketBody{
		Subject:    t.Subject,
		Comment:    deskComment{Body: t.Description},
		Priority:   t.Priority,
		ExternalID: t.LocalID,
		Requester:  deskRequester{Email: t.RequesterEmail},
		Tags:       t.Tags,
	}})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+"/api/v2/tickets.json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.Email+"/token", c.Token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("support desk request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("support desk returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out deskResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("support desk response: %w", err)
	}
	if out.Ticket.ID == 0 {
		return "", errors.New("support desk returned no ticket id")
	}
	return strconv.FormatInt(out.Ticket.ID, 10), nil
}
