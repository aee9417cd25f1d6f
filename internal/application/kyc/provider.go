package kyc

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

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Signature"

type CheckRequest struct {
	ApplicantID string `json:"applicant_id"`
	Email       string `json:"email"`
	Fullname    string `json:"fullname"`
}

type Check struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Provider opens identity-verification checks.
type Provider interface {
	CreateCheck(ctx context.Context, req CheckRequest) (*Check, error)
}

// Client talks to the identity-verification HTTP API (KYC_BASE_URL, KYC_API_TOKEN).
type Client struct {
	BaseURL  string
	APIToken string
	Client   *http.Client
}

func (c *Client) CreateCheck(ctx context.Context, in CheckRequest) (*Check, error) {
	if c.BaseURL == "" || c.APIToken == "" {
		return nil, errors.New("kyc: provider is not configured")
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+"/checks", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token token="+c.APIToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kyc request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("kyc provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out Check
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("kyc response: %w", err)
	}
	if out.ID == "" {
		return nil, errors.New("kyc provider returned no check id")
	}
	return &out, nil
}
