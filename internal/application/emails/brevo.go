package emails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const brevoAPI = "https://api.brevo.com/v3/smtp/email"

// BrevoSendRequest matches Brevo API v3 send transactional email body.
type BrevoSendRequest struct {
	Sender      BrevoContact   `json:"sender"`
	To          []BrevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	ReplyTo     *BrevoContact  `json:"replyTo,omitempty"`
}

type BrevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Sender sends account lifecycle emails. Nil = no-op.
type Sender interface {
	SendWelcome(ctx context.Context, toEmail, name string) error
	SendKYCDecision(ctx context.Context, toEmail, name string, approved bool) error
	SendWithdrawalProcessed(ctx context.Context, toEmail, name, amount, currency string, approved bool) error
}

// BrevoClient sends emails via the Brevo (Sendinblue) API: SENDINBLUE_API_KEY, MAIL_FROM.
type BrevoClient struct {
	APIKey   string
	MailFrom string
	Endpoint string
	Client   *http.Client
}

func (c *BrevoClient) from() string {
	if c.MailFrom != "" {
		return c.MailFrom
	}
	return "noreply@brokerdesk.io"
}

func (c *BrevoClient) send(ctx context.Context, toEmail, subject, htmlBody string) error {
	if c.APIKey == "" {
		return nil
	}
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = brevoAPI
	}
	body, err := json.Marshal(BrevoSendRequest{
		Sender:      BrevoContact{Email: c.from(), Name: brandName},
		To:          []BrevoContact{{Email: toEmail}},
		Subject:     subject,
		HTMLContent: htmlBody,
		ReplyTo:     &BrevoContact{Email: supportEmail, Name: brandName + " Support"},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: status %d", resp.StatusCode)
	}
	return nil
}

func (c *BrevoClient) SendWelcome(ctx context.Context, toEmail, name string) error {
	return c.send(ctx, toEmail, "Welcome to "+brandName, Layout(welcomeContent(displayName(name))))
}

func (c *BrevoClient) SendKYCDecision(ctx context.Context, toEmail, name string, approved bool) error {
	subject := "Your identity verification is complete"
	if !approved {
		subject = "We could not verify your identity"
	}
	return c.send(ctx, toEmail, subject, Layout(kycContent(displayName(name), approved)))
}

func (c *BrevoClient) SendWithdrawalProcessed(ctx context.Context, toEmail, name, amount, currency string, approved bool) error {
	subject := "Your withdrawal has been sent"
	if !approved {
		subject = "Your withdrawal was declined"
	}
	return c.send(ctx, toEmail, subject, Layout(withdrawalContent(displayName(name), amount, currency, approved)))
}

func displayName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

func welcomeContent(name string) string {
	return fmt.Sprintf(`
    <h1>Welcome, %s!</h1>
    <p>Your %s account has been created. Before you can fund a portfolio or place trades we need to verify your identity.</p>
    <center><a href="%s/verify" class="button">Verify my identity</a></center>
    <p style="margin-top: 20px; font-size: 14px; color: #666;">If you did not sign up for this account, please contact support immediately.</p>
`, EscapeHTML(name), brandName, brandURL)
}

func kycContent(name string, approved bool) string {
	if approved {
		return fmt.Sprintf(`
    <h1>You're verified, %s</h1>
    <p>Your identity check passed. You can now deposit funds and trade.</p>
    <center><a href="%s/portfolios" class="button">Open my portfolios</a></center>
`, EscapeHTML(name), brandURL)
	}
	return fmt.Sprintf(`
    <h1>Hi %s,</h1>
    <p>We were unable to verify your identity from the documents provided. Please contact support to review your application.</p>
`, EscapeHTML(name))
}

func withdrawalContent(name, amount, currency string, approved bool) string {
	status := "has been approved and is on its way to your bank"
	if !approved {
		status = "was declined and the funds have been returned to your available balance"
	}
	return fmt.Sprintf(`
    <h1>Hi %s,</h1>
    <p>Your withdrawal of <strong>%s %s</strong> %s.</p>
`, EscapeHTML(name), EscapeHTML(amount), EscapeHTML(currency), status)
}
