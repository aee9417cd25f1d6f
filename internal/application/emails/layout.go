package emails

import (
	"fmt"
	"html"
	"time"
)

const (
	brandName    = "BrokerDesk"
	brandURL     = "https://app.brokerdesk.io"
	supportEmail = "support@brokerdesk.io"

	colorPrimary = "#1D4ED8"
	colorText    = "#1F2937"
	colorMuted   = "#6B7280"
	colorBody    = "#F3F4F6"
)

// Layout wraps content in the branded transactional email shell.
func Layout(contentHTML string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>%[1]s</title>
  <style>
    body { margin: 0; padding: 0; background-color: %[4]s; font-family: -apple-system, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; color: %[2]s; }
    .content p { margin: 0 0 20px 0; font-size: 16px; line-height: 1.6; }
    .content h1 { font-size: 22px; margin: 0 0 18px 0; }
    .button { display: inline-block; background-color: %[3]s; color: #ffffff !important; padding: 12px 28px; border-radius: 6px; font-weight: 600; text-decoration: none; }
    .footer { color: %[5]s; font-size: 13px; }
  </style>
</head>
<body>
  <table role="presentation" width="100%%" cellspacing="0" cellpadding="0" style="background-color: %[4]s;">
    <tr><td align="center" style="padding: 40px 0;">
      <table role="presentation" width="600" cellspacing="0" cellpadding="0" style="background-color: #FFFFFF; border-radius: 8px;">
        <tr><td class="content" style="padding: 40px 48px 24px 48px;">%[6]s</td></tr>
        <tr><td style="padding: 0 48px 32px 48px;">
          <p class="footer">Questions? Write to <a href="mailto:%[7]s" style="color: %[3]s;">%[7]s</a>.</p>
          <p class="footer">&copy; %[8]d %[1]s. Brokerage services are subject to the terms of your account agreement.</p>
        </td></tr>
      </table>
    </td></tr>
  </table>
</body>
</html>`, brandName, colorText, colorPrimary, colorBody, colorMuted, contentHTML, supportEmail, time.Now().Year())
}

// EscapeHTML escapes HTML specials for safe interpolation.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}
