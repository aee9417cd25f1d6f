package auth

import "brokerdesk-backend/internal/pkg/apperr"

var (
	ErrEmailPasswordRequired = apperr.Validation("credentials_required", "Email and password are required")
	ErrInvalidCredentials    = apperr.Unauthorized("Invalid email or password")
	ErrAccountSuspended      = apperr.Forbidden("account_suspended", "Account is suspended")
	ErrNotAuthenticated      = apperr.Unauthorized("Not authenticated")
)
