package domain

import "time"

// SessionClaims is the verified payload of a session token.
type SessionClaims struct {
	TokenID   string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Result is the uniform outcome returned by every use case.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(message string) Result {
	return Result{Success: true, Message: message}
}

// Failed builds a failed result carrying an error code.
func Failed(code, message string) Result {
	return Result{Success: false, Message: message, Code: code}
}
