package utils

import (
	"fmt"
	"net/http"
)

// CustomError represents a custom application error
type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (e *CustomError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// Common error constructors
func NewInternalServerError(message string) *CustomError {
	return &CustomError{
		Code:    http.StatusInternalServerError,
		Message: message,
	}
}

// Crawl specific errors
func NewConfigurationError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusBadRequest,
		Message: "Invalid crawl configuration",
		Detail:  detail,
	}
}

func NewCrawlError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusUnprocessableEntity,
		Message: "Crawl failed",
		Detail:  detail,
	}
}

// NewCaptchaAbortedError marks a crawl ended early by an unresolved
// verification challenge. The distinguished code lets callers branch on it.
func NewCaptchaAbortedError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusTemporaryRedirect,
		Message: "Verification challenge could not be resolved",
		Detail:  detail,
	}
}

// IsCaptchaAbortedError reports whether err is a captcha abort CustomError.
func IsCaptchaAbortedError(err error) bool {
	if customErr, ok := err.(*CustomError); ok {
		return customErr.Code == http.StatusTemporaryRedirect
	}
	return false
}
