package internal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different types of errors
type ErrorType int

const (
	ErrInvalidToken ErrorType = iota
	ErrNotFound
	ErrExpired
	ErrLimitReached
	ErrConnection
	ErrInvalidResponse
	ErrAuthRequired
	ErrSaveFailed
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// ShareError is an error produced while talking to the Share API
type ShareError struct {
	Code       int                    `json:"code"`
	Message    string                 `json:"message"`
	Type       ErrorType              `json:"type"`
	Severity   ErrorSeverity          `json:"severity"`
	URL        string                 `json:"url,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	cause      error
}

// Error implements the error interface
func (e *ShareError) Error() string {
	var parts []string

	if e.Code != 0 {
		parts = append(parts, fmt.Sprintf("share error (code: %d, type: %s)", e.Code, e.Type.String()))
	} else {
		parts = append(parts, fmt.Sprintf("share error (type: %s)", e.Type.String()))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.cause != nil {
		parts = append(parts, e.cause.Error())
	}

	return strings.Join(parts, " - ")
}

// Unwrap returns the underlying cause, if any
func (e *ShareError) Unwrap() error {
	return e.cause
}

// DetailedError returns a detailed error message with all available information
func (e *ShareError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s Error", e.Severity.String(), e.Type.String()))

	if e.Code != 0 {
		parts = append(parts, fmt.Sprintf("Code: %d", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, fmt.Sprintf("Message: %s", e.Message))
	}
	if e.cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.cause))
	}
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("URL: %s", redactSensitiveURL(e.URL)))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrInvalidToken:
		return "InvalidToken"
	case ErrNotFound:
		return "NotFound"
	case ErrExpired:
		return "Expired"
	case ErrLimitReached:
		return "LimitReached"
	case ErrConnection:
		return "ConnectionError"
	case ErrInvalidResponse:
		return "InvalidResponse"
	case ErrAuthRequired:
		return "AuthRequired"
	case ErrSaveFailed:
		return "SaveFailed"
	default:
		return "Unknown"
	}
}

// String returns the string representation of ErrorSeverity
func (es ErrorSeverity) String() string {
	switch es {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// StateKind maps the error to the resolution state it produces. Invalid
// tokens, unclassified responses and transport failures all land in
// StateConnectionError.
func (e *ShareError) StateKind() StateKind {
	switch e.Type {
	case ErrNotFound:
		return StateNotFound
	case ErrExpired:
		return StateExpired
	case ErrLimitReached:
		return StateLimitReached
	default:
		return StateConnectionError
	}
}

// NewShareError creates a new ShareError with default suggestion and severity
func NewShareError(code int, message string, errorType ErrorType) *ShareError {
	return &ShareError{
		Code:       code,
		Message:    message,
		Type:       errorType,
		Severity:   getDefaultSeverity(errorType),
		Suggestion: getDefaultSuggestion(errorType, code),
		Context:    make(map[string]interface{}),
	}
}

// WithCause attaches the underlying error
func (e *ShareError) WithCause(err error) *ShareError {
	e.cause = err
	return e
}

// WithSuggestion adds a custom suggestion to the error
func (e *ShareError) WithSuggestion(suggestion string) *ShareError {
	e.Suggestion = suggestion
	return e
}

// WithURL adds URL context to the error (redacted in logs)
func (e *ShareError) WithURL(url string) *ShareError {
	e.URL = url
	return e
}

// WithContext adds context information to the error
func (e *ShareError) WithContext(key string, value interface{}) *ShareError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsCritical returns true if the error is critical and should stop execution
func (e *ShareError) IsCritical() bool {
	return e.Severity == SeverityCritical
}

// AsShareError extracts a *ShareError from an error chain
func AsShareError(err error) (*ShareError, bool) {
	var se *ShareError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsErrorType reports whether err carries a ShareError of the given type
func IsErrorType(err error, t ErrorType) bool {
	se, ok := AsShareError(err)
	return ok && se.Type == t
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field      string                 `json:"field"`
	Message    string                 `json:"message"`
	Value      interface{}            `json:"value,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := []string{fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, " - ")
}

// DetailedError returns a detailed validation error message
func (e *ValidationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Validation Error for field '%s'", e.Field))
	parts = append(parts, fmt.Sprintf("Message: %s", e.Message))

	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("Provided value: %v", e.Value))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewValidationErrorWithValue creates a ValidationError with the invalid value
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Context: make(map[string]interface{}),
	}
}

// WithSuggestion adds a suggestion to the validation error
func (e *ValidationError) WithSuggestion(suggestion string) *ValidationError {
	e.Suggestion = suggestion
	return e
}

// WithContext adds context to the validation error
func (e *ValidationError) WithContext(key string, value interface{}) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func getDefaultSuggestion(errorType ErrorType, code int) string {
	switch errorType {
	case ErrInvalidToken:
		return "Check that the share link was copied completely"
	case ErrNotFound:
		return "The share link does not exist. Ask the owner for a new link"
	case ErrExpired:
		return "The share link has expired. Ask the owner to share the file again"
	case ErrLimitReached:
		return "The share link has no downloads left. Ask the owner for a new link"
	case ErrConnection:
		if code >= 500 {
			return "The server reported an error. Try again later"
		}
		return "Check your connection and the --api-base setting, then try again"
	case ErrInvalidResponse:
		return "The server sent a response that could not be understood"
	case ErrAuthRequired:
		return "Provide session cookies with --cookies or SHAREFETCH_COOKIES"
	case ErrSaveFailed:
		return "Check free disk space and permissions of the output directory"
	default:
		return "Please check the error details and try again"
	}
}

func getDefaultSeverity(errorType ErrorType) ErrorSeverity {
	switch errorType {
	case ErrConnection:
		return SeverityWarning
	case ErrSaveFailed:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// redactSensitiveURL drops the query string of a URL
func redactSensitiveURL(url string) string {
	if i := strings.Index(url, "?"); i >= 0 {
		return url[:i] + "?[REDACTED]"
	}
	return url
}

// NewInvalidTokenError creates the error for an empty or unusable share token
func NewInvalidTokenError(reason string) *ShareError {
	return NewShareError(0, fmt.Sprintf("invalid link: %s", reason), ErrInvalidToken)
}

// NewNotFoundError creates the error for an unknown share token
func NewNotFoundError(url string) *ShareError {
	return NewShareError(404, "Link not found", ErrNotFound).WithURL(url)
}

// NewExpiredError creates the error for an expired share link
func NewExpiredError(url, detail string) *ShareError {
	if detail == "" {
		detail = "Link expired"
	}
	return NewShareError(410, detail, ErrExpired).WithURL(url)
}

// NewLimitReachedError creates the error for a share link out of downloads
func NewLimitReachedError(url, detail string) *ShareError {
	if detail == "" {
		detail = "Download limit reached"
	}
	return NewShareError(410, detail, ErrLimitReached).WithURL(url)
}

// NewConnectionError creates the error for transport failures and
// unclassified non-2xx responses. code is 0 for transport failures.
func NewConnectionError(code int, operation string, cause error) *ShareError {
	msg := fmt.Sprintf("connection error during %s", operation)
	if code != 0 {
		msg = fmt.Sprintf("unexpected HTTP status %d during %s", code, operation)
	}
	return NewShareError(code, msg, ErrConnection).WithCause(cause)
}

// NewInvalidResponseError creates the error for undecodable responses
func NewInvalidResponseError(reason string, cause error) *ShareError {
	return NewShareError(0, fmt.Sprintf("invalid response: %s", reason), ErrInvalidResponse).WithCause(cause)
}

// NewAuthRequiredError creates the error for missing or expired sessions
func NewAuthRequiredError(message string) *ShareError {
	return NewShareError(401, message, ErrAuthRequired)
}

// NewSaveFailedError creates the error for local write failures
func NewSaveFailedError(path string, cause error) *ShareError {
	return NewShareError(0, "failed to save file", ErrSaveFailed).
		WithCause(cause).
		WithContext("path", path)
}
