package internal

import (
	"context"
	"io"
	"net/http"
)

// Payload is the body of a successful download response
type Payload struct {
	Body   io.ReadCloser
	Size   int64 // -1 when the server did not send Content-Length
	Header http.Header
}

// ShareAPI is the remote contract consumed by the resolver
type ShareAPI interface {
	Info(ctx context.Context, token ShareToken) (*ShareMetadata, error)
	Download(ctx context.Context, token ShareToken) (*Payload, error)
}

// ShareLinkCreator mints new share links for an authenticated owner
type ShareLinkCreator interface {
	CreateLink(ctx context.Context, fileID int64, opts ShareLinkOptions) (*ShareLink, error)
}

// FileSaver persists a downloaded payload under the suggested filename
type FileSaver interface {
	Save(ctx context.Context, filename string, body io.Reader, size int64) error
}

// Display renders a resolution state
type Display interface {
	Render(state ResolutionState) error
}

// AuthManager handles session cookies
type AuthManager interface {
	LoadCookies(path string) (*AuthContext, error)
	ValidateSession(auth *AuthContext) error
	RefreshSession(ctx context.Context, auth *AuthContext) error
}

// RateLimiter controls bandwidth usage
type RateLimiter interface {
	Wait(ctx context.Context, n int) error
	SetRate(bytesPerSecond int64)
}
