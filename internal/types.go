package internal

import (
	"net/http"
	"strings"
	"time"
)

// ShareToken is the opaque identifier taken from a share link
type ShareToken string

// IsEmpty reports whether the token is empty or only whitespace
func (t ShareToken) IsEmpty() bool {
	return strings.TrimSpace(string(t)) == ""
}

// ShareMetadata is a snapshot of a shared artifact as reported by the Share API
type ShareMetadata struct {
	ArtifactName  string     `json:"artifact_name" yaml:"artifact_name"`
	ArtifactSize  int64      `json:"artifact_size" yaml:"artifact_size"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	MaxDownloads  int        `json:"max_downloads" yaml:"max_downloads"`
	DownloadsUsed int        `json:"downloads_used" yaml:"downloads_used"`
}

// Remaining returns the number of downloads left. unlimited is true when the
// link has no download cap, in which case n is meaningless.
func (m *ShareMetadata) Remaining() (n int, unlimited bool) {
	if m.MaxDownloads <= 0 {
		return 0, true
	}
	return m.MaxDownloads - m.DownloadsUsed, false
}

// DownloadAvailable reports whether the metadata allows another download
func (m *ShareMetadata) DownloadAvailable() bool {
	n, unlimited := m.Remaining()
	return unlimited || n > 0
}

// StateKind enumerates the resolution states of a share link
type StateKind int

const (
	StateLoading StateKind = iota
	StateInfo
	StateExpired
	StateLimitReached
	StateNotFound
	StateConnectionError
)

// String returns the string representation of the state kind
func (k StateKind) String() string {
	switch k {
	case StateLoading:
		return "loading"
	case StateInfo:
		return "info"
	case StateExpired:
		return "expired"
	case StateLimitReached:
		return "limit_reached"
	case StateNotFound:
		return "not_found"
	case StateConnectionError:
		return "connection_error"
	default:
		return "unknown"
	}
}

// ResolutionState is the single piece of mutable state owned by a resolver.
// Metadata is set for StateInfo and kept for StateLimitReached when the limit
// was discovered from a successful info response.
type ResolutionState struct {
	Kind     StateKind
	Token    ShareToken
	Metadata *ShareMetadata
	Message  string
	Err      error
}

// DownloadAvailable reports whether the download action may be offered
func (s ResolutionState) DownloadAvailable() bool {
	return s.Kind == StateInfo && s.Metadata != nil && s.Metadata.DownloadAvailable()
}

// StateView is the flattened form of a ResolutionState handed to renderers
type StateView struct {
	State              string     `json:"state" yaml:"state"`
	Token              string     `json:"token,omitempty" yaml:"token,omitempty"`
	Filename           string     `json:"filename,omitempty" yaml:"filename,omitempty"`
	Size               int64      `json:"size,omitempty" yaml:"size,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	MaxDownloads       int        `json:"max_downloads,omitempty" yaml:"max_downloads,omitempty"`
	DownloadsUsed      int        `json:"downloads_used,omitempty" yaml:"downloads_used,omitempty"`
	DownloadsRemaining *int       `json:"downloads_remaining,omitempty" yaml:"downloads_remaining,omitempty"`
	DownloadAvailable  bool       `json:"download_available" yaml:"download_available"`
	Message            string     `json:"message,omitempty" yaml:"message,omitempty"`
}

// View flattens the state for rendering. DownloadsRemaining is nil for
// unlimited links.
func (s ResolutionState) View() StateView {
	v := StateView{
		State:             s.Kind.String(),
		Token:             string(s.Token),
		DownloadAvailable: s.DownloadAvailable(),
		Message:           s.Message,
	}
	if v.Message == "" && s.Err != nil {
		v.Message = s.Err.Error()
	}
	if m := s.Metadata; m != nil {
		v.Filename = m.ArtifactName
		v.Size = m.ArtifactSize
		v.ExpiresAt = m.ExpiresAt
		v.MaxDownloads = m.MaxDownloads
		v.DownloadsUsed = m.DownloadsUsed
		if n, unlimited := m.Remaining(); !unlimited {
			v.DownloadsRemaining = &n
		}
	}
	return v
}

// ShareLinkOptions controls creation of a new share link
type ShareLinkOptions struct {
	ExpiresHours int
	MaxDownloads int
}

// ShareLink is a share link returned by the create endpoint
type ShareLink struct {
	Token        ShareToken `json:"token" yaml:"token"`
	URL          string     `json:"url" yaml:"url"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	MaxDownloads int        `json:"max_downloads" yaml:"max_downloads"`
}

// AuthContext holds the session cookies used for authenticated calls
type AuthContext struct {
	Cookies      map[string]*http.Cookie
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
