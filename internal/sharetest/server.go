// Package sharetest provides an in-process Share API for tests. It serves the
// same routes and status codes as the real backend: info, download, share
// link creation and session refresh.
package sharetest

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Header modes for download responses
const (
	FilenameDisposition = "disposition"
	FilenameXHeader     = "x-filename"
	FilenameNone        = "none"
)

// backend timestamps carry no zone
const isoLayout = "2006-01-02T15:04:05.999999"

// Link is a share link held by the fake server
type Link struct {
	Token         string
	FileID        int64
	Filename      string
	Content       []byte
	ExpiresAt     time.Time // zero means never
	MaxDownloads  int       // 0 means unlimited
	DownloadCount int
}

func (l *Link) expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && now.After(l.ExpiresAt)
}

func (l *Link) limitReached() bool {
	return l.MaxDownloads > 0 && l.DownloadCount >= l.MaxDownloads
}

type file struct {
	name    string
	content []byte
}

// Options tweak how the server answers
type Options struct {
	// UsedField names the download counter in info bodies
	UsedField string
	// FilenameHeader selects how download responses name the file
	FilenameHeader string
	// InfoGoneOnLimit answers info with 410 once the limit is reached
	// instead of 200 with the exhausted counter
	InfoGoneOnLimit bool
	// TruncateDownload sends half the body and then drops the connection
	TruncateDownload bool
	// InfoStatus, when non-zero, is returned by every info call
	InfoStatus int
}

// Server is a fake Share API backed by an httptest.Server
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	opts         Options
	links        map[string]*Link
	files        map[int64]file
	accessToken  string
	refreshToken string

	infoCalls     atomic.Int64
	downloadCalls atomic.Int64
	createCalls   atomic.Int64
	refreshCalls  atomic.Int64
}

// New starts a fake Share API. Callers must Close it.
func New(opts Options) *Server {
	if opts.UsedField == "" {
		opts.UsedField = "downloads_count"
	}
	if opts.FilenameHeader == "" {
		opts.FilenameHeader = FilenameDisposition
	}

	s := &Server{
		opts:  opts,
		links: make(map[string]*Link),
		files: make(map[int64]file),
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Route("/share", func(r chi.Router) {
		r.Get("/{token}/info", s.handleInfo)
		r.Get("/{token}/download", s.handleDownload)
		r.Get("/{token}", s.handleDownload)
		r.Post("/{fileID}/", s.handleCreate)
	})
	r.Post("/auth/refresh", s.handleRefresh)
	return r
}

// SetOptions replaces the server options
func (s *Server) SetOptions(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opts.UsedField == "" {
		opts.UsedField = "downloads_count"
	}
	if opts.FilenameHeader == "" {
		opts.FilenameHeader = FilenameDisposition
	}
	s.opts = opts
}

// AddLink registers a share link and returns its token. A token is
// generated when link.Token is empty.
func (s *Server) AddLink(link Link) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if link.Token == "" {
		link.Token = uuid.NewString()
	}
	l := link
	s.links[l.Token] = &l
	return l.Token
}

// Link returns a snapshot of a registered link
func (s *Server) Link(token string) (Link, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[token]
	if !ok {
		return Link{}, false
	}
	return *l, true
}

// AddFile registers a file the session owner may share
func (s *Server) AddFile(id int64, name string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = file{name: name, content: content}
}

// SetSession sets the cookie values accepted as a logged-in session
func (s *Server) SetSession(accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = accessToken
	s.refreshToken = refreshToken
}

// AccessToken returns the currently valid access token
func (s *Server) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

func (s *Server) InfoCalls() int     { return int(s.infoCalls.Load()) }
func (s *Server) DownloadCalls() int { return int(s.downloadCalls.Load()) }
func (s *Server) CreateCalls() int   { return int(s.createCalls.Load()) }
func (s *Server) RefreshCalls() int  { return int(s.refreshCalls.Load()) }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.infoCalls.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.InfoStatus != 0 {
		writeDetail(w, s.opts.InfoStatus, http.StatusText(s.opts.InfoStatus))
		return
	}

	link, ok := s.links[chi.URLParam(r, "token")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Link not found")
		return
	}
	if link.expired(time.Now()) {
		writeDetail(w, http.StatusGone, "Link expired")
		return
	}
	if s.opts.InfoGoneOnLimit && link.limitReached() {
		writeDetail(w, http.StatusGone, "Download limit reached")
		return
	}

	body := map[string]interface{}{
		"file": map[string]interface{}{
			"original_filename": link.Filename,
			"size":              len(link.Content),
		},
		"max_downloads":  link.MaxDownloads,
		s.opts.UsedField: link.DownloadCount,
	}
	if !link.ExpiresAt.IsZero() {
		body["expires_at"] = link.ExpiresAt.UTC().Format(isoLayout)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.downloadCalls.Add(1)

	s.mu.Lock()
	link, ok := s.links[chi.URLParam(r, "token")]
	if !ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Link not found")
		return
	}
	if link.expired(time.Now()) {
		s.mu.Unlock()
		writeDetail(w, http.StatusGone, "Link expired")
		return
	}
	if link.limitReached() {
		s.mu.Unlock()
		writeDetail(w, http.StatusGone, "Download limit reached")
		return
	}
	link.DownloadCount++
	content := link.Content
	name := link.Filename
	opts := s.opts
	s.mu.Unlock()

	switch opts.FilenameHeader {
	case FilenameDisposition:
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	case FilenameXHeader:
		w.Header().Set("X-Filename", name)
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)

	if opts.TruncateDownload {
		_, _ = w.Write(content[:len(content)/2])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		panic(http.ErrAbortHandler)
	}
	_, _ = w.Write(content)
}

func (s *Server) authorized(r *http.Request) bool {
	c, err := r.Cookie("access_token")
	return err == nil && s.accessToken != "" && c.Value == s.accessToken
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.createCalls.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authorized(r) {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	fileID, err := strconv.ParseInt(chi.URLParam(r, "fileID"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "file_id must be an integer")
		return
	}
	f, ok := s.files[fileID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "File not found or access denied")
		return
	}

	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid form")
		return
	}
	hours := 24
	if v := r.PostFormValue("expires_hours"); v != "" {
		if hours, err = strconv.Atoi(v); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "expires_hours must be an integer")
			return
		}
	}
	maxDownloads := 1
	if v := r.PostFormValue("max_downloads"); v != "" {
		if maxDownloads, err = strconv.Atoi(v); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "max_downloads must be an integer")
			return
		}
	}

	link := &Link{
		Token:        uuid.NewString(),
		FileID:       fileID,
		Filename:     f.name,
		Content:      f.content,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(hours) * time.Hour),
		MaxDownloads: maxDownloads,
	}
	s.links[link.Token] = link

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"share_url":     "/share/" + link.Token,
		"expires_at":    link.ExpiresAt.Format(isoLayout),
		"max_downloads": link.MaxDownloads,
		"token":         link.Token,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := r.Cookie("refresh_token")
	if err != nil || s.refreshToken == "" || c.Value != s.refreshToken {
		writeDetail(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	s.accessToken = uuid.NewString()
	http.SetCookie(w, &http.Cookie{Name: "access_token", Value: s.accessToken, Path: "/", MaxAge: 30 * 60, HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: s.refreshToken, Path: "/", MaxAge: 7 * 24 * 60 * 60, HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Token refreshed"})
}
