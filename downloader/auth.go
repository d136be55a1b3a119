package downloader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"sharefetch/internal"
	"sharefetch/utils"
)

// Session cookie names set by the backend on login and refresh
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// httpOnlyPrefix marks HttpOnly cookies in files exported by curl and browsers
const httpOnlyPrefix = "#HttpOnly_"

// CookieAuthManager implements the AuthManager interface with secure cookie handling
type CookieAuthManager struct {
	client  *utils.HTTPClient
	baseURL string

	// Secure in-memory cookie storage
	cookieStore map[string]*http.Cookie
	mutex       sync.RWMutex
}

// NewCookieAuthManager creates a new instance of CookieAuthManager. client
// and baseURL are only needed for RefreshSession.
func NewCookieAuthManager(client *utils.HTTPClient, baseURL string) *CookieAuthManager {
	return &CookieAuthManager{
		client:      client,
		baseURL:     baseURL,
		cookieStore: make(map[string]*http.Cookie),
	}
}

// LoadCookies loads cookies from a Netscape-format file
func (a *CookieAuthManager) LoadCookies(path string) (*internal.AuthContext, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie file: %w", err)
	}
	defer file.Close()

	a.mutex.Lock()
	defer a.mutex.Unlock()

	// Clear existing cookies for security
	a.clearCookies()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		}

		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cookie, err := a.parseNetscapeCookieLine(line)
		if err != nil {
			return nil, fmt.Errorf("invalid cookie format at line %d: %w", lineNum, err)
		}
		cookie.HttpOnly = httpOnly || cookie.HttpOnly

		a.cookieStore[cookie.Name] = cookie
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading cookie file: %w", err)
	}

	authContext := &internal.AuthContext{
		Cookies: make(map[string]*http.Cookie),
	}
	for name, cookie := range a.cookieStore {
		authContext.Cookies[name] = cookie

		switch name {
		case AccessTokenCookie:
			authContext.AccessToken = cookie.Value
			authContext.ExpiresAt = cookie.Expires
		case RefreshTokenCookie:
			authContext.RefreshToken = cookie.Value
		}
	}

	return authContext, nil
}

// parseNetscapeCookieLine parses a single line from Netscape cookie format
// Format: domain	flag	path	secure	expiration	name	value
func (a *CookieAuthManager) parseNetscapeCookieLine(line string) (*http.Cookie, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 7 {
		return nil, fmt.Errorf("expected 7 fields, got %d", len(fields))
	}

	domain := fields[0]
	path := fields[2]
	secureStr := fields[3]
	expirationStr := fields[4]
	name := fields[5]
	value := fields[6]

	if name == "" {
		return nil, fmt.Errorf("cookie name is empty")
	}

	secure := strings.EqualFold(secureStr, "TRUE")

	var expires time.Time
	if expirationStr != "0" {
		timestamp, err := strconv.ParseInt(expirationStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid expiration timestamp: %w", err)
		}
		expires = time.Unix(timestamp, 0)
	}

	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   domain,
		Path:     path,
		Expires:  expires,
		Secure:   secure,
		HttpOnly: true, // Default to HttpOnly for security
	}

	return cookie, nil
}

// ValidateSession checks that the session carries a usable access token.
// An expired or missing access token is reported even when a refresh token
// is present; callers may then try RefreshSession.
func (a *CookieAuthManager) ValidateSession(auth *internal.AuthContext) error {
	if auth == nil {
		return internal.NewAuthRequiredError("no session loaded")
	}

	if auth.AccessToken == "" && auth.RefreshToken == "" {
		return internal.NewAuthRequiredError("access_token or refresh_token cookie is required")
	}

	if auth.AccessToken == "" {
		return internal.NewAuthRequiredError("access token missing").
			WithContext("refreshable", true)
	}

	if !auth.ExpiresAt.IsZero() && time.Now().After(auth.ExpiresAt) {
		return internal.NewAuthRequiredError(fmt.Sprintf("session has expired at %v", auth.ExpiresAt.Format(time.RFC3339))).
			WithContext("refreshable", auth.RefreshToken != "")
	}

	return nil
}

// RefreshSession exchanges the refresh token for a new cookie pair via
// POST /auth/refresh. The HTTP client's jar receives the new cookies; auth
// is updated in place.
func (a *CookieAuthManager) RefreshSession(ctx context.Context, auth *internal.AuthContext) error {
	if auth == nil {
		return internal.NewAuthRequiredError("no session loaded")
	}
	if auth.RefreshToken == "" {
		return internal.NewAuthRequiredError("refresh_token cookie is required for session refresh")
	}
	if a.client == nil || a.baseURL == "" {
		return fmt.Errorf("session refresh is not configured")
	}

	if a.client.Jar() == nil {
		jar, err := a.Jar(auth, a.baseURL)
		if err != nil {
			return err
		}
		a.client.SetCookieJar(jar)
	}

	endpoint := utils.EndpointURL(a.baseURL, "auth", "refresh")
	resp, err := a.client.PostFormWithContext(ctx, endpoint, url.Values{})
	if err != nil {
		return internal.NewConnectionError(0, "refresh", err).WithURL(endpoint)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxMetaBody))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusUnprocessableEntity:
		msg := DefaultFieldPolicy.DecodeReason(body)
		if msg == "" {
			msg = "refresh token rejected"
		}
		return internal.NewAuthRequiredError(msg).
			WithSuggestion("Log in again and export fresh cookies")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return internal.NewConnectionError(resp.StatusCode, "refresh", nil).WithURL(endpoint)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()
	for _, c := range resp.Cookies() {
		switch c.Name {
		case AccessTokenCookie:
			auth.AccessToken = c.Value
			auth.ExpiresAt = cookieExpiry(c)
		case RefreshTokenCookie:
			auth.RefreshToken = c.Value
		default:
			continue
		}
		if auth.Cookies == nil {
			auth.Cookies = make(map[string]*http.Cookie)
		}
		auth.Cookies[c.Name] = c
		a.cookieStore[c.Name] = c
	}

	internal.LogDebug("Session refreshed, access token valid until %v", auth.ExpiresAt)
	return nil
}

func cookieExpiry(c *http.Cookie) time.Time {
	if c.MaxAge > 0 {
		return time.Now().Add(time.Duration(c.MaxAge) * time.Second)
	}
	return c.Expires
}

// Jar builds a cookie jar holding the session cookies, scoped to the host
// of baseURL. Domains recorded in the cookie file are ignored since the
// client only ever talks to one API.
func (a *CookieAuthManager) Jar(auth *internal.AuthContext, baseURL string) (http.CookieJar, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if auth == nil {
		return jar, nil
	}

	cookies := make([]*http.Cookie, 0, len(auth.Cookies))
	for _, c := range auth.Cookies {
		scoped := *c
		scoped.Domain = ""
		if scoped.Path == "" {
			scoped.Path = "/"
		}
		// the jar refuses secure cookies for plain-http hosts
		if u.Scheme != "https" {
			scoped.Secure = false
		}
		cookies = append(cookies, &scoped)
	}
	jar.SetCookies(u, cookies)
	return jar, nil
}

// clearCookies securely clears all stored cookies from memory
func (a *CookieAuthManager) clearCookies() {
	for name := range a.cookieStore {
		if cookie := a.cookieStore[name]; cookie != nil {
			cookie.Value = ""
		}
		delete(a.cookieStore, name)
	}
}

// Cleanup securely clears all sensitive data from memory
func (a *CookieAuthManager) Cleanup() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.clearCookies()
}
