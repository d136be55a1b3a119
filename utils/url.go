package utils

import (
	"fmt"
	"net/url"
	"strings"

	"sharefetch/internal"
)

// ShareURLInfo contains the parts of a share address the client cares about
type ShareURLInfo struct {
	OriginalURL string
	Host        string
	Token       internal.ShareToken
}

// ParseShareURL extracts the share token from a share address. Accepted
// forms, in priority order:
//
//	https://host/share.html?token=abc123   (token query parameter)
//	https://host/share/abc123              (segment after "share")
//	https://host/s/abc123                  (last non-empty path segment)
//	abc123                                 (bare token)
func ParseShareURL(raw string) (*ShareURLInfo, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, internal.NewInvalidTokenError("empty share link")
	}

	info := &ShareURLInfo{OriginalURL: raw}

	if !looksLikeURL(raw) {
		info.Token = internal.ShareToken(raw)
		return info, nil
	}

	parsedURL, err := url.Parse(raw)
	if err != nil {
		return nil, internal.NewInvalidTokenError(fmt.Sprintf("malformed share link: %v", err)).WithCause(err)
	}
	info.Host = strings.ToLower(parsedURL.Hostname())

	if token := parsedURL.Query().Get("token"); strings.TrimSpace(token) != "" {
		info.Token = internal.ShareToken(token)
		return info, nil
	}

	segments := pathSegments(parsedURL)
	for i, seg := range segments {
		if seg == "share" && i+1 < len(segments) {
			info.Token = internal.ShareToken(segments[i+1])
			return info, nil
		}
	}
	if n := len(segments); n > 0 && isSharePage(segments[n-1]) {
		return nil, internal.NewInvalidTokenError("no token in share link").WithURL(raw)
	}
	if len(segments) > 0 {
		info.Token = internal.ShareToken(segments[len(segments)-1])
		return info, nil
	}

	return nil, internal.NewInvalidTokenError("no token in share link").WithURL(raw)
}

// ExtractToken returns the share token for raw, or an empty token when
// none can be found. Callers hand the result to the resolver, which turns
// an empty token into the invalid-link state.
func ExtractToken(raw string) internal.ShareToken {
	info, err := ParseShareURL(raw)
	if err != nil {
		return ""
	}
	return info.Token
}

// isSharePage reports whether seg names the share page itself rather than
// a token
func isSharePage(seg string) bool {
	return seg == "share" || seg == "share.html"
}

func looksLikeURL(s string) bool {
	return strings.Contains(s, "://") || strings.HasPrefix(s, "/") || strings.Contains(s, "?")
}

func pathSegments(u *url.URL) []string {
	var segments []string
	for _, seg := range strings.Split(u.EscapedPath(), "/") {
		if seg == "" {
			continue
		}
		if unescaped, err := url.PathUnescape(seg); err == nil {
			seg = unescaped
		}
		segments = append(segments, seg)
	}
	return segments
}

// JoinURL resolves ref against base. Absolute refs are returned unchanged;
// server-relative refs such as "/share/abc" keep base's scheme and host.
func JoinURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid reference URL: %w", err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// EndpointURL builds base + path segments, escaping each segment
func EndpointURL(base string, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(escaped, "/")
}
