package downloader

import (
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// DefaultFilename is used when the response names no file
const DefaultFilename = "file"

// ResolveFilename picks the suggested name for a download response:
// the Content-Disposition filename (filename* preferred), then the
// X-Filename header, then DefaultFilename. Plain names are percent-decoded
// once; filename* values are already decoded by the MIME parser. Surrounding
// quotes are stripped.
func ResolveFilename(h http.Header) string {
	if name := filenameFromDisposition(h.Get("Content-Disposition")); name != "" {
		return name
	}
	if name := cleanFilename(h.Get("X-Filename"), true); name != "" {
		return name
	}
	return DefaultFilename
}

func filenameFromDisposition(cd string) string {
	if strings.TrimSpace(cd) == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(cd); err == nil {
		// ParseMediaType reports a decoded filename* under "filename"
		extended := strings.Contains(strings.ToLower(cd), "filename*")
		if name := cleanFilename(params["filename"], !extended); name != "" {
			return name
		}
	}
	// servers sometimes send unquoted names with spaces, which
	// ParseMediaType rejects
	lower := strings.ToLower(cd)
	idx := strings.Index(lower, "filename=")
	if idx < 0 {
		return ""
	}
	value := cd[idx+len("filename="):]
	if semi := strings.IndexByte(value, ';'); semi >= 0 && !strings.HasPrefix(strings.TrimSpace(value), `"`) {
		value = value[:semi]
	} else if strings.HasPrefix(strings.TrimSpace(value), `"`) {
		value = strings.TrimSpace(value)
		if end := strings.IndexByte(value[1:], '"'); end >= 0 {
			value = value[:end+2]
		}
	}
	return cleanFilename(value, true)
}

func cleanFilename(name string, unescape bool) string {
	name = stripQuotes(strings.TrimSpace(name))
	if unescape {
		if decoded, err := url.PathUnescape(name); err == nil {
			name = decoded
		}
	}
	return strings.TrimSpace(stripQuotes(name))
}

func stripQuotes(s string) string {
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = s[1 : len(s)-1]
			continue
		}
		break
	}
	return s
}
