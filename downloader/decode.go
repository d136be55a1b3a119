package downloader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"sharefetch/internal"
)

// FieldPolicy lists, per logical field, the response keys to try in order.
// The first key present with a non-null, non-blank value wins.
type FieldPolicy struct {
	Name     []string
	Size     []string
	Used     []string
	ShareURL []string
	Reason   []string
}

// DefaultFieldPolicy covers every field spelling the Share API has used
var DefaultFieldPolicy = FieldPolicy{
	Name:     []string{"original_filename", "filename", "name"},
	Size:     []string{"size"},
	Used:     []string{"downloads_count", "download_count"},
	ShareURL: []string{"share_url", "url"},
	Reason:   []string{"detail", "reason", "message"},
}

// timestamp layouts accepted for expires_at; zone-less values are UTC
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// stringToTimeHook converts ISO-8601 strings and unix seconds into time.Time
func stringToTimeHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return parseTimestamp(v)
	case json.Number:
		secs, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("invalid unix timestamp %q", v.String())
		}
		return time.Unix(secs, 0).UTC(), nil
	}
	return data, nil
}

func decodeInto(input interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(stringToTimeHook),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func parseObject(body []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("response is not a JSON object")
	}
	return obj, nil
}

// optionalValue maps blank strings to nil so they decode as absent
func optionalValue(v interface{}) interface{} {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	return v
}

func firstPresent(obj map[string]interface{}, keys []string) interface{} {
	for _, k := range keys {
		if v, ok := obj[k]; ok && optionalValue(v) != nil {
			return v
		}
	}
	return nil
}

type infoFields struct {
	Name          string     `mapstructure:"name"`
	Size          int64      `mapstructure:"size"`
	ExpiresAt     *time.Time `mapstructure:"expires_at"`
	MaxDownloads  int        `mapstructure:"max_downloads"`
	DownloadsUsed int        `mapstructure:"downloads_used"`
}

// DecodeMetadata decodes a /share/{token}/info body
func (p FieldPolicy) DecodeMetadata(body []byte) (*internal.ShareMetadata, error) {
	obj, err := parseObject(body)
	if err != nil {
		return nil, internal.NewInvalidResponseError("info body is not valid JSON", err)
	}

	file, ok := obj["file"].(map[string]interface{})
	if !ok {
		return nil, internal.NewInvalidResponseError("info body has no file object", nil)
	}

	normalized := map[string]interface{}{
		"name":           firstPresent(file, p.Name),
		"size":           firstPresent(file, p.Size),
		"expires_at":     optionalValue(obj["expires_at"]),
		"max_downloads":  optionalValue(obj["max_downloads"]),
		"downloads_used": firstPresent(obj, p.Used),
	}

	var f infoFields
	if err := decodeInto(normalized, &f); err != nil {
		return nil, internal.NewInvalidResponseError("info body has malformed fields", err)
	}

	if f.Size < 0 {
		f.Size = 0
	}
	if f.MaxDownloads < 0 {
		f.MaxDownloads = 0
	}
	if f.DownloadsUsed < 0 {
		f.DownloadsUsed = 0
	}

	return &internal.ShareMetadata{
		ArtifactName:  f.Name,
		ArtifactSize:  f.Size,
		ExpiresAt:     f.ExpiresAt,
		MaxDownloads:  f.MaxDownloads,
		DownloadsUsed: f.DownloadsUsed,
	}, nil
}

type linkFields struct {
	URL          string     `mapstructure:"url"`
	Token        string     `mapstructure:"token"`
	ExpiresAt    *time.Time `mapstructure:"expires_at"`
	MaxDownloads int        `mapstructure:"max_downloads"`
}

// DecodeShareLink decodes the body returned when a share link is created.
// URL is returned as sent; callers resolve it against the API base.
func (p FieldPolicy) DecodeShareLink(body []byte) (*internal.ShareLink, error) {
	obj, err := parseObject(body)
	if err != nil {
		return nil, internal.NewInvalidResponseError("share link body is not valid JSON", err)
	}

	normalized := map[string]interface{}{
		"url":           firstPresent(obj, p.ShareURL),
		"token":         obj["token"],
		"expires_at":    optionalValue(obj["expires_at"]),
		"max_downloads": optionalValue(obj["max_downloads"]),
	}

	var f linkFields
	if err := decodeInto(normalized, &f); err != nil {
		return nil, internal.NewInvalidResponseError("share link body has malformed fields", err)
	}
	if f.URL == "" && f.Token == "" {
		return nil, internal.NewInvalidResponseError("share link body has neither url nor token", nil)
	}

	return &internal.ShareLink{
		Token:        internal.ShareToken(f.Token),
		URL:          f.URL,
		ExpiresAt:    f.ExpiresAt,
		MaxDownloads: f.MaxDownloads,
	}, nil
}

// DecodeReason extracts the server's explanation from an error body. Non-JSON
// bodies and structured details yield "".
func (p FieldPolicy) DecodeReason(body []byte) string {
	obj, err := parseObject(body)
	if err != nil {
		return ""
	}
	if s, ok := firstPresent(obj, p.Reason).(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// isLimitReason reports whether a 410 reason names the download limit.
// Anything else, including an empty reason, means the link expired.
func isLimitReason(reason string) bool {
	return strings.Contains(strings.ToLower(reason), "limit")
}
