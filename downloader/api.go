package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"sharefetch/internal"
	"sharefetch/utils"
)

// maxMetaBody bounds JSON bodies read from the Share API
const maxMetaBody = 1 << 20

// HTTPShareAPI talks to the Share API over HTTP. It implements both
// internal.ShareAPI and internal.ShareLinkCreator.
type HTTPShareAPI struct {
	client  *utils.HTTPClient
	baseURL string
	route   string
	policy  FieldPolicy
}

// NewHTTPShareAPI creates a Share API client rooted at baseURL. route selects
// the download endpoint: internal.DownloadRouteDirect or
// internal.DownloadRouteDownload.
func NewHTTPShareAPI(client *utils.HTTPClient, baseURL, route string) *HTTPShareAPI {
	if client == nil {
		client = utils.NewHTTPClient()
	}
	if route == "" {
		route = internal.DownloadRouteDirect
	}
	return &HTTPShareAPI{
		client:  client,
		baseURL: baseURL,
		route:   route,
		policy:  DefaultFieldPolicy,
	}
}

// WithFieldPolicy replaces the response field policy
func (a *HTTPShareAPI) WithFieldPolicy(p FieldPolicy) *HTTPShareAPI {
	a.policy = p
	return a
}

// BaseURL returns the API base the client was created with
func (a *HTTPShareAPI) BaseURL() string {
	return a.baseURL
}

func (a *HTTPShareAPI) infoURL(token internal.ShareToken) string {
	return utils.EndpointURL(a.baseURL, "share", string(token), "info")
}

func (a *HTTPShareAPI) downloadURL(token internal.ShareToken) string {
	if a.route == internal.DownloadRouteDownload {
		return utils.EndpointURL(a.baseURL, "share", string(token), "download")
	}
	return utils.EndpointURL(a.baseURL, "share", string(token))
}

// Info fetches the metadata for token
func (a *HTTPShareAPI) Info(ctx context.Context, token internal.ShareToken) (*internal.ShareMetadata, error) {
	endpoint := a.infoURL(token)

	resp, err := a.client.GetWithContext(ctx, endpoint, nil)
	if err != nil {
		return nil, internal.NewConnectionError(0, "info", err).WithURL(endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, a.classify(resp, endpoint, "info")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetaBody))
	if err != nil {
		return nil, internal.NewConnectionError(0, "info", err).WithURL(endpoint)
	}

	meta, err := a.policy.DecodeMetadata(body)
	if err != nil {
		var se *internal.ShareError
		if errors.As(err, &se) {
			se.WithURL(endpoint)
		}
		return nil, err
	}
	return meta, nil
}

// Download opens the download stream for token. The caller closes the body.
func (a *HTTPShareAPI) Download(ctx context.Context, token internal.ShareToken) (*internal.Payload, error) {
	endpoint := a.downloadURL(token)

	resp, err := a.client.GetWithContext(ctx, endpoint, map[string]string{"Accept": "*/*"})
	if err != nil {
		return nil, internal.NewConnectionError(0, "download", err).WithURL(endpoint)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, a.classify(resp, endpoint, "download")
	}

	return &internal.Payload{
		Body:   &streamBody{rc: resp.Body, url: endpoint},
		Size:   resp.ContentLength,
		Header: resp.Header,
	}, nil
}

// CreateLink mints a share link for one of the caller's files. The session
// cookies must already be in the HTTP client's jar. ExpiresHours <= 0 and
// MaxDownloads < 0 leave the server defaults in place.
func (a *HTTPShareAPI) CreateLink(ctx context.Context, fileID int64, opts internal.ShareLinkOptions) (*internal.ShareLink, error) {
	endpoint := utils.EndpointURL(a.baseURL, "share", strconv.FormatInt(fileID, 10)) + "/"

	form := url.Values{}
	if opts.ExpiresHours > 0 {
		form.Set("expires_hours", strconv.Itoa(opts.ExpiresHours))
	}
	if opts.MaxDownloads >= 0 {
		form.Set("max_downloads", strconv.Itoa(opts.MaxDownloads))
	}

	resp, err := a.client.PostFormWithContext(ctx, endpoint, form)
	if err != nil {
		return nil, internal.NewConnectionError(0, "create", err).WithURL(endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetaBody))
	if err != nil {
		return nil, internal.NewConnectionError(0, "create", err).WithURL(endpoint)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		msg := a.policy.DecodeReason(body)
		if msg == "" {
			msg = "authentication required"
		}
		return nil, internal.NewAuthRequiredError(msg).WithURL(endpoint)
	case resp.StatusCode == http.StatusNotFound:
		msg := a.policy.DecodeReason(body)
		if msg == "" {
			msg = "File not found or access denied"
		}
		return nil, internal.NewShareError(http.StatusNotFound, msg, internal.ErrNotFound).
			WithURL(endpoint).
			WithContext("file_id", fileID).
			WithSuggestion("Check the file ID and that the file belongs to the logged-in account")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, internal.NewConnectionError(resp.StatusCode, "create", nil).
			WithURL(endpoint).
			WithContext("detail", a.policy.DecodeReason(body))
	}

	link, err := a.policy.DecodeShareLink(body)
	if err != nil {
		return nil, err
	}
	if link.URL == "" {
		link.URL = "/share/" + url.PathEscape(string(link.Token))
	}
	if full, err := utils.JoinURL(a.baseURL, link.URL); err == nil {
		link.URL = full
	}
	if link.Token.IsEmpty() {
		link.Token = utils.ExtractToken(link.URL)
	}
	return link, nil
}

// classify turns a non-2xx response into a ShareError. 410 bodies are
// read for the server's reason; without one the link counts as expired.
func (a *HTTPShareAPI) classify(resp *http.Response, endpoint, operation string) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return internal.NewNotFoundError(endpoint)
	case http.StatusGone:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxMetaBody))
		reason := a.policy.DecodeReason(body)
		if isLimitReason(reason) {
			return internal.NewLimitReachedError(endpoint, reason)
		}
		return internal.NewExpiredError(endpoint, reason)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxMetaBody))
		err := internal.NewConnectionError(resp.StatusCode, operation, nil).WithURL(endpoint)
		if reason := a.policy.DecodeReason(body); reason != "" {
			err.WithContext("detail", reason)
		}
		return err
	}
}

// streamBody reports read failures as connection errors so an interrupted
// download lands in the same state as a failed request.
type streamBody struct {
	rc  io.ReadCloser
	url string
}

func (s *streamBody) Read(p []byte) (int, error) {
	n, err := s.rc.Read(p)
	if err != nil && err != io.EOF {
		return n, internal.NewConnectionError(0, "download", fmt.Errorf("reading body: %w", err)).WithURL(s.url)
	}
	return n, err
}

func (s *streamBody) Close() error {
	return s.rc.Close()
}
