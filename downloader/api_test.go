package downloader

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharefetch/internal"
	"sharefetch/internal/sharetest"
	"sharefetch/utils"
)

func TestHTTPShareAPI_URLs(t *testing.T) {
	direct := NewHTTPShareAPI(nil, "http://api.test/v1", "")
	assert.Equal(t, "http://api.test/v1/share/a%20b/info", direct.infoURL("a b"))
	assert.Equal(t, "http://api.test/v1/share/tok", direct.downloadURL("tok"))

	dl := NewHTTPShareAPI(nil, "http://api.test/", internal.DownloadRouteDownload)
	assert.Equal(t, "http://api.test/share/tok/download", dl.downloadURL("tok"))
	assert.Equal(t, "http://api.test/", dl.BaseURL())
}

func TestHTTPShareAPI_Classify(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantType   internal.ErrorType
		wantDetail string
	}{
		{name: "not found", status: 404, body: `{"detail":"Link not found"}`, wantType: internal.ErrNotFound},
		{name: "gone expired", status: 410, body: `{"detail":"Link expired"}`, wantType: internal.ErrExpired},
		{name: "gone limit", status: 410, body: `{"detail":"Download limit reached"}`, wantType: internal.ErrLimitReached},
		{name: "gone without reason", status: 410, body: ``, wantType: internal.ErrExpired},
		{name: "gone html", status: 410, body: `<h1>Gone</h1>`, wantType: internal.ErrExpired},
		{name: "server error", status: 500, body: `{"detail":"db down"}`, wantType: internal.ErrConnection, wantDetail: "db down"},
		{name: "forbidden", status: 403, body: ``, wantType: internal.ErrConnection},
		{name: "unprocessable", status: 422, body: `{"detail":[{"msg":"bad"}]}`, wantType: internal.ErrConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			client := utils.NewHTTPClient()
			defer client.CloseIdleConnections()
			api := NewHTTPShareAPI(client, srv.URL, "")

			for _, call := range []func() error{
				func() error { _, err := api.Info(context.Background(), "tok"); return err },
				func() error { _, err := api.Download(context.Background(), "tok"); return err },
			} {
				err := call()
				require.Error(t, err)
				se, ok := internal.AsShareError(err)
				require.True(t, ok, "expected ShareError, got %v", err)
				assert.Equal(t, tt.wantType, se.Type)
				if tt.wantType == internal.ErrConnection {
					assert.Equal(t, tt.status, se.Code)
				}
				if tt.wantDetail != "" {
					assert.Equal(t, tt.wantDetail, se.Context["detail"])
				}
			}
		})
	}
}

func TestHTTPShareAPI_InfoMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"file":`)
	}))
	defer srv.Close()

	client := utils.NewHTTPClient()
	defer client.CloseIdleConnections()

	_, err := NewHTTPShareAPI(client, srv.URL, "").Info(context.Background(), "tok")
	require.Error(t, err)
	se, ok := internal.AsShareError(err)
	require.True(t, ok)
	assert.Equal(t, internal.ErrInvalidResponse, se.Type)
	assert.Equal(t, internal.StateConnectionError, se.StateKind())
	assert.Contains(t, se.URL, "/share/tok/info")
}

func TestHTTPShareAPI_InfoUsedFieldVariants(t *testing.T) {
	for _, field := range []string{"downloads_count", "download_count"} {
		t.Run(field, func(t *testing.T) {
			srv := sharetest.New(sharetest.Options{UsedField: field})
			defer srv.Close()
			token := srv.AddLink(sharetest.Link{Filename: "x", Content: []byte("abc"), MaxDownloads: 4, DownloadCount: 3})

			meta, err := newTestAPI(t, srv, "").Info(context.Background(), internal.ShareToken(token))
			require.NoError(t, err)
			assert.Equal(t, 3, meta.DownloadsUsed)
			assert.Equal(t, int64(3), meta.ArtifactSize)
		})
	}
}

func TestHTTPShareAPI_InfoUnexpectedStatus(t *testing.T) {
	srv := sharetest.New(sharetest.Options{InfoStatus: http.StatusServiceUnavailable})
	defer srv.Close()

	_, err := newTestAPI(t, srv, "").Info(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, internal.IsErrorType(err, internal.ErrConnection))
	assert.Equal(t, 1, srv.InfoCalls(), "no retries")
}

func TestHTTPShareAPI_Download(t *testing.T) {
	srv := sharetest.New(sharetest.Options{})
	defer srv.Close()
	token := internal.ShareToken(srv.AddLink(sharetest.Link{Filename: "notes.txt", Content: []byte("hello")}))

	payload, err := newTestAPI(t, srv, "").Download(context.Background(), token)
	require.NoError(t, err)
	defer payload.Body.Close()

	body, err := io.ReadAll(payload.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, int64(5), payload.Size)
	assert.Equal(t, "notes.txt", ResolveFilename(payload.Header))
}

func TestHTTPShareAPI_CreateLink(t *testing.T) {
	srv := sharetest.New(sharetest.Options{})
	defer srv.Close()
	srv.AddFile(7, "report.pdf", []byte("pdf"))
	srv.SetSession("acc", "ref")

	newAuthedAPI := func(t *testing.T, access string) *HTTPShareAPI {
		auth := &internal.AuthContext{Cookies: map[string]*http.Cookie{
			AccessTokenCookie: {Name: AccessTokenCookie, Value: access},
		}}
		jar, err := NewCookieAuthManager(nil, "").Jar(auth, srv.URL)
		require.NoError(t, err)
		client, err := utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{Jar: jar})
		require.NoError(t, err)
		t.Cleanup(client.CloseIdleConnections)
		return NewHTTPShareAPI(client, srv.URL, "")
	}

	t.Run("success", func(t *testing.T) {
		api := newAuthedAPI(t, "acc")
		link, err := api.CreateLink(context.Background(), 7, internal.ShareLinkOptions{ExpiresHours: 2, MaxDownloads: 3})
		require.NoError(t, err)

		assert.False(t, link.Token.IsEmpty())
		assert.Equal(t, srv.URL+"/share/"+string(link.Token), link.URL)
		assert.Equal(t, 3, link.MaxDownloads)
		require.NotNil(t, link.ExpiresAt)
		assert.WithinDuration(t, time.Now().Add(2*time.Hour), *link.ExpiresAt, time.Minute)

		stored, ok := srv.Link(string(link.Token))
		require.True(t, ok)
		assert.Equal(t, int64(7), stored.FileID)

		meta, err := api.Info(context.Background(), link.Token)
		require.NoError(t, err)
		assert.Equal(t, "report.pdf", meta.ArtifactName)
	})

	t.Run("server defaults", func(t *testing.T) {
		link, err := newAuthedAPI(t, "acc").CreateLink(context.Background(), 7, internal.ShareLinkOptions{ExpiresHours: 0, MaxDownloads: -1})
		require.NoError(t, err)
		assert.Equal(t, 1, link.MaxDownloads)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), *link.ExpiresAt, time.Minute)
	})

	t.Run("unlimited", func(t *testing.T) {
		link, err := newAuthedAPI(t, "acc").CreateLink(context.Background(), 7, internal.ShareLinkOptions{MaxDownloads: 0})
		require.NoError(t, err)
		assert.Equal(t, 0, link.MaxDownloads)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		_, err := newAuthedAPI(t, "stale").CreateLink(context.Background(), 7, internal.ShareLinkOptions{})
		require.Error(t, err)
		assert.True(t, internal.IsErrorType(err, internal.ErrAuthRequired))
		assert.Contains(t, err.Error(), "Not authenticated")
	})

	t.Run("unknown file", func(t *testing.T) {
		_, err := newAuthedAPI(t, "acc").CreateLink(context.Background(), 99, internal.ShareLinkOptions{})
		require.Error(t, err)
		assert.True(t, internal.IsErrorType(err, internal.ErrNotFound))
	})
}

func TestHTTPShareAPI_CreateLinkTokenFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, url.Values{"max_downloads": {"2"}}, r.PostForm)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/share/5/"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"url":"/share/from-url","max_downloads":2}`)
	}))
	defer srv.Close()

	client := utils.NewHTTPClient()
	defer client.CloseIdleConnections()

	link, err := NewHTTPShareAPI(client, srv.URL, "").CreateLink(context.Background(), 5, internal.ShareLinkOptions{MaxDownloads: 2})
	require.NoError(t, err)
	assert.Equal(t, internal.ShareToken("from-url"), link.Token)
	assert.Equal(t, srv.URL+"/share/from-url", link.URL)
	assert.Nil(t, link.ExpiresAt)
}
