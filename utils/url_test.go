package utils

import (
	"testing"

	"sharefetch/internal"
)

func TestParseShareURL(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantToken internal.ShareToken
		wantHost  string
		wantErr   bool
	}{
		{
			name:      "query_parameter",
			input:     "http://localhost:8080/share.html?token=abc123",
			wantToken: "abc123",
			wantHost:  "localhost",
		},
		{
			name:      "share_path",
			input:     "https://files.example.com/share/abc123",
			wantToken: "abc123",
			wantHost:  "files.example.com",
		},
		{
			name:      "share_info_path",
			input:     "https://files.example.com/share/abc123/info",
			wantToken: "abc123",
			wantHost:  "files.example.com",
		},
		{
			name:      "trailing_slash",
			input:     "https://files.example.com/s/xyz789/",
			wantToken: "xyz789",
			wantHost:  "files.example.com",
		},
		{
			name:      "query_wins_over_path",
			input:     "https://files.example.com/share/ignored?token=fromquery",
			wantToken: "fromquery",
			wantHost:  "files.example.com",
		},
		{
			name:      "bare_token",
			input:     "  expired-tok  ",
			wantToken: "expired-tok",
		},
		{
			name:      "escaped_segment",
			input:     "https://files.example.com/share/a%2Db",
			wantToken: "a-b",
			wantHost:  "files.example.com",
		},
		{
			name:    "empty",
			input:   "   ",
			wantErr: true,
		},
		{
			name:    "share_without_token",
			input:   "https://files.example.com/share/",
			wantErr: true,
		},
		{
			name:    "share_page_without_token",
			input:   "https://files.example.com/share.html?token=",
			wantErr: true,
		},
		{
			name:    "no_path",
			input:   "https://files.example.com/",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParseShareURL(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseShareURL(%q) expected error, got token %q", tt.input, info.Token)
				}
				if !internal.IsErrorType(err, internal.ErrInvalidToken) {
					t.Errorf("expected ErrInvalidToken, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseShareURL(%q) unexpected error: %v", tt.input, err)
			}
			if info.Token != tt.wantToken {
				t.Errorf("Token = %q, want %q", info.Token, tt.wantToken)
			}
			if info.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", info.Host, tt.wantHost)
			}
		})
	}
}

func TestExtractToken(t *testing.T) {
	if got := ExtractToken("https://h/share/"); got != "" {
		t.Errorf("Expected empty token for a share path without token, got %q", got)
	}
	if got := ExtractToken("https://h/share/tok1"); got != "tok1" {
		t.Errorf("ExtractToken() = %q, want tok1", got)
	}
	if got := ExtractToken(""); !got.IsEmpty() {
		t.Errorf("ExtractToken(\"\") = %q, want empty", got)
	}
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"http://localhost:8000", "/share/abc", "http://localhost:8000/share/abc"},
		{"http://localhost:8000/api/", "/share/abc", "http://localhost:8000/share/abc"},
		{"http://localhost:8000", "https://cdn.example.com/share/abc", "https://cdn.example.com/share/abc"},
	}

	for _, tt := range tests {
		got, err := JoinURL(tt.base, tt.ref)
		if err != nil {
			t.Fatalf("JoinURL(%q, %q) error: %v", tt.base, tt.ref, err)
		}
		if got != tt.want {
			t.Errorf("JoinURL(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
		}
	}
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		base     string
		segments []string
		want     string
	}{
		{"http://localhost:8000", []string{"share", "abc", "info"}, "http://localhost:8000/share/abc/info"},
		{"http://localhost:8000/", []string{"share", "abc"}, "http://localhost:8000/share/abc"},
		{"http://localhost:8000", []string{"share", "a b/c"}, "http://localhost:8000/share/a%20b%2Fc"},
	}

	for _, tt := range tests {
		if got := EndpointURL(tt.base, tt.segments...); got != tt.want {
			t.Errorf("EndpointURL(%q, %v) = %q, want %q", tt.base, tt.segments, got, tt.want)
		}
	}
}
