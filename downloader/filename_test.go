package downloader

import (
	"net/http"
	"testing"
)

func TestResolveFilename(t *testing.T) {
	tests := []struct {
		name        string
		disposition string
		xFilename   string
		expected    string
	}{
		{name: "quoted filename", disposition: `attachment; filename="report.pdf"`, expected: "report.pdf"},
		{name: "bare filename", disposition: `attachment; filename=report.pdf`, expected: "report.pdf"},
		{name: "rfc 5987 preferred", disposition: `attachment; filename="fallback.txt"; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`, expected: "résumé.pdf"},
		{name: "rfc 5987 decoded once", disposition: `attachment; filename*=UTF-8''100%2541.pdf`, expected: "100%41.pdf"},
		{name: "rfc 5987 literal percent", disposition: `attachment; filename="x.pdf"; filename*=UTF-8''50%25%20off.pdf`, expected: "50% off.pdf"},
		{name: "percent encoded", disposition: `attachment; filename="my%20notes.txt"`, expected: "my notes.txt"},
		{name: "unquoted with spaces", disposition: `attachment; filename=my notes.txt`, expected: "my notes.txt"},
		{name: "unquoted with trailing param", disposition: `attachment; filename=a b.txt; size=3`, expected: "a b.txt"},
		{name: "disposition wins over header", disposition: `attachment; filename="a.txt"`, xFilename: "b.txt", expected: "a.txt"},
		{name: "x-filename fallback", xFilename: "data.csv", expected: "data.csv"},
		{name: "x-filename quoted", xFilename: `"data.csv"`, expected: "data.csv"},
		{name: "x-filename percent encoded", xFilename: "q1%20report.xlsx", expected: "q1 report.xlsx"},
		{name: "disposition without filename", disposition: "attachment", xFilename: "x.bin", expected: "x.bin"},
		{name: "nothing", expected: DefaultFilename},
		{name: "blank values", disposition: " ", xFilename: `""`, expected: DefaultFilename},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.disposition != "" {
				h.Set("Content-Disposition", tt.disposition)
			}
			if tt.xFilename != "" {
				h.Set("X-Filename", tt.xFilename)
			}
			if got := ResolveFilename(h); got != tt.expected {
				t.Errorf("ResolveFilename() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestStripQuotes(t *testing.T) {
	tests := map[string]string{
		`"a"`:     "a",
		`'a'`:     "a",
		`""a""`:   "a",
		`"a`:      `"a`,
		`a`:       "a",
		`"`:       `"`,
		`"a'`:     `"a'`,
		`"a b c"`: "a b c",
	}
	for in, want := range tests {
		if got := stripQuotes(in); got != want {
			t.Errorf("stripQuotes(%q) = %q, want %q", in, got, want)
		}
	}
}
