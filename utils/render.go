package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"sharefetch/internal"
)

// NewDisplay returns the renderer for format ("text", "json" or "yaml")
func NewDisplay(format string, w io.Writer) (internal.Display, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return NewTextDisplay(w), nil
	case "json":
		return NewJSONDisplay(w), nil
	case "yaml", "yml":
		return NewYAMLDisplay(w), nil
	default:
		return nil, internal.NewValidationErrorWithValue("format", "must be one of text, json, yaml", format)
	}
}

// TextDisplay renders human-readable banners and metadata cards
type TextDisplay struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextDisplay creates a text renderer writing to w
func NewTextDisplay(w io.Writer) *TextDisplay {
	return &TextDisplay{w: w}
}

// Render writes the view for state
func (d *TextDisplay) Render(state internal.ResolutionState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder
	v := state.View()

	switch state.Kind {
	case internal.StateLoading:
		fmt.Fprintf(&b, "Resolving share link %s...\n", v.Token)
	case internal.StateInfo:
		writeMetadataCard(&b, v)
		if v.DownloadAvailable {
			b.WriteString("Download: available\n")
		}
	case internal.StateLimitReached:
		if state.Metadata != nil {
			writeMetadataCard(&b, v)
		}
		b.WriteString("Download limit reached: this link cannot be downloaded again.\n")
	case internal.StateExpired:
		b.WriteString("This share link has expired.\n")
	case internal.StateNotFound:
		b.WriteString("Share link not found.\n")
	case internal.StateConnectionError:
		msg := v.Message
		if msg == "" {
			msg = "could not reach the server"
		}
		fmt.Fprintf(&b, "Connection error: %s\n", msg)
	default:
		fmt.Fprintf(&b, "Unknown state: %s\n", v.State)
	}

	_, err := io.WriteString(d.w, b.String())
	return err
}

func writeMetadataCard(b *strings.Builder, v internal.StateView) {
	fmt.Fprintf(b, "File: %s\n", v.Filename)
	fmt.Fprintf(b, "Size: %s\n", FormatFileSize(v.Size))
	if v.ExpiresAt != nil {
		fmt.Fprintf(b, "Valid until: %s\n", v.ExpiresAt.Local().Format(time.DateTime))
	}
	if v.DownloadsRemaining != nil {
		fmt.Fprintf(b, "Downloads remaining: %d\n", *v.DownloadsRemaining)
	} else {
		b.WriteString("Downloads remaining: unlimited\n")
	}
}

// JSONDisplay writes one JSON object per settled state. Loading is skipped
// so the output stays machine-readable.
type JSONDisplay struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONDisplay creates a JSON renderer writing to w
func NewJSONDisplay(w io.Writer) *JSONDisplay {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &JSONDisplay{enc: enc}
}

// Render writes the view for state
func (d *JSONDisplay) Render(state internal.ResolutionState) error {
	if state.Kind == internal.StateLoading {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enc.Encode(state.View())
}

// YAMLDisplay writes one YAML document per settled state
type YAMLDisplay struct {
	mu      sync.Mutex
	w       io.Writer
	written bool
}

// NewYAMLDisplay creates a YAML renderer writing to w
func NewYAMLDisplay(w io.Writer) *YAMLDisplay {
	return &YAMLDisplay{w: w}
}

// Render writes the view for state
func (d *YAMLDisplay) Render(state internal.ResolutionState) error {
	if state.Kind == internal.StateLoading {
		return nil
	}
	out, err := yaml.Marshal(state.View())
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.written {
		if _, err := io.WriteString(d.w, "---\n"); err != nil {
			return err
		}
	}
	d.written = true
	_, err = d.w.Write(out)
	return err
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB", "PB"}

// FormatFileSize formats a byte count with binary units and at most two
// decimals, trimming trailing zeros: 0 -> "0 Bytes", 1536 -> "1.5 KB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	value, i := float64(bytes), 0
	for value >= 1024 && i < len(sizeUnits)-1 {
		value /= 1024
		i++
	}
	value = math.Round(value*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[i]
}

// RenderShareLink writes a newly created share link in format
func RenderShareLink(w io.Writer, format string, link *internal.ShareLink) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(link)
	case "yaml", "yml":
		out, err := yaml.Marshal(link)
		if err != nil {
			return fmt.Errorf("failed to encode share link: %w", err)
		}
		_, err = w.Write(out)
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Share link: %s\n", link.URL)
	fmt.Fprintf(&b, "Token: %s\n", link.Token)
	if link.ExpiresAt != nil {
		fmt.Fprintf(&b, "Valid until: %s\n", link.ExpiresAt.Local().Format(time.DateTime))
	}
	if link.MaxDownloads > 0 {
		fmt.Fprintf(&b, "Max downloads: %d\n", link.MaxDownloads)
	} else {
		b.WriteString("Max downloads: unlimited\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
