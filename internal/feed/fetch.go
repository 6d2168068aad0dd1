package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "eventfinder/internal/log"
	"eventfinder/internal/model"
)

// Format names the payload encoding of a Source.
type Format string

const (
	FormatAuto Format = ""
	FormatJSON Format = "json"
	FormatICS  Format = "ics"
)

// maxBodyBytes bounds how much of a response or file we are willing to read.
const maxBodyBytes = 32 << 20

// Source is one place events can be loaded from.
type Source struct {
	// Name is used in logs and metrics, e.g. "primary" or "fallback".
	Name string
	// URL is an http(s) endpoint, a file:// URL or a plain filesystem path.
	URL string
	// Format forces the decoder. FormatAuto sniffs extension and content.
	Format Format
}

// IsRemote reports whether the source is fetched over HTTP.
func (s Source) IsRemote() bool {
	return strings.HasPrefix(s.URL, "http://") || strings.HasPrefix(s.URL, "https://")
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", appLog.RedactURL(e.URL), e.Status, http.StatusText(e.Status))
}

// NewHTTPClient returns the client used for primary/fallback fetches.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// FetchJSON performs a GET and decodes the body into T. The caller picks
// the response shape; there is no untyped fallback.
func FetchJSON[T any](ctx context.Context, client *http.Client, url, userAgent string) (T, error) {
	var zero T
	body, err := get(ctx, client, url, userAgent)
	if err != nil {
		return zero, err
	}
	return decodeJSON[T](body)
}

func decodeJSON[T any](body []byte) (T, error) {
	var out T
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("decode json: %w", err)
	}
	return out, nil
}

func get(ctx context.Context, client *http.Client, url, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, text/calendar;q=0.9, */*;q=0.5")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, Status: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// read returns the raw payload of src, from the network or from disk.
func read(ctx context.Context, client *http.Client, src Source, userAgent string) ([]byte, error) {
	if src.URL == "" {
		return nil, errors.New("source URL is empty")
	}
	if src.IsRemote() {
		return get(ctx, client, src.URL, userAgent)
	}

	path := strings.TrimPrefix(src.URL, "file://")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxBodyBytes))
}

// detectFormat resolves FormatAuto from the URL extension and, failing that,
// from the first bytes of the payload.
func detectFormat(src Source, body []byte) Format {
	if src.Format != FormatAuto {
		return src.Format
	}
	u := src.URL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch strings.ToLower(filepath.Ext(u)) {
	case ".ics", ".ical", ".ifb":
		return FormatICS
	case ".json":
		return FormatJSON
	}
	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("BEGIN:VCALENDAR")) {
		return FormatICS
	}
	return FormatJSON
}

// envelope covers feeds that wrap the array in an object.
type envelope struct {
	Events []json.RawMessage `json:"events"`
	Data   []json.RawMessage `json:"data"`
}

// decodeEvents parses a JSON payload: a bare array of records, or an object
// with an "events" or "data" array. Records are decoded one by one; a
// record that is null or not an object is logged and skipped.
func decodeEvents(body []byte) ([]model.Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		env, err := decodeJSON[envelope](trimmed)
		if err != nil {
			return nil, err
		}
		switch {
		case env.Events != nil:
			return decodeRecords(env.Events), nil
		case env.Data != nil:
			return decodeRecords(env.Data), nil
		default:
			return nil, errors.New("decode json: object has no events or data array")
		}
	}
	raw, err := decodeJSON[[]json.RawMessage](trimmed)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("decode json: payload is null")
	}
	return decodeRecords(raw), nil
}

func decodeRecords(raw []json.RawMessage) []model.Event {
	events := make([]model.Event, 0, len(raw))
	for i, r := range raw {
		if bytes.Equal(bytes.TrimSpace(r), []byte("null")) {
			appLog.Warn("event record skipped", "index", i, "err", "null record")
			continue
		}
		var ev model.Event
		if err := json.Unmarshal(r, &ev); err != nil {
			appLog.Warn("event record skipped", "index", i, "err", err)
			continue
		}
		events = append(events, ev)
	}
	if skipped := len(raw) - len(events); skipped > 0 {
		appLog.Info("event records skipped", "skipped", skipped, "kept", len(events))
	}
	return events
}
