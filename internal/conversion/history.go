package conversion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/swiftbridge/convert-client/internal/apierr"
	"github.com/swiftbridge/convert-client/internal/transport"
)

// History endpoints.
const (
	HistoryPath       = "/api/conversions/history"
	conversionsPrefix = "/api/conversions/"
)

// ErrDeleteUnsupported is returned when the server has no delete endpoint.
var ErrDeleteUnsupported = errors.New("delete not supported by server")

// HistoryEntry is one server-side conversion record.
type HistoryEntry struct {
	ID             string `json:"id"`
	ConversionType string `json:"conversionType"`
	Status         string `json:"status"` // SUCCESS, FAILED, PARTIAL_SUCCESS
	InputContent   string `json:"inputContent,omitempty"`
	OutputContent  string `json:"outputContent,omitempty"`
	SourceFormat   string `json:"sourceFormat,omitempty"`
	TargetFormat   string `json:"targetFormat,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

// IsXML reports whether the stored output looks like an XML document.
func (e HistoryEntry) IsXML() bool {
	return strings.HasPrefix(strings.TrimSpace(e.OutputContent), "<")
}

// History returns the server-side conversion history. ok is false when the
// request was superseded by a session teardown.
func (c *Coordinator) History(ctx context.Context) (entries []HistoryEntry, ok bool, err error) {
	resp, err := c.api.Do(ctx, transport.Request{Method: http.MethodGet, Path: HistoryPath})
	if err != nil {
		return nil, false, fmt.Errorf("load history: %w", err)
	}
	if resp.Superseded {
		return nil, false, nil
	}
	if len(strings.TrimSpace(string(resp.Body))) == 0 {
		return nil, true, nil
	}

	decoded, err := decodeHistory(resp.Body)
	if err != nil {
		return nil, false, apierr.NewDecodeError(err, http.MethodGet, HistoryPath, resp.Status)
	}
	return decoded, true, nil
}

// DeleteHistory removes one history entry. ok is false when superseded.
func (c *Coordinator) DeleteHistory(ctx context.Context, id string) (ok bool, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, errors.New("conversion: history id is required")
	}

	resp, err := c.api.Do(ctx, transport.Request{Method: http.MethodDelete, Path: conversionsPrefix + url.PathEscape(id)})
	if err != nil {
		switch apierr.StatusOf(err) {
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			return false, fmt.Errorf("%w: %w", ErrDeleteUnsupported, err)
		}
		return false, fmt.Errorf("delete history %s: %w", id, err)
	}
	return !resp.Superseded, nil
}

// Page slices entries for display. Pages start at 1.
func Page(entries []HistoryEntry, page, size int) (out []HistoryEntry, totalPages int) {
	if size <= 0 {
		size = len(entries)
		if size == 0 {
			size = 1
		}
	}
	totalPages = (len(entries) + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(entries) {
		return nil, totalPages
	}
	end := start + size
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end], totalPages
}

func decodeHistory(body []byte) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
