package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Fallback messages shown when a failure carries nothing more useful.
const (
	QueryFailedMessage   = "Information retrieval failed. Please try again."
	HistoryFailedMessage = "Failed to fetch query history. Please try again."
	ContentFailedMessage = "Failed to load content. Please try again."
	SavedFailedMessage   = "Failed to load saved content. Please try again."
	SaveFailedMessage    = "Failed to save content. Please try again."
	UnsaveFailedMessage  = "Failed to remove saved content. Please try again."
)

// DisplayError is the one error shape that reaches the user. Every
// transport or HTTP failure is normalised into it at the client boundary.
type DisplayError struct {
	Message string
	Status  int // HTTP status, 0 for transport failures
	Err     error
}

func (e *DisplayError) Error() string { return e.Message }

func (e *DisplayError) Unwrap() error { return e.Err }

// AsDisplay converts any error into a DisplayError, using fallback when err
// is not already one.
func AsDisplay(err error, fallback string) *DisplayError {
	if err == nil {
		return nil
	}
	var de *DisplayError
	if errors.As(err, &de) {
		return de
	}
	return &DisplayError{Message: fallback, Err: err}
}

// errorBody covers the error shapes the API produces:
//
//	{"detail": "text"}
//	{"detail": {"msg": "text"}}
//	{"detail": [{"msg": "a"}, {"msg": "b"}]}
//	{"message": "text"}
//	{"error": "text"}
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

type detailItem struct {
	Msg string `json:"msg"`
}

func (b errorBody) message() string {
	if d := strings.TrimSpace(string(b.Detail)); d != "" && d != "null" {
		return detailMessage(b.Detail)
	}
	if b.Message != "" {
		return b.Message
	}
	return b.Error
}

func detailMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var item detailItem
	if err := json.Unmarshal(raw, &item); err == nil && item.Msg != "" {
		return item.Msg
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		var msgs []string
		for _, it := range items {
			var str string
			if json.Unmarshal(it, &str) == nil && str != "" {
				msgs = append(msgs, str)
				continue
			}
			var di detailItem
			if json.Unmarshal(it, &di) == nil && di.Msg != "" {
				msgs = append(msgs, di.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return string(raw)
}

// errorFromResponse reads a non-2xx response into a DisplayError.
func errorFromResponse(resp *http.Response, fallback string) *DisplayError {
	de := &DisplayError{
		Message: fallback,
		Status:  resp.StatusCode,
		Err:     fmt.Errorf("http status %d", resp.StatusCode),
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return de
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var body errorBody
		if err := json.Unmarshal(data, &body); err == nil {
			if msg := body.message(); msg != "" {
				de.Message = msg
			}
		}
		return de
	}

	if text := strings.TrimSpace(string(data)); text != "" {
		de.Message = text
		return de
	}
	if status := http.StatusText(resp.StatusCode); status != "" {
		de.Message = fmt.Sprintf("%d: %s", resp.StatusCode, status)
	}
	return de
}
