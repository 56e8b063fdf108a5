package client

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"

	appErrors "github.com/noah-isme/sma-adp-mobile/pkg/errors"
)

const maxErrorBody = 64 << 10

// upstreamError converts a non-2xx response into an *appErrors.Error carrying the
// server's messages. The body is consumed.
func upstreamError(resp *http.Response) *appErrors.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return appErrors.Upstream(resp.StatusCode, errorMessages(body))
}

// errorMessages extracts user-facing messages from an error payload. It understands a
// list of strings or objects under "errors", an ASP.NET style validation dictionary,
// and falls back to "message", "detail" or "title".
func errorMessages(body []byte) []string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}

	if raw, ok := payload["errors"]; ok {
		if msgs := flattenErrors(raw); len(msgs) > 0 {
			return msgs
		}
	}
	for _, key := range []string{"message", "detail", "title"} {
		var msg string
		if raw, ok := payload[key]; ok && json.Unmarshal(raw, &msg) == nil && strings.TrimSpace(msg) != "" {
			return []string{strings.TrimSpace(msg)}
		}
	}
	return nil
}

func flattenErrors(raw json.RawMessage) []string {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		msgs := make([]string, 0, len(list))
		for _, item := range list {
			if msg := messageOf(item); msg != "" {
				msgs = append(msgs, msg)
			}
		}
		return msgs
	}

	var dict map[string][]string
	if err := json.Unmarshal(raw, &dict); err == nil {
		keys := make([]string, 0, len(dict))
		for key := range dict {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		msgs := make([]string, 0, len(dict))
		for _, key := range keys {
			for _, msg := range dict[key] {
				if msg = strings.TrimSpace(msg); msg != "" {
					msgs = append(msgs, msg)
				}
			}
		}
		return msgs
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && strings.TrimSpace(single) != "" {
		return []string{strings.TrimSpace(single)}
	}
	return nil
}

func messageOf(item json.RawMessage) string {
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Description string `json:"description"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(item, &obj); err == nil {
		if obj.Description != "" {
			return strings.TrimSpace(obj.Description)
		}
		return strings.TrimSpace(obj.Message)
	}
	return ""
}
