// Package social holds the HTTP plumbing shared by the platform adapters.
package social

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/AzielCF/az-publisher/publishing/ratelimit"
	"github.com/goccy/go-json"
)

const (
	DefaultTimeout   = 15 * time.Second
	maxResponseBytes = 64 << 10
	userAgent        = "az-publisher/1.0"
)

func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Request describes one authenticated JSON call to a platform API.
type Request struct {
	Platform platform.Platform
	Method   string
	URL      string
	Token    string
	Headers  map[string]string
	Body     any
}

// DoJSON sends the request and decodes a 2xx body into dest. Failures come back
// as *platform.PublishError so the coordinator can classify them.
func DoJSON(ctx context.Context, client *http.Client, r Request, dest any) (http.Header, error) {
	var body io.Reader
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, platform.Wrap(platform.KindPermanentRejection, r.Platform, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, platform.Wrap(platform.KindPermanentRejection, r.Platform, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, platform.Wrap(platform.KindTransientNetwork, r.Platform, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.Header, platform.Wrap(platform.KindTransientNetwork, r.Platform, err)
	}
	if resp.StatusCode >= 300 {
		return resp.Header, ClassifyResponse(r.Platform, resp.StatusCode, data)
	}
	if dest != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, dest); err != nil {
			return resp.Header, platform.Wrap(platform.KindTransientNetwork, r.Platform, fmt.Errorf("decode response: %w", err))
		}
	}
	return resp.Header, nil
}

// ClassifyResponse maps a non-2xx platform response onto an error kind.
func ClassifyResponse(p platform.Platform, status int, body []byte) *platform.PublishError {
	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	lower := strings.ToLower(msg)

	kind := platform.KindPermanentRejection
	switch {
	case ratelimit.IsRateLimitError(status, errors.New(msg)):
		kind = platform.KindRateLimited
	case status == http.StatusUnauthorized:
		kind = platform.KindUnauthorized
	case status == http.StatusForbidden:
		if strings.Contains(lower, "duplicate") {
			kind = platform.KindPermanentRejection
		} else {
			kind = platform.KindUnauthorized
		}
	case status == http.StatusNotFound, status == http.StatusGone:
		kind = platform.KindNotFound
	case status == http.StatusRequestTimeout, status >= 500:
		kind = platform.KindTransientNetwork
	}
	return &platform.PublishError{Kind: kind, Platform: p, StatusCode: status, Message: msg}
}

type apiError struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Title   string `json:"title"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

const maxErrorMessage = 300

func errorMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil {
		switch {
		case e.Detail != "":
			return e.Detail
		case e.Message != "":
			return e.Message
		case len(e.Errors) > 0 && e.Errors[0].Message != "":
			return e.Errors[0].Message
		case e.Title != "":
			return e.Title
		}
	}
	return truncate(strings.ToValidUTF8(string(body), "\uFFFD"), maxErrorMessage)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
