package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"taskdispatch/internal/worker"

	"go.uber.org/zap"
)

type httpPayload struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	Body   string `json:"body,omitempty"`
}

func httpFactory(client *http.Client, retry RetryConfig, logger *zap.Logger) Factory {
	return func(payload json.RawMessage) (worker.Handler, error) {
		p := httpPayload{Method: http.MethodGet}
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}

		u, err := url.Parse(p.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("url must be an absolute http(s) URL, got %q", p.URL)
		}
		method := strings.ToUpper(p.Method)
		if method == "" {
			method = http.MethodGet
		}
		switch method {
		case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodDelete:
		default:
			return nil, fmt.Errorf("unsupported method %q", p.Method)
		}

		target := u.String()
		return func(ctx context.Context) error {
			return WithRetry(ctx, logger, retry, func(ctx context.Context) error {
				return doRequest(ctx, client, method, target, p.Body)
			})
		}, nil
	}
}

// doRequest выполняет один запрос. Ответы 4xx не повторяются, 5xx и сетевые ошибки повторяются.
func doRequest(ctx context.Context, client *http.Client, method, target, body string) error {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return permanent(fmt.Errorf("failed to build request: %w", err))
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return permanent(err)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, target)
	default:
		return permanent(fmt.Errorf("unexpected status %d from %s", resp.StatusCode, target))
	}
}
