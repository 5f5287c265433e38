// Package functions вызывает серверные функции платформы (оплата, доставка кодов).
package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/smm-panel/internal/metrics"
	"github.com/mmeshcher/smm-panel/internal/model"
)

// Client вызывает функции по адресу {base}/functions/v1/{name}.
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
}

// NewClient создаёт клиент функций. Пустой baseURL означает, что функции не настроены.
func NewClient(baseURL, key string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		key:        key,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Invoke вызывает функцию name с телом payload и декодирует ответ в out (если out не nil).
func (c *Client) Invoke(ctx context.Context, name string, payload, out any) (err error) {
	started := time.Now()
	defer func() { metrics.ObserveCall("function_"+name, started, err) }()

	if c == nil || c.baseURL == "" {
		return &model.ExternalServiceError{Service: name, Err: errors.New("functions not configured")}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/functions/v1/"+name, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &model.ExternalServiceError{Service: name, Retryable: true, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &model.ExternalServiceError{Service: name, Retryable: true, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := errorMessage(raw)
		if msg == "" {
			msg = fmt.Sprintf("unexpected status: %d", resp.StatusCode)
		}
		return &model.ExternalServiceError{
			Service:   name,
			Retryable: resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests,
			Err:       errors.New(msg),
		}
	}

	if msg := errorMessage(raw); msg != "" {
		return &model.ExternalServiceError{Service: name, Err: errors.New(msg)}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &model.ExternalServiceError{Service: name, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func errorMessage(raw []byte) string {
	var e struct {
		Error any `json:"error"`
	}
	if json.Unmarshal(raw, &e) != nil || e.Error == nil {
		return ""
	}
	switch v := e.Error.(type) {
	case string:
		return v
	case map[string]any:
		if m, ok := v["message"].(string); ok {
			return m
		}
	}
	return fmt.Sprint(e.Error)
}
