// Package provider предоставляет клиент для API поставщиков услуг (SMM panel API v2).
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/smm-panel/internal/metrics"
	"github.com/mmeshcher/smm-panel/internal/model"
)

// RetryAfterError возвращается, когда поставщик просит повторить запрос позже.
type RetryAfterError struct {
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("provider rate limited, retry after %s", e.Delay)
}

// Client инкапсулирует HTTP-взаимодействие с поставщиками.
type Client struct {
	httpClient *http.Client
}

// OrderStatus описывает ответ поставщика на запрос статуса заказа.
// Nil в StartCount или Remains означает, что поставщик не прислал поле.
type OrderStatus struct {
	Status     string
	StartCount *int64
	Remains    *int64
	Charge     string
	Currency   string
}

type statusResponse struct {
	Status     string  `json:"status"`
	StartCount flexInt `json:"start_count"`
	Remains    flexInt `json:"remains"`
	Charge     string  `json:"charge"`
	Currency   string  `json:"currency"`
	Error      string  `json:"error"`
}

// NewClient создаёт клиент с ограничением времени на один запрос.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// AddOrder размещает заказ у поставщика и возвращает его внешний номер.
func (c *Client) AddOrder(ctx context.Context, p model.Provider, svc model.Service, o model.Order) (string, error) {
	form := url.Values{}
	form.Set("action", "add")
	form.Set("service", svc.ExternalServiceID)
	form.Set("link", o.Link)
	form.Set("quantity", strconv.FormatInt(o.Quantity, 10))
	if len(o.Comments) > 0 {
		form.Set("comments", strings.Join(o.Comments, "\n"))
	}

	var resp struct {
		Order json.RawMessage `json:"order"`
		Error string          `json:"error"`
	}
	if err := c.call(ctx, p, "add", form, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &model.ExternalServiceError{Service: p.Name, Err: errors.New(resp.Error)}
	}

	id := strings.Trim(string(resp.Order), `"`)
	if id == "" || id == "null" {
		return "", &model.ExternalServiceError{Service: p.Name, Err: errors.New("provider returned no order id")}
	}
	return id, nil
}

// GetStatus запрашивает состояние заказа у поставщика.
func (c *Client) GetStatus(ctx context.Context, p model.Provider, externalID string) (*OrderStatus, error) {
	form := url.Values{}
	form.Set("action", "status")
	form.Set("order", externalID)

	var resp statusResponse
	if err := c.call(ctx, p, "status", form, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &model.ExternalServiceError{Service: p.Name, Err: errors.New(resp.Error)}
	}
	return &OrderStatus{
		Status:     resp.Status,
		StartCount: resp.StartCount.ptr(),
		Remains:    resp.Remains.ptr(),
		Charge:     resp.Charge,
		Currency:   resp.Currency,
	}, nil
}

func (c *Client) call(ctx context.Context, p model.Provider, action string, form url.Values, out any) (err error) {
	started := time.Now()
	defer func() { metrics.ObserveCall("provider_"+action, started, err) }()

	if p.APIURL == "" {
		return &model.ExternalServiceError{Service: p.Name, Err: errors.New("provider api url not configured")}
	}

	base := p.APIURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	form.Set("key", p.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &model.ExternalServiceError{Service: p.Name, Retryable: true, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		delay := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				delay = time.Duration(seconds) * time.Second
			}
		}
		return &model.ExternalServiceError{Service: p.Name, Retryable: true, Err: &RetryAfterError{Delay: delay}}
	}

	if resp.StatusCode != http.StatusOK {
		return &model.ExternalServiceError{
			Service:   p.Name,
			Retryable: resp.StatusCode >= http.StatusInternalServerError,
			Err:       fmt.Errorf("unexpected status: %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &model.ExternalServiceError{Service: p.Name, Retryable: true, Err: fmt.Errorf("read response: %w", err)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &model.ExternalServiceError{Service: p.Name, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// MapStatus переводит статус поставщика в статус заказа.
// Второе значение false, если статус неизвестен.
func MapStatus(s string) (model.OrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "processing":
		return model.OrderProcessing, true
	case "in progress", "in_progress", "inprogress":
		return model.OrderInProgress, true
	case "completed", "complete":
		return model.OrderCompleted, true
	case "partial":
		return model.OrderPartial, true
	case "canceled", "cancelled":
		return model.OrderCancelled, true
	case "fail", "failed", "error":
		return model.OrderFailed, true
	}
	return "", false
}

// flexInt принимает число как в виде числа, так и в виде строки.
type flexInt struct {
	value int64
	set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	f.value, f.set = int64(v), true
	return nil
}

func (f flexInt) ptr() *int64 {
	if !f.set {
		return nil
	}
	v := f.value
	return &v
}
