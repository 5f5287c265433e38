package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/smm-panel/internal/model"
)

func testProvider(url string) model.Provider {
	return model.Provider{Name: "test-panel", APIURL: url, APIKey: "secret"}
}

func TestAddOrder_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "secret", r.PostForm.Get("key"))
		assert.Equal(t, "add", r.PostForm.Get("action"))
		assert.Equal(t, "101", r.PostForm.Get("service"))
		assert.Equal(t, "https://instagram.com/p/abc", r.PostForm.Get("link"))
		assert.Equal(t, "500", r.PostForm.Get("quantity"))
		assert.Equal(t, "nice\ncool", r.PostForm.Get("comments"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order": 23501}`))
	}))
	defer ts.Close()

	c := NewClient(time.Second)
	id, err := c.AddOrder(context.Background(), testProvider(ts.URL),
		model.Service{ExternalServiceID: "101"},
		model.Order{Link: "https://instagram.com/p/abc", Quantity: 500, Comments: []string{"nice", "cool"}})

	require.NoError(t, err)
	assert.Equal(t, "23501", id)
}

func TestAddOrder_ProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "Not enough funds on balance"}`))
	}))
	defer ts.Close()

	c := NewClient(time.Second)
	_, err := c.AddOrder(context.Background(), testProvider(ts.URL), model.Service{}, model.Order{Quantity: 1})

	var ext *model.ExternalServiceError
	require.True(t, errors.As(err, &ext))
	assert.False(t, ext.Retryable)
	assert.Contains(t, err.Error(), "Not enough funds")
}

func TestGetStatus_StringNumbers(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "status", r.PostForm.Get("action"))
		assert.Equal(t, "23501", r.PostForm.Get("order"))
		_, _ = w.Write([]byte(`{"charge":"0.27819","start_count":"3572","status":"Partial","remains":"157","currency":"USD"}`))
	}))
	defer ts.Close()

	c := NewClient(time.Second)
	st, err := c.GetStatus(context.Background(), testProvider(ts.URL), "23501")
	require.NoError(t, err)

	assert.Equal(t, "Partial", st.Status)
	require.NotNil(t, st.StartCount)
	require.NotNil(t, st.Remains)
	assert.Equal(t, int64(3572), *st.StartCount)
	assert.Equal(t, int64(157), *st.Remains)
}

func TestGetStatus_MissingNumbers(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"In progress"}`))
	}))
	defer ts.Close()

	st, err := NewClient(time.Second).GetStatus(context.Background(), testProvider(ts.URL), "1")
	require.NoError(t, err)
	assert.Nil(t, st.Remains)
	assert.Nil(t, st.StartCount)
}

func TestCall_TooManyRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	_, err := NewClient(time.Second).GetStatus(context.Background(), testProvider(ts.URL), "1")

	var ext *model.ExternalServiceError
	require.True(t, errors.As(err, &ext))
	assert.True(t, ext.Retryable)

	var retry *RetryAfterError
	require.True(t, errors.As(err, &retry))
	assert.Equal(t, 5*time.Second, retry.Delay)
}

func TestCall_ServerErrorIsRetryable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := NewClient(time.Second).AddOrder(context.Background(), testProvider(ts.URL), model.Service{}, model.Order{})

	var ext *model.ExternalServiceError
	require.True(t, errors.As(err, &ext))
	assert.True(t, ext.Retryable)
}

func TestCall_NotConfigured(t *testing.T) {
	_, err := NewClient(0).GetStatus(context.Background(), model.Provider{Name: "empty"}, "1")
	require.Error(t, err)
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		in   string
		want model.OrderStatus
		ok   bool
	}{
		{"Pending", model.OrderProcessing, true},
		{"Processing", model.OrderProcessing, true},
		{"In progress", model.OrderInProgress, true},
		{"Completed", model.OrderCompleted, true},
		{"Partial", model.OrderPartial, true},
		{"Canceled", model.OrderCancelled, true},
		{"Fail", model.OrderFailed, true},
		{"whatever", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := MapStatus(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
