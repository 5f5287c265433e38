package functions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/smm-panel/internal/model"
)

func TestInvoke_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/functions/v1/send-2fa-code", r.URL.Path)
		assert.Equal(t, "Bearer anon", r.Header.Get("Authorization"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "123456", in["code"])

		_, _ = w.Write([]byte(`{"success":true,"url":"https://pay.example/1"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL+"/", "anon", time.Second)

	var out struct {
		Success bool   `json:"success"`
		URL     string `json:"url"`
	}
	err := c.Invoke(context.Background(), "send-2fa-code", map[string]string{"code": "123456"}, &out)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "https://pay.example/1", out.URL)
}

func TestInvoke_ErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"invoice rejected"}}`))
	}))
	defer ts.Close()

	err := NewClient(ts.URL, "", time.Second).Invoke(context.Background(), "cryptomus-payment", nil, nil)

	var ext *model.ExternalServiceError
	require.True(t, errors.As(err, &ext))
	assert.False(t, ext.Retryable)
	assert.Contains(t, err.Error(), "invoice rejected")
}

func TestInvoke_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	err := NewClient(ts.URL, "", time.Second).Invoke(context.Background(), "x", nil, nil)

	var ext *model.ExternalServiceError
	require.True(t, errors.As(err, &ext))
	assert.True(t, ext.Retryable)
}

func TestInvoke_NotConfigured(t *testing.T) {
	err := NewClient("", "", 0).Invoke(context.Background(), "x", nil, nil)
	require.Error(t, err)

	var c *Client
	require.Error(t, c.Invoke(context.Background(), "x", nil, nil))
}
