package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type timeoutErr struct{ timeout bool }

func (e *timeoutErr) Error() string   { return "net failure" }
func (e *timeoutErr) Timeout() bool   { return e.timeout }
func (e *timeoutErr) Temporary() bool { return false }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil", err: nil, retryable: false},
		{name: "rate limited", err: &StatusError{StatusCode: http.StatusTooManyRequests}, retryable: true},
		{name: "server error", err: &StatusError{StatusCode: http.StatusBadGateway}, retryable: true},
		{name: "bad request", err: &StatusError{StatusCode: http.StatusBadRequest}, retryable: false},
		{name: "not found", err: &StatusError{StatusCode: http.StatusNotFound}, retryable: false},
		{name: "wrapped status error", err: fmt.Errorf("call failed: %w", &StatusError{StatusCode: 503}), retryable: true},
		{name: "network timeout", err: &timeoutErr{timeout: true}, retryable: true},
		{name: "network failure without timeout", err: &timeoutErr{timeout: false}, retryable: false},
		{name: "plain error", err: errors.New("boom"), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestGetDecodeJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"answer": 42}`)
	}))
	defer srv.Close()

	c := NewClient(DefaultConfig(), testLogger())
	resp, err := c.Get(context.Background(), srv.URL, map[string]string{"Authorization": "Bearer token-1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.ContentType)

	var body struct {
		Answer int `json:"answer"`
	}
	require.NoError(t, resp.DecodeJSON(&body))
	assert.Equal(t, 42, body.Answer)
}

func TestDecodeJSONNonSuccessYieldsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "upstream down")
	}))
	defer srv.Close()

	c := NewClient(DefaultConfig(), testLogger())
	resp, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	var dest map[string]any
	err = resp.DecodeJSON(&dest)
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "upstream down", statusErr.Body)
	assert.True(t, IsRetryable(err))
}

func TestDecodeJSONMalformedBody(t *testing.T) {
	resp := &Response{StatusCode: http.StatusOK, Body: []byte(`{"answer":`)}
	var dest map[string]any
	assert.Error(t, resp.DecodeJSON(&dest))
}

func TestPostJSON(t *testing.T) {
	type echo struct {
		Name string `json:"name"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in echo
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "water pump", in.Name)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name": "water pump"}`)
	}))
	defer srv.Close()

	c := NewClient(DefaultConfig(), testLogger())
	resp, err := c.PostJSON(context.Background(), srv.URL, nil, echo{Name: "water pump"})
	require.NoError(t, err)

	var out echo
	require.NoError(t, resp.DecodeJSON(&out))
	assert.Equal(t, "water pump", out.Name)
}

func TestPostJSONRejectsOversizedBody(t *testing.T) {
	c := NewClient(DefaultConfig(), testLogger())

	huge := make([]string, 0, 1024)
	for i := 0; i < 1024; i++ {
		huge = append(huge, strings.Repeat("a", 8*1024))
	}

	_, err := c.PostJSON(context.Background(), "http://localhost:0", nil, huge)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request body too large")
}

func TestDoRejectsOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		chunk := make([]byte, 1024*1024)
		for i := 0; i < 11; i++ {
			w.Write(chunk)
		}
	}))
	defer srv.Close()

	c := NewClient(DefaultConfig(), testLogger())
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}
