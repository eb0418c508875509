package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(maxRetries int) Config {
	return Config{
		Timeout:         2 * time.Second,
		MaxRetries:      maxRetries,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      2 * time.Millisecond,
		RateLimitPerMin: 60000,
	}
}

func TestClient_GetJSON(t *testing.T) {
	type payload struct {
		Value int `json:"value"`
	}

	tests := []struct {
		name          string
		status        []int
		body          string
		parser        ErrorParser
		maxRetries    int
		wantErr       string
		wantCalls     int32
		wantRetryable bool
	}{
		{
			name:      "success",
			status:    []int{http.StatusOK},
			body:      `{"value": 7}`,
			wantCalls: 1,
		},
		{
			name:       "retries server error then succeeds",
			status:     []int{http.StatusBadGateway, http.StatusOK},
			body:       `{"value": 7}`,
			maxRetries: 2,
			wantCalls:  2,
		},
		{
			name:          "exhausts retries on 429",
			status:        []int{http.StatusTooManyRequests},
			maxRetries:    1,
			wantErr:       "rate limited",
			wantCalls:     2,
			wantRetryable: true,
		},
		{
			name:       "client error is not retried",
			status:     []int{http.StatusUnauthorized},
			body:       `denied`,
			maxRetries: 3,
			wantErr:    "client error (HTTP 401): denied",
			wantCalls:  1,
		},
		{
			name:       "malformed payload is not retried",
			status:     []int{http.StatusOK},
			body:       `{not json`,
			maxRetries: 3,
			wantErr:    "parsing response",
			wantCalls:  1,
		},
		{
			name:   "error parser claims a 200 body",
			status: []int{http.StatusOK},
			body:   `{"value": -1}`,
			parser: func(_ int, body []byte) error {
				if strings.Contains(string(body), "-1") {
					return errors.New("api says no")
				}
				return nil
			},
			maxRetries: 3,
			wantErr:    "api says no",
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(calls.Add(1)) - 1
				if r.Header.Get("X-Test") != "yes" {
					t.Error("custom header not sent")
				}
				status := tt.status[len(tt.status)-1]
				if n < len(tt.status) {
					status = tt.status[n]
				}
				w.WriteHeader(status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(testConfig(tt.maxRetries), nil, tt.parser)

			var out payload
			err := client.GetJSON(context.Background(), RequestConfig{
				URL:     server.URL,
				Headers: map[string]string{"X-Test": "yes"},
			}, &out)

			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, got)
			}
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if out.Value != 7 {
					t.Errorf("expected value 7, got %d", out.Value)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
			if IsRetryable(err) != tt.wantRetryable {
				t.Errorf("IsRetryable() = %v, want %v", IsRetryable(err), tt.wantRetryable)
			}
		})
	}
}

func TestClient_GetJSON_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(testConfig(0), nil, nil)
	var out map[string]any
	if err := client.GetJSON(ctx, RequestConfig{URL: server.URL}, &out); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
