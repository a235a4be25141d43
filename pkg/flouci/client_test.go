package flouci

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestGeneratePayment_SendsExpectedPayload(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate_payment" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"success":true,"payment_id":"pay_123","link":"https://pay.example/pay_123"},"name":"developers"}`))
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL:             server.URL + "/",
		AppToken:            "token",
		AppSecret:           "secret",
		SuccessLink:         "https://example.com/ok",
		FailLink:            "https://example.com/ko",
		DeveloperTrackingID: "tracking",
	}, time.Second, zerolog.Nop())

	resp, err := client.GeneratePayment(context.Background(), decimal.RequireFromString("50.5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result.PaymentID != "pay_123" || !resp.Result.Success {
		t.Fatalf("unexpected parsed result %+v", resp.Result)
	}
	if len(resp.Raw) == 0 {
		t.Fatal("expected raw provider body to be kept")
	}

	if captured["amount"] != 50.5 {
		t.Fatalf("expected numeric amount 50.5, got %v", captured["amount"])
	}
	if captured["session_timeout_secs"] != float64(1200) {
		t.Fatalf("expected default session timeout 1200, got %v", captured["session_timeout_secs"])
	}
	if captured["accept_card"] != true {
		t.Fatalf("expected accept_card true, got %v", captured["accept_card"])
	}
	if captured["app_token"] != "token" || captured["app_secret"] != "secret" {
		t.Fatalf("credentials not forwarded: %v", captured)
	}
	if captured["developer_tracking_id"] != "tracking" {
		t.Fatalf("tracking id not forwarded: %v", captured)
	}
}

func TestGeneratePayment_NonSuccessReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid app_secret"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, time.Second, zerolog.Nop())
	_, err := client.GeneratePayment(context.Background(), decimal.NewFromInt(10))
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", apiErr.StatusCode)
	}
	if apiErr.Body != `{"message":"invalid app_secret"}` {
		t.Fatalf("expected provider body, got %q", apiErr.Body)
	}
}

func TestGeneratePayment_HonoursContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, 5*time.Second, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.GeneratePayment(ctx, decimal.NewFromInt(10)); err == nil {
		t.Fatal("expected deadline error")
	}
}

func TestGeneratePayment_InvalidJSONIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, time.Second, zerolog.Nop())
	if _, err := client.GeneratePayment(context.Background(), decimal.NewFromInt(10)); err == nil {
		t.Fatal("expected decode error")
	}
}
