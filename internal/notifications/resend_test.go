package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/resend/resend-go/v2"
)

func TestResendSender_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/emails" {
			t.Errorf("expected POST /emails, got %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var req resend.SendEmailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.From != "certs@example.com" || len(req.To) != 1 || req.To[0] != "ada@example.com" {
			t.Errorf("unexpected addressing: %+v", req)
		}
		if !strings.Contains(req.Html, "certificate") {
			t.Errorf("unexpected html: %q", req.Html)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "email-1"})
	}))
	defer srv.Close()

	client := resend.NewClient("test-key")
	base, _ := url.Parse(srv.URL)
	client.BaseURL = base

	s := newResendSender(client, "certs@example.com", nil)

	err := s.Send(context.Background(), Message{
		Kind:    "certificate-issued",
		To:      "ada@example.com",
		Subject: "Your certificate is ready",
		HTML:    "<p>your certificate</p>",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestResendSender_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"bad from"}`))
	}))
	defer srv.Close()

	client := resend.NewClient("test-key")
	base, _ := url.Parse(srv.URL)
	client.BaseURL = base

	s := newResendSender(client, "certs@example.com", nil)

	if err := s.Send(context.Background(), Message{To: "ada@example.com"}); err == nil {
		t.Fatalf("expected error")
	}
}
