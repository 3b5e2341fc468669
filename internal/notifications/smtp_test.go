package notifications

import (
	"errors"
	"strings"
	"testing"

	"github.com/geocoder89/certhub/internal/config"
)

func TestNewSMTPSender_RejectsBadSender(t *testing.T) {
	_, err := NewSMTPSender(config.EmailConfig{From: "not an address", SMTPHost: "smtp.example.com"})
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestBuildMIME_StripsSubjectNewlines(t *testing.T) {
	raw := string(buildMIME("from@example.com", Message{
		To:      "to@example.com",
		Subject: "hello\r\nBcc: evil@example.com",
		HTML:    "<p>x</p>",
	}))

	if strings.Contains(raw, "\r\nBcc:") {
		t.Fatalf("header injection survived: %q", raw)
	}
	if !strings.Contains(raw, "Content-Type: text/html; charset=UTF-8") {
		t.Fatalf("missing content type: %q", raw)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(config.EmailConfig{Provider: "pigeon"}, nil); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
