package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/certhub/internal/domain/job"
	"github.com/geocoder89/certhub/internal/domain/notification"
)

func TestEncodeDecode_SendNotification(t *testing.T) {
	payload := SendNotificationPayload{
		Kind:        string(notification.KindCertificateIssued),
		To:          "ada@example.com",
		Name:        "Ada",
		Data:        map[string]string{"certificateCode": "CERT-01"},
		RequestedAt: time.Now().UTC(),
	}

	b, err := EncodePayload(JobSendNotification, payload)
	if err != nil {
		t.Fatalf("EncodePayload error: %v", err)
	}

	j := job.New(job.CreateRequest{Type: string(JobSendNotification), Payload: b})

	decoded, err := DecodePayload(j)
	if err != nil {
		t.Fatalf("DecodePayload error: %v", err)
	}

	p, ok := decoded.(SendNotificationPayload)
	if !ok {
		t.Fatalf("expected SendNotificationPayload, got %T", decoded)
	}

	if p.To != payload.To || p.Data["certificateCode"] != "CERT-01" {
		t.Fatalf("round trip mismatch: %+v", p)
	}
}

func TestEncodePayload_TypeMismatch(t *testing.T) {
	_, err := EncodePayload(JobSendNotification, map[string]string{"to": "x@example.com"})
	if !errors.Is(err, ErrPayloadTypeMismatch) {
		t.Fatalf("expected ErrPayloadTypeMismatch, got %v", err)
	}
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload SendNotificationPayload
		wantErr error
	}{
		{"unknown kind", SendNotificationPayload{Kind: "birthday", To: "a@b.c"}, notification.ErrUnknownKind},
		{"missing recipient", SendNotificationPayload{Kind: string(notification.KindAccountCreated), To: "  "}, ErrInvalidJobPayload},
		{"ok", SendNotificationPayload{Kind: string(notification.KindAccountCreated), To: "a@b.c"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(JobSendNotification, tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodePayload_UnknownType(t *testing.T) {
	_, err := DecodePayload(job.Job{Type: "publish_event", Payload: []byte(`{}`)})
	if !errors.Is(err, ErrInvalidJobType) {
		t.Fatalf("expected ErrInvalidJobType, got %v", err)
	}
}
