package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/twiliowhatsapp"
)

func TestTwilioService_ImplementsService(t *testing.T) {
	var _ Service = (*TwilioService)(nil)
}

func TestTwilioService_ValidateAndCanonicalizeRecipient(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+1 (555) 123-4567", "15551234567", false},
		{"whatsapp:+15551234567", "15551234567", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
	}
	for _, tt := range tests {
		got, err := svc.ValidateAndCanonicalizeRecipient(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestTwilioService_SendEditDelete(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	ctx := context.Background()

	ref, err := svc.Send(ctx, "+1 555 123 4567", "hello")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if ref.ChannelID != "15551234567" || ref.ID != "SM1" {
		t.Errorf("unexpected ref: %+v", ref)
	}

	if err := svc.Edit(ctx, ref, "updated"); err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	msgs := mock.Messages()
	if len(msgs) != 2 || msgs[1].Body != "updated" || msgs[1].To != "+15551234567" {
		t.Errorf("expected edit to send a new message, got %+v", msgs)
	}

	if err := svc.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(mock.Deleted) != 1 || mock.Deleted[0] != "SM1" {
		t.Errorf("expected SM1 deleted, got %v", mock.Deleted)
	}
}

func TestTwilioService_SendError(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	mock.SendErr = errors.New("twilio down")
	svc := NewTwilioService(mock)
	if _, err := svc.Send(context.Background(), "15551234567", "hello"); err == nil {
		t.Fatal("expected send error")
	}
}

func postWebhook(svc *TwilioService, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	svc.TwilioWebhookHandler(rr, req)
	return rr
}

func TestTwilioService_Webhook(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	rr := postWebhook(svc, url.Values{
		"From":        {"whatsapp:+15551234567"},
		"Body":        {"!ping"},
		"MessageSid":  {"SM42"},
		"ProfileName": {"Alice"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	select {
	case msg := <-svc.Incoming():
		want := models.Message{ID: "SM42", ChannelID: "15551234567", UserID: "15551234567", UserName: "Alice", Content: "!ping", Time: msg.Time}
		if msg != want {
			t.Errorf("unexpected message: %+v", msg)
		}
	default:
		t.Fatal("expected incoming message")
	}

	if rr := postWebhook(svc, url.Values{"From": {"whatsapp:+15551234567"}}); rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing body, got %d", rr.Code)
	}

	svc.Stop()
	if rr := postWebhook(svc, url.Values{"From": {"+15551234567"}, "Body": {"hi"}}); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after stop, got %d", rr.Code)
	}
}
