package whatsapp

import (
	"context"
	"testing"
)

func TestWithDBDSNOption(t *testing.T) {
	opts := &Opts{}

	testDSN := "/var/lib/argpipe/test.db"
	WithDBDSN(testDSN)(opts)

	if opts.DBDSN != testDSN {
		t.Errorf("Expected DBDSN to be %q, got %q", testDSN, opts.DBDSN)
	}
}

func TestWithQRCodeOutputOption(t *testing.T) {
	opts := &Opts{}

	testPath := "/tmp/qr.txt"
	WithQRCodeOutput(testPath)(opts)

	if opts.QRPath != testPath {
		t.Errorf("Expected QRPath to be %q, got %q", testPath, opts.QRPath)
	}
}

func TestWithNumericCodeOption(t *testing.T) {
	opts := &Opts{}

	WithNumericCode()(opts)

	if !opts.NumericCode {
		t.Errorf("Expected NumericCode to be true, got false")
	}
}

func TestParseChat(t *testing.T) {
	tests := []struct {
		name    string
		chat    string
		want    string
		wantErr bool
	}{
		{"phone number", "15551234", "15551234@s.whatsapp.net", false},
		{"phone number with plus", "+15551234", "15551234@s.whatsapp.net", false},
		{"user JID", "15551234@s.whatsapp.net", "15551234@s.whatsapp.net", false},
		{"group JID", "120363-1234@g.us", "120363-1234@g.us", false},
		{"empty", "  ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jid, err := ParseChat(tt.chat)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseChat(%q) error = %v, wantErr %v", tt.chat, err, tt.wantErr)
			}
			if !tt.wantErr && jid.String() != tt.want {
				t.Errorf("ParseChat(%q) = %q, want %q", tt.chat, jid.String(), tt.want)
			}
		})
	}
}

func TestMockClientRecordsMessages(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient()

	id, err := m.SendText(ctx, "15551234", "hello")
	if err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if id != "wa-1" {
		t.Errorf("expected id wa-1, got %q", id)
	}
	if _, err := m.SendText(ctx, "", "hello"); err == nil {
		t.Error("expected error for empty chat")
	}
	if err := m.EditText(ctx, "15551234", id, "edited"); err != nil {
		t.Fatalf("EditText failed: %v", err)
	}
	if err := m.Revoke(ctx, "15551234", id); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if len(m.Sent) != 1 || len(m.Edited) != 1 || m.Edited[0].Body != "edited" || len(m.Revoked) != 1 {
		t.Errorf("unexpected recorded state: %+v", m)
	}
}
