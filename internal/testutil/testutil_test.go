package testutil

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/ArgPipe/internal/models"
)

func TestRecordingMessenger(t *testing.T) {
	ctx := context.Background()
	m := NewRecordingMessenger()

	ref, err := m.Send(ctx, "chan", "hello")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if ref.ChannelID != "chan" || ref.ID == "" {
		t.Errorf("unexpected ref: %+v", ref)
	}
	if err := m.Edit(ctx, ref, "edited"); err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if err := m.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := m.Delete(ctx, ref); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("expected ErrUnknownMessage on second delete, got %v", err)
	}

	if got := m.Sent(); len(got) != 1 || got[0].Content != "hello" {
		t.Errorf("unexpected sent messages: %+v", got)
	}
	if got := m.Edits(); len(got) != 1 || got[0].Content != "edited" {
		t.Errorf("unexpected edits: %+v", got)
	}
	if got := m.Deleted(); len(got) != 1 || got[0] != ref {
		t.Errorf("unexpected deletions: %+v", got)
	}
}

func TestRecordingMessengerSendError(t *testing.T) {
	m := NewRecordingMessenger()
	m.SendErr = errors.New("offline")
	if _, err := m.Send(context.Background(), "chan", "x"); err == nil {
		t.Fatal("expected send error")
	}
	if len(m.Sent()) != 0 {
		t.Error("failed send should not be recorded")
	}
}

func TestStaticDirectoryScopesMembers(t *testing.T) {
	d := NewStaticDirectory(
		models.Member{ID: "1", Name: "Alice", ChannelID: "a"},
		models.Member{ID: "2", Name: "Bob", ChannelID: "b"},
		models.Member{ID: "3", Name: "Carol"},
	)
	got, err := d.Members(context.Background(), "a")
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("unexpected members: %+v", got)
	}
}

func TestAssertJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.WriteString(`{"status":"ok","result":{"count":5}}`)
	response := AssertJSONResponse(t, rr, "ok")
	if _, ok := response["result"]; !ok {
		t.Error("expected result field")
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, "POST", "/messages", map[string]string{"content": "!ping"})
	if req.Method != "POST" || req.URL.Path != "/messages" {
		t.Errorf("unexpected request: %s %s", req.Method, req.URL.Path)
	}
	var body map[string]string
	buf := make([]byte, req.ContentLength)
	if _, err := req.Body.Read(buf); err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	MustUnmarshalJSON(t, buf, &body)
	if body["content"] != "!ping" {
		t.Errorf("unexpected body: %v", body)
	}
}
