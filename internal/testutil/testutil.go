// Package testutil provides common test utilities and fakes for ArgPipe tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/ArgPipe/internal/models"
)

// ErrUnknownMessage is returned by RecordingMessenger for refs it never issued.
var ErrUnknownMessage = errors.New("unknown message")

// SentMessage is one message recorded by RecordingMessenger.
type SentMessage struct {
	Ref     models.MessageRef
	Content string
}

// RecordingMessenger records every send, edit and delete in memory.
type RecordingMessenger struct {
	mu      sync.Mutex
	nextID  int
	sent    []SentMessage
	edits   []SentMessage
	deleted []models.MessageRef
	live    map[models.MessageRef]bool

	// SendErr, when set, is returned by Send.
	SendErr error
}

// NewRecordingMessenger creates an empty RecordingMessenger.
func NewRecordingMessenger() *RecordingMessenger {
	return &RecordingMessenger{live: make(map[models.MessageRef]bool)}
}

// Send records content and returns a sequential message ref.
func (m *RecordingMessenger) Send(_ context.Context, channelID, content string) (models.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return models.MessageRef{}, m.SendErr
	}
	m.nextID++
	ref := models.MessageRef{ChannelID: channelID, ID: fmt.Sprintf("msg-%d", m.nextID)}
	m.sent = append(m.sent, SentMessage{Ref: ref, Content: content})
	m.live[ref] = true
	return ref, nil
}

// Edit records the new content of a previously sent message.
func (m *RecordingMessenger) Edit(_ context.Context, ref models.MessageRef, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live[ref] {
		return ErrUnknownMessage
	}
	m.edits = append(m.edits, SentMessage{Ref: ref, Content: content})
	return nil
}

// Delete records the deletion of a previously sent message.
func (m *RecordingMessenger) Delete(_ context.Context, ref models.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live[ref] {
		return ErrUnknownMessage
	}
	delete(m.live, ref)
	m.deleted = append(m.deleted, ref)
	return nil
}

// Sent returns a copy of all sent messages.
func (m *RecordingMessenger) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// Edits returns a copy of all edits.
func (m *RecordingMessenger) Edits() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.edits...)
}

// Deleted returns a copy of all deleted refs.
func (m *RecordingMessenger) Deleted() []models.MessageRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.MessageRef(nil), m.deleted...)
}

// WaitForSends blocks until at least n messages were sent and returns them.
func (m *RecordingMessenger) WaitForSends(t testing.TB, n int) []SentMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		sent := m.Sent()
		if len(sent) >= n {
			return sent
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d sent messages, got %d: %+v", n, len(sent), sent)
		}
		time.Sleep(time.Millisecond)
	}
}

// StaticDirectory serves fixed members, channels and roles.
type StaticDirectory struct {
	mu       sync.RWMutex
	members  []models.Member
	channels []models.Channel
	roles    []models.Role
	Err      error
}

// NewStaticDirectory creates a directory holding members.
func NewStaticDirectory(members ...models.Member) *StaticDirectory {
	return &StaticDirectory{members: members}
}

// AddChannel adds a channel.
func (d *StaticDirectory) AddChannel(c models.Channel) {
	d.mu.Lock()
	d.channels = append(d.channels, c)
	d.mu.Unlock()
}

// AddRole adds a role.
func (d *StaticDirectory) AddRole(r models.Role) {
	d.mu.Lock()
	d.roles = append(d.roles, r)
	d.mu.Unlock()
}

// Members returns members of channelID. Members without a channel are
// visible everywhere.
func (d *StaticDirectory) Members(_ context.Context, channelID string) ([]models.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.Err != nil {
		return nil, d.Err
	}
	var out []models.Member
	for _, m := range d.members {
		if m.ChannelID == "" || m.ChannelID == channelID {
			out = append(out, m)
		}
	}
	return out, nil
}

// Channels returns all channels.
func (d *StaticDirectory) Channels(context.Context) ([]models.Channel, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.Channel(nil), d.channels...), d.Err
}

// Roles returns all roles.
func (d *StaticDirectory) Roles(context.Context) ([]models.Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.Role(nil), d.roles...), d.Err
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t testing.TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t testing.TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
