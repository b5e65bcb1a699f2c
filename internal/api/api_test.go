package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/ArgPipe/internal/commands"
	"github.com/BTreeMap/ArgPipe/internal/fulfill"
	"github.com/BTreeMap/ArgPipe/internal/messaging"
	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/prompt"
	"github.com/BTreeMap/ArgPipe/internal/resolver"
	"github.com/BTreeMap/ArgPipe/internal/testutil"
	"github.com/BTreeMap/ArgPipe/internal/twiliowhatsapp"
)

type testServer struct {
	server    *Server
	messenger *testutil.RecordingMessenger
	collector *prompt.Collector
	greeted   chan string
}

// newTestServer builds a server with a single "greet" command whose
// name argument is prompted for when missing.
func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	messenger := testutil.NewRecordingMessenger()
	collector := prompt.NewCollector(messenger)
	t.Cleanup(collector.Stop)

	resolvers := resolver.NewRegistry()
	registry := commands.NewRegistry(resolvers)
	err := registry.Register(commands.Command{
		Name:        "greet",
		Description: "Say hello",
		Options: []models.Slot{{
			Name:     "name",
			Required: true,
			Rest:     true,
			Prompt:   &models.PromptSpec{Start: "Who should I greet?", Timeout: 2 * time.Second},
		}},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	greeted := make(chan string, 4)
	_ = registry.Bind("greet", func(ctx context.Context, cc *commands.Context, args commands.Args) error {
		greeted <- args.String("name")
		return nil
	})

	dispatcher := commands.NewDispatcher(registry, fulfill.New(resolvers, collector), messenger)
	router := messaging.NewRouter(collector, dispatcher)
	return &testServer{
		server:    NewServer(registry, dispatcher, router, collector, opts...),
		messenger: messenger,
		collector: collector,
		greeted:   greeted,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.CreateHTTPRequest(t, method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) waitGreeting(t *testing.T) string {
	t.Helper()
	select {
	case name := <-ts.greeted:
		return name
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for greet handler")
		return ""
	}
}

func TestInteractionsHandler_Accepted(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodPost, "/interactions", models.Interaction{
		ChannelID: "c",
		UserID:    "u",
		Command:   "greet",
		Options:   []models.InteractionOption{{Name: "name", Value: "Ada"}},
	})

	testutil.AssertHTTPStatus(t, http.StatusAccepted, rr.Code, "interaction accepted")
	resp := testutil.AssertJSONResponse(t, rr, "accepted")
	if result, ok := resp["result"].(map[string]interface{}); !ok || result["id"] == "" {
		t.Errorf("expected generated interaction id, got %v", resp["result"])
	}
	if name := ts.waitGreeting(t); name != "Ada" {
		t.Errorf("expected Ada, got %q", name)
	}
	ts.server.Wait()
}

func TestInteractionsHandler_PromptsThroughMessages(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodPost, "/interactions", models.Interaction{ChannelID: "c", UserID: "u", Command: "greet"})
	testutil.AssertHTTPStatus(t, http.StatusAccepted, rr.Code, "interaction accepted")

	sent := ts.messenger.WaitForSends(t, 1)
	if sent[0].Content != "Who should I greet?" {
		t.Fatalf("expected prompt, got %q", sent[0].Content)
	}

	rr = ts.do(t, http.MethodGet, "/prompts", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "list prompts")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	if pending, ok := resp["result"].([]interface{}); !ok || len(pending) != 1 {
		t.Fatalf("expected one pending prompt, got %v", resp["result"])
	}

	rr = ts.do(t, http.MethodPost, "/messages", models.Message{ChannelID: "c", UserID: "u", Content: "Grace"})
	testutil.AssertHTTPStatus(t, http.StatusAccepted, rr.Code, "reply accepted")
	if name := ts.waitGreeting(t); name != "Grace" {
		t.Errorf("expected Grace, got %q", name)
	}
	ts.server.Wait()
}

func TestInteractionsHandler_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		body   interface{}
		status int
	}{
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed},
		{"invalid JSON", http.MethodPost, "not an object", http.StatusBadRequest},
		{"missing user", http.MethodPost, models.Interaction{ChannelID: "c", Command: "greet"}, http.StatusBadRequest},
		{"unknown command", http.MethodPost, models.Interaction{ChannelID: "c", UserID: "u", Command: "nope"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, tt.method, "/interactions", tt.body)
			testutil.AssertHTTPStatus(t, tt.status, rr.Code, tt.name)
			testutil.AssertJSONResponse(t, rr, "error")
		})
	}
}

func TestMessagesHandler_RunsCommand(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodPost, "/messages", models.Message{ChannelID: "c", UserID: "u", Content: "!greet Alan Turing"})
	testutil.AssertHTTPStatus(t, http.StatusAccepted, rr.Code, "message accepted")
	if name := ts.waitGreeting(t); name != "Alan Turing" {
		t.Errorf("expected Alan Turing, got %q", name)
	}

	rr = ts.do(t, http.MethodPost, "/messages", models.Message{Content: "!greet x"})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing ids")
}

func TestCommandsHandler(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/commands", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "list commands")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	list, ok := resp["result"].([]interface{})
	if !ok || len(list) != 1 {
		t.Fatalf("expected one command, got %v", resp["result"])
	}
	if cmd := list[0].(map[string]interface{}); cmd["name"] != "greet" {
		t.Errorf("unexpected command: %v", cmd)
	}
}

func TestTwilioWebhookMounted(t *testing.T) {
	svc := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	defer svc.Stop()
	ts := newTestServer(t, WithTwilioWebhook(svc))

	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"hello"}}
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "twilio webhook")

	select {
	case msg := <-svc.Incoming():
		if msg.UserID != "15551234567" || msg.Content != "hello" {
			t.Errorf("unexpected message: %+v", msg)
		}
	default:
		t.Fatal("expected webhook message on incoming channel")
	}
}

func TestTwilioWebhookNotMountedByDefault(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", nil)
	rr := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "no webhook")
}

func TestRunShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t, WithAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.server.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(DefaultShutdownTimeout):
		t.Fatal("Run did not return after cancel")
	}
}
