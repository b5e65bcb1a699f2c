package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/ArgPipe/internal/models"
)

// interactionsHandler accepts a structured command payload and fulfills it
// in the background, since prompts may keep it open for a while.
func (s *Server) interactionsHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var it models.Interaction
	if !decodeJSON(w, r, "interactionsHandler", &it) {
		return
	}
	if strings.TrimSpace(it.ChannelID) == "" || strings.TrimSpace(it.UserID) == "" || strings.TrimSpace(it.Command) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("channel_id, user_id and command are required"))
		return
	}
	if _, ok := s.registry.Get(it.Command); !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown command: "+it.Command))
		return
	}

	if it.ID == "" {
		it.ID = uuid.NewString()
	}

	ctx := context.WithoutCancel(r.Context())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.dispatcher.HandleInteraction(ctx, it); err != nil {
			slog.Info("Server.interactionsHandler: interaction ended with error", "command", it.Command, "user", it.UserID, "error", err)
		}
	}()

	slog.Debug("Server.interactionsHandler: interaction accepted", "id", it.ID, "command", it.Command, "channel", it.ChannelID, "user", it.UserID)
	writeJSONResponse(w, http.StatusAccepted, models.NewAPIResponseBuilder().
		WithStatus(models.APIStatusAccepted).
		WithMessage("Interaction accepted").
		WithResult(map[string]string{"id": it.ID}).
		Build())
}

// messagesHandler injects a chat message as if a transport had received it.
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var msg models.Message
	if !decodeJSON(w, r, "messagesHandler", &msg) {
		return
	}
	if strings.TrimSpace(msg.ChannelID) == "" || strings.TrimSpace(msg.UserID) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("channel_id and user_id are required"))
		return
	}
	if msg.Time == 0 {
		msg.Time = time.Now().Unix()
	}

	s.router.Handle(context.WithoutCancel(r.Context()), msg)
	writeJSONResponse(w, http.StatusAccepted, models.Accepted("Message accepted"))
}

// promptsHandler lists pending prompt collections.
func (s *Server) promptsHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.collector.Pending()))
}

// commandsHandler lists registered commands and their schemas.
func (s *Server) commandsHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.registry.List()))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}
