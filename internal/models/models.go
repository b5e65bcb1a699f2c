// Package models defines the core data structures for ArgPipe.
//
// It includes the command schema, parser output, chat messages and interaction
// payloads, which are shared across modules.
package models

// Message represents an incoming chat message from a user.
type Message struct {
	ID        string `json:"id,omitempty"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
	Content   string `json:"content"`
	Time      int64  `json:"time"`
}

// MessageRef identifies a message the bot has sent so it can be edited or deleted later.
type MessageRef struct {
	ChannelID string `json:"channel_id"`
	ID        string `json:"id"`
}

// Invocation identifies who ran a command and where.
type Invocation struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Command   string `json:"command,omitempty"`
}

// Interaction is a structured slash-command payload. Subcommands and
// subcommand groups appear as options carrying nested options.
type Interaction struct {
	ID        string              `json:"id,omitempty"`
	ChannelID string              `json:"channel_id"`
	UserID    string              `json:"user_id"`
	GuildID   string              `json:"guild_id,omitempty"`
	Command   string              `json:"command"`
	Options   []InteractionOption `json:"options,omitempty"`
}

// Invocation returns the invocation described by the interaction.
func (i Interaction) Invocation() Invocation {
	return Invocation{ChannelID: i.ChannelID, UserID: i.UserID, GuildID: i.GuildID, Command: i.Command}
}

// InteractionOption is one named entry of an interaction payload.
type InteractionOption struct {
	Name    string              `json:"name"`
	Value   any                 `json:"value,omitempty"`
	Options []InteractionOption `json:"options,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusAccepted indicates an API request was queued for asynchronous handling.
	APIStatusAccepted APIStatus = "accepted"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// Accepted creates a response for work that continues after the request returns.
func Accepted(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusAccepted).
		WithMessage(message).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
