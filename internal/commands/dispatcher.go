package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/BTreeMap/ArgPipe/internal/fulfill"
	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/prompt"
)

// DefaultPrefix marks chat messages as commands.
const DefaultPrefix = "!"

// DispatcherOpts holds Dispatcher configuration.
type DispatcherOpts struct {
	Prefix string
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*DispatcherOpts)

// WithPrefix sets the command prefix.
func WithPrefix(prefix string) DispatcherOption {
	return func(o *DispatcherOpts) {
		o.Prefix = prefix
	}
}

// Dispatcher routes input to commands.
type Dispatcher struct {
	registry  *Registry
	fulfiller *fulfill.Fulfiller
	messenger prompt.Messenger
	opts      DispatcherOpts
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry *Registry, fulfiller *fulfill.Fulfiller, messenger prompt.Messenger, opts ...DispatcherOption) *Dispatcher {
	o := DispatcherOpts{Prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return &Dispatcher{registry: registry, fulfiller: fulfiller, messenger: messenger, opts: o}
}

// Prefix returns the configured command prefix.
func (d *Dispatcher) Prefix() string {
	return d.opts.Prefix
}

// SplitCommand splits prefixed content into the command name and the rest
// of the text. ok is false when content is not a command.
func SplitCommand(content, prefix string) (name, rest string, ok bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	content = strings.TrimPrefix(content, prefix)
	end := strings.IndexFunc(content, unicode.IsSpace)
	if end < 0 {
		name = content
	} else {
		name, rest = content[:end], strings.TrimSpace(content[end:])
	}
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), rest, true
}

// HandleMessage runs the command in msg, if any. It reports whether msg was
// a command. Resolution failures are explained to the user and returned.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg models.Message) (bool, error) {
	name, rest, ok := SplitCommand(msg.Content, d.opts.Prefix)
	if !ok {
		return false, nil
	}
	inv := models.Invocation{ChannelID: msg.ChannelID, UserID: msg.UserID, Command: name}

	cmd, found := d.registry.Get(name)
	if !found {
		slog.Debug("Dispatcher unknown command", "command", name, "channel", msg.ChannelID)
		d.reply(ctx, inv, fmt.Sprintf("Unknown command `%s%s`.", d.opts.Prefix, name))
		return true, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	inv.Command = cmd.Name

	slog.Info("Dispatcher running command", "command", cmd.Name, "channel", msg.ChannelID, "user", msg.UserID)
	args, err := d.fulfiller.FulfillText(ctx, inv, cmd.Options, rest)
	return true, d.run(ctx, cmd, inv, args, err)
}

// HandleInteraction runs the command named by a structured payload.
func (d *Dispatcher) HandleInteraction(ctx context.Context, it models.Interaction) error {
	inv := it.Invocation()
	cmd, found := d.registry.Get(it.Command)
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, it.Command)
	}
	inv.Command = cmd.Name

	slog.Info("Dispatcher running interaction", "command", cmd.Name, "channel", it.ChannelID, "user", it.UserID, "id", it.ID)
	args, err := d.fulfiller.FulfillInteraction(ctx, it, cmd.Options)
	return d.run(ctx, cmd, inv, args, err)
}

func (d *Dispatcher) run(ctx context.Context, cmd *Command, inv models.Invocation, args map[string]any, err error) error {
	if err != nil {
		slog.Info("Dispatcher could not resolve arguments", "command", cmd.Name, "user", inv.UserID, "error", err)
		if text := Describe(err); text != "" {
			d.reply(ctx, inv, text)
		}
		return err
	}
	if cmd.Handler == nil {
		return fmt.Errorf("%w: %s", ErrNoHandler, cmd.Name)
	}
	if err := cmd.Handler(ctx, NewContext(inv, d.messenger), Args(args)); err != nil {
		slog.Error("Dispatcher command failed", "command", cmd.Name, "error", err)
		return fmt.Errorf("command %s failed: %w", cmd.Name, err)
	}
	return nil
}

func (d *Dispatcher) reply(ctx context.Context, inv models.Invocation, text string) {
	if d.messenger == nil {
		return
	}
	if _, err := d.messenger.Send(ctx, inv.ChannelID, text); err != nil {
		slog.Error("Dispatcher failed to send reply", "channel", inv.ChannelID, "error", err)
	}
}

// Describe turns a resolution failure into user-facing text. Superseded
// prompts return "" since a newer command already owns the conversation.
func Describe(err error) string {
	slot := "input"
	var resErr *models.ResolutionError
	if errors.As(err, &resErr) {
		slot = resErr.Slot
	}

	switch {
	case errors.Is(err, prompt.ErrSuperseded):
		return ""
	case errors.Is(err, prompt.ErrTimedOut):
		return "You ran out of time to answer."
	case errors.Is(err, prompt.ErrCancelled):
		return "Cancelled."
	case errors.Is(err, prompt.ErrRetryLimit):
		return fmt.Sprintf("Too many invalid answers for `%s`. Giving up.", slot)
	case errors.Is(err, prompt.ErrAborted), errors.Is(err, prompt.ErrStopped):
		return "The command was interrupted."
	case errors.Is(err, models.ErrMissingArgument):
		return fmt.Sprintf("Missing required argument `%s`.", slot)
	case errors.Is(err, fulfill.ErrAmbiguous):
		return fmt.Sprintf("`%s` matched several values. Please be more specific.", slot)
	}
	return fmt.Sprintf("Could not read `%s`.", slot)
}
