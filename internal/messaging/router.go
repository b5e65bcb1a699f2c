package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/ArgPipe/internal/commands"
	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/prompt"
)

// MemberRecorder remembers who has spoken in which channel.
type MemberRecorder interface {
	RecordMember(ctx context.Context, m models.Member) error
}

// InboundRecorder reports whether an inbound message id is new.
type InboundRecorder interface {
	RecordInbound(ctx context.Context, channelID, messageID string) (bool, error)
}

// RouterOpts holds Router configuration.
type RouterOpts struct {
	Members MemberRecorder
	Inbound InboundRecorder
}

// RouterOption configures a Router.
type RouterOption func(*RouterOpts)

// WithMemberRecorder records every message sender as a channel member.
func WithMemberRecorder(rec MemberRecorder) RouterOption {
	return func(o *RouterOpts) {
		o.Members = rec
	}
}

// WithDeduplication drops messages whose id was already handled.
func WithDeduplication(rec InboundRecorder) RouterOption {
	return func(o *RouterOpts) {
		o.Inbound = rec
	}
}

// Router feeds incoming messages into the pipeline. A message answering a
// pending prompt goes to the collector; any other message may start a
// command. Commands run in their own goroutines so a command waiting on a
// prompt never blocks the reply that completes it.
//
// Messages are routed on one lane per sender: a sender's messages are handled
// in arrival order, and a slow reply validation only holds up that sender.
type Router struct {
	collector  *prompt.Collector
	dispatcher *commands.Dispatcher
	opts       RouterOpts
	wg         sync.WaitGroup

	mu    sync.Mutex
	lanes map[prompt.Key][]models.Message // queued messages per active lane
}

// NewRouter creates a Router.
func NewRouter(collector *prompt.Collector, dispatcher *commands.Dispatcher, opts ...RouterOption) *Router {
	var o RouterOpts
	for _, opt := range opts {
		opt(&o)
	}
	return &Router{collector: collector, dispatcher: dispatcher, opts: o, lanes: make(map[prompt.Key][]models.Message)}
}

// Handle queues one message on its sender's lane and returns without
// waiting for it to be routed.
func (r *Router) Handle(ctx context.Context, msg models.Message) {
	key := prompt.Key{ChannelID: msg.ChannelID, UserID: msg.UserID}

	r.mu.Lock()
	if queue, active := r.lanes[key]; active {
		r.lanes[key] = append(queue, msg)
		r.mu.Unlock()
		return
	}
	r.lanes[key] = nil
	r.wg.Add(1)
	r.mu.Unlock()

	go r.drain(ctx, key, msg)
}

// drain routes msg and then every message queued behind it on the lane.
func (r *Router) drain(ctx context.Context, key prompt.Key, msg models.Message) {
	defer r.wg.Done()
	for {
		r.route(ctx, msg)

		r.mu.Lock()
		queue := r.lanes[key]
		if len(queue) == 0 {
			delete(r.lanes, key)
			r.mu.Unlock()
			return
		}
		msg = queue[0]
		r.lanes[key] = queue[1:]
		r.mu.Unlock()
	}
}

// route delivers msg to a pending prompt or starts its command.
func (r *Router) route(ctx context.Context, msg models.Message) {
	if r.duplicate(ctx, msg) {
		slog.Debug("Router dropped duplicate message", "channel", msg.ChannelID, "id", msg.ID)
		return
	}
	if r.opts.Members != nil && msg.UserID != "" {
		member := models.Member{ID: msg.UserID, Name: msg.UserName, ChannelID: msg.ChannelID}
		if err := r.opts.Members.RecordMember(ctx, member); err != nil {
			slog.Warn("Router failed to record member", "error", err, "user", msg.UserID)
		}
	}

	if r.collector != nil && r.collector.Deliver(ctx, msg) {
		slog.Debug("Router delivered reply to pending prompt", "channel", msg.ChannelID, "user", msg.UserID)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.dispatcher.HandleMessage(ctx, msg); err != nil {
			slog.Debug("Router command ended with error", "channel", msg.ChannelID, "user", msg.UserID, "error", err)
		}
	}()
}

// duplicate reports whether msg was handled before. Messages without an id
// are never duplicates; a failing recorder lets the message through.
func (r *Router) duplicate(ctx context.Context, msg models.Message) bool {
	if r.opts.Inbound == nil || msg.ID == "" {
		return false
	}
	fresh, err := r.opts.Inbound.RecordInbound(ctx, msg.ChannelID, msg.ID)
	if err != nil {
		slog.Warn("Router failed to record inbound message", "error", err, "channel", msg.ChannelID, "id", msg.ID)
		return false
	}
	return !fresh
}

// Run consumes the service's incoming messages until the channel closes or
// ctx is done, then waits for running commands to finish.
func (r *Router) Run(ctx context.Context, service Service) error {
	slog.Info("Router starting message processing")
	defer slog.Info("Router stopped message processing")
	defer r.wg.Wait()

	for {
		select {
		case msg, ok := <-service.Incoming():
			if !ok {
				slog.Debug("Router incoming channel closed")
				return nil
			}
			r.Handle(ctx, msg)
		case <-ctx.Done():
			return nil
		}
	}
}

// Wait blocks until every queued message is routed and all commands started
// by the router have returned.
func (r *Router) Wait() {
	r.wg.Wait()
}
