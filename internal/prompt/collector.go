package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/ArgPipe/internal/models"
)

// pending is the state of one waiting collection.
type pending struct {
	id        string
	key       Key
	req       Request
	timeout   time.Duration
	retries   int
	retryText string
	stopWords map[string]bool

	// mu serialises reply handling.
	mu       sync.Mutex
	attempts atomic.Int64
	values   []any

	refsMu sync.Mutex
	refs   []models.MessageRef

	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

func (p *pending) addRef(ref models.MessageRef) {
	p.refsMu.Lock()
	p.refs = append(p.refs, ref)
	p.refsMu.Unlock()
}

func (p *pending) takeRefs() []models.MessageRef {
	p.refsMu.Lock()
	defer p.refsMu.Unlock()
	refs := p.refs
	p.refs = nil
	return refs
}

func (p *pending) finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Collector owns the pending collections of all users.
type Collector struct {
	messenger   Messenger
	opts        Opts
	cancelWords map[string]bool
	timer       *expiryTimer

	mu      sync.Mutex
	pending map[Key]*pending
	stopped bool
}

// NewCollector creates a Collector that talks through messenger.
func NewCollector(messenger Messenger, opts ...Option) *Collector {
	o := Opts{
		CancelWords:    append([]string(nil), DefaultCancelWords...),
		StopWords:      append([]string(nil), DefaultStopWords...),
		RetryText:      DefaultRetryText,
		DefaultTimeout: models.DefaultPromptTimeout,
		DefaultRetries: models.DefaultPromptRetries,
	}
	for _, opt := range opts {
		opt(&o)
	}

	slog.Debug("Collector created", "cancelWords", o.CancelWords, "timeout", o.DefaultTimeout, "retries", o.DefaultRetries, "cleanup", o.Cleanup)
	return &Collector{
		messenger:   messenger,
		opts:        o,
		cancelWords: wordSet(o.CancelWords),
		timer:       newExpiryTimer(),
		pending:     make(map[Key]*pending),
	}
}

func wordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			set[w] = true
		}
	}
	return set
}

// Task is the handle of a started collection.
type Task struct {
	c *Collector
	p *pending
}

// ID returns the collection id.
func (t *Task) ID() string { return t.p.id }

// Key returns the key the collection waits on.
func (t *Task) Key() Key { return t.p.key }

// Done is closed when the collection has an outcome.
func (t *Task) Done() <-chan struct{} { return t.p.done }

// Attempts returns how many invalid replies were received so far.
func (t *Task) Attempts() int { return int(t.p.attempts.Load()) }

// Ref returns the prompt message, if it is still known.
func (t *Task) Ref() (models.MessageRef, bool) {
	t.p.refsMu.Lock()
	defer t.p.refsMu.Unlock()
	if len(t.p.refs) == 0 {
		return models.MessageRef{}, false
	}
	return t.p.refs[0], true
}

// Wait blocks until the collection ends. Cancelling ctx rejects the
// collection with ReasonAborted.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.p.done:
	case <-ctx.Done():
		t.c.reject(t.p, ReasonAborted)
		<-t.p.done
	}
	return t.p.value, t.p.err
}

// Start sends the prompt and registers the collection for req.Key,
// superseding any collection already waiting on that key.
func (c *Collector) Start(ctx context.Context, req Request) (*Task, error) {
	if req.Key.ChannelID == "" || req.Key.UserID == "" {
		return nil, fmt.Errorf("%w: key %q is incomplete", ErrInvalidRequest, req.Key)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: prompt text is empty", ErrInvalidRequest)
	}

	p := c.newPending(req)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, ErrStopped
	}
	old := c.pending[req.Key]
	c.pending[req.Key] = p
	c.mu.Unlock()

	if old != nil {
		slog.Info("Collector superseding pending prompt", "key", req.Key.String(), "old", old.id, "new", p.id)
		c.reject(old, ReasonSuperseded)
	}

	ref, err := c.messenger.Send(ctx, req.Key.ChannelID, req.Text)
	if err != nil {
		err = fmt.Errorf("failed to send prompt: %w", err)
		slog.Error("Collector.Start send failed", "key", req.Key.String(), "error", err)
		c.finish(p, nil, err)
		return nil, err
	}
	p.addRef(ref)

	c.timer.schedule(p.id, p.timeout, func() {
		slog.Debug("Collector prompt timed out", "key", p.key.String(), "id", p.id)
		c.reject(p, ReasonTimedOut)
	})
	if p.finished() {
		c.timer.cancel(p.id)
	}

	slog.Debug("Collector.Start waiting", "key", req.Key.String(), "id", p.id, "timeout", p.timeout, "retries", p.retries)
	return &Task{c: c, p: p}, nil
}

func (c *Collector) newPending(req Request) *pending {
	p := &pending{
		id:        uuid.NewString(),
		key:       req.Key,
		req:       req,
		timeout:   req.Timeout,
		retries:   req.Retries,
		retryText: req.RetryText,
		done:      make(chan struct{}),
	}
	if p.timeout <= 0 {
		p.timeout = c.opts.DefaultTimeout
	}
	switch {
	case p.retries == 0:
		p.retries = c.opts.DefaultRetries
	case p.retries < 0:
		p.retries = 0
	}
	if p.retryText == "" {
		p.retryText = c.opts.RetryText
	}
	if req.Infinite {
		words := req.StopWords
		if len(words) == 0 {
			words = c.opts.StopWords
		}
		p.stopWords = wordSet(words)
	}
	return p
}

// Collect starts a collection and waits for its outcome.
func (c *Collector) Collect(ctx context.Context, req Request) (any, error) {
	task, err := c.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return task.Wait(ctx)
}

// Deliver hands a follow-up message to the collection waiting on its
// sender. It reports whether the message was consumed.
func (c *Collector) Deliver(ctx context.Context, msg models.Message) bool {
	key := Key{ChannelID: msg.ChannelID, UserID: msg.UserID}

	c.mu.Lock()
	p := c.pending[key]
	c.mu.Unlock()
	if p == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished() {
		return false
	}

	content := strings.TrimSpace(msg.Content)
	word := strings.ToLower(content)

	if c.cancelWords[word] {
		slog.Info("Collector prompt cancelled by user", "key", key.String(), "id", p.id)
		c.reject(p, ReasonCancelled)
		return true
	}
	if p.req.Infinite && p.stopWords[word] {
		c.finish(p, p.collected(), nil)
		return true
	}

	value, ok, err := c.validate(ctx, p, content)
	if err != nil {
		slog.Error("Collector validation failed", "key", key.String(), "id", p.id, "error", err)
		c.finish(p, nil, err)
		return true
	}

	if ok {
		if !p.req.Infinite {
			slog.Info("Collector prompt resolved", "key", key.String(), "id", p.id)
			c.finish(p, value, nil)
			return true
		}
		p.values = append(p.values, value)
		if p.req.Limit > 0 && len(p.values) >= p.req.Limit {
			c.finish(p, p.collected(), nil)
			return true
		}
		c.timer.reset(p.id, p.timeout)
		return true
	}

	attempts := p.attempts.Add(1)
	if attempts > int64(p.retries) {
		slog.Info("Collector prompt retry limit reached", "key", key.String(), "id", p.id, "attempts", attempts)
		c.reject(p, ReasonRetryLimit)
		return true
	}

	c.timer.reset(p.id, p.timeout)
	ref, err := c.messenger.Send(ctx, key.ChannelID, p.retryText)
	if err != nil {
		slog.Error("Collector failed to send retry notice", "key", key.String(), "error", err)
		return true
	}
	p.addRef(ref)
	slog.Debug("Collector sent retry notice", "key", key.String(), "id", p.id, "attempts", attempts)
	return true
}

func (c *Collector) validate(ctx context.Context, p *pending, content string) (any, bool, error) {
	if p.req.Validate == nil {
		return content, content != "", nil
	}
	return p.req.Validate(ctx, content)
}

func (p *pending) collected() []any {
	return append([]any{}, p.values...)
}

// Has reports whether a collection is waiting on key.
func (c *Collector) Has(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}

// Cancel rejects the collection waiting on key with ReasonCancelled.
func (c *Collector) Cancel(key Key) bool {
	c.mu.Lock()
	p := c.pending[key]
	c.mu.Unlock()
	if p == nil {
		return false
	}
	c.reject(p, ReasonCancelled)
	return true
}

// Pending lists the waiting collections ordered by key.
func (c *Collector) Pending() []PendingInfo {
	c.mu.Lock()
	list := make([]*pending, 0, len(c.pending))
	for _, p := range c.pending {
		list = append(list, p)
	}
	c.mu.Unlock()

	infos := make([]PendingInfo, 0, len(list))
	for _, p := range list {
		info := PendingInfo{
			ID:       p.id,
			Key:      p.key,
			Attempts: int(p.attempts.Load()),
			Infinite: p.req.Infinite,
		}
		if p.mu.TryLock() {
			info.Collected = len(p.values)
			p.mu.Unlock()
		}
		info.ExpiresAt, _ = c.timer.expiresAt(p.id)
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key.String() < infos[j].Key.String() })
	return infos
}

// Stop rejects every waiting collection with ReasonStopped. Later calls to
// Start fail with ErrStopped.
func (c *Collector) Stop() {
	c.mu.Lock()
	c.stopped = true
	list := make([]*pending, 0, len(c.pending))
	for _, p := range c.pending {
		list = append(list, p)
	}
	c.mu.Unlock()

	for _, p := range list {
		c.reject(p, ReasonStopped)
	}
	c.timer.stop()
	slog.Info("Collector stopped", "rejected", len(list))
}

func (c *Collector) reject(p *pending, reason Reason) {
	c.finish(p, nil, &RejectionError{
		Reason:   reason,
		Key:      p.key,
		Attempts: int(p.attempts.Load()),
	})
}

// finish records the outcome once and removes the collection.
func (c *Collector) finish(p *pending, value any, err error) {
	p.once.Do(func() {
		c.mu.Lock()
		if c.pending[p.key] == p {
			delete(c.pending, p.key)
		}
		c.mu.Unlock()
		c.timer.cancel(p.id)

		if c.opts.Cleanup {
			c.cleanup(p)
		}

		p.value, p.err = value, err
		close(p.done)
	})
}

func (c *Collector) cleanup(p *pending) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	for _, ref := range p.takeRefs() {
		if err := c.messenger.Delete(ctx, ref); err != nil {
			slog.Warn("Collector failed to delete prompt message", "key", p.key.String(), "message", ref.ID, "error", err)
		}
	}
}
