package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ArgPipe/internal/commands"
	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/prompt"
	"github.com/BTreeMap/ArgPipe/internal/scheduler"
	"github.com/BTreeMap/ArgPipe/internal/store"
)

//go:embed commands.yaml
var builtinCommands string

// maxDice bounds the roll command.
const maxDice = 100

// ReminderJobKind is the job kind the remind command schedules.
const ReminderJobKind = "reminder"

// reminder is the payload of a reminder job.
type reminder struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	Schedule  string `json:"schedule,omitempty"` // cron expression of a recurring reminder
}

// bot holds the state the built-in command handlers share.
type bot struct {
	jobs      store.JobRepo
	messenger prompt.Messenger

	mu   sync.Mutex
	tags map[string]map[string]struct{}
}

func newBot(jobs store.JobRepo, messenger prompt.Messenger) *bot {
	return &bot{
		jobs:      jobs,
		messenger: messenger,
		tags:      make(map[string]map[string]struct{}),
	}
}

// bind attaches handlers to whichever built-in commands are registered.
func (b *bot) bind(registry *commands.Registry) {
	handlers := map[string]commands.Handler{
		"remind": b.remind,
		"every":  b.every,
		"forget": b.forget,
		"greet":  b.greet,
		"roll":   b.roll,
		"pick":   b.pick,
		"tag":    b.tag,
		"survey": b.survey,
	}
	for name, h := range handlers {
		if err := registry.Bind(name, h); err != nil {
			slog.Debug("bot.bind command not in schema", "command", name)
		}
	}
}

func (b *bot) remind(ctx context.Context, cc *commands.Context, args commands.Args) error {
	delay := args.Duration("in")
	text := args.String("text")
	if args.Bool("loud") {
		text = strings.ToUpper(text)
	}
	inv := cc.Invocation

	id, err := b.schedule(ctx, reminder{ChannelID: inv.ChannelID, UserID: inv.UserID, Text: text}, time.Now().Add(delay))
	if err != nil {
		return err
	}

	slog.Info("bot.remind reminder scheduled", "id", id, "channel", inv.ChannelID, "user", inv.UserID, "in", delay)
	_, err = cc.Reply(ctx, fmt.Sprintf("OK, I'll remind you in %s. (id %s)", delay, id))
	return err
}

func (b *bot) every(ctx context.Context, cc *commands.Context, args commands.Args) error {
	sched, ok := args["schedule"].(scheduler.Schedule)
	if !ok {
		return fmt.Errorf("every: unexpected schedule value %T", args["schedule"])
	}
	inv := cc.Invocation
	r := reminder{ChannelID: inv.ChannelID, UserID: inv.UserID, Text: args.String("text"), Schedule: sched.String()}
	first := sched.Next(time.Now())
	id, err := b.schedule(ctx, r, first)
	if err != nil {
		return err
	}

	slog.Info("bot.every recurring reminder scheduled", "id", id, "channel", inv.ChannelID, "user", inv.UserID, "schedule", r.Schedule)
	_, err = cc.Reply(ctx, fmt.Sprintf("OK, first reminder at %s. (id %s)", first.UTC().Format(time.RFC1123), id))
	return err
}

func (b *bot) schedule(ctx context.Context, r reminder, at time.Time) (string, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode reminder: %w", err)
	}
	id, err := b.jobs.EnqueueJob(ctx, ReminderJobKind, at, string(payload), "")
	if err != nil {
		return "", fmt.Errorf("failed to schedule reminder: %w", err)
	}
	return id, nil
}

// deliverReminder is the job handler for ReminderJobKind. A recurring
// reminder schedules its next occurrence before it is sent.
func (b *bot) deliverReminder(ctx context.Context, payload string) error {
	var r reminder
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return fmt.Errorf("invalid reminder payload: %w", err)
	}
	text := fmt.Sprintf("Reminder for %s: %s", r.UserID, r.Text)
	if r.Schedule != "" {
		sched, err := scheduler.Parse(r.Schedule)
		if err != nil {
			return err
		}
		next, err := b.schedule(ctx, r, sched.Next(time.Now()))
		if err != nil {
			return err
		}
		text += fmt.Sprintf(" (next id %s)", next)
	}
	_, err := b.messenger.Send(ctx, r.ChannelID, text)
	return err
}

func (b *bot) forget(ctx context.Context, cc *commands.Context, args commands.Args) error {
	id := args.String("id")
	job, err := b.jobs.GetJob(ctx, id)
	if errors.Is(err, store.ErrJobNotFound) {
		_, err = cc.Reply(ctx, "I don't know that reminder.")
		return err
	}
	if err != nil {
		return err
	}
	var r reminder
	if job.Kind != ReminderJobKind || json.Unmarshal([]byte(job.PayloadJSON), &r) != nil || r.UserID != cc.Invocation.UserID {
		_, err = cc.Reply(ctx, "I don't know that reminder.")
		return err
	}
	if job.Terminal() {
		_, err = cc.Reply(ctx, "That reminder is no longer pending.")
		return err
	}
	if err := b.jobs.CancelJob(ctx, id); err != nil {
		return err
	}
	_, err = cc.Reply(ctx, "Reminder canceled.")
	return err
}

func (b *bot) greet(ctx context.Context, cc *commands.Context, args commands.Args) error {
	member, ok := args["who"].(models.Member)
	if !ok {
		return fmt.Errorf("greet: unexpected member value %T", args["who"])
	}
	_, err := cc.Reply(ctx, fmt.Sprintf("Hello, %s!", member.Name))
	return err
}

func (b *bot) roll(ctx context.Context, cc *commands.Context, args commands.Args) error {
	sides, count := args.Int("sides"), args.Int("count")
	if sides < 2 || count < 1 || count > maxDice {
		_, err := cc.Reply(ctx, fmt.Sprintf("I can roll 1 to %d dice with at least 2 sides.", maxDice))
		return err
	}
	rolls := make([]string, count)
	var total int64
	for i := range rolls {
		n := rand.Int64N(sides) + 1
		total += n
		rolls[i] = fmt.Sprint(n)
	}
	_, err := cc.Reply(ctx, fmt.Sprintf("%s = %d", strings.Join(rolls, " + "), total))
	return err
}

func (b *bot) pick(ctx context.Context, cc *commands.Context, args commands.Args) error {
	_, err := cc.Reply(ctx, "Enjoy your "+args.String("meal")+".")
	return err
}

func (b *bot) tag(ctx context.Context, cc *commands.Context, args commands.Args) error {
	channel := cc.Invocation.ChannelID
	if add, ok := args.Sub("add"); ok {
		added := b.addTags(channel, add.List("names"))
		_, err := cc.Reply(ctx, fmt.Sprintf("Added %d tag(s).", added))
		return err
	}
	tags := b.listTags(channel)
	if len(tags) == 0 {
		_, err := cc.Reply(ctx, "No tags yet.")
		return err
	}
	_, err := cc.Reply(ctx, "Tags: "+strings.Join(tags, ", "))
	return err
}

func (b *bot) addTags(channel string, names []any) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.tags[channel]
	if !ok {
		set = make(map[string]struct{})
		b.tags[channel] = set
	}
	added := 0
	for _, n := range names {
		name := strings.ToLower(strings.TrimSpace(fmt.Sprint(n)))
		if _, dup := set[name]; name == "" || dup {
			continue
		}
		set[name] = struct{}{}
		added++
	}
	return added
}

func (b *bot) listTags(channel string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	tags := make([]string, 0, len(b.tags[channel]))
	for t := range b.tags[channel] {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func (b *bot) survey(ctx context.Context, cc *commands.Context, args commands.Args) error {
	answers := args.List("answers")
	_, err := cc.Reply(ctx, fmt.Sprintf("Thanks, I recorded %d answer(s).", len(answers)))
	return err
}
