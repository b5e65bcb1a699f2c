package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/ArgPipe/internal/commands"
	"github.com/BTreeMap/ArgPipe/internal/fulfill"
	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/prompt"
	"github.com/BTreeMap/ArgPipe/internal/resolver"
	"github.com/BTreeMap/ArgPipe/internal/scheduler"
	"github.com/BTreeMap/ArgPipe/internal/store"
	"github.com/BTreeMap/ArgPipe/internal/testutil"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ARGPIPE_STATE_DIR", "ARGPIPE_DB_DSN", "DATABASE_URL", "WHATSAPP_DB_DSN",
		"ARGPIPE_TRANSPORT", "ARGPIPE_PREFIX", "API_ADDR", "ARGPIPE_COMMANDS_FILE",
		"ARGPIPE_PROMPT_TIMEOUT", "ARGPIPE_PROMPT_RETRIES", "ARGPIPE_CLEANUP_PROMPTS",
		"ARGPIPE_JOB_POLL_INTERVAL", "ARGPIPE_LOG_LEVEL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadEnvironmentConfigDefaults(t *testing.T) {
	clearEnv(t)

	config := loadEnvironmentConfig()
	if config.StateDir != DefaultStateDir {
		t.Errorf("Expected default state dir %q, got %q", DefaultStateDir, config.StateDir)
	}
	if config.Transport != TransportWhatsApp {
		t.Errorf("Expected whatsapp transport, got %q", config.Transport)
	}
	if config.Prefix != commands.DefaultPrefix {
		t.Errorf("Expected prefix %q, got %q", commands.DefaultPrefix, config.Prefix)
	}
	if config.PromptTimeout != models.DefaultPromptTimeout || config.PromptRetries != models.DefaultPromptRetries {
		t.Errorf("unexpected prompt defaults: %v, %d", config.PromptTimeout, config.PromptRetries)
	}
}

func TestLoadEnvironmentConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u@localhost/argpipe")
	t.Setenv("ARGPIPE_PROMPT_TIMEOUT", "90")
	t.Setenv("ARGPIPE_CLEANUP_PROMPTS", "true")
	t.Setenv("ARGPIPE_TRANSPORT", "twilio")

	config := loadEnvironmentConfig()
	if config.DBDSN != "postgres://u@localhost/argpipe" {
		t.Errorf("DATABASE_URL not used as DB DSN: %q", config.DBDSN)
	}
	if config.PromptTimeout != 90*time.Second {
		t.Errorf("expected 90s prompt timeout, got %v", config.PromptTimeout)
	}
	if !config.CleanupPrompts || config.Transport != TransportTwilio {
		t.Errorf("unexpected config: %+v", config)
	}
}

func TestParseCommandLineFlags(t *testing.T) {
	clearEnv(t)
	config := loadEnvironmentConfig()
	stateDir := t.TempDir()

	fs := flag.NewFlagSet("argpipe", flag.ContinueOnError)
	flags, err := parseCommandLineFlags(fs, config, []string{"-state-dir", stateDir, "-transport", "NONE", "-prefix", "/"})
	if err != nil {
		t.Fatalf("parseCommandLineFlags failed: %v", err)
	}
	if *flags.transport != TransportNone || *flags.prefix != "/" {
		t.Errorf("unexpected flags: transport=%q prefix=%q", *flags.transport, *flags.prefix)
	}
	if want := filepath.Join(stateDir, DefaultDBFileName); *flags.dbDSN != want {
		t.Errorf("expected DB DSN %q, got %q", want, *flags.dbDSN)
	}
	if !strings.Contains(*flags.waDSN, filepath.Join(stateDir, DefaultWhatsAppDBFileName)) {
		t.Errorf("WhatsApp DSN should follow the state directory: %q", *flags.waDSN)
	}
}

func TestParseCommandLineFlagsRejectsUnknownTransport(t *testing.T) {
	clearEnv(t)
	fs := flag.NewFlagSet("argpipe", flag.ContinueOnError)
	if _, err := parseCommandLineFlags(fs, loadEnvironmentConfig(), []string{"-transport", "telegram"}); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

func TestBuildPromptOptions(t *testing.T) {
	timeout, retries, cleanup := 5*time.Second, 3, true
	opts := buildPromptOptions(Flags{promptTimeout: &timeout, promptRetries: &retries, cleanupPrompts: &cleanup})

	var o prompt.Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.DefaultTimeout != timeout || o.DefaultRetries != retries || !o.Cleanup {
		t.Errorf("unexpected prompt options: %+v", o)
	}
}

func TestLoadCommandSchemas(t *testing.T) {
	cmds, err := loadCommandSchemas("")
	if err != nil {
		t.Fatalf("built-in schemas failed to load: %v", err)
	}
	resolvers := resolver.NewRegistry()
	if err := scheduler.Register(resolvers); err != nil {
		t.Fatal(err)
	}
	registry := commands.NewRegistry(resolvers)
	if err := registry.RegisterAll(cmds); err != nil {
		t.Fatalf("built-in schemas failed to register: %v", err)
	}
	newBot(store.NewInMemoryStore(), testutil.NewRecordingMessenger()).bind(registry)
	for _, cmd := range registry.List() {
		if cmd.Handler == nil {
			t.Errorf("command %q has no handler", cmd.Name)
		}
	}

	path := filepath.Join(t.TempDir(), "commands.yaml")
	if err := os.WriteFile(path, []byte("commands: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadCommandSchemas(path); err == nil {
		t.Error("expected error for a file without commands")
	}
	if _, err := loadCommandSchemas(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

// builtinFixture dispatches chat messages to the built-in commands.
type builtinFixture struct {
	dispatcher *commands.Dispatcher
	messenger  *testutil.RecordingMessenger
	store      *store.InMemoryStore
	bot        *bot
}

func newBuiltinFixture(t *testing.T) *builtinFixture {
	t.Helper()
	messenger := testutil.NewRecordingMessenger()
	collector := prompt.NewCollector(messenger)
	t.Cleanup(collector.Stop)

	cmds, err := loadCommandSchemas("")
	if err != nil {
		t.Fatalf("loadCommandSchemas failed: %v", err)
	}
	resolvers := resolver.NewRegistry()
	if err := scheduler.Register(resolvers); err != nil {
		t.Fatal(err)
	}
	registry := commands.NewRegistry(resolvers)
	if err := registry.RegisterAll(cmds); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}
	st := store.NewInMemoryStore()
	b := newBot(st, messenger)
	b.bind(registry)

	dir := testutil.NewStaticDirectory(models.Member{ID: "u-ada", Name: "Ada", ChannelID: "c"})
	fulfiller := fulfill.New(resolvers, collector, fulfill.WithDirectory(dir))
	return &builtinFixture{
		dispatcher: commands.NewDispatcher(registry, fulfiller, messenger),
		messenger:  messenger,
		store:      st,
		bot:        b,
	}
}

func (f *builtinFixture) say(t *testing.T, content string) string {
	t.Helper()
	before := len(f.messenger.Sent())
	handled, err := f.dispatcher.HandleMessage(context.Background(), models.Message{ChannelID: "c", UserID: "u", Content: content})
	if !handled || err != nil {
		t.Fatalf("%q: handled=%v err=%v", content, handled, err)
	}
	sent := f.messenger.WaitForSends(t, before+1)
	return sent[len(sent)-1].Content
}

func TestBuiltinCommands(t *testing.T) {
	f := newBuiltinFixture(t)

	tests := []struct {
		input string
		want  string
	}{
		{"!pick lunch", "Enjoy your lunch."},
		{"!greet Ada", "Hello, Ada!"},
		{"!tag list", "No tags yet."},
		{"!tag add urgent", "Added 1 tag(s)."},
		{"!tag list", "Tags: urgent"},
		{"!forget nope", "I don't know that reminder."},
	}
	for _, tt := range tests {
		if got := f.say(t, tt.input); got != tt.want {
			t.Errorf("%q: expected reply %q, got %q", tt.input, tt.want, got)
		}
	}
}

func TestRemindSchedulesDurableJob(t *testing.T) {
	f := newBuiltinFixture(t)
	ctx := context.Background()

	reply := f.say(t, "!remind 0 -l stretch")
	if !strings.HasPrefix(reply, "OK, I'll remind you in 0s.") {
		t.Fatalf("unexpected reply %q", reply)
	}

	runner := store.NewJobRunner(f.store)
	runner.RegisterHandler(ReminderJobKind, f.bot.deliverReminder)
	if n := runner.Poll(ctx); n != 1 {
		t.Fatalf("expected one due reminder, got %d", n)
	}
	sent := f.messenger.Sent()
	if got := sent[len(sent)-1].Content; got != "Reminder for u: STRETCH" {
		t.Errorf("unexpected reminder %q", got)
	}
}

func TestRemindLongFormLoudFlag(t *testing.T) {
	f := newBuiltinFixture(t)
	ctx := context.Background()

	if reply := f.say(t, "!remind 0 buy milk --loud"); !strings.HasPrefix(reply, "OK, I'll remind you in 0s.") {
		t.Fatalf("unexpected reply %q", reply)
	}
	runner := store.NewJobRunner(f.store)
	runner.RegisterHandler(ReminderJobKind, f.bot.deliverReminder)
	if n := runner.Poll(ctx); n != 1 {
		t.Fatalf("expected one due reminder, got %d", n)
	}
	sent := f.messenger.Sent()
	if got := sent[len(sent)-1].Content; got != "Reminder for u: BUY MILK" {
		t.Errorf("unexpected reminder %q", got)
	}
}

func TestEveryReschedulesItself(t *testing.T) {
	f := newBuiltinFixture(t)
	ctx := context.Background()

	reply := f.say(t, `!every "@every 1s" drink water`)
	if !strings.HasPrefix(reply, "OK, first reminder at ") {
		t.Fatalf("unexpected reply %q", reply)
	}
	id := strings.TrimSuffix(reply[strings.Index(reply, "(id ")+4:], ")")

	runner := store.NewJobRunner(f.store)
	runner.RegisterHandler(ReminderJobKind, f.bot.deliverReminder)
	deadline := time.Now().Add(3 * time.Second)
	for runner.Poll(ctx) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("recurring reminder never became due")
		}
		time.Sleep(50 * time.Millisecond)
	}

	sent := f.messenger.Sent()
	got := sent[len(sent)-1].Content
	if !strings.HasPrefix(got, "Reminder for u: drink water (next id ") {
		t.Fatalf("unexpected reminder %q", got)
	}
	next := strings.TrimSuffix(got[strings.Index(got, "(next id ")+9:], ")")
	if next == id {
		t.Error("next occurrence must be a new job")
	}
	job, err := f.store.GetJob(ctx, next)
	if err != nil || job.Status != store.JobStatusQueued {
		t.Errorf("next occurrence not queued: %+v, %v", job, err)
	}
}

func TestForgetCancelsReminder(t *testing.T) {
	f := newBuiltinFixture(t)
	ctx := context.Background()

	reply := f.say(t, "!remind 1h water the plants")
	id := strings.TrimSuffix(reply[strings.Index(reply, "(id ")+4:], ")")

	if got := f.say(t, "!forget "+id); got != "Reminder canceled." {
		t.Fatalf("unexpected reply %q", got)
	}
	job, err := f.store.GetJob(ctx, id)
	if err != nil || job.Status != store.JobStatusCanceled {
		t.Errorf("expected canceled job, got %+v, %v", job, err)
	}
	if got := f.say(t, "!forget "+id); got != "That reminder is no longer pending." {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestBotRollRange(t *testing.T) {
	f := newBuiltinFixture(t)
	reply := f.say(t, "!roll 6")
	var n int
	if _, err := fmt.Sscan(reply, &n); err != nil || n < 1 || n > 6 {
		t.Errorf("unexpected roll reply %q", reply)
	}
}

func TestBotAddTagsDeduplicates(t *testing.T) {
	b := newBot(store.NewInMemoryStore(), nil)
	if n := b.addTags("c", []any{"Go", "go", " ", "sql"}); n != 2 {
		t.Errorf("expected 2 new tags, got %d", n)
	}
	if got := b.listTags("c"); strings.Join(got, ",") != "go,sql" {
		t.Errorf("unexpected tags %v", got)
	}
	if got := b.listTags("other"); len(got) != 0 {
		t.Errorf("tags leaked across channels: %v", got)
	}
}

func TestLogMessengerSatisfiesMessenger(t *testing.T) {
	var m prompt.Messenger = logMessenger{}
	ref, err := m.Send(context.Background(), "c", "hi")
	if err != nil || ref.ChannelID != "c" {
		t.Errorf("unexpected send result %+v, %v", ref, err)
	}
}
